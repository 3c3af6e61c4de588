package config

// ConfigBackend abstracts platform-native config storage.
// On macOS this is UserDefaults (via the `defaults` CLI); elsewhere a
// flat JSON file under $XDG_CONFIG_HOME serves the same role.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}
