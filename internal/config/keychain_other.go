//go:build !darwin

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Without a system keychain, secrets live in a flat JSON file under the
// user's data dir, keyed "service/account" and restricted to 0600.

func secretsFilePath() string {
	return filepath.Join(defaultDataDir(), "secrets.json")
}

func loadSecrets(path string) map[string]string {
	secrets := make(map[string]string)
	data, err := os.ReadFile(path)
	if err == nil {
		_ = json.Unmarshal(data, &secrets)
	}
	return secrets
}

func keychainExec(service, account string) (string, error) {
	key := service + "/" + account
	val, ok := loadSecrets(secretsFilePath())[key]
	if !ok {
		return "", fmt.Errorf("secret %q not found", key)
	}
	return val, nil
}

func keychainStore(service, account, value string) error {
	path := secretsFilePath()
	secrets := loadSecrets(path)
	secrets[service+"/"+account] = value

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating secrets dir: %w", err)
	}
	out, err := json.MarshalIndent(secrets, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o600)
}
