package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
)

const (
	keychainService = "dayline"
	apiTokenAccount = "api_token"
	apiKeyAccount   = "textkit_api_key"
)

// Keychain abstracts the platform secret store.
type Keychain interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
}

// NewKeychain returns the platform secret store: macOS Keychain via the
// security CLI on darwin, a permission-restricted secrets file elsewhere.
func NewKeychain() Keychain {
	return systemKeychain{}
}

type systemKeychain struct{}

func (systemKeychain) Get(service, account string) (string, error) {
	return keychainExec(service, account)
}

func (systemKeychain) Set(service, account, value string) error {
	return keychainStore(service, account, value)
}

// GetAPIToken returns the bearer token protecting the management API.
// Resolution order: the DAYLINE_API_TOKEN environment variable, then the
// platform secret store. When neither holds a token, a fresh one is
// generated and persisted so the server and CLI keep agreeing on it.
func GetAPIToken(kc Keychain) (string, error) {
	if tok := os.Getenv("DAYLINE_API_TOKEN"); tok != "" {
		return tok, nil
	}
	if tok, err := kc.Get(keychainService, apiTokenAccount); err == nil && tok != "" {
		return tok, nil
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating API token: %w", err)
	}
	tok := hex.EncodeToString(buf)
	if err := kc.Set(keychainService, apiTokenAccount, tok); err != nil {
		return "", fmt.Errorf("storing API token: %w", err)
	}
	return tok, nil
}
