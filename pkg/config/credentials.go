package config

import (
	"errors"
	"strings"

	"github.com/zalando/go-keyring"
)

// KeyringService is the OS keyring service name API keys are stored under.
const KeyringService = "browserpilot"

// ErrKeyNotFound is returned when no API key is stored for a provider.
var ErrKeyNotFound = errors.New("api key not found")

// Credentials stores provider API keys.
type Credentials interface {
	GetKey(provider string) (string, error)
	SetKey(provider, key string) error
	DeleteKey(provider string) error
}

// KeyringStore keeps API keys in the OS keyring.
type KeyringStore struct {
	serviceName string
}

func NewKeyringStore(serviceName string) *KeyringStore {
	if serviceName == "" {
		serviceName = KeyringService
	}
	return &KeyringStore{serviceName: serviceName}
}

func (k *KeyringStore) SetKey(provider, key string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("api key must not be empty")
	}
	return keyring.Set(k.serviceName, normalizeProvider(provider), key)
}

func (k *KeyringStore) GetKey(provider string) (string, error) {
	key, err := keyring.Get(k.serviceName, normalizeProvider(provider))
	if err == nil {
		return key, nil
	}
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrKeyNotFound
	}
	return "", err
}

func (k *KeyringStore) DeleteKey(provider string) error {
	err := keyring.Delete(k.serviceName, normalizeProvider(provider))
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrKeyNotFound
	}
	return err
}

func normalizeProvider(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
