package accounts

import (
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "cfmmcdl"
	keyringPrefix  = "portal_"
)

// KeyringStore keeps passwords in the system keychain.
type KeyringStore struct{}

// NewKeyringStore probes keychain availability before returning a store.
func NewKeyringStore() (*KeyringStore, error) {
	const probe = "availability_probe"
	if err := keyring.Set(keyringService, probe, "ok"); err != nil {
		return nil, fmt.Errorf("keyring not available: %w", err)
	}
	_ = keyring.Delete(keyringService, probe)
	return &KeyringStore{}, nil
}

// Set stores the password under the account's keyring entry.
func (k *KeyringStore) Set(accountNo, password string) error {
	if err := keyring.Set(keyringService, keyringPrefix+accountNo, password); err != nil {
		return fmt.Errorf("failed to store password in keyring: %w", err)
	}
	return nil
}

// Get retrieves the password from the keyring.
func (k *KeyringStore) Get(accountNo string) (string, error) {
	password, err := keyring.Get(keyringService, keyringPrefix+accountNo)
	if err != nil {
		if err == keyring.ErrNotFound {
			return "", ErrPasswordNotFound
		}
		return "", fmt.Errorf("failed to read password from keyring: %w", err)
	}
	return password, nil
}

// Delete removes the keyring entry.
func (k *KeyringStore) Delete(accountNo string) error {
	err := keyring.Delete(keyringService, keyringPrefix+accountNo)
	if err == keyring.ErrNotFound {
		return ErrPasswordNotFound
	}
	return err
}
