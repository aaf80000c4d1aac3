package accounts

import (
	"errors"
	"fmt"
)

// ErrPasswordNotFound is returned when no store holds a password for the
// account.
var ErrPasswordNotFound = errors.New("password not found")

// PasswordStore keeps portal passwords out of the roster file.
type PasswordStore interface {
	Set(accountNo, password string) error
	Get(accountNo string) (string, error)
	Delete(accountNo string) error
}

// Vault chains password stores: writes go to the first store that accepts
// them, reads fall through until one answers.
type Vault struct {
	stores []PasswordStore
}

// NewVault builds the default store chain: system keyring first, encrypted
// file fallback when the keyring is unavailable (headless hosts).
func NewVault(encryptedPath string) (*Vault, error) {
	var stores []PasswordStore

	if ks, err := NewKeyringStore(); err == nil {
		stores = append(stores, ks)
	}

	es, err := NewEncryptedFileStore(encryptedPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted password store: %w", err)
	}
	stores = append(stores, es)

	return &Vault{stores: stores}, nil
}

// NewVaultWith builds a vault over explicit stores, in priority order.
func NewVaultWith(stores ...PasswordStore) *Vault {
	return &Vault{stores: stores}
}

// Set stores the password in the first store that accepts it.
func (v *Vault) Set(accountNo, password string) error {
	if accountNo == "" {
		return errors.New("account number is required")
	}
	var lastErr error
	for _, s := range v.stores {
		if err := s.Set(accountNo, password); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	if lastErr == nil {
		lastErr = errors.New("no password store available")
	}
	return lastErr
}

// Get returns the password from the first store that holds it.
func (v *Vault) Get(accountNo string) (string, error) {
	for _, s := range v.stores {
		password, err := s.Get(accountNo)
		if err == nil {
			return password, nil
		}
		if !errors.Is(err, ErrPasswordNotFound) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: %s", ErrPasswordNotFound, accountNo)
}

// Delete removes the password from every store.
func (v *Vault) Delete(accountNo string) error {
	var lastErr error
	for _, s := range v.stores {
		if err := s.Delete(accountNo); err != nil && !errors.Is(err, ErrPasswordNotFound) {
			lastErr = err
		}
	}
	return lastErr
}

// Resolve fills in the passwords for a slice of roster accounts. Accounts
// with no stored password are returned in the missing list rather than
// failing the whole batch.
func (v *Vault) Resolve(list []Account) (resolved []Account, missing []string, err error) {
	for _, a := range list {
		password, getErr := v.Get(a.AccountNo)
		if getErr != nil {
			if errors.Is(getErr, ErrPasswordNotFound) {
				missing = append(missing, a.AccountNo)
				continue
			}
			return nil, nil, getErr
		}
		a.Password = password
		resolved = append(resolved, a)
	}
	return resolved, missing, nil
}
