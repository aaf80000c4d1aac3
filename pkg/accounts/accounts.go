// Package accounts manages the portal account roster and the credential
// stores backing it. The roster file never contains passwords; those live in
// the system keyring, with an encrypted file as fallback.
package accounts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Account identifies one portal login. AccountNo is the unique key.
type Account struct {
	DivisionName string `yaml:"division_name"`
	CompanyShort string `yaml:"company_short"`
	AccountNo    string `yaml:"account_no"`
	Password     string `yaml:"-"`
}

// DisplayName is the label used in events and file names.
func (a Account) DisplayName() string {
	return fmt.Sprintf("%s-%s", a.DivisionName, a.CompanyShort)
}

// ErrAccountNotFound is returned when an account number is not in the roster.
var ErrAccountNotFound = errors.New("account not found")

type rosterFile struct {
	Accounts []Account `yaml:"accounts"`
}

// Roster is the on-disk list of accounts, ordered as entered. It is read once
// per batch run and never mutated by the core.
type Roster struct {
	path string
	mu   sync.Mutex
}

// NewRoster creates a roster backed by the given YAML file. The file may not
// exist yet; it is created on first Add.
func NewRoster(path string) *Roster {
	return &Roster{path: path}
}

// List returns all accounts in roster order.
func (r *Roster) List() ([]Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load()
}

// Get returns the account with the given number.
func (r *Roster) Get(accountNo string) (Account, error) {
	accounts, err := r.List()
	if err != nil {
		return Account{}, err
	}
	for _, a := range accounts {
		if a.AccountNo == accountNo {
			return a, nil
		}
	}
	return Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, accountNo)
}

// Search returns accounts whose division, company or number contains the
// query, case-insensitively. An empty query returns everything.
func (r *Roster) Search(query string) ([]Account, error) {
	accounts, err := r.List()
	if err != nil {
		return nil, err
	}
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return accounts, nil
	}
	var matched []Account
	for _, a := range accounts {
		if strings.Contains(strings.ToLower(a.DivisionName), query) ||
			strings.Contains(strings.ToLower(a.CompanyShort), query) ||
			strings.Contains(strings.ToLower(a.AccountNo), query) {
			matched = append(matched, a)
		}
	}
	return matched, nil
}

// Add inserts or replaces the account with the same number.
func (r *Roster) Add(account Account) error {
	if account.AccountNo == "" {
		return errors.New("account number is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	accounts, err := r.load()
	if err != nil {
		return err
	}
	replaced := false
	for i, a := range accounts {
		if a.AccountNo == account.AccountNo {
			accounts[i] = account
			replaced = true
			break
		}
	}
	if !replaced {
		accounts = append(accounts, account)
	}
	return r.save(accounts)
}

// Remove deletes the accounts with the given numbers. Unknown numbers are
// ignored.
func (r *Roster) Remove(accountNos ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	accounts, err := r.load()
	if err != nil {
		return err
	}
	drop := make(map[string]bool, len(accountNos))
	for _, no := range accountNos {
		drop[no] = true
	}
	kept := accounts[:0]
	for _, a := range accounts {
		if !drop[a.AccountNo] {
			kept = append(kept, a)
		}
	}
	return r.save(kept)
}

func (r *Roster) load() ([]Account, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read roster: %w", err)
	}
	var file rosterFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse roster: %w", err)
	}
	return file.Accounts, nil
}

func (r *Roster) save(accounts []Account) error {
	data, err := yaml.Marshal(rosterFile{Accounts: accounts})
	if err != nil {
		return fmt.Errorf("failed to marshal roster: %w", err)
	}
	if dir := filepath.Dir(r.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create roster directory: %w", err)
		}
	}
	if err := os.WriteFile(r.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write roster: %w", err)
	}
	return nil
}

// SortByAccountNo orders accounts by number for stable display.
func SortByAccountNo(accounts []Account) {
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].AccountNo < accounts[j].AccountNo
	})
}
