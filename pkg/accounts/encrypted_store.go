package accounts

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize       = 32
	keySize        = 32
	kdfIterations  = 100000
	passphraseEnv  = "CFMMCDL_VAULT_KEY"
	passphraseFile = ".vault_key"
)

// EncryptedFileStore keeps passwords in a single AES-GCM encrypted file.
// Used when no system keyring is available.
type EncryptedFileStore struct {
	path       string
	passphrase string
	mu         sync.Mutex
}

type vaultFile struct {
	Salt      string `json:"salt"`
	Encrypted string `json:"encrypted"`
}

// NewEncryptedFileStore creates a store at the given path. The passphrase
// comes from CFMMCDL_VAULT_KEY, or from a generated key file beside the
// vault on first use.
func NewEncryptedFileStore(path string) (*EncryptedFileStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create vault directory: %w", err)
		}
	}
	store := &EncryptedFileStore{path: path}
	passphrase, err := store.loadPassphrase()
	if err != nil {
		return nil, err
	}
	store.passphrase = passphrase
	return store, nil
}

func (e *EncryptedFileStore) loadPassphrase() (string, error) {
	if p := os.Getenv(passphraseEnv); p != "" {
		return p, nil
	}

	keyPath := filepath.Join(filepath.Dir(e.path), passphraseFile)
	if data, err := os.ReadFile(keyPath); err == nil && len(data) > 0 {
		return string(data), nil
	}

	raw := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", fmt.Errorf("failed to generate vault key: %w", err)
	}
	generated := base64.StdEncoding.EncodeToString(raw)
	if err := os.WriteFile(keyPath, []byte(generated), 0o600); err != nil {
		return "", fmt.Errorf("failed to persist vault key: %w", err)
	}
	return generated, nil
}

// Set stores the password in the encrypted vault.
func (e *EncryptedFileStore) Set(accountNo, password string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	passwords, err := e.load()
	if err != nil {
		return err
	}
	passwords[accountNo] = password
	return e.save(passwords)
}

// Get retrieves the password from the encrypted vault.
func (e *EncryptedFileStore) Get(accountNo string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	passwords, err := e.load()
	if err != nil {
		return "", err
	}
	password, ok := passwords[accountNo]
	if !ok {
		return "", ErrPasswordNotFound
	}
	return password, nil
}

// Delete removes the vault entry.
func (e *EncryptedFileStore) Delete(accountNo string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	passwords, err := e.load()
	if err != nil {
		return err
	}
	if _, ok := passwords[accountNo]; !ok {
		return ErrPasswordNotFound
	}
	delete(passwords, accountNo)
	return e.save(passwords)
}

func (e *EncryptedFileStore) load() (map[string]string, error) {
	data, err := os.ReadFile(e.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to read vault: %w", err)
	}

	var file vaultFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse vault: %w", err)
	}
	salt, err := base64.StdEncoding.DecodeString(file.Salt)
	if err != nil {
		return nil, fmt.Errorf("corrupt vault salt: %w", err)
	}
	sealed, err := base64.StdEncoding.DecodeString(file.Encrypted)
	if err != nil {
		return nil, fmt.Errorf("corrupt vault payload: %w", err)
	}

	gcm, err := e.aead(salt)
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, fmt.Errorf("corrupt vault payload: too short")
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt vault: %w", err)
	}

	passwords := map[string]string{}
	if err := json.Unmarshal(plaintext, &passwords); err != nil {
		return nil, fmt.Errorf("failed to parse vault contents: %w", err)
	}
	return passwords, nil
}

func (e *EncryptedFileStore) save(passwords map[string]string) error {
	plaintext, err := json.Marshal(passwords)
	if err != nil {
		return fmt.Errorf("failed to marshal vault contents: %w", err)
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}
	gcm, err := e.aead(salt)
	if err != nil {
		return err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, plaintext, nil)

	data, err := json.Marshal(vaultFile{
		Salt:      base64.StdEncoding.EncodeToString(salt),
		Encrypted: base64.StdEncoding.EncodeToString(sealed),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal vault: %w", err)
	}
	if err := os.WriteFile(e.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write vault: %w", err)
	}
	return nil
}

func (e *EncryptedFileStore) aead(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(e.passphrase), salt, kdfIterations, keySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to init GCM: %w", err)
	}
	return gcm, nil
}
