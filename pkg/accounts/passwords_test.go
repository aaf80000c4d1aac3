package accounts

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestKeyringStoreRoundTrip(t *testing.T) {
	keyring.MockInit()

	ks, err := NewKeyringStore()
	require.NoError(t, err)

	require.NoError(t, ks.Set("00012345", "pw"))

	got, err := ks.Get("00012345")
	require.NoError(t, err)
	assert.Equal(t, "pw", got)

	require.NoError(t, ks.Delete("00012345"))
	_, err = ks.Get("00012345")
	assert.ErrorIs(t, err, ErrPasswordNotFound)
}

func TestEncryptedFileStoreRoundTrip(t *testing.T) {
	t.Setenv("CFMMCDL_VAULT_KEY", "test-passphrase")
	path := filepath.Join(t.TempDir(), "credentials.enc")

	es, err := NewEncryptedFileStore(path)
	require.NoError(t, err)

	require.NoError(t, es.Set("00012345", "pw-one"))
	require.NoError(t, es.Set("00067890", "pw-two"))

	got, err := es.Get("00012345")
	require.NoError(t, err)
	assert.Equal(t, "pw-one", got)

	// A second store over the same file and passphrase reads the same data.
	es2, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	got, err = es2.Get("00067890")
	require.NoError(t, err)
	assert.Equal(t, "pw-two", got)

	require.NoError(t, es.Delete("00012345"))
	_, err = es.Get("00012345")
	assert.ErrorIs(t, err, ErrPasswordNotFound)
}

func TestEncryptedFileStoreWrongPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.enc")

	t.Setenv("CFMMCDL_VAULT_KEY", "right")
	es, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	require.NoError(t, es.Set("1", "pw"))

	t.Setenv("CFMMCDL_VAULT_KEY", "wrong")
	es2, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	_, err = es2.Get("1")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrPasswordNotFound)
}

func TestEncryptedFileStoreGeneratesKeyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.enc")

	es, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	require.NoError(t, es.Set("1", "pw"))

	// The generated key file lets a fresh store decrypt.
	es2, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	got, err := es2.Get("1")
	require.NoError(t, err)
	assert.Equal(t, "pw", got)
}

// memStore is an in-memory PasswordStore for vault chain tests.
type memStore struct {
	data    map[string]string
	failSet bool
}

func newMemStore() *memStore {
	return &memStore{data: map[string]string{}}
}

func (m *memStore) Set(no, pw string) error {
	if m.failSet {
		return errors.New("store unavailable")
	}
	m.data[no] = pw
	return nil
}

func (m *memStore) Get(no string) (string, error) {
	pw, ok := m.data[no]
	if !ok {
		return "", ErrPasswordNotFound
	}
	return pw, nil
}

func (m *memStore) Delete(no string) error {
	if _, ok := m.data[no]; !ok {
		return ErrPasswordNotFound
	}
	delete(m.data, no)
	return nil
}

func TestVaultSetFallsThrough(t *testing.T) {
	broken := newMemStore()
	broken.failSet = true
	working := newMemStore()

	v := NewVaultWith(broken, working)
	require.NoError(t, v.Set("1", "pw"))
	assert.Equal(t, "pw", working.data["1"])
}

func TestVaultGetPriority(t *testing.T) {
	first := newMemStore()
	second := newMemStore()
	first.data["1"] = "from-first"
	second.data["1"] = "from-second"
	second.data["2"] = "only-second"

	v := NewVaultWith(first, second)

	got, err := v.Get("1")
	require.NoError(t, err)
	assert.Equal(t, "from-first", got)

	got, err = v.Get("2")
	require.NoError(t, err)
	assert.Equal(t, "only-second", got)

	_, err = v.Get("3")
	assert.ErrorIs(t, err, ErrPasswordNotFound)
}

func TestVaultDeleteHitsAllStores(t *testing.T) {
	first := newMemStore()
	second := newMemStore()
	first.data["1"] = "a"
	second.data["1"] = "b"

	v := NewVaultWith(first, second)
	require.NoError(t, v.Delete("1"))
	assert.Empty(t, first.data)
	assert.Empty(t, second.data)
}

func TestVaultResolve(t *testing.T) {
	store := newMemStore()
	store.data["1"] = "pw-one"

	v := NewVaultWith(store)
	resolved, missing, err := v.Resolve([]Account{
		{AccountNo: "1", DivisionName: "d", CompanyShort: "c"},
		{AccountNo: "2", DivisionName: "d", CompanyShort: "c"},
	})
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, "pw-one", resolved[0].Password)
	assert.Equal(t, []string{"2"}, missing)
}
