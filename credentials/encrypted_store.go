package credentials

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"

	"github.com/birbparty/toolcache/toolerr"
)

const (
	keyFileName   = "store.key"
	blobFileName  = "store.enc"
	scryptN       = 1 << 15
	scryptR       = 8
	scryptP       = 1
	saltLen       = 16
	nonceLen      = 24
	storeFileMode = 0o600
)

// encryptedStore is the fifth acquisition source and the write-back
// target for every other source: a single nacl/secretbox-encrypted blob
// under dir, keyed by registry, with the file mode restricted to the
// owning user. The encryption key itself is derived with scrypt from
// per-user random material stored alongside the blob (also 0600) — the
// spec's "OS keychain where available, else a random key" degrades to
// the random-key branch here, since no OS keychain integration is part
// of this module's dependency surface.
type encryptedStore struct {
	dir string
	mu  sync.Mutex
}

func newEncryptedStore(dir string) *encryptedStore {
	return &encryptedStore{dir: dir}
}

type encBlob struct {
	Salt    []byte                `json:"salt"`
	Entries map[string]Credential `json:"entries"`
}

func (e *encryptedStore) keyPath() string  { return filepath.Join(e.dir, keyFileName) }
func (e *encryptedStore) blobPath() string { return filepath.Join(e.dir, blobFileName) }

// loadOrCreateMaterial reads the per-user random key material, creating
// it with 0600 permissions on first use.
func (e *encryptedStore) loadOrCreateMaterial() ([]byte, error) {
	data, err := os.ReadFile(e.keyPath())
	if err == nil {
		return data, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}
	material := make([]byte, 32)
	if _, err := rand.Read(material); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(e.dir, 0o700); err != nil {
		return nil, err
	}
	if err := writeFileAtomic(e.keyPath(), material, storeFileMode); err != nil {
		return nil, err
	}
	return material, nil
}

func (e *encryptedStore) deriveKey(material, salt []byte) (*[32]byte, error) {
	derived, err := scrypt.Key(material, salt, scryptN, scryptR, scryptP, 32)
	if err != nil {
		return nil, err
	}
	var key [32]byte
	copy(key[:], derived)
	return &key, nil
}

func (e *encryptedStore) readAll() (encBlob, error) {
	raw, err := os.ReadFile(e.blobPath())
	if os.IsNotExist(err) {
		salt := make([]byte, saltLen)
		if _, rerr := rand.Read(salt); rerr != nil {
			return encBlob{}, rerr
		}
		return encBlob{Salt: salt, Entries: map[string]Credential{}}, nil
	}
	if err != nil {
		return encBlob{}, err
	}

	var onDisk struct {
		Salt  []byte `json:"salt"`
		Nonce []byte `json:"nonce"`
		Data  []byte `json:"data"`
	}
	if err := json.Unmarshal(raw, &onDisk); err != nil {
		return encBlob{}, err
	}

	material, err := e.loadOrCreateMaterial()
	if err != nil {
		return encBlob{}, err
	}
	key, err := e.deriveKey(material, onDisk.Salt)
	if err != nil {
		return encBlob{}, err
	}
	var nonce [nonceLen]byte
	copy(nonce[:], onDisk.Nonce)

	plain, ok := secretbox.Open(nil, onDisk.Data, &nonce, key)
	if !ok {
		return encBlob{}, fmt.Errorf("encrypted credential store is corrupt or key material changed")
	}
	var blob encBlob
	if err := json.Unmarshal(plain, &blob); err != nil {
		return encBlob{}, err
	}
	blob.Salt = onDisk.Salt
	return blob, nil
}

func (e *encryptedStore) writeAll(blob encBlob) error {
	material, err := e.loadOrCreateMaterial()
	if err != nil {
		return err
	}
	key, err := e.deriveKey(material, blob.Salt)
	if err != nil {
		return err
	}

	plain, err := json.Marshal(blob)
	if err != nil {
		return err
	}

	var nonce [nonceLen]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return err
	}
	sealed := secretbox.Seal(nil, plain, &nonce, key)

	onDisk := struct {
		Salt  []byte `json:"salt"`
		Nonce []byte `json:"nonce"`
		Data  []byte `json:"data"`
	}{Salt: blob.Salt, Nonce: nonce[:], Data: sealed}

	raw, err := json.Marshal(onDisk)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(e.dir, 0o700); err != nil {
		return err
	}
	return writeFileAtomic(e.blobPath(), raw, storeFileMode)
}

func (e *encryptedStore) lookup(_ context.Context, registry string) (Credential, bool, error) {
	return e.get(registry)
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (e *encryptedStore) get(registry string) (Credential, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	blob, err := e.readAll()
	if err != nil {
		return Credential{}, false, toolerr.New("credentials.encryptedStore.get", toolerr.KindInternal, err)
	}
	cred, ok := blob.Entries[registry]
	return cred, ok, nil
}

func (e *encryptedStore) put(cred Credential) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	blob, err := e.readAll()
	if err != nil {
		return toolerr.New("credentials.encryptedStore.put", toolerr.KindInternal, err)
	}
	if blob.Entries == nil {
		blob.Entries = map[string]Credential{}
	}
	blob.Entries[cred.Registry] = cred
	return e.writeAll(blob)
}

func (e *encryptedStore) delete(registry string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	blob, err := e.readAll()
	if err != nil {
		return toolerr.New("credentials.encryptedStore.delete", toolerr.KindInternal, err)
	}
	delete(blob.Entries, registry)
	return e.writeAll(blob)
}
