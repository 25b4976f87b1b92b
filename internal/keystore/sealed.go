package keystore

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const sealedFormatVersion = 1

// KDFParams tunes argon2id
type KDFParams struct {
	Time    uint32 `json:"time"`
	Memory  uint32 `json:"memory"`
	Threads uint8  `json:"threads"`
}

// DefaultKDFParams follows the argon2id recommendation of RFC 9106
var DefaultKDFParams = KDFParams{Time: 3, Memory: 64 * 1024, Threads: 4}

// sealedBlob is the on-disk JSON structure of one key
type sealedBlob struct {
	V      int       `json:"v"`
	KDF    KDFParams `json:"kdf"`
	Salt   []byte    `json:"salt"`
	Nonce  []byte    `json:"nonce"`
	Cipher []byte    `json:"cipher"`
}

// SealedProvider implements Provider with PKCS#8 keys encrypted by
// XChaCha20-Poly1305 under an argon2id passphrase key.
//
// Key files live at: {dir}/{userID}/{role}.sealed
type SealedProvider struct {
	dir        string
	passphrase []byte
	params     KDFParams

	mu   sync.RWMutex
	keys map[string]crypto.Signer
}

// NewSealedProvider creates a sealed key provider
func NewSealedProvider(dir, passphrase string, params KDFParams) (*SealedProvider, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("passphrase is required")
	}
	if params == (KDFParams{}) {
		params = DefaultKDFParams
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating key directory: %w", err)
	}
	return &SealedProvider{
		dir:        dir,
		passphrase: []byte(passphrase),
		params:     params,
		keys:       make(map[string]crypto.Signer),
	}, nil
}

// PrivateKey decrypts the key of a role
func (p *SealedProvider) PrivateKey(ctx context.Context, userID string, role Role) (crypto.Signer, error) {
	path, err := p.path(userID, role)
	if err != nil {
		return nil, err
	}

	p.mu.RLock()
	if key, ok := p.keys[path]; ok {
		p.mu.RUnlock()
		return key, nil
	}
	p.mu.RUnlock()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s key of %s: %w", role, userID, ErrKeyNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}

	der, err := p.open(data, additionalData(userID, role))
	if err != nil {
		return nil, err
	}
	key, err := parseDER("PRIVATE KEY", der)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}

	p.mu.Lock()
	p.keys[path] = key
	p.mu.Unlock()
	return key, nil
}

// StoreKey seals and writes the key
func (p *SealedProvider) StoreKey(ctx context.Context, userID string, role Role, key *rsa.PrivateKey) error {
	path, err := p.path(userID, role)
	if err != nil {
		return err
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return fmt.Errorf("encoding private key: %w", err)
	}
	data, err := p.seal(der, additionalData(userID, role))
	if err != nil {
		return err
	}
	if err := writeKeyFile(path, data); err != nil {
		return err
	}

	p.mu.Lock()
	p.keys[path] = key
	p.mu.Unlock()
	return nil
}

// Close drops cached keys
func (p *SealedProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = make(map[string]crypto.Signer)
	return nil
}

func (p *SealedProvider) path(userID string, role Role) (string, error) {
	name, err := keyName("{role}", userID, role)
	if err != nil {
		return "", err
	}
	return filepath.Join(p.dir, userID, name+".sealed"), nil
}

// additionalData binds a blob to its owner and role
func additionalData(userID string, role Role) []byte {
	return []byte(userID + "/" + string(role))
}

func (p *SealedProvider) seal(plaintext, ad []byte) ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(p.deriveKey(salt, p.params))
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return json.Marshal(sealedBlob{
		V:      sealedFormatVersion,
		KDF:    p.params,
		Salt:   salt,
		Nonce:  nonce,
		Cipher: aead.Seal(nil, nonce, plaintext, ad),
	})
}

func (p *SealedProvider) open(data, ad []byte) ([]byte, error) {
	var blob sealedBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return nil, fmt.Errorf("decoding sealed key: %w", err)
	}
	if blob.V > sealedFormatVersion {
		return nil, fmt.Errorf("unsupported sealed key version %d", blob.V)
	}
	aead, err := chacha20poly1305.NewX(p.deriveKey(blob.Salt, blob.KDF))
	if err != nil {
		return nil, err
	}
	if len(blob.Nonce) != aead.NonceSize() {
		return nil, ErrWrongPassphrase
	}
	plaintext, err := aead.Open(nil, blob.Nonce, blob.Cipher, ad)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return plaintext, nil
}

func (p *SealedProvider) deriveKey(salt []byte, params KDFParams) []byte {
	return argon2.IDKey(p.passphrase, salt, params.Time, params.Memory, params.Threads, chacha20poly1305.KeySize)
}
