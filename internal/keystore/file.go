package keystore

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileProvider implements Provider using PEM files on disk
//
// This is intended for development and testing only. In production,
// use sealed or PKCS#11 key storage.
//
// Key files live at: {dir}/{userID}/{role}.key
type FileProvider struct {
	dir  string
	mu   sync.RWMutex
	keys map[string]crypto.Signer
}

// NewFileProvider creates a new file-based key provider
func NewFileProvider(dir string) (*FileProvider, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating key directory: %w", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("checking key directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("key directory is not a directory: %s", dir)
	}

	return &FileProvider{
		dir:  dir,
		keys: make(map[string]crypto.Signer),
	}, nil
}

// PrivateKey returns the key of a role
func (p *FileProvider) PrivateKey(ctx context.Context, userID string, role Role) (crypto.Signer, error) {
	path, err := p.path(userID, role, ".key")
	if err != nil {
		return nil, err
	}

	// Check cache first
	p.mu.RLock()
	if key, ok := p.keys[path]; ok {
		p.mu.RUnlock()
		return key, nil
	}
	p.mu.RUnlock()

	keyPEM, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s key of %s: %w", role, userID, ErrKeyNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}

	key, err := parsePrivateKey(keyPEM)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}

	p.mu.Lock()
	p.keys[path] = key
	p.mu.Unlock()

	return key, nil
}

// StoreKey writes the key as PKCS#8 PEM
func (p *FileProvider) StoreKey(ctx context.Context, userID string, role Role, key *rsa.PrivateKey) error {
	path, err := p.path(userID, role, ".key")
	if err != nil {
		return err
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return fmt.Errorf("encoding private key: %w", err)
	}
	data := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	if err := writeKeyFile(path, data); err != nil {
		return err
	}

	p.mu.Lock()
	p.keys[path] = key
	p.mu.Unlock()
	return nil
}

// Close drops cached keys
func (p *FileProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = make(map[string]crypto.Signer)
	return nil
}

func (p *FileProvider) path(userID string, role Role, ext string) (string, error) {
	name, err := keyName("{role}", userID, role)
	if err != nil {
		return "", err
	}
	return filepath.Join(p.dir, userID, name+ext), nil
}

func writeKeyFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating key directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing key file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing key file: %w", err)
	}
	return nil
}

func parsePrivateKey(pemData []byte) (crypto.Signer, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	return parseDER(block.Type, block.Bytes)
}

func parseDER(blockType string, der []byte) (crypto.Signer, error) {
	switch blockType {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(der)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(der)
		if err != nil {
			return nil, err
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("key is not an RSA key")
		}
		return rsaKey, nil
	default:
		return nil, fmt.Errorf("unsupported key type: %s", blockType)
	}
}
