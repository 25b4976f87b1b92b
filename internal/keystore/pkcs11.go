//go:build pkcs11

package keystore

import (
	"context"
	"crypto"
	"crypto/rsa"
	"fmt"
	"sync"

	"github.com/ThalesGroup/crypto11"
)

// PKCS11Provider implements Provider using a PKCS#11 token (HSM/smart card).
// Keys are provisioned on the token out of band; the provider is read-only.
type PKCS11Provider struct {
	ctx             *crypto11.Context
	keyLabelPattern string
	mu              sync.RWMutex
	keys            map[string]crypto.Signer // Cache of label -> key
}

// PKCS11Config holds configuration for the PKCS#11 provider
type PKCS11Config struct {
	// ModulePath is the path to the PKCS#11 library (.so/.dylib/.dll)
	ModulePath string

	// SlotID is the slot number to use (optional if SlotLabel is provided)
	SlotID *uint

	// SlotLabel is the token label to search for (optional if SlotID is provided)
	SlotLabel string

	// PIN is the user PIN for authentication
	PIN string

	// KeyLabelPattern is the pattern for key labels, with {user-id} and
	// {role} placeholders, e.g. "{user-id}-{role}"
	KeyLabelPattern string
}

// NewPKCS11Provider creates a new PKCS#11 key provider
func NewPKCS11Provider(cfg *PKCS11Config) (*PKCS11Provider, error) {
	config := &crypto11.Config{
		Path: cfg.ModulePath,
		Pin:  cfg.PIN,
	}

	if cfg.SlotID != nil {
		slotID := int(*cfg.SlotID)
		config.SlotNumber = &slotID
	}
	if cfg.SlotLabel != "" {
		config.TokenLabel = cfg.SlotLabel
	}

	ctx, err := crypto11.Configure(config)
	if err != nil {
		return nil, fmt.Errorf("configuring PKCS#11: %w", err)
	}

	pattern := cfg.KeyLabelPattern
	if pattern == "" {
		pattern = "{user-id}-{role}"
	}

	return &PKCS11Provider{
		ctx:             ctx,
		keyLabelPattern: pattern,
		keys:            make(map[string]crypto.Signer),
	}, nil
}

// PrivateKey returns a token-resident key of a role
func (p *PKCS11Provider) PrivateKey(ctx context.Context, userID string, role Role) (crypto.Signer, error) {
	label, err := keyName(p.keyLabelPattern, userID, role)
	if err != nil {
		return nil, err
	}

	p.mu.RLock()
	if key, ok := p.keys[label]; ok {
		p.mu.RUnlock()
		return key, nil
	}
	p.mu.RUnlock()

	key, err := p.ctx.FindKeyPair(nil, []byte(label))
	if err != nil {
		return nil, fmt.Errorf("finding key pair: %w", err)
	}
	if key == nil {
		return nil, fmt.Errorf("%s: %w", label, ErrKeyNotFound)
	}
	if _, ok := key.Public().(*rsa.PublicKey); !ok {
		return nil, fmt.Errorf("%s: not an RSA key", label)
	}

	p.mu.Lock()
	p.keys[label] = key
	p.mu.Unlock()

	return key, nil
}

// StoreKey is not supported, keys are generated on the token
func (p *PKCS11Provider) StoreKey(ctx context.Context, userID string, role Role, key *rsa.PrivateKey) error {
	return ErrReadOnly
}

// Close releases PKCS#11 resources
func (p *PKCS11Provider) Close() error {
	return p.ctx.Close()
}
