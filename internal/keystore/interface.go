// Package keystore keeps the private halves of EBICS subscriber keys.
//
// Three backends implement [Provider]:
//
//   - File: unencrypted PKCS#8 PEM files (development only)
//   - Sealed: PKCS#8 encrypted under a passphrase-derived key
//   - PKCS#11: keys stored in hardware security modules (HSM) or smart cards
//
// The engine only needs a crypto.Signer (and crypto.Decrypter for the
// encryption key), so the storage mechanism stays hidden behind the interface.
package keystore

import (
	"context"
	"crypto"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
)

// Common errors
var (
	ErrKeyNotFound     = errors.New("private key not found")
	ErrWrongPassphrase = errors.New("wrong passphrase or corrupted key")
	ErrReadOnly        = errors.New("keystore is read-only")
)

// Role is the purpose of a subscriber key
type Role string

const (
	RoleSignature      Role = "signature"
	RoleAuthentication Role = "authentication"
	RoleEncryption     Role = "encryption"
)

// Roles lists every key role of a subscriber
var Roles = []Role{RoleSignature, RoleAuthentication, RoleEncryption}

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// Provider stores and returns subscriber private keys.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// PrivateKey returns the private key of a role. The returned key also
	// implements crypto.Decrypter for RSA keys.
	PrivateKey(ctx context.Context, userID string, role Role) (crypto.Signer, error)

	// StoreKey saves a freshly generated key
	StoreKey(ctx context.Context, userID string, role Role, key *rsa.PrivateKey) error

	// Close releases any resources held by the provider.
	Close() error
}

// keyName is the file name stem or token label of a key
func keyName(pattern, userID string, role Role) (string, error) {
	if !role.Valid() {
		return "", fmt.Errorf("unknown key role %q", role)
	}
	if userID == "" || strings.ContainsAny(userID, `/\`) || userID == "." || userID == ".." {
		return "", fmt.Errorf("invalid user id %q", userID)
	}
	label := strings.ReplaceAll(pattern, "{user-id}", userID)
	return strings.ReplaceAll(label, "{role}", string(role)), nil
}
