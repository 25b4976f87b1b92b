package security

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"time"
)

// KeyMaterial is an RSA key tagged with its EBICS version.
// Private is nil for counterpart (bank) keys.
type KeyMaterial struct {
	Public    *rsa.PublicKey
	Private   crypto.Signer
	Version   string
	Digest    []byte
	CreatedAt time.Time
}

// NewKeyMaterial builds key material from a public key and computes its digest.
// priv may be nil.
func NewKeyMaterial(pub *rsa.PublicKey, priv crypto.Signer, version string, createdAt time.Time) (*KeyMaterial, error) {
	if pub == nil {
		return nil, cryptoErr("new key material", errors.New("public key is required"))
	}
	if priv != nil {
		privPub, ok := priv.Public().(*rsa.PublicKey)
		if !ok || !privPub.Equal(pub) {
			return nil, cryptoErr("new key material", errors.New("private key does not match public key"))
		}
	}
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return &KeyMaterial{
		Public:    pub,
		Private:   priv,
		Version:   version,
		Digest:    KeyDigest(pub),
		CreatedAt: createdAt,
	}, nil
}

// GenerateKeyPair generates a fresh RSA key pair for the given version
func GenerateKeyPair(bits int, version string) (*KeyMaterial, error) {
	if bits <= 0 {
		bits = DefaultKeySize
	}
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, cryptoErr("generate key pair", err)
	}
	return NewKeyMaterial(&priv.PublicKey, priv, version, time.Now().UTC())
}

// KeyDigest computes the EBICS public key hash: SHA-256 over the US-ASCII
// string "<hex exponent> <hex modulus>" in lower case without leading zeros.
func KeyDigest(pub *rsa.PublicKey) []byte {
	exponent := big.NewInt(int64(pub.E)).Text(16)
	modulus := pub.N.Text(16)
	sum := sha256.Sum256([]byte(exponent + " " + modulus))
	return sum[:]
}

// HasPrivate reports whether the private half is available
func (k *KeyMaterial) HasPrivate() bool {
	return k != nil && k.Private != nil
}

// Validate checks that the stored digest matches the public key
func (k *KeyMaterial) Validate() error {
	if k == nil || k.Public == nil {
		return cryptoErr("validate key", errors.New("missing public key"))
	}
	if len(k.Digest) > 0 && !bytes.Equal(k.Digest, KeyDigest(k.Public)) {
		return cryptoErr("validate key", fmt.Errorf("digest mismatch for %s key", k.Version))
	}
	return nil
}

// PublicOnly returns a copy without the private key
func (k *KeyMaterial) PublicOnly() *KeyMaterial {
	if k == nil {
		return nil
	}
	return &KeyMaterial{
		Public:    k.Public,
		Version:   k.Version,
		Digest:    append([]byte(nil), k.Digest...),
		CreatedAt: k.CreatedAt,
	}
}

// WithPrivate returns a copy carrying the given private key
func (k *KeyMaterial) WithPrivate(priv crypto.Signer) (*KeyMaterial, error) {
	return NewKeyMaterial(k.Public, priv, k.Version, k.CreatedAt)
}

// decrypter returns the private key as a crypto.Decrypter
func (k *KeyMaterial) decrypter() (crypto.Decrypter, error) {
	if !k.HasPrivate() {
		return nil, errors.New("private key not available")
	}
	d, ok := k.Private.(crypto.Decrypter)
	if !ok {
		return nil, fmt.Errorf("%s private key does not support decryption", k.Version)
	}
	return d, nil
}
