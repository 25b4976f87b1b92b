package security

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"errors"
	"fmt"
)

var pssOptions = &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: crypto.SHA256}

// StripNewlines removes CR, LF and Ctrl-Z before ES hashing
func StripNewlines(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for _, b := range data {
		if b == '\r' || b == '\n' || b == 0x1a {
			continue
		}
		out = append(out, b)
	}
	return out
}

// Sign computes the electronic signature over order data.
// A005 is RSA PKCS#1 v1.5 with SHA-256; A006 is RSA-PSS over the SHA-256
// hash of the stripped data.
func Sign(data []byte, key *KeyMaterial) ([]byte, error) {
	if !key.HasPrivate() {
		return nil, cryptoErr("sign", errors.New("signature private key not available"))
	}
	digest := sha256.Sum256(StripNewlines(data))

	switch key.Version {
	case VersionA005:
		sig, err := key.Private.Sign(rand.Reader, digest[:], crypto.SHA256)
		if err != nil {
			return nil, cryptoErr("sign", err)
		}
		return sig, nil
	case VersionA006:
		hashed := sha256.Sum256(digest[:])
		sig, err := key.Private.Sign(rand.Reader, hashed[:], pssOptions)
		if err != nil {
			return nil, cryptoErr("sign", err)
		}
		return sig, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedSignatureVersion, key.Version)
	}
}

// VerifySignature checks an electronic signature produced by Sign
func VerifySignature(data, sig []byte, pub *rsa.PublicKey, version string) error {
	digest := sha256.Sum256(StripNewlines(data))

	var err error
	switch version {
	case VersionA005:
		err = rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig)
	case VersionA006:
		hashed := sha256.Sum256(digest[:])
		err = rsa.VerifyPSS(pub, crypto.SHA256, hashed[:], sig, pssOptions)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedSignatureVersion, version)
	}
	if err != nil {
		return cryptoErr("verify signature", fmt.Errorf("%w: %v", ErrInvalidSignature, err))
	}
	return nil
}

// Authenticate signs data with the X002 authentication key (RSA PKCS#1 v1.5, SHA-256)
func Authenticate(data []byte, key *KeyMaterial) ([]byte, error) {
	if !key.HasPrivate() {
		return nil, cryptoErr("authenticate", errors.New("authentication private key not available"))
	}
	digest := sha256.Sum256(data)
	sig, err := key.Private.Sign(rand.Reader, digest[:], crypto.SHA256)
	if err != nil {
		return nil, cryptoErr("authenticate", err)
	}
	return sig, nil
}

// VerifyAuthentication checks a signature produced by Authenticate
func VerifyAuthentication(data, sig []byte, pub *rsa.PublicKey) error {
	digest := sha256.Sum256(data)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
		return cryptoErr("verify authentication", fmt.Errorf("%w: %v", ErrInvalidSignature, err))
	}
	return nil
}

// Equal reports whether two digests are identical
func Equal(a, b []byte) bool {
	return len(a) > 0 && bytes.Equal(a, b)
}
