//go:build !pkcs11

package keystore

import (
	"context"
	"crypto"
	"crypto/rsa"
	"errors"
)

// ErrPKCS11NotSupported means the binary was built without the pkcs11 tag
var ErrPKCS11NotSupported = errors.New("keystore: token keys need a build with -tags pkcs11")

// PKCS11Config mirrors the token settings of pkcs11 builds
type PKCS11Config struct {
	ModulePath      string
	SlotID          *uint
	SlotLabel       string
	PIN             string
	KeyLabelPattern string
}

// PKCS11Provider is a placeholder whose every operation fails
type PKCS11Provider struct{}

func NewPKCS11Provider(*PKCS11Config) (*PKCS11Provider, error) {
	return nil, ErrPKCS11NotSupported
}

func (*PKCS11Provider) PrivateKey(context.Context, string, Role) (crypto.Signer, error) {
	return nil, ErrPKCS11NotSupported
}

func (*PKCS11Provider) StoreKey(context.Context, string, Role, *rsa.PrivateKey) error {
	return ErrPKCS11NotSupported
}

func (*PKCS11Provider) Close() error { return nil }
