//go:build !pkcs11

package keystore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sirosfoundation/go-ebics/internal/config"
)

func TestPKCS11_NotCompiledIn(t *testing.T) {
	_, err := NewProvider(&config.KeysConfig{Mode: "pkcs11", PKCS11: config.PKCS11Config{ModulePath: "/usr/lib/softhsm/libsofthsm2.so"}})
	assert.ErrorIs(t, err, ErrPKCS11NotSupported)

	var p PKCS11Provider
	_, err = p.PrivateKey(context.Background(), "USER1", RoleSignature)
	assert.ErrorIs(t, err, ErrPKCS11NotSupported)
	assert.NoError(t, p.Close())
}
