package security

import (
	"crypto/rsa"
	"crypto/sha256"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyDigest(t *testing.T) {
	t.Run("hex recipe", func(t *testing.T) {
		pub := &rsa.PublicKey{N: big.NewInt(15), E: 65537}
		expected := sha256.Sum256([]byte("10001 f"))
		assert.Equal(t, expected[:], KeyDigest(pub))
	})

	t.Run("no leading zero nibble", func(t *testing.T) {
		n, ok := new(big.Int).SetString("0abc", 16)
		require.True(t, ok)
		pub := &rsa.PublicKey{N: n, E: 3}
		expected := sha256.Sum256([]byte("3 abc"))
		assert.Equal(t, expected[:], KeyDigest(pub))
	})

	t.Run("deterministic", func(t *testing.T) {
		km, err := GenerateKeyPair(1024, VersionX002)
		require.NoError(t, err)
		assert.Equal(t, KeyDigest(km.Public), KeyDigest(km.Public))
		assert.Equal(t, km.Digest, KeyDigest(km.Public))
		assert.Len(t, km.Digest, sha256.Size)
	})
}

func TestNewKeyMaterial(t *testing.T) {
	a, err := GenerateKeyPair(1024, VersionA006)
	require.NoError(t, err)
	b, err := GenerateKeyPair(1024, VersionA006)
	require.NoError(t, err)

	_, err = NewKeyMaterial(a.Public, b.Private, VersionA006, a.CreatedAt)
	var cryptoErr *CryptoError
	assert.ErrorAs(t, err, &cryptoErr)

	_, err = NewKeyMaterial(nil, nil, VersionA006, a.CreatedAt)
	assert.Error(t, err)

	pub := a.PublicOnly()
	assert.False(t, pub.HasPrivate())
	assert.NoError(t, pub.Validate())

	restored, err := pub.WithPrivate(a.Private)
	require.NoError(t, err)
	assert.True(t, restored.HasPrivate())
}

func TestKeyMaterialValidate(t *testing.T) {
	km, err := GenerateKeyPair(1024, VersionE002)
	require.NoError(t, err)
	require.NoError(t, km.Validate())

	tampered := km.PublicOnly()
	tampered.Digest[0] ^= 0xff
	assert.Error(t, tampered.Validate())
}
