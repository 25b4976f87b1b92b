package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	data := []byte("<Document>\r\n<Amount>100.00</Amount>\n</Document>\x1a")

	for _, version := range []string{VersionA005, VersionA006} {
		t.Run(version, func(t *testing.T) {
			km, err := GenerateKeyPair(1024, version)
			require.NoError(t, err)

			first, err := Sign(data, km)
			require.NoError(t, err)
			second, err := Sign(data, km)
			require.NoError(t, err)

			assert.NoError(t, VerifySignature(data, first, km.Public, version))
			assert.NoError(t, VerifySignature(data, second, km.Public, version))

			// Newline characters are not part of the signed content
			stripped := []byte("<Document><Amount>100.00</Amount></Document>")
			assert.NoError(t, VerifySignature(stripped, first, km.Public, version))

			assert.ErrorIs(t, VerifySignature([]byte("other"), first, km.Public, version), ErrInvalidSignature)
		})
	}
}

func TestSignUnsupportedVersion(t *testing.T) {
	km, err := GenerateKeyPair(1024, "A004")
	require.NoError(t, err)

	_, err = Sign([]byte("data"), km)
	assert.ErrorIs(t, err, ErrUnsupportedSignatureVersion)

	assert.ErrorIs(t, VerifySignature([]byte("data"), []byte("sig"), km.Public, "X002"), ErrUnsupportedSignatureVersion)
}

func TestSignWithoutPrivateKey(t *testing.T) {
	km, err := GenerateKeyPair(1024, VersionA006)
	require.NoError(t, err)

	_, err = Sign([]byte("data"), km.PublicOnly())
	var cryptoErr *CryptoError
	assert.ErrorAs(t, err, &cryptoErr)
}

func TestAuthenticate(t *testing.T) {
	km, err := GenerateKeyPair(1024, VersionX002)
	require.NoError(t, err)

	sig, err := Authenticate([]byte("signed info"), km)
	require.NoError(t, err)
	assert.NoError(t, VerifyAuthentication([]byte("signed info"), sig, km.Public))
	assert.Error(t, VerifyAuthentication([]byte("signed info!"), sig, km.Public))
}

func TestStripNewlines(t *testing.T) {
	assert.Equal(t, []byte("ab"), StripNewlines([]byte("a\r\nb\x1a")))
	assert.Empty(t, StripNewlines([]byte("\n\n")))
}
