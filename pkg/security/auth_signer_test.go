package security

import (
	"strings"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRequest = `<?xml version="1.0" encoding="UTF-8"?>
<ebicsRequest xmlns="urn:org:ebics:H004" Version="H004" Revision="1"><header authenticate="true"><static><HostID>EBIXHOST</HostID><Nonce>0011AABB</Nonce></static><mutable><TransactionPhase>Initialisation</TransactionPhase></mutable></header><AuthSignature></AuthSignature><body><DataTransfer><DataEncryptionInfo authenticate="true"><TransactionKey>a2V5</TransactionKey></DataEncryptionInfo><OrderData>ZGF0YQ==</OrderData></DataTransfer></body></ebicsRequest>`

func newTestAuthSigner(t *testing.T) (*AuthSigner, *KeyMaterial) {
	t.Helper()
	km, err := GenerateKeyPair(1024, VersionX002)
	require.NoError(t, err)
	signer, err := NewAuthSigner(km)
	require.NoError(t, err)
	return signer, km
}

func TestAuthSignerSignRequest(t *testing.T) {
	signer, km := newTestAuthSigner(t)

	signed, err := signer.SignRequest([]byte(testRequest))
	require.NoError(t, err)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(signed))

	assert.Equal(t, NSXMLDSig, doc.Root().SelectAttrValue("xmlns:ds", ""))
	authSig := doc.Root().FindElement("./AuthSignature")
	require.NotNil(t, authSig)

	ref := authSig.FindElement("./SignedInfo/Reference")
	require.NotNil(t, ref)
	assert.Equal(t, "#xpointer(//*[@authenticate='true'])", ref.SelectAttrValue("URI", ""))
	assert.Equal(t, AlgorithmC14N, authSig.FindElement("./SignedInfo/CanonicalizationMethod").SelectAttrValue("Algorithm", ""))
	assert.NotEmpty(t, authSig.FindElement("./SignatureValue").Text())

	assert.NoError(t, VerifyAuthSignature(signed, km.Public))
}

func TestAuthSignerDetectsTampering(t *testing.T) {
	signer, km := newTestAuthSigner(t)

	signed, err := signer.SignRequest([]byte(testRequest))
	require.NoError(t, err)

	tampered := strings.Replace(string(signed), "EBIXHOST", "OTHERHOST", 1)
	err = VerifyAuthSignature([]byte(tampered), km.Public)
	var signingErr *SigningError
	assert.ErrorAs(t, err, &signingErr)

	// Elements outside the authenticated set are not covered
	unauthenticated := strings.Replace(string(signed), "ZGF0YQ==", "b3RoZXI=", 1)
	assert.NoError(t, VerifyAuthSignature([]byte(unauthenticated), km.Public))

	other, err := GenerateKeyPair(1024, VersionX002)
	require.NoError(t, err)
	assert.Error(t, VerifyAuthSignature(signed, other.Public))
}

func TestAuthSignerStableDigest(t *testing.T) {
	signer, km := newTestAuthSigner(t)

	first, err := signer.SignRequest([]byte(testRequest))
	require.NoError(t, err)
	second, err := signer.SignRequest([]byte(testRequest))
	require.NoError(t, err)

	digestOf := func(signed []byte) string {
		doc := etree.NewDocument()
		require.NoError(t, doc.ReadFromBytes(signed))
		return doc.Root().FindElement("./AuthSignature/SignedInfo/Reference/DigestValue").Text()
	}
	assert.Equal(t, digestOf(first), digestOf(second))
	assert.NoError(t, VerifyAuthSignature(first, km.Public))
	assert.NoError(t, VerifyAuthSignature(second, km.Public))
}

func TestAuthSignerErrors(t *testing.T) {
	signer, _ := newTestAuthSigner(t)

	tests := []struct {
		name string
		xml  string
	}{
		{"malformed", "<ebicsRequest"},
		{"no authenticated nodes", `<ebicsRequest xmlns="urn:org:ebics:H004"><header/><AuthSignature/></ebicsRequest>`},
		{"no AuthSignature", `<ebicsRequest xmlns="urn:org:ebics:H004"><header authenticate="true"/></ebicsRequest>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := signer.SignRequest([]byte(tt.xml))
			var signingErr *SigningError
			assert.ErrorAs(t, err, &signingErr)
		})
	}

	_, err := NewAuthSigner(nil)
	assert.Error(t, err)
}
