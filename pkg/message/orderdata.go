package message

import (
	"crypto/rsa"
	"encoding/xml"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/sirosfoundation/go-ebics/pkg/security"
)

// RSAKeyValue is the XML-DSig form of an RSA public key
type RSAKeyValue struct {
	XMLName  xml.Name `xml:"http://www.w3.org/2000/09/xmldsig# RSAKeyValue"`
	Modulus  Base64   `xml:"http://www.w3.org/2000/09/xmldsig# Modulus"`
	Exponent Base64   `xml:"http://www.w3.org/2000/09/xmldsig# Exponent"`
}

// PubKeyValue wraps an RSA key with its creation time
type PubKeyValue struct {
	RSAKeyValue RSAKeyValue `xml:"http://www.w3.org/2000/09/xmldsig# RSAKeyValue"`
	TimeStamp   string      `xml:"TimeStamp,omitempty"`
}

// NewPubKeyValue encodes the public half of km
func NewPubKeyValue(km *security.KeyMaterial) PubKeyValue {
	v := PubKeyValue{
		RSAKeyValue: RSAKeyValue{
			Modulus:  km.Public.N.Bytes(),
			Exponent: big.NewInt(int64(km.Public.E)).Bytes(),
		},
	}
	if !km.CreatedAt.IsZero() {
		v.TimeStamp = km.CreatedAt.UTC().Format(TimestampFormat)
	}
	return v
}

// PublicKey decodes the RSA public key
func (v PubKeyValue) PublicKey() (*rsa.PublicKey, error) {
	if len(v.RSAKeyValue.Modulus) == 0 || len(v.RSAKeyValue.Exponent) == 0 {
		return nil, errors.New("empty RSA key value")
	}
	e := new(big.Int).SetBytes(v.RSAKeyValue.Exponent)
	if !e.IsInt64() || e.Int64() > 1<<31-1 || e.Int64() < 3 {
		return nil, fmt.Errorf("invalid RSA exponent %s", e)
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(v.RSAKeyValue.Modulus),
		E: int(e.Int64()),
	}, nil
}

// KeyMaterial builds public key material with the given version
func (v PubKeyValue) KeyMaterial(version string) (*security.KeyMaterial, error) {
	pub, err := v.PublicKey()
	if err != nil {
		return nil, err
	}
	var created time.Time
	if v.TimeStamp != "" {
		created, _ = time.Parse(TimestampFormat, v.TimeStamp)
	}
	return security.NewKeyMaterial(pub, nil, version, created)
}

// SignaturePubKeyOrderData is the INI order data (S001)
type SignaturePubKeyOrderData struct {
	XMLName             xml.Name            `xml:"http://www.ebics.org/S001 SignaturePubKeyOrderData"`
	SignaturePubKeyInfo SignaturePubKeyInfo `xml:"SignaturePubKeyInfo"`
	PartnerID           string              `xml:"PartnerID"`
	UserID              string              `xml:"UserID"`
}

// SignaturePubKeyInfo carries the ES public key
type SignaturePubKeyInfo struct {
	PubKeyValue      PubKeyValue `xml:"PubKeyValue"`
	SignatureVersion string      `xml:"SignatureVersion"`
}

// HIARequestOrderData is the HIA order data
type HIARequestOrderData struct {
	XMLName                  xml.Name                 `xml:"urn:org:ebics:H004 HIARequestOrderData"`
	AuthenticationPubKeyInfo AuthenticationPubKeyInfo `xml:"AuthenticationPubKeyInfo"`
	EncryptionPubKeyInfo     EncryptionPubKeyInfo     `xml:"EncryptionPubKeyInfo"`
	PartnerID                string                   `xml:"PartnerID"`
	UserID                   string                   `xml:"UserID"`
}

// AuthenticationPubKeyInfo carries an X002 public key
type AuthenticationPubKeyInfo struct {
	PubKeyValue           PubKeyValue `xml:"PubKeyValue"`
	AuthenticationVersion string      `xml:"AuthenticationVersion"`
}

// EncryptionPubKeyInfo carries an E002 public key
type EncryptionPubKeyInfo struct {
	PubKeyValue       PubKeyValue `xml:"PubKeyValue"`
	EncryptionVersion string      `xml:"EncryptionVersion"`
}

// HPBResponseOrderData is the decrypted HPB order data
type HPBResponseOrderData struct {
	XMLName                  xml.Name                 `xml:"urn:org:ebics:H004 HPBResponseOrderData"`
	AuthenticationPubKeyInfo AuthenticationPubKeyInfo `xml:"AuthenticationPubKeyInfo"`
	EncryptionPubKeyInfo     EncryptionPubKeyInfo     `xml:"EncryptionPubKeyInfo"`
	HostID                   string                   `xml:"HostID"`
}

// UserSignatureData is the ES container sent with uploads (S001)
type UserSignatureData struct {
	XMLName            xml.Name             `xml:"http://www.ebics.org/S001 UserSignatureData"`
	OrderSignatureData []OrderSignatureData `xml:"OrderSignatureData"`
}

// OrderSignatureData is one electronic signature
type OrderSignatureData struct {
	SignatureVersion string `xml:"SignatureVersion"`
	SignatureValue   Base64 `xml:"SignatureValue"`
	PartnerID        string `xml:"PartnerID"`
	UserID           string `xml:"UserID"`
}

// MarshalDocument marshals v with an XML declaration
func MarshalDocument(v any) ([]byte, error) {
	out, err := xml.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}
