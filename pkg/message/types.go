package message

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/xml"
	"strings"
)

// Namespace constants
const (
	NsH004 = "urn:org:ebics:H004"
	NsH000 = "http://www.ebics.org/H000"
	NsS001 = "http://www.ebics.org/S001"
	NsDS   = "http://www.w3.org/2000/09/xmldsig#"
)

// Protocol constants
const (
	ProtocolVersion  = "H004"
	ProtocolRevision = 1
	SecurityMedium   = "0000"
	TimestampFormat  = "2006-01-02T15:04:05.000Z"
	DateFormat       = "2006-01-02"
	DigestAlgorithm  = "http://www.w3.org/2001/04/xmlenc#sha256"
)

// Transaction phases
const (
	PhaseInitialisation = "Initialisation"
	PhaseTransfer       = "Transfer"
	PhaseReceipt        = "Receipt"
)

// Base64 is binary content carried as base64 text
type Base64 []byte

// MarshalText implements encoding.TextMarshaler
func (b Base64) MarshalText() ([]byte, error) {
	out := make([]byte, base64.StdEncoding.EncodedLen(len(b)))
	base64.StdEncoding.Encode(out, b)
	return out, nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Line breaks are ignored.
func (b *Base64) UnmarshalText(text []byte) error {
	clean := strings.Join(strings.Fields(string(text)), "")
	decoded, err := base64.StdEncoding.DecodeString(clean)
	if err != nil {
		return err
	}
	*b = decoded
	return nil
}

// Request is an ebicsRequest
type Request struct {
	XMLName       xml.Name       `xml:"urn:org:ebics:H004 ebicsRequest"`
	Version       string         `xml:"Version,attr"`
	Revision      int            `xml:"Revision,attr"`
	Header        RequestHeader  `xml:"header"`
	AuthSignature *AuthSignature `xml:"AuthSignature"`
	Body          RequestBody    `xml:"body"`
}

// RequestHeader is the authenticated header of an ebicsRequest
type RequestHeader struct {
	Authenticate bool          `xml:"authenticate,attr"`
	Static       StaticHeader  `xml:"static"`
	Mutable      MutableHeader `xml:"mutable"`
}

// StaticHeader holds the fields that stay constant during a transaction.
// Initialisation requests fill the order fields; later phases only HostID
// and TransactionID.
type StaticHeader struct {
	HostID            string             `xml:"HostID"`
	Nonce             HexBinary          `xml:"Nonce,omitempty"`
	Timestamp         string             `xml:"Timestamp,omitempty"`
	PartnerID         string             `xml:"PartnerID,omitempty"`
	UserID            string             `xml:"UserID,omitempty"`
	SystemID          string             `xml:"SystemID,omitempty"`
	Product           *Product           `xml:"Product,omitempty"`
	OrderDetails      *OrderDetails      `xml:"OrderDetails,omitempty"`
	BankPubKeyDigests *BankPubKeyDigests `xml:"BankPubKeyDigests,omitempty"`
	SecurityMedium    string             `xml:"SecurityMedium,omitempty"`
	NumSegments       *int               `xml:"NumSegments,omitempty"`
	TransactionID     string             `xml:"TransactionID,omitempty"`
}

// MutableHeader holds the per-request transaction phase and segment
type MutableHeader struct {
	TransactionPhase string         `xml:"TransactionPhase,omitempty"`
	SegmentNumber    *SegmentNumber `xml:"SegmentNumber,omitempty"`
}

// SegmentNumber is the 1-based segment number and the last segment marker
type SegmentNumber struct {
	LastSegment bool `xml:"lastSegment,attr"`
	Value       int  `xml:",chardata"`
}

// Product identifies the client software
type Product struct {
	Language    string `xml:"Language,attr"`
	InstituteID string `xml:"InstituteID,attr,omitempty"`
	Name        string `xml:",chardata"`
}

// OrderDetails describes the order of an initialisation request
type OrderDetails struct {
	OrderType           string               `xml:"OrderType"`
	OrderID             string               `xml:"OrderID,omitempty"`
	OrderAttribute      string               `xml:"OrderAttribute"`
	StandardOrderParams *StandardOrderParams `xml:"StandardOrderParams,omitempty"`
	FULOrderParams      *FULOrderParams      `xml:"FULOrderParams,omitempty"`
	FDLOrderParams      *FDLOrderParams      `xml:"FDLOrderParams,omitempty"`
}

// StandardOrderParams carries an optional date range
type StandardOrderParams struct {
	DateRange *DateRange `xml:"DateRange,omitempty"`
}

// DateRange bounds a download
type DateRange struct {
	Start string `xml:"Start"`
	End   string `xml:"End"`
}

// Parameter is a generic order parameter
type Parameter struct {
	Name  string         `xml:"Name"`
	Value ParameterValue `xml:"Value"`
}

// ParameterValue is a typed parameter value
type ParameterValue struct {
	Type  string `xml:"Type,attr"`
	Value string `xml:",chardata"`
}

// FileFormat names the format of FUL/FDL order data
type FileFormat struct {
	CountryCode string `xml:"CountryCode,attr,omitempty"`
	Value       string `xml:",chardata"`
}

// FULOrderParams qualifies a generic upload
type FULOrderParams struct {
	Parameter  []Parameter `xml:"Parameter,omitempty"`
	FileFormat FileFormat  `xml:"FileFormat"`
}

// FDLOrderParams qualifies a generic download
type FDLOrderParams struct {
	DateRange  *DateRange  `xml:"DateRange,omitempty"`
	Parameter  []Parameter `xml:"Parameter,omitempty"`
	FileFormat FileFormat  `xml:"FileFormat"`
}

// BankPubKeyDigests pins the bank keys the request was built against
type BankPubKeyDigests struct {
	Authentication PubKeyDigest `xml:"Authentication"`
	Encryption     PubKeyDigest `xml:"Encryption"`
}

// PubKeyDigest is a versioned SHA-256 key digest
type PubKeyDigest struct {
	Version   string `xml:"Version,attr"`
	Algorithm string `xml:"Algorithm,attr"`
	Value     Base64 `xml:",chardata"`
}

// AuthSignature is filled by Seal after marshaling
type AuthSignature struct {
	Inner string `xml:",innerxml"`
}

// RequestBody is the body of an ebicsRequest
type RequestBody struct {
	DataTransfer    *DataTransfer    `xml:"DataTransfer,omitempty"`
	TransferReceipt *TransferReceipt `xml:"TransferReceipt,omitempty"`
}

// DataTransfer carries order data and, at initialisation, the key and ES
type DataTransfer struct {
	DataEncryptionInfo *DataEncryptionInfo `xml:"DataEncryptionInfo,omitempty"`
	SignatureData      *SignatureData      `xml:"SignatureData,omitempty"`
	OrderData          *Base64             `xml:"OrderData,omitempty"`
}

// DataEncryptionInfo carries the wrapped transaction key
type DataEncryptionInfo struct {
	Authenticate           bool         `xml:"authenticate,attr"`
	EncryptionPubKeyDigest PubKeyDigest `xml:"EncryptionPubKeyDigest"`
	TransactionKey         Base64       `xml:"TransactionKey"`
}

// SignatureData carries the encrypted UserSignatureData
type SignatureData struct {
	Authenticate bool   `xml:"authenticate,attr"`
	Value        Base64 `xml:",chardata"`
}

// TransferReceipt acknowledges a download
type TransferReceipt struct {
	Authenticate bool `xml:"authenticate,attr"`
	ReceiptCode  int  `xml:"ReceiptCode"`
}

// UnsecuredRequest is an ebicsUnsecuredRequest (INI, HIA)
type UnsecuredRequest struct {
	XMLName  xml.Name               `xml:"urn:org:ebics:H004 ebicsUnsecuredRequest"`
	Version  string                 `xml:"Version,attr"`
	Revision int                    `xml:"Revision,attr"`
	Header   UnsecuredRequestHeader `xml:"header"`
	Body     UnsecuredRequestBody   `xml:"body"`
}

// UnsecuredRequestHeader is the header of an unsecured request
type UnsecuredRequestHeader struct {
	Authenticate bool         `xml:"authenticate,attr"`
	Static       StaticHeader `xml:"static"`
	Mutable      struct{}     `xml:"mutable"`
}

// UnsecuredRequestBody carries the compressed key order data
type UnsecuredRequestBody struct {
	DataTransfer struct {
		OrderData Base64 `xml:"OrderData"`
	} `xml:"DataTransfer"`
}

// NoPubKeyDigestsRequest is an ebicsNoPubKeyDigestsRequest (HPB)
type NoPubKeyDigestsRequest struct {
	XMLName       xml.Name               `xml:"urn:org:ebics:H004 ebicsNoPubKeyDigestsRequest"`
	Version       string                 `xml:"Version,attr"`
	Revision      int                    `xml:"Revision,attr"`
	Header        UnsecuredRequestHeader `xml:"header"`
	AuthSignature *AuthSignature         `xml:"AuthSignature"`
	Body          struct{}               `xml:"body"`
}

// HEVRequest asks the bank for its supported protocol versions
type HEVRequest struct {
	XMLName xml.Name `xml:"http://www.ebics.org/H000 ebicsHEVRequest"`
	HostID  string   `xml:"HostID"`
}

// HexBinary is binary content carried as upper case hex (xs:hexBinary)
type HexBinary []byte

// MarshalText implements encoding.TextMarshaler
func (h HexBinary) MarshalText() ([]byte, error) {
	return []byte(strings.ToUpper(hex.EncodeToString(h))), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (h *HexBinary) UnmarshalText(text []byte) error {
	decoded, err := hex.DecodeString(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*h = decoded
	return nil
}
