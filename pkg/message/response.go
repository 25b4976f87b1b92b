package message

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
)

// EbicsResponse is the wire form of an ebicsResponse
type EbicsResponse struct {
	XMLName       xml.Name       `xml:"urn:org:ebics:H004 ebicsResponse"`
	Version       string         `xml:"Version,attr"`
	Revision      int            `xml:"Revision,attr"`
	Header        ResponseHeader `xml:"header"`
	AuthSignature *AuthSignature `xml:"AuthSignature"`
	Body          ResponseBody   `xml:"body"`
}

// EbicsKeyManagementResponse is the wire form of an ebicsKeyManagementResponse
type EbicsKeyManagementResponse struct {
	XMLName  xml.Name       `xml:"urn:org:ebics:H004 ebicsKeyManagementResponse"`
	Version  string         `xml:"Version,attr"`
	Revision int            `xml:"Revision,attr"`
	Header   ResponseHeader `xml:"header"`
	Body     ResponseBody   `xml:"body"`
}

// EbicsHEVResponse is the wire form of an ebicsHEVResponse
type EbicsHEVResponse struct {
	XMLName          xml.Name         `xml:"http://www.ebics.org/H000 ebicsHEVResponse"`
	SystemReturnCode SystemReturnCode `xml:"SystemReturnCode"`
	VersionNumber    []VersionNumber  `xml:"VersionNumber"`
}

// SystemReturnCode is the HEV return code
type SystemReturnCode struct {
	ReturnCode string `xml:"ReturnCode"`
	ReportText string `xml:"ReportText"`
}

// VersionNumber is one supported protocol version
type VersionNumber struct {
	ProtocolVersion string `xml:"ProtocolVersion,attr"`
	Value           string `xml:",chardata"`
}

// ResponseHeader is the header of every H004 response
type ResponseHeader struct {
	Authenticate bool                  `xml:"authenticate,attr"`
	Static       ResponseStaticHeader  `xml:"static"`
	Mutable      ResponseMutableHeader `xml:"mutable"`
}

// ResponseStaticHeader carries the transaction id and segment count
type ResponseStaticHeader struct {
	TransactionID string `xml:"TransactionID,omitempty"`
	NumSegments   *int   `xml:"NumSegments,omitempty"`
}

// ResponseMutableHeader carries the technical return code
type ResponseMutableHeader struct {
	TransactionPhase string         `xml:"TransactionPhase,omitempty"`
	SegmentNumber    *SegmentNumber `xml:"SegmentNumber,omitempty"`
	OrderID          string         `xml:"OrderID,omitempty"`
	ReturnCode       string         `xml:"ReturnCode"`
	ReportText       string         `xml:"ReportText"`
}

// ResponseBody carries order data and the business return code
type ResponseBody struct {
	DataTransfer           *ResponseDataTransfer `xml:"DataTransfer,omitempty"`
	ReturnCode             AuthenticatedText     `xml:"ReturnCode"`
	TimestampBankParameter *AuthenticatedText    `xml:"TimestampBankParameter,omitempty"`
}

// ResponseDataTransfer carries the wrapped key and an order data segment
type ResponseDataTransfer struct {
	DataEncryptionInfo *DataEncryptionInfo `xml:"DataEncryptionInfo,omitempty"`
	OrderData          Base64              `xml:"OrderData"`
}

// AuthenticatedText is a text element flagged for authentication
type AuthenticatedText struct {
	Authenticate bool   `xml:"authenticate,attr"`
	Value        string `xml:",chardata"`
}

// Response is one of *KeyManagementResponse, *DataTransferResponse,
// *ReceiptResponse or *HEVResponse
type Response interface {
	Result() ReturnCode
	Err(orderType string) error
	isResponse()
}

// Codes holds the technical and business return codes of a response
type Codes struct {
	Technical  ReturnCode
	Business   ReturnCode
	ReportText string
}

// Result returns the technical code unless it is OK, else the business code
func (c Codes) Result() ReturnCode {
	if !c.Technical.IsOK() {
		return c.Technical
	}
	return c.Business
}

func (c Codes) protocolErr(orderType, phase, txID string, segment int) error {
	result := c.Result()
	if result.IsOK() {
		return nil
	}
	return &ProtocolError{
		Code:          result,
		OrderType:     orderType,
		Phase:         phase,
		TransactionID: txID,
		Segment:       segment,
		ReportText:    c.ReportText,
	}
}

// KeyManagementResponse answers INI, HIA and HPB
type KeyManagementResponse struct {
	Codes
	OrderID                string
	EncryptionPubKeyDigest []byte
	TransactionKey         []byte
	OrderData              []byte
}

// Err returns a *ProtocolError for non-OK results
func (r *KeyManagementResponse) Err(orderType string) error {
	return r.protocolErr(orderType, "", "", 0)
}

func (*KeyManagementResponse) isResponse() {}

// DataTransferResponse answers initialisation and transfer requests
type DataTransferResponse struct {
	Codes
	Phase                  string
	TransactionID          string
	NumSegments            int
	SegmentNumber          int
	LastSegment            bool
	OrderID                string
	EncryptionPubKeyDigest []byte
	TransactionKey         []byte
	OrderData              []byte
}

// Err returns a *ProtocolError for non-OK results
func (r *DataTransferResponse) Err(orderType string) error {
	return r.protocolErr(orderType, r.Phase, r.TransactionID, r.SegmentNumber)
}

func (*DataTransferResponse) isResponse() {}

// ReceiptResponse answers a download receipt
type ReceiptResponse struct {
	Codes
	TransactionID string
}

// Err returns a *ProtocolError unless the receipt was acknowledged with
// EBICS_DOWNLOAD_POSTPROCESS_DONE
func (r *ReceiptResponse) Err(orderType string) error {
	if r.Technical.Code == CodeDownloadPostprocessDone && (r.Business.IsOK() || r.Business.Code == "") {
		return nil
	}
	code := r.Result()
	if code.IsOK() {
		code = r.Technical
	}
	return &ProtocolError{
		Code:          code,
		OrderType:     orderType,
		Phase:         PhaseReceipt,
		TransactionID: r.TransactionID,
		ReportText:    r.ReportText,
	}
}

func (*ReceiptResponse) isResponse() {}

// HEVResponse lists the protocol versions supported by the bank
type HEVResponse struct {
	Codes
	Versions []VersionNumber
}

// Err returns a *ProtocolError for non-OK results
func (r *HEVResponse) Err(orderType string) error {
	return r.protocolErr(orderType, "", "", 0)
}

// Supports reports whether the bank offers protocol version v
func (r *HEVResponse) Supports(v string) bool {
	for _, n := range r.Versions {
		if n.ProtocolVersion == v {
			return true
		}
	}
	return false
}

func (*HEVResponse) isResponse() {}

// ErrUnknownResponse is returned for documents that are not EBICS responses
var ErrUnknownResponse = errors.New("unknown response document")

// ParseResponse decodes a bank response into its variant
func ParseResponse(data []byte) (Response, error) {
	root, err := rootElement(data)
	if err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	switch root {
	case "ebicsResponse":
		var resp EbicsResponse
		if err := xml.Unmarshal(data, &resp); err != nil {
			return nil, fmt.Errorf("parse ebicsResponse: %w", err)
		}
		return fromEbicsResponse(&resp), nil

	case "ebicsKeyManagementResponse":
		var resp EbicsKeyManagementResponse
		if err := xml.Unmarshal(data, &resp); err != nil {
			return nil, fmt.Errorf("parse ebicsKeyManagementResponse: %w", err)
		}
		out := &KeyManagementResponse{
			Codes:   codesOf(resp.Header, resp.Body),
			OrderID: resp.Header.Mutable.OrderID,
		}
		if dt := resp.Body.DataTransfer; dt != nil {
			out.OrderData = dt.OrderData
			if dt.DataEncryptionInfo != nil {
				out.TransactionKey = dt.DataEncryptionInfo.TransactionKey
				out.EncryptionPubKeyDigest = dt.DataEncryptionInfo.EncryptionPubKeyDigest.Value
			}
		}
		return out, nil

	case "ebicsHEVResponse":
		var resp EbicsHEVResponse
		if err := xml.Unmarshal(data, &resp); err != nil {
			return nil, fmt.Errorf("parse ebicsHEVResponse: %w", err)
		}
		code := LookupReturnCode(resp.SystemReturnCode.ReturnCode)
		return &HEVResponse{
			Codes:    Codes{Technical: code, Business: code, ReportText: resp.SystemReturnCode.ReportText},
			Versions: resp.VersionNumber,
		}, nil
	}

	return nil, fmt.Errorf("%w: <%s>", ErrUnknownResponse, root)
}

func fromEbicsResponse(resp *EbicsResponse) Response {
	codes := codesOf(resp.Header, resp.Body)
	mutable := resp.Header.Mutable

	if mutable.TransactionPhase == PhaseReceipt {
		return &ReceiptResponse{
			Codes:         codes,
			TransactionID: resp.Header.Static.TransactionID,
		}
	}

	out := &DataTransferResponse{
		Codes:         codes,
		Phase:         mutable.TransactionPhase,
		TransactionID: resp.Header.Static.TransactionID,
		OrderID:       mutable.OrderID,
	}
	if resp.Header.Static.NumSegments != nil {
		out.NumSegments = *resp.Header.Static.NumSegments
	}
	if mutable.SegmentNumber != nil {
		out.SegmentNumber = mutable.SegmentNumber.Value
		out.LastSegment = mutable.SegmentNumber.LastSegment
	}
	if dt := resp.Body.DataTransfer; dt != nil {
		out.OrderData = dt.OrderData
		if dt.DataEncryptionInfo != nil {
			out.TransactionKey = dt.DataEncryptionInfo.TransactionKey
			out.EncryptionPubKeyDigest = dt.DataEncryptionInfo.EncryptionPubKeyDigest.Value
		}
	}
	return out
}

func codesOf(header ResponseHeader, body ResponseBody) Codes {
	business := LookupBusinessCode(body.ReturnCode.Value)
	if business.Code == "" {
		business = LookupBusinessCode(CodeOK)
	}
	return Codes{
		Technical:  LookupReturnCode(header.Mutable.ReturnCode),
		Business:   business,
		ReportText: header.Mutable.ReportText,
	}
}

func rootElement(data []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return "", errors.New("empty document")
		}
		if err != nil {
			return "", err
		}
		if se, ok := tok.(xml.StartElement); ok {
			return se.Name.Local, nil
		}
	}
}
