package message

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirosfoundation/go-ebics/pkg/compression"
	"github.com/sirosfoundation/go-ebics/pkg/identity"
	"github.com/sirosfoundation/go-ebics/pkg/order"
	"github.com/sirosfoundation/go-ebics/pkg/security"
)

// ErrBankKeysMissing is returned when a request needs bank keys that were not fetched yet
var ErrBankKeysMissing = errors.New("bank public keys not available, run HPB first")

// Builder assembles H004 requests
type Builder struct {
	product Product
	now     func() time.Time
	nonce   func() ([]byte, error)
}

// Option represents a functional option for Builder
type Option func(*Builder)

// NewBuilder creates a request builder with the given options
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		product: Product{Language: "en", Name: "go-ebics"},
		now:     func() time.Time { return time.Now().UTC() },
		nonce:   security.GenerateNonce,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// WithProduct sets the client product name and language
func WithProduct(name, language string) Option {
	return func(b *Builder) {
		if name != "" {
			b.product.Name = name
		}
		if language != "" {
			b.product.Language = language
		}
	}
}

// WithInstituteID sets the product's institute id
func WithInstituteID(id string) Option {
	return func(b *Builder) {
		b.product.InstituteID = id
	}
}

// WithClock overrides the timestamp source
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		b.now = now
	}
}

func (b *Builder) initStatic(id *identity.Identity, desc order.Descriptor, withNonce bool) (StaticHeader, error) {
	product := b.product
	static := StaticHeader{
		HostID:         id.Bank.HostID,
		PartnerID:      id.User.PartnerID,
		UserID:         id.User.UserID,
		SystemID:       id.User.SystemID,
		Product:        &product,
		SecurityMedium: SecurityMedium,
		OrderDetails: &OrderDetails{
			OrderType:      desc.Code,
			OrderAttribute: desc.Attribute,
		},
	}
	if withNonce {
		nonce, err := b.nonce()
		if err != nil {
			return StaticHeader{}, err
		}
		static.Nonce = nonce
		static.Timestamp = b.now().UTC().Format(TimestampFormat)
	}
	return static, nil
}

func newRequest(static StaticHeader, mutable MutableHeader, body RequestBody) *Request {
	return &Request{
		Version:  ProtocolVersion,
		Revision: ProtocolRevision,
		Header: RequestHeader{
			Authenticate: true,
			Static:       static,
			Mutable:      mutable,
		},
		AuthSignature: &AuthSignature{},
		Body:          body,
	}
}

func bankDigests(bank identity.Bank) (*BankPubKeyDigests, error) {
	if !bank.HasKeys() {
		return nil, ErrBankKeysMissing
	}
	return &BankPubKeyDigests{
		Authentication: PubKeyDigest{
			Version:   security.VersionX002,
			Algorithm: DigestAlgorithm,
			Value:     bank.AuthenticationKey.Digest,
		},
		Encryption: PubKeyDigest{
			Version:   security.VersionE002,
			Algorithm: DigestAlgorithm,
			Value:     bank.EncryptionKey.Digest,
		},
	}, nil
}

// orderDetails fills the order parameters allowed by the descriptor
func orderDetails(details *OrderDetails, desc order.Descriptor, params order.Params) {
	var dateRange *DateRange
	if params.HasDateRange() {
		dateRange = &DateRange{
			Start: params.Start.Format(DateFormat),
			End:   params.End.Format(DateFormat),
		}
	}
	var extra []Parameter
	if params.Test {
		extra = append(extra, Parameter{Name: "TEST", Value: ParameterValue{Type: "string", Value: "TRUE"}})
	}

	switch {
	case desc.Params == order.ParamsFileFormat && desc.IsUpload():
		details.FULOrderParams = &FULOrderParams{
			Parameter:  extra,
			FileFormat: FileFormat{CountryCode: params.CountryCode, Value: params.FileFormat},
		}
	case desc.Params == order.ParamsFileFormat:
		details.FDLOrderParams = &FDLOrderParams{
			DateRange:  dateRange,
			Parameter:  extra,
			FileFormat: FileFormat{CountryCode: params.CountryCode, Value: params.FileFormat},
		}
	case desc.Direction != order.KeyManagement:
		details.StandardOrderParams = &StandardOrderParams{DateRange: dateRange}
	}
}

// INI builds the unsecured request carrying the user's ES public key
func (b *Builder) INI(id *identity.Identity) (*UnsecuredRequest, error) {
	key := id.User.SignatureKey
	if key == nil {
		return nil, errors.New("signature key is required for INI")
	}
	doc := SignaturePubKeyOrderData{
		SignaturePubKeyInfo: SignaturePubKeyInfo{
			PubKeyValue:      NewPubKeyValue(key),
			SignatureVersion: key.Version,
		},
		PartnerID: id.User.PartnerID,
		UserID:    id.User.UserID,
	}
	return b.unsecured(id, order.Must("INI"), doc)
}

// HIA builds the unsecured request carrying the authentication and encryption public keys
func (b *Builder) HIA(id *identity.Identity) (*UnsecuredRequest, error) {
	auth, enc := id.User.AuthenticationKey, id.User.EncryptionKey
	if auth == nil || enc == nil {
		return nil, errors.New("authentication and encryption keys are required for HIA")
	}
	doc := HIARequestOrderData{
		AuthenticationPubKeyInfo: AuthenticationPubKeyInfo{
			PubKeyValue:           NewPubKeyValue(auth),
			AuthenticationVersion: auth.Version,
		},
		EncryptionPubKeyInfo: EncryptionPubKeyInfo{
			PubKeyValue:       NewPubKeyValue(enc),
			EncryptionVersion: enc.Version,
		},
		PartnerID: id.User.PartnerID,
		UserID:    id.User.UserID,
	}
	return b.unsecured(id, order.Must("HIA"), doc)
}

func (b *Builder) unsecured(id *identity.Identity, desc order.Descriptor, doc any) (*UnsecuredRequest, error) {
	raw, err := MarshalDocument(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal %s order data: %w", desc.Code, err)
	}
	compressed, err := compression.NewCompressor().Compress(raw)
	if err != nil {
		return nil, fmt.Errorf("compress %s order data: %w", desc.Code, err)
	}
	static, err := b.initStatic(id, desc, false)
	if err != nil {
		return nil, err
	}

	req := &UnsecuredRequest{
		Version:  ProtocolVersion,
		Revision: ProtocolRevision,
		Header: UnsecuredRequestHeader{
			Authenticate: true,
			Static:       static,
		},
	}
	req.Body.DataTransfer.OrderData = compressed
	return req, nil
}

// HPB builds the signed request for the bank's public keys
func (b *Builder) HPB(id *identity.Identity) (*NoPubKeyDigestsRequest, error) {
	static, err := b.initStatic(id, order.Must("HPB"), true)
	if err != nil {
		return nil, err
	}
	return &NoPubKeyDigestsRequest{
		Version:  ProtocolVersion,
		Revision: ProtocolRevision,
		Header: UnsecuredRequestHeader{
			Authenticate: true,
			Static:       static,
		},
		AuthSignature: &AuthSignature{},
	}, nil
}

// UploadInit builds the initialisation request of an upload. numSegments may
// be 0 for orders that carry only an electronic signature.
func (b *Builder) UploadInit(id *identity.Identity, desc order.Descriptor, params order.Params, numSegments int, wrappedKey, signatureData []byte) (*Request, error) {
	static, err := b.initStatic(id, desc, true)
	if err != nil {
		return nil, err
	}
	digests, err := bankDigests(id.Bank)
	if err != nil {
		return nil, err
	}
	orderDetails(static.OrderDetails, desc, params)
	static.BankPubKeyDigests = digests
	static.NumSegments = &numSegments

	body := RequestBody{
		DataTransfer: &DataTransfer{
			DataEncryptionInfo: &DataEncryptionInfo{
				Authenticate:           true,
				EncryptionPubKeyDigest: digests.Encryption,
				TransactionKey:         wrappedKey,
			},
			SignatureData: &SignatureData{
				Authenticate: true,
				Value:        signatureData,
			},
		},
	}
	return newRequest(static, MutableHeader{TransactionPhase: PhaseInitialisation}, body), nil
}

// DownloadInit builds the initialisation request of a download
func (b *Builder) DownloadInit(id *identity.Identity, desc order.Descriptor, params order.Params) (*Request, error) {
	static, err := b.initStatic(id, desc, true)
	if err != nil {
		return nil, err
	}
	digests, err := bankDigests(id.Bank)
	if err != nil {
		return nil, err
	}
	orderDetails(static.OrderDetails, desc, params)
	static.BankPubKeyDigests = digests

	return newRequest(static, MutableHeader{TransactionPhase: PhaseInitialisation}, RequestBody{}), nil
}

// UploadTransfer builds the request carrying one upload segment
func (b *Builder) UploadTransfer(id *identity.Identity, transactionID string, number int, last bool, data []byte) *Request {
	orderData := Base64(data)
	return newRequest(
		StaticHeader{HostID: id.Bank.HostID, TransactionID: transactionID},
		MutableHeader{
			TransactionPhase: PhaseTransfer,
			SegmentNumber:    &SegmentNumber{LastSegment: last, Value: number},
		},
		RequestBody{DataTransfer: &DataTransfer{OrderData: &orderData}},
	)
}

// DownloadTransfer builds the request for one download segment
func (b *Builder) DownloadTransfer(id *identity.Identity, transactionID string, number int, last bool) *Request {
	return newRequest(
		StaticHeader{HostID: id.Bank.HostID, TransactionID: transactionID},
		MutableHeader{
			TransactionPhase: PhaseTransfer,
			SegmentNumber:    &SegmentNumber{LastSegment: last, Value: number},
		},
		RequestBody{},
	)
}

// Receipt builds the download acknowledgement. code is 0 for success, 1 otherwise.
func (b *Builder) Receipt(id *identity.Identity, transactionID string, code int) *Request {
	return newRequest(
		StaticHeader{HostID: id.Bank.HostID, TransactionID: transactionID},
		MutableHeader{TransactionPhase: PhaseReceipt},
		RequestBody{TransferReceipt: &TransferReceipt{Authenticate: true, ReceiptCode: code}},
	)
}

// HEV builds the version query for a host
func (b *Builder) HEV(hostID string) *HEVRequest {
	return &HEVRequest{HostID: hostID}
}

// UserSignature builds the UserSignatureData document over payload
func UserSignature(id *identity.Identity, payload []byte) ([]byte, error) {
	key := id.User.SignatureKey
	if key == nil {
		return nil, errors.New("signature key is required")
	}
	sig, err := security.Sign(payload, key)
	if err != nil {
		return nil, err
	}
	return MarshalDocument(UserSignatureData{
		OrderSignatureData: []OrderSignatureData{{
			SignatureVersion: key.Version,
			SignatureValue:   sig,
			PartnerID:        id.User.PartnerID,
			UserID:           id.User.UserID,
		}},
	})
}

// Seal marshals a request and adds its AuthSignature. Unsecured requests
// are marshaled without signing.
func Seal(v any, signer *security.AuthSigner) ([]byte, error) {
	raw, err := MarshalDocument(v)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	if _, unsecured := v.(*UnsecuredRequest); unsecured {
		return raw, nil
	}
	if _, hev := v.(*HEVRequest); hev {
		return raw, nil
	}
	if signer == nil {
		return nil, errors.New("auth signer is required")
	}
	return signer.SignRequest(raw)
}
