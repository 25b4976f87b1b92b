package transaction

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sirosfoundation/go-ebics/pkg/compression"
	"github.com/sirosfoundation/go-ebics/pkg/identity"
	"github.com/sirosfoundation/go-ebics/pkg/message"
	"github.com/sirosfoundation/go-ebics/pkg/order"
	"github.com/sirosfoundation/go-ebics/pkg/security"
	"github.com/sirosfoundation/go-ebics/pkg/segment"
	"github.com/sirosfoundation/go-ebics/pkg/transport"
)

var (
	// ErrUnexpectedResponse is returned when the bank answers with the wrong response kind
	ErrUnexpectedResponse = errors.New("unexpected response type")
	// ErrWrongDirection is returned when an order type is used in the wrong operation
	ErrWrongDirection = errors.New("order type does not match transfer direction")
	// ErrResumeMismatch is returned when a resumed payload does not match the saved state
	ErrResumeMismatch = errors.New("payload does not match transaction state")
	// ErrEncryptionKeyMismatch is returned when a download was encrypted for another key
	ErrEncryptionKeyMismatch = errors.New("order data encrypted for a different key")
)

// Transport posts a serialized request to the bank and returns the raw response
type Transport interface {
	Send(ctx context.Context, endpoint string, message []byte, contentType string) ([]byte, error)
}

// StateObserver is called whenever a transaction advances
type StateObserver func(ctx context.Context, s State) error

// Engine runs upload and download transactions
type Engine struct {
	transport Transport
	builder   *message.Builder
	locks     *identity.LockSet
	logger    *slog.Logger
	observer  StateObserver
	registry  *order.Registry
	verify    bool
	now       func() time.Time
}

// Option represents a functional option for Engine
type Option func(*Engine)

// WithLogger sets the engine logger
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithLockSet shares subscriber locks between engines
func WithLockSet(locks *identity.LockSet) Option {
	return func(e *Engine) {
		e.locks = locks
	}
}

// WithStateObserver registers a callback for state changes. An observer
// error aborts the transaction.
func WithStateObserver(fn StateObserver) Option {
	return func(e *Engine) {
		e.observer = fn
	}
}

// WithRegistry sets the order registry used to resume transactions
func WithRegistry(r *order.Registry) Option {
	return func(e *Engine) {
		e.registry = r
	}
}

// WithResponseVerification checks the bank's AuthSignature on transaction responses
func WithResponseVerification(enabled bool) Option {
	return func(e *Engine) {
		e.verify = enabled
	}
}

// NewEngine creates a transaction engine
func NewEngine(t Transport, b *message.Builder, opts ...Option) *Engine {
	if b == nil {
		b = message.NewBuilder()
	}
	e := &Engine{
		transport: t,
		builder:   b,
		locks:     identity.NewLockSet(),
		logger:    slog.Default(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.registry == nil {
		e.registry = order.NewRegistry()
	}
	return e
}

// Builder returns the request builder used by the engine
func (e *Engine) Builder() *message.Builder {
	return e.builder
}

// Acquire takes the subscriber lock of id
func (e *Engine) Acquire(id *identity.Identity) (func(), error) {
	return e.locks.Acquire(id.Key())
}

// Exchange seals a request, posts it to the bank and parses the answer.
// Unsecured and HEV requests are sent without an AuthSignature.
func (e *Engine) Exchange(ctx context.Context, id *identity.Identity, req any) (message.Response, error) {
	var signer *security.AuthSigner
	switch req.(type) {
	case *message.UnsecuredRequest, *message.HEVRequest:
	default:
		s, err := security.NewAuthSigner(id.User.AuthenticationKey)
		if err != nil {
			return nil, err
		}
		signer = s
	}

	sealed, err := message.Seal(req, signer)
	if err != nil {
		return nil, err
	}

	raw, err := e.transport.Send(ctx, id.Bank.URL, sealed, transport.ContentTypeXML)
	if err != nil {
		return nil, err
	}

	resp, err := message.ParseResponse(raw)
	if err != nil {
		return nil, err
	}

	if e.verify && id.Bank.AuthenticationKey != nil {
		switch resp.(type) {
		case *message.DataTransferResponse, *message.ReceiptResponse:
			if err := security.VerifyAuthSignature(raw, id.Bank.AuthenticationKey.Public); err != nil {
				return nil, fmt.Errorf("bank response: %w", err)
			}
		}
	}
	return resp, nil
}

func (e *Engine) dataTransfer(ctx context.Context, id *identity.Identity, req any) (*message.DataTransferResponse, error) {
	resp, err := e.Exchange(ctx, id, req)
	if err != nil {
		return nil, err
	}
	dt, ok := resp.(*message.DataTransferResponse)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnexpectedResponse, resp)
	}
	return dt, nil
}

func (e *Engine) observe(ctx context.Context, s State) error {
	if e.observer == nil {
		return nil
	}
	if err := e.observer(ctx, s); err != nil {
		return fmt.Errorf("record transaction state: %w", err)
	}
	return nil
}

func (e *Engine) newState(id *identity.Identity, desc order.Descriptor, txID string) State {
	now := e.now()
	return State{
		ID:            uuid.New().String(),
		OrderType:     desc.Code,
		Direction:     desc.Direction,
		HostID:        id.Bank.HostID,
		PartnerID:     id.User.PartnerID,
		UserID:        id.User.UserID,
		TransactionID: txID,
		SegmentNumber: 1,
		Phase:         PhaseTransfer,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Upload sends payload as order type desc. On a transfer failure the
// returned error is a *TransferError whose State can be passed to ResumeUpload.
func (e *Engine) Upload(ctx context.Context, id *identity.Identity, desc order.Descriptor, params order.Params, payload []byte) (*State, error) {
	if !desc.IsUpload() {
		return nil, fmt.Errorf("%w: %s is not an upload", ErrWrongDirection, desc.Code)
	}
	if err := desc.CheckParams(params); err != nil {
		return nil, err
	}

	release, err := e.Acquire(id)
	if err != nil {
		return nil, err
	}
	defer release()

	upload, err := segment.EncodeForUpload(payload)
	if err != nil {
		return nil, err
	}

	logger := e.logger.With("order_type", desc.Code, "host_id", id.Bank.HostID, "user_id", id.User.UserID)

	dt, err := e.initUpload(ctx, id, desc, params, payload, upload.Nonce, upload.NumSegments())
	if err != nil {
		logger.Error("upload initialisation failed", "error", err)
		return nil, err
	}

	state := e.newState(id, desc, dt.TransactionID)
	state.Nonce = upload.Nonce
	state.Digest = upload.Digest
	state.NumSegments = upload.NumSegments()

	logger.Info("upload initialised",
		"transaction_id", state.TransactionID,
		"segments", state.NumSegments,
		"order_id", dt.OrderID)

	if err := e.observe(ctx, state); err != nil {
		return nil, err
	}
	return e.sendSegments(ctx, id, upload, state, logger)
}

// ResumeUpload continues an interrupted upload from state. payload must be
// the payload originally passed to Upload.
func (e *Engine) ResumeUpload(ctx context.Context, id *identity.Identity, state State, payload []byte) (*State, error) {
	if err := state.Validate(); err != nil {
		return nil, err
	}
	if state.Direction != order.Upload || state.Phase != PhaseTransfer {
		return nil, fmt.Errorf("%w: %s transaction in phase %s cannot be resumed", ErrInvalidState, state.Direction, state.Phase)
	}
	if state.TransactionID == "" || len(state.Nonce) != security.NonceSize {
		return nil, fmt.Errorf("%w: missing transaction id or key", ErrInvalidState)
	}
	if state.HostID != id.Bank.HostID || state.UserID != id.User.UserID {
		return nil, fmt.Errorf("%w: transaction belongs to %s/%s", ErrInvalidState, state.HostID, state.UserID)
	}
	if _, err := e.registry.Lookup(state.OrderType); err != nil {
		return nil, err
	}

	release, err := e.Acquire(id)
	if err != nil {
		return nil, err
	}
	defer release()

	upload, err := segment.EncodeWithNonce(payload, state.Nonce)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(upload.Digest, state.Digest) || upload.NumSegments() != state.NumSegments {
		return nil, ErrResumeMismatch
	}

	logger := e.logger.With("order_type", state.OrderType, "host_id", id.Bank.HostID, "user_id", id.User.UserID)
	logger.Info("resuming upload",
		"transaction_id", state.TransactionID,
		"segment", state.SegmentNumber,
		"segments", state.NumSegments)

	return e.sendSegments(ctx, id, upload, state, logger)
}

func (e *Engine) initUpload(ctx context.Context, id *identity.Identity, desc order.Descriptor, params order.Params, payload, nonce []byte, numSegments int) (*message.DataTransferResponse, error) {
	if !id.Bank.HasKeys() {
		return nil, message.ErrBankKeysMissing
	}

	sigDoc, err := message.UserSignature(id, payload)
	if err != nil {
		return nil, err
	}
	compressed, err := compression.NewCompressor().Compress(sigDoc)
	if err != nil {
		return nil, err
	}
	signatureData, err := security.EncryptPayload(compressed, nonce)
	if err != nil {
		return nil, err
	}
	wrapped, err := security.WrapKey(nonce, id.Bank.EncryptionKey.Public)
	if err != nil {
		return nil, err
	}

	req, err := e.builder.UploadInit(id, desc, params, numSegments, wrapped, signatureData)
	if err != nil {
		return nil, err
	}
	dt, err := e.dataTransfer(ctx, id, req)
	if err != nil {
		return nil, err
	}
	if err := dt.Err(desc.Code); err != nil {
		return nil, err
	}
	return dt, nil
}

func (e *Engine) sendSegments(ctx context.Context, id *identity.Identity, upload *segment.Upload, state State, logger *slog.Logger) (*State, error) {
	for {
		seg, err := upload.Segment(state.SegmentNumber)
		if err != nil {
			return nil, &TransferError{State: state, Segment: state.SegmentNumber, Err: err}
		}

		req := e.builder.UploadTransfer(id, state.TransactionID, seg.Number, seg.Last, seg.Data)
		dt, err := e.dataTransfer(ctx, id, req)
		if err == nil {
			err = dt.Err(state.OrderType)
		}
		if err != nil {
			logger.Error("upload segment failed",
				"transaction_id", state.TransactionID,
				"segment", seg.Number,
				"error", err)
			return nil, &TransferError{State: state, Segment: seg.Number, Err: err}
		}

		logger.Debug("upload segment sent",
			"transaction_id", state.TransactionID,
			"segment", seg.Number,
			"last", seg.Last)

		if !state.HasNext() {
			break
		}
		if state, err = state.Next(); err != nil {
			return nil, err
		}
		if err := e.observe(ctx, state); err != nil {
			return nil, err
		}
	}

	state = state.WithPhase(PhaseDone)
	if err := e.observe(ctx, state); err != nil {
		return nil, err
	}
	logger.Info("upload completed", "transaction_id", state.TransactionID, "segments", state.NumSegments)
	return &state, nil
}

// SubmitSignatureOnly sends an order that carries only the user's electronic
// signature over payload and no order data segments.
func (e *Engine) SubmitSignatureOnly(ctx context.Context, id *identity.Identity, desc order.Descriptor, payload []byte) (*State, error) {
	if !desc.IsUpload() {
		return nil, fmt.Errorf("%w: %s is not an upload", ErrWrongDirection, desc.Code)
	}

	release, err := e.Acquire(id)
	if err != nil {
		return nil, err
	}
	defer release()

	nonce, err := security.GenerateNonce()
	if err != nil {
		return nil, err
	}

	dt, err := e.initUpload(ctx, id, desc, order.Params{}, payload, nonce, 0)
	if err != nil {
		e.logger.Error("signature order failed", "order_type", desc.Code, "user_id", id.User.UserID, "error", err)
		return nil, err
	}

	state := e.newState(id, desc, dt.TransactionID).WithPhase(PhaseDone)
	if err := e.observe(ctx, state); err != nil {
		return nil, err
	}
	e.logger.Info("signature order accepted",
		"order_type", desc.Code,
		"transaction_id", state.TransactionID,
		"user_id", id.User.UserID)
	return &state, nil
}

// Download fetches order data for desc. When the bank has nothing to
// deliver the result is empty and the error nil.
func (e *Engine) Download(ctx context.Context, id *identity.Identity, desc order.Descriptor, params order.Params) ([]byte, error) {
	if !desc.IsDownload() {
		return nil, fmt.Errorf("%w: %s is not a download", ErrWrongDirection, desc.Code)
	}
	if err := desc.CheckParams(params); err != nil {
		return nil, err
	}

	release, err := e.Acquire(id)
	if err != nil {
		return nil, err
	}
	defer release()

	logger := e.logger.With("order_type", desc.Code, "host_id", id.Bank.HostID, "user_id", id.User.UserID)

	req, err := e.builder.DownloadInit(id, desc, params)
	if err != nil {
		return nil, err
	}
	dt, err := e.dataTransfer(ctx, id, req)
	if err != nil {
		return nil, err
	}
	if dt.Result().IsNoDownloadData() {
		logger.Info("no download data available")
		return nil, nil
	}
	if err := dt.Err(desc.Code); err != nil {
		logger.Error("download initialisation failed", "error", err)
		return nil, err
	}

	if id.User.EncryptionKey == nil {
		return nil, errors.New("encryption key is required for downloads")
	}
	if len(dt.EncryptionPubKeyDigest) > 0 && !bytes.Equal(dt.EncryptionPubKeyDigest, id.User.EncryptionKey.Digest) {
		return nil, ErrEncryptionKeyMismatch
	}
	nonce, err := security.UnwrapKey(dt.TransactionKey, id.User.EncryptionKey)
	if err != nil {
		return nil, err
	}

	state := e.newState(id, desc, dt.TransactionID)
	state.NumSegments = max(dt.NumSegments, 1)
	logger = logger.With("transaction_id", state.TransactionID)
	logger.Info("download initialised", "segments", state.NumSegments)

	if err := e.observe(ctx, state); err != nil {
		return nil, err
	}

	dec := segment.NewDecoder(nonce)
	first := dt.SegmentNumber
	if first == 0 {
		first = 1
	}
	if err := dec.Add(first, dt.OrderData); err != nil {
		return nil, &TransferError{State: state, Segment: 1, Err: err}
	}

	for state.HasNext() {
		next, err := state.Next()
		if err != nil {
			return nil, err
		}

		req := e.builder.DownloadTransfer(id, state.TransactionID, next.SegmentNumber, next.IsLastSegment())
		dt, err := e.dataTransfer(ctx, id, req)
		if err == nil {
			err = dt.Err(desc.Code)
		}
		if err == nil {
			err = dec.Add(dt.SegmentNumber, dt.OrderData)
		}
		if err != nil {
			logger.Error("download segment failed", "segment", next.SegmentNumber, "error", err)
			return nil, &TransferError{State: state, Segment: next.SegmentNumber, Err: err}
		}

		logger.Debug("download segment received", "segment", next.SegmentNumber)
		state = next
		if err := e.observe(ctx, state); err != nil {
			return nil, err
		}
	}

	payload, decodeErr := dec.Finish()
	receiptCode := 0
	if decodeErr != nil {
		receiptCode = 1
	}

	state = state.WithPhase(PhaseReceipt)
	if err := e.observe(ctx, state); err != nil {
		return nil, err
	}

	resp, err := e.Exchange(ctx, id, e.builder.Receipt(id, state.TransactionID, receiptCode))
	if err != nil {
		return nil, &TransferError{State: state, Segment: state.SegmentNumber, Err: err}
	}
	receipt, ok := resp.(*message.ReceiptResponse)
	if !ok {
		return nil, &TransferError{State: state, Segment: state.SegmentNumber, Err: fmt.Errorf("%w: %T", ErrUnexpectedResponse, resp)}
	}

	if decodeErr != nil {
		logger.Error("download could not be decoded, negative receipt sent", "error", decodeErr)
		return nil, fmt.Errorf("decode %s order data: %w", desc.Code, decodeErr)
	}
	if err := receipt.Err(desc.Code); err != nil {
		logger.Error("download receipt rejected", "error", err)
		return nil, &TransferError{State: state, Segment: state.SegmentNumber, Err: err}
	}

	state = state.WithPhase(PhaseDone)
	if err := e.observe(ctx, state); err != nil {
		return nil, err
	}
	logger.Info("download completed", "bytes", len(payload), "segments", state.NumSegments)
	return payload, nil
}
