package keymgmt

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sirosfoundation/go-ebics/pkg/compression"
	"github.com/sirosfoundation/go-ebics/pkg/identity"
	"github.com/sirosfoundation/go-ebics/pkg/message"
	"github.com/sirosfoundation/go-ebics/pkg/order"
	"github.com/sirosfoundation/go-ebics/pkg/security"
	"github.com/sirosfoundation/go-ebics/pkg/transaction"
)

var (
	// ErrBankKeyMismatch is returned when HPB keys differ from the pinned digests
	ErrBankKeyMismatch = errors.New("bank key does not match initialization letter")
	// ErrUserNotInitialized is returned when HPB is attempted before INI and HIA
	ErrUserNotInitialized = errors.New("user has not completed INI and HIA")
)

// sprPayload is the order data signed by SPR
var sprPayload = []byte(" ")

// Handshake runs the key management orders
type Handshake struct {
	engine *transaction.Engine
	logger *slog.Logger
}

// Option represents a functional option for Handshake
type Option func(*Handshake)

// WithLogger sets the handshake logger
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handshake) {
		h.logger = logger
	}
}

// New creates a handshake sharing the engine's transport and subscriber locks
func New(engine *transaction.Engine, opts ...Option) *Handshake {
	h := &Handshake{
		engine: engine,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SendINI sends the user's signature public key
func (h *Handshake) SendINI(ctx context.Context, id *identity.Identity) (identity.User, error) {
	if id.User.INIDone {
		h.logger.Debug("INI already sent", "user_id", id.User.UserID)
		return id.User, nil
	}
	req, err := h.engine.Builder().INI(id)
	if err != nil {
		return id.User, err
	}
	if _, err := h.keyManagement(ctx, id, "INI", req); err != nil {
		return id.User, err
	}
	h.logger.Info("INI accepted", "host_id", id.Bank.HostID, "partner_id", id.User.PartnerID, "user_id", id.User.UserID)
	return id.User.WithINI(), nil
}

// SendHIA sends the user's authentication and encryption public keys
func (h *Handshake) SendHIA(ctx context.Context, id *identity.Identity) (identity.User, error) {
	if id.User.HIADone {
		h.logger.Debug("HIA already sent", "user_id", id.User.UserID)
		return id.User, nil
	}
	req, err := h.engine.Builder().HIA(id)
	if err != nil {
		return id.User, err
	}
	if _, err := h.keyManagement(ctx, id, "HIA", req); err != nil {
		return id.User, err
	}
	h.logger.Info("HIA accepted", "host_id", id.Bank.HostID, "partner_id", id.User.PartnerID, "user_id", id.User.UserID)
	return id.User.WithHIA(), nil
}

// FetchBankKeys downloads the bank's X002 and E002 public keys with HPB
func (h *Handshake) FetchBankKeys(ctx context.Context, id *identity.Identity) (identity.Bank, error) {
	if id.User.Status() != identity.StatusInitialized {
		return id.Bank, fmt.Errorf("%w: status %s", ErrUserNotInitialized, id.User.Status())
	}
	if !id.User.EncryptionKey.HasPrivate() {
		return id.Bank, errors.New("encryption private key is required for HPB")
	}

	req, err := h.engine.Builder().HPB(id)
	if err != nil {
		return id.Bank, err
	}
	resp, err := h.keyManagement(ctx, id, "HPB", req)
	if err != nil {
		return id.Bank, err
	}

	doc, err := decryptHPB(resp, id.User.EncryptionKey)
	if err != nil {
		return id.Bank, err
	}
	if doc.HostID != "" && doc.HostID != id.Bank.HostID {
		return id.Bank, fmt.Errorf("HPB answered for host %q, expected %q", doc.HostID, id.Bank.HostID)
	}

	auth, err := doc.AuthenticationPubKeyInfo.PubKeyValue.KeyMaterial(doc.AuthenticationPubKeyInfo.AuthenticationVersion)
	if err != nil {
		return id.Bank, fmt.Errorf("bank authentication key: %w", err)
	}
	enc, err := doc.EncryptionPubKeyInfo.PubKeyValue.KeyMaterial(doc.EncryptionPubKeyInfo.EncryptionVersion)
	if err != nil {
		return id.Bank, fmt.Errorf("bank encryption key: %w", err)
	}
	if auth.Version != security.VersionX002 || enc.Version != security.VersionE002 {
		return id.Bank, fmt.Errorf("unsupported bank key versions %s/%s", auth.Version, enc.Version)
	}

	if err := checkPinned("authentication", id.Bank.AuthenticationDigest, auth.Digest); err != nil {
		return id.Bank, err
	}
	if err := checkPinned("encryption", id.Bank.EncryptionDigest, enc.Digest); err != nil {
		return id.Bank, err
	}

	h.logger.Info("bank keys fetched",
		"host_id", id.Bank.HostID,
		"authentication_digest", fmt.Sprintf("%X", auth.Digest),
		"encryption_digest", fmt.Sprintf("%X", enc.Digest))
	return id.Bank.WithKeys(enc, auth), nil
}

// LockAccess suspends the subscriber with SPR
func (h *Handshake) LockAccess(ctx context.Context, id *identity.Identity) (identity.User, error) {
	if _, err := h.engine.SubmitSignatureOnly(ctx, id, order.Must("SPR"), sprPayload); err != nil {
		return id.User, err
	}
	h.logger.Warn("subscriber suspended", "host_id", id.Bank.HostID, "user_id", id.User.UserID)
	return id.User.WithSuspended(identity.SuspendedBySPR), nil
}

func (h *Handshake) keyManagement(ctx context.Context, id *identity.Identity, orderType string, req any) (*message.KeyManagementResponse, error) {
	release, err := h.engine.Acquire(id)
	if err != nil {
		return nil, err
	}
	defer release()

	resp, err := h.engine.Exchange(ctx, id, req)
	if err != nil {
		return nil, err
	}
	km, ok := resp.(*message.KeyManagementResponse)
	if !ok {
		return nil, fmt.Errorf("%w: %T", transaction.ErrUnexpectedResponse, resp)
	}
	if err := km.Err(orderType); err != nil {
		h.logger.Error(orderType+" rejected", "user_id", id.User.UserID, "return_code", km.Result().Code, "error", err)
		return nil, err
	}
	return km, nil
}

func decryptHPB(resp *message.KeyManagementResponse, key *security.KeyMaterial) (*message.HPBResponseOrderData, error) {
	if len(resp.TransactionKey) == 0 || len(resp.OrderData) == 0 {
		return nil, errors.New("HPB response carries no order data")
	}
	if len(resp.EncryptionPubKeyDigest) > 0 && !bytes.Equal(resp.EncryptionPubKeyDigest, key.Digest) {
		return nil, transaction.ErrEncryptionKeyMismatch
	}
	nonce, err := security.UnwrapKey(resp.TransactionKey, key)
	if err != nil {
		return nil, err
	}
	compressed, err := security.DecryptPayload(resp.OrderData, nonce)
	if err != nil {
		return nil, err
	}
	raw, err := compression.NewCompressor().Decompress(compressed)
	if err != nil {
		return nil, fmt.Errorf("inflate HPB order data: %w", err)
	}
	var doc message.HPBResponseOrderData
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse HPB order data: %w", err)
	}
	return &doc, nil
}

func checkPinned(role string, pinned, actual []byte) error {
	if len(pinned) == 0 {
		return nil
	}
	if !security.Equal(pinned, actual) {
		return fmt.Errorf("%w: %s key digest %X", ErrBankKeyMismatch, role, actual)
	}
	return nil
}
