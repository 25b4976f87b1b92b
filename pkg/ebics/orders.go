package ebics

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirosfoundation/go-ebics/internal/storage"
	"github.com/sirosfoundation/go-ebics/pkg/identity"
	"github.com/sirosfoundation/go-ebics/pkg/order"
	"github.com/sirosfoundation/go-ebics/pkg/transaction"
)

// Upload sends payload as the given order type
func (c *Client) Upload(ctx context.Context, orderType string, params order.Params, payload []byte) (*transaction.State, error) {
	desc, err := c.registry.Lookup(orderType)
	if err != nil {
		return nil, err
	}
	id, err := c.Identity(ctx)
	if err != nil {
		return nil, err
	}
	state, err := c.engine.Upload(ctx, id, desc, params, payload)
	if err != nil {
		c.recordFailure(ctx, err)
		return nil, err
	}
	return state, nil
}

// ResumeUpload continues an interrupted upload. txID is the local record
// id or the bank transaction id; payload must be the original payload.
func (c *Client) ResumeUpload(ctx context.Context, txID string, payload []byte) (*transaction.State, error) {
	rec, err := c.store.LoadTransaction(ctx, txID)
	if err != nil {
		return nil, fmt.Errorf("loading transaction: %w", err)
	}
	id, err := c.Identity(ctx)
	if err != nil {
		return nil, err
	}
	state, err := c.engine.ResumeUpload(ctx, id, rec.State(), payload)
	if err != nil {
		c.recordFailure(ctx, err)
		return nil, err
	}
	return state, nil
}

// Download fetches order data. It returns nil data and no error when the
// bank has nothing to deliver. With storage.archiveDownloads set the data
// is also kept in the payload store.
func (c *Client) Download(ctx context.Context, orderType string, params order.Params) ([]byte, error) {
	desc, err := c.registry.Lookup(orderType)
	if err != nil {
		return nil, err
	}
	id, err := c.Identity(ctx)
	if err != nil {
		return nil, err
	}
	data, err := c.engine.Download(ctx, id, desc, params)
	if err != nil {
		c.recordFailure(ctx, err)
		return nil, err
	}
	if data == nil || !c.cfg.Storage.ArchiveDownloads {
		return data, nil
	}
	if err := c.archive(ctx, id, desc.Code, data); err != nil {
		return data, err
	}
	return data, nil
}

func (c *Client) archive(ctx context.Context, id *identity.Identity, orderType string, data []byte) error {
	state, ok := c.lastState(id)
	payload := &storage.PayloadData{
		OrderType:     orderType,
		HostID:        id.Bank.HostID,
		UserID:        id.User.UserID,
		TransactionID: state.TransactionID,
		Data:          data,
	}
	payloadID, err := c.store.StorePayload(ctx, payload)
	if err != nil {
		return fmt.Errorf("archiving %s data: %w", orderType, err)
	}
	if !ok {
		return nil
	}

	rec, err := c.store.LoadTransaction(ctx, state.ID)
	if err != nil {
		return fmt.Errorf("archiving %s data: %w", orderType, err)
	}
	rec.PayloadID = payloadID
	if err := c.store.SaveTransaction(ctx, rec); err != nil {
		return fmt.Errorf("archiving %s data: %w", orderType, err)
	}
	c.logger.Info("order data archived",
		"order_type", orderType,
		"transaction_id", state.TransactionID,
		"payload_id", payloadID,
		"size", len(data))
	return nil
}

// Payload returns archived order data
func (c *Client) Payload(ctx context.Context, payloadID string) (*storage.PayloadData, error) {
	return c.store.GetPayload(ctx, payloadID)
}

// Status summarizes the subscriber
type Status struct {
	HostID       string
	PartnerID    string
	UserID       string
	UserStatus   identity.UserStatus
	BankKeys     bool
	Digests      map[string][]byte
	Transactions []*storage.TransactionRecord
}

// Status reports the subscriber state and its unfinished transactions
func (c *Client) Status(ctx context.Context) (*Status, error) {
	rec, err := c.store.LoadIdentity(ctx, c.cfg.Bank.HostID, c.cfg.User.PartnerID, c.cfg.User.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotEnrolled
	}
	if err != nil {
		return nil, err
	}
	id, err := rec.Identity()
	if err != nil {
		return nil, err
	}

	txs, err := c.Transactions(ctx, &storage.TransactionFilter{Incomplete: true})
	if err != nil {
		return nil, err
	}

	st := &Status{
		HostID:       id.Bank.HostID,
		PartnerID:    id.User.PartnerID,
		UserID:       id.User.UserID,
		UserStatus:   id.User.Status(),
		BankKeys:     id.Bank.HasKeys(),
		Digests:      make(map[string][]byte),
		Transactions: txs,
	}
	if k := id.User.SignatureKey; k != nil {
		st.Digests[k.Version] = k.Digest
	}
	if k := id.User.AuthenticationKey; k != nil {
		st.Digests[k.Version] = k.Digest
	}
	if k := id.User.EncryptionKey; k != nil {
		st.Digests[k.Version] = k.Digest
	}
	return st, nil
}

// Transactions lists the subscriber's transaction records
func (c *Client) Transactions(ctx context.Context, filter *storage.TransactionFilter) ([]*storage.TransactionRecord, error) {
	f := storage.TransactionFilter{}
	if filter != nil {
		f = *filter
	}
	f.HostID = c.cfg.Bank.HostID
	f.PartnerID = c.cfg.User.PartnerID
	f.UserID = c.cfg.User.UserID
	return c.store.ListTransactions(ctx, &f)
}
