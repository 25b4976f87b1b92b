// Package storage provides persistence interfaces and implementations for
// EBICS subscribers, running transactions and downloaded order data.
//
// # Interface Design
//
// The storage layer is organized into focused interfaces:
//
//   - [IdentityStore]: subscriber, partner and bank records
//   - [TransactionStore]: transaction snapshots for status and upload resume
//   - [PayloadStore]: archive of downloaded order data
//
// The [Store] interface combines all sub-stores for convenience.
//
// Identity records hold public keys only. Private keys stay in the keystore.
//
// # Implementations
//
// The memory sub-package keeps everything in process, the file sub-package
// writes JSON documents below a directory, and the mongodb sub-package
// stores records in collections and payloads in GridFS.
//
// # Concurrency
//
// All store implementations must be safe for concurrent use from multiple
// goroutines.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("not found")

// Store is the main storage interface combining all sub-stores
type Store interface {
	IdentityStore
	TransactionStore
	PayloadStore

	// Close releases storage resources
	Close(ctx context.Context) error

	// Ping checks backend connectivity
	Ping(ctx context.Context) error
}

// IdentityStore manages subscriber records
type IdentityStore interface {
	// SaveIdentity creates or replaces an identity record
	SaveIdentity(ctx context.Context, rec *IdentityRecord) error

	// LoadIdentity retrieves the record of one subscriber
	LoadIdentity(ctx context.Context, hostID, partnerID, userID string) (*IdentityRecord, error)

	// DeleteIdentity removes a subscriber record
	DeleteIdentity(ctx context.Context, hostID, partnerID, userID string) error

	// ListIdentities returns all subscriber records
	ListIdentities(ctx context.Context) ([]*IdentityRecord, error)
}

// TransactionStore manages transaction snapshots
type TransactionStore interface {
	// SaveTransaction creates or replaces a transaction record
	SaveTransaction(ctx context.Context, rec *TransactionRecord) error

	// LoadTransaction retrieves a transaction by local id or bank transaction id
	LoadTransaction(ctx context.Context, id string) (*TransactionRecord, error)

	// DeleteTransaction removes a transaction record
	DeleteTransaction(ctx context.Context, id string) error

	// ListTransactions returns transactions, most recently updated first
	ListTransactions(ctx context.Context, filter *TransactionFilter) ([]*TransactionRecord, error)
}

// PayloadStore archives order data (large binary data)
type PayloadStore interface {
	// StorePayload stores a payload and returns its ID
	StorePayload(ctx context.Context, payload *PayloadData) (string, error)

	// GetPayload retrieves a payload by ID
	GetPayload(ctx context.Context, id string) (*PayloadData, error)

	// DeletePayload deletes a payload
	DeletePayload(ctx context.Context, id string) error
}

// Domain models

// IdentityRecord is the persisted form of a subscriber and its bank
type IdentityRecord struct {
	ID        string `bson:"_id" json:"id"`
	HostID    string `bson:"host_id" json:"hostId"`
	PartnerID string `bson:"partner_id" json:"partnerId"`
	UserID    string `bson:"user_id" json:"userId"`
	SystemID  string `bson:"system_id,omitempty" json:"systemId,omitempty"`
	Name      string `bson:"name,omitempty" json:"name,omitempty"`

	BankURL  string `bson:"bank_url" json:"bankUrl"`
	BankName string `bson:"bank_name,omitempty" json:"bankName,omitempty"`

	PartnerName string          `bson:"partner_name,omitempty" json:"partnerName,omitempty"`
	Accounts    []AccountRecord `bson:"accounts,omitempty" json:"accounts,omitempty"`

	INIDone    bool   `bson:"ini_done" json:"iniDone"`
	HIADone    bool   `bson:"hia_done" json:"hiaDone"`
	Suspension string `bson:"suspension,omitempty" json:"suspension,omitempty"`

	// User public keys by role
	UserKeys []PublicKeyRecord `bson:"user_keys" json:"userKeys"`
	// Bank public keys, once fetched with HPB
	BankKeys []PublicKeyRecord `bson:"bank_keys,omitempty" json:"bankKeys,omitempty"`

	// Pinned bank key digests from the initialization letter, hex encoded
	BankAuthenticationDigest string `bson:"bank_authentication_digest,omitempty" json:"bankAuthenticationDigest,omitempty"`
	BankEncryptionDigest     string `bson:"bank_encryption_digest,omitempty" json:"bankEncryptionDigest,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}

// AccountRecord is a persisted bank account
type AccountRecord struct {
	ID          string `bson:"id" json:"id"`
	IBAN        string `bson:"iban,omitempty" json:"iban,omitempty"`
	BIC         string `bson:"bic,omitempty" json:"bic,omitempty"`
	Currency    string `bson:"currency,omitempty" json:"currency,omitempty"`
	Description string `bson:"description,omitempty" json:"description,omitempty"`
}

// KeyRole names the purpose of a key
type KeyRole string

const (
	RoleSignature      KeyRole = "signature"
	RoleAuthentication KeyRole = "authentication"
	RoleEncryption     KeyRole = "encryption"
)

// PublicKeyRecord is a persisted RSA public key
type PublicKeyRecord struct {
	Role    KeyRole `bson:"role" json:"role"`
	Version string  `bson:"version" json:"version"`
	// PKIX is the DER encoded SubjectPublicKeyInfo
	PKIX      []byte    `bson:"pkix" json:"pkix"`
	Digest    string    `bson:"digest" json:"digest"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
}

// TransactionRecord is a persisted transaction snapshot
type TransactionRecord struct {
	ID            string `bson:"_id" json:"id"`
	TransactionID string `bson:"transaction_id" json:"transactionId"`
	OrderType     string `bson:"order_type" json:"orderType"`
	Direction     string `bson:"direction" json:"direction"`
	HostID        string `bson:"host_id" json:"hostId"`
	PartnerID     string `bson:"partner_id" json:"partnerId"`
	UserID        string `bson:"user_id" json:"userId"`

	// Nonce is kept for uploads only, to allow resumption
	Nonce  []byte `bson:"nonce,omitempty" json:"nonce,omitempty"`
	Digest []byte `bson:"digest,omitempty" json:"digest,omitempty"`

	SegmentNumber int    `bson:"segment_number" json:"segmentNumber"`
	NumSegments   int    `bson:"num_segments" json:"numSegments"`
	Phase         string `bson:"phase" json:"phase"`

	// PayloadID references archived order data, if any
	PayloadID string `bson:"payload_id,omitempty" json:"payloadId,omitempty"`
	LastError string `bson:"last_error,omitempty" json:"lastError,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}

// TransactionFilter narrows ListTransactions
type TransactionFilter struct {
	HostID     string
	PartnerID  string
	UserID     string
	OrderType  string
	Phase      string
	Incomplete bool
	Limit      int
}

// Match reports whether rec passes the filter
func (f *TransactionFilter) Match(rec *TransactionRecord) bool {
	if f == nil {
		return true
	}
	switch {
	case f.HostID != "" && rec.HostID != f.HostID,
		f.PartnerID != "" && rec.PartnerID != f.PartnerID,
		f.UserID != "" && rec.UserID != f.UserID,
		f.OrderType != "" && rec.OrderType != f.OrderType,
		f.Phase != "" && rec.Phase != f.Phase,
		f.Incomplete && rec.Phase == PhaseDone:
		return false
	}
	return true
}

// PhaseDone is the phase of a completed transaction record
const PhaseDone = "done"

// PayloadData holds order data and metadata
type PayloadData struct {
	ID            string    `json:"id"`
	OrderType     string    `json:"orderType"`
	HostID        string    `json:"hostId"`
	UserID        string    `json:"userId"`
	TransactionID string    `json:"transactionId"`
	Data          []byte    `json:"-"`
	Checksum      string    `json:"checksum"`
	CreatedAt     time.Time `json:"createdAt"`
}

// IdentityKey builds the record id of a subscriber
func IdentityKey(hostID, partnerID, userID string) string {
	return hostID + "/" + partnerID + "/" + userID
}
