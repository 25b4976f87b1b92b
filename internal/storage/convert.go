package storage

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/sirosfoundation/go-ebics/pkg/identity"
	"github.com/sirosfoundation/go-ebics/pkg/order"
	"github.com/sirosfoundation/go-ebics/pkg/security"
	"github.com/sirosfoundation/go-ebics/pkg/transaction"
)

// NewIdentityRecord converts an identity. Private keys are dropped.
func NewIdentityRecord(id *identity.Identity) (*IdentityRecord, error) {
	u, b := id.User, id.Bank
	rec := &IdentityRecord{
		ID:                       IdentityKey(b.HostID, u.PartnerID, u.UserID),
		HostID:                   b.HostID,
		PartnerID:                u.PartnerID,
		UserID:                   u.UserID,
		SystemID:                 u.SystemID,
		Name:                     u.Name,
		BankURL:                  b.URL,
		BankName:                 b.Name,
		PartnerName:              id.Partner.Name,
		INIDone:                  u.INIDone,
		HIADone:                  u.HIADone,
		Suspension:               string(u.Suspension),
		BankAuthenticationDigest: hex.EncodeToString(b.AuthenticationDigest),
		BankEncryptionDigest:     hex.EncodeToString(b.EncryptionDigest),
	}
	for _, a := range id.Partner.Accounts {
		rec.Accounts = append(rec.Accounts, AccountRecord(a))
	}

	userKeys := []struct {
		role KeyRole
		km   *security.KeyMaterial
	}{
		{RoleSignature, u.SignatureKey},
		{RoleAuthentication, u.AuthenticationKey},
		{RoleEncryption, u.EncryptionKey},
	}
	for _, k := range userKeys {
		if k.km == nil {
			continue
		}
		pk, err := encodeKey(k.role, k.km)
		if err != nil {
			return nil, err
		}
		rec.UserKeys = append(rec.UserKeys, pk)
	}

	if b.HasKeys() {
		auth, err := encodeKey(RoleAuthentication, b.AuthenticationKey)
		if err != nil {
			return nil, err
		}
		enc, err := encodeKey(RoleEncryption, b.EncryptionKey)
		if err != nil {
			return nil, err
		}
		rec.BankKeys = []PublicKeyRecord{auth, enc}
	}
	return rec, nil
}

// Identity rebuilds the identity with public key material only
func (r *IdentityRecord) Identity() (*identity.Identity, error) {
	id := &identity.Identity{
		User: identity.User{
			UserID:     r.UserID,
			PartnerID:  r.PartnerID,
			Name:       r.Name,
			SystemID:   r.SystemID,
			INIDone:    r.INIDone,
			HIADone:    r.HIADone,
			Suspension: identity.Suspension(r.Suspension),
		},
		Partner: identity.Partner{PartnerID: r.PartnerID, Name: r.PartnerName},
		Bank: identity.Bank{
			HostID: r.HostID,
			Name:   r.BankName,
			URL:    r.BankURL,
		},
	}
	for _, a := range r.Accounts {
		id.Partner.Accounts = append(id.Partner.Accounts, identity.Account(a))
	}

	var err error
	if id.Bank.AuthenticationDigest, err = hex.DecodeString(r.BankAuthenticationDigest); err != nil {
		return nil, fmt.Errorf("pinned authentication digest: %w", err)
	}
	if id.Bank.EncryptionDigest, err = hex.DecodeString(r.BankEncryptionDigest); err != nil {
		return nil, fmt.Errorf("pinned encryption digest: %w", err)
	}

	for _, pk := range r.UserKeys {
		km, err := decodeKey(pk)
		if err != nil {
			return nil, err
		}
		switch pk.Role {
		case RoleSignature:
			id.User.SignatureKey = km
		case RoleAuthentication:
			id.User.AuthenticationKey = km
		case RoleEncryption:
			id.User.EncryptionKey = km
		}
	}
	for _, pk := range r.BankKeys {
		km, err := decodeKey(pk)
		if err != nil {
			return nil, err
		}
		switch pk.Role {
		case RoleAuthentication:
			id.Bank.AuthenticationKey = km
		case RoleEncryption:
			id.Bank.EncryptionKey = km
		}
	}
	return id, nil
}

func encodeKey(role KeyRole, km *security.KeyMaterial) (PublicKeyRecord, error) {
	der, err := x509.MarshalPKIXPublicKey(km.Public)
	if err != nil {
		return PublicKeyRecord{}, fmt.Errorf("encode %s key: %w", role, err)
	}
	return PublicKeyRecord{
		Role:      role,
		Version:   km.Version,
		PKIX:      der,
		Digest:    hex.EncodeToString(km.Digest),
		CreatedAt: km.CreatedAt,
	}, nil
}

func decodeKey(pk PublicKeyRecord) (*security.KeyMaterial, error) {
	parsed, err := x509.ParsePKIXPublicKey(pk.PKIX)
	if err != nil {
		return nil, fmt.Errorf("decode %s key: %w", pk.Role, err)
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("decode %s key: not an RSA key", pk.Role)
	}
	km, err := security.NewKeyMaterial(pub, nil, pk.Version, pk.CreatedAt)
	if err != nil {
		return nil, err
	}
	if pk.Digest != "" && hex.EncodeToString(km.Digest) != pk.Digest {
		return nil, fmt.Errorf("decode %s key: stored digest does not match key", pk.Role)
	}
	return km, nil
}

// NewTransactionRecord converts a transaction state. Download states never
// carry a key.
func NewTransactionRecord(s transaction.State) *TransactionRecord {
	rec := &TransactionRecord{
		ID:            s.ID,
		TransactionID: s.TransactionID,
		OrderType:     s.OrderType,
		Direction:     string(s.Direction),
		HostID:        s.HostID,
		PartnerID:     s.PartnerID,
		UserID:        s.UserID,
		Digest:        s.Digest,
		SegmentNumber: s.SegmentNumber,
		NumSegments:   s.NumSegments,
		Phase:         string(s.Phase),
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
	if s.Direction == order.Upload && !s.Completed() {
		rec.Nonce = s.Nonce
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	return rec
}

// State converts the record back into a transaction state
func (r *TransactionRecord) State() transaction.State {
	return transaction.State{
		ID:            r.ID,
		OrderType:     r.OrderType,
		Direction:     order.Direction(r.Direction),
		HostID:        r.HostID,
		PartnerID:     r.PartnerID,
		UserID:        r.UserID,
		TransactionID: r.TransactionID,
		Nonce:         r.Nonce,
		Digest:        r.Digest,
		SegmentNumber: r.SegmentNumber,
		NumSegments:   r.NumSegments,
		Phase:         transaction.Phase(r.Phase),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

// Checksum returns the hex SHA-256 of data
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
