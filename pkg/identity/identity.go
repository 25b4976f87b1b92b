package identity

import (
	"errors"
	"fmt"

	"github.com/sirosfoundation/go-ebics/pkg/security"
)

// UserStatus is derived from the user's handshake flags
type UserStatus int

const (
	StatusNew UserStatus = iota
	StatusPartlyInitializedINI
	StatusPartlyInitializedHIA
	StatusInitialized
	StatusSuspendedSPR
	StatusSuspendedBank
	StatusSuspendedFailedAttempts
)

var statusNames = map[UserStatus]string{
	StatusNew:                     "NEW",
	StatusPartlyInitializedINI:    "PARTLY_INITIALIZED_INI",
	StatusPartlyInitializedHIA:    "PARTLY_INITIALIZED_HIA",
	StatusInitialized:             "INITIALIZED",
	StatusSuspendedSPR:            "SUSPENDED_SPR",
	StatusSuspendedBank:           "SUSPENDED_BANK",
	StatusSuspendedFailedAttempts: "SUSPENDED_FAILED_ATTEMPTS",
}

func (s UserStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("UserStatus(%d)", int(s))
}

// IsSuspended reports whether the status is one of the suspended states
func (s UserStatus) IsSuspended() bool {
	return s >= StatusSuspendedSPR
}

// Suspension records why a user was suspended
type Suspension string

const (
	NotSuspended              Suspension = ""
	SuspendedBySPR            Suspension = "spr"
	SuspendedByBank           Suspension = "bank"
	SuspendedByFailedAttempts Suspension = "failed-attempts"
)

// ErrInvalidIdentity is returned when an identity lacks required fields
var ErrInvalidIdentity = errors.New("invalid identity")

// User is an EBICS subscriber
type User struct {
	UserID    string
	PartnerID string
	Name      string
	// SystemID identifies a technical subscriber, if any
	SystemID string

	SignatureKey      *security.KeyMaterial
	AuthenticationKey *security.KeyMaterial
	EncryptionKey     *security.KeyMaterial

	INIDone    bool
	HIADone    bool
	Suspension Suspension
}

// Status derives the user status. INITIALIZED means both INI and HIA are done.
func (u User) Status() UserStatus {
	switch u.Suspension {
	case SuspendedBySPR:
		return StatusSuspendedSPR
	case SuspendedByBank:
		return StatusSuspendedBank
	case SuspendedByFailedAttempts:
		return StatusSuspendedFailedAttempts
	}
	switch {
	case u.INIDone && u.HIADone:
		return StatusInitialized
	case u.INIDone:
		return StatusPartlyInitializedINI
	case u.HIADone:
		return StatusPartlyInitializedHIA
	default:
		return StatusNew
	}
}

// WithINI returns the user with the INI step completed
func (u User) WithINI() User {
	u.INIDone = true
	return u
}

// WithHIA returns the user with the HIA step completed
func (u User) WithHIA() User {
	u.HIADone = true
	return u
}

// WithSuspended returns the user in a suspended state
func (u User) WithSuspended(reason Suspension) User {
	u.Suspension = reason
	return u
}

// Reset returns the user in state NEW, ready for a new INI/HIA round
func (u User) Reset() User {
	u.INIDone = false
	u.HIADone = false
	u.Suspension = NotSuspended
	return u
}

// WithKeys returns the user with replaced key material
func (u User) WithKeys(signature, authentication, encryption *security.KeyMaterial) User {
	u.SignatureKey = signature
	u.AuthenticationKey = authentication
	u.EncryptionKey = encryption
	return u
}

// Validate checks identifiers and key versions
func (u User) Validate() error {
	if u.UserID == "" || u.PartnerID == "" {
		return fmt.Errorf("%w: user and partner ids are required", ErrInvalidIdentity)
	}
	if u.SignatureKey != nil && !security.IsSignatureVersion(u.SignatureKey.Version) {
		return fmt.Errorf("%w: %w: %q", ErrInvalidIdentity, security.ErrUnsupportedSignatureVersion, u.SignatureKey.Version)
	}
	if u.AuthenticationKey != nil && u.AuthenticationKey.Version != security.VersionX002 {
		return fmt.Errorf("%w: authentication key version %q", ErrInvalidIdentity, u.AuthenticationKey.Version)
	}
	if u.EncryptionKey != nil && u.EncryptionKey.Version != security.VersionE002 {
		return fmt.Errorf("%w: encryption key version %q", ErrInvalidIdentity, u.EncryptionKey.Version)
	}
	return nil
}

// HasKeys reports whether all three private keys are available
func (u User) HasKeys() bool {
	return u.SignatureKey.HasPrivate() && u.AuthenticationKey.HasPrivate() && u.EncryptionKey.HasPrivate()
}

// Account is bank account routing metadata
type Account struct {
	ID          string
	IBAN        string
	BIC         string
	Currency    string
	Description string
}

// Partner is the EBICS customer the user acts for
type Partner struct {
	PartnerID string
	Name      string
	Accounts  []Account
}

// Account finds an account by id
func (p Partner) Account(id string) (Account, bool) {
	for _, a := range p.Accounts {
		if a.ID == id {
			return a, true
		}
	}
	return Account{}, false
}

// Bank is the EBICS host
type Bank struct {
	HostID string
	Name   string
	URL    string

	EncryptionKey     *security.KeyMaterial
	AuthenticationKey *security.KeyMaterial

	// Pinned digests from the bank's initialization letter
	EncryptionDigest     []byte
	AuthenticationDigest []byte
}

// HasKeys reports whether the bank keys have been fetched
func (b Bank) HasKeys() bool {
	return b.EncryptionKey != nil && b.AuthenticationKey != nil
}

// WithKeys returns the bank with new public keys. Private halves are dropped.
func (b Bank) WithKeys(encryption, authentication *security.KeyMaterial) Bank {
	b.EncryptionKey = encryption.PublicOnly()
	b.AuthenticationKey = authentication.PublicOnly()
	return b
}

// Identity bundles everything a request needs to know about its parties
type Identity struct {
	User    User
	Partner Partner
	Bank    Bank
}

// Key identifies the subscriber for locking and persistence
func (id *Identity) Key() string {
	return id.Bank.HostID + "/" + id.User.PartnerID + "/" + id.User.UserID
}

// Validate checks that the identity is usable for requests
func (id *Identity) Validate() error {
	if id.Bank.HostID == "" {
		return fmt.Errorf("%w: host id is required", ErrInvalidIdentity)
	}
	if id.Bank.URL == "" {
		return fmt.Errorf("%w: bank url is required", ErrInvalidIdentity)
	}
	if id.Partner.PartnerID != "" && id.Partner.PartnerID != id.User.PartnerID {
		return fmt.Errorf("%w: partner %q does not match user partner %q", ErrInvalidIdentity, id.Partner.PartnerID, id.User.PartnerID)
	}
	return id.User.Validate()
}

// WithUser returns a copy with the user replaced
func (id *Identity) WithUser(u User) *Identity {
	next := *id
	next.User = u
	return &next
}

// WithBank returns a copy with the bank replaced
func (id *Identity) WithBank(b Bank) *Identity {
	next := *id
	next.Bank = b
	return &next
}
