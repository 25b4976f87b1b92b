package banktest

import (
	"github.com/sirosfoundation/go-ebics/pkg/identity"
	"github.com/sirosfoundation/go-ebics/pkg/security"
)

// DefaultURL is the endpoint placed in identities created by the fixture
const DefaultURL = "https://ebics.bank.test/ebicsweb"

// Enroll registers subscriber keys as if INI and HIA had been processed
func (b *Bank) Enroll(partnerID, userID string, signature, authentication, encryption *security.KeyMaterial) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[subscriberKey(partnerID, userID)] = &Subscriber{
		PartnerID:      partnerID,
		UserID:         userID,
		Signature:      signature.PublicOnly(),
		Authentication: authentication.PublicOnly(),
		Encryption:     encryption.PublicOnly(),
	}
}

// NewUser generates fresh A006, X002 and E002 keys for a user
func NewUser(partnerID, userID string) (identity.User, error) {
	sig, err := security.GenerateKeyPair(security.DefaultKeySize, security.VersionA006)
	if err != nil {
		return identity.User{}, err
	}
	auth, err := security.GenerateKeyPair(security.DefaultKeySize, security.VersionX002)
	if err != nil {
		return identity.User{}, err
	}
	enc, err := security.GenerateKeyPair(security.DefaultKeySize, security.VersionE002)
	if err != nil {
		return identity.User{}, err
	}
	return identity.User{PartnerID: partnerID, UserID: userID}.WithKeys(sig, auth, enc), nil
}

// Bank returns the bank as the client sees it before HPB
func (b *Bank) Bank() identity.Bank {
	return identity.Bank{HostID: b.HostID, URL: DefaultURL}
}

// NewIdentity returns an initialized subscriber whose keys are enrolled
// and who already knows the bank keys
func (b *Bank) NewIdentity(partnerID, userID string) (*identity.Identity, error) {
	user, err := NewUser(partnerID, userID)
	if err != nil {
		return nil, err
	}
	b.Enroll(partnerID, userID, user.SignatureKey, user.AuthenticationKey, user.EncryptionKey)
	return &identity.Identity{
		User:    user.WithINI().WithHIA(),
		Partner: identity.Partner{PartnerID: partnerID},
		Bank:    b.Bank().WithKeys(b.Encryption, b.Authentication),
	}, nil
}
