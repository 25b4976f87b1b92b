package ebics

import (
	"context"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/sirosfoundation/go-ebics/internal/keystore"
	"github.com/sirosfoundation/go-ebics/internal/storage"
	"github.com/sirosfoundation/go-ebics/pkg/identity"
	"github.com/sirosfoundation/go-ebics/pkg/message"
	"github.com/sirosfoundation/go-ebics/pkg/security"
	"github.com/sirosfoundation/go-ebics/pkg/transaction"
)

// Identity loads the subscriber with its private keys attached.
// Bank URL, name and pinned digests come from configuration.
func (c *Client) Identity(ctx context.Context) (*identity.Identity, error) {
	rec, err := c.store.LoadIdentity(ctx, c.cfg.Bank.HostID, c.cfg.User.PartnerID, c.cfg.User.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotEnrolled
	}
	if err != nil {
		return nil, fmt.Errorf("loading subscriber: %w", err)
	}
	id, err := rec.Identity()
	if err != nil {
		return nil, fmt.Errorf("loading subscriber: %w", err)
	}

	if err := c.applyBankConfig(&id.Bank); err != nil {
		return nil, err
	}

	userID := id.User.UserID
	for _, k := range []struct {
		role keystore.Role
		km   **security.KeyMaterial
	}{
		{keystore.RoleSignature, &id.User.SignatureKey},
		{keystore.RoleAuthentication, &id.User.AuthenticationKey},
		{keystore.RoleEncryption, &id.User.EncryptionKey},
	} {
		if *k.km == nil {
			return nil, fmt.Errorf("subscriber record has no %s key", k.role)
		}
		priv, err := c.keys.PrivateKey(ctx, userID, k.role)
		if err != nil {
			return nil, fmt.Errorf("loading %s key: %w", k.role, err)
		}
		withPriv, err := (*k.km).WithPrivate(priv)
		if err != nil {
			return nil, fmt.Errorf("loading %s key: %w", k.role, err)
		}
		*k.km = withPriv
	}
	return id, nil
}

func (c *Client) applyBankConfig(b *identity.Bank) error {
	b.URL = c.cfg.Bank.URL
	if c.cfg.Bank.Name != "" {
		b.Name = c.cfg.Bank.Name
	}
	var err error
	if c.cfg.Bank.AuthenticationDigest != "" {
		if b.AuthenticationDigest, err = hex.DecodeString(c.cfg.Bank.AuthenticationDigest); err != nil {
			return fmt.Errorf("bank authentication digest: %w", err)
		}
	}
	if c.cfg.Bank.EncryptionDigest != "" {
		if b.EncryptionDigest, err = hex.DecodeString(c.cfg.Bank.EncryptionDigest); err != nil {
			return fmt.Errorf("bank encryption digest: %w", err)
		}
	}
	return nil
}

func (c *Client) saveIdentity(ctx context.Context, id *identity.Identity) error {
	rec, err := storage.NewIdentityRecord(id)
	if err != nil {
		return err
	}
	if err := c.store.SaveIdentity(ctx, rec); err != nil {
		return fmt.Errorf("saving subscriber: %w", err)
	}
	return nil
}

// CreateUser sets up a new subscriber. Keys already present in the key
// store (for example on a PKCS#11 token) are used as they are; otherwise
// fresh key pairs are generated and stored.
func (c *Client) CreateUser(ctx context.Context) (*identity.Identity, error) {
	_, err := c.store.LoadIdentity(ctx, c.cfg.Bank.HostID, c.cfg.User.PartnerID, c.cfg.User.UserID)
	if err == nil {
		return nil, ErrAlreadyEnrolled
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("loading subscriber: %w", err)
	}

	userID := c.cfg.User.UserID
	versions := map[keystore.Role]string{
		keystore.RoleSignature:      c.cfg.User.SignatureVersion,
		keystore.RoleAuthentication: security.VersionX002,
		keystore.RoleEncryption:     security.VersionE002,
	}
	material := make(map[keystore.Role]*security.KeyMaterial, len(versions))
	for _, role := range keystore.Roles {
		km, err := c.userKey(ctx, userID, role, versions[role])
		if err != nil {
			return nil, err
		}
		material[role] = km
	}

	user := identity.User{
		UserID:    userID,
		PartnerID: c.cfg.User.PartnerID,
		Name:      c.cfg.User.Name,
		SystemID:  c.cfg.User.SystemID,
	}.WithKeys(material[keystore.RoleSignature], material[keystore.RoleAuthentication], material[keystore.RoleEncryption])

	partner := identity.Partner{PartnerID: c.cfg.User.PartnerID, Name: c.cfg.User.PartnerName}
	for _, a := range c.cfg.User.Accounts {
		partner.Accounts = append(partner.Accounts, identity.Account(a))
	}

	id := &identity.Identity{
		User:    user,
		Partner: partner,
		Bank:    identity.Bank{HostID: c.cfg.Bank.HostID},
	}
	if err := c.applyBankConfig(&id.Bank); err != nil {
		return nil, err
	}
	if err := id.Validate(); err != nil {
		return nil, err
	}
	if err := c.saveIdentity(ctx, id); err != nil {
		return nil, err
	}

	c.logger.Info("subscriber created",
		"host_id", id.Bank.HostID,
		"partner_id", user.PartnerID,
		"user_id", user.UserID,
		"signature_version", user.SignatureKey.Version)
	return id, nil
}

// userKey adopts an existing private key or generates and stores a new one
func (c *Client) userKey(ctx context.Context, userID string, role keystore.Role, version string) (*security.KeyMaterial, error) {
	priv, err := c.keys.PrivateKey(ctx, userID, role)
	switch {
	case err == nil:
		pub, ok := priv.Public().(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("%s key is not an RSA key", role)
		}
		return security.NewKeyMaterial(pub, priv, version, time.Time{})
	case !errors.Is(err, keystore.ErrKeyNotFound):
		return nil, fmt.Errorf("loading %s key: %w", role, err)
	}

	km, err := security.GenerateKeyPair(c.cfg.User.KeySize, version)
	if err != nil {
		return nil, err
	}
	rsaKey, ok := km.Private.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("generated %s key is not an RSA key", role)
	}
	if err := c.keys.StoreKey(ctx, userID, role, rsaKey); err != nil {
		return nil, fmt.Errorf("storing %s key: %w", role, err)
	}
	return km, nil
}

// HEV asks the bank which protocol versions it supports
func (c *Client) HEV(ctx context.Context) (*message.HEVResponse, error) {
	id := &identity.Identity{Bank: identity.Bank{HostID: c.cfg.Bank.HostID, URL: c.cfg.Bank.URL}}
	resp, err := c.engine.Exchange(ctx, id, c.engine.Builder().HEV(c.cfg.Bank.HostID))
	if err != nil {
		return nil, err
	}
	hev, ok := resp.(*message.HEVResponse)
	if !ok {
		return nil, fmt.Errorf("%w: %T", transaction.ErrUnexpectedResponse, resp)
	}
	if err := hev.Err("HEV"); err != nil {
		return nil, err
	}
	return hev, nil
}

// INI sends the signature key
func (c *Client) INI(ctx context.Context) (identity.UserStatus, error) {
	return c.updateUser(ctx, c.handshake.SendINI)
}

// HIA sends the authentication and encryption keys
func (c *Client) HIA(ctx context.Context) (identity.UserStatus, error) {
	return c.updateUser(ctx, c.handshake.SendHIA)
}

// SPR suspends the subscriber at the bank
func (c *Client) SPR(ctx context.Context) (identity.UserStatus, error) {
	return c.updateUser(ctx, c.handshake.LockAccess)
}

func (c *Client) updateUser(ctx context.Context, step func(context.Context, *identity.Identity) (identity.User, error)) (identity.UserStatus, error) {
	id, err := c.Identity(ctx)
	if err != nil {
		return 0, err
	}
	user, err := step(ctx, id)
	if err != nil {
		return id.User.Status(), err
	}
	if err := c.saveIdentity(ctx, id.WithUser(user)); err != nil {
		return user.Status(), err
	}
	return user.Status(), nil
}

// HPB downloads the bank keys, checks them against the pinned digests
// and stores them
func (c *Client) HPB(ctx context.Context) (identity.Bank, error) {
	id, err := c.Identity(ctx)
	if err != nil {
		return identity.Bank{}, err
	}
	bank, err := c.handshake.FetchBankKeys(ctx, id)
	if err != nil {
		return identity.Bank{}, err
	}
	if err := c.saveIdentity(ctx, id.WithBank(bank)); err != nil {
		return identity.Bank{}, err
	}
	return bank, nil
}

// Reset returns the subscriber to StatusNew, keeping keys and bank keys.
// Use it after the bank has reset the subscriber.
func (c *Client) Reset(ctx context.Context) error {
	rec, err := c.store.LoadIdentity(ctx, c.cfg.Bank.HostID, c.cfg.User.PartnerID, c.cfg.User.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotEnrolled
	}
	if err != nil {
		return err
	}
	id, err := rec.Identity()
	if err != nil {
		return err
	}
	return c.saveIdentity(ctx, id.WithUser(id.User.Reset()))
}
