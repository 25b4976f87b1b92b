package keystore

import (
	"fmt"

	"github.com/sirosfoundation/go-ebics/internal/config"
)

// NewProvider creates a Provider based on the configuration
func NewProvider(cfg *config.KeysConfig) (Provider, error) {
	switch cfg.Mode {
	case "pkcs11":
		return newPKCS11Provider(cfg)
	case "sealed":
		return NewSealedProvider(cfg.Sealed.Dir, cfg.Sealed.Passphrase, DefaultKDFParams)
	case "file":
		return NewFileProvider(cfg.File.Dir)
	default:
		return nil, fmt.Errorf("unknown key mode: %s", cfg.Mode)
	}
}

func newPKCS11Provider(cfg *config.KeysConfig) (Provider, error) {
	p11cfg := &PKCS11Config{
		ModulePath:      cfg.PKCS11.ModulePath,
		SlotLabel:       cfg.PKCS11.SlotLabel,
		PIN:             cfg.PKCS11.PIN,
		KeyLabelPattern: cfg.PKCS11.KeyLabelPattern,
	}
	if cfg.PKCS11.SlotID > 0 {
		slotID := cfg.PKCS11.SlotID
		p11cfg.SlotID = &slotID
	}
	p, err := NewPKCS11Provider(p11cfg)
	if err != nil {
		return nil, err
	}
	return p, nil
}
