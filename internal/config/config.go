// Package config handles configuration loading for the EBICS client.
//
// Configuration is loaded from a YAML file with support for environment
// variable expansion (${VAR} or $VAR syntax). This allows secrets like the
// keystore passphrase or a PKCS#11 PIN to be injected at runtime.
//
// # Configuration Sections
//
//   - bank: host id, URL and the bank key digests from the initialization letter
//   - user: partner and user ids, accounts, signature version
//   - product: product name and language sent in every request header
//   - transport: HTTPS timeouts, CA bundle, response size limit
//   - keys: private key storage (file, sealed, or pkcs11)
//   - storage: record storage (memory, file, or mongodb)
//   - log: log level and format
//   - engine: transaction engine behaviour
//
// # Example Configuration
//
//	bank:
//	  hostId: EBIXHOST
//	  url: https://ebics.bank.example/ebicsweb
//	  authenticationDigest: 7b1d...
//	  encryptionDigest: 91c4...
//
//	user:
//	  partnerId: PARTNER1
//	  userId: USER1
//
//	keys:
//	  mode: sealed
//	  sealed:
//	    dir: /var/lib/ebics/keys
//	    passphrase: ${EBICS_KEY_PASSPHRASE}
//
//	storage:
//	  type: file
//	  file:
//	    dir: /var/lib/ebics/data
//
// See [Load] for loading configuration from a file.
package config

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure
type Config struct {
	Bank      BankConfig      `yaml:"bank"`
	User      UserConfig      `yaml:"user"`
	Product   ProductConfig   `yaml:"product"`
	Transport TransportConfig `yaml:"transport"`
	Keys      KeysConfig      `yaml:"keys"`
	Storage   StorageConfig   `yaml:"storage"`
	Log       LogConfig       `yaml:"log"`
	Engine    EngineConfig    `yaml:"engine"`
}

// BankConfig identifies the bank host
type BankConfig struct {
	HostID string `yaml:"hostId"`
	Name   string `yaml:"name"`
	URL    string `yaml:"url"`
	// Hex SHA-256 digests of the bank keys, as printed on the bank letter.
	// When set, HPB refuses keys that do not match.
	AuthenticationDigest string `yaml:"authenticationDigest"`
	EncryptionDigest     string `yaml:"encryptionDigest"`
}

// UserConfig identifies the subscriber
type UserConfig struct {
	PartnerID   string          `yaml:"partnerId"`
	PartnerName string          `yaml:"partnerName"`
	UserID      string          `yaml:"userId"`
	SystemID    string          `yaml:"systemId"`
	Name        string          `yaml:"name"`
	Accounts    []AccountConfig `yaml:"accounts"`
	// SignatureVersion is A005 or A006
	SignatureVersion string `yaml:"signatureVersion"`
	KeySize          int    `yaml:"keySize"`
}

// AccountConfig describes one partner account
type AccountConfig struct {
	ID          string `yaml:"id"`
	IBAN        string `yaml:"iban"`
	BIC         string `yaml:"bic"`
	Currency    string `yaml:"currency"`
	Description string `yaml:"description"`
}

// ProductConfig is the product element of request headers
type ProductConfig struct {
	Name        string `yaml:"name"`
	Language    string `yaml:"language"`
	InstituteID string `yaml:"instituteId"`
}

// TransportConfig holds HTTPS client settings
type TransportConfig struct {
	Timeout            time.Duration `yaml:"timeout"`
	CAFile             string        `yaml:"caFile"`
	InsecureSkipVerify bool          `yaml:"insecureSkipVerify"`
	UserAgent          string        `yaml:"userAgent"`
	MaxResponseSize    int64         `yaml:"maxResponseSize"`
}

// KeysConfig holds private key storage settings
type KeysConfig struct {
	// Mode determines how private keys are kept
	// - "file": PKCS#8 PEM files (development only)
	// - "sealed": PEM encrypted under a passphrase
	// - "pkcs11": keys on a PKCS#11 token (HSM/smart card)
	Mode string `yaml:"mode"`

	File   FileKeyConfig   `yaml:"file"`
	Sealed SealedKeyConfig `yaml:"sealed"`
	PKCS11 PKCS11Config    `yaml:"pkcs11"`
}

// FileKeyConfig holds file-based key settings (development only)
type FileKeyConfig struct {
	Dir string `yaml:"dir"`
}

// SealedKeyConfig holds passphrase-sealed key settings
type SealedKeyConfig struct {
	Dir        string `yaml:"dir"`
	Passphrase string `yaml:"passphrase"`
}

// PKCS11Config holds PKCS#11 HSM settings
type PKCS11Config struct {
	// Path to the PKCS#11 library (.so/.dylib/.dll)
	ModulePath string `yaml:"modulePath"`
	// Slot ID or label to use
	SlotID    uint   `yaml:"slotId"`
	SlotLabel string `yaml:"slotLabel"`
	// PIN for authentication (can be env var reference like ${HSM_PIN})
	PIN string `yaml:"pin"`
	// Key labels (pattern: {user-id}-{role})
	KeyLabelPattern string `yaml:"keyLabelPattern"`
}

// StorageConfig holds record storage settings
type StorageConfig struct {
	// Type is memory, file or mongodb
	Type    string        `yaml:"type"`
	File    FileConfig    `yaml:"file"`
	MongoDB MongoDBConfig `yaml:"mongodb"`
	// ArchiveDownloads keeps downloaded order data in the payload store
	ArchiveDownloads bool `yaml:"archiveDownloads"`
}

// FileConfig holds file store settings
type FileConfig struct {
	Dir string `yaml:"dir"`
}

// MongoDBConfig holds MongoDB connection settings
type MongoDBConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
	GridFS   struct {
		BucketName     string `yaml:"bucketName"`
		ChunkSizeBytes int    `yaml:"chunkSizeBytes"`
	} `yaml:"gridfs"`
}

// LogConfig holds logging settings
type LogConfig struct {
	// Level is debug, info, warn or error
	Level string `yaml:"level"`
	// Format is text or json
	Format string `yaml:"format"`
}

// EngineConfig holds transaction engine settings
type EngineConfig struct {
	// VerifyResponses checks the bank AuthSignature on transaction responses
	VerifyResponses bool `yaml:"verifyResponses"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes configuration from YAML, expanding environment variables
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.User.SignatureVersion == "" {
		c.User.SignatureVersion = "A006"
	}
	if c.User.KeySize == 0 {
		c.User.KeySize = 2048
	}
	if c.Product.Name == "" {
		c.Product.Name = "go-ebics"
	}
	if c.Product.Language == "" {
		c.Product.Language = "en"
	}
	if c.Transport.Timeout == 0 {
		c.Transport.Timeout = 60 * time.Second
	}
	if c.Transport.MaxResponseSize == 0 {
		c.Transport.MaxResponseSize = 16 << 20
	}
	if c.Keys.Mode == "" {
		c.Keys.Mode = "file" // Default to file for development
	}
	if c.Keys.File.Dir == "" {
		c.Keys.File.Dir = "./keys"
	}
	if c.Keys.Sealed.Dir == "" {
		c.Keys.Sealed.Dir = "./keys"
	}
	if c.Keys.PKCS11.KeyLabelPattern == "" {
		c.Keys.PKCS11.KeyLabelPattern = "{user-id}-{role}"
	}
	if c.Storage.Type == "" {
		c.Storage.Type = "file"
	}
	if c.Storage.File.Dir == "" {
		c.Storage.File.Dir = "./data"
	}
	if c.Storage.MongoDB.Database == "" {
		c.Storage.MongoDB.Database = "ebics"
	}
	if c.Storage.MongoDB.GridFS.BucketName == "" {
		c.Storage.MongoDB.GridFS.BucketName = "payloads"
	}
	if c.Storage.MongoDB.GridFS.ChunkSizeBytes == 0 {
		c.Storage.MongoDB.GridFS.ChunkSizeBytes = 261120 // 255KB
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) validate() error {
	if c.Bank.HostID == "" {
		return fmt.Errorf("bank.hostId is required")
	}
	if c.Bank.URL == "" {
		return fmt.Errorf("bank.url is required")
	}
	if u, err := url.Parse(c.Bank.URL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("bank.url must be an absolute URL, got '%s'", c.Bank.URL)
	}
	for name, digest := range map[string]string{
		"bank.authenticationDigest": c.Bank.AuthenticationDigest,
		"bank.encryptionDigest":     c.Bank.EncryptionDigest,
	} {
		if digest == "" {
			continue
		}
		if b, err := hex.DecodeString(digest); err != nil || len(b) != 32 {
			return fmt.Errorf("%s must be a hex SHA-256 digest", name)
		}
	}

	if c.User.PartnerID == "" {
		return fmt.Errorf("user.partnerId is required")
	}
	if c.User.UserID == "" {
		return fmt.Errorf("user.userId is required")
	}
	switch c.User.SignatureVersion {
	case "A005", "A006":
	default:
		return fmt.Errorf("user.signatureVersion must be 'A005' or 'A006', got '%s'", c.User.SignatureVersion)
	}
	if c.User.KeySize < 2048 {
		return fmt.Errorf("user.keySize must be at least 2048, got %d", c.User.KeySize)
	}

	switch c.Keys.Mode {
	case "file", "sealed", "pkcs11":
		// Valid modes
	default:
		return fmt.Errorf("keys.mode must be 'file', 'sealed', or 'pkcs11', got '%s'", c.Keys.Mode)
	}
	if c.Keys.Mode == "sealed" && c.Keys.Sealed.Passphrase == "" {
		return fmt.Errorf("keys.sealed.passphrase is required when mode is 'sealed'")
	}
	if c.Keys.Mode == "pkcs11" && c.Keys.PKCS11.ModulePath == "" {
		return fmt.Errorf("keys.pkcs11.modulePath is required when mode is 'pkcs11'")
	}

	switch c.Storage.Type {
	case "memory", "file":
	case "mongodb":
		if c.Storage.MongoDB.URI == "" {
			return fmt.Errorf("storage.mongodb.uri is required when type is 'mongodb'")
		}
	default:
		return fmt.Errorf("storage.type must be 'memory', 'file', or 'mongodb', got '%s'", c.Storage.Type)
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be 'text' or 'json', got '%s'", c.Log.Format)
	}

	return nil
}
