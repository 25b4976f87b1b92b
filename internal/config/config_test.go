package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimal = `
bank:
  hostId: EBIXHOST
  url: https://ebics.bank.example/ebicsweb
user:
  partnerId: PARTNER1
  userId: USER1
`

func TestLoad_Defaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ebics.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimal), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "EBIXHOST", cfg.Bank.HostID)
	assert.Equal(t, "A006", cfg.User.SignatureVersion)
	assert.Equal(t, 2048, cfg.User.KeySize)
	assert.Equal(t, "go-ebics", cfg.Product.Name)
	assert.Equal(t, "en", cfg.Product.Language)
	assert.Equal(t, 60*time.Second, cfg.Transport.Timeout)
	assert.Equal(t, "file", cfg.Keys.Mode)
	assert.Equal(t, "{user-id}-{role}", cfg.Keys.PKCS11.KeyLabelPattern)
	assert.Equal(t, "file", cfg.Storage.Type)
	assert.Equal(t, "ebics", cfg.Storage.MongoDB.Database)
	assert.Equal(t, 261120, cfg.Storage.MongoDB.GridFS.ChunkSizeBytes)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "reading config file")
}

func TestParse_ExpandsEnvironment(t *testing.T) {
	t.Setenv("EBICS_TEST_PASSPHRASE", "correct horse")
	t.Setenv("EBICS_TEST_MONGO", "mongodb://localhost:27017")

	cfg, err := Parse([]byte(minimal + `
keys:
  mode: sealed
  sealed:
    passphrase: ${EBICS_TEST_PASSPHRASE}
storage:
  type: mongodb
  mongodb:
    uri: $EBICS_TEST_MONGO
transport:
  timeout: 5s
`))
	require.NoError(t, err)
	assert.Equal(t, "correct horse", cfg.Keys.Sealed.Passphrase)
	assert.Equal(t, "mongodb://localhost:27017", cfg.Storage.MongoDB.URI)
	assert.Equal(t, 5*time.Second, cfg.Transport.Timeout)
}

func TestParse_Validation(t *testing.T) {
	const bank = "bank:\n  hostId: H\n  url: https://x.example\n"
	const user = "user:\n  partnerId: P\n  userId: U\n"
	digest := strings.Repeat("ab", 32)

	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{"missing host", user + "bank:\n  url: https://x.example\n", "bank.hostId"},
		{"relative url", user + "bank:\n  hostId: H\n  url: /ebics\n", "bank.url"},
		{"missing user", bank + "user:\n  partnerId: P\n", "user.userId"},
		{"bad digest", user + bank + "  authenticationDigest: zz\n", "bank.authenticationDigest"},
		{"good digest", user + bank + "  encryptionDigest: " + digest + "\n", ""},
		{"signature version", bank + user + "  signatureVersion: A004\n", "user.signatureVersion"},
		{"key size", bank + user + "  keySize: 1024\n", "user.keySize"},
		{"key mode", bank + user + "keys:\n  mode: prf\n", "keys.mode"},
		{"sealed passphrase", bank + user + "keys:\n  mode: sealed\n", "keys.sealed.passphrase"},
		{"pkcs11 module", bank + user + "keys:\n  mode: pkcs11\n", "keys.pkcs11.modulePath"},
		{"storage type", bank + user + "storage:\n  type: redis\n", "storage.type"},
		{"mongodb uri", bank + user + "storage:\n  type: mongodb\n", "storage.mongodb.uri"},
		{"log format", bank + user + "log:\n  format: xml\n", "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
