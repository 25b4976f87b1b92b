package ebics

import (
	"context"
	"crypto/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-ebics/internal/banktest"
	"github.com/sirosfoundation/go-ebics/internal/config"
	"github.com/sirosfoundation/go-ebics/internal/keystore"
	"github.com/sirosfoundation/go-ebics/internal/storage"
	"github.com/sirosfoundation/go-ebics/internal/storage/memory"
	"github.com/sirosfoundation/go-ebics/pkg/identity"
	"github.com/sirosfoundation/go-ebics/pkg/message"
	"github.com/sirosfoundation/go-ebics/pkg/order"
	"github.com/sirosfoundation/go-ebics/pkg/segment"
	"github.com/sirosfoundation/go-ebics/pkg/transaction"
)

type fixture struct {
	bank   *banktest.Bank
	store  *memory.Store
	keys   keystore.Provider
	cfg    *config.Config
	client *Client
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(`
bank:
  hostId: EBIXTEST
  url: ` + banktest.DefaultURL + `
user:
  partnerId: PARTNER1
  userId: USER1
storage:
  type: memory
  archiveDownloads: true
keys:
  mode: file
  file:
    dir: ` + t.TempDir() + `
engine:
  verifyResponses: true
`))
	require.NoError(t, err)
	return cfg
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	bank, err := banktest.New("EBIXTEST")
	require.NoError(t, err)
	bank.AddSubscriber("PARTNER1", "USER1")

	cfg := testConfig(t)
	keys, err := keystore.NewFileProvider(cfg.Keys.File.Dir)
	require.NoError(t, err)
	store := memory.NewStore()

	client, err := New(context.Background(), cfg,
		WithTransport(bank),
		WithStore(store),
		WithKeyProvider(keys),
	)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close(context.Background()) })

	return &fixture{bank: bank, store: store, keys: keys, cfg: cfg, client: client}
}

// enroll runs the full key handshake
func (f *fixture) enroll(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := f.client.CreateUser(ctx)
	require.NoError(t, err)
	_, err = f.client.INI(ctx)
	require.NoError(t, err)
	_, err = f.client.HIA(ctx)
	require.NoError(t, err)
	_, err = f.client.HPB(ctx)
	require.NoError(t, err)
}

func TestClient_Lifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.client.Identity(ctx)
	assert.ErrorIs(t, err, ErrNotEnrolled)

	id, err := f.client.CreateUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, identity.StatusNew, id.User.Status())
	assert.Equal(t, "A006", id.User.SignatureKey.Version)

	_, err = f.client.CreateUser(ctx)
	assert.ErrorIs(t, err, ErrAlreadyEnrolled)

	status, err := f.client.INI(ctx)
	require.NoError(t, err)
	assert.Equal(t, identity.StatusPartlyInitializedINI, status)

	status, err = f.client.HIA(ctx)
	require.NoError(t, err)
	assert.Equal(t, identity.StatusInitialized, status)

	bank, err := f.client.HPB(ctx)
	require.NoError(t, err)
	assert.Equal(t, f.bank.Authentication.Digest, bank.AuthenticationKey.Digest)

	// the stored record now has public keys only, private keys come from the keystore
	rec, err := f.store.LoadIdentity(ctx, "EBIXTEST", "PARTNER1", "USER1")
	require.NoError(t, err)
	assert.Len(t, rec.UserKeys, 3)
	assert.Len(t, rec.BankKeys, 2)

	loaded, err := f.client.Identity(ctx)
	require.NoError(t, err)
	assert.True(t, loaded.User.HasKeys())
	assert.True(t, loaded.Bank.HasKeys())
	assert.Equal(t, id.User.SignatureKey.Digest, loaded.User.SignatureKey.Digest)

	assert.Equal(t, []string{"INI", "HIA", "HPB"}, f.bank.Requests())
}

func TestClient_CreateUserAdoptsExistingKeys(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.client.CreateUser(ctx)
	require.NoError(t, err)
	require.NoError(t, f.store.DeleteIdentity(ctx, "EBIXTEST", "PARTNER1", "USER1"))

	second, err := f.client.CreateUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.User.SignatureKey.Digest, second.User.SignatureKey.Digest)
	assert.Equal(t, first.User.EncryptionKey.Digest, second.User.EncryptionKey.Digest)
}

func TestClient_HEV(t *testing.T) {
	f := newFixture(t)

	hev, err := f.client.HEV(context.Background())
	require.NoError(t, err)
	assert.True(t, hev.Supports("H004"))
}

func TestClient_UploadAndDownload(t *testing.T) {
	f := newFixture(t)
	f.enroll(t)
	ctx := context.Background()

	state, err := f.client.Upload(ctx, "CCT", order.Params{}, []byte("<Document/>"))
	require.NoError(t, err)
	assert.True(t, state.Completed())

	uploads := f.bank.Uploads()
	require.Len(t, uploads, 1)
	assert.Equal(t, "CCT", uploads[0].OrderType)

	statement := []byte("<Document><BkToCstmrStmt/></Document>")
	f.bank.QueueDownload("C53", statement)

	data, err := f.client.Download(ctx, "C53", order.Params{})
	require.NoError(t, err)
	assert.Equal(t, statement, data)

	recs, err := f.client.Transactions(ctx, &storage.TransactionFilter{OrderType: "C53"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, storage.PhaseDone, recs[0].Phase)
	assert.Empty(t, recs[0].Nonce)
	require.NotEmpty(t, recs[0].PayloadID)

	archived, err := f.client.Payload(ctx, recs[0].PayloadID)
	require.NoError(t, err)
	assert.Equal(t, statement, archived.Data)
	assert.Equal(t, recs[0].TransactionID, archived.TransactionID)

	// nothing left to fetch
	data, err = f.client.Download(ctx, "C53", order.Params{})
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestClient_UnknownOrderType(t *testing.T) {
	f := newFixture(t)
	f.enroll(t)

	_, err := f.client.Upload(context.Background(), "XYZ", order.Params{}, []byte("x"))
	assert.Error(t, err)
	assert.Empty(t, f.bank.Uploads())
}

func TestClient_ResumeUpload(t *testing.T) {
	f := newFixture(t)
	f.enroll(t)
	ctx := context.Background()

	// random data does not compress, so this spans three segments
	payload := make([]byte, 5*segment.SegmentSize/2)
	_, err := rand.Read(payload)
	require.NoError(t, err)
	f.bank.FailNext(message.PhaseTransfer, 2, "061099")

	_, err = f.client.Upload(ctx, "CCT", order.Params{}, payload)
	var transferErr *transaction.TransferError
	require.ErrorAs(t, err, &transferErr)

	status, err := f.client.Status(ctx)
	require.NoError(t, err)
	require.Len(t, status.Transactions, 1)
	pending := status.Transactions[0]
	assert.Equal(t, 2, pending.SegmentNumber)
	assert.Len(t, pending.Nonce, 16)
	assert.Contains(t, pending.LastError, "061099")

	state, err := f.client.ResumeUpload(ctx, pending.TransactionID, payload)
	require.NoError(t, err)
	assert.True(t, state.Completed())

	uploads := f.bank.Uploads()
	require.Len(t, uploads, 1)
	assert.Equal(t, payload, uploads[0].Data)

	status, err = f.client.Status(ctx)
	require.NoError(t, err)
	assert.Empty(t, status.Transactions)

	rec, err := f.store.LoadTransaction(ctx, pending.ID)
	require.NoError(t, err)
	assert.Empty(t, rec.Nonce, "completed uploads drop the transaction key")
}

func TestClient_SPRAndReset(t *testing.T) {
	f := newFixture(t)
	f.enroll(t)
	ctx := context.Background()

	status, err := f.client.SPR(ctx)
	require.NoError(t, err)
	assert.Equal(t, identity.StatusSuspendedSPR, status)

	st, err := f.client.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, identity.StatusSuspendedSPR, st.UserStatus)
	assert.True(t, st.BankKeys)
	assert.Len(t, st.Digests, 3)

	require.NoError(t, f.client.Reset(ctx))
	st, err = f.client.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, identity.StatusNew, st.UserStatus)
	assert.True(t, st.BankKeys)
}

func TestClient_PinnedBankKeys(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.cfg.Bank.AuthenticationDigest = strings.Repeat("00", 32)

	_, err := f.client.CreateUser(ctx)
	require.NoError(t, err)
	_, err = f.client.INI(ctx)
	require.NoError(t, err)
	_, err = f.client.HIA(ctx)
	require.NoError(t, err)

	_, err = f.client.HPB(ctx)
	require.Error(t, err)

	st, err := f.client.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.BankKeys, "mismatching keys are not stored")
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	s, err := OpenStore(ctx, &config.StorageConfig{Type: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, s)

	s, err = OpenStore(ctx, &config.StorageConfig{Type: "file", File: config.FileConfig{Dir: t.TempDir()}})
	require.NoError(t, err)
	require.NoError(t, s.Ping(ctx))

	_, err = OpenStore(ctx, &config.StorageConfig{Type: "redis"})
	assert.Error(t, err)
}

func TestHTTPSConfig(t *testing.T) {
	cfg := testConfig(t)
	hc, err := HTTPSConfig(&cfg.Transport)
	require.NoError(t, err)
	assert.Equal(t, cfg.Transport.Timeout, hc.Timeout)
	assert.Nil(t, hc.RootCAs)

	cfg.Transport.CAFile = "/nonexistent/ca.pem"
	_, err = HTTPSConfig(&cfg.Transport)
	assert.ErrorContains(t, err, "CA file")
}
