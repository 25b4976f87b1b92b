// Package storagetest holds behaviour tests shared by all storage.Store
// implementations.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-ebics/internal/storage"
)

// Run exercises store against the storage.Store contract
func Run(t *testing.T, store storage.Store) {
	t.Run("Identity", func(t *testing.T) { testIdentity(t, store) })
	t.Run("Transaction", func(t *testing.T) { testTransaction(t, store) })
	t.Run("TransactionFilter", func(t *testing.T) { testTransactionFilter(t, store) })
	t.Run("Payload", func(t *testing.T) { testPayload(t, store) })
}

func testIdentity(t *testing.T, store storage.Store) {
	ctx := context.Background()
	require.NoError(t, store.Ping(ctx))

	rec := &storage.IdentityRecord{
		HostID:    "EBIXTEST",
		PartnerID: "PARTNER1",
		UserID:    "USER1",
		BankURL:   "https://bank.example/ebics",
		INIDone:   true,
		Accounts:  []storage.AccountRecord{{ID: "acc1", IBAN: "DE02100100109307118603", Currency: "EUR"}},
		UserKeys: []storage.PublicKeyRecord{
			{Role: storage.RoleSignature, Version: "A006", PKIX: []byte{1, 2, 3}, Digest: "abcd"},
		},
		BankAuthenticationDigest: "00ff",
	}
	require.NoError(t, store.SaveIdentity(ctx, rec))
	assert.Equal(t, "EBIXTEST/PARTNER1/USER1", rec.ID)
	created := rec.CreatedAt
	assert.False(t, created.IsZero())

	got, err := store.LoadIdentity(ctx, "EBIXTEST", "PARTNER1", "USER1")
	require.NoError(t, err)
	assert.Equal(t, rec.BankURL, got.BankURL)
	assert.True(t, got.INIDone)
	assert.False(t, got.HIADone)
	assert.Equal(t, rec.Accounts, got.Accounts)
	require.Len(t, got.UserKeys, 1)
	assert.Equal(t, []byte{1, 2, 3}, got.UserKeys[0].PKIX)
	assert.Equal(t, "00ff", got.BankAuthenticationDigest)

	// an update keeps the creation time
	rec.HIADone = true
	rec.CreatedAt = time.Time{}
	require.NoError(t, store.SaveIdentity(ctx, rec))
	got, err = store.LoadIdentity(ctx, "EBIXTEST", "PARTNER1", "USER1")
	require.NoError(t, err)
	assert.True(t, got.HIADone)
	assert.WithinDuration(t, created, got.CreatedAt, time.Millisecond)

	require.NoError(t, store.SaveIdentity(ctx, &storage.IdentityRecord{HostID: "EBIXTEST", PartnerID: "PARTNER1", UserID: "USER2"}))
	list, err := store.ListIdentities(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "USER1", list[0].UserID)
	assert.Equal(t, "USER2", list[1].UserID)

	require.NoError(t, store.DeleteIdentity(ctx, "EBIXTEST", "PARTNER1", "USER2"))
	_, err = store.LoadIdentity(ctx, "EBIXTEST", "PARTNER1", "USER2")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, store.DeleteIdentity(ctx, "EBIXTEST", "PARTNER1", "USER2"), storage.ErrNotFound)
}

func testTransaction(t *testing.T, store storage.Store) {
	ctx := context.Background()

	rec := &storage.TransactionRecord{
		TransactionID: "0123456789ABCDEF0123456789ABCDEF",
		OrderType:     "CCT",
		Direction:     "upload",
		HostID:        "EBIXTEST",
		PartnerID:     "PARTNER1",
		UserID:        "USER1",
		Nonce:         []byte("0123456789abcdef"),
		SegmentNumber: 2,
		NumSegments:   3,
		Phase:         "Transfer",
	}
	require.NoError(t, store.SaveTransaction(ctx, rec))
	require.NotEmpty(t, rec.ID)

	got, err := store.LoadTransaction(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Nonce, got.Nonce)
	assert.Equal(t, 2, got.SegmentNumber)

	// lookup by bank transaction id
	got, err = store.LoadTransaction(ctx, rec.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)

	rec.SegmentNumber = 3
	rec.Phase = storage.PhaseDone
	rec.Nonce = nil
	require.NoError(t, store.SaveTransaction(ctx, rec))
	got, err = store.LoadTransaction(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.PhaseDone, got.Phase)
	assert.Empty(t, got.Nonce)

	require.NoError(t, store.DeleteTransaction(ctx, rec.ID))
	_, err = store.LoadTransaction(ctx, rec.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, store.DeleteTransaction(ctx, rec.ID), storage.ErrNotFound)
}

func testTransactionFilter(t *testing.T, store storage.Store) {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	records := []*storage.TransactionRecord{
		{ID: "t1", OrderType: "CCT", HostID: "H1", UserID: "U1", Phase: "Transfer", UpdatedAt: base.Add(1 * time.Second)},
		{ID: "t2", OrderType: "STA", HostID: "H1", UserID: "U1", Phase: storage.PhaseDone, UpdatedAt: base.Add(2 * time.Second)},
		{ID: "t3", OrderType: "CCT", HostID: "H1", UserID: "U2", Phase: storage.PhaseDone, UpdatedAt: base.Add(3 * time.Second)},
		{ID: "t4", OrderType: "CCT", HostID: "H2", UserID: "U1", Phase: "Initialisation", UpdatedAt: base.Add(4 * time.Second)},
	}
	for _, rec := range records {
		require.NoError(t, store.SaveTransaction(ctx, rec))
	}
	t.Cleanup(func() {
		for _, rec := range records {
			_ = store.DeleteTransaction(ctx, rec.ID)
		}
	})

	ids := func(recs []*storage.TransactionRecord) []string {
		var out []string
		for _, r := range recs {
			out = append(out, r.ID)
		}
		return out
	}

	tests := []struct {
		name   string
		filter *storage.TransactionFilter
		want   []string
	}{
		{"all", nil, []string{"t4", "t3", "t2", "t1"}},
		{"host", &storage.TransactionFilter{HostID: "H1"}, []string{"t3", "t2", "t1"}},
		{"user and order type", &storage.TransactionFilter{UserID: "U1", OrderType: "CCT"}, []string{"t4", "t1"}},
		{"incomplete", &storage.TransactionFilter{Incomplete: true}, []string{"t4", "t1"}},
		{"phase", &storage.TransactionFilter{Phase: storage.PhaseDone}, []string{"t3", "t2"}},
		{"limit", &storage.TransactionFilter{Limit: 2}, []string{"t4", "t3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ListTransactions(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func testPayload(t *testing.T, store storage.Store) {
	ctx := context.Background()
	data := []byte("<Document><BkToCstmrStmt/></Document>")

	id, err := store.StorePayload(ctx, &storage.PayloadData{
		OrderType:     "C53",
		HostID:        "EBIXTEST",
		UserID:        "USER1",
		TransactionID: "0123456789ABCDEF0123456789ABCDEF",
		Data:          data,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := store.GetPayload(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, data, got.Data)
	assert.Equal(t, "C53", got.OrderType)
	assert.Equal(t, storage.Checksum(data), got.Checksum)

	require.NoError(t, store.DeletePayload(ctx, id))
	_, err = store.GetPayload(ctx, id)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, store.DeletePayload(ctx, id), storage.ErrNotFound)
}
