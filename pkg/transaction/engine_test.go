package transaction

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-ebics/internal/banktest"
	"github.com/sirosfoundation/go-ebics/pkg/identity"
	"github.com/sirosfoundation/go-ebics/pkg/message"
	"github.com/sirosfoundation/go-ebics/pkg/order"
	"github.com/sirosfoundation/go-ebics/pkg/security"
	"github.com/sirosfoundation/go-ebics/pkg/segment"
)

type fixture struct {
	bank   *banktest.Bank
	id     *identity.Identity
	engine *Engine
	states []State
	mu     sync.Mutex
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	bank, err := banktest.New("EBIXTEST")
	require.NoError(t, err)
	id, err := bank.NewIdentity("PARTNER1", "USER1")
	require.NoError(t, err)

	f := &fixture{bank: bank, id: id}
	observer := WithStateObserver(func(ctx context.Context, s State) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.states = append(f.states, s)
		return nil
	})
	f.engine = NewEngine(bank, message.NewBuilder(), append([]Option{observer}, opts...)...)
	return f
}

func randomPayload(t *testing.T, n int) []byte {
	t.Helper()
	buf := make([]byte, n)
	_, err := rand.Read(buf)
	require.NoError(t, err)
	return buf
}

func TestEngine_UploadSingleSegment(t *testing.T) {
	f := newFixture(t)
	payload := []byte(`<?xml version="1.0"?><Document>credit transfer</Document>`)

	state, err := f.engine.Upload(context.Background(), f.id, order.Must("CCT"), order.Params{}, payload)
	require.NoError(t, err)

	assert.True(t, state.Completed())
	assert.Equal(t, 1, state.NumSegments)
	assert.True(t, state.IsLastSegment())
	assert.NotEmpty(t, state.TransactionID)

	uploads := f.bank.Uploads()
	require.Len(t, uploads, 1)
	assert.Equal(t, "CCT", uploads[0].OrderType)
	assert.Equal(t, payload, uploads[0].Data)
}

func TestEngine_UploadMultiSegment(t *testing.T) {
	f := newFixture(t)
	payload := randomPayload(t, 5*segment.SegmentSize/2)

	state, err := f.engine.Upload(context.Background(), f.id, order.Must("CCT"), order.Params{}, payload)
	require.NoError(t, err)
	assert.Equal(t, 3, state.NumSegments)
	assert.Equal(t, 3, state.SegmentNumber)

	assert.Equal(t, []string{
		"CCT Initialisation",
		"CCT Transfer 1",
		"CCT Transfer 2",
		"CCT Transfer 3",
	}, f.bank.Requests())

	uploads := f.bank.Uploads()
	require.Len(t, uploads, 1)
	assert.Equal(t, payload, uploads[0].Data)

	// initialisation, two advances and completion
	require.Len(t, f.states, 4)
	for i := 1; i < len(f.states); i++ {
		assert.GreaterOrEqual(t, f.states[i].SegmentNumber, f.states[i-1].SegmentNumber)
	}
	assert.Equal(t, PhaseDone, f.states[3].Phase)
}

func TestEngine_UploadTransferFailureAndResume(t *testing.T) {
	f := newFixture(t)
	payload := randomPayload(t, 5*segment.SegmentSize/2)
	f.bank.FailNext(message.PhaseTransfer, 2, "061099")

	_, err := f.engine.Upload(context.Background(), f.id, order.Must("CCT"), order.Params{}, payload)
	require.Error(t, err)

	var transferErr *TransferError
	require.ErrorAs(t, err, &transferErr)
	assert.Equal(t, 2, transferErr.Segment)
	assert.Equal(t, 2, transferErr.State.SegmentNumber)
	assert.Equal(t, PhaseTransfer, transferErr.State.Phase)

	var protoErr *message.ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.Equal(t, "061099", protoErr.Code.Code)
	assert.Empty(t, f.bank.Uploads())

	state, err := f.engine.ResumeUpload(context.Background(), f.id, transferErr.State, payload)
	require.NoError(t, err)
	assert.True(t, state.Completed())

	uploads := f.bank.Uploads()
	require.Len(t, uploads, 1)
	assert.Equal(t, payload, uploads[0].Data)
}

func TestEngine_ResumeUploadRejectsDifferentPayload(t *testing.T) {
	f := newFixture(t)
	f.bank.FailNext(message.PhaseTransfer, 1, "061099")

	_, err := f.engine.Upload(context.Background(), f.id, order.Must("CCT"), order.Params{}, []byte("original"))
	var transferErr *TransferError
	require.ErrorAs(t, err, &transferErr)

	_, err = f.engine.ResumeUpload(context.Background(), f.id, transferErr.State, []byte("tampered"))
	assert.ErrorIs(t, err, ErrResumeMismatch)
}

func TestEngine_ResumeUploadInvalidState(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name  string
		state State
	}{
		{"segment out of range", State{Direction: order.Upload, Phase: PhaseTransfer, SegmentNumber: 5, NumSegments: 2}},
		{"download", State{Direction: order.Download, Phase: PhaseTransfer, SegmentNumber: 1, NumSegments: 2, TransactionID: "T"}},
		{"completed", State{Direction: order.Upload, Phase: PhaseDone, SegmentNumber: 2, NumSegments: 2, TransactionID: "T"}},
		{"missing key", State{Direction: order.Upload, Phase: PhaseTransfer, SegmentNumber: 1, NumSegments: 2, TransactionID: "T"}},
		{"other subscriber", State{Direction: order.Upload, Phase: PhaseTransfer, SegmentNumber: 1, NumSegments: 2, TransactionID: "T", Nonce: make([]byte, 16), HostID: "OTHERHOST", UserID: "USER1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.ResumeUpload(context.Background(), f.id, tt.state, []byte("x"))
			assert.ErrorIs(t, err, ErrInvalidState)
		})
	}
}

func TestEngine_UploadInitialisationRejected(t *testing.T) {
	f := newFixture(t)
	f.bank.FailNext(message.PhaseInitialisation, 0, "091005")

	state, err := f.engine.Upload(context.Background(), f.id, order.Must("CCT"), order.Params{}, []byte("data"))
	assert.Nil(t, state)
	assert.ErrorIs(t, err, &message.ProtocolError{Code: message.LookupReturnCode("091005")})

	var transferErr *TransferError
	assert.False(t, errors.As(err, &transferErr))
}

func TestEngine_UploadWithoutBankKeys(t *testing.T) {
	f := newFixture(t)
	id := f.id.WithBank(f.bank.Bank())

	_, err := f.engine.Upload(context.Background(), id, order.Must("CCT"), order.Params{}, []byte("data"))
	assert.ErrorIs(t, err, message.ErrBankKeysMissing)
	assert.Empty(t, f.bank.Requests())
}

func TestEngine_WrongDirection(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Upload(context.Background(), f.id, order.Must("STA"), order.Params{}, []byte("data"))
	assert.ErrorIs(t, err, ErrWrongDirection)

	_, err = f.engine.Download(context.Background(), f.id, order.Must("CCT"), order.Params{})
	assert.ErrorIs(t, err, ErrWrongDirection)
}

func TestEngine_DownloadMultiSegment(t *testing.T) {
	f := newFixture(t)
	f.bank.SegmentSize = 4096
	statement := randomPayload(t, 10*1024)
	f.bank.QueueDownload("C53", statement)

	data, err := f.engine.Download(context.Background(), f.id, order.Must("C53"), order.Params{})
	require.NoError(t, err)
	assert.Equal(t, statement, data)

	assert.Equal(t, []int{0}, f.bank.Receipts())
	assert.Zero(t, f.bank.PendingDownloads("C53"))

	requests := f.bank.Requests()
	assert.Equal(t, "C53 Initialisation", requests[0])
	assert.Equal(t, "C53 Transfer 2", requests[1])
	assert.Equal(t, "C53 Receipt 0", requests[len(requests)-1])

	last := f.states[len(f.states)-1]
	assert.Equal(t, PhaseDone, last.Phase)
	assert.True(t, last.IsLastSegment())
	assert.Nil(t, last.Nonce)
}

func TestEngine_DownloadNoData(t *testing.T) {
	f := newFixture(t)

	data, err := f.engine.Download(context.Background(), f.id, order.Must("STA"), order.Params{})
	require.NoError(t, err)
	assert.Empty(t, data)
	assert.Empty(t, f.bank.Receipts())
	assert.Empty(t, f.states)
}

func TestEngine_DownloadDecodeFailureSendsNegativeReceipt(t *testing.T) {
	f := newFixture(t)
	f.bank.QueueDownload("C53", []byte("statement"))
	f.bank.CorruptNextDownload()

	_, err := f.engine.Download(context.Background(), f.id, order.Must("C53"), order.Params{})
	require.Error(t, err)
	assert.Equal(t, []int{1}, f.bank.Receipts())
	assert.Equal(t, 1, f.bank.PendingDownloads("C53"))
}

func TestEngine_DownloadTransferFailure(t *testing.T) {
	f := newFixture(t)
	f.bank.SegmentSize = 1024
	f.bank.QueueDownload("C53", randomPayload(t, 4096))
	f.bank.FailNext(message.PhaseTransfer, 2, "091101")

	_, err := f.engine.Download(context.Background(), f.id, order.Must("C53"), order.Params{})

	var transferErr *TransferError
	require.ErrorAs(t, err, &transferErr)
	assert.Equal(t, 2, transferErr.Segment)
	assert.Equal(t, 1, transferErr.State.SegmentNumber)
	assert.Empty(t, f.bank.Receipts())
}

func TestEngine_DownloadReceiptRejected(t *testing.T) {
	f := newFixture(t)
	f.bank.QueueDownload("C53", []byte("statement"))
	f.bank.FailNext(message.PhaseReceipt, 0, "061099")

	_, err := f.engine.Download(context.Background(), f.id, order.Must("C53"), order.Params{})

	var transferErr *TransferError
	require.ErrorAs(t, err, &transferErr)
	assert.Equal(t, PhaseReceipt, transferErr.State.Phase)
}

func TestEngine_SubscriberLock(t *testing.T) {
	f := newFixture(t)

	release, err := f.engine.Acquire(f.id)
	require.NoError(t, err)

	_, err = f.engine.Upload(context.Background(), f.id, order.Must("CCT"), order.Params{}, []byte("data"))
	assert.ErrorIs(t, err, identity.ErrTransactionInProgress)

	_, err = f.engine.Download(context.Background(), f.id, order.Must("C53"), order.Params{})
	assert.ErrorIs(t, err, identity.ErrTransactionInProgress)

	release()

	_, err = f.engine.Upload(context.Background(), f.id, order.Must("CCT"), order.Params{}, []byte("data"))
	assert.NoError(t, err)
}

func TestEngine_ConcurrentDifferentSubscribers(t *testing.T) {
	f := newFixture(t)
	other, err := f.bank.NewIdentity("PARTNER1", "USER2")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []*identity.Identity{f.id, other} {
		wg.Add(1)
		go func(i int, id *identity.Identity) {
			defer wg.Done()
			_, errs[i] = f.engine.Upload(context.Background(), id, order.Must("CCT"), order.Params{}, []byte(fmt.Sprintf("payload %d", i)))
		}(i, id)
	}
	wg.Wait()

	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
	assert.Len(t, f.bank.Uploads(), 2)
}

func TestEngine_ResponseVerification(t *testing.T) {
	f := newFixture(t, WithResponseVerification(true))
	f.bank.QueueDownload("STA", []byte(":20:STATEMENT"))

	data, err := f.engine.Download(context.Background(), f.id, order.Must("STA"), order.Params{})
	require.NoError(t, err)
	assert.Equal(t, ":20:STATEMENT", string(data))

	impostor, err := security.GenerateKeyPair(security.DefaultKeySize, security.VersionX002)
	require.NoError(t, err)
	id := f.id.WithBank(f.id.Bank)
	id.Bank.AuthenticationKey = impostor.PublicOnly()
	id.Bank.AuthenticationKey.Digest = f.id.Bank.AuthenticationKey.Digest

	f.bank.QueueDownload("STA", []byte(":20:STATEMENT"))
	_, err = f.engine.Download(context.Background(), id, order.Must("STA"), order.Params{})
	var signingErr *security.SigningError
	assert.ErrorAs(t, err, &signingErr)
}

func TestEngine_SubmitSignatureOnly(t *testing.T) {
	f := newFixture(t)

	state, err := f.engine.SubmitSignatureOnly(context.Background(), f.id, order.Must("SPR"), []byte(" "))
	require.NoError(t, err)
	assert.True(t, state.Completed())
	assert.Zero(t, state.NumSegments)
	require.NoError(t, state.Validate())

	sub, ok := f.bank.Subscriber("PARTNER1", "USER1")
	require.True(t, ok)
	assert.True(t, sub.Suspended)

	uploads := f.bank.Uploads()
	require.Len(t, uploads, 1)
	assert.True(t, uploads[0].SignatureOnly)
}

func TestEngine_ObserverErrorAbortsTransaction(t *testing.T) {
	bank, err := banktest.New("EBIXTEST")
	require.NoError(t, err)
	id, err := bank.NewIdentity("PARTNER1", "USER1")
	require.NoError(t, err)

	engine := NewEngine(bank, nil, WithStateObserver(func(ctx context.Context, s State) error {
		return errors.New("disk full")
	}))

	_, err = engine.Upload(context.Background(), id, order.Must("CCT"), order.Params{}, []byte("data"))
	assert.ErrorContains(t, err, "disk full")
	assert.Empty(t, bank.Uploads())
}
