package transaction

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirosfoundation/go-ebics/pkg/order"
)

// Phase is the local phase of a transaction
type Phase string

const (
	PhaseInitialisation Phase = "initialisation"
	PhaseTransfer       Phase = "transfer"
	PhaseReceipt        Phase = "receipt"
	PhaseDone           Phase = "done"
)

var (
	// ErrNoNextSegment is returned by Next on the last segment
	ErrNoNextSegment = errors.New("no next segment")
	// ErrInvalidState is returned for states violating the segment invariants
	ErrInvalidState = errors.New("invalid transaction state")
)

// State is a snapshot of a transaction
type State struct {
	// ID is a local identifier used for persistence
	ID        string
	OrderType string
	Direction order.Direction
	HostID    string
	PartnerID string
	UserID    string

	// TransactionID is issued by the bank at initialisation
	TransactionID string
	// Nonce is the transaction key. Only uploads keep it, for resumption.
	Nonce []byte
	// Digest is the SHA-256 hash of the raw upload payload
	Digest []byte

	SegmentNumber int
	NumSegments   int
	Phase         Phase

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasNext reports whether segments follow the current one
func (s State) HasNext() bool {
	return s.SegmentNumber < s.NumSegments
}

// IsLastSegment reports whether the current segment is the final one
func (s State) IsLastSegment() bool {
	return s.SegmentNumber == s.NumSegments
}

// Completed reports whether the transaction finished successfully
func (s State) Completed() bool {
	return s.Phase == PhaseDone
}

// Next returns the state advanced by one segment
func (s State) Next() (State, error) {
	if !s.HasNext() {
		return s, fmt.Errorf("%w: segment %d of %d", ErrNoNextSegment, s.SegmentNumber, s.NumSegments)
	}
	s.SegmentNumber++
	s.UpdatedAt = time.Now().UTC()
	return s, nil
}

// WithPhase returns the state in phase p
func (s State) WithPhase(p Phase) State {
	s.Phase = p
	s.UpdatedAt = time.Now().UTC()
	return s
}

// Validate checks 1 <= SegmentNumber <= NumSegments+1
func (s State) Validate() error {
	if s.NumSegments < 0 {
		return fmt.Errorf("%w: negative segment count", ErrInvalidState)
	}
	if s.SegmentNumber < 1 || s.SegmentNumber > s.NumSegments+1 {
		return fmt.Errorf("%w: segment %d outside 1..%d", ErrInvalidState, s.SegmentNumber, s.NumSegments+1)
	}
	return nil
}

// TransferError reports a failure after initialisation. State is the last
// good state; its SegmentNumber is the segment that was not acknowledged.
type TransferError struct {
	State   State
	Segment int
	Err     error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transaction %s %s failed at segment %d/%d: %v",
		e.State.OrderType, e.State.TransactionID, e.Segment, e.State.NumSegments, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}
