package transaction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_Segments(t *testing.T) {
	tests := []struct {
		seg, total int
		hasNext    bool
		isLast     bool
	}{
		{1, 1, false, true},
		{1, 3, true, false},
		{2, 3, true, false},
		{3, 3, false, true},
	}

	for _, tt := range tests {
		s := State{SegmentNumber: tt.seg, NumSegments: tt.total}
		assert.Equal(t, tt.hasNext, s.HasNext(), "HasNext %d/%d", tt.seg, tt.total)
		assert.Equal(t, tt.isLast, s.IsLastSegment(), "IsLastSegment %d/%d", tt.seg, tt.total)
		assert.NotEqual(t, s.HasNext(), s.IsLastSegment())
	}
}

func TestState_Next(t *testing.T) {
	s := State{SegmentNumber: 1, NumSegments: 2}

	next, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, 2, next.SegmentNumber)
	assert.Equal(t, 1, s.SegmentNumber, "Next must not modify the receiver")

	_, err = next.Next()
	assert.ErrorIs(t, err, ErrNoNextSegment)
}

func TestState_Validate(t *testing.T) {
	assert.NoError(t, State{SegmentNumber: 1, NumSegments: 1}.Validate())
	assert.NoError(t, State{SegmentNumber: 1, NumSegments: 0}.Validate())
	assert.NoError(t, State{SegmentNumber: 4, NumSegments: 3}.Validate())

	assert.ErrorIs(t, State{SegmentNumber: 0, NumSegments: 3}.Validate(), ErrInvalidState)
	assert.ErrorIs(t, State{SegmentNumber: 5, NumSegments: 3}.Validate(), ErrInvalidState)
	assert.ErrorIs(t, State{SegmentNumber: 1, NumSegments: -1}.Validate(), ErrInvalidState)
}

func TestState_WithPhase(t *testing.T) {
	s := State{Phase: PhaseTransfer}
	done := s.WithPhase(PhaseDone)

	assert.True(t, done.Completed())
	assert.False(t, s.Completed())
	assert.False(t, done.UpdatedAt.IsZero())
}

func TestTransferError(t *testing.T) {
	cause := assert.AnError
	err := &TransferError{
		State:   State{OrderType: "CCT", TransactionID: "ABC", NumSegments: 3, SegmentNumber: 2},
		Segment: 2,
		Err:     cause,
	}

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "CCT")
	assert.Contains(t, err.Error(), "segment 2/3")
}
