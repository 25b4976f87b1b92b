package segment

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/sirosfoundation/go-ebics/pkg/compression"
	"github.com/sirosfoundation/go-ebics/pkg/security"
)

// ErrNoSegments is returned by Finish before any segment was added
var ErrNoSegments = errors.New("no segments received")

// SegmentSize is the maximum size of one order data segment
const SegmentSize = 1 << 20

// Segment is one numbered block of encrypted order data
type Segment struct {
	Number int
	Data   []byte
	Last   bool
}

// Upload is the encoded form of an outgoing payload
type Upload struct {
	// Digest is the SHA-256 hash of the raw payload
	Digest []byte
	// Nonce is the transaction key
	Nonce []byte
	// Ciphertext is the compressed and encrypted payload
	Ciphertext []byte

	segments [][]byte
}

// SegmentOrderError reports a segment received out of sequence
type SegmentOrderError struct {
	Expected int
	Got      int
}

func (e *SegmentOrderError) Error() string {
	return fmt.Sprintf("segment out of order: expected %d, got %d", e.Expected, e.Got)
}

// EncodeForUpload compresses, encrypts and splits payload with a fresh nonce
func EncodeForUpload(payload []byte) (*Upload, error) {
	nonce, err := security.GenerateNonce()
	if err != nil {
		return nil, err
	}
	return EncodeWithNonce(payload, nonce)
}

// EncodeWithNonce is EncodeForUpload with a caller supplied nonce
func EncodeWithNonce(payload, nonce []byte) (*Upload, error) {
	compressed, digest, err := compression.NewCompressor().CompressWithDigest(payload)
	if err != nil {
		return nil, fmt.Errorf("compress order data: %w", err)
	}

	ciphertext, err := security.EncryptPayload(compressed, nonce)
	if err != nil {
		return nil, err
	}

	return &Upload{
		Digest:     digest,
		Nonce:      nonce,
		Ciphertext: ciphertext,
		segments:   Split(ciphertext, SegmentSize),
	}, nil
}

// NumSegments returns the number of segments, at least 1
func (u *Upload) NumSegments() int {
	return len(u.segments)
}

// Segment returns segment n (1-based)
func (u *Upload) Segment(n int) (Segment, error) {
	if n < 1 || n > len(u.segments) {
		return Segment{}, fmt.Errorf("segment %d out of range 1..%d", n, len(u.segments))
	}
	return Segment{
		Number: n,
		Data:   u.segments[n-1],
		Last:   n == len(u.segments),
	}, nil
}

// Segments returns all segments in order
func (u *Upload) Segments() []Segment {
	out := make([]Segment, len(u.segments))
	for i := range u.segments {
		out[i] = Segment{Number: i + 1, Data: u.segments[i], Last: i == len(u.segments)-1}
	}
	return out
}

// Split cuts data into blocks of at most size bytes. It always returns at
// least one block, so empty input yields a single empty segment.
func Split(data []byte, size int) [][]byte {
	if len(data) == 0 {
		return [][]byte{{}}
	}
	n := (len(data) + size - 1) / size
	out := make([][]byte, 0, n)
	for start := 0; start < len(data); start += size {
		end := min(start+size, len(data))
		out = append(out, data[start:end])
	}
	return out
}

// Decoder reassembles downloaded segments in strict ascending order
type Decoder struct {
	nonce []byte
	next  int
	buf   bytes.Buffer
}

// NewDecoder creates a decoder for a transaction key
func NewDecoder(nonce []byte) *Decoder {
	return &Decoder{nonce: nonce, next: 1}
}

// Add appends segment number n
func (d *Decoder) Add(n int, data []byte) error {
	if n != d.next {
		return &SegmentOrderError{Expected: d.next, Got: n}
	}
	d.buf.Write(data)
	d.next++
	return nil
}

// Received returns how many segments have been added
func (d *Decoder) Received() int {
	return d.next - 1
}

// Finish decrypts and inflates the collected segments
func (d *Decoder) Finish() ([]byte, error) {
	if d.next == 1 {
		return nil, ErrNoSegments
	}
	compressed, err := security.DecryptPayload(d.buf.Bytes(), d.nonce)
	if err != nil {
		return nil, err
	}
	payload, err := compression.NewCompressor().Decompress(compressed)
	if err != nil {
		return nil, fmt.Errorf("inflate order data: %w", err)
	}
	return payload, nil
}

// DecodeDownload decodes a complete list of segments
func DecodeDownload(nonce []byte, segments []Segment) ([]byte, error) {
	dec := NewDecoder(nonce)
	for _, seg := range segments {
		if err := dec.Add(seg.Number, seg.Data); err != nil {
			return nil, err
		}
	}
	return dec.Finish()
}
