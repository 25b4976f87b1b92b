package compression

import (
	"bytes"
	"compress/zlib"
	"crypto/sha256"
	"fmt"
	"io"
)

// Compressor handles order data compression
type Compressor struct {
	compressionLevel int
}

// NewCompressor creates a compressor with the best compression level
func NewCompressor() *Compressor {
	return &Compressor{
		compressionLevel: zlib.BestCompression,
	}
}

// NewCompressorWithLevel creates a compressor with the specified level
func NewCompressorWithLevel(level int) *Compressor {
	return &Compressor{
		compressionLevel: level,
	}
}

// Compress compresses data using ZLIB
func (c *Compressor) Compress(data []byte) ([]byte, error) {
	compressed, _, err := c.compress(bytes.NewReader(data), false)
	return compressed, err
}

// CompressWithDigest compresses data and returns the SHA-256 hash of the
// uncompressed input, computed in the same pass
func (c *Compressor) CompressWithDigest(data []byte) ([]byte, []byte, error) {
	return c.compress(bytes.NewReader(data), true)
}

// CompressReader is the streaming form of CompressWithDigest
func (c *Compressor) CompressReader(r io.Reader) ([]byte, []byte, error) {
	return c.compress(r, true)
}

func (c *Compressor) compress(r io.Reader, withDigest bool) ([]byte, []byte, error) {
	var buf bytes.Buffer

	writer, err := zlib.NewWriterLevel(&buf, c.compressionLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create zlib writer: %w", err)
	}

	hash := sha256.New()
	if withDigest {
		r = io.TeeReader(r, hash)
	}

	if _, err := io.Copy(writer, r); err != nil {
		writer.Close()
		return nil, nil, fmt.Errorf("failed to write data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, nil, fmt.Errorf("failed to close zlib writer: %w", err)
	}

	if !withDigest {
		return buf.Bytes(), nil, nil
	}
	return buf.Bytes(), hash.Sum(nil), nil
}

// Decompress decompresses ZLIB data
func (c *Compressor) Decompress(data []byte) ([]byte, error) {
	reader, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create zlib reader: %w", err)
	}
	defer reader.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return nil, fmt.Errorf("failed to read compressed data: %w", err)
	}

	return buf.Bytes(), nil
}
