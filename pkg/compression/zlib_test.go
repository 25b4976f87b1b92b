package compression

import (
	"bytes"
	"compress/zlib"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressor_CompressDecompress(t *testing.T) {
	compressor := NewCompressor()

	repeated := "<CstmrCdtTrfInitn><PmtInf><Amt>1.00</Amt></PmtInf></CstmrCdtTrfInitn>"
	testData := []byte(repeated + repeated + repeated + repeated + repeated)

	compressed, err := compressor.Compress(testData)
	require.NoError(t, err)
	assert.Less(t, len(compressed), len(testData))

	decompressed, err := compressor.Decompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, testData, decompressed)
}

func TestCompressor_EmptyData(t *testing.T) {
	compressor := NewCompressor()

	compressed, err := compressor.Compress([]byte{})
	require.NoError(t, err)
	assert.NotEmpty(t, compressed) // zlib header and checksum are present

	decompressed, err := compressor.Decompress(compressed)
	require.NoError(t, err)
	assert.Empty(t, decompressed)
}

func TestCompressor_Digest(t *testing.T) {
	compressor := NewCompressor()
	data := bytes.Repeat([]byte("statement line "), 5000)

	compressed, digest, err := compressor.CompressWithDigest(data)
	require.NoError(t, err)

	expected := sha256.Sum256(data)
	assert.Equal(t, expected[:], digest, "digest covers the uncompressed input")

	streamed, streamedDigest, err := compressor.CompressReader(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, compressed, streamed)
	assert.Equal(t, digest, streamedDigest)
}

func TestCompressor_Level(t *testing.T) {
	data := bytes.Repeat([]byte("test data "), 100000)

	best, err := NewCompressor().Compress(data)
	require.NoError(t, err)
	none, err := NewCompressorWithLevel(zlib.NoCompression).Compress(data)
	require.NoError(t, err)
	assert.Less(t, len(best), len(none))

	_, err = NewCompressorWithLevel(42).Compress(data)
	assert.Error(t, err)
}

func TestCompressor_InvalidData(t *testing.T) {
	_, err := NewCompressor().Decompress([]byte("not zlib"))
	assert.Error(t, err)
}
