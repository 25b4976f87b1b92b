// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package compression provides the ZLIB (RFC 1950) order data compression used
by EBICS.

All EBICS order data is compressed before encryption, and key management
order data (INI, HIA) is compressed before base64 encoding.

# Compression

	compressor := compression.NewCompressor()
	compressed, err := compressor.Compress(orderData)

The default level is zlib.BestCompression.

Uploads need the SHA-256 hash of the uncompressed payload. CompressWithDigest
computes it while compressing:

	compressed, digest, err := compressor.CompressWithDigest(orderData)

# Decompression

	orderData, err := compressor.Decompress(compressed)
*/
package compression
