// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package segment encodes EBICS order data for upload and decodes it after
download.

# Upload

EncodeForUpload hashes the raw payload, compresses it with ZLIB, encrypts it
with AES-128-CBC under a fresh transaction nonce and splits the ciphertext
into 1 MiB segments:

	upload, err := segment.EncodeForUpload(payload)
	for _, seg := range upload.Segments() {
	    send(seg.Number, seg.Data, seg.Last)
	}

A resumed upload reuses the nonce of the interrupted transaction:

	upload, err := segment.EncodeWithNonce(payload, state.Nonce)

# Download

Segments must be added in ascending order starting at 1:

	dec := segment.NewDecoder(nonce)
	err := dec.Add(1, first)
	err = dec.Add(2, second)
	payload, err := dec.Finish()

Adding a segment out of order fails with *SegmentOrderError.
*/
package segment
