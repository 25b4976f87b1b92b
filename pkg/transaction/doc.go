// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package transaction drives EBICS transactions through their phases.

An upload runs Initialisation followed by one Transfer request per segment.
A download runs Initialisation (which already returns segment 1), Transfer
requests for segments 2..N and a final Receipt:

	engine := transaction.NewEngine(client, message.NewBuilder(),
	    transaction.WithLogger(logger),
	    transaction.WithStateObserver(store.SaveTransaction),
	)

	state, err := engine.Upload(ctx, id, order.Must("CCT"), order.Params{}, pain001)
	data, err := engine.Download(ctx, id, order.Must("C53"), order.Params{})

# State

State is an immutable snapshot of a running transaction. SegmentNumber is the
segment being sent or received; HasNext and IsLastSegment derive from it and
NumSegments. Next returns a new State and never wraps.

# Failures

The engine does not retry. A failed Transfer returns *TransferError carrying
the last good State, whose SegmentNumber still names the segment that was
not acknowledged. ResumeUpload continues an upload from such a State.

A download answered with EBICS_NO_DOWNLOAD_DATA_AVAILABLE returns an empty
result and no error.

# Concurrency

The bank serializes transactions per subscriber. The engine holds the
subscriber lock for the whole call; a concurrent call for the same
subscriber fails with identity.ErrTransactionInProgress.
*/
package transaction
