// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package ebics is the high level EBICS client.

A Client ties together the pieces a subscriber needs: configuration, the
HTTPS transport, the transaction engine, the key handshake, record storage
and the private key store. Every operation loads the subscriber identity
from storage, attaches the private keys, runs the protocol exchange and
saves whatever changed.

# Lifecycle

A new subscriber goes through the following steps, each one persisted:

	client, err := ebics.New(ctx, cfg)
	defer client.Close(ctx)

	client.CreateUser(ctx)  // generate and store keys
	client.INI(ctx)         // send the signature key
	client.HIA(ctx)         // send authentication and encryption keys
	// ... the bank activates the subscriber after the letters arrive ...
	client.HPB(ctx)         // fetch and pin the bank keys

After that, orders can be exchanged:

	state, err := client.Upload(ctx, "CCT", order.Params{}, painDocument)
	data, err := client.Download(ctx, "C53", order.Params{Start: from, End: to})

# Interrupted uploads

Every transaction state change is written to the transaction store. When an
upload fails during the transfer phase, the returned error wraps a
*transaction.TransferError and the stored record keeps the transaction key,
so ResumeUpload can continue from the failed segment once the same payload
is supplied again.
*/
package ebics
