// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package identity models the EBICS subscriber triad: the User with its three
key pairs, the Partner (customer) with its accounts, and the Bank host with
its public keys.

Values are never mutated in place. Protocol steps return updated copies:

	user = user.WithINI()
	user = user.WithHIA()
	user.Status() // StatusInitialized

	bank = bank.WithKeys(encryptionKey, authenticationKey)

A LockSet serializes transactions per subscriber. The bank processes one
transaction per user at a time, so a second concurrent attempt fails fast
with ErrTransactionInProgress.
*/
package identity
