// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package keymgmt implements the EBICS subscriber key handshake.

A new subscriber sends its signature key with INI and its authentication
and encryption keys with HIA, confirms both by letter, and then fetches the
bank keys with HPB:

	hs := keymgmt.New(engine)

	user, err := hs.SendINI(ctx, id)
	id = id.WithUser(user)
	user, err = hs.SendHIA(ctx, id)
	id = id.WithUser(user)

	bank, err := hs.FetchBankKeys(ctx, id)
	id = id.WithBank(bank)

Every step returns the updated value instead of mutating the identity.
SendINI and SendHIA are no-ops when the step is already recorded.

FetchBankKeys compares the received keys with the digests printed on the
bank's initialization letter when the identity carries them, and fails with
ErrBankKeyMismatch on any difference.

LockAccess suspends the subscriber with SPR. A suspended subscriber must be
Reset and go through INI and HIA again.
*/
package keymgmt
