// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package security implements the EBICS H004 cryptographic envelope.

This package provides the RSA key material, payload encryption, electronic
signatures and XML authentication signatures used by every EBICS request.

# Key Material

Keys are tagged with their EBICS version:

	A005, A006  - electronic signature (ES) keys
	X002        - authentication (identification) keys
	E002        - encryption keys

	km, err := security.GenerateKeyPair(2048, security.VersionA006)
	digest := security.KeyDigest(km.Public)

The key digest is the SHA-256 hash of the lower case hex exponent and modulus
separated by a single space. Banks compare it against the initialization
letter, so the recipe is reproduced bit-for-bit.

# Payload Encryption

Order data is encrypted with AES-128-CBC under a per-transaction nonce that
doubles as the session key. The IV is all zero and padding follows ISO 10126:

	nonce, _ := security.GenerateNonce()
	wrapped, _ := security.WrapKey(nonce, bank.EncryptionKey.Public)
	ciphertext, _ := security.EncryptPayload(compressed, nonce)

# Signatures

	sig, err := security.Sign(orderData, signatureKey)      // A005 or A006
	auth, err := security.Authenticate(signedInfo, authKey) // X002

# Authentication Signature

AuthSigner canonicalizes every element carrying authenticate="true" with
inclusive XML canonicalization, hashes the result and embeds a ds:SignedInfo
and ds:SignatureValue into the request's AuthSignature element:

	signer, _ := security.NewAuthSigner(user.AuthenticationKey)
	signed, err := signer.SignRequest(requestXML)

# References

  - EBICS 2.5 specification (H004), chapter 5 and 11
  - Canonical XML 1.0: https://www.w3.org/TR/2001/REC-xml-c14n-20010315
  - XML Signature: https://www.w3.org/TR/xmldsig-core1/
*/
package security
