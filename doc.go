// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package goebics implements the client side of EBICS 2.5 (protocol version H004)
for exchanging order data with banks.

# Overview

go-ebics creates a subscriber, runs the key handshake with the bank and then
uploads and downloads order data in segmented transactions. Every request is
signed with the subscriber's authentication key and order data is encrypted
for the recipient.

# Specifications Implemented

  - EBICS 2.5 (H004): https://www.ebics.org/en/technical-information/ebics-specification
  - XML Signature Syntax and Processing: https://www.w3.org/TR/xmldsig-core1/
  - Canonical XML 1.0: https://www.w3.org/TR/xml-c14n

# Package Structure

	github.com/sirosfoundation/go-ebics/pkg/ebics       - Client API tying everything together
	github.com/sirosfoundation/go-ebics/pkg/security    - Key material, A005/A006/X002 signatures, E002 envelopes
	github.com/sirosfoundation/go-ebics/pkg/compression - zlib order data compression
	github.com/sirosfoundation/go-ebics/pkg/segment     - Segmentation of order data
	github.com/sirosfoundation/go-ebics/pkg/order       - Order type registry and parameters
	github.com/sirosfoundation/go-ebics/pkg/identity    - Subscriber, partner and bank model
	github.com/sirosfoundation/go-ebics/pkg/message     - H004 request and response documents
	github.com/sirosfoundation/go-ebics/pkg/transport   - HTTPS transport
	github.com/sirosfoundation/go-ebics/pkg/transaction - Upload and download transactions
	github.com/sirosfoundation/go-ebics/pkg/keymgmt     - INI, HIA, HPB and SPR

# Quick Start

	cfg, err := config.Load("ebics.yaml")
	client, err := ebics.New(ctx, cfg)
	defer client.Close(ctx)

	id, err := client.CreateUser(ctx)   // print the digests for the initialization letter
	_, err = client.INI(ctx)
	_, err = client.HIA(ctx)
	_, err = client.HPB(ctx)            // once the bank has activated the subscriber

	state, err := client.Upload(ctx, "CCT", order.Params{}, painXML)
	statement, err := client.Download(ctx, "C53", order.Params{})

# Key Storage

Private keys are kept by a key provider: PEM files, an argon2id sealed store
or a PKCS#11 token (build tag pkcs11). Subscriber records and transaction
snapshots go to memory, a directory of JSON files or MongoDB.

# Command Line

The ebics command in cmd/ebics exposes the same lifecycle:

	ebics -c ebics.yaml init
	ebics -c ebics.yaml ini
	ebics -c ebics.yaml hia
	ebics -c ebics.yaml hpb
	ebics -c ebics.yaml upload --order CCT payment.xml
	ebics -c ebics.yaml download --order C53 --output statement.zip

# License

BSD-2-Clause License
*/
package goebics
