// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package message provides the EBICS H004 protocol documents.

# Requests

Three request envelopes exist in H004:

	ebicsUnsecuredRequest         INI and HIA, no authentication signature
	ebicsNoPubKeyDigestsRequest   HPB, signed but without bank key digests
	ebicsRequest                  all transactional orders

A Builder assembles them from an identity:

	b := message.NewBuilder(message.WithProduct("go-ebics", "en"))
	req, err := b.DownloadInit(id, order.Must("STA"), order.Params{})
	signed, err := message.Seal(req, authSigner)

Seal marshals the request and adds the AuthSignature. It must be the last
step before sending.

# Responses

ParseResponse returns one of a closed set of variants selected by the root
element name and, for ebicsResponse, the transaction phase:

	*KeyManagementResponse  ebicsKeyManagementResponse
	*DataTransferResponse   ebicsResponse in Initialisation or Transfer
	*ReceiptResponse        ebicsResponse in Receipt
	*HEVResponse            ebicsHEVResponse

Every variant carries the technical (header) and business (body) return
codes. Expected outcomes such as EBICS_NO_DOWNLOAD_DATA_AVAILABLE are
ordinary ReturnCode values; Err converts the rest into *ProtocolError.

# Order Data

The key management order data documents (SignaturePubKeyOrderData,
HIARequestOrderData, HPBResponseOrderData) and the UserSignatureData
electronic signature container are modeled here as well.
*/
package message
