// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package transport implements the HTTPS binding of EBICS.

Every EBICS step is one blocking POST of an XML document to the bank URL with
content type application/xml. Any status other than 200 is a *TransportError;
EBICS errors travel inside 200 responses as return codes.

	client := transport.NewHTTPSClient(transport.DefaultHTTPSConfig())
	resp, err := client.Send(ctx, bank.URL, request, transport.ContentTypeXML)

TLS 1.2 is the minimum version. Client certificates can be configured for
banks that require TLS client authentication.
*/
package transport
