package message

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const downloadInitResponse = `<?xml version="1.0" encoding="UTF-8"?>
<ebicsResponse xmlns="urn:org:ebics:H004" xmlns:ds="http://www.w3.org/2000/09/xmldsig#" Version="H004" Revision="1">
  <header authenticate="true">
    <static><TransactionID>ABCDEF0123456789ABCDEF0123456789</TransactionID><NumSegments>2</NumSegments></static>
    <mutable><TransactionPhase>Initialisation</TransactionPhase><SegmentNumber lastSegment="false">1</SegmentNumber><ReturnCode>000000</ReturnCode><ReportText>[EBICS_OK] OK</ReportText></mutable>
  </header>
  <AuthSignature/>
  <body>
    <DataTransfer>
      <DataEncryptionInfo authenticate="true"><EncryptionPubKeyDigest Version="E002" Algorithm="http://www.w3.org/2001/04/xmlenc#sha256">ZGlnZXN0</EncryptionPubKeyDigest><TransactionKey>a2V5</TransactionKey></DataEncryptionInfo>
      <OrderData>c2VnMQ==</OrderData>
    </DataTransfer>
    <ReturnCode authenticate="true">000000</ReturnCode>
  </body>
</ebicsResponse>`

const noDataResponse = `<ebicsResponse xmlns="urn:org:ebics:H004" Version="H004" Revision="1">
  <header authenticate="true"><static/><mutable><TransactionPhase>Initialisation</TransactionPhase><ReturnCode>000000</ReturnCode><ReportText>[EBICS_OK] OK</ReportText></mutable></header>
  <body><ReturnCode authenticate="true">090005</ReturnCode></body>
</ebicsResponse>`

const receiptResponse = `<ebicsResponse xmlns="urn:org:ebics:H004" Version="H004" Revision="1">
  <header authenticate="true"><static><TransactionID>TX01</TransactionID></static><mutable><TransactionPhase>Receipt</TransactionPhase><ReturnCode>011000</ReturnCode><ReportText>[EBICS_DOWNLOAD_POSTPROCESS_DONE]</ReportText></mutable></header>
  <body><ReturnCode authenticate="true">000000</ReturnCode></body>
</ebicsResponse>`

const keyManagementResponse = `<ebicsKeyManagementResponse xmlns="urn:org:ebics:H004" Version="H004" Revision="1">
  <header authenticate="true"><static/><mutable><ReturnCode>000000</ReturnCode><ReportText>[EBICS_OK] OK</ReportText></mutable></header>
  <body><ReturnCode authenticate="true">091002</ReturnCode></body>
</ebicsKeyManagementResponse>`

const hevResponse = `<ebicsHEVResponse xmlns="http://www.ebics.org/H000">
  <SystemReturnCode><ReturnCode>000000</ReturnCode><ReportText>[EBICS_OK] OK</ReportText></SystemReturnCode>
  <VersionNumber ProtocolVersion="H003">02.40</VersionNumber>
  <VersionNumber ProtocolVersion="H004">02.50</VersionNumber>
</ebicsHEVResponse>`

func TestParseResponse_DataTransfer(t *testing.T) {
	resp, err := ParseResponse([]byte(downloadInitResponse))
	require.NoError(t, err)

	dt, ok := resp.(*DataTransferResponse)
	require.True(t, ok, "expected *DataTransferResponse, got %T", resp)
	assert.Equal(t, PhaseInitialisation, dt.Phase)
	assert.Equal(t, "ABCDEF0123456789ABCDEF0123456789", dt.TransactionID)
	assert.Equal(t, 2, dt.NumSegments)
	assert.Equal(t, 1, dt.SegmentNumber)
	assert.False(t, dt.LastSegment)
	assert.Equal(t, []byte("key"), dt.TransactionKey)
	assert.Equal(t, []byte("seg1"), dt.OrderData)
	assert.True(t, dt.Result().IsOK())
	assert.NoError(t, dt.Err("STA"))
}

func TestParseResponse_NoDownloadData(t *testing.T) {
	resp, err := ParseResponse([]byte(noDataResponse))
	require.NoError(t, err)

	assert.True(t, resp.Result().IsNoDownloadData())
	assert.Equal(t, "EBICS_NO_DOWNLOAD_DATA_AVAILABLE", resp.Result().Symbol)

	err = resp.Err("STA")
	assert.True(t, errors.Is(err, ErrNoDownloadData))
}

func TestParseResponse_Receipt(t *testing.T) {
	resp, err := ParseResponse([]byte(receiptResponse))
	require.NoError(t, err)

	receipt, ok := resp.(*ReceiptResponse)
	require.True(t, ok)
	assert.Equal(t, "TX01", receipt.TransactionID)
	assert.NoError(t, receipt.Err("STA"))

	skipped := &ReceiptResponse{Codes: Codes{Technical: LookupReturnCode(CodeDownloadPostprocessSkipped), Business: LookupBusinessCode(CodeOK)}}
	var protoErr *ProtocolError
	require.ErrorAs(t, skipped.Err("STA"), &protoErr)
	assert.Equal(t, CodeDownloadPostprocessSkipped, protoErr.Code.Code)

	plainOK := &ReceiptResponse{Codes: Codes{Technical: LookupReturnCode(CodeOK), Business: LookupBusinessCode(CodeOK)}}
	assert.Error(t, plainOK.Err("STA"), "receipt must be acknowledged with post-process done")
}

func TestParseResponse_KeyManagement(t *testing.T) {
	resp, err := ParseResponse([]byte(keyManagementResponse))
	require.NoError(t, err)

	km, ok := resp.(*KeyManagementResponse)
	require.True(t, ok)
	assert.Equal(t, "EBICS_DOWNLOAD_UNSIGNED_ONLY", km.Business.Symbol, "body codes resolve against the business table")

	var protoErr *ProtocolError
	require.ErrorAs(t, km.Err("INI"), &protoErr)
	assert.Equal(t, "INI", protoErr.OrderType)
	assert.Contains(t, protoErr.Error(), "091002")
}

func TestParseResponse_HEV(t *testing.T) {
	resp, err := ParseResponse([]byte(hevResponse))
	require.NoError(t, err)

	hev, ok := resp.(*HEVResponse)
	require.True(t, ok)
	assert.True(t, hev.Supports("H004"))
	assert.False(t, hev.Supports("H005"))
	assert.Len(t, hev.Versions, 2)
}

func TestParseResponse_Unknown(t *testing.T) {
	_, err := ParseResponse([]byte(`<html><body>maintenance</body></html>`))
	assert.ErrorIs(t, err, ErrUnknownResponse)

	_, err = ParseResponse([]byte(``))
	assert.Error(t, err)
}

func TestReturnCodeSeverity(t *testing.T) {
	tests := []struct {
		code     string
		severity Severity
	}{
		{"000000", SeverityOK},
		{"011000", SeverityInfo},
		{"031001", SeverityWarning},
		{"061001", SeverityError},
		{"090005", SeverityError},
		{"091116", SeverityError},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.severity, LookupReturnCode(tt.code).Severity())
		})
	}

	unknown := LookupReturnCode("099999")
	assert.Equal(t, "099999", unknown.Code)
	assert.Empty(t, unknown.Symbol)
	assert.Equal(t, "EBICS_INVALID_USER_OR_USER_STATE", LookupReturnCode("091002").Symbol)
	assert.Equal(t, "EBICS_DOWNLOAD_UNSIGNED_ONLY", LookupBusinessCode("091002").Symbol)
}

func TestReturnCodeSymbols(t *testing.T) {
	technical := []struct {
		code   string
		symbol string
	}{
		{"091104", "EBICS_TX_SEGMENT_NUMBER_EXCEEDED"},
		{"091112", "EBICS_INVALID_ORDER_PARAMS"},
		{"091113", "EBICS_INVALID_REQUEST_CONTENT"},
		{"091117", "EBICS_MAX_ORDER_DATA_SIZE_EXCEEDED"},
	}
	for _, tt := range technical {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.symbol, LookupReturnCode(tt.code).Symbol)
		})
	}

	business := []struct {
		code   string
		symbol string
	}{
		{"091105", "EBICS_RECOVERY_NOT_SUPPORTED"},
		{"091111", "EBICS_INVALID_SIGNATURE_FILE_FORMAT"},
		{"091114", "EBICS_ORDERID_UNKNOWN"},
		{"091115", "EBICS_ORDERID_ALREADY_EXISTS"},
		{"091116", "EBICS_PROCESSING_ERROR"},
	}
	for _, tt := range business {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.symbol, LookupBusinessCode(tt.code).Symbol)
		})
	}
}
