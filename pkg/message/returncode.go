package message

import (
	"fmt"
	"strings"
)

// Severity classifies a return code by its first two digits
type Severity int

const (
	SeverityOK Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityOK:
		return "ok"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	default:
		return "error"
	}
}

// ReturnCode is a structured EBICS outcome
type ReturnCode struct {
	Code   string
	Symbol string
	Text   string
}

// Well-known return codes
const (
	CodeOK                         = "000000"
	CodeDownloadPostprocessDone    = "011000"
	CodeDownloadPostprocessSkipped = "011001"
	CodeNoDownloadDataAvailable    = "090005"
)

// IsOK reports whether the code is EBICS_OK
func (r ReturnCode) IsOK() bool {
	return r.Code == CodeOK
}

// Severity returns the severity encoded in the code
func (r ReturnCode) Severity() Severity {
	if len(r.Code) < 2 {
		return SeverityError
	}
	switch r.Code[:2] {
	case "00":
		return SeverityOK
	case "01":
		return SeverityInfo
	case "03":
		return SeverityWarning
	default:
		return SeverityError
	}
}

// IsError reports whether the code signals an error
func (r ReturnCode) IsError() bool {
	return r.Severity() == SeverityError
}

// IsNoDownloadData reports whether the code is the no-data sentinel
func (r ReturnCode) IsNoDownloadData() bool {
	return r.Code == CodeNoDownloadDataAvailable
}

func (r ReturnCode) String() string {
	if r.Symbol == "" {
		return r.Code
	}
	return fmt.Sprintf("%s %s", r.Code, r.Symbol)
}

// LookupReturnCode resolves a technical (header) return code.
// Unknown codes keep their number and get an empty symbol.
func LookupReturnCode(code string) ReturnCode {
	return lookup(strings.TrimSpace(code), technicalCodes, businessCodes)
}

// LookupBusinessCode resolves a business (body) return code
func LookupBusinessCode(code string) ReturnCode {
	return lookup(strings.TrimSpace(code), businessCodes, technicalCodes)
}

func lookup(code string, primary, secondary map[string]ReturnCode) ReturnCode {
	if rc, ok := primary[code]; ok {
		return rc
	}
	if rc, ok := secondary[code]; ok {
		return rc
	}
	return ReturnCode{Code: code}
}

func rc(code, symbol, text string) ReturnCode {
	return ReturnCode{Code: code, Symbol: symbol, Text: text}
}

func table(codes ...ReturnCode) map[string]ReturnCode {
	m := make(map[string]ReturnCode, len(codes))
	for _, c := range codes {
		m[c.Code] = c
	}
	return m
}

var technicalCodes = table(
	rc("000000", "EBICS_OK", "OK"),
	rc("011000", "EBICS_DOWNLOAD_POSTPROCESS_DONE", "Positive acknowledgement received"),
	rc("011001", "EBICS_DOWNLOAD_POSTPROCESS_SKIPPED", "Negative acknowledgement received"),
	rc("011101", "EBICS_TX_SEGMENT_NUMBER_UNDERRUN", "Segment number not reached"),
	rc("031001", "EBICS_ORDER_PARAMS_IGNORED", "Unknown order parameters are ignored"),
	rc("061001", "EBICS_AUTHENTICATION_FAILED", "Authentication signature error"),
	rc("061002", "EBICS_INVALID_REQUEST", "Message not EBICS-conformant"),
	rc("061099", "EBICS_INTERNAL_ERROR", "Internal EBICS error"),
	rc("061101", "EBICS_TX_RECOVERY_SYNC", "Synchronisation necessary"),
	rc("091002", "EBICS_INVALID_USER_OR_USER_STATE", "Subscriber unknown or subscriber state inadmissible"),
	rc("091003", "EBICS_USER_UNKNOWN", "Subscriber unknown"),
	rc("091004", "EBICS_INVALID_USER_STATE", "Subscriber state unknown"),
	rc("091005", "EBICS_INVALID_ORDER_TYPE", "Order type inadmissible"),
	rc("091006", "EBICS_UNSUPPORTED_ORDER_TYPE", "Order type not supported"),
	rc("091007", "EBICS_DISTRIBUTED_SIGNATURE_AUTHORISATION_FAILED", "Subscriber possesses no authorisation of signature for the referenced order"),
	rc("091008", "EBICS_BANK_PUBKEY_UPDATE_REQUIRED", "Bank key invalid"),
	rc("091009", "EBICS_SEGMENT_SIZE_EXCEEDED", "Segment size exceeded"),
	rc("091010", "EBICS_INVALID_XML", "XML invalid according to EBICS XML schema"),
	rc("091011", "EBICS_INVALID_HOST_ID", "The transmitted host ID is not known to the bank"),
	rc("091101", "EBICS_TX_UNKNOWN_TXID", "Transaction ID invalid"),
	rc("091102", "EBICS_TX_ABORT", "Transaction cancelled"),
	rc("091103", "EBICS_TX_MESSAGE_REPLAY", "Suspected message replay (wrong time/time zone or nonce error)"),
	rc("091104", "EBICS_TX_SEGMENT_NUMBER_EXCEEDED", "Segment number exceeded"),
	rc("091112", "EBICS_INVALID_ORDER_PARAMS", "Invalid order parameters"),
	rc("091113", "EBICS_INVALID_REQUEST_CONTENT", "Message content semantically not compliant to EBICS"),
	rc("091117", "EBICS_MAX_ORDER_DATA_SIZE_EXCEEDED", "The bank system does not support the requested order size"),
	rc("091118", "EBICS_MAX_SEGMENTS_EXCEEDED", "Submitted number of segments for upload is too high"),
	rc("091119", "EBICS_MAX_TRANSACTIONS_EXCEEDED", "Maximum number of parallel transactions per customer is exceeded"),
	rc("091120", "EBICS_PARTNER_ID_MISMATCH", "The partner ID of the ES file is not identical to the partner ID of the submitter"),
	rc("091121", "EBICS_INCOMPATIBLE_ORDER_ATTRIBUTE", "The specified order attribute is not compatible with the order in the bank system"),
)

var businessCodes = table(
	rc("000000", "EBICS_OK", "OK"),
	rc("011301", "EBICS_NO_ONLINE_CHECKS", "Optional preliminary verification is not supported by the bank system"),
	rc("091001", "EBICS_DOWNLOAD_SIGNED_ONLY", "The bank system only supports bank-technically signed download order data"),
	rc("091002", "EBICS_DOWNLOAD_UNSIGNED_ONLY", "The bank system only supports unsigned download order data"),
	rc("090003", "EBICS_AUTHORISATION_ORDER_TYPE_FAILED", "The subscriber is not entitled to submit orders of the selected order type"),
	rc("090004", "EBICS_INVALID_ORDER_DATA_FORMAT", "The transferred order data does not correspond with the specified format"),
	rc("090005", "EBICS_NO_DOWNLOAD_DATA_AVAILABLE", "No data are available at present for the selected download order type"),
	rc("090006", "EBICS_UNSUPPORTED_REQUEST_FOR_ORDER_INSTANCE", "The bank system does not support the selected order request for the concrete business transaction"),
	rc("091105", "EBICS_RECOVERY_NOT_SUPPORTED", "Recovery not supported"),
	rc("091111", "EBICS_INVALID_SIGNATURE_FILE_FORMAT", "The submitted ES files do not comply with the defined format"),
	rc("091114", "EBICS_ORDERID_UNKNOWN", "The submitted order number is unknown"),
	rc("091115", "EBICS_ORDERID_ALREADY_EXISTS", "The submitted order number is already existent"),
	rc("091116", "EBICS_PROCESSING_ERROR", "Error during processing of the order"),
	rc("091201", "EBICS_KEYMGMT_UNSUPPORTED_VERSION_SIGNATURE", "The algorithm version of the bank-technical signature key is not supported"),
	rc("091202", "EBICS_KEYMGMT_UNSUPPORTED_VERSION_AUTHENTICATION", "The algorithm version of the authentication key is not supported"),
	rc("091203", "EBICS_KEYMGMT_UNSUPPORTED_VERSION_ENCRYPTION", "The algorithm version of the encryption key is not supported"),
	rc("091204", "EBICS_KEYMGMT_KEYLENGTH_ERROR_SIGNATURE", "The key length of the bank-technical signature key is not supported"),
	rc("091205", "EBICS_KEYMGMT_KEYLENGTH_ERROR_AUTHENTICATION", "The key length of the authentication key is not supported"),
	rc("091206", "EBICS_KEYMGMT_KEYLENGTH_ERROR_ENCRYPTION", "The key length of the encryption key is not supported"),
	rc("091207", "EBICS_KEYMGMT_NO_X509_SUPPORT", "The bank system does not support X.509 certificates"),
	rc("091208", "EBICS_X509_CERTIFICATE_EXPIRED", "Certificate expired"),
	rc("091209", "EBICS_X509_CERTIFICATE_NOT_VALID_YET", "Certificate not valid yet"),
	rc("091210", "EBICS_X509_WRONG_KEY_USAGE", "Wrong key usage in certificate"),
	rc("091211", "EBICS_X509_WRONG_ALGORITHM", "Wrong algorithm in certificate"),
	rc("091212", "EBICS_X509_INVALID_THUMBPRINT", "Invalid certificate thumbprint"),
	rc("091213", "EBICS_X509_CTL_INVALID", "Certificate trust list invalid"),
	rc("091214", "EBICS_X509_UNKNOWN_CERTIFICATE_AUTHORITY", "Unknown certificate authority"),
	rc("091215", "EBICS_X509_INVALID_POLICY", "Invalid certificate policy"),
	rc("091216", "EBICS_X509_INVALID_BASIC_CONSTRAINTS", "Invalid basic constraints"),
	rc("091217", "EBICS_ONLY_X509_SUPPORT", "The bank system only supports X.509 certificates"),
	rc("091218", "EBICS_KEYMGMT_DUPLICATE_KEY", "The key is already in use"),
	rc("091219", "EBICS_CERTIFICATES_VALIDATION_ERROR", "Certificate validation failed"),
	rc("091301", "EBICS_SIGNATURE_VERIFICATION_FAILED", "Verification of the ES has failed"),
	rc("091302", "EBICS_ACCOUNT_AUTHORISATION_FAILED", "Preliminary verification of the account authorisation has failed"),
	rc("091303", "EBICS_AMOUNT_CHECK_FAILED", "Preliminary verification of the account amount limit has failed"),
	rc("091304", "EBICS_SIGNER_UNKNOWN", "The originator of the ES is not a valid subscriber"),
	rc("091305", "EBICS_INVALID_SIGNER_STATE", "The state of the signatory is not admissible"),
	rc("091306", "EBICS_DUPLICATE_SIGNATURE", "The signatory has already signed the order"),
)
