package message

import (
	"fmt"
)

// ProtocolError is a non-OK return code from the bank
type ProtocolError struct {
	Code          ReturnCode
	OrderType     string
	Phase         string
	TransactionID string
	Segment       int
	ReportText    string
}

func (e *ProtocolError) Error() string {
	msg := fmt.Sprintf("ebics %s", e.OrderType)
	if e.Phase != "" {
		msg += " " + e.Phase
	}
	if e.Segment > 0 {
		msg += fmt.Sprintf(" segment %d", e.Segment)
	}
	msg += ": " + e.Code.String()
	if e.ReportText != "" {
		msg += ": " + e.ReportText
	} else if e.Code.Text != "" {
		msg += ": " + e.Code.Text
	}
	return msg
}

// Is matches another *ProtocolError carrying the same code
func (e *ProtocolError) Is(target error) bool {
	t, ok := target.(*ProtocolError)
	if !ok {
		return false
	}
	return t.Code.Code == e.Code.Code
}

// ErrNoDownloadData matches protocol errors carrying EBICS_NO_DOWNLOAD_DATA_AVAILABLE
var ErrNoDownloadData = &ProtocolError{Code: LookupBusinessCode(CodeNoDownloadDataAvailable)}
