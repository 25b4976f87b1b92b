// Package banktest provides an in-process EBICS H004 bank for tests.
//
// The bank registers subscriber keys through INI and HIA, answers HPB,
// verifies the AuthSignature of every signed request, reassembles uploads
// and serves queued downloads in segments. Faults can be scripted per
// phase and segment.
package banktest

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/beevik/etree"

	"github.com/sirosfoundation/go-ebics/pkg/compression"
	"github.com/sirosfoundation/go-ebics/pkg/message"
	"github.com/sirosfoundation/go-ebics/pkg/order"
	"github.com/sirosfoundation/go-ebics/pkg/security"
	"github.com/sirosfoundation/go-ebics/pkg/segment"
)

const (
	codeAuthenticationFailed  = "061001"
	codeInvalidRequest        = "061002"
	codeInvalidUserState      = "091002"
	codeUserUnknown           = "091003"
	codeInvalidOrderType      = "091005"
	codeBankPubKeyUpdate      = "091008"
	codeInvalidHostID         = "091011"
	codeUnknownTransaction    = "091101"
	codeSegmentNumberExceeded = "091104"
	codeInvalidContent        = "091113"
	codeSegmentUnderrun       = "011101"

	codeInvalidOrderData     = "090004"
	codeSignatureVerifyError = "091301"
)

// Subscriber is a user known to the bank
type Subscriber struct {
	PartnerID      string
	UserID         string
	Signature      *security.KeyMaterial
	Authentication *security.KeyMaterial
	Encryption     *security.KeyMaterial
	Suspended      bool
}

// Ready reports whether INI and HIA were both received
func (s Subscriber) Ready() bool {
	return s.Signature != nil && s.Authentication != nil && s.Encryption != nil
}

// Upload is order data received by the bank
type Upload struct {
	OrderType     string
	OrderID       string
	TransactionID string
	Data          []byte
	SignatureOnly bool
}

type fault struct {
	phase   string
	segment int
	code    string
}

type transaction struct {
	id          string
	orderType   string
	orderID     string
	sub         *Subscriber
	upload      bool
	nonce       []byte
	numSegments int
	next        int
	buf         bytes.Buffer
	signatures  []message.OrderSignatureData
	segments    [][]byte
}

// Bank is a fake EBICS host. It implements the transport used by the
// transaction engine and http.Handler.
type Bank struct {
	HostID         string
	Authentication *security.KeyMaterial
	Encryption     *security.KeyMaterial
	// SegmentSize bounds download segments
	SegmentSize int

	mu          sync.Mutex
	subscribers map[string]*Subscriber
	txs         map[string]*transaction
	downloads   map[string][][]byte
	uploads     []Upload
	receipts    []int
	faults      []fault
	requests    []string
	corrupt     bool
	orderSeq    int
}

// New creates a bank with fresh X002 and E002 keys
func New(hostID string) (*Bank, error) {
	auth, err := security.GenerateKeyPair(security.DefaultKeySize, security.VersionX002)
	if err != nil {
		return nil, err
	}
	enc, err := security.GenerateKeyPair(security.DefaultKeySize, security.VersionE002)
	if err != nil {
		return nil, err
	}
	return &Bank{
		HostID:         hostID,
		Authentication: auth,
		Encryption:     enc,
		SegmentSize:    segment.SegmentSize,
		subscribers:    make(map[string]*Subscriber),
		txs:            make(map[string]*transaction),
		downloads:      make(map[string][][]byte),
	}, nil
}

func subscriberKey(partnerID, userID string) string {
	return partnerID + "/" + userID
}

// AddSubscriber makes a subscriber known to the bank
func (b *Bank) AddSubscriber(partnerID, userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[subscriberKey(partnerID, userID)] = &Subscriber{PartnerID: partnerID, UserID: userID}
}

// Subscriber returns a copy of a subscriber's state
func (b *Bank) Subscriber(partnerID, userID string) (Subscriber, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.subscribers[subscriberKey(partnerID, userID)]
	if !ok {
		return Subscriber{}, false
	}
	return *s, true
}

// QueueDownload makes data available for the next download of orderType
func (b *Bank) QueueDownload(orderType string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.downloads[orderType] = append(b.downloads[orderType], data)
}

// PendingDownloads returns how many downloads of orderType are queued
func (b *Bank) PendingDownloads(orderType string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.downloads[orderType])
}

// FailNext answers the next request in phase (and segment, for transfers)
// with the technical return code
func (b *Bank) FailNext(phase string, segmentNumber int, code string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.faults = append(b.faults, fault{phase: phase, segment: segmentNumber, code: code})
}

// CorruptNextDownload damages the ciphertext of the next download
func (b *Bank) CorruptNextDownload() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.corrupt = true
}

// Uploads returns the completed uploads
func (b *Bank) Uploads() []Upload {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Upload(nil), b.uploads...)
}

// Receipts returns the receipt codes received
func (b *Bank) Receipts() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]int(nil), b.receipts...)
}

// Requests returns a log of handled requests, e.g. "CCT Transfer 2"
func (b *Bank) Requests() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.requests...)
}

// Send implements the transaction engine transport
func (b *Bank) Send(ctx context.Context, endpoint string, request []byte, contentType string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.Handle(request)
}

// ServeHTTP implements http.Handler
func (b *Bank) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	resp, err := b.Handle(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "text/xml; charset=UTF-8")
	w.Write(resp)
}

// Handle processes one serialized request
func (b *Bank) Handle(request []byte) ([]byte, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(request); err != nil {
		return nil, fmt.Errorf("parse request: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, errors.New("empty request")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch root.Tag {
	case "ebicsHEVRequest":
		b.requests = append(b.requests, "HEV")
		return message.MarshalDocument(message.EbicsHEVResponse{
			SystemReturnCode: message.SystemReturnCode{ReturnCode: message.CodeOK, ReportText: "[EBICS_OK] OK"},
			VersionNumber: []message.VersionNumber{
				{ProtocolVersion: "H003", Value: "02.40"},
				{ProtocolVersion: "H004", Value: "02.50"},
			},
		})
	case "ebicsUnsecuredRequest":
		return b.handleUnsecured(request)
	case "ebicsNoPubKeyDigestsRequest":
		return b.handleHPB(request)
	case "ebicsRequest":
		return b.handleRequest(request)
	}
	return nil, fmt.Errorf("unsupported request <%s>", root.Tag)
}

func (b *Bank) takeFault(phase string, segmentNumber int) string {
	for i, f := range b.faults {
		if f.phase == phase && (f.segment == 0 || f.segment == segmentNumber) {
			b.faults = append(b.faults[:i], b.faults[i+1:]...)
			return f.code
		}
	}
	return ""
}

func (b *Bank) handleUnsecured(request []byte) ([]byte, error) {
	var req message.UnsecuredRequest
	if err := xml.Unmarshal(request, &req); err != nil {
		return b.keyManagement(codeInvalidRequest, nil)
	}
	static := req.Header.Static
	if static.OrderDetails == nil {
		return b.keyManagement(codeInvalidContent, nil)
	}
	orderType := static.OrderDetails.OrderType
	b.requests = append(b.requests, orderType)

	if static.HostID != b.HostID {
		return b.keyManagement(codeInvalidHostID, nil)
	}
	sub, ok := b.subscribers[subscriberKey(static.PartnerID, static.UserID)]
	if !ok {
		return b.keyManagement(codeUserUnknown, nil)
	}
	if code := b.takeFault(orderType, 0); code != "" {
		return b.keyManagement(code, nil)
	}

	raw, err := compression.NewCompressor().Decompress(req.Body.DataTransfer.OrderData)
	if err != nil {
		return b.keyManagement(codeInvalidContent, nil)
	}

	switch orderType {
	case "INI":
		if sub.Signature != nil {
			return b.keyManagement(codeInvalidUserState, nil)
		}
		var doc message.SignaturePubKeyOrderData
		if err := xml.Unmarshal(raw, &doc); err != nil {
			return b.keyManagement(codeInvalidContent, nil)
		}
		km, err := doc.SignaturePubKeyInfo.PubKeyValue.KeyMaterial(doc.SignaturePubKeyInfo.SignatureVersion)
		if err != nil || !security.IsSignatureVersion(km.Version) {
			return b.keyManagement(codeInvalidContent, nil)
		}
		sub.Signature = km
	case "HIA":
		if sub.Authentication != nil {
			return b.keyManagement(codeInvalidUserState, nil)
		}
		var doc message.HIARequestOrderData
		if err := xml.Unmarshal(raw, &doc); err != nil {
			return b.keyManagement(codeInvalidContent, nil)
		}
		auth, err := doc.AuthenticationPubKeyInfo.PubKeyValue.KeyMaterial(doc.AuthenticationPubKeyInfo.AuthenticationVersion)
		if err != nil {
			return b.keyManagement(codeInvalidContent, nil)
		}
		enc, err := doc.EncryptionPubKeyInfo.PubKeyValue.KeyMaterial(doc.EncryptionPubKeyInfo.EncryptionVersion)
		if err != nil {
			return b.keyManagement(codeInvalidContent, nil)
		}
		sub.Authentication, sub.Encryption = auth, enc
	default:
		return b.keyManagement(codeInvalidOrderType, nil)
	}
	return b.keyManagement(message.CodeOK, nil)
}

func (b *Bank) handleHPB(request []byte) ([]byte, error) {
	b.requests = append(b.requests, "HPB")

	var req message.NoPubKeyDigestsRequest
	if err := xml.Unmarshal(request, &req); err != nil {
		return b.keyManagement(codeInvalidRequest, nil)
	}
	static := req.Header.Static
	if static.HostID != b.HostID {
		return b.keyManagement(codeInvalidHostID, nil)
	}
	sub, ok := b.subscribers[subscriberKey(static.PartnerID, static.UserID)]
	if !ok {
		return b.keyManagement(codeUserUnknown, nil)
	}
	if !sub.Ready() {
		return b.keyManagement(codeInvalidUserState, nil)
	}
	if err := security.VerifyAuthSignature(request, sub.Authentication.Public); err != nil {
		return b.keyManagement(codeAuthenticationFailed, nil)
	}
	if code := b.takeFault("HPB", 0); code != "" {
		return b.keyManagement(code, nil)
	}

	raw, err := message.MarshalDocument(message.HPBResponseOrderData{
		AuthenticationPubKeyInfo: message.AuthenticationPubKeyInfo{
			PubKeyValue:           message.NewPubKeyValue(b.Authentication),
			AuthenticationVersion: security.VersionX002,
		},
		EncryptionPubKeyInfo: message.EncryptionPubKeyInfo{
			PubKeyValue:       message.NewPubKeyValue(b.Encryption),
			EncryptionVersion: security.VersionE002,
		},
		HostID: b.HostID,
	})
	if err != nil {
		return nil, err
	}
	dt, err := encryptFor(raw, sub.Encryption)
	if err != nil {
		return nil, err
	}
	return b.keyManagement(message.CodeOK, &message.ResponseDataTransfer{
		DataEncryptionInfo: dt.info,
		OrderData:          dt.ciphertext,
	})
}

type encrypted struct {
	info       *message.DataEncryptionInfo
	ciphertext []byte
}

// encryptFor compresses and encrypts data under a fresh transaction key
// wrapped for the recipient
func encryptFor(data []byte, recipient *security.KeyMaterial) (*encrypted, error) {
	compressed, err := compression.NewCompressor().Compress(data)
	if err != nil {
		return nil, err
	}
	nonce, err := security.GenerateNonce()
	if err != nil {
		return nil, err
	}
	ciphertext, err := security.EncryptPayload(compressed, nonce)
	if err != nil {
		return nil, err
	}
	wrapped, err := security.WrapKey(nonce, recipient.Public)
	if err != nil {
		return nil, err
	}
	return &encrypted{
		info: &message.DataEncryptionInfo{
			Authenticate: true,
			EncryptionPubKeyDigest: message.PubKeyDigest{
				Version:   security.VersionE002,
				Algorithm: message.DigestAlgorithm,
				Value:     recipient.Digest,
			},
			TransactionKey: wrapped,
		},
		ciphertext: ciphertext,
	}, nil
}

func (b *Bank) handleRequest(request []byte) ([]byte, error) {
	var req message.Request
	if err := xml.Unmarshal(request, &req); err != nil {
		return b.response(nil, message.PhaseInitialisation, codeInvalidRequest, "", nil)
	}
	static := req.Header.Static
	phase := req.Header.Mutable.TransactionPhase
	if static.HostID != b.HostID {
		return b.response(nil, phase, codeInvalidHostID, "", nil)
	}

	if phase == message.PhaseInitialisation {
		return b.initialise(request, &req)
	}

	tx, ok := b.txs[static.TransactionID]
	if !ok {
		return b.response(nil, phase, codeUnknownTransaction, "", nil)
	}
	if err := security.VerifyAuthSignature(request, tx.sub.Authentication.Public); err != nil {
		return b.response(tx, phase, codeAuthenticationFailed, "", nil)
	}

	switch phase {
	case message.PhaseTransfer:
		if tx.upload {
			return b.uploadSegment(tx, &req)
		}
		return b.downloadSegment(tx, &req)
	case message.PhaseReceipt:
		return b.receipt(tx, &req)
	}
	return b.response(tx, phase, codeInvalidContent, "", nil)
}

func (b *Bank) initialise(request []byte, req *message.Request) ([]byte, error) {
	static := req.Header.Static
	phase := message.PhaseInitialisation
	if static.OrderDetails == nil {
		return b.response(nil, phase, codeInvalidContent, "", nil)
	}
	orderType := static.OrderDetails.OrderType
	b.requests = append(b.requests, orderType+" "+phase)

	sub, ok := b.subscribers[subscriberKey(static.PartnerID, static.UserID)]
	if !ok {
		return b.response(nil, phase, codeUserUnknown, "", nil)
	}
	if !sub.Ready() || sub.Suspended {
		return b.response(nil, phase, codeInvalidUserState, "", nil)
	}
	if err := security.VerifyAuthSignature(request, sub.Authentication.Public); err != nil {
		return b.response(nil, phase, codeAuthenticationFailed, "", nil)
	}
	digests := static.BankPubKeyDigests
	if digests == nil ||
		!bytes.Equal(digests.Authentication.Value, b.Authentication.Digest) ||
		!bytes.Equal(digests.Encryption.Value, b.Encryption.Digest) {
		return b.response(nil, phase, codeBankPubKeyUpdate, "", nil)
	}
	desc, err := order.Lookup(orderType)
	if err != nil || desc.Direction == order.KeyManagement {
		return b.response(nil, phase, codeInvalidOrderType, "", nil)
	}
	if code := b.takeFault(phase, 0); code != "" {
		return b.response(nil, phase, code, "", nil)
	}

	tx := &transaction{
		id:        newTransactionID(),
		orderType: orderType,
		orderID:   b.nextOrderID(),
		sub:       sub,
		upload:    desc.IsUpload(),
		next:      1,
	}
	if tx.upload {
		return b.initUpload(tx, req)
	}
	return b.initDownload(tx)
}

func (b *Bank) initUpload(tx *transaction, req *message.Request) ([]byte, error) {
	phase := message.PhaseInitialisation
	static := req.Header.Static
	dt := req.Body.DataTransfer
	if static.NumSegments == nil || dt == nil || dt.DataEncryptionInfo == nil || dt.SignatureData == nil {
		return b.response(nil, phase, codeInvalidContent, "", nil)
	}
	if !bytes.Equal(dt.DataEncryptionInfo.EncryptionPubKeyDigest.Value, b.Encryption.Digest) {
		return b.response(nil, phase, codeBankPubKeyUpdate, "", nil)
	}

	nonce, err := security.UnwrapKey(dt.DataEncryptionInfo.TransactionKey, b.Encryption)
	if err != nil {
		return b.response(nil, phase, codeInvalidContent, "", nil)
	}
	compressed, err := security.DecryptPayload(dt.SignatureData.Value, nonce)
	if err != nil {
		return b.response(nil, phase, codeInvalidContent, "", nil)
	}
	raw, err := compression.NewCompressor().Decompress(compressed)
	if err != nil {
		return b.response(nil, phase, codeInvalidContent, "", nil)
	}
	var sigs message.UserSignatureData
	if err := xml.Unmarshal(raw, &sigs); err != nil || len(sigs.OrderSignatureData) == 0 {
		return b.response(nil, phase, codeInvalidContent, "", nil)
	}

	tx.nonce = nonce
	tx.numSegments = *static.NumSegments
	tx.signatures = sigs.OrderSignatureData

	if tx.numSegments == 0 {
		// Signature-only orders. SPR signs a single space.
		if tx.orderType == "SPR" {
			if err := b.verifySignatures(tx, []byte(" ")); err != nil {
				return b.response(nil, phase, message.CodeOK, codeSignatureVerifyError, nil)
			}
			tx.sub.Suspended = true
		}
		b.uploads = append(b.uploads, Upload{
			OrderType:     tx.orderType,
			OrderID:       tx.orderID,
			TransactionID: tx.id,
			SignatureOnly: true,
		})
		return b.response(tx, phase, message.CodeOK, "", nil)
	}

	b.txs[tx.id] = tx
	return b.response(tx, phase, message.CodeOK, "", nil)
}

func (b *Bank) verifySignatures(tx *transaction, payload []byte) error {
	for _, sig := range tx.signatures {
		if sig.PartnerID != tx.sub.PartnerID || sig.UserID != tx.sub.UserID {
			return errors.New("signer mismatch")
		}
		if err := security.VerifySignature(payload, sig.SignatureValue, tx.sub.Signature.Public, sig.SignatureVersion); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bank) uploadSegment(tx *transaction, req *message.Request) ([]byte, error) {
	phase := message.PhaseTransfer
	seg := req.Header.Mutable.SegmentNumber
	if seg == nil || req.Body.DataTransfer == nil || req.Body.DataTransfer.OrderData == nil {
		return b.response(tx, phase, codeInvalidContent, "", nil)
	}
	b.requests = append(b.requests, fmt.Sprintf("%s %s %d", tx.orderType, phase, seg.Value))

	switch {
	case seg.Value > tx.numSegments:
		return b.response(tx, phase, codeSegmentNumberExceeded, "", nil)
	case seg.Value != tx.next:
		return b.response(tx, phase, codeSegmentUnderrun, "", nil)
	}
	if code := b.takeFault(phase, seg.Value); code != "" {
		return b.response(tx, phase, code, "", nil)
	}

	tx.buf.Write(*req.Body.DataTransfer.OrderData)
	tx.next++

	if seg.Value < tx.numSegments {
		return b.response(tx, phase, message.CodeOK, "", nil)
	}

	delete(b.txs, tx.id)
	compressed, err := security.DecryptPayload(tx.buf.Bytes(), tx.nonce)
	if err != nil {
		return b.response(tx, phase, message.CodeOK, codeInvalidOrderData, nil)
	}
	payload, err := compression.NewCompressor().Decompress(compressed)
	if err != nil {
		return b.response(tx, phase, message.CodeOK, codeInvalidOrderData, nil)
	}
	if err := b.verifySignatures(tx, payload); err != nil {
		return b.response(tx, phase, message.CodeOK, codeSignatureVerifyError, nil)
	}
	b.uploads = append(b.uploads, Upload{
		OrderType:     tx.orderType,
		OrderID:       tx.orderID,
		TransactionID: tx.id,
		Data:          payload,
	})
	return b.response(tx, phase, message.CodeOK, "", nil)
}

func (b *Bank) initDownload(tx *transaction) ([]byte, error) {
	phase := message.PhaseInitialisation
	queue := b.downloads[tx.orderType]
	if len(queue) == 0 {
		return b.response(nil, phase, message.CodeOK, message.CodeNoDownloadDataAvailable, nil)
	}

	enc, err := encryptFor(queue[0], tx.sub.Encryption)
	if err != nil {
		return nil, err
	}
	if b.corrupt {
		enc.ciphertext[0] ^= 0xff
		b.corrupt = false
	}

	size := b.SegmentSize
	if size <= 0 {
		size = segment.SegmentSize
	}
	tx.segments = segment.Split(enc.ciphertext, size)
	tx.numSegments = len(tx.segments)
	tx.next = 2
	b.txs[tx.id] = tx

	return b.response(tx, phase, message.CodeOK, "", &message.ResponseDataTransfer{
		DataEncryptionInfo: enc.info,
		OrderData:          tx.segments[0],
	})
}

func (b *Bank) downloadSegment(tx *transaction, req *message.Request) ([]byte, error) {
	phase := message.PhaseTransfer
	seg := req.Header.Mutable.SegmentNumber
	if seg == nil {
		return b.response(tx, phase, codeInvalidContent, "", nil)
	}
	b.requests = append(b.requests, fmt.Sprintf("%s %s %d", tx.orderType, phase, seg.Value))

	if seg.Value < 2 || seg.Value > tx.numSegments {
		return b.response(tx, phase, codeSegmentNumberExceeded, "", nil)
	}
	if code := b.takeFault(phase, seg.Value); code != "" {
		return b.response(tx, phase, code, "", nil)
	}
	tx.next = seg.Value
	return b.response(tx, phase, message.CodeOK, "", &message.ResponseDataTransfer{
		OrderData: tx.segments[seg.Value-1],
	})
}

func (b *Bank) receipt(tx *transaction, req *message.Request) ([]byte, error) {
	phase := message.PhaseReceipt
	if req.Body.TransferReceipt == nil {
		return b.response(tx, phase, codeInvalidContent, "", nil)
	}
	code := req.Body.TransferReceipt.ReceiptCode
	b.requests = append(b.requests, fmt.Sprintf("%s %s %d", tx.orderType, phase, code))
	b.receipts = append(b.receipts, code)
	delete(b.txs, tx.id)

	if fc := b.takeFault(phase, 0); fc != "" {
		return b.response(tx, phase, fc, "", nil)
	}
	if code != 0 {
		return b.response(tx, phase, message.CodeDownloadPostprocessSkipped, "", nil)
	}
	if queue := b.downloads[tx.orderType]; len(queue) > 0 {
		b.downloads[tx.orderType] = queue[1:]
	}
	return b.response(tx, phase, message.CodeDownloadPostprocessDone, "", nil)
}

// response builds and signs an ebicsResponse. tx may be nil when no
// transaction was opened.
func (b *Bank) response(tx *transaction, phase, technical, business string, dt *message.ResponseDataTransfer) ([]byte, error) {
	if business == "" {
		business = message.CodeOK
	}
	resp := message.EbicsResponse{
		Version:  message.ProtocolVersion,
		Revision: message.ProtocolRevision,
		Header: message.ResponseHeader{
			Authenticate: true,
			Mutable: message.ResponseMutableHeader{
				TransactionPhase: phase,
				ReturnCode:       technical,
				ReportText:       message.LookupReturnCode(technical).String(),
			},
		},
		AuthSignature: &message.AuthSignature{},
		Body: message.ResponseBody{
			DataTransfer: dt,
			ReturnCode:   message.AuthenticatedText{Authenticate: true, Value: business},
		},
	}

	if tx != nil {
		resp.Header.Static.TransactionID = tx.id
		switch phase {
		case message.PhaseInitialisation:
			resp.Header.Mutable.OrderID = tx.orderID
			if !tx.upload {
				n := tx.numSegments
				resp.Header.Static.NumSegments = &n
				resp.Header.Mutable.SegmentNumber = &message.SegmentNumber{Value: 1, LastSegment: n == 1}
			}
		case message.PhaseTransfer:
			seg := tx.next - 1
			if !tx.upload {
				seg = tx.next
			}
			if seg > 0 {
				resp.Header.Mutable.SegmentNumber = &message.SegmentNumber{Value: seg, LastSegment: seg == tx.numSegments}
			}
		}
	}

	raw, err := message.MarshalDocument(resp)
	if err != nil {
		return nil, err
	}
	signer, err := security.NewAuthSigner(b.Authentication)
	if err != nil {
		return nil, err
	}
	return signer.SignRequest(raw)
}

func (b *Bank) keyManagement(technical string, dt *message.ResponseDataTransfer) ([]byte, error) {
	return message.MarshalDocument(message.EbicsKeyManagementResponse{
		Version:  message.ProtocolVersion,
		Revision: message.ProtocolRevision,
		Header: message.ResponseHeader{
			Authenticate: true,
			Mutable: message.ResponseMutableHeader{
				ReturnCode: technical,
				ReportText: message.LookupReturnCode(technical).String(),
			},
		},
		Body: message.ResponseBody{
			DataTransfer: dt,
			ReturnCode:   message.AuthenticatedText{Authenticate: true, Value: message.CodeOK},
		},
	})
}

func (b *Bank) nextOrderID() string {
	b.orderSeq++
	return fmt.Sprintf("A%03d", b.orderSeq)
}

func newTransactionID() string {
	buf := make([]byte, 16)
	rand.Read(buf)
	return strings.ToUpper(hex.EncodeToString(buf))
}
