package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TLS version constants
const (
	TLS12 = tls.VersionTLS12
	TLS13 = tls.VersionTLS13
)

// ContentTypeXML is the content type of every EBICS request
const ContentTypeXML = "application/xml; charset=UTF-8"

// DefaultUserAgent is sent unless configured otherwise
const DefaultUserAgent = "go-ebics/1.0"

// Recommended TLS 1.2 cipher suites for EBICS hosts
var RecommendedTLS12CipherSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
}

// HTTPSConfig contains HTTPS client configuration
type HTTPSConfig struct {
	MinTLSVersion      uint16
	MaxTLSVersion      uint16
	CipherSuites       []uint16
	Certificates       []tls.Certificate
	RootCAs            *x509.CertPool
	InsecureSkipVerify bool
	Timeout            time.Duration
	IdleConnTimeout    time.Duration
	UserAgent          string
	// MaxResponseSize bounds the response body; 0 means unlimited
	MaxResponseSize int64
}

// DefaultHTTPSConfig returns a default HTTPS configuration
func DefaultHTTPSConfig() *HTTPSConfig {
	return &HTTPSConfig{
		MinTLSVersion:   TLS12,
		MaxTLSVersion:   TLS13,
		CipherSuites:    RecommendedTLS12CipherSuites,
		Timeout:         60 * time.Second,
		IdleConnTimeout: 90 * time.Second,
		UserAgent:       DefaultUserAgent,
		MaxResponseSize: 16 << 20,
	}
}

// TransportError reports a failed HTTP exchange. StatusCode is 0 when no
// response was received.
type TransportError struct {
	Endpoint   string
	StatusCode int
	Body       []byte
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport: unexpected status code %d from %s: %s", e.StatusCode, e.Endpoint, truncate(e.Body, 256))
	}
	return fmt.Sprintf("transport: %s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ErrResponseTooLarge is returned when the bank response exceeds MaxResponseSize
var ErrResponseTooLarge = errors.New("response too large")

// HTTPSClient sends EBICS requests over HTTPS
type HTTPSClient struct {
	client *http.Client
	config *HTTPSConfig
}

// NewHTTPSClient creates a new HTTPS client
func NewHTTPSClient(config *HTTPSConfig) *HTTPSClient {
	if config == nil {
		config = DefaultHTTPSConfig()
	}

	tlsConfig := &tls.Config{
		MinVersion:         config.MinTLSVersion,
		MaxVersion:         config.MaxTLSVersion,
		CipherSuites:       config.CipherSuites,
		Certificates:       config.Certificates,
		RootCAs:            config.RootCAs,
		InsecureSkipVerify: config.InsecureSkipVerify,
	}

	transport := &http.Transport{
		TLSClientConfig:     tlsConfig,
		IdleConnTimeout:     config.IdleConnTimeout,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
	}

	return &HTTPSClient{
		client: &http.Client{
			Transport: transport,
			Timeout:   config.Timeout,
		},
		config: config,
	}
}

// Send posts an EBICS request to the endpoint and returns the response body
func (c *HTTPSClient) Send(ctx context.Context, endpoint string, message []byte, contentType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(message))
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint, Err: fmt.Errorf("failed to create request: %w", err)}
	}

	if contentType == "" {
		contentType = ContentTypeXML
	}
	userAgent := c.config.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint, Err: fmt.Errorf("failed to send request: %w", err)}
	}
	defer resp.Body.Close()

	var body io.Reader = resp.Body
	if c.config.MaxResponseSize > 0 {
		body = io.LimitReader(resp.Body, c.config.MaxResponseSize+1)
	}

	responseBody, err := io.ReadAll(body)
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint, StatusCode: 0, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: responseBody}
	}
	if c.config.MaxResponseSize > 0 && int64(len(responseBody)) > c.config.MaxResponseSize {
		return nil, &TransportError{Endpoint: endpoint, StatusCode: 0, Err: ErrResponseTooLarge}
	}

	return responseBody, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
