package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultHTTPSConfig(t *testing.T) {
	config := DefaultHTTPSConfig()

	assert.Equal(t, uint16(TLS12), config.MinTLSVersion)
	assert.Equal(t, uint16(TLS13), config.MaxTLSVersion)
	assert.NotEmpty(t, config.CipherSuites)
	assert.Equal(t, 60*time.Second, config.Timeout)
	assert.Equal(t, DefaultUserAgent, config.UserAgent)

	for _, suite := range RecommendedTLS12CipherSuites {
		assert.NotEmpty(t, tls.CipherSuiteName(suite))
	}
}

func TestNewHTTPSClient_NilConfig(t *testing.T) {
	client := NewHTTPSClient(nil)
	require.NotNil(t, client.client)
	require.NotNil(t, client.config)
}

func TestHTTPSClient_Send(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, ContentTypeXML, r.Header.Get("Content-Type"))
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))

		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "<ebicsRequest/>", string(body))

		w.Header().Set("Content-Type", "text/xml")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("<ebicsResponse/>"))
	}))
	defer server.Close()

	client := NewHTTPSClient(nil)

	response, err := client.Send(context.Background(), server.URL, []byte("<ebicsRequest/>"), "")
	require.NoError(t, err)
	assert.Equal(t, "<ebicsResponse/>", string(response))
}

func TestHTTPSClient_Send_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("maintenance"))
	}))
	defer server.Close()

	_, err := NewHTTPSClient(nil).Send(context.Background(), server.URL, []byte("<ebicsRequest/>"), ContentTypeXML)

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, http.StatusServiceUnavailable, transportErr.StatusCode)
	assert.Equal(t, "maintenance", string(transportErr.Body))
	assert.Contains(t, err.Error(), "503")
}

func TestHTTPSClient_Send_InvalidURL(t *testing.T) {
	_, err := NewHTTPSClient(nil).Send(context.Background(), "http://invalid.invalid.invalid:99999", []byte("<ebicsRequest/>"), ContentTypeXML)

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Zero(t, transportErr.StatusCode)
}

func TestHTTPSClient_Send_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHTTPSClient(nil).Send(ctx, server.URL, []byte("<ebicsRequest/>"), ContentTypeXML)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestHTTPSClient_Send_ResponseTooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer server.Close()

	config := DefaultHTTPSConfig()
	config.MaxResponseSize = 10

	_, err := NewHTTPSClient(config).Send(context.Background(), server.URL, []byte("<ebicsRequest/>"), ContentTypeXML)
	assert.ErrorIs(t, err, ErrResponseTooLarge)
}

func TestHTTPSClient_CustomUserAgent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.Header.Get("User-Agent")))
	}))
	defer server.Close()

	config := DefaultHTTPSConfig()
	config.UserAgent = "treasury/2.1"

	resp, err := NewHTTPSClient(config).Send(context.Background(), server.URL, nil, ContentTypeXML)
	require.NoError(t, err)
	assert.Equal(t, "treasury/2.1", string(resp))
}
