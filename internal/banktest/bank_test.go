package banktest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-ebics/pkg/message"
	"github.com/sirosfoundation/go-ebics/pkg/transport"
)

func TestBank_HEVOverHTTP(t *testing.T) {
	bank, err := New("EBIXTEST")
	require.NoError(t, err)

	server := httptest.NewServer(bank)
	defer server.Close()

	req, err := message.MarshalDocument(message.NewBuilder().HEV("EBIXTEST"))
	require.NoError(t, err)

	raw, err := transport.NewHTTPSClient(nil).Send(context.Background(), server.URL, req, "")
	require.NoError(t, err)

	resp, err := message.ParseResponse(raw)
	require.NoError(t, err)
	hev, ok := resp.(*message.HEVResponse)
	require.True(t, ok)
	assert.True(t, hev.Supports("H004"))
	assert.Equal(t, []string{"HEV"}, bank.Requests())
}

func TestBank_RejectsGarbage(t *testing.T) {
	bank, err := New("EBIXTEST")
	require.NoError(t, err)

	server := httptest.NewServer(bank)
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	_, err = bank.Handle([]byte("<unknown/>"))
	assert.Error(t, err)
}

func TestBank_UnknownTransaction(t *testing.T) {
	bank, err := New("EBIXTEST")
	require.NoError(t, err)
	id, err := bank.NewIdentity("PARTNER1", "USER1")
	require.NoError(t, err)

	req := message.NewBuilder().DownloadTransfer(id, "00000000000000000000000000000000", 2, true)
	raw, err := message.MarshalDocument(req)
	require.NoError(t, err)

	out, err := bank.Handle(raw)
	require.NoError(t, err)
	resp, err := message.ParseResponse(out)
	require.NoError(t, err)
	assert.Equal(t, "091101", resp.Result().Code)
}
