package commands

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-ebics/internal/banktest"
	"github.com/sirosfoundation/go-ebics/internal/config"
	"github.com/sirosfoundation/go-ebics/internal/keystore"
	"github.com/sirosfoundation/go-ebics/pkg/ebics"
)

type cli struct {
	bank   *banktest.Bank
	config string
	dir    string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	bank, err := banktest.New("EBIXTEST")
	require.NoError(t, err)
	bank.AddSubscriber("PARTNER1", "USER1")

	server := httptest.NewServer(bank)
	t.Cleanup(server.Close)

	dir := t.TempDir()
	config := filepath.Join(dir, "ebics.yaml")
	require.NoError(t, os.WriteFile(config, []byte(`
bank:
  hostId: EBIXTEST
  url: `+server.URL+`
user:
  partnerId: PARTNER1
  userId: USER1
keys:
  mode: file
  file:
    dir: `+filepath.Join(dir, "keys")+`
storage:
  type: file
  file:
    dir: `+filepath.Join(dir, "data")+`
log:
  level: warn
`), 0o600))

	return &cli{bank: bank, config: config, dir: dir}
}

// run executes one command in a fresh process-like app
func (c *cli) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	a := &app{}
	root := newRootCmd(a)
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--config", c.config}, args...))
	err := a.execute(context.Background(), root)
	return out.String(), err
}

// closeCounter counts Close calls on a key provider
type closeCounter struct {
	keystore.Provider
	closed int
}

func (c *closeCounter) Close() error {
	c.closed++
	return c.Provider.Close()
}

func TestCLI_ClosesClientOnFailure(t *testing.T) {
	c := newCLI(t)
	files, err := keystore.NewFileProvider(filepath.Join(c.dir, "keys"))
	require.NoError(t, err)
	keys := &closeCounter{Provider: files}

	a := &app{opts: []ebics.Option{ebics.WithKeyProvider(keys)}}
	root := newRootCmd(a)
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--config", c.config, "ini"})

	err = a.execute(context.Background(), root)
	assert.ErrorContains(t, err, "subscriber not created")
	assert.Equal(t, 1, keys.closed)
	assert.Nil(t, a.client)
}

func TestCLI_EndToEnd(t *testing.T) {
	c := newCLI(t)

	out, err := c.run(t, "hev")
	require.NoError(t, err)
	assert.Contains(t, out, "H004")

	out, err = c.run(t, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Subscriber PARTNER1/USER1 created at EBIXTEST")
	assert.Contains(t, out, "A006 ")

	out, err = c.run(t, "ini")
	require.NoError(t, err)
	assert.Contains(t, out, "PARTLY_INITIALIZED_INI")

	out, err = c.run(t, "hia")
	require.NoError(t, err)
	assert.Contains(t, out, "INITIALIZED")

	out, err = c.run(t, "hpb")
	require.NoError(t, err)
	assert.Contains(t, out, "X002 ")
	assert.Contains(t, out, "E002 ")

	payload := filepath.Join(c.dir, "pain.xml")
	require.NoError(t, os.WriteFile(payload, []byte("<Document>pain.001</Document>"), 0o600))
	out, err = c.run(t, "upload", "--order", "CCT", payload)
	require.NoError(t, err)
	assert.Contains(t, out, "CCT transaction")
	require.Len(t, c.bank.Uploads(), 1)
	assert.Equal(t, []byte("<Document>pain.001</Document>"), c.bank.Uploads()[0].Data)

	c.bank.QueueDownload("C53", []byte("<Document>camt.053</Document>"))
	statement := filepath.Join(c.dir, "camt.xml")
	_, err = c.run(t, "download", "--order", "C53", "--start", "2024-01-01", "--end", "2024-01-31", "--output", statement)
	require.NoError(t, err)
	data, err := os.ReadFile(statement)
	require.NoError(t, err)
	assert.Equal(t, "<Document>camt.053</Document>", string(data))

	out, err = c.run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Status:    INITIALIZED")
	assert.Contains(t, out, "Bank keys: true")
	assert.NotContains(t, out, "Pending")

	out, err = c.run(t, "spr")
	require.NoError(t, err)
	assert.Contains(t, out, "SUSPENDED_SPR")

	_, err = c.run(t, "reset")
	require.NoError(t, err)
	out, err = c.run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Status:    NEW")
}

func TestCLI_Errors(t *testing.T) {
	c := newCLI(t)

	_, err := c.run(t, "ini")
	assert.ErrorContains(t, err, "subscriber not created")

	_, err = c.run(t, "download", "--order", "C53", "--start", "01/02/2024")
	assert.ErrorContains(t, err, "--start")

	_, err = c.run(t, "upload", filepath.Join(c.dir, "missing.xml"))
	assert.Error(t, err)

	root := newRootCmd(&app{})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--config", filepath.Join(c.dir, "nope.yaml"), "status"})
	assert.ErrorContains(t, root.Execute(), "reading config file")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	logger, err := newLogger(logConfig("debug", "json"), &buf)
	require.NoError(t, err)
	logger.Debug("hello", "order_type", "C53")
	assert.Contains(t, buf.String(), `"order_type":"C53"`)

	_, err = newLogger(logConfig("verbose", "text"), &buf)
	assert.Error(t, err)
}

func logConfig(level, format string) config.LogConfig {
	return config.LogConfig{Level: level, Format: format}
}
