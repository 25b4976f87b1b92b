package ebics

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/sirosfoundation/go-ebics/internal/config"
	"github.com/sirosfoundation/go-ebics/internal/keystore"
	"github.com/sirosfoundation/go-ebics/internal/storage"
	"github.com/sirosfoundation/go-ebics/internal/storage/file"
	"github.com/sirosfoundation/go-ebics/internal/storage/memory"
	"github.com/sirosfoundation/go-ebics/internal/storage/mongodb"
	"github.com/sirosfoundation/go-ebics/pkg/identity"
	"github.com/sirosfoundation/go-ebics/pkg/keymgmt"
	"github.com/sirosfoundation/go-ebics/pkg/message"
	"github.com/sirosfoundation/go-ebics/pkg/order"
	"github.com/sirosfoundation/go-ebics/pkg/transaction"
	"github.com/sirosfoundation/go-ebics/pkg/transport"
)

var (
	// ErrNotEnrolled is returned before CreateUser has been run
	ErrNotEnrolled = errors.New("subscriber not created")
	// ErrAlreadyEnrolled is returned by CreateUser for an existing subscriber
	ErrAlreadyEnrolled = errors.New("subscriber already created")
)

// Client is the main EBICS client for one subscriber
type Client struct {
	cfg       *config.Config
	engine    *transaction.Engine
	handshake *keymgmt.Handshake
	registry  *order.Registry
	store     storage.Store
	keys      keystore.Provider
	logger    *slog.Logger

	mu   sync.Mutex
	last map[string]transaction.State
}

type options struct {
	transport transaction.Transport
	store     storage.Store
	keys      keystore.Provider
	logger    *slog.Logger
}

// Option represents a functional option for Client
type Option func(*options)

// WithTransport replaces the HTTPS transport
func WithTransport(t transaction.Transport) Option {
	return func(o *options) {
		o.transport = t
	}
}

// WithStore replaces the configured record store
func WithStore(s storage.Store) Option {
	return func(o *options) {
		o.store = s
	}
}

// WithKeyProvider replaces the configured key store
func WithKeyProvider(p keystore.Provider) Option {
	return func(o *options) {
		o.keys = p
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// New creates a client from configuration
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	if o.transport == nil {
		httpsConfig, err := HTTPSConfig(&cfg.Transport)
		if err != nil {
			return nil, err
		}
		o.transport = transport.NewHTTPSClient(httpsConfig)
	}

	if o.keys == nil {
		keys, err := keystore.NewProvider(&cfg.Keys)
		if err != nil {
			return nil, fmt.Errorf("opening keystore: %w", err)
		}
		o.keys = keys
	}

	if o.store == nil {
		store, err := OpenStore(ctx, &cfg.Storage)
		if err != nil {
			o.keys.Close()
			return nil, err
		}
		o.store = store
	}

	c := &Client{
		cfg:      cfg,
		registry: order.NewRegistry(),
		store:    o.store,
		keys:     o.keys,
		logger:   o.logger,
		last:     make(map[string]transaction.State),
	}

	builder := message.NewBuilder(
		message.WithProduct(cfg.Product.Name, cfg.Product.Language),
		message.WithInstituteID(cfg.Product.InstituteID),
	)
	c.engine = transaction.NewEngine(o.transport, builder,
		transaction.WithLogger(o.logger),
		transaction.WithRegistry(c.registry),
		transaction.WithStateObserver(c.recordState),
		transaction.WithResponseVerification(cfg.Engine.VerifyResponses),
	)
	c.handshake = keymgmt.New(c.engine, keymgmt.WithLogger(o.logger))
	return c, nil
}

// HTTPSConfig translates transport settings
func HTTPSConfig(cfg *config.TransportConfig) (*transport.HTTPSConfig, error) {
	hc := transport.DefaultHTTPSConfig()
	hc.Timeout = cfg.Timeout
	hc.InsecureSkipVerify = cfg.InsecureSkipVerify
	hc.MaxResponseSize = cfg.MaxResponseSize
	if cfg.UserAgent != "" {
		hc.UserAgent = cfg.UserAgent
	}
	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("reading CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates in CA file %s", cfg.CAFile)
		}
		hc.RootCAs = pool
	}
	return hc, nil
}

// OpenStore opens the configured record store
func OpenStore(ctx context.Context, cfg *config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case "memory":
		return memory.NewStore(), nil
	case "file":
		return file.NewStore(cfg.File.Dir)
	case "mongodb":
		return mongodb.NewStore(ctx, &mongodb.Config{
			URI:            cfg.MongoDB.URI,
			Database:       cfg.MongoDB.Database,
			GridFSBucket:   cfg.MongoDB.GridFS.BucketName,
			ChunkSizeBytes: int32(cfg.MongoDB.GridFS.ChunkSizeBytes),
		})
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

// Close releases the store and the key store
func (c *Client) Close(ctx context.Context) error {
	return errors.Join(c.store.Close(ctx), c.keys.Close())
}

// Engine exposes the underlying transaction engine
func (c *Client) Engine() *transaction.Engine {
	return c.engine
}

// recordState persists every state change reported by the engine
func (c *Client) recordState(ctx context.Context, s transaction.State) error {
	rec := storage.NewTransactionRecord(s)
	if existing, err := c.store.LoadTransaction(ctx, s.ID); err == nil {
		rec.CreatedAt = existing.CreatedAt
		rec.PayloadID = existing.PayloadID
	}
	if err := c.store.SaveTransaction(ctx, rec); err != nil {
		return err
	}

	c.mu.Lock()
	c.last[s.HostID+"/"+s.PartnerID+"/"+s.UserID] = s
	c.mu.Unlock()
	return nil
}

// lastState returns the most recent state recorded for id
func (c *Client) lastState(id *identity.Identity) (transaction.State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.last[id.Key()]
	return s, ok
}

// recordFailure stores the error on the transaction record of a failed transfer
func (c *Client) recordFailure(ctx context.Context, err error) {
	var transferErr *transaction.TransferError
	if !errors.As(err, &transferErr) || transferErr.State.ID == "" {
		return
	}
	rec, loadErr := c.store.LoadTransaction(ctx, transferErr.State.ID)
	if loadErr != nil {
		rec = storage.NewTransactionRecord(transferErr.State)
	}
	rec.LastError = err.Error()
	if saveErr := c.store.SaveTransaction(ctx, rec); saveErr != nil {
		c.logger.Warn("failed to record transfer error", "transaction_id", rec.TransactionID, "error", saveErr)
	}
}
