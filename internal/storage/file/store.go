// Package file implements storage interfaces with JSON documents on disk
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sirosfoundation/go-ebics/internal/storage"
)

const (
	identitiesDir   = "identities"
	transactionsDir = "transactions"
	payloadsDir     = "payloads"
)

// Store implements storage.Store below a root directory. Every record is
// one JSON document, written to a temporary file and renamed into place.
type Store struct {
	root string
	mu   sync.RWMutex
}

// NewStore creates the directory layout below root
func NewStore(root string) (*Store, error) {
	for _, dir := range []string{identitiesDir, transactionsDir, payloadsDir} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o700); err != nil {
			return nil, fmt.Errorf("creating storage directory: %w", err)
		}
	}
	return &Store{root: root}, nil
}

// Close is a no-op
func (s *Store) Close(ctx context.Context) error { return nil }

// Ping checks that the root directory is accessible
func (s *Store) Ping(ctx context.Context) error {
	_, err := os.Stat(s.root)
	return err
}

func (s *Store) path(dir, id, ext string) string {
	return filepath.Join(s.root, dir, url.PathEscape(id)+ext)
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(path, data)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return storage.ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func remove(path string) error {
	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return storage.ErrNotFound
	}
	return err
}

// listJSON decodes every document in dir with newRecord
func listJSON[T any](dir string) ([]*T, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []*T
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		rec := new(T)
		if err := readJSON(filepath.Join(dir, e.Name()), rec); err != nil {
			return nil, fmt.Errorf("reading %s: %w", e.Name(), err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// IdentityStore implementation

func (s *Store) SaveIdentity(ctx context.Context, rec *storage.IdentityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.ID = storage.IdentityKey(rec.HostID, rec.PartnerID, rec.UserID)
	path := s.path(identitiesDir, rec.ID, ".json")
	now := time.Now().UTC()

	var existing storage.IdentityRecord
	if err := readJSON(path, &existing); err == nil {
		rec.CreatedAt = existing.CreatedAt
	} else if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	return writeJSON(path, rec)
}

func (s *Store) LoadIdentity(ctx context.Context, hostID, partnerID, userID string) (*storage.IdentityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := storage.IdentityKey(hostID, partnerID, userID)
	var rec storage.IdentityRecord
	if err := readJSON(s.path(identitiesDir, key, ".json"), &rec); err != nil {
		return nil, fmt.Errorf("identity %s: %w", key, err)
	}
	return &rec, nil
}

func (s *Store) DeleteIdentity(ctx context.Context, hostID, partnerID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := storage.IdentityKey(hostID, partnerID, userID)
	if err := remove(s.path(identitiesDir, key, ".json")); err != nil {
		return fmt.Errorf("identity %s: %w", key, err)
	}
	return nil
}

func (s *Store) ListIdentities(ctx context.Context) ([]*storage.IdentityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out, err := listJSON[storage.IdentityRecord](filepath.Join(s.root, identitiesDir))
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// TransactionStore implementation

func (s *Store) SaveTransaction(ctx context.Context, rec *storage.TransactionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	return writeJSON(s.path(transactionsDir, rec.ID, ".json"), rec)
}

func (s *Store) LoadTransaction(ctx context.Context, id string) (*storage.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rec storage.TransactionRecord
	err := readJSON(s.path(transactionsDir, id, ".json"), &rec)
	if err == nil {
		return &rec, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	all, err := listJSON[storage.TransactionRecord](filepath.Join(s.root, transactionsDir))
	if err != nil {
		return nil, err
	}
	for _, r := range all {
		if r.TransactionID == id {
			return r, nil
		}
	}
	return nil, fmt.Errorf("transaction %s: %w", id, storage.ErrNotFound)
}

func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := remove(s.path(transactionsDir, id, ".json")); err != nil {
		return fmt.Errorf("transaction %s: %w", id, err)
	}
	return nil
}

func (s *Store) ListTransactions(ctx context.Context, filter *storage.TransactionFilter) ([]*storage.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all, err := listJSON[storage.TransactionRecord](filepath.Join(s.root, transactionsDir))
	if err != nil {
		return nil, err
	}
	var out []*storage.TransactionRecord
	for _, rec := range all {
		if filter.Match(rec) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if filter != nil && filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// PayloadStore implementation. Metadata and data are separate files.

func (s *Store) StorePayload(ctx context.Context, payload *storage.PayloadData) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if payload.ID == "" {
		payload.ID = uuid.New().String()
	}
	if payload.Checksum == "" {
		payload.Checksum = storage.Checksum(payload.Data)
	}
	if payload.CreatedAt.IsZero() {
		payload.CreatedAt = time.Now().UTC()
	}

	if err := writeAtomic(s.path(payloadsDir, payload.ID, ".bin"), payload.Data); err != nil {
		return "", fmt.Errorf("writing payload: %w", err)
	}
	if err := writeJSON(s.path(payloadsDir, payload.ID, ".json"), payload); err != nil {
		return "", fmt.Errorf("writing payload metadata: %w", err)
	}
	return payload.ID, nil
}

func (s *Store) GetPayload(ctx context.Context, id string) (*storage.PayloadData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var payload storage.PayloadData
	if err := readJSON(s.path(payloadsDir, id, ".json"), &payload); err != nil {
		return nil, fmt.Errorf("payload %s: %w", id, err)
	}
	data, err := os.ReadFile(s.path(payloadsDir, id, ".bin"))
	if err != nil {
		return nil, fmt.Errorf("reading payload: %w", err)
	}
	if storage.Checksum(data) != payload.Checksum {
		return nil, fmt.Errorf("payload %s: checksum mismatch", id)
	}
	payload.Data = data
	return &payload, nil
}

func (s *Store) DeletePayload(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := remove(s.path(payloadsDir, id, ".json")); err != nil {
		return fmt.Errorf("payload %s: %w", id, err)
	}
	if err := os.Remove(s.path(payloadsDir, id, ".bin")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

var _ storage.Store = (*Store)(nil)
