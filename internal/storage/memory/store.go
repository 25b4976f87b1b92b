// Package memory implements storage interfaces in process memory
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sirosfoundation/go-ebics/internal/storage"
)

// Store implements storage.Store with maps
type Store struct {
	mu           sync.RWMutex
	identities   map[string]storage.IdentityRecord
	transactions map[string]storage.TransactionRecord
	payloads     map[string]storage.PayloadData
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		identities:   make(map[string]storage.IdentityRecord),
		transactions: make(map[string]storage.TransactionRecord),
		payloads:     make(map[string]storage.PayloadData),
	}
}

// Close is a no-op
func (s *Store) Close(ctx context.Context) error { return nil }

// Ping always succeeds
func (s *Store) Ping(ctx context.Context) error { return nil }

// IdentityStore implementation

func (s *Store) SaveIdentity(ctx context.Context, rec *storage.IdentityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.ID = storage.IdentityKey(rec.HostID, rec.PartnerID, rec.UserID)
	now := time.Now().UTC()
	if existing, ok := s.identities[rec.ID]; ok {
		rec.CreatedAt = existing.CreatedAt
	} else if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	s.identities[rec.ID] = *rec
	return nil
}

func (s *Store) LoadIdentity(ctx context.Context, hostID, partnerID, userID string) (*storage.IdentityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.identities[storage.IdentityKey(hostID, partnerID, userID)]
	if !ok {
		return nil, fmt.Errorf("identity %s/%s/%s: %w", hostID, partnerID, userID, storage.ErrNotFound)
	}
	return &rec, nil
}

func (s *Store) DeleteIdentity(ctx context.Context, hostID, partnerID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := storage.IdentityKey(hostID, partnerID, userID)
	if _, ok := s.identities[key]; !ok {
		return fmt.Errorf("identity %s: %w", key, storage.ErrNotFound)
	}
	delete(s.identities, key)
	return nil
}

func (s *Store) ListIdentities(ctx context.Context) ([]*storage.IdentityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*storage.IdentityRecord, 0, len(s.identities))
	for _, rec := range s.identities {
		rec := rec
		out = append(out, &rec)
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
	s.transactions[rec.ID] = *rec
	return nil
}

func (s *Store) LoadTransaction(ctx context.Context, id string) (*storage.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if rec, ok := s.transactions[id]; ok {
		return &rec, nil
	}
	for _, rec := range s.transactions {
		if rec.TransactionID == id {
			return &rec, nil
		}
	}
	return nil, fmt.Errorf("transaction %s: %w", id, storage.ErrNotFound)
}

func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.transactions[id]; !ok {
		return fmt.Errorf("transaction %s: %w", id, storage.ErrNotFound)
	}
	delete(s.transactions, id)
	return nil
}

func (s *Store) ListTransactions(ctx context.Context, filter *storage.TransactionFilter) ([]*storage.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*storage.TransactionRecord
	for _, rec := range s.transactions {
		if filter.Match(&rec) {
			rec := rec
			out = append(out, &rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if filter != nil && filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// PayloadStore implementation

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
	stored := *payload
	stored.Data = append([]byte(nil), payload.Data...)
	s.payloads[payload.ID] = stored
	return payload.ID, nil
}

func (s *Store) GetPayload(ctx context.Context, id string) (*storage.PayloadData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.payloads[id]
	if !ok {
		return nil, fmt.Errorf("payload %s: %w", id, storage.ErrNotFound)
	}
	p.Data = append([]byte(nil), p.Data...)
	return &p, nil
}

func (s *Store) DeletePayload(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.payloads[id]; !ok {
		return fmt.Errorf("payload %s: %w", id, storage.ErrNotFound)
	}
	delete(s.payloads, id)
	return nil
}

var _ storage.Store = (*Store)(nil)
