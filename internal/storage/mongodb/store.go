// Package mongodb implements storage interfaces using MongoDB
package mongodb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sirosfoundation/go-ebics/internal/storage"
)

// Store implements storage.Store using MongoDB
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	gridfs *gridfs.Bucket

	// Collections
	identities   *mongo.Collection
	transactions *mongo.Collection
}

// Config holds MongoDB connection settings
type Config struct {
	URI            string
	Database       string
	GridFSBucket   string
	ChunkSizeBytes int32
}

// NewStore creates a new MongoDB store
func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}

	db := client.Database(cfg.Database)

	// Downloaded order data goes to GridFS
	bucketName := cfg.GridFSBucket
	if bucketName == "" {
		bucketName = "payloads"
	}
	chunkSize := cfg.ChunkSizeBytes
	if chunkSize == 0 {
		chunkSize = 261120 // 255KB
	}
	bucket, err := gridfs.NewBucket(db, options.GridFSBucket().
		SetName(bucketName).
		SetChunkSizeBytes(chunkSize))
	if err != nil {
		return nil, fmt.Errorf("creating GridFS bucket: %w", err)
	}

	s := &Store{
		client:       client,
		db:           db,
		gridfs:       bucket,
		identities:   db.Collection("identities"),
		transactions: db.Collection("transactions"),
	}

	if err := s.createIndexes(ctx); err != nil {
		return nil, fmt.Errorf("creating indexes: %w", err)
	}

	return s, nil
}

func (s *Store) createIndexes(ctx context.Context) error {
	_, err := s.identities.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "host_id", Value: 1}, {Key: "partner_id", Value: 1}, {Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return fmt.Errorf("creating identity indexes: %w", err)
	}

	_, err = s.transactions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "transaction_id", Value: 1}}},
		{Keys: bson.D{{Key: "host_id", Value: 1}, {Key: "user_id", Value: 1}, {Key: "updated_at", Value: -1}}},
		{Keys: bson.D{{Key: "phase", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("creating transaction indexes: %w", err)
	}

	return nil
}

// Close closes the MongoDB connection
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ping verifies database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// IdentityStore implementation

func (s *Store) SaveIdentity(ctx context.Context, rec *storage.IdentityRecord) error {
	rec.ID = storage.IdentityKey(rec.HostID, rec.PartnerID, rec.UserID)
	now := time.Now().UTC()

	var existing struct {
		CreatedAt time.Time `bson:"created_at"`
	}
	err := s.identities.FindOne(ctx, bson.M{"_id": rec.ID},
		options.FindOne().SetProjection(bson.M{"created_at": 1})).Decode(&existing)
	switch {
	case err == nil:
		rec.CreatedAt = existing.CreatedAt
	case errors.Is(err, mongo.ErrNoDocuments):
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
	default:
		return err
	}
	rec.UpdatedAt = now

	_, err = s.identities.ReplaceOne(ctx, bson.M{"_id": rec.ID}, rec, options.Replace().SetUpsert(true))
	return err
}

func (s *Store) LoadIdentity(ctx context.Context, hostID, partnerID, userID string) (*storage.IdentityRecord, error) {
	key := storage.IdentityKey(hostID, partnerID, userID)
	var rec storage.IdentityRecord
	err := s.identities.FindOne(ctx, bson.M{"_id": key}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("identity %s: %w", key, storage.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) DeleteIdentity(ctx context.Context, hostID, partnerID, userID string) error {
	key := storage.IdentityKey(hostID, partnerID, userID)
	res, err := s.identities.DeleteOne(ctx, bson.M{"_id": key})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("identity %s: %w", key, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) ListIdentities(ctx context.Context) ([]*storage.IdentityRecord, error) {
	cursor, err := s.identities.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []*storage.IdentityRecord
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// TransactionStore implementation

func (s *Store) SaveTransaction(ctx context.Context, rec *storage.TransactionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	_, err := s.transactions.ReplaceOne(ctx, bson.M{"_id": rec.ID}, rec, options.Replace().SetUpsert(true))
	return err
}

func (s *Store) LoadTransaction(ctx context.Context, id string) (*storage.TransactionRecord, error) {
	var rec storage.TransactionRecord
	query := bson.M{"$or": []bson.M{{"_id": id}, {"transaction_id": id}}}
	err := s.transactions.FindOne(ctx, query).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("transaction %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	res, err := s.transactions.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("transaction %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) ListTransactions(ctx context.Context, filter *storage.TransactionFilter) ([]*storage.TransactionRecord, error) {
	query, opts := transactionQuery(filter)
	cursor, err := s.transactions.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []*storage.TransactionRecord
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// transactionQuery translates a filter into a find query, newest first
func transactionQuery(filter *storage.TransactionFilter) (bson.M, *options.FindOptions) {
	query := bson.M{}
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	if filter == nil {
		return query, opts
	}
	if filter.HostID != "" {
		query["host_id"] = filter.HostID
	}
	if filter.PartnerID != "" {
		query["partner_id"] = filter.PartnerID
	}
	if filter.UserID != "" {
		query["user_id"] = filter.UserID
	}
	if filter.OrderType != "" {
		query["order_type"] = filter.OrderType
	}
	phase := bson.M{}
	if filter.Phase != "" {
		phase["$eq"] = filter.Phase
	}
	if filter.Incomplete {
		phase["$ne"] = storage.PhaseDone
	}
	if len(phase) > 0 {
		query["phase"] = phase
	}
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	return query, opts
}

// PayloadStore implementation using GridFS

func (s *Store) StorePayload(ctx context.Context, payload *storage.PayloadData) (string, error) {
	if payload.Checksum == "" {
		payload.Checksum = storage.Checksum(payload.Data)
	}
	if payload.ID == "" {
		payload.ID = uuid.New().String()
	}
	if payload.CreatedAt.IsZero() {
		payload.CreatedAt = time.Now().UTC()
	}

	uploadOpts := options.GridFSUpload().SetMetadata(payloadMetadata(payload))
	err := s.gridfs.UploadFromStreamWithID(payload.ID, payloadFilename(payload), bytes.NewReader(payload.Data), uploadOpts)
	if err != nil {
		return "", fmt.Errorf("writing payload: %w", err)
	}
	return payload.ID, nil
}

func (s *Store) GetPayload(ctx context.Context, id string) (*storage.PayloadData, error) {
	downloadStream, err := s.gridfs.OpenDownloadStream(id)
	if errors.Is(err, gridfs.ErrFileNotFound) {
		return nil, fmt.Errorf("payload %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("opening download stream: %w", err)
	}
	defer downloadStream.Close()

	data, err := io.ReadAll(downloadStream)
	if err != nil {
		return nil, fmt.Errorf("reading payload: %w", err)
	}

	file := downloadStream.GetFile()
	return payloadFromFile(id, data, file.Metadata, file.UploadDate)
}

func payloadFilename(p *storage.PayloadData) string {
	return fmt.Sprintf("%s/%s/%s", p.HostID, p.OrderType, p.ID)
}

func payloadMetadata(p *storage.PayloadData) bson.M {
	return bson.M{
		"order_type":     p.OrderType,
		"host_id":        p.HostID,
		"user_id":        p.UserID,
		"transaction_id": p.TransactionID,
		"checksum":       p.Checksum,
		"created_at":     p.CreatedAt,
	}
}

// payloadFromFile rebuilds a payload from GridFS file metadata and checks
// the stored checksum
func payloadFromFile(id string, data []byte, metadata bson.Raw, uploaded time.Time) (*storage.PayloadData, error) {
	str := func(key string) string {
		v, _ := metadata.Lookup(key).StringValueOK()
		return v
	}
	payload := &storage.PayloadData{
		ID:            id,
		OrderType:     str("order_type"),
		HostID:        str("host_id"),
		UserID:        str("user_id"),
		TransactionID: str("transaction_id"),
		Checksum:      str("checksum"),
		Data:          data,
		CreatedAt:     uploaded,
	}
	if storage.Checksum(data) != payload.Checksum {
		return nil, fmt.Errorf("payload %s: checksum mismatch", id)
	}
	return payload, nil
}

func (s *Store) DeletePayload(ctx context.Context, id string) error {
	err := s.gridfs.Delete(id)
	if errors.Is(err, gridfs.ErrFileNotFound) {
		return fmt.Errorf("payload %s: %w", id, storage.ErrNotFound)
	}
	return err
}

var _ storage.Store = (*Store)(nil)
