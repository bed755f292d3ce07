package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoStore is a MongoDB-backed Store. FindOneAndUpdate gives the atomic
// per-record patch application the worker pool relies on.
type MongoStore struct {
	coll *mongo.Collection
}

// NewMongoStore creates a Mongo record store over the "notifications"
// collection of the given database.
func NewMongoStore(db *mongo.Database) (*MongoStore, error) {
	if db == nil {
		return nil, errors.New("notification: mongo database cannot be nil")
	}
	return &MongoStore{coll: db.Collection("notifications")}, nil
}

// mongoRecord mirrors Record with bson tags so the domain type stays free of
// storage concerns.
type mongoRecord struct {
	ID           string            `bson:"_id"`
	UserID       string            `bson:"user_id"`
	Channel      string            `bson:"channel"`
	Subject      string            `bson:"subject,omitempty"`
	Message      string            `bson:"message"`
	Recipient    string            `bson:"recipient,omitempty"`
	Status       string            `bson:"status"`
	Priority     string            `bson:"priority"`
	Metadata     map[string]string `bson:"metadata,omitempty"`
	Attempts     int               `bson:"attempts"`
	MaxAttempts  int               `bson:"max_attempts"`
	ErrorMessage *string           `bson:"error_message,omitempty"`
	SentAt       *time.Time        `bson:"sent_at,omitempty"`
	FailedAt     *time.Time        `bson:"failed_at,omitempty"`
	JobID        *string           `bson:"job_id,omitempty"`
	CreatedAt    time.Time         `bson:"created_at"`
	UpdatedAt    time.Time         `bson:"updated_at"`
}

func toMongoRecord(rec Record) mongoRecord {
	m := mongoRecord{
		ID:           rec.ID.String(),
		UserID:       rec.UserID,
		Channel:      string(rec.Channel),
		Subject:      rec.Subject,
		Message:      rec.Message,
		Recipient:    rec.Recipient,
		Status:       string(rec.Status),
		Priority:     string(rec.Priority),
		Metadata:     rec.Metadata,
		Attempts:     rec.Attempts,
		MaxAttempts:  rec.MaxAttempts,
		ErrorMessage: rec.ErrorMessage,
		SentAt:       rec.SentAt,
		FailedAt:     rec.FailedAt,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}
	if rec.JobID != nil {
		jobID := rec.JobID.String()
		m.JobID = &jobID
	}
	return m
}

func (m mongoRecord) toRecord() (*Record, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid notification id %q: %w", m.ID, err)
	}

	rec := Record{
		ID:           id,
		UserID:       m.UserID,
		Channel:      Channel(m.Channel),
		Subject:      m.Subject,
		Message:      m.Message,
		Recipient:    m.Recipient,
		Status:       Status(m.Status),
		Priority:     Priority(m.Priority),
		Metadata:     m.Metadata,
		Attempts:     m.Attempts,
		MaxAttempts:  m.MaxAttempts,
		ErrorMessage: m.ErrorMessage,
		SentAt:       m.SentAt,
		FailedAt:     m.FailedAt,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
	if m.JobID != nil {
		jobID, err := uuid.Parse(*m.JobID)
		if err != nil {
			return nil, fmt.Errorf("invalid job id %q: %w", *m.JobID, err)
		}
		rec.JobID = &jobID
	}
	return &rec, nil
}

func (s *MongoStore) Create(ctx context.Context, rec Record) error {
	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	if _, err := s.coll.InsertOne(ctx, toMongoRecord(rec)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	var m mongoRecord
	err := s.coll.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return m.toRecord()
}

func (s *MongoStore) Update(ctx context.Context, id uuid.UUID, patch Patch) (*Record, error) {
	set := bson.M{"updated_at": time.Now()}
	if patch.Status != nil {
		set["status"] = string(*patch.Status)
	}
	if patch.ErrorMessage != nil {
		set["error_message"] = *patch.ErrorMessage
	}
	if patch.SentAt != nil {
		set["sent_at"] = *patch.SentAt
	}
	if patch.FailedAt != nil {
		set["failed_at"] = *patch.FailedAt
	}
	if patch.JobID != nil {
		set["job_id"] = patch.JobID.String()
	}

	update := bson.M{"$set": set}
	if patch.IncrementAttempts {
		update["$inc"] = bson.M{"attempts": 1}
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var m mongoRecord
	err := s.coll.FindOneAndUpdate(ctx, bson.M{"_id": id.String()}, update, opts).Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update notification: %w", err)
	}
	return m.toRecord()
}

func (s *MongoStore) CountBy(ctx context.Context, f Filter) (int, error) {
	count, err := s.coll.CountDocuments(ctx, mongoFilter(f))
	if err != nil {
		return 0, fmt.Errorf("failed to count notifications: %w", err)
	}
	return int(count), nil
}

func (s *MongoStore) Find(ctx context.Context, f Filter, listOpts ListOptions) ([]Record, error) {
	order := 1
	if listOpts.NewestFirst {
		order = -1
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: order}})
	if listOpts.Limit > 0 {
		opts = opts.SetLimit(int64(listOpts.Limit))
	}
	if listOpts.Offset > 0 {
		opts = opts.SetSkip(int64(listOpts.Offset))
	}

	cursor, err := s.coll.Find(ctx, mongoFilter(f), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find notifications: %w", err)
	}
	defer cursor.Close(ctx)

	records := []Record{}
	for cursor.Next(ctx) {
		var m mongoRecord
		if err := cursor.Decode(&m); err != nil {
			return nil, fmt.Errorf("failed to decode notification: %w", err)
		}
		rec, err := m.toRecord()
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, cursor.Err()
}

func mongoFilter(f Filter) bson.M {
	filter := bson.M{}
	if f.UserID != "" {
		filter["user_id"] = f.UserID
	}
	if f.Channel != "" {
		filter["channel"] = string(f.Channel)
	}
	if f.Status != "" {
		filter["status"] = string(f.Status)
	}
	return filter
}
