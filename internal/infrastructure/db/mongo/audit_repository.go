package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/carddemo/auth-gateway/internal/core/domain"
	"github.com/carddemo/auth-gateway/internal/core/ports"
)

const sessionAuditCollection = "session_audit"

// AuditRepository implements ports.AuditSink using MongoDB.
type AuditRepository struct {
	coll *mongo.Collection
}

var _ ports.AuditSink = (*AuditRepository)(nil)

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *mongo.Database) *AuditRepository {
	return &AuditRepository{coll: db.Collection(sessionAuditCollection)}
}

// Record persists a session lifecycle event to the session_audit collection.
func (r *AuditRepository) Record(ctx context.Context, ev domain.AuditEvent) error {
	doc := bson.M{
		"_id":         ev.ID,
		"action":      ev.Action,
		"at":          ev.At.UTC(),
		"recorded_at": time.Now().UTC(),
	}
	if ev.SubjectID != "" {
		doc["subject_id"] = ev.SubjectID
	}
	if ev.SessionID != "" {
		doc["session_id"] = ev.SessionID
	}
	if ev.TokenID != "" {
		doc["token_id"] = ev.TokenID
	}
	if ev.Reason != "" {
		doc["reason"] = ev.Reason
	}

	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// EnsureIndexes creates lookup indexes on the session_audit collection.
func (r *AuditRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "session_id", Value: 1}}},
		{Keys: bson.D{{Key: "subject_id", Value: 1}, {Key: "at", Value: -1}}},
	}

	_, err := r.coll.Indexes().CreateMany(ctx, indexes)
	return err
}
