// Package mongodb implements MongoDB adapters for the application.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"sentinel_server/core/domain"
)

// =============================================================================
// MongoDB Detection Audit Adapter
// =============================================================================

const (
	collectionDetectionAudits = "detection_audits"

	// Audit records age out after 90 days.
	auditRetention = 90 * 24 * time.Hour
)

// AuditAdapter implements domain.DetectionAuditRepository using MongoDB.
type AuditAdapter struct {
	db         *mongo.Database
	collection *mongo.Collection
}

// NewAuditAdapter creates a new MongoDB audit adapter.
func NewAuditAdapter(db *mongo.Database) *AuditAdapter {
	collection := db.Collection(collectionDetectionAudits)
	return &AuditAdapter{
		db:         db,
		collection: collection,
	}
}

var _ domain.DetectionAuditRepository = (*AuditAdapter)(nil)

// EnsureIndexes creates necessary indexes for the collection.
func (a *AuditAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "scanned_at", Value: -1},
			},
		},
		{
			Keys: bson.D{
				{Key: "resolved_tier", Value: 1},
				{Key: "scanned_at", Value: -1},
			},
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0), // TTL index
		},
	}

	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// auditDocument wraps the domain record with the TTL stamp.
type auditDocument struct {
	domain.DetectionAudit `bson:",inline"`
	ExpiresAt             time.Time `bson:"expires_at"`
}

// Insert stores one scan audit record.
func (a *AuditAdapter) Insert(ctx context.Context, audit *domain.DetectionAudit) error {
	if audit.ID == "" {
		audit.ID = uuid.NewString()
	}
	if audit.ScannedAt.IsZero() {
		audit.ScannedAt = time.Now()
	}

	doc := auditDocument{
		DetectionAudit: *audit,
		ExpiresAt:      audit.ScannedAt.Add(auditRetention),
	}

	if _, err := a.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert detection audit: %w", err)
	}
	return nil
}

// ListByUser returns a user's recent scan audits, newest first.
func (a *AuditAdapter) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.DetectionAudit, error) {
	if limit <= 0 {
		limit = 50
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "scanned_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := a.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list detection audits: %w", err)
	}
	defer cursor.Close(ctx)

	var audits []*domain.DetectionAudit
	for cursor.Next(ctx) {
		var doc auditDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode detection audit: %w", err)
		}
		audit := doc.DetectionAudit
		audits = append(audits, &audit)
	}

	return audits, cursor.Err()
}

// CountByTier aggregates scan counts per resolved tier since the given time.
func (a *AuditAdapter) CountByTier(ctx context.Context, since time.Time) (map[domain.Tier]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"scanned_at": bson.M{"$gte": since}}}},
		{{Key: "$group", Value: bson.M{
			"_id":   "$resolved_tier",
			"count": bson.M{"$sum": 1},
		}}},
	}

	cursor, err := a.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate audit counts: %w", err)
	}
	defer cursor.Close(ctx)

	counts := make(map[domain.Tier]int64)
	for cursor.Next(ctx) {
		var row struct {
			Tier  string `bson:"_id"`
			Count int64  `bson:"count"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, fmt.Errorf("failed to decode audit count: %w", err)
		}
		counts[domain.Tier(row.Tier)] = row.Count
	}

	return counts, cursor.Err()
}
