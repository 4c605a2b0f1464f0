// Package mongostore stores DiagnosisRecords in MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/agropal/agropal/internal/domain"
	"github.com/agropal/agropal/internal/store"
)

const collectionName = "diagnoses"

// Store implements store.Store on a "diagnoses" collection.
type Store struct {
	client    *mongo.Client
	diagnoses *mongo.Collection
	logger    *slog.Logger
}

// Connect dials uri, selects database and ensures the collection indexes.
func Connect(ctx context.Context, uri, database string, logger *slog.Logger) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	s := &Store{
		client:    client,
		diagnoses: client.Database(database).Collection(collectionName),
		logger:    logger,
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	logger.Info("connected to mongo", "database", database, "collection", collectionName)
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.diagnoses.Indexes().CreateMany(ctx, []mongo.IndexModel{
		// history: newest first per user
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
		// statistics window filters
		{Keys: bson.D{{Key: "createdAt", Value: -1}, {Key: "location.state", Value: 1}, {Key: "crop.type", Value: 1}}},
		// orphan sweeper lookups
		{Keys: bson.D{{Key: "image.key", Value: 1}}},
		{Keys: bson.D{{Key: "tags", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create diagnosis indexes: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) CreateDiagnosis(ctx context.Context, rec *domain.DiagnosisRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	doc, err := toDoc(rec)
	if err != nil {
		return fmt.Errorf("encode diagnosis: %w", err)
	}
	doc.ID = primitive.NewObjectID()

	if _, err := s.diagnoses.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert diagnosis: %w", err)
	}
	rec.ID = doc.ID.Hex()
	return nil
}

func (s *Store) GetDiagnosis(ctx context.Context, id string) (*domain.DiagnosisRecord, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, store.ErrNotFound
	}

	var doc diagnosisDoc
	if err := s.diagnoses.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("find diagnosis: %w", err)
	}
	rec := doc.toRecord()
	return &rec, nil
}

func (s *Store) ListUserDiagnoses(ctx context.Context, userID string, offset, limit int) ([]domain.DiagnosisRecord, error) {
	uid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return []domain.DiagnosisRecord{}, nil
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cur, err := s.diagnoses.Find(ctx, bson.M{"userId": uid}, opts)
	if err != nil {
		return nil, fmt.Errorf("find user diagnoses: %w", err)
	}
	defer cur.Close(ctx)

	var docs []diagnosisDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode user diagnoses: %w", err)
	}

	out := make([]domain.DiagnosisRecord, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toRecord())
	}
	return out, nil
}

func (s *Store) CountUserDiagnoses(ctx context.Context, userID string) (int64, error) {
	uid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return 0, nil
	}
	n, err := s.diagnoses.CountDocuments(ctx, bson.M{"userId": uid})
	if err != nil {
		return 0, fmt.Errorf("count user diagnoses: %w", err)
	}
	return n, nil
}

type statisticRow struct {
	Disease              string   `bson:"_id"`
	Count                int64    `bson:"count"`
	AverageConfidence    float64  `bson:"averageConfidence"`
	SeverityDistribution []string `bson:"severityDistribution"`
}

func (s *Store) DiseaseStatistics(ctx context.Context, filter domain.StatisticsFilter) ([]domain.DiseaseStatistic, error) {
	match := bson.M{"createdAt": bson.M{"$gte": filter.Since}}
	if filter.State != "" {
		match["location.state"] = filter.State
	}
	if filter.CropType != "" {
		match["crop.type"] = filter.CropType
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$diagnosis.disease"},
			{Key: "count", Value: bson.M{"$sum": 1}},
			{Key: "averageConfidence", Value: bson.M{"$avg": "$diagnosis.confidence"}},
			{Key: "severityDistribution", Value: bson.M{"$push": "$diagnosis.severity"}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
	}
	if filter.Limit > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$limit", Value: filter.Limit}})
	}

	cur, err := s.diagnoses.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate statistics: %w", err)
	}
	defer cur.Close(ctx)

	var rows []statisticRow
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode statistics: %w", err)
	}

	stats := make([]domain.DiseaseStatistic, 0, len(rows))
	for _, r := range rows {
		sev := make([]domain.Severity, 0, len(r.SeverityDistribution))
		for _, v := range r.SeverityDistribution {
			sev = append(sev, domain.Severity(v))
		}
		stats = append(stats, domain.DiseaseStatistic{
			Disease:              r.Disease,
			Count:                r.Count,
			AverageConfidence:    r.AverageConfidence,
			SeverityDistribution: sev,
		})
	}
	return stats, nil
}

func (s *Store) ReferencedImageKeys(ctx context.Context, keys []string) (map[string]bool, error) {
	found := make(map[string]bool)
	if len(keys) == 0 {
		return found, nil
	}

	values, err := s.diagnoses.Distinct(ctx, "image.key", bson.M{"image.key": bson.M{"$in": keys}})
	if err != nil {
		return nil, fmt.Errorf("distinct image keys: %w", err)
	}
	for _, v := range values {
		if k, ok := v.(string); ok {
			found[k] = true
		}
	}
	return found, nil
}

var _ store.Store = (*Store)(nil)
