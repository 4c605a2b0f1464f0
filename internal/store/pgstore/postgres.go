// Package pgstore stores DiagnosisRecords in PostgreSQL.
//
// It runs over database/sql with the pgx driver. Text arrays go through
// lib/pq and the free-form location context through pqtype.
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"

	"github.com/agropal/agropal/internal/domain"
	"github.com/agropal/agropal/internal/store"
)

// Store implements store.Store on the diagnoses table.
type Store struct {
	db *sql.DB
}

// New wraps an open, migrated database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const recordColumns = `id, user_id,
	image_key, image_url, image_original_name, image_size, image_content_type, image_uploaded_at,
	crop_type, crop_variety, planting_date, growth_stage, symptoms, symptom_tokens, previous_treatments,
	disease, confidence, severity, description, possible_causes, classifier, processed_at,
	treatment_immediate, treatment_long_term, treatment_organic, treatment_chemical, treatment_traditional,
	recommendations, economic_impact, location_context,
	state, lga, latitude, longitude,
	status, tags, created_at`

const insertDiagnosis = `INSERT INTO diagnoses (` + recordColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19,
	$20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32, $33, $34, $35, $36, $37)`

func (s *Store) CreateDiagnosis(ctx context.Context, rec *domain.DiagnosisRecord) error {
	id := uuid.New()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	var locationContext pqtype.NullRawMessage
	if len(rec.LocationContext) > 0 {
		raw, err := json.Marshal(rec.LocationContext)
		if err != nil {
			return fmt.Errorf("encode location context: %w", err)
		}
		locationContext = pqtype.NullRawMessage{RawMessage: raw, Valid: true}
	}

	var lat, lng sql.NullFloat64
	if c := rec.Location.Coordinates; c != nil {
		lat = sql.NullFloat64{Float64: c.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: c.Lng, Valid: true}
	}

	var plantingDate sql.NullTime
	if rec.Crop.PlantingDate != nil {
		plantingDate = sql.NullTime{Time: *rec.Crop.PlantingDate, Valid: true}
	}

	var userID sql.NullString
	if rec.UserID != nil {
		userID = sql.NullString{String: *rec.UserID, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, insertDiagnosis,
		id, userID,
		rec.Image.Key, rec.Image.URL, rec.Image.OriginalFilename, rec.Image.SizeBytes, rec.Image.ContentType, rec.Image.UploadedAt,
		rec.Crop.Type, rec.Crop.Variety, plantingDate, rec.Crop.GrowthStage, rec.Crop.Symptoms, pq.Array(nonNil(rec.Crop.SymptomTokens)), rec.Crop.PreviousTreatments,
		rec.Diagnosis.Disease, rec.Diagnosis.Confidence, string(rec.Diagnosis.Severity), rec.Diagnosis.Description,
		pq.Array(nonNil(rec.Diagnosis.PossibleCauses)), rec.Diagnosis.Classifier, rec.Diagnosis.ProcessedAt,
		pq.Array(nonNil(rec.Treatment.Immediate)), pq.Array(nonNil(rec.Treatment.LongTerm)), pq.Array(nonNil(rec.Treatment.Organic)),
		pq.Array(nonNil(rec.Treatment.Chemical)), pq.Array(nonNil(rec.Treatment.Traditional)),
		pq.Array(nonNil(rec.Recommendations)), rec.EconomicImpact, locationContext,
		rec.Location.State, rec.Location.LGA, lat, lng,
		string(rec.Status), pq.Array(nonNil(rec.Tags)), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert diagnosis: %w", err)
	}

	rec.ID = id.String()
	return nil
}

func (s *Store) GetDiagnosis(ctx context.Context, id string) (*domain.DiagnosisRecord, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, store.ErrNotFound
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM diagnoses WHERE id = $1`, uid)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get diagnosis: %w", err)
	}
	return rec, nil
}

func (s *Store) ListUserDiagnoses(ctx context.Context, userID string, offset, limit int) ([]domain.DiagnosisRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM diagnoses
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		OFFSET $2 LIMIT $3`, userID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list user diagnoses: %w", err)
	}
	defer rows.Close()

	out := make([]domain.DiagnosisRecord, 0, limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan diagnosis: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (s *Store) CountUserDiagnoses(ctx context.Context, userID string) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM diagnoses WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count user diagnoses: %w", err)
	}
	return n, nil
}

// LIMIT NULL means no limit, so a zero filter.Limit is passed as NULL.
const diseaseStatistics = `SELECT disease, COUNT(*), AVG(confidence), array_agg(severity ORDER BY created_at)
FROM diagnoses
WHERE created_at >= $1
  AND ($2::text = '' OR state = $2)
  AND ($3::text = '' OR crop_type = $3)
GROUP BY disease
ORDER BY COUNT(*) DESC, disease ASC
LIMIT $4`

func (s *Store) DiseaseStatistics(ctx context.Context, filter domain.StatisticsFilter) ([]domain.DiseaseStatistic, error) {
	var limit sql.NullInt64
	if filter.Limit > 0 {
		limit = sql.NullInt64{Int64: int64(filter.Limit), Valid: true}
	}

	rows, err := s.db.QueryContext(ctx, diseaseStatistics, filter.Since, filter.State, filter.CropType, limit)
	if err != nil {
		return nil, fmt.Errorf("disease statistics: %w", err)
	}
	defer rows.Close()

	var stats []domain.DiseaseStatistic
	for rows.Next() {
		var (
			st         domain.DiseaseStatistic
			severities pq.StringArray
		)
		if err := rows.Scan(&st.Disease, &st.Count, &st.AverageConfidence, &severities); err != nil {
			return nil, fmt.Errorf("scan statistic: %w", err)
		}
		st.SeverityDistribution = make([]domain.Severity, 0, len(severities))
		for _, v := range severities {
			st.SeverityDistribution = append(st.SeverityDistribution, domain.Severity(v))
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

func (s *Store) ReferencedImageKeys(ctx context.Context, keys []string) (map[string]bool, error) {
	found := make(map[string]bool)
	if len(keys) == 0 {
		return found, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT image_key FROM diagnoses WHERE image_key = ANY($1)`, pq.Array(keys))
	if err != nil {
		return nil, fmt.Errorf("referenced image keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		found[k] = true
	}
	return found, rows.Err()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*domain.DiagnosisRecord, error) {
	var (
		rec             domain.DiagnosisRecord
		id              uuid.UUID
		userID          sql.NullString
		plantingDate    sql.NullTime
		severity        string
		status          string
		locationContext pqtype.NullRawMessage
		lat, lng        sql.NullFloat64

		symptomTokens, possibleCauses, recommendations, tags pq.StringArray
		immediate, longTerm, organic, chemical, traditional  pq.StringArray
	)

	err := row.Scan(
		&id, &userID,
		&rec.Image.Key, &rec.Image.URL, &rec.Image.OriginalFilename, &rec.Image.SizeBytes, &rec.Image.ContentType, &rec.Image.UploadedAt,
		&rec.Crop.Type, &rec.Crop.Variety, &plantingDate, &rec.Crop.GrowthStage, &rec.Crop.Symptoms, &symptomTokens, &rec.Crop.PreviousTreatments,
		&rec.Diagnosis.Disease, &rec.Diagnosis.Confidence, &severity, &rec.Diagnosis.Description, &possibleCauses, &rec.Diagnosis.Classifier, &rec.Diagnosis.ProcessedAt,
		&immediate, &longTerm, &organic, &chemical, &traditional,
		&recommendations, &rec.EconomicImpact, &locationContext,
		&rec.Location.State, &rec.Location.LGA, &lat, &lng,
		&status, &tags, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.ID = id.String()
	if userID.Valid {
		rec.UserID = &userID.String
	}
	if plantingDate.Valid {
		rec.Crop.PlantingDate = &plantingDate.Time
	}
	if lat.Valid && lng.Valid {
		rec.Location.Coordinates = &domain.Coordinates{Lat: lat.Float64, Lng: lng.Float64}
	}
	if locationContext.Valid {
		if err := json.Unmarshal(locationContext.RawMessage, &rec.LocationContext); err != nil {
			return nil, fmt.Errorf("decode location context: %w", err)
		}
	}

	rec.Crop.SymptomTokens = symptomTokens
	rec.Diagnosis.Severity = domain.Severity(severity)
	rec.Diagnosis.PossibleCauses = possibleCauses
	rec.Treatment = domain.Treatment{
		Immediate:   immediate,
		LongTerm:    longTerm,
		Organic:     organic,
		Chemical:    chemical,
		Traditional: traditional,
	}
	rec.Recommendations = recommendations
	rec.Status = domain.DiagnosisStatus(status)
	rec.Tags = tags

	return &rec, nil
}

// nonNil keeps NOT NULL array columns from receiving NULL.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var _ store.Store = (*Store)(nil)
