// Package events publishes notifications about committed diagnoses.
//
// Publishing is best effort. A diagnosis that was stored is never failed
// because a broker was unreachable.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/agropal/agropal/internal/domain"
)

// TypeDiagnosisCreated is the event type emitted after a record is stored.
const TypeDiagnosisCreated = "diagnosis.created"

// DiagnosisCreated is the payload published for every stored record.
type DiagnosisCreated struct {
	Type        string    `json:"type"`
	DiagnosisID string    `json:"diagnosisId"`
	UserID      *string   `json:"userId"`
	CropType    string    `json:"cropType,omitempty"`
	Disease     string    `json:"disease"`
	Severity    string    `json:"severity"`
	Confidence  int       `json:"confidence"`
	State       string    `json:"state,omitempty"`
	LGA         string    `json:"lga,omitempty"`
	ImageKey    string    `json:"imageKey"`
	Tags        []string  `json:"tags"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewDiagnosisCreated builds the event for a persisted record.
func NewDiagnosisCreated(rec *domain.DiagnosisRecord) DiagnosisCreated {
	return DiagnosisCreated{
		Type:        TypeDiagnosisCreated,
		DiagnosisID: rec.ID,
		UserID:      rec.UserID,
		CropType:    rec.Crop.Type,
		Disease:     rec.Diagnosis.Disease,
		Severity:    rec.Diagnosis.Severity.String(),
		Confidence:  rec.ConfidencePercent(),
		State:       rec.Location.State,
		LGA:         rec.Location.LGA,
		ImageKey:    rec.Image.Key,
		Tags:        rec.Tags,
		CreatedAt:   rec.CreatedAt,
	}
}

func (e DiagnosisCreated) encode() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher delivers diagnosis events to a broker.
type Publisher interface {
	Publish(ctx context.Context, event DiagnosisCreated) error
	Close() error
}

// Nop discards every event. It is used when EVENTS_PROVIDER is "none".
type Nop struct{}

func (Nop) Publish(context.Context, DiagnosisCreated) error { return nil }
func (Nop) Close() error                                    { return nil }
