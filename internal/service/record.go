// Package service contains business logic for the Agropal application.
//
// This file maps a classifier verdict and the request context into a
// DiagnosisRecord.
package service

import (
	"math"
	"strings"
	"time"

	"github.com/agropal/agropal/internal/ai"
	"github.com/agropal/agropal/internal/domain"
)

// DiagnoseRequest is the typed form of a diagnosis submission. The handler
// fills it from the multipart form before any processing starts.
type DiagnoseRequest struct {
	Image *ImageUpload

	UserID             string // Raw handle as supplied; malformed handles are dropped
	CropType           string
	Variety            string
	Symptoms           string
	PlantingDate       *time.Time
	GrowthStage        string
	PreviousTreatments string

	Location domain.Location
}

// recordInput is everything buildRecord needs.
type recordInput struct {
	req        *DiagnoseRequest
	image      *StoredImage
	imageURL   string
	diagnosis  *ai.Diagnosis
	classifier string
	now        time.Time
}

// buildRecord applies the persistence mapping rules. It returns a
// domain.EVALIDATION error when the payload cannot form a valid record.
func buildRecord(in recordInput) (*domain.DiagnosisRecord, error) {
	const op = "diagnosis.build_record"

	if in.image == nil || in.image.Key == "" {
		return nil, domain.InvalidRecord(op, "The uploaded image reference is missing. Please check your inputs and try again.")
	}
	d := in.diagnosis
	if d == nil || strings.TrimSpace(d.Disease) == "" {
		return nil, domain.InvalidRecord(op, "The diagnosis is missing a disease label. Please check your inputs and try again.")
	}
	if math.IsNaN(d.Confidence) || math.IsInf(d.Confidence, 0) {
		return nil, domain.InvalidRecord(op, "The diagnosis confidence is not a number. Please check your inputs and try again.")
	}

	// Unknown labels fall back to moderate; the classifier is a black box.
	severity, _ := domain.ParseSeverity(d.Severity)

	req := in.req
	cropType := strings.ToLower(strings.TrimSpace(req.CropType))
	disease := strings.TrimSpace(d.Disease)
	state := strings.TrimSpace(req.Location.State)

	rec := &domain.DiagnosisRecord{
		UserID: domain.ParseUserRef(req.UserID),
		Image: domain.ImageRef{
			Key:              in.image.Key,
			URL:              in.imageURL,
			OriginalFilename: in.image.OriginalFilename,
			SizeBytes:        in.image.Size,
			ContentType:      in.image.ContentType,
			UploadedAt:       in.image.UploadedAt,
		},
		Crop: domain.CropContext{
			Type:               cropType,
			Variety:            strings.TrimSpace(req.Variety),
			PlantingDate:       req.PlantingDate,
			GrowthStage:        strings.TrimSpace(req.GrowthStage),
			Symptoms:           req.Symptoms,
			SymptomTokens:      domain.TokenizeSymptoms(req.Symptoms),
			PreviousTreatments: req.PreviousTreatments,
		},
		Diagnosis: domain.DiagnosisResult{
			Disease:        disease,
			Confidence:     clamp01(d.Confidence),
			Severity:       severity,
			Description:    d.Description,
			PossibleCauses: nonNilStrings(d.PossibleCauses),
			Classifier:     in.classifier,
			ProcessedAt:    in.now,
		},
		Treatment: domain.Treatment{
			Immediate:   nonNilStrings(d.Treatment.Immediate),
			LongTerm:    nonNilStrings(d.Treatment.Preventive),
			Organic:     nonNilStrings(d.Treatment.Organic),
			Chemical:    nonNilStrings(d.Treatment.Chemical),
			Traditional: nonNilStrings(d.LocalSolutions),
		},
		Recommendations: nonNilStrings(d.Recommendations),
		EconomicImpact:  d.EconomicImpact,
		LocationContext: d.LocationContext,
		Location: domain.Location{
			State:       state,
			LGA:         strings.TrimSpace(req.Location.LGA),
			Coordinates: req.Location.Coordinates,
		},
		Status:    domain.DiagnosisStatusDiagnosed,
		Tags:      domain.DeriveTags(cropType, disease, state),
		CreatedAt: in.now,
	}
	return rec, nil
}

// classifierID combines the provider name with the model the provider
// reported, unless the name already carries it.
func classifierID(name, model string) string {
	if model == "" || strings.HasSuffix(name, model) {
		return name
	}
	return name + "/" + model
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
