// Package domain contains core business types and interfaces.
//
// This file defines the DiagnosisRecord, the only entity in Agropal with a
// real lifecycle: created once when a farmer submits a crop photo and read
// many times by the history and statistics readers afterwards.
package domain

import (
	"math"
	"regexp"
	"strings"
	"time"
)

// =============================================================================
// Severity
// =============================================================================

// Severity is the classifier's estimate of how badly the crop is affected.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityLow      Severity = "low"
	SeverityModerate Severity = "moderate"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// String returns the string representation of the severity.
func (s Severity) String() string {
	return string(s)
}

// IsValid returns true if the severity is a recognized value.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityNone, SeverityLow, SeverityModerate, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// ParseSeverity normalizes classifier output, accepting the "mild" and
// "medium" aliases. The second return value is false for unknown labels.
func ParseSeverity(raw string) (Severity, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "none", "healthy":
		return SeverityNone, true
	case "low", "mild":
		return SeverityLow, true
	case "moderate", "medium":
		return SeverityModerate, true
	case "high", "severe":
		return SeverityHigh, true
	case "critical":
		return SeverityCritical, true
	}
	return SeverityModerate, false
}

// =============================================================================
// Record Status
// =============================================================================

// DiagnosisStatus is the lifecycle tag of a record.
type DiagnosisStatus string

// DiagnosisStatusDiagnosed is terminal: no further transitions are modeled.
const DiagnosisStatusDiagnosed DiagnosisStatus = "diagnosed"

// =============================================================================
// DiagnosisRecord
// =============================================================================

// DiagnosisRecord is the durable result of one diagnosis submission.
// Records are immutable once persisted.
type DiagnosisRecord struct {
	ID        string
	UserID    *string // nil for anonymous submissions
	Image     ImageRef
	Crop      CropContext
	Diagnosis DiagnosisResult
	Treatment Treatment

	Recommendations []string
	EconomicImpact  string
	LocationContext map[string]any

	Location  Location
	Status    DiagnosisStatus
	Tags      []string
	CreatedAt time.Time
}

// ImageRef points at the stored (possibly normalized) crop photo.
type ImageRef struct {
	Key              string    // Storage key
	URL              string    // Relative or public URL served to clients
	OriginalFilename string    // Filename as uploaded
	SizeBytes        int64     // Size of the stored object
	ContentType      string    // MIME type of the stored object
	UploadedAt       time.Time // When the upload was accepted
}

// CropContext is what the farmer told us about the crop.
type CropContext struct {
	Type               string
	Variety            string
	PlantingDate       *time.Time
	GrowthStage        string
	Symptoms           string
	SymptomTokens      []string
	PreviousTreatments string
}

// DiagnosisResult is the classifier's verdict.
type DiagnosisResult struct {
	Disease        string
	Confidence     float64 // Fraction in [0, 1]
	Severity       Severity
	Description    string
	PossibleCauses []string
	Classifier     string // Identifier/version of the classifier that produced it
	ProcessedAt    time.Time
}

// Treatment groups the five independent remedy lists.
type Treatment struct {
	Immediate   []string
	LongTerm    []string
	Organic     []string
	Chemical    []string
	Traditional []string
}

// Location identifies where the crop is grown.
type Location struct {
	State       string
	LGA         string
	Coordinates *Coordinates
}

// Coordinates are optional WGS84 coordinates.
type Coordinates struct {
	Lat float64
	Lng float64
}

// ConfidencePercent returns the confidence as a rounded percentage.
func (r *DiagnosisRecord) ConfidencePercent() int {
	return ConfidencePercent(r.Diagnosis.Confidence)
}

// =============================================================================
// Derivation Helpers
// =============================================================================

var objectIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)

// IsValidUserID reports whether s is a syntactically valid identity handle
// (a 24 character hex ObjectID, as issued by the Agropal user service).
func IsValidUserID(s string) bool {
	return objectIDPattern.MatchString(s)
}

// ParseUserRef returns a pointer to the normalized handle, or nil when the
// handle is absent or malformed. Malformed handles are never stored.
func ParseUserRef(s string) *string {
	s = strings.TrimSpace(s)
	if !IsValidUserID(s) {
		return nil
	}
	id := strings.ToLower(s)
	return &id
}

// TokenizeSymptoms splits a comma separated description into trimmed,
// non-empty tokens.
func TokenizeSymptoms(symptoms string) []string {
	tokens := make([]string, 0)
	for _, part := range strings.Split(symptoms, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			tokens = append(tokens, part)
		}
	}
	return tokens
}

// DeriveTags collects crop type, disease and state in that order,
// dropping empty entries.
func DeriveTags(cropType, disease, state string) []string {
	tags := make([]string, 0, 3)
	for _, tag := range []string{cropType, disease, state} {
		if strings.TrimSpace(tag) != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// ConfidencePercent converts a [0,1] fraction to an integer percentage in [0,100].
func ConfidencePercent(c float64) int {
	if math.IsNaN(c) {
		return 0
	}
	p := int(math.Round(c * 100))
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// =============================================================================
// Read Models
// =============================================================================

// HistoryPage is one page of a user's diagnosis history.
type HistoryPage struct {
	Records      []DiagnosisRecord
	CurrentPage  int
	TotalPages   int
	TotalItems   int64
	ItemsPerPage int
}

// StatisticsFilter narrows the statistics aggregation.
type StatisticsFilter struct {
	State    string
	CropType string
	Since    time.Time
	Limit    int
}

// DiseaseStatistic aggregates the records sharing a disease label.
type DiseaseStatistic struct {
	Disease              string
	Count                int64
	AverageConfidence    float64 // Fraction in [0, 1]
	SeverityDistribution []Severity
}

const (
	// DefaultHistoryLimit is the page size used when none is requested.
	DefaultHistoryLimit = 10

	// MaxHistoryLimit caps the page size a client may request.
	MaxHistoryLimit = 50

	// DefaultStatisticsTimeframeDays is the window used when none is requested.
	DefaultStatisticsTimeframeDays = 30

	// StatisticsTopN caps the number of diseases returned by the statistics reader.
	StatisticsTopN = 10
)
