package handler

// This file assembles the JSON bodies returned to clients. Every function
// here is a pure mapping from stored records to response types.

import (
	"time"

	"github.com/agropal/agropal/internal/domain"
	"github.com/agropal/agropal/internal/regional"
	"github.com/agropal/agropal/internal/service"
)

// timestampLayout is ISO 8601 with milliseconds.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// DefaultRecommendations are returned when the classifier supplies none.
var DefaultRecommendations = []string{
	"Monitor the affected plants daily and note any spread to neighbouring plants.",
	"Remove and destroy badly affected leaves or plants away from the farm.",
	"Confirm the diagnosis with your local agricultural extension officer before applying chemicals.",
	"Keep a record of treatments applied and how the crop responds.",
}

// SupportContact is the static support guidance included in every diagnosis.
type SupportContact struct {
	Message  string `json:"message"`
	Phone    string `json:"phone"`
	WhatsApp string `json:"whatsapp"`
}

// NewSupportContact builds the support block from configured numbers.
func NewSupportContact(phone, whatsapp string) SupportContact {
	return SupportContact{
		Message:  "Need more help? Contact the Agropal support team or visit your local agricultural extension office.",
		Phone:    phone,
		WhatsApp: whatsapp,
	}
}

// =============================================================================
// Diagnosis
// =============================================================================

// DiagnosisBody is the diagnosis block with confidence as a percentage.
type DiagnosisBody struct {
	Disease        string   `json:"disease"`
	Confidence     int      `json:"confidence"`
	Severity       string   `json:"severity"`
	Description    string   `json:"description"`
	PossibleCauses []string `json:"possibleCauses"`
}

// TreatmentBody is the five treatment lists.
type TreatmentBody struct {
	Immediate   []string `json:"immediate"`
	LongTerm    []string `json:"longTerm"`
	Organic     []string `json:"organic"`
	Chemical    []string `json:"chemical"`
	Traditional []string `json:"traditional"`
}

// DiagnoseResponse is the 200 body of POST /api/crops/diagnose.
type DiagnoseResponse struct {
	Success         bool           `json:"success"`
	Message         string         `json:"message"`
	DiagnosisID     string         `json:"diagnosisId"`
	Diagnosis       DiagnosisBody  `json:"diagnosis"`
	Treatment       TreatmentBody  `json:"treatment"`
	Recommendations []string       `json:"recommendations"`
	EconomicImpact  string         `json:"economicImpact,omitempty"`
	LocationContext map[string]any `json:"locationContext,omitempty"`
	Timestamp       string         `json:"timestamp"`
	ImageURL        string         `json:"imageUrl"`
	SupportContact  SupportContact `json:"supportContact"`
}

// AssembleDiagnosis maps a stored record to the diagnose response.
func AssembleDiagnosis(rec *domain.DiagnosisRecord, support SupportContact) DiagnoseResponse {
	return DiagnoseResponse{
		Success:     true,
		Message:     "Crop diagnosis completed successfully",
		DiagnosisID: rec.ID,
		Diagnosis: DiagnosisBody{
			Disease:        rec.Diagnosis.Disease,
			Confidence:     rec.ConfidencePercent(),
			Severity:       rec.Diagnosis.Severity.String(),
			Description:    rec.Diagnosis.Description,
			PossibleCauses: orEmpty(rec.Diagnosis.PossibleCauses),
		},
		Treatment:       treatmentBody(rec.Treatment),
		Recommendations: recommendations(rec.Recommendations),
		EconomicImpact:  rec.EconomicImpact,
		LocationContext: rec.LocationContext,
		Timestamp:       formatTime(rec.CreatedAt),
		ImageURL:        rec.Image.URL,
		SupportContact:  support,
	}
}

// DiagnosisDetail is the body of GET /api/crops/diagnosis/{id}.
type DiagnosisDetail struct {
	DiagnoseResponse
	UserID   *string      `json:"userId"`
	Crop     CropBody     `json:"crop"`
	Location LocationBody `json:"location"`
	Status   string       `json:"status"`
	Tags     []string     `json:"tags"`
}

// CropBody is the crop context as returned to clients.
type CropBody struct {
	Type               string   `json:"type"`
	Variety            string   `json:"variety,omitempty"`
	PlantingDate       string   `json:"plantingDate,omitempty"`
	GrowthStage        string   `json:"growthStage,omitempty"`
	Symptoms           []string `json:"symptoms"`
	PreviousTreatments string   `json:"previousTreatments,omitempty"`
}

// LocationBody is the location as returned to clients.
type LocationBody struct {
	State       string           `json:"state,omitempty"`
	LGA         string           `json:"lga,omitempty"`
	Coordinates *CoordinatesBody `json:"coordinates,omitempty"`
}

// CoordinatesBody is a lat/lng pair.
type CoordinatesBody struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// AssembleDetail maps a stored record to the detail response.
func AssembleDetail(rec *domain.DiagnosisRecord, support SupportContact) DiagnosisDetail {
	resp := AssembleDiagnosis(rec, support)
	resp.Message = "Diagnosis retrieved successfully"

	crop := CropBody{
		Type:               rec.Crop.Type,
		Variety:            rec.Crop.Variety,
		GrowthStage:        rec.Crop.GrowthStage,
		Symptoms:           orEmpty(rec.Crop.SymptomTokens),
		PreviousTreatments: rec.Crop.PreviousTreatments,
	}
	if rec.Crop.PlantingDate != nil {
		crop.PlantingDate = rec.Crop.PlantingDate.Format("2006-01-02")
	}

	return DiagnosisDetail{
		DiagnoseResponse: resp,
		UserID:           rec.UserID,
		Crop:             crop,
		Location: LocationBody{
			State:       rec.Location.State,
			LGA:         rec.Location.LGA,
			Coordinates: coordinatesBody(rec.Location.Coordinates),
		},
		Status: string(rec.Status),
		Tags:   orEmpty(rec.Tags),
	}
}

// =============================================================================
// History
// =============================================================================

// HistoryItem is one entry of a user's history.
type HistoryItem struct {
	ID        string        `json:"id"`
	Diagnosis DiagnosisBody `json:"diagnosis"`
	CropType  string        `json:"cropType"`
	Location  LocationBody  `json:"location"`
	ImageURL  string        `json:"imageUrl"`
	Tags      []string      `json:"tags"`
	Status    string        `json:"status"`
	CreatedAt string        `json:"createdAt"`
}

// Pagination describes the page returned.
type Pagination struct {
	CurrentPage  int   `json:"currentPage"`
	TotalPages   int   `json:"totalPages"`
	TotalItems   int64 `json:"totalItems"`
	ItemsPerPage int   `json:"itemsPerPage"`
}

// HistoryResponse is the body of GET /api/crops/history/{userId}.
type HistoryResponse struct {
	Success    bool          `json:"success"`
	History    []HistoryItem `json:"history"`
	Pagination Pagination    `json:"pagination"`
}

// AssembleHistory maps a history page to its response.
func AssembleHistory(page *domain.HistoryPage) HistoryResponse {
	items := make([]HistoryItem, 0, len(page.Records))
	for i := range page.Records {
		rec := &page.Records[i]
		items = append(items, HistoryItem{
			ID: rec.ID,
			Diagnosis: DiagnosisBody{
				Disease:        rec.Diagnosis.Disease,
				Confidence:     rec.ConfidencePercent(),
				Severity:       rec.Diagnosis.Severity.String(),
				Description:    rec.Diagnosis.Description,
				PossibleCauses: orEmpty(rec.Diagnosis.PossibleCauses),
			},
			CropType:  rec.Crop.Type,
			Location:  LocationBody{State: rec.Location.State, LGA: rec.Location.LGA},
			ImageURL:  rec.Image.URL,
			Tags:      orEmpty(rec.Tags),
			Status:    string(rec.Status),
			CreatedAt: formatTime(rec.CreatedAt),
		})
	}

	return HistoryResponse{
		Success: true,
		History: items,
		Pagination: Pagination{
			CurrentPage:  page.CurrentPage,
			TotalPages:   page.TotalPages,
			TotalItems:   page.TotalItems,
			ItemsPerPage: page.ItemsPerPage,
		},
	}
}

// =============================================================================
// Statistics
// =============================================================================

// StatisticBody is one disease aggregate. The _id key names the disease.
type StatisticBody struct {
	ID                   string   `json:"_id"`
	Count                int64    `json:"count"`
	AverageConfidence    int      `json:"averageConfidence"`
	SeverityDistribution []string `json:"severityDistribution"`
}

// StatisticsFilters echoes the filters that were applied.
type StatisticsFilters struct {
	State    string `json:"state,omitempty"`
	CropType string `json:"cropType,omitempty"`
}

// StatisticsResponse is the body of GET /api/crops/statistics.
type StatisticsResponse struct {
	Success    bool              `json:"success"`
	Statistics []StatisticBody   `json:"statistics"`
	Timeframe  int               `json:"timeframe"`
	Filters    StatisticsFilters `json:"filters"`
}

// AssembleStatistics maps an aggregation result to its response.
func AssembleStatistics(res *service.StatisticsResult) StatisticsResponse {
	stats := make([]StatisticBody, 0, len(res.Statistics))
	for _, s := range res.Statistics {
		severities := make([]string, 0, len(s.SeverityDistribution))
		for _, sev := range s.SeverityDistribution {
			severities = append(severities, sev.String())
		}
		stats = append(stats, StatisticBody{
			ID:                   s.Disease,
			Count:                s.Count,
			AverageConfidence:    domain.ConfidencePercent(s.AverageConfidence),
			SeverityDistribution: severities,
		})
	}

	return StatisticsResponse{
		Success:    true,
		Statistics: stats,
		Timeframe:  res.TimeframeDays,
		Filters:    StatisticsFilters{State: res.State, CropType: res.CropType},
	}
}

// =============================================================================
// Disease reference
// =============================================================================

// DiseaseBody is one reference entry.
type DiseaseBody struct {
	Name       string   `json:"name"`
	Crop       string   `json:"crop"`
	Symptoms   []string `json:"symptoms"`
	Prevention []string `json:"prevention"`
	Treatment  []string `json:"treatment"`
	Severity   string   `json:"severity"`
	Prevalence string   `json:"prevalence"`
	States     []string `json:"states,omitempty"`
}

// DiseasesResponse is the body of GET /api/crops/diseases.
type DiseasesResponse struct {
	Success  bool          `json:"success"`
	Diseases []DiseaseBody `json:"diseases"`
	Crops    []string      `json:"crops"`
}

// AssembleDiseases maps reference entries to their response.
func AssembleDiseases(entries []regional.Disease) DiseasesResponse {
	out := make([]DiseaseBody, 0, len(entries))
	for _, d := range entries {
		states := make([]string, 0, len(d.States))
		for _, s := range d.States {
			states = append(states, regional.DisplayState(s))
		}
		out = append(out, DiseaseBody{
			Name:       d.Name,
			Crop:       d.Crop,
			Symptoms:   d.Symptoms,
			Prevention: d.Prevention,
			Treatment:  d.Treatment,
			Severity:   d.Severity,
			Prevalence: d.Prevalence,
			States:     states,
		})
	}
	return DiseasesResponse{Success: true, Diseases: out, Crops: regional.Crops()}
}

// =============================================================================
// Helpers
// =============================================================================

func treatmentBody(t domain.Treatment) TreatmentBody {
	return TreatmentBody{
		Immediate:   orEmpty(t.Immediate),
		LongTerm:    orEmpty(t.LongTerm),
		Organic:     orEmpty(t.Organic),
		Chemical:    orEmpty(t.Chemical),
		Traditional: orEmpty(t.Traditional),
	}
}

func coordinatesBody(c *domain.Coordinates) *CoordinatesBody {
	if c == nil {
		return nil
	}
	return &CoordinatesBody{Lat: c.Lat, Lng: c.Lng}
}

func recommendations(r []string) []string {
	if len(r) == 0 {
		return append([]string(nil), DefaultRecommendations...)
	}
	return r
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}
