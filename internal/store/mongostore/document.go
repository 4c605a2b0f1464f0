package mongostore

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/agropal/agropal/internal/domain"
)

// diagnosisDoc is the shape of a record in the "diagnoses" collection.
type diagnosisDoc struct {
	ID        primitive.ObjectID  `bson:"_id,omitempty"`
	UserID    *primitive.ObjectID `bson:"userId"`
	Image     imageDoc            `bson:"image"`
	Crop      cropDoc             `bson:"crop"`
	Diagnosis resultDoc           `bson:"diagnosis"`
	Treatment treatmentDoc        `bson:"treatment"`

	Recommendations []string       `bson:"recommendations"`
	EconomicImpact  string         `bson:"economicImpact,omitempty"`
	LocationContext map[string]any `bson:"locationContext,omitempty"`

	Location  locationDoc `bson:"location"`
	Status    string      `bson:"status"`
	Tags      []string    `bson:"tags"`
	CreatedAt time.Time   `bson:"createdAt"`
}

type imageDoc struct {
	Key              string    `bson:"key"`
	URL              string    `bson:"url"`
	OriginalFilename string    `bson:"originalName"`
	SizeBytes        int64     `bson:"size"`
	ContentType      string    `bson:"mimeType"`
	UploadedAt       time.Time `bson:"uploadedAt"`
}

type cropDoc struct {
	Type               string     `bson:"type"`
	Variety            string     `bson:"variety,omitempty"`
	PlantingDate       *time.Time `bson:"plantingDate,omitempty"`
	GrowthStage        string     `bson:"growthStage,omitempty"`
	Symptoms           string     `bson:"symptoms,omitempty"`
	SymptomTokens      []string   `bson:"symptomTokens"`
	PreviousTreatments string     `bson:"previousTreatments,omitempty"`
}

type resultDoc struct {
	Disease        string    `bson:"disease"`
	Confidence     float64   `bson:"confidence"`
	Severity       string    `bson:"severity"`
	Description    string    `bson:"description"`
	PossibleCauses []string  `bson:"possibleCauses"`
	Classifier     string    `bson:"classifier"`
	ProcessedAt    time.Time `bson:"processedAt"`
}

type treatmentDoc struct {
	Immediate   []string `bson:"immediate"`
	LongTerm    []string `bson:"longTerm"`
	Organic     []string `bson:"organic"`
	Chemical    []string `bson:"chemical"`
	Traditional []string `bson:"traditional"`
}

type locationDoc struct {
	State       string          `bson:"state,omitempty"`
	LGA         string          `bson:"lga,omitempty"`
	Coordinates *coordinatesDoc `bson:"coordinates,omitempty"`
}

type coordinatesDoc struct {
	Lat float64 `bson:"lat"`
	Lng float64 `bson:"lng"`
}

func toDoc(rec *domain.DiagnosisRecord) (diagnosisDoc, error) {
	doc := diagnosisDoc{
		Image: imageDoc{
			Key:              rec.Image.Key,
			URL:              rec.Image.URL,
			OriginalFilename: rec.Image.OriginalFilename,
			SizeBytes:        rec.Image.SizeBytes,
			ContentType:      rec.Image.ContentType,
			UploadedAt:       rec.Image.UploadedAt,
		},
		Crop: cropDoc{
			Type:               rec.Crop.Type,
			Variety:            rec.Crop.Variety,
			PlantingDate:       rec.Crop.PlantingDate,
			GrowthStage:        rec.Crop.GrowthStage,
			Symptoms:           rec.Crop.Symptoms,
			SymptomTokens:      rec.Crop.SymptomTokens,
			PreviousTreatments: rec.Crop.PreviousTreatments,
		},
		Diagnosis: resultDoc{
			Disease:        rec.Diagnosis.Disease,
			Confidence:     rec.Diagnosis.Confidence,
			Severity:       string(rec.Diagnosis.Severity),
			Description:    rec.Diagnosis.Description,
			PossibleCauses: rec.Diagnosis.PossibleCauses,
			Classifier:     rec.Diagnosis.Classifier,
			ProcessedAt:    rec.Diagnosis.ProcessedAt,
		},
		Treatment: treatmentDoc{
			Immediate:   rec.Treatment.Immediate,
			LongTerm:    rec.Treatment.LongTerm,
			Organic:     rec.Treatment.Organic,
			Chemical:    rec.Treatment.Chemical,
			Traditional: rec.Treatment.Traditional,
		},
		Recommendations: rec.Recommendations,
		EconomicImpact:  rec.EconomicImpact,
		LocationContext: rec.LocationContext,
		Location: locationDoc{
			State: rec.Location.State,
			LGA:   rec.Location.LGA,
		},
		Status:    string(rec.Status),
		Tags:      rec.Tags,
		CreatedAt: rec.CreatedAt,
	}

	if rec.Location.Coordinates != nil {
		doc.Location.Coordinates = &coordinatesDoc{Lat: rec.Location.Coordinates.Lat, Lng: rec.Location.Coordinates.Lng}
	}

	if rec.UserID != nil {
		oid, err := primitive.ObjectIDFromHex(*rec.UserID)
		if err != nil {
			return diagnosisDoc{}, err
		}
		doc.UserID = &oid
	}
	return doc, nil
}

func (d diagnosisDoc) toRecord() domain.DiagnosisRecord {
	rec := domain.DiagnosisRecord{
		ID: d.ID.Hex(),
		Image: domain.ImageRef{
			Key:              d.Image.Key,
			URL:              d.Image.URL,
			OriginalFilename: d.Image.OriginalFilename,
			SizeBytes:        d.Image.SizeBytes,
			ContentType:      d.Image.ContentType,
			UploadedAt:       d.Image.UploadedAt,
		},
		Crop: domain.CropContext{
			Type:               d.Crop.Type,
			Variety:            d.Crop.Variety,
			PlantingDate:       d.Crop.PlantingDate,
			GrowthStage:        d.Crop.GrowthStage,
			Symptoms:           d.Crop.Symptoms,
			SymptomTokens:      d.Crop.SymptomTokens,
			PreviousTreatments: d.Crop.PreviousTreatments,
		},
		Diagnosis: domain.DiagnosisResult{
			Disease:        d.Diagnosis.Disease,
			Confidence:     d.Diagnosis.Confidence,
			Severity:       domain.Severity(d.Diagnosis.Severity),
			Description:    d.Diagnosis.Description,
			PossibleCauses: d.Diagnosis.PossibleCauses,
			Classifier:     d.Diagnosis.Classifier,
			ProcessedAt:    d.Diagnosis.ProcessedAt,
		},
		Treatment: domain.Treatment{
			Immediate:   d.Treatment.Immediate,
			LongTerm:    d.Treatment.LongTerm,
			Organic:     d.Treatment.Organic,
			Chemical:    d.Treatment.Chemical,
			Traditional: d.Treatment.Traditional,
		},
		Recommendations: d.Recommendations,
		EconomicImpact:  d.EconomicImpact,
		LocationContext: d.LocationContext,
		Location: domain.Location{
			State: d.Location.State,
			LGA:   d.Location.LGA,
		},
		Status:    domain.DiagnosisStatus(d.Status),
		Tags:      d.Tags,
		CreatedAt: d.CreatedAt,
	}

	if d.Location.Coordinates != nil {
		rec.Location.Coordinates = &domain.Coordinates{Lat: d.Location.Coordinates.Lat, Lng: d.Location.Coordinates.Lng}
	}
	if d.UserID != nil {
		id := d.UserID.Hex()
		rec.UserID = &id
	}
	return rec
}
