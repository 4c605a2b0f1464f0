package ai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Classifier diagnoses crop diseases from a photo plus the farmer's context.
// Implementations are black boxes: the service relies only on the shape of
// Diagnosis, never on how a provider arrives at it.
type Classifier interface {
	// Diagnose returns a diagnosis for the image or an error. A nil
	// diagnosis with a nil error is treated as a failure by callers.
	Diagnose(ctx context.Context, params DiagnoseParams) (*Diagnosis, error)

	// Name identifies the provider for metrics and stored records.
	Name() string
}

// DiagnoseParams contains the image and everything the farmer told us.
type DiagnoseParams struct {
	ImageData   []byte // Raw image bytes (normalized JPEG when available)
	ContentType string // MIME type of ImageData

	CropType           string
	State              string
	LGA                string
	Latitude           *float64
	Longitude          *float64
	Symptoms           string
	PlantingDate       *time.Time
	GrowthStage        string
	PreviousTreatments string

	// Image provenance
	ImageKey         string
	OriginalFilename string
	Normalized       bool
}

// Diagnosis is the classifier's structured verdict. The JSON tags are the
// wire contract shared by the remote classifier and the model prompt.
type Diagnosis struct {
	Disease         string           `json:"disease"`
	Confidence      float64          `json:"confidence"`
	Severity        string           `json:"severity"`
	Description     string           `json:"description"`
	PossibleCauses  []string         `json:"possibleCauses"`
	Treatment       TreatmentOptions `json:"treatment"`
	LocalSolutions  []string         `json:"localSolutions"`
	Recommendations []string         `json:"recommendations,omitempty"`
	EconomicImpact  string           `json:"economicImpact,omitempty"`
	LocationContext map[string]any   `json:"locationContext,omitempty"`

	// Model is the provider-specific model identifier, e.g. "claude-sonnet-4".
	Model string    `json:"model,omitempty"`
	Usage UsageInfo `json:"-"`
}

// TreatmentOptions groups the classifier's treatment suggestions.
type TreatmentOptions struct {
	Immediate  []string `json:"immediate"`
	Preventive []string `json:"preventive"`
	Organic    []string `json:"organic"`
	Chemical   []string `json:"chemical"`
}

// Validate rejects diagnoses the pipeline cannot use: no disease label or a
// confidence that is not a number.
func (d *Diagnosis) Validate() error {
	if d == nil {
		return fmt.Errorf("%w: empty diagnosis", EAIInvalidResponse)
	}
	if strings.TrimSpace(d.Disease) == "" {
		return fmt.Errorf("%w: missing disease", EAIInvalidResponse)
	}
	if math.IsNaN(d.Confidence) || math.IsInf(d.Confidence, 0) {
		return fmt.Errorf("%w: confidence is not a number", EAIInvalidResponse)
	}
	return nil
}

// UsageInfo tracks API usage for monitoring
type UsageInfo struct {
	InputTokens  int           // Tokens in the request
	OutputTokens int           // Tokens in the response
	CostCents    int           // Estimated cost in cents
	Duration     time.Duration // Request duration
}

// ProviderConfig contains common configuration for AI providers
type ProviderConfig struct {
	MaxRetries     int           // Maximum retry attempts for transient errors
	RetryBaseDelay time.Duration // Base delay for exponential backoff
	RequestTimeout time.Duration // Timeout for individual requests
}

// Error codes for classifier operations
var (
	// EAIRateLimit indicates the API rate limit has been exceeded
	EAIRateLimit = errors.New("ai provider rate limit exceeded")

	// EAIInvalidImage indicates the image format or content is invalid
	EAIInvalidImage = errors.New("invalid image format or content")

	// EAIInvalidResponse indicates the provider answered with an unusable diagnosis
	EAIInvalidResponse = errors.New("ai provider returned an invalid diagnosis")

	// EAITimeout indicates the request timed out
	EAITimeout = errors.New("ai request timed out")

	// EAIUnavailable indicates the AI service is temporarily unavailable
	EAIUnavailable = errors.New("ai service temporarily unavailable")

	// EAIUnauthorized indicates invalid API credentials
	EAIUnauthorized = errors.New("ai provider authentication failed")
)

// IsRetryable returns true if the error is a transient error that can be retried
func IsRetryable(err error) bool {
	return errors.Is(err, EAIRateLimit) ||
		errors.Is(err, EAITimeout) ||
		errors.Is(err, EAIUnavailable)
}

// WrapError wraps an error with context about the AI operation
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("ai %s: %w", operation, err)
}

// ExtractJSON returns the outermost JSON object in text. Models sometimes
// wrap the object in a code fence or a sentence despite instructions.
func ExtractJSON(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}
