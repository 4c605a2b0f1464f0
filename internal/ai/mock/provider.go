package mock

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/agropal/agropal/internal/ai"
)

// Provider is a mock classifier for testing and development
type Provider struct {
	logger *slog.Logger

	mu sync.Mutex

	// Configurable responses for testing
	DiagnoseResponse *ai.Diagnosis
	DiagnoseError    error

	// Delay simulates a slow classifier; Diagnose honours ctx cancellation.
	Delay time.Duration

	// Call tracking for testing
	DiagnoseCalls int
	LastParams    ai.DiagnoseParams
}

// New creates a new mock classifier
func New(logger *slog.Logger) *Provider {
	return &Provider{
		logger: logger,
	}
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "mock"
}

// Diagnose returns the configured response, the configured error, or a
// canned cassava mosaic diagnosis.
func (p *Provider) Diagnose(ctx context.Context, params ai.DiagnoseParams) (*ai.Diagnosis, error) {
	p.mu.Lock()
	p.DiagnoseCalls++
	p.LastParams = params
	delay, resp, err := p.Delay, p.DiagnoseResponse, p.DiagnoseError
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ai.WrapError("diagnose", ai.EAITimeout)
		}
	}

	if err != nil {
		return nil, err
	}
	if resp != nil {
		return resp, nil
	}

	p.logger.Debug("returning canned diagnosis", "crop_type", params.CropType)

	return &ai.Diagnosis{
		Disease:     "Cassava Mosaic Disease",
		Confidence:  0.87,
		Severity:    "moderate",
		Description: "Yellow and green mosaic pattern on young leaves with leaf distortion, typical of a begomovirus infection spread by whiteflies.",
		PossibleCauses: []string{
			"Infected stem cuttings used for planting",
			"Whitefly (Bemisia tabaci) transmission",
		},
		Treatment: ai.TreatmentOptions{
			Immediate:  []string{"Uproot and burn visibly infected plants", "Control whitefly populations"},
			Preventive: []string{"Plant certified virus-free cuttings", "Use resistant varieties such as TME 419"},
			Organic:    []string{"Spray neem seed extract against whiteflies"},
			Chemical:   []string{"Imidacloprid for severe whitefly infestation"},
		},
		LocalSolutions: []string{"Intercrop with maize to reduce whitefly movement"},
		EconomicImpact: "Yield losses of 20-90% are possible if left untreated.",
		Model:          "mock-classifier-v1",
		Usage: ai.UsageInfo{
			InputTokens:  1250,
			OutputTokens: 850,
			Duration:     250 * time.Millisecond,
		},
	}, nil
}

// Calls returns the number of Diagnose calls so far.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.DiagnoseCalls
}

// Reset clears call counters and custom responses for testing
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.DiagnoseCalls = 0
	p.LastParams = ai.DiagnoseParams{}
	p.DiagnoseResponse = nil
	p.DiagnoseError = nil
	p.Delay = 0
}
