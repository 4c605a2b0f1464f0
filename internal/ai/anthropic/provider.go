package anthropic

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/agropal/agropal/internal/ai"
	"github.com/agropal/agropal/internal/metrics"
)

const (
	// APIBaseURL is the base URL for the Anthropic API
	APIBaseURL = "https://api.anthropic.com/v1/messages"

	// APIVersion is the Anthropic API version
	APIVersion = "2023-06-01"

	// DefaultModel is the default Claude model to use
	DefaultModel = "claude-sonnet-4-20250514"

	// MaxImageSize is the maximum image size in bytes (5MB per image on the API)
	MaxImageSize = 5 * 1024 * 1024

	// Pricing in cents per 1M tokens
	PricingInputCents  = 300  // $3 per 1M input tokens
	PricingOutputCents = 1500 // $15 per 1M output tokens
)

// Config contains configuration for the Anthropic provider
type Config struct {
	APIKey         string
	Model          string
	BaseURL        string // Overrides APIBaseURL, used by tests
	ProviderConfig ai.ProviderConfig
}

// Provider implements ai.Classifier using Claude's vision input
type Provider struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

// New creates a new Anthropic classifier
func New(config Config, logger *slog.Logger) (*Provider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.BaseURL == "" {
		config.BaseURL = APIBaseURL
	}
	if config.ProviderConfig.MaxRetries == 0 {
		config.ProviderConfig.MaxRetries = 3
	}
	if config.ProviderConfig.RetryBaseDelay == 0 {
		config.ProviderConfig.RetryBaseDelay = 1 * time.Second
	}
	if config.ProviderConfig.RequestTimeout == 0 {
		config.ProviderConfig.RequestTimeout = 60 * time.Second
	}

	return &Provider{
		config: config,
		client: &http.Client{Timeout: config.ProviderConfig.RequestTimeout},
		logger: logger,
	}, nil
}

// Name returns the provider identifier stored on each record.
func (p *Provider) Name() string {
	return "anthropic/" + p.config.Model
}

// Diagnose sends the crop photo and farmer context to Claude and parses the
// JSON diagnosis out of the reply.
func (p *Provider) Diagnose(ctx context.Context, params ai.DiagnoseParams) (*ai.Diagnosis, error) {
	startTime := time.Now()

	if err := validateImageParams(params); err != nil {
		return nil, ai.WrapError("diagnose", err)
	}

	body, err := p.buildRequestBody(params)
	if err != nil {
		return nil, ai.WrapError("build request", err)
	}

	resp, err := p.executeWithRetry(ctx, body)
	if err != nil {
		return nil, ai.WrapError("execute request", err)
	}

	diagnosis, err := parseDiagnosisResponse(resp)
	if err != nil {
		return nil, ai.WrapError("parse response", err)
	}

	diagnosis.Model = p.config.Model
	diagnosis.Usage = ai.UsageInfo{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		CostCents:    calculateCost(resp.Usage.InputTokens, resp.Usage.OutputTokens),
		Duration:     time.Since(startTime),
	}
	trackUsage(diagnosis.Usage)

	return diagnosis, nil
}

func validateImageParams(params ai.DiagnoseParams) error {
	if len(params.ImageData) == 0 {
		return ai.EAIInvalidImage
	}
	if len(params.ImageData) > MaxImageSize {
		return fmt.Errorf("%w: image size %d exceeds maximum %d", ai.EAIInvalidImage, len(params.ImageData), MaxImageSize)
	}
	switch params.ContentType {
	case "image/jpeg", "image/png", "image/webp":
		return nil
	case "":
		return fmt.Errorf("%w: content type is required", ai.EAIInvalidImage)
	default:
		return fmt.Errorf("%w: unsupported content type %s", ai.EAIInvalidImage, params.ContentType)
	}
}

func (p *Provider) buildRequestBody(params ai.DiagnoseParams) ([]byte, error) {
	reqBody := apiRequest{
		Model:     p.config.Model,
		MaxTokens: 4096,
		Messages: []apiMessage{
			{
				Role: "user",
				Content: []apiContent{
					{
						Type: "image",
						Source: &apiImageSource{
							Type:      "base64",
							MediaType: params.ContentType,
							Data:      base64.StdEncoding.EncodeToString(params.ImageData),
						},
					},
					{
						Type: "text",
						Text: buildDiagnosisPrompt(params),
					},
				},
			},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return bodyBytes, nil
}

// executeWithRetry posts body with exponential backoff on transient errors.
// A fresh request is built per attempt since the body is consumed.
func (p *Provider) executeWithRetry(ctx context.Context, body []byte) (*apiResponse, error) {
	var lastErr error

	for attempt := 1; attempt <= p.config.ProviderConfig.MaxRetries; attempt++ {
		resp, err := p.executeRequest(ctx, body)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !ai.IsRetryable(err) || attempt >= p.config.ProviderConfig.MaxRetries {
			break
		}

		// base * 2^(attempt-1)
		delay := p.config.ProviderConfig.RetryBaseDelay * time.Duration(1<<(attempt-1))
		p.logger.Info("retrying classifier request", "attempt", attempt, "delay", delay, "error", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ai.EAITimeout, ctx.Err())
		}
	}

	return nil, lastErr
}

func (p *Provider) executeRequest(ctx context.Context, body []byte) (*apiResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.config.APIKey)
	req.Header.Set("anthropic-version", APIVersion)

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ai.EAITimeout
		}
		// Network errors are typically retryable
		return nil, ai.EAIUnavailable
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, mapHTTPError(resp.StatusCode, bodyBytes)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &apiResp, nil
}

// mapHTTPError maps HTTP status codes to classifier errors
func mapHTTPError(statusCode int, body []byte) error {
	var errResp apiErrorResponse
	_ = json.Unmarshal(body, &errResp)

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ai.EAIUnauthorized
	case http.StatusTooManyRequests:
		return ai.EAIRateLimit
	case http.StatusRequestTimeout:
		return ai.EAITimeout
	case http.StatusBadRequest:
		if errResp.Error.Type == "invalid_request_error" {
			return fmt.Errorf("%w: %s", ai.EAIInvalidImage, errResp.Error.Message)
		}
		return fmt.Errorf("bad request: %s", errResp.Error.Message)
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout, 529:
		return ai.EAIUnavailable
	default:
		return fmt.Errorf("API error (status %d): %s", statusCode, errResp.Error.Message)
	}
}

func parseDiagnosisResponse(resp *apiResponse) (*ai.Diagnosis, error) {
	var textContent string
	for _, content := range resp.Content {
		if content.Type == "text" {
			textContent = content.Text
			break
		}
	}
	if textContent == "" {
		return nil, fmt.Errorf("%w: no text content in response", ai.EAIInvalidResponse)
	}

	raw, ok := ai.ExtractJSON(textContent)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object in response", ai.EAIInvalidResponse)
	}

	var diagnosis ai.Diagnosis
	if err := json.Unmarshal([]byte(raw), &diagnosis); err != nil {
		return nil, fmt.Errorf("%w: %v", ai.EAIInvalidResponse, err)
	}
	if err := diagnosis.Validate(); err != nil {
		return nil, err
	}
	return &diagnosis, nil
}

func calculateCost(inputTokens, outputTokens int) int {
	inputCost := (inputTokens * PricingInputCents) / 1_000_000
	outputCost := (outputTokens * PricingOutputCents) / 1_000_000
	return inputCost + outputCost
}

func trackUsage(usage ai.UsageInfo) {
	metrics.AITokensTotal.WithLabelValues("input").Add(float64(usage.InputTokens))
	metrics.AITokensTotal.WithLabelValues("output").Add(float64(usage.OutputTokens))
	metrics.AICostCentsTotal.Add(float64(usage.CostCents))
}

// API request/response types

type apiRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	Messages  []apiMessage `json:"messages"`
}

type apiMessage struct {
	Role    string       `json:"role"`
	Content []apiContent `json:"content"`
}

type apiContent struct {
	Type   string          `json:"type"`
	Text   string          `json:"text,omitempty"`
	Source *apiImageSource `json:"source,omitempty"`
}

type apiImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type apiResponse struct {
	ID      string             `json:"id"`
	Content []apiContentOutput `json:"content"`
	Model   string             `json:"model"`
	Usage   apiUsage           `json:"usage"`
}

type apiContentOutput struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type apiUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type apiErrorResponse struct {
	Type  string   `json:"type"`
	Error apiError `json:"error"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
