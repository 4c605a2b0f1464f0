// Package remote calls a self-hosted diagnosis service over HTTP.
//
// The service receives the image as base64 plus the farmer's context and
// answers with the ai.Diagnosis JSON shape.
package remote

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
	"strings"
	"time"

	"github.com/agropal/agropal/internal/ai"
)

// maxResponseBytes bounds how much of a classifier response is read.
const maxResponseBytes = 1 << 20

// Config contains configuration for the remote classifier
type Config struct {
	BaseURL        string // e.g. "http://classifier:8000"
	ProviderConfig ai.ProviderConfig
}

// Client implements ai.Classifier against POST {BaseURL}/diagnose.
type Client struct {
	baseURL string
	config  ai.ProviderConfig
	http    *http.Client
	logger  *slog.Logger
}

// New creates a new remote classifier client
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("remote classifier URL is required")
	}
	if cfg.ProviderConfig.MaxRetries == 0 {
		cfg.ProviderConfig.MaxRetries = 1
	}
	if cfg.ProviderConfig.RetryBaseDelay == 0 {
		cfg.ProviderConfig.RetryBaseDelay = 500 * time.Millisecond
	}
	if cfg.ProviderConfig.RequestTimeout == 0 {
		cfg.ProviderConfig.RequestTimeout = 25 * time.Second
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		config:  cfg.ProviderConfig,
		http:    &http.Client{Timeout: cfg.ProviderConfig.RequestTimeout},
		logger:  logger,
	}, nil
}

// Name returns the provider identifier.
func (c *Client) Name() string {
	return "remote"
}

type diagnoseRequest struct {
	Image       string          `json:"image"`
	ContentType string          `json:"contentType"`
	Metadata    requestMetadata `json:"metadata"`
}

type requestMetadata struct {
	CropType           string          `json:"cropType,omitempty"`
	Location           requestLocation `json:"location"`
	Symptoms           string          `json:"symptoms,omitempty"`
	PlantingDate       string          `json:"plantingDate,omitempty"`
	GrowthStage        string          `json:"growthStage,omitempty"`
	PreviousTreatments string          `json:"previousTreatments,omitempty"`
	ImageKey           string          `json:"imageKey,omitempty"`
	OriginalFilename   string          `json:"originalFilename,omitempty"`
	Normalized         bool            `json:"normalized"`
}

type requestLocation struct {
	State string   `json:"state,omitempty"`
	LGA   string   `json:"lga,omitempty"`
	Lat   *float64 `json:"lat,omitempty"`
	Lng   *float64 `json:"lng,omitempty"`
}

// Diagnose posts the image and context and decodes the diagnosis.
func (c *Client) Diagnose(ctx context.Context, params ai.DiagnoseParams) (*ai.Diagnosis, error) {
	if len(params.ImageData) == 0 {
		return nil, ai.WrapError("diagnose", ai.EAIInvalidImage)
	}

	in := diagnoseRequest{
		Image:       base64.StdEncoding.EncodeToString(params.ImageData),
		ContentType: params.ContentType,
		Metadata: requestMetadata{
			CropType: params.CropType,
			Location: requestLocation{
				State: params.State,
				LGA:   params.LGA,
				Lat:   params.Latitude,
				Lng:   params.Longitude,
			},
			Symptoms:           params.Symptoms,
			GrowthStage:        params.GrowthStage,
			PreviousTreatments: params.PreviousTreatments,
			ImageKey:           params.ImageKey,
			OriginalFilename:   params.OriginalFilename,
			Normalized:         params.Normalized,
		},
	}
	if params.PlantingDate != nil {
		in.Metadata.PlantingDate = params.PlantingDate.Format("2006-01-02")
	}

	body, err := json.Marshal(in)
	if err != nil {
		return nil, ai.WrapError("marshal request", err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.config.MaxRetries; attempt++ {
		d, err := c.post(ctx, body)
		if err == nil {
			return d, nil
		}
		lastErr = err

		if !ai.IsRetryable(err) || attempt >= c.config.MaxRetries {
			break
		}

		delay := c.config.RetryBaseDelay * time.Duration(1<<(attempt-1))
		c.logger.Info("retrying remote classifier", "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ai.WrapError("diagnose", fmt.Errorf("%w: %v", ai.EAITimeout, ctx.Err()))
		}
	}
	return nil, ai.WrapError("diagnose", lastErr)
}

func (c *Client) post(ctx context.Context, body []byte) (*ai.Diagnosis, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/diagnose", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ai.EAITimeout
		}
		return nil, fmt.Errorf("%w: %v", ai.EAIUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ai.EAIUnavailable, err)
	}
	if len(data) > maxResponseBytes {
		return nil, fmt.Errorf("%w: response exceeds %d bytes", ai.EAIInvalidResponse, maxResponseBytes)
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ai.EAIRateLimit
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, fmt.Errorf("%w: %s", ai.EAIInvalidImage, string(data))
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: %s", ai.EAIUnavailable, resp.Status)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("classifier non-2xx: %s, body: %s", resp.Status, string(data))
	}

	var out ai.Diagnosis
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ai.EAIInvalidResponse, err)
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}
