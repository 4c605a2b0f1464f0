package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agropal/agropal/internal/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const diagnosisText = `{"disease":"Cassava Mosaic Disease","confidence":0.92,"severity":"high",
"description":"Mottled yellow leaves","possibleCauses":["whitefly"],
"treatment":{"immediate":["remove infected plants"],"preventive":["clean cuttings"],"organic":["neem"],"chemical":["imidacloprid"]},
"localSolutions":["wood ash"]}`

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := New(Config{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		ProviderConfig: ai.ProviderConfig{
			MaxRetries:     3,
			RetryBaseDelay: time.Millisecond,
		},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return p
}

func writeMessage(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(apiResponse{
		Content: []apiContentOutput{{Type: "text", Text: text}},
		Usage:   apiUsage{InputTokens: 1200, OutputTokens: 300},
	})
}

func testParams() ai.DiagnoseParams {
	return ai.DiagnoseParams{
		ImageData:   []byte{0xff, 0xd8, 0xff},
		ContentType: "image/jpeg",
		CropType:    "cassava",
		State:       "Lagos",
	}
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}

func TestDiagnose_Success(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, APIVersion, r.Header.Get("anthropic-version"))

		var req apiRequest
		if assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) && assert.Len(t, req.Messages, 1) {
			assert.Equal(t, "image", req.Messages[0].Content[0].Type)
			assert.Contains(t, req.Messages[0].Content[1].Text, "- Crop: cassava")
		}

		writeMessage(w, "```json\n"+diagnosisText+"\n```")
	})

	d, err := p.Diagnose(context.Background(), testParams())
	require.NoError(t, err)
	assert.Equal(t, "Cassava Mosaic Disease", d.Disease)
	assert.InDelta(t, 0.92, d.Confidence, 1e-9)
	assert.Equal(t, []string{"wood ash"}, d.LocalSolutions)
	assert.Equal(t, DefaultModel, d.Model)
	assert.Equal(t, 1200, d.Usage.InputTokens)
}

func TestDiagnose_RetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeMessage(w, diagnosisText)
	})

	d, err := p.Diagnose(context.Background(), testParams())
	require.NoError(t, err)
	assert.Equal(t, "Cassava Mosaic Disease", d.Disease)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDiagnose_DoesNotRetryAuthErrors(t *testing.T) {
	var calls atomic.Int32
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := p.Diagnose(context.Background(), testParams())
	assert.ErrorIs(t, err, ai.EAIUnauthorized)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDiagnose_InvalidModelOutput(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, `{"disease":"","confidence":0.4}`)
	})

	_, err := p.Diagnose(context.Background(), testParams())
	assert.ErrorIs(t, err, ai.EAIInvalidResponse)
}

func TestDiagnose_RejectsUnsupportedImage(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	params := testParams()
	params.ContentType = "image/heic"
	_, err := p.Diagnose(context.Background(), params)
	assert.ErrorIs(t, err, ai.EAIInvalidImage)
}

func TestMapHTTPError(t *testing.T) {
	assert.ErrorIs(t, mapHTTPError(http.StatusTooManyRequests, nil), ai.EAIRateLimit)
	assert.ErrorIs(t, mapHTTPError(http.StatusGatewayTimeout, nil), ai.EAIUnavailable)
	assert.ErrorIs(t, mapHTTPError(http.StatusRequestTimeout, nil), ai.EAITimeout)
	assert.ErrorIs(t,
		mapHTTPError(http.StatusBadRequest, []byte(`{"error":{"type":"invalid_request_error","message":"bad image"}}`)),
		ai.EAIInvalidImage,
	)
}
