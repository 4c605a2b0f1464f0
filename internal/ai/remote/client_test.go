package remote

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agropal/agropal/internal/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{
		BaseURL: srv.URL + "/",
		ProviderConfig: ai.ProviderConfig{
			MaxRetries:     2,
			RetryBaseDelay: time.Millisecond,
		},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return c
}

func TestClient_Diagnose(t *testing.T) {
	planted := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	lat := 6.5244

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/diagnose", r.URL.Path)

		var in diagnoseRequest
		if assert.NoError(t, json.NewDecoder(r.Body).Decode(&in)) {
			assert.Equal(t, "AQID", in.Image)
			assert.Equal(t, "maize", in.Metadata.CropType)
			assert.Equal(t, "Kano", in.Metadata.Location.State)
			assert.Equal(t, "2024-03-01", in.Metadata.PlantingDate)
			assert.True(t, in.Metadata.Normalized)
		}

		_, _ = w.Write([]byte(`{"disease":"Fall Armyworm","confidence":0.81,"severity":"moderate",
			"treatment":{"immediate":["hand pick larvae"]},"recommendations":["scout weekly"]}`))
	})

	d, err := c.Diagnose(context.Background(), ai.DiagnoseParams{
		ImageData:    []byte{1, 2, 3},
		ContentType:  "image/jpeg",
		CropType:     "maize",
		State:        "Kano",
		Latitude:     &lat,
		PlantingDate: &planted,
		Normalized:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Fall Armyworm", d.Disease)
	assert.Equal(t, []string{"hand pick larvae"}, d.Treatment.Immediate)
	assert.Equal(t, []string{"scout weekly"}, d.Recommendations)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.Diagnose(context.Background(), ai.DiagnoseParams{ImageData: []byte{1}})
	assert.ErrorIs(t, err, ai.EAIUnavailable)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_InvalidBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"confidence":0.3}`))
	})

	_, err := c.Diagnose(context.Background(), ai.DiagnoseParams{ImageData: []byte{1}})
	assert.ErrorIs(t, err, ai.EAIInvalidResponse)
}

func TestClient_TruncatedBodyIsUnavailable(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Length", "4096")
		_, _ = w.Write([]byte(`{"disease":"Fall`))
	})

	_, err := c.Diagnose(context.Background(), ai.DiagnoseParams{ImageData: []byte{1}})
	assert.ErrorIs(t, err, ai.EAIUnavailable)
	assert.Equal(t, int32(2), calls.Load(), "read failures are retried")
}

func TestClient_OversizedBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"disease":"` + strings.Repeat("x", maxResponseBytes) + `"}`))
	})

	_, err := c.Diagnose(context.Background(), ai.DiagnoseParams{ImageData: []byte{1}})
	assert.ErrorIs(t, err, ai.EAIInvalidResponse)
}

func TestClient_ContextDeadline(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Diagnose(ctx, ai.DiagnoseParams{ImageData: []byte{1}})
	assert.Error(t, err)
}
