package handler

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"io/fs"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agropal/agropal/internal/ai"
	"github.com/agropal/agropal/internal/ai/mock"
	"github.com/agropal/agropal/internal/domain"
	"github.com/agropal/agropal/internal/service"
	"github.com/agropal/agropal/internal/storage"
	"github.com/agropal/agropal/internal/store"
)

// =============================================================================
// Test Fixtures
// =============================================================================

const validUserID = "64b7f0c2a1e4d5f6a7b8c9d0"

type testServer struct {
	router     http.Handler
	store      *store.Memory
	classifier *mock.Provider
	root       string
}

func newTestServer(t *testing.T, debug bool) *testServer {
	t.Helper()
	logger := discardLogger()

	root := t.TempDir()
	local, err := storage.NewLocalStorage(storage.LocalConfig{BasePath: root, BaseURL: "/uploads"}, logger)
	require.NoError(t, err)

	st := store.NewMemory()
	classifier := mock.New(logger)

	diagnoses := service.NewDiagnosisService(service.DiagnosisConfig{
		Ingestor:          service.NewIngestor(local, domain.DefaultMaxImageSize, logger),
		Normalizer:        service.NewImagingNormalizer(local, logger),
		Classifier:        classifier,
		Store:             st,
		Storage:           local,
		ClassifierTimeout: 100 * time.Millisecond,
		Logger:            logger,
	})
	history := service.NewHistoryService(st, nil, logger)

	h := NewCropHandler(CropHandlerConfig{
		Diagnoses: diagnoses,
		History:   history,
		Support:   NewSupportContact("+2348000000000", "+2348000000001"),
		Debug:     debug,
		Logger:    logger,
	})

	r := chi.NewRouter()
	r.Route("/api/crops", func(r chi.Router) {
		h.RegisterRoutes(r, nil)
	})

	return &testServer{router: r, store: st, classifier: classifier, root: root}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) fileCount(t *testing.T) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(s.root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			n++
		}
		return nil
	})
	require.NoError(t, err)
	return n
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 255), G: 140, B: uint8(y % 255), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

// diagnoseRequest builds a multipart request. A nil image omits the file field.
func diagnoseRequest(t *testing.T, image []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if image != nil {
		fw, err := mw.CreateFormFile("image", "leaf.jpg")
		require.NoError(t, err)
		_, err = fw.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/crops/diagnose", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// =============================================================================
// POST /api/crops/diagnose
// =============================================================================

// Scenario A
func TestDiagnose_Success(t *testing.T) {
	s := newTestServer(t, false)
	s.classifier.DiagnoseResponse = &ai.Diagnosis{
		Disease:        "Cassava Mosaic Disease",
		Confidence:     0.92,
		Severity:       "high",
		Description:    "Mosaic pattern on leaves",
		PossibleCauses: []string{"Whiteflies"},
		Treatment: ai.TreatmentOptions{
			Immediate:  []string{"Uproot infected plants"},
			Preventive: []string{"Use clean cuttings"},
		},
		LocalSolutions: []string{"Neem extract"},
	}

	rec := s.do(diagnoseRequest(t, jpegBytes(t, 640, 480), map[string]string{
		"cropType": "cassava",
		"location": `{"state":"Lagos","lga":"Ikorodu"}`,
		"symptoms": "yellow leaves, curling",
		"userId":   validUserID,
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp DiagnoseResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.DiagnosisID)
	assert.Equal(t, 92, resp.Diagnosis.Confidence)
	assert.Equal(t, "high", resp.Diagnosis.Severity)
	assert.Equal(t, []string{"Use clean cuttings"}, resp.Treatment.LongTerm)
	assert.Equal(t, []string{"Neem extract"}, resp.Treatment.Traditional)
	assert.Equal(t, []string{}, resp.Treatment.Chemical)
	assert.Equal(t, DefaultRecommendations, resp.Recommendations)
	assert.Contains(t, resp.ImageURL, "/uploads/crops/")
	assert.Equal(t, "+2348000000000", resp.SupportContact.Phone)
	_, err := time.Parse(time.RFC3339, resp.Timestamp)
	assert.NoError(t, err)

	require.Equal(t, 1, s.store.Len())
	stored := s.store.All()[0]
	assert.Equal(t, resp.DiagnosisID, stored.ID)
	assert.Subset(t, stored.Tags, []string{"cassava", "Cassava Mosaic Disease", "Lagos"})
	require.NotNil(t, stored.UserID)
	assert.Equal(t, validUserID, *stored.UserID)
	assert.Equal(t, 1, s.fileCount(t))
}

// Scenario B
func TestDiagnose_MissingImage(t *testing.T) {
	s := newTestServer(t, false)

	rec := s.do(diagnoseRequest(t, nil, map[string]string{"cropType": "cassava"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body := decodeError(t, rec)
	assert.False(t, body.Success)
	assert.Equal(t, "No image file uploaded", body.Error)
	assert.Equal(t, "InvalidUpload", body.Kind)
	assert.Equal(t, 0, s.store.Len())
	assert.Equal(t, 0, s.fileCount(t))
	assert.Equal(t, 0, s.classifier.Calls())
}

func TestDiagnose_NotMultipart(t *testing.T) {
	s := newTestServer(t, false)

	req := httptest.NewRequest(http.MethodPost, "/api/crops/diagnose", bytes.NewBufferString(`{"cropType":"maize"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := s.do(req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No image file uploaded", decodeError(t, rec).Error)
}

func TestDiagnose_RejectsBeforeSideEffects(t *testing.T) {
	tests := []struct {
		name      string
		image     []byte
		fields    map[string]string
		wantField string
	}{
		{"malformed location", []byte("irrelevant"), map[string]string{"location": `{"state":`}, "location"},
		{"half coordinates", []byte("irrelevant"), map[string]string{"location": `{"state":"Kano","coordinates":{"lat":12.0}}`}, "location"},
		{"bad planting date", []byte("irrelevant"), map[string]string{"plantingDate": "last tuesday"}, "plantingDate"},
		{"not an image", []byte("plain text, not a photo"), nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, false)

			rec := s.do(diagnoseRequest(t, tt.image, tt.fields))
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			body := decodeError(t, rec)
			if tt.wantField != "" {
				assert.Contains(t, body.Fields, tt.wantField)
			} else {
				assert.Equal(t, "InvalidUpload", body.Kind)
			}
			assert.Equal(t, 0, s.store.Len())
			assert.Equal(t, 0, s.fileCount(t))
			assert.Equal(t, 0, s.classifier.Calls())
		})
	}
}

// Scenario C
func TestDiagnose_ClassifierTimeout(t *testing.T) {
	s := newTestServer(t, true)
	s.classifier.Delay = 2 * time.Second

	rec := s.do(diagnoseRequest(t, jpegBytes(t, 64, 64), map[string]string{"cropType": "maize", "location": "Kaduna"}))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	body := decodeError(t, rec)
	assert.Equal(t, "DiagnosisUnavailable", body.Kind)
	assert.Contains(t, body.Message, "clearer")
	require.NotNil(t, body.DebugInfo)
	assert.Equal(t, domain.EUNAVAILABLE, body.DebugInfo.Code)
	assert.Equal(t, 0, s.store.Len())
	assert.Equal(t, 0, s.fileCount(t))
}

// Scenario D
func TestDiagnose_InvalidUserIDIsDropped(t *testing.T) {
	s := newTestServer(t, false)

	rec := s.do(diagnoseRequest(t, jpegBytes(t, 64, 64), map[string]string{
		"cropType": "cassava",
		"userId":   "not-a-valid-id",
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.Equal(t, 1, s.store.Len())
	assert.Nil(t, s.store.All()[0].UserID)
}

func TestDiagnose_PlainStateAndPlantingDate(t *testing.T) {
	s := newTestServer(t, false)

	rec := s.do(diagnoseRequest(t, jpegBytes(t, 64, 64), map[string]string{
		"cropType":     "Maize",
		"location":     "Kaduna",
		"plantingDate": "2026-05-01",
		"growthStage":  "tasseling",
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	params := s.classifier.LastParams
	assert.Equal(t, "Kaduna", params.State)
	require.NotNil(t, params.PlantingDate)
	assert.Equal(t, "2026-05-01", params.PlantingDate.Format("2006-01-02"))

	stored := s.store.All()[0]
	assert.Equal(t, "maize", stored.Crop.Type)
	assert.Equal(t, "tasseling", stored.Crop.GrowthStage)
}

func TestDiagnose_MultipleImagesRejected(t *testing.T) {
	s := newTestServer(t, false)
	img := jpegBytes(t, 32, 32)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, name := range []string{"a.jpg", "b.jpg"} {
		fw, err := mw.CreateFormFile("image", name)
		require.NoError(t, err)
		_, err = fw.Write(img)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/crops/diagnose", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := s.do(req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, s.fileCount(t))
}

// =============================================================================
// Read endpoints
// =============================================================================

func submit(t *testing.T, s *testServer, fields map[string]string) DiagnoseResponse {
	t.Helper()
	rec := s.do(diagnoseRequest(t, jpegBytes(t, 64, 64), fields))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp DiagnoseResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHistory(t *testing.T) {
	s := newTestServer(t, false)
	for i := 0; i < 3; i++ {
		submit(t, s, map[string]string{"cropType": "cassava", "location": "Lagos", "userId": validUserID})
	}

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/crops/history/"+validUserID+"?page=1&limit=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HistoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Len(t, resp.History, 2)
	assert.Equal(t, Pagination{CurrentPage: 1, TotalPages: 2, TotalItems: 3, ItemsPerPage: 2}, resp.Pagination)

	// P6
	again := s.do(httptest.NewRequest(http.MethodGet, "/api/crops/history/"+validUserID+"?page=1&limit=2", nil))
	assert.JSONEq(t, rec.Body.String(), again.Body.String())
}

func TestHistory_InvalidUser(t *testing.T) {
	s := newTestServer(t, false)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/crops/history/not-a-valid-id", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "InvalidRequest", decodeError(t, rec).Kind)
}

func TestStatistics(t *testing.T) {
	s := newTestServer(t, false)
	submit(t, s, map[string]string{"cropType": "cassava", "location": "Lagos"})
	submit(t, s, map[string]string{"cropType": "cassava", "location": "Lagos"})
	submit(t, s, map[string]string{"cropType": "cassava", "location": "Oyo"})

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/crops/statistics?state=Lagos&timeframe=7", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatisticsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 7, resp.Timeframe)
	assert.Equal(t, "Lagos", resp.Filters.State)
	require.Len(t, resp.Statistics, 1)
	assert.Equal(t, "Cassava Mosaic Disease", resp.Statistics[0].ID)
	assert.Equal(t, int64(2), resp.Statistics[0].Count)
	assert.Equal(t, 87, resp.Statistics[0].AverageConfidence)
	assert.Equal(t, []string{"moderate", "moderate"}, resp.Statistics[0].SeverityDistribution)

	// The wire key for the disease label is _id.
	assert.Contains(t, rec.Body.String(), `"_id":"Cassava Mosaic Disease"`)
}

func TestGetDiagnosis(t *testing.T) {
	s := newTestServer(t, false)
	created := submit(t, s, map[string]string{
		"cropType": "cassava",
		"location": `{"state":"Ogun","lga":"Ado-Odo","coordinates":{"lat":6.6,"lng":3.1}}`,
	})

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/crops/diagnosis/"+created.DiagnosisID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp DiagnosisDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, created.DiagnosisID, resp.DiagnosisID)
	assert.Equal(t, "cassava", resp.Crop.Type)
	assert.Equal(t, "Ado-Odo", resp.Location.LGA)
	require.NotNil(t, resp.Location.Coordinates)
	assert.InDelta(t, 6.6, resp.Location.Coordinates.Lat, 1e-9)
	assert.Nil(t, resp.UserID)
}

func TestGetDiagnosis_NotFound(t *testing.T) {
	s := newTestServer(t, false)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/crops/diagnosis/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NotFound", decodeError(t, rec).Kind)
}

func TestReport(t *testing.T) {
	s := newTestServer(t, false)
	created := submit(t, s, map[string]string{"cropType": "cassava", "location": "Lagos"})

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/crops/diagnosis/"+created.DiagnosisID+"/report.pdf", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), created.DiagnosisID)
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")))
}

func TestDiseases(t *testing.T) {
	s := newTestServer(t, false)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/crops/diseases?cropType=cassava", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp DiseasesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.NotEmpty(t, resp.Diseases)
	for _, d := range resp.Diseases {
		assert.Equal(t, "cassava", d.Crop)
	}
	assert.Contains(t, resp.Crops, "maize")
}
