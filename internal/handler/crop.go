// Package handler contains HTTP handlers for the Agropal API.
//
// This file implements the crop diagnosis, history and statistics endpoints.
package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/agropal/agropal/internal/domain"
	"github.com/agropal/agropal/internal/metrics"
	"github.com/agropal/agropal/internal/regional"
	"github.com/agropal/agropal/internal/report"
	"github.com/agropal/agropal/internal/service"
)

// multipartMemory is how much of a multipart body is held in memory before
// spilling to temporary files.
const multipartMemory = 32 << 20

// formOverhead is allowed on top of the image size for the other fields.
const formOverhead = 1 << 20

// =============================================================================
// Handler Configuration
// =============================================================================

// CropHandler handles the /api/crops endpoints.
type CropHandler struct {
	diagnoses     service.DiagnosisService
	history       service.HistoryService
	reports       report.Generator
	support       SupportContact
	maxUploadSize int64
	debug         bool
	logger        *slog.Logger
}

// CropHandlerConfig holds the dependencies of a CropHandler.
type CropHandlerConfig struct {
	Diagnoses     service.DiagnosisService
	History       service.HistoryService
	Reports       report.Generator
	Support       SupportContact
	MaxUploadSize int64
	Debug         bool // Include debugInfo in error bodies
	Logger        *slog.Logger
}

// NewCropHandler creates a new CropHandler.
func NewCropHandler(cfg CropHandlerConfig) *CropHandler {
	maxUpload := cfg.MaxUploadSize
	if maxUpload <= 0 {
		maxUpload = domain.DefaultMaxImageSize
	}
	reports := cfg.Reports
	if reports == nil {
		reports = report.NewPDFGenerator()
	}
	return &CropHandler{
		diagnoses:     cfg.Diagnoses,
		history:       cfg.History,
		reports:       reports,
		support:       cfg.Support,
		maxUploadSize: maxUpload,
		debug:         cfg.Debug,
		logger:        cfg.Logger,
	}
}

// =============================================================================
// Route Registration
// =============================================================================

// RegisterRoutes registers the crop routes on r. The diagnose route is
// wrapped with limit, which may be nil.
//
// Routes:
// - POST /diagnose                      -> Diagnose
// - GET  /history/{userId}              -> History
// - GET  /statistics                    -> Statistics
// - GET  /diagnosis/{id}                -> Get
// - GET  /diagnosis/{id}/report.pdf     -> Report
// - GET  /diseases                      -> Diseases
func (h *CropHandler) RegisterRoutes(r chi.Router, limit func(http.Handler) http.Handler) {
	diagnose := http.Handler(http.HandlerFunc(h.Diagnose))
	if limit != nil {
		diagnose = limit(diagnose)
	}
	r.Method(http.MethodPost, "/diagnose", diagnose)
	r.Get("/history/{userId}", h.History)
	r.Get("/statistics", h.Statistics)
	r.Get("/diagnosis/{id}", h.Get)
	r.Get("/diagnosis/{id}/report.pdf", h.Report)
	r.Get("/diseases", h.Diseases)
}

// =============================================================================
// POST /diagnose - Submit a crop photo
// =============================================================================

// Diagnose runs one diagnosis submission.
func (h *CropHandler) Diagnose(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+formOverhead)

	req, cleanup, err := h.parseDiagnoseRequest(r)
	defer cleanup()
	if err != nil {
		if domain.IsValidationError(err) {
			ValidationErrorResponse(w, r, h.logger, err, h.debug)
			return
		}
		ErrorResponse(w, r, h.logger, err, h.debug)
		return
	}

	result, err := h.diagnoses.Diagnose(r.Context(), req)
	if err != nil {
		ErrorResponse(w, r, h.logger, err, h.debug)
		return
	}

	writeJSON(w, http.StatusOK, AssembleDiagnosis(result.Record, h.support))
}

// parseDiagnoseRequest turns the multipart form into a typed request. No
// storage or classifier work happens here. The returned cleanup releases
// any temporary files the multipart reader created.
func (h *CropHandler) parseDiagnoseRequest(r *http.Request) (*service.DiagnoseRequest, func(), error) {
	const op = "crop.parse_request"
	noop := func() {}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, noop, domain.Errorf(domain.EINVALIDFILE, op,
				"Image is too large. The maximum size is %.0fMB.", float64(h.maxUploadSize)/(1024*1024))
		}
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, noop, domain.InvalidUpload(op, "No image file uploaded")
		}
		return nil, noop, domain.Wrap(err, domain.EINVALID, op, "The form could not be read")
	}
	cleanup := func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}

	req := &service.DiagnoseRequest{
		UserID:             strings.TrimSpace(r.FormValue("userId")),
		CropType:           strings.TrimSpace(r.FormValue("cropType")),
		Variety:            strings.TrimSpace(r.FormValue("variety")),
		Symptoms:           strings.TrimSpace(r.FormValue("symptoms")),
		GrowthStage:        strings.TrimSpace(r.FormValue("growthStage")),
		PreviousTreatments: strings.TrimSpace(r.FormValue("previousTreatments")),
	}

	fields := make(map[string]string)
	loc, err := parseLocation(r.FormValue("location"))
	if err != nil {
		fields["location"] = err.Error()
	}
	req.Location = loc

	if raw := strings.TrimSpace(r.FormValue("plantingDate")); raw != "" {
		t, err := parsePlantingDate(raw)
		if err != nil {
			fields["plantingDate"] = "use the format YYYY-MM-DD"
		} else {
			req.PlantingDate = &t
		}
	}

	if len(fields) > 0 {
		return nil, cleanup, &domain.ValidationError{Op: op, Fields: fields}
	}

	files := r.MultipartForm.File["image"]
	switch len(files) {
	case 0:
		// The ingestor reports the missing file.
	case 1:
		upload, err := openUpload(files[0])
		if err != nil {
			return nil, cleanup, domain.InvalidUpload(op, "The image could not be read. Please upload it again.")
		}
		req.Image = upload
	default:
		return nil, cleanup, domain.InvalidUpload(op, "Please upload exactly one image")
	}

	return req, cleanup, nil
}

func openUpload(fh *multipart.FileHeader) (*service.ImageUpload, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	// Buffered so the multipart file can be closed before ingest.
	var buf bytes.Buffer
	_, err = buf.ReadFrom(f)
	_ = f.Close()
	if err != nil {
		return nil, err
	}
	return &service.ImageUpload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Body:        &buf,
	}, nil
}

// locationForm is the JSON shape of the location field.
type locationForm struct {
	State       string `json:"state"`
	LGA         string `json:"lga"`
	Coordinates *struct {
		Lat *float64 `json:"lat"`
		Lng *float64 `json:"lng"`
	} `json:"coordinates"`
}

// parseLocation accepts the JSON object or a bare state name.
func parseLocation(raw string) (domain.Location, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.Location{}, nil
	}
	if !strings.HasPrefix(raw, "{") {
		return domain.Location{State: raw}, nil
	}

	var lf locationForm
	if err := json.Unmarshal([]byte(raw), &lf); err != nil {
		return domain.Location{}, errors.New("location must be a JSON object with state and lga")
	}

	loc := domain.Location{
		State: strings.TrimSpace(lf.State),
		LGA:   strings.TrimSpace(lf.LGA),
	}
	if c := lf.Coordinates; c != nil {
		if c.Lat == nil || c.Lng == nil {
			return domain.Location{}, errors.New("coordinates need both lat and lng")
		}
		if *c.Lat < -90 || *c.Lat > 90 || *c.Lng < -180 || *c.Lng > 180 {
			return domain.Location{}, errors.New("coordinates are out of range")
		}
		loc.Coordinates = &domain.Coordinates{Lat: *c.Lat, Lng: *c.Lng}
	}
	return loc, nil
}

func parsePlantingDate(raw string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}

// =============================================================================
// GET /history/{userId} - Diagnosis history
// =============================================================================

// History returns one page of a user's diagnoses, newest first.
func (h *CropHandler) History(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	page := queryInt(r, "page")
	limit := queryInt(r, "limit")

	result, err := h.history.History(r.Context(), userID, page, limit)
	if err != nil {
		ErrorResponse(w, r, h.logger, err, h.debug)
		return
	}

	writeJSON(w, http.StatusOK, AssembleHistory(result))
}

// =============================================================================
// GET /statistics - Regional disease statistics
// =============================================================================

// Statistics returns the most frequent diseases for the requested filters.
func (h *CropHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	result, err := h.history.Statistics(r.Context(), service.StatisticsQuery{
		State:         q.Get("state"),
		CropType:      q.Get("cropType"),
		TimeframeDays: queryInt(r, "timeframe"),
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err, h.debug)
		return
	}

	writeJSON(w, http.StatusOK, AssembleStatistics(result))
}

// =============================================================================
// GET /diagnosis/{id} - Single diagnosis
// =============================================================================

// Get returns one stored diagnosis.
func (h *CropHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.diagnoses.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		ErrorResponse(w, r, h.logger, err, h.debug)
		return
	}

	writeJSON(w, http.StatusOK, AssembleDetail(rec, h.support))
}

// =============================================================================
// GET /diagnosis/{id}/report.pdf - Printable report
// =============================================================================

// Report renders a stored diagnosis as a PDF download.
func (h *CropHandler) Report(w http.ResponseWriter, r *http.Request) {
	const op = "crop.report"

	rec, err := h.diagnoses.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		ErrorResponse(w, r, h.logger, err, h.debug)
		return
	}

	var buf bytes.Buffer
	if _, err := h.reports.Generate(r.Context(), &report.Data{
		Record:      rec,
		Support:     report.SupportLine{Phone: h.support.Phone, WhatsApp: h.support.WhatsApp},
		GeneratedAt: time.Now(),
	}, &buf); err != nil {
		ErrorResponse(w, r, h.logger, domain.Internal(err, op, "failed to generate report"), h.debug)
		return
	}
	metrics.ReportsGenerated.WithLabelValues(h.reports.Format()).Inc()

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="agropal-diagnosis-%s.pdf"`, rec.ID))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Error("failed to write report", "op", op, "diagnosis_id", rec.ID, "error", err)
	}
}

// =============================================================================
// GET /diseases - Disease reference
// =============================================================================

// Diseases returns the static disease reference, optionally filtered.
func (h *CropHandler) Diseases(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	writeJSON(w, http.StatusOK, AssembleDiseases(regional.Diseases(q.Get("cropType"), q.Get("state"))))
}

// queryInt returns the integer query parameter, or 0 when absent or
// malformed. Services apply their own defaults to 0.
func queryInt(r *http.Request, name string) int {
	n, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get(name)))
	if err != nil {
		return 0
	}
	return n
}
