// Package handlers provides the HTTP handlers of the ad collector.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/adscanner-go/internal/collector"
	"github.com/Rorqualx/adscanner-go/internal/security"
	"github.com/Rorqualx/adscanner-go/internal/store"
	"github.com/Rorqualx/adscanner-go/internal/types"
	"github.com/Rorqualx/adscanner-go/pkg/version"
)

// maxUploadBody bounds POST /upload_ad bodies: the largest screenshot and
// DOM the request validation accepts, plus room for the other fields.
const maxUploadBody = types.MaxScreenshotBytes + types.MaxDOMHTMLLength + 1<<20

// Ingester stores one upload.
type Ingester interface {
	Ingest(ctx context.Context, req *types.UploadRequest) (*collector.Result, error)
}

// AdLister reads stored ads.
type AdLister interface {
	Count(ctx context.Context) (int64, error)
	Latest(ctx context.Context, limit int) ([]store.Ad, error)
}

// Handler serves the collector API.
type Handler struct {
	ingester Ingester
	ads      AdLister
	routes   map[string]route
}

// New creates a new Handler.
func New(ingester Ingester, ads AdLister) *Handler {
	h := &Handler{
		ingester: ingester,
		ads:      ads,
	}
	h.routes = h.buildRoutes()
	return h
}

// HandleUpload handles POST /upload_ad.
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	defer r.Body.Close()

	// Pooled buffer; screenshots make these bodies large.
	buf := getBuffer()
	defer putBuffer(buf)

	if _, err := io.Copy(buf, r.Body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		log.Warn().Err(err).Msg("Failed to read request body")
		h.writeError(w, http.StatusBadRequest, "Failed to read request")
		return
	}

	// An empty body, null and {} all carry nothing to store.
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(buf.Bytes(), &fields); err != nil {
		if len(strings.TrimSpace(buf.String())) == 0 {
			h.writeError(w, http.StatusBadRequest, "No JSON data received")
			return
		}
		log.Warn().Err(err).Msg("Failed to decode upload")
		h.writeError(w, http.StatusBadRequest, "Invalid JSON request")
		return
	}
	if len(fields) == 0 {
		h.writeError(w, http.StatusBadRequest, "No JSON data received")
		return
	}

	var req types.UploadRequest
	if err := json.Unmarshal(buf.Bytes(), &req); err != nil {
		log.Warn().Err(err).Msg("Failed to decode upload fields")
		h.writeError(w, http.StatusBadRequest, "Invalid upload: "+err.Error())
		return
	}

	log.Debug().
		Str("ad_id", req.ID()).
		Str("ad_url", security.RedactURL(req.URL())).
		Msg("Upload received")

	res, err := h.ingester.Ingest(r.Context(), &req)
	if err != nil {
		if errors.Is(err, types.ErrInvalidRequest) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Error().Err(err).Str("ad_id", req.ID()).Msg("Failed to store ad")
		h.writeError(w, http.StatusInternalServerError, "Failed to store ad")
		return
	}

	saved := res.ScreenshotSaved
	h.writeJSONResponse(w, http.StatusOK, types.UploadResponse{
		Status:          types.StatusSuccess,
		ScreenshotSaved: &saved,
	})
}

// HandleHealth handles GET /health.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	n, err := h.ads.Count(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Health check failed")
		h.writeJSONResponse(w, http.StatusServiceUnavailable, types.HealthResponse{
			Status:  types.StatusError,
			Message: "Database unavailable",
			Version: version.Full(),
		})
		return
	}
	h.writeJSONResponse(w, http.StatusOK, types.HealthResponse{
		Status:  types.StatusOK,
		Message: "Collector is ready",
		Version: version.Full(),
		Ads:     n,
	})
}

// HandleAds handles GET /ads?limit=N.
func (h *Handler) HandleAds(w http.ResponseWriter, r *http.Request) {
	limit := store.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	ads, err := h.ads.Latest(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list ads")
		h.writeError(w, http.StatusInternalServerError, "Failed to list ads")
		return
	}

	records := make([]types.AdRecord, 0, len(ads))
	for _, ad := range ads {
		records = append(records, ad.Record())
	}
	h.writeJSONResponse(w, http.StatusOK, types.AdsResponse{
		Status: types.StatusOK,
		Count:  len(records),
		Ads:    records,
	})
}

// HandleMethodNotAllowed handles requests with unsupported HTTP methods.
func (h *Handler) HandleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
}

// HandleNotFound handles requests to unknown paths.
func (h *Handler) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, http.StatusNotFound, "Not found")
}

func (h *Handler) writeError(w http.ResponseWriter, statusCode int, message string) {
	h.writeJSONResponse(w, statusCode, types.UploadResponse{
		Status:  types.StatusError,
		Message: message,
	})
}

// writeJSONResponse buffers JSON before writing so encoding errors are caught
// before headers are sent.
func (h *Handler) writeJSONResponse(w http.ResponseWriter, statusCode int, resp interface{}) {
	buf := getResponseBuffer()
	defer putResponseBuffer(buf)

	if err := json.NewEncoder(buf).Encode(resp); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"status":"error","message":"internal encoding error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(buf.Bytes())
}
