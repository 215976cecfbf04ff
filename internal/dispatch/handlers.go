package dispatch

import (
	"encoding/json"
	"net/http"
	neturl "net/url"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/packtrack/internal/common"
	"github.com/noah-isme/packtrack/internal/settings"
	"github.com/noah-isme/packtrack/internal/tracker"
	"github.com/noah-isme/packtrack/internal/urls"
)

// Handler exposes the tracking and URL list endpoints for serve mode.
type Handler struct {
	Dispatcher *Dispatcher
	Settings   *settings.Store
	Validate   *validator.Validate
}

type trackRequest struct {
	URLs         []string `json:"urls" validate:"required,min=1,dive,url"`
	Postcode     *string  `json:"postcode,omitempty" validate:"omitempty,alphanum,max=16"`
	Language     *string  `json:"language,omitempty" validate:"omitempty,bcp47_language_tag"`
	UseCache     *bool    `json:"use_cache,omitempty"`
	CacheSeconds *int     `json:"cache_seconds,omitempty" validate:"omitempty,min=0"`
}

type trackResult struct {
	URL     string           `json:"url"`
	OK      bool             `json:"ok"`
	Package *tracker.Package `json:"package,omitempty"`
	Error   string           `json:"error,omitempty"`
}

type trackResponse struct {
	BatchID        string        `json:"batch_id"`
	Results        []trackResult `json:"results"`
	CacheSaveError string        `json:"cache_save_error,omitempty"`
}

// Track tracks the URLs in the request body. Absent request fields fall
// back to the stored settings.
func (h *Handler) Track(w http.ResponseWriter, r *http.Request) {
	if h.Dispatcher == nil || h.Settings == nil || h.Validate == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "dispatcher not configured", nil)
		return
	}
	var req trackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid tracking request", err.Error())
		return
	}
	sets, err := h.Settings.Load()
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load settings", nil)
		return
	}
	tc, pol := runParams(sets, req)
	batch, saveErr := h.Dispatcher.TrackAll(r.Context(), req.URLs, tc, pol)
	common.JSON(w, http.StatusOK, buildResponse(batch, saveErr))
}

// TrackStored tracks every URL in the stored list with the settings
// policy.
func (h *Handler) TrackStored(w http.ResponseWriter, r *http.Request) {
	if h.Dispatcher == nil || h.Settings == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "dispatcher not configured", nil)
		return
	}
	sets, err := h.Settings.Load()
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load settings", nil)
		return
	}
	list, err := (&urls.File{Path: sets.URLsFile}).Load()
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load url list", nil)
		return
	}
	tc, pol := runParams(sets, trackRequest{})
	batch, saveErr := h.Dispatcher.TrackAll(r.Context(), list, tc, pol)
	common.JSON(w, http.StatusOK, buildResponse(batch, saveErr))
}

// ListURLs returns the stored URL list.
func (h *Handler) ListURLs(w http.ResponseWriter, r *http.Request) {
	file, ok := h.urlFile(w)
	if !ok {
		return
	}
	list, err := file.Load()
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load url list", nil)
		return
	}
	if list == nil {
		list = []string{}
	}
	common.JSON(w, http.StatusOK, map[string]any{"urls": list})
}

type addURLRequest struct {
	URL string `json:"url" validate:"required,url"`
}

// AddURL appends a URL to the stored list. Adding an exact duplicate is
// reported, not an error.
func (h *Handler) AddURL(w http.ResponseWriter, r *http.Request) {
	if h.Validate == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "validator not configured", nil)
		return
	}
	file, ok := h.urlFile(w)
	if !ok {
		return
	}
	var req addURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid url", err.Error())
		return
	}
	added, err := file.Add(req.URL)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to update url list", nil)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"url": req.URL, "added": added})
}

// RemoveURLs deletes every stored URL containing the path substring.
func (h *Handler) RemoveURLs(w http.ResponseWriter, r *http.Request) {
	file, ok := h.urlFile(w)
	if !ok {
		return
	}
	substr := chi.URLParam(r, "substr")
	if decoded, err := neturl.PathUnescape(substr); err == nil {
		substr = decoded
	}
	if substr == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "missing url substring", nil)
		return
	}
	removed, err := file.Remove(substr)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to update url list", nil)
		return
	}
	if removed == nil {
		removed = []string{}
	}
	common.JSON(w, http.StatusOK, map[string]any{"removed": removed, "count": len(removed)})
}

func (h *Handler) urlFile(w http.ResponseWriter) (*urls.File, bool) {
	if h.Settings == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "settings not configured", nil)
		return nil, false
	}
	sets, err := h.Settings.Load()
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load settings", nil)
		return nil, false
	}
	return &urls.File{Path: sets.URLsFile}, true
}

// runParams derives the tracker context and cache policy for a run from
// the stored settings plus any request overrides.
func runParams(sets settings.Settings, req trackRequest) (tracker.Context, Policy) {
	tc := tracker.Context{RecipientPostcode: sets.Postcode, Language: sets.Language}
	if req.Postcode != nil {
		tc.RecipientPostcode = *req.Postcode
	}
	if req.Language != nil {
		tc.Language = *req.Language
	}
	pol := Policy{UseCache: sets.UseCache, MaxAge: time.Duration(sets.CacheSeconds) * time.Second}
	if req.UseCache != nil {
		pol.UseCache = *req.UseCache
	}
	if req.CacheSeconds != nil {
		pol.MaxAge = time.Duration(*req.CacheSeconds) * time.Second
	}
	return tc, pol
}

func buildResponse(batch Batch, saveErr error) trackResponse {
	resp := trackResponse{BatchID: batch.ID, Results: make([]trackResult, 0, len(batch.Results))}
	for _, res := range batch.Results {
		tr := trackResult{URL: res.URL, OK: res.Err == nil, Package: res.Package}
		if res.Err != nil {
			tr.Error = res.Err.Error()
		}
		resp.Results = append(resp.Results, tr)
	}
	if saveErr != nil {
		resp.CacheSaveError = saveErr.Error()
	}
	return resp
}
