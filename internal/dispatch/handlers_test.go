package dispatch_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/packtrack/internal/dispatch"
	"github.com/noah-isme/packtrack/internal/settings"
	"github.com/noah-isme/packtrack/internal/tracker"
	"github.com/noah-isme/packtrack/internal/urls"
)

type apiFixture struct {
	handler *dispatch.Handler
	router  http.Handler
	stub    *stubHandler
	urls    *urls.File
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	dir := t.TempDir()

	st := settings.NewStore(filepath.Join(dir, "settings.json"), nil)
	sets := settings.Default()
	sets.URLsFile = filepath.Join(dir, "packtrack.urls")
	require.NoError(t, st.Save(sets))

	store, _ := seededStore(t, nil)
	stub := &stubHandler{name: "Carrier", match: "carrier.example"}
	d := dispatch.New(tracker.NewRegistry(func() tracker.Handler { return stub }), store, zerolog.Nop())

	h := &dispatch.Handler{
		Dispatcher: d,
		Settings:   st,
		Validate:   validator.New(validator.WithRequiredStructEnabled()),
	}
	r := chi.NewRouter()
	r.Post("/api/v1/track", h.Track)
	r.Get("/api/v1/track", h.TrackStored)
	r.Get("/api/v1/urls", h.ListURLs)
	r.Post("/api/v1/urls", h.AddURL)
	r.Delete("/api/v1/urls/{substr}", h.RemoveURLs)

	return &apiFixture{handler: h, router: r, stub: stub, urls: &urls.File{Path: sets.URLsFile}}
}

func (f *apiFixture) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

type trackResponseBody struct {
	BatchID string `json:"batch_id"`
	Results []struct {
		URL     string          `json:"url"`
		OK      bool            `json:"ok"`
		Package json.RawMessage `json:"package"`
		Error   string          `json:"error"`
	} `json:"results"`
	CacheSaveError string `json:"cache_save_error"`
}

func TestTrackEndpoint(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)
	rr := f.do(t, http.MethodPost, "/api/v1/track", map[string]any{
		"urls": []string{"https://carrier.example/track/AAA"},
	})
	require.Equal(t, http.StatusOK, rr.Code)

	var resp trackResponseBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.BatchID)
	require.Len(t, resp.Results, 1)
	require.True(t, resp.Results[0].OK)
	require.NotEmpty(t, resp.Results[0].Package)
	require.Empty(t, resp.CacheSaveError)
}

func TestTrackEndpointRejectsInvalidBodies(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)

	rr := f.do(t, http.MethodPost, "/api/v1/track", map[string]any{"urls": []string{}})
	require.Equal(t, http.StatusBadRequest, rr.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/track", bytes.NewBufferString("{not json"))
	rr = httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, http.MethodPost, "/api/v1/track", map[string]any{"urls": []string{"not a url"}})
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestTrackEndpointReportsPerURLFailures(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)
	rr := f.do(t, http.MethodPost, "/api/v1/track", map[string]any{
		"urls": []string{
			"https://carrier.example/track/AAA",
			"https://nobody.example/track/BBB",
		},
	})
	require.Equal(t, http.StatusOK, rr.Code)

	var resp trackResponseBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 2)
	require.True(t, resp.Results[0].OK)
	require.False(t, resp.Results[1].OK)
	require.Contains(t, resp.Results[1].Error, "no handler")
}

func TestTrackEndpointHonorsOverrides(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)
	rr := f.do(t, http.MethodPost, "/api/v1/track", map[string]any{
		"urls":     []string{"https://carrier.example/track/AAA"},
		"postcode": "9999ZZ",
	})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, 1, f.stub.calls())
	require.Equal(t, "9999ZZ", f.stub.fetchedContext(0).RecipientPostcode)
}

func TestTrackStoredEndpoint(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)
	_, err := f.urls.Add("https://carrier.example/track/STORED")
	require.NoError(t, err)

	rr := f.do(t, http.MethodGet, "/api/v1/track", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp trackResponseBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	require.Equal(t, "https://carrier.example/track/STORED", resp.Results[0].URL)
	require.True(t, resp.Results[0].OK)
}

func TestURLManagementEndpoints(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)

	rr := f.do(t, http.MethodPost, "/api/v1/urls", map[string]string{"url": "https://carrier.example/track/AAA"})
	require.Equal(t, http.StatusCreated, rr.Code)
	var added struct {
		Added bool `json:"added"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &added))
	require.True(t, added.Added)

	rr = f.do(t, http.MethodPost, "/api/v1/urls", map[string]string{"url": "https://carrier.example/track/AAA"})
	require.Equal(t, http.StatusCreated, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &added))
	require.False(t, added.Added, "exact duplicates are not stored twice")

	rr = f.do(t, http.MethodPost, "/api/v1/urls", map[string]string{"url": "not a url"})
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, http.MethodGet, "/api/v1/urls", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var listed struct {
		URLs []string `json:"urls"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &listed))
	require.Equal(t, []string{"https://carrier.example/track/AAA"}, listed.URLs)

	rr = f.do(t, http.MethodDelete, "/api/v1/urls/AAA", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var removed struct {
		Removed []string `json:"removed"`
		Count   int      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &removed))
	require.Equal(t, 1, removed.Count)

	rr = f.do(t, http.MethodGet, "/api/v1/urls", nil)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &listed))
	require.Empty(t, listed.URLs)
}
