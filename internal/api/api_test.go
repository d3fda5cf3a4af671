package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/geotracker/internal/projection"
	"github.com/starford/geotracker/internal/trackservice"
	"github.com/starford/geotracker/internal/trackservice/servicetest"
)

// testEnv builds a router over a fresh stack. An empty token disables auth.
func testEnv(t *testing.T, authToken string) (*servicetest.Stack, http.Handler) {
	t.Helper()
	st := servicetest.NewStack(t)
	return st, NewRouter(st.Service, authToken != "", authToken, nil)
}

func do(t *testing.T, router http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		if s, ok := body.(string); ok {
			rd = strings.NewReader(s)
		} else {
			data, err := json.Marshal(body)
			if err != nil {
				t.Fatal(err)
			}
			rd = bytes.NewReader(data)
		}
	}
	req := httptest.NewRequest(method, target, rd)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func TestListTracks_Bootstrap(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/tracks", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	resp := decode[TrackListResponse](t, w)
	if len(resp.Tracks) != 1 || resp.Tracks[0].Name != "Standard" {
		t.Fatalf("tracks = %+v", resp.Tracks)
	}
	if resp.Current != "Standard" || !resp.Tracks[0].Visible {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Tracks[0].Hex != "#FF0000FF" {
		t.Errorf("hex = %q", resp.Tracks[0].Hex)
	}
}

func TestCreateTrack(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/tracks", CreateTrackRequest{Name: "Morning Run", Color: "Green"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d, body = %s", w.Code, w.Body.String())
	}
	info := decode[TrackInfo](t, w)
	if info.Filename != "track_Morning_Run.csv" || !info.Current || !info.Visible {
		t.Errorf("info = %+v", info)
	}
	if info.Hex != "#FF00FF00" {
		t.Errorf("hex = %q", info.Hex)
	}

	if w := do(t, router, http.MethodPost, "/tracks", CreateTrackRequest{Name: "Morning Run"}); w.Code != http.StatusConflict {
		t.Errorf("duplicate = %d, want 409", w.Code)
	}
}

func TestCreateTrack_BadRequests(t *testing.T) {
	_, router := testEnv(t, "")

	cases := []struct {
		name string
		body any
	}{
		{"missing name", `{}`},
		{"blank name", CreateTrackRequest{Name: "   "}},
		{"separator", CreateTrackRequest{Name: "a/b"}},
		{"bad color", CreateTrackRequest{Name: "x", Color: "chartreuse"}},
		{"unknown field", `{"name":"x","colour":"Red"}`},
		{"not json", `name=x`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, router, http.MethodPost, "/tracks", tc.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (%s)", w.Code, w.Body.String())
			}
		})
	}
}

func TestCreateTrack_PersistFailure(t *testing.T) {
	st, router := testEnv(t, "")
	st.KV.FailNext = errors.New("disk full")

	w := do(t, router, http.MethodPost, "/tracks", CreateTrackRequest{Name: "Lost"})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if got := decode[errResponse](t, w).Error; got != "save failed" {
		t.Errorf("error = %q", got)
	}
	if _, err := st.Catalog.Get("Lost"); err == nil {
		t.Error("failed create left the track in the catalog")
	}
}

func TestSelectAndVisibility(t *testing.T) {
	_, router := testEnv(t, "")
	do(t, router, http.MethodPost, "/tracks", CreateTrackRequest{Name: "Hike"})

	w := do(t, router, http.MethodPut, "/tracks/Standard/current", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("select = %d", w.Code)
	}
	if !decode[TrackInfo](t, w).Current {
		t.Error("Standard not current after select")
	}

	w = do(t, router, http.MethodPut, "/tracks/Hike/visibility", map[string]bool{"visible": false})
	if w.Code != http.StatusOK {
		t.Fatalf("visibility = %d, body = %s", w.Code, w.Body.String())
	}
	if decode[TrackInfo](t, w).Visible {
		t.Error("Hike still visible")
	}

	if w := do(t, router, http.MethodPut, "/tracks/Hike/visibility", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("missing visible = %d, want 400", w.Code)
	}
	if w := do(t, router, http.MethodPut, "/tracks/Nope/current", nil); w.Code != http.StatusNotFound {
		t.Errorf("select missing = %d, want 404", w.Code)
	}
}

func TestDeleteTrack(t *testing.T) {
	st, router := testEnv(t, "")
	do(t, router, http.MethodPost, "/tracks", CreateTrackRequest{Name: "Morning Run"})

	w := do(t, router, http.MethodDelete, "/tracks/Morning%20Run", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d, body = %s", w.Code, w.Body.String())
	}
	if ok, _ := st.Files.Exists("track_Morning_Run.csv"); ok {
		t.Error("track file still on disk")
	}
	if d, _ := st.Catalog.Current(); d.Name != "Standard" {
		t.Errorf("current = %q, want Standard", d.Name)
	}
	if w := do(t, router, http.MethodDelete, "/tracks/Morning%20Run", nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", w.Code)
	}
}

func TestSavePoint_ManualFlow(t *testing.T) {
	_, router := testEnv(t, "")

	if w := do(t, router, http.MethodPost, "/points", nil); w.Code != http.StatusConflict {
		t.Fatalf("save without fix = %d, want 409", w.Code)
	}

	w := do(t, router, http.MethodPost, "/samples", map[string]float64{"lat": 52.52, "lon": 13.405})
	if w.Code != http.StatusAccepted {
		t.Fatalf("sample = %d, body = %s", w.Code, w.Body.String())
	}
	sr := decode[SampleResponse](t, w)
	if !sr.Delivered || sr.Label != "Latitude: 52.52\nLongitude: 13.405" {
		t.Errorf("sample resp = %+v", sr)
	}

	w = do(t, router, http.MethodPost, "/points", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("save = %d, body = %s", w.Code, w.Body.String())
	}
	res := decode[trackservice.PointResult](t, w)
	if res.Track != "Standard" || res.Record.Kind != "MANUAL" {
		t.Errorf("result = %+v", res)
	}

	w = do(t, router, http.MethodGet, "/tracks/Standard/points", nil)
	pts := decode[PointsResponse](t, w)
	if len(pts.Points) != 1 || pts.Points[0].Lat != 52.52 {
		t.Errorf("points = %+v", pts.Points)
	}
}

func TestSamples_Invalid(t *testing.T) {
	_, router := testEnv(t, "")

	for _, body := range []string{
		`{"lat":91,"lon":0}`,
		`{"lon":13}`,
		`{"lat":1,"lon":2,"accuracy":-1}`,
	} {
		if w := do(t, router, http.MethodPost, "/samples", body); w.Code != http.StatusBadRequest {
			t.Errorf("%s = %d, want 400", body, w.Code)
		}
	}
}

func TestContinuousMode_RecordsAndScene(t *testing.T) {
	st, router := testEnv(t, "")

	w := do(t, router, http.MethodPut, "/mode", map[string]bool{"continuous": true})
	if w.Code != http.StatusOK {
		t.Fatalf("mode = %d, body = %s", w.Code, w.Body.String())
	}
	if !decode[ModeResponse](t, w).Continuous {
		t.Fatal("mode not continuous")
	}

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i, lat := range []float64{52.53, 52.54} {
		body := map[string]any{"lat": lat, "lon": 13.4, "time": base.Add(time.Duration(i) * 2 * time.Second)}
		if w := do(t, router, http.MethodPost, "/samples", body); w.Code != http.StatusAccepted {
			t.Fatalf("sample %d = %d", i, w.Code)
		}
	}

	recs, err := st.Files.ReadAll("track_standard.csv")
	if err != nil || len(recs) != 2 {
		t.Fatalf("records = %d, err = %v", len(recs), err)
	}

	w = do(t, router, http.MethodGet, "/scene", nil)
	scene := decode[projection.Scene](t, w)
	if len(scene.Polylines) != 1 || len(scene.Polylines[0].Points) != 2 {
		t.Fatalf("polylines = %+v", scene.Polylines)
	}
	if scene.Polylines[0].Width != projection.WidthContinuous {
		t.Errorf("width = %d", scene.Polylines[0].Width)
	}
	if scene.Camera == nil || scene.Camera.Center.Lat != 52.54 {
		t.Errorf("camera = %+v", scene.Camera)
	}
}

func TestSamples_ContinuousWriteFailure(t *testing.T) {
	st, router := testEnv(t, "")
	do(t, router, http.MethodPut, "/mode", map[string]bool{"continuous": true})
	st.BreakTrackFile(t, "track_standard.csv")

	w := do(t, router, http.MethodPost, "/samples", map[string]float64{"lat": 52.52, "lon": 13.405})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 (%s)", w.Code, w.Body.String())
	}
	if got := decode[errResponse](t, w).Error; got != "save failed" {
		t.Errorf("error = %q", got)
	}
}

func TestSetMode_PersistFailure(t *testing.T) {
	st, router := testEnv(t, "")
	st.KV.FailNext = errors.New("read-only")

	w := do(t, router, http.MethodPut, "/mode", map[string]bool{"continuous": true})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	w = do(t, router, http.MethodGet, "/mode", nil)
	if decode[ModeResponse](t, w).Continuous {
		t.Error("mode changed despite persist failure")
	}
}

func TestShareAndExport(t *testing.T) {
	st, router := testEnv(t, "")
	do(t, router, http.MethodPost, "/samples", map[string]float64{"lat": 1, "lon": 2})
	do(t, router, http.MethodPost, "/points", nil)

	w := do(t, router, http.MethodPost, "/tracks/Standard/share", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("share = %d", w.Code)
	}
	var shared struct {
		URI      string `json:"uri"`
		MIMEType string `json:"mime_type"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &shared)
	if shared.URI != "http://geotracker.test/api/exports/track_standard.csv" {
		t.Errorf("uri = %q", shared.URI)
	}

	w = do(t, router, http.MethodGet, "/exports/track_standard.csv", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("export = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("content type = %q", ct)
	}
	disp, params, err := mime.ParseMediaType(w.Header().Get("Content-Disposition"))
	if err != nil || disp != "attachment" || params["filename"] != "track_standard.csv" {
		t.Errorf("content disposition = %q (%v)", w.Header().Get("Content-Disposition"), err)
	}
	raw, _ := st.Files.Raw("track_standard.csv")
	if w.Body.String() != string(raw) {
		t.Errorf("body = %q", w.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/exports/track_standard.csv", nil)
	req.Header.Set("If-None-Match", w.Header().Get("ETag"))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotModified {
		t.Errorf("conditional export = %d, want 304", w.Code)
	}

	for _, name := range []string{"settings.json", "track_missing.csv", "..%2Fetc%2Fpasswd"} {
		if w := do(t, router, http.MethodGet, "/exports/"+name, nil); w.Code != http.StatusNotFound {
			t.Errorf("export %s = %d, want 404", name, w.Code)
		}
	}
}

func TestGeoJSON(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/tracks/Standard/geojson", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("geojson = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/geo+json" {
		t.Errorf("content type = %q", ct)
	}
	var fc struct {
		Type string `json:"type"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &fc)
	if fc.Type != "FeatureCollection" {
		t.Errorf("type = %q", fc.Type)
	}
	if w := do(t, router, http.MethodGet, "/tracks/Nope/geojson", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing = %d, want 404", w.Code)
	}
}

func TestSession_PauseResume(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/session/pause", nil)
	if got := decode[trackservice.Status](t, w).Session; got != "paused" {
		t.Errorf("after pause = %q", got)
	}
	w = do(t, router, http.MethodPost, "/session/resume", nil)
	if got := decode[trackservice.Status](t, w).Session; got != "running" {
		t.Errorf("after resume = %q", got)
	}
	w = do(t, router, http.MethodGet, "/status", nil)
	st := decode[trackservice.Status](t, w)
	if st.Label != "location unavailable" || st.Current != "Standard" {
		t.Errorf("status = %+v", st)
	}
}

func TestPalette(t *testing.T) {
	_, router := testEnv(t, "")
	resp := decode[PaletteResponse](t, do(t, router, http.MethodGet, "/palette", nil))
	if len(resp.Colors) != 5 || resp.Colors[0].Name != "Red" {
		t.Errorf("palette = %+v", resp.Colors)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/tracks", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authed list = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	if w := do(t, router, http.MethodGet, "/tracks", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/exports/track_standard.csv", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

// SSE endpoint auth tests.

func TestSSEEvents_AuthProtected(t *testing.T) {
	router := testEnvWithSSE(t, true, "secret")

	if w := do(t, router, http.MethodGet, "/events", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	router := testEnvWithSSE(t, true, "tok")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}

// testEnvWithSSE creates a router with a dummy SSE handler to test auth on /events.
func testEnvWithSSE(t *testing.T, authEnabled bool, token string) http.Handler {
	t.Helper()
	st := servicetest.NewStack(t)

	sseHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	})
	return NewRouter(st.Service, authEnabled, token, sseHandler)
}
