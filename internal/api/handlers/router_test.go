package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/langchou/overmove/internal/repository"
	"github.com/langchou/overmove/internal/service"
	"github.com/langchou/overmove/internal/store"
	"github.com/langchou/overmove/internal/testutil"
	"github.com/langchou/overmove/pkg/ws"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := store.New()
	syncer := repository.NewSynchronizer(t.TempDir(), st, zap.NewNop())
	hub := ws.NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	ids := testutil.NewStubIDGenerator("id")
	tracker := service.NewTrackerService(zap.NewNop(), st, syncer,
		service.WithIDGenerator(ids.New), service.WithHub(hub))
	require.NoError(t, tracker.Load())

	r := gin.New()
	NewHandler(zap.NewNop(), tracker, hub).RegisterRoutes(r)
	return r
}

type envelope struct {
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Changed *bool           `json:"changed"`
}

func do(t *testing.T, r *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func TestRouter_TravelLifecycle(t *testing.T) {
	r := newTestRouter(t)

	w, env := do(t, r, http.MethodPost, "/api/travels", `{"name": "Kyoto", "description": "temples"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var travel struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &travel))
	assert.Equal(t, "id-1", travel.ID)

	w, _ = do(t, r, http.MethodGet, "/api/travels/id-1", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, env = do(t, r, http.MethodGet, "/api/travels/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotEmpty(t, env.Error)

	w, _ = do(t, r, http.MethodPost, "/api/travels", `{"name": "   "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, r, http.MethodPost, "/api/travels", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_RecordingFlow(t *testing.T) {
	r := newTestRouter(t)

	// 未选择旅行时开始记录无效
	w, env := do(t, r, http.MethodPost, "/api/recorder/recording", `{"recording": true}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, env.Changed)
	assert.False(t, *env.Changed)

	do(t, r, http.MethodPost, "/api/travels", `{"name": "Kyoto"}`)
	w, _ = do(t, r, http.MethodPost, "/api/recorder/travel", `{"travel_id": "id-1"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w, env = do(t, r, http.MethodPost, "/api/recorder/recording", `{"recording": true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, *env.Changed)

	for _, body := range []string{
		`{"timestamp": 1714557600000, "coords": {"latitude": 35.0, "longitude": 135.0, "speed": 2}}`,
		`{"timestamp": 1714557660000, "coords": {"latitude": 35.001, "longitude": 135.0, "speed": 3}}`,
	} {
		w, _ = do(t, r, http.MethodPost, "/api/position", body)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w, _ = do(t, r, http.MethodPost, "/api/position", `{"timestamp": 1714557660000, "coords": {"latitude": 135.0, "longitude": 0}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, r, http.MethodGet, "/api/export", "")
	assert.Equal(t, http.StatusConflict, w.Code, "export is disabled while recording")

	w, _ = do(t, r, http.MethodPost, "/api/recorder/recording", `{"recording": false}`)
	require.Equal(t, http.StatusOK, w.Code)

	w, env = do(t, r, http.MethodGet, "/api/moves/id-2/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var ms struct {
		SampleCount     int      `json:"sample_count"`
		DurationSeconds int64    `json:"duration_sec"`
		MaxSpeed        *float64 `json:"max_speed_mps"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &ms))
	assert.Equal(t, 2, ms.SampleCount)
	assert.Equal(t, int64(60), ms.DurationSeconds)
	require.NotNil(t, ms.MaxSpeed)
	assert.Equal(t, 3.0, *ms.MaxSpeed)

	w, _ = do(t, r, http.MethodGet, "/api/moves/id-2/geolocations?per_page=1&page=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Data       []json.RawMessage `json:"data"`
		Pagination struct {
			Total int `json:"total"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Len(t, page.Data, 1)
	assert.Equal(t, 2, page.Pagination.Total)

	// 超大页号返回空页
	for _, q := range []string{"page=3&per_page=1", "page=36893488147419104&per_page=500", "page=9223372036854775807&per_page=5000"} {
		w, _ = do(t, r, http.MethodGet, "/api/moves/id-2/geolocations?"+q, "")
		require.Equal(t, http.StatusOK, w.Code, q)
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
		assert.Empty(t, page.Data, q)
		assert.Equal(t, 2, page.Pagination.Total, q)
	}

	w, _ = do(t, r, http.MethodGet, "/api/travels/id-1/stats", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, r, http.MethodGet, "/api/travels/id-1/geojson", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"FeatureCollection"`)

	w, env = do(t, r, http.MethodGet, "/api/position", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"latitude":35.001`)

	w, _ = do(t, r, http.MethodGet, "/api/export", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "overmove-export.json")
}

func TestRouter_Import(t *testing.T) {
	r := newTestRouter(t)

	legacy := `{
		"version": "0.1.0",
		"travel": [{"id": "t1", "name": "Kyoto", "description": "", "move_id_list": ["m1"]}],
		"move": [{"id": "m1", "start": "2024-05-01T10:00:00Z", "end": "2024-05-01T10:05:00Z"}],
		"geolocation": [{"timestamp": "2024-05-01T10:02:00Z", "latitude": 35, "longitude": 135, "altitude": null, "altitudeAccuracy": null, "speed": null, "heading": null}]
	}`
	w, _ := do(t, r, http.MethodPost, "/api/import", legacy)
	require.Equal(t, http.StatusOK, w.Code)

	w, env := do(t, r, http.MethodGet, "/api/travels/t1/moves", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"id": "m1", "travel_id": "t1"}]`, string(env.Data))

	w, _ = do(t, r, http.MethodPost, "/api/import", `{"version": "7.0.0"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, r, http.MethodPost, "/api/import", `garbage`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_Health(t *testing.T) {
	r := newTestRouter(t)
	w, _ := do(t, r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}
