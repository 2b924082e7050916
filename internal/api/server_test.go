package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/linkmill/linkmill/internal/runstate"
)

func TestServerHealthz(t *testing.T) {
	t.Parallel()

	s := NewServer(runstate.New(0), prometheus.NewRegistry(), nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServerProgressSnapshot(t *testing.T) {
	t.Parallel()

	state := runstate.New(5)
	state.IncrementDone()
	state.IncrementDone()
	state.IncrementFailed()
	state.SetPaused(true)

	s := NewServer(state, prometheus.NewRegistry(), nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/progress", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Done      int  `json:"done"`
		Failed    int  `json:"failed"`
		Succeeded int  `json:"succeeded"`
		Total     int  `json:"total"`
		Paused    bool `json:"paused"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 2, body.Done)
	require.Equal(t, 1, body.Failed)
	require.Equal(t, 1, body.Succeeded)
	require.Equal(t, 5, body.Total)
	require.True(t, body.Paused)
}

func TestServerMetricsEndpoint(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "linkmill_test_gauge", Help: "test"})
	require.NoError(t, reg.Register(gauge))
	gauge.Set(7)

	s := NewServer(runstate.New(0), reg, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "linkmill_test_gauge 7")
}
