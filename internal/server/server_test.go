package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/cascheck/hooks/prom"
	"github.com/unkn0wn-root/cascheck/provider/ristretto"
	"github.com/unkn0wn-root/cascheck/report"
	"github.com/unkn0wn-root/cascheck/scenario"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func newResults(t *testing.T) *report.Recorder {
	t.Helper()
	p, err := ristretto.New(ristretto.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	r, err := report.NewRecorder(report.Options{Provider: p})
	require.NoError(t, err)
	return r
}

func TestHealthAndMetrics(t *testing.T) {
	hooks := prom.New(nil)
	hooks.ScenarioFinished("string", "pass", time.Millisecond)
	s := New(Options{Metrics: hooks.Handler()})

	rec := get(t, s.Handler(), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = get(t, s.Handler(), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cascheck_")
}

func TestNoMetricsRoute(t *testing.T) {
	s := New(Options{})
	assert.Equal(t, http.StatusNotFound, get(t, s.Handler(), "/metrics").Code)
}

func TestRunEndpoints(t *testing.T) {
	results := newResults(t)
	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, name := range []string{"ping", "string"} {
		require.NoError(t, results.Record(context.Background(), report.Entry{
			Run: "r1", Scenario: name, Seq: uint32(i + 1),
			Status: report.StatusPass, Started: started, Duration: time.Second,
		}))
	}
	s := New(Options{Results: results})

	rec := get(t, s.Handler(), "/runs/r1")
	require.Equal(t, http.StatusOK, rec.Code)
	var es []report.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &es))
	require.Len(t, es, 2)
	assert.Equal(t, "string", es[1].Scenario)

	rec = get(t, s.Handler(), "/runs/r1/summary")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "2 scenarios")

	assert.Equal(t, http.StatusNotFound, get(t, s.Handler(), "/runs/nope").Code)
}

func TestRunsWithoutRecorder(t *testing.T) {
	s := New(Options{})
	assert.Equal(t, http.StatusNotFound, get(t, s.Handler(), "/runs/r1").Code)
}

func TestState(t *testing.T) {
	s := New(Options{State: func() scenario.State {
		return scenario.State{Phase: scenario.Running, Index: 2, Name: "list"}
	}})
	rec := get(t, s.Handler(), "/state")
	assert.JSONEq(t, `{"phase":"running","index":2,"scenario":"list"}`, rec.Body.String())

	rec = get(t, New(Options{}).Handler(), "/state")
	assert.JSONEq(t, `{"phase":"not-started"}`, rec.Body.String())
}
