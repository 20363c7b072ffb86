package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/spotgrid/internal/engine"
	"github.com/sells-group/spotgrid/internal/model"
	"github.com/sells-group/spotgrid/internal/rules"
	"github.com/sells-group/spotgrid/internal/schedule"
	"github.com/sells-group/spotgrid/internal/store"
)

const serveGridYAML = `
schedules:
  - id: 1
    name: Dallas Grid
    version: 1
    type: market
    effective_start: 2025-01-01
    blocks:
      - days: [monday]
        start: "20:00"
        end: "21:00"
        language: Mandarin
        name: The Starry Love
assignments:
  - id: 1
    market: DAL
    schedule_id: 1
    effective_start: 2025-01-01
    priority: 1
`

type apiFixture struct {
	store  *store.SQLiteStore
	engine *engine.Engine
	router http.Handler
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	ctx := context.Background()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"), store.SQLiteOptions{BusyTimeout: 200 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(ctx))

	grid, err := schedule.ParseGrid([]byte(serveGridYAML))
	require.NoError(t, err)
	require.NoError(t, st.SaveGrid(ctx, grid))

	monday := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	require.NoError(t, st.SaveSpots(ctx, []model.Spot{
		{ID: 1, Market: "DAL", AirDate: monday, DayOfWeek: time.Monday, TimeIn: "20:00:00", TimeOut: "21:00:00",
			Duration: time.Hour, Kind: model.KindCommercial, Revenue: decimal.NewFromInt(100), RevenueType: "Local",
			Language: model.StrPtr("Mandarin")},
		{ID: 2, Market: "DAL", AirDate: monday, DayOfWeek: time.Monday, TimeIn: "10:00:00", TimeOut: "10:00:30",
			Duration: 30 * time.Second, Kind: model.KindCommercial, Revenue: decimal.NewFromInt(50), RevenueType: "Local",
			Agency: model.StrPtr("WorldLink")},
	}))

	re, err := rules.NewEngine(rules.DefaultRules(rules.DefaultOptions()))
	require.NoError(t, err)
	opts := engine.DefaultOptions()
	opts.CommitsPerSecond = 0
	eng := engine.New(st, re, opts)

	return &apiFixture{store: st, engine: eng, router: newRouter(st, eng, []string{"*"})}
}

func (f *apiFixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Origin", "https://reports.example.com")
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func TestRouter_Health(t *testing.T) {
	f := newAPIFixture(t)
	rr := f.get(t, "/health")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestRouter_RunsEmpty(t *testing.T) {
	f := newAPIFixture(t)
	rr := f.get(t, "/runs")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())
}

func TestRouter_RunsAfterAssignment(t *testing.T) {
	f := newAPIFixture(t)
	summary, err := f.engine.Run(context.Background(), engine.Params{})
	require.NoError(t, err)

	rr := f.get(t, "/runs?status=complete&limit=5")
	require.Equal(t, http.StatusOK, rr.Code)
	var runs []model.Run
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, summary.RunID, runs[0].ID)

	rr = f.get(t, "/runs/"+summary.RunID)
	require.Equal(t, http.StatusOK, rr.Code)
	var run model.Run
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &run))
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, 2, run.Committed)
}

func TestRouter_RunNotFound(t *testing.T) {
	f := newAPIFixture(t)
	rr := f.get(t, "/runs/does-not-exist")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "run not found")
}

func TestRouter_BadQuery(t *testing.T) {
	f := newAPIFixture(t)
	for _, path := range []string{"/runs?limit=x", "/runs?offset=-1", "/collisions?limit=abc", "/reconciliation?from=yesterday", "/reconciliation/spots?to=2025-13-01"} {
		rr := f.get(t, path)
		assert.Equal(t, http.StatusBadRequest, rr.Code, path)
	}
}

func TestRouter_Collisions(t *testing.T) {
	f := newAPIFixture(t)
	require.NoError(t, f.store.RecordCollision(context.Background(), model.Collision{
		Type:         model.CollisionMarketOverlap,
		Severity:     model.SeverityError,
		Market:       "DAL",
		CandidateIDs: []int64{1, 2},
		ChosenID:     model.Int64Ptr(2),
		Message:      "two assignments cover DAL",
		DetectedAt:   time.Now().UTC(),
	}))

	rr := f.get(t, "/collisions?market=DAL")
	require.Equal(t, http.StatusOK, rr.Code)
	var cs []model.Collision
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &cs))
	require.Len(t, cs, 1)
	assert.Equal(t, model.CollisionMarketOverlap, cs[0].Type)

	rr = f.get(t, "/collisions?type=block_overlap")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())
}

func TestRouter_Reconciliation(t *testing.T) {
	f := newAPIFixture(t)
	_, err := f.engine.Run(context.Background(), engine.Params{})
	require.NoError(t, err)

	rr := f.get(t, "/reconciliation?from=2025-03-01&to=2025-03-31")
	require.Equal(t, http.StatusOK, rr.Code)

	var rep model.ReconciliationReport
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rep))
	assert.True(t, rep.Reconciled)
	assert.Equal(t, 2, rep.InputCount)
	assert.True(t, decimal.NewFromInt(150).Equal(rep.GrandTotal))
	assert.Len(t, rep.Categories, len(model.Categories))
}

func TestRouter_SpotCategories(t *testing.T) {
	f := newAPIFixture(t)
	_, err := f.engine.Run(context.Background(), engine.Params{})
	require.NoError(t, err)

	rr := f.get(t, "/reconciliation/spots")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[
		{"spot_id": 1, "category": "Individual Language"},
		{"spot_id": 2, "category": "Direct Response"}
	]`, rr.Body.String())

	rr = f.get(t, "/reconciliation/spots?from=2026-01-01")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())
}
