package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goodwill_sniper/internal/logbus"
	"goodwill_sniper/internal/model"
)

type fixedState model.SchedulerState

func (f fixedState) State() model.SchedulerState { return model.SchedulerState(f) }

type fixedSnapshot model.Snapshot

func (f fixedSnapshot) Fallback() model.Snapshot { return model.Snapshot(f) }

type memHistory struct {
	bids   []model.BidAttempt
	alerts []model.AlertEvent
	err    error
	limit  int
}

func (m *memHistory) ListBidAttempts(_ context.Context, limit int) ([]model.BidAttempt, error) {
	m.limit = limit
	return m.bids, m.err
}

func (m *memHistory) ListAlertEvents(_ context.Context, limit int) ([]model.AlertEvent, error) {
	m.limit = limit
	return m.alerts, m.err
}

func get(t *testing.T, h http.Handler, path string) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestHealth(t *testing.T) {
	code, body := get(t, New(Options{}).Handler(), "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["ok"])
}

func TestState(t *testing.T) {
	h := New(Options{State: fixedState{Phase: model.PhaseIdle, Listings: 3}}).Handler()
	code, body := get(t, h, "/api/v1/state")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "idle", body["data"].(map[string]any)["phase"])
	assert.EqualValues(t, 3, body["data"].(map[string]any)["listings"])

	bus := logbus.New(10)
	defer bus.Close()
	code, _ = get(t, New(Options{Bus: bus}).Handler(), "/api/v1/state")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	bus.Publish("state", model.SchedulerState{Phase: model.PhaseTicking})
	code, body = get(t, New(Options{Bus: bus}).Handler(), "/api/v1/state")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ticking", body["data"].(map[string]any)["phase"])
}

func TestFavorites(t *testing.T) {
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	snap := model.NewSnapshot([]model.Listing{{ItemID: 4, Title: "Lamp", CurrentPrice: decimal.NewFromInt(12), State: model.AuctionOpen}}, at)
	code, body := get(t, New(Options{Snapshots: fixedSnapshot(snap)}).Handler(), "/api/v1/favorites")
	require.Equal(t, http.StatusOK, code)
	list := body["data"].([]any)
	require.Len(t, list, 1)
	assert.Equal(t, "Lamp", list[0].(map[string]any)["title"])
	assert.Contains(t, body, "fetchedAt")

	code, body = get(t, New(Options{Snapshots: fixedSnapshot{}}).Handler(), "/api/v1/favorites")
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["data"])
	assert.NotContains(t, body, "fetchedAt")
}

func TestHistory(t *testing.T) {
	hist := &memHistory{
		bids:   []model.BidAttempt{{ID: "a", ItemID: 1, Amount: "5.00", Outcome: model.BidPlaced}},
		alerts: []model.AlertEvent{{ID: "b", ItemID: 1, Offset: time.Hour}},
	}
	h := New(Options{History: hist}).Handler()

	code, body := get(t, h, "/api/v1/history/bids?limit=5")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 5, hist.limit)
	assert.Equal(t, "placed", body["data"].([]any)[0].(map[string]any)["outcome"])

	code, _ = get(t, h, "/api/v1/history/alerts")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 50, hist.limit)

	code, _ = get(t, h, "/api/v1/history/bids?limit=abc")
	assert.Equal(t, http.StatusBadRequest, code)

	hist.err = errors.New("disk full")
	code, body = get(t, h, "/api/v1/history/alerts")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "disk full", body["error"])

	code, _ = get(t, New(Options{}).Handler(), "/api/v1/history/bids")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestCORS(t *testing.T) {
	h := New(Options{State: fixedState{}, AllowOrigins: []string{"http://localhost:3000"}}).Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/state", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/state", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestListenAndServe_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(Options{}).ListenAndServe(ctx, "127.0.0.1:0") }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
