package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/PanelGoat/internal/config"
	"github.com/IshaanNene/PanelGoat/internal/observability"
	"github.com/IshaanNene/PanelGoat/internal/refresh"
	"github.com/IshaanNene/PanelGoat/internal/storage"
	"github.com/IshaanNene/PanelGoat/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

var day = time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)

type fakeRefresher struct {
	report *refresh.Report
	err    error
	ctx    context.Context
}

func (f *fakeRefresher) Run(ctx context.Context, trigger string) (*refresh.Report, error) {
	f.ctx = ctx
	return f.report, f.err
}

type brokenStore struct{}

func (brokenStore) LatestTotalAccounts(context.Context) (*types.TotalAccountsRecord, error) {
	return nil, &types.StorageError{Backend: "sqlite", Op: "latest", Err: errors.New("locked")}
}

func (brokenStore) LatestSubscription(context.Context) (*types.SubscriptionRecord, error) {
	return nil, &types.StorageError{Backend: "sqlite", Op: "latest", Err: errors.New("locked")}
}

func (brokenStore) Subscriptions(context.Context, time.Time, time.Time) ([]types.SubscriptionRecord, error) {
	return nil, &types.StorageError{Backend: "sqlite", Op: "subscriptions", Err: errors.New("locked")}
}

func i64(v int64) *int64 { return &v }

func newTestServer(t *testing.T, store Store, refresher Refresher) *httptest.Server {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Metrics.Enabled = true
	cfg.Metrics.Path = "/metrics"
	s := NewServer(cfg, store, refresher, observability.NewMetrics(testLogger), testLogger)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func seededStore(t *testing.T) storage.Storage {
	t.Helper()
	s, err := storage.NewSQLiteStorage(context.Background(), ":memory:", testLogger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	for i, valid := range []int64{10, 20, 30} {
		require.NoError(t, s.Append(ctx, &types.Snapshot{
			CapturedAt:      day.Add(time.Duration(i)*24*time.Hour + 12*time.Hour),
			TotalAccounts:   i64(100 * int64(i+1)),
			SubscriptionRow: &types.SubscriptionRow{Valid: valid, Active: valid - 1},
		}))
	}
	return s
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestTotalAccountsEmpty(t *testing.T) {
	empty, err := storage.NewSQLiteStorage(context.Background(), ":memory:", testLogger)
	require.NoError(t, err)
	defer empty.Close()
	ts := newTestServer(t, empty, &fakeRefresher{})

	var body map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/total_accounts", &body))
	assert.Nil(t, body["scraped_at"])
	assert.Nil(t, body["total_accounts"])

	var list []map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/premium_subscribers", &list))
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestTotalAccountsLatest(t *testing.T) {
	ts := newTestServer(t, seededStore(t), &fakeRefresher{})

	var body struct {
		ScrapedAt     time.Time `json:"scraped_at"`
		TotalAccounts int64     `json:"total_accounts"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/total_accounts", &body))
	assert.Equal(t, int64(300), body.TotalAccounts)
	assert.True(t, day.Add(60*time.Hour).Equal(body.ScrapedAt))
}

func TestPremiumSubscribersLatestOnly(t *testing.T) {
	ts := newTestServer(t, seededStore(t), &fakeRefresher{})

	var list []types.SubscriptionRecord
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/premium_subscribers", &list))
	require.Len(t, list, 1)
	assert.Equal(t, int64(30), list[0].ValidMemberships)
	assert.Equal(t, int64(29), list[0].ActiveMemberships)
}

func TestPremiumSubscribersRange(t *testing.T) {
	ts := newTestServer(t, seededStore(t), &fakeRefresher{})

	tests := []struct {
		name  string
		query string
		valid []int64
	}{
		{"whole first day", "?start=2026-05-04&end=2026-05-04", []int64{10}},
		{"open end", "?start=2026-05-05", []int64{20, 30}},
		{"open start", "?end=2026-05-05", []int64{10, 20}},
		{"rfc3339", "?start=2026-05-04T13:00:00Z&end=2026-05-06T12:00:00Z", []int64{20, 30}},
		{"empty window", "?start=2027-01-01", []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var list []types.SubscriptionRecord
			require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/premium_subscribers"+tt.query, &list))
			got := make([]int64, 0, len(list))
			for _, rec := range list {
				got = append(got, rec.ValidMemberships)
			}
			assert.Equal(t, tt.valid, got)
		})
	}
}

func TestPremiumSubscribersBadParams(t *testing.T) {
	ts := newTestServer(t, seededStore(t), &fakeRefresher{})

	for _, q := range []string{"?start=yesterday", "?end=05/04/2026", "?start=2026-05-06&end=2026-05-04"} {
		var body map[string]string
		assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/premium_subscribers"+q, &body), q)
		assert.NotEmpty(t, body["error"])
	}
}

func TestReadFailure(t *testing.T) {
	ts := newTestServer(t, brokenStore{}, &fakeRefresher{})

	assert.Equal(t, http.StatusInternalServerError, getJSON(t, ts.URL+"/total_accounts", nil))
	assert.Equal(t, http.StatusInternalServerError, getJSON(t, ts.URL+"/premium_subscribers", nil))
	assert.Equal(t, http.StatusInternalServerError, getJSON(t, ts.URL+"/premium_subscribers?start=2026-05-04", nil))
}

func postRefresh(t *testing.T, ts *httptest.Server) map[string]string {
	t.Helper()
	resp, err := http.Post(ts.URL+"/refresh", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestRefreshSuccess(t *testing.T) {
	r := &fakeRefresher{report: &refresh.Report{RunID: "abc", Trigger: refresh.TriggerManual, Status: refresh.StatusSuccess}}
	ts := newTestServer(t, seededStore(t), r)

	body := postRefresh(t, ts)
	assert.Equal(t, "success", body["status"])
	assert.Contains(t, body["output"], "abc")

	deadline, ok := r.ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), deadline, time.Minute)
}

func TestRefreshFailure(t *testing.T) {
	r := &fakeRefresher{report: &refresh.Report{
		RunID:  "abc",
		Status: refresh.StatusError,
		Err:    &types.NavigationError{URL: "https://admin.example/home", Err: errors.New("net::ERR_NAME_NOT_RESOLVED")},
	}}
	ts := newTestServer(t, seededStore(t), r)

	body := postRefresh(t, ts)
	assert.Equal(t, "error", body["status"])
	assert.Contains(t, body["output"], "ERR_NAME_NOT_RESOLVED")
}

func TestRefreshWaitTimedOut(t *testing.T) {
	ts := newTestServer(t, seededStore(t), &fakeRefresher{err: context.DeadlineExceeded})

	body := postRefresh(t, ts)
	assert.Equal(t, "error", body["status"])
	assert.Contains(t, body["output"], "deadline exceeded")
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, seededStore(t), &fakeRefresher{})

	var health map[string]string
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/health", &health))
	assert.Equal(t, "ok", health["status"])

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPreflight(t *testing.T) {
	ts := newTestServer(t, seededStore(t), &fakeRefresher{})

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/refresh", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.True(t, strings.Contains(resp.Header.Get("Access-Control-Allow-Methods"), "POST"))
}

func TestParseBound(t *testing.T) {
	start, err := parseBound("2026-05-04", false)
	require.NoError(t, err)
	assert.Equal(t, day, start)

	end, err := parseBound("2026-05-04", true)
	require.NoError(t, err)
	assert.Equal(t, day.Add(24*time.Hour-time.Nanosecond), end)

	offset, err := parseBound("2026-05-04T02:00:00+02:00", false)
	require.NoError(t, err)
	assert.Equal(t, day, offset)
	assert.Equal(t, time.UTC, offset.Location())

	zero, err := parseBound("", true)
	require.NoError(t, err)
	assert.True(t, zero.IsZero())
}

func TestServerStartShutdown(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.API.Host = "127.0.0.1"
	cfg.API.Port = 0
	s := NewServer(cfg, seededStore(t), &fakeRefresher{}, nil, testLogger)
	require.NoError(t, s.Start())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Shutdown(ctx))
}
