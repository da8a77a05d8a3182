package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/talgya/speedrunner/internal/engine"
	"github.com/talgya/speedrunner/internal/persistence"
)

type fixedStatus engine.Status

func (f fixedStatus) Status() engine.Status { return engine.Status(f) }

type memStore struct {
	runs  []engine.RunSummary
	ticks map[string][]engine.TickRecord
	meta  map[string]string
	fail  bool
}

func (m *memStore) Run(id string) (engine.RunSummary, error) {
	for _, r := range m.runs {
		if r.ID == id {
			return r, nil
		}
	}
	return engine.RunSummary{}, fmt.Errorf("%s: %w", id, persistence.ErrUnknownRun)
}

func (m *memStore) RecentRuns(limit int) ([]engine.RunSummary, error) {
	if m.fail {
		return nil, errors.New("disk on fire")
	}
	if limit < len(m.runs) {
		return m.runs[:limit], nil
	}
	return m.runs, nil
}

func (m *memStore) Ticks(runID string) ([]engine.TickRecord, error) {
	return m.ticks[runID], nil
}

func (m *memStore) GetMeta(key string) (string, error) {
	v, ok := m.meta[key]
	if !ok {
		return "", errors.New("no such key")
	}
	return v, nil
}

func newTestServer(store RunStore) *httptest.Server {
	s := &Server{
		Loop: fixedStatus{RunID: "r1", Phase: "phase3", PhaseIndex: 2, Ticks: 41, Action: "mine_stone"},
		DB:   store,
	}
	return httptest.NewServer(s.Handler())
}

func getJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if v != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp
}

func sampleStore() *memStore {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &memStore{
		runs: []engine.RunSummary{
			{ID: "b", StartedAt: start.Add(time.Hour), Outcome: engine.InFlight},
			{ID: "a", StartedAt: start, EndedAt: start.Add(15 * time.Minute), Outcome: engine.Timeout, Ticks: 300},
		},
		ticks: map[string][]engine.TickRecord{
			"a": {
				{RunID: "a", Tick: 1, Action: "gather_wood", Executed: "gather_wood", Success: true},
				{RunID: "a", Tick: 2, Action: "mine_stone", Executed: "explore"},
			},
		},
		meta: map[string]string{"runs_finished": "1", "runs_budget_exhausted": "1"},
	}
}

func TestStatus(t *testing.T) {
	ts := newTestServer(sampleStore())
	defer ts.Close()

	var st engine.Status
	resp := getJSON(t, ts.URL+"/api/v1/status", &st)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code = %d", resp.StatusCode)
	}
	if resp.Header.Get("Content-Type") != "application/json" {
		t.Errorf("content type = %q", resp.Header.Get("Content-Type"))
	}
	if st.RunID != "r1" || st.Phase != "phase3" || st.Ticks != 41 || st.Action != "mine_stone" {
		t.Errorf("status = %+v", st)
	}
}

func TestRunsListAndLimit(t *testing.T) {
	ts := newTestServer(sampleStore())
	defer ts.Close()

	var runs []engine.RunSummary
	getJSON(t, ts.URL+"/api/v1/runs", &runs)
	if len(runs) != 2 || runs[0].ID != "b" {
		t.Fatalf("runs = %+v", runs)
	}

	runs = nil
	getJSON(t, ts.URL+"/api/v1/runs?limit=1", &runs)
	if len(runs) != 1 {
		t.Errorf("limit=1 returned %d runs", len(runs))
	}
}

func TestRunsEmptyIsArray(t *testing.T) {
	ts := newTestServer(&memStore{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/runs")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		t.Fatal(err)
	}
	if string(raw) != "[]" {
		t.Errorf("body = %s, want []", raw)
	}
}

func TestRunDetailAndTicks(t *testing.T) {
	ts := newTestServer(sampleStore())
	defer ts.Close()

	var run engine.RunSummary
	getJSON(t, ts.URL+"/api/v1/runs/a", &run)
	if run.Outcome != engine.Timeout || run.Ticks != 300 {
		t.Errorf("run = %+v", run)
	}

	var ticks []engine.TickRecord
	getJSON(t, ts.URL+"/api/v1/runs/a/ticks", &ticks)
	if len(ticks) != 2 || ticks[1].Executed != "explore" || !ticks[0].Success {
		t.Errorf("ticks = %+v", ticks)
	}
}

func TestUnknownRunIs404(t *testing.T) {
	ts := newTestServer(sampleStore())
	defer ts.Close()

	for _, path := range []string{"/api/v1/runs/zzz", "/api/v1/runs/zzz/ticks"} {
		if resp := getJSON(t, ts.URL+path, nil); resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", path, resp.StatusCode)
		}
	}
}

func TestStoreFailureIs500(t *testing.T) {
	ts := newTestServer(&memStore{fail: true})
	defer ts.Close()

	if resp := getJSON(t, ts.URL+"/api/v1/runs", nil); resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestStats(t *testing.T) {
	ts := newTestServer(sampleStore())
	defer ts.Close()

	var stats map[string]int
	getJSON(t, ts.URL+"/api/v1/stats", &stats)
	if stats["runs_finished"] != 1 || stats["runs_budget_exhausted"] != 1 || stats["runs_won"] != 0 {
		t.Errorf("stats = %v", stats)
	}
}

func TestHistoryDisabledWithoutStore(t *testing.T) {
	s := &Server{Loop: fixedStatus{}}
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	if resp := getJSON(t, ts.URL+"/api/v1/runs", nil); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
	if resp := getJSON(t, ts.URL+"/api/v1/status", nil); resp.StatusCode != http.StatusOK {
		t.Errorf("status endpoint = %d, want 200", resp.StatusCode)
	}
}

func TestWritesRejected(t *testing.T) {
	ts := newTestServer(sampleStore())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/v1/status", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d, want 405", resp.StatusCode)
	}
}

func TestCORS(t *testing.T) {
	t.Setenv("CORS_ORIGINS", "https://dash.example.com")
	ts := newTestServer(sampleStore())
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/v1/status", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("preflight status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://dash.example.com" {
		t.Errorf("allow origin = %q", got)
	}
}

func TestHistoryRateLimited(t *testing.T) {
	s := &Server{Loop: fixedStatus{}, DB: sampleStore(), HistoryRate: 2}
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	for i := 0; i < 2; i++ {
		if resp := getJSON(t, ts.URL+"/api/v1/runs", nil); resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, resp.StatusCode)
		}
	}
	resp := getJSON(t, ts.URL+"/api/v1/runs", nil)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("third request status = %d, want 429", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	// Status is never limited.
	if resp := getJSON(t, ts.URL+"/api/v1/status", nil); resp.StatusCode != http.StatusOK {
		t.Errorf("status endpoint = %d", resp.StatusCode)
	}
}
