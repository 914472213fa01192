package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"trading-profilev1/internal/model"
	"trading-profilev1/internal/store/sqlite"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Seq  int64          `json:"seq"`
	TS   string         `json:"ts"`
	Data model.Snapshot `json:"data"`
}

func TestHistoryRange(t *testing.T) {
	h := NewHistory(100)
	for i := int64(1); i <= 10; i++ {
		h.Push(i, []byte{byte('0' + i%10)})
	}

	got := h.Range(3, 7)
	require.Len(t, got, 5)
	assert.Equal(t, []byte("3"), got[0])
	assert.Equal(t, []byte("7"), got[4])
}

func TestHistoryWraparound(t *testing.T) {
	h := NewHistory(5)
	for i := int64(1); i <= 8; i++ {
		h.Push(i, []byte("msg"))
	}

	assert.Equal(t, 5, h.Len())
	assert.Len(t, h.Range(1, 10), 5)
	assert.Empty(t, h.Range(1, 3), "evicted seqs must not be returned")

	_, seq, ok := h.Latest()
	require.True(t, ok)
	assert.Equal(t, int64(8), seq)
}

func TestHistoryEmpty(t *testing.T) {
	h := NewHistory(10)
	assert.Empty(t, h.Range(1, 100))
	_, _, ok := h.Latest()
	assert.False(t, ok)
}

func TestHistoryCopiesInput(t *testing.T) {
	h := NewHistory(2)
	buf := []byte("abc")
	h.Push(1, buf)
	buf[0] = 'x'
	data, _, _ := h.Latest()
	assert.Equal(t, "abc", string(data))
}

func TestLatencyTracker(t *testing.T) {
	lt := NewLatencyTracker(1000)
	p50, p95, p99 := lt.Percentiles()
	assert.Zero(t, p50+p95+p99)

	for i := 1; i <= 100; i++ {
		lt.Record(float64(i))
	}
	lt.Record(-5)

	p50, p95, p99 = lt.Percentiles()
	assert.Equal(t, 100, lt.Count())
	assert.InDelta(t, 50.5, p50, 0.01)
	assert.InDelta(t, 95.05, p95, 0.01)
	assert.InDelta(t, 99.01, p99, 0.01)
}

func TestLatencyTrackerWraps(t *testing.T) {
	lt := NewLatencyTracker(3)
	for _, v := range []float64{1000, 1, 2, 3} {
		lt.Record(v)
	}
	_, _, p99 := lt.Percentiles()
	assert.Equal(t, 3, lt.Count())
	assert.InDelta(t, 3, p99, 0.05)
}

func TestBuildEnvelope(t *testing.T) {
	ts := time.Date(2026, 2, 25, 10, 0, 1, 0, time.UTC)
	raw := buildEnvelope(42, ts, []byte(`{"symbol":"BTCUSDT","seq":7}`))

	var env envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, int64(42), env.Seq)
	assert.Equal(t, "2026-02-25T10:00:01Z", env.TS)
	assert.Equal(t, "BTCUSDT", env.Data.Symbol)
	assert.Equal(t, uint64(7), env.Data.Seq)
}

func newTestServer(t *testing.T, hub *Hub, journal Journal) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	RegisterRoutes(mux, hub, journal, "BTCUSDT")
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var env envelope
	require.NoError(t, json.Unmarshal(msg, &env))
	return env
}

func TestHubSendsLatestOnConnectThenLive(t *testing.T) {
	hub := NewHub(10)
	srv := newTestServer(t, hub, nil)

	require.NoError(t, hub.Broadcast(model.Snapshot{Symbol: "BTCUSDT", Seq: 1, Price: 100}))

	conn := dial(t, srv)
	first := readEnvelope(t, conn)
	assert.Equal(t, int64(1), first.Seq)
	assert.Equal(t, 100.0, first.Data.Price)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, hub.Broadcast(model.Snapshot{Symbol: "BTCUSDT", Seq: 2, Price: 101}))

	next := readEnvelope(t, conn)
	assert.Equal(t, int64(2), next.Seq)
	assert.Equal(t, 101.0, next.Data.Price)
}

func TestHubRunDisconnectsOnClose(t *testing.T) {
	hub := NewHub(10)
	srv := newTestServer(t, hub, nil)
	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	in := make(chan model.Snapshot, 1)
	in <- model.Snapshot{Seq: 1}
	close(in)
	hub.Run(context.Background(), in)

	readEnvelope(t, conn)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestHubPingPong(t *testing.T) {
	hub := NewHub(10)
	srv := newTestServer(t, hub, nil)
	conn := dial(t, srv)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"ping":1234}`)))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var pong struct {
		Type string `json:"type"`
		Ping int64  `json:"ping"`
	}
	require.NoError(t, json.Unmarshal(msg, &pong))
	assert.Equal(t, "pong", pong.Type)
	assert.Equal(t, int64(1234), pong.Ping)
}

func TestSnapshotAndMissedRoutes(t *testing.T) {
	hub := NewHub(10)
	srv := newTestServer(t, hub, nil)

	resp, err := http.Get(srv.URL + "/api/snapshot")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	for i := uint64(1); i <= 4; i++ {
		require.NoError(t, hub.Broadcast(model.Snapshot{Seq: i, Price: float64(i)}))
	}

	resp, err = http.Get(srv.URL + "/api/snapshot")
	require.NoError(t, err)
	var latest envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&latest))
	resp.Body.Close()
	assert.Equal(t, int64(4), latest.Seq)

	resp, err = http.Get(srv.URL + "/api/missed?from=2")
	require.NoError(t, err)
	var missed []envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&missed))
	resp.Body.Close()
	require.Len(t, missed, 3)
	assert.Equal(t, int64(2), missed[0].Seq)
	assert.Equal(t, 4.0, missed[2].Data.Price)

	resp, err = http.Get(srv.URL + "/api/missed?from=3&to=1")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/missed?from=abc")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

type fakeJournal struct {
	mu      sync.Mutex
	signals []sqlite.SignalRow
	err     error
	limit   int
}

func (f *fakeJournal) RecentSignals(_ context.Context, _ string, limit int) ([]sqlite.SignalRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limit = limit
	return f.signals, f.err
}

func (f *fakeJournal) RecentPivots(context.Context, string, int) ([]sqlite.PivotRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return nil, f.err
}

func TestJournalRoutes(t *testing.T) {
	j := &fakeJournal{signals: []sqlite.SignalRow{{
		Symbol: "BTCUSDT",
		Signal: model.Signal{Action: model.ActionBuy, Price: 99.5},
	}}}
	srv := newTestServer(t, NewHub(1), j)

	resp, err := http.Get(srv.URL + "/api/signals?limit=5")
	require.NoError(t, err)
	var rows []sqlite.SignalRow
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rows))
	resp.Body.Close()
	require.Len(t, rows, 1)
	assert.Equal(t, 99.5, rows[0].Signal.Price)
	j.mu.Lock()
	assert.Equal(t, 5, j.limit)
	j.err = errors.New("disk gone")
	j.mu.Unlock()
	resp, err = http.Get(srv.URL + "/api/pivots")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestJournalRoutesDisabled(t *testing.T) {
	srv := newTestServer(t, NewHub(1), nil)
	resp, err := http.Get(srv.URL + "/api/signals")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/stats", nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
