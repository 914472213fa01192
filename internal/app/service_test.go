package app

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"trading-profilev1/config"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	closedKline = `{"e":"kline","E":1700000060100,"s":"BTCUSDT","k":{"t":1700000040000,"T":1700000099999,"s":"BTCUSDT","i":"1m","o":"37000.10","c":"37010.50","h":"37020.00","l":"36990.25","v":"12.345","x":true}}`
	formingKline = `{"e":"kline","E":1700000100100,"s":"BTCUSDT","k":{"t":1700000100000,"T":1700000159999,"s":"BTCUSDT","i":"1m","o":"37010.50","c":"37012.00","h":"37015.00","l":"37008.00","v":"1.5","x":false}}`
	trade        = `{"e":"trade","E":1700000101000,"s":"BTCUSDT","t":987654,"p":"37011.00","q":"0.25","T":1700000100999,"m":true,"M":true}`
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// fakeBinance serves msgs to every connection after the SUBSCRIBE request,
// then holds the connection open until the client leaves.
func fakeBinance(t *testing.T, msgs ...string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var req map[string]any
		if conn.ReadJSON(&req) != nil {
			return
		}
		for _, m := range msgs {
			if conn.WriteMessage(websocket.TextMessage, []byte(m)) != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestServiceEndToEnd(t *testing.T) {
	feed := fakeBinance(t, closedKline, formingKline, trade)
	dbPath := filepath.Join(t.TempDir(), "journal", "profile.db")

	t.Setenv("FEED_URL", "ws"+strings.TrimPrefix(feed.URL, "http"))
	t.Setenv("FEED_SYMBOL", "BTCUSDT")
	t.Setenv("APP_HTTP_ADDR", "127.0.0.1:0")
	t.Setenv("APP_COLOR", "false")
	t.Setenv("APP_TIMEZONE", "UTC")
	t.Setenv("ENGINE_CAPACITY", "10")
	t.Setenv("ENGINE_PIVOT_LEFT", "1")
	t.Setenv("ENGINE_PIVOT_RIGHT", "1")
	t.Setenv("SQLITE_PATH", dbPath)
	t.Setenv("SQLITE_FLUSH_DELAY", "20ms")

	cfg, err := config.Load()
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	out := &syncBuffer{}
	svc, err := New(context.Background(), cfg, Deps{Registerer: reg, Gatherer: reg, Stdout: out})
	require.NoError(t, err)
	defer svc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Trader:")
	}, 5*time.Second, 20*time.Millisecond, "terminal never rendered a snapshot")
	assert.Contains(t, out.String(), "37011.00")

	require.Eventually(t, func() bool {
		n, err := svc.reader.CountBars(context.Background(), "BTCUSDT")
		return err == nil && n == 1
	}, 5*time.Second, 20*time.Millisecond, "closed bar never journaled")

	assert.Equal(t, 1.0, testutil.ToFloat64(svc.prom.EventsTotal.WithLabelValues("trade")))
	assert.Equal(t, 2.0, testutil.ToFloat64(svc.prom.EventsTotal.WithLabelValues("candle")))
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(svc.prom.BufferedBars) == 2
	}, 5*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		_, ok := svc.hub.Latest()
		return ok
	}, 5*time.Second, 20*time.Millisecond)
	latest, _ := svc.hub.Latest()
	assert.Contains(t, string(latest), `"symbol":"BTCUSDT"`)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestServiceRejectsBadEngineConfig(t *testing.T) {
	t.Setenv("ENGINE_CAPACITY", "5")
	cfg, err := config.Load()
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	_, err = New(context.Background(), cfg, Deps{Registerer: reg, Gatherer: reg})
	assert.ErrorContains(t, err, "capacity")
}

func TestServiceCountsSlowGatewayClients(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)
	require.True(t, cfg.Gateway.Enabled)

	reg := prometheus.NewRegistry()
	svc, err := New(context.Background(), cfg, Deps{Registerer: reg, Gatherer: reg})
	require.NoError(t, err)
	defer svc.Close()

	require.NotNil(t, svc.hub.OnSlowClient)
	svc.hub.OnSlowClient()
	svc.hub.OnSlowClient()
	assert.Equal(t, 2.0, testutil.ToFloat64(svc.prom.WSSlowClientSkips))
}
