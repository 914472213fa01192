package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-profilev1/internal/model"
)

type recorder struct {
	mu      sync.Mutex
	candles []model.CandleEvent
	trades  []model.TradeEvent
}

func (r *recorder) SubmitCandle(ev model.CandleEvent) {
	r.mu.Lock()
	r.candles = append(r.candles, ev)
	r.mu.Unlock()
}

func (r *recorder) SubmitTrade(ev model.TradeEvent) {
	r.mu.Lock()
	r.trades = append(r.trades, ev)
	r.mu.Unlock()
}

func (r *recorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.candles), len(r.trades)
}

// feedServer accepts one SUBSCRIBE and then writes msgs.
func feedServer(t *testing.T, msgs []string, subs chan<- subscribeRequest) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req subscribeRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		subs <- req
		conn.WriteMessage(websocket.TextMessage, []byte(`{"result":null,"id":1}`))
		for _, m := range msgs {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
		// hold the connection until the client leaves
		conn.ReadMessage()
	}))
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func TestIngest_SubscribesAndDispatches(t *testing.T) {
	subs := make(chan subscribeRequest, 1)
	srv := feedServer(t, []string{
		klineJSON,
		tradeJSON,
		`{"e":"trade","E":1,"s":"BTCUSDT","t":1,"p":"oops","q":"1","T":1}`,
		strings.Replace(tradeJSON, "BTCUSDT", "ETHUSDT", 1),
		tradeJSON,
	}, subs)
	defer srv.Close()

	ing, err := New(Config{URL: wsURL(srv), Symbol: "BTCUSDT", Interval: "1m"})
	require.NoError(t, err)

	var mu sync.Mutex
	drops := map[string]int{}
	ing.OnDrop = func(reason string) {
		mu.Lock()
		drops[reason]++
		mu.Unlock()
	}

	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ing.Start(ctx, rec) }()

	select {
	case req := <-subs:
		assert.Equal(t, "SUBSCRIBE", req.Method)
		assert.Equal(t, []string{"btcusdt@kline_1m", "btcusdt@trade"}, req.Params)
	case <-time.After(2 * time.Second):
		t.Fatal("no subscribe request")
	}

	require.Eventually(t, func() bool {
		c, tr := rec.counts()
		return c == 1 && tr == 2
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, 1, drops["malformed"])
	assert.Equal(t, 1, drops["symbol"])
	mu.Unlock()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestIngest_Reconnects(t *testing.T) {
	subs := make(chan subscribeRequest, 4)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		var req subscribeRequest
		if conn.ReadJSON(&req) == nil {
			select {
			case subs <- req:
			default:
			}
		}
		conn.Close() // drop straight away
	}))
	defer srv.Close()

	ing, err := New(Config{URL: wsURL(srv), Symbol: "btcusdt", ReconnectDelay: 10 * time.Millisecond, MaxReconnectDelay: 20 * time.Millisecond})
	require.NoError(t, err)

	var mu sync.Mutex
	disconnects := 0
	ing.OnDisconnect = func(error) {
		mu.Lock()
		disconnects++
		mu.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ing.Start(ctx, &recorder{})

	for i := 0; i < 2; i++ {
		select {
		case <-subs:
		case <-time.After(2 * time.Second):
			t.Fatalf("connection %d not made", i+1)
		}
	}
	mu.Lock()
	assert.GreaterOrEqual(t, disconnects, 1)
	mu.Unlock()
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{URL: "http://example.com", Symbol: "btcusdt"})
	assert.Error(t, err)
	_, err = New(Config{URL: "wss://example.com/ws"})
	assert.Error(t, err)
	_, err = New(Config{URL: "wss://example.com/ws", Symbol: "btcusdt"})
	assert.NoError(t, err)
}
