// cmd/feedsim is an offline Binance stream simulator.
// Serves random-walk trades and the klines built from them on a raw-stream
// style WebSocket, so profileengine can run without the exchange.
//
// Clients may send the usual SUBSCRIBE request; it is acknowledged and the
// stream starts regardless of the stream names.
//
// Config (env vars):
//
//	SIM_ADDR         listen address (default ":9001")
//	SIM_SYMBOL       instrument (default "btcusdt")
//	SIM_INTERVAL     kline interval (default "1m")
//	SIM_START_PRICE  starting price (default 37000)
//	SIM_TICK_SIZE    price increment (default 0.01)
//	SIM_TRADE_EVERY  delay between trades (default 100ms)
//	SIM_SEED         random seed, 0 means time-based
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"trading-profilev1/internal/logger"
	"trading-profilev1/internal/marketdata/sim"

	"github.com/caarlos0/env/v11"
	"github.com/gorilla/websocket"
)

type simConfig struct {
	Addr       string        `env:"ADDR" envDefault:":9001"`
	Symbol     string        `env:"SYMBOL" envDefault:"btcusdt"`
	Interval   string        `env:"INTERVAL" envDefault:"1m"`
	StartPrice float64       `env:"START_PRICE" envDefault:"37000"`
	TickSize   float64       `env:"TICK_SIZE" envDefault:"0.01"`
	TradeEvery time.Duration `env:"TRADE_EVERY" envDefault:"100ms"`
	Seed       int64         `env:"SEED" envDefault:"0"`
	LogLevel   string        `env:"LOG_LEVEL" envDefault:"info"`
}

// ─── Hub ──────────────────────────────────────────────────────────────────────

type hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]chan []byte)}
}

func (h *hub) register(conn *websocket.Conn) chan []byte {
	ch := make(chan []byte, 256)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		close(ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

// sendTo queues msg for one client if it is still registered.
func (h *hub) sendTo(conn *websocket.Conn, msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if ch, ok := h.clients[conn]; ok {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (h *hub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.clients {
		select {
		case ch <- msg:
		default: // slow client
		}
	}
}

// ─── WebSocket handler ────────────────────────────────────────────────────────

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func wsHandler(h *hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("upgrade failed", "error", err)
			return
		}
		slog.Info("client connected", "remote", r.RemoteAddr)

		ch := h.register(conn)
		defer func() {
			h.unregister(conn)
			conn.Close()
			slog.Info("client disconnected", "remote", r.RemoteAddr)
		}()

		// Acks go through ch so the write pump stays the only writer.
		go func() {
			defer conn.Close()
			for {
				var req struct {
					Method string `json:"method"`
					ID     int64  `json:"id"`
				}
				if err := conn.ReadJSON(&req); err != nil {
					return
				}
				if req.Method == "" {
					continue
				}
				ack, _ := json.Marshal(map[string]any{"result": nil, "id": req.ID})
				h.sendTo(conn, ack)
			}
		}()

		for msg := range ch {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// ─── Generator ────────────────────────────────────────────────────────────────

func runGenerator(ctx context.Context, h *hub, feed *sim.Feed, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if raw, ok, err := feed.Close(now); err != nil {
				slog.Error("encode kline", "error", err)
			} else if ok {
				h.broadcast(raw)
			}
			msgs, err := feed.Step(now)
			if err != nil {
				slog.Error("encode step", "error", err)
				continue
			}
			for _, m := range msgs {
				h.broadcast(m)
			}
		}
	}
}

// ─── main ─────────────────────────────────────────────────────────────────────

func main() {
	var cfg simConfig
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "SIM_"}); err != nil {
		fmt.Fprintf(os.Stderr, "feedsim: %v\n", err)
		os.Exit(1)
	}
	logger.Init("feedsim", logger.ParseLevel(cfg.LogLevel), nil)

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	feed, err := sim.NewFeed(cfg.Symbol, cfg.Interval, cfg.StartPrice, cfg.TickSize, seed)
	if err != nil {
		slog.Error("invalid simulator config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	h := newHub()
	go runGenerator(ctx, h, feed, cfg.TradeEvery)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler(h))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintln(w, `{"status":"ok","service":"feedsim"}`)
	})
	srv := &http.Server{Addr: cfg.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("listening", "addr", cfg.Addr, "symbol", cfg.Symbol, "interval", cfg.Interval,
		"trade_every", cfg.TradeEvery.String(), "ws", "ws://localhost"+cfg.Addr+"/ws")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
