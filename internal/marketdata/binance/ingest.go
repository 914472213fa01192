package binance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"trading-profilev1/internal/logger"
	"trading-profilev1/internal/model"
)

// Config holds configuration for the Binance stream ingest.
type Config struct {
	// URL of the raw stream endpoint, e.g. "wss://data-stream.binance.vision/ws".
	URL string

	// Symbol is the instrument, case-insensitive ("btcusdt").
	Symbol string

	// Interval is the kline interval ("1m"). Defaults to 1m.
	Interval string

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration

	// ReadTimeout closes a connection that has been silent for this long.
	// Defaults to 2 minutes.
	ReadTimeout time.Duration
}

func (c *Config) defaults() {
	if c.Interval == "" {
		c.Interval = "1m"
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 2 * time.Minute
	}
}

// Streams returns the stream names subscribed for the configured symbol.
func (c Config) Streams() []string {
	sym := strings.ToLower(c.Symbol)
	return []string{
		fmt.Sprintf("%s@kline_%s", sym, c.Interval),
		sym + "@trade",
	}
}

// subscribeRequest is the SUBSCRIBE control message.
type subscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

// Ingest streams kline and trade events from Binance into a handler.
// The handler must not block: it is called from the read loop.
type Ingest struct {
	cfg Config

	// Optional hooks.
	OnConnect    func()
	OnDisconnect func(err error)
	OnDrop       func(reason string)
	OnEvent      func(kind Kind)
}

// New creates a new Ingest. Returns an error if the URL is unparseable or
// the symbol is empty.
func New(cfg Config) (*Ingest, error) {
	cfg.defaults()
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("binance ingest: parse url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("binance ingest: url scheme %q, want ws or wss", u.Scheme)
	}
	if strings.TrimSpace(cfg.Symbol) == "" {
		return nil, errors.New("binance ingest: symbol is required")
	}
	return &Ingest{cfg: cfg}, nil
}

// Start connects and streams events into h. Blocks until ctx is
// cancelled. Reconnects with exponential backoff on disconnect.
func (ing *Ingest) Start(ctx context.Context, h model.EventHandler) error {
	delay := ing.cfg.ReconnectDelay

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		sessCtx := logger.WithTraceID(ctx, logger.GenerateTraceID(strings.ToLower(ing.cfg.Symbol), time.Now()))
		connected, err := ing.runOnce(sessCtx, h)
		if err == nil {
			return nil
		}
		if connected {
			delay = ing.cfg.ReconnectDelay
		}

		slog.Warn("feed disconnected, reconnecting",
			append(logger.LogWithTrace(sessCtx),
				"component", "binance", "error", err, "delay", delay)...)
		if ing.OnDisconnect != nil {
			ing.OnDisconnect(err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > ing.cfg.MaxReconnectDelay {
			delay = ing.cfg.MaxReconnectDelay
		}
	}
}

// runOnce makes a single connection and reads until disconnect or ctx
// cancel. connected reports whether the dial succeeded.
func (ing *Ingest) runOnce(ctx context.Context, h model.EventHandler) (connected bool, err error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, ing.cfg.URL, nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	streams := ing.cfg.Streams()
	if err := conn.WriteJSON(subscribeRequest{Method: "SUBSCRIBE", Params: streams, ID: 1}); err != nil {
		return true, fmt.Errorf("subscribe: %w", err)
	}
	slog.Info("feed connected",
		append(logger.LogWithTrace(ctx), "component", "binance", "url", ing.cfg.URL, "streams", streams)...)
	if ing.OnConnect != nil {
		ing.OnConnect()
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
			conn.Close()
		case <-stop:
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(ing.cfg.ReadTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return true, nil
			default:
			}
			return true, err
		}
		ing.dispatch(ctx, raw, h)
	}
}

func (ing *Ingest) dispatch(ctx context.Context, raw []byte, h model.EventHandler) {
	ev, err := Decode(raw)
	switch {
	case errors.Is(err, ErrIgnored):
		slog.Debug("ignored message", append(logger.LogWithTrace(ctx), "component", "binance", "reason", err)...)
		return
	case err != nil:
		slog.Debug("dropping message", append(logger.LogWithTrace(ctx), "component", "binance", "error", err, "raw", string(raw))...)
		if ing.OnDrop != nil {
			ing.OnDrop("malformed")
		}
		return
	}

	if sym := ev.Symbol(); sym != "" && !strings.EqualFold(sym, ing.cfg.Symbol) {
		if ing.OnDrop != nil {
			ing.OnDrop("symbol")
		}
		return
	}

	if ing.OnEvent != nil {
		ing.OnEvent(ev.Kind)
	}
	switch ev.Kind {
	case KindCandle:
		h.SubmitCandle(ev.Candle)
	case KindTrade:
		h.SubmitTrade(ev.Trade)
	}
}
