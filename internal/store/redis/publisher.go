// Package redis publishes profile snapshots to Redis: the latest snapshot
// under a key with a TTL, and every snapshot on a PubSub channel.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"trading-profilev1/internal/model"
)

const (
	defaultLatestTTL    = 30 * time.Minute
	defaultMaxFailures  = 5
	defaultResetTimeout = 10 * time.Second
	writeTimeout        = 2 * time.Second
)

// Config configures the publisher.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int

	Symbol      string
	SnapshotKey string        // defaults to "profile:snapshot:{symbol}"
	Channel     string        // defaults to "pub:profile:{symbol}"
	TTL         time.Duration // latest-snapshot expiry, defaults to 30m
}

func (c *Config) defaults() {
	sym := strings.ToLower(c.Symbol)
	if c.SnapshotKey == "" {
		c.SnapshotKey = "profile:snapshot:" + sym
	}
	if c.Channel == "" {
		c.Channel = "pub:profile:" + sym
	}
	if c.TTL == 0 {
		c.TTL = defaultLatestTTL
	}
}

// Publisher writes snapshots to Redis through a circuit breaker.
type Publisher struct {
	client  *goredis.Client
	cfg     Config
	breaker *CircuitBreaker

	// Optional hooks.
	OnPublish func(took time.Duration)
	OnSkip    func() // breaker open, snapshot not sent
	OnError   func(err error)
}

var _ model.SnapshotSink = (*Publisher)(nil)

// New connects to Redis and pings it.
func New(ctx context.Context, cfg Config) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}

	slog.Info("redis connected", "component", "redis", "addr", cfg.Addr)
	return NewWithClient(client, cfg), nil
}

// NewWithClient wraps an existing client without pinging it.
func NewWithClient(client *goredis.Client, cfg Config) *Publisher {
	cfg.defaults()
	return &Publisher{
		client:  client,
		cfg:     cfg,
		breaker: NewCircuitBreaker(defaultMaxFailures, defaultResetTimeout),
	}
}

// Breaker exposes the circuit breaker so callers can observe transitions.
func (p *Publisher) Breaker() *CircuitBreaker { return p.breaker }

// Run publishes snapshots until ctx is cancelled or snapCh is closed.
// Failures are logged and counted; they never stop the loop.
func (p *Publisher) Run(ctx context.Context, snapCh <-chan model.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snapCh:
			if !ok {
				return
			}
			err := p.Publish(ctx, snap)
			switch {
			case err == nil:
			case errors.Is(err, ErrCircuitOpen):
				if p.OnSkip != nil {
					p.OnSkip()
				}
			default:
				slog.Warn("snapshot publish failed", "component", "redis", "seq", snap.Seq, "error", err)
				if p.OnError != nil {
					p.OnError(err)
				}
			}
		}
	}
}

// Publish sets the latest-snapshot key and publishes on the channel in
// one pipeline round trip.
func (p *Publisher) Publish(ctx context.Context, snap model.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	return p.breaker.Execute(func() error {
		start := time.Now()
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		defer cancel()

		pipe := p.client.Pipeline()
		pipe.Set(wctx, p.cfg.SnapshotKey, data, p.cfg.TTL)
		pipe.Publish(wctx, p.cfg.Channel, data)
		if _, err := pipe.Exec(wctx); err != nil {
			return fmt.Errorf("redis pipeline: %w", err)
		}
		if p.OnPublish != nil {
			p.OnPublish(time.Since(start))
		}
		return nil
	})
}

// Latest reads back the last published snapshot.
func (p *Publisher) Latest(ctx context.Context) (model.Snapshot, bool, error) {
	raw, err := p.client.Get(ctx, p.cfg.SnapshotKey).Bytes()
	if errors.Is(err, goredis.Nil) {
		return model.Snapshot{}, false, nil
	}
	if err != nil {
		return model.Snapshot{}, false, fmt.Errorf("redis GET %s: %w", p.cfg.SnapshotKey, err)
	}
	var snap model.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return model.Snapshot{}, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, true, nil
}

// Ping checks connectivity for health reporting.
func (p *Publisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
