package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Pinger is a dependency that can be probed for liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthStatus represents the system health. Redis and SQLite only count
// towards the overall status when they are enabled.
type HealthStatus struct {
	mu sync.RWMutex

	FeedConnected  bool
	LastEventTime  time.Time
	RedisEnabled   bool
	RedisConnected bool
	SQLiteEnabled  bool
	SQLiteOK       bool

	RedisLatencyMs  float64
	SQLiteLatencyMs float64
	LastCheckAt     time.Time
	StartedAt       time.Time

	now func() time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now(), now: time.Now}
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastEventTime(t time.Time) {
	h.mu.Lock()
	h.LastEventTime = t
	h.mu.Unlock()
}

// EnableRedis marks Redis as a dependency.
func (h *HealthStatus) EnableRedis(connected bool) {
	h.mu.Lock()
	h.RedisEnabled = true
	h.RedisConnected = connected
	h.mu.Unlock()
}

// EnableSQLite marks SQLite as a dependency.
func (h *HealthStatus) EnableSQLite(ok bool) {
	h.mu.Lock()
	h.SQLiteEnabled = true
	h.SQLiteOK = ok
	h.mu.Unlock()
}

// Check probes the given dependencies and records latency and
// connectivity. Nil pingers are skipped.
func (h *HealthStatus) Check(ctx context.Context, redis, sqlite Pinger) {
	if redis != nil {
		ok, ms := probe(ctx, redis)
		h.mu.Lock()
		h.RedisConnected, h.RedisLatencyMs = ok, ms
		h.mu.Unlock()
	}
	if sqlite != nil {
		ok, ms := probe(ctx, sqlite)
		h.mu.Lock()
		h.SQLiteOK, h.SQLiteLatencyMs = ok, ms
		h.mu.Unlock()
	}
	h.mu.Lock()
	h.LastCheckAt = h.now()
	h.mu.Unlock()
}

func probe(ctx context.Context, p Pinger) (bool, float64) {
	start := time.Now()
	err := p.Ping(ctx)
	return err == nil, float64(time.Since(start).Microseconds()) / 1000.0
}

// StartLivenessChecker runs Check every interval until ctx is cancelled.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, redis, sqlite Pinger, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				h.Check(probeCtx, redis, sqlite)
				cancel()
			}
		}
	}()
}

type healthBody struct {
	Status          string  `json:"status"`
	Uptime          string  `json:"uptime"`
	FeedConnected   bool    `json:"feed_connected"`
	LastEventTime   string  `json:"last_event_time,omitempty"`
	EventAge        string  `json:"event_age,omitempty"`
	RedisEnabled    bool    `json:"redis_enabled"`
	RedisConnected  bool    `json:"redis_connected"`
	RedisLatencyMs  float64 `json:"redis_latency_ms"`
	SQLiteEnabled   bool    `json:"sqlite_enabled"`
	SQLiteOK        bool    `json:"sqlite_ok"`
	SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
	LastCheckAt     string  `json:"last_check_at,omitempty"`
}

// ServeHTTP handles the /healthz endpoint. A disconnected feed or a failed
// enabled dependency reports "degraded" with 503.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	now := h.now()
	body := healthBody{
		Status:          "healthy",
		Uptime:          now.Sub(h.StartedAt).Round(time.Second).String(),
		FeedConnected:   h.FeedConnected,
		RedisEnabled:    h.RedisEnabled,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteEnabled:   h.SQLiteEnabled,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
	}
	if !h.LastEventTime.IsZero() {
		body.LastEventTime = h.LastEventTime.Format(time.RFC3339)
		body.EventAge = now.Sub(h.LastEventTime).Round(time.Millisecond).String()
	}
	if !h.LastCheckAt.IsZero() {
		body.LastCheckAt = h.LastCheckAt.Format(time.RFC3339)
	}

	code := http.StatusOK
	if !h.FeedConnected ||
		(h.RedisEnabled && !h.RedisConnected) ||
		(h.SQLiteEnabled && !h.SQLiteOK) {
		body.Status = "degraded"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
