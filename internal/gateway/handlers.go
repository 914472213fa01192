package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"trading-profilev1/internal/store/sqlite"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Mux is satisfied by *http.ServeMux and *metrics.Server.
type Mux interface {
	Handle(pattern string, h http.Handler)
}

// Journal is the read side of the SQLite journal.
type Journal interface {
	RecentSignals(ctx context.Context, symbol string, limit int) ([]sqlite.SignalRow, error)
	RecentPivots(ctx context.Context, symbol string, limit int) ([]sqlite.PivotRow, error)
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// RegisterRoutes mounts the WebSocket endpoint and the REST API. journal may
// be nil, in which case /api/signals and /api/pivots answer 503.
func RegisterRoutes(mux Mux, hub *Hub, journal Journal, symbol string) {
	mux.Handle("/ws", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("ws upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}
		hub.Serve(conn)
	}))

	mux.Handle("/api/snapshot", restHandler(func(w http.ResponseWriter, r *http.Request) {
		latest, ok := hub.Latest()
		if !ok {
			writeError(w, http.StatusNotFound, "no snapshot yet")
			return
		}
		w.Write(latest)
	}))

	mux.Handle("/api/missed", restHandler(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		from, err := strconv.ParseInt(q.Get("from"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "from must be an integer seq")
			return
		}
		to := hub.Seq()
		if s := q.Get("to"); s != "" {
			if to, err = strconv.ParseInt(s, 10, 64); err != nil {
				writeError(w, http.StatusBadRequest, "to must be an integer seq")
				return
			}
		}
		if to < from {
			writeError(w, http.StatusBadRequest, "to must not be below from")
			return
		}
		envs := hub.Missed(from, to)
		w.Write(append(append([]byte{'['}, bytes.Join(envs, []byte{','})...), ']'))
	}))

	mux.Handle("/api/signals", restHandler(func(w http.ResponseWriter, r *http.Request) {
		if journal == nil {
			writeError(w, http.StatusServiceUnavailable, "journal disabled")
			return
		}
		rows, err := journal.RecentSignals(r.Context(), symbol, limitParam(r))
		if err != nil {
			slog.Error("query signals failed", "error", err)
			writeError(w, http.StatusInternalServerError, "query failed")
			return
		}
		json.NewEncoder(w).Encode(rows)
	}))

	mux.Handle("/api/pivots", restHandler(func(w http.ResponseWriter, r *http.Request) {
		if journal == nil {
			writeError(w, http.StatusServiceUnavailable, "journal disabled")
			return
		}
		rows, err := journal.RecentPivots(r.Context(), symbol, limitParam(r))
		if err != nil {
			slog.Error("query pivots failed", "error", err)
			writeError(w, http.StatusInternalServerError, "query failed")
			return
		}
		json.NewEncoder(w).Encode(rows)
	}))

	mux.Handle("/api/stats", restHandler(func(w http.ResponseWriter, r *http.Request) {
		p50, p95, p99 := hub.Latency.Percentiles()
		json.NewEncoder(w).Encode(map[string]any{
			"symbol":         symbol,
			"clients":        hub.ClientCount(),
			"seq":            hub.Seq(),
			"latency_p50_ms": p50,
			"latency_p95_ms": p95,
			"latency_p99_ms": p99,
		})
	}))
}

// restHandler applies CORS and the JSON content type, and answers
// preflight requests.
func restHandler(fn http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "GET only")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fn(w, r)
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// limitParam reads ?limit=, leaving range clamping to the reader.
func limitParam(r *http.Request) int {
	n, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return n
}
