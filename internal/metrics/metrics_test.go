package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestNewMetrics_RegistersOnPrivateRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.EventsTotal.WithLabelValues("trade").Add(3)
	m.SignalsTotal.WithLabelValues("BUY").Inc()
	assert.Equal(t, 3.0, testutil.ToFloat64(m.EventsTotal.WithLabelValues("trade")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SignalsTotal.WithLabelValues("BUY")))

	// registering twice on the same registry panics
	assert.Panics(t, func() { NewMetrics(reg) })
}

func decodeHealth(t *testing.T, rec *httptest.ResponseRecorder) healthBody {
	t.Helper()
	var body healthBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealth_OptionalDependencies(t *testing.T) {
	h := NewHealthStatus()
	h.SetFeedConnected(true)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeHealth(t, rec).Status, "disabled stores do not degrade health")

	h.EnableRedis(true)
	h.Check(context.Background(), pingFunc(func(context.Context) error { return errors.New("down") }), nil)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decodeHealth(t, rec)
	assert.Equal(t, "degraded", body.Status)
	assert.False(t, body.RedisConnected)
	assert.NotEmpty(t, body.LastCheckAt)
}

func TestHealth_FeedDisconnected(t *testing.T) {
	h := NewHealthStatus()
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return fixed }
	h.SetLastEventTime(fixed.Add(-1500 * time.Millisecond))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decodeHealth(t, rec)
	assert.False(t, body.FeedConnected)
	assert.Equal(t, "1.5s", body.EventAge)
}

func TestServer_Routes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.PivotsTotal.WithLabelValues("HIGH").Inc()

	h := NewHealthStatus()
	h.SetFeedConnected(true)
	s := NewServer("127.0.0.1:0", h, reg)
	s.Handle("/extra", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `profile_pivots_total{kind="HIGH"} 1`))

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/extra", nil))
	assert.Equal(t, "ok", rec.Body.String())

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
