// Package metrics exposes Prometheus metrics and the health endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the profile engine.
type Metrics struct {
	// Ingest
	EventsTotal   *prometheus.CounterVec // labels: kind=candle|trade
	DroppedEvents *prometheus.CounterVec // labels: reason=malformed|symbol
	WSReconnects  prometheus.Counter
	QueueDepth    *prometheus.GaugeVec // labels: kind

	// Engine
	CandleReplacements prometheus.Counter
	PivotsTotal        *prometheus.CounterVec // labels: kind=HIGH|LOW
	SignalsTotal       *prometheus.CounterVec // labels: action=BUY|SELL
	PrunedBars         prometheus.Counter
	PrunedLevels       prometheus.Counter
	BufferedBars       prometheus.Gauge
	ProfileLevels      prometheus.Gauge
	NetPosition        prometheus.Gauge
	TradeComputeDur    prometheus.Histogram

	// Output
	SnapshotDrops        prometheus.Counter
	FanoutDropsTotal     *prometheus.CounterVec // labels: subscriber
	ChannelSaturationPct *prometheus.GaugeVec   // labels: channel_name

	// Storage
	RedisPublishDur          prometheus.Histogram
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisSkipped             prometheus.Counter
	JournalRecords           prometheus.Counter
	SQLiteCommitDur          prometheus.Histogram

	// Gateway / notifications
	WSClients          prometheus.Gauge
	WSSlowClientSkips  prometheus.Counter
	NotificationsTotal *prometheus.CounterVec // labels: result=sent|failed|dropped
}

// NewMetrics creates all metrics and registers them with reg.
// Pass prometheus.DefaultRegisterer in production and a fresh
// prometheus.NewRegistry() in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "profile_events_total",
			Help: "Market events decoded from the feed",
		}, []string{"kind"}),
		DroppedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "profile_dropped_events_total",
			Help: "Feed messages dropped before reaching the engine",
		}, []string{"reason"}),
		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "profile_ws_reconnects_total",
			Help: "Feed WebSocket disconnects followed by a reconnect attempt",
		}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "profile_queue_depth",
			Help: "Events waiting in the engine ingress queues",
		}, []string{"kind"}),

		CandleReplacements: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "profile_candle_replacements_total",
			Help: "Same-timestamp updates of the newest bar",
		}),
		PivotsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "profile_pivots_total",
			Help: "Confirmed swing pivots",
		}, []string{"kind"}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "profile_signals_total",
			Help: "Position increments applied by the signal policy",
		}, []string{"action"}),
		PrunedBars: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "profile_pruned_bars_total",
			Help: "Bars removed from the buffer by pivot pruning",
		}),
		PrunedLevels: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "profile_pruned_levels_total",
			Help: "Price levels removed from the profile by pivot pruning",
		}),
		BufferedBars: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profile_buffered_bars",
			Help: "Bars currently held in the time series buffer",
		}),
		ProfileLevels: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profile_levels",
			Help: "Distinct prices in the live volume profile",
		}),
		NetPosition: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profile_net_position",
			Help: "Longs minus shorts recorded by the ledger",
		}),
		TradeComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "profile_trade_compute_duration_seconds",
			Help:    "Time to record a trade and recompute the snapshot",
			Buckets: []float64{0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		}),

		SnapshotDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "profile_snapshot_drops_total",
			Help: "Snapshots dropped because the output channel was full",
		}),
		FanoutDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "profile_fanout_drops_total",
			Help: "Snapshots dropped by the fan-out bus per subscriber",
		}, []string{"subscriber"}),
		ChannelSaturationPct: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "profile_channel_saturation_pct",
			Help: "Channel fill percentage (len/cap * 100)",
		}, []string{"channel_name"}),

		RedisPublishDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "profile_redis_publish_duration_seconds",
			Help:    "Redis SET+PUBLISH pipeline latency",
			Buckets: prometheus.DefBuckets,
		}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profile_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "profile_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "profile_redis_skipped_total",
			Help: "Snapshots not published while the breaker was open",
		}),
		JournalRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "profile_journal_records_total",
			Help: "Records committed to the SQLite journal",
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "profile_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),

		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profile_ws_clients",
			Help: "Connected gateway WebSocket clients",
		}),
		WSSlowClientSkips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "profile_ws_slow_client_skips_total",
			Help: "Envelopes not queued because a gateway client's send buffer was full",
		}),
		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "profile_notifications_total",
			Help: "Alerts handled by the notifier",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.EventsTotal,
		m.DroppedEvents,
		m.WSReconnects,
		m.QueueDepth,
		m.CandleReplacements,
		m.PivotsTotal,
		m.SignalsTotal,
		m.PrunedBars,
		m.PrunedLevels,
		m.BufferedBars,
		m.ProfileLevels,
		m.NetPosition,
		m.TradeComputeDur,
		m.SnapshotDrops,
		m.FanoutDropsTotal,
		m.ChannelSaturationPct,
		m.RedisPublishDur,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisSkipped,
		m.JournalRecords,
		m.SQLiteCommitDur,
		m.WSClients,
		m.WSSlowClientSkips,
		m.NotificationsTotal,
	)

	return m
}
