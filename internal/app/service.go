// Package app wires the feed, the engine and every snapshot consumer into
// one running service.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"trading-profilev1/config"
	"trading-profilev1/internal/engine"
	"trading-profilev1/internal/gateway"
	"trading-profilev1/internal/marketdata/binance"
	"trading-profilev1/internal/marketdata/bus"
	"trading-profilev1/internal/metrics"
	"trading-profilev1/internal/model"
	"trading-profilev1/internal/notification"
	"trading-profilev1/internal/render"
	redisstore "trading-profilev1/internal/store/redis"
	sqlitestore "trading-profilev1/internal/store/sqlite"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	journalBuffer    = 5000
	livenessInterval = 10 * time.Second
	statsInterval    = 5 * time.Second
	shutdownTimeout  = 5 * time.Second
)

// Deps are the process-level handles the service does not own.
type Deps struct {
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
	Stdout     io.Writer // terminal sink target; nil means os.Stdout
}

// Service is the assembled profile engine.
type Service struct {
	cfg    *config.Config
	symbol string

	engine   *engine.Engine
	pipeline *engine.Pipeline
	snapCh   chan model.Snapshot
	fanout   *bus.FanOut
	ingest   *binance.Ingest

	terminal   *render.Terminal
	hub        *gateway.Hub
	publisher  *redisstore.Publisher
	journal    *sqlitestore.Journal
	reader     *sqlitestore.Reader
	recCh      chan sqlitestore.Record
	dispatcher *notification.Dispatcher

	prom   *metrics.Metrics
	health *metrics.HealthStatus
	server *metrics.Server
}

// New builds every component from cfg. Optional sinks are created only
// when configured. Call Close after Run returns.
func New(ctx context.Context, cfg *config.Config, deps Deps) (*Service, error) {
	ecfg, err := cfg.EngineConfig()
	if err != nil {
		return nil, err
	}
	eng, err := engine.New(ecfg)
	if err != nil {
		return nil, err
	}
	ing, err := binance.New(binance.Config{
		URL:               cfg.Feed.URL,
		Symbol:            cfg.Feed.Symbol,
		Interval:          cfg.Feed.Interval,
		ReconnectDelay:    cfg.Feed.ReconnectDelay,
		MaxReconnectDelay: cfg.Feed.MaxReconnectDelay,
		ReadTimeout:       cfg.Feed.ReadTimeout,
	})
	if err != nil {
		return nil, err
	}

	if deps.Registerer == nil {
		deps.Registerer = prometheus.DefaultRegisterer
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}

	s := &Service{
		cfg:    cfg,
		symbol: ecfg.Symbol,
		engine: eng,
		snapCh: make(chan model.Snapshot, cfg.Engine.SnapshotBuffer),
		fanout: bus.New(cfg.Engine.SnapshotBuffer),
		ingest: ing,
		prom:   metrics.NewMetrics(deps.Registerer),
		health: metrics.NewHealthStatus(),
	}
	s.pipeline = engine.NewPipeline(eng, s.snapCh)
	s.server = metrics.NewServer(cfg.App.HTTPAddr, s.health, deps.Gatherer)

	if cfg.App.Terminal {
		s.terminal = render.NewTerminal(deps.Stdout, render.Options{
			Color:    cfg.App.Color,
			Location: cfg.Location(),
		})
	}
	if cfg.Gateway.Enabled {
		s.hub = gateway.NewHub(cfg.Gateway.History)
	}
	if cfg.Redis.Addr != "" {
		s.publisher = s.openRedis(ctx)
	}
	if cfg.SQLite.Path != "" {
		if err := s.openJournal(); err != nil {
			s.Close()
			return nil, err
		}
	}
	s.dispatcher = notification.NewDispatcher(s.notifier(), cfg.Notify.Buffer)

	s.wire()
	return s, nil
}

// openRedis connects to Redis. A failed initial ping is not fatal: the
// publisher keeps a lazy client and the circuit breaker handles retries.
func (s *Service) openRedis(ctx context.Context) *redisstore.Publisher {
	rc := redisstore.Config{
		Addr:        s.cfg.Redis.Addr,
		Password:    s.cfg.Redis.Password,
		DB:          s.cfg.Redis.DB,
		Symbol:      s.symbol,
		SnapshotKey: s.cfg.Redis.SnapshotKey,
		Channel:     s.cfg.Redis.Channel,
		TTL:         s.cfg.Redis.TTL,
	}
	pub, err := redisstore.New(ctx, rc)
	if err != nil {
		slog.Warn("redis unavailable at startup, continuing", "component", "redis", "error", err)
		s.health.EnableRedis(false)
		return redisstore.NewWithClient(goredis.NewClient(&goredis.Options{
			Addr:     rc.Addr,
			Password: rc.Password,
			DB:       rc.DB,
		}), rc)
	}
	s.health.EnableRedis(true)
	return pub
}

func (s *Service) openJournal() error {
	if dir := filepath.Dir(s.cfg.SQLite.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create journal dir: %w", err)
		}
	}
	j, err := sqlitestore.New(sqlitestore.Config{
		DBPath:     s.cfg.SQLite.Path,
		BatchSize:  s.cfg.SQLite.BatchSize,
		FlushDelay: s.cfg.SQLite.FlushDelay,
	})
	if err != nil {
		return fmt.Errorf("sqlite journal: %w", err)
	}
	s.journal = j
	r, err := sqlitestore.NewReader(s.cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("sqlite reader: %w", err)
	}
	s.reader = r
	s.recCh = make(chan sqlitestore.Record, journalBuffer)
	s.health.EnableSQLite(true)
	return nil
}

func (s *Service) notifier() notification.Notifier {
	multi := notification.Multi{notification.NewLogNotifier()}
	if u := s.cfg.Notify.WebhookURL; u != "" {
		multi = append(multi, notification.NewWebhookNotifier(u))
	}
	if s.cfg.Notify.TelegramToken != "" {
		multi = append(multi, notification.NewTelegramNotifier(s.cfg.Notify.TelegramToken, s.cfg.Notify.TelegramChatID))
	}
	return multi
}

// wire installs the hooks that connect components to metrics, health,
// the journal and alerts.
func (s *Service) wire() {
	m := s.prom

	s.ingest.OnConnect = func() { s.health.SetFeedConnected(true) }
	s.ingest.OnDisconnect = func(error) {
		s.health.SetFeedConnected(false)
		m.WSReconnects.Inc()
	}
	s.ingest.OnDrop = func(reason string) { m.DroppedEvents.WithLabelValues(reason).Inc() }
	s.ingest.OnEvent = func(kind binance.Kind) {
		m.EventsTotal.WithLabelValues(kind.String()).Inc()
		s.health.SetLastEventTime(time.Now())
	}

	s.engine.OnPivot = func(p model.Pivot) {
		m.PivotsTotal.WithLabelValues(string(p.Kind)).Inc()
		s.record(sqlitestore.PivotRecord(s.symbol, p))
		s.dispatcher.Notify(notification.PivotAlert(s.symbol, p))
	}
	s.engine.OnSignal = func(sig model.Signal) {
		m.SignalsTotal.WithLabelValues(string(sig.Action)).Inc()
		m.NetPosition.Set(float64(sig.Net))
		s.record(sqlitestore.SignalRecord(s.symbol, sig))
		s.dispatcher.Notify(notification.SignalAlert(s.symbol, sig))
	}
	s.engine.OnPrune = func(_ int64, bars, levels int) {
		m.PrunedBars.Add(float64(bars))
		m.PrunedLevels.Add(float64(levels))
	}

	s.pipeline.OnCandle = func(ev model.CandleEvent, res engine.CandleResult) {
		if res.Replaced {
			m.CandleReplacements.Inc()
		}
		if ev.Closed {
			s.record(sqlitestore.BarRecord(s.symbol, ev.Bar()))
		}
		st := s.engine.State()
		m.BufferedBars.Set(float64(st.Bars))
		m.ProfileLevels.Set(float64(st.Levels))
	}
	s.pipeline.OnTrade = func(_ model.TradeEvent, took time.Duration) {
		m.TradeComputeDur.Observe(took.Seconds())
	}
	s.pipeline.OnSnapshotDrop = func() { m.SnapshotDrops.Inc() }
	s.pipeline.OnQueueDepth = func(candles, trades int) {
		m.QueueDepth.WithLabelValues("candle").Set(float64(candles))
		m.QueueDepth.WithLabelValues("trade").Set(float64(trades))
	}

	s.fanout.OnDrop = func(sub string) { m.FanoutDropsTotal.WithLabelValues(sub).Inc() }
	s.dispatcher.OnResult = func(r string) { m.NotificationsTotal.WithLabelValues(r).Inc() }

	if s.publisher != nil {
		s.publisher.OnPublish = func(took time.Duration) { m.RedisPublishDur.Observe(took.Seconds()) }
		s.publisher.OnSkip = func() { m.RedisSkipped.Inc() }
		s.publisher.Breaker().OnStateChange = func(from, to redisstore.State) {
			m.RedisCircuitBreakerState.Set(float64(to))
			if to == redisstore.StateOpen {
				m.RedisCircuitBreakerTrips.Inc()
			}
			slog.Warn("redis circuit breaker", "component", "redis", "from", from.String(), "to", to.String())
		}
	}
	if s.journal != nil {
		s.journal.OnCommit = func(n int, took time.Duration) {
			m.JournalRecords.Add(float64(n))
			m.SQLiteCommitDur.Observe(took.Seconds())
		}
	}
	if s.hub != nil {
		s.hub.OnClients = func(n int) { m.WSClients.Set(float64(n)) }
		s.hub.OnSlowClient = m.WSSlowClientSkips.Inc
		var journal gateway.Journal
		if s.reader != nil {
			journal = s.reader
		}
		gateway.RegisterRoutes(s.server, s.hub, journal, s.symbol)
	}
}

// record queues a journal record without blocking the engine goroutine.
func (s *Service) record(r sqlitestore.Record) {
	if s.recCh == nil {
		return
	}
	select {
	case s.recCh <- r:
	default:
		s.prom.DroppedEvents.WithLabelValues("journal").Inc()
	}
}

// Run starts every goroutine and blocks until ctx is cancelled. Sinks are
// drained before it returns.
func (s *Service) Run(ctx context.Context) error {
	if err := s.server.Start(); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	slog.Info("profile engine started",
		"symbol", s.symbol,
		"policy", s.engine.Config().Policy.Name(),
		"http", s.cfg.App.HTTPAddr,
		"terminal", s.terminal != nil,
		"redis", s.publisher != nil,
		"journal", s.journal != nil,
		"gateway", s.hub != nil)

	var wg sync.WaitGroup
	goRun := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	var sinks []func()
	if s.terminal != nil {
		ch := s.fanout.Subscribe("terminal")
		sinks = append(sinks, func() { s.terminal.Run(ctx, ch) })
	}
	if s.hub != nil {
		ch := s.fanout.Subscribe("gateway")
		sinks = append(sinks, func() { s.hub.Run(ctx, ch) })
	}
	if s.publisher != nil {
		ch := s.fanout.Subscribe("redis")
		sinks = append(sinks, func() { s.publisher.Run(ctx, ch) })
	}
	for _, fn := range sinks {
		goRun(fn)
	}

	goRun(func() { s.pipeline.Run(ctx) })
	goRun(func() { s.fanout.Run(ctx, s.snapCh) })
	goRun(func() { s.dispatcher.Run(ctx) })
	if s.journal != nil {
		goRun(func() { s.journal.Run(ctx, s.recCh) })
	}
	goRun(func() { s.reportSaturation(ctx) })

	var redisPinger, sqlitePinger metrics.Pinger
	if s.publisher != nil {
		redisPinger = s.publisher
	}
	if s.reader != nil {
		sqlitePinger = s.reader
	}
	s.health.StartLivenessChecker(ctx, redisPinger, sqlitePinger, livenessInterval)

	err := s.ingest.Start(ctx, s.pipeline)
	wg.Wait()

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := s.server.Stop(stopCtx); serr != nil {
		slog.Warn("http server shutdown", "error", serr)
	}
	slog.Info("profile engine stopped", "symbol", s.symbol)
	return err
}

func (s *Service) reportSaturation(ctx context.Context) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, st := range s.fanout.ChannelStats() {
				if st.Cap > 0 {
					pct := float64(st.Len) / float64(st.Cap) * 100
					s.prom.ChannelSaturationPct.WithLabelValues("fanout_" + st.Name).Set(pct)
				}
			}
			if c := cap(s.snapCh); c > 0 {
				s.prom.ChannelSaturationPct.WithLabelValues("snapshots").Set(float64(len(s.snapCh)) / float64(c) * 100)
			}
			if c := cap(s.recCh); c > 0 {
				s.prom.ChannelSaturationPct.WithLabelValues("journal").Set(float64(len(s.recCh)) / float64(c) * 100)
			}
		}
	}
}

// Close releases storage handles.
func (s *Service) Close() error {
	var errs []error
	if s.publisher != nil {
		errs = append(errs, s.publisher.Close())
	}
	if s.reader != nil {
		errs = append(errs, s.reader.Close())
	}
	if s.journal != nil {
		errs = append(errs, s.journal.Close())
	}
	return errors.Join(errs...)
}

