package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/tendering/api/tenders"
	_ "github.com/kilianp07/tendering/app/plugins"
	"github.com/kilianp07/tendering/config"
	coreaudit "github.com/kilianp07/tendering/core/audit"
	"github.com/kilianp07/tendering/core/catalog"
	"github.com/kilianp07/tendering/core/events"
	coremetrics "github.com/kilianp07/tendering/core/metrics"
	"github.com/kilianp07/tendering/core/monitoring"
	"github.com/kilianp07/tendering/core/notify"
	"github.com/kilianp07/tendering/core/pool"
	"github.com/kilianp07/tendering/core/tender"
	"github.com/kilianp07/tendering/infra/logger"
	"github.com/kilianp07/tendering/infra/metrics"
	inframon "github.com/kilianp07/tendering/infra/monitoring"
	"github.com/kilianp07/tendering/infra/mqtt"
	"github.com/kilianp07/tendering/internal/eventbus"
)

// Service wires the tender manager to its catalog, outbox, metrics sinks,
// audit store, HTTP API and the optional MQTT bid intake.
type Service struct {
	Manager *tender.Manager
	Catalog *catalog.Catalog

	cfg       *config.Config
	bus       *eventbus.Bus[events.Event]
	outbox    *notify.Outbox
	publisher notify.Publisher
	sink      coremetrics.MetricsSink
	store     coreaudit.Store
	server    *http.Server
	intake    *mqtt.Intake
	gatherer  prometheus.Gatherer
	log       logger.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithGatherer serves metrics from g instead of the default registry.
func WithGatherer(g prometheus.Gatherer) Option { return func(s *Service) { s.gatherer = g } }

// New creates a Service from the configuration. Resources opened before a
// failing step are released.
func New(cfg *config.Config, opts ...Option) (svc *Service, err error) {
	logger.Configure(cfg.Logging.Level, cfg.Logging.Format)
	s := &Service{cfg: cfg, log: logger.New("service")}
	for _, o := range opts {
		o(s)
	}
	defer func() {
		if err != nil {
			s.shutdown(context.Background())
		}
	}()

	mon, err := inframon.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	monitoring.Init(mon)

	snap, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	if s.Catalog, err = catalog.New(snap); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	router := pool.NewRouter(s.Catalog)
	router.SetInactive(s.Catalog.Inactive()...)

	if s.sink, err = coremetrics.NewMetricsSink(cfg.Metrics.Sinks); err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	if s.store, err = coreaudit.NewStore(cfg.Audit); err != nil {
		return nil, fmt.Errorf("audit store: %w", err)
	}
	if s.publisher, err = notify.NewPublisher(cfg.Notify.Publishers, logger.New("publisher")); err != nil {
		return nil, fmt.Errorf("publisher: %w", err)
	}
	s.outbox = notify.New(s.publisher, cfg.Notify,
		notify.WithLogger(logger.New("outbox")),
		notify.WithResultHook(s.recordDelivery),
	)
	s.bus = eventbus.New[events.Event]()

	s.Manager, err = tender.NewManager(cfg.Engine, tender.Deps{
		Router:   router,
		Carriers: s.Catalog,
		Outbox:   s.outbox,
		Bus:      s.bus,
		Metrics:  s.sink,
		Audit:    s.store,
		Logger:   logger.New("tender-manager"),
	})
	if err != nil {
		return nil, fmt.Errorf("tender manager: %w", err)
	}
	if cfg.Intake.Enabled {
		if s.intake, err = mqtt.NewIntake(cfg.Intake, s.Manager); err != nil {
			return nil, fmt.Errorf("bid intake: %w", err)
		}
	}
	s.server = &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}
	return s, nil
}

// Handler returns the tender API.
func (s *Service) Handler() http.Handler {
	return tenders.NewRouter(s.Manager, logger.New("api"))
}

func (s *Service) recordDelivery(r notify.Result) {
	rec, ok := s.sink.(coremetrics.DeliveryRecorder)
	if !ok {
		return
	}
	ev := coremetrics.DeliveryEvent{
		Event:     r.Event.Name(),
		TenderID:  r.Event.Tender(),
		Attempts:  r.Attempts,
		Delivered: r.Err == nil,
		Time:      time.Now(),
	}
	if r.Err != nil {
		ev.Error = r.Err.Error()
	}
	if err := rec.RecordDelivery(ev); err != nil {
		s.log.Warnf("record delivery: %v", err)
	}
}

// Run serves the API, the metrics endpoint and the event collector until ctx
// is canceled.
func (s *Service) Run(ctx context.Context) error {
	collected := metrics.StartEventCollector(ctx, s.bus, s.sink, logger.New("collector"))
	if port := s.cfg.Metrics.PrometheusPort; port > 0 {
		go func() {
			if err := metrics.StartPromServer(ctx, port, s.gatherer, logger.New("prometheus")); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	intakeDone := make(chan struct{})
	go func() {
		defer close(intakeDone)
		if s.intake == nil {
			return
		}
		if err := s.intake.Start(ctx); err != nil {
			s.log.Errorf("bid intake: %v", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("tender API listening on %s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.log.Errorf("api shutdown: %v", err)
	}
	s.bus.Close()
	<-collected
	if runErr == nil {
		<-intakeDone
	}
	return runErr
}

// Close stops the manager, drains the outbox and releases backends.
func (s *Service) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.HTTP.ShutdownTimeout)
	defer cancel()
	return s.shutdown(ctx)
}

func (s *Service) shutdown(ctx context.Context) error {
	var errs []error
	if s.Manager != nil {
		s.Manager.Close()
	}
	if s.outbox != nil {
		if err := s.outbox.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("outbox: %w", err))
		}
	}
	if s.bus != nil {
		s.bus.Close()
	}
	errs = append(errs, closeBackend(s.publisher), closeBackend(s.store), closeBackend(s.sink))
	monitoring.Flush(2 * time.Second)
	return errors.Join(errs...)
}

// closeBackend releases v when it holds resources. Fan-out wrappers are
// walked so every member is closed.
func closeBackend(v any) error {
	switch b := v.(type) {
	case nil:
		return nil
	case notify.MultiPublisher:
		var errs []error
		for _, p := range b {
			errs = append(errs, closeBackend(p))
		}
		return errors.Join(errs...)
	case *coremetrics.MultiSink:
		var errs []error
		for _, m := range b.Sinks {
			errs = append(errs, closeBackend(m))
		}
		return errors.Join(errs...)
	case io.Closer:
		return b.Close()
	case interface{ Close() }:
		b.Close()
	}
	return nil
}
