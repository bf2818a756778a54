// Package shelter wires the offline cache, connectivity observer and
// notification gate into a runnable service.
package shelter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/hay-kot/shelter/internal/core/config"
	"github.com/hay-kot/shelter/internal/core/connectivity"
	"github.com/hay-kot/shelter/internal/core/notify"
	"github.com/hay-kot/shelter/internal/core/offline"
	"github.com/hay-kot/shelter/internal/httpapi"
	"github.com/hay-kot/shelter/internal/integration/desktop"
	"github.com/hay-kot/shelter/internal/integration/network"
	"github.com/hay-kot/shelter/internal/integration/push"
	"github.com/hay-kot/shelter/internal/integration/terminal"
	"github.com/hay-kot/shelter/internal/observability"
	"github.com/hay-kot/shelter/internal/store/jsonfile"
	"github.com/hay-kot/shelter/pkg/executil"
)

// ErrNotManual is returned by SetOnline when connectivity is probed.
var ErrNotManual = errors.New("connectivity is probed, not set manually")

// Options carries the collaborators a Service needs from its caller. Every
// field is optional.
type Options struct {
	Metrics  *observability.Metrics
	Sink     connectivity.Sink // where connectivity notices are shown
	Explain  func(msg string)  // why a permission request cannot be made
	Out      io.Writer         // terminal notification output
	Executor executil.Executor
	Clock    clockwork.Clock
	Platform notify.Platform // overrides the configured platform
}

// Service owns the long-lived components.
type Service struct {
	cfg     *config.Config
	log     zerolog.Logger
	clock   clockwork.Clock
	metrics *observability.Metrics

	storage  Storage
	state    *jsonfile.KVStore
	cache    *offline.Cache
	prober   *network.Prober
	manual   *network.Manual
	observer *connectivity.Observer
	platform notify.Platform
	notifier *notify.Notifier
	notices  *jsonfile.NoticeLog
}

// New opens storage and builds every component. Nothing is started.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts Options) (*Service, error) {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Out == nil {
		opts.Out = os.Stderr
	}
	if opts.Executor == nil {
		opts.Executor = &executil.RealExecutor{}
	}

	storage, err := OpenStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:     cfg,
		log:     log,
		clock:   opts.Clock,
		metrics: opts.Metrics,
		storage: storage,
		state:   jsonfile.NewKVStore(cfg.StateFile()),
		notices: jsonfile.NewNoticeLog(cfg.DataDir),
	}

	cacheOpts := []offline.Option{
		offline.WithNamespace(cfg.Cache.Namespace),
		offline.WithClock(opts.Clock),
		offline.WithLogger(s.component("cache")),
	}
	if s.metrics != nil {
		cacheOpts = append(cacheOpts, offline.WithRecorder(s.metrics))
	}
	s.cache = offline.New(ctx, storage, cacheOpts...)

	source, err := s.buildSource(opts.Clock)
	if err != nil {
		_ = storage.Close()
		return nil, err
	}

	observerOpts := []connectivity.ObserverOption{
		connectivity.WithClock(opts.Clock),
		connectivity.WithLogger(s.component("connectivity")),
		connectivity.WithMessages(cfg.Connectivity.OfflineMessage, cfg.Connectivity.OnlineMessage),
	}
	if s.metrics != nil {
		observerOpts = append(observerOpts, connectivity.WithRecorder(s.metrics))
	}
	s.observer = connectivity.NewObserver(source, opts.Sink, observerOpts...)

	s.platform = opts.Platform
	if s.platform == nil {
		s.platform = s.buildPlatform(opts)
	}

	notifyOpts := []notify.Option{
		notify.WithClock(opts.Clock),
		notify.WithLogger(s.component("notify")),
		notify.WithJournal(s.notices),
		notify.WithDefaults(cfg.Notifications.Icon, cfg.Notifications.Badge),
	}
	if opts.Explain != nil {
		notifyOpts = append(notifyOpts, notify.WithExplainer(opts.Explain))
	}
	if s.metrics != nil {
		notifyOpts = append(notifyOpts, notify.WithRecorder(s.metrics))
	}
	s.notifier = notify.New(s.platform, notifyOpts...)

	return s, nil
}

func (s *Service) component(name string) zerolog.Logger {
	return s.log.With().Str("component", name).Logger()
}

func (s *Service) buildSource(clock clockwork.Clock) (connectivity.Source, error) {
	c := s.cfg.Connectivity
	if c.Probe == config.ProbeManual {
		s.manual = network.NewManual(true)
		return s.manual, nil
	}

	p, err := network.NewProber(network.ProberConfig{
		Mode:     network.Mode(c.Probe),
		Targets:  c.Targets,
		Interval: c.Interval,
		Timeout:  c.Timeout,
	}, network.WithClock(clock), network.WithLogger(s.component("prober")))
	if err != nil {
		return nil, fmt.Errorf("build prober: %w", err)
	}

	s.prober = p
	return p, nil
}

func (s *Service) buildPlatform(opts Options) notify.Platform {
	consent := notify.NewConsent(s.state)
	n := s.cfg.Notifications

	switch n.Platform {
	case config.PlatformTerminal:
		return terminal.New(opts.Out, consent, s.component("terminal"))
	case config.PlatformDesktop:
		return desktop.New(opts.Executor, consent, s.component("desktop"))
	case config.PlatformKafka:
		return push.New(push.Config{Brokers: n.Kafka.Brokers, Topic: n.Kafka.Topic}, consent, s.component("push"))
	default:
		return notify.Unsupported{}
	}
}

// Config returns the configuration the service was built with.
func (s *Service) Config() *config.Config { return s.cfg }

// Cache returns the offline cache.
func (s *Service) Cache() *offline.Cache { return s.cache }

// Storage returns the cache's durable storage.
func (s *Service) Storage() Storage { return s.storage }

// Observer returns the connectivity observer.
func (s *Service) Observer() *connectivity.Observer { return s.observer }

// Notifier returns the notification gate.
func (s *Service) Notifier() *notify.Notifier { return s.notifier }

// Notices returns the notification journal.
func (s *Service) Notices() *jsonfile.NoticeLog { return s.notices }

// Manual reports whether connectivity is set by hand rather than probed.
func (s *Service) Manual() bool { return s.manual != nil }

// SetOnline flips a manual connectivity source.
func (s *Service) SetOnline(online bool) error {
	if s.manual == nil {
		return ErrNotManual
	}
	s.manual.Set(online)
	return nil
}

// Check probes connectivity once and returns the result. With a manual
// source it returns the current state.
func (s *Service) Check(ctx context.Context) bool {
	if s.prober != nil {
		return s.prober.Check(ctx)
	}
	return s.manual.Online()
}

// ResetConsent forgets the stored notification decision. A running daemon
// keeps its decision until restarted.
func (s *Service) ResetConsent(ctx context.Context) error {
	return notify.NewConsent(s.state).Reset(ctx)
}

// StartBackground starts the observer and, when probing, the prober. Both
// stop when ctx is cancelled. With a prober, one probe runs before the
// observer starts so the initial state is measured rather than assumed.
func (s *Service) StartBackground(ctx context.Context) {
	if s.prober != nil {
		s.prober.Check(ctx)
	}
	s.observer.Start(ctx)

	stopRecording := s.observer.OnChange(func(online bool) {
		if online {
			s.recordOnline(ctx)
		}
	})
	context.AfterFunc(ctx, stopRecording)
	if s.observer.IsOnline() {
		s.recordOnline(ctx)
	}

	if s.prober != nil {
		go func() {
			if err := s.prober.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.log.Error().Err(err).Msg("prober stopped")
			}
		}()
	}
}

// CheckReadiness reports whether cache storage is reachable.
func (s *Service) CheckReadiness(ctx context.Context) error {
	if p, ok := s.storage.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("storage: %w", err)
		}
		return nil
	}

	if _, err := s.storage.Get(ctx, s.cfg.Cache.Namespace); err != nil && !errors.Is(err, offline.ErrNotFound) {
		return fmt.Errorf("storage: %w", err)
	}
	return nil
}

// Server builds the HTTP API for this service.
func (s *Service) Server() *httpapi.Server {
	opts := []httpapi.Option{httpapi.WithLogger(s.component("http"))}
	if s.metrics != nil {
		opts = append(opts, httpapi.WithRecorder(s.metrics))
	}

	return httpapi.NewServer(s.cfg.Server.Addr, httpapi.Deps{
		Cache:        s.cache,
		Connectivity: s.observer,
		Notifier:     s.notifier,
		Ready:        s,
	}, opts...)
}

// Run starts the background components and serves the HTTP API until ctx is
// cancelled, then shuts down within the configured timeout.
func (s *Service) Run(ctx context.Context) error {
	s.StartBackground(ctx)

	srv := s.Server()
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		s.observer.Stop()
		return fmt.Errorf("http server: %w", err)
	}

	s.log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Error().Err(err).Msg("http server shutdown error")
	}

	s.log.Info().Msg("shutdown complete")
	return nil
}

// Close releases storage and platform resources.
func (s *Service) Close() error {
	var errs []error

	if c, ok := s.platform.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close platform: %w", err))
		}
	}
	if err := s.storage.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close storage: %w", err))
	}

	return errors.Join(errs...)
}

