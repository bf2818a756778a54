package network

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/hay-kot/shelter/internal/core/connectivity"
)

// Mode selects how a Prober checks reachability.
type Mode string

const (
	ModeTCP  Mode = "tcp"
	ModeHTTP Mode = "http"
)

// ProberConfig configures a Prober.
type ProberConfig struct {
	Mode     Mode
	Targets  []string // host:port for tcp, URLs for http
	Interval time.Duration
	Timeout  time.Duration
}

// Prober periodically checks whether any target is reachable. The host is
// online when at least one target answers.
type Prober struct {
	*status

	cfg    ProberConfig
	clock  clockwork.Clock
	log    zerolog.Logger
	dialer interface {
		DialContext(ctx context.Context, network, addr string) (net.Conn, error)
	}
	client *http.Client
}

var _ connectivity.Source = (*Prober)(nil)

// ProberOption configures a Prober.
type ProberOption func(*Prober)

// WithClock sets the clock driving the probe interval.
func WithClock(c clockwork.Clock) ProberOption {
	return func(p *Prober) { p.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) ProberOption {
	return func(p *Prober) { p.log = l }
}

// WithHTTPClient replaces the client used in http mode.
func WithHTTPClient(c *http.Client) ProberOption {
	return func(p *Prober) { p.client = c }
}

// NewProber creates a Prober. It reports online until the first check
// completes; callers that need a measured initial state call Check first.
func NewProber(cfg ProberConfig, opts ...ProberOption) (*Prober, error) {
	if len(cfg.Targets) == 0 {
		return nil, fmt.Errorf("prober needs at least one target")
	}
	if cfg.Mode != ModeTCP && cfg.Mode != ModeHTTP {
		return nil, fmt.Errorf("unsupported probe mode: %s", cfg.Mode)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}

	p := &Prober{
		status: newStatus(true),
		cfg:    cfg,
		clock:  clockwork.NewRealClock(),
		log:    zerolog.Nop(),
		dialer: &net.Dialer{},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.client == nil {
		p.client = &http.Client{Timeout: cfg.Timeout}
	}
	return p, nil
}

// Run checks immediately and then every interval until ctx is cancelled.
func (p *Prober) Run(ctx context.Context) error {
	ticker := p.clock.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.Check(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			p.Check(ctx)
		}
	}
}

// Check probes the targets once, updates the state and returns it.
func (p *Prober) Check(ctx context.Context) bool {
	online := false
	for _, target := range p.cfg.Targets {
		err := p.probe(ctx, target)
		if err == nil {
			online = true
			break
		}
		p.log.Debug().Err(err).Str("target", target).Msg("probe failed")
	}

	if ctx.Err() != nil {
		// a cancelled probe says nothing about the network
		return p.Online()
	}

	if p.set(online) {
		p.log.Info().Bool("online", online).Msg("reachability changed")
	}
	return online
}

func (p *Prober) probe(ctx context.Context, target string) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	switch p.cfg.Mode {
	case ModeHTTP:
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
		if err != nil {
			return err
		}
		resp, err := p.client.Do(req)
		if err != nil {
			return err
		}
		_ = resp.Body.Close()
		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("%s returned %d", target, resp.StatusCode)
		}
		return nil
	default:
		conn, err := p.dialer.DialContext(ctx, "tcp", target)
		if err != nil {
			return err
		}
		return conn.Close()
	}
}
