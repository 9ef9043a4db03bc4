package connectivity

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/fieldsync/pkg/logger"
)

const defaultProbeTimeout = 5 * time.Second

// Prober checks reachability of the remote base URL. Any HTTP response,
// whatever its status, counts as online; only transport failures count as
// offline.
type Prober struct {
	client  *http.Client
	url     string
	timeout time.Duration
}

type ProberOption func(*Prober)

func WithHTTPClient(client *http.Client) ProberOption {
	return func(p *Prober) {
		if client != nil {
			p.client = client
		}
	}
}

func WithProbeTimeout(d time.Duration) ProberOption {
	return func(p *Prober) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func NewProber(baseURL string, opts ...ProberOption) (*Prober, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("probe url is required")
	}
	p := &Prober{
		client:  http.DefaultClient,
		url:     baseURL,
		timeout: defaultProbeTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Probe reports whether the remote answered at all.
func (p *Prober) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<10))
	_ = resp.Body.Close()
	return true
}

type probe interface {
	Probe(ctx context.Context) bool
}

// Poller feeds probe results into a Monitor on a fixed interval.
type Poller struct {
	monitor  *Monitor
	prober   probe
	interval time.Duration
	logg     *logger.Logger
}

const defaultPollInterval = 10 * time.Second

func NewPoller(monitor *Monitor, prober probe, interval time.Duration, logg *logger.Logger) *Poller {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Poller{monitor: monitor, prober: prober, interval: interval, logg: logg}
}

// Start runs one probe synchronously so the monitor reflects reality before
// anything reads it.
func (p *Poller) Start(ctx context.Context) bool {
	online := p.prober.Probe(ctx)
	p.monitor.Set(online)
	return online
}

// Run probes on every tick until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logg.Info(ctx, "connectivity poller stopped")
			return ctx.Err()
		case <-ticker.C:
			online := p.prober.Probe(ctx)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.monitor.Set(online)
		}
	}
}
