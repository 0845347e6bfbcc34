// Package health decides whether targets are alive.
//
// Probes never fail loudly: any error (refused connection, timeout, DNS
// failure, bad status) resolves to an unhealthy Result.
package health

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/curtisra-gif/simple-gslb/internal/metrics"
	"github.com/curtisra-gif/simple-gslb/internal/model"
	"github.com/curtisra-gif/simple-gslb/internal/throttler"
)

const DefaultTimeout = 2 * time.Second

var (
	ErrUnsupportedProtocol = errors.New("unsupported protocol")
	errMissingAddress      = errors.New("target has no address")
)

// Result is the outcome of one probe.
type Result struct {
	Target      model.Target
	Healthy     bool
	Unsupported bool
	Err         error
	Duration    time.Duration
}

type Options struct {
	Timeout time.Duration
	// MaxInFlight caps concurrently running probes; zero means no cap.
	MaxInFlight int
	Throttler   *throttler.Throttler
	Metrics     *metrics.Metrics
}

// Engine runs probes. Its HTTP client is shared by every probe for the
// lifetime of the engine.
type Engine struct {
	log         *zap.Logger
	client      *http.Client
	dialer      *net.Dialer
	timeout     time.Duration
	maxInFlight int
	throttler   *throttler.Throttler
	metrics     *metrics.Metrics
}

func New(log *zap.Logger, opts Options) *Engine {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	// reachability matters here, not certificate trust
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec

	return &Engine{
		log:         log,
		client:      &http.Client{Transport: transport, Timeout: opts.Timeout},
		dialer:      &net.Dialer{Timeout: opts.Timeout},
		timeout:     opts.Timeout,
		maxInFlight: opts.MaxInFlight,
		throttler:   opts.Throttler,
		metrics:     opts.Metrics,
	}
}

// Close releases idle probe connections.
func (e *Engine) Close() {
	e.client.CloseIdleConnections()
}

// Verify probes a single target.
func (e *Engine) Verify(ctx context.Context, t model.Target) Result {
	start := time.Now()
	res := Result{Target: t}

	proto := t.ProbeProtocol()
	switch {
	case t.Address == "":
		res.Err = errMissingAddress
	case proto == model.ProtocolTCP:
		res.Err = e.checkTCP(ctx, t)
	case proto == model.ProtocolHTTP, proto == model.ProtocolHTTPS:
		res.Err = e.checkHTTP(ctx, proto, t)
	default:
		res.Unsupported = true
		res.Err = fmt.Errorf("%w %q", ErrUnsupportedProtocol, proto)
	}

	res.Healthy = res.Err == nil
	res.Duration = time.Since(start)
	e.metrics.ObserveProbe(proto, res.Healthy, res.Duration)

	if !res.Healthy {
		e.logUnhealthy(res)
	}
	return res
}

// Check probes all targets concurrently and returns once every probe has
// resolved. Results are in input order.
func (e *Engine) Check(ctx context.Context, targets []model.Target) []Result {
	results := make([]Result, len(targets))

	var g errgroup.Group
	if e.maxInFlight > 0 {
		g.SetLimit(e.maxInFlight)
	}

	for i, t := range targets {
		if err := e.throttler.Wait(ctx); err != nil {
			results[i] = Result{Target: t, Err: err}
			e.logUnhealthy(results[i])
			continue
		}
		i, t := i, t
		g.Go(func() error {
			results[i] = e.Verify(ctx, t)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Resolve probes every target of every named record in one batch and keeps
// the healthy ones, in source order. Records without a name are dropped.
func (e *Engine) Resolve(ctx context.Context, records []model.Record) *model.HealthyRecordMap {
	healthy := model.NewHealthyRecordMap()

	var (
		targets []model.Target
		owners  []string
	)
	for _, rec := range records {
		if rec.Name == "" {
			e.log.Debug("dropping record without name", zap.Int("targets", len(rec.Targets)))
			continue
		}
		healthy.Declare(rec.Name)
		for _, t := range rec.Targets {
			targets = append(targets, t)
			owners = append(owners, rec.Name)
		}
	}
	if len(targets) == 0 {
		return healthy
	}

	for i, res := range e.Check(ctx, targets) {
		if res.Healthy {
			healthy.Add(owners[i], res.Target)
		}
	}
	return healthy
}

func (e *Engine) checkTCP(ctx context.Context, t model.Target) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	conn, err := e.dialer.DialContext(ctx, "tcp", hostPort(t))
	if err != nil {
		return err
	}
	return conn.Close()
}

func (e *Engine) checkHTTP(ctx context.Context, scheme string, t model.Target) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	url := scheme + "://" + hostPort(t) + t.ProbePath()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (e *Engine) logUnhealthy(res Result) {
	t := res.Target
	location := t.Location
	if location == "" {
		location = model.DefaultView
	}
	fields := []zap.Field{
		zap.String("address", t.Address),
		zap.String("protocol", t.ProbeProtocol()),
		zap.Int("port", t.ProbePort()),
		zap.String("path", t.ProbePath()),
		zap.String("location", location),
		zap.Error(res.Err),
	}

	if res.Unsupported {
		e.log.Warn("unsupported probe protocol, marking target unhealthy", fields...)
		return
	}
	e.log.Warn("target unhealthy", fields...)
}

func hostPort(t model.Target) string {
	return net.JoinHostPort(t.Address, strconv.Itoa(t.ProbePort()))
}
