// Package controller drives reconciliation: fetch domain configs, probe
// their targets, compose per-region views and write the nameserver output,
// once per interval, forever.
package controller

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/curtisra-gif/simple-gslb/internal/lb"
	"github.com/curtisra-gif/simple-gslb/internal/metrics"
	"github.com/curtisra-gif/simple-gslb/internal/model"
	"github.com/curtisra-gif/simple-gslb/internal/output"
	"github.com/curtisra-gif/simple-gslb/internal/source"
)

// Checker resolves the healthy targets of a domain's records.
type Checker interface {
	Resolve(ctx context.Context, records []model.Record) *model.HealthyRecordMap
}

// GeoIP controls the geoip block of the nameserver configuration.
type GeoIP struct {
	Enabled bool
	DBPath  string
}

type Options struct {
	Interval time.Duration
	GeoIP    GeoIP
	Metrics  *metrics.Metrics
	// Now defaults to time.Now.
	Now func() time.Time
}

type Controller struct {
	log      *zap.Logger
	source   source.Source
	checker  Checker
	writer   *output.Writer
	interval time.Duration
	geoip    GeoIP
	metrics  *metrics.Metrics
	now      func() time.Time

	lastSerial int64
}

func New(log *zap.Logger, src source.Source, checker Checker, writer *output.Writer, opts Options) *Controller {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Controller{
		log:      log,
		source:   src,
		checker:  checker,
		writer:   writer,
		interval: opts.Interval,
		geoip:    opts.GeoIP,
		metrics:  opts.Metrics,
		now:      opts.Now,
	}
}

// DomainResult is the outcome of reconciling one domain.
type DomainResult struct {
	Domain  string
	Skipped bool
	Regions []string
	Zones   []output.WriteResult
	Err     error
}

// CycleResult is the outcome of one reconciliation cycle.
type CycleResult struct {
	Serial    int64
	SourceErr error
	Domains   []DomainResult
	Config    output.WriteResult
}

// Err joins every failure of the cycle, nil when the cycle was clean.
func (r CycleResult) Err() error {
	var errs *multierror.Error
	if r.SourceErr != nil {
		errs = multierror.Append(errs, fmt.Errorf("source: %w", r.SourceErr))
	}
	for _, d := range r.Domains {
		if d.Err != nil {
			errs = multierror.Append(errs, fmt.Errorf("domain %s: %w", d.Domain, d.Err))
		}
		for _, z := range d.Zones {
			if z.Err != nil {
				errs = multierror.Append(errs, fmt.Errorf("zone %s: %w", z.Path, z.Err))
			}
		}
	}
	if r.Config.Err != nil {
		errs = multierror.Append(errs, fmt.Errorf("config %s: %w", r.Config.Path, r.Config.Err))
	}
	return errs.ErrorOrNil()
}

// Run reconciles every interval until ctx is cancelled. A cycle that overruns
// the interval is followed immediately by the next one.
func (c *Controller) Run(ctx context.Context) error {
	c.log.Info("starting gslb controller", zap.Duration("interval", c.interval), zap.String("zoneDir", c.writer.ZoneDir()))

	if err := c.writer.Prepare(); err != nil {
		c.log.Error("preparing output directories", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			c.log.Info("shutdown requested; exiting")
			return ctx.Err()
		default:
		}

		start := c.now()
		res := c.RunOnce(ctx)
		if err := res.Err(); err != nil && ctx.Err() == nil {
			c.log.Warn("reconcile cycle finished with errors", zap.Int64("serial", res.Serial), zap.Error(err))
		}

		wait := c.interval - c.now().Sub(start)
		if wait < 0 {
			wait = 0
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			c.log.Info("shutdown requested; exiting")
			return ctx.Err()
		case <-t.C:
		}
	}
}

// RunOnce performs a single reconciliation cycle.
func (c *Controller) RunOnce(ctx context.Context) CycleResult {
	start := c.now()
	var res CycleResult

	domains, err := c.source.List(ctx)
	if err != nil {
		c.log.Error("failed to fetch domain configs", zap.Error(err))
		res.SourceErr = err
		domains = nil
	}

	res.Serial = c.nextSerial(c.now())
	log := c.log.With(zap.Int64("serial", res.Serial))

	meta := model.DomainMeta{}
	for _, d := range domains {
		dr := c.reconcileDomain(ctx, log, res.Serial, d)
		res.Domains = append(res.Domains, dr)

		if ctx.Err() != nil {
			break
		}
		if dr.Err != nil {
			log.Error("error processing domain", zap.String("domain", d.Domain), zap.Error(dr.Err))
			c.metrics.DomainError(d.Domain)
		}
		if dr.Skipped || dr.Regions == nil {
			continue
		}
		meta[d.Domain] = dr.Regions
	}

	// Probes fail once ctx is done; publishing that would empty every zone.
	if err := ctx.Err(); err != nil {
		log.Info("cycle interrupted, keeping published output", zap.Error(err))
		res.Config = output.WriteResult{Path: c.writer.ConfigPath()}
		return res
	}
	c.metrics.ActiveRegions(meta)

	res.Config = c.writer.WriteConfig(output.ConfigData{
		GeoIPEnabled: c.geoip.Enabled,
		GeoIPDBPath:  c.geoip.DBPath,
		DomainMeta:   meta,
	})
	c.metrics.Write("config", res.Config.Changed, res.Config.Err)
	if res.Config.Err != nil {
		log.Error("failed to update nameserver config", zap.String("path", res.Config.Path), zap.Error(res.Config.Err))
	}

	c.metrics.ObserveCycle(c.now().Sub(start), res.Serial)
	return res
}

// reconcileDomain never panics; anything unexpected becomes DomainResult.Err.
func (c *Controller) reconcileDomain(ctx context.Context, log *zap.Logger, serial int64, d model.DomainConfig) (res DomainResult) {
	res.Domain = d.Domain
	log = log.With(zap.String("domain", d.Domain))

	defer func() {
		if e := recover(); e != nil {
			log.Error("panic while processing domain", zap.Any("panic", e), zap.ByteString("stack", debug.Stack()))
			res.Err = fmt.Errorf("panic: %v", e)
			res.Regions = nil
		}
	}()

	if len(d.Nameservers) == 0 {
		log.Warn("domain has no nameservers, skipping")
		res.Skipped = true
		return res
	}

	healthy := c.checker.Resolve(ctx, d.Records)
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}
	log.Debug("resolved records", zap.Int("records", healthy.Len()))

	views := lb.Compose(healthy)
	res.Regions = lb.ActiveRegions(views)

	for _, view := range lb.ViewOrder(views) {
		wr := c.writer.WriteZone(output.ZoneData{
			Domain:      d.Domain,
			Nameservers: d.Nameservers,
			Serial:      serial,
			Records:     views[view],
		}, view)
		res.Zones = append(res.Zones, wr)

		c.metrics.Write("zone", wr.Changed, wr.Err)
		if wr.Err != nil {
			log.Error("failed to write zone file", zap.String("view", view), zap.String("path", wr.Path), zap.Error(wr.Err))
		}
	}
	return res
}

// nextSerial is the cycle's Unix time, never lower than a previous serial.
func (c *Controller) nextSerial(now time.Time) int64 {
	serial := now.Unix()
	if serial < c.lastSerial {
		serial = c.lastSerial
	}
	c.lastSerial = serial
	return serial
}
