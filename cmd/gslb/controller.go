package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"k8s.io/client-go/dynamic"

	"github.com/curtisra-gif/simple-gslb/internal/config"
	"github.com/curtisra-gif/simple-gslb/internal/controller"
	"github.com/curtisra-gif/simple-gslb/internal/geo"
	"github.com/curtisra-gif/simple-gslb/internal/health"
	"github.com/curtisra-gif/simple-gslb/internal/metrics"
	"github.com/curtisra-gif/simple-gslb/internal/model"
	"github.com/curtisra-gif/simple-gslb/internal/output"
	"github.com/curtisra-gif/simple-gslb/internal/source"
	"github.com/curtisra-gif/simple-gslb/internal/throttler"
)

func runController(ctx context.Context, log *zap.Logger, cfg *config.Config) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, log, cfg.MetricsAddr, reg); err != nil {
				log.Error("metrics server stopped", zap.Error(err))
			}
		}()
	}

	if cfg.GeoIPEnabled {
		info, err := geo.Inspect(cfg.GeoIPDBPath)
		if err != nil {
			log.Warn("geoip database not readable by the controller", zap.Error(err))
		} else {
			log.Info("geoip database found",
				zap.String("path", cfg.GeoIPDBPath),
				zap.String("type", info.Type),
				zap.Time("built", info.Built),
			)
		}
	}

	renderer, err := output.NewTemplateRenderer(cfg.TemplateDir)
	if err != nil {
		return err
	}
	writer := output.NewWriter(log.Named("output"), renderer, output.Options{
		ConfigPath: cfg.CorefilePath,
		ZoneDir:    cfg.ZoneDir,
		Validate:   cfg.ZoneValidate,
	})

	th := throttler.New(cfg.ProbeRate, cfg.ProbeBurst)
	if th.Enabled() {
		log.Info("throttling probes", zap.Float64("rate", cfg.ProbeRate), zap.Int("burst", cfg.ProbeBurst))
	}
	engine := health.New(log.Named("health"), health.Options{
		Timeout:     cfg.Timeout(),
		MaxInFlight: cfg.MaxInFlightProbes,
		Throttler:   th,
		Metrics:     m,
	})
	defer engine.Close()

	ctrl := controller.New(log, newSource(log.Named("source"), cfg), engine, writer, controller.Options{
		Interval: cfg.Interval(),
		GeoIP: controller.GeoIP{
			Enabled: cfg.GeoIPEnabled,
			DBPath:  cfg.GeoIPDBPath,
		},
		Metrics: m,
	})
	return ctrl.Run(ctx)
}

// newSource never fails: without cluster access every cycle reports the
// error and reconciles nothing, so the process keeps running.
func newSource(log *zap.Logger, cfg *config.Config) source.Source {
	if cfg.Source == config.SourceFile {
		return source.NewFile(cfg.SourceFile)
	}

	restCfg, err := source.RESTConfig()
	if err != nil {
		log.Warn("no kubernetes config found, gslb config listing will fail", zap.Error(err))
		return failing(err)
	}
	client, err := dynamic.NewForConfig(restCfg)
	if err != nil {
		log.Warn("building kubernetes client", zap.Error(err))
		return failing(err)
	}
	return source.NewKubernetes(log, client, cfg.Resource())
}

func failing(err error) source.Source {
	return source.Func(func(context.Context) ([]model.DomainConfig, error) {
		return nil, err
	})
}
