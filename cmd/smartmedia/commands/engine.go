package commands

import (
	"context"
	"time"

	"github.com/apex/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/KarpelesLab/smartmedia"
	"github.com/KarpelesLab/smartmedia/config"
	"github.com/KarpelesLab/smartmedia/httpsrc"
	"github.com/KarpelesLab/smartmedia/manifest"
	"github.com/KarpelesLab/smartmedia/metrics"
)

// engine bundles a Manager with the optional parts built around it.
type engine struct {
	m       *smartmedia.Manager
	catalog *manifest.Resolver   // nil without a manifest
	reg     *prometheus.Registry // nil when metrics are disabled
}

// newEngine builds a Manager from cfg. Ids resolve through the manifest
// when one is configured, and are treated as URLs otherwise.
func newEngine(cfg *config.Config) (*engine, error) {
	logger := log.Log
	e := &engine{}

	f := cfg.NewFetcher(logger)
	urls := httpsrc.NewResolver(f)

	opts := cfg.Options(logger)
	opts.Fetcher = f
	opts.Resolver = urls
	opts.Muxer = cfg.NewMuxer(logger)

	if cfg.Manifest.Path != "" {
		catalog, err := manifest.Load(cfg.Manifest.Path, urls)
		if err != nil {
			return nil, err
		}
		catalog.Logger = logger
		opts.Resolver = catalog
		e.catalog = catalog
	}

	if cfg.Metrics.Enabled {
		e.reg = prometheus.NewRegistry()
		e.reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		opts.Metrics = metrics.New(e.reg)
	}

	m, err := smartmedia.NewManager(opts)
	if err != nil {
		return nil, err
	}
	e.m = m
	return e, nil
}

// gatherer returns the metrics registry, or nil when metrics are disabled.
func (e *engine) gatherer() prometheus.Gatherer {
	if e.reg == nil {
		return nil
	}
	return e.reg
}

func (e *engine) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.m.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("shutdown did not complete")
	}
}
