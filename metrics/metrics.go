// Package metrics exports engine events to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/KarpelesLab/smartmedia"
)

// Collector implements smartmedia.Metrics with Prometheus collectors.
type Collector struct {
	fetches       *prometheus.CounterVec
	fetchBytes    prometheus.Counter
	fetchDuration prometheus.Histogram

	reads        *prometheus.CounterVec
	readBytes    prometheus.Counter
	readDuration *prometheus.HistogramVec

	merges        *prometheus.CounterVec
	mergeDuration prometheus.Histogram

	resources prometheus.Gauge
}

// New registers the collectors on reg and returns them.
func New(reg prometheus.Registerer) *Collector {
	return &Collector{
		fetches: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartmedia_fetches_total",
				Help: "Total number of fetch units by status",
			},
			[]string{"status"}, // "ok", "error"
		),
		fetchBytes: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "smartmedia_fetch_bytes_total",
				Help: "Total bytes written to backing stores by fetch units",
			},
		),
		fetchDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "smartmedia_fetch_duration_seconds",
				Help:    "Duration of fetch units",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
			},
		),
		reads: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartmedia_reads_total",
				Help: "Total number of reads by path",
			},
			[]string{"path"}, // "hit", "blocked"
		),
		readBytes: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "smartmedia_read_bytes_total",
				Help: "Total bytes returned to readers",
			},
		),
		readDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "smartmedia_read_duration_seconds",
				Help:    "Duration of reads by path",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
			},
			[]string{"path"},
		),
		merges: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartmedia_merges_total",
				Help: "Total number of video/audio merges by status",
			},
			[]string{"status"},
		),
		mergeDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "smartmedia_merge_duration_seconds",
				Help:    "Duration of video/audio merges",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
			},
		),
		resources: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "smartmedia_resources",
				Help: "Number of live resources, including those draining",
			},
		),
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveFetch records a finished fetch unit.
func (c *Collector) ObserveFetch(bytes int64, d time.Duration, err error) {
	if c == nil {
		return
	}
	c.fetches.WithLabelValues(status(err)).Inc()
	c.fetchBytes.Add(float64(bytes))
	c.fetchDuration.Observe(d.Seconds())
}

// ObserveRead records a read. blocked is true when it had to wait for data.
func (c *Collector) ObserveRead(bytes int64, d time.Duration, blocked bool) {
	if c == nil {
		return
	}
	path := "hit"
	if blocked {
		path = "blocked"
	}
	c.reads.WithLabelValues(path).Inc()
	c.readBytes.Add(float64(bytes))
	c.readDuration.WithLabelValues(path).Observe(d.Seconds())
}

// ObserveMerge records a merge.
func (c *Collector) ObserveMerge(d time.Duration, err error) {
	if c == nil {
		return
	}
	c.merges.WithLabelValues(status(err)).Inc()
	c.mergeDuration.Observe(d.Seconds())
}

// SetResources records the number of live resources.
func (c *Collector) SetResources(n int) {
	if c == nil {
		return
	}
	c.resources.Set(float64(n))
}

var _ smartmedia.Metrics = (*Collector)(nil)
