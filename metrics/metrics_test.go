package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.ObserveFetch(1000, time.Millisecond, nil)
	c.ObserveFetch(0, time.Millisecond, errors.New("boom"))
	c.ObserveRead(100, time.Microsecond, false)
	c.ObserveRead(50, time.Millisecond, true)
	c.ObserveRead(50, time.Millisecond, true)
	c.ObserveMerge(time.Second, nil)
	c.SetResources(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.fetches.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.fetches.WithLabelValues("error")))
	assert.Equal(t, 1000.0, testutil.ToFloat64(c.fetchBytes))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.reads.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.reads.WithLabelValues("blocked")))
	assert.Equal(t, 200.0, testutil.ToFloat64(c.readBytes))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.merges.WithLabelValues("ok")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.resources))

	assert.Equal(t, 1, testutil.CollectAndCount(c.fetchDuration))
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ObserveFetch(1, time.Second, nil)
		c.ObserveRead(1, time.Second, true)
		c.ObserveMerge(time.Second, nil)
		c.SetResources(1)
	})
}
