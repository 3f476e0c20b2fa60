package prometheus

import (
	"github.com/mk070/zenauth"
	"github.com/mk070/zenauth/metrics/export/internaldefs"
	"github.com/prometheus/client_golang/prometheus"
)

type metricsSource interface {
	MetricsSnapshot() zenauth.MetricsSnapshot
	AuditDropped() uint64
}

// Collector exposes engine metrics as a [prometheus.Collector]. Every scrape
// takes one snapshot; nothing is buffered between scrapes.
type Collector struct {
	source       metricsSource
	counters     []*prometheus.Desc
	histograms   []*prometheus.Desc
	auditDropped *prometheus.Desc
	bounds       []float64
}

// NewCollector returns a Collector reading from engine.
func NewCollector(engine *zenauth.Engine) *Collector {
	return NewCollectorFromSource(engine)
}

// NewCollectorFromSource returns a Collector over any snapshot source.
func NewCollectorFromSource(source metricsSource) *Collector {
	c := &Collector{
		source:       source,
		counters:     make([]*prometheus.Desc, 0, len(internaldefs.CounterDefs)),
		histograms:   make([]*prometheus.Desc, 0, len(internaldefs.HistogramDefs)),
		auditDropped: prometheus.NewDesc(internaldefs.AuditDroppedName, "Audit events dropped by dispatcher backpressure.", nil, nil),
		bounds:       zenauth.MetricBucketBounds(),
	}
	for _, def := range internaldefs.CounterDefs {
		c.counters = append(c.counters, prometheus.NewDesc(def.Name, def.Help, nil, nil))
	}
	for _, def := range internaldefs.HistogramDefs {
		c.histograms = append(c.histograms, prometheus.NewDesc(def.Name, def.Help, nil, nil))
	}
	return c
}

// Register adds a Collector for engine to reg.
func Register(reg prometheus.Registerer, engine *zenauth.Engine) (*Collector, error) {
	c := NewCollector(engine)
	if err := reg.Register(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.counters {
		ch <- d
	}
	for _, d := range c.histograms {
		ch <- d
	}
	ch <- c.auditDropped
}

// Collect emits the counters and histograms present in the snapshot, so a
// disabled registry exports only the audit drop counter.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.source == nil {
		return
	}
	snapshot := c.source.MetricsSnapshot()

	for i, def := range internaldefs.CounterDefs {
		v, ok := snapshot.Counters[def.ID]
		if !ok {
			continue
		}
		ch <- prometheus.MustNewConstMetric(c.counters[i], prometheus.CounterValue, float64(v))
	}

	for i, def := range internaldefs.HistogramDefs {
		h, ok := snapshot.Histograms[def.ID]
		if !ok {
			continue
		}
		cumulative := internaldefs.Cumulative(h.Buckets)
		buckets := make(map[float64]uint64, len(c.bounds))
		for j, bound := range c.bounds {
			buckets[bound] = cumulative[j]
		}
		ch <- prometheus.MustNewConstHistogram(c.histograms[i],
			cumulative[len(cumulative)-1], h.Sum.Seconds(), buckets)
	}

	ch <- prometheus.MustNewConstMetric(c.auditDropped, prometheus.CounterValue, float64(c.source.AuditDropped()))
}
