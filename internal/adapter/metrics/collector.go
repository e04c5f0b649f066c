// Package metrics exposes the audit metrics of a features root in the
// Prometheus exposition format.
package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Strob0t/sddflow/internal/service"
)

const namespace = "sddflow"

// scrapeTimeout bounds one audit scan during a scrape.
const scrapeTimeout = 10 * time.Second

// ComputeFunc returns the current audit metrics.
type ComputeFunc func(ctx context.Context) (*service.AuditMetrics, error)

// AuditCollector computes the audit metrics on every scrape.
type AuditCollector struct {
	compute ComputeFunc

	features      *prometheus.Desc
	routes        *prometheus.Desc
	reworks       *prometheus.Desc
	handovers     *prometheus.Desc
	comparisons   *prometheus.Desc
	disagreements *prometheus.Desc
	rate          *prometheus.Desc
	scrapeError   *prometheus.Desc
}

var _ prometheus.Collector = (*AuditCollector)(nil)

// NewAuditCollector creates a collector backed by compute.
func NewAuditCollector(compute ComputeFunc) *AuditCollector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "audit", name), help, labels, nil)
	}
	return &AuditCollector{
		compute:       compute,
		features:      desc("features_scanned", "Feature directories scanned."),
		routes:        desc("routes", "Routing decisions by route.", "route"),
		reworks:       desc("rework_events_completed", "Completed design rework executions."),
		handovers:     desc("handover_events", "Handover notes written."),
		comparisons:   desc("comparisons", "Phases with both an automated and a human decision."),
		disagreements: desc("disagreements", "Compared phases where the decisions differ."),
		rate:          desc("disagreement_rate", "Disagreements divided by comparisons."),
		scrapeError:   desc("scrape_error", "1 if the last audit scan failed."),
	}
}

// Describe implements prometheus.Collector.
func (c *AuditCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{c.features, c.routes, c.reworks, c.handovers, c.comparisons, c.disagreements, c.rate, c.scrapeError} {
		ch <- d
	}
}

// Collect implements prometheus.Collector. The rate is omitted while nothing
// has been compared.
func (c *AuditCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), scrapeTimeout)
	defer cancel()

	m, err := c.compute(ctx)
	if err != nil {
		slog.Error("audit metrics scrape failed", "error", err)
		ch <- prometheus.MustNewConstMetric(c.scrapeError, prometheus.GaugeValue, 1)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.scrapeError, prometheus.GaugeValue, 0)
	ch <- prometheus.MustNewConstMetric(c.features, prometheus.GaugeValue, float64(m.FeaturesScanned))
	for route, n := range m.RouteDistribution {
		ch <- prometheus.MustNewConstMetric(c.routes, prometheus.GaugeValue, float64(n), route)
	}
	ch <- prometheus.MustNewConstMetric(c.reworks, prometheus.GaugeValue, float64(m.ReworkEventsCompleted))
	ch <- prometheus.MustNewConstMetric(c.handovers, prometheus.GaugeValue, float64(m.HandoverEvents))
	ch <- prometheus.MustNewConstMetric(c.comparisons, prometheus.GaugeValue, float64(m.AuditComparisons))
	ch <- prometheus.MustNewConstMetric(c.disagreements, prometheus.GaugeValue, float64(m.AuditDisagreements))
	if m.AuditDisagreementRate != nil {
		ch <- prometheus.MustNewConstMetric(c.rate, prometheus.GaugeValue, *m.AuditDisagreementRate)
	}
}

// NewRegistry returns a registry holding the audit collector and the Go
// runtime collectors.
func NewRegistry(compute ComputeFunc) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		NewAuditCollector(compute),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the registry.
func Handler(reg prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
