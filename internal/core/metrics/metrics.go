// Package metrics holds the prometheus collectors for the policy engine
// service.
//
// Metrics:
//   - policysmith_requests_total: gRPC requests by method and status code
//   - policysmith_request_duration_seconds: gRPC request latency by method
//   - policysmith_rules_considered_total: rules considered by policy and outcome
//   - policysmith_documents_generated_total: generated documents by policy
//   - policysmith_document_gaps_total: missing clauses, dropped mandatory
//     clauses and unresolved variables by policy and kind
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/solatis/policysmith/internal/types"
)

const namespace = "policysmith"

// Collector owns a registry and the service collectors.
type Collector struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	rules           *prometheus.CounterVec
	documents       *prometheus.CounterVec
	gaps            *prometheus.CounterVec
}

// New creates and registers the collectors. A nil registry gets a fresh one.
func New(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: registry,
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of gRPC requests",
			},
			[]string{"method", "code"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Duration of gRPC requests in seconds",
				// Engine runs are in-memory; most finish well under 50ms
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
			},
			[]string{"method"},
		),
		rules: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rules_considered_total",
				Help:      "Rules considered by the rule engine",
			},
			[]string{"policy", "outcome"},
		),
		documents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "documents_generated_total",
				Help:      "Documents generated",
			},
			[]string{"policy"},
		),
		gaps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "document_gaps_total",
				Help:      "Gaps reported in generated documents",
			},
			[]string{"policy", "kind"},
		),
	}

	registry.MustRegister(c.requests, c.requestDuration, c.rules, c.documents, c.gaps)
	return c
}

// ObserveRequest records one finished gRPC request.
func (c *Collector) ObserveRequest(method, code string, d time.Duration) {
	c.requests.WithLabelValues(method, code).Inc()
	c.requestDuration.WithLabelValues(method).Observe(d.Seconds())
}

// ObserveRules records the rules_fired trail of one engine run.
func (c *Collector) ObserveRules(policy string, fired []types.RuleFired) {
	var met, notMet float64
	for _, f := range fired {
		if f.ConditionMet {
			met++
		} else {
			notMet++
		}
	}
	if met > 0 {
		c.rules.WithLabelValues(policy, "fired").Add(met)
	}
	if notMet > 0 {
		c.rules.WithLabelValues(policy, "not_fired").Add(notMet)
	}
}

// ObserveDocument records one generated document and its gaps.
func (c *Collector) ObserveDocument(policy string, missing, dropped, unresolved int) {
	c.documents.WithLabelValues(policy).Inc()
	if missing > 0 {
		c.gaps.WithLabelValues(policy, "missing_clause").Add(float64(missing))
	}
	if dropped > 0 {
		c.gaps.WithLabelValues(policy, "dropped_mandatory").Add(float64(dropped))
	}
	if unresolved > 0 {
		c.gaps.WithLabelValues(policy, "unresolved_variable").Add(float64(unresolved))
	}
}

// Handler returns the /metrics HTTP handler for the registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
