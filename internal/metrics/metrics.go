package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the deployment pipeline
type Metrics struct {
	Deployments      *prometheus.CounterVec
	DeployDuration   prometheus.Histogram
	LifecycleActions *prometheus.CounterVec
	RuntimeCalls     *prometheus.CounterVec
	BalanceChecks    *prometheus.CounterVec
	Uploads          *prometheus.CounterVec
}

var (
	globalMetrics *Metrics
	initOnce      sync.Once
)

// Init registers the collectors with the default registry. Safe to call more than once.
func Init() *Metrics {
	initOnce.Do(func() {
		globalMetrics = &Metrics{
			// outcome is "success" or an error kind
			Deployments: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "agentgen_deployments_total",
				Help: "Total number of deployment attempts by outcome",
			}, []string{"outcome"}),

			DeployDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "agentgen_deploy_duration_seconds",
				Help:    "End-to-end deployment pipeline latency in seconds",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
			}),

			LifecycleActions: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "agentgen_lifecycle_actions_total",
				Help: "Total number of start/stop/remove actions by outcome",
			}, []string{"action", "outcome"}),

			RuntimeCalls: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "agentgen_runtime_calls_total",
				Help: "Total number of deployment-runtime calls by endpoint and outcome",
			}, []string{"endpoint", "outcome"}),

			BalanceChecks: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "agentgen_balance_checks_total",
				Help: "Total number of admission balance checks by result",
			}, []string{"result"}), // passed, insufficient, error, bypassed

			Uploads: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "agentgen_storage_uploads_total",
				Help: "Total number of artifact uploads by kind and outcome",
			}, []string{"kind", "outcome"}),
		}
	})
	return globalMetrics
}

// Get returns the global metrics instance, nil before Init
func Get() *Metrics {
	return globalMetrics
}

// RecordDeployment counts a finished deployment attempt
func RecordDeployment(outcome string, seconds float64) {
	if m := globalMetrics; m != nil {
		m.Deployments.WithLabelValues(outcome).Inc()
		m.DeployDuration.Observe(seconds)
	}
}

func RecordLifecycle(action, outcome string) {
	if m := globalMetrics; m != nil {
		m.LifecycleActions.WithLabelValues(action, outcome).Inc()
	}
}

func RecordRuntimeCall(endpoint, outcome string) {
	if m := globalMetrics; m != nil {
		m.RuntimeCalls.WithLabelValues(endpoint, outcome).Inc()
	}
}

func RecordBalanceCheck(result string) {
	if m := globalMetrics; m != nil {
		m.BalanceChecks.WithLabelValues(result).Inc()
	}
}

func RecordUpload(kind, outcome string) {
	if m := globalMetrics; m != nil {
		m.Uploads.WithLabelValues(kind, outcome).Inc()
	}
}
