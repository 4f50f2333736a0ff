package esdevcli

import (
	"context"
	"strings"

	"github.com/prometheus/client_golang/prometheus" // Prometheus metrics.

	"github.com/mintel/elasticsearch-dev/internal/pkg/metrics"
	"github.com/mintel/elasticsearch-dev/pkg/es"
	"github.com/mintel/elasticsearch-dev/pkg/lifecycle"
)

// Instrumentation holds Prometheus metrics specific to the esdev App.
type Instrumentation struct {
	// Total number of requests dispatched to Elasticsearch, by method.
	RequestsTotal *prometheus.CounterVec

	// Total number of replica-suppression settings updates issued.
	ReplicaSuppressionsTotal prometheus.Counter

	// Total number of Elasticsearch containers started.
	ServiceStartsTotal prometheus.Counter

	// Total number of Elasticsearch containers stopped.
	ServiceStopsTotal prometheus.Counter
}

// NewInstrumentation returns a new Instrumentation.
func NewInstrumentation(namespace string) *Instrumentation {
	return &Instrumentation{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of requests dispatched to Elasticsearch.",
		}, []string{metrics.LabelMethod}),
		ReplicaSuppressionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replica_suppressions_total",
			Help:      "Total number of settings updates zeroing index replicas.",
		}),
		ServiceStartsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "service_starts_total",
			Help:      "Total number of Elasticsearch containers started.",
		}),
		ServiceStopsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "service_stops_total",
			Help:      "Total number of Elasticsearch containers stopped.",
		}),
	}
}

// Describe implements the prometheus.Collector interface.
func (i *Instrumentation) Describe(c chan<- *prometheus.Desc) {
	i.RequestsTotal.Describe(c)
	i.ReplicaSuppressionsTotal.Describe(c)
	i.ServiceStartsTotal.Describe(c)
	i.ServiceStopsTotal.Describe(c)
}

// Collect implements the prometheus.Collector interface.
func (i *Instrumentation) Collect(c chan<- prometheus.Metric) {
	i.RequestsTotal.Collect(c)
	i.ReplicaSuppressionsTotal.Collect(c)
	i.ServiceStartsTotal.Collect(c)
	i.ServiceStopsTotal.Collect(c)
}

// WrapDoer returns a Doer that counts dispatched requests.
func (i *Instrumentation) WrapDoer(d es.Doer) es.Doer {
	return &instrumentedDoer{d: d, inst: i}
}

type instrumentedDoer struct {
	d    es.Doer
	inst *Instrumentation
}

func (w *instrumentedDoer) Do(ctx context.Context, spec *es.RequestSpec) (string, error) {
	w.inst.RequestsTotal.WithLabelValues(spec.Method).Inc()
	if spec.Method == "PUT" && strings.HasSuffix(spec.Path, "/_settings") {
		w.inst.ReplicaSuppressionsTotal.Inc()
	}
	return w.d.Do(ctx, spec)
}

// WrapRuntime returns a Runtime that counts service starts and stops.
func (i *Instrumentation) WrapRuntime(rt lifecycle.Runtime) lifecycle.Runtime {
	return &instrumentedRuntime{rt: rt, inst: i}
}

type instrumentedRuntime struct {
	rt   lifecycle.Runtime
	inst *Instrumentation
}

func (w *instrumentedRuntime) Start(ctx context.Context, cfg lifecycle.Config) (*lifecycle.Handle, error) {
	h, err := w.rt.Start(ctx, cfg)
	if err == nil {
		w.inst.ServiceStartsTotal.Inc()
	}
	return h, err
}

func (w *instrumentedRuntime) Stop(h *lifecycle.Handle) error {
	err := w.rt.Stop(h)
	if err == nil {
		w.inst.ServiceStopsTotal.Inc()
	}
	return err
}
