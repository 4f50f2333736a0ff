// Package metrics contains Prometheus instrumentation helpers.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus" // Prometheus metrics.
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus label names.
const (
	LabelMethod     = "method"
	LabelStatusCode = "code"
)

// InstrumentHTTP returns a new HTTP client whose requests are observed
// as Prometheus metrics: a histogram of request durations labeled by
// method and status code, and a gauge of in-flight requests.
//
// If the base client is nil, http.DefaultClient is used.
func InstrumentHTTP(base *http.Client, reg prometheus.Registerer, namespace string, constLabels map[string]string) (*http.Client, error) {
	if base == nil {
		base = http.DefaultClient
	}

	i := &httpInstrumentation{
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   namespace,
				Subsystem:   "http",
				Name:        "request_duration_seconds",
				Help:        "A histogram of HTTP request latencies.",
				Buckets:     prometheus.DefBuckets,
				ConstLabels: constLabels,
			},
			[]string{LabelStatusCode, LabelMethod},
		),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "http",
			Name:        "in_flight_requests",
			Help:        "A gauge of in-flight HTTP requests.",
			ConstLabels: constLabels,
		}),
	}
	if err := reg.Register(i); err != nil {
		return nil, err
	}

	transport := base.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	transport = promhttp.InstrumentRoundTripperDuration(i.duration, transport)
	transport = promhttp.InstrumentRoundTripperInFlight(i.inflight, transport)

	return &http.Client{
		CheckRedirect: base.CheckRedirect,
		Jar:           base.Jar,
		Timeout:       base.Timeout,
		Transport:     transport,
	}, nil
}

type httpInstrumentation struct {
	duration *prometheus.HistogramVec
	inflight prometheus.Gauge
}

// Describe implements the prometheus.Collector interface.
func (i *httpInstrumentation) Describe(c chan<- *prometheus.Desc) {
	i.duration.Describe(c)
	i.inflight.Describe(c)
}

// Collect implements the prometheus.Collector interface.
func (i *httpInstrumentation) Collect(c chan<- prometheus.Metric) {
	i.duration.Collect(c)
	i.inflight.Collect(c)
}
