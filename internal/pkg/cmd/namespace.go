package cmd

import (
	"github.com/prometheus/client_golang/prometheus" // Prometheus metrics.
)

// Namespace is the namespace used for Prometheus metrics throughout
// elasticsearch-dev.
const Namespace = "elasticsearchdev"

// BuildPromFQName builds a fully-qualified Prometheus metric name under
// the repo-wide namespace.
func BuildPromFQName(subsystem, name string) string {
	return prometheus.BuildFQName(Namespace, subsystem, name)
}
