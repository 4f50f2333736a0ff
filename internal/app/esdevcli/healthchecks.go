package esdevcli

import (
	"context"
	"sync"
	"time"

	"github.com/mintel/healthcheck" // Healthchecks framework.
	elastic "github.com/olivere/elastic/v7"
	gocache "github.com/patrickmn/go-cache" // TTL cache.
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus" // Prometheus metrics.
)

const (
	// How long a cluster health probe result is reused before the node
	// is probed again. Healthcheck endpoints get polled far more often
	// than the answer can change.
	healthProbeTTL = 15 * time.Second

	healthProbeKey = "cluster-health"
)

// Healthchecks is the healthchecks HTTP handler for the serve command.
type Healthchecks struct {
	Handler healthcheck.Handler

	mu         sync.RWMutex
	serviceURL string

	cache *gocache.Cache
}

// NewHealthchecks returns a new Healthchecks.
func NewHealthchecks(r prometheus.Registerer, namespace string) *Healthchecks {
	h := &Healthchecks{
		Handler: healthcheck.NewMetricsHandler(r, namespace),
		cache:   gocache.New(healthProbeTTL, time.Minute),
	}

	h.Handler.AddLivenessCheck("alive", func() error { return nil })
	h.Handler.AddReadinessCheck("elasticsearch-reachable", h.probe)

	return h
}

// SetServiceURL marks the service as started and points the readiness
// probe at it.
func (h *Healthchecks) SetServiceURL(url string) {
	h.mu.Lock()
	h.serviceURL = url
	h.mu.Unlock()
}

// probe checks that the cluster answers a health request and is not red.
// Results are cached for healthProbeTTL.
func (h *Healthchecks) probe() error {
	h.mu.RLock()
	url := h.serviceURL
	h.mu.RUnlock()
	if url == "" {
		return errors.New("elasticsearch service not yet started")
	}

	if cached, ok := h.cache.Get(healthProbeKey); ok {
		if err, isErr := cached.(error); isErr {
			return err
		}
		return nil
	}

	err := h.probeOnce(url)
	if err != nil {
		h.cache.Set(healthProbeKey, err, gocache.DefaultExpiration)
		return err
	}
	h.cache.Set(healthProbeKey, true, gocache.DefaultExpiration)
	return nil
}

func (h *Healthchecks) probeOnce(url string) error {
	client, err := elastic.NewSimpleClient(elastic.SetURL(url))
	if err != nil {
		return errors.Wrap(err, "error creating Elasticsearch client")
	}
	defer client.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	resp, err := client.ClusterHealth().Do(ctx)
	if err != nil {
		return errors.Wrap(err, "error getting cluster health")
	}
	if resp.Status == "red" {
		return errors.New("cluster status is red")
	}
	return nil
}
