// Package lifecycle starts and stops single-node Elasticsearch containers
// for development and CI use. It owns the start/use/stop contract around the
// Elasticsearch process; everything that happens over HTTP once the node is
// up belongs to pkg/es.
package lifecycle

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"

	"github.com/cenkalti/backoff" // Exponential backoff.
	"github.com/google/uuid"      // Unique container names.
	elastic "github.com/olivere/elastic/v7"
	"github.com/ory/dockertest" // Docker container runtime.
	"github.com/ory/dockertest/docker"
	"github.com/pkg/errors" // Wrap errors with context.
	"go.uber.org/zap"       // Logging.

	"github.com/mintel/elasticsearch-dev/pkg/es"
)

// Runtime starts and stops Elasticsearch service containers.
type Runtime interface {
	Start(ctx context.Context, cfg Config) (*Handle, error)
	Stop(h *Handle) error
}

// Handle is an opaque reference to a running Elasticsearch container.
// A Handle is created by Start, destroyed by Stop, and must not be used
// after Stop. Exactly one Stop per successful Start.
type Handle struct {
	// Base URL of the HTTP API, reachable from the host.
	URL string

	resource *dockertest.Resource
}

// ServiceStartError indicates the container runtime failed to launch the
// Elasticsearch process.
type ServiceStartError struct {
	Err error
}

func (e *ServiceStartError) Error() string {
	return "error starting elasticsearch service: " + e.Err.Error()
}

// Cause returns the underlying error.
func (e *ServiceStartError) Cause() error {
	return e.Err
}

// IsServiceStart returns true if any error in err's cause chain is a
// ServiceStartError.
func IsServiceStart(err error) bool {
	for err != nil {
		if _, ok := err.(*ServiceStartError); ok {
			return true
		}
		c, ok := err.(interface {
			Cause() error
		})
		if !ok {
			return false
		}
		err = c.Cause()
	}
	return false
}

// Manager runs Elasticsearch containers on a local Docker daemon.
type Manager struct {
	pool   *dockertest.Pool
	logger *zap.Logger
}

// NewManager returns a Manager connected to the Docker daemon at endpoint.
// An empty endpoint selects the default daemon socket.
func NewManager(endpoint string) (*Manager, error) {
	pool, err := dockertest.NewPool(endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "error connecting to Docker")
	}
	return &Manager{
		pool:   pool,
		logger: zap.L().Named("lifecycle.Manager"),
	}, nil
}

// Start launches a single-node Elasticsearch container per cfg and waits
// for the HTTP API to accept requests, up to cfg.StartTimeout. Security
// and TLS are disabled when cfg.Mode is ModeDev and left enabled
// otherwise. The data and ML model mounts persist across invocations that
// share the same volume names.
func (m *Manager) Start(ctx context.Context, cfg Config) (*Handle, error) {
	cfg = cfg.withDefaults()

	name := "esdev-" + uuid.New().String()[:8]
	port := fmt.Sprintf("%d/tcp", cfg.Port)
	res, err := m.pool.RunWithOptions(&dockertest.RunOptions{
		Hostname:     name,
		Name:         name,
		Repository:   cfg.Repository,
		Tag:          cfg.Version,
		ExposedPorts: []string{port},
		Env: []string{
			"discovery.type=single-node",
			fmt.Sprintf("xpack.security.enabled=%t", cfg.Mode != ModeDev),
			fmt.Sprintf("xpack.security.http.ssl.enabled=%t", cfg.Mode != ModeDev),
			"xpack.license.self_generated.type=trial",
			"ES_JAVA_OPTS=" + cfg.JavaOpts,
		},
		Mounts: []string{
			cfg.DataVolume + ":" + DataDir,
			cfg.ModelsVolume + ":" + ModelsDir,
		},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.Ulimits = []docker.ULimit{
			{Name: "nofile", Soft: 65536, Hard: 65536},
			{Name: "memlock", Soft: -1, Hard: -1},
		}
	})
	if err != nil {
		return nil, &ServiceStartError{Err: err}
	}

	scheme := "http"
	if cfg.Mode != ModeDev {
		scheme = "https"
	}
	h := &Handle{
		URL:      scheme + "://" + res.GetHostPort(port),
		resource: res,
	}

	m.logger.Info("started elasticsearch container",
		zap.String("name", name),
		zap.String("url", h.URL),
		zap.String("mode", string(cfg.Mode)),
	)

	if err := m.awaitReady(ctx, cfg, h); err != nil {
		if serr := m.Stop(h); serr != nil {
			m.logger.Warn("error stopping unready container", zap.Error(serr))
		}
		return nil, err
	}
	return h, nil
}

// Stop releases the container behind h. It must be called exactly once
// per successful Start, on every exit path.
func (m *Manager) Stop(h *Handle) error {
	if h == nil || h.resource == nil {
		return errors.New("service already stopped")
	}
	err := m.pool.Purge(h.resource)
	h.resource = nil
	return errors.Wrap(err, "error stopping elasticsearch service")
}

// awaitReady polls the node until it answers HTTP requests or the start
// deadline passes.
func (m *Manager) awaitReady(ctx context.Context, cfg Config, h *Handle) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = cfg.StartTimeout

	var probe func() error
	if cfg.Mode == ModeDev {
		probe = func() error { return pingOnce(ctx, h.URL) }
	} else {
		// With security on, an unauthenticated ping gets a 401; any HTTP
		// response at all proves the node is up.
		probe = func() error { return rawProbe(ctx, h.URL) }
	}

	if err := backoff.Retry(probe, backoff.WithContext(b, ctx)); err != nil {
		if ctx.Err() == context.Canceled {
			return errors.Wrap(err, "start canceled")
		}
		return &es.TimeoutError{Op: "waiting for elasticsearch to become reachable", Err: err}
	}
	return nil
}

func pingOnce(ctx context.Context, url string) error {
	client, err := elastic.NewSimpleClient(elastic.SetURL(url))
	if err != nil {
		return err
	}
	defer client.Stop()
	_, _, err = client.Ping(url).Do(ctx)
	return err
}

// InsecureHTTPClient returns an HTTP client that skips TLS certificate
// verification. Secure-mode nodes present a self-signed certificate from
// the self-generated trial license, so verification cannot succeed
// without provisioning a CA.
func InsecureHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
}

func rawProbe(ctx context.Context, url string) error {
	client := InsecureHTTPClient()
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return err
	}
	return resp.Body.Close()
}
