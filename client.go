// Package esdev runs a disposable single-node Elasticsearch for development
// and CI, and issues raw REST calls against it. Every operation starts the
// service, uses it, and stops it again; response bodies come back verbatim,
// whatever their HTTP status.
package esdev

import (
	"context"
	"io/ioutil"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors" // Wrap errors with context.
	"go.uber.org/zap"       // Logging.

	"github.com/mintel/elasticsearch-dev/pkg/es"
	"github.com/mintel/elasticsearch-dev/pkg/lifecycle"
)

// DefaultRequestTimeout is the per-request deadline applied when Config
// leaves RequestTimeout unset.
const DefaultRequestTimeout = 30 * time.Second

// Config configures a Client.
type Config struct {
	// Service describes the Elasticsearch container each operation runs.
	Service lifecycle.Config

	// RequestTimeout is the deadline applied to each individual request.
	// Zero means DefaultRequestTimeout; negative disables the deadline.
	RequestTimeout time.Duration

	// ModelCacheDir is where DeployModel downloads model artifacts. The
	// container must see the artifacts at lifecycle.ModelsDir, so the
	// cache dir and Service.ModelsVolume always point at the same host
	// directory; see withModelCache for how the two are reconciled.
	ModelCacheDir string

	// ModelRepoURL is the base URL model artifacts are fetched from.
	ModelRepoURL string
}

// Client exposes the development/CI Elasticsearch operations. Each
// top-level call starts a fresh service container, uses it, and stops it;
// compound operations (the semantic-search pipeline, model deployment)
// reuse one container across all of their steps.
type Client struct {
	cfg     Config
	runtime lifecycle.Runtime
	dial    func(h *lifecycle.Handle) es.Doer
	logger  *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// SetDial overrides how a Client turns a service handle into a request
// dispatcher. Mostly useful for testing.
func SetDial(dial func(h *lifecycle.Handle) es.Doer) ClientOption {
	return func(c *Client) {
		c.dial = dial
	}
}

// SetLogger overrides the Client's logger.
func SetLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// withModelCache reconciles ModelCacheDir with the models mount source.
// Model artifacts are downloaded on the host but registered against the
// container-side lifecycle.ModelsDir, so both must resolve to the same
// host directory: an explicit cache dir becomes the mount source, an
// absolute mount source doubles as the cache dir, and with neither set
// both default to a shared directory under the system temp dir. A named
// Docker volume cannot serve as a download target, which is why it
// yields to the default here.
func (cfg Config) withModelCache() Config {
	switch {
	case cfg.ModelCacheDir != "":
		cfg.Service.ModelsVolume = cfg.ModelCacheDir
	case filepath.IsAbs(cfg.Service.ModelsVolume):
		cfg.ModelCacheDir = cfg.Service.ModelsVolume
	default:
		cfg.ModelCacheDir = filepath.Join(os.TempDir(), "esdev-models")
		cfg.Service.ModelsVolume = cfg.ModelCacheDir
	}
	return cfg
}

// NewClient returns a new Client.
func NewClient(cfg Config, runtime lifecycle.Runtime, options ...ClientOption) *Client {
	cfg = cfg.withModelCache()
	c := &Client{
		cfg:     cfg,
		runtime: runtime,
		dial: func(h *lifecycle.Handle) es.Doer {
			// Secure-mode nodes present a self-signed certificate.
			var hc *http.Client
			if cfg.Service.Mode == lifecycle.ModeSecure {
				hc = lifecycle.InsecureHTTPClient()
			}
			return es.NewDispatcher(h.URL, hc)
		},
		logger: zap.L().Named("Client"),
	}
	for _, o := range options {
		o(c)
	}
	return c
}

// withService starts the service, runs fn against it, and stops the
// service on every exit path.
func (c *Client) withService(ctx context.Context, fn func(ctx context.Context, d es.Doer) error) error {
	h, err := c.runtime.Start(ctx, c.cfg.Service)
	if err != nil {
		return err
	}
	defer func() {
		if serr := c.runtime.Stop(h); serr != nil {
			c.logger.Warn("error stopping elasticsearch service", zap.Error(serr))
		}
	}()
	return fn(ctx, c.dial(h))
}

// do dispatches one request under the configured per-request deadline.
func (c *Client) do(ctx context.Context, d es.Doer, spec *es.RequestSpec) (string, error) {
	timeout := c.cfg.RequestTimeout
	if timeout == 0 {
		timeout = DefaultRequestTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return d.Do(ctx, spec)
}

func (c *Client) devMode() bool {
	return c.cfg.Service.Mode == "" || c.cfg.Service.Mode == lifecycle.ModeDev
}

// suppressReplicas zeroes the replica count for target ("_all" or an index
// name) so a single-node cluster doesn't sit yellow waiting for replicas
// it can never allocate. No-op outside dev mode. Best effort: a failure
// here is logged and swallowed so it can never mask the primary
// operation's result.
func (c *Client) suppressReplicas(ctx context.Context, d es.Doer, target string) {
	if !c.devMode() {
		return
	}
	body := mustJSON(map[string]map[string]string{
		"index": {"number_of_replicas": "0"},
	})
	_, err := c.do(ctx, d, &es.RequestSpec{
		Method:  "PUT",
		Path:    target + "/_settings",
		Params:  pretty(),
		Headers: map[string]string{es.HeaderContentType: es.ContentTypeJSON},
		Body:    body,
	})
	if err != nil {
		c.logger.Warn("error disabling index replicas",
			zap.String("target", target),
			zap.Error(err),
		)
	}
}

// Get sends a GET request for path and returns the response body. In dev
// mode, replica suppression for all indices is applied first; its
// response is discarded.
func (c *Client) Get(ctx context.Context, path string) (string, error) {
	var out string
	err := c.withService(ctx, func(ctx context.Context, d es.Doer) error {
		c.suppressReplicas(ctx, d, "_all")
		body, err := c.do(ctx, d, &es.RequestSpec{
			Method: "GET",
			Path:   path,
		})
		out = body
		return err
	})
	return out, err
}

// Delete deletes an index and returns the response body.
func (c *Client) Delete(ctx context.Context, index string) (string, error) {
	var out string
	err := c.withService(ctx, func(ctx context.Context, d es.Doer) error {
		body, err := c.do(ctx, d, &es.RequestSpec{
			Method: "DELETE",
			Path:   index,
		})
		out = body
		return err
	})
	return out, err
}

// IndexDocument indexes the contents of a local file as one document in
// index, then applies replica suppression for that index in dev mode.
func (c *Client) IndexDocument(ctx context.Context, file, index string) (string, error) {
	var out string
	err := c.withService(ctx, func(ctx context.Context, d es.Doer) error {
		body, err := c.do(ctx, d, &es.RequestSpec{
			Method:   "POST",
			Path:     index + "/_doc",
			Params:   pretty(),
			Headers:  map[string]string{es.HeaderContentType: es.ContentTypeNDJSON},
			BodyFile: file,
		})
		if err != nil {
			return err
		}
		c.suppressReplicas(ctx, d, index)
		out = body
		return nil
	})
	return out, err
}

// IndexBulk loads documents from a local file through the _bulk API.
//
// With an empty index, the file must already be in bulk format and is
// passed through unmodified; replica suppression then targets all
// indices. With an index name, the file must hold a plain JSON array of
// documents, which is converted to bulk format targeting that index.
func (c *Client) IndexBulk(ctx context.Context, file, index string) (string, error) {
	spec := &es.RequestSpec{
		Method:  "POST",
		Path:    "_bulk",
		Params:  pretty(),
		Headers: map[string]string{es.HeaderContentType: es.ContentTypeNDJSON},
	}
	target := "_all"
	if index == "" {
		spec.BodyFile = file
	} else {
		raw, err := ioutil.ReadFile(file)
		if err != nil {
			return "", errors.Wrapf(err, "error reading bulk payload %s", file)
		}
		body, err := es.ToBulkFormat(raw, index)
		if err != nil {
			return "", err
		}
		spec.Body = []byte(body)
		target = index
	}

	var out string
	err := c.withService(ctx, func(ctx context.Context, d es.Doer) error {
		body, err := c.do(ctx, d, spec)
		if err != nil {
			return err
		}
		c.suppressReplicas(ctx, d, target)
		out = body
		return nil
	})
	return out, err
}

// Search runs a match query for query against field in index and returns
// the raw response body.
func (c *Client) Search(ctx context.Context, index, field, query string) (string, error) {
	body := mustJSON(map[string]interface{}{
		"query": map[string]interface{}{
			"match": map[string]string{field: query},
		},
	})

	var out string
	err := c.withService(ctx, func(ctx context.Context, d es.Doer) error {
		resp, err := c.do(ctx, d, &es.RequestSpec{
			Method:  "POST",
			Path:    index + "/_search",
			Params:  pretty(),
			Headers: map[string]string{es.HeaderContentType: es.ContentTypeJSON},
			Body:    body,
		})
		out = resp
		return err
	})
	return out, err
}

// pretty returns the query params for human-readable JSON responses.
func pretty() url.Values {
	p := url.Values{}
	p.Set("pretty", "true")
	return p
}
