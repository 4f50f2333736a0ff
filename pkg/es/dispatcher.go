// Package es issues raw requests against the Elasticsearch REST API and
// returns response bodies verbatim. It deliberately is not an Elasticsearch
// client library: status codes are never classified, and bodies are never
// parsed on behalf of the caller.
package es

import (
	"bytes"
	"context"
	"io/ioutil"
	"net/http"
	"net/url"

	"github.com/pkg/errors" // Wrap errors with context.
	"go.uber.org/zap"       // Logging.
)

// Doer issues one request against a running Elasticsearch endpoint.
type Doer interface {
	Do(ctx context.Context, spec *RequestSpec) (string, error)
}

// Dispatcher sends raw HTTP requests to a single Elasticsearch node.
// The response body text is returned for any HTTP status; a 404 or 500
// body comes back the same way a 200 body does. Errors are returned only
// when the request cannot be sent at all (TransportError) or exceeds its
// deadline (TimeoutError).
type Dispatcher struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewDispatcher returns a Dispatcher that sends requests to the service
// rooted at baseURL. If client is nil, http.DefaultClient is used.
func NewDispatcher(baseURL string, client *http.Client) *Dispatcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Dispatcher{
		baseURL: baseURL,
		client:  client,
		logger:  zap.L().Named("Dispatcher"),
	}
}

// Do implements the Doer interface.
func (d *Dispatcher) Do(ctx context.Context, spec *RequestSpec) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", errors.Wrap(err, "invalid request spec")
	}

	body := spec.Body
	if spec.BodyFile != "" {
		var err error
		body, err = ioutil.ReadFile(spec.BodyFile)
		if err != nil {
			return "", errors.Wrapf(err, "error reading body file %s", spec.BodyFile)
		}
	}

	req, err := http.NewRequest(spec.Method, spec.URL(d.baseURL), bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "error building request")
	}
	req = req.WithContext(ctx)
	for k, v := range spec.Headers {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", classifySendError(spec, err)
	}
	defer resp.Body.Close()

	text, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return "", &TransportError{Err: err}
	}

	d.logger.Debug("dispatched request",
		zap.String("method", spec.Method),
		zap.String("path", spec.Path),
		zap.Int("status", resp.StatusCode),
	)
	return string(text), nil
}

// classifySendError sorts a client.Do error into the error taxonomy.
func classifySendError(spec *RequestSpec, err error) error {
	op := spec.Method + " " + spec.Path
	if uerr, ok := err.(*url.Error); ok {
		if uerr.Timeout() {
			return &TimeoutError{Op: op, Err: err}
		}
		err = uerr.Err
	}
	if err == context.DeadlineExceeded {
		return &TimeoutError{Op: op, Err: err}
	}
	return &TransportError{Err: err}
}
