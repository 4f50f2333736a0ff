package es

import (
	"net/url"
	"strings"

	"github.com/pkg/errors" // Wrap errors with context.
)

// Content types used by the Elasticsearch REST API.
const (
	ContentTypeJSON   = "application/json"
	ContentTypeNDJSON = "application/x-ndjson"
	HeaderContentType = "Content-Type"
)

// RequestSpec describes a single HTTP request against the REST API of a
// running Elasticsearch node. Specs are constructed fresh per call and
// not reused.
type RequestSpec struct {
	// HTTP method, e.g. "GET", "PUT".
	Method string

	// Path relative to the service root. A leading slash is optional.
	Path string

	// URL query parameters.
	Params url.Values

	// Request headers.
	Headers map[string]string

	// Inline request body. Mutually exclusive with BodyFile.
	Body []byte

	// Path of a local file whose contents are sent as the request body,
	// unmodified. Mutually exclusive with Body.
	BodyFile string
}

// Validate checks if the spec describes a sendable request.
func (s *RequestSpec) Validate() error {
	if s.Method == "" {
		return errors.New("missing HTTP method")
	}
	if len(s.Body) > 0 && s.BodyFile != "" {
		return errors.New("inline body and body file are mutually exclusive")
	}
	return nil
}

// URL joins the spec's path and params onto a service base URL.
func (s *RequestSpec) URL(baseURL string) string {
	u := strings.TrimSuffix(baseURL, "/") + "/" + strings.TrimPrefix(s.Path, "/")
	if len(s.Params) > 0 {
		u += "?" + s.Params.Encode()
	}
	return u
}
