package esdev

import (
	"context"
	"io/ioutil"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"go.uber.org/zap/zaptest"

	"github.com/mintel/elasticsearch-dev/internal/pkg/testutil"
	"github.com/mintel/elasticsearch-dev/pkg/es"
	"github.com/mintel/elasticsearch-dev/pkg/lifecycle"
)

// setup sets up zap test logging. It returns a teardown function.
func setup(t *testing.T) func() {
	_, teardown := testutil.TestLogger(t)
	return teardown
}

// fakeRuntime is a lifecycle.Runtime that hands out handles without
// touching Docker, and counts starts and stops.
type fakeRuntime struct {
	url      string
	starts   int
	stops    int
	startErr error
}

func (r *fakeRuntime) Start(ctx context.Context, cfg lifecycle.Config) (*lifecycle.Handle, error) {
	if r.startErr != nil {
		return nil, r.startErr
	}
	r.starts++
	url := r.url
	if url == "" {
		url = "http://127.0.0.1:9200"
	}
	return &lifecycle.Handle{URL: url}, nil
}

func (r *fakeRuntime) Stop(h *lifecycle.Handle) error {
	r.stops++
	return nil
}

// recordedCall is one request a fakeDoer saw.
type recordedCall struct {
	method  string
	path    string
	body    string
	params  url.Values
	headers map[string]string
}

// fakeDoer records every dispatched request. Responses come from the
// respond func when set, otherwise "ok". When failAt is n > 0, the n-th
// call fails with a transport error.
type fakeDoer struct {
	calls   []recordedCall
	respond func(spec *es.RequestSpec) string
	failAt  int
}

func (d *fakeDoer) Do(ctx context.Context, spec *es.RequestSpec) (string, error) {
	body := spec.Body
	if spec.BodyFile != "" {
		var err error
		body, err = ioutil.ReadFile(spec.BodyFile)
		if err != nil {
			return "", err
		}
	}
	d.calls = append(d.calls, recordedCall{
		method:  spec.Method,
		path:    spec.Path,
		body:    string(body),
		params:  spec.Params,
		headers: spec.Headers,
	})
	if d.failAt > 0 && len(d.calls) == d.failAt {
		return "", &es.TransportError{Err: errors.New("connection reset")}
	}
	if d.respond != nil {
		return d.respond(spec), nil
	}
	return "ok", nil
}

// settingsCalls returns the replica-suppression calls the doer saw.
func (d *fakeDoer) settingsCalls() []recordedCall {
	var out []recordedCall
	for _, c := range d.calls {
		if c.method == "PUT" && strings.HasSuffix(c.path, "/_settings") {
			out = append(out, c)
		}
	}
	return out
}

// newTestClient wires a Client to a fake runtime and doer.
func newTestClient(t *testing.T, mode lifecycle.Mode, rt *fakeRuntime, d *fakeDoer) *Client {
	return NewClient(
		Config{Service: lifecycle.Config{Mode: mode}},
		rt,
		SetDial(func(h *lifecycle.Handle) es.Doer { return d }),
		SetLogger(zaptest.NewLogger(t)),
	)
}

// writeTempFile writes contents to a file in a fresh temp dir and
// returns its path plus a cleanup function.
func writeTempFile(t *testing.T, name, contents string) (string, func()) {
	dir, err := ioutil.TempDir("", "esdev-test")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name)
	if err := ioutil.WriteFile(path, []byte(contents), 0644); err != nil {
		os.RemoveAll(dir)
		t.Fatal(err)
	}
	return path, func() { os.RemoveAll(dir) }
}
