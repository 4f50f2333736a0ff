package esdev

import (
	"context"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tidwall/gjson"
	"go.uber.org/zap/zaptest"

	"github.com/mintel/elasticsearch-dev/pkg/es"
	"github.com/mintel/elasticsearch-dev/pkg/lifecycle"
)

// artifactServer serves the ELSER model artifact the way the upstream
// model repository does.
func artifactServer(t *testing.T, body string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/elser_model_2.tar.gz" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
}

func newModelTestClient(t *testing.T, rt *fakeRuntime, d *fakeDoer, repoURL, cacheDir string) *Client {
	return NewClient(
		Config{
			Service:       lifecycle.Config{Mode: lifecycle.ModeDev},
			ModelRepoURL:  repoURL,
			ModelCacheDir: cacheDir,
		},
		rt,
		SetDial(func(h *lifecycle.Handle) es.Doer { return d }),
		SetLogger(zaptest.NewLogger(t)),
	)
}

func TestDeployModel(t *testing.T) {
	defer setup(t)()

	srv := artifactServer(t, "model-bytes")
	defer srv.Close()

	cacheDir, err := ioutil.TempDir("", "esdev-models")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(cacheDir)

	rt := &fakeRuntime{}
	d := &fakeDoer{
		respond: func(spec *es.RequestSpec) string {
			switch spec.Path {
			case "_cluster/settings":
				return "R"
			case "_ml/trained_models/" + ElserModelID:
				return "M"
			default:
				return "D"
			}
		},
	}
	c := newModelTestClient(t, rt, d, srv.URL, cacheDir)

	out, err := c.DeployModel(context.Background(), "my-deployment")
	assert.NoError(t, err)
	assert.Equal(t, "RMD", out, "the three HTTP step responses, concatenated in order")

	// Artifact installed into the cache, partial suffix stripped.
	installed, err := ioutil.ReadFile(filepath.Join(cacheDir, "elser_model_2.tar.gz"))
	if assert.NoError(t, err) {
		assert.Equal(t, "model-bytes", string(installed))
	}

	if !assert.Len(t, d.calls, 3) {
		return
	}
	repo := d.calls[0]
	assert.Equal(t, "PUT", repo.method)
	assert.Equal(t, "_cluster/settings", repo.path)
	assert.Equal(t, "file://"+lifecycle.ModelsDir, gjson.Get(repo.body, "persistent.xpack\\.ml\\.model_repository").String())

	create := d.calls[1]
	assert.Equal(t, "PUT", create.method)
	assert.Equal(t, "_ml/trained_models/"+ElserModelID, create.path)
	assert.Equal(t, "text_field", gjson.Get(create.body, "input.field_names.0").String())

	start := d.calls[2]
	assert.Equal(t, "POST", start.method)
	assert.Equal(t, "_ml/trained_models/"+ElserModelID+"/deployment/_start", start.path)
	assert.Equal(t, "started", start.params.Get("wait_for"))
	assert.Equal(t, "200m", start.params.Get("timeout"))
	assert.Equal(t, "my-deployment", start.params.Get("deployment_id"))

	assert.Equal(t, 1, rt.starts, "all steps must reuse one service")
	assert.Equal(t, 1, rt.stops)
}

func TestModelDeploymentStates(t *testing.T) {
	defer setup(t)()

	srv := artifactServer(t, "model-bytes")
	defer srv.Close()

	cacheDir, err := ioutil.TempDir("", "esdev-models")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(cacheDir)

	rt := &fakeRuntime{}
	d := &fakeDoer{}
	c := newModelTestClient(t, rt, d, srv.URL, cacheDir)

	dep := c.newModelDeployment(d, "my-deployment")
	assert.Equal(t, StateNotInstalled, dep.State())

	_, err = dep.run(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, StateDeploymentStarted, dep.State())
}

func TestModelDeploymentHaltsOnFailure(t *testing.T) {
	defer setup(t)()

	srv := artifactServer(t, "model-bytes")
	defer srv.Close()

	cacheDir, err := ioutil.TempDir("", "esdev-models")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(cacheDir)

	rt := &fakeRuntime{}
	// Second HTTP call is the trained-model registration; fail there.
	d := &fakeDoer{failAt: 2}
	c := newModelTestClient(t, rt, d, srv.URL, cacheDir)

	dep := c.newModelDeployment(d, "my-deployment")
	_, err = dep.run(context.Background())
	assert.Error(t, err)
	assert.True(t, es.IsTransport(err))
	assert.Equal(t, StateConfigRepositorySet, dep.State(), "deployment must stay in its last completed state")
}

func TestModelDeploymentDownloadFailure(t *testing.T) {
	defer setup(t)()

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	cacheDir, err := ioutil.TempDir("", "esdev-models")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(cacheDir)

	rt := &fakeRuntime{}
	d := &fakeDoer{}
	c := newModelTestClient(t, rt, d, srv.URL, cacheDir)

	dep := c.newModelDeployment(d, "my-deployment")
	_, err = dep.run(context.Background())
	assert.Error(t, err)
	assert.Equal(t, StateNotInstalled, dep.State())
	assert.Empty(t, d.calls, "no cluster calls before the artifact is fetched")
}
