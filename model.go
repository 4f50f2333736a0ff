package esdev

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/looplab/fsm" // Finite state machine.
	"github.com/pkg/errors"  // Wrap errors with context.
	"go.uber.org/zap"        // Logging.

	"github.com/mintel/elasticsearch-dev/pkg/es"
	"github.com/mintel/elasticsearch-dev/pkg/lifecycle"
)

// DefaultModelRepoURL is where model artifacts are downloaded from when
// Config.ModelRepoURL is unset.
const DefaultModelRepoURL = "https://ml-models.elastic.co"

// Model deployment states, in order. A failed transition leaves the
// deployment in its last completed state; there is no retry and no
// automatic recovery.
const (
	StateNotInstalled        = "not_installed"
	StateDownloading         = "downloading"
	StateInstalled           = "installed"
	StateConfigRepositorySet = "config_repository_set"
	StateModelCreated        = "model_created"
	StateDeploymentStarted   = "deployment_started"
)

// modelDeployment walks the ELSER model through download, registration,
// and deployment against one running service. Every transition is a
// single HTTP or file-fetch call.
type modelDeployment struct {
	d            es.Doer
	do           func(ctx context.Context, d es.Doer, spec *es.RequestSpec) (string, error)
	httpClient   *http.Client
	repoURL      string
	cacheDir     string
	deploymentID string

	state *fsm.FSM
	log   *zap.Logger

	// Per-run call context and accumulated response text. Set by run;
	// the fsm callbacks can't take arguments.
	ctx     context.Context
	out     strings.Builder
	tmpPath string
}

func (c *Client) newModelDeployment(d es.Doer, deploymentID string) *modelDeployment {
	m := &modelDeployment{
		d:            d,
		do:           c.do,
		httpClient:   http.DefaultClient,
		repoURL:      c.cfg.ModelRepoURL,
		cacheDir:     c.cfg.ModelCacheDir,
		deploymentID: deploymentID,
		log:          c.logger.Named("ModelDeployment"),
	}
	if m.repoURL == "" {
		m.repoURL = DefaultModelRepoURL
	}
	m.state = fsm.NewFSM(
		StateNotInstalled,
		[]fsm.EventDesc{
			{Name: "download", Src: []string{StateNotInstalled}, Dst: StateDownloading},
			{Name: "install", Src: []string{StateDownloading}, Dst: StateInstalled},
			{Name: "set_repository", Src: []string{StateInstalled}, Dst: StateConfigRepositorySet},
			{Name: "create_model", Src: []string{StateConfigRepositorySet}, Dst: StateModelCreated},
			{Name: "start_deployment", Src: []string{StateModelCreated}, Dst: StateDeploymentStarted},
		},
		map[string]fsm.Callback{
			"before_download":         m.beforeDownload,
			"before_install":          m.beforeInstall,
			"before_set_repository":   m.beforeSetRepository,
			"before_create_model":     m.beforeCreateModel,
			"before_start_deployment": m.beforeStartDeployment,
		},
	)
	return m
}

// State returns the deployment's current state.
func (m *modelDeployment) State() string {
	return m.state.Current()
}

// run fires every transition in order, stopping at the first failure.
func (m *modelDeployment) run(ctx context.Context) (string, error) {
	m.ctx = ctx
	for _, event := range []string{"download", "install", "set_repository", "create_model", "start_deployment"} {
		if err := unwrapFSMError(m.state.Event(event)); err != nil {
			return m.out.String(), errors.Wrapf(err, "model deployment halted in state %s", m.State())
		}
	}
	return m.out.String(), nil
}

// beforeDownload fetches the model artifact to a temp file.
func (m *modelDeployment) beforeDownload(e *fsm.Event) {
	artifact := strings.TrimPrefix(ElserModelID, ".") + ".tar.gz"
	u := strings.TrimSuffix(m.repoURL, "/") + "/" + artifact

	m.log.Info("downloading model artifact", zap.String("url", u))
	req, err := http.NewRequest("GET", u, nil)
	if err != nil {
		e.Cancel(err)
		return
	}
	resp, err := m.httpClient.Do(req.WithContext(m.ctx))
	if err != nil {
		e.Cancel(&es.TransportError{Err: err})
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		e.Cancel(errors.Errorf("model artifact fetch returned status %d", resp.StatusCode))
		return
	}

	if err := os.MkdirAll(m.cacheDir, 0755); err != nil {
		e.Cancel(err)
		return
	}
	f, err := os.Create(filepath.Join(m.cacheDir, artifact+".partial"))
	if err != nil {
		e.Cancel(err)
		return
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		e.Cancel(err)
		return
	}
	if err := f.Close(); err != nil {
		e.Cancel(err)
		return
	}
	m.tmpPath = f.Name()
}

// beforeInstall moves the downloaded artifact into its final place in the
// model cache.
func (m *modelDeployment) beforeInstall(e *fsm.Event) {
	final := strings.TrimSuffix(m.tmpPath, ".partial")
	if err := os.Rename(m.tmpPath, final); err != nil {
		e.Cancel(err)
		return
	}
	m.log.Info("installed model artifact", zap.String("path", final))
}

// beforeSetRepository points the cluster's ML model repository at the
// mounted model directory.
func (m *modelDeployment) beforeSetRepository(e *fsm.Event) {
	body := mustJSON(map[string]interface{}{
		"persistent": map[string]string{
			"xpack.ml.model_repository": "file://" + lifecycle.ModelsDir,
		},
	})
	resp, err := m.do(m.ctx, m.d, &es.RequestSpec{
		Method:  "PUT",
		Path:    "_cluster/settings",
		Params:  pretty(),
		Headers: map[string]string{es.HeaderContentType: es.ContentTypeJSON},
		Body:    body,
	})
	if err != nil {
		e.Cancel(err)
		return
	}
	m.out.WriteString(resp)
}

// beforeCreateModel registers the trained model.
func (m *modelDeployment) beforeCreateModel(e *fsm.Event) {
	body := mustJSON(map[string]interface{}{
		"input": map[string]interface{}{
			"field_names": []string{"text_field"},
		},
	})
	resp, err := m.do(m.ctx, m.d, &es.RequestSpec{
		Method:  "PUT",
		Path:    "_ml/trained_models/" + ElserModelID,
		Headers: map[string]string{es.HeaderContentType: es.ContentTypeJSON},
		Body:    body,
	})
	if err != nil {
		e.Cancel(err)
		return
	}
	m.out.WriteString(resp)
}

// beforeStartDeployment starts the model deployment and waits for it.
func (m *modelDeployment) beforeStartDeployment(e *fsm.Event) {
	params := url.Values{}
	params.Set("wait_for", "started")
	params.Set("timeout", "200m")
	params.Set("deployment_id", m.deploymentID)
	resp, err := m.do(m.ctx, m.d, &es.RequestSpec{
		Method: "POST",
		Path:   "_ml/trained_models/" + ElserModelID + "/deployment/_start",
		Params: params,
	})
	if err != nil {
		e.Cancel(err)
		return
	}
	m.out.WriteString(resp)
}

// unwrapFSMError peels fsm.CanceledError down to the cause a callback
// passed to e.Cancel.
func unwrapFSMError(err error) error {
	switch e := err.(type) {
	case fsm.CanceledError:
		return e.Err
	case *fsm.CanceledError:
		return e.Err
	}
	return err
}

// DeployModel downloads, registers, and starts the ELSER model under the
// given deployment ID, all against one service instance. It returns the
// concatenated response bodies of the HTTP steps. A failure leaves the
// deployment in its last completed state with no automatic recovery.
func (c *Client) DeployModel(ctx context.Context, deploymentID string) (string, error) {
	var out string
	err := c.withService(ctx, func(ctx context.Context, d es.Doer) error {
		dep := c.newModelDeployment(d, deploymentID)
		resp, err := dep.run(ctx)
		out = resp
		return err
	})
	return out, err
}
