package lifecycle

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mintel/elasticsearch-dev/internal/pkg/testutil"
	"github.com/mintel/elasticsearch-dev/pkg/es"
)

func setupLogging(t *testing.T) func() {
	_, teardown := testutil.TestLogger(t)
	return teardown
}

func TestConfigWithDefaults(t *testing.T) {
	c := Config{}.withDefaults()
	assert.Equal(t, DefaultRepository, c.Repository)
	assert.Equal(t, DefaultVersion, c.Version)
	assert.Equal(t, DefaultPort, c.Port)
	assert.Equal(t, ModeDev, c.Mode)
	assert.Equal(t, DefaultJavaOpts, c.JavaOpts)
	assert.Equal(t, DefaultDataVolume, c.DataVolume)
	assert.Equal(t, DefaultModelsVolume, c.ModelsVolume)
	assert.Equal(t, DefaultStartTimeout, c.StartTimeout)
}

func TestConfigWithDefaultsKeepsValues(t *testing.T) {
	in := Config{
		Version:      "8.9.0",
		Port:         9201,
		Mode:         ModeSecure,
		JavaOpts:     "-Xms256m -Xmx256m",
		DataVolume:   "/tmp/es-data",
		ModelsVolume: "/tmp/es-models",
		StartTimeout: time.Minute,
	}
	out := in.withDefaults()
	in.Repository = DefaultRepository
	assert.Equal(t, in, out)
}

func TestAwaitReadyCanceled(t *testing.T) {
	defer setupLogging(t)()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := &Manager{}
	cfg := Config{StartTimeout: time.Second}.withDefaults()
	h := &Handle{URL: "http://127.0.0.1:1"}

	err := m.awaitReady(ctx, cfg, h)
	assert.Error(t, err)
	assert.False(t, es.IsTimeout(err), "a canceled start must not be reported as a timeout")
}

func TestInsecureHTTPClient(t *testing.T) {
	c := InsecureHTTPClient()
	tr, ok := c.Transport.(*http.Transport)
	if assert.True(t, ok) {
		assert.True(t, tr.TLSClientConfig.InsecureSkipVerify)
	}
}

// TestManagerStartStop runs a real Elasticsearch container. Skipped
// during -short because pulling and booting the image takes a while.
func TestManagerStartStop(t *testing.T) {
	if testing.Short() {
		t.Skipf("skipping during -short due to dependency on a Docker daemon")
	}
	defer setupLogging(t)()

	m, err := NewManager("")
	if err != nil {
		t.Fatalf("failed to connect to Docker: %s", err)
	}

	cfg := Config{
		JavaOpts:     "-Xms256m -Xmx256m",
		StartTimeout: 5 * time.Minute,
	}
	h, err := m.Start(context.Background(), cfg)
	if !assert.NoError(t, err) {
		return
	}
	assert.NotEmpty(t, h.URL)

	assert.NoError(t, pingOnce(context.Background(), h.URL))

	assert.NoError(t, m.Stop(h))
	assert.Error(t, m.Stop(h), "second stop must fail")
}
