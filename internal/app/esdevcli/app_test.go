package esdevcli

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/mintel/elasticsearch-dev/pkg/lifecycle"
)

// countingRuntime hands out handles without touching Docker and counts
// starts and stops.
type countingRuntime struct {
	starts int
	stops  int
}

func (r *countingRuntime) Start(ctx context.Context, cfg lifecycle.Config) (*lifecycle.Handle, error) {
	r.starts++
	return &lifecycle.Handle{URL: "http://127.0.0.1:9200"}, nil
}

func (r *countingRuntime) Stop(h *lifecycle.Handle) error {
	r.stops++
	return nil
}

func TestServeStopsServiceOnContextCancel(t *testing.T) {
	app, err := NewApp(prometheus.NewRegistry())
	if !assert.NoError(t, err) {
		return
	}

	// Port 0 lets the kernel pick a free port.
	command, err := app.Parse([]string{"serve", "--serve.port", "0"})
	assert.NoError(t, err)
	assert.Equal(t, app.flags.Serve.FullCommand(), command)

	rt := &countingRuntime{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- app.serve(ctx, zaptest.NewLogger(t), rt, prometheus.NewRegistry())
	}()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not shut down after context cancellation")
	}

	assert.Equal(t, 1, rt.starts)
	assert.Equal(t, 1, rt.stops, "the service handle must be stopped on shutdown")
}
