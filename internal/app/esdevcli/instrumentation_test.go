package esdevcli

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/mintel/elasticsearch-dev/internal/pkg/cmd"
	"github.com/mintel/elasticsearch-dev/pkg/es"
	"github.com/mintel/elasticsearch-dev/pkg/lifecycle"
)

type stubDoer struct {
	calls int
}

func (d *stubDoer) Do(ctx context.Context, spec *es.RequestSpec) (string, error) {
	d.calls++
	return "ok", nil
}

type stubRuntime struct{}

func (stubRuntime) Start(ctx context.Context, cfg lifecycle.Config) (*lifecycle.Handle, error) {
	return &lifecycle.Handle{URL: "http://127.0.0.1:9200"}, nil
}

func (stubRuntime) Stop(h *lifecycle.Handle) error {
	return nil
}

func TestInstrumentationRegisters(t *testing.T) {
	r := prometheus.NewPedanticRegistry()
	assert.NoError(t, r.Register(NewInstrumentation(cmd.Namespace)))
}

func TestInstrumentationWrapDoer(t *testing.T) {
	inst := NewInstrumentation(cmd.Namespace)
	stub := &stubDoer{}
	d := inst.WrapDoer(stub)

	_, err := d.Do(context.Background(), &es.RequestSpec{Method: "GET", Path: "_cat/indices"})
	assert.NoError(t, err)
	_, err = d.Do(context.Background(), &es.RequestSpec{Method: "PUT", Path: "movies/_settings"})
	assert.NoError(t, err)
	_, err = d.Do(context.Background(), &es.RequestSpec{Method: "PUT", Path: "movies"})
	assert.NoError(t, err)

	assert.Equal(t, 3, stub.calls)
	assert.Equal(t, float64(1), testutil.ToFloat64(inst.RequestsTotal.WithLabelValues("GET")))
	assert.Equal(t, float64(2), testutil.ToFloat64(inst.RequestsTotal.WithLabelValues("PUT")))
	assert.Equal(t, float64(1), testutil.ToFloat64(inst.ReplicaSuppressionsTotal),
		"only settings updates count as suppressions")
}

func TestInstrumentationWrapRuntime(t *testing.T) {
	inst := NewInstrumentation(cmd.Namespace)
	rt := inst.WrapRuntime(stubRuntime{})

	h, err := rt.Start(context.Background(), lifecycle.Config{})
	assert.NoError(t, err)
	assert.NoError(t, rt.Stop(h))

	assert.Equal(t, float64(1), testutil.ToFloat64(inst.ServiceStartsTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(inst.ServiceStopsTotal))
}
