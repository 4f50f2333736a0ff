// Package esdevcli implements the esdev command line app: a disposable
// single-node Elasticsearch for development and CI, with one subcommand
// per REST operation and a serve mode that keeps the node running.
package esdevcli

import (
	"context"
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus" // Prometheus metrics.
	"go.uber.org/zap"                                // Logging.
	kingpin "gopkg.in/alecthomas/kingpin.v2"         // Command line flag parsing.
	tomb "gopkg.in/tomb.v2"                          // Goroutine lifecycle.

	esdev "github.com/mintel/elasticsearch-dev"
	"github.com/mintel/elasticsearch-dev/internal/pkg/cmd"     // Common command line app tools.
	"github.com/mintel/elasticsearch-dev/internal/pkg/metrics" // Prometheus metrics tools.
	"github.com/mintel/elasticsearch-dev/pkg/es"
	"github.com/mintel/elasticsearch-dev/pkg/lifecycle"
)

const (
	Name  = "esdev"
	Usage = "Run a disposable single-node Elasticsearch and issue REST calls against it, for development and CI."
)

// App holds application state.
type App struct {
	*kingpin.Application

	flags  *Flags           // Command line flags
	health *Healthchecks    // Healthchecks HTTP handler
	inst   *Instrumentation // App-specific Prometheus metrics

	registry prometheus.Registerer
}

// NewApp returns a new App.
func NewApp(r prometheus.Registerer) (*App, error) {
	namespace := cmd.BuildPromFQName("", Name)

	app := &App{
		Application: kingpin.New(filepath.Base(os.Args[0]), Usage),
		health:      NewHealthchecks(r, namespace),
		registry:    r,
	}
	app.flags = NewFlags(app.Application)
	app.inst = NewInstrumentation(namespace)
	if err := r.Register(app.inst); err != nil {
		return nil, err
	}

	return app, nil
}

// Main is the main method of App and should be called in main.main()
// after flag parsing.
func (app *App) Main(command string, g prometheus.Gatherer) {
	logger := app.flags.NewLogger()
	defer cmd.SetGlobalLogger(logger)()
	defer func() {
		_ = logger.Sync()
	}()

	ctx, cancel := cmd.WithInterrupt(context.Background())
	defer cancel()

	manager, err := lifecycle.NewManager("")
	if err != nil {
		logger.Fatal("error connecting to container runtime", zap.Error(err))
	}
	runtime := app.inst.WrapRuntime(manager)

	// Secure-mode nodes present a self-signed certificate.
	var base *http.Client
	if app.flags.Secure {
		base = lifecycle.InsecureHTTPClient()
	}
	httpClient, err := metrics.InstrumentHTTP(base, app.registry, cmd.Namespace,
		map[string]string{"recipient": "elasticsearch"})
	if err != nil {
		logger.Fatal("error instrumenting HTTP client", zap.Error(err))
	}

	client := esdev.NewClient(
		esdev.Config{
			Service:        app.flags.ServiceConfig(),
			RequestTimeout: app.flags.RequestTimeout,
			ModelCacheDir:  app.flags.ModelCacheDir,
			ModelRepoURL:   app.flags.ModelRepoURL,
		},
		runtime,
		esdev.SetDial(func(h *lifecycle.Handle) es.Doer {
			return app.inst.WrapDoer(es.NewDispatcher(h.URL, httpClient))
		}),
		esdev.SetLogger(logger.Named("Client")),
	)

	var out string
	switch command {
	case app.flags.Get.FullCommand():
		out, err = client.Get(ctx, *app.flags.GetPath)
	case app.flags.Delete.FullCommand():
		out, err = client.Delete(ctx, *app.flags.DeleteIndex)
	case app.flags.Index.FullCommand():
		out, err = client.IndexDocument(ctx, *app.flags.IndexFile, *app.flags.IndexIndex)
	case app.flags.Bulk.FullCommand():
		out, err = client.IndexBulk(ctx, *app.flags.BulkFile, *app.flags.BulkIndex)
	case app.flags.Search.FullCommand():
		out, err = client.Search(ctx, *app.flags.SearchIndex, *app.flags.SearchField, *app.flags.SearchQuery)
	case app.flags.SemanticIndex.FullCommand():
		out, err = client.SemanticSearchIndexData(ctx, *app.flags.SemIndexFile, *app.flags.SemIndexIndex, *app.flags.SemIndexField)
	case app.flags.SemanticSearch.FullCommand():
		out, err = client.SemanticSearch(ctx, *app.flags.SemSearchIndex, *app.flags.SemSearchField, *app.flags.SemSearchQuery)
	case app.flags.DeployModel.FullCommand():
		out, err = client.DeployModel(ctx, *app.flags.DeploymentID)
	case app.flags.Serve.FullCommand():
		if err := app.serve(ctx, logger, runtime, g); err != nil {
			logger.Fatal("serve failed", zap.Error(err))
		}
		return
	default:
		logger.Fatal("unknown command", zap.String("command", command))
	}

	if err != nil {
		logger.Fatal("operation failed", zap.Error(err))
	}
	os.Stdout.WriteString(out)
	if len(out) > 0 && out[len(out)-1] != '\n' {
		os.Stdout.WriteString("\n")
	}
}

// serve starts the service once and holds it until the context is
// canceled, exposing healthchecks and Prometheus metrics. The service
// handle is held for the whole run and stopped on every exit path.
func (app *App) serve(ctx context.Context, logger *zap.Logger, runtime lifecycle.Runtime, g prometheus.Gatherer) error {
	h, err := runtime.Start(ctx, app.flags.ServiceConfig())
	if err != nil {
		return err
	}
	defer func() {
		if serr := runtime.Stop(h); serr != nil {
			logger.Warn("error stopping elasticsearch service", zap.Error(serr))
		}
	}()

	app.health.SetServiceURL(h.URL)
	logger.Info("elasticsearch is up", zap.String("url", h.URL))

	mux := app.flags.ConfigureMux(http.NewServeMux(), app.health.Handler, g)
	srv := app.flags.NewServer(mux)

	var t tomb.Tomb
	t.Go(func() error {
		err := srv.ListenAndServe()
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	})
	t.Go(func() error {
		select {
		case <-ctx.Done():
		case <-t.Dying():
		}
		return srv.Close()
	})
	return t.Wait()
}
