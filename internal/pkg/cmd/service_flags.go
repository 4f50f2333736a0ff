package cmd

import (
	"time"

	"github.com/mintel/elasticsearch-dev/pkg/lifecycle"
)

const (
	_defaultStartTimeout   = 2 * time.Minute
	_defaultRequestTimeout = 30 * time.Second
)

// ServiceFlags represents a base set of flags describing the
// Elasticsearch service container that operations run against.
type ServiceFlags struct {
	Version        string        // Image tag.
	Repository     string        // Image repository.
	Port           int           // HTTP API port.
	Secure         bool          // Leave X-Pack security and TLS enabled.
	JavaOpts       string        // ES_JAVA_OPTS value.
	DataVolume     string        // Mount source for the data directory.
	ModelsVolume   string        // Mount source for the ML models directory.
	StartTimeout   time.Duration // Deadline for the service to become reachable.
	RequestTimeout time.Duration // Deadline per request.
}

// NewServiceFlags returns a new ServiceFlags.
func NewServiceFlags(app Flagger) *ServiceFlags {
	var f ServiceFlags

	app.Flag("elasticsearch.version", "Elasticsearch image tag to run.").
		Default(lifecycle.DefaultVersion).
		StringVar(&f.Version)

	app.Flag("elasticsearch.repository", "Elasticsearch image repository.").
		Hidden().
		Default(lifecycle.DefaultRepository).
		StringVar(&f.Repository)

	app.Flag("elasticsearch.port", "Port to expose the Elasticsearch HTTP API on.").
		Default("9200").
		IntVar(&f.Port)

	app.Flag("elasticsearch.secure", "Leave X-Pack security and TLS enabled instead of running in dev mode.").
		BoolVar(&f.Secure)

	app.Flag("elasticsearch.java-opts", "ES_JAVA_OPTS passed to the container.").
		Default(lifecycle.DefaultJavaOpts).
		StringVar(&f.JavaOpts)

	app.Flag("elasticsearch.data-volume", "Named volume or host path mounted as the data directory.").
		Default(lifecycle.DefaultDataVolume).
		StringVar(&f.DataVolume)

	app.Flag("elasticsearch.models-volume", "Named volume or host path mounted as the ML models directory.").
		Default(lifecycle.DefaultModelsVolume).
		StringVar(&f.ModelsVolume)

	app.Flag("start.timeout", "How long to wait for Elasticsearch to become reachable.").
		Default(_defaultStartTimeout.String()).
		DurationVar(&f.StartTimeout)

	app.Flag("request.timeout", "Deadline applied to each request.").
		Default(_defaultRequestTimeout.String()).
		DurationVar(&f.RequestTimeout)

	return &f
}

// ServiceConfig returns the lifecycle Config described by the flag values.
func (f *ServiceFlags) ServiceConfig() lifecycle.Config {
	mode := lifecycle.ModeDev
	if f.Secure {
		mode = lifecycle.ModeSecure
	}
	return lifecycle.Config{
		Repository:   f.Repository,
		Version:      f.Version,
		Port:         f.Port,
		Mode:         mode,
		JavaOpts:     f.JavaOpts,
		DataVolume:   f.DataVolume,
		ModelsVolume: f.ModelsVolume,
		StartTimeout: f.StartTimeout,
	}
}
