package lifecycle

import (
	"time"
)

// Mode selects how the Elasticsearch node is secured.
type Mode string

const (
	// ModeDev disables X-Pack security and TLS so the node can be used
	// over plain HTTP with no credentials.
	ModeDev Mode = "dev"

	// ModeSecure leaves X-Pack security and TLS enabled.
	ModeSecure Mode = "secure"
)

// Paths inside the official Elasticsearch image. The image runs
// Elasticsearch as UID:GID 1000:0, which must own anything mounted at
// these paths.
const (
	DataDir   = "/usr/share/elasticsearch/data"
	ModelsDir = "/usr/share/elasticsearch/config/models"
)

// Defaults for Config fields left at their zero value.
const (
	DefaultRepository   = "docker.elastic.co/elasticsearch/elasticsearch"
	DefaultVersion      = "8.13.2"
	DefaultPort         = 9200
	DefaultJavaOpts     = "-Xms4g -Xmx4g"
	DefaultDataVolume   = "es-data"
	DefaultModelsVolume = "es-models"
	DefaultStartTimeout = 2 * time.Minute
)

// Config describes a single-node Elasticsearch service container.
// It is immutable after construction: a Manager never modifies it, and
// the same Config may be reused across any number of Start calls, which
// is also how the named cache volumes get shared between invocations.
type Config struct {
	// Image repository. Defaults to the official Elasticsearch image.
	Repository string

	// Image tag, e.g. "8.13.2".
	Version string

	// Port the HTTP API is exposed on. Defaults to 9200.
	Port int

	// Security mode. Defaults to ModeDev.
	Mode Mode

	// Free-form JVM options passed as ES_JAVA_OPTS.
	JavaOpts string

	// Mount source for the data directory: a named Docker volume or an
	// absolute host path. Persists across restarts.
	DataVolume string

	// Mount source for the ML models directory.
	ModelsVolume string

	// How long Start waits for the node to accept requests before
	// giving up with a TimeoutError.
	StartTimeout time.Duration
}

// withDefaults returns a copy of c with zero values replaced by defaults.
func (c Config) withDefaults() Config {
	if c.Repository == "" {
		c.Repository = DefaultRepository
	}
	if c.Version == "" {
		c.Version = DefaultVersion
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Mode == "" {
		c.Mode = ModeDev
	}
	if c.JavaOpts == "" {
		c.JavaOpts = DefaultJavaOpts
	}
	if c.DataVolume == "" {
		c.DataVolume = DefaultDataVolume
	}
	if c.ModelsVolume == "" {
		c.ModelsVolume = DefaultModelsVolume
	}
	if c.StartTimeout == 0 {
		c.StartTimeout = DefaultStartTimeout
	}
	return c
}
