package esdevcli

import (
	kingpin "gopkg.in/alecthomas/kingpin.v2" // Command line flag parsing.

	"github.com/mintel/elasticsearch-dev/internal/pkg/cmd" // Common command line app tools.
)

const (
	_defaultPort     = 8080
	_defaultLogLevel = "INFO"
)

// Flags holds command line flags and args for the esdev App.
type Flags struct {
	*cmd.LoggingFlags
	*cmd.ServiceFlags
	*cmd.ServerFlags

	// Model artifact flags.
	ModelCacheDir string
	ModelRepoURL  string

	// Subcommands.
	Get            *kingpin.CmdClause
	Delete         *kingpin.CmdClause
	Index          *kingpin.CmdClause
	Bulk           *kingpin.CmdClause
	Search         *kingpin.CmdClause
	SemanticIndex  *kingpin.CmdClause
	SemanticSearch *kingpin.CmdClause
	DeployModel    *kingpin.CmdClause
	Serve          *kingpin.CmdClause

	// Subcommand args.
	GetPath        *string
	DeleteIndex    *string
	IndexFile      *string
	IndexIndex     *string
	BulkFile       *string
	BulkIndex      *string
	SearchIndex    *string
	SearchField    *string
	SearchQuery    *string
	SemIndexFile   *string
	SemIndexIndex  *string
	SemIndexField  *string
	SemSearchIndex *string
	SemSearchField *string
	SemSearchQuery *string
	DeploymentID   *string
}

// NewFlags returns a new Flags.
func NewFlags(app *kingpin.Application) *Flags {
	var f Flags

	f.LoggingFlags = cmd.NewLoggingFlags(app, _defaultLogLevel)
	f.ServiceFlags = cmd.NewServiceFlags(app)
	f.ServerFlags = cmd.NewServerFlags(app, _defaultPort)

	app.Flag("model.cache-dir", "Host directory model artifacts are downloaded to. Also mounted into the container as the ML models directory; defaults to a directory under the system temp dir.").
		StringVar(&f.ModelCacheDir)

	app.Flag("model.repo-url", "Base URL model artifacts are fetched from.").
		StringVar(&f.ModelRepoURL)

	f.Get = app.Command("get", "Send a GET request and print the response.")
	f.GetPath = f.Get.Arg("path", "Path relative to the service root.").Default("").String()

	f.Delete = app.Command("delete", "Delete an index and print the response.")
	f.DeleteIndex = f.Delete.Arg("index", "Index to delete.").Required().String()

	f.Index = app.Command("index", "Index a document from a file.")
	f.IndexFile = f.Index.Arg("file", "File holding the document JSON.").Required().ExistingFile()
	f.IndexIndex = f.Index.Arg("index", "Index to write to.").Default("my-index").String()

	f.Bulk = app.Command("bulk", "Load documents through the _bulk API.")
	f.BulkFile = f.Bulk.Arg("file", "File holding the payload.").Required().ExistingFile()
	f.BulkIndex = f.Bulk.Flag("index", "Convert a plain JSON array to bulk format targeting this index. Without it the file must already be in bulk format.").String()

	f.Search = app.Command("search", "Run a match query and print the response.")
	f.SearchIndex = f.Search.Arg("index", "Index to search.").Required().String()
	f.SearchField = f.Search.Arg("field", "Field to match against.").Required().String()
	f.SearchQuery = f.Search.Arg("query", "Query text.").Required().String()

	f.SemanticIndex = app.Command("semantic-index", "Prepare an index for semantic search and load documents into it.")
	f.SemIndexFile = f.SemanticIndex.Arg("file", "File holding a JSON array of documents.").Required().ExistingFile()
	f.SemIndexIndex = f.SemanticIndex.Arg("index", "Target index.").Required().String()
	f.SemIndexField = f.SemanticIndex.Arg("field", "Field to derive the sparse-vector embedding from.").Required().String()

	f.SemanticSearch = app.Command("semantic-search", "Run a text_expansion query and print the response.")
	f.SemSearchIndex = f.SemanticSearch.Arg("index", "Index to search.").Required().String()
	f.SemSearchField = f.SemanticSearch.Arg("field", "Base field the embedding was derived from.").Required().String()
	f.SemSearchQuery = f.SemanticSearch.Arg("query", "Query text.").Required().String()

	f.DeployModel = app.Command("deploy-model", "Download, register, and start the ELSER model.")
	f.DeploymentID = f.DeployModel.Arg("deployment-id", "Deployment ID to start the model under.").Required().String()

	f.Serve = app.Command("serve", "Start Elasticsearch and keep it running until interrupted, exposing healthchecks and metrics.")

	return &f
}
