package esdevcli

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	kingpin "gopkg.in/alecthomas/kingpin.v2" // Command line flag parsing.
)

func newTestFlags() (*kingpin.Application, *Flags) {
	app := kingpin.New("testapp", "usage")
	return app, NewFlags(app)
}

func TestFlagsParseGet(t *testing.T) {
	app, f := newTestFlags()
	command, err := app.Parse([]string{"get"})
	assert.NoError(t, err)
	assert.Equal(t, f.Get.FullCommand(), command)
	assert.Equal(t, "", *f.GetPath, "path defaults to the service root")

	app, f = newTestFlags()
	command, err = app.Parse([]string{"get", "_cat/indices"})
	assert.NoError(t, err)
	assert.Equal(t, f.Get.FullCommand(), command)
	assert.Equal(t, "_cat/indices", *f.GetPath)
}

func TestFlagsParseSearch(t *testing.T) {
	app, f := newTestFlags()
	command, err := app.Parse([]string{"search", "movies", "title", "Inception"})
	assert.NoError(t, err)
	assert.Equal(t, f.Search.FullCommand(), command)
	assert.Equal(t, "movies", *f.SearchIndex)
	assert.Equal(t, "title", *f.SearchField)
	assert.Equal(t, "Inception", *f.SearchQuery)
}

func TestFlagsParseBulk(t *testing.T) {
	dir, err := ioutil.TempDir("", "esdev-test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	file := filepath.Join(dir, "docs.json")
	if err := ioutil.WriteFile(file, []byte(`[]`), 0644); err != nil {
		t.Fatal(err)
	}

	app, f := newTestFlags()
	command, err := app.Parse([]string{"bulk", file, "--index", "t"})
	assert.NoError(t, err)
	assert.Equal(t, f.Bulk.FullCommand(), command)
	assert.Equal(t, file, *f.BulkFile)
	assert.Equal(t, "t", *f.BulkIndex)

	// Without --index the payload passes through as-is.
	app, f = newTestFlags()
	command, err = app.Parse([]string{"bulk", file})
	assert.NoError(t, err)
	assert.Equal(t, f.Bulk.FullCommand(), command)
	assert.Equal(t, "", *f.BulkIndex)

	app, _ = newTestFlags()
	_, err = app.Parse([]string{"bulk", filepath.Join(dir, "missing.json")})
	assert.Error(t, err, "payload file must exist")
}

func TestFlagsParseIndexDefault(t *testing.T) {
	dir, err := ioutil.TempDir("", "esdev-test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	file := filepath.Join(dir, "doc.json")
	if err := ioutil.WriteFile(file, []byte(`{}`), 0644); err != nil {
		t.Fatal(err)
	}

	app, f := newTestFlags()
	command, err := app.Parse([]string{"index", file})
	assert.NoError(t, err)
	assert.Equal(t, f.Index.FullCommand(), command)
	assert.Equal(t, "my-index", *f.IndexIndex)
}

func TestFlagsParseDeployModel(t *testing.T) {
	app, f := newTestFlags()
	command, err := app.Parse([]string{"deploy-model", "my-deployment"})
	assert.NoError(t, err)
	assert.Equal(t, f.DeployModel.FullCommand(), command)
	assert.Equal(t, "my-deployment", *f.DeploymentID)

	app, _ = newTestFlags()
	_, err = app.Parse([]string{"deploy-model"})
	assert.Error(t, err, "deployment id is required")
}
