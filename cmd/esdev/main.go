package main

import (
	"os"

	"github.com/prometheus/client_golang/prometheus" // Prometheus metrics.
	kingpin "gopkg.in/alecthomas/kingpin.v2"         // Command line flag parsing.

	"github.com/mintel/elasticsearch-dev/internal/app/esdevcli" // App implementation.
)

func main() {
	app, err := esdevcli.NewApp(prometheus.DefaultRegisterer)
	if err != nil {
		panic(err)
	}
	command := kingpin.MustParse(app.Parse(os.Args[1:]))
	app.Main(command, prometheus.DefaultGatherer)
}
