// Package testutil contains miscellaneous testing utilities.
package testutil

import (
	"context"
	"net/http"
	"net/http/httputil"
	"testing"

	"go.uber.org/zap" // Logging.
	"go.uber.org/zap/zaptest"
	gock "gopkg.in/h2non/gock.v1" // HTTP request mocking.
)

// TestLogger returns a zap Logger that logs all messages to the given
// testing.T. It replaces the zap global Logger and redirects the stdlib
// log to the test Logger.
func TestLogger(t *testing.T) (logger *zap.Logger, teardown func()) {
	logger = zaptest.NewLogger(t)
	restore1 := zap.ReplaceGlobals(logger)
	restore2 := zap.RedirectStdLog(logger)
	teardown = func() {
		restore2()
		restore1()
		_ = logger.Sync()
	}
	return
}

// GockLogObserver returns a gock.ObserverFunc that logs intercepted HTTP
// requests to a zap Logger.
func GockLogObserver(logger *zap.Logger) gock.ObserverFunc {
	return func(request *http.Request, mock gock.Mock) {
		bytes, _ := httputil.DumpRequestOut(request, true)
		logger.Debug("gock intercepted http request",
			zap.String("request", string(bytes)),
			zap.Bool("matches_mock", mock != nil),
		)
	}
}

// DispatchTestSetup sets up zap test logging, intercepts HTTP requests
// using gock, and creates a cancelable context for the test to use.
func DispatchTestSetup(t *testing.T) (ctx context.Context, logger *zap.Logger, teardown func()) {
	logger, teardownLogging := TestLogger(t)

	gock.Intercept()
	gock.Observe(GockLogObserver(logger))

	ctx, cancel := context.WithCancel(context.Background())

	teardown = func() {
		cancel()
		gock.OffAll()
		gock.Observe(nil)
		teardownLogging()
	}

	return
}
