// Command kvbroker-maintain runs the broker maintainer loop as a
// standalone, operator-supervised process instead of relying on the
// client package's re-exec-on-demand idiom.
//
// It owns the embedded engine at KVBROKER_ENGINE_DIR for as long as any
// peer holds a slot open against it, then exits on its own. SIGINT and
// SIGTERM are logged but otherwise ignored, since there is no way to
// tear the region down without disconnecting whichever peer is
// mid-round-trip against it.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/dreamware/kvbroker/mdb"
)

var logFatal = func(msg string, args ...any) {
	zap.S().Fatalf(msg, args...)
}

func main() {
	dir := mustGetenv("KVBROKER_ENGINE_DIR")

	logger, err := zap.NewProduction()
	if err != nil {
		logFatal("building logger: %v", err)
	}
	defer logger.Sync()

	// The maintainer loop only returns once every peer has detached;
	// a signal here is logged for operator visibility but otherwise
	// left to that natural exit, so a peer mid-round-trip is never cut
	// off from under it.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stop
		logger.Info("shutdown signal received, exiting once all peers detach")
	}()

	if err := mdb.Maintain(dir, logger); err != nil {
		logFatal("maintainer exited: %v", err)
	}
}

func mustGetenv(k string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	logFatal("missing env %s", k)
	return ""
}
