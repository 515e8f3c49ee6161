// Package app wires and runs the results server.
//
// NewApplication initializes telemetry and the pipeline metrics, builds the
// results router over the configured results directory and prepares the
// HTTP server. Run serves until SIGINT or SIGTERM and then shuts down
// gracefully: in-flight requests finish within the shutdown timeout and
// telemetry is flushed.
//
//	cfg, err := config.Load(path)
//	a, err := app.NewApplication(cfg, logger)
//	if err := a.Run(); err != nil {
//	    ...
//	}
package app
