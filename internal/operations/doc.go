// Package operations orchestrates a nowcast evaluation run as a graph of
// stages.
//
// A run moves through eight stages, each depending on the ones before it:
//
//	ingest -> calendar -> panel -> stationarity -> sample -> evaluate -> aggregate -> persist
//
// Core components:
//
// Stage: one unit of work. Stages declare dependencies, validate that the
// artifacts they need exist and write exactly one typed artifact.
//
// Registry: holds the stages and orders them topologically, keeping
// registration order between independent stages.
//
// Manager: executes the ordered stages sequentially under a per-stage
// timeout. The first failure aborts the run and marks every dependent stage
// as skipped. Cancelling the context skips what remains.
//
// RunState and Artifacts: the status of the run and of each stage, and the
// outputs stages hand to one another.
//
// Pipeline: builds the registry for a configuration, opens the model cache
// and runs the manager.
//
// Every run emits one span with a child span per stage and structured logs
// carrying the run ID.
package operations
