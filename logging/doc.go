// Package logging provides a minimal logging interface and adapters for the
// workflow engine.
//
// The Logger interface defines the standard logging methods (Debug, Info,
// Warn, Error) that the engine, agents and provider clients use for
// observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - WorkflowLogger with workflow/task scoped attributes
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	wf := workflow.New("pipeline", workflow.WithLogger(logger))
//
// The design intentionally keeps the interface minimal to avoid vendor
// lock-in while supporting structured logging where available.
package logging
