package planner

import "errors"

var (
	// ErrTrainingFailed wraps any failure of a training run. The previously
	// loaded model stays in service.
	ErrTrainingFailed = errors.New("training failed")
	// ErrPersistenceFailed wraps a failed submission log append.
	ErrPersistenceFailed = errors.New("failed to persist selection")
)

// Training triggers recorded with each run.
const (
	TriggerStartup   = "startup"
	TriggerSelection = "selection"
	TriggerAdmin     = "admin"
	TriggerCLI       = "cli"
)
