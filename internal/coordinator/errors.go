package coordinator

import "errors"

var (
	// ErrDependencyUnresolved marks a step that was never dispatched
	// because a step it depends on failed.
	ErrDependencyUnresolved = errors.New("dependency unresolved")

	// ErrTaskTimeout marks steps still unfinished when the task-level
	// deadline expired.
	ErrTaskTimeout = errors.New("task timeout")
)
