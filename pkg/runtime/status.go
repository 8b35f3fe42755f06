package runtime

import (
	"github.com/daimon-agents/daimon/pkg/errors"
)

// Status is the runtime lifecycle state.
type Status string

const (
	// StatusConstructed means New returned but Initialize has not run.
	StatusConstructed Status = "constructed"
	// StatusInitializing means plugins and services are being brought up.
	StatusInitializing Status = "initializing"
	// StatusRunning means the runtime accepts messages.
	StatusRunning Status = "running"
	// StatusStopping means a stop is in progress; new cycles are rejected.
	StatusStopping Status = "stopping"
	// StatusStopped is terminal.
	StatusStopped Status = "stopped"
)

var allowedStatusTransitions = map[Status]map[Status]struct{}{
	StatusConstructed: {
		StatusInitializing: {},
		StatusStopped:      {},
	},
	StatusInitializing: {
		StatusRunning: {},
		StatusStopped: {},
	},
	StatusRunning: {
		StatusStopping: {},
	},
	StatusStopping: {
		StatusStopped: {},
	},
	StatusStopped: {},
}

func validateStatusTransition(from, to Status) error {
	if from == to {
		return nil
	}
	allowed, ok := allowedStatusTransitions[from]
	if !ok {
		return errors.Newf(errors.CodeInvalidInput, "unknown runtime status %q", from)
	}
	if _, ok := allowed[to]; !ok {
		return errors.Newf(errors.CodeInvalidInput, "invalid runtime transition %s -> %s", from, to)
	}
	return nil
}

// transition moves the status, validating against the table. Callers hold
// the runtime write lock.
func (r *Runtime) transition(to Status) error {
	if err := validateStatusTransition(r.status, to); err != nil {
		return err
	}
	r.status = to
	return nil
}
