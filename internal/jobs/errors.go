package jobs

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidName is returned when a proposed job name fails the name
	// grammar.
	ErrInvalidName = errors.New("invalid job name")

	// ErrInvalidArguments is returned when any element of a job's derived
	// argument list fails validation.
	ErrInvalidArguments = errors.New("invalid job arguments")

	// ErrCapacityExceeded is returned when the registry is already tracking
	// the configured maximum number of jobs.
	ErrCapacityExceeded = errors.New("job capacity exceeded")

	// ErrSpawnFailed is returned when the build command could not be
	// spawned. No job is registered in that case.
	ErrSpawnFailed = errors.New("failed to spawn build command")

	// ErrJobNotFound is returned when no job matches the given name or id.
	ErrJobNotFound = errors.New("job not found")
)

// AlreadyRunningError is returned when admission is refused because the name
// already maps to a running job. It carries that job so callers can report
// the existing run's identity.
type AlreadyRunningError struct {
	Job *Job
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("job %q is already running with id %s", e.Job.Name(), e.Job.ID())
}
