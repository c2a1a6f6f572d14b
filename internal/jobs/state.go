package jobs

import "sync/atomic"

type JobState int

const (
	// JobStateUnknown indicates the state of the job is unknown. It's used as
	// the zero value for functions that return a (possibly absent) JobState.
	JobStateUnknown JobState = iota

	// JobStateRunning indicates the build command has been spawned and has
	// not yet exited. Output is still being captured.
	JobStateRunning

	// JobStateExited indicates the build command has exited and its output
	// streams have been fully drained. The log is frozen.
	JobStateExited
)

// NOTE: This slice needs to be kept in sync with any changes to the JobState
// values.
var jobStates = []string{
	"Unknown",
	"Running",
	"Exited",
}

// String implements the Stringer interface for JobState and returns a string
// representation of the JobState by using the int value to index into a slice.
func (s JobState) String() string {
	if int(s) < 0 || int(s) >= len(jobStates) {
		return jobStates[0]
	}

	return jobStates[s]
}

// AtomicJobState is a wrapper around an atomic.Int32 to provide atomic
// operations on a JobState. The only transition a Job ever makes is
// Running to Exited, exactly once.
type AtomicJobState struct {
	v atomic.Int32
}

// Load atomically loads the JobState value.
func (a *AtomicJobState) Load() JobState {
	return JobState(a.v.Load())
}

// Store atomically stores the JobState value.
func (a *AtomicJobState) Store(s JobState) {
	a.v.Store(int32(s))
}

// CompareAndSwap performs an atomic compare-and-swap operation with an old
// and new JobState.
func (a *AtomicJobState) CompareAndSwap(o, n JobState) bool {
	return a.v.CompareAndSwap(int32(o), int32(n))
}
