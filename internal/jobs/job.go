package jobs

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nixpig/buildhook/internal/jobs/logbuf"
	"github.com/nixpig/buildhook/internal/names"
)

// Options configures how jobs spawn the external build command.
type Options struct {
	// Command is the executable invoked for every job.
	Command string

	// Workdir is the working directory the command runs in.
	Workdir string

	// Timeout bounds a single run; zero means no limit. A timed-out process
	// is killed and the job exits like any other run.
	Timeout time.Duration

	// LogCapacity is the fixed size of each job's log buffer in bytes.
	// Output beyond capacity is silently dropped.
	LogCapacity int
}

// Job represents one invocation of the build command, executed with
// exec.Cmd. It owns the process handle exclusively and captures the
// process's combined output into a bounded log for concurrent streaming.
type Job struct {
	id        string
	name      string
	args      []string
	startedAt time.Time

	state        AtomicJobState
	processState atomic.Pointer[os.ProcessState]

	cmd    *exec.Cmd
	cancel context.CancelFunc
	buffer *logbuf.Buffer

	done chan struct{}
}

// JobStatus is a point-in-time view of a Job for reporting to clients.
type JobStatus struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	State     string    `json:"state"`
	ExitCode  int       `json:"exitCode"`
	StartedAt time.Time `json:"startedAt"`
}

// StartJob validates name and extraArgs, derives the argument list, spawns
// the build command and begins capturing its output. The derived argument
// list is extraArgs followed by the '+'-separated segments of name.
//
// It returns ErrInvalidName, ErrInvalidArguments or ErrSpawnFailed without
// any side effects; a Job is only ever returned with its process started.
func StartJob(name string, extraArgs []string, opts Options) (*Job, error) {
	if !names.ValidName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	args := append(slices.Clone(extraArgs), strings.Split(name, "+")...)

	for _, arg := range args {
		if !names.ValidArgument(arg) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidArguments, arg)
		}
	}

	ctx := context.Background()

	var cancel context.CancelFunc
	if opts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	cmd := exec.CommandContext(ctx, opts.Command, args...)
	cmd.Dir = opts.Workdir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: stdout pipe: %v", ErrSpawnFailed, err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: stderr pipe: %v", ErrSpawnFailed, err)
	}

	j := &Job{
		id:        uuid.NewString(),
		name:      name,
		args:      args,
		startedAt: time.Now(),
		cmd:       cmd,
		cancel:    cancel,
		buffer:    logbuf.New(opts.LogCapacity),
		done:      make(chan struct{}),
	}

	j.state.Store(JobStateRunning)

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	var drained sync.WaitGroup

	drained.Go(func() {
		j.buffer.Consume(stdout)
	})

	drained.Go(func() {
		// stderr is additionally mirrored to the daemon's own stderr for
		// operator visibility; stdout is not mirrored anywhere.
		j.buffer.Consume(io.TeeReader(stderr, os.Stderr))
	})

	go func() {
		// Both output streams must be fully drained before the buffer closes,
		// so no log bytes can ever arrive after a subscriber observes EOF.
		drained.Wait()

		j.cmd.Wait()

		j.processState.Store(j.cmd.ProcessState)
		j.state.Store(JobStateExited)

		j.buffer.Close()

		cancel()
		close(j.done)
	}()

	return j, nil
}

// ID returns the unique id of the Job. It never changes.
func (j *Job) ID() string {
	return j.id
}

// Name returns the caller-supplied name of the Job.
func (j *Job) Name() string {
	return j.name
}

// Args returns the validated argument list the build command was invoked
// with.
func (j *Job) Args() []string {
	return slices.Clone(j.args)
}

// StartedAt returns the creation timestamp of the Job.
func (j *Job) StartedAt() time.Time {
	return j.startedAt
}

// State returns the state of the Job.
func (j *Job) State() JobState {
	return j.state.Load()
}

// IsRunning returns whether the Job's process is still running.
func (j *Job) IsRunning() bool {
	return j.state.Load() == JobStateRunning
}

// ExitCode returns the exit code of the process or -1 if the process hasn't
// exited or was killed.
func (j *Job) ExitCode() int {
	ps := j.processState.Load()
	if ps == nil {
		return -1
	}

	return ps.ExitCode()
}

// SubscribeOutput returns an io.ReadCloser of the Job's captured output.
//
// Read returns all output since the Job started and blocks waiting for new
// output until the Job has exited and its streams are drained.
func (j *Job) SubscribeOutput() io.ReadCloser {
	return j.buffer.Subscribe()
}

// Done returns a channel that is closed when the Job has completed: the
// process has exited and every output byte has been buffered.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Kill terminates the Job's process. The job still transitions to Exited
// through the normal exit path.
func (j *Job) Kill() {
	j.cancel()
}

// Status returns the status of the Job.
func (j *Job) Status() *JobStatus {
	return &JobStatus{
		ID:        j.id,
		Name:      j.name,
		State:     j.state.Load().String(),
		ExitCode:  j.ExitCode(),
		StartedAt: j.startedAt,
	}
}
