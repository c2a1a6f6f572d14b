package jobs

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Registry is responsible for admitting, tracking and evicting Jobs. It
// maps each name to its current Job and keeps finished Jobs reachable by id
// until their grace period elapses.
type Registry struct {
	opts    Options
	maxJobs int
	grace   time.Duration
	logger  *zap.Logger

	// byName holds the current Job for each name. byID holds every tracked
	// Job, including replaced runs pending cleanup. Cleanup timers are keyed
	// by job id, never by name, so a stale timer can never evict a newer Job
	// that has since taken the same name.
	byName map[string]*Job
	byID   map[string]*Job
	timers map[string]*time.Timer

	mu sync.Mutex
}

// NewRegistry creates a Registry that spawns jobs with opts, tracks at most
// maxJobs of them, and evicts finished jobs grace after they exit.
func NewRegistry(
	opts Options,
	maxJobs int,
	grace time.Duration,
	logger *zap.Logger,
) *Registry {
	return &Registry{
		opts:    opts,
		maxJobs: maxJobs,
		grace:   grace,
		logger:  logger,
		byName:  make(map[string]*Job),
		byID:    make(map[string]*Job),
		timers:  make(map[string]*time.Timer),
	}
}

// Create admits and starts a new Job for name. It returns an
// AlreadyRunningError carrying the existing Job if name maps to a running
// Job, ErrCapacityExceeded if the registry is full, or the validation and
// spawn errors of StartJob. The Job is only published once its process has
// started; a failed spawn leaves the registry untouched.
func (r *Registry) Create(name string, extraArgs []string) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, exists := r.byName[name]; exists && cur.IsRunning() {
		return nil, &AlreadyRunningError{Job: cur}
	}

	if len(r.byID) >= r.maxJobs {
		return nil, ErrCapacityExceeded
	}

	// Spawning under the lock keeps the admission check and publication
	// atomic with respect to concurrent starts of the same name. Start
	// doesn't wait on the process, so nothing here blocks on job I/O.
	job, err := StartJob(name, extraArgs, r.opts)
	if err != nil {
		return nil, err
	}

	// A replaced Job keeps its own cleanup timer running; it stays reachable
	// by id until its grace period fires.
	r.byName[name] = job
	r.byID[job.id] = job

	r.logger.Info("job started",
		zap.String("id", job.id),
		zap.String("name", name),
		zap.Strings("args", job.args))

	go r.watch(job)

	return job, nil
}

// watch schedules the eviction of job once it has exited.
func (r *Registry) watch(job *Job) {
	<-job.Done()

	r.logger.Info("job exited",
		zap.String("id", job.id),
		zap.String("name", job.name),
		zap.Int("exitCode", job.ExitCode()))

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.byID[job.id] != job {
		// Already evicted explicitly.
		return
	}

	r.timers[job.id] = time.AfterFunc(r.grace, func() {
		r.Remove(job)
	})
}

// Get returns the current Job for name or ErrJobNotFound.
func (r *Registry) Get(name string) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, exists := r.byName[name]
	if !exists {
		return nil, ErrJobNotFound
	}

	return job, nil
}

// GetByID returns the tracked Job with the given id or ErrJobNotFound. It
// also finds runs that have been replaced under their name but are still
// within their grace period.
func (r *Registry) GetByID(id string) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, exists := r.byID[id]
	if !exists {
		return nil, ErrJobNotFound
	}

	return job, nil
}

// IsRunning returns whether name currently maps to a running Job.
func (r *Registry) IsRunning(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, exists := r.byName[name]

	return exists && job.IsRunning()
}

// Remove evicts job from the registry and cancels its pending cleanup
// timer. It is idempotent, and it only removes the name mapping if it still
// points at exactly this Job, so a stale timer can't delete a newer run
// under the same name.
func (r *Registry) Remove(job *Job) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if timer, exists := r.timers[job.id]; exists {
		timer.Stop()
		delete(r.timers, job.id)
	}

	if r.byID[job.id] != job {
		return
	}

	delete(r.byID, job.id)

	if r.byName[job.name] == job {
		delete(r.byName, job.name)
	}

	r.logger.Debug("job evicted",
		zap.String("id", job.id),
		zap.String("name", job.name))
}

// Shutdown makes a 'best effort' attempt to kill any running Jobs tracked
// by the Registry and waits for them to finish draining output.
func (r *Registry) Shutdown() {
	r.mu.Lock()

	var running []*Job
	for _, job := range r.byID {
		if job.IsRunning() {
			running = append(running, job)
		}
	}

	r.mu.Unlock()

	var wg sync.WaitGroup

	for _, job := range running {
		wg.Go(func() {
			job.Kill()
			<-job.Done()
		})
	}

	wg.Wait()
}
