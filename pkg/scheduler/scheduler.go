// Package scheduler runs the recurring jobs of the runtime on cron
// triggers. Jobs are identified by stable string ids so they can be
// replaced, paused, resumed and fired manually at runtime.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	// maxConcurrentJobs bounds how many jobs execute at once.
	maxConcurrentJobs = 10

	// defaultMisfireGrace is how late an occurrence may start before it
	// is dropped instead of run.
	defaultMisfireGrace = 60 * time.Second
)

// JobFunc is one job execution. A returned error is logged, never fatal.
type JobFunc func(ctx context.Context) error

// JobStatus is a snapshot of one registered job.
type JobStatus struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Trigger  string     `json:"trigger"`
	Paused   bool       `json:"paused"`
	Running  bool       `json:"running"`
	Runs     int64      `json:"runs"`
	Failures int64      `json:"failures"`
	LastRun  *time.Time `json:"last_run,omitempty"`
	NextRun  *time.Time `json:"next_run,omitempty"`
	LastErr  string     `json:"last_error,omitempty"`
}

type job struct {
	id      string
	name    string
	trigger string
	handler JobFunc

	entryID  cron.EntryID
	paused   bool
	running  bool
	runs     int64
	failures int64
	lastRun  time.Time
	lastErr  string
}

// Scheduler owns the cron runner and the job registry.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger

	mu   sync.Mutex
	jobs map[string]*job
	sem  chan struct{}
	wg   sync.WaitGroup

	misfireGrace time.Duration

	baseCtx context.Context
	cancel  context.CancelFunc
}

// New builds a scheduler in the given timezone (IANA name, e.g.
// "Asia/Riyadh"). An empty timezone means local time.
func New(timezone string) (*Scheduler, error) {
	loc := time.Local
	if timezone != "" {
		var err error
		loc, err = time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid scheduler timezone %q: %w", timezone, err)
		}
	}

	logger := slog.Default().With("component", "scheduler")
	cronLogger := &slogCronLogger{logger: logger}
	baseCtx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(
				cron.Recover(cronLogger),
				cron.SkipIfStillRunning(cronLogger),
			),
		),
		logger:       logger,
		jobs:         make(map[string]*job),
		sem:          make(chan struct{}, maxConcurrentJobs),
		misfireGrace: defaultMisfireGrace,
		baseCtx:      baseCtx,
		cancel:       cancel,
	}, nil
}

// Register adds a job under id, replacing any existing job with that id.
// trigger is a standard 5-field cron expression or an @every duration.
func (s *Scheduler) Register(id, name, trigger string, handler JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.jobs[id]; ok && !existing.paused {
		s.cron.Remove(existing.entryID)
	}

	j := &job{id: id, name: name, trigger: trigger, handler: handler}
	entryID, err := s.cron.AddFunc(trigger, func() { s.run(j) })
	if err != nil {
		return fmt.Errorf("invalid trigger %q for job %s: %w", trigger, id, err)
	}
	j.entryID = entryID
	s.jobs[id] = j
	s.logger.Info("Job registered", "job_id", id, "trigger", trigger)
	return nil
}

// Start begins firing triggers. Idempotent.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Scheduler started", "jobs", len(s.jobs))
}

// Shutdown stops firing new triggers and waits for in-flight jobs or the
// context, whichever comes first.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.cancel()
	s.cron.Stop()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler shutdown timed out: %w", ctx.Err())
	}
}

// Trigger fires a job immediately, outside its schedule. The run goes
// through the same concurrency bound and bookkeeping as a cron fire.
func (s *Scheduler) Trigger(id string) error {
	s.mu.Lock()
	j, ok := s.jobs[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown job %q", id)
	}
	go s.run(j)
	return nil
}

// Pause detaches the job from its trigger. The registration survives.
func (s *Scheduler) Pause(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("unknown job %q", id)
	}
	if j.paused {
		return nil
	}
	s.cron.Remove(j.entryID)
	j.paused = true
	s.logger.Info("Job paused", "job_id", id)
	return nil
}

// Resume re-attaches a paused job to its trigger.
func (s *Scheduler) Resume(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("unknown job %q", id)
	}
	if !j.paused {
		return nil
	}
	entryID, err := s.cron.AddFunc(j.trigger, func() { s.run(j) })
	if err != nil {
		return err
	}
	j.entryID = entryID
	j.paused = false
	s.logger.Info("Job resumed", "job_id", id)
	return nil
}

// List returns a snapshot of every registered job, sorted by id.
func (s *Scheduler) List() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make([]JobStatus, 0, len(s.jobs))
	for _, j := range s.jobs {
		st := JobStatus{
			ID:       j.id,
			Name:     j.name,
			Trigger:  j.trigger,
			Paused:   j.paused,
			Running:  j.running,
			Runs:     j.runs,
			Failures: j.failures,
			LastErr:  j.lastErr,
		}
		if !j.lastRun.IsZero() {
			t := j.lastRun
			st.LastRun = &t
		}
		if !j.paused {
			next := s.cron.Entry(j.entryID).Next
			if !next.IsZero() {
				st.NextRun = &next
			}
		}
		statuses = append(statuses, st)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].ID < statuses[j].ID })
	return statuses
}

// run executes one occurrence under the concurrency bound. Panics and
// errors are absorbed. An occurrence that could not start within the
// misfire grace (pool saturation, clock suspension) is dropped, not run.
func (s *Scheduler) run(j *job) {
	s.wg.Add(1)
	defer s.wg.Done()

	fireTime := time.Now()

	select {
	case s.sem <- struct{}{}:
	case <-s.baseCtx.Done():
		return
	}
	defer func() { <-s.sem }()

	if delay := time.Since(fireTime); delay > s.misfireGrace {
		s.logger.Warn("Job misfired beyond grace, dropping occurrence",
			"job_id", j.id, "delay", delay.String())
		return
	}

	s.mu.Lock()
	j.running = true
	s.mu.Unlock()

	start := time.Now()
	err := s.safeCall(j)

	s.mu.Lock()
	j.running = false
	j.runs++
	j.lastRun = start
	if err != nil {
		j.failures++
		j.lastErr = err.Error()
	} else {
		j.lastErr = ""
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("Job failed", "job_id", j.id, "duration", time.Since(start).String(), "error", err)
		return
	}
	s.logger.Info("Job completed", "job_id", j.id, "duration", time.Since(start).String())
}

func (s *Scheduler) safeCall(j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return j.handler(s.baseCtx)
}

// slogCronLogger adapts the cron logger interface onto slog.
type slogCronLogger struct {
	logger *slog.Logger
}

func (l *slogCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l *slogCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
