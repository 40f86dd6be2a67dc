// Package orchestrator runs the ledger's periodic jobs: scheduled reward
// distribution and on-chain account mirroring.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Job is a unit of periodic work.
type Job struct {
	Name     string
	Interval time.Duration
	// RunOnStart runs the job once before the first tick.
	RunOnStart bool
	Run        func(ctx context.Context) error
}

// JobStatus is a snapshot of one job's run history.
type JobStatus struct {
	Name      string    `json:"name"`
	Interval  string    `json:"interval"`
	Running   bool      `json:"running"`
	Runs      int       `json:"runs"`
	Failures  int       `json:"failures"`
	LastRun   time.Time `json:"lastRun,omitempty"`
	LastError string    `json:"lastError,omitempty"`
}

// Orchestrator drives a set of jobs, each on its own ticker. A job is never
// run concurrently with itself; a tick that arrives while it is running is
// skipped.
type Orchestrator struct {
	jobs []Job
	log  *logrus.Entry

	mu      sync.Mutex
	started time.Time
	status  map[string]*JobStatus
}

// Options for creating Orchestrator.
type Options struct {
	Jobs   []Job
	Logger *logrus.Entry
}

// New creates a new Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.WithField("component", "orchestrator")
	}
	o := &Orchestrator{
		log:    logger,
		status: make(map[string]*JobStatus, len(opts.Jobs)),
	}
	for _, job := range opts.Jobs {
		if job.Name == "" || job.Run == nil {
			return nil, errors.New("orchestrator: job needs a name and a run function")
		}
		if job.Interval <= 0 {
			return nil, fmt.Errorf("orchestrator: job %s: interval must be positive", job.Name)
		}
		if _, dup := o.status[job.Name]; dup {
			return nil, fmt.Errorf("orchestrator: duplicate job %s", job.Name)
		}
		o.jobs = append(o.jobs, job)
		o.status[job.Name] = &JobStatus{Name: job.Name, Interval: job.Interval.String()}
	}
	return o, nil
}

// Run starts every job and blocks until ctx is done. Job failures are
// recorded and logged, never returned.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	o.started = time.Now()
	o.mu.Unlock()
	o.log.WithField("jobs", len(o.jobs)).Info("starting scheduler")

	var wg sync.WaitGroup
	for _, job := range o.jobs {
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			o.loop(ctx, job)
		}(job)
	}
	wg.Wait()
	return ctx.Err()
}

func (o *Orchestrator) loop(ctx context.Context, job Job) {
	if job.RunOnStart {
		o.RunNow(ctx, job.Name)
	}

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.RunNow(ctx, job.Name)
		}
	}
}

// RunNow runs the named job once, unless it is already running. It reports
// whether the job ran.
func (o *Orchestrator) RunNow(ctx context.Context, name string) bool {
	job, ok := o.job(name)
	if !ok {
		return false
	}

	o.mu.Lock()
	st := o.status[name]
	if st.Running {
		o.mu.Unlock()
		o.log.WithField("job", name).Debug("job already running, skipping")
		return false
	}
	st.Running = true
	o.mu.Unlock()

	start := time.Now()
	err := job.Run(ctx)
	elapsed := time.Since(start)

	o.mu.Lock()
	st.Running = false
	st.Runs++
	st.LastRun = start
	st.LastError = ""
	if err != nil {
		st.Failures++
		st.LastError = err.Error()
	}
	o.mu.Unlock()

	entry := o.log.WithFields(logrus.Fields{"job": name, "duration": elapsed})
	switch {
	case err == nil:
		entry.Debug("job completed")
	case errors.Is(err, context.Canceled):
		entry.Debug("job canceled")
	default:
		entry.WithError(err).Warn("job failed")
	}
	return true
}

func (o *Orchestrator) job(name string) (Job, bool) {
	for _, job := range o.jobs {
		if job.Name == name {
			return job, true
		}
	}
	return Job{}, false
}

// Status returns a snapshot of every job, ordered by name.
func (o *Orchestrator) Status() []JobStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]JobStatus, 0, len(o.status))
	for _, st := range o.status {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Uptime reports how long Run has been active.
func (o *Orchestrator) Uptime() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started.IsZero() {
		return 0
	}
	return time.Since(o.started)
}
