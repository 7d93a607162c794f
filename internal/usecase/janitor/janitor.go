// Package janitor runs recurring maintenance: connection pool sweeps and
// response cache purges. Jobs are scheduled with cron expressions or plain
// durations.
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// taskTimeout bounds one maintenance run. Sweeps and purges finish in
// milliseconds; anything near this limit is stuck.
const taskTimeout = time.Minute

// Task is one recurring maintenance job.
type Task struct {
	Name     string
	Schedule string // cron expression "*/5 * * * *" or duration "30m"
	Run      func(ctx context.Context) error
}

// Janitor schedules maintenance tasks on a shared cron runner.
type Janitor struct {
	cron   *cron.Cron
	logger *slog.Logger

	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
}

func New(logger *slog.Logger) *Janitor {
	return &Janitor{
		cron:   cron.New(),
		logger: logger,
	}
}

// Add registers a task. The schedule can be a cron expression or a duration
// string; tasks added after Start are picked up by the running cron.
func (j *Janitor) Add(task Task) error {
	if task.Run == nil {
		return fmt.Errorf("janitor: task %q has no run function", task.Name)
	}
	schedule, err := parseSchedule(task.Schedule)
	if err != nil {
		return fmt.Errorf("janitor: invalid schedule %q for task %q: %w", task.Schedule, task.Name, err)
	}

	name := task.Name
	run := task.Run
	j.cron.Schedule(schedule, cron.FuncJob(func() {
		j.mu.Lock()
		ctx := j.ctx
		j.mu.Unlock()

		if ctx == nil {
			j.logger.Debug("janitor stopped, skipping task", "task", name)
			return
		}

		taskCtx, cancel := context.WithTimeout(ctx, taskTimeout)
		defer cancel()

		start := time.Now()
		if err := run(taskCtx); err != nil {
			j.logger.Warn("maintenance task failed",
				"task", name,
				"error", err,
				"duration", time.Since(start))
			return
		}
		j.logger.Debug("maintenance task completed",
			"task", name,
			"duration", time.Since(start))
	}))

	j.logger.Info("maintenance task scheduled", "task", name, "schedule", task.Schedule)
	return nil
}

// Start begins running the scheduled tasks.
func (j *Janitor) Start(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.started {
		return
	}
	j.ctx, j.cancel = context.WithCancel(ctx)
	j.cron.Start()
	j.started = true
}

// Stop halts scheduling and waits for running tasks to finish.
func (j *Janitor) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.started {
		return
	}
	j.cancel()
	j.ctx = nil
	stopCtx := j.cron.Stop()
	<-stopCtx.Done()
	j.started = false
}

// parseSchedule tries a cron expression first, then falls back to a
// duration.
func parseSchedule(schedule string) (cron.Schedule, error) {
	if schedule == "" {
		return nil, fmt.Errorf("empty schedule")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if sched, err := parser.Parse(schedule); err == nil {
		return sched, nil
	}

	dur, err := time.ParseDuration(schedule)
	if err != nil {
		return nil, fmt.Errorf("not a valid cron expression or duration: %q", schedule)
	}
	if dur <= 0 {
		return nil, fmt.Errorf("duration must be positive: %q", schedule)
	}
	return &constantDelay{delay: dur}, nil
}

// constantDelay implements cron.Schedule for a fixed interval. Unlike
// cron.Every(), it supports sub-second durations.
type constantDelay struct {
	delay time.Duration
}

func (d *constantDelay) Next(t time.Time) time.Time {
	return t.Add(d.delay)
}
