package core

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// job is a periodic task due whenever the clock reaches next.
type job struct {
	name  string
	every time.Duration
	next  time.Time
	run   func(context.Context)
}

// due reports whether j should run at now and, if so, schedules its next run.
func (j *job) due(now time.Time) bool {
	if now.Before(j.next) {
		return false
	}
	j.next = now.Add(j.every)
	return true
}

func (o *Orchestrator) schedule() {
	now := o.clock.Now()
	jobs := []*job{{
		name:  "health",
		every: o.cfg.Seconds("health_monitoring.check_interval", 60*time.Second),
		run:   func(ctx context.Context) { o.RunHealthCycle(ctx) },
	}}
	if o.cfg.Bool("cost_optimization.enabled", true) {
		jobs = append(jobs, &job{
			name:  "cost",
			every: o.cfg.Seconds("cost_optimization.check_interval", 3600*time.Second),
			run:   func(ctx context.Context) { o.RunCostCycle(ctx) },
		})
	}
	for _, j := range jobs {
		j.next = now.Add(j.every)
		log.Debug().Str("job", j.name).Dur("every", j.every).Msg("Scheduled job")
	}

	o.jobsMu.Lock()
	o.jobs = jobs
	o.jobsMu.Unlock()
}

func (o *Orchestrator) runPending(ctx context.Context) {
	now := o.clock.Now()
	o.jobsMu.Lock()
	var due []*job
	for _, j := range o.jobs {
		if j.due(now) {
			due = append(due, j)
		}
	}
	o.jobsMu.Unlock()

	for _, j := range due {
		if ctx.Err() != nil || o.stopped.Load() {
			return
		}
		j.run(ctx)
	}
}

// Start runs both cycles once, then runs them on their intervals until ctx
// is done or Stop is called. Both are observed at the next tick.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.stopped.Store(false)
	log.Info().Msg("Starting backbone")
	o.schedule()
	log.Info().Msg("Backbone started successfully")

	o.RunHealthCycle(ctx)
	if o.cfg.Bool("cost_optimization.enabled", true) {
		o.RunCostCycle(ctx)
	}

	ticker := time.NewTicker(o.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Backbone stopped")
			return nil
		case <-ticker.C:
			if o.stopped.Load() {
				log.Info().Msg("Backbone stopped")
				return nil
			}
			o.runPending(ctx)
		}
	}
}

// Stop clears pending jobs and ends the loop at the next tick.
func (o *Orchestrator) Stop() {
	log.Info().Msg("Stopping backbone")
	o.stopped.Store(true)
	o.jobsMu.Lock()
	o.jobs = nil
	o.jobsMu.Unlock()
}

// Running reports whether any jobs are scheduled.
func (o *Orchestrator) Running() bool {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	return len(o.jobs) > 0 && !o.stopped.Load()
}
