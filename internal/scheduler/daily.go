// Package scheduler runs jobs at a fixed wall-clock time every day.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Daily runs Job once a day at Hour:Minute in Location
type Daily struct {
	Name     string
	Hour     int
	Minute   int
	Location *time.Location
	Job      func(ctx context.Context) error

	// schedule replaces the daily spec in tests
	schedule cron.Schedule
}

// Midnight returns a Daily that runs job at 00:00 local time
func Midnight(name string, job func(ctx context.Context) error) *Daily {
	return &Daily{Name: name, Location: time.Local, Job: job}
}

// Spec returns the standard cron expression for the daily run
func (d *Daily) Spec() string {
	return fmt.Sprintf("%d %d * * *", d.Minute, d.Hour)
}

func (d *Daily) location() *time.Location {
	if d.Location == nil {
		return time.Local
	}
	return d.Location
}

func (d *Daily) cronSchedule() (cron.Schedule, error) {
	if d.schedule != nil {
		return d.schedule, nil
	}
	s, err := cron.ParseStandard(d.Spec())
	if err != nil {
		return nil, fmt.Errorf("parsing schedule %q: %w", d.Spec(), err)
	}
	if spec, ok := s.(*cron.SpecSchedule); ok {
		spec.Location = d.location()
	}
	return s, nil
}

// Next returns the first run time strictly after now, or the zero time when
// Hour or Minute is out of range.
func (d *Daily) Next(now time.Time) time.Time {
	s, err := d.cronSchedule()
	if err != nil {
		return time.Time{}
	}
	return s.Next(now)
}

// Run blocks, running the job at each scheduled time until ctx is cancelled.
// Job errors are logged and do not stop the schedule. A run still in
// progress when the next one is due causes that run to be skipped.
func (d *Daily) Run(ctx context.Context) error {
	s, err := d.cronSchedule()
	if err != nil {
		return err
	}

	logger := cron.PrintfLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelDebug))
	c := cron.New(
		cron.WithLocation(d.location()),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	c.Schedule(s, cron.FuncJob(func() { d.runJob(ctx) }))

	c.Start()
	slog.Info("Next scheduled run", "job", d.Name, "at", s.Next(time.Now().In(d.location())))

	<-ctx.Done()
	<-c.Stop().Done()
	slog.Info("Scheduler stopped", "job", d.Name)
	return nil
}

func (d *Daily) runJob(ctx context.Context) {
	start := time.Now()
	slog.Info("Starting scheduled job", "job", d.Name)
	if err := d.Job(ctx); err != nil {
		slog.Error("Scheduled job failed", "job", d.Name, "error", err)
		return
	}
	slog.Info("Scheduled job finished", "job", d.Name, "duration", time.Since(start))
}
