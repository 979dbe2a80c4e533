// Package jobs – Scheduler
//
// Background maintenance on cron schedules: sweeping idle sessions to
// expired and rebuilding the vehicle embedding indexes after inventory
// churn. Jobs are plain funcs so they stay invocable from tests and from
// admin tooling without the scheduler.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/autoconversa/go-dealer-chat/internal/services"
	"github.com/autoconversa/go-dealer-chat/internal/vectorstore"
)

// Default 5-field cron specs (minute, hour, dom, month, dow).
const (
	DefaultExpireSpec  = "* * * * *"
	DefaultRebuildSpec = "*/10 * * * *"
)

const jobTimeout = 2 * time.Minute

// cronParser accepts standard 5-field cron expressions.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Scheduler owns the cron runner.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

// NewScheduler constructs a stopped scheduler.
func NewScheduler(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithParser(cronParser)),
		log:  log,
	}
}

// Add registers fn under a cron spec.
func (s *Scheduler) Add(spec string, fn func()) error {
	_, err := s.cron.AddFunc(spec, fn)
	return err
}

// Start launches the cron runner on its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for running jobs to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn().Msg("scheduler stop timed out with jobs still running")
	}
}

// ExpireIdleJob returns a job that transitions idle sessions to expired.
func ExpireIdleJob(sessions *services.SessionService, log zerolog.Logger) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		n, err := sessions.ExpireIdle(ctx)
		if err != nil {
			log.Error().Err(err).Msg("expire idle sessions")
			return
		}
		if n > 0 {
			log.Info().Int64("sessions", n).Msg("expired idle sessions")
		}
	}
}

// RebuildIndexJob returns a job that rebuilds every dealer's embedding index.
func RebuildIndexJob(store *vectorstore.Store, log zerolog.Logger) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		if err := store.RebuildAll(ctx); err != nil {
			log.Error().Err(err).Msg("rebuild embedding indexes")
		}
	}
}
