package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const sweepTimeout = 50 * time.Second

// ExpiredSubmitter submits attempts whose time ran out.
type ExpiredSubmitter interface {
	SubmitExpired(ctx context.Context) (int, error)
}

// PendingIssuer issues certificates missing for passed attempts.
type PendingIssuer interface {
	IssuePending(ctx context.Context) (int, error)
}

// DeadlineSweeper submits attempts abandoned past their deadline and repairs
// missing certificates, on a cron schedule.
type DeadlineSweeper struct {
	attempts     ExpiredSubmitter
	certificates PendingIssuer
	schedule     string
	log          zerolog.Logger
}

// NewDeadlineSweeper creates a new DeadlineSweeper.
func NewDeadlineSweeper(attempts ExpiredSubmitter, certificates PendingIssuer, schedule string, log zerolog.Logger) *DeadlineSweeper {
	return &DeadlineSweeper{
		attempts:     attempts,
		certificates: certificates,
		schedule:     schedule,
		log:          log.With().Str("component", "deadline_sweeper").Logger(),
	}
}

// Start schedules the sweep and blocks until ctx is cancelled, then waits
// for a running sweep to finish.
func (s *DeadlineSweeper) Start(ctx context.Context) error {
	logger := cronLogger{log: s.log}
	c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))

	if _, err := c.AddFunc(s.schedule, func() { s.Sweep(ctx) }); err != nil {
		return fmt.Errorf("schedule sweep %q: %w", s.schedule, err)
	}

	s.log.Info().Str("schedule", s.schedule).Msg("DeadlineSweeper started")
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	s.log.Info().Msg("DeadlineSweeper stopped")
	return nil
}

// Sweep runs one pass. Errors are logged; the next pass retries.
func (s *DeadlineSweeper) Sweep(parent context.Context) {
	if parent.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(parent, sweepTimeout)
	defer cancel()

	submitted, err := s.attempts.SubmitExpired(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("Expired attempt sweep failed")
	} else if submitted > 0 {
		s.log.Info().Int("submitted", submitted).Msg("Submitted expired attempts")
	}

	issued, err := s.certificates.IssuePending(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("Pending certificate sweep failed")
	} else if issued > 0 {
		s.log.Info().Int("issued", issued).Msg("Issued pending certificates")
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
