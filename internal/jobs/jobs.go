// Package jobs runs scheduled maintenance.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jw6ventures/calgrid/internal/log"
	"github.com/jw6ventures/calgrid/internal/metrics"
)

// TokenPurger removes expired login tokens.
type TokenPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Scheduler runs the token sweep on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	purger  TokenPurger
	timeout time.Duration
}

// NewScheduler registers the token sweep under spec, which accepts standard
// five-field expressions and descriptors such as "@hourly".
func NewScheduler(spec string, purger TokenPurger) (*Scheduler, error) {
	logger := cronLogger{}
	c := cron.New(cron.WithChain(
		cron.Recover(logger),
		cron.SkipIfStillRunning(logger),
	))
	s := &Scheduler{cron: c, purger: purger, timeout: time.Minute}
	if _, err := c.AddFunc(spec, s.sweep); err != nil {
		return nil, fmt.Errorf("schedule token sweep %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running sweep, up to ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	_, _ = SweepTokens(ctx, s.purger)
}

// SweepTokens purges expired tokens once.
func SweepTokens(ctx context.Context, purger TokenPurger) (int64, error) {
	n, err := purger.PurgeExpired(ctx)
	if err != nil {
		log.Error("token sweep failed", err)
		return 0, err
	}
	metrics.ObserveTokensPurged(n)
	if n > 0 {
		log.Info("purged expired tokens", "count", n)
	}
	return n, nil
}

// cronLogger routes cron's own messages into the application log.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	log.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	log.Error("cron: "+msg, err, keysAndValues...)
}
