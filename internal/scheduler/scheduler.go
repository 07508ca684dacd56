// Package scheduler runs the periodic recurrence tick.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/diewo77/invoice-engine/internal/metrics"
	"github.com/diewo77/invoice-engine/internal/services"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Ticker is the part of the invoice service the scheduler drives.
type Ticker interface {
	TickAll(ctx context.Context, asOf time.Time) (services.TickReport, error)
}

// Scheduler manages the cron job that generates recurring invoices and dispatches
// scheduled sends.
type Scheduler struct {
	cron     *cron.Cron
	ticker   Ticker
	metrics  *metrics.InvoiceMetrics
	log      zerolog.Logger
	schedule string
	now      func() time.Time

	// running guards against overlapping runs when one tick outlasts the interval.
	running sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
}

type cronLogger struct{ log zerolog.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

func New(ticker Ticker, schedule string, m *metrics.InvoiceMetrics, log zerolog.Logger) *Scheduler {
	cl := cronLogger{log: log}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:     cron.New(cron.WithChain(cron.Recover(cl)), cron.WithLogger(cl)),
		ticker:   ticker,
		metrics:  m,
		log:      log,
		schedule: schedule,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start registers the tick job and starts the cron scheduler.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, func() { s.Run(s.ctx) }); err != nil {
		return fmt.Errorf("schedule recurrence tick %q: %w", s.schedule, err)
	}
	s.log.Info().Str("schedule", s.schedule).Msg("scheduled recurrence tick")
	s.cron.Start()
	return nil
}

// Stop cancels a running tick and waits for it to return.
func (s *Scheduler) Stop() context.Context {
	s.cancel()
	return s.cron.Stop()
}

// Run performs one tick. A run that starts while another is in progress is skipped.
func (s *Scheduler) Run(ctx context.Context) (services.TickReport, error) {
	if !s.running.TryLock() {
		s.log.Warn().Msg("previous recurrence tick still running, skipping")
		return services.TickReport{}, nil
	}
	defer s.running.Unlock()

	start := time.Now()
	report, err := s.ticker.TickAll(ctx, s.now())
	s.metrics.ObserveTick(time.Since(start))

	ev := s.log.Info()
	if err != nil {
		ev = s.log.Error().Err(err)
	}
	ev.Int("generated", len(report.Generated)).
		Int("sent", len(report.Sent)).
		Int("failed", report.Failed).
		Dur("took", time.Since(start)).
		Msg("recurrence tick finished")
	return report, err
}
