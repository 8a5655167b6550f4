package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"securecheckout/internal/pkg/telegram"
)

// StaleAfter is how long a basket may stay frozen before it is reported.
const StaleAfter = 24 * time.Hour

// SessionSweeper drops expired sessions. Only the in-memory store needs one.
type SessionSweeper interface {
	Sweep() int
}

// StaleBaskets counts frozen baskets that never turned into orders.
type StaleBaskets interface {
	CountStaleFrozen(ctx context.Context, before time.Time) (int64, error)
}

// Scheduler manages all cron jobs.
type Scheduler struct {
	cron       *cron.Cron
	sweeper    SessionSweeper
	baskets    StaleBaskets
	botAPI     *telegram.BotAPI
	reportChat string
	now        func() time.Time
	logger     *zap.Logger
}

// New creates a new cron scheduler. sweeper may be nil; reports go to Telegram
// only when botAPI is enabled and reportChat is set.
func New(sweeper SessionSweeper, baskets StaleBaskets, botAPI *telegram.BotAPI, reportChat string, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:       cron.New(cron.WithSeconds()),
		sweeper:    sweeper,
		baskets:    baskets,
		botAPI:     botAPI,
		reportChat: reportChat,
		now:        time.Now,
		logger:     logger,
	}
}

// Start registers and starts all cron jobs.
func (s *Scheduler) Start() error {
	s.logger.Info("Starting cron scheduler...")

	if s.sweeper != nil {
		// Sweep expired sessions - every minute
		if _, err := s.cron.AddFunc("0 * * * * *", func() {
			s.sweepSessions()
		}); err != nil {
			return err
		}
	}

	// Report stuck authorizations - every 30 minutes
	if _, err := s.cron.AddFunc("0 */30 * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s.reportStaleBaskets(ctx)
	}); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop stops the scheduler; the returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) sweepSessions() int {
	defer s.recoverFromPanic("sweepSessions")

	removed := s.sweeper.Sweep()
	if removed > 0 {
		s.logger.Debug("Expired sessions swept", zap.Int("removed", removed))
	}
	return removed
}

// reportStaleBaskets flags baskets frozen for an authorization whose reply
// never arrived. They stay frozen until the payer tries again.
func (s *Scheduler) reportStaleBaskets(ctx context.Context) int64 {
	defer s.recoverFromPanic("reportStaleBaskets")

	n, err := s.baskets.CountStaleFrozen(ctx, s.now().Add(-StaleAfter))
	if err != nil {
		s.logger.Error("Count stale baskets failed", zap.Error(err))
		return 0
	}
	if n == 0 {
		return 0
	}

	s.logger.Warn("Baskets awaiting a gateway reply", zap.Int64("count", n), zap.Duration("older_than", StaleAfter))
	if s.botAPI.Enabled() && s.reportChat != "" {
		text := fmt.Sprintf("⚠️ %d basket(s) frozen for more than %s without a gateway reply.", n, StaleAfter)
		if _, err := s.botAPI.SendMessage(s.reportChat, text, nil); err != nil {
			s.logger.Error("Stale basket report failed", zap.Error(err))
		}
	}
	return n
}

func (s *Scheduler) recoverFromPanic(jobName string) {
	if r := recover(); r != nil {
		s.logger.Error("Cron job panicked", zap.String("job", jobName), zap.Any("error", r))
	}
}
