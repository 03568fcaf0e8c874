package service

import (
	"context"
	"time"

	"mailprobe/internal/constants"

	"github.com/sirupsen/logrus"
)

// Scheduler runs the recurring maintenance tasks: resetting relay daily
// counters and pruning old verification records.
type Scheduler struct {
	store           Storage
	retentionDays   int
	quotaIntervalHr int
	logger          *logrus.Logger
	stopCh          chan struct{}
}

func NewScheduler(store Storage, retentionDays, quotaIntervalHr int, logger *logrus.Logger) *Scheduler {
	if quotaIntervalHr <= 0 {
		quotaIntervalHr = constants.DefaultQuotaResetIntervalHours
	}
	if retentionDays <= 0 {
		retentionDays = constants.DefaultRetentionDays
	}
	return &Scheduler{
		store:           store,
		retentionDays:   retentionDays,
		quotaIntervalHr: quotaIntervalHr,
		logger:          logger,
		stopCh:          make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	quotaTicker := time.NewTicker(time.Duration(s.quotaIntervalHr) * time.Hour)
	defer quotaTicker.Stop()
	cleanupTicker := time.NewTicker(24 * time.Hour)
	defer cleanupTicker.Stop()

	s.logger.WithFields(logrus.Fields{
		"quota_interval_hours": s.quotaIntervalHr,
		"retention_days":       s.retentionDays,
	}).Info("Starting maintenance scheduler")

	// Counters are NOT reset at startup; a restart must not hand every
	// relay a fresh quota.
	s.runCleanup(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler context cancelled, stopping")
			return
		case <-s.stopCh:
			s.logger.Info("Scheduler stop signal received, stopping")
			return
		case <-quotaTicker.C:
			s.runQuotaReset(ctx)
		case <-cleanupTicker.C:
			s.runCleanup(ctx)
		}
	}
}

func (s *Scheduler) Stop() {
	close(s.stopCh)
}

func (s *Scheduler) runQuotaReset(ctx context.Context) {
	if err := s.store.ResetDailyCounters(ctx); err != nil {
		s.logger.WithError(err).Error("Failed to reset relay daily counters")
		return
	}
	s.logger.Info("Relay daily counters reset")
}

func (s *Scheduler) runCleanup(ctx context.Context) {
	s.logger.WithField("retentionDays", s.retentionDays).Info("Running scheduled cleanup")

	if err := s.store.CleanupOldVerifications(ctx, s.retentionDays); err != nil {
		s.logger.WithError(err).Error("Failed to cleanup old verification records")
	} else {
		s.logger.Info("Successfully completed cleanup")
	}
}
