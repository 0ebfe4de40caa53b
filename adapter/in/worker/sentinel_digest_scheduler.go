package worker

import (
	"context"
	"time"

	"sentinel_server/core/service/dispatch"
	"sentinel_server/pkg/logger"
)

// =============================================================================
// DigestScheduler - daily batch send of MODERATE-tier notifications
// =============================================================================

const DigestFlushTimeout = 1 * time.Minute

type DigestScheduler struct {
	digest    *dispatch.DigestService
	flushHour int // local hour of day, 0-23
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewDigestScheduler creates a new digest scheduler. flushHour is the
// local hour at which the daily digest goes out.
func NewDigestScheduler(digest *dispatch.DigestService, flushHour int) *DigestScheduler {
	if flushHour < 0 || flushHour > 23 {
		flushHour = 9
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &DigestScheduler{
		digest:    digest,
		flushHour: flushHour,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start starts the digest scheduler.
func (s *DigestScheduler) Start() {
	logger.Info("[DigestScheduler] Starting, daily flush at %02d:00...", s.flushHour)
	go s.run()
}

// Stop stops the digest scheduler.
func (s *DigestScheduler) Stop() {
	logger.Info("[DigestScheduler] Stopping...")
	s.cancel()
}

// run sleeps until the next flush time, flushes, and repeats.
func (s *DigestScheduler) run() {
	for {
		wait := time.Until(s.nextFlush(time.Now()))

		select {
		case <-s.ctx.Done():
			logger.Info("[DigestScheduler] Stopped")
			return
		case <-time.After(wait):
			s.flush()
		}
	}
}

func (s *DigestScheduler) nextFlush(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), s.flushHour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s *DigestScheduler) flush() {
	ctx, cancel := context.WithTimeout(s.ctx, DigestFlushTimeout)
	defer cancel()

	sent, err := s.digest.Flush(ctx)
	if err != nil {
		logger.Error("[DigestScheduler] Flush failed: %v", err)
		return
	}

	if sent > 0 {
		logger.Info("[DigestScheduler] Sent digest with %d entries", sent)
	}
}
