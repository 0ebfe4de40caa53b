package worker

import (
	"context"
	"time"

	"sentinel_server/core/service/dispatch"
	"sentinel_server/pkg/logger"
)

// =============================================================================
// EscalationScheduler - periodic sweep for unacknowledged alerts
// =============================================================================
//
// An alert that sits OPEN past its tier's acknowledgment window gets
// re-dispatched on a wider channel set. The sweep runs every minute;
// the dispatcher re-checks alert status per candidate so an
// acknowledgment landing mid-sweep wins.

const (
	EscalationSweepInterval = 1 * time.Minute
	EscalationSweepTimeout  = 2 * time.Minute
)

type EscalationScheduler struct {
	dispatcher    *dispatch.Dispatcher
	checkInterval time.Duration
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewEscalationScheduler creates a new escalation scheduler.
func NewEscalationScheduler(dispatcher *dispatch.Dispatcher) *EscalationScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &EscalationScheduler{
		dispatcher:    dispatcher,
		checkInterval: EscalationSweepInterval,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start starts the escalation scheduler.
func (s *EscalationScheduler) Start() {
	logger.Info("[EscalationScheduler] Starting...")
	go s.run()
}

// Stop stops the escalation scheduler.
func (s *EscalationScheduler) Stop() {
	logger.Info("[EscalationScheduler] Stopping...")
	s.cancel()
}

// run is the main loop.
func (s *EscalationScheduler) run() {
	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			logger.Info("[EscalationScheduler] Stopped")
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *EscalationScheduler) sweep() {
	ctx, cancel := context.WithTimeout(s.ctx, EscalationSweepTimeout)
	defer cancel()

	escalated, err := s.dispatcher.EscalateUnacknowledgedAlerts(ctx)
	if err != nil {
		logger.Error("[EscalationScheduler] Sweep failed: %v", err)
		return
	}

	if escalated > 0 {
		logger.Info("[EscalationScheduler] Escalated %d unacknowledged alerts", escalated)
	}
}
