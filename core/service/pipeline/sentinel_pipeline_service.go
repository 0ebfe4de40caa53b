// Package pipeline wires the scan-to-notification flow end to end.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"sentinel_server/core/domain"
	"sentinel_server/core/service/alert"
	"sentinel_server/core/service/detection"
	"sentinel_server/core/service/dispatch"
	"sentinel_server/pkg/logger"
	"sentinel_server/pkg/metrics"
)

// ScanOutcome is the full result of one pipeline run.
type ScanOutcome struct {
	Detection *domain.DetectionResult `json:"detection"`
	Alert     *domain.CrisisAlert     `json:"alert,omitempty"`
	Dispatch  *domain.DispatchResult  `json:"dispatch,omitempty"`
}

// Service runs text through detection, persists actionable results as
// alerts, and fans out notifications. Detection itself never fails;
// downstream failures are isolated so a notification problem cannot
// lose the alert.
type Service struct {
	scanner    *detection.Scanner
	alerts     *alert.Service
	dispatcher *dispatch.Dispatcher
	log        *logger.Logger
}

// NewService creates the pipeline service. dispatcher is optional; nil
// disables notification fan-out (useful for replay and tests).
func NewService(scanner *detection.Scanner, alerts *alert.Service, dispatcher *dispatch.Dispatcher) *Service {
	return &Service{
		scanner:    scanner,
		alerts:     alerts,
		dispatcher: dispatcher,
		log:        logger.Default().WithField("component", "pipeline"),
	}
}

// ScanText runs one message through the full pipeline.
func (s *Service) ScanText(ctx context.Context, userID uuid.UUID, text string, source domain.ScanSource) (*ScanOutcome, error) {
	start := time.Now()
	result := s.scanner.Scan(text, source)
	metrics.Global().RecordLatency(metrics.StageScan, time.Since(start))
	metrics.Global().IncScans()

	outcome := &ScanOutcome{Detection: result}

	if result.HasMatches() {
		metrics.Global().IncDetections(string(result.ResolvedTier))
	}

	created, err := s.alerts.CreateFromDetection(ctx, result, userID)
	if err != nil {
		return outcome, err
	}
	if created == nil {
		return outcome, nil
	}
	outcome.Alert = created

	if s.dispatcher != nil {
		dr, err := s.dispatcher.SendCrisisNotifications(ctx, created)
		if err != nil {
			// The alert exists and is visible to reviewers; a dispatch
			// fault must not fail the scan.
			s.log.WithError(err).WithField("alert_id", created.ID).Error("notification dispatch failed")
		} else {
			outcome.Dispatch = dr
		}
	}

	return outcome, nil
}

// ScanOnly runs detection without persisting or notifying.
func (s *Service) ScanOnly(text string, source domain.ScanSource) *domain.DetectionResult {
	start := time.Now()
	result := s.scanner.Scan(text, source)
	metrics.Global().RecordLatency(metrics.StageScan, time.Since(start))
	metrics.Global().IncScans()
	return result
}
