// Package alert manages the crisis-alert review lifecycle.
package alert

import (
	"context"
	"time"

	"github.com/google/uuid"

	"sentinel_server/core/domain"
	"sentinel_server/core/port/out"
	"sentinel_server/pkg/apperr"
	"sentinel_server/pkg/logger"
	"sentinel_server/pkg/metrics"
	"sentinel_server/pkg/snowflake"
)

// Service persists actionable detections as alerts and manages their
// review state. Status transitions go through the repository's
// conditional updates so a lost race surfaces as an invalid
// transition, never a silent overwrite.
type Service struct {
	repo     domain.AlertRepository
	audit    domain.DetectionAuditRepository
	dedup    out.DedupPort
	realtime out.RealtimePort
	reviewer out.ReviewerPort
	ids      *snowflake.Generator
	log      *logger.Logger

	dedupCooldown time.Duration
}

// Config for the alert service.
type Config struct {
	DedupCooldown time.Duration
}

// NewService creates the alert service. audit, dedup, realtime and
// reviewer are optional; a nil port disables that concern.
func NewService(
	repo domain.AlertRepository,
	audit domain.DetectionAuditRepository,
	dedup out.DedupPort,
	realtime out.RealtimePort,
	reviewer out.ReviewerPort,
	ids *snowflake.Generator,
	cfg Config,
) *Service {
	cooldown := cfg.DedupCooldown
	if cooldown <= 0 {
		cooldown = 30 * time.Minute
	}
	return &Service{
		repo:          repo,
		audit:         audit,
		dedup:         dedup,
		realtime:      realtime,
		reviewer:      reviewer,
		ids:           ids,
		log:           logger.Default().WithField("component", "alert_service"),
		dedupCooldown: cooldown,
	}
}

// CreateFromDetection persists one detection as an OPEN alert.
// Returns (nil, nil) when the tier does not open an alert or the
// cooldown window suppressed a duplicate. Store failures propagate:
// losing a CRITICAL alert write is never acceptable.
func (s *Service) CreateFromDetection(ctx context.Context, result *domain.DetectionResult, userID uuid.UUID) (*domain.CrisisAlert, error) {
	if result == nil || !result.ResolvedTier.CreatesAlert() {
		s.recordAudit(ctx, result, userID, 0)
		return nil, nil
	}

	if s.dedup != nil {
		ok, err := s.dedup.Acquire(ctx, userID.String(), result.ResolvedTier, s.dedupCooldown)
		if err != nil {
			// Dedup is an optimization; losing it must not lose the alert.
			s.log.WithError(err).Warn("dedup check failed, creating alert anyway")
		} else if !ok {
			metrics.Global().IncDedupSuppressed()
			s.log.WithField("user_id", userID.String()).
				Info("alert suppressed by cooldown window, tier=%s", result.ResolvedTier)
			s.recordAudit(ctx, result, userID, 0)
			return nil, nil
		}
	}

	trigger, _ := result.TriggeringTerm()

	alert := &domain.CrisisAlert{
		ID:             s.ids.MustGenerate(),
		UserID:         userID,
		Tier:           result.ResolvedTier,
		Source:         result.Source,
		TriggeredBy:    trigger.Phrase,
		Category:       trigger.Category,
		FlaggedContent: result.InputText,
		Status:         domain.AlertStatusOpen,
		CreatedAt:      time.Now(),
	}

	if err := s.repo.Create(ctx, alert); err != nil {
		if s.dedup != nil {
			_ = s.dedup.Release(ctx, userID.String(), result.ResolvedTier)
		}
		return nil, err
	}

	metrics.Global().IncAlertsOpened()
	s.recordAudit(ctx, result, userID, alert.ID)
	s.broadcast(ctx, domain.EventAlertOpened, alert)

	if s.reviewer != nil && alert.Tier == domain.TierModerate {
		go s.reviewFlagged(alert)
	}

	s.log.WithFields(map[string]any{
		"alert_id": alert.ID,
		"tier":     string(alert.Tier),
		"source":   string(alert.Source),
	}).Info("crisis alert opened")

	return alert, nil
}

// Acknowledge moves an alert OPEN -> ACKNOWLEDGED. A concurrent
// acknowledgment loses with an invalid-transition error.
func (s *Service) Acknowledge(ctx context.Context, alertID int64, reviewerID uuid.UUID) (*domain.CrisisAlert, error) {
	now := time.Now()
	ok, err := s.repo.Acknowledge(ctx, alertID, reviewerID, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		current, getErr := s.repo.GetByID(ctx, alertID)
		if getErr != nil {
			return nil, getErr
		}
		return nil, apperr.InvalidTransition(alertID, string(current.Status), string(domain.AlertStatusAcknowledged))
	}

	alert, err := s.repo.GetByID(ctx, alertID)
	if err != nil {
		return nil, err
	}

	s.broadcast(ctx, domain.EventAlertAcknowledged, alert)
	s.log.WithField("alert_id", alertID).Info("alert acknowledged by %s", reviewerID)
	return alert, nil
}

// Resolve moves an alert to RESOLVED from OPEN or ACKNOWLEDGED. An
// optional resolution note is appended before the transition.
func (s *Service) Resolve(ctx context.Context, alertID int64, reviewerID uuid.UUID, resolutionNote string) (*domain.CrisisAlert, error) {
	if resolutionNote != "" {
		if err := s.AddNote(ctx, alertID, reviewerID, resolutionNote); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	ok, err := s.repo.Resolve(ctx, alertID, reviewerID, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		current, getErr := s.repo.GetByID(ctx, alertID)
		if getErr != nil {
			return nil, getErr
		}
		return nil, apperr.InvalidTransition(alertID, string(current.Status), string(domain.AlertStatusResolved))
	}

	alert, err := s.repo.GetByID(ctx, alertID)
	if err != nil {
		return nil, err
	}

	s.broadcast(ctx, domain.EventAlertResolved, alert)
	s.log.WithField("alert_id", alertID).Info("alert resolved by %s", reviewerID)
	return alert, nil
}

// AddNote appends an annotation without changing status. Notes are
// rejected on resolved alerts.
func (s *Service) AddNote(ctx context.Context, alertID int64, authorID uuid.UUID, body string) error {
	if body == "" {
		return apperr.MissingField("note")
	}

	alert, err := s.repo.GetByID(ctx, alertID)
	if err != nil {
		return err
	}
	if alert.Status.Terminal() {
		return apperr.InvalidTransition(alertID, string(alert.Status), string(alert.Status))
	}

	note := &domain.AlertNote{
		ID:       s.ids.MustGenerate(),
		AlertID:  alertID,
		AuthorID: authorID,
		Body:     body,
		AddedAt:  time.Now(),
	}
	if err := s.repo.AddNote(ctx, note); err != nil {
		return err
	}

	s.broadcast(ctx, domain.EventAlertNoteAdded, alert)
	return nil
}

// GetByID loads one alert with its notes.
func (s *Service) GetByID(ctx context.Context, alertID int64) (*domain.CrisisAlert, error) {
	alert, err := s.repo.GetByID(ctx, alertID)
	if err != nil {
		return nil, err
	}

	notes, err := s.repo.ListNotes(ctx, alertID)
	if err != nil {
		return nil, err
	}
	alert.Notes = notes
	return alert, nil
}

// List returns alerts matching the filter plus the total count.
func (s *Service) List(ctx context.Context, filter *domain.AlertFilter) ([]*domain.CrisisAlert, int, error) {
	return s.repo.List(ctx, filter)
}

// FindUnacknowledgedOlderThan supports the escalation sweep.
func (s *Service) FindUnacknowledgedOlderThan(ctx context.Context, tier domain.Tier, age time.Duration) ([]*domain.CrisisAlert, error) {
	if !tier.Valid() {
		return nil, apperr.InvalidTier(string(tier))
	}
	cutoff := time.Now().Add(-age)
	return s.repo.FindUnacknowledgedOlderThan(ctx, tier, cutoff)
}

// ClaimForEscalation stamps the alert as escalated only while it is
// still OPEN, so a racing acknowledgment prevents a stale re-send.
func (s *Service) ClaimForEscalation(ctx context.Context, alertID int64) (bool, error) {
	ok, err := s.repo.MarkEscalated(ctx, alertID, time.Now())
	if err != nil {
		return false, err
	}
	if ok {
		metrics.Global().IncEscalations()
		if alert, err := s.repo.GetByID(ctx, alertID); err == nil {
			s.broadcast(ctx, domain.EventAlertEscalated, alert)
		}
	}
	return ok, nil
}

// StatusCounts reports alert counts per status for monitoring.
func (s *Service) StatusCounts(ctx context.Context) (map[domain.AlertStatus]int64, error) {
	return s.repo.CountByStatus(ctx)
}

// reviewFlagged asks the LLM for a second opinion on borderline
// MODERATE detections and appends the verdict as a note. Runs in its
// own goroutine after the alert is persisted, so a slow model never
// delays creation or dispatch. Advisory only: failures are logged and
// the alert stands unreviewed.
func (s *Service) reviewFlagged(alert *domain.CrisisAlert) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	review, err := s.reviewer.ReviewFlaggedText(ctx, alert.FlaggedContent, alert.TriggeredBy, string(alert.Category))
	metrics.Global().RecordLatency(metrics.StageReview, time.Since(start))
	if err != nil {
		s.log.WithError(err).Warn("llm review failed, alert stands unreviewed")
		return
	}

	if err := s.AddNote(ctx, alert.ID, uuid.Nil, review.Assessment+": "+review.Summary); err != nil {
		s.log.WithError(err).Warn("could not attach llm review note")
	}
}

func (s *Service) recordAudit(ctx context.Context, result *domain.DetectionResult, userID uuid.UUID, alertID int64) {
	if s.audit == nil || result == nil {
		return
	}

	audit := &domain.DetectionAudit{
		UserID:       userID,
		Source:       result.Source,
		InputExcerpt: result.InputText,
		ResolvedTier: result.ResolvedTier,
		MatchedTerms: result.MatchedTerms,
		Excluded:     result.ExcludedByNegation,
		AlertID:      alertID,
		ScannedAt:    result.ScannedAt,
	}

	start := time.Now()
	if err := s.audit.Insert(ctx, audit); err != nil {
		// Audit trail is best-effort; the alert itself is already safe.
		s.log.WithError(err).Warn("detection audit insert failed")
	}
	metrics.Global().RecordLatency(metrics.StagePersist, time.Since(start))
}

func (s *Service) broadcast(ctx context.Context, eventType domain.EventType, alert *domain.CrisisAlert) {
	if s.realtime == nil {
		return
	}
	if err := s.realtime.Broadcast(ctx, domain.NewAlertEvent(eventType, "", alert)); err != nil {
		s.log.WithError(err).Debug("realtime broadcast failed")
	}
}
