package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sentinel_server/core/domain"
	"sentinel_server/core/port/out"
	"sentinel_server/pkg/logger"
)

// DigestService flushes the deferred MODERATE-tier queue as one daily
// summary email to the care team.
type DigestService struct {
	queue out.DigestQueuePort
	email out.EmailSenderPort
	to    string
	log   *logger.Logger
}

// NewDigestService creates the digest flusher.
func NewDigestService(queue out.DigestQueuePort, email out.EmailSenderPort, careTeamEmail string) *DigestService {
	return &DigestService{
		queue: queue,
		email: email,
		to:    careTeamEmail,
		log:   logger.Default().WithField("component", "digest"),
	}
}

// Flush drains the queue and sends the summary. An empty queue sends
// nothing. On a send failure the drained entries are put back so the
// next flush picks them up again.
func (s *DigestService) Flush(ctx context.Context) (int, error) {
	entries, err := s.queue.Drain(ctx)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	msg := buildDigestEmail(s.to, entries)
	if err := s.email.SendEmail(ctx, msg); err != nil {
		requeued := 0
		for _, e := range entries {
			if enqErr := s.queue.Enqueue(ctx, e); enqErr != nil {
				s.log.WithError(enqErr).Error("could not requeue digest entry for alert %d", e.AlertID)
				continue
			}
			requeued++
		}
		s.log.WithError(err).Error("digest send failed, requeued %d of %d entries", requeued, len(entries))
		return 0, err
	}

	s.log.Info("daily digest sent with %d entries", len(entries))
	return len(entries), nil
}

// QueueDepth reports the number of pending digest entries.
func (s *DigestService) QueueDepth(ctx context.Context) (int64, error) {
	return s.queue.Len(ctx)
}

func buildDigestEmail(to string, entries []*out.DigestEntry) *out.EmailMessage {
	byCategory := make(map[domain.Category]int)
	for _, e := range entries {
		byCategory[e.Category]++
	}

	var text strings.Builder
	fmt.Fprintf(&text, "Daily crisis digest: %d moderate-tier alerts since the last flush.\n\n", len(entries))
	for cat, n := range byCategory {
		fmt.Fprintf(&text, "  %s: %d\n", cat, n)
	}
	text.WriteString("\nAlerts:\n")
	for _, e := range entries {
		fmt.Fprintf(&text, "  alert %d  user %s  %s  (%s)  queued %s\n",
			e.AlertID, e.UserID, e.Category, e.Source, e.QueuedAt.Format(time.RFC3339))
	}

	var html strings.Builder
	fmt.Fprintf(&html, "<h2>Daily crisis digest</h2><p>%d moderate-tier alerts since the last flush.</p><ul>", len(entries))
	for _, e := range entries {
		fmt.Fprintf(&html, "<li>alert %d &mdash; user %s &mdash; %s (%s)</li>", e.AlertID, e.UserID, e.Category, e.Source)
	}
	html.WriteString("</ul>")

	return &out.EmailMessage{
		To:      to,
		Subject: fmt.Sprintf("Daily crisis digest: %d alerts pending review", len(entries)),
		HTML:    html.String(),
		Text:    text.String(),
	}
}
