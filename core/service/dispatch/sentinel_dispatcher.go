package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sentinel_server/core/domain"
	"sentinel_server/core/port/out"
	"sentinel_server/core/service/alert"
	"sentinel_server/pkg/logger"
	"sentinel_server/pkg/metrics"
	"sentinel_server/pkg/resilience"
)

// Config holds dispatch policy knobs.
type Config struct {
	// Per-channel send timeout. One stalled provider must not hang
	// the whole fan-out.
	ChannelTimeout time.Duration

	// Acknowledgment windows per tier; an OPEN alert older than its
	// window is eligible for escalation.
	CriticalAckTimeout time.Duration
	HighAckTimeout     time.Duration
	ModerateAckTimeout time.Duration

	// On-call care team contact points.
	CareTeamUserID string
	CareTeamEmail  string
	CareTeamPhone  string
}

// DefaultConfig returns the tuned dispatch policy.
func DefaultConfig() Config {
	return Config{
		ChannelTimeout:     10 * time.Second,
		CriticalAckTimeout: 10 * time.Minute,
		HighAckTimeout:     time.Hour,
		ModerateAckTimeout: 24 * time.Hour,
	}
}

// Dispatcher translates an alert's tier into concrete channel sends.
// Channel failures are isolated: each is caught, recorded in the
// per-channel result map, and never blocks the other channels.
type Dispatcher struct {
	push   out.PushSenderPort
	email  out.EmailSenderPort
	sms    out.SMSSenderPort
	digest out.DigestQueuePort

	alerts   *alert.Service
	breakers *resilience.Registry
	cfg      Config
	log      *logger.Logger
}

// NewDispatcher creates a dispatcher. A nil breaker registry disables
// circuit breaking.
func NewDispatcher(
	push out.PushSenderPort,
	email out.EmailSenderPort,
	sms out.SMSSenderPort,
	digest out.DigestQueuePort,
	alerts *alert.Service,
	breakers *resilience.Registry,
	cfg Config,
) *Dispatcher {
	if cfg.ChannelTimeout <= 0 {
		cfg.ChannelTimeout = 10 * time.Second
	}
	return &Dispatcher{
		push:     push,
		email:    email,
		sms:      sms,
		digest:   digest,
		alerts:   alerts,
		breakers: breakers,
		cfg:      cfg,
		log:      logger.Default().WithField("component", "dispatcher"),
	}
}

// SendCrisisNotifications fans the alert out to every channel in its
// matrix entry, in parallel, and returns the per-channel result map.
// The call itself only errors on nil input; channel failures live in
// the result.
func (d *Dispatcher) SendCrisisNotifications(ctx context.Context, a *domain.CrisisAlert) (*domain.DispatchResult, error) {
	if a == nil {
		return nil, fmt.Errorf("dispatch: nil alert")
	}
	entry := MatrixFor(a.Tier)
	return d.sendChannels(ctx, a, entry.Channels), nil
}

// RetryFailedNotifications re-attempts only the listed channels.
// Channels that already succeeded are not re-sent.
func (d *Dispatcher) RetryFailedNotifications(ctx context.Context, a *domain.CrisisAlert, failed []domain.Channel) (*domain.DispatchResult, error) {
	if a == nil {
		return nil, fmt.Errorf("dispatch: nil alert")
	}

	// Only retry channels the tier's matrix actually includes.
	entry := MatrixFor(a.Tier)
	var retry []domain.Channel
	for _, ch := range failed {
		if entry.HasChannel(ch) {
			retry = append(retry, ch)
		}
	}
	return d.sendChannels(ctx, a, retry), nil
}

// EscalateUnacknowledgedAlerts sweeps OPEN alerts past their tier's
// acknowledgment window and re-dispatches through the escalation
// channel set. Status is re-checked via a conditional claim
// immediately before sending, so an acknowledgment racing the sweep
// wins.
func (d *Dispatcher) EscalateUnacknowledgedAlerts(ctx context.Context) (int, error) {
	windows := map[domain.Tier]time.Duration{
		domain.TierCritical: d.cfg.CriticalAckTimeout,
		domain.TierHigh:     d.cfg.HighAckTimeout,
		domain.TierModerate: d.cfg.ModerateAckTimeout,
	}

	escalated := 0
	for tier, window := range windows {
		if window <= 0 {
			continue
		}

		stale, err := d.alerts.FindUnacknowledgedOlderThan(ctx, tier, window)
		if err != nil {
			return escalated, err
		}

		for _, a := range stale {
			claimed, err := d.alerts.ClaimForEscalation(ctx, a.ID)
			if err != nil {
				d.log.WithError(err).Error("escalation claim failed for alert %d", a.ID)
				continue
			}
			if !claimed {
				// Acknowledged between the sweep query and the claim.
				continue
			}

			result := d.sendChannels(ctx, a, EscalationChannelsFor(tier))
			d.log.WithFields(map[string]any{
				"alert_id": a.ID,
				"tier":     string(tier),
				"failed":   len(result.FailedChannels()),
			}).Warn("escalated unacknowledged alert")
			escalated++
		}
	}

	return escalated, nil
}

// sendChannels runs one send task per channel and joins the results.
func (d *Dispatcher) sendChannels(ctx context.Context, a *domain.CrisisAlert, channels []domain.Channel) *domain.DispatchResult {
	result := &domain.DispatchResult{
		AlertID:   a.ID,
		Tier:      a.Tier,
		Channels:  make(map[domain.Channel]domain.ChannelResult, len(channels)),
		StartedAt: time.Now(),
	}
	if len(channels) == 0 {
		return result
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	start := time.Now()
	for _, ch := range channels {
		wg.Add(1)
		go func(ch domain.Channel) {
			defer wg.Done()

			attempted := time.Now()
			err := d.sendOne(ctx, ch, a)
			res := domain.ChannelResult{
				Channel:   ch,
				Success:   err == nil,
				Duration:  time.Since(attempted),
				Attempted: attempted,
			}
			if err != nil {
				res.Error = err.Error()
				metrics.Global().IncDelivery(string(ch), "failure")
				d.log.WithError(err).Warn("channel %s failed for alert %d", ch, a.ID)
			} else {
				metrics.Global().IncDelivery(string(ch), "success")
			}

			mu.Lock()
			result.Channels[ch] = res
			mu.Unlock()
		}(ch)
	}
	wg.Wait()
	metrics.Global().RecordLatency(metrics.StageDispatch, time.Since(start))

	return result
}

// sendOne delivers through a single channel with its timeout and
// breaker. Panics inside a sender are contained here so one broken
// provider cannot take down the fan-out.
func (d *Dispatcher) sendOne(ctx context.Context, ch domain.Channel, a *domain.CrisisAlert) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("channel %s panicked: %v", ch, r)
		}
	}()

	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.ChannelTimeout)
	defer cancel()

	switch ch {
	case domain.ChannelPush:
		if d.push == nil {
			return fmt.Errorf("push sender not configured")
		}
		return d.protect(sendCtx, ch, func(c context.Context) error {
			return d.push.SendPush(c, &out.PushMessage{
				TargetUserID: d.cfg.CareTeamUserID,
				Title:        pushTitle(a),
				Body:         fmt.Sprintf("Triggered by %q (%s)", a.TriggeredBy, a.Category),
				Priority:     pushPriority(a.Tier),
			})
		})

	case domain.ChannelEmail:
		if d.email == nil {
			return fmt.Errorf("email sender not configured")
		}
		return d.protect(sendCtx, ch, func(c context.Context) error {
			return d.email.SendEmail(c, buildAlertEmail(d.cfg.CareTeamEmail, a))
		})

	case domain.ChannelSMS:
		if d.sms == nil {
			return fmt.Errorf("sms sender not configured")
		}
		return d.protect(sendCtx, ch, func(c context.Context) error {
			return d.sms.SendSMS(c, &out.SMSMessage{
				To:   d.cfg.CareTeamPhone,
				Body: fmt.Sprintf("[%s] crisis alert %d: %q. Review immediately.", a.Tier, a.ID, a.TriggeredBy),
			})
		})

	case domain.ChannelDigest:
		if d.digest == nil {
			return fmt.Errorf("digest queue not configured")
		}
		return d.digest.Enqueue(sendCtx, &out.DigestEntry{
			AlertID:  a.ID,
			UserID:   a.UserID.String(),
			Tier:     a.Tier,
			Category: a.Category,
			Source:   a.Source,
			QueuedAt: time.Now(),
		})

	case domain.ChannelLog:
		d.log.WithFields(map[string]any{
			"alert_id": a.ID,
			"tier":     string(a.Tier),
			"category": string(a.Category),
			"source":   string(a.Source),
		}).Info("log-only notification")
		return nil

	default:
		return fmt.Errorf("unknown channel: %s", ch)
	}
}

// protect routes a send through the channel's circuit breaker.
func (d *Dispatcher) protect(ctx context.Context, ch domain.Channel, fn func(ctx context.Context) error) error {
	if d.breakers == nil {
		return fn(ctx)
	}
	return d.breakers.Get(string(ch)).Do(ctx, fn)
}

func pushTitle(a *domain.CrisisAlert) string {
	switch a.Tier {
	case domain.TierCritical:
		return "CRITICAL crisis alert"
	case domain.TierHigh:
		return "High-priority crisis alert"
	default:
		return "Crisis alert"
	}
}

func pushPriority(tier domain.Tier) string {
	if tier == domain.TierCritical {
		return "high"
	}
	return "normal"
}

func buildAlertEmail(to string, a *domain.CrisisAlert) *out.EmailMessage {
	subject := fmt.Sprintf("[%s] Crisis alert %d requires review", a.Tier, a.ID)
	text := fmt.Sprintf(
		"A %s-tier crisis indicator was detected.\n\nTriggered by: %q (%s)\nSource: %s\nFlagged content: %s\n\nPlease review and acknowledge the alert.",
		a.Tier, a.TriggeredBy, a.Category, a.Source, a.FlaggedContent,
	)
	html := fmt.Sprintf(
		"<h2>Crisis alert %d</h2><p>Tier: <strong>%s</strong></p><p>Triggered by: <strong>%s</strong> (%s)</p><p>Source: %s</p><blockquote>%s</blockquote><p>Please review and acknowledge the alert.</p>",
		a.ID, a.Tier, a.TriggeredBy, a.Category, a.Source, a.FlaggedContent,
	)
	return &out.EmailMessage{To: to, Subject: subject, HTML: html, Text: text}
}
