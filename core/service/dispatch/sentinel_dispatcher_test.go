package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"sentinel_server/core/domain"
	"sentinel_server/core/port/out"
)

// fake senders with per-channel failure control and call counting.

type fakePush struct {
	mu    sync.Mutex
	calls int
	fail  bool
	slow  time.Duration
}

func (f *fakePush) SendPush(ctx context.Context, _ *out.PushMessage) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.slow > 0 {
		select {
		case <-time.After(f.slow):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.fail {
		return errors.New("push provider rejected token")
	}
	return nil
}

func (f *fakePush) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeEmail struct {
	mu    sync.Mutex
	calls int
	fail  bool
	last  *out.EmailMessage
}

func (f *fakeEmail) SendEmail(_ context.Context, msg *out.EmailMessage) error {
	f.mu.Lock()
	f.calls++
	f.last = msg
	f.mu.Unlock()
	if f.fail {
		return errors.New("smtp unavailable")
	}
	return nil
}

func (f *fakeEmail) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSMS struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (f *fakeSMS) SendSMS(_ context.Context, _ *out.SMSMessage) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.fail {
		return errors.New("sms gateway error")
	}
	return nil
}

func (f *fakeSMS) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeDigestQueue struct {
	mu      sync.Mutex
	entries []*out.DigestEntry
}

func (f *fakeDigestQueue) Enqueue(_ context.Context, e *out.DigestEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeDigestQueue) Drain(_ context.Context) ([]*out.DigestEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	drained := f.entries
	f.entries = nil
	return drained, nil
}

func (f *fakeDigestQueue) Len(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.entries)), nil
}

func testAlert(tier domain.Tier) *domain.CrisisAlert {
	return &domain.CrisisAlert{
		ID:             12345,
		UserID:         uuid.New(),
		Tier:           tier,
		Source:         domain.SourceChat,
		TriggeredBy:    "kill myself",
		Category:       domain.CategorySuicideIdeation,
		FlaggedContent: "excerpt",
		Status:         domain.AlertStatusOpen,
		CreatedAt:      time.Now(),
	}
}

func newTestDispatcher(push *fakePush, email *fakeEmail, sms *fakeSMS, digest *fakeDigestQueue) *Dispatcher {
	cfg := DefaultConfig()
	cfg.ChannelTimeout = 200 * time.Millisecond
	cfg.CareTeamEmail = "care@example.org"
	cfg.CareTeamPhone = "+15550100"
	cfg.CareTeamUserID = "care-team"
	return NewDispatcher(push, email, sms, digest, nil, nil, cfg)
}

func TestMatrixFor(t *testing.T) {
	tests := []struct {
		tier     domain.Tier
		channels []domain.Channel
	}{
		{domain.TierCritical, []domain.Channel{domain.ChannelPush, domain.ChannelEmail, domain.ChannelSMS}},
		{domain.TierHigh, []domain.Channel{domain.ChannelPush, domain.ChannelEmail}},
		{domain.TierModerate, []domain.Channel{domain.ChannelDigest}},
		{domain.TierStandard, []domain.Channel{domain.ChannelLog}},
		{domain.TierNone, nil},
	}

	for _, tt := range tests {
		t.Run(string(tt.tier), func(t *testing.T) {
			entry := MatrixFor(tt.tier)
			if len(entry.Channels) != len(tt.channels) {
				t.Fatalf("channels = %v, want %v", entry.Channels, tt.channels)
			}
			for _, ch := range tt.channels {
				if !entry.HasChannel(ch) {
					t.Errorf("missing channel %s", ch)
				}
			}
		})
	}

	if MatrixFor(domain.TierCritical).Urgency != 2*time.Second {
		t.Error("CRITICAL urgency must target sub-2-second delivery")
	}
}

func TestSendCrisisNotifications_Critical(t *testing.T) {
	push, email, sms := &fakePush{}, &fakeEmail{}, &fakeSMS{}
	d := newTestDispatcher(push, email, sms, &fakeDigestQueue{})

	result, err := d.SendCrisisNotifications(context.Background(), testAlert(domain.TierCritical))
	if err != nil {
		t.Fatalf("SendCrisisNotifications() error = %v", err)
	}

	if len(result.Channels) != 3 {
		t.Fatalf("len(Channels) = %d, want 3", len(result.Channels))
	}
	if !result.AllSucceeded() {
		t.Errorf("expected all channels to succeed: %+v", result.Channels)
	}
	if push.count() != 1 || email.count() != 1 || sms.count() != 1 {
		t.Errorf("call counts push=%d email=%d sms=%d, want 1 each", push.count(), email.count(), sms.count())
	}
}

func TestSendCrisisNotifications_ChannelIndependence(t *testing.T) {
	// Email always fails; push and SMS must still be reported as
	// successes, not a total failure.
	push, email, sms := &fakePush{}, &fakeEmail{fail: true}, &fakeSMS{}
	d := newTestDispatcher(push, email, sms, &fakeDigestQueue{})

	result, err := d.SendCrisisNotifications(context.Background(), testAlert(domain.TierCritical))
	if err != nil {
		t.Fatalf("SendCrisisNotifications() error = %v", err)
	}

	if !result.Channels[domain.ChannelPush].Success {
		t.Error("push should succeed")
	}
	if !result.Channels[domain.ChannelSMS].Success {
		t.Error("sms should succeed")
	}
	if result.Channels[domain.ChannelEmail].Success {
		t.Error("email should fail")
	}
	if result.Channels[domain.ChannelEmail].Error == "" {
		t.Error("email failure reason not recorded")
	}

	failed := result.FailedChannels()
	if len(failed) != 1 || failed[0] != domain.ChannelEmail {
		t.Errorf("FailedChannels() = %v, want [email]", failed)
	}
}

func TestSendCrisisNotifications_StalledProviderTimesOut(t *testing.T) {
	push := &fakePush{slow: 2 * time.Second}
	email, sms := &fakeEmail{}, &fakeSMS{}
	d := newTestDispatcher(push, email, sms, &fakeDigestQueue{})

	start := time.Now()
	result, err := d.SendCrisisNotifications(context.Background(), testAlert(domain.TierCritical))
	if err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("dispatch took %v, stalled channel must be bounded by its timeout", elapsed)
	}
	if result.Channels[domain.ChannelPush].Success {
		t.Error("stalled push reported success")
	}
	if !result.Channels[domain.ChannelEmail].Success || !result.Channels[domain.ChannelSMS].Success {
		t.Error("other channels should be unaffected by the stall")
	}
}

func TestSendCrisisNotifications_ModerateGoesToDigest(t *testing.T) {
	push, email, sms := &fakePush{}, &fakeEmail{}, &fakeSMS{}
	queue := &fakeDigestQueue{}
	d := newTestDispatcher(push, email, sms, queue)

	result, err := d.SendCrisisNotifications(context.Background(), testAlert(domain.TierModerate))
	if err != nil {
		t.Fatal(err)
	}

	if !result.Channels[domain.ChannelDigest].Success {
		t.Error("digest enqueue should succeed")
	}
	if push.count() != 0 || email.count() != 0 || sms.count() != 0 {
		t.Error("MODERATE tier must not send immediately")
	}

	depth, _ := queue.Len(context.Background())
	if depth != 1 {
		t.Errorf("queue depth = %d, want 1", depth)
	}
}

func TestSendCrisisNotifications_StandardLogsOnly(t *testing.T) {
	push, email, sms := &fakePush{}, &fakeEmail{}, &fakeSMS{}
	queue := &fakeDigestQueue{}
	d := newTestDispatcher(push, email, sms, queue)

	result, err := d.SendCrisisNotifications(context.Background(), testAlert(domain.TierStandard))
	if err != nil {
		t.Fatal(err)
	}

	if !result.Channels[domain.ChannelLog].Success {
		t.Error("log channel should succeed")
	}
	if push.count()+email.count()+sms.count() != 0 {
		t.Error("STANDARD tier must not reach any sender")
	}
	if depth, _ := queue.Len(context.Background()); depth != 0 {
		t.Error("STANDARD tier must not enqueue a digest entry")
	}
}

func TestRetryFailedNotifications_OnlyFailedChannels(t *testing.T) {
	push, email, sms := &fakePush{}, &fakeEmail{}, &fakeSMS{}
	d := newTestDispatcher(push, email, sms, &fakeDigestQueue{})

	result, err := d.RetryFailedNotifications(context.Background(), testAlert(domain.TierCritical), []domain.Channel{domain.ChannelEmail})
	if err != nil {
		t.Fatal(err)
	}

	if email.count() != 1 {
		t.Errorf("email retried %d times, want 1", email.count())
	}
	if push.count() != 0 || sms.count() != 0 {
		t.Errorf("push=%d sms=%d retried, succeeded channels must not be re-sent", push.count(), sms.count())
	}
	if len(result.Channels) != 1 {
		t.Errorf("result covers %d channels, want 1", len(result.Channels))
	}
}

func TestRetryFailedNotifications_IgnoresChannelsOutsideMatrix(t *testing.T) {
	push, email, sms := &fakePush{}, &fakeEmail{}, &fakeSMS{}
	d := newTestDispatcher(push, email, sms, &fakeDigestQueue{})

	// HIGH tier has no SMS; a stray retry request must not send one.
	result, err := d.RetryFailedNotifications(context.Background(), testAlert(domain.TierHigh), []domain.Channel{domain.ChannelSMS, domain.ChannelEmail})
	if err != nil {
		t.Fatal(err)
	}

	if sms.count() != 0 {
		t.Error("sms sent for a tier whose matrix excludes it")
	}
	if email.count() != 1 {
		t.Errorf("email retried %d times, want 1", email.count())
	}
	if _, ok := result.Channels[domain.ChannelSMS]; ok {
		t.Error("sms present in result map")
	}
}

func TestDigestService_Flush(t *testing.T) {
	queue := &fakeDigestQueue{}
	email := &fakeEmail{}
	svc := NewDigestService(queue, email, "care@example.org")

	// Empty queue flushes nothing.
	n, err := svc.Flush(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("empty Flush() = %d, %v, want 0, nil", n, err)
	}
	if email.count() != 0 {
		t.Error("empty queue must not send")
	}

	for i := 0; i < 3; i++ {
		queue.Enqueue(context.Background(), &out.DigestEntry{
			AlertID:  int64(i + 1),
			UserID:   uuid.NewString(),
			Tier:     domain.TierModerate,
			Category: domain.CategoryHopelessness,
			Source:   domain.SourceJournal,
			QueuedAt: time.Now(),
		})
	}

	n, err = svc.Flush(context.Background())
	if err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Flush() = %d entries, want 3", n)
	}
	if email.count() != 1 {
		t.Errorf("digest sent %d emails, want 1 batched summary", email.count())
	}
	if depth, _ := queue.Len(context.Background()); depth != 0 {
		t.Errorf("queue depth after flush = %d, want 0", depth)
	}
}

func TestDigestService_Flush_RequeuesOnSendFailure(t *testing.T) {
	queue := &fakeDigestQueue{}
	email := &fakeEmail{fail: true}
	svc := NewDigestService(queue, email, "care@example.org")

	for i := 0; i < 2; i++ {
		queue.Enqueue(context.Background(), &out.DigestEntry{
			AlertID:  int64(i + 1),
			UserID:   uuid.NewString(),
			Tier:     domain.TierModerate,
			Category: domain.CategoryAnxiety,
			Source:   domain.SourceCheckIn,
			QueuedAt: time.Now(),
		})
	}

	if _, err := svc.Flush(context.Background()); err == nil {
		t.Fatal("Flush() with failing sender returned nil error")
	}
	if depth, _ := queue.Len(context.Background()); depth != 2 {
		t.Errorf("queue depth after failed flush = %d, want 2", depth)
	}

	// The next flush delivers the same batch once the sender recovers.
	email.fail = false
	n, err := svc.Flush(context.Background())
	if err != nil {
		t.Fatalf("Flush() after recovery error = %v", err)
	}
	if n != 2 {
		t.Errorf("Flush() after recovery = %d entries, want 2", n)
	}
}
