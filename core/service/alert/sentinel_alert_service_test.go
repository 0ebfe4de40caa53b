package alert

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"sentinel_server/core/domain"
	"sentinel_server/core/port/out"
	"sentinel_server/pkg/apperr"
	"sentinel_server/pkg/snowflake"
)

// fakeAlertRepo is an in-memory repository with the same conditional
// update semantics as the SQL adapter.
type fakeAlertRepo struct {
	mu     sync.Mutex
	alerts map[int64]*domain.CrisisAlert
	notes  map[int64][]domain.AlertNote
}

func newFakeAlertRepo() *fakeAlertRepo {
	return &fakeAlertRepo{
		alerts: make(map[int64]*domain.CrisisAlert),
		notes:  make(map[int64][]domain.AlertNote),
	}
}

func (r *fakeAlertRepo) Create(_ context.Context, alert *domain.CrisisAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *alert
	r.alerts[alert.ID] = &cp
	return nil
}

func (r *fakeAlertRepo) GetByID(_ context.Context, id int64) (*domain.CrisisAlert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[id]
	if !ok {
		return nil, apperr.NotFound("alert")
	}
	cp := *a
	return &cp, nil
}

func (r *fakeAlertRepo) List(_ context.Context, filter *domain.AlertFilter) ([]*domain.CrisisAlert, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.CrisisAlert
	for _, a := range r.alerts {
		if filter != nil && filter.Status != nil && a.Status != *filter.Status {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (r *fakeAlertRepo) Acknowledge(_ context.Context, id int64, reviewerID uuid.UUID, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[id]
	if !ok {
		return false, apperr.NotFound("alert")
	}
	if a.Status != domain.AlertStatusOpen {
		return false, nil
	}
	a.Status = domain.AlertStatusAcknowledged
	a.AcknowledgedBy = &reviewerID
	a.AcknowledgedAt = &at
	return true, nil
}

func (r *fakeAlertRepo) Resolve(_ context.Context, id int64, reviewerID uuid.UUID, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[id]
	if !ok {
		return false, apperr.NotFound("alert")
	}
	if a.Status == domain.AlertStatusResolved {
		return false, nil
	}
	a.Status = domain.AlertStatusResolved
	a.ResolvedBy = &reviewerID
	a.ResolvedAt = &at
	return true, nil
}

func (r *fakeAlertRepo) MarkEscalated(_ context.Context, id int64, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[id]
	if !ok {
		return false, apperr.NotFound("alert")
	}
	if a.Status != domain.AlertStatusOpen {
		return false, nil
	}
	a.EscalatedAt = &at
	return true, nil
}

func (r *fakeAlertRepo) AddNote(_ context.Context, note *domain.AlertNote) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes[note.AlertID] = append(r.notes[note.AlertID], *note)
	return nil
}

func (r *fakeAlertRepo) ListNotes(_ context.Context, alertID int64) ([]domain.AlertNote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.AlertNote(nil), r.notes[alertID]...), nil
}

func (r *fakeAlertRepo) FindUnacknowledgedOlderThan(_ context.Context, tier domain.Tier, cutoff time.Time) ([]*domain.CrisisAlert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.CrisisAlert
	for _, a := range r.alerts {
		if a.Tier == tier && a.Status == domain.AlertStatusOpen && a.CreatedAt.Before(cutoff) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeAlertRepo) CountByStatus(_ context.Context) (map[domain.AlertStatus]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[domain.AlertStatus]int64)
	for _, a := range r.alerts {
		counts[a.Status]++
	}
	return counts, nil
}

func newTestService(t *testing.T, repo domain.AlertRepository) *Service {
	t.Helper()
	gen, err := snowflake.NewGenerator(1)
	if err != nil {
		t.Fatal(err)
	}
	return NewService(repo, nil, nil, nil, nil, gen, Config{})
}

func criticalDetection() *domain.DetectionResult {
	return &domain.DetectionResult{
		InputText:    "i'm going to kill myself tonight",
		Source:       domain.SourceChat,
		ResolvedTier: domain.TierCritical,
		MatchedTerms: []domain.MatchedTerm{
			{Phrase: "kill myself", Category: domain.CategorySuicideIdeation, Tier: domain.TierCritical},
		},
		ScannedAt: time.Now(),
	}
}

func TestCreateFromDetection(t *testing.T) {
	repo := newFakeAlertRepo()
	svc := newTestService(t, repo)
	userID := uuid.New()

	alert, err := svc.CreateFromDetection(context.Background(), criticalDetection(), userID)
	if err != nil {
		t.Fatalf("CreateFromDetection() error = %v", err)
	}
	if alert == nil {
		t.Fatal("expected an alert")
	}

	if alert.Status != domain.AlertStatusOpen {
		t.Errorf("Status = %v, want OPEN", alert.Status)
	}
	if alert.Tier != domain.TierCritical {
		t.Errorf("Tier = %v, want CRITICAL", alert.Tier)
	}
	if alert.TriggeredBy != "kill myself" {
		t.Errorf("TriggeredBy = %q, want %q", alert.TriggeredBy, "kill myself")
	}
	if alert.ID == 0 {
		t.Error("alert ID not assigned")
	}
}

func TestCreateFromDetection_NonAlertingTiers(t *testing.T) {
	repo := newFakeAlertRepo()
	svc := newTestService(t, repo)

	tests := []struct {
		name string
		tier domain.Tier
	}{
		{"standard is log-only", domain.TierStandard},
		{"none never alerts", domain.TierNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := &domain.DetectionResult{ResolvedTier: tt.tier, Source: domain.SourceCheckIn}
			alert, err := svc.CreateFromDetection(context.Background(), result, uuid.New())
			if err != nil {
				t.Fatalf("error = %v", err)
			}
			if alert != nil {
				t.Errorf("tier %v created alert %+v, want none", tt.tier, alert)
			}
		})
	}
}

// slowReviewer blocks for a fixed delay before returning a verdict,
// standing in for a slow model call.
type slowReviewer struct {
	delay time.Duration
	done  chan struct{}
}

func (r *slowReviewer) ReviewFlaggedText(ctx context.Context, _, _, _ string) (*out.TextReview, error) {
	defer close(r.done)
	select {
	case <-time.After(r.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &out.TextReview{Assessment: "ambiguous", Summary: "phrasing could be song lyrics", Confidence: 0.6}, nil
}

func TestCreateFromDetection_ReviewDoesNotBlockCreation(t *testing.T) {
	repo := newFakeAlertRepo()
	gen, err := snowflake.NewGenerator(1)
	if err != nil {
		t.Fatal(err)
	}
	reviewer := &slowReviewer{delay: time.Second, done: make(chan struct{})}
	svc := NewService(repo, nil, nil, nil, reviewer, gen, Config{})

	moderate := &domain.DetectionResult{
		InputText:    "sometimes i just want to disappear",
		Source:       domain.SourceJournal,
		ResolvedTier: domain.TierModerate,
		MatchedTerms: []domain.MatchedTerm{
			{Phrase: "want to disappear", Category: domain.CategoryEmotionalDistress, Tier: domain.TierModerate},
		},
		ScannedAt: time.Now(),
	}

	start := time.Now()
	created, err := svc.CreateFromDetection(context.Background(), moderate, uuid.New())
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("CreateFromDetection() error = %v", err)
	}
	if created == nil {
		t.Fatal("expected an alert")
	}
	if elapsed >= 500*time.Millisecond {
		t.Fatalf("creation took %v, the review must not hold it up", elapsed)
	}

	// The verdict still lands, as a note, once the reviewer returns.
	select {
	case <-reviewer.done:
	case <-time.After(5 * time.Second):
		t.Fatal("reviewer never ran")
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		notes, err := repo.ListNotes(context.Background(), created.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(notes) == 1 {
			if notes[0].Body != "ambiguous: phrasing could be song lyrics" {
				t.Errorf("note body = %q", notes[0].Body)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("review note never attached")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAcknowledge_Lifecycle(t *testing.T) {
	repo := newFakeAlertRepo()
	svc := newTestService(t, repo)
	reviewer := uuid.New()

	created, _ := svc.CreateFromDetection(context.Background(), criticalDetection(), uuid.New())

	acked, err := svc.Acknowledge(context.Background(), created.ID, reviewer)
	if err != nil {
		t.Fatalf("Acknowledge() error = %v", err)
	}
	if acked.Status != domain.AlertStatusAcknowledged {
		t.Errorf("Status = %v, want ACKNOWLEDGED", acked.Status)
	}
	if acked.AcknowledgedBy == nil || *acked.AcknowledgedBy != reviewer {
		t.Error("reviewer not recorded")
	}

	// Second acknowledgment is an invalid transition.
	if _, err := svc.Acknowledge(context.Background(), created.ID, reviewer); !apperr.IsCode(err, apperr.CodeInvalidTransition) {
		t.Errorf("second Acknowledge error = %v, want INVALID_TRANSITION", err)
	}
}

func TestResolve_Monotonic(t *testing.T) {
	repo := newFakeAlertRepo()
	svc := newTestService(t, repo)
	reviewer := uuid.New()

	created, _ := svc.CreateFromDetection(context.Background(), criticalDetection(), uuid.New())

	resolved, err := svc.Resolve(context.Background(), created.ID, reviewer, "spoke with user, safety plan in place")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if resolved.Status != domain.AlertStatusResolved {
		t.Errorf("Status = %v, want RESOLVED", resolved.Status)
	}

	// No backward transitions from RESOLVED.
	if _, err := svc.Acknowledge(context.Background(), created.ID, reviewer); !apperr.IsCode(err, apperr.CodeInvalidTransition) {
		t.Errorf("Acknowledge after resolve error = %v, want INVALID_TRANSITION", err)
	}
	if _, err := svc.Resolve(context.Background(), created.ID, reviewer, ""); !apperr.IsCode(err, apperr.CodeInvalidTransition) {
		t.Errorf("double Resolve error = %v, want INVALID_TRANSITION", err)
	}
}

func TestAcknowledge_ConcurrentRace(t *testing.T) {
	repo := newFakeAlertRepo()
	svc := newTestService(t, repo)

	created, _ := svc.CreateFromDetection(context.Background(), criticalDetection(), uuid.New())

	const racers = 8
	var wg sync.WaitGroup
	errs := make([]error, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, errs[n] = svc.Acknowledge(context.Background(), created.ID, uuid.New())
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else if !apperr.IsCode(err, apperr.CodeInvalidTransition) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("%d acknowledgments succeeded, want exactly 1", succeeded)
	}
}

func TestAddNote(t *testing.T) {
	repo := newFakeAlertRepo()
	svc := newTestService(t, repo)
	author := uuid.New()

	created, _ := svc.CreateFromDetection(context.Background(), criticalDetection(), uuid.New())

	if err := svc.AddNote(context.Background(), created.ID, author, "reached out by phone"); err != nil {
		t.Fatalf("AddNote() error = %v", err)
	}
	if err := svc.AddNote(context.Background(), created.ID, author, ""); err == nil {
		t.Error("empty note accepted")
	}

	loaded, err := svc.GetByID(context.Background(), created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.Notes) != 1 {
		t.Fatalf("len(Notes) = %d, want 1", len(loaded.Notes))
	}
	if loaded.Notes[0].Body != "reached out by phone" {
		t.Errorf("note body = %q", loaded.Notes[0].Body)
	}

	// Notes are rejected once the alert is terminal.
	if _, err := svc.Resolve(context.Background(), created.ID, author, ""); err != nil {
		t.Fatal(err)
	}
	if err := svc.AddNote(context.Background(), created.ID, author, "too late"); !apperr.IsCode(err, apperr.CodeInvalidTransition) {
		t.Errorf("note on resolved alert error = %v, want INVALID_TRANSITION", err)
	}
}

func TestFindUnacknowledgedOlderThan(t *testing.T) {
	repo := newFakeAlertRepo()
	svc := newTestService(t, repo)

	created, _ := svc.CreateFromDetection(context.Background(), criticalDetection(), uuid.New())

	// Backdate the alert past the escalation window.
	repo.mu.Lock()
	repo.alerts[created.ID].CreatedAt = time.Now().Add(-time.Hour)
	repo.mu.Unlock()

	stale, err := svc.FindUnacknowledgedOlderThan(context.Background(), domain.TierCritical, 10*time.Minute)
	if err != nil {
		t.Fatalf("FindUnacknowledgedOlderThan() error = %v", err)
	}
	if len(stale) != 1 {
		t.Fatalf("found %d stale alerts, want 1", len(stale))
	}

	if _, err := svc.FindUnacknowledgedOlderThan(context.Background(), domain.Tier("bogus"), time.Minute); err == nil {
		t.Error("expected error for unrecognized tier")
	}

	// Acknowledged alerts drop out of the sweep.
	if _, err := svc.Acknowledge(context.Background(), created.ID, uuid.New()); err != nil {
		t.Fatal(err)
	}
	stale, _ = svc.FindUnacknowledgedOlderThan(context.Background(), domain.TierCritical, 10*time.Minute)
	if len(stale) != 0 {
		t.Errorf("found %d stale alerts after ack, want 0", len(stale))
	}
}

// captureRealtime records broadcast events for assertions.
type captureRealtime struct {
	mu     sync.Mutex
	events []*domain.RealtimeEvent
}

func (r *captureRealtime) Subscribe(string) <-chan *domain.RealtimeEvent    { return nil }
func (r *captureRealtime) Unsubscribe(string, <-chan *domain.RealtimeEvent) {}
func (r *captureRealtime) Push(context.Context, string, *domain.RealtimeEvent) error {
	return nil
}
func (r *captureRealtime) ConnectedCount() int     { return 0 }
func (r *captureRealtime) IsConnected(string) bool { return false }

func (r *captureRealtime) Broadcast(_ context.Context, e *domain.RealtimeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *captureRealtime) types() []domain.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func TestClaimForEscalation_BroadcastsEvent(t *testing.T) {
	repo := newFakeAlertRepo()
	rt := &captureRealtime{}
	gen, err := snowflake.NewGenerator(1)
	if err != nil {
		t.Fatal(err)
	}
	svc := NewService(repo, nil, nil, rt, nil, gen, Config{})

	created, _ := svc.CreateFromDetection(context.Background(), criticalDetection(), uuid.New())

	ok, err := svc.ClaimForEscalation(context.Background(), created.ID)
	if err != nil || !ok {
		t.Fatalf("ClaimForEscalation() = %v, %v, want true, nil", ok, err)
	}

	got := rt.types()
	want := []domain.EventType{domain.EventAlertOpened, domain.EventAlertEscalated}
	if len(got) != len(want) {
		t.Fatalf("broadcast events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestClaimForEscalation_RacesAcknowledgment(t *testing.T) {
	repo := newFakeAlertRepo()
	svc := newTestService(t, repo)

	created, _ := svc.CreateFromDetection(context.Background(), criticalDetection(), uuid.New())

	ok, err := svc.ClaimForEscalation(context.Background(), created.ID)
	if err != nil || !ok {
		t.Fatalf("ClaimForEscalation() = %v, %v, want true, nil", ok, err)
	}

	// After acknowledgment the claim must fail: no stale re-send.
	if _, err := svc.Acknowledge(context.Background(), created.ID, uuid.New()); err != nil {
		t.Fatal(err)
	}
	ok, err = svc.ClaimForEscalation(context.Background(), created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("claim succeeded on acknowledged alert")
	}
}
