package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"sentinel_server/core/domain"
)

// MemoryAlertRepository is an in-memory domain.AlertRepository for
// development without a database. Conditional updates behave exactly
// like the SQL adapter: the mutex makes each check-and-set atomic.
type MemoryAlertRepository struct {
	mu     sync.Mutex
	alerts map[int64]*domain.CrisisAlert
	notes  map[int64][]domain.AlertNote
	noteID int64
}

// NewMemoryAlertRepository creates an empty in-memory repository.
func NewMemoryAlertRepository() *MemoryAlertRepository {
	return &MemoryAlertRepository{
		alerts: make(map[int64]*domain.CrisisAlert),
		notes:  make(map[int64][]domain.AlertNote),
	}
}

var _ domain.AlertRepository = (*MemoryAlertRepository)(nil)

func (r *MemoryAlertRepository) Create(_ context.Context, alert *domain.CrisisAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *alert
	r.alerts[alert.ID] = &cp
	return nil
}

func (r *MemoryAlertRepository) GetByID(_ context.Context, id int64) (*domain.CrisisAlert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *MemoryAlertRepository) List(_ context.Context, filter *domain.AlertFilter) ([]*domain.CrisisAlert, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []*domain.CrisisAlert
	for _, a := range r.alerts {
		if filter.UserID != nil && a.UserID != *filter.UserID {
			continue
		}
		if filter.Tier != nil && a.Tier != *filter.Tier {
			continue
		}
		if filter.Status != nil && a.Status != *filter.Status {
			continue
		}
		if filter.Source != nil && a.Source != *filter.Source {
			continue
		}
		if filter.Since != nil && a.CreatedAt.Before(*filter.Since) {
			continue
		}
		cp := *a
		matched = append(matched, &cp)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)

	offset := filter.Offset
	if offset > total {
		offset = total
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	end := offset + limit
	if end > total {
		end = total
	}

	return matched[offset:end], total, nil
}

func (r *MemoryAlertRepository) Acknowledge(_ context.Context, id int64, reviewerID uuid.UUID, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.alerts[id]
	if !ok {
		return false, ErrNotFound
	}
	if a.Status != domain.AlertStatusOpen {
		return false, nil
	}

	a.Status = domain.AlertStatusAcknowledged
	a.AcknowledgedBy = &reviewerID
	a.AcknowledgedAt = &at
	return true, nil
}

func (r *MemoryAlertRepository) Resolve(_ context.Context, id int64, reviewerID uuid.UUID, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.alerts[id]
	if !ok {
		return false, ErrNotFound
	}
	if a.Status == domain.AlertStatusResolved {
		return false, nil
	}

	a.Status = domain.AlertStatusResolved
	a.ResolvedBy = &reviewerID
	a.ResolvedAt = &at
	return true, nil
}

func (r *MemoryAlertRepository) MarkEscalated(_ context.Context, id int64, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.alerts[id]
	if !ok {
		return false, ErrNotFound
	}
	if a.Status != domain.AlertStatusOpen || a.EscalatedAt != nil {
		return false, nil
	}

	a.EscalatedAt = &at
	return true, nil
}

func (r *MemoryAlertRepository) AddNote(_ context.Context, note *domain.AlertNote) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if note.ID == 0 {
		r.noteID++
		note.ID = r.noteID
	}
	r.notes[note.AlertID] = append(r.notes[note.AlertID], *note)
	return nil
}

func (r *MemoryAlertRepository) ListNotes(_ context.Context, alertID int64) ([]domain.AlertNote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	notes := make([]domain.AlertNote, len(r.notes[alertID]))
	copy(notes, r.notes[alertID])
	return notes, nil
}

func (r *MemoryAlertRepository) FindUnacknowledgedOlderThan(_ context.Context, tier domain.Tier, cutoff time.Time) ([]*domain.CrisisAlert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []*domain.CrisisAlert
	for _, a := range r.alerts {
		if a.Status != domain.AlertStatusOpen || a.Tier != tier {
			continue
		}
		if a.EscalatedAt != nil || !a.CreatedAt.Before(cutoff) {
			continue
		}
		cp := *a
		matched = append(matched, &cp)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	return matched, nil
}

func (r *MemoryAlertRepository) CountByStatus(_ context.Context) (map[domain.AlertStatus]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[domain.AlertStatus]int64)
	for _, a := range r.alerts {
		counts[a.Status]++
	}
	return counts, nil
}
