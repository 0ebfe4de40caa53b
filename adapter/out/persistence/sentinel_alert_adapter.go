package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"sentinel_server/core/domain"
)

// AlertAdapter implements domain.AlertRepository using PostgreSQL.
type AlertAdapter struct {
	db *sqlx.DB
}

// NewAlertAdapter creates a new alert adapter.
func NewAlertAdapter(db *sqlx.DB) *AlertAdapter {
	return &AlertAdapter{db: db}
}

var _ domain.AlertRepository = (*AlertAdapter)(nil)

// alertRow represents the database row.
type alertRow struct {
	ID             int64          `db:"id"`
	UserID         uuid.UUID      `db:"user_id"`
	Tier           string         `db:"tier"`
	Source         string         `db:"source"`
	TriggeredBy    string         `db:"triggered_by"`
	Category       string         `db:"category"`
	FlaggedContent string         `db:"flagged_content"`
	Status         string         `db:"status"`
	CreatedAt      time.Time      `db:"created_at"`
	AcknowledgedBy uuid.NullUUID  `db:"acknowledged_by"`
	AcknowledgedAt sql.NullTime   `db:"acknowledged_at"`
	ResolvedBy     uuid.NullUUID  `db:"resolved_by"`
	ResolvedAt     sql.NullTime   `db:"resolved_at"`
	EscalatedAt    sql.NullTime   `db:"escalated_at"`
}

func (r *alertRow) toDomain() *domain.CrisisAlert {
	a := &domain.CrisisAlert{
		ID:             r.ID,
		UserID:         r.UserID,
		Tier:           domain.Tier(r.Tier),
		Source:         domain.ScanSource(r.Source),
		TriggeredBy:    r.TriggeredBy,
		Category:       domain.Category(r.Category),
		FlaggedContent: r.FlaggedContent,
		Status:         domain.AlertStatus(r.Status),
		CreatedAt:      r.CreatedAt,
	}

	if r.AcknowledgedBy.Valid {
		a.AcknowledgedBy = &r.AcknowledgedBy.UUID
	}
	if r.AcknowledgedAt.Valid {
		a.AcknowledgedAt = &r.AcknowledgedAt.Time
	}
	if r.ResolvedBy.Valid {
		a.ResolvedBy = &r.ResolvedBy.UUID
	}
	if r.ResolvedAt.Valid {
		a.ResolvedAt = &r.ResolvedAt.Time
	}
	if r.EscalatedAt.Valid {
		a.EscalatedAt = &r.EscalatedAt.Time
	}

	return a
}

// noteRow represents an alert note row.
type noteRow struct {
	ID       int64     `db:"id"`
	AlertID  int64     `db:"alert_id"`
	AuthorID uuid.UUID `db:"author_id"`
	Body     string    `db:"body"`
	AddedAt  time.Time `db:"added_at"`
}

// Create inserts a new alert. The ID is generated by the caller.
func (a *AlertAdapter) Create(ctx context.Context, alert *domain.CrisisAlert) error {
	query := `
		INSERT INTO crisis_alerts (id, user_id, tier, source, triggered_by, category, flagged_content, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := a.db.ExecContext(
		ctx,
		query,
		alert.ID,
		alert.UserID,
		string(alert.Tier),
		string(alert.Source),
		alert.TriggeredBy,
		alert.Category,
		alert.FlaggedContent,
		string(alert.Status),
		alert.CreatedAt,
	)
	return err
}

// GetByID retrieves an alert by ID.
func (a *AlertAdapter) GetByID(ctx context.Context, id int64) (*domain.CrisisAlert, error) {
	query := `SELECT * FROM crisis_alerts WHERE id = $1`

	var row alertRow
	if err := a.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return row.toDomain(), nil
}

// List lists alerts with filter, newest first.
func (a *AlertAdapter) List(ctx context.Context, filter *domain.AlertFilter) ([]*domain.CrisisAlert, int, error) {
	baseQuery := `FROM crisis_alerts WHERE 1=1`
	args := []any{}
	argIndex := 1

	if filter.UserID != nil {
		baseQuery += fmt.Sprintf(` AND user_id = $%d`, argIndex)
		args = append(args, *filter.UserID)
		argIndex++
	}
	if filter.Tier != nil {
		baseQuery += fmt.Sprintf(` AND tier = $%d`, argIndex)
		args = append(args, string(*filter.Tier))
		argIndex++
	}
	if filter.Status != nil {
		baseQuery += fmt.Sprintf(` AND status = $%d`, argIndex)
		args = append(args, string(*filter.Status))
		argIndex++
	}
	if filter.Source != nil {
		baseQuery += fmt.Sprintf(` AND source = $%d`, argIndex)
		args = append(args, string(*filter.Source))
		argIndex++
	}
	if filter.Since != nil {
		baseQuery += fmt.Sprintf(` AND created_at >= $%d`, argIndex)
		args = append(args, *filter.Since)
		argIndex++
	}

	var total int
	countQuery := `SELECT COUNT(*) ` + baseQuery
	if err := a.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	selectQuery := fmt.Sprintf(`SELECT * %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, baseQuery, argIndex, argIndex+1)
	args = append(args, limit, filter.Offset)

	var rows []alertRow
	if err := a.db.SelectContext(ctx, &rows, selectQuery, args...); err != nil {
		return nil, 0, err
	}

	alerts := make([]*domain.CrisisAlert, len(rows))
	for i, row := range rows {
		alerts[i] = row.toDomain()
	}

	return alerts, total, nil
}

// Acknowledge moves OPEN -> ACKNOWLEDGED. The WHERE clause carries the
// expected status, so a concurrent reviewer who already moved the alert
// leaves this update with zero rows affected.
func (a *AlertAdapter) Acknowledge(ctx context.Context, id int64, reviewerID uuid.UUID, at time.Time) (bool, error) {
	query := `
		UPDATE crisis_alerts
		SET status = $1, acknowledged_by = $2, acknowledged_at = $3
		WHERE id = $4 AND status = $5
	`

	res, err := a.db.ExecContext(ctx, query,
		string(domain.AlertStatusAcknowledged), reviewerID, at,
		id, string(domain.AlertStatusOpen),
	)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Resolve moves OPEN or ACKNOWLEDGED -> RESOLVED.
func (a *AlertAdapter) Resolve(ctx context.Context, id int64, reviewerID uuid.UUID, at time.Time) (bool, error) {
	query := `
		UPDATE crisis_alerts
		SET status = $1, resolved_by = $2, resolved_at = $3
		WHERE id = $4 AND status != $1
	`

	res, err := a.db.ExecContext(ctx, query,
		string(domain.AlertStatusResolved), reviewerID, at, id,
	)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkEscalated stamps escalated_at only while the alert is still OPEN
// and not yet escalated. The sweep uses the zero-rows case to detect an
// acknowledgment that raced it.
func (a *AlertAdapter) MarkEscalated(ctx context.Context, id int64, at time.Time) (bool, error) {
	query := `
		UPDATE crisis_alerts
		SET escalated_at = $1
		WHERE id = $2 AND status = $3 AND escalated_at IS NULL
	`

	res, err := a.db.ExecContext(ctx, query, at, id, string(domain.AlertStatusOpen))
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// AddNote appends a note to an alert.
func (a *AlertAdapter) AddNote(ctx context.Context, note *domain.AlertNote) error {
	query := `
		INSERT INTO alert_notes (alert_id, author_id, body, added_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	return a.db.QueryRowContext(ctx, query,
		note.AlertID, note.AuthorID, note.Body, note.AddedAt,
	).Scan(&note.ID)
}

// ListNotes lists notes for an alert, oldest first.
func (a *AlertAdapter) ListNotes(ctx context.Context, alertID int64) ([]domain.AlertNote, error) {
	query := `SELECT * FROM alert_notes WHERE alert_id = $1 ORDER BY added_at ASC`

	var rows []noteRow
	if err := a.db.SelectContext(ctx, &rows, query, alertID); err != nil {
		return nil, err
	}

	notes := make([]domain.AlertNote, len(rows))
	for i, row := range rows {
		notes[i] = domain.AlertNote{
			ID:       row.ID,
			AlertID:  row.AlertID,
			AuthorID: row.AuthorID,
			Body:     row.Body,
			AddedAt:  row.AddedAt,
		}
	}

	return notes, nil
}

// FindUnacknowledgedOlderThan returns OPEN, never-escalated alerts of
// the given tier created before cutoff.
func (a *AlertAdapter) FindUnacknowledgedOlderThan(ctx context.Context, tier domain.Tier, cutoff time.Time) ([]*domain.CrisisAlert, error) {
	query := `
		SELECT * FROM crisis_alerts
		WHERE status = $1 AND tier = $2 AND created_at < $3 AND escalated_at IS NULL
		ORDER BY created_at ASC
	`

	var rows []alertRow
	if err := a.db.SelectContext(ctx, &rows, query, string(domain.AlertStatusOpen), string(tier), cutoff); err != nil {
		return nil, err
	}

	alerts := make([]*domain.CrisisAlert, len(rows))
	for i, row := range rows {
		alerts[i] = row.toDomain()
	}

	return alerts, nil
}

// CountByStatus returns alert counts per status.
func (a *AlertAdapter) CountByStatus(ctx context.Context) (map[domain.AlertStatus]int64, error) {
	query := `SELECT status, COUNT(*) AS count FROM crisis_alerts GROUP BY status`

	var rows []struct {
		Status string `db:"status"`
		Count  int64  `db:"count"`
	}
	if err := a.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, err
	}

	counts := make(map[domain.AlertStatus]int64, len(rows))
	for _, row := range rows {
		counts[domain.AlertStatus(row.Status)] = row.Count
	}

	return counts, nil
}
