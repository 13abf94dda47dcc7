package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medsupport/helpdesk/internal/domain"
)

// ActivityLogFilter narrows activity log queries. Zero values are ignored.
type ActivityLogFilter struct {
	TicketID *string
	Actions  []string
	From     *time.Time
	To       *time.Time
}

// ActivityLogRepository stores the per-ticket audit trail.
type ActivityLogRepository interface {
	// Create appends an entry. Entries using domain.ActionSLAEscalated are
	// rejected with ErrReservedAction; those go through CreateOnce.
	Create(ctx context.Context, entry *domain.ActivityLog) error
	// CreateOnce inserts entry unless one with the same ticket and action
	// already exists. It reports whether this call wrote the row.
	CreateOnce(ctx context.Context, entry *domain.ActivityLog) (bool, error)
	ListByTicket(ctx context.Context, ticketID string) ([]domain.ActivityLog, error)
	List(ctx context.Context, filter ActivityLogFilter) ([]domain.ActivityLog, error)
	Count(ctx context.Context, filter ActivityLogFilter) (int, error)
	// DeleteBefore removes entries older than cutoff and returns how many went.
	// Escalation entries are kept since they guard against repeat escalation.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type activityLogRepository struct {
	pool *pgxpool.Pool
}

// NewActivityLogRepository builds repository.
func NewActivityLogRepository(pool *pgxpool.Pool) ActivityLogRepository {
	return &activityLogRepository{pool: pool}
}

const activityLogColumns = `id, ticket_id, user_id, action, description, created_at`

func (r *activityLogRepository) Create(ctx context.Context, entry *domain.ActivityLog) error {
	if entry.Action == domain.ActionSLAEscalated {
		return ErrReservedAction
	}
	prepareActivityLog(entry)
	const query = `
        INSERT INTO activity_logs (id, ticket_id, user_id, action, description, created_at)
        VALUES ($1,$2,$3,$4,$5,$6)`
	_, err := r.pool.Exec(ctx, query,
		entry.ID,
		entry.TicketID,
		entry.UserID,
		entry.Action,
		entry.Description,
		entry.Timestamp,
	)
	return err
}

func (r *activityLogRepository) CreateOnce(ctx context.Context, entry *domain.ActivityLog) (bool, error) {
	prepareActivityLog(entry)
	if entry.Action != domain.ActionSLAEscalated {
		return false, fmt.Errorf("create once: unsupported action %q", entry.Action)
	}
	// Conflict target is the partial index activity_logs_escalated_once.
	const query = `
        INSERT INTO activity_logs (id, ticket_id, user_id, action, description, created_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (ticket_id, action) WHERE action = 'SLA Escalated' DO NOTHING`
	cmd, err := r.pool.Exec(ctx, query,
		entry.ID,
		entry.TicketID,
		entry.UserID,
		entry.Action,
		entry.Description,
		entry.Timestamp,
	)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *activityLogRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.ActivityLog, error) {
	return r.List(ctx, ActivityLogFilter{TicketID: &ticketID})
}

func (r *activityLogRepository) List(ctx context.Context, filter ActivityLogFilter) ([]domain.ActivityLog, error) {
	where, args := activityLogWhere(filter)
	query := fmt.Sprintf(`SELECT %s FROM activity_logs WHERE %s ORDER BY created_at ASC, id ASC`, activityLogColumns, where)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ActivityLog
	for rows.Next() {
		var entry domain.ActivityLog
		if err := rows.Scan(
			&entry.ID,
			&entry.TicketID,
			&entry.UserID,
			&entry.Action,
			&entry.Description,
			&entry.Timestamp,
		); err != nil {
			return nil, err
		}
		entry.Timestamp = entry.Timestamp.UTC()
		result = append(result, entry)
	}
	return result, rows.Err()
}

func (r *activityLogRepository) Count(ctx context.Context, filter ActivityLogFilter) (int, error) {
	where, args := activityLogWhere(filter)
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM activity_logs WHERE `+where, args...).Scan(&count)
	return count, err
}

func (r *activityLogRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM activity_logs WHERE created_at < $1 AND action <> $2`, cutoff, domain.ActionSLAEscalated)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func activityLogWhere(filter ActivityLogFilter) (string, []any) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.TicketID != nil {
		args = append(args, *filter.TicketID)
		clauses = append(clauses, fmt.Sprintf("ticket_id=$%d", len(args)))
	}
	if len(filter.Actions) > 0 {
		placeholders := make([]string, len(filter.Actions))
		for i, action := range filter.Actions {
			args = append(args, action)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("action IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	return strings.Join(clauses, " AND "), args
}
