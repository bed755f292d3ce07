package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore is a PostgreSQL-backed Store. Patches are applied in a single
// UPDATE statement, so the per-record read-modify-write is atomic.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a Postgres record store on top of an existing pool.
func NewPGStore(pool *pgxpool.Pool) (*PGStore, error) {
	if pool == nil {
		return nil, errors.New("notification: pgx pool cannot be nil")
	}
	return &PGStore{pool: pool}, nil
}

const recordColumns = `id, user_id, channel, subject, message, recipient, status, priority,
	metadata, attempts, max_attempts, error_message, sent_at, failed_at, job_id, created_at, updated_at`

func (s *PGStore) Create(ctx context.Context, rec Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (
			id, user_id, channel, subject, message, recipient, status, priority,
			metadata, attempts, max_attempts, error_message, sent_at, failed_at, job_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		rec.ID, rec.UserID, string(rec.Channel), rec.Subject, rec.Message, rec.Recipient,
		string(rec.Status), string(rec.Priority), rec.Metadata, rec.Attempts, rec.MaxAttempts,
		rec.ErrorMessage, rec.SentAt, rec.FailedAt, rec.JobID,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM notifications WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return rec, nil
}

func (s *PGStore) Update(ctx context.Context, id uuid.UUID, patch Patch) (*Record, error) {
	sets := []string{"updated_at = now()"}
	args := []any{id}

	addSet := func(expr string, val any) {
		args = append(args, val)
		sets = append(sets, fmt.Sprintf(expr, len(args)))
	}

	if patch.Status != nil {
		addSet("status = $%d", string(*patch.Status))
	}
	if patch.IncrementAttempts {
		sets = append(sets, "attempts = attempts + 1")
	}
	if patch.ErrorMessage != nil {
		addSet("error_message = $%d", *patch.ErrorMessage)
	}
	if patch.SentAt != nil {
		addSet("sent_at = $%d", *patch.SentAt)
	}
	if patch.FailedAt != nil {
		addSet("failed_at = $%d", *patch.FailedAt)
	}
	if patch.JobID != nil {
		addSet("job_id = $%d", *patch.JobID)
	}

	query := `UPDATE notifications SET ` + strings.Join(sets, ", ") +
		` WHERE id = $1 RETURNING ` + recordColumns

	row := s.pool.QueryRow(ctx, query, args...)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update notification: %w", err)
	}
	return rec, nil
}

func (s *PGStore) CountBy(ctx context.Context, f Filter) (int, error) {
	where, args := buildFilter(f)

	var count int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM notifications`+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count notifications: %w", err)
	}
	return count, nil
}

func (s *PGStore) Find(ctx context.Context, f Filter, opts ListOptions) ([]Record, error) {
	where, args := buildFilter(f)

	order := " ORDER BY created_at ASC"
	if opts.NewestFirst {
		order = " ORDER BY created_at DESC"
	}

	query := `SELECT ` + recordColumns + ` FROM notifications` + where + order
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find notifications: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func buildFilter(f Filter) (string, []any) {
	var conds []string
	var args []any

	add := func(expr string, val any) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(expr, len(args)))
	}

	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.Channel != "" {
		add("channel = $%d", string(f.Channel))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	var channel, status, priority string

	err := row.Scan(
		&rec.ID, &rec.UserID, &channel, &rec.Subject, &rec.Message, &rec.Recipient,
		&status, &priority, &rec.Metadata, &rec.Attempts, &rec.MaxAttempts,
		&rec.ErrorMessage, &rec.SentAt, &rec.FailedAt, &rec.JobID, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Channel = Channel(channel)
	rec.Status = Status(status)
	rec.Priority = Priority(priority)
	return &rec, nil
}

func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
