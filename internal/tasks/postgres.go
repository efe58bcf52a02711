package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
)

// PostgresStore implements Store on top of PostgreSQL.
type PostgresStore struct {
	DB *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{DB: db}
}

// EnsureSchema creates the tasks table if it does not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.DB.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS tasks (
			id          SERIAL PRIMARY KEY,
			description TEXT NOT NULL,
			completed   BOOLEAN NOT NULL DEFAULT FALSE,
			priority    INTEGER NOT NULL DEFAULT 3,
			category    TEXT NOT NULL DEFAULT 'general',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			remind_at   TIMESTAMPTZ,
			recurring   BOOLEAN NOT NULL DEFAULT FALSE
		)`)
	if err != nil {
		return storeErr(err)
	}
	return nil
}

const taskColumns = `id, description, completed, priority, category, created_at, updated_at, remind_at, recurring`

func scanTask(row interface{ Scan(...any) error }) (Task, error) {
	var t Task
	var remindAt sql.NullTime
	err := row.Scan(
		&t.ID, &t.Description, &t.Completed, &t.Priority, &t.Category,
		&t.CreatedAt, &t.UpdatedAt, &remindAt, &t.Recurring,
	)
	if err != nil {
		return Task{}, err
	}
	if remindAt.Valid {
		at := remindAt.Time
		t.RemindAt = &at
	}
	return t, nil
}

func (s *PostgresStore) Create(ctx context.Context, t Task) (Task, error) {
	if t.Priority == 0 {
		t.Priority = DefaultPriority
	}
	if t.Category == "" {
		t.Category = DefaultCategory
	}

	var remindAt sql.NullTime
	if t.RemindAt != nil {
		remindAt = sql.NullTime{Time: *t.RemindAt, Valid: true}
	}

	row := s.DB.QueryRowContext(ctx, `
		INSERT INTO tasks (description, priority, category, remind_at, recurring)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+taskColumns,
		t.Description, ClampPriority(t.Priority), t.Category, remindAt, t.Recurring,
	)

	created, err := scanTask(row)
	if err != nil {
		return Task{}, storeErr(err)
	}
	return created, nil
}

func (s *PostgresStore) Get(ctx context.Context, id int) (Task, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE id = $1`, id)

	t, err := scanTask(row)
	if err != nil {
		return Task{}, storeErr(err)
	}
	return t, nil
}

func (s *PostgresStore) List(ctx context.Context, includeCompleted bool) ([]Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks`
	if !includeCompleted {
		query += `
		WHERE completed = FALSE`
	}
	query += `
		ORDER BY priority DESC, created_at DESC, id DESC`

	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, storeErr(err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return out, nil
}

func (s *PostgresStore) Update(ctx context.Context, id int, upd Update) (Task, error) {
	sets := []string{"updated_at = now()"}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if upd.Description != nil {
		sets = append(sets, "description = "+arg(*upd.Description))
	}
	if upd.Completed != nil {
		sets = append(sets, "completed = "+arg(*upd.Completed))
	}
	if upd.Priority != nil {
		sets = append(sets, "priority = "+arg(ClampPriority(*upd.Priority)))
	}
	if upd.Category != nil {
		sets = append(sets, "category = "+arg(*upd.Category))
	}
	if upd.ClearRemindAt {
		sets = append(sets, "remind_at = NULL")
	} else if upd.RemindAt != nil {
		sets = append(sets, "remind_at = "+arg(*upd.RemindAt))
	}
	if upd.Recurring != nil {
		sets = append(sets, "recurring = "+arg(*upd.Recurring))
	}

	query := `
		UPDATE tasks
		SET ` + strings.Join(sets, ", ") + `
		WHERE id = ` + arg(id) + `
		RETURNING ` + taskColumns

	t, err := scanTask(s.DB.QueryRowContext(ctx, query, args...))
	if err != nil {
		return Task{}, storeErr(err)
	}
	return t, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id int) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return storeErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr(err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteCompleted(ctx context.Context) (int, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM tasks WHERE completed = TRUE`)
	if err != nil {
		return 0, storeErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeErr(err)
	}
	return int(n), nil
}

// storeErr maps driver errors onto the Store error taxonomy.
func storeErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
