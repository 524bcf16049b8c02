package taskstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/hitoshi/todoman/internal/model"
)

// PostgresGateway はPostgreSQLのtodosテーブルをタスクストアとして使う。
type PostgresGateway struct {
	db *sql.DB
}

// NewPostgresGateway はPostgresGatewayを生成する。
func NewPostgresGateway(db *sql.DB) *PostgresGateway {
	return &PostgresGateway{db: db}
}

// FetchByOwner は所有者のタスクを作成順で返す。
func (g *PostgresGateway) FetchByOwner(ctx context.Context, ownerID string) ([]model.Task, error) {
	if !isUUID(ownerID) {
		return []model.Task{}, nil
	}

	rows, err := g.db.QueryContext(ctx,
		`SELECT id, text, completed, user_id, reminder_time, reminder_sent, created_at
		 FROM todos
		 WHERE user_id = $1
		 ORDER BY created_at, id`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	tasks := []model.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}

	return tasks, nil
}

// Create はタスクを挿入し、採番されたIDとcreated_atを返す。
func (g *PostgresGateway) Create(ctx context.Context, task model.Task) (model.Task, error) {
	if !isUUID(task.OwnerID) {
		return model.Task{}, fmt.Errorf("invalid owner ID %q", task.OwnerID)
	}

	var reminder sql.NullTime
	if task.ReminderTime != nil {
		reminder = sql.NullTime{Time: *task.ReminderTime, Valid: true}
	}

	row := g.db.QueryRowContext(ctx,
		`INSERT INTO todos (text, completed, user_id, reminder_time, reminder_sent)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, text, completed, user_id, reminder_time, reminder_sent, created_at`,
		task.Text, task.Completed, task.OwnerID, reminder, task.ReminderSent,
	)
	created, err := scanTask(row)
	if err != nil {
		return model.Task{}, fmt.Errorf("failed to insert task: %w", err)
	}
	return created, nil
}

// UpdateFields は所有者が一致する行の指定カラムのみを更新する。
func (g *PostgresGateway) UpdateFields(ctx context.Context, ownerID, id string, update model.TaskUpdate) error {
	if !isUUID(ownerID) || !isUUID(id) {
		return ErrNotFound
	}

	if update.IsEmpty() {
		exists, err := g.exists(ctx, `SELECT EXISTS (SELECT 1 FROM todos WHERE id = $1 AND user_id = $2)`, id, ownerID)
		if err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return nil
	}

	sets := make([]string, 0, 2)
	args := []any{id, ownerID}
	if update.Completed != nil {
		args = append(args, *update.Completed)
		sets = append(sets, fmt.Sprintf("completed = $%d", len(args)))
	}
	if update.ReminderSent != nil {
		args = append(args, *update.ReminderSent)
		sets = append(sets, fmt.Sprintf("reminder_sent = $%d", len(args)))
	}

	result, err := g.db.ExecContext(ctx,
		`UPDATE todos SET `+strings.Join(sets, ", ")+` WHERE id = $1 AND user_id = $2`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("failed to update task %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete は所有者が一致する行を削除する。
// 行が存在しない場合は成功、他人の行が存在する場合はErrNotFoundを返す。
func (g *PostgresGateway) Delete(ctx context.Context, ownerID, id string) error {
	if !isUUID(id) {
		return nil
	}
	if !isUUID(ownerID) {
		return ErrNotFound
	}

	result, err := g.db.ExecContext(ctx,
		`DELETE FROM todos WHERE id = $1 AND user_id = $2`,
		id, ownerID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	foreign, err := g.exists(ctx, `SELECT EXISTS (SELECT 1 FROM todos WHERE id = $1)`, id)
	if err != nil {
		return err
	}
	if foreign {
		return ErrNotFound
	}
	return nil
}

// DeleteByOwner は所有者のタスクをすべて削除する。
func (g *PostgresGateway) DeleteByOwner(ctx context.Context, ownerID string) error {
	if !isUUID(ownerID) {
		return nil
	}
	if _, err := g.db.ExecContext(ctx, `DELETE FROM todos WHERE user_id = $1`, ownerID); err != nil {
		return fmt.Errorf("failed to delete tasks of owner: %w", err)
	}
	return nil
}

func (g *PostgresGateway) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var exists bool
	if err := g.db.QueryRowContext(ctx, query, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check task existence: %w", err)
	}
	return exists, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (model.Task, error) {
	var (
		task     model.Task
		reminder sql.NullTime
	)
	err := row.Scan(&task.ID, &task.Text, &task.Completed, &task.OwnerID, &reminder, &task.ReminderSent, &task.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Task{}, ErrNotFound
	}
	if err != nil {
		return model.Task{}, fmt.Errorf("failed to scan task: %w", err)
	}
	if reminder.Valid {
		t := reminder.Time
		task.ReminderTime = &t
	}
	task.Sync = model.SyncStatusSynced
	return task, nil
}

// isUUID はIDがUUID形式かを判定する。UUIDでないIDはtodosテーブルに存在し得ない。
func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// compile-time interface check
var _ Gateway = (*PostgresGateway)(nil)
