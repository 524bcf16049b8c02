package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/todoman/internal/model"
)

const (
	insertSessionSQL = `INSERT INTO sessions (id, user_id, expires_at, created_at)
		 VALUES ($1, $2, $3, $4)`

	findSessionSQL = `SELECT id, user_id, expires_at, created_at
		 FROM sessions
		 WHERE id = $1 AND expires_at > now()`

	// 毎リクエストのセッション復元で使うため、usersとの結合を1往復で済ませる
	findSessionPrincipalSQL = `SELECT u.id, u.name, u.email
		 FROM sessions s
		 JOIN users u ON u.id = s.user_id
		 WHERE s.id = $1 AND s.expires_at > now()`
)

// PostgresSessionRepo はsessionsテーブルを扱うリポジトリ。
type PostgresSessionRepo struct {
	db dbtx
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// Create はセッションを保存する。
func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if _, err := r.db.ExecContext(ctx, insertSessionSQL,
		session.ID, session.UserID, session.ExpiresAt, session.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to create session for user %s: %w", session.UserID, err)
	}
	return nil
}

// FindByID は有効期限内のセッションを返す。該当なしはnil。
func (r *PostgresSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	var s model.Session
	err := r.db.QueryRowContext(ctx, findSessionSQL, id).
		Scan(&s.ID, &s.UserID, &s.ExpiresAt, &s.CreatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	return &s, nil
}

// FindPrincipal は有効なセッションの持ち主をPrincipalとして返す。該当なしはnil。
func (r *PostgresSessionRepo) FindPrincipal(ctx context.Context, sessionID string) (*model.Principal, error) {
	var p model.Principal
	err := r.db.QueryRowContext(ctx, findSessionPrincipalSQL, sessionID).
		Scan(&p.ID, &p.DisplayName, &p.Email)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to resolve session principal: %w", err)
	}
	return &p, nil
}

// DeleteByID はセッションを削除する。存在しなくてもエラーにしない。
func (r *PostgresSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteByUserID はユーザーの全セッションを削除する。退会時に使う。
func (r *PostgresSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete sessions of user %s: %w", userID, err)
	}
	return nil
}

var _ SessionRepository = (*PostgresSessionRepo)(nil)
