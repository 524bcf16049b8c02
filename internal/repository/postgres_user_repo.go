package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/todoman/internal/model"
)

const (
	findUserSQL = `SELECT id, email, name, created_at, updated_at FROM users WHERE id = $1`

	insertUserSQL = `INSERT INTO users (id, email, name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`

	// 値が変わらない場合はupdated_atを進めない
	updateProfileSQL = `UPDATE users SET name = $2, email = $3, updated_at = now()
		 WHERE id = $1 AND (name <> $2 OR email <> $3)`
)

// PostgresUserRepo はusersテーブルを扱うリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID はユーザーを返す。該当なしはnil。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := r.db.QueryRowContext(ctx, findUserSQL, id).
		Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt, &u.UpdatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to find user %s: %w", id, err)
	}
	return &u, nil
}

// CreateWithIdentity は初回サインインのユーザーとidentityを1トランザクションで登録する。
func (r *PostgresUserRepo) CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, insertUserSQL,
			user.ID, user.Email, user.Name, user.CreatedAt, user.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert user: %w", err)
		}
		return insertIdentity(ctx, tx, identity)
	})
}

// UpdateProfile は表示名とメールアドレスをIdPの値に合わせる。
func (r *PostgresUserRepo) UpdateProfile(ctx context.Context, id, name, email string) error {
	if _, err := r.db.ExecContext(ctx, updateProfileSQL, id, name, email); err != nil {
		return fmt.Errorf("failed to update profile of user %s: %w", id, err)
	}
	return nil
}

// DeleteByID はユーザーを削除する。存在しない場合はErrUserNotFoundを返す。
func (r *PostgresUserRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("delete user %s: %w", id, ErrUserNotFound)
	}
	return nil
}

// withTx はfnをトランザクション内で実行し、fnが成功した場合のみコミットする。
func (r *PostgresUserRepo) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

var _ UserRepository = (*PostgresUserRepo)(nil)
