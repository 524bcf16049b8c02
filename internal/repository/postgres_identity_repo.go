package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/todoman/internal/model"
)

const (
	insertIdentitySQL = `INSERT INTO identities (id, user_id, provider, provider_user_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)`

	findIdentitySQL = `SELECT id, user_id, provider, provider_user_id, created_at
		 FROM identities
		 WHERE provider = $1 AND provider_user_id = $2`
)

// PostgresIdentityRepo はidentitiesテーブルを扱うリポジトリ。
// 新規ユーザーのidentityはPostgresUserRepo.CreateWithIdentityのトランザクション内で作られる。
type PostgresIdentityRepo struct {
	db dbtx
}

// NewPostgresIdentityRepo はPostgresIdentityRepoを生成する。
func NewPostgresIdentityRepo(db *sql.DB) *PostgresIdentityRepo {
	return &PostgresIdentityRepo{db: db}
}

// FindByProviderAndProviderUserID はIdPのsubjectからidentityを引く。見つからない場合はnilを返す。
func (r *PostgresIdentityRepo) FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error) {
	var ident model.Identity
	err := r.db.QueryRowContext(ctx, findIdentitySQL, provider, providerUserID).
		Scan(&ident.ID, &ident.UserID, &ident.Provider, &ident.ProviderUserID, &ident.CreatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to find identity %s/%s: %w", provider, providerUserID, err)
	}
	return &ident, nil
}

// insertIdentity はidentityを1行挿入する。呼び出し側のトランザクション内で使う。
func insertIdentity(ctx context.Context, q dbtx, ident *model.Identity) error {
	if _, err := q.ExecContext(ctx, insertIdentitySQL,
		ident.ID, ident.UserID, ident.Provider, ident.ProviderUserID, ident.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert identity: %w", err)
	}
	return nil
}

var _ IdentityRepository = (*PostgresIdentityRepo)(nil)
