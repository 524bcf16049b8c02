// Package repository はユーザー・identity・セッションの永続化インターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/hitoshi/todoman/internal/model"
)

// ErrUserNotFound は削除・更新対象のユーザーが存在しない場合のエラー。
var ErrUserNotFound = errors.New("user not found")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// UpdateProfile はIdPから取得した表示名とメールアドレスで更新する。
	UpdateProfile(ctx context.Context, id, name, email string) error

	// DeleteByID は指定IDのユーザーを削除する。
	// identitiesとsessionsはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// FindPrincipal は有効なセッションに紐づくPrincipalを返す。
	// セッションが期限切れ、またはユーザーが存在しない場合はnilを返す。
	FindPrincipal(ctx context.Context, sessionID string) (*model.Principal, error)
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// dbtx は*sql.DBと*sql.Txに共通するクエリ操作。
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ dbtx = (*sql.DB)(nil)
	_ dbtx = (*sql.Tx)(nil)
)
