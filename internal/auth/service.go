// Package auth はGoogle OAuthによるサインインとサーバーセッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/repository"
)

// ErrSessionNotFound はセッションが存在しないか期限切れの場合のエラー。
// 呼び出し側は「未サインイン」として扱う。
var ErrSessionNotFound = errors.New("session not found or expired")

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	Name           string
	Provider       string
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// SignInResult はサインイン成功時に発行されたセッションとPrincipal。
type SignInResult struct {
	Session   *model.Session
	Principal *model.Principal
}

// Service はサインイン・サインアウト・セッション復元を提供する。
type Service struct {
	oauth       OAuthProvider
	userRepo    repository.UserRepository
	identRepo   repository.IdentityRepository
	sessionRepo repository.SessionRepository
	config      ServiceConfig
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	oauth OAuthProvider,
	userRepo repository.UserRepository,
	identRepo repository.IdentityRepository,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
) *Service {
	return &Service{
		oauth:       oauth,
		userRepo:    userRepo,
		identRepo:   identRepo,
		sessionRepo: sessionRepo,
		config:      config,
		now:         time.Now,
	}
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback は認可コードを検証してセッションを発行する。
// 未登録ユーザーはusersとidentitiesを同時に作成し、登録済みユーザーは
// IdP側の表示名・メールアドレスの変更をusersに反映する。
func (s *Service) HandleCallback(ctx context.Context, code string) (*SignInResult, error) {
	userInfo, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	identity, err := s.identRepo.FindByProviderAndProviderUserID(ctx, userInfo.Provider, userInfo.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}

	var userID string
	if identity != nil {
		userID = identity.UserID
		if err := s.userRepo.UpdateProfile(ctx, userID, userInfo.Name, userInfo.Email); err != nil {
			// プロフィール同期の失敗はサインインを妨げない
			slog.Warn("failed to sync user profile",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
		slog.Info("existing user signed in",
			slog.String("user_id", userID),
			slog.String("provider", userInfo.Provider),
		)
	} else {
		userID, err = s.registerUser(ctx, userInfo)
		if err != nil {
			return nil, err
		}
	}

	session, err := s.createSession(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &SignInResult{
		Session: session,
		Principal: &model.Principal{
			ID:          userID,
			DisplayName: userInfo.Name,
			Email:       userInfo.Email,
		},
	}, nil
}

// registerUser は新規ユーザーとidentityを作成し、ユーザーIDを返す。
func (s *Service) registerUser(ctx context.Context, userInfo *OAuthUserInfo) (string, error) {
	now := s.now()
	newUser := &model.User{
		ID:        uuid.New().String(),
		Email:     userInfo.Email,
		Name:      userInfo.Name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	newIdentity := &model.Identity{
		ID:             uuid.New().String(),
		UserID:         newUser.ID,
		Provider:       userInfo.Provider,
		ProviderUserID: userInfo.ProviderUserID,
		CreatedAt:      now,
	}

	if err := s.userRepo.CreateWithIdentity(ctx, newUser, newIdentity); err != nil {
		return "", fmt.Errorf("failed to create user and identity: %w", err)
	}

	slog.Info("new user created",
		slog.String("user_id", newUser.ID),
		slog.String("provider", userInfo.Provider),
	)
	return newUser.ID, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user signed out")
	return nil
}

// GetCurrentPrincipal はセッションに紐づくPrincipalを返す。
// セッションが無効、またはユーザーが退会済みの場合はErrSessionNotFoundを返す。
func (s *Service) GetCurrentPrincipal(ctx context.Context, sessionID string) (*model.Principal, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}

	p, err := s.sessionRepo.FindPrincipal(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}
	if p == nil {
		return nil, ErrSessionNotFound
	}
	return p, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
