// Package identity はブラウザ単位のサインイン状態（Identity Session）を管理する。
// 現在のPrincipalを保持し、遷移のたびに購読者へ通知する。
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/hitoshi/todoman/internal/auth"
	"github.com/hitoshi/todoman/internal/model"
)

// Authenticator は外部IdPとサーバーセッションを扱う認証サービスのインターフェース。
type Authenticator interface {
	GetLoginURL(state string) string
	HandleCallback(ctx context.Context, code string) (*auth.SignInResult, error)
	Logout(ctx context.Context, sessionID string) error
	GetCurrentPrincipal(ctx context.Context, sessionID string) (*model.Principal, error)
}

// Observer はPrincipalの遷移を受け取るコールバック。nilはサインアウト状態を表す。
type Observer func(p *model.Principal)

// Session は1つのブラウザに紐づくサインイン状態。
//
// 状態遷移（SignIn/SignOut/Restore）は直列化され、購読者への通知は
// 状態ロックの外で遷移順に行われる。購読者のコールバック内から
// SignIn・SignOut・Restore・Subscribeを同期的に呼び出してはならない。
type Session struct {
	auth   Authenticator
	logger *slog.Logger

	// transitionMu は遷移と通知を直列化する
	transitionMu sync.Mutex

	mu        sync.Mutex
	principal *model.Principal
	sessionID string
	observers map[int]Observer
	nextID    int
}

// NewSession はサインアウト状態のSessionを生成する。
func NewSession(authenticator Authenticator, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		auth:      authenticator,
		logger:    logger,
		observers: make(map[int]Observer),
	}
}

// Current は現在のPrincipalのコピーを返す。サインアウト状態ではnilを返す。
func (s *Session) Current() *model.Principal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyPrincipal(s.principal)
}

// SessionID は現在のサーバーセッションIDを返す。サインアウト状態では空文字列。
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// LoginURL はIdPのサインイン画面のURLを返す。
func (s *Session) LoginURL(state string) string {
	return s.auth.GetLoginURL(state)
}

// SignIn は認可コードでサインインする。
// 失敗した場合は状態を変更せず、ログを出力してエラーを返す。
func (s *Session) SignIn(ctx context.Context, code string) (*model.Principal, error) {
	s.transitionMu.Lock()
	defer s.transitionMu.Unlock()

	result, err := s.auth.HandleCallback(ctx, code)
	if err != nil {
		s.logger.Warn("sign-in failed", slog.String("error", err.Error()))
		return nil, fmt.Errorf("sign in: %w", err)
	}

	s.mu.Lock()
	previousSessionID := s.sessionID
	s.principal = copyPrincipal(result.Principal)
	s.sessionID = result.Session.ID
	s.mu.Unlock()

	// 別セッションからのサインインし直しでは古いサーバーセッションを破棄する
	if previousSessionID != "" && previousSessionID != result.Session.ID {
		if err := s.auth.Logout(ctx, previousSessionID); err != nil {
			s.logger.Warn("failed to revoke previous session", slog.String("error", err.Error()))
		}
	}

	s.logger.Info("signed in", slog.String("user_id", result.Principal.ID))
	s.notify(result.Principal)
	return copyPrincipal(result.Principal), nil
}

// SignOut はサーバーセッションを破棄してサインアウト状態にする。
// サインアウト状態で呼ばれた場合は何もしない。
// 失敗した場合は状態を変更せず、ログを出力してエラーを返す。
func (s *Session) SignOut(ctx context.Context) error {
	s.transitionMu.Lock()
	defer s.transitionMu.Unlock()

	s.mu.Lock()
	sessionID := s.sessionID
	signedIn := s.principal != nil
	s.mu.Unlock()

	if !signedIn {
		return nil
	}

	if err := s.auth.Logout(ctx, sessionID); err != nil {
		s.logger.Warn("sign-out failed", slog.String("error", err.Error()))
		return fmt.Errorf("sign out: %w", err)
	}

	s.clear()
	return nil
}

// Restore はブラウザが提示したセッションIDに状態を合わせる。
// 同じIDでも毎回認証サービスに問い合わせ、サーバー側で削除されたセッションはサインアウトとして扱う。
// 空・無効・期限切れのIDではサインアウト状態になる。Principalが変わらなければ通知しない。
// 認証サービスの障害時は状態を変更せず、ログを出力してエラーを返す。
func (s *Session) Restore(ctx context.Context, sessionID string) error {
	s.transitionMu.Lock()
	defer s.transitionMu.Unlock()

	if sessionID == "" {
		s.clear()
		return nil
	}

	p, err := s.auth.GetCurrentPrincipal(ctx, sessionID)
	if errors.Is(err, auth.ErrSessionNotFound) {
		s.clear()
		return nil
	}
	if err != nil {
		s.logger.Warn("session restore failed", slog.String("error", err.Error()))
		return fmt.Errorf("restore session: %w", err)
	}

	if p == nil {
		s.clear()
		return nil
	}

	s.mu.Lock()
	unchanged := s.sessionID == sessionID && s.principal != nil && s.principal.ID == p.ID
	s.principal = copyPrincipal(p)
	s.sessionID = sessionID
	s.mu.Unlock()
	if unchanged {
		return nil
	}

	s.logger.Debug("session restored", slog.String("user_id", p.ID))
	s.notify(p)
	return nil
}

// Subscribe は購読者を登録し、現在の値で即座に1回呼び出す。
// 以後は遷移のたびに呼び出される。返される解除関数は何度呼んでもよい。
func (s *Session) Subscribe(fn Observer) (unsubscribe func()) {
	s.transitionMu.Lock()
	defer s.transitionMu.Unlock()

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.observers[id] = fn
	current := copyPrincipal(s.principal)
	s.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, id)
			s.mu.Unlock()
		})
	}
}

// clear はローカル状態をサインアウトにして通知する。既にサインアウト状態なら通知しない。
// transitionMuを保持した状態で呼ぶこと。
func (s *Session) clear() {
	s.mu.Lock()
	wasSignedIn := s.principal != nil
	s.principal = nil
	s.sessionID = ""
	s.mu.Unlock()

	if wasSignedIn {
		s.logger.Info("signed out")
		s.notify(nil)
	}
}

// notify は登録順に購読者を呼び出す。transitionMuを保持した状態で呼ぶこと。
func (s *Session) notify(p *model.Principal) {
	s.mu.Lock()
	ids := make([]int, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	slices.Sort(ids)
	for _, id := range ids {
		s.mu.Lock()
		fn, ok := s.observers[id]
		s.mu.Unlock()
		if ok {
			fn(copyPrincipal(p))
		}
	}
}

func copyPrincipal(p *model.Principal) *model.Principal {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
