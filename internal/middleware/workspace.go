// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/todoman/internal/workspace"
)

const (
	// SessionCookieName はサーバーセッションIDを保持するCookieの名前。
	SessionCookieName = "session_id"

	// ClientCookieName はブラウザとワークスペースを紐付けるCookieの名前。
	ClientCookieName = "client_id"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	userIDContextKey    = contextKey("user_id")
	workspaceContextKey = contextKey("workspace")
)

// WorkspaceProvider はクライアントIDからワークスペースを取得する。
type WorkspaceProvider interface {
	Get(clientID string) (*workspace.Workspace, bool)
	GetOrCreate(clientID string) (*workspace.Workspace, bool)
}

// CreationLimiter は新しいワークスペースの作成を制限する。*RateLimiterが実装する。
type CreationLimiter interface {
	AllowWorkspaceCreate(r *http.Request) (allowed bool, retryAfterSec int)
}

// CookieConfig はミドルウェアが発行するCookieの属性。
type CookieConfig struct {
	Secure bool
	Domain string
	MaxAge int
}

// NewWorkspaceMiddleware はclient_id Cookieに対応するワークスペースを取得して
// リクエストコンテキストに注入するミドルウェアを返す。
// ワークスペースのIdentity Sessionはsession_id Cookieの値に合わせて復元される。
// サインイン中であればユーザーIDもコンテキストに注入する。
// limiterがnilでなければ、新しいワークスペースの作成が拒否されたリクエストに429を返す。
func NewWorkspaceMiddleware(provider WorkspaceProvider, config CookieConfig, limiter CreationLimiter) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. Cookieからワークスペースを取得（なければ作成してCookieを発行）
			var clientID string
			if cookie, err := r.Cookie(ClientCookieName); err == nil {
				clientID = cookie.Value
			}
			ws, found := provider.Get(clientID)
			if !found && limiter != nil {
				if allowed, retryAfter := limiter.AllowWorkspaceCreate(r); !allowed {
					WriteTooManyRequests(w, retryAfter)
					return
				}
			}
			created := false
			if !found {
				ws, created = provider.GetOrCreate(clientID)
			}
			if created {
				http.SetCookie(w, &http.Cookie{
					Name:     ClientCookieName,
					Value:    ws.ID,
					Path:     "/",
					Domain:   config.Domain,
					MaxAge:   config.MaxAge,
					HttpOnly: true,
					Secure:   config.Secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			// 2. Identity Sessionをブラウザのセッションに合わせる
			var sessionID string
			if cookie, err := r.Cookie(SessionCookieName); err == nil {
				sessionID = cookie.Value
			}
			if err := ws.Session.Restore(r.Context(), sessionID); err != nil {
				// 認証基盤の障害時は直前の状態のまま続行する
				slog.Warn("failed to restore session",
					slog.String("error", err.Error()),
				)
			}

			// 3. ワークスペースとユーザーIDをコンテキストに注入
			ctx := ContextWithWorkspace(r.Context(), ws)
			if p := ws.Session.Current(); p != nil {
				ctx = ContextWithUserID(ctx, p.ID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewRequirePrincipalMiddleware はサインインしていないリクエストに401を返すミドルウェアを返す。
// NewWorkspaceMiddlewareの後に配置する。
func NewRequirePrincipalMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := UserIDFromContext(r.Context()); err != nil {
				WriteUnauthorized(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WorkspaceFromContext はリクエストコンテキストからワークスペースを取得する。
func WorkspaceFromContext(ctx context.Context) (*workspace.Workspace, bool) {
	ws, ok := ctx.Value(workspaceContextKey).(*workspace.Workspace)
	return ws, ok && ws != nil
}

// ContextWithWorkspace はコンテキストにワークスペースを注入する。
func ContextWithWorkspace(ctx context.Context, ws *workspace.Workspace) context.Context {
	return context.WithValue(ctx, workspaceContextKey, ws)
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// サインイン中のリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// リクエストログのフィールドにも反映される。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	if fields := logFieldsFromContext(ctx); fields != nil {
		fields.setUserID(userID)
	}
	return context.WithValue(ctx, userIDContextKey, userID)
}
