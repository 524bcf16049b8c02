// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"

	"github.com/hitoshi/todoman/internal/middleware"
	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/workspace"
)

const oauthStateCookie = "oauth_state"

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL       string
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はOAuth認証関連のHTTPハンドラー。
// サインイン状態はリクエストのワークスペースが持つIdentity Sessionに反映する。
type AuthHandler struct {
	config AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{config: config}
}

// Login はGoogle OAuthフローを開始する。
// GET /auth/google/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ws, ok := requireWorkspace(w, r)
	if !ok {
		return
	}

	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10分
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, ws.Session.LoginURL(state), http.StatusTemporaryRedirect)
}

// Callback はOAuthコールバックを処理する。
// GET /auth/google/callback?code=xxx&state=yyy
// サインインに失敗した場合はサインイン画面に戻す。
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	ws, ok := requireWorkspace(w, r)
	if !ok {
		return
	}

	// 1. stateの検証（CSRF対策）
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch",
			slog.String("query_state", state),
		)
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	// stateクッキーを削除
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	// 2. 認可コードの取得
	code := r.URL.Query().Get("code")
	if code == "" {
		slog.Warn("oauth callback without code",
			slog.String("error", r.URL.Query().Get("error")),
		)
		http.Redirect(w, r, h.config.BaseURL, http.StatusTemporaryRedirect)
		return
	}

	// 3. サインイン（失敗時はSession側でログ出力済み）
	if _, err := ws.Session.SignIn(r.Context(), code); err != nil {
		http.Redirect(w, r, h.config.BaseURL, http.StatusTemporaryRedirect)
		return
	}
	ws.UI.Reset()

	// 4. セッションCookieを設定（HTTP Only）
	h.setSessionCookie(w, ws.Session.SessionID(), h.config.SessionMaxAge)

	http.Redirect(w, r, h.config.BaseURL, http.StatusTemporaryRedirect)
}

// Logout はサインアウトしてセッションCookieを破棄する。
// POST /auth/logout
// サインアウトに失敗した場合はサインイン状態のまま元の画面に戻す。
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ws, ok := requireWorkspace(w, r)
	if !ok {
		return
	}

	if err := ws.Session.SignOut(r.Context()); err != nil {
		http.Redirect(w, r, h.config.BaseURL, http.StatusSeeOther)
		return
	}
	ws.UI.Reset()

	h.setSessionCookie(w, "", -1)
	http.Redirect(w, r, h.config.BaseURL, http.StatusSeeOther)
}

// Me は現在のサインインユーザー情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	ws, ok := requireWorkspace(w, r)
	if !ok {
		return
	}

	p := ws.Session.Current()
	if p == nil {
		middleware.WriteUnauthorized(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"id":         p.ID,
		"email":      p.Email,
		"name":       p.DisplayName,
		"first_name": p.FirstName(),
	})
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    value,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// requireWorkspace はリクエストのワークスペースを返す。
// ワークスペースミドルウェアを通っていない場合は500を書き込む。
func requireWorkspace(w http.ResponseWriter, r *http.Request) (*workspace.Workspace, bool) {
	ws, ok := middleware.WorkspaceFromContext(r.Context())
	if !ok {
		slog.Error("workspace not found in request context",
			slog.String("path", r.URL.Path),
		)
		middleware.WriteInternalServerError(w)
		return nil, false
	}
	return ws, true
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
