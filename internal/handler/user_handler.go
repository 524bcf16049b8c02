package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/todoman/internal/middleware"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// Withdraw はユーザーの退会処理を実行する。
	// タスク、セッション、identities、userを削除する。
	Withdraw(ctx context.Context, userID string) error
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
	cookie  middleware.CookieConfig
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface, cookie middleware.CookieConfig) *UserHandler {
	return &UserHandler{
		service: service,
		cookie:  cookie,
	}
}

// Withdraw はユーザーの退会処理を実行し、ワークスペースをサインアウト状態にする。
// DELETE /api/users/me
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteUnauthorized(w)
		return
	}

	if err := h.service.Withdraw(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	// サーバーセッションは削除済みのため、ローカルの状態のみ破棄する
	if ws, ok := middleware.WorkspaceFromContext(r.Context()); ok {
		if err := ws.Session.Restore(r.Context(), ""); err != nil {
			slog.Warn("failed to sign out withdrawn user", slog.String("error", err.Error()))
		}
		ws.UI.Reset()
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.cookie.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	slog.Info("user withdrawn", slog.String("user_id", userID))
	w.WriteHeader(http.StatusNoContent)
}
