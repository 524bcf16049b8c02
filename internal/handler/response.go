package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/todoman/internal/middleware"
	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/tasklist"
)

// taskResponse はタスクのJSONレスポンス。
type taskResponse struct {
	ID           string     `json:"id"`
	Text         string     `json:"text"`
	Completed    bool       `json:"completed"`
	OwnerID      string     `json:"owner_id"`
	CreatedAt    *time.Time `json:"created_at"`
	ReminderTime *time.Time `json:"reminder_time"`
	ReminderSent bool       `json:"reminder_sent"`
	Sync         string     `json:"sync"`
}

// taskListResponse はタスク一覧のJSONレスポンス。
type taskListResponse struct {
	Tasks     []taskResponse `json:"tasks"`
	Loading   bool           `json:"loading"`
	LoadError string         `json:"load_error,omitempty"`
	Notice    string         `json:"notice,omitempty"`
}

func toTaskResponse(t model.Task) taskResponse {
	resp := taskResponse{
		ID:           t.ID,
		Text:         t.Text,
		Completed:    t.Completed,
		OwnerID:      t.OwnerID,
		ReminderSent: t.ReminderSent,
		Sync:         string(t.Sync),
	}
	// 作成確定前のタスクはnullを返す
	if !t.CreatedAt.IsZero() {
		createdAt := t.CreatedAt
		resp.CreatedAt = &createdAt
	}
	if t.HasReminder() {
		rt := *t.ReminderTime
		resp.ReminderTime = &rt
	}
	return resp
}

func toTaskListResponse(state tasklist.State) taskListResponse {
	resp := taskListResponse{
		Tasks:   make([]taskResponse, 0, len(state.Tasks)),
		Loading: state.Loading,
		Notice:  state.Notice,
	}
	for _, t := range state.Tasks {
		resp.Tasks = append(resp.Tasks, toTaskResponse(t))
	}
	if state.LoadError != nil {
		resp.LoadError = model.NewStoreUnavailableError().Message
	}
	return resp
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeEmptyTaskText, model.ErrCodeInvalidReminder, model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeTaskNotFound, model.ErrCodeUserNotFound:
		return http.StatusNotFound
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeSessionChanged:
		return http.StatusConflict
	case model.ErrCodeStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
