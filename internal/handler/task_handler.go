package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/security"
)

// maxTaskRequestBytes はタスク作成リクエストボディの上限サイズ。
const maxTaskRequestBytes = 64 << 10

// TaskHandler はタスク操作のJSON APIハンドラー。
// 操作はリクエストのワークスペースのTask List Controllerに委譲する。
type TaskHandler struct {
	sanitizer security.TextSanitizer
	location  *time.Location
}

// NewTaskHandler はTaskHandlerを生成する。
// locationはタイムゾーンなしのリマインダー時刻の解釈に使用する。
func NewTaskHandler(sanitizer security.TextSanitizer, location *time.Location) *TaskHandler {
	if location == nil {
		location = time.UTC
	}
	return &TaskHandler{
		sanitizer: sanitizer,
		location:  location,
	}
}

// createTaskRequest はタスク作成のリクエストボディ。
type createTaskRequest struct {
	Text         string `json:"text"`
	ReminderTime string `json:"reminder_time"`
}

// ListTasks はタスク一覧と読み込み状態を返す。
// GET /api/tasks
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	ws, ok := requireWorkspace(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toTaskListResponse(ws.Tasks.Snapshot()))
}

// CreateTask はタスクを作成する。
// POST /api/tasks
// 一覧へは即座に追加され、ストアへの保存はバックグラウンドで行われる（sync: pending）。
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	ws, ok := requireWorkspace(w, r)
	if !ok {
		return
	}

	var req createTaskRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTaskRequestBytes)).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	text := h.sanitizer.Sanitize(req.Text)
	if strings.TrimSpace(text) == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewEmptyTaskTextError())
		return
	}

	reminder, err := parseReminder(req.ReminderTime, h.location)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	task, ok := ws.Tasks.Create(text, reminder, ws.Session.Current())
	if !ok {
		writeAPIErrorResponse(w, http.StatusConflict, model.NewSessionChangedError())
		return
	}

	writeJSON(w, http.StatusAccepted, toTaskResponse(task))
}

// GetTask はタスクを1件返す。作成中の一時IDでも取得できる。
// GET /api/tasks/{id}
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	ws, ok := requireWorkspace(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	task, found := ws.Tasks.Find(id)
	if !found {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewTaskNotFoundError(id))
		return
	}

	writeJSON(w, http.StatusOK, toTaskResponse(task))
}

// ToggleTask はタスクの完了状態を反転する。
// POST /api/tasks/{id}/toggle
func (h *TaskHandler) ToggleTask(w http.ResponseWriter, r *http.Request) {
	ws, ok := requireWorkspace(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	if !ws.Tasks.ToggleComplete(id) {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewTaskNotFoundError(id))
		return
	}

	task, found := ws.Tasks.Find(id)
	if !found {
		// 直後の再読み込みで一覧から外れた
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewTaskNotFoundError(id))
		return
	}

	writeJSON(w, http.StatusAccepted, toTaskResponse(task))
}

// DeleteTask はタスクを削除する。
// DELETE /api/tasks/{id}
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	ws, ok := requireWorkspace(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	if !ws.Tasks.Delete(id) {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewTaskNotFoundError(id))
		return
	}
	if ws.UI.Selected() == id {
		ws.UI.ClearSelection()
	}

	w.WriteHeader(http.StatusNoContent)
}

// ReloadTasks はストアからタスク一覧を再読み込みし、結果を返す。
// POST /api/tasks/reload
func (h *TaskHandler) ReloadTasks(w http.ResponseWriter, r *http.Request) {
	ws, ok := requireWorkspace(w, r)
	if !ok {
		return
	}

	if err := ws.Tasks.Reload(r.Context(), ws.Session.Current()); err != nil {
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) {
			apiErr = model.NewStoreUnavailableError()
		}
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	writeJSON(w, http.StatusOK, toTaskListResponse(ws.Tasks.Snapshot()))
}
