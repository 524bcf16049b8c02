package handler

import (
	"bytes"
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/todoman/internal/middleware"
	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/security"
	"github.com/hitoshi/todoman/internal/workspace"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

const (
	// loadingRefreshSeconds は初回読み込み中の画面の自動更新間隔（秒）。
	loadingRefreshSeconds = 1

	displayTimeLayout = "Jan 2, 2006 3:04 PM"

	formErrorInvalidReminder = "Invalid reminder time."
	loadErrorMessage         = "Could not load your tasks. Please try again."
)

// taskView は画面表示用のタスク。
type taskView struct {
	ID        string
	Text      string
	Completed bool
	Created   string
	Reminder  string
	Pending   bool
	Failed    bool
}

// pageData はテンプレートに渡す画面の状態。
type pageData struct {
	CSRFField      string
	CSRFToken      string
	LoginURL       string
	FirstName      string
	Loading        bool
	RefreshSeconds int
	LoadError      string
	Notice         string
	FormError      string
	DraftText      string
	DraftReminder  string
	Tasks          []taskView
	Selected       *taskView
}

// PageHandler はサーバーサイドでレンダリングする画面のハンドラー。
// フォームの送信はTask List Controllerに委譲し、トップ画面へリダイレクトする。
type PageHandler struct {
	sanitizer security.TextSanitizer
	location  *time.Location
}

// NewPageHandler はPageHandlerを生成する。
// locationはリマインダー入力の解釈と日時の表示に使用する。
func NewPageHandler(sanitizer security.TextSanitizer, location *time.Location) *PageHandler {
	if location == nil {
		location = time.UTC
	}
	return &PageHandler{
		sanitizer: sanitizer,
		location:  location,
	}
}

// Index はサインイン画面またはタスク一覧画面を表示する。
// GET /
func (h *PageHandler) Index(w http.ResponseWriter, r *http.Request) {
	ws, ok := requireWorkspace(w, r)
	if !ok {
		return
	}

	data := pageData{
		CSRFField:      middleware.CSRFFormField,
		CSRFToken:      middleware.CSRFTokenFromContext(r.Context()),
		LoginURL:       "/auth/google/login",
		RefreshSeconds: loadingRefreshSeconds,
	}

	p := ws.Session.Current()
	if p == nil {
		h.render(w, "signin", data)
		return
	}

	state := ws.Tasks.Snapshot()
	data.FirstName = p.FirstName()
	data.Loading = state.Loading
	data.Notice = state.Notice
	data.FormError = ws.UI.FormError()
	data.DraftText, data.DraftReminder = ws.UI.Draft()
	if state.LoadError != nil {
		data.LoadError = loadErrorMessage
	}

	data.Tasks = make([]taskView, 0, len(state.Tasks))
	for _, t := range state.Tasks {
		data.Tasks = append(data.Tasks, h.toView(t))
	}

	if id := ws.UI.Selected(); id != "" {
		if t, found := ws.Tasks.Find(id); found {
			v := h.toView(t)
			data.Selected = &v
		} else {
			ws.UI.ClearSelection()
		}
	}

	h.render(w, "tasks", data)

	// 通知は1回だけ表示する
	if state.Notice != "" {
		ws.Tasks.DismissNotice()
	}
	ws.UI.SetFormError("")
}

// CreateTask はフォームから送信されたタスクを作成する。
// POST /tasks
func (h *PageHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	ws, p, ok := h.signedIn(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, middleware.MaxFormBytes)
	if err := r.ParseForm(); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteErrorResponse(w, http.StatusRequestEntityTooLarge, model.NewInvalidRequestError())
			return
		}
	}

	rawText := r.PostFormValue("text")
	rawReminder := r.PostFormValue("reminder_time")

	text := h.sanitizer.Sanitize(rawText)
	if strings.TrimSpace(text) == "" {
		redirectHome(w, r)
		return
	}

	reminder, err := parseReminder(rawReminder, h.location)
	if err != nil {
		ws.UI.SetDraft(rawText, rawReminder)
		ws.UI.SetFormError(formErrorInvalidReminder)
		redirectHome(w, r)
		return
	}

	if _, created := ws.Tasks.Create(text, reminder, p); created {
		ws.UI.ClearDraft()
	}
	redirectHome(w, r)
}

// OpenDetail はタスクの詳細を表示する。
// GET /tasks/{id}
func (h *PageHandler) OpenDetail(w http.ResponseWriter, r *http.Request) {
	ws, _, ok := h.signedIn(w, r)
	if !ok {
		return
	}

	if t, found := ws.Tasks.Find(chi.URLParam(r, "id")); found {
		ws.UI.Select(t.ID)
	}
	redirectHome(w, r)
}

// CloseDetail はタスクの詳細表示を閉じる。
// POST /detail/close
func (h *PageHandler) CloseDetail(w http.ResponseWriter, r *http.Request) {
	ws, ok := requireWorkspace(w, r)
	if !ok {
		return
	}
	ws.UI.ClearSelection()
	redirectHome(w, r)
}

// ToggleTask はタスクの完了状態を反転する。
// POST /tasks/{id}/toggle
func (h *PageHandler) ToggleTask(w http.ResponseWriter, r *http.Request) {
	ws, _, ok := h.signedIn(w, r)
	if !ok {
		return
	}

	ws.Tasks.ToggleComplete(chi.URLParam(r, "id"))
	redirectHome(w, r)
}

// DeleteTask はタスクを削除する。詳細表示中のタスクであれば詳細も閉じる。
// POST /tasks/{id}/delete
func (h *PageHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	ws, _, ok := h.signedIn(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	if t, found := ws.Tasks.Find(id); found {
		if selected := ws.UI.Selected(); selected == id || selected == t.ID {
			ws.UI.ClearSelection()
		}
		ws.Tasks.Delete(t.ID)
	}
	redirectHome(w, r)
}

// signedIn はサインイン中のワークスペースとPrincipalを返す。
// 未サインインの場合はトップ画面へリダイレクトする。
func (h *PageHandler) signedIn(w http.ResponseWriter, r *http.Request) (*workspace.Workspace, *model.Principal, bool) {
	ws, ok := requireWorkspace(w, r)
	if !ok {
		return nil, nil, false
	}
	p := ws.Session.Current()
	if p == nil {
		redirectHome(w, r)
		return nil, nil, false
	}
	return ws, p, true
}

func (h *PageHandler) toView(t model.Task) taskView {
	v := taskView{
		ID:        t.ID,
		Text:      t.Text,
		Completed: t.Completed,
		Pending:   t.Sync == model.SyncStatusPending,
		Failed:    t.Sync == model.SyncStatusFailed,
	}
	if !t.CreatedAt.IsZero() {
		v.Created = t.CreatedAt.In(h.location).Format(displayTimeLayout)
	}
	if t.HasReminder() {
		v.Reminder = t.ReminderTime.In(h.location).Format(displayTimeLayout)
	}
	return v
}

func (h *PageHandler) render(w http.ResponseWriter, name string, data pageData) {
	var buf bytes.Buffer
	if err := pageTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		slog.Error("failed to render page",
			slog.String("template", name),
			slog.String("error", err.Error()),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
