package workspace

import "sync"

// UIState は画面表示のための状態。タスクの詳細表示と入力フォームの下書きを保持する。
type UIState struct {
	mu            sync.Mutex
	selectedID    string
	draftText     string
	draftReminder string
	formError     string
}

// Select は詳細表示するタスクを設定する。
func (u *UIState) Select(taskID string) {
	u.mu.Lock()
	u.selectedID = taskID
	u.mu.Unlock()
}

// Selected は詳細表示中のタスクIDを返す。未選択の場合は空文字列。
func (u *UIState) Selected() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.selectedID
}

// ClearSelection は詳細表示を閉じる。
func (u *UIState) ClearSelection() {
	u.Select("")
}

// SetDraft は送信に失敗した入力内容を保持する。
func (u *UIState) SetDraft(text, reminder string) {
	u.mu.Lock()
	u.draftText = text
	u.draftReminder = reminder
	u.mu.Unlock()
}

// Draft は保持している入力内容を返す。
func (u *UIState) Draft() (text, reminder string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.draftText, u.draftReminder
}

// SetFormError は入力フォームに表示するエラーを設定する。
func (u *UIState) SetFormError(msg string) {
	u.mu.Lock()
	u.formError = msg
	u.mu.Unlock()
}

// FormError は入力フォームのエラーを返す。
func (u *UIState) FormError() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.formError
}

// ClearDraft は入力内容とフォームのエラーを破棄する。
func (u *UIState) ClearDraft() {
	u.mu.Lock()
	u.draftText = ""
	u.draftReminder = ""
	u.formError = ""
	u.mu.Unlock()
}

// Reset はすべてのUI状態を初期化する。サインアウト時に使用する。
func (u *UIState) Reset() {
	u.mu.Lock()
	u.selectedID = ""
	u.draftText = ""
	u.draftReminder = ""
	u.formError = ""
	u.mu.Unlock()
}
