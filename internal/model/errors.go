// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, task, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeTaskNotFound     = "TASK_NOT_FOUND"
	ErrCodeEmptyTaskText    = "EMPTY_TASK_TEXT"
	ErrCodeInvalidReminder  = "INVALID_REMINDER"
	ErrCodeUserNotFound     = "USER_NOT_FOUND"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeInvalidRequest   = "INVALID_REQUEST"
	ErrCodeStoreUnavailable = "TASK_STORE_UNAVAILABLE"
	ErrCodeSessionChanged   = "SESSION_CHANGED"
	ErrCodeCSRFInvalid      = "CSRF_TOKEN_INVALID"
	ErrCodeRateLimited      = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

// NewTaskNotFoundError はタスク未検出エラーを生成する。
func NewTaskNotFoundError(taskID string) *APIError {
	return &APIError{
		Code:     ErrCodeTaskNotFound,
		Message:  fmt.Sprintf("指定されたタスクが見つかりません: %s", taskID),
		Category: "task",
		Action:   "タスク一覧を再読み込みしてください。",
	}
}

// NewEmptyTaskTextError はタスク本文が空の場合のエラーを生成する。
func NewEmptyTaskTextError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptyTaskText,
		Message:  "タスクの内容が空です。",
		Category: "validation",
		Action:   "タスクの内容を入力してください。",
	}
}

// NewInvalidReminderError はリマインダー時刻の形式が不正な場合のエラーを生成する。
func NewInvalidReminderError(value string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidReminder,
		Message:  fmt.Sprintf("無効なリマインダー時刻です: %s", value),
		Category: "validation",
		Action:   "リマインダー時刻は YYYY-MM-DDTHH:MM 形式またはRFC 3339形式で指定してください。",
	}
}

// NewInvalidRequestError はリクエストボディが解析できない場合のエラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストの形式が不正です。",
		Category: "validation",
		Action:   "リクエストボディを確認してください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewStoreUnavailableError はタスクストアからの読み込みに失敗した場合のエラーを生成する。
func NewStoreUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeStoreUnavailable,
		Message:  "タスクの読み込みに失敗しました。",
		Category: "task",
		Action:   "しばらく待ってから再読み込みしてください。",
	}
}

// NewSessionChangedError はタスク一覧の読み込み中にサインイン状態が変わった場合のエラーを生成する。
func NewSessionChangedError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionChanged,
		Message:  "サインイン状態が変更されました。",
		Category: "auth",
		Action:   "ページを再読み込みしてください。",
	}
}

// NewCSRFInvalidError はCSRFトークンの検証に失敗した場合のエラーを生成する。
func NewCSRFInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFInvalid,
		Message:  "CSRFトークンの検証に失敗しました。",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}

// NewRateLimitedError はリクエスト数が上限を超えた場合のエラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
