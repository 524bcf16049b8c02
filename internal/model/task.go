package model

import (
	"strings"
	"time"
)

// SyncStatus はローカルに保持するタスクのバックエンド同期状態を表す。
// ストアには保存されない。
type SyncStatus string

const (
	// SyncStatusSynced はバックエンドと一致している状態。
	SyncStatusSynced SyncStatus = "synced"
	// SyncStatusPending はローカル変更をバックエンドへ送信中の状態。
	SyncStatusPending SyncStatus = "pending"
	// SyncStatusFailed はバックエンドへの反映に失敗し、ローカル変更を巻き戻した状態。
	SyncStatusFailed SyncStatus = "failed"
)

// LocalIDPrefix は作成中タスクに割り当てる一時IDの接頭辞。
const LocalIDPrefix = "local-"

// Task はユーザーのToDo項目を表す。
type Task struct {
	ID           string
	Text         string
	Completed    bool
	OwnerID      string
	CreatedAt    time.Time // ストア側で採番。作成確定前はゼロ値
	ReminderTime *time.Time
	ReminderSent bool
	Sync         SyncStatus
}

// IsLocal はタスクがまだストアIDを持たない一時タスクかを判定する。
func (t Task) IsLocal() bool {
	return strings.HasPrefix(t.ID, LocalIDPrefix)
}

// HasReminder はリマインダー時刻が設定されているかを判定する。
func (t Task) HasReminder() bool {
	return t.ReminderTime != nil && !t.ReminderTime.IsZero()
}

// Clone はReminderTimeを含めてタスクを複製する。
func (t Task) Clone() Task {
	if t.ReminderTime != nil {
		rt := *t.ReminderTime
		t.ReminderTime = &rt
	}
	return t
}

// TaskUpdate はタスクの部分更新内容を表す。nilフィールドは変更しない。
type TaskUpdate struct {
	Completed    *bool
	ReminderSent *bool
}

// IsEmpty は更新対象のフィールドが1つもないかを判定する。
func (u TaskUpdate) IsEmpty() bool {
	return u.Completed == nil && u.ReminderSent == nil
}
