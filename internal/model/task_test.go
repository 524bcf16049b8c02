package model

import (
	"testing"
	"time"
)

func TestTask_IsLocal(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"local-1234", true},
		{"abc123", false},
		{"", false},
	}
	for _, tt := range tests {
		task := Task{ID: tt.id}
		if got := task.IsLocal(); got != tt.want {
			t.Errorf("Task{ID: %q}.IsLocal() = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestTask_Clone_CopiesReminderTime(t *testing.T) {
	rt := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	orig := Task{ID: "t1", ReminderTime: &rt}

	cp := orig.Clone()
	*cp.ReminderTime = cp.ReminderTime.Add(time.Hour)

	if !orig.ReminderTime.Equal(rt) {
		t.Errorf("元タスクのReminderTimeが変更された: %v", orig.ReminderTime)
	}
}

// 値レシーバなのでアドレスを取れない値からも呼び出せる
func TestTask_MethodsOnNonAddressableValue(t *testing.T) {
	rt := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	tasks := map[string]Task{"a": {ID: "local-a", ReminderTime: &rt}}

	if !tasks["a"].IsLocal() {
		t.Error("IsLocal() = false, want true")
	}
	if !tasks["a"].HasReminder() {
		t.Error("HasReminder() = false, want true")
	}
	if got := tasks["a"].Clone(); got.ID != "local-a" {
		t.Errorf("Clone().ID = %q", got.ID)
	}
}

func TestTask_HasReminder(t *testing.T) {
	rt := time.Now()
	if (Task{}).HasReminder() {
		t.Error("ReminderTimeがnilのタスクはHasReminder()=falseであるべき")
	}
	if !(Task{ReminderTime: &rt}).HasReminder() {
		t.Error("ReminderTimeが設定されたタスクはHasReminder()=trueであるべき")
	}
}

func TestTaskUpdate_IsEmpty(t *testing.T) {
	done := true
	if !(TaskUpdate{}).IsEmpty() {
		t.Error("空のTaskUpdateはIsEmpty()=trueであるべき")
	}
	if (TaskUpdate{Completed: &done}).IsEmpty() {
		t.Error("Completedを含むTaskUpdateはIsEmpty()=falseであるべき")
	}
}

func TestPrincipal_FirstName(t *testing.T) {
	tests := []struct {
		name string
		p    Principal
		want string
	}{
		{"フルネーム", Principal{DisplayName: "Alice Smith"}, "Alice"},
		{"単一語", Principal{DisplayName: "Bob"}, "Bob"},
		{"表示名なし", Principal{Email: "carol@example.com"}, "carol"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.FirstName(); got != tt.want {
				t.Errorf("FirstName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSamePrincipal(t *testing.T) {
	a := &Principal{ID: "u1"}
	b := &Principal{ID: "u1", DisplayName: "Alice"}
	c := &Principal{ID: "u2"}

	if !SamePrincipal(nil, nil) {
		t.Error("nil同士は同一とみなすべき")
	}
	if SamePrincipal(a, nil) || SamePrincipal(nil, a) {
		t.Error("nilと非nilは同一ではない")
	}
	if !SamePrincipal(a, b) {
		t.Error("同じIDのPrincipalは同一とみなすべき")
	}
	if SamePrincipal(a, c) {
		t.Error("異なるIDのPrincipalは同一ではない")
	}
}

func TestAPIError_Error(t *testing.T) {
	err := NewTaskNotFoundError("t1")
	if got := err.Error(); got != "[TASK_NOT_FOUND] 指定されたタスクが見つかりません: t1" {
		t.Errorf("Error() = %q", got)
	}
}
