package taskstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/todoman/internal/model"
)

// gatewayEnv はGateway実装ごとの共通テスト環境。
type gatewayEnv struct {
	gateway  Gateway
	newOwner func(t *testing.T) string
}

// runGatewayContract はすべてのGateway実装が満たすべき振る舞いを検証する。
func runGatewayContract(t *testing.T, setup func(t *testing.T) gatewayEnv) {
	ctx := context.Background()
	reminder := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	t.Run("Createはストア採番のIDと作成日時を返す", func(t *testing.T) {
		env := setup(t)
		owner := env.newOwner(t)

		created, err := env.gateway.Create(ctx, model.Task{
			ID:           "local-ignored",
			Text:         "Call Bob",
			OwnerID:      owner,
			ReminderTime: &reminder,
			Sync:         model.SyncStatusPending,
		})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if created.ID == "" || created.IsLocal() {
			t.Errorf("ID = %q, want store-assigned ID", created.ID)
		}
		if created.CreatedAt.IsZero() {
			t.Error("CreatedAt should be set by the store")
		}
		if created.Text != "Call Bob" || created.OwnerID != owner || created.Completed || created.ReminderSent {
			t.Errorf("created = %+v", created)
		}
		if created.ReminderTime == nil || !created.ReminderTime.Equal(reminder) {
			t.Errorf("ReminderTime = %v, want %v", created.ReminderTime, reminder)
		}
		if created.Sync != model.SyncStatusSynced {
			t.Errorf("Sync = %q, want synced", created.Sync)
		}
	})

	t.Run("FetchByOwnerは所有者のタスクのみを作成順で返す", func(t *testing.T) {
		env := setup(t)
		alice := env.newOwner(t)
		bob := env.newOwner(t)

		var want []string
		for _, text := range []string{"first", "second", "third"} {
			created, err := env.gateway.Create(ctx, model.Task{Text: text, OwnerID: alice})
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			want = append(want, created.ID)
		}
		if _, err := env.gateway.Create(ctx, model.Task{Text: "bob's", OwnerID: bob}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		tasks, err := env.gateway.FetchByOwner(ctx, alice)
		if err != nil {
			t.Fatalf("FetchByOwner() error = %v", err)
		}
		if len(tasks) != len(want) {
			t.Fatalf("len(tasks) = %d, want %d", len(tasks), len(want))
		}
		for i, task := range tasks {
			if task.ID != want[i] {
				t.Errorf("tasks[%d].ID = %q, want %q", i, task.ID, want[i])
			}
			if task.OwnerID != alice {
				t.Errorf("tasks[%d].OwnerID = %q, want %q", i, task.OwnerID, alice)
			}
			if task.ReminderTime != nil {
				t.Errorf("tasks[%d].ReminderTime = %v, want nil", i, task.ReminderTime)
			}
		}
	})

	t.Run("FetchByOwnerはタスクがない場合に空を返す", func(t *testing.T) {
		env := setup(t)

		tasks, err := env.gateway.FetchByOwner(ctx, env.newOwner(t))
		if err != nil {
			t.Fatalf("FetchByOwner() error = %v", err)
		}
		if len(tasks) != 0 {
			t.Errorf("len(tasks) = %d, want 0", len(tasks))
		}
	})

	t.Run("UpdateFieldsは指定フィールドのみ更新する", func(t *testing.T) {
		env := setup(t)
		owner := env.newOwner(t)
		created, err := env.gateway.Create(ctx, model.Task{Text: "toggle me", OwnerID: owner})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		done := true
		if err := env.gateway.UpdateFields(ctx, owner, created.ID, model.TaskUpdate{Completed: &done}); err != nil {
			t.Fatalf("UpdateFields() error = %v", err)
		}

		tasks, err := env.gateway.FetchByOwner(ctx, owner)
		if err != nil {
			t.Fatalf("FetchByOwner() error = %v", err)
		}
		if len(tasks) != 1 || !tasks[0].Completed || tasks[0].Text != "toggle me" || tasks[0].ReminderSent {
			t.Errorf("tasks = %+v", tasks)
		}
	})

	t.Run("UpdateFieldsは不在または他人のタスクでErrNotFound", func(t *testing.T) {
		env := setup(t)
		owner := env.newOwner(t)
		other := env.newOwner(t)
		created, err := env.gateway.Create(ctx, model.Task{Text: "mine", OwnerID: owner})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		done := true
		if err := env.gateway.UpdateFields(ctx, other, created.ID, model.TaskUpdate{Completed: &done}); !errors.Is(err, ErrNotFound) {
			t.Errorf("foreign owner: err = %v, want ErrNotFound", err)
		}
		if err := env.gateway.UpdateFields(ctx, owner, uuid.New().String(), model.TaskUpdate{Completed: &done}); !errors.Is(err, ErrNotFound) {
			t.Errorf("missing task: err = %v, want ErrNotFound", err)
		}

		tasks, _ := env.gateway.FetchByOwner(ctx, owner)
		if len(tasks) != 1 || tasks[0].Completed {
			t.Errorf("task must be unchanged: %+v", tasks)
		}
	})

	t.Run("Deleteは所有者のタスクを削除し不在は成功とする", func(t *testing.T) {
		env := setup(t)
		owner := env.newOwner(t)
		keep, err := env.gateway.Create(ctx, model.Task{Text: "keep", OwnerID: owner})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		drop, err := env.gateway.Create(ctx, model.Task{Text: "drop", OwnerID: owner})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		if err := env.gateway.Delete(ctx, owner, drop.ID); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if err := env.gateway.Delete(ctx, owner, drop.ID); err != nil {
			t.Errorf("second Delete() error = %v, want nil", err)
		}

		tasks, err := env.gateway.FetchByOwner(ctx, owner)
		if err != nil {
			t.Fatalf("FetchByOwner() error = %v", err)
		}
		if len(tasks) != 1 || tasks[0].ID != keep.ID {
			t.Errorf("tasks = %+v, want only %q", tasks, keep.ID)
		}
	})

	t.Run("Deleteは他人のタスクでErrNotFoundを返し削除しない", func(t *testing.T) {
		env := setup(t)
		owner := env.newOwner(t)
		other := env.newOwner(t)
		created, err := env.gateway.Create(ctx, model.Task{Text: "mine", OwnerID: owner})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		if err := env.gateway.Delete(ctx, other, created.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}

		tasks, _ := env.gateway.FetchByOwner(ctx, owner)
		if len(tasks) != 1 {
			t.Errorf("task must remain: %+v", tasks)
		}
	})

	t.Run("DeleteByOwnerは所有者のタスクのみ削除する", func(t *testing.T) {
		env := setup(t)
		alice := env.newOwner(t)
		bob := env.newOwner(t)
		for i := 0; i < 3; i++ {
			if _, err := env.gateway.Create(ctx, model.Task{Text: "a", OwnerID: alice}); err != nil {
				t.Fatalf("Create() error = %v", err)
			}
		}
		if _, err := env.gateway.Create(ctx, model.Task{Text: "b", OwnerID: bob}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		if err := env.gateway.DeleteByOwner(ctx, alice); err != nil {
			t.Fatalf("DeleteByOwner() error = %v", err)
		}

		if tasks, _ := env.gateway.FetchByOwner(ctx, alice); len(tasks) != 0 {
			t.Errorf("alice tasks = %d, want 0", len(tasks))
		}
		if tasks, _ := env.gateway.FetchByOwner(ctx, bob); len(tasks) != 1 {
			t.Errorf("bob tasks = %d, want 1", len(tasks))
		}
	})
}
