package taskstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/todoman/internal/model"
)

// MemoryGateway はプロセス内メモリにタスクを保持する。
// ローカル開発（TASK_STORE=memory）とテストで使用し、プロセス終了で内容は失われる。
type MemoryGateway struct {
	mu    sync.Mutex
	tasks []model.Task
	now   func() time.Time
}

// NewMemoryGateway は空のMemoryGatewayを生成する。
func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{now: time.Now}
}

// Seed はストアIDと作成日時を保持したままタスクを直接登録する。
func (g *MemoryGateway) Seed(tasks ...model.Task) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, t := range tasks {
		t = t.Clone()
		t.Sync = model.SyncStatusSynced
		g.tasks = append(g.tasks, t)
	}
}

// FetchByOwner は所有者のタスクを登録順で返す。
func (g *MemoryGateway) FetchByOwner(ctx context.Context, ownerID string) ([]model.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	result := []model.Task{}
	for _, t := range g.tasks {
		if t.OwnerID == ownerID {
			result = append(result, t.Clone())
		}
	}
	return result, nil
}

// Create はUUIDを採番してタスクを登録する。
func (g *MemoryGateway) Create(ctx context.Context, task model.Task) (model.Task, error) {
	if err := ctx.Err(); err != nil {
		return model.Task{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	task = task.Clone()
	task.ID = uuid.New().String()
	task.CreatedAt = g.now()
	task.Sync = model.SyncStatusSynced
	g.tasks = append(g.tasks, task)
	return task.Clone(), nil
}

// UpdateFields は所有者が一致するタスクの指定フィールドを更新する。
func (g *MemoryGateway) UpdateFields(ctx context.Context, ownerID, id string, update model.TaskUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	i := g.indexOf(id)
	if i < 0 || g.tasks[i].OwnerID != ownerID {
		return ErrNotFound
	}
	if update.Completed != nil {
		g.tasks[i].Completed = *update.Completed
	}
	if update.ReminderSent != nil {
		g.tasks[i].ReminderSent = *update.ReminderSent
	}
	return nil
}

// Delete は所有者が一致するタスクを削除する。存在しない場合は成功とする。
func (g *MemoryGateway) Delete(ctx context.Context, ownerID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	i := g.indexOf(id)
	if i < 0 {
		return nil
	}
	if g.tasks[i].OwnerID != ownerID {
		return ErrNotFound
	}
	g.tasks = append(g.tasks[:i], g.tasks[i+1:]...)
	return nil
}

// DeleteByOwner は所有者のタスクをすべて削除する。
func (g *MemoryGateway) DeleteByOwner(ctx context.Context, ownerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	kept := g.tasks[:0]
	for _, t := range g.tasks {
		if t.OwnerID != ownerID {
			kept = append(kept, t)
		}
	}
	g.tasks = kept
	return nil
}

func (g *MemoryGateway) indexOf(id string) int {
	for i, t := range g.tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// compile-time interface check
var _ Gateway = (*MemoryGateway)(nil)
