// Package tasklist はサインイン中ユーザーのタスク一覧をメモリ上に保持し、
// 楽観的更新とタスクストアとの同期を行う（Task List Controller）。
package tasklist

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/todoman/internal/identity"
	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/taskstore"
)

// DefaultGatewayTimeout はゲートウェイ呼び出し1回あたりのデフォルトのタイムアウト。
const DefaultGatewayTimeout = 10 * time.Second

// 変更失敗時にUIへ表示するメッセージ。
const (
	NoticeCreateFailed = "Could not add the task. Your change was undone."
	NoticeToggleFailed = "Could not update the task. Your change was undone."
	NoticeDeleteFailed = "Could not delete the task. It has been restored."
)

// Recorder はロールバックと破棄された再読み込みを記録する。
type Recorder interface {
	RecordRollback(op string)
	RecordStaleReload()
}

// Subscriber はPrincipalの遷移を購読できるIdentity Session。
type Subscriber interface {
	Subscribe(fn identity.Observer) func()
}

// State はControllerの状態のスナップショット。
type State struct {
	Tasks     []model.Task
	Loading   bool
	LoadError error  // 直近の再読み込みの失敗。成功すればnilに戻る
	Notice    string // 直近の変更失敗のメッセージ
}

// Controller は1つのワークスペースのタスク一覧を管理する。
//
// ローカル状態はmuで保護され、ゲートウェイへの変更はFIFOの直列キューで
// 発行順に実行される。再読み込みは世代番号を持ち、古い世代の結果は破棄される。
type Controller struct {
	gateway  taskstore.Gateway
	recorder Recorder
	logger   *slog.Logger
	timeout  time.Duration
	newID    func() string

	mu        sync.Mutex
	principal *model.Principal
	tasks     []model.Task
	loading   bool
	loadErr   error
	notice    string
	gen       uint64
	aliases   map[string]string // 一時ID -> ストアID

	queueMu  sync.Mutex
	queue    []func()
	draining bool

	inflight sync.WaitGroup
}

// NewController はサインアウト状態のControllerを生成する。
// timeoutが0以下の場合はDefaultGatewayTimeoutを使用する。
func NewController(gateway taskstore.Gateway, recorder Recorder, logger *slog.Logger, timeout time.Duration) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultGatewayTimeout
	}
	return &Controller{
		gateway:  gateway,
		recorder: recorder,
		logger:   logger,
		timeout:  timeout,
		newID:    func() string { return model.LocalIDPrefix + uuid.New().String() },
		tasks:    []model.Task{},
		aliases:  make(map[string]string),
	}
}

// Bind はIdentity Sessionを購読し、Principalの遷移ごとに一覧を再読み込みする。
// サインアウトへの遷移では一覧が同期的に空になる。
func (c *Controller) Bind(s Subscriber) (unbind func()) {
	return s.Subscribe(func(p *model.Principal) {
		c.ReloadAsync(p)
	})
}

// Snapshot は現在の状態のコピーを返す。
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	tasks := make([]model.Task, len(c.tasks))
	for i, t := range c.tasks {
		tasks[i] = t.Clone()
	}
	return State{
		Tasks:     tasks,
		Loading:   c.loading,
		LoadError: c.loadErr,
		Notice:    c.notice,
	}
}

// Principal は一覧の所有者として扱っているPrincipalのコピーを返す。
func (c *Controller) Principal() *model.Principal {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.principal == nil {
		return nil
	}
	p := *c.principal
	return &p
}

// Find はIDまたは作成時の一時IDでタスクを探す。
func (c *Controller) Find(id string) (model.Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexLocked(id)
	if i < 0 {
		return model.Task{}, false
	}
	return c.tasks[i].Clone(), true
}

// DismissNotice は変更失敗のメッセージを消す。
func (c *Controller) DismissNotice() {
	c.mu.Lock()
	c.notice = ""
	c.mu.Unlock()
}

// Wait はキュー上の変更とバックグラウンドの再読み込みが終わるまで待つ。
func (c *Controller) Wait() {
	c.inflight.Wait()
}

// Reload はprincipalのタスクをストアから取得して一覧を置き換える。
// principalがnilの場合は一覧を空にする。取得に失敗した場合は一覧を空にしてエラーを返す。
// 後から開始された再読み込みが既にある場合、結果は破棄される。
// 一覧はワークスペースで共有されるため、取得は呼び出し元のキャンセルから切り離して行う。
func (c *Controller) Reload(ctx context.Context, principal *model.Principal) error {
	gen, ok := c.beginReload(principal)
	if !ok {
		return nil
	}
	return c.finishReload(context.WithoutCancel(ctx), gen, principal.ID)
}

// ReloadAsync はReloadの同期部分（一覧のクリアと読み込み中状態への遷移）を行い、
// 取得をバックグラウンドで実行する。
func (c *Controller) ReloadAsync(principal *model.Principal) {
	gen, ok := c.beginReload(principal)
	if !ok {
		return
	}

	ownerID := principal.ID
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		_ = c.finishReload(context.Background(), gen, ownerID)
	}()
}

func (c *Controller) beginReload(principal *model.Principal) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	if !model.SamePrincipal(c.principal, principal) {
		c.aliases = make(map[string]string)
		c.notice = ""
		c.tasks = []model.Task{}
	}
	c.loadErr = nil

	if principal == nil {
		c.principal = nil
		c.tasks = []model.Task{}
		c.loading = false
		return c.gen, false
	}

	p := *principal
	c.principal = &p
	c.loading = true
	return c.gen, true
}

func (c *Controller) finishReload(ctx context.Context, gen uint64, ownerID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	fetched, err := c.gateway.FetchByOwner(ctx, ownerID)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		c.logger.Debug("discarding stale task reload", slog.String("user_id", ownerID))
		if c.recorder != nil {
			c.recorder.RecordStaleReload()
		}
		return nil
	}

	c.loading = false
	if err != nil {
		c.logger.Error("failed to load tasks",
			slog.String("user_id", ownerID),
			slog.String("error", err.Error()),
		)
		c.tasks = []model.Task{}
		c.loadErr = err
		return err
	}

	tasks := make([]model.Task, 0, len(fetched))
	for _, t := range fetched {
		// 他人のタスクは表示しない
		if t.OwnerID != ownerID {
			continue
		}
		t = t.Clone()
		t.Sync = model.SyncStatusSynced
		tasks = append(tasks, t)
	}
	c.tasks = tasks
	c.loadErr = nil
	return nil
}

// Create はタスクを一時IDで即座に一覧へ追加し、ストアへの作成をキューに積む。
// 本文が空白のみ、principalがnil、または一覧の所有者と異なる場合は何もしない。
func (c *Controller) Create(text string, reminderTime *time.Time, principal *model.Principal) (model.Task, bool) {
	if strings.TrimSpace(text) == "" || principal == nil {
		return model.Task{}, false
	}

	c.mu.Lock()
	if c.principal == nil || c.principal.ID != principal.ID {
		c.mu.Unlock()
		return model.Task{}, false
	}

	task := model.Task{
		ID:      c.newID(),
		Text:    text,
		OwnerID: principal.ID,
		Sync:    model.SyncStatusPending,
	}
	if reminderTime != nil {
		rt := *reminderTime
		task.ReminderTime = &rt
	}
	c.tasks = append(c.tasks, task)
	c.mu.Unlock()

	c.enqueue(func() { c.runCreate(task.Clone()) })
	return task.Clone(), true
}

func (c *Controller) runCreate(local model.Task) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	created, err := c.gateway.Create(ctx, local)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.logger.Error("failed to create task",
			slog.String("user_id", local.OwnerID),
			slog.String("error", err.Error()),
		)
		if !c.ownsLocked(local.OwnerID) {
			return
		}
		// 作成中に削除済みのタスクは巻き戻す必要がない
		i := c.indexByIDLocked(local.ID)
		if i < 0 {
			return
		}
		c.tasks = slices.Delete(c.tasks, i, i+1)
		c.notice = NoticeCreateFailed
		c.recordRollback(taskstore.OpCreate)
		return
	}

	if !c.ownsLocked(local.OwnerID) {
		return
	}
	c.aliases[local.ID] = created.ID
	if i := c.indexByIDLocked(local.ID); i >= 0 {
		// 作成中に行われたトグルを保持する
		c.tasks[i].ID = created.ID
		c.tasks[i].CreatedAt = created.CreatedAt
		if c.tasks[i].Sync == model.SyncStatusPending && c.tasks[i].Completed == local.Completed {
			c.tasks[i].Sync = model.SyncStatusSynced
		}
	}
}

// ToggleComplete はタスクの完了状態を即座に反転し、ストアへの更新をキューに積む。
// タスクが見つからない場合はfalseを返す。
func (c *Controller) ToggleComplete(id string) bool {
	c.mu.Lock()
	i := c.indexLocked(id)
	if i < 0 {
		c.mu.Unlock()
		return false
	}
	c.tasks[i].Completed = !c.tasks[i].Completed
	c.tasks[i].Sync = model.SyncStatusPending
	taskID := c.tasks[i].ID
	ownerID := c.tasks[i].OwnerID
	value := c.tasks[i].Completed
	c.mu.Unlock()

	c.enqueue(func() { c.runToggle(ownerID, taskID, value) })
	return true
}

func (c *Controller) runToggle(ownerID, taskID string, value bool) {
	storeID, ok := c.storeID(taskID)
	if !ok {
		// 作成に失敗したタスク
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	err := c.gateway.UpdateFields(ctx, ownerID, storeID, model.TaskUpdate{Completed: &value})

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.ownsLocked(ownerID) {
		return
	}
	i := c.indexLocked(taskID)

	if err != nil {
		c.logger.Error("failed to update task",
			slog.String("user_id", ownerID),
			slog.String("task_id", storeID),
			slog.String("error", err.Error()),
		)
		c.notice = NoticeToggleFailed
		c.recordRollback(taskstore.OpUpdate)
		if i >= 0 {
			if c.tasks[i].Completed == value {
				c.tasks[i].Completed = !value
			}
			c.tasks[i].Sync = model.SyncStatusFailed
		}
		return
	}

	if i >= 0 && c.tasks[i].Completed == value && c.tasks[i].Sync == model.SyncStatusPending && !c.tasks[i].IsLocal() {
		c.tasks[i].Sync = model.SyncStatusSynced
	}
}

// Delete はタスクを即座に一覧から取り除き、ストアからの削除をキューに積む。
// タスクが見つからない場合はfalseを返す。
func (c *Controller) Delete(id string) bool {
	c.mu.Lock()
	i := c.indexLocked(id)
	if i < 0 {
		c.mu.Unlock()
		return false
	}
	removed := c.tasks[i].Clone()
	c.tasks = slices.Delete(c.tasks, i, i+1)
	c.mu.Unlock()

	c.enqueue(func() { c.runDelete(removed, i) })
	return true
}

func (c *Controller) runDelete(removed model.Task, position int) {
	storeID, ok := c.storeID(removed.ID)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	err := c.gateway.Delete(ctx, removed.OwnerID, storeID)
	if err == nil {
		return
	}

	c.logger.Error("failed to delete task",
		slog.String("user_id", removed.OwnerID),
		slog.String("task_id", storeID),
		slog.String("error", err.Error()),
	)

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.ownsLocked(removed.OwnerID) {
		return
	}
	c.notice = NoticeDeleteFailed
	c.recordRollback(taskstore.OpDelete)

	if c.indexLocked(storeID) >= 0 {
		return
	}
	restored := removed
	restored.ID = storeID
	restored.Sync = model.SyncStatusFailed
	position = min(position, len(c.tasks))
	c.tasks = slices.Insert(c.tasks, position, restored)
}

// storeID は一時IDをストアIDに解決する。作成に失敗した一時IDではfalseを返す。
func (c *Controller) storeID(id string) (string, bool) {
	if !strings.HasPrefix(id, model.LocalIDPrefix) {
		return id, true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	storeID, ok := c.aliases[id]
	return storeID, ok
}

// enqueue は変更処理をFIFOキューに積む。キューは必要なときだけゴルーチンで消化される。
func (c *Controller) enqueue(op func()) {
	c.inflight.Add(1)

	c.queueMu.Lock()
	c.queue = append(c.queue, op)
	if c.draining {
		c.queueMu.Unlock()
		return
	}
	c.draining = true
	c.queueMu.Unlock()

	go c.drain()
}

func (c *Controller) drain() {
	for {
		c.queueMu.Lock()
		if len(c.queue) == 0 {
			c.draining = false
			c.queueMu.Unlock()
			return
		}
		op := c.queue[0]
		c.queue = c.queue[1:]
		c.queueMu.Unlock()

		op()
		c.inflight.Done()
	}
}

func (c *Controller) recordRollback(op string) {
	if c.recorder != nil {
		c.recorder.RecordRollback(op)
	}
}

// ownsLocked はownerIDが現在の一覧の所有者かを判定する。
func (c *Controller) ownsLocked(ownerID string) bool {
	return c.principal != nil && c.principal.ID == ownerID
}

// indexLocked はIDまたは一時IDの別名でタスクの位置を返す。
func (c *Controller) indexLocked(id string) int {
	if i := c.indexByIDLocked(id); i >= 0 {
		return i
	}
	if storeID, ok := c.aliases[id]; ok {
		return c.indexByIDLocked(storeID)
	}
	return -1
}

func (c *Controller) indexByIDLocked(id string) int {
	return slices.IndexFunc(c.tasks, func(t model.Task) bool { return t.ID == id })
}
