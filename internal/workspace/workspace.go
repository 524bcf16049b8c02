// Package workspace はブラウザごとのワークスペース（Identity Session、
// Task List Controller、UI状態の組）をサーバー側で保持する。
package workspace

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/todoman/internal/identity"
	"github.com/hitoshi/todoman/internal/tasklist"
	"github.com/hitoshi/todoman/internal/taskstore"
)

const (
	// DefaultIdleTTL は最終アクセスからワークスペースを破棄するまでのデフォルト時間。
	DefaultIdleTTL = 30 * time.Minute

	// DefaultMaxWorkspaces は同時に保持するワークスペース数のデフォルト上限。
	DefaultMaxWorkspaces = 10000
)

// Workspace は1つのブラウザに紐づく状態の組。
type Workspace struct {
	ID      string
	Session *identity.Session
	Tasks   *tasklist.Controller
	UI      *UIState

	unbind   func()
	lastSeen time.Time // Registry.muで保護
}

// Gauge はアクティブなワークスペース数を記録する。
type Gauge interface {
	SetActiveWorkspaces(n int)
}

// Config はRegistryの設定。
type Config struct {
	IdleTTL        time.Duration
	GatewayTimeout time.Duration
	// MaxWorkspaces を超える場合は最終アクセスが最も古いワークスペースを破棄する。
	MaxWorkspaces int
}

// Registry はクライアントIDをキーにワークスペースを管理する。
type Registry struct {
	auth     identity.Authenticator
	gateway  taskstore.Gateway
	recorder tasklist.Recorder
	gauge    Gauge
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time
	newID    func() string

	mu         sync.Mutex
	workspaces map[string]*Workspace
}

// NewRegistry は空のRegistryを生成する。recorderとgaugeはnilでもよい。
func NewRegistry(auth identity.Authenticator, gateway taskstore.Gateway, recorder tasklist.Recorder, gauge Gauge, cfg Config, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultIdleTTL
	}
	if cfg.MaxWorkspaces <= 0 {
		cfg.MaxWorkspaces = DefaultMaxWorkspaces
	}
	return &Registry{
		auth:       auth,
		gateway:    gateway,
		recorder:   recorder,
		gauge:      gauge,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
		newID:      func() string { return uuid.New().String() },
		workspaces: make(map[string]*Workspace),
	}
}

// Get はクライアントIDのワークスペースを返し、最終アクセス時刻を更新する。
func (r *Registry) Get(clientID string) (*Workspace, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ws, ok := r.workspaces[clientID]
	if !ok {
		return nil, false
	}
	ws.lastSeen = r.now()
	return ws, true
}

// GetOrCreate はクライアントIDのワークスペースを返す。
// 見つからない場合はサーバーが採番した新しいIDでワークスペースを作成する。
// ブラウザが提示した未知のIDはそのまま採用しない。
func (r *Registry) GetOrCreate(clientID string) (ws *Workspace, created bool) {
	if clientID != "" {
		if ws, ok := r.Get(clientID); ok {
			return ws, false
		}
	}

	ws = r.build(r.newID())

	r.mu.Lock()
	var evicted *Workspace
	if len(r.workspaces) >= r.cfg.MaxWorkspaces {
		evicted = r.oldestLocked()
		delete(r.workspaces, evicted.ID)
	}
	ws.lastSeen = r.now()
	r.workspaces[ws.ID] = ws
	n := len(r.workspaces)
	r.mu.Unlock()

	if evicted != nil {
		evicted.unbind()
		r.logger.Warn("workspace limit reached, evicted least recently used",
			slog.String("client_id", evicted.ID),
			slog.Int("limit", r.cfg.MaxWorkspaces),
		)
	}
	r.setGauge(n)
	r.logger.Debug("workspace created", slog.String("client_id", ws.ID))
	return ws, true
}

func (r *Registry) build(id string) *Workspace {
	session := identity.NewSession(r.auth, r.logger)
	controller := tasklist.NewController(r.gateway, r.recorder, r.logger, r.cfg.GatewayTimeout)
	ws := &Workspace{
		ID:      id,
		Session: session,
		Tasks:   controller,
		UI:      &UIState{},
	}
	ws.unbind = controller.Bind(session)
	return ws
}

// oldestLocked は最終アクセスが最も古いワークスペースを返す。r.muを保持した状態で呼ぶこと。
func (r *Registry) oldestLocked() *Workspace {
	var oldest *Workspace
	for _, ws := range r.workspaces {
		if oldest == nil || ws.lastSeen.Before(oldest.lastSeen) {
			oldest = ws
		}
	}
	return oldest
}

// Len は保持しているワークスペース数を返す。
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workspaces)
}

// EvictIdle はIdleTTLを超えてアクセスのないワークスペースを破棄し、破棄した数を返す。
func (r *Registry) EvictIdle() int {
	cutoff := r.now().Add(-r.cfg.IdleTTL)

	r.mu.Lock()
	var evicted []*Workspace
	for id, ws := range r.workspaces {
		if ws.lastSeen.Before(cutoff) {
			evicted = append(evicted, ws)
			delete(r.workspaces, id)
		}
	}
	n := len(r.workspaces)
	r.mu.Unlock()

	for _, ws := range evicted {
		ws.unbind()
	}
	if len(evicted) > 0 {
		r.setGauge(n)
		r.logger.Info("evicted idle workspaces",
			slog.Int("evicted", len(evicted)),
			slog.Int("active", n),
		)
	}
	return len(evicted)
}

// Run はctxがキャンセルされるまでinterval間隔でEvictIdleを実行する。
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.EvictIdle()
		}
	}
}

func (r *Registry) setGauge(n int) {
	if r.gauge != nil {
		r.gauge.SetActiveWorkspaces(n)
	}
}
