package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit // API全般のレート（req/sec）。120/60 = 2 req/sec
	GeneralBurst    int        // API全般のバーストサイズ
	TaskCreateRate  rate.Limit // タスク作成のレート（req/sec）。30/60
	TaskCreateBurst int        // タスク作成のバーストサイズ
	// ワークスペース作成のレート（IPアドレスごと、req/sec）。60/60
	WorkspaceCreateRate  rate.Limit
	WorkspaceCreateBurst int
	CleanupInterval      time.Duration // 期限切れエントリのクリーンアップ間隔
}

// workspaceCreatePerMin はIPアドレスごとに1分あたり作成できるワークスペース数。
const workspaceCreatePerMin = 60

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// API全般 120 req/min/user、タスク作成 30 req/min/user。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return NewRateLimiterConfig(120, 30)
}

// NewRateLimiterConfig は1分あたりのリクエスト数からレート制限設定を生成する。
func NewRateLimiterConfig(generalPerMin, taskCreatePerMin int) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(float64(generalPerMin) / 60.0),
		GeneralBurst:    generalPerMin,
		TaskCreateRate:  rate.Limit(float64(taskCreatePerMin) / 60.0),
		TaskCreateBurst: taskCreatePerMin,

		WorkspaceCreateRate:  rate.Limit(float64(workspaceCreatePerMin) / 60.0),
		WorkspaceCreateBurst: workspaceCreatePerMin,
		CleanupInterval:      5 * time.Minute,
	}
}

// userLimiter はユーザーごとのレートリミッターとアクセス時刻を保持する。
type userLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limiterSet は1種類のレート制限についてユーザーごとのリミッターを保持する。
type limiterSet struct {
	name  string
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*userLimiter
}

func newLimiterSet(name string, limit rate.Limit, burst int) *limiterSet {
	return &limiterSet{
		name:     name,
		limit:    limit,
		burst:    burst,
		limiters: make(map[string]*userLimiter),
	}
}

// get はユーザーのリミッターを取得または作成し、最終アクセス時刻を更新する。
func (s *limiterSet) get(userID string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	ul, ok := s.limiters[userID]
	if !ok {
		ul = &userLimiter{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.limiters[userID] = ul
	}
	ul.lastAccess = now
	return ul.limiter
}

func (s *limiterSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

// evict は最終アクセスがcutoffより前のエントリを削除する。
func (s *limiterSet) evict(cutoff time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for userID, ul := range s.limiters {
		if ul.lastAccess.Before(cutoff) {
			delete(s.limiters, userID)
		}
	}
}

// middleware はユーザーごとにsetのリミッターを適用するミドルウェアを返す。
// NewRequirePrincipalMiddlewareの後に配置する。
func (s *limiterSet) middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := UserIDFromContext(r.Context())
			if err != nil {
				WriteUnauthorized(w)
				return
			}

			if !s.get(userID, time.Now()).Allow() {
				writeRateLimitResponse(w, s.limit)
				slog.Warn("rate limit exceeded",
					slog.String("user_id", userID),
					slog.String("limit_type", s.name),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimiter はユーザーごとのレート制限を管理する。
// API全般とタスク作成のレート制限に加え、IPアドレスごとのワークスペース作成の制限を提供する。
type RateLimiter struct {
	config          RateLimiterConfig
	general         *limiterSet
	taskCreate      *limiterSet
	workspaceCreate *limiterSet

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:     config,
		general:    newLimiterSet("general", config.GeneralRate, config.GeneralBurst),
		taskCreate: newLimiterSet("task_create", config.TaskCreateRate, config.TaskCreateBurst),
		workspaceCreate: newLimiterSet("workspace_create",
			config.WorkspaceCreateRate, config.WorkspaceCreateBurst),
		stopCh: make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// GeneralMiddleware はAPI全般のレート制限ミドルウェアを返す。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return rl.general.middleware()
}

// TaskCreateMiddleware はタスク作成専用のレート制限ミドルウェアを返す。
// API全般のレート制限とは独立に動作する。
func (rl *RateLimiter) TaskCreateMiddleware() func(next http.Handler) http.Handler {
	return rl.taskCreate.middleware()
}

// AllowWorkspaceCreate はリクエスト元IPアドレスが新しいワークスペースを作成できるかを判定する。
// 拒否した場合はRetry-Afterの秒数も返す。
func (rl *RateLimiter) AllowWorkspaceCreate(r *http.Request) (bool, int) {
	ip := clientIP(r)
	if rl.workspaceCreate.get(ip, time.Now()).Allow() {
		return true, 0
	}
	slog.Warn("rate limit exceeded",
		slog.String("remote_ip", ip),
		slog.String("limit_type", rl.workspaceCreate.name),
	)
	return false, retryAfterSeconds(rl.workspaceCreate.limit)
}

// GeneralLimiterCount は現在管理されているAPI全般リミッターのエントリ数を返す。
func (rl *RateLimiter) GeneralLimiterCount() int {
	return rl.general.len()
}

// TaskCreateLimiterCount は現在管理されているタスク作成リミッターのエントリ数を返す。
func (rl *RateLimiter) TaskCreateLimiterCount() int {
	return rl.taskCreate.len()
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup(now time.Time) {
	cutoff := now.Add(-2 * rl.config.CleanupInterval)
	rl.general.evict(cutoff)
	rl.taskCreate.evict(cutoff)
	rl.workspaceCreate.evict(cutoff)
}

// clientIP はRemoteAddrからポートを除いたIPアドレスを返す。
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeRateLimitResponse は429を書き込む。
// Retry-Afterにはトークンが1つ補充されるまでの秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	WriteTooManyRequests(w, retryAfterSeconds(r))
}

func retryAfterSeconds(r rate.Limit) int {
	if r <= 0 {
		return 1
	}
	return int(math.Ceil(1.0 / float64(r)))
}
