package handler

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/todoman/internal/auth"
	"github.com/hitoshi/todoman/internal/identity"
	"github.com/hitoshi/todoman/internal/middleware"
	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/security"
	"github.com/hitoshi/todoman/internal/tasklist"
	"github.com/hitoshi/todoman/internal/taskstore"
	"github.com/hitoshi/todoman/internal/workspace"
)

// --- モック定義 ---

var alice = &model.Principal{ID: "u1", DisplayName: "Alice Smith", Email: "alice@example.com"}

// mockAuthenticator はidentity.Authenticatorのモック実装。
// 認可コード"bad"でのサインインは失敗する。発行したセッションはLogoutまで有効。
type mockAuthenticator struct {
	mu        sync.Mutex
	logoutErr error
	loggedOut []string
	issued    map[string]bool
}

func (m *mockAuthenticator) GetLoginURL(state string) string {
	return "https://accounts.google.com/o/oauth2/v2/auth?state=" + state
}

func (m *mockAuthenticator) HandleCallback(ctx context.Context, code string) (*auth.SignInResult, error) {
	if code == "bad" {
		return nil, errors.New("token exchange failed")
	}
	m.mu.Lock()
	if m.issued == nil {
		m.issued = make(map[string]bool)
	}
	m.issued["sess-"+code] = true
	m.mu.Unlock()
	return &auth.SignInResult{
		Session:   &model.Session{ID: "sess-" + code, UserID: alice.ID},
		Principal: alice,
	}, nil
}

func (m *mockAuthenticator) Logout(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.logoutErr != nil {
		return m.logoutErr
	}
	m.loggedOut = append(m.loggedOut, sessionID)
	delete(m.issued, sessionID)
	return nil
}

// revoke はサーバー側でセッションが削除された状態を再現する。
func (m *mockAuthenticator) revoke(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.issued, sessionID)
}

func (m *mockAuthenticator) GetCurrentPrincipal(ctx context.Context, sessionID string) (*model.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sessionID == "sess-ok" || m.issued[sessionID] {
		return alice, nil
	}
	return nil, auth.ErrSessionNotFound
}

var _ identity.Authenticator = (*mockAuthenticator)(nil)

// blockingGateway はreleaseが閉じられるまでFetchByOwnerを待たせるゲートウェイ。
type blockingGateway struct {
	*taskstore.MemoryGateway
	release chan struct{}
}

func (g *blockingGateway) FetchByOwner(ctx context.Context, ownerID string) ([]model.Task, error) {
	<-g.release
	return g.MemoryGateway.FetchByOwner(ctx, ownerID)
}

// failingGateway は指定された操作を失敗させるゲートウェイ。
type failingGateway struct {
	*taskstore.MemoryGateway
	fetchErr  error
	createErr error
}

func (g *failingGateway) FetchByOwner(ctx context.Context, ownerID string) ([]model.Task, error) {
	if g.fetchErr != nil {
		return nil, g.fetchErr
	}
	return g.MemoryGateway.FetchByOwner(ctx, ownerID)
}

func (g *failingGateway) Create(ctx context.Context, task model.Task) (model.Task, error) {
	if g.createErr != nil {
		return model.Task{}, g.createErr
	}
	return g.MemoryGateway.Create(ctx, task)
}

// --- ヘルパー ---

func seededGateway() *taskstore.MemoryGateway {
	gw := taskstore.NewMemoryGateway()
	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	gw.Seed(
		model.Task{ID: "t1", Text: "Buy milk", OwnerID: "u1", CreatedAt: base},
		model.Task{ID: "t2", Text: "Walk dog", OwnerID: "u1", Completed: true, CreatedAt: base.Add(time.Minute)},
		model.Task{ID: "t3", Text: "Bob's task", OwnerID: "u2", CreatedAt: base.Add(2 * time.Minute)},
	)
	return gw
}

// newTestWorkspace はRegistryを介さずにワークスペースを組み立てる。
func newTestWorkspace(t *testing.T, authenticator identity.Authenticator, gw taskstore.Gateway) *workspace.Workspace {
	t.Helper()
	session := identity.NewSession(authenticator, nil)
	controller := tasklist.NewController(gw, nil, nil, time.Second)
	unbind := controller.Bind(session)
	t.Cleanup(func() {
		unbind()
		controller.Wait()
	})
	return &workspace.Workspace{
		ID:      "ws-1",
		Session: session,
		Tasks:   controller,
		UI:      &workspace.UIState{},
	}
}

// signIn はワークスペースをaliceでサインインさせ、初回の読み込みを待つ。
func signIn(t *testing.T, ws *workspace.Workspace) {
	t.Helper()
	if _, err := ws.Session.SignIn(context.Background(), "code"); err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	ws.Tasks.Wait()
}

// withWorkspace はワークスペースミドルウェアと同様にコンテキストへ値を注入する。
func withWorkspace(r *http.Request, ws *workspace.Workspace) *http.Request {
	ctx := middleware.ContextWithWorkspace(r.Context(), ws)
	if p := ws.Session.Current(); p != nil {
		ctx = middleware.ContextWithUserID(ctx, p.ID)
	}
	return r.WithContext(ctx)
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func newSanitizer() security.TextSanitizer {
	return security.NewTextSanitizer()
}
