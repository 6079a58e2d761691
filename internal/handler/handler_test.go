package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/jokecentral/internal/aievent"
	"github.com/hitoshi/jokecentral/internal/auth"
	"github.com/hitoshi/jokecentral/internal/middleware"
	"github.com/hitoshi/jokecentral/internal/model"
	"github.com/hitoshi/jokecentral/internal/repository"
	"github.com/hitoshi/jokecentral/internal/security"
	"github.com/hitoshi/jokecentral/internal/view"
	"github.com/hitoshi/jokecentral/internal/workspace"
)

var testBrowserID = strings.Repeat("ab", 32)

const (
	testCSRFToken = "test-csrf-token"
	testBaseURL   = "https://jokes.example.com"
)

// --- モック定義 ---

type fakeIdentityAPI struct {
	mu        sync.Mutex
	user      *model.Identity
	codes     []string
	updated   *model.Metadata
	updateErr error
}

func (f *fakeIdentityAPI) ExchangeCode(ctx context.Context, code, verifier string) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if code == "bad" {
		return nil, errors.New("invalid code")
	}
	f.codes = append(f.codes, code+":"+verifier)
	return &model.Session{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(time.Hour),
		User:         f.user,
	}, nil
}

func (f *fakeIdentityAPI) Refresh(ctx context.Context, refreshToken string) (*model.Session, error) {
	return nil, errors.New("refresh not expected")
}

func (f *fakeIdentityAPI) User(ctx context.Context, accessToken string) (*model.Identity, error) {
	return f.user, nil
}

func (f *fakeIdentityAPI) UpdateUser(ctx context.Context, accessToken string, data model.Metadata) (*model.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	f.updated = &data
	u := *f.user
	u.Metadata = data
	return &u, nil
}

func (f *fakeIdentityAPI) Logout(ctx context.Context, accessToken string) error {
	return nil
}

type fakeJokeAPI struct {
	mu     sync.Mutex
	stored []model.Joke
}

func (f *fakeJokeAPI) List(ctx context.Context, cred model.Credential) ([]model.Joke, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Joke, len(f.stored))
	copy(out, f.stored)
	return out, nil
}

func (f *fakeJokeAPI) Save(ctx context.Context, cred model.Credential, j model.Joke) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored = append(f.stored, j)
	return nil
}

type fakeDispatcher struct {
	mu      sync.Mutex
	results map[string]string
	calls   []string
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, capability string, payload any) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, capability)
	raw, ok := f.results[capability]
	if !ok {
		return nil, errors.New("dispatch failed")
	}
	return json.RawMessage(raw), nil
}

type mockAuthGateway struct {
	sendMagicLinkFn func(ctx context.Context, email, redirectTo, challenge string) error
}

func (m *mockAuthGateway) AuthorizeURL(provider, redirectTo, challenge string) (string, error) {
	if provider != "google" {
		return "", fmt.Errorf("%w: %s", auth.ErrUnsupportedProvider, provider)
	}
	return "https://idp.example.com/authorize?provider=google&code_challenge=" + challenge + "&redirect_to=" + url.QueryEscape(redirectTo), nil
}

func (m *mockAuthGateway) SendMagicLink(ctx context.Context, email, redirectTo, challenge string) error {
	if m.sendMagicLinkFn != nil {
		return m.sendMagicLinkFn(ctx, email, redirectTo, challenge)
	}
	return nil
}

type mockMediaFetcher struct {
	fetchFn func(ctx context.Context, rawURL, typePrefix string) (*security.Media, error)
}

func (m *mockMediaFetcher) Fetch(ctx context.Context, rawURL, typePrefix string) (*security.Media, error) {
	return m.fetchFn(ctx, rawURL, typePrefix)
}

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error { return m.err }

// --- テスト用サーバー ---

type testServer struct {
	handler http.Handler
	idp     *fakeIdentityAPI
	storage *repository.MemoryBrowserSessionRepo
	jokes   *fakeJokeAPI
	disp    *fakeDispatcher
	gateway *mockAuthGateway
	media   *mockMediaFetcher
	health  *mockHealthChecker
	manager *workspace.Manager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	s := &testServer{
		idp:     &fakeIdentityAPI{user: &model.Identity{ID: "user-1", Email: "user@example.com"}},
		storage: repository.NewMemoryBrowserSessionRepo(),
		jokes:   &fakeJokeAPI{stored: []model.Joke{{Setup: "stored setup", Punchline: "stored punchline"}}},
		disp: &fakeDispatcher{results: map[string]string{
			aievent.EventChatRequest:   `{"setup":"generated setup","punchline":"generated punchline"}`,
			aievent.EventGenerateImage: `"https://cdn.example.com/a.png"`,
			aievent.EventTextToSpeech:  `"https://cdn.example.com/a.mp3"`,
		}},
		gateway: &mockAuthGateway{},
		media:   &mockMediaFetcher{},
		health:  &mockHealthChecker{},
	}

	s.manager = workspace.NewManager(func(browserID string) workspace.Components {
		return workspace.Components{
			Provider:   auth.NewClient(s.idp, s.storage, browserID, nil, nil),
			Jokes:      s.jokes,
			Dispatcher: s.disp,
		}
	}, nil, nil)
	t.Cleanup(s.manager.CloseAll)

	renderer, err := view.NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer() error: %v", err)
	}
	rl := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(60))
	t.Cleanup(rl.Stop)

	s.handler = NewRouter(&RouterDeps{
		Logger:         slog.New(slog.NewJSONHandler(io.Discard, nil)),
		Workspaces:     s.manager,
		BrowserSession: middleware.BrowserSessionConfig{SessionMaxAge: 3600},
		RateLimiter:    rl,
		AuthGateway:    s.gateway,
		AuthConfig:     AuthHandlerConfig{BaseURL: testBaseURL},
		Renderer:       renderer,
		Markdown:       view.NewMarkdown(security.NewMarkdownSanitizer()),
		Static:         view.StaticHandler(),
		Media:          s.media,
		Health:         s.health,
	})
	return s
}

// signIn はストレージにセッションを用意し、ワークスペースの初回生成時にサインイン済みにする。
func (s *testServer) signIn(t *testing.T) {
	t.Helper()
	err := s.storage.Upsert(context.Background(), &model.BrowserSession{
		ID:           testBrowserID,
		AccessToken:  "access-seeded",
		RefreshToken: "refresh-seeded",
		ExpiresAt:    time.Now().Add(time.Hour),
		UpdatedAt:    time.Now(),
	})
	if err != nil {
		t.Fatalf("failed to seed session: %v", err)
	}
}

type requestOption func(*http.Request)

func withJSON() requestOption {
	return func(r *http.Request) { r.Header.Set("Accept", "application/json") }
}

func withCookie(c *http.Cookie) requestOption {
	return func(r *http.Request) { r.AddCookie(c) }
}

// do はブラウザセッションとCSRFトークンを付けてリクエストを送る。
// POSTの場合はフォームにCSRFトークンを追加する。
func (s *testServer) do(method, target string, form url.Values, opts ...requestOption) *httptest.ResponseRecorder {
	var body io.Reader
	if method == http.MethodPost {
		if form == nil {
			form = url.Values{}
		}
		form.Set(middleware.CSRFFormField, testCSRFToken)
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.AddCookie(&http.Cookie{Name: middleware.BrowserSessionCookieName, Value: testBrowserID})
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: testCSRFToken})
	for _, opt := range opts {
		opt(req)
	}

	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func assertRedirectHome(t *testing.T, w *httptest.ResponseRecorder) {
	t.Helper()
	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusSeeOther)
	}
	if loc := w.Header().Get("Location"); loc != "/" {
		t.Errorf("Location = %q, want %q", loc, "/")
	}
}

func decodeErrorBody(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return body
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func httptestRequest(method, target string) *http.Request {
	return httptest.NewRequest(method, target, nil)
}

func serve(s *testServer, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}
