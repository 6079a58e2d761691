// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/jokecentral/internal/workspace"
)

// BrowserSessionCookieName はブラウザセッションIDを保持するCookieの名前。
const BrowserSessionCookieName = "browser_session"

// browserSessionIDLength はブラウザセッションIDのバイト長（hexで64文字）。
const browserSessionIDLength = 32

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// browserSessionIDContextKey はリクエストコンテキストにブラウザセッションIDを格納するためのキー。
	browserSessionIDContextKey = contextKey("browser_session_id")
	// workspaceContextKey はリクエストコンテキストにWorkspaceを格納するためのキー。
	workspaceContextKey = contextKey("workspace")
)

// WorkspaceGetter はブラウザセッションIDからWorkspaceを取得する。
// workspace.Managerが満たす。
type WorkspaceGetter interface {
	Get(ctx context.Context, id string) *workspace.Workspace
}

// BrowserSessionConfig はブラウザセッションCookieの設定。
type BrowserSessionConfig struct {
	CookieSecure  bool
	CookieDomain  string
	SessionMaxAge int // Cookieの有効期間（秒）
}

// NewBrowserSessionMiddleware はHTTP Only CookieからブラウザセッションIDを読み取り、
// 対応するWorkspaceをリクエストコンテキストに注入するミドルウェアを返す。
// Cookieが無い、または形式が不正な場合は新しいIDを発行する。
func NewBrowserSessionMiddleware(workspaces WorkspaceGetter, config BrowserSessionConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. CookieからブラウザセッションIDを取得
			id := ""
			if cookie, err := r.Cookie(BrowserSessionCookieName); err == nil && validBrowserSessionID(cookie.Value) {
				id = cookie.Value
			}

			// 2. 無ければ新規発行してCookieに設定
			if id == "" {
				var err error
				id, err = generateBrowserSessionID()
				if err != nil {
					slog.Error("failed to generate browser session id", slog.String("error", err.Error()))
					WriteInternalServerError(w)
					return
				}
				http.SetCookie(w, &http.Cookie{
					Name:     BrowserSessionCookieName,
					Value:    id,
					Path:     "/",
					Domain:   config.CookieDomain,
					MaxAge:   config.SessionMaxAge,
					HttpOnly: true,
					Secure:   config.CookieSecure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			annotateBrowserSession(r.Context(), id)

			// 3. Workspaceをコンテキストに注入
			ws := workspaces.Get(r.Context(), id)
			ctx := context.WithValue(r.Context(), browserSessionIDContextKey, id)
			ctx = context.WithValue(ctx, workspaceContextKey, ws)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BrowserSessionIDFromContext はリクエストコンテキストからブラウザセッションIDを取得する。
// ブラウザセッションミドルウェアを通過したリクエストでのみ有効。
func BrowserSessionIDFromContext(ctx context.Context) (string, error) {
	id, ok := ctx.Value(browserSessionIDContextKey).(string)
	if !ok || id == "" {
		return "", fmt.Errorf("browser session ID not found in context")
	}
	return id, nil
}

// WorkspaceFromContext はリクエストコンテキストからWorkspaceを取得する。
func WorkspaceFromContext(ctx context.Context) (*workspace.Workspace, error) {
	ws, ok := ctx.Value(workspaceContextKey).(*workspace.Workspace)
	if !ok || ws == nil {
		return nil, fmt.Errorf("workspace not found in context")
	}
	return ws, nil
}

// ContextWithWorkspace はコンテキストにWorkspaceとそのIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithWorkspace(ctx context.Context, ws *workspace.Workspace) context.Context {
	ctx = context.WithValue(ctx, browserSessionIDContextKey, ws.ID())
	return context.WithValue(ctx, workspaceContextKey, ws)
}

// generateBrowserSessionID は暗号的に安全なブラウザセッションIDを生成する。
func generateBrowserSessionID() (string, error) {
	b := make([]byte, browserSessionIDLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// validBrowserSessionID は自分で発行した形式のIDかを判定する。
func validBrowserSessionID(id string) bool {
	if len(id) != browserSessionIDLength*2 {
		return false
	}
	_, err := hex.DecodeString(id)
	return err == nil
}
