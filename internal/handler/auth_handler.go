package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/jokecentral/internal/auth"
)

const pkceVerifierCookie = "pkce_verifier"

// サインイン画面に出すメッセージ。
const (
	MessageMagicLinkSent   = "Check your email for the login link!"
	MessageMagicLinkFailed = "Error sending magic link"
	MessageSignInFailed    = "Sign in failed. Please try again."
)

// AuthGateway は認証ハンドラーが必要とするIdPの操作。*auth.GoTrueが満たす。
type AuthGateway interface {
	AuthorizeURL(provider, redirectTo, challenge string) (string, error)
	SendMagicLink(ctx context.Context, email, redirectTo, challenge string) error
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL      string
	CookieSecure bool
}

// AuthHandler はサインインとサインアウトのHTTPハンドラー。
type AuthHandler struct {
	gateway AuthGateway
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(gateway AuthGateway, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		gateway: gateway,
		config:  config,
	}
}

// callbackURL はIdPがサインイン後に戻るURLを返す。
func (h *AuthHandler) callbackURL() string {
	return strings.TrimRight(h.config.BaseURL, "/") + "/auth/callback"
}

// MagicLink はメールアドレス宛てにサインイン用リンクを送る。
// POST /auth/magic-link
func (h *AuthHandler) MagicLink(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFromRequest(w, r)
	if ws == nil {
		return
	}

	email := strings.TrimSpace(r.FormValue("email"))
	if email == "" {
		ws.SetFlash(MessageMagicLinkFailed)
		redirectHome(w, r)
		return
	}

	verifier, challenge := auth.NewPKCE()
	if err := h.gateway.SendMagicLink(r.Context(), email, h.callbackURL(), challenge); err != nil {
		slog.Error("failed to send magic link",
			slog.String("browser_session_id", ws.ID()),
			slog.String("error", err.Error()),
		)
		ws.SetFlash(MessageMagicLinkFailed)
		redirectHome(w, r)
		return
	}

	h.setVerifierCookie(w, verifier)
	ws.SetFlash(MessageMagicLinkSent)
	redirectHome(w, r)
}

// ProviderLogin はOAuthプロバイダーでのサインインを開始する。
// GET /auth/{provider}/login
func (h *AuthHandler) ProviderLogin(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	verifier, challenge := auth.NewPKCE()
	url, err := h.gateway.AuthorizeURL(provider, h.callbackURL(), challenge)
	if err != nil {
		if errors.Is(err, auth.ErrUnsupportedProvider) {
			http.NotFound(w, r)
			return
		}
		slog.Error("failed to build authorize url",
			slog.String("provider", provider),
			slog.String("error", err.Error()),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.setVerifierCookie(w, verifier)
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

// Callback はIdPからの戻りを受け、認可コードをセッションに交換する。
// GET /auth/callback?code=xxx
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFromRequest(w, r)
	if ws == nil {
		return
	}
	// verifierは1度しか使えないため結果に関わらず消す
	h.clearVerifierCookie(w)

	query := r.URL.Query()
	if desc := query.Get("error_description"); desc != "" {
		slog.Warn("identity provider returned an error",
			slog.String("browser_session_id", ws.ID()),
			slog.String("error", desc),
		)
		ws.SetFlash(MessageSignInFailed)
		redirectHome(w, r)
		return
	}

	code := query.Get("code")
	cookie, err := r.Cookie(pkceVerifierCookie)
	if code == "" || err != nil || cookie.Value == "" {
		slog.Warn("missing authorization code or verifier",
			slog.String("browser_session_id", ws.ID()),
		)
		ws.SetFlash(MessageSignInFailed)
		redirectHome(w, r)
		return
	}

	if err := ws.SignInWithCode(r.Context(), code, cookie.Value); err != nil {
		slog.Error("failed to exchange authorization code",
			slog.String("browser_session_id", ws.ID()),
			slog.String("error", err.Error()),
		)
		ws.SetFlash(MessageSignInFailed)
	}
	redirectHome(w, r)
}

// Logout はサインアウトしてサインイン画面に戻す。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFromRequest(w, r)
	if ws == nil {
		return
	}
	ws.SignOut(r.Context())
	redirectHome(w, r)
}

func (h *AuthHandler) setVerifierCookie(w http.ResponseWriter, verifier string) {
	http.SetCookie(w, &http.Cookie{
		Name:     pkceVerifierCookie,
		Value:    verifier,
		Path:     "/auth",
		MaxAge:   600, // 10分
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearVerifierCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     pkceVerifierCookie,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
