package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"time"

	"golang.org/x/oauth2"

	"github.com/hitoshi/jokecentral/internal/model"
)

// maxResponseSize はIdPの応答ボディの上限。トークンとユーザー情報のみのため小さく抑える。
const maxResponseSize = 1 << 20

// ErrResponseTooLarge はIdPの応答がmaxResponseSizeを超えた場合のエラー。
var ErrResponseTooLarge = errors.New("auth: identity provider response too large")

// SupportedProviders はサインイン画面に表示するOAuthプロバイダー。
var SupportedProviders = []string{"google", "facebook", "apple"}

// GoTrueConfig はGoTrue互換APIの接続設定。
type GoTrueConfig struct {
	// BaseURL はプロジェクトのURL（例: https://xyz.supabase.co）。
	BaseURL string
	// AnonKey は全リクエストのapikeyヘッダーに付与する公開キー。
	AnonKey string
	// HTTPClient が nil の場合は http.DefaultClient を使用する。
	HTTPClient *http.Client
}

// GoTrue はGoTrue互換APIのHTTPクライアント。状態を持たず全ブラウザで共有する。
type GoTrue struct {
	config GoTrueConfig
	client *http.Client
	now    func() time.Time
}

// NewGoTrue はGoTrueクライアントを生成する。
func NewGoTrue(config GoTrueConfig) *GoTrue {
	client := config.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &GoTrue{config: config, client: client, now: time.Now}
}

// NewPKCE はPKCEのverifierとS256チャレンジを生成する。
// verifierはコールバックまでブラウザCookieに保持する。
func NewPKCE() (verifier, challenge string) {
	verifier = oauth2.GenerateVerifier()
	return verifier, oauth2.S256ChallengeFromVerifier(verifier)
}

// AuthorizeURL はOAuthプロバイダーでのサインインを開始するURLを生成する。
func (g *GoTrue) AuthorizeURL(provider, redirectTo, challenge string) (string, error) {
	if !slices.Contains(SupportedProviders, provider) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider)
	}
	params := url.Values{
		"provider":              {provider},
		"redirect_to":           {redirectTo},
		"code_challenge":        {challenge},
		"code_challenge_method": {"s256"},
	}
	return g.config.BaseURL + "/auth/v1/authorize?" + params.Encode(), nil
}

// SendMagicLink はメールアドレスにサインイン用リンクを送信する。
// 未登録のメールアドレスはIdP側でユーザーが作成される。
func (g *GoTrue) SendMagicLink(ctx context.Context, email, redirectTo, challenge string) error {
	body := map[string]any{
		"email":                 email,
		"create_user":           true,
		"code_challenge":        challenge,
		"code_challenge_method": "s256",
	}
	endpoint := "/auth/v1/otp?" + url.Values{"redirect_to": {redirectTo}}.Encode()
	if err := g.do(ctx, http.MethodPost, endpoint, "", body, nil); err != nil {
		return fmt.Errorf("failed to send magic link: %w", err)
	}
	return nil
}

// tokenResponse はトークンエンドポイントのレスポンス。
type tokenResponse struct {
	AccessToken  string          `json:"access_token"`
	TokenType    string          `json:"token_type"`
	ExpiresIn    int64           `json:"expires_in"`
	ExpiresAt    int64           `json:"expires_at"`
	RefreshToken string          `json:"refresh_token"`
	User         *model.Identity `json:"user"`
}

// ExchangeCode はコールバックの認可コードをセッションに交換する。
func (g *GoTrue) ExchangeCode(ctx context.Context, code, verifier string) (*model.Session, error) {
	body := map[string]string{
		"auth_code":     code,
		"code_verifier": verifier,
	}
	session, err := g.token(ctx, "pkce", body)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}
	return session, nil
}

// Refresh はリフレッシュトークンで新しいセッションを取得する。
func (g *GoTrue) Refresh(ctx context.Context, refreshToken string) (*model.Session, error) {
	body := map[string]string{"refresh_token": refreshToken}
	session, err := g.token(ctx, "refresh_token", body)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh session: %w", err)
	}
	return session, nil
}

func (g *GoTrue) token(ctx context.Context, grantType string, body any) (*model.Session, error) {
	var resp tokenResponse
	endpoint := "/auth/v1/token?" + url.Values{"grant_type": {grantType}}.Encode()
	if err := g.do(ctx, http.MethodPost, endpoint, "", body, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("empty access token in response")
	}
	if resp.User == nil || resp.User.ID == "" {
		return nil, fmt.Errorf("empty user in token response")
	}

	expiresAt := time.Unix(resp.ExpiresAt, 0)
	if resp.ExpiresAt == 0 {
		expiresAt = g.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}

	return &model.Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
		ExpiresAt:    expiresAt,
		User:         resp.User,
	}, nil
}

// User はアクセストークンの持ち主を取得する。
func (g *GoTrue) User(ctx context.Context, accessToken string) (*model.Identity, error) {
	var user model.Identity
	if err := g.do(ctx, http.MethodGet, "/auth/v1/user", accessToken, nil, &user); err != nil {
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("empty id in user response")
	}
	return &user, nil
}

// UpdateUser はユーザーメタデータを置き換え、更新後のユーザーを返す。
func (g *GoTrue) UpdateUser(ctx context.Context, accessToken string, data model.Metadata) (*model.Identity, error) {
	body := map[string]any{"data": data}
	var user model.Identity
	if err := g.do(ctx, http.MethodPut, "/auth/v1/user", accessToken, body, &user); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return &user, nil
}

// Logout はアクセストークンに紐づくIdPセッションを失効させる。
func (g *GoTrue) Logout(ctx context.Context, accessToken string) error {
	if err := g.do(ctx, http.MethodPost, "/auth/v1/logout", accessToken, nil, nil); err != nil {
		return fmt.Errorf("failed to logout: %w", err)
	}
	return nil
}

// StatusError はGoTrueが2xx以外を返した場合のエラー。
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gotrue responded with status %d: %s", e.StatusCode, e.Body)
}

// do はリクエストを送信し、outが非nilならレスポンスJSONを読み込む。
func (g *GoTrue) do(ctx context.Context, method, endpoint, accessToken string, in, out any) error {
	var reader io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.config.BaseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", g.config.AnonKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	tooLarge := len(body) > maxResponseSize
	if tooLarge {
		body = body[:maxResponseSize]
	}

	// 拒否の応答はサイズに関わらずStatusErrorとして返す。リフレッシュの失効判定に使われる
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	if tooLarge {
		return fmt.Errorf("%s %s: %w", method, endpoint, ErrResponseTooLarge)
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
