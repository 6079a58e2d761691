// Package model はドメインモデルを定義する。
package model

import "time"

// Metadata はIdPが保持するユーザーの表示用メタデータ。
type Metadata struct {
	Username string `json:"username,omitempty"`
	FullName string `json:"full_name,omitempty"`
}

// Identity はIdPが発行するサインイン済みユーザーを表す。
// サインアップはIdP側で行われ、アプリケーションはIDを生成しない。
type Identity struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	Metadata Metadata `json:"user_metadata"`
}

// SameUser は2つのIdentityが同一ユーザーを指すかを判定する。
// どちらかがnilの場合は両方nilのときのみtrueを返す。
func (i *Identity) SameUser(other *Identity) bool {
	if i == nil || other == nil {
		return i == nil && other == nil
	}
	return i.ID == other.ID
}

// Session はIdPが発行するサインインの証明を表す。
type Session struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresAt    time.Time
	User         *Identity
}

// Expired はアクセストークンが期限切れかを判定する。
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// Credential はセッションからBearer認証情報を取り出す。
func (s *Session) Credential() Credential {
	return Credential{
		AccessToken: s.AccessToken,
		ExpiresAt:   s.ExpiresAt,
	}
}

// Credential は外部APIへのリクエストに付与するBearer認証情報。
type Credential struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Valid は認証情報が空でなく、期限内であるかを判定する。
func (c Credential) Valid(now time.Time) bool {
	return c.AccessToken != "" && c.ExpiresAt.After(now)
}

// AuthEvent はIdPが通知するセッション変化の種類。
type AuthEvent string

const (
	AuthEventInitialSession AuthEvent = "INITIAL_SESSION"
	AuthEventSignedIn       AuthEvent = "SIGNED_IN"
	AuthEventSignedOut      AuthEvent = "SIGNED_OUT"
	AuthEventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
	AuthEventUserUpdated    AuthEvent = "USER_UPDATED"
)

// BrowserSession はブラウザCookieに紐づくIdPトークンの保存行。
// IdPクライアントのローカルストレージに相当し、アプリケーション状態は含まない。
type BrowserSession struct {
	ID           string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
