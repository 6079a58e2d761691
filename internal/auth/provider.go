// Package auth はGoTrue互換IdPとの通信と、ブラウザごとのサインイン状態を提供する。
package auth

import (
	"context"
	"errors"

	"github.com/hitoshi/jokecentral/internal/model"
)

// ErrNoSession はサインインが必要な操作をセッション無しで呼んだ場合のエラー。
var ErrNoSession = errors.New("auth: no active session")

// ErrUnsupportedProvider はサインイン画面に出していないIdPが指定された場合のエラー。
var ErrUnsupportedProvider = errors.New("auth: unsupported provider")

// AuthStateCallback はセッション変化の通知を受け取る。
// SIGNED_OUTの場合sessionはnil。
type AuthStateCallback func(event model.AuthEvent, session *model.Session)

// Subscription はOnAuthStateChangeの登録解除ハンドル。
type Subscription interface {
	// Unsubscribe は通知の登録を解除する。2回目以降の呼び出しは何もしない。
	Unsubscribe()
}

// Provider はアプリケーションが利用するIdPクライアントの操作。
// ブラウザ1つにつき1つのProviderが対応する。
type Provider interface {
	// GetSession は現在のセッションを返す。サインインしていなければnilを返す。
	GetSession(ctx context.Context) (*model.Session, error)
	// GetUser はIdPに問い合わせて現在のユーザーを返す。サインインしていなければnilを返す。
	GetUser(ctx context.Context) (*model.Identity, error)
	// OnAuthStateChange はセッション変化の通知を登録する。
	OnAuthStateChange(cb AuthStateCallback) Subscription
	// SignOut はIdPのセッションを終了する。
	SignOut(ctx context.Context) error
	// UpdateUser はユーザーメタデータを更新する。
	UpdateUser(ctx context.Context, data model.Metadata) (*model.Identity, error)
}

// SessionStorage はIdPトークンをブラウザIDに紐づけて保存する。
// repository.BrowserSessionRepositoryが満たす。
type SessionStorage interface {
	FindByID(ctx context.Context, id string) (*model.BrowserSession, error)
	Upsert(ctx context.Context, session *model.BrowserSession) error
	DeleteByID(ctx context.Context, id string) error
}
