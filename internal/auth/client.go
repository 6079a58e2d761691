package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hitoshi/jokecentral/internal/model"
)

// IdentityAPI はClientが利用するGoTrueの操作。*GoTrueが満たす。
type IdentityAPI interface {
	ExchangeCode(ctx context.Context, code, verifier string) (*model.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*model.Session, error)
	User(ctx context.Context, accessToken string) (*model.Identity, error)
	UpdateUser(ctx context.Context, accessToken string, data model.Metadata) (*model.Identity, error)
	Logout(ctx context.Context, accessToken string) error
}

// EventRecorder は認証イベントの発生を記録する。
type EventRecorder interface {
	RecordAuthEvent(event string)
}

type listener struct {
	id uint64
	cb AuthStateCallback
}

// Client はブラウザ1つ分のIdPクライアント。Providerを実装する。
// トークンはSessionStorageにブラウザIDをキーとして保存し、
// 変化があれば登録済みのコールバックへ通知する。
type Client struct {
	api     IdentityAPI
	storage SessionStorage
	id      string
	logger  *slog.Logger
	events  EventRecorder
	now     func() time.Time

	// refreshMu はリフレッシュトークンの二重使用を防ぐ。
	refreshMu sync.Mutex

	mu        sync.Mutex
	user      *model.Identity
	listeners []listener
	nextID    uint64
}

// NewClient はブラウザIDに紐づくClientを生成する。
func NewClient(api IdentityAPI, storage SessionStorage, browserID string, logger *slog.Logger, events EventRecorder) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		api:     api,
		storage: storage,
		id:      browserID,
		logger:  logger.With(slog.String("browser_session_id", browserID)),
		events:  events,
		now:     time.Now,
	}
}

// GetSession は保存済みのセッションを返す。
// アクセストークンが期限切れの場合はリフレッシュし、TOKEN_REFRESHEDを通知する。
// IdPがリフレッシュを拒否した場合は保存行を破棄してSIGNED_OUTを通知し、nilを返す。
// 通知はrefreshMuの解放後に行うため、コールバックから再度GetSessionを呼んでよい。
func (c *Client) GetSession(ctx context.Context) (*model.Session, error) {
	session, event, err := c.loadSession(ctx)
	if event != "" {
		c.emit(event, session)
	}
	return session, err
}

func (c *Client) loadSession(ctx context.Context) (*model.Session, model.AuthEvent, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	row, err := c.storage.FindByID(ctx, c.id)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load session: %w", err)
	}
	if row == nil {
		return nil, "", nil
	}

	session := &model.Session{
		AccessToken:  row.AccessToken,
		RefreshToken: row.RefreshToken,
		TokenType:    "bearer",
		ExpiresAt:    row.ExpiresAt,
		User:         c.cachedUser(),
	}
	if !session.Expired(c.now()) {
		return session, "", nil
	}

	refreshed, err := c.api.Refresh(ctx, row.RefreshToken)
	if err != nil {
		var se *StatusError
		if !errors.As(err, &se) || se.StatusCode >= http.StatusInternalServerError {
			return nil, "", err
		}
		c.logger.Warn("refresh token rejected, signing out", slog.String("error", err.Error()))
		if err := c.storage.DeleteByID(ctx, c.id); err != nil {
			c.logger.Error("failed to delete session", slog.String("error", err.Error()))
		}
		c.setUser(nil)
		return nil, model.AuthEventSignedOut, nil
	}

	if err := c.persist(ctx, refreshed); err != nil {
		return nil, "", err
	}
	c.setUser(refreshed.User)
	return refreshed, model.AuthEventTokenRefreshed, nil
}

// GetUser はIdPに現在のユーザーを問い合わせる。サインインしていなければnilを返す。
func (c *Client) GetUser(ctx context.Context) (*model.Identity, error) {
	session, err := c.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, nil
	}

	user, err := c.api.User(ctx, session.AccessToken)
	if err != nil {
		return nil, err
	}
	c.setUser(user)
	return user, nil
}

// SignInWithCode は認可コードをセッションに交換して保存し、SIGNED_INを通知する。
func (c *Client) SignInWithCode(ctx context.Context, code, verifier string) (*model.Session, error) {
	session, err := c.api.ExchangeCode(ctx, code, verifier)
	if err != nil {
		return nil, err
	}
	if err := c.persist(ctx, session); err != nil {
		return nil, err
	}
	c.setUser(session.User)
	c.logger.Info("user signed in", slog.String("user_id", session.User.ID))
	c.emit(model.AuthEventSignedIn, session)
	return session, nil
}

// SignOut はIdPセッションを失効させ、保存行を破棄してSIGNED_OUTを通知する。
// IdPへのリクエストが失敗してもローカルのセッションは破棄する。
func (c *Client) SignOut(ctx context.Context) error {
	var logoutErr error
	row, err := c.storage.FindByID(ctx, c.id)
	if err != nil {
		logoutErr = fmt.Errorf("failed to load session: %w", err)
	} else if row != nil && row.AccessToken != "" {
		logoutErr = c.api.Logout(ctx, row.AccessToken)
	}

	deleteErr := c.storage.DeleteByID(ctx, c.id)
	if deleteErr != nil {
		deleteErr = fmt.Errorf("failed to delete session: %w", deleteErr)
	}

	c.setUser(nil)
	c.emit(model.AuthEventSignedOut, nil)
	return errors.Join(logoutErr, deleteErr)
}

// UpdateUser はユーザーメタデータを更新し、USER_UPDATEDを通知する。
func (c *Client) UpdateUser(ctx context.Context, data model.Metadata) (*model.Identity, error) {
	session, err := c.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrNoSession
	}

	user, err := c.api.UpdateUser(ctx, session.AccessToken, data)
	if err != nil {
		return nil, err
	}
	c.setUser(user)
	session.User = user
	c.emit(model.AuthEventUserUpdated, session)
	return user, nil
}

// OnAuthStateChange はセッション変化の通知先を登録する。
func (c *Client) OnAuthStateChange(cb AuthStateCallback) Subscription {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.listeners = append(c.listeners, listener{id: id, cb: cb})
	c.mu.Unlock()

	return &subscription{unsubscribe: func() { c.removeListener(id) }}
}

func (c *Client) removeListener(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, l := range c.listeners {
		if l.id == id {
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			return
		}
	}
}

// emit はロック外でコールバックを呼び出す。コールバック内からClientを操作してよい。
func (c *Client) emit(event model.AuthEvent, session *model.Session) {
	c.mu.Lock()
	targets := make([]listener, len(c.listeners))
	copy(targets, c.listeners)
	c.mu.Unlock()

	if c.events != nil {
		c.events.RecordAuthEvent(string(event))
	}
	for _, l := range targets {
		l.cb(event, session)
	}
}

func (c *Client) persist(ctx context.Context, session *model.Session) error {
	now := c.now()
	row := &model.BrowserSession{
		ID:           c.id,
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		ExpiresAt:    session.ExpiresAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := c.storage.Upsert(ctx, row); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (c *Client) cachedUser() *model.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

func (c *Client) setUser(user *model.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.user = user
}

type subscription struct {
	once        sync.Once
	unsubscribe func()
}

func (s *subscription) Unsubscribe() {
	s.once.Do(s.unsubscribe)
}

// compile-time interface check
var (
	_ Provider    = (*Client)(nil)
	_ IdentityAPI = (*GoTrue)(nil)
)
