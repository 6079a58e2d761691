package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hitoshi/jokecentral/internal/auth"
	"github.com/hitoshi/jokecentral/internal/model"
)

// Bridge はIdPクライアントの状態をStoreへ反映する唯一の書き込み経路。
type Bridge struct {
	provider auth.Provider
	store    *Store
	logger   *slog.Logger

	mu  sync.Mutex
	sub *bridgeSubscription
}

// NewBridge はBridgeを生成する。
func NewBridge(provider auth.Provider, store *Store, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{provider: provider, store: store, logger: logger}
}

// Initialize はIdPに現在のユーザーを問い合わせ、結果をStoreに反映する。
// 取得に失敗した場合もユーザーがいない場合も未サインインとして扱う。
func (b *Bridge) Initialize(ctx context.Context) {
	user, err := b.provider.GetUser(ctx)
	if err != nil {
		b.logger.Warn("failed to get current user, treating as signed out",
			slog.String("error", err.Error()),
		)
		b.store.set(nil)
		return
	}
	b.store.set(user)
}

// Subscribe はIdPのセッション変化を購読する。
// 購読中に再度呼んだ場合は既存の購読を返す。
func (b *Bridge) Subscribe() auth.Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sub != nil {
		return b.sub
	}

	s := &bridgeSubscription{bridge: b}
	s.inner = b.provider.OnAuthStateChange(func(event model.AuthEvent, session *model.Session) {
		b.logger.Debug("auth state changed", slog.String("event", string(event)))
		if session != nil && session.User != nil {
			b.store.set(session.User)
			return
		}
		b.store.set(nil)
	})
	b.sub = s
	return s
}

// SignOut はIdPのサインアウトを要求し、結果に関わらず未サインインにする。
func (b *Bridge) SignOut(ctx context.Context) {
	if err := b.provider.SignOut(ctx); err != nil {
		b.logger.Error("failed to sign out from identity provider",
			slog.String("error", err.Error()),
		)
	}
	b.store.set(nil)
}

type bridgeSubscription struct {
	bridge *Bridge
	inner  auth.Subscription
	once   sync.Once
}

// Unsubscribe は購読を1度だけ解除する。解除後はSubscribeで新しい購読を作れる。
func (s *bridgeSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.inner.Unsubscribe()

		s.bridge.mu.Lock()
		if s.bridge.sub == s {
			s.bridge.sub = nil
		}
		s.bridge.mu.Unlock()
	})
}
