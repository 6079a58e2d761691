// Package session はブラウザごとのサインイン状態と、IdPからの変化の取り込みを提供する。
package session

import (
	"sync"

	"github.com/hitoshi/jokecentral/internal/model"
)

// Transition はStoreへの書き込み1回分の変化。
type Transition struct {
	From *model.Identity
	To   *model.Identity
	// SignedIn は未サインインからサインイン、または別ユーザーへの切り替えの場合にtrue。
	// 同一ユーザーの再設定（トークン更新など）はサインインとして扱わない。
	SignedIn bool
}

// SignedOut はサインイン状態からサインアウトした書き込みかを返す。
func (t Transition) SignedOut() bool {
	return t.From != nil && t.To == nil
}

// Watcher はStoreへの書き込みを受け取る。
type Watcher func(Transition)

// Reader はStoreの読み取り専用ビュー。
type Reader interface {
	CurrentIdentity() *model.Identity
	CurrentPage() model.Page
	SignedIn() bool
}

// Store は現在のIdentityと、それから導出される表示ページを保持する。
// 書き込みはBridgeからのみ行う。
type Store struct {
	mu       sync.RWMutex
	identity *model.Identity
	watchers map[uint64]Watcher
	nextID   uint64
}

// NewStore は未サインイン状態のStoreを生成する。
func NewStore() *Store {
	return &Store{watchers: make(map[uint64]Watcher)}
}

// CurrentIdentity は現在のIdentityを返す。未サインインならnil。
func (s *Store) CurrentIdentity() *model.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// CurrentPage はIdentityの有無から表示ページを導出する。
func (s *Store) CurrentPage() model.Page {
	if s.SignedIn() {
		return model.PageHome
	}
	return model.PageLogin
}

// SignedIn はサインイン中かを返す。
func (s *Store) SignedIn() bool {
	return s.CurrentIdentity() != nil
}

// Watch は書き込みの通知先を登録し、解除関数を返す。解除関数は何度呼んでもよい。
func (s *Store) Watch(fn Watcher) (cancel func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.watchers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers, id)
			s.mu.Unlock()
		})
	}
}

// set はIdentityを書き込み、ロック外で同期的にwatcherへ通知する。
func (s *Store) set(identity *model.Identity) {
	s.mu.Lock()
	from := s.identity
	s.identity = identity
	watchers := make([]Watcher, 0, len(s.watchers))
	for _, w := range s.watchers {
		watchers = append(watchers, w)
	}
	s.mu.Unlock()

	t := Transition{
		From:     from,
		To:       identity,
		SignedIn: identity != nil && !from.SameUser(identity),
	}
	for _, w := range watchers {
		w(t)
	}
}

// compile-time interface check
var _ Reader = (*Store)(nil)
