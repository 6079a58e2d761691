// Package workspace はブラウザ1つ分のアプリケーション状態をまとめて保持する。
// サインイン状態、ジョーク一覧、作成中の下書き、生成結果がここに集まる。
package workspace

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/jokecentral/internal/aievent"
	"github.com/hitoshi/jokecentral/internal/auth"
	"github.com/hitoshi/jokecentral/internal/joke"
	"github.com/hitoshi/jokecentral/internal/model"
	"github.com/hitoshi/jokecentral/internal/profile"
	"github.com/hitoshi/jokecentral/internal/session"
)

// ErrNotSignedIn はサインインが必要な操作を未サインインで呼んだ場合のエラー。
var ErrNotSignedIn = errors.New("workspace: not signed in")

// Provider はWorkspaceが利用するIdPクライアント。*auth.Clientが満たす。
type Provider interface {
	auth.Provider
	SignInWithCode(ctx context.Context, code, verifier string) (*model.Session, error)
}

// Components はWorkspaceを構成する外部依存。ブラウザごとに生成する。
type Components struct {
	Provider   Provider
	Jokes      joke.API
	Dispatcher aievent.Dispatcher
}

// Workspace はブラウザ1つ分の状態。Openで購読を開始し、Closeで1度だけ解放する。
type Workspace struct {
	id       string
	provider Provider
	store    *session.Store
	bridge   *session.Bridge
	jokes    *joke.Collection
	actions  *aievent.Actions
	profile  *profile.Editor
	logger   *slog.Logger
	now      func() time.Time

	// ctx はサインイン時の一覧取得に使う。Closeでキャンセルする。
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	draft      model.Joke
	flash      string
	lastActive time.Time

	sub         auth.Subscription
	cancelWatch func()
	closeOnce   sync.Once
}

// New はWorkspaceを生成する。購読はOpenまで開始しない。
func New(id string, c Components, logger *slog.Logger) *Workspace {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("browser_session_id", id))

	store := session.NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	return &Workspace{
		id:         id,
		provider:   c.Provider,
		store:      store,
		bridge:     session.NewBridge(c.Provider, store, logger),
		jokes:      joke.NewCollection(c.Jokes, logger),
		actions:    aievent.NewActions(c.Dispatcher, logger),
		profile:    profile.NewEditor(c.Provider, logger),
		logger:     logger,
		now:        time.Now,
		ctx:        ctx,
		cancel:     cancel,
		lastActive: time.Now(),
	}
}

// Open はサインイン状態を初期化し、IdPの変化の購読を開始する。
// サインインへの遷移ごとにジョーク一覧を1度だけ取得する。
func (w *Workspace) Open(ctx context.Context) {
	w.cancelWatch = w.store.Watch(w.onTransition)
	w.bridge.Initialize(ctx)
	w.sub = w.bridge.Subscribe()
}

func (w *Workspace) onTransition(t session.Transition) {
	switch {
	case t.SignedIn:
		if t.From != nil {
			// 別ユーザーへの切り替え。前のユーザーの一覧は見せない
			w.jokes.Reset()
		}
		w.fetchJokes(t.To)
	case t.SignedOut():
		// 一覧と下書きはサインイン中のユーザーに属する
		w.jokes.Reset()
		w.mu.Lock()
		w.draft = model.Joke{}
		w.mu.Unlock()
	}
}

func (w *Workspace) fetchJokes(user *model.Identity) {
	// 通知の処理中に別の遷移が起きていれば、そちらの処理に任せる
	if !user.SameUser(w.store.CurrentIdentity()) {
		return
	}
	cred, err := w.credential(w.ctx)
	if err != nil {
		w.logger.Warn("skip fetching jokes", slog.String("error", err.Error()))
		return
	}
	if err := w.jokes.FetchAll(w.ctx, cred); errors.Is(err, joke.ErrCredentialExpired) {
		w.logger.Warn("skip fetching jokes: credential expired")
	}
}

// Close は購読を解除する。2回目以降の呼び出しは何もしない。
func (w *Workspace) Close() {
	w.closeOnce.Do(func() {
		if w.sub != nil {
			w.sub.Unsubscribe()
		}
		if w.cancelWatch != nil {
			w.cancelWatch()
		}
		w.cancel()
	})
}

// ID はブラウザセッションIDを返す。
func (w *Workspace) ID() string { return w.id }

// Session はサインイン状態の読み取り専用ビューを返す。
func (w *Workspace) Session() session.Reader { return w.store }

// Profile はプロフィール編集を返す。
func (w *Workspace) Profile() *profile.Editor { return w.profile }

// UIState は現在の画面状態を返す。
func (w *Workspace) UIState() model.UIState {
	return model.UIState{
		CurrentPage: w.store.CurrentPage(),
		Busy:        w.actions.Busy(),
	}
}

// Jokes はジョーク一覧のコピーを返す。
func (w *Workspace) Jokes() []model.Joke { return w.jokes.Jokes() }

// Results は生成結果を表示順に返す。
func (w *Workspace) Results() []model.GenerationResult { return w.actions.Results() }

// Result は指定した種類の生成結果を返す。
func (w *Workspace) Result(kind model.Capability) (model.GenerationResult, bool) {
	return w.actions.Result(kind)
}

// Draft は作成中のジョークを返す。
func (w *Workspace) Draft() model.Joke {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.draft
}

// SetDraft は入力中のジョークを下書きとして保持する。
func (w *Workspace) SetDraft(j model.Joke) {
	w.mu.Lock()
	w.draft = j
	w.mu.Unlock()
}

// SetFlash は次の画面表示で1度だけ出すメッセージを設定する。
func (w *Workspace) SetFlash(msg string) {
	w.mu.Lock()
	w.flash = msg
	w.mu.Unlock()
}

// TakeFlash はメッセージを取り出して消去する。
func (w *Workspace) TakeFlash() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	msg := w.flash
	w.flash = ""
	return msg
}

// SignInWithCode は認可コードでサインインする。状態の反映はIdPの通知経由で行われる。
func (w *Workspace) SignInWithCode(ctx context.Context, code, verifier string) error {
	_, err := w.provider.SignInWithCode(ctx, code, verifier)
	return err
}

// SignOut はサインアウトする。IdPへの要求が失敗しても未サインインになる。
func (w *Workspace) SignOut(ctx context.Context) {
	w.bridge.SignOut(ctx)
}

// SaveJoke はジョークを保存する。入力値は保存完了まで下書きとして保持し、
// 成功した場合のみ下書きを空にする。
func (w *Workspace) SaveJoke(ctx context.Context, j model.Joke) error {
	w.mu.Lock()
	w.draft = j
	w.mu.Unlock()

	cred, err := w.credential(ctx)
	if err != nil {
		return err
	}
	if err := w.jokes.Save(ctx, j, cred); err != nil {
		return err
	}

	w.mu.Lock()
	w.draft = model.Joke{}
	w.mu.Unlock()
	return nil
}

// Run は指定したAI生成機能を実行する。
// ジョーク生成の結果は下書きになり、読み上げは現在の下書きを対象とする。
func (w *Workspace) Run(ctx context.Context, kind model.Capability) error {
	if !w.store.SignedIn() {
		return ErrNotSignedIn
	}

	switch kind {
	case model.CapabilityJoke:
		j, err := w.actions.GenerateJoke(ctx)
		if err != nil {
			return err
		}
		w.mu.Lock()
		w.draft = j
		w.mu.Unlock()
		return nil
	case model.CapabilityImage:
		_, err := w.actions.GenerateImage(ctx)
		return err
	case model.CapabilityAudio:
		_, err := w.actions.TextToSpeech(ctx, w.Draft())
		return err
	case model.CapabilityMarkdown:
		_, err := w.actions.GenerateMarkdown(ctx)
		return err
	default:
		return model.NewUnknownCapabilityError(string(kind))
	}
}

func (w *Workspace) credential(ctx context.Context) (model.Credential, error) {
	return SessionCredential(w.provider)(ctx)
}

// SessionCredential はProviderの現在のセッションから認証情報を取り出す関数を返す。
// AIイベントの送信とジョーク一覧の取得で同じ認証情報を使う。
func SessionCredential(p auth.Provider) aievent.CredentialFunc {
	return func(ctx context.Context) (model.Credential, error) {
		s, err := p.GetSession(ctx)
		if err != nil {
			return model.Credential{}, err
		}
		if s == nil {
			return model.Credential{}, ErrNotSignedIn
		}
		return s.Credential(), nil
	}
}

func (w *Workspace) touch() {
	w.mu.Lock()
	w.lastActive = w.now()
	w.mu.Unlock()
}

// LastActive は最後にリクエストを受けた時刻を返す。
func (w *Workspace) LastActive() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastActive
}
