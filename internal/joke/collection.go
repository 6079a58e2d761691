package joke

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/jokecentral/internal/model"
)

var (
	// ErrCredentialExpired は認証情報が空または期限切れの場合のエラー。リクエストは送信しない。
	ErrCredentialExpired = errors.New("joke: credential missing or expired")
	// ErrSuperseded は応答を待つ間に一覧がResetされたか、より新しい取得が始まった場合のエラー。
	// 応答は一覧に反映しない。
	ErrSuperseded = errors.New("joke: collection changed while request was in flight")
)

// API はCollectionが利用するジョーク保存APIの操作。*Clientが満たす。
type API interface {
	List(ctx context.Context, cred model.Credential) ([]model.Joke, error)
	Save(ctx context.Context, cred model.Credential, joke model.Joke) error
}

// Collection はサインイン中ユーザーのジョーク一覧をサーバーへ保存した順に保持する。
// 取得は一覧全体の置き換え、保存成功は末尾への追加のみで、重複排除は行わない。
type Collection struct {
	api    API
	logger *slog.Logger
	now    func() time.Time

	mu    sync.RWMutex
	jokes []model.Joke
	// epoch はResetごとに進む。別ユーザーの応答を書き戻さないために使う。
	epoch uint64
	// fetchSeq はFetchAllの開始ごとに進む。古い取得の応答は捨てる。
	fetchSeq uint64
}

// NewCollection は空のCollectionを生成する。
func NewCollection(api API, logger *slog.Logger) *Collection {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collection{
		api:    api,
		logger: logger,
		now:    time.Now,
		jokes:  []model.Joke{},
	}
}

// Jokes は一覧のコピーを返す。
func (c *Collection) Jokes() []model.Joke {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]model.Joke, len(c.jokes))
	copy(out, c.jokes)
	return out
}

// Len は一覧の件数を返す。
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.jokes)
}

// FetchAll は一覧をサーバーから取得して置き換える。
// 失敗した場合はログに記録し、一覧は変更しない。
// 応答待ちの間にResetされた場合と、後から別のFetchAllが始まった場合はErrSupersededを返す。
func (c *Collection) FetchAll(ctx context.Context, cred model.Credential) error {
	if !cred.Valid(c.now()) {
		return ErrCredentialExpired
	}

	c.mu.Lock()
	c.fetchSeq++
	epoch, seq := c.epoch, c.fetchSeq
	c.mu.Unlock()

	jokes, err := c.api.List(ctx, cred)
	if err != nil {
		c.logger.Error("Error fetching jokes", slog.String("error", err.Error()))
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch || c.fetchSeq != seq {
		c.logger.Info("discarding superseded joke list", slog.Int("count", len(jokes)))
		return ErrSuperseded
	}
	c.jokes = jokes
	return nil
}

// Save はジョークをサーバーへ保存し、成功した場合のみ末尾に追加する。
// 失敗した場合はログに記録し、一覧は変更しない。
func (c *Collection) Save(ctx context.Context, candidate model.Joke, cred model.Credential) error {
	if !cred.Valid(c.now()) {
		return ErrCredentialExpired
	}

	c.mu.RLock()
	epoch := c.epoch
	c.mu.RUnlock()

	if err := c.api.Save(ctx, cred, candidate); err != nil {
		c.logger.Error("Error saving joke", slog.String("error", err.Error()))
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return ErrSuperseded
	}
	c.jokes = append(c.jokes, candidate)
	return nil
}

// Reset は一覧を空にする。サインアウトとユーザーの切り替え時に使用する。
// 応答待ちのFetchAllとSaveの結果は反映されなくなる。
func (c *Collection) Reset() {
	c.mu.Lock()
	c.jokes = []model.Joke{}
	c.epoch++
	c.mu.Unlock()
}

// compile-time interface check
var _ API = (*Client)(nil)
