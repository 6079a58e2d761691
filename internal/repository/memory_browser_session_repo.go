package repository

import (
	"context"
	"sync"
	"time"

	"github.com/hitoshi/jokecentral/internal/model"
)

// MemoryBrowserSessionRepo はプロセス内メモリにブラウザセッションを保持するリポジトリ。
// DATABASE_URL未設定時とテストで使用する。再起動で内容は失われる。
type MemoryBrowserSessionRepo struct {
	mu   sync.RWMutex
	rows map[string]model.BrowserSession
}

// NewMemoryBrowserSessionRepo はMemoryBrowserSessionRepoを生成する。
func NewMemoryBrowserSessionRepo() *MemoryBrowserSessionRepo {
	return &MemoryBrowserSessionRepo{rows: make(map[string]model.BrowserSession)}
}

// FindByID は指定IDの保存行のコピーを返す。見つからない場合はnilを返す。
func (r *MemoryBrowserSessionRepo) FindByID(ctx context.Context, id string) (*model.BrowserSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

// Upsert は保存行を作成または更新する。created_atは初回作成時の値を維持する。
func (r *MemoryBrowserSessionRepo) Upsert(ctx context.Context, s *model.BrowserSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row := *s
	if existing, ok := r.rows[s.ID]; ok {
		row.CreatedAt = existing.CreatedAt
	}
	r.rows[s.ID] = row
	return nil
}

// DeleteByID は指定IDの保存行を削除する。
func (r *MemoryBrowserSessionRepo) DeleteByID(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.rows, id)
	return nil
}

// DeleteUpdatedBefore はcutoffより前に更新された保存行を削除する。
func (r *MemoryBrowserSessionRepo) DeleteUpdatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, s := range r.rows {
		if s.UpdatedAt.Before(cutoff) {
			delete(r.rows, id)
			n++
		}
	}
	return n, nil
}

// compile-time interface check
var _ BrowserSessionRepository = (*MemoryBrowserSessionRepo)(nil)
