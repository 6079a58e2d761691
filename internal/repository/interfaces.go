// Package repository はデータ永続化のインターフェースと実装を提供する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/jokecentral/internal/model"
)

// BrowserSessionRepository はブラウザごとのIdPトークンの永続化インターフェース。
// auth.SessionStorageを満たす。
type BrowserSessionRepository interface {
	// FindByID は指定IDの保存行を取得する。見つからない場合はnilを返す。
	// アクセストークンが期限切れでもリフレッシュに使うため返却する。
	FindByID(ctx context.Context, id string) (*model.BrowserSession, error)
	// Upsert は保存行を作成または更新する。
	Upsert(ctx context.Context, session *model.BrowserSession) error
	// DeleteByID は指定IDの保存行を削除する。存在しなくてもエラーにしない。
	DeleteByID(ctx context.Context, id string) error
	// DeleteUpdatedBefore はcutoffより前に更新された保存行を削除し、削除件数を返す。
	DeleteUpdatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
