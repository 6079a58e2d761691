package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/jokecentral/internal/model"
)

// PostgresBrowserSessionRepo はPostgreSQLを使用したブラウザセッションリポジトリ。
type PostgresBrowserSessionRepo struct {
	db *sql.DB
}

// NewPostgresBrowserSessionRepo はPostgresBrowserSessionRepoを生成する。
func NewPostgresBrowserSessionRepo(db *sql.DB) *PostgresBrowserSessionRepo {
	return &PostgresBrowserSessionRepo{db: db}
}

// FindByID は指定IDの保存行を取得する。見つからない場合はnilを返す。
func (r *PostgresBrowserSessionRepo) FindByID(ctx context.Context, id string) (*model.BrowserSession, error) {
	s := &model.BrowserSession{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, access_token, refresh_token, expires_at, created_at, updated_at
		 FROM browser_sessions
		 WHERE id = $1`,
		id,
	).Scan(&s.ID, &s.AccessToken, &s.RefreshToken, &s.ExpiresAt, &s.CreatedAt, &s.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find browser session: %w", err)
	}

	return s, nil
}

// Upsert は保存行を作成または更新する。created_atは初回作成時の値を維持する。
func (r *PostgresBrowserSessionRepo) Upsert(ctx context.Context, s *model.BrowserSession) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO browser_sessions (id, access_token, refresh_token, expires_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET
		   access_token  = EXCLUDED.access_token,
		   refresh_token = EXCLUDED.refresh_token,
		   expires_at    = EXCLUDED.expires_at,
		   updated_at    = EXCLUDED.updated_at`,
		s.ID, s.AccessToken, s.RefreshToken, s.ExpiresAt, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert browser session: %w", err)
	}
	return nil
}

// DeleteByID は指定IDの保存行を削除する。
func (r *PostgresBrowserSessionRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM browser_sessions WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete browser session: %w", err)
	}
	return nil
}

// DeleteUpdatedBefore はcutoffより前に更新された保存行を削除する。
func (r *PostgresBrowserSessionRepo) DeleteUpdatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM browser_sessions WHERE updated_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete idle browser sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ BrowserSessionRepository = (*PostgresBrowserSessionRepo)(nil)
