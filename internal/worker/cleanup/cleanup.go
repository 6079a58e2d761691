// Package cleanup は不要になったサインイン状態の定期削除ジョブを提供する。
// 保存済みブラウザセッションの期限切れ削除と、アイドル状態のWorkspaceの解放を行う。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SessionDeleter は保存済みブラウザセッションの一括削除。
// repository.BrowserSessionRepositoryが満たす。
type SessionDeleter interface {
	DeleteUpdatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SessionCleanupJob は最終更新から保持期間を超えたブラウザセッションを削除する。
// 冪等: 削除対象が無い場合でもエラーにならない。
type SessionCleanupJob struct {
	repo      SessionDeleter
	logger    *slog.Logger
	now       func() time.Time
	Retention time.Duration // 保存行の保持期間（デフォルト: 7日）
}

// NewSessionCleanupJob は新しいSessionCleanupJobを生成する。
func NewSessionCleanupJob(repo SessionDeleter, logger *slog.Logger) *SessionCleanupJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionCleanupJob{
		repo:      repo,
		logger:    logger,
		now:       time.Now,
		Retention: 7 * 24 * time.Hour,
	}
}

// Name はログに出すジョブ名を返す。
func (j *SessionCleanupJob) Name() string { return "session_cleanup" }

// Run はRetentionより前に更新されたブラウザセッションを削除する。
func (j *SessionCleanupJob) Run(ctx context.Context) error {
	start := time.Now()
	cutoff := j.now().Add(-j.Retention)

	deleted, err := j.repo.DeleteUpdatedBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error("ブラウザセッションのクリーンアップに失敗しました",
			slog.String("error", err.Error()),
			slog.Duration("retention", j.Retention),
		)
		return fmt.Errorf("ブラウザセッションのクリーンアップに失敗: %w", err)
	}

	j.logger.Info("ブラウザセッションのクリーンアップが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Duration("retention", j.Retention),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// IdleEvicter はアイドル状態のWorkspaceを解放する。workspace.Managerが満たす。
type IdleEvicter interface {
	EvictIdle(maxIdle time.Duration) int
}

// WorkspaceSweepJob は一定時間リクエストの無いWorkspaceを閉じる。
// サインイン状態は保存済みのため、次のリクエストで再び開かれる。
type WorkspaceSweepJob struct {
	workspaces IdleEvicter
	logger     *slog.Logger
	MaxIdle    time.Duration
}

// NewWorkspaceSweepJob は新しいWorkspaceSweepJobを生成する。
func NewWorkspaceSweepJob(workspaces IdleEvicter, maxIdle time.Duration, logger *slog.Logger) *WorkspaceSweepJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkspaceSweepJob{
		workspaces: workspaces,
		logger:     logger,
		MaxIdle:    maxIdle,
	}
}

// Name はログに出すジョブ名を返す。
func (j *WorkspaceSweepJob) Name() string { return "workspace_sweep" }

// Run はMaxIdleを超えてアイドルなWorkspaceを閉じる。
func (j *WorkspaceSweepJob) Run(ctx context.Context) error {
	n := j.workspaces.EvictIdle(j.MaxIdle)
	if n > 0 {
		j.logger.Info("アイドル状態のワークスペースを解放しました",
			slog.Int("evicted_count", n),
			slog.Duration("max_idle", j.MaxIdle),
		)
	}
	return nil
}
