// Package cleanup は期限切れダッシュボードセッションの定期削除ジョブを提供する。
// dashboard_sessionsテーブルの期限切れ行を削除し、メモリ上のセッションも破棄する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Purger はメモリ上の期限切れセッションを破棄する。session.Managerが実装する。
type Purger interface {
	PurgeExpired() int
}

// SessionCleanupJob は期限切れセッションの削除ジョブ。冪等に何度実行してもよい。
type SessionCleanupJob struct {
	db     Executor
	purger Purger
	logger *slog.Logger
	// GraceHours は期限切れからこの時間が経過した行だけを削除する（デフォルト: 0）。
	GraceHours int
}

// NewSessionCleanupJob は新しいSessionCleanupJobを生成する。purgerはnilでもよい。
func NewSessionCleanupJob(db Executor, purger Purger, logger *slog.Logger) *SessionCleanupJob {
	return &SessionCleanupJob{
		db:     db,
		purger: purger,
		logger: logger,
	}
}

// Run はexpires_atがGraceHours時間前より古いセッションを削除する。
// 削除対象がない場合でもエラーにならない。
func (j *SessionCleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	interval := fmt.Sprintf("%d hours", j.GraceHours)

	query := `DELETE FROM dashboard_sessions WHERE expires_at < now() - $1::interval`
	result, err := j.db.ExecContext(ctx, query, interval)
	if err != nil {
		j.logger.Error("セッションクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("grace_hours", j.GraceHours),
		)
		return fmt.Errorf("セッションクリーンアップの実行に失敗: %w", err)
	}

	deletedCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("削除件数の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("削除件数の取得に失敗: %w", err)
	}

	purged := 0
	if j.purger != nil {
		purged = j.purger.PurgeExpired()
	}

	duration := time.Since(start)
	j.logger.Info("セッションクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Int("purged_live", purged),
		slog.Int("grace_hours", j.GraceHours),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// Start はintervalごとにRunを実行する。ctxがキャンセルされるまでブロックする。
func (j *SessionCleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
