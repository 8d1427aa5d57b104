// Package cleanup は期限切れワンタイムコードの自動削除ジョブを提供する。
// 検証で使われなかったコードは有効期限を過ぎても残るため、
// 一定間隔のバッチでまとめて削除する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/notesapp/internal/metrics"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// OTPCleanupJob は有効期限切れワンタイムコードの削除ジョブ。
// 冪等な削除処理のため、serveとworkerの両方から同時に実行しても問題ない。
type OTPCleanupJob struct {
	db      Executor
	logger  *slog.Logger
	metrics metrics.MetricsCollector // nilの場合は記録しない
	now     func() time.Time
}

// NewOTPCleanupJob は新しいOTPCleanupJobを生成する。
func NewOTPCleanupJob(db Executor, logger *slog.Logger, collector metrics.MetricsCollector) *OTPCleanupJob {
	return &OTPCleanupJob{
		db:      db,
		logger:  logger,
		metrics: collector,
		now:     time.Now,
	}
}

// Run はexpires_atが現在時刻以前のコードを削除し、削除件数を返す。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *OTPCleanupJob) Run(ctx context.Context) (int64, error) {
	start := time.Now()

	query := `DELETE FROM one_time_codes WHERE expires_at <= $1`
	result, err := j.db.ExecContext(ctx, query, j.now())
	if err != nil {
		j.logger.Error("ワンタイムコードのクリーンアップに失敗しました",
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("ワンタイムコードのクリーンアップに失敗: %w", err)
	}

	deletedCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("削除件数の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("削除件数の取得に失敗: %w", err)
	}

	if j.metrics != nil {
		j.metrics.RecordOTPCleanup(deletedCount)
	}

	duration := time.Since(start)
	j.logger.Info("ワンタイムコードのクリーンアップが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return deletedCount, nil
}

// Start は起動直後に1回実行し、その後interval間隔でRunを繰り返す。
// コンテキストがキャンセルされるまでブロックする。
func (j *OTPCleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("ワンタイムコードのクリーンアップを開始しました",
		slog.Duration("interval", interval),
	)

	// エラーはRun内でログ出力済みのため、ここでは継続のみ行う
	_, _ = j.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("ワンタイムコードのクリーンアップを停止しました")
			return
		case <-ticker.C:
			_, _ = j.Run(ctx)
		}
	}
}
