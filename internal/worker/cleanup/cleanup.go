// Package cleanup は定期メンテナンスジョブを提供する。
// 期限切れセッションの削除と、試用期限を過ぎたプランの失効を行う。
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hitoshi/wakr/internal/metrics"
)

// SessionPurger は期限切れセッションを削除する。
type SessionPurger interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// TrialExpirer は試用期限を過ぎたユーザーのステータスをexpiredにする。
type TrialExpirer interface {
	ExpireTrials(ctx context.Context, now time.Time) (int64, error)
}

// Job はメンテナンス処理の1回分。各処理は冪等。
type Job struct {
	sessions  SessionPurger
	trials    TrialExpirer
	collector metrics.MetricsCollector
	logger    *slog.Logger
	now       func() time.Time
}

// NewJob は新しいJobを生成する。
func NewJob(sessions SessionPurger, trials TrialExpirer, collector metrics.MetricsCollector, logger *slog.Logger) *Job {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Job{
		sessions:  sessions,
		trials:    trials,
		collector: collector,
		logger:    logger,
		now:       time.Now,
	}
}

// Run はセッション削除と試用失効を実行する。
// 一方が失敗してももう一方は実行し、エラーはまとめて返す。
func (j *Job) Run(ctx context.Context) error {
	start := time.Now()
	var errs []error

	deleted, err := j.sessions.DeleteExpired(ctx)
	if err != nil {
		j.logger.Error("期限切れセッションの削除に失敗しました",
			slog.String("error", err.Error()),
		)
		errs = append(errs, fmt.Errorf("セッション削除に失敗: %w", err))
	} else {
		j.collector.RecordCleanup("sessions", deleted)
	}

	expired, err := j.trials.ExpireTrials(ctx, j.now())
	if err != nil {
		j.logger.Error("試用プランの失効処理に失敗しました",
			slog.String("error", err.Error()),
		)
		errs = append(errs, fmt.Errorf("試用失効に失敗: %w", err))
	} else {
		j.collector.RecordCleanup("trials", expired)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	j.logger.Info("メンテナンスジョブが完了しました",
		slog.Int64("deleted_sessions", deleted),
		slog.Int64("expired_trials", expired),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Scheduler はcron式に従ってJobを実行する。
type Scheduler struct {
	cron   *cron.Cron
	job    *Job
	logger *slog.Logger
}

// NewScheduler はSchedulerを生成する。specは標準のcron式または"@every 1h"などの記述子。
func NewScheduler(job *Job, spec string, logger *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		job:    job,
		logger: logger,
	}
	if _, err := s.cron.AddFunc(spec, s.runOnce); err != nil {
		return nil, fmt.Errorf("cron式が不正です: %q: %w", spec, err)
	}
	return s, nil
}

// Start は起動直後に1回実行したあとスケジュールを開始し、ctxがキャンセルされるまでブロックする。
// 停止時は実行中のジョブの完了を待つ。
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("メンテナンススケジューラを開始しました")
	s.runOnce()

	s.cron.Start()
	<-ctx.Done()

	<-s.cron.Stop().Done()
	s.logger.Info("メンテナンススケジューラを停止しました")
}

func (s *Scheduler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if err := s.job.Run(ctx); err != nil {
		s.logger.Error("メンテナンスジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}
