package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/kfcempoyee/gofiledrop/internal/blob"
)

// SweepResult - итог одного прохода очистки.
type SweepResult struct {
	// удалено истекших кодов и ссылок
	ExpiredTokens int64
	// найдено файлов без токенов
	Orphans int
	// удалено записей файлов
	FilesDeleted int
	// блобы, которые не удалось удалить
	BlobErrors int
	// ошибки репозитория
	Errors int
	Duration time.Duration
	// проход пропущен, предыдущий ещё работает
	Skipped bool
}

// Reaper периодически удаляет истекшие токены и файлы, на которые больше никто не ссылается.
type Reaper struct {
	repo     FileRepoInterface
	store    blob.Store
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	// одновременно идёт не больше одного прохода
	sem *semaphore.Weighted

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewReaper(repo FileRepoInterface, store blob.Store, interval time.Duration, logger *slog.Logger) *Reaper {
	return &Reaper{
		repo:     repo,
		store:    store,
		interval: interval,
		logger:   logger.With(slog.String("component", "reaper")),
		now:      time.Now,
		sem:      semaphore.NewWeighted(1),
	}
}

// Start запускает фоновую очистку: один проход сразу, дальше по тикеру.
// повторный вызов без Stop ничего не делает.
func (r *Reaper) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	go r.run(ctx, r.done)

	r.logger.Info("reaper started", slog.String("interval", r.interval.String()))
}

// Stop останавливает очистку и ждёт завершения текущего прохода.
func (r *Reaper) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel == nil {
		return
	}

	r.cancel()
	<-r.done
	r.cancel, r.done = nil, nil

	r.logger.Info("reaper stopped")
}

func (r *Reaper) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	r.RunOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет один проход очистки:
//  1. удаляет истекшие коды и ссылки
//  2. находит файлы без токенов
//  3. удаляет каждый такой файл вместе с блобом, если на него так и не сослались
//
// ошибка на одном файле не останавливает остальные.
func (r *Reaper) RunOnce(ctx context.Context) *SweepResult {
	if !r.sem.TryAcquire(1) {
		reaperSkippedTotal.Inc()
		r.logger.Warn("sweep skipped, previous one still running")
		return &SweepResult{Skipped: true}
	}
	defer r.sem.Release(1)

	start := time.Now()
	result := &SweepResult{}

	r.logger.Debug("sweep started")

	expired, err := r.repo.DeleteExpiredTokens(ctx, r.now())
	if err != nil {
		result.Errors++
		r.logger.Error("error deleting expired tokens", slog.String("error", err.Error()))
	}
	result.ExpiredTokens = expired

	orphans, err := r.repo.ListOrphans(ctx)
	if err != nil {
		result.Errors++
		r.logger.Error("error listing orphan files", slog.String("error", err.Error()))
	}
	result.Orphans = len(orphans)

	for _, file := range orphans {
		if ctx.Err() != nil {
			break
		}
		r.deleteOrphan(ctx, file.ID, result)
	}

	r.refreshGauges(ctx)

	result.Duration = time.Since(start)

	reaperRunsTotal.Inc()
	reaperTokensExpiredTotal.Add(float64(result.ExpiredTokens))
	reaperFilesDeletedTotal.Add(float64(result.FilesDeleted))
	reaperBlobErrorsTotal.Add(float64(result.BlobErrors))
	reaperDurationSeconds.Observe(result.Duration.Seconds())

	r.logger.Info("sweep finished",
		slog.Int64("expired_tokens", result.ExpiredTokens),
		slog.Int("orphans", result.Orphans),
		slog.Int("files_deleted", result.FilesDeleted),
		slog.Int("blob_errors", result.BlobErrors),
		slog.Int("errors", result.Errors),
		slog.Duration("duration", result.Duration),
	)

	return result
}

func (r *Reaper) deleteOrphan(ctx context.Context, id string, result *SweepResult) {
	blobFailed := false

	// блоб удаляется внутри транзакции удаления записи
	deleted, err := r.repo.DeleteOrphan(ctx, id, func() {
		if err := r.store.Delete(ctx, id); err != nil {
			blobFailed = true
			r.logger.Error("error deleting blob",
				slog.String("file_id", id),
				slog.String("error", err.Error()),
			)
		}
	})
	if err != nil {
		result.Errors++
		r.logger.Error("error deleting orphan file",
			slog.String("file_id", id),
			slog.String("error", err.Error()),
		)
		return
	}
	if !deleted {
		// пока шла очистка, на файл выпустили ссылку
		r.logger.Debug("orphan re-referenced, kept", slog.String("file_id", id))
		return
	}

	result.FilesDeleted++
	if blobFailed {
		result.BlobErrors++
	}
}

func (r *Reaper) refreshGauges(ctx context.Context) {
	stats, err := r.repo.Stats(ctx)
	if err != nil {
		r.logger.Warn("error reading record stats", slog.String("error", err.Error()))
		return
	}

	recordsGauge.WithLabelValues("files").Set(float64(stats.Files))
	recordsGauge.WithLabelValues("access_codes").Set(float64(stats.Codes))
	recordsGauge.WithLabelValues("access_links").Set(float64(stats.Links))
}
