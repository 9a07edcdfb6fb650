package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// метрики реестра и очистки
var (
	fileMissingTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gofiledrop_registry_file_missing_total",
		Help: "Valid tokens whose file record or blob was missing",
	})

	filesRegisteredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gofiledrop_registry_files_registered_total",
		Help: "Files committed to the registry",
	})

	codeConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gofiledrop_registry_code_conflicts_total",
		Help: "Generated access codes rejected because they were already taken",
	})

	reaperRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gofiledrop_reaper_runs_total",
		Help: "Completed reaper sweeps",
	})

	reaperSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gofiledrop_reaper_skipped_total",
		Help: "Sweeps skipped because the previous one was still running",
	})

	reaperTokensExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gofiledrop_reaper_tokens_expired_total",
		Help: "Expired access codes and links removed by the reaper",
	})

	reaperFilesDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gofiledrop_reaper_files_deleted_total",
		Help: "Orphan files removed by the reaper",
	})

	reaperBlobErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gofiledrop_reaper_blob_errors_total",
		Help: "Blob deletions that failed during a sweep",
	})

	reaperDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gofiledrop_reaper_duration_seconds",
		Help:    "Reaper sweep duration",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})

	// строки в таблицах после последней очистки
	recordsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gofiledrop_records",
		Help: "Rows per table after the last sweep",
	}, []string{"table"})
)
