package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-pos/internal/jobs"
	"github.com/odyssey-erp/odyssey-pos/internal/sales"
)

// ReportWarmer computes and caches a sales report.
type ReportWarmer interface {
	ReportForRange(ctx context.Context, rng sales.DateRange) (sales.Report, error)
}

// ReportWarmupJob precomputes today's and month-to-date sales reports.
type ReportWarmupJob struct {
	Reports ReportWarmer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewReportWarmupJob wires dependencies for the warmup handler.
func NewReportWarmupJob(reports ReportWarmer, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReportWarmupJob {
	return &ReportWarmupJob{
		Reports: reports,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes report warmup tasks.
func (j *ReportWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Reports == nil {
		return errors.New("report warmup: handler not configured")
	}
	var payload ReportWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskSalesReportWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	now := j.now()
	logger := j.logger()
	for _, w := range warmupRanges(now) {
		// Keep a slow report from holding the worker.
		rangeCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
		rep, err := j.Reports.ReportForRange(rangeCtx, w.rng)
		cancel()
		if err != nil {
			resultErr = err
			logger.Error("warm report", slog.String("range", w.name), slog.Any("error", err))
			return resultErr
		}
		logger.Info("warmed report", slog.String("range", w.name), slog.Int("sales", rep.SalesCount))
	}
	logger.Info("completed report warmup", slog.Duration("duration", time.Since(now)))
	return resultErr
}

type namedRange struct {
	name string
	rng  sales.DateRange
}

func warmupRanges(now time.Time) []namedRange {
	day := now.Format("2006-01-02")
	today, _ := sales.ParseDateRange(day, day)
	month, _ := sales.ParseDateRange(now.Format("2006-01")+"-01", day)
	return []namedRange{{name: "today", rng: today}, {name: "month_to_date", rng: month}}
}

func (j *ReportWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskSalesReportWarmup))
	}
	return slog.Default().With(slog.String("job", TaskSalesReportWarmup))
}

func (j *ReportWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ReportWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
