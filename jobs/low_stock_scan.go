package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	jobmetrics "github.com/odyssey-erp/odyssey-pos/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// LowStockSource lists products under their threshold.
type LowStockSource interface {
	LowStock(ctx context.Context) ([]inventory.LowStockAlert, error)
}

// LowStockScanJob logs low-stock products and publishes their count as a gauge.
type LowStockScanJob struct {
	Catalog LowStockSource
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLowStockScanJob wires dependencies for the scan handler.
func NewLowStockScanJob(catalog LowStockSource, logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockScanJob {
	return &LowStockScanJob{Catalog: catalog, Logger: logger, Metrics: metrics}
}

// Handle processes low-stock scan tasks.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Catalog == nil {
		return errors.New("low stock scan: handler not configured")
	}
	var payload LowStockScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	start := time.Now()
	tracker := j.metrics().Track(TaskInventoryLowStockScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("trigger", payload.Trigger))
	alerts, err := j.Catalog.LowStock(ctx)
	if err != nil {
		resultErr = err
		logger.Error("list low stock products", slog.Any("error", err))
		return resultErr
	}
	j.metrics().SetLowStock(len(alerts))

	focus := make(map[uuid.UUID]struct{}, len(payload.ProductIDs))
	for _, id := range payload.ProductIDs {
		focus[id] = struct{}{}
	}
	reported := 0
	for _, a := range alerts {
		if len(focus) > 0 {
			if _, ok := focus[a.ProductID]; !ok {
				continue
			}
		}
		reported++
		logger.Warn("product below low stock threshold",
			slog.String("product_id", a.ProductID.String()),
			slog.String("name", a.Name),
			slog.Int("quantity", a.Quantity),
			slog.Int("threshold", a.Threshold),
		)
	}

	logger.Info("completed low stock scan",
		slog.Int("low_stock", len(alerts)),
		slog.Int("reported", reported),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *LowStockScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskInventoryLowStockScan))
	}
	return slog.Default().With(slog.String("job", TaskInventoryLowStockScan))
}

func (j *LowStockScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
