package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskInventoryLowStockScan lists products under their low-stock threshold.
	TaskInventoryLowStockScan = "inventory:low_stock_scan"
	// TaskSalesReportWarmup precomputes common sales reports into the cache.
	TaskSalesReportWarmup = "sales:report_warmup"
)

// LowStockScanPayload narrows the scan to products touched by a sale. An
// empty list scans the whole catalog.
type LowStockScanPayload struct {
	ProductIDs []uuid.UUID `json:"product_ids,omitempty"`
	Trigger    string      `json:"trigger"`
}

// NewLowStockScanTask constructs an Asynq task for a low-stock scan.
func NewLowStockScanTask(payload LowStockScanPayload) (*asynq.Task, error) {
	if payload.Trigger == "" {
		payload.Trigger = "cron"
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInventoryLowStockScan, data, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// ReportWarmupPayload carries scheduling metadata.
type ReportWarmupPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewReportWarmupTask constructs an Asynq task for report warmup.
func NewReportWarmupTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(ReportWarmupPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSalesReportWarmup, body, asynq.Queue(QueueDefault), asynq.MaxRetry(1)), nil
}
