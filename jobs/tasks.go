package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLowStockScan rebuilds the low stock snapshot.
	TaskLowStockScan = "inventory:lowstock_scan"
	// TaskInvoiceOverdueSweep flags sent invoices past their due date.
	TaskInvoiceOverdueSweep = "invoices:overdue_sweep"
)

// LowStockScanPayload carries scheduling metadata.
type LowStockScanPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewLowStockScanTask constructs the low stock scan task.
func NewLowStockScanTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(LowStockScanPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockScan, body, asynq.Queue(QueueDefault)), nil
}

// InvoiceOverdueSweepPayload carries scheduling metadata.
type InvoiceOverdueSweepPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewInvoiceOverdueSweepTask constructs the overdue sweep task.
func NewInvoiceOverdueSweepTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(InvoiceOverdueSweepPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInvoiceOverdueSweep, body, asynq.Queue(QueueDefault)), nil
}
