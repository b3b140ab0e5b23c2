package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/inventory"
)

// LowStockScanJob refreshes the cached low stock snapshot so dashboard
// reads stay cheap between requests.
type LowStockScanJob struct {
	service *inventory.Service
	logger  *slog.Logger
}

// NewLowStockScanJob constructs the job.
func NewLowStockScanJob(service *inventory.Service, logger *slog.Logger) *LowStockScanJob {
	return &LowStockScanJob{service: service, logger: logger}
}

// Handle processes TaskLowStockScan tasks.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload LowStockScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	count, err := j.service.RefreshLowStock(ctx)
	if err != nil {
		j.logger.Error("low stock scan failed", slog.Any("error", err))
		return err
	}
	j.logger.Info("low stock scan completed", slog.Int("products", count))
	return nil
}
