package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// InvoiceOverdueSweepJob flags sent invoices past their due date as
// overdue. Paid and cancelled invoices are never touched.
type InvoiceOverdueSweepJob struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewInvoiceOverdueSweepJob constructs the job.
func NewInvoiceOverdueSweepJob(pool *pgxpool.Pool, logger *slog.Logger) *InvoiceOverdueSweepJob {
	return &InvoiceOverdueSweepJob{pool: pool, logger: logger}
}

// Handle processes TaskInvoiceOverdueSweep tasks.
func (j *InvoiceOverdueSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload InvoiceOverdueSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tag, err := j.pool.Exec(ctx, `
		UPDATE invoices SET status = 'overdue', updated_at = NOW()
		WHERE status = 'sent' AND due_date < NOW()`)
	if err != nil {
		j.logger.Error("overdue sweep failed", slog.Any("error", err))
		return err
	}
	if n := tag.RowsAffected(); n > 0 {
		j.logger.Info("invoices marked overdue", slog.Int64("count", n))
	}
	return nil
}
