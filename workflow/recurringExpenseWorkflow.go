package workflow

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/backoffice_backend/config"
	"bitbucket.org/mmdatafocus/backoffice_backend/models"
	"github.com/bsm/redislock"
	"go.opentelemetry.io/otel"
)

const moduleName = "workflow"

var tracer = otel.Tracer("backoffice-backend/workflow")

// GenerateRecurringExpensesForTenant is the externally-triggered generation
// entry point (cron, admin endpoint). A best-effort distributed lock keeps
// overlapping triggers from doing duplicate work; the generation itself is
// idempotent either way, the lock only saves wasted transactions.
func GenerateRecurringExpensesForTenant(ctx context.Context, h *models.TenantHandle) ([]*models.Expense, error) {
	logger := config.GetLogger()

	ctx, span := tracer.Start(ctx, "GenerateRecurringExpensesForTenant")
	defer span.End()

	if locker := config.GetRedisLock(); locker != nil {
		lock, err := locker.Obtain(ctx, "recurringExpenses:"+h.TenantId, 2*time.Minute, nil)
		if err != nil {
			if errors.Is(err, redislock.ErrNotObtained) {
				logger.WithField("tenantId", h.TenantId).
					Info("recurring expense generation already running, skipping")
				return nil, nil
			}
			config.LogError(logger, moduleName, "GenerateRecurringExpensesForTenant", "obtain lock", h.TenantId, err)
			return nil, err
		}
		defer lock.Release(ctx)
	}

	created, err := models.GenerateRecurringExpenses(ctx, h)
	if err != nil {
		config.LogError(logger, moduleName, "GenerateRecurringExpensesForTenant", "generate", h.TenantId, err)
		return nil, err
	}
	if len(created) > 0 {
		logger.WithField("tenantId", h.TenantId).
			WithField("generated", len(created)).
			Info("recurring expenses generated")
	}
	return created, nil
}
