package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/backoffice_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ExpenseBudget caps spend for one (branch, category) over one period slot.
// PeriodNumber is the month (1-12) for monthly, the quarter (1-4) for
// quarterly, and 1 for yearly budgets.
type ExpenseBudget struct {
	ID           int             `gorm:"primary_key" json:"id"`
	BranchId     int             `gorm:"uniqueIndex:idx_budget_slot;not null" json:"branch_id" binding:"required"`
	CategoryId   int             `gorm:"uniqueIndex:idx_budget_slot;not null" json:"category_id" binding:"required"`
	Period       BudgetPeriod    `gorm:"uniqueIndex:idx_budget_slot;size:20;not null" json:"period" binding:"required"`
	Year         int             `gorm:"uniqueIndex:idx_budget_slot;not null" json:"year" binding:"required"`
	PeriodNumber int             `gorm:"uniqueIndex:idx_budget_slot;not null;default:1" json:"period_number"`
	Amount       decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	CreatedBy    int             `gorm:"default:null" json:"created_by"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewExpenseBudget struct {
	BranchId     int             `json:"branch_id" binding:"required"`
	CategoryId   int             `json:"category_id" binding:"required"`
	Period       BudgetPeriod    `json:"period" binding:"required"`
	Year         int             `json:"year" binding:"required"`
	PeriodNumber int             `json:"period_number"`
	Amount       decimal.Decimal `json:"amount" binding:"required"`
}

// BudgetUtilization is the live spend position against one budget. Spend
// counts approved and paid expenses dated inside the budget's period, in
// base currency.
type BudgetUtilization struct {
	Budget     *ExpenseBudget  `json:"budget"`
	Spent      decimal.Decimal `json:"spent"`
	Remaining  decimal.Decimal `json:"remaining"`
	Percent    decimal.Decimal `json:"percent"`
	OverBudget bool            `json:"over_budget"`
}

func (input *NewExpenseBudget) validate(tx *gorm.DB) error {
	if err := validateResourceId[Branch](tx, input.BranchId); err != nil {
		return fmt.Errorf("branch: %w", err)
	}
	if err := validateResourceId[ExpenseCategory](tx, input.CategoryId); err != nil {
		return fmt.Errorf("category: %w", err)
	}
	if !input.Amount.IsPositive() {
		return fmt.Errorf("budget amount must be positive: %w", utils.ErrZeroBudget)
	}
	switch input.Period {
	case BudgetPeriodMonthly:
		if input.PeriodNumber < 1 || input.PeriodNumber > 12 {
			return fmt.Errorf("monthly budget needs period number 1-12, got %d", input.PeriodNumber)
		}
	case BudgetPeriodQuarterly:
		if input.PeriodNumber < 1 || input.PeriodNumber > 4 {
			return fmt.Errorf("quarterly budget needs period number 1-4, got %d", input.PeriodNumber)
		}
	case BudgetPeriodYearly:
		if input.PeriodNumber != 0 && input.PeriodNumber != 1 {
			return fmt.Errorf("yearly budget takes no period number, got %d", input.PeriodNumber)
		}
	default:
		return fmt.Errorf("unknown budget period %q", input.Period)
	}
	return nil
}

// periodRange resolves a budget slot to a half-open [start, end) window in
// the tenant's timezone.
func (b *ExpenseBudget) periodRange(timezone string) (time.Time, time.Time, error) {
	location := time.UTC
	if timezone != "" {
		loc, err := time.LoadLocation(timezone)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		location = loc
	}

	switch b.Period {
	case BudgetPeriodMonthly:
		start := time.Date(b.Year, time.Month(b.PeriodNumber), 1, 0, 0, 0, 0, location)
		return start, start.AddDate(0, 1, 0), nil
	case BudgetPeriodQuarterly:
		start := time.Date(b.Year, time.Month((b.PeriodNumber-1)*3+1), 1, 0, 0, 0, 0, location)
		return start, start.AddDate(0, 3, 0), nil
	case BudgetPeriodYearly:
		start := time.Date(b.Year, time.January, 1, 0, 0, 0, 0, location)
		return start, start.AddDate(1, 0, 0), nil
	}
	return time.Time{}, time.Time{}, fmt.Errorf("unknown budget period %q", b.Period)
}

func CreateExpenseBudget(ctx context.Context, h *TenantHandle, input *NewExpenseBudget) (*ExpenseBudget, error) {
	periodNumber := input.PeriodNumber
	if input.Period == BudgetPeriodYearly {
		periodNumber = 1
	}

	var budget ExpenseBudget
	err := h.runInTenantTransaction(ctx, func(tx *gorm.DB) error {
		if err := input.validate(tx); err != nil {
			return err
		}
		budget = ExpenseBudget{
			BranchId:     input.BranchId,
			CategoryId:   input.CategoryId,
			Period:       input.Period,
			Year:         input.Year,
			PeriodNumber: periodNumber,
			Amount:       input.Amount,
			CreatedBy:    actorIdFromContext(ctx),
		}
		if err := tx.Create(&budget).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("budget for this branch, category and period already exists: %w", utils.ErrDuplicateKey)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &budget, nil
}

func UpdateExpenseBudgetAmount(ctx context.Context, h *TenantHandle, id int, amount decimal.Decimal) (*ExpenseBudget, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("budget amount must be positive: %w", utils.ErrZeroBudget)
	}
	var budget *ExpenseBudget
	err := h.runInTenantTransaction(ctx, func(tx *gorm.DB) error {
		var err error
		budget, err = fetchModelForUpdate[ExpenseBudget](tx, id)
		if err != nil {
			return fmt.Errorf("budget: %w", err)
		}
		if err := tx.Model(budget).Update("Amount", amount).Error; err != nil {
			return err
		}
		budget.Amount = amount
		return nil
	})
	if err != nil {
		return nil, err
	}
	return budget, nil
}

func DeleteExpenseBudget(ctx context.Context, h *TenantHandle, id int) error {
	return h.runInTenantTransaction(ctx, func(tx *gorm.DB) error {
		if err := validateResourceId[ExpenseBudget](tx, id); err != nil {
			return fmt.Errorf("budget: %w", err)
		}
		return tx.Delete(&ExpenseBudget{}, id).Error
	})
}

// GetBudgetUtilization reports spend against one budget. A zero budget
// amount cannot produce a percentage and fails with ErrZeroBudget.
func GetBudgetUtilization(ctx context.Context, h *TenantHandle, id int) (*BudgetUtilization, error) {
	db := h.DB(ctx)
	budget, err := fetchModel[ExpenseBudget](db, id)
	if err != nil {
		return nil, fmt.Errorf("budget: %w", err)
	}
	if budget.Amount.IsZero() {
		return nil, fmt.Errorf("budget %d has zero amount: %w", id, utils.ErrZeroBudget)
	}

	settings, err := h.Settings(ctx)
	if err != nil {
		return nil, err
	}
	start, end, err := budget.periodRange(settings.Timezone)
	if err != nil {
		return nil, err
	}

	var spent decimal.NullDecimal
	err = db.Model(&Expense{}).
		Select("SUM(base_amount)").
		Where("branch_id = ? AND category_id = ?", budget.BranchId, budget.CategoryId).
		Where("expense_date >= ? AND expense_date < ?", start, end).
		Where("current_status IN ?", []ExpenseStatus{ExpenseStatusApproved, ExpenseStatusPaid}).
		Scan(&spent).Error
	if err != nil {
		return nil, err
	}

	spentAmount := decimal.Zero
	if spent.Valid {
		spentAmount = spent.Decimal
	}
	percent := spentAmount.Div(budget.Amount).Mul(decimal.NewFromInt(100))
	return &BudgetUtilization{
		Budget:     budget,
		Spent:      spentAmount,
		Remaining:  budget.Amount.Sub(spentAmount),
		Percent:    percent,
		OverBudget: spentAmount.GreaterThan(budget.Amount),
	}, nil
}

func GetExpenseBudgets(ctx context.Context, h *TenantHandle, branchId *int, year *int) ([]*ExpenseBudget, error) {
	dbCtx := h.DB(ctx)
	if branchId != nil && *branchId > 0 {
		dbCtx = dbCtx.Where("branch_id = ?", *branchId)
	}
	if year != nil && *year > 0 {
		dbCtx = dbCtx.Where("year = ?", *year)
	}
	var budgets []*ExpenseBudget
	if err := dbCtx.Order("year DESC, period, period_number").Find(&budgets).Error; err != nil {
		return nil, err
	}
	return budgets, nil
}
