package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/backoffice_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Expense is one operating cost entry. Amount is the tendered figure in the
// entry's currency; BaseAmount carries the normalized base-currency value
// with the rate frozen at creation time.
//
// Recurring parents carry a frequency; generated occurrences point back via
// ParentExpenseId and OccurrenceDate (see recurringExpense.go).
type Expense struct {
	ID               int                `gorm:"primary_key" json:"id"`
	ExpenseNumber    string             `gorm:"uniqueIndex;size:32;not null" json:"expense_number"`
	BranchId         int                `gorm:"index;not null" json:"branch_id" binding:"required"`
	CategoryId       int                `gorm:"index;not null" json:"category_id" binding:"required"`
	Amount           decimal.Decimal    `gorm:"type:decimal(20,4);not null" json:"amount"`
	CurrencyId       int                `gorm:"not null" json:"currency_id"`
	ExchangeRate     decimal.Decimal    `gorm:"type:decimal(20,6);not null" json:"exchange_rate"`
	BaseAmount       decimal.Decimal    `gorm:"type:decimal(20,4);not null" json:"base_amount"`
	AmountPaid       decimal.Decimal    `gorm:"type:decimal(20,4);not null;default:0" json:"amount_paid"`
	ExpenseDate      time.Time          `gorm:"index;not null" json:"expense_date"`
	Description      string             `gorm:"size:255" json:"description"`
	CurrentStatus    ExpenseStatus      `gorm:"size:20;not null" json:"current_status"`
	RejectionReason  string             `gorm:"size:255" json:"rejection_reason"`
	IsRecurring      *bool              `gorm:"not null;default:false" json:"is_recurring"`
	Frequency        RecurringFrequency `gorm:"size:20;default:null" json:"frequency"`
	RecurringEndDate *time.Time         `gorm:"default:null" json:"recurring_end_date"`
	ParentExpenseId  *int               `gorm:"index;default:null" json:"parent_expense_id"`
	OccurrenceDate   *time.Time         `gorm:"default:null" json:"occurrence_date"`
	CreatedBy        int                `gorm:"default:null" json:"created_by"`
	ReviewedBy       int                `gorm:"default:null" json:"reviewed_by"`
	ReviewedAt       *time.Time         `gorm:"default:null" json:"reviewed_at"`
	CreatedAt        time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

// AmountDue is the outstanding base-currency balance.
func (e *Expense) AmountDue() decimal.Decimal {
	return e.BaseAmount.Sub(e.AmountPaid)
}

type NewExpense struct {
	BranchId         int                `json:"branch_id" binding:"required"`
	CategoryId       int                `json:"category_id" binding:"required"`
	Amount           decimal.Decimal    `json:"amount" binding:"required"`
	CurrencyId       int                `json:"currency_id" binding:"required"`
	ExpenseDate      *time.Time         `json:"expense_date"`
	Description      string             `json:"description"`
	IsRecurring      bool               `json:"is_recurring"`
	Frequency        RecurringFrequency `json:"frequency"`
	RecurringEndDate *time.Time         `json:"recurring_end_date"`
}

func (input *NewExpense) validate(tx *gorm.DB) error {
	if err := validateResourceId[Branch](tx, input.BranchId); err != nil {
		return fmt.Errorf("branch: %w", err)
	}
	category, err := fetchModel[ExpenseCategory](tx, input.CategoryId)
	if err != nil {
		return fmt.Errorf("category: %w", err)
	}
	if category.BranchId != input.BranchId {
		return fmt.Errorf("category %d belongs to branch %d, not %d: %w",
			category.ID, category.BranchId, input.BranchId, utils.ErrCrossBranchReference)
	}
	if !input.Amount.IsPositive() {
		return fmt.Errorf("expense amount must be positive")
	}
	if input.IsRecurring {
		switch input.Frequency {
		case RecurringFrequencyMonthly, RecurringFrequencyQuarterly, RecurringFrequencyYearly:
		default:
			return fmt.Errorf("recurring expense needs a frequency, got %q", input.Frequency)
		}
		if input.RecurringEndDate != nil {
			startDate := input.ExpenseDate
			if startDate != nil && !input.RecurringEndDate.After(*startDate) {
				return fmt.Errorf("recurring end date must be after the expense date")
			}
		}
	}
	return nil
}

func CreateExpense(ctx context.Context, h *TenantHandle, input *NewExpense) (*Expense, error) {
	var expense Expense
	err := h.runInTenantTransaction(ctx, func(tx *gorm.DB) error {
		created, err := createExpenseTx(tx, h, ctx, input, nil, nil)
		if err != nil {
			return err
		}
		expense = *created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &expense, nil
}

// createExpenseTx builds one expense row inside the caller's transaction.
// parentId/occurrenceDate are set only for generated recurring occurrences.
func createExpenseTx(tx *gorm.DB, h *TenantHandle, ctx context.Context, input *NewExpense, parentId *int, occurrenceDate *time.Time) (*Expense, error) {
	if err := input.validate(tx); err != nil {
		return nil, err
	}

	baseAmount, rate, err := normalizeAmountTx(tx, h, input.Amount, input.CurrencyId)
	if err != nil {
		return nil, err
	}

	expenseDate := h.Now()
	if input.ExpenseDate != nil {
		expenseDate = *input.ExpenseDate
	}
	number, err := nextDocumentNumber(tx, DocumentTypeExpense, h.Now())
	if err != nil {
		return nil, err
	}

	isRecurring := utils.NewFalse()
	if input.IsRecurring {
		isRecurring = utils.NewTrue()
	}
	expense := Expense{
		ExpenseNumber:    number,
		BranchId:         input.BranchId,
		CategoryId:       input.CategoryId,
		Amount:           input.Amount,
		CurrencyId:       input.CurrencyId,
		ExchangeRate:     rate,
		BaseAmount:       baseAmount,
		AmountPaid:       decimal.Zero,
		ExpenseDate:      expenseDate,
		Description:      input.Description,
		CurrentStatus:    ExpenseStatusDraft,
		IsRecurring:      isRecurring,
		Frequency:        input.Frequency,
		RecurringEndDate: input.RecurringEndDate,
		ParentExpenseId:  parentId,
		OccurrenceDate:   occurrenceDate,
		CreatedBy:        actorIdFromContext(ctx),
	}
	if err := tx.Create(&expense).Error; err != nil {
		return nil, err
	}
	return &expense, nil
}

// UpdateExpense rewrites a draft. The amount is re-normalized at the current
// rate since the entry has not entered the approval pipeline yet.
func UpdateExpense(ctx context.Context, h *TenantHandle, id int, input *NewExpense) (*Expense, error) {
	var expense *Expense
	err := h.runInTenantTransaction(ctx, func(tx *gorm.DB) error {
		var err error
		expense, err = fetchModelForUpdate[Expense](tx, id)
		if err != nil {
			return fmt.Errorf("expense: %w", err)
		}
		if expense.CurrentStatus != ExpenseStatusDraft {
			return fmt.Errorf("expense %s is %s: %w", expense.ExpenseNumber, expense.CurrentStatus, utils.ErrInvalidStateTransition)
		}
		if err := input.validate(tx); err != nil {
			return err
		}

		baseAmount, rate, err := normalizeAmountTx(tx, h, input.Amount, input.CurrencyId)
		if err != nil {
			return err
		}

		updates := map[string]interface{}{
			"BranchId":         input.BranchId,
			"CategoryId":       input.CategoryId,
			"Amount":           input.Amount,
			"CurrencyId":       input.CurrencyId,
			"ExchangeRate":     rate,
			"BaseAmount":       baseAmount,
			"Description":      input.Description,
			"IsRecurring":      input.IsRecurring,
			"Frequency":        input.Frequency,
			"RecurringEndDate": input.RecurringEndDate,
		}
		if input.ExpenseDate != nil {
			updates["ExpenseDate"] = *input.ExpenseDate
		}
		return tx.Model(expense).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	return expense, nil
}

func SubmitExpense(ctx context.Context, h *TenantHandle, id int) (*Expense, error) {
	var expense *Expense
	err := h.runInTenantTransaction(ctx, func(tx *gorm.DB) error {
		var err error
		expense, err = fetchModelForUpdate[Expense](tx, id)
		if err != nil {
			return fmt.Errorf("expense: %w", err)
		}
		if expense.CurrentStatus != ExpenseStatusDraft {
			return fmt.Errorf("expense %s is %s: %w", expense.ExpenseNumber, expense.CurrentStatus, utils.ErrInvalidStateTransition)
		}
		if err := tx.Model(expense).Update("CurrentStatus", ExpenseStatusSubmitted).Error; err != nil {
			return err
		}
		expense.CurrentStatus = ExpenseStatusSubmitted
		return nil
	})
	if err != nil {
		return nil, err
	}
	return expense, nil
}

// ReviewExpense settles a submitted expense either way. Rejection without a
// reason is refused; the reason is stored for the audit trail.
func ReviewExpense(ctx context.Context, h *TenantHandle, id int, approve bool, rejectionReason string) (*Expense, error) {
	var expense *Expense
	err := h.runInTenantTransaction(ctx, func(tx *gorm.DB) error {
		var err error
		expense, err = fetchModelForUpdate[Expense](tx, id)
		if err != nil {
			return fmt.Errorf("expense: %w", err)
		}
		if expense.CurrentStatus != ExpenseStatusSubmitted {
			return fmt.Errorf("expense %s is %s: %w", expense.ExpenseNumber, expense.CurrentStatus, utils.ErrInvalidStateTransition)
		}

		now := h.Now()
		updates := map[string]interface{}{
			"ReviewedBy": actorIdFromContext(ctx),
			"ReviewedAt": now,
		}
		if approve {
			updates["CurrentStatus"] = ExpenseStatusApproved
			expense.CurrentStatus = ExpenseStatusApproved
		} else {
			if rejectionReason == "" {
				return fmt.Errorf("rejecting expense %s: %w", expense.ExpenseNumber, utils.ErrMissingRejectionReason)
			}
			updates["CurrentStatus"] = ExpenseStatusRejected
			updates["RejectionReason"] = rejectionReason
			expense.CurrentStatus = ExpenseStatusRejected
			expense.RejectionReason = rejectionReason
		}
		expense.ReviewedAt = &now
		return tx.Model(expense).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	return expense, nil
}

// DeleteExpense removes a draft. Anything in or past review is part of the
// audit trail and stays.
func DeleteExpense(ctx context.Context, h *TenantHandle, id int) error {
	return h.runInTenantTransaction(ctx, func(tx *gorm.DB) error {
		expense, err := fetchModelForUpdate[Expense](tx, id)
		if err != nil {
			return fmt.Errorf("expense: %w", err)
		}
		if expense.CurrentStatus != ExpenseStatusDraft {
			return fmt.Errorf("expense %s is %s: %w", expense.ExpenseNumber, expense.CurrentStatus, utils.ErrInvalidStateTransition)
		}
		return tx.Delete(&Expense{}, id).Error
	})
}

func GetExpense(ctx context.Context, h *TenantHandle, id int) (*Expense, error) {
	return fetchModel[Expense](h.DB(ctx), id)
}

func GetExpenses(ctx context.Context, h *TenantHandle, branchId *int, status *ExpenseStatus) ([]*Expense, error) {
	dbCtx := h.DB(ctx)
	if branchId != nil && *branchId > 0 {
		dbCtx = dbCtx.Where("branch_id = ?", *branchId)
	}
	if status != nil && *status != "" {
		dbCtx = dbCtx.Where("current_status = ?", *status)
	}
	var expenses []*Expense
	if err := dbCtx.Order("expense_date DESC, id DESC").Find(&expenses).Error; err != nil {
		return nil, err
	}
	return expenses, nil
}
