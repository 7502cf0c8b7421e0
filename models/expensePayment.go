package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/backoffice_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ExpensePayment settles an approved expense, possibly across several
// partial payments. The expense flips to paid once the cumulative base
// amount covers its base total.
type ExpensePayment struct {
	ID              int             `gorm:"primary_key" json:"id"`
	ExpenseId       int             `gorm:"index;not null" json:"expense_id"`
	Amount          decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	CurrencyId      int             `gorm:"not null" json:"currency_id"`
	ExchangeRate    decimal.Decimal `gorm:"type:decimal(20,6);not null" json:"exchange_rate"`
	BaseAmount      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"base_amount"`
	PaymentMethodId int             `gorm:"not null" json:"payment_method_id"`
	PaymentDate     time.Time       `gorm:"not null" json:"payment_date"`
	Notes           string          `gorm:"size:255" json:"notes"`
	CreatedBy       int             `gorm:"default:null" json:"created_by"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewExpensePayment struct {
	Amount          decimal.Decimal `json:"amount" binding:"required"`
	CurrencyId      int             `json:"currency_id" binding:"required"`
	PaymentMethodId int             `json:"payment_method_id" binding:"required"`
	PaymentDate     *time.Time      `json:"payment_date"`
	Notes           string          `json:"notes"`
}

func AddExpensePayment(ctx context.Context, h *TenantHandle, expenseId int, input *NewExpensePayment) (*ExpensePayment, error) {
	if !input.Amount.IsPositive() {
		return nil, fmt.Errorf("payment amount must be positive")
	}

	var payment ExpensePayment
	err := h.runInTenantTransaction(ctx, func(tx *gorm.DB) error {
		expense, err := fetchModelForUpdate[Expense](tx, expenseId)
		if err != nil {
			return fmt.Errorf("expense: %w", err)
		}
		if !expense.CurrentStatus.CanAcceptPayment() {
			return fmt.Errorf("expense %s is %s: %w", expense.ExpenseNumber, expense.CurrentStatus, utils.ErrInvalidStateTransition)
		}
		if err := validateResourceId[PaymentMethod](tx, input.PaymentMethodId); err != nil {
			return fmt.Errorf("payment method: %w", err)
		}

		baseAmount, rate, err := normalizeAmountTx(tx, h, input.Amount, input.CurrencyId)
		if err != nil {
			return err
		}

		newPaid := expense.AmountPaid.Add(baseAmount)
		if newPaid.Sub(expense.BaseAmount).GreaterThan(utils.RoundingEpsilon) {
			return fmt.Errorf("paid %s would exceed expense total %s: %w",
				newPaid.String(), expense.BaseAmount.String(), utils.ErrPaymentExceedsDue)
		}

		paymentDate := h.Now()
		if input.PaymentDate != nil {
			paymentDate = *input.PaymentDate
		}
		payment = ExpensePayment{
			ExpenseId:       expenseId,
			Amount:          input.Amount,
			CurrencyId:      input.CurrencyId,
			ExchangeRate:    rate,
			BaseAmount:      baseAmount,
			PaymentMethodId: input.PaymentMethodId,
			PaymentDate:     paymentDate,
			Notes:           input.Notes,
			CreatedBy:       actorIdFromContext(ctx),
		}
		if err := tx.Create(&payment).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{"AmountPaid": newPaid}
		if utils.DecimalEqualWithin(newPaid, expense.BaseAmount) {
			updates["CurrentStatus"] = ExpenseStatusPaid
		}
		return tx.Model(expense).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// DeleteExpensePayment reverses a payment; a fully paid expense drops back
// to approved when the reversal reopens a balance.
func DeleteExpensePayment(ctx context.Context, h *TenantHandle, paymentId int) error {
	return h.runInTenantTransaction(ctx, func(tx *gorm.DB) error {
		payment, err := fetchModel[ExpensePayment](tx, paymentId)
		if err != nil {
			return fmt.Errorf("payment: %w", err)
		}
		expense, err := fetchModelForUpdate[Expense](tx, payment.ExpenseId)
		if err != nil {
			return fmt.Errorf("expense: %w", err)
		}

		if err := tx.Delete(&ExpensePayment{}, paymentId).Error; err != nil {
			return err
		}

		newPaid := expense.AmountPaid.Sub(payment.BaseAmount)
		if newPaid.IsNegative() {
			newPaid = decimal.Zero
		}
		updates := map[string]interface{}{"AmountPaid": newPaid}
		if expense.CurrentStatus == ExpenseStatusPaid && !utils.DecimalEqualWithin(newPaid, expense.BaseAmount) {
			updates["CurrentStatus"] = ExpenseStatusApproved
		}
		return tx.Model(expense).Updates(updates).Error
	})
}

func GetExpensePayments(ctx context.Context, h *TenantHandle, expenseId int) ([]*ExpensePayment, error) {
	var payments []*ExpensePayment
	err := h.DB(ctx).
		Where("expense_id = ?", expenseId).
		Order("payment_date, id").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}
