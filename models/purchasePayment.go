package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/backoffice_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PurchasePayment records one settlement against a purchase. The original
// tendered amount and the rate used are snapshotted alongside the
// normalized base amount so history survives later rate changes.
type PurchasePayment struct {
	ID              int             `gorm:"primary_key" json:"id"`
	PurchaseId      int             `gorm:"index;not null" json:"purchase_id"`
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

type NewPurchasePayment struct {
	Amount          decimal.Decimal `json:"amount" binding:"required"`
	CurrencyId      int             `json:"currency_id" binding:"required"`
	PaymentMethodId int             `json:"payment_method_id" binding:"required"`
	PaymentDate     *time.Time      `json:"payment_date"`
	Notes           string          `json:"notes"`
}

// AddPurchasePayment normalizes the tendered amount into the base currency,
// rejects overpayment beyond the rounding epsilon, and rolls the paid/due
// figures and payment status forward. A received purchase keeps its status
// while still accepting the outstanding balance.
func AddPurchasePayment(ctx context.Context, h *TenantHandle, purchaseId int, input *NewPurchasePayment) (*PurchasePayment, error) {
	if !input.Amount.IsPositive() {
		return nil, fmt.Errorf("payment amount must be positive")
	}

	var payment PurchasePayment
	err := h.runInTenantTransaction(ctx, func(tx *gorm.DB) error {
		purchase, err := fetchModelForUpdate[Purchase](tx, purchaseId)
		if err != nil {
			return fmt.Errorf("purchase: %w", err)
		}
		if !purchase.CurrentStatus.CanAcceptPayment() {
			return fmt.Errorf("purchase %s is %s: %w", purchase.PoNumber, purchase.CurrentStatus, utils.ErrInvalidStateTransition)
		}
		if err := validateResourceId[PaymentMethod](tx, input.PaymentMethodId); err != nil {
			return fmt.Errorf("payment method: %w", err)
		}

		baseAmount, rate, err := normalizeAmountTx(tx, h, input.Amount, input.CurrencyId)
		if err != nil {
			return err
		}

		newPaid := purchase.AmountPaid.Add(baseAmount)
		if newPaid.Sub(purchase.Total).GreaterThan(utils.RoundingEpsilon) {
			return fmt.Errorf("paid %s would exceed total %s: %w",
				newPaid.String(), purchase.Total.String(), utils.ErrPaymentExceedsDue)
		}

		paymentDate := h.Now()
		if input.PaymentDate != nil {
			paymentDate = *input.PaymentDate
		}
		payment = PurchasePayment{
			PurchaseId:      purchaseId,
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

		newDue := purchase.Total.Sub(newPaid)
		updates := map[string]interface{}{
			"AmountPaid": newPaid,
			"AmountDue":  newDue,
		}
		if purchase.CurrentStatus != PurchaseStatusReceived {
			if utils.DecimalEqualWithin(newPaid, purchase.Total) {
				updates["CurrentStatus"] = PurchaseStatusFullyPaid
			} else {
				updates["CurrentStatus"] = PurchaseStatusPartiallyPaid
			}
		}
		return tx.Model(purchase).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// DeletePurchasePayment reverses a payment and recomputes the purchase's
// paid/due figures and status. Payments against a received purchase are
// locked in.
func DeletePurchasePayment(ctx context.Context, h *TenantHandle, paymentId int) error {
	return h.runInTenantTransaction(ctx, func(tx *gorm.DB) error {
		payment, err := fetchModel[PurchasePayment](tx, paymentId)
		if err != nil {
			return fmt.Errorf("payment: %w", err)
		}
		purchase, err := fetchModelForUpdate[Purchase](tx, payment.PurchaseId)
		if err != nil {
			return fmt.Errorf("purchase: %w", err)
		}
		if purchase.CurrentStatus == PurchaseStatusReceived {
			return fmt.Errorf("purchase %s already received: %w", purchase.PoNumber, utils.ErrInvalidStateTransition)
		}

		if err := tx.Delete(&PurchasePayment{}, paymentId).Error; err != nil {
			return err
		}

		newPaid := purchase.AmountPaid.Sub(payment.BaseAmount)
		if newPaid.IsNegative() {
			newPaid = decimal.Zero
		}
		var status PurchaseStatus
		switch {
		case newPaid.IsZero():
			status = PurchaseStatusSubmitted
		case utils.DecimalEqualWithin(newPaid, purchase.Total):
			status = PurchaseStatusFullyPaid
		default:
			status = PurchaseStatusPartiallyPaid
		}
		return tx.Model(purchase).Updates(map[string]interface{}{
			"AmountPaid":    newPaid,
			"AmountDue":     purchase.Total.Sub(newPaid),
			"CurrentStatus": status,
		}).Error
	})
}

func GetPurchasePayments(ctx context.Context, h *TenantHandle, purchaseId int) ([]*PurchasePayment, error) {
	var payments []*PurchasePayment
	err := h.DB(ctx).
		Where("purchase_id = ?", purchaseId).
		Order("payment_date, id").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}
