package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/backoffice_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ReturnRefund pays money back against a processed return. Refunds may
// arrive in any currency; the normalized base amount is what counts against
// the return's entitlement.
type ReturnRefund struct {
	ID              int             `gorm:"primary_key" json:"id"`
	ReturnId        int             `gorm:"index;not null" json:"return_id"`
	Amount          decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	CurrencyId      int             `gorm:"not null" json:"currency_id"`
	ExchangeRate    decimal.Decimal `gorm:"type:decimal(20,6);not null" json:"exchange_rate"`
	BaseAmount      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"base_amount"`
	PaymentMethodId int             `gorm:"not null" json:"payment_method_id"`
	ShiftId         *int            `gorm:"index;default:null" json:"shift_id"`
	RefundDate      time.Time       `gorm:"not null" json:"refund_date"`
	CreatedBy       int             `gorm:"default:null" json:"created_by"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewReturnRefund struct {
	Amount          decimal.Decimal `json:"amount" binding:"required"`
	CurrencyId      int             `json:"currency_id" binding:"required"`
	PaymentMethodId int             `json:"payment_method_id" binding:"required"`
	ShiftId         *int            `json:"shift_id"`
}

// AddReturnRefund captures one (possibly partial) refund on a processed
// return. Cumulative refunds never exceed the return's total; a referenced
// cash-drawer shift must be open at capture time.
func AddReturnRefund(ctx context.Context, h *TenantHandle, returnId int, input *NewReturnRefund) (*ReturnRefund, error) {
	if !input.Amount.IsPositive() {
		return nil, fmt.Errorf("refund amount must be positive")
	}

	var refund ReturnRefund
	err := h.runInTenantTransaction(ctx, func(tx *gorm.DB) error {
		ret, err := fetchModelForUpdate[Return](tx, returnId)
		if err != nil {
			return fmt.Errorf("return: %w", err)
		}
		if ret.CurrentStatus != ReturnStatusProcessed {
			return fmt.Errorf("return %s is %s: %w", ret.ReturnNumber, ret.CurrentStatus, utils.ErrInvalidStateTransition)
		}
		if err := validateResourceId[PaymentMethod](tx, input.PaymentMethodId); err != nil {
			return fmt.Errorf("payment method: %w", err)
		}
		if input.ShiftId != nil {
			if err := requireOpenShift(tx, *input.ShiftId); err != nil {
				return err
			}
		}

		baseAmount, rate, err := normalizeAmountTx(tx, h, input.Amount, input.CurrencyId)
		if err != nil {
			return err
		}

		newRefunded := ret.TotalRefunded.Add(baseAmount)
		if newRefunded.Sub(ret.TotalAmount).GreaterThan(utils.RoundingEpsilon) {
			return fmt.Errorf("refunded %s would exceed entitlement %s: %w",
				newRefunded.String(), ret.TotalAmount.String(), utils.ErrRefundExceedsRemaining)
		}

		refund = ReturnRefund{
			ReturnId:        returnId,
			Amount:          input.Amount,
			CurrencyId:      input.CurrencyId,
			ExchangeRate:    rate,
			BaseAmount:      baseAmount,
			PaymentMethodId: input.PaymentMethodId,
			ShiftId:         input.ShiftId,
			RefundDate:      h.Now(),
			CreatedBy:       actorIdFromContext(ctx),
		}
		if err := tx.Create(&refund).Error; err != nil {
			return err
		}
		return tx.Model(ret).Update("TotalRefunded", newRefunded).Error
	})
	if err != nil {
		return nil, err
	}
	return &refund, nil
}

func GetReturnRefunds(ctx context.Context, h *TenantHandle, returnId int) ([]*ReturnRefund, error) {
	var refunds []*ReturnRefund
	err := h.DB(ctx).
		Where("return_id = ?", returnId).
		Order("refund_date, id").
		Find(&refunds).Error
	if err != nil {
		return nil, err
	}
	return refunds, nil
}
