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

// Currency carries the current exchange rate: the value of 1 unit of this
// currency in the tenant's base currency. The rate in effect at payment or
// refund time is snapshotted on the payment/refund row, so historical
// amounts stay reconstructable after rate changes.
type Currency struct {
	ID           int             `gorm:"primary_key" json:"id"`
	Symbol       string          `gorm:"uniqueIndex;size:8;not null" json:"symbol" binding:"required"`
	Name         string          `gorm:"size:100;not null" json:"name" binding:"required"`
	ExchangeRate decimal.Decimal `gorm:"type:decimal(20,6);not null;default:1" json:"exchange_rate"`
	IsActive     *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCurrency struct {
	Symbol       string          `json:"symbol" binding:"required"`
	Name         string          `json:"name" binding:"required"`
	ExchangeRate decimal.Decimal `json:"exchange_rate" binding:"required"`
}

// validate input for both create & update. (id = 0 for create)
func (input *NewCurrency) validate(tx *gorm.DB, id int) error {
	if id > 0 {
		if err := validateResourceId[Currency](tx, id); err != nil {
			return fmt.Errorf("currency: %w", err)
		}
	}
	if err := validateUnique[Currency](tx, "symbol", input.Symbol, id); err != nil {
		return err
	}
	if err := validateUnique[Currency](tx, "name", input.Name, id); err != nil {
		return err
	}
	if input.ExchangeRate.LessThanOrEqual(decimal.Zero) {
		return errors.New("exchange rate must be positive")
	}
	return nil
}

func CreateCurrency(ctx context.Context, h *TenantHandle, input *NewCurrency) (*Currency, error) {
	var currency Currency
	err := h.runInTenantTransaction(ctx, func(tx *gorm.DB) error {
		if err := input.validate(tx, 0); err != nil {
			return err
		}
		currency = Currency{
			Symbol:       input.Symbol,
			Name:         input.Name,
			ExchangeRate: input.ExchangeRate,
			IsActive:     utils.NewTrue(),
		}
		return tx.Create(&currency).Error
	})
	if err != nil {
		return nil, err
	}
	return &currency, nil
}

// UpdateCurrencyRate replaces the standing rate. Historical payments and
// refunds are unaffected: they carry their own snapshot.
func UpdateCurrencyRate(ctx context.Context, h *TenantHandle, id int, rate decimal.Decimal) (*Currency, error) {
	if rate.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("exchange rate must be positive")
	}
	var currency *Currency
	err := h.runInTenantTransaction(ctx, func(tx *gorm.DB) error {
		var err error
		currency, err = fetchModel[Currency](tx, id)
		if err != nil {
			return fmt.Errorf("currency: %w", err)
		}
		if err := tx.Model(currency).Update("ExchangeRate", rate).Error; err != nil {
			return err
		}
		currency.ExchangeRate = rate
		return nil
	})
	if err != nil {
		return nil, err
	}
	return currency, nil
}

func GetCurrency(ctx context.Context, h *TenantHandle, id int) (*Currency, error) {
	return fetchModel[Currency](h.DB(ctx), id)
}

func GetCurrencies(ctx context.Context, h *TenantHandle) ([]*Currency, error) {
	return fetchAllModels[Currency](h.DB(ctx).Order("symbol"))
}

func ToggleActiveCurrency(ctx context.Context, h *TenantHandle, id int, isActive bool) (*Currency, error) {
	settings, err := h.Settings(ctx)
	if err != nil {
		return nil, err
	}
	if !isActive && settings.BaseCurrencyId == id {
		return nil, errors.New("cannot toggle base currency inactive")
	}
	var currency *Currency
	err = h.runInTenantTransaction(ctx, func(tx *gorm.DB) error {
		currency, err = toggleActiveModel[Currency](tx, id, isActive)
		return err
	})
	if err != nil {
		return nil, err
	}
	return currency, nil
}

// NormalizeAmount converts an amount in the given currency to the tenant's
// base currency and reports the rate used. The base currency itself
// normalizes at rate 1 without a lookup.
func NormalizeAmount(ctx context.Context, h *TenantHandle, amount decimal.Decimal, currencyId int) (decimal.Decimal, decimal.Decimal, error) {
	return normalizeAmountTx(h.DB(ctx), h, amount, currencyId)
}

// normalizeAmountTx is the in-transaction variant used by payment capture.
// Settings and the currency row are both read through tx so the lookup stays
// on the transaction's connection and inside its isolation.
func normalizeAmountTx(tx *gorm.DB, h *TenantHandle, amount decimal.Decimal, currencyId int) (decimal.Decimal, decimal.Decimal, error) {
	settings, err := h.settingsTx(tx)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if currencyId == settings.BaseCurrencyId {
		return amount, decimal.NewFromInt(1), nil
	}

	var currency Currency
	if err := tx.First(&currency, currencyId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, decimal.Zero, fmt.Errorf("currency %d: %w", currencyId, utils.ErrCurrencyNotFound)
		}
		return decimal.Zero, decimal.Zero, err
	}
	if currency.IsActive == nil || !*currency.IsActive {
		return decimal.Zero, decimal.Zero, fmt.Errorf("currency %d is inactive: %w", currencyId, utils.ErrCurrencyNotFound)
	}

	return amount.Mul(currency.ExchangeRate), currency.ExchangeRate, nil
}
