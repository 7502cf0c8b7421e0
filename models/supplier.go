package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/backoffice_backend/utils"
	"gorm.io/gorm"
)

type Supplier struct {
	ID         int       `gorm:"primary_key" json:"id"`
	Code       string    `gorm:"uniqueIndex;size:32;not null" json:"code" binding:"required"`
	Name       string    `gorm:"size:255;not null" json:"name" binding:"required"`
	Phone      string    `gorm:"size:32" json:"phone"`
	Email      string    `gorm:"size:255" json:"email"`
	CurrencyId int       `gorm:"default:null" json:"currency_id"`
	IsActive   *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewSupplier struct {
	Code       string `json:"code" binding:"required"`
	Name       string `json:"name" binding:"required"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	CurrencyId int    `json:"currency_id"`
}

func (input *NewSupplier) validate(tx *gorm.DB, id int) error {
	if id > 0 {
		if err := validateResourceId[Supplier](tx, id); err != nil {
			return fmt.Errorf("supplier: %w", err)
		}
	}
	if err := validateUnique[Supplier](tx, "code", input.Code, id); err != nil {
		return err
	}
	if input.CurrencyId > 0 {
		if err := validateResourceId[Currency](tx, input.CurrencyId); err != nil {
			return fmt.Errorf("currency: %w", utils.ErrCurrencyNotFound)
		}
	}
	if input.Email != "" && !utils.IsValidEmail(input.Email) {
		return fmt.Errorf("invalid email")
	}
	return nil
}

func CreateSupplier(ctx context.Context, h *TenantHandle, input *NewSupplier) (*Supplier, error) {
	var supplier Supplier
	err := h.runInTenantTransaction(ctx, func(tx *gorm.DB) error {
		if err := input.validate(tx, 0); err != nil {
			return err
		}
		supplier = Supplier{
			Code:       input.Code,
			Name:       input.Name,
			Phone:      input.Phone,
			Email:      input.Email,
			CurrencyId: input.CurrencyId,
			IsActive:   utils.NewTrue(),
		}
		return tx.Create(&supplier).Error
	})
	if err != nil {
		return nil, err
	}
	return &supplier, nil
}

func GetSupplier(ctx context.Context, h *TenantHandle, id int) (*Supplier, error) {
	return fetchModel[Supplier](h.DB(ctx), id)
}

func GetSuppliers(ctx context.Context, h *TenantHandle) ([]*Supplier, error) {
	return fetchAllModels[Supplier](h.DB(ctx).Order("name"))
}

func ToggleActiveSupplier(ctx context.Context, h *TenantHandle, id int, isActive bool) (*Supplier, error) {
	var supplier *Supplier
	err := h.runInTenantTransaction(ctx, func(tx *gorm.DB) error {
		var err error
		supplier, err = toggleActiveModel[Supplier](tx, id, isActive)
		return err
	})
	if err != nil {
		return nil, err
	}
	return supplier, nil
}
