package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/backoffice_backend/utils"
	"gorm.io/gorm"
)

type Branch struct {
	ID               int        `gorm:"primary_key" json:"id"`
	Code             string     `gorm:"uniqueIndex;size:32;not null" json:"code" binding:"required"`
	Name             string     `gorm:"size:255;not null" json:"name" binding:"required"`
	Address          string     `gorm:"type:text" json:"address"`
	Phone            string     `gorm:"size:32" json:"phone"`
	Email            string     `gorm:"size:255" json:"email"`
	IsPrimary        *bool      `gorm:"not null;default:false" json:"is_primary"`
	ReturnWindowDays int        `gorm:"not null;default:30" json:"return_window_days"`
	InheritsTax      *bool      `gorm:"not null;default:true" json:"inherits_tax"`
	InheritsAddress  *bool      `gorm:"not null;default:false" json:"inherits_address"`
	InheritsContact  *bool      `gorm:"not null;default:false" json:"inherits_contact"`
	InheritsCurrency *bool      `gorm:"not null;default:true" json:"inherits_currency"`
	IsActive         *bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewBranch struct {
	Code             string `json:"code" binding:"required,notblank"`
	Name             string `json:"name" binding:"required,notblank"`
	Address          string `json:"address"`
	Phone            string `json:"phone"`
	Email            string `json:"email"`
	ReturnWindowDays int    `json:"return_window_days"`
}

// validate input for both create & update. (id = 0 for create)
func (input *NewBranch) validate(tx *gorm.DB, id int) error {
	if id > 0 {
		if err := validateResourceId[Branch](tx, id); err != nil {
			return fmt.Errorf("branch: %w", err)
		}
	}
	if err := validateUnique[Branch](tx, "code", input.Code, id); err != nil {
		return err
	}
	if input.ReturnWindowDays < 0 {
		return fmt.Errorf("return window days cannot be negative")
	}
	return nil
}

func CreateBranch(ctx context.Context, h *TenantHandle, input *NewBranch) (*Branch, error) {
	returnWindow := input.ReturnWindowDays
	if returnWindow == 0 {
		settings, err := h.Settings(ctx)
		if err != nil {
			return nil, err
		}
		returnWindow = settings.DefaultReturnWindowDays
	}

	var branch Branch
	err := h.runInTenantTransaction(ctx, func(tx *gorm.DB) error {
		if err := input.validate(tx, 0); err != nil {
			return err
		}
		branch = Branch{
			Code:             input.Code,
			Name:             input.Name,
			Address:          input.Address,
			Phone:            input.Phone,
			Email:            input.Email,
			ReturnWindowDays: returnWindow,
			IsPrimary:        utils.NewFalse(),
			InheritsTax:      utils.NewTrue(),
			InheritsAddress:  utils.NewFalse(),
			InheritsContact:  utils.NewFalse(),
			InheritsCurrency: utils.NewTrue(),
			IsActive:         utils.NewTrue(),
		}
		return tx.Create(&branch).Error
	})
	if err != nil {
		return nil, err
	}
	return &branch, nil
}

func UpdateBranch(ctx context.Context, h *TenantHandle, id int, input *NewBranch) (*Branch, error) {
	var branch *Branch
	err := h.runInTenantTransaction(ctx, func(tx *gorm.DB) error {
		if err := input.validate(tx, id); err != nil {
			return err
		}
		var err error
		branch, err = fetchModel[Branch](tx, id)
		if err != nil {
			return err
		}
		return tx.Model(branch).Updates(map[string]interface{}{
			"Code":             input.Code,
			"Name":             input.Name,
			"Address":          input.Address,
			"Phone":            input.Phone,
			"Email":            input.Email,
			"ReturnWindowDays": input.ReturnWindowDays,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return branch, nil
}

// ToggleBranchInheritance flips one of the closed set of inheritable fields.
// An unknown field is rejected up front, not at query time.
func ToggleBranchInheritance(ctx context.Context, h *TenantHandle, id int, field BranchInheritedField, enabled bool) (*Branch, error) {
	if !field.IsValid() {
		return nil, fmt.Errorf("unknown inheritable field %q", field)
	}

	var branch *Branch
	err := h.runInTenantTransaction(ctx, func(tx *gorm.DB) error {
		var err error
		branch, err = fetchModel[Branch](tx, id)
		if err != nil {
			return fmt.Errorf("branch: %w", err)
		}

		var column string
		switch field {
		case BranchInheritedFieldTax:
			column = "InheritsTax"
		case BranchInheritedFieldAddress:
			column = "InheritsAddress"
		case BranchInheritedFieldContact:
			column = "InheritsContact"
		case BranchInheritedFieldCurrency:
			column = "InheritsCurrency"
		}
		return tx.Model(branch).UpdateColumn(column, enabled).Error
	})
	if err != nil {
		return nil, err
	}
	return branch, nil
}

func GetBranch(ctx context.Context, h *TenantHandle, id int) (*Branch, error) {
	return fetchModel[Branch](h.DB(ctx), id)
}

func GetBranches(ctx context.Context, h *TenantHandle) ([]*Branch, error) {
	return fetchAllModels[Branch](h.DB(ctx).Order("code"))
}

func ToggleActiveBranch(ctx context.Context, h *TenantHandle, id int, isActive bool) (*Branch, error) {
	var branch *Branch
	err := h.runInTenantTransaction(ctx, func(tx *gorm.DB) error {
		var err error
		branch, err = toggleActiveModel[Branch](tx, id, isActive)
		return err
	})
	if err != nil {
		return nil, err
	}
	return branch, nil
}
