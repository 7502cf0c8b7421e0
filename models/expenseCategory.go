package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/backoffice_backend/utils"
	"gorm.io/gorm"
)

// ExpenseCategory forms a per-branch tree via ParentId. Deletes are soft
// (IsActive=false) so historical expenses keep a resolvable category.
type ExpenseCategory struct {
	ID        int       `gorm:"primary_key" json:"id"`
	BranchId  int       `gorm:"index;not null" json:"branch_id" binding:"required"`
	Name      string    `gorm:"size:100;not null" json:"name" binding:"required"`
	ParentId  *int      `gorm:"index;default:null" json:"parent_id"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewExpenseCategory struct {
	BranchId int    `json:"branch_id" binding:"required"`
	Name     string `json:"name" binding:"required"`
	ParentId *int   `json:"parent_id"`
}

// categoryWouldCycle walks the parent chain from candidateParent upward and
// reports whether it passes through id. Bounded by a depth cap so a
// corrupted chain cannot loop forever.
func categoryWouldCycle(tx *gorm.DB, id int, candidateParent int) (bool, error) {
	const maxDepth = 100
	current := candidateParent
	for depth := 0; depth < maxDepth; depth++ {
		if current == id {
			return true, nil
		}
		var parent ExpenseCategory
		err := tx.Select("parent_id").First(&parent, current).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		} else if err != nil {
			return false, err
		}
		if parent.ParentId == nil {
			return false, nil
		}
		current = *parent.ParentId
	}
	return true, nil
}

func (input *NewExpenseCategory) validate(tx *gorm.DB, id int) error {
	if id > 0 {
		if err := validateResourceId[ExpenseCategory](tx, id); err != nil {
			return fmt.Errorf("category: %w", err)
		}
	}
	if err := validateResourceId[Branch](tx, input.BranchId); err != nil {
		return fmt.Errorf("branch: %w", err)
	}
	if input.ParentId != nil {
		if id > 0 && *input.ParentId == id {
			return fmt.Errorf("category %d cannot parent itself: %w", id, utils.ErrCircularCategoryReference)
		}
		parent, err := fetchModel[ExpenseCategory](tx, *input.ParentId)
		if err != nil {
			return fmt.Errorf("parent category: %w", err)
		}
		if parent.BranchId != input.BranchId {
			return fmt.Errorf("parent category belongs to branch %d, not %d: %w",
				parent.BranchId, input.BranchId, utils.ErrCrossBranchReference)
		}
		if id > 0 {
			cycle, err := categoryWouldCycle(tx, id, *input.ParentId)
			if err != nil {
				return err
			}
			if cycle {
				return fmt.Errorf("category %d under parent %d: %w", id, *input.ParentId, utils.ErrCircularCategoryReference)
			}
		}
	}
	return nil
}

func CreateExpenseCategory(ctx context.Context, h *TenantHandle, input *NewExpenseCategory) (*ExpenseCategory, error) {
	var category ExpenseCategory
	err := h.runInTenantTransaction(ctx, func(tx *gorm.DB) error {
		if err := input.validate(tx, 0); err != nil {
			return err
		}
		category = ExpenseCategory{
			BranchId: input.BranchId,
			Name:     input.Name,
			ParentId: input.ParentId,
			IsActive: utils.NewTrue(),
		}
		return tx.Create(&category).Error
	})
	if err != nil {
		return nil, err
	}
	return &category, nil
}

func UpdateExpenseCategory(ctx context.Context, h *TenantHandle, id int, input *NewExpenseCategory) (*ExpenseCategory, error) {
	var category *ExpenseCategory
	err := h.runInTenantTransaction(ctx, func(tx *gorm.DB) error {
		if err := input.validate(tx, id); err != nil {
			return err
		}
		var err error
		category, err = fetchModel[ExpenseCategory](tx, id)
		if err != nil {
			return err
		}
		return tx.Model(category).Updates(map[string]interface{}{
			"BranchId": input.BranchId,
			"Name":     input.Name,
			"ParentId": input.ParentId,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return category, nil
}

// DeleteExpenseCategory deactivates a category. Categories with active
// children stay active to keep the tree connected.
func DeleteExpenseCategory(ctx context.Context, h *TenantHandle, id int) error {
	return h.runInTenantTransaction(ctx, func(tx *gorm.DB) error {
		if err := validateResourceId[ExpenseCategory](tx, id); err != nil {
			return fmt.Errorf("category: %w", err)
		}
		childCount, err := resourceCountWhere[ExpenseCategory](tx, "parent_id = ? AND is_active = ?", id, true)
		if err != nil {
			return err
		}
		if childCount > 0 {
			return fmt.Errorf("category %d has %d active child categories", id, childCount)
		}
		_, err = toggleActiveModel[ExpenseCategory](tx, id, false)
		return err
	})
}

func GetExpenseCategory(ctx context.Context, h *TenantHandle, id int) (*ExpenseCategory, error) {
	return fetchModel[ExpenseCategory](h.DB(ctx), id)
}

func GetExpenseCategories(ctx context.Context, h *TenantHandle, branchId *int) ([]*ExpenseCategory, error) {
	dbCtx := h.DB(ctx)
	if branchId != nil && *branchId > 0 {
		dbCtx = dbCtx.Where("branch_id = ?", *branchId)
	}
	return fetchAllModels[ExpenseCategory](dbCtx.Order("name"))
}
