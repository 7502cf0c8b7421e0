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

// BranchInventory is the on-hand ledger row: one row per (product, branch).
// Quantity is decimal because weight-based products sell fractional units.
// The invariant quantity >= 0 is enforced on every mutation path.
type BranchInventory struct {
	ID            int             `gorm:"primary_key" json:"id"`
	ProductId     int             `gorm:"uniqueIndex:idx_product_branch;not null" json:"product_id"`
	BranchId      int             `gorm:"uniqueIndex:idx_product_branch;not null" json:"branch_id"`
	Quantity      decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"quantity"`
	MinimumStock  decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"minimum_stock"`
	MaximumStock  decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"maximum_stock"`
	LastRestocked *time.Time      `gorm:"default:null" json:"last_restocked"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// InventoryLoss disposes of stock that cannot return to sellable inventory
// (damaged returned goods, write-offs). Losses created by return processing
// are auto-approved.
type InventoryLoss struct {
	ID         int             `gorm:"primary_key" json:"id"`
	BranchId   int             `gorm:"index;not null" json:"branch_id"`
	ProductId  int             `gorm:"index;not null" json:"product_id"`
	Quantity   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	Reason     string          `gorm:"size:255" json:"reason"`
	ReturnId   int             `gorm:"index;default:null" json:"return_id"`
	IsApproved *bool           `gorm:"not null;default:false" json:"is_approved"`
	CreatedBy  int             `gorm:"default:null" json:"created_by"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// adjustInventoryTx applies a signed quantity delta inside the caller's
// transaction. A missing row is created only for non-negative deltas; a
// delta that would drive quantity below zero fails with ErrInsufficientStock
// and changes nothing. The row is locked for the read-modify-write.
func adjustInventoryTx(tx *gorm.DB, branchId int, productId int, delta decimal.Decimal, now time.Time) (*BranchInventory, error) {
	var row BranchInventory
	err := lockForUpdate(tx).
		Where("branch_id = ? AND product_id = ?", branchId, productId).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if delta.IsNegative() {
			return nil, fmt.Errorf("branch %d product %d has no stock: %w", branchId, productId, utils.ErrInsufficientStock)
		}
		row = BranchInventory{
			ProductId: productId,
			BranchId:  branchId,
			Quantity:  delta,
		}
		if delta.IsPositive() {
			row.LastRestocked = &now
		}
		if err := tx.Create(&row).Error; err != nil {
			return nil, err
		}
		return &row, nil
	} else if err != nil {
		return nil, err
	}

	newQty := row.Quantity.Add(delta)
	if newQty.IsNegative() {
		return nil, fmt.Errorf("branch %d product %d on hand %s, requested %s: %w",
			branchId, productId, row.Quantity.String(), delta.Neg().String(), utils.ErrInsufficientStock)
	}

	updates := map[string]interface{}{"Quantity": newQty}
	if delta.IsPositive() {
		updates["LastRestocked"] = now
	}
	if err := tx.Model(&row).Updates(updates).Error; err != nil {
		return nil, err
	}
	row.Quantity = newQty
	return &row, nil
}

// AdjustInventory is the standalone adjust operation (manual stock
// correction by delta).
func AdjustInventory(ctx context.Context, h *TenantHandle, branchId int, productId int, delta decimal.Decimal) (*BranchInventory, error) {
	var row *BranchInventory
	err := h.runInTenantTransaction(ctx, func(tx *gorm.DB) error {
		if err := validateResourceId[Branch](tx, branchId); err != nil {
			return fmt.Errorf("branch: %w", err)
		}
		if err := validateResourceId[Product](tx, productId); err != nil {
			return fmt.Errorf("product: %w", err)
		}
		var err error
		row, err = adjustInventoryTx(tx, branchId, productId, delta, h.Now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

// SetInventoryLevel replaces the quantity unconditionally (administrative
// correction) and optionally rewrites the min/max stock levels.
func SetInventoryLevel(ctx context.Context, h *TenantHandle, branchId int, productId int, quantity decimal.Decimal, minimumStock, maximumStock *decimal.Decimal) (*BranchInventory, error) {
	if quantity.IsNegative() {
		return nil, fmt.Errorf("quantity cannot be negative: %w", utils.ErrInsufficientStock)
	}

	var row *BranchInventory
	err := h.runInTenantTransaction(ctx, func(tx *gorm.DB) error {
		if err := validateResourceId[Branch](tx, branchId); err != nil {
			return fmt.Errorf("branch: %w", err)
		}
		if err := validateResourceId[Product](tx, productId); err != nil {
			return fmt.Errorf("product: %w", err)
		}

		var existing BranchInventory
		err := lockForUpdate(tx).
			Where("branch_id = ? AND product_id = ?", branchId, productId).
			First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			existing = BranchInventory{
				ProductId: productId,
				BranchId:  branchId,
				Quantity:  quantity,
			}
			if minimumStock != nil {
				existing.MinimumStock = *minimumStock
			}
			if maximumStock != nil {
				existing.MaximumStock = *maximumStock
			}
			if err := tx.Create(&existing).Error; err != nil {
				return err
			}
			row = &existing
			return nil
		} else if err != nil {
			return err
		}

		updates := map[string]interface{}{"Quantity": quantity}
		if minimumStock != nil {
			updates["MinimumStock"] = *minimumStock
		}
		if maximumStock != nil {
			updates["MaximumStock"] = *maximumStock
		}
		if err := tx.Model(&existing).Updates(updates).Error; err != nil {
			return err
		}
		existing.Quantity = quantity
		if minimumStock != nil {
			existing.MinimumStock = *minimumStock
		}
		if maximumStock != nil {
			existing.MaximumStock = *maximumStock
		}
		row = &existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

// LowStockInventory lists rows under their minimum level, largest shortfall
// first. The result reflects live state at call time.
func LowStockInventory(ctx context.Context, h *TenantHandle, branchId int) ([]*BranchInventory, error) {
	var rows []*BranchInventory
	err := h.DB(ctx).
		Where("branch_id = ? AND quantity < minimum_stock", branchId).
		Order("(minimum_stock - quantity) DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// GetInventoryOrZero treats "never stocked" the same as "zero stock": when
// no ledger row exists for a known product it returns a synthetic
// zero-quantity row instead of failing. An unknown product still fails.
func GetInventoryOrZero(ctx context.Context, h *TenantHandle, branchId int, productId int) (*BranchInventory, error) {
	db := h.DB(ctx)
	if err := validateResourceId[Product](db, productId); err != nil {
		return nil, fmt.Errorf("product: %w", err)
	}

	var row BranchInventory
	err := db.Where("branch_id = ? AND product_id = ?", branchId, productId).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &BranchInventory{
			ProductId: productId,
			BranchId:  branchId,
			Quantity:  decimal.Zero,
		}, nil
	} else if err != nil {
		return nil, err
	}
	return &row, nil
}

// currentStockTx reads on-hand quantity inside a transaction (zero when the
// row is absent).
func currentStockTx(tx *gorm.DB, branchId int, productId int) (decimal.Decimal, error) {
	var row BranchInventory
	err := tx.Where("branch_id = ? AND product_id = ?", branchId, productId).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, nil
	} else if err != nil {
		return decimal.Zero, err
	}
	return row.Quantity, nil
}
