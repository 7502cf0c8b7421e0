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

type Product struct {
	ID        int             `gorm:"primary_key" json:"id"`
	Sku       string          `gorm:"uniqueIndex;size:64;not null" json:"sku" binding:"required"`
	Name      string          `gorm:"size:255;not null" json:"name" binding:"required"`
	Unit      string          `gorm:"size:32;not null;default:'pcs'" json:"unit"`
	Cost      decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"cost"`
	Price     decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"price"`
	IsActive  *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// ProductCostHistory is append-only. Rows are written by goods receipt, the
// only path that mutates a product's standing cost.
type ProductCostHistory struct {
	ID          int             `gorm:"primary_key" json:"id"`
	ProductId   int             `gorm:"index;not null" json:"product_id"`
	OldCost     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"old_cost"`
	NewCost     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"new_cost"`
	PurchaseId  int             `gorm:"index;not null" json:"purchase_id"`
	RecordedBy  int             `gorm:"default:null" json:"recorded_by"`
	RecordedAt  time.Time       `gorm:"not null" json:"recorded_at"`
}

type NewProduct struct {
	Sku   string          `json:"sku" binding:"required"`
	Name  string          `json:"name" binding:"required"`
	Unit  string          `json:"unit"`
	Cost  decimal.Decimal `json:"cost"`
	Price decimal.Decimal `json:"price"`
}

// validate input for both create & update. (id = 0 for create)
func (input *NewProduct) validate(tx *gorm.DB, id int) error {
	if id > 0 {
		if err := validateResourceId[Product](tx, id); err != nil {
			return fmt.Errorf("product: %w", err)
		}
	}
	if err := validateUnique[Product](tx, "sku", input.Sku, id); err != nil {
		return err
	}
	if input.Cost.IsNegative() || input.Price.IsNegative() {
		return errors.New("cost and price cannot be negative")
	}
	return nil
}

func CreateProduct(ctx context.Context, h *TenantHandle, input *NewProduct) (*Product, error) {
	unit := input.Unit
	if unit == "" {
		unit = "pcs"
	}
	var product Product
	err := h.runInTenantTransaction(ctx, func(tx *gorm.DB) error {
		if err := input.validate(tx, 0); err != nil {
			return err
		}
		product = Product{
			Sku:      input.Sku,
			Name:     input.Name,
			Unit:     unit,
			Cost:     input.Cost,
			Price:    input.Price,
			IsActive: utils.NewTrue(),
		}
		return tx.Create(&product).Error
	})
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// UpdateProduct leaves Cost alone: standing cost moves only through goods
// receipt (see ReceivePurchaseGoods).
func UpdateProduct(ctx context.Context, h *TenantHandle, id int, input *NewProduct) (*Product, error) {
	var product *Product
	err := h.runInTenantTransaction(ctx, func(tx *gorm.DB) error {
		if err := input.validate(tx, id); err != nil {
			return err
		}
		var err error
		product, err = fetchModel[Product](tx, id)
		if err != nil {
			return err
		}
		updates := map[string]interface{}{
			"Sku":   input.Sku,
			"Name":  input.Name,
			"Price": input.Price,
		}
		if input.Unit != "" {
			updates["Unit"] = input.Unit
		}
		return tx.Model(product).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	return product, nil
}

func GetProduct(ctx context.Context, h *TenantHandle, id int) (*Product, error) {
	return fetchModel[Product](h.DB(ctx), id)
}

func GetProducts(ctx context.Context, h *TenantHandle) ([]*Product, error) {
	return fetchAllModels[Product](h.DB(ctx).Order("sku"))
}

func GetProductCostHistory(ctx context.Context, h *TenantHandle, productId int) ([]*ProductCostHistory, error) {
	var rows []*ProductCostHistory
	err := h.DB(ctx).
		Where("product_id = ?", productId).
		Order("recorded_at, id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// appendCostHistory records a cost change and moves the standing cost.
// Runs inside the goods-receipt transaction.
func appendCostHistory(tx *gorm.DB, productId int, oldCost, newCost decimal.Decimal, purchaseId int, actorId int, now time.Time) error {
	history := ProductCostHistory{
		ProductId:  productId,
		OldCost:    oldCost,
		NewCost:    newCost,
		PurchaseId: purchaseId,
		RecordedBy: actorId,
		RecordedAt: now,
	}
	if err := tx.Create(&history).Error; err != nil {
		return err
	}
	return tx.Model(&Product{}).Where("id = ?", productId).Update("Cost", newCost).Error
}
