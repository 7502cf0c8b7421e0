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

type Purchase struct {
	ID                   int             `gorm:"primary_key" json:"id"`
	PoNumber             string          `gorm:"uniqueIndex;size:32;not null" json:"po_number"`
	BranchId             int             `gorm:"index;not null" json:"branch_id" binding:"required"`
	SupplierId           int             `gorm:"index;not null" json:"supplier_id" binding:"required"`
	OrderDate            time.Time       `gorm:"not null" json:"order_date"`
	ExpectedDeliveryDate *time.Time      `gorm:"default:null" json:"expected_delivery_date"`
	ActualDeliveryDate   *time.Time      `gorm:"default:null" json:"actual_delivery_date"`
	Subtotal             decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"subtotal"`
	ShippingCost         decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"shipping_cost"`
	TaxAmount            decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"tax_amount"`
	Total                decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"total"`
	AmountPaid           decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"amount_paid"`
	AmountDue            decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"amount_due"`
	CurrentStatus        PurchaseStatus  `gorm:"size:20;not null" json:"current_status"`
	Notes                string          `gorm:"type:text" json:"notes"`
	CreatedBy            int             `gorm:"default:null" json:"created_by"`
	Items                []PurchaseItem  `gorm:"foreignKey:PurchaseId" json:"items"`
	CreatedAt            time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type PurchaseItem struct {
	ID               int             `gorm:"primary_key" json:"id"`
	PurchaseId       int             `gorm:"index;not null" json:"purchase_id"`
	ProductId        int             `gorm:"index;not null" json:"product_id"`
	Quantity         decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	QuantityReceived decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"quantity_received"`
	CurrentCostPrice decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"current_cost_price"`
	NewCostPrice     decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"new_cost_price"`
	TotalAmount      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"total_amount"`
}

type NewPurchase struct {
	BranchId             int               `json:"branch_id" binding:"required"`
	SupplierId           int               `json:"supplier_id" binding:"required"`
	OrderDate            *time.Time        `json:"order_date"`
	ExpectedDeliveryDate *time.Time        `json:"expected_delivery_date"`
	ShippingCost         decimal.Decimal   `json:"shipping_cost"`
	TaxAmount            decimal.Decimal   `json:"tax_amount"`
	Notes                string            `json:"notes"`
	Items                []NewPurchaseItem `json:"items" binding:"required,dive"`
}

type NewPurchaseItem struct {
	ProductId   int             `json:"product_id" binding:"required"`
	Quantity    decimal.Decimal `json:"quantity" binding:"required"`
	TotalAmount decimal.Decimal `json:"total_amount" binding:"required"`
}

type PurchaseGoodsReceipt struct {
	ItemId           int             `json:"item_id" binding:"required"`
	QuantityReceived decimal.Decimal `json:"quantity_received" binding:"required"`
}

// validate input for both create & update.
func (input *NewPurchase) validate(tx *gorm.DB) error {
	if err := validateResourceId[Branch](tx, input.BranchId); err != nil {
		return fmt.Errorf("branch: %w", err)
	}
	if err := validateResourceId[Supplier](tx, input.SupplierId); err != nil {
		return fmt.Errorf("supplier: %w", err)
	}
	if len(input.Items) == 0 {
		return errors.New("at least one item is required")
	}
	for _, item := range input.Items {
		if err := validateResourceId[Product](tx, item.ProductId); err != nil {
			return fmt.Errorf("product %d: %w", item.ProductId, err)
		}
		if !item.Quantity.IsPositive() {
			return fmt.Errorf("product %d: quantity must be positive", item.ProductId)
		}
		if item.TotalAmount.IsNegative() {
			return fmt.Errorf("product %d: total amount cannot be negative", item.ProductId)
		}
	}
	if input.ShippingCost.IsNegative() || input.TaxAmount.IsNegative() {
		return errors.New("shipping cost and tax amount cannot be negative")
	}
	return nil
}

// buildPurchaseItems freezes the product's standing cost on each line and
// derives the incoming unit cost from the line total.
func buildPurchaseItems(tx *gorm.DB, input []NewPurchaseItem) ([]PurchaseItem, decimal.Decimal, error) {
	items := make([]PurchaseItem, 0, len(input))
	subtotal := decimal.Zero
	for _, in := range input {
		product, err := fetchModel[Product](tx, in.ProductId)
		if err != nil {
			return nil, decimal.Zero, fmt.Errorf("product %d: %w", in.ProductId, err)
		}
		items = append(items, PurchaseItem{
			ProductId:        in.ProductId,
			Quantity:         in.Quantity,
			QuantityReceived: decimal.Zero,
			CurrentCostPrice: product.Cost,
			NewCostPrice:     in.TotalAmount.Div(in.Quantity),
			TotalAmount:      in.TotalAmount,
		})
		subtotal = subtotal.Add(in.TotalAmount)
	}
	return items, subtotal, nil
}

func CreatePurchase(ctx context.Context, h *TenantHandle, input *NewPurchase) (*Purchase, error) {
	orderDate := h.Now()
	if input.OrderDate != nil {
		orderDate = *input.OrderDate
	}

	var purchase Purchase
	err := h.runInTenantTransaction(ctx, func(tx *gorm.DB) error {
		if err := input.validate(tx); err != nil {
			return err
		}

		items, subtotal, err := buildPurchaseItems(tx, input.Items)
		if err != nil {
			return err
		}
		total := subtotal.Add(input.ShippingCost).Add(input.TaxAmount)

		poNumber, err := nextDocumentNumber(tx, DocumentTypePurchase, h.Now())
		if err != nil {
			return err
		}

		purchase = Purchase{
			PoNumber:             poNumber,
			BranchId:             input.BranchId,
			SupplierId:           input.SupplierId,
			OrderDate:            orderDate,
			ExpectedDeliveryDate: input.ExpectedDeliveryDate,
			Subtotal:             subtotal,
			ShippingCost:         input.ShippingCost,
			TaxAmount:            input.TaxAmount,
			Total:                total,
			AmountPaid:           decimal.Zero,
			AmountDue:            total,
			CurrentStatus:        PurchaseStatusDraft,
			Notes:                input.Notes,
			CreatedBy:            actorIdFromContext(ctx),
			Items:                items,
		}
		return tx.Create(&purchase).Error
	})
	if err != nil {
		return nil, err
	}
	return &purchase, nil
}

// UpdatePurchase fully replaces the item set and recomputes totals.
// Only drafts are mutable; totals freeze at submission.
func UpdatePurchase(ctx context.Context, h *TenantHandle, id int, input *NewPurchase) (*Purchase, error) {
	var purchase *Purchase
	err := h.runInTenantTransaction(ctx, func(tx *gorm.DB) error {
		var err error
		purchase, err = fetchModelForUpdate[Purchase](tx, id)
		if err != nil {
			return fmt.Errorf("purchase: %w", err)
		}
		if purchase.CurrentStatus != PurchaseStatusDraft {
			return fmt.Errorf("purchase %s is %s: %w", purchase.PoNumber, purchase.CurrentStatus, utils.ErrInvalidStateTransition)
		}
		if err := input.validate(tx); err != nil {
			return err
		}

		items, subtotal, err := buildPurchaseItems(tx, input.Items)
		if err != nil {
			return err
		}
		total := subtotal.Add(input.ShippingCost).Add(input.TaxAmount)

		if err := tx.Where("purchase_id = ?", id).Delete(&PurchaseItem{}).Error; err != nil {
			return err
		}
		for i := range items {
			items[i].PurchaseId = id
		}
		if err := tx.Create(&items).Error; err != nil {
			return err
		}

		if err := tx.Model(purchase).Updates(map[string]interface{}{
			"SupplierId":           input.SupplierId,
			"ExpectedDeliveryDate": input.ExpectedDeliveryDate,
			"Subtotal":             subtotal,
			"ShippingCost":         input.ShippingCost,
			"TaxAmount":            input.TaxAmount,
			"Total":                total,
			"AmountDue":            total,
			"Notes":                input.Notes,
		}).Error; err != nil {
			return err
		}
		purchase.Items = items
		return nil
	})
	if err != nil {
		return nil, err
	}
	return purchase, nil
}

// SubmitPurchase moves draft -> submitted and freezes the financials.
func SubmitPurchase(ctx context.Context, h *TenantHandle, id int) (*Purchase, error) {
	var purchase *Purchase
	err := h.runInTenantTransaction(ctx, func(tx *gorm.DB) error {
		var err error
		purchase, err = fetchModelForUpdate[Purchase](tx, id, "Items")
		if err != nil {
			return fmt.Errorf("purchase: %w", err)
		}
		if purchase.CurrentStatus != PurchaseStatusDraft {
			return fmt.Errorf("purchase %s is %s: %w", purchase.PoNumber, purchase.CurrentStatus, utils.ErrInvalidStateTransition)
		}
		if err := tx.Model(purchase).Update("CurrentStatus", PurchaseStatusSubmitted).Error; err != nil {
			return err
		}
		purchase.CurrentStatus = PurchaseStatusSubmitted
		return nil
	})
	if err != nil {
		return nil, err
	}
	return purchase, nil
}

// CancelPurchase deletes a draft with no payment history. Anything past
// draft is immutable to cancellation.
func CancelPurchase(ctx context.Context, h *TenantHandle, id int) error {
	return h.runInTenantTransaction(ctx, func(tx *gorm.DB) error {
		purchase, err := fetchModelForUpdate[Purchase](tx, id)
		if err != nil {
			return fmt.Errorf("purchase: %w", err)
		}
		if purchase.CurrentStatus != PurchaseStatusDraft {
			return fmt.Errorf("purchase %s is %s: %w", purchase.PoNumber, purchase.CurrentStatus, utils.ErrInvalidStateTransition)
		}
		if !purchase.AmountPaid.IsZero() {
			return fmt.Errorf("purchase %s has payments: %w", purchase.PoNumber, utils.ErrInvalidStateTransition)
		}
		paymentCount, err := resourceCountWhere[PurchasePayment](tx, "purchase_id = ?", id)
		if err != nil {
			return err
		}
		if paymentCount > 0 {
			return fmt.Errorf("purchase %s has payments: %w", purchase.PoNumber, utils.ErrInvalidStateTransition)
		}

		if err := tx.Where("purchase_id = ?", id).Delete(&PurchaseItem{}).Error; err != nil {
			return err
		}
		return tx.Delete(&Purchase{}, id).Error
	})
}

// ReceivePurchaseGoods records physical delivery line by line: increments
// received quantities, credits the branch inventory, and on the first full
// receipt of a line whose incoming cost differs from the frozen standing
// cost, appends cost history and moves the product's cost. When every line
// is fully received the purchase becomes received and the delivery date is
// stamped.
func ReceivePurchaseGoods(ctx context.Context, h *TenantHandle, id int, receipts []PurchaseGoodsReceipt, actualDeliveryDate *time.Time) (*Purchase, error) {
	if len(receipts) == 0 {
		return nil, errors.New("at least one receipt line is required")
	}

	var purchase *Purchase
	err := h.runInTenantTransaction(ctx, func(tx *gorm.DB) error {
		var err error
		purchase, err = fetchModelForUpdate[Purchase](tx, id)
		if err != nil {
			return fmt.Errorf("purchase: %w", err)
		}
		switch purchase.CurrentStatus {
		case PurchaseStatusDraft, PurchaseStatusCancelled:
			return fmt.Errorf("purchase %s is %s: %w", purchase.PoNumber, purchase.CurrentStatus, utils.ErrInvalidStateTransition)
		}

		now := h.Now()
		actorId := actorIdFromContext(ctx)

		for _, receipt := range receipts {
			if !receipt.QuantityReceived.IsPositive() {
				return fmt.Errorf("item %d: received quantity must be positive", receipt.ItemId)
			}

			var item PurchaseItem
			if err := lockForUpdate(tx).
				Where("id = ? AND purchase_id = ?", receipt.ItemId, id).
				First(&item).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("purchase item %d: %w", receipt.ItemId, utils.ErrorRecordNotFound)
				}
				return err
			}

			newReceived := item.QuantityReceived.Add(receipt.QuantityReceived)
			if newReceived.GreaterThan(item.Quantity) {
				return fmt.Errorf("item %d ordered %s already received %s, receiving %s: %w",
					item.ID, item.Quantity.String(), item.QuantityReceived.String(),
					receipt.QuantityReceived.String(), utils.ErrOverReceipt)
			}

			if err := tx.Model(&item).Update("QuantityReceived", newReceived).Error; err != nil {
				return err
			}

			if _, err := adjustInventoryTx(tx, purchase.BranchId, item.ProductId, receipt.QuantityReceived, now); err != nil {
				return err
			}

			// First time this line becomes fully received: reconcile cost.
			if newReceived.Equal(item.Quantity) && !item.NewCostPrice.Equal(item.CurrentCostPrice) {
				if err := appendCostHistory(tx, item.ProductId, item.CurrentCostPrice, item.NewCostPrice, id, actorId, now); err != nil {
					return err
				}
			}
		}

		var items []PurchaseItem
		if err := tx.Where("purchase_id = ?", id).Find(&items).Error; err != nil {
			return err
		}
		allReceived := true
		for _, item := range items {
			if item.QuantityReceived.LessThan(item.Quantity) {
				allReceived = false
				break
			}
		}
		if allReceived {
			deliveredAt := now
			if actualDeliveryDate != nil {
				deliveredAt = *actualDeliveryDate
			}
			if err := tx.Model(purchase).Updates(map[string]interface{}{
				"CurrentStatus":      PurchaseStatusReceived,
				"ActualDeliveryDate": deliveredAt,
			}).Error; err != nil {
				return err
			}
			purchase.CurrentStatus = PurchaseStatusReceived
			purchase.ActualDeliveryDate = &deliveredAt
		}
		purchase.Items = items
		return nil
	})
	if err != nil {
		return nil, err
	}
	return purchase, nil
}

func GetPurchase(ctx context.Context, h *TenantHandle, id int) (*Purchase, error) {
	return fetchModel[Purchase](h.DB(ctx), id, "Items")
}

func GetPurchases(ctx context.Context, h *TenantHandle, branchId *int, status *PurchaseStatus) ([]*Purchase, error) {
	dbCtx := h.DB(ctx)
	if branchId != nil && *branchId > 0 {
		dbCtx = dbCtx.Where("branch_id = ?", *branchId)
	}
	if status != nil && *status != "" {
		dbCtx = dbCtx.Where("current_status = ?", *status)
	}
	var purchases []*Purchase
	if err := dbCtx.Preload("Items").Order("order_date DESC, id DESC").Find(&purchases).Error; err != nil {
		return nil, err
	}
	return purchases, nil
}
