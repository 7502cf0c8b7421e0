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

// Sale, Layby and Quotation are the three customer transactions a return
// can reference. A sale moves stock immediately; a layby holds goods
// against a deposit without moving stock here; a quotation is a priced
// offer only.

type Sale struct {
	ID              int             `gorm:"primary_key" json:"id"`
	BranchId        int             `gorm:"index;not null" json:"branch_id" binding:"required"`
	CustomerId      int             `gorm:"index;default:null" json:"customer_id"`
	ShiftId         *int            `gorm:"index;default:null" json:"shift_id"`
	TotalAmount     decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"total_amount"`
	TransactionDate time.Time       `gorm:"index;not null" json:"transaction_date"`
	CreatedBy       int             `gorm:"default:null" json:"created_by"`
	Items           []SaleItem      `gorm:"foreignKey:SaleId" json:"items"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type SaleItem struct {
	ID        int             `gorm:"primary_key" json:"id"`
	SaleId    int             `gorm:"index;not null" json:"sale_id"`
	ProductId int             `gorm:"index;not null" json:"product_id"`
	Quantity  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_price"`
}

type Layby struct {
	ID              int             `gorm:"primary_key" json:"id"`
	BranchId        int             `gorm:"index;not null" json:"branch_id" binding:"required"`
	CustomerId      int             `gorm:"index;not null" json:"customer_id" binding:"required"`
	TotalAmount     decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"total_amount"`
	DepositAmount   decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"deposit_amount"`
	TransactionDate time.Time       `gorm:"index;not null" json:"transaction_date"`
	CreatedBy       int             `gorm:"default:null" json:"created_by"`
	Items           []LaybyItem     `gorm:"foreignKey:LaybyId" json:"items"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type LaybyItem struct {
	ID        int             `gorm:"primary_key" json:"id"`
	LaybyId   int             `gorm:"index;not null" json:"layby_id"`
	ProductId int             `gorm:"index;not null" json:"product_id"`
	Quantity  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_price"`
}

type Quotation struct {
	ID              int             `gorm:"primary_key" json:"id"`
	BranchId        int             `gorm:"index;not null" json:"branch_id" binding:"required"`
	CustomerId      int             `gorm:"index;default:null" json:"customer_id"`
	TotalAmount     decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"total_amount"`
	TransactionDate time.Time       `gorm:"index;not null" json:"transaction_date"`
	CreatedBy       int             `gorm:"default:null" json:"created_by"`
	Items           []QuotationItem `gorm:"foreignKey:QuotationId" json:"items"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type QuotationItem struct {
	ID          int             `gorm:"primary_key" json:"id"`
	QuotationId int             `gorm:"index;not null" json:"quotation_id"`
	ProductId   int             `gorm:"index;not null" json:"product_id"`
	Quantity    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_price"`
}

type NewSaleLine struct {
	ProductId int             `json:"product_id" binding:"required"`
	Quantity  decimal.Decimal `json:"quantity" binding:"required"`
	UnitPrice decimal.Decimal `json:"unit_price" binding:"required"`
}

type NewSale struct {
	BranchId        int           `json:"branch_id" binding:"required"`
	CustomerId      int           `json:"customer_id"`
	ShiftId         *int          `json:"shift_id"`
	TransactionDate *time.Time    `json:"transaction_date"`
	Items           []NewSaleLine `json:"items" binding:"required,dive"`
}

func validateSaleLines(tx *gorm.DB, branchId int, lines []NewSaleLine) (decimal.Decimal, error) {
	if err := validateResourceId[Branch](tx, branchId); err != nil {
		return decimal.Zero, fmt.Errorf("branch: %w", err)
	}
	if len(lines) == 0 {
		return decimal.Zero, errors.New("at least one item is required")
	}
	total := decimal.Zero
	for _, line := range lines {
		if err := validateResourceId[Product](tx, line.ProductId); err != nil {
			return decimal.Zero, fmt.Errorf("product %d: %w", line.ProductId, err)
		}
		if !line.Quantity.IsPositive() {
			return decimal.Zero, fmt.Errorf("product %d: quantity must be positive", line.ProductId)
		}
		if line.UnitPrice.IsNegative() {
			return decimal.Zero, fmt.Errorf("product %d: unit price cannot be negative", line.ProductId)
		}
		total = total.Add(line.Quantity.Mul(line.UnitPrice))
	}
	return total, nil
}

// CreateSale records a completed sale and debits the branch inventory for
// every line in the same transaction. A referenced shift must be open.
func CreateSale(ctx context.Context, h *TenantHandle, input *NewSale) (*Sale, error) {
	var sale Sale
	err := h.runInTenantTransaction(ctx, func(tx *gorm.DB) error {
		total, err := validateSaleLines(tx, input.BranchId, input.Items)
		if err != nil {
			return err
		}
		if input.ShiftId != nil {
			if err := requireOpenShift(tx, *input.ShiftId); err != nil {
				return err
			}
		}

		now := h.Now()
		transactionDate := now
		if input.TransactionDate != nil {
			transactionDate = *input.TransactionDate
		}

		items := make([]SaleItem, 0, len(input.Items))
		for _, line := range input.Items {
			if _, err := adjustInventoryTx(tx, input.BranchId, line.ProductId, line.Quantity.Neg(), now); err != nil {
				return err
			}
			items = append(items, SaleItem{
				ProductId: line.ProductId,
				Quantity:  line.Quantity,
				UnitPrice: line.UnitPrice,
			})
		}

		sale = Sale{
			BranchId:        input.BranchId,
			CustomerId:      input.CustomerId,
			ShiftId:         input.ShiftId,
			TotalAmount:     total,
			TransactionDate: transactionDate,
			CreatedBy:       actorIdFromContext(ctx),
			Items:           items,
		}
		return tx.Create(&sale).Error
	})
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

type NewLayby struct {
	BranchId        int             `json:"branch_id" binding:"required"`
	CustomerId      int             `json:"customer_id" binding:"required"`
	DepositAmount   decimal.Decimal `json:"deposit_amount"`
	TransactionDate *time.Time      `json:"transaction_date"`
	Items           []NewSaleLine   `json:"items" binding:"required,dive"`
}

// CreateLayby records a layby. Stock stays put until the goods are handed
// over at the counter.
func CreateLayby(ctx context.Context, h *TenantHandle, input *NewLayby) (*Layby, error) {
	var layby Layby
	err := h.runInTenantTransaction(ctx, func(tx *gorm.DB) error {
		total, err := validateSaleLines(tx, input.BranchId, input.Items)
		if err != nil {
			return err
		}
		if err := validateResourceId[Customer](tx, input.CustomerId); err != nil {
			return fmt.Errorf("customer: %w", err)
		}
		if input.DepositAmount.IsNegative() || input.DepositAmount.GreaterThan(total) {
			return errors.New("deposit must be between zero and the layby total")
		}

		transactionDate := h.Now()
		if input.TransactionDate != nil {
			transactionDate = *input.TransactionDate
		}
		items := make([]LaybyItem, 0, len(input.Items))
		for _, line := range input.Items {
			items = append(items, LaybyItem{
				ProductId: line.ProductId,
				Quantity:  line.Quantity,
				UnitPrice: line.UnitPrice,
			})
		}
		layby = Layby{
			BranchId:        input.BranchId,
			CustomerId:      input.CustomerId,
			TotalAmount:     total,
			DepositAmount:   input.DepositAmount,
			TransactionDate: transactionDate,
			CreatedBy:       actorIdFromContext(ctx),
			Items:           items,
		}
		return tx.Create(&layby).Error
	})
	if err != nil {
		return nil, err
	}
	return &layby, nil
}

type NewQuotation struct {
	BranchId        int           `json:"branch_id" binding:"required"`
	CustomerId      int           `json:"customer_id"`
	TransactionDate *time.Time    `json:"transaction_date"`
	Items           []NewSaleLine `json:"items" binding:"required,dive"`
}

func CreateQuotation(ctx context.Context, h *TenantHandle, input *NewQuotation) (*Quotation, error) {
	var quotation Quotation
	err := h.runInTenantTransaction(ctx, func(tx *gorm.DB) error {
		total, err := validateSaleLines(tx, input.BranchId, input.Items)
		if err != nil {
			return err
		}
		transactionDate := h.Now()
		if input.TransactionDate != nil {
			transactionDate = *input.TransactionDate
		}
		items := make([]QuotationItem, 0, len(input.Items))
		for _, line := range input.Items {
			items = append(items, QuotationItem{
				ProductId: line.ProductId,
				Quantity:  line.Quantity,
				UnitPrice: line.UnitPrice,
			})
		}
		quotation = Quotation{
			BranchId:        input.BranchId,
			CustomerId:      input.CustomerId,
			TotalAmount:     total,
			TransactionDate: transactionDate,
			CreatedBy:       actorIdFromContext(ctx),
			Items:           items,
		}
		return tx.Create(&quotation).Error
	})
	if err != nil {
		return nil, err
	}
	return &quotation, nil
}

func GetSale(ctx context.Context, h *TenantHandle, id int) (*Sale, error) {
	return fetchModel[Sale](h.DB(ctx), id, "Items")
}

func GetLayby(ctx context.Context, h *TenantHandle, id int) (*Layby, error) {
	return fetchModel[Layby](h.DB(ctx), id, "Items")
}

func GetQuotation(ctx context.Context, h *TenantHandle, id int) (*Quotation, error) {
	return fetchModel[Quotation](h.DB(ctx), id, "Items")
}

// Shift is one cash-drawer session at a branch. Refunds and sales that
// reference a shift require it to be open.
type Shift struct {
	ID            int             `gorm:"primary_key" json:"id"`
	BranchId      int             `gorm:"index;not null" json:"branch_id" binding:"required"`
	CurrentStatus ShiftStatus     `gorm:"size:20;not null" json:"current_status"`
	OpeningFloat  decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"opening_float"`
	ClosingAmount decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"closing_amount"`
	OpenedBy      int             `gorm:"default:null" json:"opened_by"`
	OpenedAt      time.Time       `gorm:"not null" json:"opened_at"`
	ClosedBy      int             `gorm:"default:null" json:"closed_by"`
	ClosedAt      *time.Time      `gorm:"default:null" json:"closed_at"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// requireOpenShift gates drawer-touching operations.
func requireOpenShift(tx *gorm.DB, shiftId int) error {
	shift, err := fetchModel[Shift](tx, shiftId)
	if err != nil {
		return fmt.Errorf("shift: %w", err)
	}
	if shift.CurrentStatus != ShiftStatusOpen {
		return fmt.Errorf("shift %d is %s: %w", shiftId, shift.CurrentStatus, utils.ErrShiftNotOpen)
	}
	return nil
}

// OpenShift starts a drawer session. One open shift per branch at a time.
func OpenShift(ctx context.Context, h *TenantHandle, branchId int, openingFloat decimal.Decimal) (*Shift, error) {
	if openingFloat.IsNegative() {
		return nil, errors.New("opening float cannot be negative")
	}
	var shift Shift
	err := h.runInTenantTransaction(ctx, func(tx *gorm.DB) error {
		if err := validateResourceId[Branch](tx, branchId); err != nil {
			return fmt.Errorf("branch: %w", err)
		}
		openCount, err := resourceCountWhere[Shift](tx, "branch_id = ? AND current_status = ?", branchId, ShiftStatusOpen)
		if err != nil {
			return err
		}
		if openCount > 0 {
			return fmt.Errorf("branch %d already has an open shift: %w", branchId, utils.ErrInvalidStateTransition)
		}
		shift = Shift{
			BranchId:      branchId,
			CurrentStatus: ShiftStatusOpen,
			OpeningFloat:  openingFloat,
			OpenedBy:      actorIdFromContext(ctx),
			OpenedAt:      h.Now(),
		}
		return tx.Create(&shift).Error
	})
	if err != nil {
		return nil, err
	}
	return &shift, nil
}

func CloseShift(ctx context.Context, h *TenantHandle, shiftId int, closingAmount decimal.Decimal) (*Shift, error) {
	var shift *Shift
	err := h.runInTenantTransaction(ctx, func(tx *gorm.DB) error {
		var err error
		shift, err = fetchModelForUpdate[Shift](tx, shiftId)
		if err != nil {
			return fmt.Errorf("shift: %w", err)
		}
		if shift.CurrentStatus != ShiftStatusOpen {
			return fmt.Errorf("shift %d is %s: %w", shiftId, shift.CurrentStatus, utils.ErrShiftNotOpen)
		}
		now := h.Now()
		if err := tx.Model(shift).Updates(map[string]interface{}{
			"CurrentStatus": ShiftStatusClosed,
			"ClosingAmount": closingAmount,
			"ClosedBy":      actorIdFromContext(ctx),
			"ClosedAt":      now,
		}).Error; err != nil {
			return err
		}
		shift.CurrentStatus = ShiftStatusClosed
		shift.ClosingAmount = closingAmount
		shift.ClosedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return shift, nil
}

func GetShift(ctx context.Context, h *TenantHandle, id int) (*Shift, error) {
	return fetchModel[Shift](h.DB(ctx), id)
}
