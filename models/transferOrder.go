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

// InventoryTransfer moves stock between two branches of the same tenant.
// Stock does not move at creation or approval: the debit and credit happen
// together at completion, in one transaction.
type InventoryTransfer struct {
	ID              int                     `gorm:"primary_key" json:"id"`
	FromBranchId    int                     `gorm:"index;not null" json:"from_branch_id" binding:"required"`
	ToBranchId      int                     `gorm:"index;not null" json:"to_branch_id" binding:"required"`
	CurrentStatus   TransferStatus          `gorm:"size:20;not null" json:"current_status"`
	Notes           string                  `gorm:"type:text" json:"notes"`
	RejectionReason string                  `gorm:"size:255" json:"rejection_reason"`
	RequestedBy     int                     `gorm:"default:null" json:"requested_by"`
	ReviewedBy      int                     `gorm:"default:null" json:"reviewed_by"`
	ReviewedAt      *time.Time              `gorm:"default:null" json:"reviewed_at"`
	CompletedAt     *time.Time              `gorm:"default:null" json:"completed_at"`
	Items           []InventoryTransferItem `gorm:"foreignKey:TransferId" json:"items"`
	CreatedAt       time.Time               `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time               `gorm:"autoUpdateTime" json:"updated_at"`
}

type InventoryTransferItem struct {
	ID         int             `gorm:"primary_key" json:"id"`
	TransferId int             `gorm:"index;not null" json:"transfer_id"`
	ProductId  int             `gorm:"index;not null" json:"product_id"`
	Quantity   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
}

type NewInventoryTransfer struct {
	FromBranchId int                        `json:"from_branch_id" binding:"required"`
	ToBranchId   int                        `json:"to_branch_id" binding:"required"`
	Notes        string                     `json:"notes"`
	Items        []NewInventoryTransferItem `json:"items" binding:"required,dive"`
}

type NewInventoryTransferItem struct {
	ProductId int             `json:"product_id" binding:"required"`
	Quantity  decimal.Decimal `json:"quantity" binding:"required"`
}

func (input *NewInventoryTransfer) validate(tx *gorm.DB) error {
	if input.FromBranchId == input.ToBranchId {
		return fmt.Errorf("source and destination branch are the same: %w", utils.ErrCrossBranchReference)
	}
	if err := validateResourceId[Branch](tx, input.FromBranchId); err != nil {
		return fmt.Errorf("source branch: %w", err)
	}
	if err := validateResourceId[Branch](tx, input.ToBranchId); err != nil {
		return fmt.Errorf("destination branch: %w", err)
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
		onHand, err := currentStockTx(tx, input.FromBranchId, item.ProductId)
		if err != nil {
			return err
		}
		if onHand.LessThan(item.Quantity) {
			return fmt.Errorf("branch %d product %d on hand %s, requested %s: %w",
				input.FromBranchId, item.ProductId, onHand.String(), item.Quantity.String(), utils.ErrInsufficientStock)
		}
	}
	return nil
}

// CreateInventoryTransfer opens a pending transfer request. The source must
// cover every line at creation time, but that check is advisory: stock can
// still drain before completion, and the binding check happens there.
func CreateInventoryTransfer(ctx context.Context, h *TenantHandle, input *NewInventoryTransfer) (*InventoryTransfer, error) {
	var transfer InventoryTransfer
	err := h.runInTenantTransaction(ctx, func(tx *gorm.DB) error {
		if err := input.validate(tx); err != nil {
			return err
		}
		items := make([]InventoryTransferItem, 0, len(input.Items))
		for _, in := range input.Items {
			items = append(items, InventoryTransferItem{
				ProductId: in.ProductId,
				Quantity:  in.Quantity,
			})
		}
		transfer = InventoryTransfer{
			FromBranchId:  input.FromBranchId,
			ToBranchId:    input.ToBranchId,
			CurrentStatus: TransferStatusPending,
			Notes:         input.Notes,
			RequestedBy:   actorIdFromContext(ctx),
			Items:         items,
		}
		return tx.Create(&transfer).Error
	})
	if err != nil {
		return nil, err
	}
	return &transfer, nil
}

// ReviewInventoryTransfer approves or rejects a pending transfer. A
// rejection reason is optional and kept for the audit trail; approval still
// moves no stock.
func ReviewInventoryTransfer(ctx context.Context, h *TenantHandle, id int, approve bool, rejectionReason string) (*InventoryTransfer, error) {
	var transfer *InventoryTransfer
	err := h.runInTenantTransaction(ctx, func(tx *gorm.DB) error {
		var err error
		transfer, err = fetchModelForUpdate[InventoryTransfer](tx, id, "Items")
		if err != nil {
			return fmt.Errorf("transfer: %w", err)
		}
		if transfer.CurrentStatus != TransferStatusPending {
			return fmt.Errorf("transfer %d is %s: %w", id, transfer.CurrentStatus, utils.ErrInvalidStateTransition)
		}

		now := h.Now()
		updates := map[string]interface{}{
			"ReviewedBy": actorIdFromContext(ctx),
			"ReviewedAt": now,
		}
		if approve {
			updates["CurrentStatus"] = TransferStatusApproved
			transfer.CurrentStatus = TransferStatusApproved
		} else {
			updates["CurrentStatus"] = TransferStatusRejected
			updates["RejectionReason"] = rejectionReason
			transfer.CurrentStatus = TransferStatusRejected
			transfer.RejectionReason = rejectionReason
		}
		transfer.ReviewedAt = &now
		return tx.Model(transfer).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	return transfer, nil
}

// CompleteInventoryTransfer moves the stock: every line is debited at the
// source and credited at the destination in the same transaction. Any line
// short on source stock aborts the whole move and the transfer stays
// approved.
func CompleteInventoryTransfer(ctx context.Context, h *TenantHandle, id int) (*InventoryTransfer, error) {
	var transfer *InventoryTransfer
	err := h.runInTenantTransaction(ctx, func(tx *gorm.DB) error {
		var err error
		transfer, err = fetchModelForUpdate[InventoryTransfer](tx, id, "Items")
		if err != nil {
			return fmt.Errorf("transfer: %w", err)
		}
		if transfer.CurrentStatus != TransferStatusApproved {
			return fmt.Errorf("transfer %d is %s: %w", id, transfer.CurrentStatus, utils.ErrInvalidStateTransition)
		}

		now := h.Now()
		for _, item := range transfer.Items {
			if _, err := adjustInventoryTx(tx, transfer.FromBranchId, item.ProductId, item.Quantity.Neg(), now); err != nil {
				return err
			}
			if _, err := adjustInventoryTx(tx, transfer.ToBranchId, item.ProductId, item.Quantity, now); err != nil {
				return err
			}
		}

		if err := tx.Model(transfer).Updates(map[string]interface{}{
			"CurrentStatus": TransferStatusCompleted,
			"CompletedAt":   now,
		}).Error; err != nil {
			return err
		}
		transfer.CurrentStatus = TransferStatusCompleted
		transfer.CompletedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return transfer, nil
}

func GetInventoryTransfer(ctx context.Context, h *TenantHandle, id int) (*InventoryTransfer, error) {
	return fetchModel[InventoryTransfer](h.DB(ctx), id, "Items")
}

func GetInventoryTransfers(ctx context.Context, h *TenantHandle, branchId *int, status *TransferStatus) ([]*InventoryTransfer, error) {
	dbCtx := h.DB(ctx)
	if branchId != nil && *branchId > 0 {
		dbCtx = dbCtx.Where("from_branch_id = ? OR to_branch_id = ?", *branchId, *branchId)
	}
	if status != nil && *status != "" {
		dbCtx = dbCtx.Where("current_status = ?", *status)
	}
	var transfers []*InventoryTransfer
	if err := dbCtx.Preload("Items").Order("id DESC").Find(&transfers).Error; err != nil {
		return nil, err
	}
	return transfers, nil
}
