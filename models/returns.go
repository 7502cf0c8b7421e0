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

// Return references exactly one prior customer transaction. Processing is
// terminal for the goods; refunds keep accruing against TotalAmount
// afterwards.
type Return struct {
	ID            int             `gorm:"primary_key" json:"id"`
	ReturnNumber  string          `gorm:"uniqueIndex;size:32;not null" json:"return_number"`
	BranchId      int             `gorm:"index;not null" json:"branch_id"`
	SaleId        *int            `gorm:"index;default:null" json:"sale_id"`
	LaybyId       *int            `gorm:"index;default:null" json:"layby_id"`
	QuotationId   *int            `gorm:"index;default:null" json:"quotation_id"`
	CustomerId    int             `gorm:"index;default:null" json:"customer_id"`
	TotalAmount   decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"total_amount"`
	TotalRefunded decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"total_refunded"`
	CurrentStatus ReturnStatus    `gorm:"size:20;not null" json:"current_status"`
	Reason        string          `gorm:"size:255" json:"reason"`
	CreatedBy     int             `gorm:"default:null" json:"created_by"`
	ApprovedBy    int             `gorm:"default:null" json:"approved_by"`
	ApprovedAt    *time.Time      `gorm:"default:null" json:"approved_at"`
	ProcessedBy   int             `gorm:"default:null" json:"processed_by"`
	ProcessedAt   *time.Time      `gorm:"default:null" json:"processed_at"`
	Items         []ReturnItem    `gorm:"foreignKey:ReturnId" json:"items"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type ReturnItem struct {
	ID              int                 `gorm:"primary_key" json:"id"`
	ReturnId        int                 `gorm:"index;not null" json:"return_id"`
	ProductId       int                 `gorm:"index;not null" json:"product_id"`
	Quantity        decimal.Decimal     `gorm:"type:decimal(20,4);not null" json:"quantity"`
	UnitPrice       decimal.Decimal     `gorm:"type:decimal(20,4);not null" json:"unit_price"`
	RefundAmount    decimal.Decimal     `gorm:"type:decimal(20,4);not null" json:"refund_amount"`
	Condition       ReturnItemCondition `gorm:"size:20;not null" json:"condition"`
	InventoryLossId *int                `gorm:"default:null" json:"inventory_loss_id"`
}

type NewReturn struct {
	SaleId      *int            `json:"sale_id"`
	LaybyId     *int            `json:"layby_id"`
	QuotationId *int            `json:"quotation_id"`
	Reason      string          `json:"reason"`
	Items       []NewReturnItem `json:"items" binding:"required,dive"`
}

type NewReturnItem struct {
	ProductId int                 `json:"product_id" binding:"required"`
	Quantity  decimal.Decimal     `json:"quantity" binding:"required"`
	Condition ReturnItemCondition `json:"condition" binding:"required"`
}

// returnSource is the resolved original transaction: where it happened, for
// whom, when, and at what unit prices.
type returnSource struct {
	branchId        int
	customerId      int
	transactionDate time.Time
	unitPrices      map[int]decimal.Decimal
	quantities      map[int]decimal.Decimal
}

func resolveReturnSource(tx *gorm.DB, input *NewReturn) (*returnSource, error) {
	set := 0
	for _, id := range []*int{input.SaleId, input.LaybyId, input.QuotationId} {
		if id != nil {
			set++
		}
	}
	if set != 1 {
		return nil, fmt.Errorf("got %d source references, need exactly one of sale, layby or quotation: %w",
			set, utils.ErrAmbiguousOrMissingSource)
	}

	source := &returnSource{
		unitPrices: make(map[int]decimal.Decimal),
		quantities: make(map[int]decimal.Decimal),
	}
	switch {
	case input.SaleId != nil:
		sale, err := fetchModel[Sale](tx, *input.SaleId, "Items")
		if err != nil {
			return nil, fmt.Errorf("sale: %w", err)
		}
		source.branchId = sale.BranchId
		source.customerId = sale.CustomerId
		source.transactionDate = sale.TransactionDate
		for _, item := range sale.Items {
			source.unitPrices[item.ProductId] = item.UnitPrice
			source.quantities[item.ProductId] = source.quantities[item.ProductId].Add(item.Quantity)
		}
	case input.LaybyId != nil:
		layby, err := fetchModel[Layby](tx, *input.LaybyId, "Items")
		if err != nil {
			return nil, fmt.Errorf("layby: %w", err)
		}
		source.branchId = layby.BranchId
		source.customerId = layby.CustomerId
		source.transactionDate = layby.TransactionDate
		for _, item := range layby.Items {
			source.unitPrices[item.ProductId] = item.UnitPrice
			source.quantities[item.ProductId] = source.quantities[item.ProductId].Add(item.Quantity)
		}
	default:
		quotation, err := fetchModel[Quotation](tx, *input.QuotationId, "Items")
		if err != nil {
			return nil, fmt.Errorf("quotation: %w", err)
		}
		source.branchId = quotation.BranchId
		source.customerId = quotation.CustomerId
		source.transactionDate = quotation.TransactionDate
		for _, item := range quotation.Items {
			source.unitPrices[item.ProductId] = item.UnitPrice
			source.quantities[item.ProductId] = source.quantities[item.ProductId].Add(item.Quantity)
		}
	}
	return source, nil
}

// CreateReturn opens a draft return against one prior transaction. The
// branch's return window is checked against the original transaction date;
// unit prices come from the original line items, never from the current
// catalog.
func CreateReturn(ctx context.Context, h *TenantHandle, input *NewReturn) (*Return, error) {
	if len(input.Items) == 0 {
		return nil, errors.New("at least one item is required")
	}

	settings, err := h.Settings(ctx)
	if err != nil {
		return nil, err
	}

	var ret Return
	err = h.runInTenantTransaction(ctx, func(tx *gorm.DB) error {
		source, err := resolveReturnSource(tx, input)
		if err != nil {
			return err
		}

		branch, err := fetchModel[Branch](tx, source.branchId)
		if err != nil {
			return fmt.Errorf("branch: %w", err)
		}
		elapsed, err := utils.DaysBetween(source.transactionDate, h.Now(), settings.Timezone)
		if err != nil {
			return err
		}
		if elapsed > branch.ReturnWindowDays {
			return fmt.Errorf("transaction is %d days old, window is %d days: %w",
				elapsed, branch.ReturnWindowDays, utils.ErrReturnWindowExpired)
		}

		items := make([]ReturnItem, 0, len(input.Items))
		total := decimal.Zero
		for _, in := range input.Items {
			if !in.Quantity.IsPositive() {
				return fmt.Errorf("product %d: quantity must be positive", in.ProductId)
			}
			switch in.Condition {
			case ReturnItemConditionGood, ReturnItemConditionDamaged:
			default:
				return fmt.Errorf("product %d: unknown condition %q", in.ProductId, in.Condition)
			}
			price, ok := source.unitPrices[in.ProductId]
			if !ok {
				return fmt.Errorf("product %d is not on the original transaction: %w", in.ProductId, utils.ErrorRecordNotFound)
			}
			if in.Quantity.GreaterThan(source.quantities[in.ProductId]) {
				return fmt.Errorf("product %d: returning %s of %s originally bought",
					in.ProductId, in.Quantity.String(), source.quantities[in.ProductId].String())
			}
			refund := in.Quantity.Mul(price)
			items = append(items, ReturnItem{
				ProductId:    in.ProductId,
				Quantity:     in.Quantity,
				UnitPrice:    price,
				RefundAmount: refund,
				Condition:    in.Condition,
			})
			total = total.Add(refund)
		}

		number, err := nextDocumentNumber(tx, DocumentTypeReturn, h.Now())
		if err != nil {
			return err
		}
		ret = Return{
			ReturnNumber:  number,
			BranchId:      source.branchId,
			SaleId:        input.SaleId,
			LaybyId:       input.LaybyId,
			QuotationId:   input.QuotationId,
			CustomerId:    source.customerId,
			TotalAmount:   total,
			TotalRefunded: decimal.Zero,
			CurrentStatus: ReturnStatusDraft,
			Reason:        input.Reason,
			CreatedBy:     actorIdFromContext(ctx),
			Items:         items,
		}
		return tx.Create(&ret).Error
	})
	if err != nil {
		return nil, err
	}
	return &ret, nil
}

func ApproveReturn(ctx context.Context, h *TenantHandle, id int) (*Return, error) {
	var ret *Return
	err := h.runInTenantTransaction(ctx, func(tx *gorm.DB) error {
		var err error
		ret, err = fetchModelForUpdate[Return](tx, id, "Items")
		if err != nil {
			return fmt.Errorf("return: %w", err)
		}
		if ret.CurrentStatus != ReturnStatusDraft {
			return fmt.Errorf("return %s is %s: %w", ret.ReturnNumber, ret.CurrentStatus, utils.ErrInvalidStateTransition)
		}
		now := h.Now()
		if err := tx.Model(ret).Updates(map[string]interface{}{
			"CurrentStatus": ReturnStatusApproved,
			"ApprovedBy":    actorIdFromContext(ctx),
			"ApprovedAt":    now,
		}).Error; err != nil {
			return err
		}
		ret.CurrentStatus = ReturnStatusApproved
		ret.ApprovedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// ProcessReturn disposes of the goods: good items restock the branch's
// inventory, damaged items become auto-approved inventory losses stamped
// onto the line. One transaction covers every line plus the status move.
func ProcessReturn(ctx context.Context, h *TenantHandle, id int) (*Return, error) {
	var ret *Return
	err := h.runInTenantTransaction(ctx, func(tx *gorm.DB) error {
		var err error
		ret, err = fetchModelForUpdate[Return](tx, id, "Items")
		if err != nil {
			return fmt.Errorf("return: %w", err)
		}
		if ret.CurrentStatus != ReturnStatusApproved {
			return fmt.Errorf("return %s is %s: %w", ret.ReturnNumber, ret.CurrentStatus, utils.ErrInvalidStateTransition)
		}

		now := h.Now()
		actorId := actorIdFromContext(ctx)
		for i := range ret.Items {
			item := &ret.Items[i]
			if item.Condition == ReturnItemConditionGood {
				if _, err := adjustInventoryTx(tx, ret.BranchId, item.ProductId, item.Quantity, now); err != nil {
					return err
				}
				continue
			}

			loss := InventoryLoss{
				BranchId:   ret.BranchId,
				ProductId:  item.ProductId,
				Quantity:   item.Quantity,
				Reason:     fmt.Sprintf("damaged return %s", ret.ReturnNumber),
				ReturnId:   ret.ID,
				IsApproved: utils.NewTrue(),
				CreatedBy:  actorId,
			}
			if err := tx.Create(&loss).Error; err != nil {
				return err
			}
			if err := tx.Model(item).Update("InventoryLossId", loss.ID).Error; err != nil {
				return err
			}
			item.InventoryLossId = &loss.ID
		}

		if err := tx.Model(ret).Updates(map[string]interface{}{
			"CurrentStatus": ReturnStatusProcessed,
			"ProcessedBy":   actorId,
			"ProcessedAt":   now,
		}).Error; err != nil {
			return err
		}
		ret.CurrentStatus = ReturnStatusProcessed
		ret.ProcessedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func GetReturn(ctx context.Context, h *TenantHandle, id int) (*Return, error) {
	return fetchModel[Return](h.DB(ctx), id, "Items")
}

func GetReturns(ctx context.Context, h *TenantHandle, branchId *int, status *ReturnStatus) ([]*Return, error) {
	dbCtx := h.DB(ctx)
	if branchId != nil && *branchId > 0 {
		dbCtx = dbCtx.Where("branch_id = ?", *branchId)
	}
	if status != nil && *status != "" {
		dbCtx = dbCtx.Where("current_status = ?", *status)
	}
	var returns []*Return
	if err := dbCtx.Preload("Items").Order("id DESC").Find(&returns).Error; err != nil {
		return nil, err
	}
	return returns, nil
}
