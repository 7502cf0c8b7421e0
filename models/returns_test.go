package models

import (
	"context"
	"errors"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/backoffice_backend/utils"
	"github.com/shopspring/decimal"
)

// makeSale stocks the branch and sells two widgets at 15 each on the given
// date.
func makeSale(t *testing.T, ctx context.Context, h *TenantHandle, f *fixture, date time.Time) *Sale {
	t.Helper()
	mustStock(t, ctx, h, f.MainBranchId, f.WidgetProductId, 10)
	sale, err := CreateSale(ctx, h, &NewSale{
		BranchId:        f.MainBranchId,
		CustomerId:      f.CustomerId,
		TransactionDate: &date,
		Items: []NewSaleLine{
			{ProductId: f.WidgetProductId, Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(15)},
		},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	return sale
}

func TestCreateReturnRequiresExactlyOneSource(t *testing.T) {
	h := newTestHandle(t)
	ctx := testContext()
	f := seedFixture(t, ctx, h)
	sale := makeSale(t, ctx, h, f, testNow.AddDate(0, 0, -5))

	items := []NewReturnItem{
		{ProductId: f.WidgetProductId, Quantity: decimal.NewFromInt(1), Condition: ReturnItemConditionGood},
	}

	// No source.
	if _, err := CreateReturn(ctx, h, &NewReturn{Items: items}); !errors.Is(err, utils.ErrAmbiguousOrMissingSource) {
		t.Fatalf("no source err = %v, want ErrAmbiguousOrMissingSource", err)
	}

	// Two sources.
	laybyId := 1
	if _, err := CreateReturn(ctx, h, &NewReturn{
		SaleId: &sale.ID, LaybyId: &laybyId, Items: items,
	}); !errors.Is(err, utils.ErrAmbiguousOrMissingSource) {
		t.Fatalf("two sources err = %v, want ErrAmbiguousOrMissingSource", err)
	}
}

func TestCreateReturnWindow(t *testing.T) {
	h := newTestHandle(t)
	ctx := testContext()
	f := seedFixture(t, ctx, h)

	items := []NewReturnItem{
		{ProductId: f.WidgetProductId, Quantity: decimal.NewFromInt(1), Condition: ReturnItemConditionGood},
	}

	// 40 days old against a 30-day window.
	stale := makeSale(t, ctx, h, f, testNow.AddDate(0, 0, -40))
	if _, err := CreateReturn(ctx, h, &NewReturn{SaleId: &stale.ID, Items: items}); !errors.Is(err, utils.ErrReturnWindowExpired) {
		t.Fatalf("err = %v, want ErrReturnWindowExpired", err)
	}

	// Same purchase 20 days old: inside the window.
	fresh := makeSale(t, ctx, h, f, testNow.AddDate(0, 0, -20))
	ret, err := CreateReturn(ctx, h, &NewReturn{SaleId: &fresh.ID, Items: items})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ret.CurrentStatus != ReturnStatusDraft {
		t.Fatalf("status = %s, want draft", ret.CurrentStatus)
	}
	// Price resolves from the original sale line, not the catalog.
	decimalEquals(t, "total", ret.TotalAmount, decimal.NewFromInt(15))
	if ret.CustomerId != f.CustomerId {
		t.Fatalf("customer = %d, want %d", ret.CustomerId, f.CustomerId)
	}
}

func TestCreateReturnRejectsForeignProductAndExcessQuantity(t *testing.T) {
	h := newTestHandle(t)
	ctx := testContext()
	f := seedFixture(t, ctx, h)
	sale := makeSale(t, ctx, h, f, testNow.AddDate(0, 0, -1))

	// Gadget never appeared on the sale.
	if _, err := CreateReturn(ctx, h, &NewReturn{
		SaleId: &sale.ID,
		Items: []NewReturnItem{
			{ProductId: f.GadgetProductId, Quantity: decimal.NewFromInt(1), Condition: ReturnItemConditionGood},
		},
	}); !errors.Is(err, utils.ErrorRecordNotFound) {
		t.Fatalf("foreign product err = %v, want ErrorRecordNotFound", err)
	}

	// Sold 2, returning 3.
	if _, err := CreateReturn(ctx, h, &NewReturn{
		SaleId: &sale.ID,
		Items: []NewReturnItem{
			{ProductId: f.WidgetProductId, Quantity: decimal.NewFromInt(3), Condition: ReturnItemConditionGood},
		},
	}); err == nil {
		t.Fatal("returning more than sold should fail")
	}
}

func TestProcessReturnRestocksGoodAndWritesOffDamaged(t *testing.T) {
	h := newTestHandle(t)
	ctx := testContext()
	f := seedFixture(t, ctx, h)
	sale := makeSale(t, ctx, h, f, testNow.AddDate(0, 0, -2))

	ret, err := CreateReturn(ctx, h, &NewReturn{
		SaleId: &sale.ID,
		Items: []NewReturnItem{
			{ProductId: f.WidgetProductId, Quantity: decimal.NewFromInt(1), Condition: ReturnItemConditionGood},
			{ProductId: f.WidgetProductId, Quantity: decimal.NewFromInt(1), Condition: ReturnItemConditionDamaged},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Process straight from draft is illegal.
	if _, err := ProcessReturn(ctx, h, ret.ID); !errors.Is(err, utils.ErrInvalidStateTransition) {
		t.Fatalf("process draft err = %v, want ErrInvalidStateTransition", err)
	}
	if _, err := ApproveReturn(ctx, h, ret.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}

	before, _ := GetInventoryOrZero(ctx, h, f.MainBranchId, f.WidgetProductId)
	processed, err := ProcessReturn(ctx, h, ret.ID)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if processed.CurrentStatus != ReturnStatusProcessed {
		t.Fatalf("status = %s, want processed", processed.CurrentStatus)
	}

	// Only the good unit restocks.
	after, _ := GetInventoryOrZero(ctx, h, f.MainBranchId, f.WidgetProductId)
	decimalEquals(t, "restocked quantity", after.Quantity, before.Quantity.Add(decimal.NewFromInt(1)))

	// The damaged line carries its loss reference.
	var lossItem *ReturnItem
	for i := range processed.Items {
		if processed.Items[i].Condition == ReturnItemConditionDamaged {
			lossItem = &processed.Items[i]
		}
	}
	if lossItem == nil || lossItem.InventoryLossId == nil {
		t.Fatal("damaged item missing inventory loss reference")
	}
	loss, err := fetchModel[InventoryLoss](h.DB(ctx), *lossItem.InventoryLossId)
	if err != nil {
		t.Fatalf("load loss: %v", err)
	}
	if loss.IsApproved == nil || !*loss.IsApproved {
		t.Fatal("return-driven loss should be auto-approved")
	}
	if loss.ReturnId != ret.ID {
		t.Fatalf("loss return = %d, want %d", loss.ReturnId, ret.ID)
	}
	decimalEquals(t, "loss quantity", loss.Quantity, decimal.NewFromInt(1))
}

func TestAddReturnRefundCapsAtEntitlement(t *testing.T) {
	h := newTestHandle(t)
	ctx := testContext()
	f := seedFixture(t, ctx, h)
	sale := makeSale(t, ctx, h, f, testNow.AddDate(0, 0, -2))

	ret, err := CreateReturn(ctx, h, &NewReturn{
		SaleId: &sale.ID,
		Items: []NewReturnItem{
			{ProductId: f.WidgetProductId, Quantity: decimal.NewFromInt(2), Condition: ReturnItemConditionGood},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Refunds only run on processed returns.
	refundInput := &NewReturnRefund{
		Amount: decimal.NewFromInt(10), CurrencyId: f.BaseCurrencyId, PaymentMethodId: f.CashMethodId,
	}
	if _, err := AddReturnRefund(ctx, h, ret.ID, refundInput); !errors.Is(err, utils.ErrInvalidStateTransition) {
		t.Fatalf("refund draft err = %v, want ErrInvalidStateTransition", err)
	}

	if _, err := ApproveReturn(ctx, h, ret.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := ProcessReturn(ctx, h, ret.ID); err != nil {
		t.Fatalf("process: %v", err)
	}

	// Entitlement is 30. Partial 10, then 25 overshoots, then 20 lands it.
	if _, err := AddReturnRefund(ctx, h, ret.ID, refundInput); err != nil {
		t.Fatalf("first refund: %v", err)
	}
	if _, err := AddReturnRefund(ctx, h, ret.ID, &NewReturnRefund{
		Amount: decimal.NewFromInt(25), CurrencyId: f.BaseCurrencyId, PaymentMethodId: f.CashMethodId,
	}); !errors.Is(err, utils.ErrRefundExceedsRemaining) {
		t.Fatalf("err = %v, want ErrRefundExceedsRemaining", err)
	}
	if _, err := AddReturnRefund(ctx, h, ret.ID, &NewReturnRefund{
		Amount: decimal.NewFromInt(20), CurrencyId: f.BaseCurrencyId, PaymentMethodId: f.CashMethodId,
	}); err != nil {
		t.Fatalf("final refund: %v", err)
	}

	reloaded, _ := GetReturn(ctx, h, ret.ID)
	decimalEquals(t, "total refunded", reloaded.TotalRefunded, decimal.NewFromInt(30))
}

func TestAddReturnRefundShiftGate(t *testing.T) {
	h := newTestHandle(t)
	ctx := testContext()
	f := seedFixture(t, ctx, h)
	sale := makeSale(t, ctx, h, f, testNow.AddDate(0, 0, -2))

	ret, err := CreateReturn(ctx, h, &NewReturn{
		SaleId: &sale.ID,
		Items: []NewReturnItem{
			{ProductId: f.WidgetProductId, Quantity: decimal.NewFromInt(1), Condition: ReturnItemConditionGood},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := ApproveReturn(ctx, h, ret.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := ProcessReturn(ctx, h, ret.ID); err != nil {
		t.Fatalf("process: %v", err)
	}

	shift, err := OpenShift(ctx, h, f.MainBranchId, decimal.NewFromInt(50))
	if err != nil {
		t.Fatalf("open shift: %v", err)
	}
	if _, err := CloseShift(ctx, h, shift.ID, decimal.NewFromInt(50)); err != nil {
		t.Fatalf("close shift: %v", err)
	}

	// Closed drawer: refused.
	if _, err := AddReturnRefund(ctx, h, ret.ID, &NewReturnRefund{
		Amount: decimal.NewFromInt(5), CurrencyId: f.BaseCurrencyId, PaymentMethodId: f.CashMethodId,
		ShiftId: &shift.ID,
	}); !errors.Is(err, utils.ErrShiftNotOpen) {
		t.Fatalf("err = %v, want ErrShiftNotOpen", err)
	}

	open, err := OpenShift(ctx, h, f.MainBranchId, decimal.NewFromInt(50))
	if err != nil {
		t.Fatalf("reopen shift: %v", err)
	}
	if _, err := AddReturnRefund(ctx, h, ret.ID, &NewReturnRefund{
		Amount: decimal.NewFromInt(5), CurrencyId: f.BaseCurrencyId, PaymentMethodId: f.CashMethodId,
		ShiftId: &open.ID,
	}); err != nil {
		t.Fatalf("refund with open shift: %v", err)
	}
}
