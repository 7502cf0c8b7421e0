package models

import (
	"context"
	"errors"
	"testing"

	"bitbucket.org/mmdatafocus/backoffice_backend/utils"
	"github.com/shopspring/decimal"
)

func makeCategory(t *testing.T, ctx context.Context, h *TenantHandle, branchId int, name string, parentId *int) *ExpenseCategory {
	t.Helper()
	category, err := CreateExpenseCategory(ctx, h, &NewExpenseCategory{
		BranchId: branchId,
		Name:     name,
		ParentId: parentId,
	})
	if err != nil {
		t.Fatalf("create category %q: %v", name, err)
	}
	return category
}

// makeApprovedExpense walks a base-currency expense through draft, submit
// and approve.
func makeApprovedExpense(t *testing.T, ctx context.Context, h *TenantHandle, f *fixture, categoryId int, amount int64) *Expense {
	t.Helper()
	expense, err := CreateExpense(ctx, h, &NewExpense{
		BranchId:   f.MainBranchId,
		CategoryId: categoryId,
		Amount:     decimal.NewFromInt(amount),
		CurrencyId: f.BaseCurrencyId,
	})
	if err != nil {
		t.Fatalf("create expense: %v", err)
	}
	if _, err := SubmitExpense(ctx, h, expense.ID); err != nil {
		t.Fatalf("submit expense: %v", err)
	}
	expense, err = ReviewExpense(ctx, h, expense.ID, true, "")
	if err != nil {
		t.Fatalf("approve expense: %v", err)
	}
	return expense
}

func TestExpenseLifecycle(t *testing.T) {
	h := newTestHandle(t)
	ctx := testContext()
	f := seedFixture(t, ctx, h)
	category := makeCategory(t, ctx, h, f.MainBranchId, "Utilities", nil)

	expense, err := CreateExpense(ctx, h, &NewExpense{
		BranchId:   f.MainBranchId,
		CategoryId: category.ID,
		Amount:     decimal.NewFromInt(500),
		CurrencyId: f.BaseCurrencyId,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if expense.CurrentStatus != ExpenseStatusDraft {
		t.Fatalf("status = %s, want draft", expense.CurrentStatus)
	}

	// Review is not legal straight from draft.
	if _, err := ReviewExpense(ctx, h, expense.ID, true, ""); !errors.Is(err, utils.ErrInvalidStateTransition) {
		t.Fatalf("err = %v, want ErrInvalidStateTransition", err)
	}

	if _, err := SubmitExpense(ctx, h, expense.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	approved, err := ReviewExpense(ctx, h, expense.ID, true, "")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.CurrentStatus != ExpenseStatusApproved {
		t.Fatalf("status = %s, want approved", approved.CurrentStatus)
	}

	// Approved entries are immutable to draft edits and deletion.
	if _, err := UpdateExpense(ctx, h, expense.ID, &NewExpense{
		BranchId: f.MainBranchId, CategoryId: category.ID,
		Amount: decimal.NewFromInt(1), CurrencyId: f.BaseCurrencyId,
	}); !errors.Is(err, utils.ErrInvalidStateTransition) {
		t.Fatalf("update err = %v, want ErrInvalidStateTransition", err)
	}
	if err := DeleteExpense(ctx, h, expense.ID); !errors.Is(err, utils.ErrInvalidStateTransition) {
		t.Fatalf("delete err = %v, want ErrInvalidStateTransition", err)
	}
}

func TestExpenseRejectsCrossBranchCategory(t *testing.T) {
	h := newTestHandle(t)
	ctx := testContext()
	f := seedFixture(t, ctx, h)
	mainCategory := makeCategory(t, ctx, h, f.MainBranchId, "Utilities", nil)

	_, err := CreateExpense(ctx, h, &NewExpense{
		BranchId:   f.SecondBranchId,
		CategoryId: mainCategory.ID,
		Amount:     decimal.NewFromInt(100),
		CurrencyId: f.BaseCurrencyId,
	})
	if !errors.Is(err, utils.ErrCrossBranchReference) {
		t.Fatalf("err = %v, want ErrCrossBranchReference", err)
	}
}

func TestCreateExpenseNormalizesForeignCurrency(t *testing.T) {
	h := newTestHandle(t)
	ctx := testContext()
	f := seedFixture(t, ctx, h)
	category := makeCategory(t, ctx, h, f.MainBranchId, "Software", nil)

	expense, err := CreateExpense(ctx, h, &NewExpense{
		BranchId:   f.MainBranchId,
		CategoryId: category.ID,
		Amount:     decimal.NewFromInt(50),
		CurrencyId: f.UsdCurrencyId,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	decimalEquals(t, "exchange rate", expense.ExchangeRate, decimal.NewFromInt(2))
	decimalEquals(t, "base amount", expense.BaseAmount, decimal.NewFromInt(100))
	decimalEquals(t, "amount due", expense.AmountDue(), decimal.NewFromInt(100))
}

func TestExpenseRejectionNeedsReason(t *testing.T) {
	h := newTestHandle(t)
	ctx := testContext()
	f := seedFixture(t, ctx, h)
	category := makeCategory(t, ctx, h, f.MainBranchId, "Repairs", nil)

	expense, err := CreateExpense(ctx, h, &NewExpense{
		BranchId:   f.MainBranchId,
		CategoryId: category.ID,
		Amount:     decimal.NewFromInt(100),
		CurrencyId: f.BaseCurrencyId,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := SubmitExpense(ctx, h, expense.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if _, err := ReviewExpense(ctx, h, expense.ID, false, ""); !errors.Is(err, utils.ErrMissingRejectionReason) {
		t.Fatalf("err = %v, want ErrMissingRejectionReason", err)
	}
	rejected, err := ReviewExpense(ctx, h, expense.ID, false, "no receipt attached")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.CurrentStatus != ExpenseStatusRejected {
		t.Fatalf("status = %s, want rejected", rejected.CurrentStatus)
	}
	if rejected.RejectionReason != "no receipt attached" {
		t.Fatalf("reason = %q", rejected.RejectionReason)
	}
}

func TestExpensePaymentFlipsToPaid(t *testing.T) {
	h := newTestHandle(t)
	ctx := testContext()
	f := seedFixture(t, ctx, h)
	category := makeCategory(t, ctx, h, f.MainBranchId, "Rent", nil)
	expense := makeApprovedExpense(t, ctx, h, f, category.ID, 200)

	if _, err := AddExpensePayment(ctx, h, expense.ID, &NewExpensePayment{
		Amount: decimal.NewFromInt(150), CurrencyId: f.BaseCurrencyId, PaymentMethodId: f.CashMethodId,
	}); err != nil {
		t.Fatalf("partial payment: %v", err)
	}
	reloaded, _ := GetExpense(ctx, h, expense.ID)
	if reloaded.CurrentStatus != ExpenseStatusApproved {
		t.Fatalf("status = %s, want approved after partial", reloaded.CurrentStatus)
	}
	decimalEquals(t, "amount due after partial", reloaded.AmountDue(), decimal.NewFromInt(50))

	if _, err := AddExpensePayment(ctx, h, expense.ID, &NewExpensePayment{
		Amount: decimal.NewFromInt(60), CurrencyId: f.BaseCurrencyId, PaymentMethodId: f.CashMethodId,
	}); !errors.Is(err, utils.ErrPaymentExceedsDue) {
		t.Fatalf("err = %v, want ErrPaymentExceedsDue", err)
	}

	if _, err := AddExpensePayment(ctx, h, expense.ID, &NewExpensePayment{
		Amount: decimal.NewFromInt(50), CurrencyId: f.BaseCurrencyId, PaymentMethodId: f.CashMethodId,
	}); err != nil {
		t.Fatalf("settle: %v", err)
	}
	reloaded, _ = GetExpense(ctx, h, expense.ID)
	if reloaded.CurrentStatus != ExpenseStatusPaid {
		t.Fatalf("status = %s, want paid", reloaded.CurrentStatus)
	}
}

func TestCategoryCycleGuard(t *testing.T) {
	h := newTestHandle(t)
	ctx := testContext()
	f := seedFixture(t, ctx, h)

	root := makeCategory(t, ctx, h, f.MainBranchId, "Operations", nil)
	child := makeCategory(t, ctx, h, f.MainBranchId, "Cleaning", &root.ID)

	// Self-parenting.
	if _, err := UpdateExpenseCategory(ctx, h, root.ID, &NewExpenseCategory{
		BranchId: f.MainBranchId, Name: "Operations", ParentId: &root.ID,
	}); !errors.Is(err, utils.ErrCircularCategoryReference) {
		t.Fatalf("self-parent err = %v, want ErrCircularCategoryReference", err)
	}

	// Reparenting the root under its own descendant.
	if _, err := UpdateExpenseCategory(ctx, h, root.ID, &NewExpenseCategory{
		BranchId: f.MainBranchId, Name: "Operations", ParentId: &child.ID,
	}); !errors.Is(err, utils.ErrCircularCategoryReference) {
		t.Fatalf("cycle err = %v, want ErrCircularCategoryReference", err)
	}
}

func TestCategoryCrossBranchParentRejected(t *testing.T) {
	h := newTestHandle(t)
	ctx := testContext()
	f := seedFixture(t, ctx, h)

	mainRoot := makeCategory(t, ctx, h, f.MainBranchId, "Operations", nil)
	_, err := CreateExpenseCategory(ctx, h, &NewExpenseCategory{
		BranchId: f.SecondBranchId,
		Name:     "Cleaning",
		ParentId: &mainRoot.ID,
	})
	if !errors.Is(err, utils.ErrCrossBranchReference) {
		t.Fatalf("err = %v, want ErrCrossBranchReference", err)
	}
}

func TestCategoryDeleteGuardsActiveChildren(t *testing.T) {
	h := newTestHandle(t)
	ctx := testContext()
	f := seedFixture(t, ctx, h)

	root := makeCategory(t, ctx, h, f.MainBranchId, "Operations", nil)
	child := makeCategory(t, ctx, h, f.MainBranchId, "Cleaning", &root.ID)

	if err := DeleteExpenseCategory(ctx, h, root.ID); err == nil {
		t.Fatal("deleting a category with active children should fail")
	}
	if err := DeleteExpenseCategory(ctx, h, child.ID); err != nil {
		t.Fatalf("delete leaf: %v", err)
	}
	reloaded, _ := GetExpenseCategory(ctx, h, child.ID)
	if reloaded.IsActive == nil || *reloaded.IsActive {
		t.Fatal("soft delete should flip IsActive to false")
	}
	// Child now inactive: root becomes deletable.
	if err := DeleteExpenseCategory(ctx, h, root.ID); err != nil {
		t.Fatalf("delete root after child deactivated: %v", err)
	}
}

func TestBudgetUtilization(t *testing.T) {
	h := newTestHandle(t)
	ctx := testContext()
	f := seedFixture(t, ctx, h)
	category := makeCategory(t, ctx, h, f.MainBranchId, "Marketing", nil)

	budget, err := CreateExpenseBudget(ctx, h, &NewExpenseBudget{
		BranchId:     f.MainBranchId,
		CategoryId:   category.ID,
		Period:       BudgetPeriodMonthly,
		Year:         testNow.Year(),
		PeriodNumber: int(testNow.Month()),
		Amount:       decimal.NewFromInt(1000),
	})
	if err != nil {
		t.Fatalf("create budget: %v", err)
	}

	// 1200 of approved spend inside the period.
	makeApprovedExpense(t, ctx, h, f, category.ID, 700)
	makeApprovedExpense(t, ctx, h, f, category.ID, 500)
	// Draft spend must not count.
	if _, err := CreateExpense(ctx, h, &NewExpense{
		BranchId: f.MainBranchId, CategoryId: category.ID,
		Amount: decimal.NewFromInt(400), CurrencyId: f.BaseCurrencyId,
	}); err != nil {
		t.Fatalf("create draft: %v", err)
	}

	utilization, err := GetBudgetUtilization(ctx, h, budget.ID)
	if err != nil {
		t.Fatalf("utilization: %v", err)
	}
	decimalEquals(t, "spent", utilization.Spent, decimal.NewFromInt(1200))
	decimalEquals(t, "remaining", utilization.Remaining, decimal.NewFromInt(-200))
	decimalEquals(t, "percent", utilization.Percent, decimal.NewFromInt(120))
	if !utilization.OverBudget {
		t.Fatal("expected over budget")
	}
}

func TestBudgetRejectsZeroAmountAndDuplicates(t *testing.T) {
	h := newTestHandle(t)
	ctx := testContext()
	f := seedFixture(t, ctx, h)
	category := makeCategory(t, ctx, h, f.MainBranchId, "Marketing", nil)

	input := &NewExpenseBudget{
		BranchId:     f.MainBranchId,
		CategoryId:   category.ID,
		Period:       BudgetPeriodMonthly,
		Year:         testNow.Year(),
		PeriodNumber: int(testNow.Month()),
		Amount:       decimal.Zero,
	}
	if _, err := CreateExpenseBudget(ctx, h, input); !errors.Is(err, utils.ErrZeroBudget) {
		t.Fatalf("err = %v, want ErrZeroBudget", err)
	}

	input.Amount = decimal.NewFromInt(1000)
	if _, err := CreateExpenseBudget(ctx, h, input); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := CreateExpenseBudget(ctx, h, input); !errors.Is(err, utils.ErrDuplicateKey) {
		t.Fatalf("err = %v, want ErrDuplicateKey", err)
	}
}
