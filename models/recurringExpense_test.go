package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestGenerateRecurringExpensesIsIdempotent(t *testing.T) {
	h := newTestHandle(t)
	ctx := testContext()
	f := seedFixture(t, ctx, h)
	category := makeCategory(t, ctx, h, f.MainBranchId, "Rent", nil)

	// Monthly parent dated three months before the pinned clock.
	startDate := testNow.AddDate(0, -3, 0)
	parent, err := CreateExpense(ctx, h, &NewExpense{
		BranchId:    f.MainBranchId,
		CategoryId:  category.ID,
		Amount:      decimal.NewFromInt(300),
		CurrencyId:  f.BaseCurrencyId,
		ExpenseDate: &startDate,
		IsRecurring: true,
		Frequency:   RecurringFrequencyMonthly,
	})
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}
	if _, err := SubmitExpense(ctx, h, parent.ID); err != nil {
		t.Fatalf("submit parent: %v", err)
	}
	if _, err := ReviewExpense(ctx, h, parent.ID, true, ""); err != nil {
		t.Fatalf("approve parent: %v", err)
	}

	created, err := GenerateRecurringExpenses(ctx, h)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(created) != 3 {
		t.Fatalf("generated = %d, want 3", len(created))
	}
	for _, child := range created {
		if child.CurrentStatus != ExpenseStatusDraft {
			t.Fatalf("child status = %s, want draft", child.CurrentStatus)
		}
		if child.ParentExpenseId == nil || *child.ParentExpenseId != parent.ID {
			t.Fatalf("child parent = %v, want %d", child.ParentExpenseId, parent.ID)
		}
		decimalEquals(t, "child amount", child.Amount, decimal.NewFromInt(300))
	}

	// Second run: all occurrences already exist.
	again, err := GenerateRecurringExpenses(ctx, h)
	if err != nil {
		t.Fatalf("second generate: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("second run generated = %d, want 0", len(again))
	}
}

func TestGenerateRecurringExpensesStopsAtEndDate(t *testing.T) {
	h := newTestHandle(t)
	ctx := testContext()
	f := seedFixture(t, ctx, h)
	category := makeCategory(t, ctx, h, f.MainBranchId, "Rent", nil)

	// Three monthly occurrences would be due, but the series ends after the
	// first one.
	startDate := testNow.AddDate(0, -3, 0)
	endDate := startDate.AddDate(0, 1, 15)
	parent, err := CreateExpense(ctx, h, &NewExpense{
		BranchId:         f.MainBranchId,
		CategoryId:       category.ID,
		Amount:           decimal.NewFromInt(300),
		CurrencyId:       f.BaseCurrencyId,
		ExpenseDate:      &startDate,
		IsRecurring:      true,
		Frequency:        RecurringFrequencyMonthly,
		RecurringEndDate: &endDate,
	})
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}
	if _, err := SubmitExpense(ctx, h, parent.ID); err != nil {
		t.Fatalf("submit parent: %v", err)
	}
	if _, err := ReviewExpense(ctx, h, parent.ID, true, ""); err != nil {
		t.Fatalf("approve parent: %v", err)
	}

	created, err := GenerateRecurringExpenses(ctx, h)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("generated = %d, want 1", len(created))
	}
	if created[0].OccurrenceDate == nil || !created[0].OccurrenceDate.Equal(startDate.AddDate(0, 1, 0)) {
		t.Fatalf("occurrence date = %v", created[0].OccurrenceDate)
	}

	// The ended series never produces more.
	again, err := GenerateRecurringExpenses(ctx, h)
	if err != nil {
		t.Fatalf("second generate: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("second run generated = %d, want 0", len(again))
	}
}

func TestGenerateRecurringExpensesSkipsUnapprovedParents(t *testing.T) {
	h := newTestHandle(t)
	ctx := testContext()
	f := seedFixture(t, ctx, h)
	category := makeCategory(t, ctx, h, f.MainBranchId, "Rent", nil)

	startDate := testNow.AddDate(0, -2, 0)
	if _, err := CreateExpense(ctx, h, &NewExpense{
		BranchId:    f.MainBranchId,
		CategoryId:  category.ID,
		Amount:      decimal.NewFromInt(300),
		CurrencyId:  f.BaseCurrencyId,
		ExpenseDate: &startDate,
		IsRecurring: true,
		Frequency:   RecurringFrequencyMonthly,
	}); err != nil {
		t.Fatalf("create draft parent: %v", err)
	}

	created, err := GenerateRecurringExpenses(ctx, h)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(created) != 0 {
		t.Fatalf("generated = %d from a draft parent, want 0", len(created))
	}
}

func TestGenerateRecurringExpensesYearly(t *testing.T) {
	h := newTestHandle(t)
	ctx := testContext()
	f := seedFixture(t, ctx, h)
	category := makeCategory(t, ctx, h, f.MainBranchId, "Licenses", nil)

	startDate := time.Date(testNow.Year()-1, time.January, 10, 0, 0, 0, 0, time.UTC)
	parent, err := CreateExpense(ctx, h, &NewExpense{
		BranchId:    f.MainBranchId,
		CategoryId:  category.ID,
		Amount:      decimal.NewFromInt(1200),
		CurrencyId:  f.BaseCurrencyId,
		ExpenseDate: &startDate,
		IsRecurring: true,
		Frequency:   RecurringFrequencyYearly,
	})
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}
	if _, err := SubmitExpense(ctx, h, parent.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := ReviewExpense(ctx, h, parent.ID, true, ""); err != nil {
		t.Fatalf("approve: %v", err)
	}

	created, err := GenerateRecurringExpenses(ctx, h)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	// One anniversary has passed since the start date.
	if len(created) != 1 {
		t.Fatalf("generated = %d, want 1", len(created))
	}
	if created[0].OccurrenceDate == nil || !created[0].OccurrenceDate.Equal(startDate.AddDate(1, 0, 0)) {
		t.Fatalf("occurrence date = %v", created[0].OccurrenceDate)
	}
}
