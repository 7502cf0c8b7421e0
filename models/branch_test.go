package models

import (
	"errors"
	"testing"

	"bitbucket.org/mmdatafocus/backoffice_backend/utils"
)

func TestBranchDefaultsFromSettings(t *testing.T) {
	h := newTestHandle(t)
	ctx := testContext()
	seedFixture(t, ctx, h)

	branch, err := CreateBranch(ctx, h, &NewBranch{Code: "EAST", Name: "East Branch"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if branch.ReturnWindowDays != 30 {
		t.Fatalf("return window = %d, want tenant default 30", branch.ReturnWindowDays)
	}

	custom, err := CreateBranch(ctx, h, &NewBranch{Code: "WEST", Name: "West Branch", ReturnWindowDays: 14})
	if err != nil {
		t.Fatalf("create custom: %v", err)
	}
	if custom.ReturnWindowDays != 14 {
		t.Fatalf("return window = %d, want 14", custom.ReturnWindowDays)
	}
}

func TestBranchCodeUnique(t *testing.T) {
	h := newTestHandle(t)
	ctx := testContext()
	seedFixture(t, ctx, h)

	if _, err := CreateBranch(ctx, h, &NewBranch{Code: "MAIN", Name: "Duplicate"}); !errors.Is(err, utils.ErrDuplicateKey) {
		t.Fatalf("err = %v, want ErrDuplicateKey", err)
	}
}

func TestToggleBranchInheritance(t *testing.T) {
	h := newTestHandle(t)
	ctx := testContext()
	f := seedFixture(t, ctx, h)

	branch, err := ToggleBranchInheritance(ctx, h, f.SecondBranchId, BranchInheritedFieldAddress, true)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	reloaded, _ := GetBranch(ctx, h, branch.ID)
	if reloaded.InheritsAddress == nil || !*reloaded.InheritsAddress {
		t.Fatal("InheritsAddress not flipped on")
	}

	if _, err := ToggleBranchInheritance(ctx, h, f.SecondBranchId, BranchInheritedField("discounts"), true); err == nil {
		t.Fatal("unknown inheritable field should be rejected")
	}
}

func TestDocumentNumbersArePerTypeSeries(t *testing.T) {
	h := newTestHandle(t)
	ctx := testContext()
	f := seedFixture(t, ctx, h)
	category := makeCategory(t, ctx, h, f.MainBranchId, "Misc", nil)

	purchase := makeSubmittedPurchase(t, ctx, h, f)
	expense := makeApprovedExpense(t, ctx, h, f, category.ID, 10)

	// Each type counts independently from 00001.
	if purchase.PoNumber[len(purchase.PoNumber)-5:] != "00001" {
		t.Fatalf("po number = %q", purchase.PoNumber)
	}
	if expense.ExpenseNumber[:3] != "EXP" || expense.ExpenseNumber[len(expense.ExpenseNumber)-5:] != "00001" {
		t.Fatalf("expense number = %q", expense.ExpenseNumber)
	}
}
