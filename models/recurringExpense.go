package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/backoffice_backend/utils"
	"gorm.io/gorm"
)

// nextOccurrence steps one frequency interval forward.
func nextOccurrence(t time.Time, frequency RecurringFrequency) (time.Time, error) {
	switch frequency {
	case RecurringFrequencyMonthly:
		return t.AddDate(0, 1, 0), nil
	case RecurringFrequencyQuarterly:
		return t.AddDate(0, 3, 0), nil
	case RecurringFrequencyYearly:
		return t.AddDate(1, 0, 0), nil
	}
	return time.Time{}, fmt.Errorf("unknown recurring frequency %q", frequency)
}

// GenerateRecurringExpenses materializes due occurrences of every recurring
// parent. A parent qualifies once it has cleared review (approved or paid);
// each occurrence date is generated at most once per parent, so the job is
// safe to run repeatedly and on overlapping schedules. A parent with an end
// date stops producing occurrences past that date. Generated entries
// start as drafts and walk the normal approval pipeline, with the exchange
// rate snapshotted at generation time.
func GenerateRecurringExpenses(ctx context.Context, h *TenantHandle) ([]*Expense, error) {
	var created []*Expense
	err := h.runInTenantTransaction(ctx, func(tx *gorm.DB) error {
		var parents []Expense
		err := tx.
			Where("is_recurring = ? AND parent_expense_id IS NULL", true).
			Where("current_status IN ?", []ExpenseStatus{ExpenseStatusApproved, ExpenseStatusPaid}).
			Find(&parents).Error
		if err != nil {
			return err
		}

		now := h.Now()
		for i := range parents {
			parent := &parents[i]
			occurrences, err := dueOccurrences(parent, now)
			if err != nil {
				return err
			}
			for _, occurrence := range occurrences {
				count, err := resourceCountWhere[Expense](tx,
					"parent_expense_id = ? AND occurrence_date = ?", parent.ID, occurrence)
				if err != nil {
					return err
				}
				if count > 0 {
					continue
				}

				occ := occurrence
				input := &NewExpense{
					BranchId:    parent.BranchId,
					CategoryId:  parent.CategoryId,
					Amount:      parent.Amount,
					CurrencyId:  parent.CurrencyId,
					ExpenseDate: &occ,
					Description: parent.Description,
				}
				child, err := createExpenseTx(tx, h, ctx, input, &parent.ID, &occ)
				if err != nil {
					return fmt.Errorf("expense %s occurrence %s: %w", parent.ExpenseNumber, occ.Format("2006-01-02"), err)
				}
				created = append(created, child)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// dueOccurrences lists occurrence dates after the parent's own date up to
// and including now, stopping at the parent's end date when one is set.
// Bounded so a parent dated far in the past cannot explode the job.
func dueOccurrences(parent *Expense, now time.Time) ([]time.Time, error) {
	const maxOccurrences = 120

	var due []time.Time
	current := parent.ExpenseDate
	for len(due) < maxOccurrences {
		next, err := nextOccurrence(current, parent.Frequency)
		if err != nil {
			return nil, err
		}
		if next.After(now) {
			break
		}
		if parent.RecurringEndDate != nil && next.After(*parent.RecurringEndDate) {
			break
		}
		due = append(due, next)
		current = next
	}
	if len(due) == maxOccurrences {
		return nil, fmt.Errorf("expense %s: occurrence backlog exceeds %d entries: %w",
			parent.ExpenseNumber, maxOccurrences, utils.ErrConflict)
	}
	return due, nil
}
