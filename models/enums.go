package models

// Statuses are typed strings. Transition legality lives on the type so every
// workflow guard reads the same way.

type PurchaseStatus string

const (
	PurchaseStatusDraft         PurchaseStatus = "draft"
	PurchaseStatusSubmitted     PurchaseStatus = "submitted"
	PurchaseStatusPartiallyPaid PurchaseStatus = "partially_paid"
	PurchaseStatusFullyPaid     PurchaseStatus = "fully_paid"
	PurchaseStatusReceived      PurchaseStatus = "received"
	PurchaseStatusCancelled     PurchaseStatus = "cancelled"
)

func (s PurchaseStatus) String() string { return string(s) }

// CanAcceptPayment reports whether payment capture is legal. Payments are
// blocked on drafts and cancelled orders; a received order may still settle
// its outstanding balance.
func (s PurchaseStatus) CanAcceptPayment() bool {
	switch s {
	case PurchaseStatusSubmitted, PurchaseStatusPartiallyPaid, PurchaseStatusFullyPaid, PurchaseStatusReceived:
		return true
	}
	return false
}

// CanReceiveGoods reports whether goods receipt is legal in this status.
func (s PurchaseStatus) CanReceiveGoods() bool {
	switch s {
	case PurchaseStatusSubmitted, PurchaseStatusPartiallyPaid, PurchaseStatusFullyPaid:
		return true
	}
	return false
}

type TransferStatus string

const (
	TransferStatusPending   TransferStatus = "pending"
	TransferStatusApproved  TransferStatus = "approved"
	TransferStatusRejected  TransferStatus = "rejected"
	TransferStatusCompleted TransferStatus = "completed"
)

func (s TransferStatus) String() string { return string(s) }

type ExpenseStatus string

const (
	ExpenseStatusDraft     ExpenseStatus = "draft"
	ExpenseStatusSubmitted ExpenseStatus = "submitted"
	ExpenseStatusApproved  ExpenseStatus = "approved"
	ExpenseStatusRejected  ExpenseStatus = "rejected"
	ExpenseStatusPaid      ExpenseStatus = "paid"
)

func (s ExpenseStatus) String() string { return string(s) }

func (s ExpenseStatus) CanAcceptPayment() bool {
	return s == ExpenseStatusApproved || s == ExpenseStatusPaid
}

type ReturnStatus string

const (
	ReturnStatusDraft     ReturnStatus = "draft"
	ReturnStatusApproved  ReturnStatus = "approved"
	ReturnStatusProcessed ReturnStatus = "processed"
)

func (s ReturnStatus) String() string { return string(s) }

type ReturnItemCondition string

const (
	ReturnItemConditionGood    ReturnItemCondition = "good"
	ReturnItemConditionDamaged ReturnItemCondition = "damaged"
)

type ShiftStatus string

const (
	ShiftStatusOpen   ShiftStatus = "open"
	ShiftStatusClosed ShiftStatus = "closed"
)

type BudgetPeriod string

const (
	BudgetPeriodMonthly   BudgetPeriod = "monthly"
	BudgetPeriodQuarterly BudgetPeriod = "quarterly"
	BudgetPeriodYearly    BudgetPeriod = "yearly"
)

type RecurringFrequency string

const (
	RecurringFrequencyMonthly   RecurringFrequency = "monthly"
	RecurringFrequencyQuarterly RecurringFrequency = "quarterly"
	RecurringFrequencyYearly    RecurringFrequency = "yearly"
)

// BranchInheritedField is the closed set of branch fields that can be
// toggled to inherit from the primary branch. A typed enum instead of the
// string-keyed field map: an invalid field is a compile/validation error,
// not a runtime surprise.
type BranchInheritedField string

const (
	BranchInheritedFieldTax      BranchInheritedField = "tax"
	BranchInheritedFieldAddress  BranchInheritedField = "address"
	BranchInheritedFieldContact  BranchInheritedField = "contact"
	BranchInheritedFieldCurrency BranchInheritedField = "currency"
)

func (f BranchInheritedField) IsValid() bool {
	switch f {
	case BranchInheritedFieldTax, BranchInheritedFieldAddress, BranchInheritedFieldContact, BranchInheritedFieldCurrency:
		return true
	}
	return false
}

// DocumentType selects a sequential number series (one per type per year).
type DocumentType string

const (
	DocumentTypePurchase DocumentType = "PO"
	DocumentTypeExpense  DocumentType = "EXP"
	DocumentTypeReturn   DocumentType = "RET"
)
