package models

import "gorm.io/gorm"

// MigrateModels keeps a tenant database's schema current. Called once per
// tenant connection at open time and by the test helpers.
func MigrateModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&TenantSettings{},
		&Branch{},
		&Currency{},
		&Supplier{},
		&Customer{},
		&PaymentMethod{},
		&Product{},
		&ProductCostHistory{},
		&BranchInventory{},
		&InventoryLoss{},
		&DocumentSequence{},
		&Purchase{},
		&PurchaseItem{},
		&PurchasePayment{},
		&InventoryTransfer{},
		&InventoryTransferItem{},
		&ExpenseCategory{},
		&ExpenseBudget{},
		&Expense{},
		&ExpensePayment{},
		&Sale{},
		&SaleItem{},
		&Layby{},
		&LaybyItem{},
		&Quotation{},
		&QuotationItem{},
		&Shift{},
		&Return{},
		&ReturnItem{},
		&ReturnRefund{},
	)
}
