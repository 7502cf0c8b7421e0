package models

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/backoffice_backend/config"
	"bitbucket.org/mmdatafocus/backoffice_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// testNow is the pinned instant every test handle's clock reports.
var testNow = time.Date(2026, time.March, 15, 10, 0, 0, 0, time.UTC)

// fixture holds the ids of the seed rows shared by most tests.
type fixture struct {
	BaseCurrencyId  int
	UsdCurrencyId   int
	MainBranchId    int
	SecondBranchId  int
	SupplierId      int
	CustomerId      int
	CashMethodId    int
	WidgetProductId int
	GadgetProductId int
}

// newTestHandle opens an isolated in-memory store per test, migrated and
// wired to a pinned clock.
func newTestHandle(t *testing.T) *TenantHandle {
	t.Helper()
	return newTestHandleAt(t, testNow)
}

func newTestHandleAt(t *testing.T, now time.Time) *TenantHandle {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared",
		strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()))
	db, err := gorm.Open(sqlite.Open(dsn), config.InitGormConfig())
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("underlying db: %v", err)
	}
	// Shared-cache in-memory sqlite needs a single connection or tables
	// vanish between pooled connections.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := MigrateModels(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewTenantHandle("testtenant", db, utils.FixedClock{Time: now})
}

func testContext() context.Context {
	ctx := utils.SetTenantIdInContext(context.Background(), "testtenant")
	return utils.SetActorIdInContext(ctx, 7)
}

// seedFixture creates the baseline entities: base currency (rate 1), a USD
// foreign currency at rate 2, two branches, a supplier, a customer, a cash
// payment method and two products.
func seedFixture(t *testing.T, ctx context.Context, h *TenantHandle) *fixture {
	t.Helper()

	base, err := CreateCurrency(ctx, h, &NewCurrency{Symbol: "MMK", Name: "Myanmar Kyat", ExchangeRate: decimal.NewFromInt(1)})
	if err != nil {
		t.Fatalf("create base currency: %v", err)
	}
	if err := h.DB(ctx).Create(&TenantSettings{
		BusinessName:            "Test Trading",
		BaseCurrencyId:          base.ID,
		Timezone:                "UTC",
		DefaultReturnWindowDays: 30,
	}).Error; err != nil {
		t.Fatalf("seed settings: %v", err)
	}

	usd, err := CreateCurrency(ctx, h, &NewCurrency{Symbol: "USD", Name: "US Dollar", ExchangeRate: decimal.NewFromInt(2)})
	if err != nil {
		t.Fatalf("create usd: %v", err)
	}

	main, err := CreateBranch(ctx, h, &NewBranch{Code: "MAIN", Name: "Main Branch"})
	if err != nil {
		t.Fatalf("create main branch: %v", err)
	}
	second, err := CreateBranch(ctx, h, &NewBranch{Code: "NORTH", Name: "North Branch"})
	if err != nil {
		t.Fatalf("create second branch: %v", err)
	}

	supplier, err := CreateSupplier(ctx, h, &NewSupplier{Code: "SUP01", Name: "Acme Wholesale", CurrencyId: base.ID})
	if err != nil {
		t.Fatalf("create supplier: %v", err)
	}
	customer, err := CreateCustomer(ctx, h, &NewCustomer{Name: "Daw Mya"})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	cash, err := CreatePaymentMethod(ctx, h, &NewPaymentMethod{Name: "Cash"})
	if err != nil {
		t.Fatalf("create payment method: %v", err)
	}

	widget, err := CreateProduct(ctx, h, &NewProduct{
		Sku: "WGT-001", Name: "Widget",
		Cost: decimal.NewFromInt(10), Price: decimal.NewFromInt(15),
	})
	if err != nil {
		t.Fatalf("create widget: %v", err)
	}
	gadget, err := CreateProduct(ctx, h, &NewProduct{
		Sku: "GDT-001", Name: "Gadget",
		Cost: decimal.NewFromInt(20), Price: decimal.NewFromInt(30),
	})
	if err != nil {
		t.Fatalf("create gadget: %v", err)
	}

	return &fixture{
		BaseCurrencyId:  base.ID,
		UsdCurrencyId:   usd.ID,
		MainBranchId:    main.ID,
		SecondBranchId:  second.ID,
		SupplierId:      supplier.ID,
		CustomerId:      customer.ID,
		CashMethodId:    cash.ID,
		WidgetProductId: widget.ID,
		GadgetProductId: gadget.ID,
	}
}

// mustStock sets on-hand quantity directly through the adjust operation.
func mustStock(t *testing.T, ctx context.Context, h *TenantHandle, branchId, productId int, qty int64) {
	t.Helper()
	if _, err := AdjustInventory(ctx, h, branchId, productId, decimal.NewFromInt(qty)); err != nil {
		t.Fatalf("stock branch %d product %d: %v", branchId, productId, err)
	}
}

func decimalEquals(t *testing.T, what string, got, want decimal.Decimal) {
	t.Helper()
	if !got.Equal(want) {
		t.Fatalf("%s = %s, want %s", what, got.String(), want.String())
	}
}
