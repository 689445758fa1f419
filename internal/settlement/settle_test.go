package settlement

import (
	"context"
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/chikapos/settlement/internal/settlement/domain"
	"github.com/chikapos/settlement/internal/store"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap database: %v", err)
	}
	// One connection keeps every session on the same in-memory database.
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(&store.Store{}, &store.Transaction{}, &store.Customer{}, &store.FeeSettings{})
	if err != nil {
		t.Fatalf("migrate schema: %v", err)
	}
	return db
}

func seedTenant(t *testing.T, db *gorm.DB, id, name string, tax, service int64) {
	t.Helper()
	err := db.Create(&store.Store{
		ID:                   id,
		Name:                 name,
		PradanaTokenBalance:  decimal.NewFromInt(10),
		TaxPercentage:        decimal.NewFromInt(tax),
		ServiceFeePercentage: decimal.NewFromInt(service),
	}).Error
	if err != nil {
		t.Fatalf("seed tenant %s: %v", id, err)
	}
}

func twoTenantPayload() domain.OrderPayload {
	return domain.OrderPayload{
		PujaseraID:    "venue-1",
		Customer:      domain.Customer{ID: "c1", Name: "Budi"},
		PaymentMethod: "qris",
		Cart: []domain.CartItem{
			{StoreID: "sA", StoreName: "Warung A", ProductID: "p1", Name: "Nasi Goreng", Price: decimal.NewFromInt(10000), Quantity: 2},
			{StoreID: "sB", StoreName: "Warung B", ProductID: "p2", Name: "Es Teh", Price: decimal.NewFromInt(5000), Quantity: 1},
		},
	}
}

func TestSettleFansOutPerTenant(t *testing.T) {
	db := openTestDB(t)
	seedTenant(t, db, "sA", "Warung A", 10, 0)
	seedTenant(t, db, "sB", "Warung B", 0, 5)
	s := NewSettler(db, nil)

	res, err := s.Settle(context.Background(), twoTenantPayload(), Options{})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}

	if len(res.Receipts) != 2 {
		t.Fatalf("expected 2 receipts, got %d", len(res.Receipts))
	}
	if !res.Receipts[0].Total.Equal(decimal.NewFromInt(22000)) {
		t.Errorf("expected tenant A total 22000, got %s", res.Receipts[0].Total)
	}
	if !res.Receipts[1].Total.Equal(decimal.NewFromInt(5250)) {
		t.Errorf("expected tenant B total 5250, got %s", res.Receipts[1].Total)
	}
	if !res.GrandTotal.Equal(decimal.NewFromInt(27250)) {
		t.Errorf("expected grand total 27250, got %s", res.GrandTotal)
	}
	if len(res.Skipped) != 0 {
		t.Errorf("expected no skipped tenants, got %v", res.Skipped)
	}

	var receipts []store.Transaction
	if err := db.Order("store_id").Find(&receipts).Error; err != nil {
		t.Fatalf("load receipts: %v", err)
	}
	if len(receipts) != 2 {
		t.Fatalf("expected 2 receipt rows, got %d", len(receipts))
	}
	for _, r := range receipts {
		if r.ReceiptNumber != 1 {
			t.Errorf("expected first receipt number per tenant, got %d for %s", r.ReceiptNumber, r.StoreID)
		}
		if r.Status != ReceiptStatusProcessing {
			t.Errorf("expected status %q, got %q", ReceiptStatusProcessing, r.Status)
		}
		if r.ParentTransactionID != res.ParentID {
			t.Errorf("expected parent id %s, got %s", res.ParentID, r.ParentTransactionID)
		}
		if r.StaffID != staffIDCatalog {
			t.Errorf("expected staff id %q, got %q", staffIDCatalog, r.StaffID)
		}
	}

	// Both totals are under the minimum fee, so each tenant pays
	// 500 Rp / 1000 Rp-per-token = 0.5 tokens.
	for _, id := range []string{"sA", "sB"} {
		var st store.Store
		if err := db.First(&st, "id = ?", id).Error; err != nil {
			t.Fatalf("reload store %s: %v", id, err)
		}
		if !st.PradanaTokenBalance.Equal(decimal.RequireFromString("9.5")) {
			t.Errorf("expected %s balance 9.5, got %s", id, st.PradanaTokenBalance)
		}
		if st.TransactionCounter != 1 {
			t.Errorf("expected %s counter 1, got %d", id, st.TransactionCounter)
		}
		if st.LastTransactionAt == nil {
			t.Errorf("expected %s last_transaction_at to be stamped", id)
		}
	}
}

func TestSettleSkipsUnknownTenant(t *testing.T) {
	db := openTestDB(t)
	seedTenant(t, db, "sA", "Warung A", 10, 0)
	s := NewSettler(db, nil)

	res, err := s.Settle(context.Background(), twoTenantPayload(), Options{})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}

	if len(res.Receipts) != 1 || res.Receipts[0].StoreID != "sA" {
		t.Fatalf("expected one receipt for sA, got %+v", res.Receipts)
	}
	if len(res.Skipped) != 1 || res.Skipped[0] != "sB" {
		t.Errorf("expected sB skipped, got %v", res.Skipped)
	}
	if !res.GrandTotal.Equal(decimal.NewFromInt(22000)) {
		t.Errorf("expected grand total 22000, got %s", res.GrandTotal)
	}
}

func TestSettleRejectsEmptyCart(t *testing.T) {
	db := openTestDB(t)
	seedTenant(t, db, "sA", "Warung A", 10, 0)
	s := NewSettler(db, nil)

	payload := twoTenantPayload()
	payload.Cart = nil

	_, err := s.Settle(context.Background(), payload, Options{})
	if !errors.Is(err, domain.ErrIncompleteOrder) {
		t.Fatalf("expected ErrIncompleteOrder, got %v", err)
	}

	var n int64
	if err := db.Model(&store.Transaction{}).Count(&n).Error; err != nil {
		t.Fatalf("count receipts: %v", err)
	}
	if n != 0 {
		t.Errorf("expected no receipts, got %d", n)
	}

	var st store.Store
	if err := db.First(&st, "id = ?", "sA").Error; err != nil {
		t.Fatalf("reload store: %v", err)
	}
	if !st.PradanaTokenBalance.Equal(decimal.NewFromInt(10)) {
		t.Errorf("expected untouched balance 10, got %s", st.PradanaTokenBalance)
	}
}

func TestSettleStoredFeeSettingsOverrideDefaults(t *testing.T) {
	db := openTestDB(t)
	seedTenant(t, db, "sA", "Warung A", 0, 0)
	err := db.Create(&store.FeeSettings{
		ID:            1,
		FeePercentage: decimal.NewFromFloat(0.01),
		MinFeeRp:      decimal.NewFromInt(100),
		MaxFeeRp:      decimal.NewFromInt(5000),
		TokenValueRp:  decimal.NewFromInt(100),
	}).Error
	if err != nil {
		t.Fatalf("seed fee settings: %v", err)
	}
	s := NewSettler(db, nil)

	payload := twoTenantPayload()
	payload.Cart = payload.Cart[:1]

	if _, err := s.Settle(context.Background(), payload, Options{}); err != nil {
		t.Fatalf("settle: %v", err)
	}

	// 20000 * 1% = 200 Rp, inside [100, 5000]; 200 / 100 = 2 tokens.
	var st store.Store
	if err := db.First(&st, "id = ?", "sA").Error; err != nil {
		t.Fatalf("reload store: %v", err)
	}
	if !st.PradanaTokenBalance.Equal(decimal.NewFromInt(8)) {
		t.Errorf("expected balance 8 after a 2-token fee, got %s", st.PradanaTokenBalance)
	}
}
