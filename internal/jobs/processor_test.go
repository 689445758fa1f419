package jobs

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/chikapos/settlement/internal/settlement"
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

	err = db.AutoMigrate(&store.Store{}, &store.Transaction{}, &store.Customer{}, &store.FeeSettings{}, &store.Job{})
	if err != nil {
		t.Fatalf("migrate schema: %v", err)
	}
	return db
}

func newTestProcessor(t *testing.T) (*Processor, *gorm.DB) {
	t.Helper()
	db := openTestDB(t)
	settler := settlement.NewSettler(db, nil)
	p := NewProcessor(db, settler, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return p, db
}

func seedJob(t *testing.T, db *gorm.DB, kind, payload string) *store.Job {
	t.Helper()
	job := store.Job{
		ID:        "job-1",
		Kind:      kind,
		Payload:   datatypes.JSON([]byte(payload)),
		Status:    string(StatusQueued),
		CreatedAt: time.Now().UTC(),
	}
	if err := db.Create(&job).Error; err != nil {
		t.Fatalf("seed job: %v", err)
	}
	return &job
}

func reloadJob(t *testing.T, db *gorm.DB, id string) store.Job {
	t.Helper()
	var job store.Job
	if err := db.First(&job, "id = ?", id).Error; err != nil {
		t.Fatalf("reload job: %v", err)
	}
	return job
}

func countTransactions(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&store.Transaction{}).Count(&n).Error; err != nil {
		t.Fatalf("count transactions: %v", err)
	}
	return n
}

func TestRunUnknownKind(t *testing.T) {
	p, db := newTestProcessor(t)
	job := seedJob(t, db, "mystery", `{}`)

	p.run(context.Background(), job)

	got := reloadJob(t, db, job.ID)
	if got.Status != string(StatusUnknownType) {
		t.Errorf("expected status %s, got %s", StatusUnknownType, got.Status)
	}
	if got.Error != "unknown job type: mystery" {
		t.Errorf("expected unknown-type error message, got %q", got.Error)
	}
	if got.StartedAt == nil || got.ProcessedAt == nil {
		t.Error("expected started_at and processed_at to be stamped")
	}
	if n := countTransactions(t, db); n != 0 {
		t.Errorf("expected no receipts for an unknown kind, got %d", n)
	}
}

func TestRunEmptyCartFails(t *testing.T) {
	p, db := newTestProcessor(t)
	job := seedJob(t, db, string(KindPujaseraOrder), `{}`)

	p.run(context.Background(), job)

	got := reloadJob(t, db, job.ID)
	if got.Status != string(StatusFailed) {
		t.Errorf("expected status %s, got %s", StatusFailed, got.Status)
	}
	if got.Error != "data pesanan tidak lengkap" {
		t.Errorf("expected incomplete-order error, got %q", got.Error)
	}
	if n := countTransactions(t, db); n != 0 {
		t.Errorf("expected no receipts for a rejected payload, got %d", n)
	}
}

func TestRunSettlesOrder(t *testing.T) {
	p, db := newTestProcessor(t)
	err := db.Create(&store.Store{
		ID:                  "s1",
		Name:                "Warung A",
		PradanaTokenBalance: decimal.NewFromInt(100),
		TaxPercentage:       decimal.NewFromInt(10),
	}).Error
	if err != nil {
		t.Fatalf("seed store: %v", err)
	}

	payload := `{
		"pujaseraId": "venue-1",
		"customer": {"id": "c1", "name": "Budi"},
		"paymentMethod": "qris",
		"cart": [
			{"storeId": "s1", "storeName": "Warung A", "productId": "p1", "name": "Nasi Goreng", "price": "10000", "quantity": 2}
		]
	}`
	job := seedJob(t, db, string(KindPujaseraOrder), payload)

	p.run(context.Background(), job)

	got := reloadJob(t, db, job.ID)
	if got.Status != string(StatusCompleted) {
		t.Fatalf("expected status %s, got %s (error %q)", StatusCompleted, got.Status, got.Error)
	}

	var receipt store.Transaction
	if err := db.First(&receipt, "store_id = ?", "s1").Error; err != nil {
		t.Fatalf("load receipt: %v", err)
	}
	if receipt.ReceiptNumber != 1 {
		t.Errorf("expected receipt number 1, got %d", receipt.ReceiptNumber)
	}
	if receipt.Status != settlement.ReceiptStatusProcessing {
		t.Errorf("expected receipt status %q, got %q", settlement.ReceiptStatusProcessing, receipt.Status)
	}
	if !receipt.TotalAmount.Equal(decimal.NewFromInt(22000)) {
		t.Errorf("expected total 22000, got %s", receipt.TotalAmount)
	}
	if receipt.DeliveryOption != "" {
		t.Errorf("expected no delivery option on the centralized path, got %q", receipt.DeliveryOption)
	}

	var st store.Store
	if err := db.First(&st, "id = ?", "s1").Error; err != nil {
		t.Fatalf("reload store: %v", err)
	}
	if st.TransactionCounter != 1 {
		t.Errorf("expected counter 1, got %d", st.TransactionCounter)
	}
	if !st.PradanaTokenBalance.Equal(decimal.RequireFromString("99.5")) {
		t.Errorf("expected balance 99.5 after the minimum fee, got %s", st.PradanaTokenBalance)
	}
}

func TestRunIndividualOrderDefaultsToPickup(t *testing.T) {
	p, db := newTestProcessor(t)
	stores := []store.Store{
		{ID: "venue-1", Name: "Pujasera Melati", RpPerPoint: 10000},
		{ID: "s1", Name: "Warung A", PradanaTokenBalance: decimal.NewFromInt(100)},
	}
	for i := range stores {
		if err := db.Create(&stores[i]).Error; err != nil {
			t.Fatalf("seed store: %v", err)
		}
	}
	err := db.Create(&store.Customer{ID: "c1", PujaseraID: "venue-1", Name: "Budi"}).Error
	if err != nil {
		t.Fatalf("seed customer: %v", err)
	}

	payload := `{
		"pujaseraId": "venue-1",
		"customer": {"id": "c1", "name": "Budi"},
		"paymentMethod": "qris",
		"cart": [
			{"storeId": "s1", "storeName": "Warung A", "productId": "p1", "name": "Nasi Goreng", "price": "10000", "quantity": 2}
		]
	}`
	job := seedJob(t, db, string(KindPujaseraOrderIndividual), payload)

	p.run(context.Background(), job)

	got := reloadJob(t, db, job.ID)
	if got.Status != string(StatusCompleted) {
		t.Fatalf("expected status %s, got %s (error %q)", StatusCompleted, got.Status, got.Error)
	}

	var receipt store.Transaction
	if err := db.First(&receipt, "store_id = ?", "s1").Error; err != nil {
		t.Fatalf("load receipt: %v", err)
	}
	if receipt.DeliveryOption != "pickup" {
		t.Errorf("expected delivery option to default to pickup, got %q", receipt.DeliveryOption)
	}

	var customer store.Customer
	if err := db.First(&customer, "id = ? AND pujasera_id = ?", "c1", "venue-1").Error; err != nil {
		t.Fatalf("reload customer: %v", err)
	}
	if customer.LoyaltyPoints != 2 {
		t.Errorf("expected 2 loyalty points on a 20000 cart, got %d", customer.LoyaltyPoints)
	}
}
