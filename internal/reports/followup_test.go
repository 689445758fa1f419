package reports

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/chikapos/settlement/internal/outbox"
	"github.com/chikapos/settlement/internal/store"
)

type fakeNotifier struct {
	mu       sync.Mutex
	messages []outbox.Message
}

func (f *fakeNotifier) Enqueue(ctx context.Context, msg outbox.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
	return fmt.Sprintf("entry-%d", len(f.messages)), nil
}

func (f *fakeNotifier) all() []outbox.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]outbox.Message(nil), f.messages...)
}

type fakeCopywriter struct{}

func (fakeCopywriter) InactiveTenantFollowUp(ctx context.Context, storeName, adminName, businessDescription string, daysInactive int) (string, error) {
	return fmt.Sprintf("Halo %s, kami rindu %s!", adminName, storeName), nil
}

func (fakeCopywriter) BirthdayFollowUp(ctx context.Context, customerName string, discountPercentage int, birthDate string) (string, error) {
	return fmt.Sprintf("Selamat ulang tahun, %s!", customerName), nil
}

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

	if err := db.AutoMigrate(&store.Store{}, &store.User{}, &store.Transaction{}, &store.Customer{}); err != nil {
		t.Fatalf("migrate schema: %v", err)
	}
	return db
}

func TestRunInactiveFollowUpSweepsEligibleStores(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2025, time.September, 1, 9, 0, 0, 0, time.UTC)
	recent := now.Add(-24 * time.Hour)

	users := []store.User{
		{ID: "u1", Name: "Andi", Whatsapp: "081111111111"},
		{ID: "u2", Name: "Sari", Whatsapp: "082222222222"},
		{ID: "u3", Name: "Tono", Whatsapp: "083333333333"},
		{ID: "u4", Name: "Rina", Whatsapp: "084444444444"},
	}
	for i := range users {
		if err := db.Create(&users[i]).Error; err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}

	stores := []store.Store{
		// Never transacted, never followed up: eligible.
		{ID: "s1", Name: "Warung Lama", AdminUIDs: datatypes.NewJSONSlice([]string{"u1"})},
		// Quiet for over a week: eligible.
		{ID: "s2", Name: "Warung Sepi", AdminUIDs: datatypes.NewJSONSlice([]string{"u2"}),
			LastTransactionAt: ptrTime(now.Add(-8 * 24 * time.Hour))},
		// Transacted yesterday: skipped.
		{ID: "s3", Name: "Warung Ramai", AdminUIDs: datatypes.NewJSONSlice([]string{"u3"}),
			LastTransactionAt: &recent},
		// Already followed up this week: skipped.
		{ID: "s4", Name: "Warung Disapa", AdminUIDs: datatypes.NewJSONSlice([]string{"u4"}),
			LastFollowUpSentAt: &recent},
	}
	for i := range stores {
		if err := db.Create(&stores[i]).Error; err != nil {
			t.Fatalf("seed store: %v", err)
		}
	}

	notifier := &fakeNotifier{}
	r := NewRunner(db, notifier, fakeCopywriter{}, time.UTC, slog.New(slog.NewTextHandler(io.Discard, nil)))

	r.RunInactiveFollowUp(context.Background(), now)

	got := notifier.all()
	if len(got) != 2 {
		t.Fatalf("expected 2 follow-ups, got %d", len(got))
	}
	recipients := map[string]bool{}
	for _, msg := range got {
		recipients[msg.To] = true
	}
	if !recipients["081111111111"] || !recipients["082222222222"] {
		t.Errorf("expected follow-ups for the two inactive stores, got recipients %v", recipients)
	}

	for _, id := range []string{"s1", "s2"} {
		var st store.Store
		if err := db.First(&st, "id = ?", id).Error; err != nil {
			t.Fatalf("reload store %s: %v", id, err)
		}
		if st.LastFollowUpSentAt == nil {
			t.Errorf("expected %s last_follow_up_sent_at to be stamped", id)
		}
	}
	var skipped store.Store
	if err := db.First(&skipped, "id = ?", "s3").Error; err != nil {
		t.Fatalf("reload store s3: %v", err)
	}
	if skipped.LastFollowUpSentAt != nil {
		t.Errorf("expected active store untouched, got follow-up at %v", skipped.LastFollowUpSentAt)
	}
}

func TestRunInactiveFollowUpSkipsStoreWithoutAdmin(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2025, time.September, 1, 9, 0, 0, 0, time.UTC)

	if err := db.Create(&store.Store{ID: "s1", Name: "Warung Yatim"}).Error; err != nil {
		t.Fatalf("seed store: %v", err)
	}

	notifier := &fakeNotifier{}
	r := NewRunner(db, notifier, fakeCopywriter{}, time.UTC, slog.New(slog.NewTextHandler(io.Discard, nil)))

	r.RunInactiveFollowUp(context.Background(), now)

	if got := notifier.all(); len(got) != 0 {
		t.Errorf("expected no follow-ups for an adminless store, got %d", len(got))
	}
}

func ptrTime(t time.Time) *time.Time { return &t }
