// Package reports implements the scheduled sweeps: the daily sales summary
// sent to store admins, the birthday greetings, and the weekly follow-up
// for inactive tenants.
package reports

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/chikapos/settlement/internal/outbox"
	"github.com/chikapos/settlement/internal/store"
)

// Notifier is the outbox producer surface the sweeps need.
type Notifier interface {
	Enqueue(ctx context.Context, msg outbox.Message) (string, error)
}

// Copywriter drafts the AI-generated messages. *ai.Client satisfies it.
type Copywriter interface {
	InactiveTenantFollowUp(ctx context.Context, storeName, adminName, businessDescription string, daysInactive int) (string, error)
	BirthdayFollowUp(ctx context.Context, customerName string, discountPercentage int, birthDate string) (string, error)
}

// birthdayDiscount is the offer included in birthday greetings.
const birthdayDiscount = 10

type Runner struct {
	db       *gorm.DB
	notifier Notifier
	ai       Copywriter
	loc      *time.Location
	logger   *slog.Logger
}

func NewRunner(db *gorm.DB, notifier Notifier, ai Copywriter, loc *time.Location, logger *slog.Logger) *Runner {
	if loc == nil {
		loc = time.UTC
	}
	return &Runner{db: db, notifier: notifier, ai: ai, loc: loc, logger: logger}
}

// RunDailySummary sends every eligible store its previous-day revenue
// summary, then greets customers whose birthday falls today. Stores are
// processed concurrently; one store's failure never blocks the rest.
func (r *Runner) RunDailySummary(ctx context.Context, now time.Time) {
	r.logger.InfoContext(ctx, "starting daily sales summary run")

	var stores []store.Store
	if err := r.db.WithContext(ctx).Find(&stores).Error; err != nil {
		r.logger.ErrorContext(ctx, "failed to load stores", slog.Any("error", err))
		return
	}
	if len(stores) == 0 {
		r.logger.InfoContext(ctx, "no stores registered, skipping run")
		return
	}

	var wg sync.WaitGroup
	for i := range stores {
		st := stores[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.summarizeStore(ctx, &st, now); err != nil {
				r.logger.ErrorContext(ctx, "daily summary failed for store",
					slog.String("store_id", st.ID), slog.Any("error", err))
			}
		}()
	}
	wg.Wait()

	r.greetBirthdays(ctx, now)
	r.logger.InfoContext(ctx, "daily sales summary run finished")
}

func (r *Runner) summarizeStore(ctx context.Context, st *store.Store, now time.Time) error {
	if !st.DailySummaryEnabled {
		r.logger.InfoContext(ctx, "daily summary disabled for store", slog.String("store", st.Name))
		return nil
	}
	if len(st.AdminUIDs) == 0 {
		r.logger.WarnContext(ctx, "store has no admins", slog.String("store", st.Name))
		return nil
	}

	yesterday := now.In(r.loc).AddDate(0, 0, -1)
	start := time.Date(yesterday.Year(), yesterday.Month(), yesterday.Day(), 0, 0, 0, 0, r.loc)
	end := start.AddDate(0, 0, 1)

	var agg struct {
		Revenue decimal.Decimal
		Count   int64
	}
	err := r.db.WithContext(ctx).Model(&store.Transaction{}).
		Select("COALESCE(SUM(total_amount), 0) AS revenue, COUNT(*) AS count").
		Where("store_id = ? AND created_at >= ? AND created_at < ?", st.ID, start, end).
		Scan(&agg).Error
	if err != nil {
		return fmt.Errorf("aggregate transactions: %w", err)
	}

	var admins []store.User
	if err := r.db.WithContext(ctx).Where("id IN ?", []string(st.AdminUIDs)).Find(&admins).Error; err != nil {
		return fmt.Errorf("load admins: %w", err)
	}

	date := FormatDateID(yesterday)
	for _, admin := range admins {
		if admin.Whatsapp == "" {
			continue
		}
		message := fmt.Sprintf(
			"*Ringkasan Harian Chika POS*\n*%s* - %s\n\nHalo *%s*, berikut adalah ringkasan penjualan Anda kemarin:\n- *Total Omset*: Rp %s\n- *Jumlah Transaksi*: %d\n\nTerus pantau dan optimalkan performa penjualan Anda melalui dasbor Chika. Semangat selalu! 💪\n\n_Apabila tidak berkenan, fitur ini dapat dinonaktifkan di menu Pengaturan._",
			st.Name, date, admin.Name, FormatRupiah(agg.Revenue), agg.Count,
		)
		if _, err := r.notifier.Enqueue(ctx, outbox.Message{
			To:      admin.Whatsapp,
			Message: message,
			StoreID: st.ID,
		}); err != nil {
			return fmt.Errorf("queue summary for admin %s: %w", admin.ID, err)
		}
		r.logger.InfoContext(ctx, "daily summary queued",
			slog.String("store", st.Name), slog.String("admin", admin.Name))
	}
	return nil
}

// greetBirthdays queues an AI-drafted greeting for every customer whose
// birth date matches today's month and day.
func (r *Runner) greetBirthdays(ctx context.Context, now time.Time) {
	if r.ai == nil {
		return
	}

	today := now.In(r.loc)
	monthDay := fmt.Sprintf("-%02d-%02d", int(today.Month()), today.Day())

	var customers []store.Customer
	err := r.db.WithContext(ctx).
		Where("birth_date <> '' AND birth_date LIKE ?", "%"+monthDay).
		Find(&customers).Error
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to load birthday customers", slog.Any("error", err))
		return
	}

	for _, c := range customers {
		if c.Whatsapp == "" {
			continue
		}
		message, err := r.ai.BirthdayFollowUp(ctx, c.Name, birthdayDiscount, c.BirthDate)
		if err != nil {
			r.logger.ErrorContext(ctx, "birthday message generation failed",
				slog.String("customer_id", c.ID), slog.Any("error", err))
			continue
		}
		if _, err := r.notifier.Enqueue(ctx, outbox.Message{
			To:      c.Whatsapp,
			Message: message,
			StoreID: outbox.ScopePlatform,
		}); err != nil {
			r.logger.ErrorContext(ctx, "failed to queue birthday greeting",
				slog.String("customer_id", c.ID), slog.Any("error", err))
		}
	}
}

var (
	dayNamesID = [...]string{"Minggu", "Senin", "Selasa", "Rabu", "Kamis", "Jumat", "Sabtu"}

	monthNamesID = [...]string{
		"Januari", "Februari", "Maret", "April", "Mei", "Juni",
		"Juli", "Agustus", "September", "Oktober", "November", "Desember",
	}
)

// FormatDateID renders a date the Indonesian way: "Senin, 1 September 2025".
func FormatDateID(t time.Time) string {
	return fmt.Sprintf("%s, %d %s %d",
		dayNamesID[t.Weekday()], t.Day(), monthNamesID[t.Month()-1], t.Year())
}

// FormatRupiah renders an amount with Indonesian thousand separators
// ("22000" -> "22.000").
func FormatRupiah(d decimal.Decimal) string {
	digits := d.Truncate(0).String()

	neg := strings.HasPrefix(digits, "-")
	digits = strings.TrimPrefix(digits, "-")

	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
