package reports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/chikapos/settlement/internal/outbox"
	"github.com/chikapos/settlement/internal/store"
)

// inactivityWindow is how long a store must be quiet before a follow-up,
// and the minimum gap between two follow-ups to the same store.
const inactivityWindow = 7 * 24 * time.Hour

// RunInactiveFollowUp messages the primary admin of every store with no
// transaction and no follow-up in the last week. Each store is handled
// independently; an AI or queue failure for one never aborts the sweep.
func (r *Runner) RunInactiveFollowUp(ctx context.Context, now time.Time) {
	r.logger.InfoContext(ctx, "starting weekly check for inactive tenants")

	var stores []store.Store
	if err := r.db.WithContext(ctx).Find(&stores).Error; err != nil {
		r.logger.ErrorContext(ctx, "failed to load stores", slog.Any("error", err))
		return
	}

	cutoff := now.Add(-inactivityWindow)

	var wg sync.WaitGroup
	for i := range stores {
		st := &stores[i]
		if st.LastTransactionAt != nil && st.LastTransactionAt.After(cutoff) {
			continue
		}
		if st.LastFollowUpSentAt != nil && st.LastFollowUpSentAt.After(cutoff) {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.followUpStore(ctx, st, now); err != nil {
				r.logger.ErrorContext(ctx, "inactive follow-up failed for store",
					slog.String("store_id", st.ID), slog.Any("error", err))
			}
		}()
	}
	wg.Wait()

	r.logger.InfoContext(ctx, "weekly check for inactive tenants finished")
}

func (r *Runner) followUpStore(ctx context.Context, st *store.Store, now time.Time) error {
	if len(st.AdminUIDs) == 0 {
		r.logger.WarnContext(ctx, "store has no admin, skipping follow-up", slog.String("store", st.Name))
		return nil
	}

	var admin store.User
	err := r.db.WithContext(ctx).First(&admin, "id = ?", st.AdminUIDs[0]).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && admin.Whatsapp == "") {
		r.logger.WarnContext(ctx, "primary admin missing or has no whatsapp number",
			slog.String("store", st.Name), slog.String("admin_id", st.AdminUIDs[0]))
		return nil
	}
	if err != nil {
		return fmt.Errorf("load admin: %w", err)
	}

	adminName := admin.Name
	if adminName == "" {
		adminName = "Admin"
	}
	description := st.BusinessDescription
	if description == "" {
		description = "bisnis Anda"
	}

	days := int(inactivityWindow / (24 * time.Hour))
	message, err := r.ai.InactiveTenantFollowUp(ctx, st.Name, adminName, description, days)
	if err != nil {
		return fmt.Errorf("generate follow-up: %w", err)
	}

	if _, err := r.notifier.Enqueue(ctx, outbox.Message{
		To:      admin.Whatsapp,
		Message: message,
		StoreID: st.ID,
	}); err != nil {
		return fmt.Errorf("queue follow-up: %w", err)
	}

	if err := r.db.WithContext(ctx).Model(&store.Store{}).Where("id = ?", st.ID).
		Update("last_follow_up_sent_at", now.UTC()).Error; err != nil {
		return fmt.Errorf("stamp follow-up time: %w", err)
	}

	r.logger.InfoContext(ctx, "inactive follow-up queued",
		slog.String("store", st.Name), slog.String("admin", adminName))
	return nil
}
