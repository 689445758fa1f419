// Package topup manages token purchase requests: customers submit them,
// platform admins approve or reject, approval credits the store balance.
package topup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/chikapos/settlement/internal/outbox"
	"github.com/chikapos/settlement/internal/store"
)

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusRejected  = "rejected"
)

// ErrNotPending is returned when a decision targets a request that has
// already been decided.
var ErrNotPending = errors.New("topup: request is not pending")

// Notifier is the outbox producer surface this package needs.
type Notifier interface {
	Enqueue(ctx context.Context, msg outbox.Message) (string, error)
}

type Service struct {
	db       *gorm.DB
	notifier Notifier
	logger   *slog.Logger
}

func NewService(db *gorm.DB, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{db: db, notifier: notifier, logger: logger}
}

// CreateInput describes a new request. StoreName is denormalized onto the
// request so notifications survive a later store rename.
type CreateInput struct {
	StoreID     string
	StoreName   string
	TokensToAdd decimal.Decimal
	UserID      string
	UserName    string
	ProofURL    string
}

// Create records a pending request and alerts the platform admin group.
// The alert is best-effort: a notification failure never loses the request.
func (s *Service) Create(ctx context.Context, in CreateInput) (*store.TopUpRequest, error) {
	if in.StoreID == "" || in.StoreName == "" {
		return nil, errors.New("topup: request is missing store id or store name")
	}

	req := store.TopUpRequest{
		ID:          uuid.NewString(),
		StoreID:     in.StoreID,
		StoreName:   in.StoreName,
		Status:      StatusPending,
		TokensToAdd: in.TokensToAdd,
		UserID:      in.UserID,
		UserName:    in.UserName,
		ProofURL:    in.ProofURL,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&req).Error; err != nil {
		return nil, fmt.Errorf("topup: persist request: %w", err)
	}

	requester := in.UserName
	if requester == "" {
		requester = "N/A"
	}
	proof := in.ProofURL
	if proof == "" {
		proof = "Tidak ada"
	}
	alert := fmt.Sprintf(
		"🔔 *Permintaan Top-up Baru*\n\nToko: *%s*\nPengaju: *%s*\nJumlah: *%s token*\n\nMohon segera verifikasi di konsol admin.\nBukti: %s",
		in.StoreName, requester, formatTokens(in.TokensToAdd), proof,
	)
	if _, err := s.notifier.Enqueue(ctx, outbox.Message{
		To:      outbox.RecipientAdminGroup,
		Message: alert,
		IsGroup: true,
		StoreID: outbox.ScopePlatform,
	}); err != nil {
		s.logger.ErrorContext(ctx, "failed to queue top-up alert",
			slog.String("request_id", req.ID), slog.Any("error", err))
	}

	return &req, nil
}

// Decide moves a pending request to completed or rejected. Completion
// credits the store's token balance in the same transaction as the status
// flip, so a crash cannot credit twice or decide without crediting.
func (s *Service) Decide(ctx context.Context, requestID string, approve bool) (*store.TopUpRequest, error) {
	var req store.TopUpRequest

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&req, "id = ?", requestID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("topup: request %s not found: %w", requestID, err)
			}
			return err
		}
		if req.Status != StatusPending {
			return ErrNotPending
		}

		now := time.Now().UTC()
		req.Status = StatusRejected
		if approve {
			req.Status = StatusCompleted
		}
		req.DecidedAt = &now

		// Compare-and-swap on the pending status: a concurrent decision
		// that won the race leaves zero rows for this update.
		res := tx.Model(&store.TopUpRequest{}).
			Where("id = ? AND status = ?", req.ID, StatusPending).
			Updates(map[string]any{
				"status":     req.Status,
				"decided_at": now,
			})
		if res.Error != nil {
			return fmt.Errorf("topup: update request: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotPending
		}

		if approve {
			res := tx.Model(&store.Store{}).Where("id = ?", req.StoreID).
				Update("pradana_token_balance", gorm.Expr("pradana_token_balance + ?", req.TokensToAdd))
			if res.Error != nil {
				return fmt.Errorf("topup: credit store balance: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("topup: store %s not found", req.StoreID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyDecision(ctx, &req)
	return &req, nil
}

// notifyDecision queues the customer and admin messages. Best-effort; the
// decision itself is already committed.
func (s *Service) notifyDecision(ctx context.Context, req *store.TopUpRequest) {
	amount := formatTokens(req.TokensToAdd)

	customerName := req.UserName
	if customerName == "" {
		customerName = "Pelanggan"
	}
	customerWhatsapp := ""
	if req.UserID != "" {
		var user store.User
		err := s.db.WithContext(ctx).First(&user, "id = ?", req.UserID).Error
		switch {
		case err == nil:
			customerWhatsapp = user.Whatsapp
			if user.Name != "" {
				customerName = user.Name
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			// Request survives its requester; fall back to the denormalized name.
		default:
			s.logger.ErrorContext(ctx, "failed to load requester",
				slog.String("user_id", req.UserID), slog.Any("error", err))
		}
	}

	var customerMessage, adminMessage string
	if req.Status == StatusCompleted {
		customerMessage = fmt.Sprintf(
			"✅ *Top-up Disetujui!*\n\nHalo %s,\nPermintaan top-up Anda untuk toko *%s* telah disetujui.\n\nSejumlah *%s token* telah ditambahkan ke saldo Anda.\n\nTerima kasih!",
			customerName, req.StoreName, amount,
		)
		adminMessage = fmt.Sprintf(
			"✅ *Top-up Disetujui*\n\nPermintaan dari: *%s*\nJumlah: *%s token*\n\nStatus berhasil diperbarui dan saldo toko telah ditambahkan.",
			req.StoreName, amount,
		)
	} else {
		customerMessage = fmt.Sprintf(
			"❌ *Top-up Ditolak*\n\nHalo %s,\nMohon maaf, permintaan top-up Anda untuk toko *%s* sejumlah %s token telah ditolak.\n\nSilakan periksa bukti transfer Anda dan coba lagi, atau hubungi admin jika ada pertanyaan.",
			customerName, req.StoreName, amount,
		)
		adminMessage = fmt.Sprintf(
			"❌ *Top-up Ditolak*\n\nPermintaan dari: *%s*\nJumlah: *%s token*\n\nStatus berhasil diperbarui. Tidak ada perubahan pada saldo toko.",
			req.StoreName, amount,
		)
	}

	if customerWhatsapp != "" {
		if _, err := s.notifier.Enqueue(ctx, outbox.Message{
			To:      customerWhatsapp,
			Message: customerMessage,
			StoreID: outbox.ScopePlatform,
		}); err != nil {
			s.logger.ErrorContext(ctx, "failed to queue customer notification",
				slog.String("request_id", req.ID), slog.Any("error", err))
		}
	} else {
		s.logger.WarnContext(ctx, "requester has no whatsapp number, skipping customer notification",
			slog.String("request_id", req.ID), slog.String("user_id", req.UserID))
	}

	if _, err := s.notifier.Enqueue(ctx, outbox.Message{
		To:      outbox.RecipientAdminGroup,
		Message: adminMessage,
		IsGroup: true,
		StoreID: outbox.ScopePlatform,
	}); err != nil {
		s.logger.ErrorContext(ctx, "failed to queue admin notification",
			slog.String("request_id", req.ID), slog.Any("error", err))
	}
}

// formatTokens renders an amount with Indonesian thousand separators
// ("2500" -> "2.500"). Fractional parts are dropped; token amounts are
// whole numbers in practice.
func formatTokens(d decimal.Decimal) string {
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
