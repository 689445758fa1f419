// Package settlement implements the order fan-out: one customer cart is
// partitioned by tenant and, for each tenant, exactly one receipt is written
// and one bounded platform fee is deducted, all inside a single database
// transaction.
package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/chikapos/settlement/internal/pkg/cache"
	"github.com/chikapos/settlement/internal/settlement/domain"
	"github.com/chikapos/settlement/internal/store"
)

// ReceiptStatusProcessing is the initial status of every receipt written by
// settlement; the tenant's kitchen/POS views move it along afterwards.
const ReceiptStatusProcessing = "Diproses"

const staffIDCatalog = "catalog-system"

const feeConfigCacheTTL = 5 * time.Minute

// Options selects the variant-specific behaviour of the unified settlement
// operation. The individual-payment path accrues loyalty points and threads
// delivery metadata; the legacy centralized path does neither.
type Options struct {
	AccrueLoyalty bool
}

// ReceiptRef identifies one receipt produced by a settlement run.
type ReceiptRef struct {
	StoreID       string          `json:"storeId"`
	TransactionID string          `json:"transactionId"`
	ReceiptNumber int64           `json:"receiptNumber"`
	Total         decimal.Decimal `json:"total"`
}

// Result summarises a completed settlement run.
type Result struct {
	ParentID     string          `json:"parentId"`
	Receipts     []ReceiptRef    `json:"receipts"`
	GrandTotal   decimal.Decimal `json:"grandTotal"`
	PointsEarned int64           `json:"pointsEarned"`
	Skipped      []string        `json:"skipped,omitempty"`
}

type Settler struct {
	db    *gorm.DB
	cache cache.Cache
}

func NewSettler(db *gorm.DB, c cache.Cache) *Settler {
	if c == nil {
		c = cache.Noop()
	}
	return &Settler{db: db, cache: c}
}

// Settle validates the cart, partitions it by tenant and commits all
// per-tenant writes atomically. Tenants without a store row are skipped
// with a warning; they are not a failure of the whole job.
func (s *Settler) Settle(ctx context.Context, p domain.OrderPayload, opts Options) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	groups := domain.PartitionByTenant(p.Cart)
	feeCfg := s.feeConfig(ctx)

	// Shared across every receipt of this cart; only used for
	// human-readable cross-referencing in receipt notes.
	parentID := uuid.NewString()

	customerID := p.Customer.ID
	if customerID == "" {
		customerID = "N/A"
	}
	customerName := p.Customer.Name
	if customerName == "" {
		customerName = "Guest"
	}

	// The individual-payment path always carries a delivery choice; an
	// unspecified one means over-the-counter pickup.
	deliveryOption := p.DeliveryOption
	if opts.AccrueLoyalty && deliveryOption == "" {
		deliveryOption = "pickup"
	}

	res := &Result{ParentID: parentID, GrandTotal: decimal.Zero}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		grand := decimal.Zero

		for _, g := range groups {
			var tenant store.Store
			if err := tx.First(&tenant, "id = ?", g.StoreID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					slog.WarnContext(ctx, "tenant store not found, skipping",
						"store_id", g.StoreID, "parent_id", parentID)
					res.Skipped = append(res.Skipped, g.StoreID)
					continue
				}
				return fmt.Errorf("load tenant %s: %w", g.StoreID, err)
			}

			totals := domain.ComputeTotals(g.Items, tenant.TaxPercentage, tenant.ServiceFeePercentage)
			fee := feeCfg.TokenFee(totals.Total)
			now := time.Now().UTC()

			// The counter's post-increment value is the receipt number, so
			// concurrent settlements on the same tenant cannot collide. The
			// fee deduction rides the same atomic update.
			var receiptNumber int64
			if err := tx.Raw(
				`UPDATE stores
				 SET transaction_counter = transaction_counter + 1,
				     pradana_token_balance = pradana_token_balance - ?,
				     last_transaction_at = ?,
				     updated_at = ?
				 WHERE id = ?
				 RETURNING transaction_counter`,
				fee, now, now, g.StoreID,
			).Scan(&receiptNumber).Error; err != nil {
				return fmt.Errorf("allocate receipt for tenant %s: %w", g.StoreID, err)
			}

			itemsJSON, err := json.Marshal(g.Items)
			if err != nil {
				return fmt.Errorf("marshal items for tenant %s: %w", g.StoreID, err)
			}

			receipt := store.Transaction{
				ID:                  uuid.NewString(),
				ReceiptNumber:       receiptNumber,
				StoreID:             g.StoreID,
				CustomerID:          customerID,
				CustomerName:        customerName,
				StaffID:             staffIDCatalog,
				Items:               itemsJSON,
				Subtotal:            totals.Subtotal,
				TaxAmount:           totals.Tax,
				ServiceFeeAmount:    totals.ServiceFee,
				DiscountAmount:      decimal.Zero,
				TotalAmount:         totals.Total,
				PaymentMethod:       p.PaymentMethod,
				Status:              ReceiptStatusProcessing,
				Notes:               fmt.Sprintf("Pesanan dari Katalog Publik #%s", parentID[:6]),
				ParentTransactionID: parentID,
				PujaseraID:          p.PujaseraID,
				DeliveryOption:      deliveryOption,
				DeliveryAddress:     p.DeliveryAddress,
				CreatedAt:           now,
			}
			if err := tx.Create(&receipt).Error; err != nil {
				return fmt.Errorf("write receipt for tenant %s: %w", g.StoreID, err)
			}

			grand = grand.Add(totals.Total)
			res.Receipts = append(res.Receipts, ReceiptRef{
				StoreID:       g.StoreID,
				TransactionID: receipt.ID,
				ReceiptNumber: receiptNumber,
				Total:         totals.Total,
			})
		}

		res.GrandTotal = grand

		if opts.AccrueLoyalty {
			points, err := s.accrueLoyalty(ctx, tx, p, grand, customerID)
			if err != nil {
				return err
			}
			res.PointsEarned = points
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "settlement committed",
		"parent_id", parentID,
		"tenants", len(res.Receipts),
		"skipped", len(res.Skipped),
		"grand_total", res.GrandTotal.String(),
	)
	return res, nil
}

// accrueLoyalty credits floor(grandTotal / rpPerPoint) points to the
// customer's venue-scoped loyalty ledger. Disabled venues, guest customers
// and zero-point totals are all quiet no-ops.
func (s *Settler) accrueLoyalty(ctx context.Context, tx *gorm.DB, p domain.OrderPayload, grand decimal.Decimal, customerID string) (int64, error) {
	var venue store.Store
	if err := tx.First(&venue, "id = ?", p.PujaseraID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			slog.WarnContext(ctx, "pujasera venue not found, skipping loyalty accrual",
				"pujasera_id", p.PujaseraID)
			return 0, nil
		}
		return 0, fmt.Errorf("load venue %s: %w", p.PujaseraID, err)
	}

	points := domain.LoyaltyPoints(grand, venue.RpPerPoint)
	if points <= 0 || customerID == "N/A" {
		return points, nil
	}

	err := tx.Model(&store.Customer{}).
		Where("id = ? AND pujasera_id = ?", customerID, p.PujaseraID).
		UpdateColumn("loyalty_points", gorm.Expr("loyalty_points + ?", points)).Error
	if err != nil {
		return 0, fmt.Errorf("credit loyalty points: %w", err)
	}
	return points, nil
}

// feeConfig loads the platform fee configuration: cache, then the stored
// singleton row, then the hardcoded defaults. Partially populated rows fall
// back per field, matching how the legacy system treated missing keys.
func (s *Settler) feeConfig(ctx context.Context) domain.FeeConfig {
	key := s.cache.Key("settings", "transaction-fees")

	var cfg domain.FeeConfig
	if ok, err := s.cache.GetJSON(ctx, key, &cfg); err == nil && ok {
		return cfg
	}

	cfg = domain.DefaultFeeConfig()

	var row store.FeeSettings
	err := s.db.WithContext(ctx).First(&row, "id = ?", 1).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			slog.WarnContext(ctx, "fee settings unavailable, using defaults", "error", err)
		}
		return cfg
	}

	if row.FeePercentage.IsPositive() {
		cfg.FeePercentage = row.FeePercentage
	}
	if row.MinFeeRp.IsPositive() {
		cfg.MinFeeRp = row.MinFeeRp
	}
	if row.MaxFeeRp.IsPositive() {
		cfg.MaxFeeRp = row.MaxFeeRp
	}
	if row.TokenValueRp.IsPositive() {
		cfg.TokenValueRp = row.TokenValueRp
	}

	if err := s.cache.SetJSON(ctx, key, cfg, feeConfigCacheTTL); err != nil {
		slog.WarnContext(ctx, "failed to cache fee settings", "error", err)
	}
	return cfg
}
