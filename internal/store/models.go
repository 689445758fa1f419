package store

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Store is a tenant: an independent merchant with its own receipt sequence
// and prepaid token balance. A store with an empty PujaseraID is standalone;
// otherwise it belongs to the named shared venue.
type Store struct {
	ID                  string `gorm:"primaryKey"`
	Name                string
	BusinessDescription string
	PujaseraID          string `gorm:"index"`

	// TransactionCounter is the receipt sequence. It is only ever advanced
	// with an atomic increment inside the settlement transaction; the
	// post-increment value is the receipt number.
	TransactionCounter int64

	PradanaTokenBalance decimal.Decimal `gorm:"type:numeric"`

	TaxPercentage        decimal.Decimal `gorm:"type:numeric"`
	ServiceFeePercentage decimal.Decimal `gorm:"type:numeric"`

	// RpPerPoint is the venue's loyalty accrual rate: one point per this
	// many rupiah of grand total. Zero or negative disables accrual.
	RpPerPoint int64 `gorm:"default:10000"`

	DailySummaryEnabled bool `gorm:"default:true"`

	AdminUIDs datatypes.JSONSlice[string]

	LastTransactionAt  *time.Time
	LastFollowUpSentAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Transaction is one per-tenant receipt. Immutable after creation except
// for Status.
type Transaction struct {
	ID            string `gorm:"primaryKey"`
	ReceiptNumber int64
	StoreID       string `gorm:"index"`
	CustomerID    string
	CustomerName  string
	StaffID       string

	Items datatypes.JSON

	Subtotal         decimal.Decimal `gorm:"type:numeric"`
	TaxAmount        decimal.Decimal `gorm:"type:numeric"`
	ServiceFeeAmount decimal.Decimal `gorm:"type:numeric"`
	DiscountAmount   decimal.Decimal `gorm:"type:numeric"`
	TotalAmount      decimal.Decimal `gorm:"type:numeric"`

	PaymentMethod string
	Status        string

	Notes string
	// ParentTransactionID links every receipt produced from one customer
	// cart. Cross-reference only, not a foreign key.
	ParentTransactionID string `gorm:"index"`
	PujaseraID          string

	DeliveryOption  string
	DeliveryAddress string

	CreatedAt time.Time `gorm:"index"`
}

// User is a platform account (store admins, top-up requesters).
type User struct {
	ID        string `gorm:"primaryKey"`
	Name      string
	Whatsapp  string
	CreatedAt time.Time
}

// Customer is a venue-scoped loyalty ledger entry: points earned across all
// tenants of one pujasera accrue here.
type Customer struct {
	ID            string `gorm:"primaryKey"`
	PujaseraID    string `gorm:"primaryKey"`
	Name          string
	Whatsapp      string
	LoyaltyPoints int64
	// BirthDate in YYYY-MM-DD, empty when unknown.
	BirthDate string
	CreatedAt time.Time
}

// TopUpRequest tracks a customer-submitted token purchase for a store.
type TopUpRequest struct {
	ID          string `gorm:"primaryKey"`
	StoreID     string `gorm:"index"`
	StoreName   string
	Status      string
	TokensToAdd decimal.Decimal `gorm:"type:numeric"`
	UserID      string
	UserName    string
	ProofURL    string
	CreatedAt   time.Time
	DecidedAt   *time.Time
}

// OutboxEntry is one pending outbound WhatsApp message. Producers only ever
// append; the delivery worker owns the status transitions.
type OutboxEntry struct {
	ID      string `gorm:"primaryKey"`
	To      string
	Message string
	IsGroup bool
	// StoreID is the originating tenant, or "platform" for platform-scoped
	// notifications.
	StoreID string
	Status  string `gorm:"index"`
	Error   string

	CreatedAt   time.Time
	SentAt      *time.Time
	ProcessedAt *time.Time
}

// Job is a persisted unit of deferred work consumed by the settlement
// worker.
type Job struct {
	ID      string `gorm:"primaryKey"`
	Kind    string
	Payload datatypes.JSON
	Status  string `gorm:"index"`
	Error   string

	CreatedAt   time.Time
	StartedAt   *time.Time
	ProcessedAt *time.Time
}

// FeeSettings is the singleton platform fee configuration (single row,
// ID 1). Missing row falls back to the defaults in the settlement package.
type FeeSettings struct {
	ID            int             `gorm:"primaryKey"`
	FeePercentage decimal.Decimal `gorm:"type:numeric"`
	MinFeeRp      decimal.Decimal `gorm:"type:numeric"`
	MaxFeeRp      decimal.Decimal `gorm:"type:numeric"`
	TokenValueRp  decimal.Decimal `gorm:"type:numeric"`
	UpdatedAt     time.Time
}

// WhatsappConfig is the stored tier of the WhatsApp settings precedence
// chain (env override > this row). Single row, ID 1.
type WhatsappConfig struct {
	ID         int `gorm:"primaryKey"`
	DeviceID   string
	AdminGroup string
	UpdatedAt  time.Time
}
