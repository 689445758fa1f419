package domain

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrIncompleteOrder rejects a malformed or empty cart before any write.
// The message is what store admins see on the failed job row.
var ErrIncompleteOrder = errors.New("data pesanan tidak lengkap")

// CartItem is one line of a customer cart, tagged with the tenant that owns
// the product. Constructed client-side and consumed once by settlement.
type CartItem struct {
	StoreID   string          `json:"storeId"`
	StoreName string          `json:"storeName"`
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int64           `json:"quantity"`
}

func (i CartItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(i.Quantity))
}

type Customer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// OrderPayload is the cart a settlement job carries.
type OrderPayload struct {
	PujaseraID      string     `json:"pujaseraId"`
	Customer        Customer   `json:"customer"`
	Cart            []CartItem `json:"cart"`
	PaymentMethod   string     `json:"paymentMethod"`
	DeliveryOption  string     `json:"deliveryOption,omitempty"`
	DeliveryAddress string     `json:"deliveryAddress,omitempty"`
}

func (p OrderPayload) Validate() error {
	if p.PujaseraID == "" || p.Customer == (Customer{}) || len(p.Cart) == 0 {
		return ErrIncompleteOrder
	}
	return nil
}

// TenantGroup is the slice of cart items owned by one tenant, in the order
// the customer added them.
type TenantGroup struct {
	StoreID   string
	StoreName string
	Items     []CartItem
}

// PartitionByTenant groups cart items by owning tenant, preserving item
// order within each group and the order tenants first appear in the cart.
// Items without a store reference are dropped.
func PartitionByTenant(cart []CartItem) []TenantGroup {
	var groups []TenantGroup
	index := make(map[string]int)
	for _, item := range cart {
		if item.StoreID == "" || item.StoreName == "" {
			continue
		}
		i, ok := index[item.StoreID]
		if !ok {
			i = len(groups)
			index[item.StoreID] = i
			groups = append(groups, TenantGroup{StoreID: item.StoreID, StoreName: item.StoreName})
		}
		groups[i].Items = append(groups[i].Items, item)
	}
	return groups
}

// FeeConfig bounds the platform fee deducted from a tenant's token balance
// per transaction.
type FeeConfig struct {
	FeePercentage decimal.Decimal `json:"feePercentage"`
	MinFeeRp      decimal.Decimal `json:"minFeeRp"`
	MaxFeeRp      decimal.Decimal `json:"maxFeeRp"`
	TokenValueRp  decimal.Decimal `json:"tokenValueRp"`
}

// DefaultFeeConfig is used when the stored configuration is missing or
// partially populated.
func DefaultFeeConfig() FeeConfig {
	return FeeConfig{
		FeePercentage: decimal.NewFromFloat(0.005),
		MinFeeRp:      decimal.NewFromInt(500),
		MaxFeeRp:      decimal.NewFromInt(2500),
		TokenValueRp:  decimal.NewFromInt(1000),
	}
}

// TokenFee converts a transaction total into the token units deducted from
// the tenant balance: clamp(total*feePercentage, minFeeRp, maxFeeRp) divided
// by the rupiah value of one token.
func (c FeeConfig) TokenFee(total decimal.Decimal) decimal.Decimal {
	fee := total.Mul(c.FeePercentage)
	if fee.LessThan(c.MinFeeRp) {
		fee = c.MinFeeRp
	}
	if fee.GreaterThan(c.MaxFeeRp) {
		fee = c.MaxFeeRp
	}
	return fee.Div(c.TokenValueRp)
}

// Totals is the per-tenant breakdown of one receipt.
type Totals struct {
	Subtotal   decimal.Decimal
	Tax        decimal.Decimal
	ServiceFee decimal.Decimal
	Total      decimal.Decimal
}

// ComputeTotals sums the group's line items and applies the tenant's own
// tax and service-fee percentages.
func ComputeTotals(items []CartItem, taxRate, serviceRate decimal.Decimal) Totals {
	hundred := decimal.NewFromInt(100)
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.Subtotal())
	}
	tax := subtotal.Mul(taxRate).Div(hundred)
	service := subtotal.Mul(serviceRate).Div(hundred)
	return Totals{
		Subtotal:   subtotal,
		Tax:        tax,
		ServiceFee: service,
		Total:      subtotal.Add(tax).Add(service),
	}
}

// LoyaltyPoints converts a cart's grand total into loyalty points:
// floor(grandTotal / rpPerPoint), never negative, zero when accrual is
// disabled (rpPerPoint <= 0).
func LoyaltyPoints(grandTotal decimal.Decimal, rpPerPoint int64) int64 {
	if rpPerPoint <= 0 {
		return 0
	}
	points := grandTotal.Div(decimal.NewFromInt(rpPerPoint)).Floor().IntPart()
	if points < 0 {
		return 0
	}
	return points
}
