package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ProductSnapshot is the catalog view of a product at order time.
type ProductSnapshot struct {
	ID       string
	Name     string
	Slug     string
	ImageURL string
	Price    decimal.Decimal
	Stock    int
	Active   bool
}

// Catalog maps product ids to snapshots.
type Catalog map[string]ProductSnapshot

// ItemRequest is a requested (product, quantity) pair before pricing.
type ItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// PricingConfig holds the constants of the pricing rules.
type PricingConfig struct {
	TaxRate               decimal.Decimal
	FreeDeliveryThreshold decimal.Decimal
	DeliveryFee           decimal.Decimal
}

// DefaultPricing is 10% tax, free delivery strictly above $50, otherwise $5.99.
func DefaultPricing() PricingConfig {
	return PricingConfig{
		TaxRate:               decimal.RequireFromString("0.10"),
		FreeDeliveryThreshold: decimal.RequireFromString("50.00"),
		DeliveryFee:           decimal.RequireFromString("5.99"),
	}
}

// Totals are the monetary amounts of an order, rounded to cents.
type Totals struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	Tax         decimal.Decimal `json:"tax"`
	DeliveryFee decimal.Decimal `json:"delivery_fee"`
	Total       decimal.Decimal `json:"total"`
}

// Validate checks total = subtotal + tax + deliveryFee.
func (t Totals) Validate() error {
	if !t.Subtotal.Add(t.Tax).Add(t.DeliveryFee).Equal(t.Total) {
		return Validation("total %s does not equal subtotal %s + tax %s + delivery %s",
			t.Total.StringFixed(2), t.Subtotal.StringFixed(2), t.Tax.StringFixed(2), t.DeliveryFee.StringFixed(2))
	}
	return nil
}

func roundMoney(d decimal.Decimal) decimal.Decimal {
	// decimal.Round rounds half away from zero, which is half-up for non-negative amounts.
	return d.Round(2)
}

// Price computes the totals of items against the catalog snapshot and returns the priced line items.
func (c PricingConfig) Price(items []ItemRequest, catalog Catalog) ([]LineItem, Totals, error) {
	if len(items) == 0 {
		return nil, Totals{}, &Error{Kind: KindValidation, Code: CodeEmptyOrder, Message: "order must contain at least one item"}
	}

	lines := make([]LineItem, 0, len(items))
	subtotal := decimal.Zero
	for _, it := range items {
		if it.Quantity < 1 {
			return nil, Totals{}, Newf(ErrInvalidQuantity, "quantity for product %s must be at least 1", it.ProductID)
		}
		p, ok := catalog[it.ProductID]
		if !ok || !p.Active {
			return nil, Totals{}, Newf(ErrUnavailableProduct, "product %s is unavailable", it.ProductID)
		}
		li := LineItem{
			ProductID:       it.ProductID,
			Quantity:        it.Quantity,
			UnitPrice:       roundMoney(p.Price),
			ProductName:     p.Name,
			ProductSlug:     p.Slug,
			ProductImageURL: p.ImageURL,
		}
		subtotal = subtotal.Add(li.LineTotal())
		lines = append(lines, li)
	}

	subtotal = roundMoney(subtotal)
	tax := roundMoney(subtotal.Mul(c.TaxRate))
	fee := roundMoney(c.DeliveryFee)
	if subtotal.GreaterThan(c.FreeDeliveryThreshold) {
		fee = decimal.Zero
	}
	totals := Totals{
		Subtotal:    subtotal,
		Tax:         tax,
		DeliveryFee: fee,
		Total:       subtotal.Add(tax).Add(fee),
	}
	if err := totals.Validate(); err != nil {
		return nil, Totals{}, fmt.Errorf("pricing: %w", err)
	}
	return lines, totals, nil
}
