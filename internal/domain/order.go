package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineItem is a (product, quantity) pair of an order with the unit price captured at creation.
type LineItem struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`

	// Display fields, filled from the catalog when the order is read.
	ProductName     string `json:"product_name,omitempty"`
	ProductSlug     string `json:"product_slug,omitempty"`
	ProductImageURL string `json:"product_image_url,omitempty"`
}

// LineTotal is UnitPrice × Quantity.
func (li LineItem) LineTotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Address is the shipping address read model. It is owned by the address book.
type Address struct {
	ID         string `json:"id"`
	UserID     string `json:"-"`
	Name       string `json:"name"`
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

type Order struct {
	ID              uuid.UUID       `json:"id"`
	OrderNumber     string          `json:"order_number"`
	UserID          string          `json:"user_id"`
	AddressID       string          `json:"address_id"`
	Address         *Address        `json:"address,omitempty"`
	Items           []LineItem      `json:"items"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Tax             decimal.Decimal `json:"tax"`
	DeliveryFee     decimal.Decimal `json:"delivery_fee"`
	Total           decimal.Decimal `json:"total"`
	Status          Status          `json:"status"`
	PaymentStatus   PaymentStatus   `json:"payment_status"`
	PaymentIntentID *string         `json:"payment_intent_id,omitempty"`
	DeliveryDate    *time.Time      `json:"delivery_date,omitempty"`
	Note            *string         `json:"notes,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// NewOrderParams carries everything needed to construct a fresh order.
type NewOrderParams struct {
	ID           uuid.UUID
	OrderNumber  string
	UserID       string
	AddressID    string
	Items        []LineItem
	Totals       Totals
	DeliveryDate *time.Time
	Note         *string
	Now          time.Time
}

// NewOrder builds a PENDING/UNPAID order and checks the totals identity.
func NewOrder(p NewOrderParams) (*Order, error) {
	if len(p.Items) == 0 {
		return nil, &Error{Kind: KindValidation, Code: CodeEmptyOrder, Message: "order must contain at least one item"}
	}
	if err := p.Totals.Validate(); err != nil {
		return nil, err
	}
	items := make([]LineItem, len(p.Items))
	copy(items, p.Items)

	now := p.Now.UTC()
	return &Order{
		ID:            p.ID,
		OrderNumber:   p.OrderNumber,
		UserID:        p.UserID,
		AddressID:     p.AddressID,
		Items:         items,
		Subtotal:      p.Totals.Subtotal,
		Tax:           p.Totals.Tax,
		DeliveryFee:   p.Totals.DeliveryFee,
		Total:         p.Totals.Total,
		Status:        StatusPending,
		PaymentStatus: PaymentUnpaid,
		DeliveryDate:  p.DeliveryDate,
		Note:          p.Note,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Clone returns a deep copy so stored orders cannot be mutated through returned values.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Items = append([]LineItem(nil), o.Items...)
	if o.Address != nil {
		a := *o.Address
		c.Address = &a
	}
	if o.PaymentIntentID != nil {
		v := *o.PaymentIntentID
		c.PaymentIntentID = &v
	}
	if o.DeliveryDate != nil {
		v := *o.DeliveryDate
		c.DeliveryDate = &v
	}
	if o.Note != nil {
		v := *o.Note
		c.Note = &v
	}
	return &c
}

// OrderFilter narrows ListOrders. Empty fields match everything.
type OrderFilter struct {
	UserID string
	Status Status
}

// Page requests a 1-based page of results.
type Page struct {
	Page  int
	Limit int
}

// Page size bounds. Listing every order defaults to DefaultAdminPageLimit.
const (
	DefaultPageLimit      = 10
	DefaultAdminPageLimit = 20
	MaxPageLimit          = 100
)

// Normalize clamps the page into a valid range.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}

// Offset is the number of rows skipped before the page starts.
func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}

// OrderPage is one page of orders, most recent first.
type OrderPage struct {
	Orders []Order `json:"orders"`
	Page   int     `json:"page"`
	Limit  int     `json:"limit"`
	Total  int     `json:"total"`
	Pages  int     `json:"pages"`
}

// NewOrderPage fills the pagination counters.
func NewOrderPage(orders []Order, p Page, total int) OrderPage {
	pages := 0
	if p.Limit > 0 {
		pages = (total + p.Limit - 1) / p.Limit
	}
	if orders == nil {
		orders = []Order{}
	}
	return OrderPage{Orders: orders, Page: p.Page, Limit: p.Limit, Total: total, Pages: pages}
}
