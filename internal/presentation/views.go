package presentation

import (
	"time"

	"github.com/RaikyD/storefront-orders/internal/domain"
)

const dateLayout = "2006-01-02"

type productView struct {
	Name     string `json:"name"`
	Slug     string `json:"slug,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

type lineItemView struct {
	ProductID string      `json:"product_id"`
	Quantity  int         `json:"quantity"`
	UnitPrice string      `json:"price"`
	LineTotal string      `json:"line_total"`
	Product   productView `json:"product"`
}

type orderView struct {
	ID              string          `json:"id"`
	OrderNumber     string          `json:"order_number"`
	UserID          string          `json:"user_id"`
	Status          string          `json:"status"`
	PaymentStatus   string          `json:"payment_status"`
	PaymentIntentID *string         `json:"payment_intent_id,omitempty"`
	Subtotal        string          `json:"subtotal"`
	Tax             string          `json:"tax"`
	DeliveryFee     string          `json:"delivery_fee"`
	Total           string          `json:"total"`
	Items           []lineItemView  `json:"items"`
	Address         *domain.Address `json:"address,omitempty"`
	DeliveryDate    *string         `json:"delivery_date,omitempty"`
	Notes           *string         `json:"notes,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type orderPageView struct {
	Orders     []orderView    `json:"orders"`
	Pagination paginationView `json:"pagination"`
}

type paginationView struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

func toOrderView(o *domain.Order) orderView {
	v := orderView{
		ID:              o.ID.String(),
		OrderNumber:     o.OrderNumber,
		UserID:          o.UserID,
		Status:          string(o.Status),
		PaymentStatus:   string(o.PaymentStatus),
		PaymentIntentID: o.PaymentIntentID,
		Subtotal:        o.Subtotal.StringFixed(2),
		Tax:             o.Tax.StringFixed(2),
		DeliveryFee:     o.DeliveryFee.StringFixed(2),
		Total:           o.Total.StringFixed(2),
		Items:           make([]lineItemView, len(o.Items)),
		Address:         o.Address,
		Notes:           o.Note,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	for i, it := range o.Items {
		v.Items[i] = lineItemView{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.StringFixed(2),
			LineTotal: it.LineTotal().StringFixed(2),
			Product:   productView{Name: it.ProductName, Slug: it.ProductSlug, ImageURL: it.ProductImageURL},
		}
	}
	if o.DeliveryDate != nil {
		d := o.DeliveryDate.Format(dateLayout)
		v.DeliveryDate = &d
	}
	return v
}

func toOrderPageView(p domain.OrderPage) orderPageView {
	v := orderPageView{
		Orders:     make([]orderView, len(p.Orders)),
		Pagination: paginationView{Page: p.Page, Limit: p.Limit, Total: p.Total, Pages: p.Pages},
	}
	for i := range p.Orders {
		v.Orders[i] = toOrderView(&p.Orders[i])
	}
	return v
}
