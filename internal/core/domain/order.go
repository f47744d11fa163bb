package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Storefront and admin UI expect prices as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

const maxStatusLength = 32

// Item is a cart line as submitted by the buyer.
type Item struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int64           `json:"qty"`
}

// UnmarshalJSON accepts "quantity" as an alias for "qty".
func (it *Item) UnmarshalJSON(data []byte) error {
	var aux struct {
		ID       string          `json:"id"`
		Name     string          `json:"name"`
		Price    decimal.Decimal `json:"price"`
		Qty      *int64          `json:"qty"`
		Quantity *int64          `json:"quantity"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*it = Item{ID: aux.ID, Name: aux.Name, Price: aux.Price}
	switch {
	case aux.Qty != nil:
		it.Quantity = *aux.Qty
	case aux.Quantity != nil:
		it.Quantity = *aux.Quantity
	}
	return nil
}

// Order is a committed purchase backed by exactly one redeemed transaction reference.
type Order struct {
	ID        string      `json:"id"`
	Username  string      `json:"username"`
	UserID    int64       `json:"userId"`
	Items     []Item      `json:"items"`
	Total     int64       `json:"total"`
	Tx        string      `json:"tx"`
	Status    OrderStatus `json:"status"`
	CreatedAt time.Time   `json:"createdAt"`
}

// ItemSummary renders the cart as "2x Name; 1x Other".
func (o Order) ItemSummary() string {
	parts := make([]string, 0, len(o.Items))
	for _, it := range o.Items {
		parts = append(parts, fmt.Sprintf("%dx %s", it.Quantity, it.Name))
	}
	return strings.Join(parts, "; ")
}

// Clone returns a copy that does not share the items slice.
func (o Order) Clone() Order {
	cp := o
	cp.Items = append([]Item(nil), o.Items...)
	return cp
}

// CartTotal sums price*qty over all items.
func CartTotal(items []Item) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.Price.Mul(decimal.NewFromInt(it.Quantity)))
	}
	return sum
}

// ParseStatus accepts any non-empty admin-defined status up to 32 characters.
func ParseStatus(s string) (OrderStatus, error) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > maxStatusLength {
		return "", ErrInvalidStatus
	}
	return OrderStatus(s), nil
}
