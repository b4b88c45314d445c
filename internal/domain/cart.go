package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Product is a catalog item. Inside a Cart, Amount is the quantity the
// shopper holds; in catalog responses it is ignored.
type Product struct {
	ID     int     `json:"id"`
	Title  string  `json:"title"`
	Price  float64 `json:"price"`
	Image  string  `json:"image"`
	Amount int     `json:"amount"`
}

// Subtotal is Price times Amount.
func (p Product) Subtotal() float64 {
	return p.Price * float64(p.Amount)
}

// Stock is the inventory's available quantity for a product.
type Stock struct {
	ID     int `json:"id"`
	Amount int `json:"amount"`
}

// Cart is the shopper's selection, ordered by when each product was first
// added. Product IDs are unique and every Amount is at least 1.
type Cart []Product

// FindIndex returns the position of the entry for id, or -1.
func (c Cart) FindIndex(id int) int {
	for i := range c {
		if c[i].ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a copy that shares no backing array with c. The result is
// never nil so it encodes as [] rather than null.
func (c Cart) Clone() Cart {
	out := make(Cart, len(c))
	copy(out, c)
	return out
}

// ItemCount returns the sum of all entry amounts.
func (c Cart) ItemCount() int {
	var n int
	for _, p := range c {
		n += p.Amount
	}
	return n
}

// Total returns the sum of all subtotals rounded to cents.
func (c Cart) Total() float64 {
	var total float64
	for _, p := range c {
		total += p.Subtotal()
	}
	return math.Round(total*100) / 100
}

// Validate checks the cart invariants: unique ids and positive amounts.
func (c Cart) Validate() error {
	seen := make(map[int]struct{}, len(c))
	for _, p := range c {
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("duplicate product %d", p.ID)
		}
		seen[p.ID] = struct{}{}
		if p.Amount < 1 {
			return fmt.Errorf("product %d has amount %d", p.ID, p.Amount)
		}
	}
	return nil
}

// ErrInvalidSnapshot is returned by DecodeCart for unusable stored data.
var ErrInvalidSnapshot = errors.New("invalid cart snapshot")

// EncodeCart serializes c as a JSON array.
func EncodeCart(c Cart) (string, error) {
	if c == nil {
		c = Cart{}
	}
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode cart: %w", err)
	}
	return string(b), nil
}

// DecodeCart parses a snapshot written by EncodeCart. Malformed JSON and
// snapshots that break the cart invariants wrap ErrInvalidSnapshot.
func DecodeCart(s string) (Cart, error) {
	var c Cart
	if err := json.Unmarshal([]byte(s), &c); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}
	if c == nil {
		c = Cart{}
	}
	return c, nil
}
