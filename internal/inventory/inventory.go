// Package inventory talks to the stock and product catalog API.
package inventory

import (
	"context"

	"github.com/utafrali/rocketcart/internal/domain"
)

// Service answers stock and product metadata lookups for a product id.
type Service interface {
	// Stock returns the units available for id.
	Stock(ctx context.Context, id int) (*domain.Stock, error)
	// Product returns the catalog record for id, or nil with no error when
	// the catalog has no record for it.
	Product(ctx context.Context, id int) (*domain.Product, error)
}
