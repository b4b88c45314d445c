// Package simulator serves a small in-memory stock and product catalog over
// the same HTTP API the cart uses for its inventory lookups.
package simulator

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/utafrali/rocketcart/internal/domain"
)

//go:embed seed.json
var defaultSeed []byte

// Seed is the on-disk catalog format: a products list and a stock list
// keyed by the same ids.
type Seed struct {
	Products []domain.Product `json:"products"`
	Stock    []domain.Stock   `json:"stock"`
}

// DefaultSeed returns the built-in six-product catalog.
func DefaultSeed() (Seed, error) {
	return ParseSeed(defaultSeed)
}

// LoadSeed reads a seed file from path.
func LoadSeed(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("read seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes and checks a seed document. Ids must be positive and
// unique within each list, and stock amounts may not be negative.
func ParseSeed(data []byte) (Seed, error) {
	var s Seed
	if err := json.Unmarshal(data, &s); err != nil {
		return Seed{}, fmt.Errorf("decode seed: %w", err)
	}

	seen := make(map[int]struct{}, len(s.Products))
	for _, p := range s.Products {
		if p.ID <= 0 {
			return Seed{}, fmt.Errorf("product id %d must be positive", p.ID)
		}
		if _, dup := seen[p.ID]; dup {
			return Seed{}, fmt.Errorf("duplicate product id %d", p.ID)
		}
		seen[p.ID] = struct{}{}
	}

	seen = make(map[int]struct{}, len(s.Stock))
	for _, st := range s.Stock {
		if st.ID <= 0 {
			return Seed{}, fmt.Errorf("stock id %d must be positive", st.ID)
		}
		if st.Amount < 0 {
			return Seed{}, fmt.Errorf("stock %d has negative amount", st.ID)
		}
		if _, dup := seen[st.ID]; dup {
			return Seed{}, fmt.Errorf("duplicate stock id %d", st.ID)
		}
		seen[st.ID] = struct{}{}
	}
	return s, nil
}

// Catalog is a concurrency-safe in-memory stock and product store.
type Catalog struct {
	mu       sync.RWMutex
	products map[int]domain.Product
	stock    map[int]int
}

// NewCatalog builds a catalog from seed.
func NewCatalog(seed Seed) *Catalog {
	c := &Catalog{
		products: make(map[int]domain.Product, len(seed.Products)),
		stock:    make(map[int]int, len(seed.Stock)),
	}
	for _, p := range seed.Products {
		p.Amount = 0
		c.products[p.ID] = p
	}
	for _, s := range seed.Stock {
		c.stock[s.ID] = s.Amount
	}
	return c
}

// Stock returns the stock record for id.
func (c *Catalog) Stock(id int) (domain.Stock, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	amount, ok := c.stock[id]
	return domain.Stock{ID: id, Amount: amount}, ok
}

// AllStock returns every stock record ordered by id.
func (c *Catalog) AllStock() []domain.Stock {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Stock, 0, len(c.stock))
	for id, amount := range c.stock {
		out = append(out, domain.Stock{ID: id, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Product returns the catalog record for id.
func (c *Catalog) Product(id int) (domain.Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[id]
	return p, ok
}

// Products returns every catalog record ordered by id.
func (c *Catalog) Products() []domain.Product {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Product, 0, len(c.products))
	for _, p := range c.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetStock creates or replaces the stock record for id.
func (c *Catalog) SetStock(id, amount int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stock[id] = amount
}

// RemoveProduct drops the catalog record for id, leaving its stock intact.
func (c *Catalog) RemoveProduct(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.products, id)
}
