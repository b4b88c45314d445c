package simulator

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/rocketcart/internal/domain"
)

func TestDefaultSeed(t *testing.T) {
	seed, err := DefaultSeed()
	require.NoError(t, err)
	require.Len(t, seed.Products, 6)

	want := map[int]int{1: 3, 2: 5, 3: 2, 4: 1, 5: 5, 6: 10}
	got := make(map[int]int)
	for _, s := range seed.Stock {
		got[s.ID] = s.Amount
	}
	assert.Equal(t, want, got)

	for _, p := range seed.Products {
		assert.NotEmpty(t, p.Title)
		assert.Positive(t, p.Price)
		assert.NotEmpty(t, p.Image)
	}
}

func TestParseSeed_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"malformed", `{"products":[`},
		{"zero product id", `{"products":[{"id":0}]}`},
		{"duplicate product", `{"products":[{"id":1},{"id":1}]}`},
		{"negative stock", `{"stock":[{"id":1,"amount":-1}]}`},
		{"duplicate stock", `{"stock":[{"id":1,"amount":1},{"id":1,"amount":2}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSeed([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"products":[{"id":7,"title":"Chinelo","price":29.9}],"stock":[{"id":7,"amount":4}]}`), 0o600))

	seed, err := LoadSeed(path)
	require.NoError(t, err)
	assert.Equal(t, []domain.Stock{{ID: 7, Amount: 4}}, seed.Stock)

	_, err = LoadSeed(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestCatalog(t *testing.T) {
	seed, err := DefaultSeed()
	require.NoError(t, err)
	c := NewCatalog(seed)

	s, ok := c.Stock(4)
	require.True(t, ok)
	assert.Equal(t, domain.Stock{ID: 4, Amount: 1}, s)

	_, ok = c.Stock(99)
	assert.False(t, ok)

	p, ok := c.Product(3)
	require.True(t, ok)
	assert.Equal(t, "Tênis Adidas Duramo Lite 2.0", p.Title)
	assert.Zero(t, p.Amount)

	products := c.Products()
	require.Len(t, products, 6)
	for i, p := range products {
		assert.Equal(t, i+1, p.ID)
	}

	c.SetStock(4, 0)
	c.SetStock(42, 8)
	s, _ = c.Stock(4)
	assert.Zero(t, s.Amount)
	all := c.AllStock()
	require.Len(t, all, 7)
	assert.Equal(t, domain.Stock{ID: 42, Amount: 8}, all[6])

	c.RemoveProduct(3)
	_, ok = c.Product(3)
	assert.False(t, ok)
	_, ok = c.Stock(3)
	assert.True(t, ok)
}

func TestCatalog_ConcurrentAccess(t *testing.T) {
	c := NewCatalog(Seed{})
	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(2)
		go func(id int) {
			defer wg.Done()
			c.SetStock(id, id)
		}(i)
		go func() {
			defer wg.Done()
			_ = c.AllStock()
		}()
	}
	wg.Wait()
	assert.Len(t, c.AllStock(), 20)
}
