package domain

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCart() Cart {
	return Cart{
		{ID: 1, Title: "Tênis de Caminhada Leve Confortável", Price: 179.9, Image: "a.jpg", Amount: 2},
		{ID: 3, Title: "Tênis Adidas Duramo Lite 2.0", Price: 219.9, Image: "c.jpg", Amount: 1},
	}
}

func TestProduct_Subtotal(t *testing.T) {
	assert.InDelta(t, 359.8, Product{Price: 179.9, Amount: 2}.Subtotal(), 1e-9)
	assert.Zero(t, Product{Price: 179.9}.Subtotal())
}

func TestCart_FindIndex(t *testing.T) {
	c := sampleCart()
	assert.Equal(t, 0, c.FindIndex(1))
	assert.Equal(t, 1, c.FindIndex(3))
	assert.Equal(t, -1, c.FindIndex(99))
	assert.Equal(t, -1, Cart(nil).FindIndex(1))
}

func TestCart_Clone(t *testing.T) {
	c := sampleCart()
	clone := c.Clone()
	clone[0].Amount = 10

	assert.Equal(t, 2, c[0].Amount)
	assert.NotNil(t, Cart(nil).Clone())
	assert.Empty(t, Cart(nil).Clone())
}

func TestCart_ItemCountAndTotal(t *testing.T) {
	c := sampleCart()
	assert.Equal(t, 3, c.ItemCount())
	assert.Equal(t, 579.7, c.Total())

	assert.Zero(t, Cart{}.ItemCount())
	assert.Zero(t, Cart{}.Total())
}

func TestCart_Validate(t *testing.T) {
	assert.NoError(t, sampleCart().Validate())
	assert.NoError(t, Cart{}.Validate())

	dup := Cart{{ID: 1, Amount: 1}, {ID: 1, Amount: 2}}
	assert.EqualError(t, dup.Validate(), "duplicate product 1")

	zero := Cart{{ID: 2, Amount: 0}}
	assert.EqualError(t, zero.Validate(), "product 2 has amount 0")
}

func TestEncodeCart(t *testing.T) {
	s, err := EncodeCart(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", s)

	s, err = EncodeCart(Cart{{ID: 1, Title: "T", Price: 9.5, Image: "i", Amount: 2}})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":1,"title":"T","price":9.5,"image":"i","amount":2}]`, s)
}

func TestDecodeCart(t *testing.T) {
	want := sampleCart()
	s, err := EncodeCart(want)
	require.NoError(t, err)

	got, err := DecodeCart(s)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("decoded cart mismatch (-want +got):\n%s", diff)
	}

	empty, err := DecodeCart("[]")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	null, err := DecodeCart("null")
	require.NoError(t, err)
	assert.NotNil(t, null)
}

func TestDecodeCart_Invalid(t *testing.T) {
	for _, s := range []string{
		"{not json",
		`{"id":1}`,
		`[{"id":1,"amount":1},{"id":1,"amount":1}]`,
		`[{"id":4,"amount":-1}]`,
	} {
		_, err := DecodeCart(s)
		assert.True(t, errors.Is(err, ErrInvalidSnapshot), s)
	}
}
