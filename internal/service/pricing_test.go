package service

import (
	"errors"
	"testing"

	"fulfillment-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckTotal_Mismatch(t *testing.T) {
	err := checkTotal(kg("500.00"), kg("499.00"), DefaultPriceTolerance)
	require.ErrorIs(t, err, ErrPriceMismatch)

	var pm *PriceMismatchError
	require.True(t, errors.As(err, &pm))
	assert.True(t, pm.Client.Equal(kg("500")))
	assert.True(t, pm.Server.Equal(kg("499")))
	assert.Equal(t, "price_mismatch", Kind(err))
}

func TestCheckTotal_WithinTolerance(t *testing.T) {
	assert.NoError(t, checkTotal(kg("499.005"), kg("499.00"), DefaultPriceTolerance))
	assert.NoError(t, checkTotal(kg("498.99"), kg("499.00"), DefaultPriceTolerance))
	assert.Error(t, checkTotal(kg("498.98"), kg("499.00"), DefaultPriceTolerance))
}

func TestLineTotal(t *testing.T) {
	std := &LineSnapshot{Kind: models.ItemKindStandard, UnitPrice: kg("199.50")}
	assert.True(t, lineTotal(std, OrderLine{Quantity: 3}).Equal(kg("598.50")))

	fish := &LineSnapshot{Kind: models.ItemKindPerishable, UnitPrice: kg("650")}
	assert.True(t, lineTotal(fish, OrderLine{WeightKg: kg("1.5"), Quantity: 2}).Equal(kg("975")))
}

func TestEffectivePrice_SalePrice(t *testing.T) {
	v := models.Variant{
		Price:     kg("100"),
		SalePrice: decimal.NullDecimal{Decimal: kg("80"), Valid: true},
	}
	assert.True(t, v.EffectivePrice().Equal(kg("80")))

	// скидка выше цены игнорируется
	v.SalePrice = decimal.NullDecimal{Decimal: kg("120"), Valid: true}
	assert.True(t, v.EffectivePrice().Equal(kg("100")))

	v.SalePrice = decimal.NullDecimal{}
	assert.True(t, v.EffectivePrice().Equal(kg("100")))
}
