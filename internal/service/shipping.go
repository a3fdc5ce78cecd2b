package service

import (
	"fmt"
	"strings"

	"fulfillment-service/internal/models"

	"github.com/shopspring/decimal"
)

type ShippingQuote struct {
	Zone      models.ShippingZone     `json:"zone"`
	WeightKg  decimal.Decimal         `json:"weight_kg"`
	Fee       decimal.Decimal         `json:"fee"`
	Breakdown []models.ShippingCharge `json:"breakdown"`
}

type weightTier struct {
	upToKg decimal.Decimal
	fee    decimal.Decimal
}

type zoneTariff struct {
	label      string
	tiers      []weightTier    // по возрастанию веса
	perExtraKg decimal.Decimal // за каждый начатый кг сверх последнего порога
	perishable decimal.Decimal // фиксированная доставка скоропортящегося
}

var tariffs = map[models.ShippingZone]zoneTariff{
	models.ZoneInsideHub: {
		label: "inside hub",
		tiers: []weightTier{
			{upToKg: decimal.NewFromInt(1), fee: decimal.NewFromInt(60)},
			{upToKg: decimal.NewFromInt(2), fee: decimal.NewFromInt(80)},
			{upToKg: decimal.NewFromInt(5), fee: decimal.NewFromInt(120)},
		},
		perExtraKg: decimal.NewFromInt(20),
		perishable: decimal.NewFromInt(150),
	},
	models.ZoneOutsideHub: {
		label: "outside hub",
		tiers: []weightTier{
			{upToKg: decimal.NewFromInt(1), fee: decimal.NewFromInt(110)},
			{upToKg: decimal.NewFromInt(2), fee: decimal.NewFromInt(140)},
			{upToKg: decimal.NewFromInt(5), fee: decimal.NewFromInt(200)},
		},
		perExtraKg: decimal.NewFromInt(30),
		perishable: decimal.NewFromInt(250),
	},
}

// ParseZone принимает только одно из двух известных значений; зона никогда не выводится из адреса.
func ParseZone(s string) (models.ShippingZone, error) {
	z := models.ShippingZone(strings.TrimSpace(s))
	if _, ok := tariffs[z]; !ok {
		if z == "" {
			return "", fmt.Errorf("%w: zone is required", ErrInvalidZone)
		}
		return "", fmt.Errorf("%w: %q", ErrInvalidZone, s)
	}
	return z, nil
}

// CalculateShipping: чистая функция. Для обычных товаров тариф зависит от веса и зоны,
// для скоропортящихся: только от зоны. В смешанном заказе суммы складываются.
func CalculateShipping(zone models.ShippingZone, standardWeightKg decimal.Decimal, hasStandard, hasPerishable bool) (ShippingQuote, error) {
	t, ok := tariffs[zone]
	if !ok {
		return ShippingQuote{}, fmt.Errorf("%w: %q", ErrInvalidZone, zone)
	}

	q := ShippingQuote{
		Zone:      zone,
		WeightKg:  decimal.Zero,
		Fee:       decimal.Zero,
		Breakdown: []models.ShippingCharge{},
	}

	if hasStandard {
		w := standardWeightKg
		if w.IsNegative() {
			w = decimal.Zero
		}
		fee, label := t.standardFee(w)
		q.WeightKg = w
		q.Fee = q.Fee.Add(fee)
		q.Breakdown = append(q.Breakdown, models.ShippingCharge{
			Table:  string(models.ItemKindStandard),
			Label:  label,
			Amount: fee,
		})
	}

	if hasPerishable {
		q.Fee = q.Fee.Add(t.perishable)
		q.Breakdown = append(q.Breakdown, models.ShippingCharge{
			Table:  string(models.ItemKindPerishable),
			Label:  "Perishable delivery " + t.label + ", flat rate",
			Amount: t.perishable,
		})
	}

	return q, nil
}

func (t zoneTariff) standardFee(w decimal.Decimal) (decimal.Decimal, string) {
	for _, tier := range t.tiers {
		if w.LessThanOrEqual(tier.upToKg) {
			return tier.fee, fmt.Sprintf("Standard delivery %s, %s kg (up to %s kg)",
				t.label, w.StringFixed(3), tier.upToKg.String())
		}
	}

	last := t.tiers[len(t.tiers)-1]
	extraKg := w.Sub(last.upToKg).Ceil()
	fee := last.fee.Add(extraKg.Mul(t.perExtraKg))
	return fee, fmt.Sprintf("Standard delivery %s, %s kg (%s + %s kg x %s)",
		t.label, w.StringFixed(3), last.fee.String(), extraKg.String(), t.perExtraKg.String())
}
