package service

import (
	"fulfillment-service/internal/models"

	"github.com/shopspring/decimal"
)

// DefaultPriceTolerance: допустимое расхождение суммы клиента и сервера.
var DefaultPriceTolerance = decimal.New(1, -2)

// lineTotal считает стоимость строки по серверному снимку: штучный товар: цена * количество,
// весовой: цена за кг * запрошенный вес.
func lineTotal(snap *LineSnapshot, line OrderLine) decimal.Decimal {
	if snap.Kind == models.ItemKindPerishable {
		return snap.UnitPrice.Mul(line.WeightKg).Round(2)
	}
	return snap.UnitPrice.Mul(decimal.NewFromInt32(line.Quantity)).Round(2)
}

func checkTotal(client, server, tolerance decimal.Decimal) error {
	if client.Sub(server).Abs().GreaterThan(tolerance) {
		return &PriceMismatchError{Client: client, Server: server}
	}
	return nil
}
