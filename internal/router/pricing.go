package router

import "github.com/shopspring/decimal"

var perMillion = decimal.NewFromInt(1_000_000)

// CalculateCost returns the USD cost of a call priced per million tokens.
// The result is invalid whenever any count or price is missing.
func CalculateCost(inputTokens, outputTokens *int, inputPrice, outputPrice decimal.NullDecimal) decimal.NullDecimal {
	if inputTokens == nil || outputTokens == nil || !inputPrice.Valid || !outputPrice.Valid {
		return decimal.NullDecimal{}
	}
	in := decimal.NewFromInt(int64(*inputTokens)).Div(perMillion).Mul(inputPrice.Decimal)
	out := decimal.NewFromInt(int64(*outputTokens)).Div(perMillion).Mul(outputPrice.Decimal)
	return decimal.NewNullDecimal(in.Add(out))
}
