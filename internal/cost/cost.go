// Package cost prices language model usage in US dollars.
package cost

import "github.com/shopspring/decimal"

var perMillion = decimal.NewFromInt(1_000_000)

type Usage struct {
	InputTokens  int
	OutputTokens int
	// Reported is a provider-computed cost. When set it takes precedence over
	// the token prices.
	Reported *decimal.Decimal
}

func (u Usage) Add(o Usage) Usage {
	sum := Usage{
		InputTokens:  u.InputTokens + o.InputTokens,
		OutputTokens: u.OutputTokens + o.OutputTokens,
	}
	switch {
	case u.Reported != nil && o.Reported != nil:
		r := u.Reported.Add(*o.Reported)
		sum.Reported = &r
	case u.Reported != nil:
		r := *u.Reported
		sum.Reported = &r
	case o.Reported != nil:
		r := *o.Reported
		sum.Reported = &r
	}
	return sum
}

// Pricing is expressed per million tokens, the way providers publish it.
type Pricing struct {
	InputPerMToken  decimal.Decimal
	OutputPerMToken decimal.Decimal
}

func NewPricing(inputPerMToken, outputPerMToken float64) Pricing {
	return Pricing{
		InputPerMToken:  decimal.NewFromFloat(inputPerMToken),
		OutputPerMToken: decimal.NewFromFloat(outputPerMToken),
	}
}

func (p Pricing) Cost(u Usage) decimal.Decimal {
	if u.Reported != nil {
		return *u.Reported
	}
	in := p.InputPerMToken.Mul(decimal.NewFromInt(int64(u.InputTokens)))
	out := p.OutputPerMToken.Mul(decimal.NewFromInt(int64(u.OutputTokens)))
	return in.Add(out).Div(perMillion)
}

// Format renders an amount as "$0.000123".
func Format(d decimal.Decimal) string {
	return "$" + d.StringFixed(6)
}
