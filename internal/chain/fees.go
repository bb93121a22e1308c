package chain

import (
	"github.com/shopspring/decimal"
	"github.com/solana-agent/backend/internal/models"
)

var (
	privateFeeRate    = decimal.RequireFromString("0.0035")
	privateFlatFeeSOL = decimal.RequireFromString("0.006")

	// DefaultSOLPriceUSD is used to express the flat SOL fee in USDC when no
	// live price is supplied.
	DefaultSOLPriceUSD = decimal.NewFromInt(200)
)

// PrivateFee is the shielding service's charge for one private transfer.
type PrivateFee struct {
	Total int64 // minor units of the transfer token
	Net   int64 // what the payee receives, never negative
}

// EstimatePrivateFee applies 0.35% of the amount plus a 0.006 SOL flat fee
// (converted at solPriceUSD for USDC transfers).
func EstimatePrivateFee(amount int64, tok models.Token, solPriceUSD decimal.Decimal) PrivateFee {
	value := ToDecimal(amount, tok)
	fee := value.Mul(privateFeeRate)

	switch tok {
	case models.TokenSOL:
		fee = fee.Add(privateFlatFeeSOL)
	case models.TokenUSDC:
		if solPriceUSD.Sign() <= 0 {
			solPriceUSD = DefaultSOLPriceUSD
		}
		fee = fee.Add(privateFlatFeeSOL.Mul(solPriceUSD))
	}

	total := FromDecimal(fee, tok)
	net := amount - total
	if net < 0 {
		net = 0
	}
	return PrivateFee{Total: total, Net: net}
}
