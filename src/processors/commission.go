package processors

import "github.com/shopspring/decimal"

// AllocateCommission returns the share of a trade's commission that belongs to
// a lot: |commission| * |lotQty| / |tradeQty|. Remainders are not
// redistributed, so the shares of one trade may differ from the total in the
// last digits. A zero trade quantity allocates nothing.
func AllocateCommission(tradeCommission, lotQty, tradeQty decimal.Decimal) decimal.Decimal {
	if tradeQty.IsZero() {
		return decimal.Zero
	}
	return tradeCommission.Abs().Mul(lotQty.Abs()).Div(tradeQty.Abs())
}
