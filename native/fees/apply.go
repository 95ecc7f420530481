package fees

import (
	"math/big"

	"pegcore/native/common"
)

// ApplyInput captures the context required to evaluate the fee obligation for
// an operation. Rates are fixed-point fractions of QAC.
type ApplyInput struct {
	QAC          *big.Int
	Rate         *big.Int
	VendorMarkup *big.Int
}

// ApplyResult summarises the protocol fee and vendor markup owed in
// collateral for the supplied notional.
type ApplyResult struct {
	Fee    *big.Int
	Markup *big.Int
}

// Total returns fee plus markup.
func (r ApplyResult) Total() *big.Int {
	return new(big.Int).Add(common.Copy(r.Fee), common.Copy(r.Markup))
}

// Apply evaluates the fee rate and vendor markup against the notional.
// Negative or missing inputs contribute nothing.
func Apply(input ApplyInput) ApplyResult {
	result := ApplyResult{Fee: big.NewInt(0), Markup: big.NewInt(0)}
	if input.QAC == nil || input.QAC.Sign() <= 0 {
		return result
	}
	if input.Rate != nil && input.Rate.Sign() > 0 {
		result.Fee = common.MulPrec(input.QAC, input.Rate)
	}
	if input.VendorMarkup != nil && input.VendorMarkup.Sign() > 0 {
		result.Markup = common.MulPrec(input.QAC, input.VendorMarkup)
	}
	return result
}
