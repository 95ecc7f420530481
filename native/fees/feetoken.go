package fees

import (
	"math/big"

	"pegcore/native/common"
)

// Payment sources.
const (
	SourceAC       = "ac"
	SourceFeeToken = "feeToken"
)

// Fallback reasons recorded when fee-token payment is not used.
const (
	FallbackNone      = "none"
	FallbackDisabled  = "disabled"
	FallbackPrice     = "price"
	FallbackBalance   = "balance"
	FallbackAllowance = "allowance"
)

// FeeTokenInput describes the payer's fee-token position at execution time.
type FeeTokenInput struct {
	Enabled    bool
	Price      *big.Int
	PriceValid bool
	Pct        *big.Int
	Balance    *big.Int
	Allowance  *big.Int
}

// Payment is the resolved fee charge. Exactly one of the AC or fee-token
// pairs is non-zero.
type Payment struct {
	QACFee          *big.Int
	QACMarkup       *big.Int
	QFeeToken       *big.Int
	QFeeTokenMarkup *big.Int
	Source          string
	FallbackReason  string
}

// ACTotal returns the collateral charged for fees and markup.
func (p Payment) ACTotal() *big.Int {
	return new(big.Int).Add(common.Copy(p.QACFee), common.Copy(p.QACMarkup))
}

// FeeTokenTotal returns the fee tokens charged for fees and markup.
func (p Payment) FeeTokenTotal() *big.Int {
	return new(big.Int).Add(common.Copy(p.QFeeToken), common.Copy(p.QFeeTokenMarkup))
}

// ConvertToFeeToken converts a collateral amount into fee tokens applying the
// discount pct. price is the value of one fee token in collateral.
func ConvertToFeeToken(qAC, pct, price *big.Int) *big.Int {
	return common.DivPrec(common.MulPrec(qAC, pct), price)
}

// ResolvePayment charges fees in the fee token when the payer can cover them
// and otherwise falls back to collateral, recording why.
func ResolvePayment(due ApplyResult, in FeeTokenInput) Payment {
	fallback := func(reason string) Payment {
		return Payment{
			QACFee:          common.Copy(due.Fee),
			QACMarkup:       common.Copy(due.Markup),
			QFeeToken:       big.NewInt(0),
			QFeeTokenMarkup: big.NewInt(0),
			Source:          SourceAC,
			FallbackReason:  reason,
		}
	}
	if !in.Enabled || in.Pct == nil || in.Pct.Sign() <= 0 {
		return fallback(FallbackDisabled)
	}
	if !in.PriceValid || in.Price == nil || in.Price.Sign() <= 0 {
		return fallback(FallbackPrice)
	}
	fee := ConvertToFeeToken(common.Copy(due.Fee), in.Pct, in.Price)
	markup := ConvertToFeeToken(common.Copy(due.Markup), in.Pct, in.Price)
	total := new(big.Int).Add(fee, markup)
	if common.Copy(in.Balance).Cmp(total) < 0 {
		return fallback(FallbackBalance)
	}
	if common.Copy(in.Allowance).Cmp(total) < 0 {
		return fallback(FallbackAllowance)
	}
	return Payment{
		QACFee:          big.NewInt(0),
		QACMarkup:       big.NewInt(0),
		QFeeToken:       fee,
		QFeeTokenMarkup: markup,
		Source:          SourceFeeToken,
		FallbackReason:  FallbackNone,
	}
}
