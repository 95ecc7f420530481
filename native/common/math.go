package common

import (
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

// PrecisionDecimals is the number of decimals carried by fixed-point values.
const PrecisionDecimals = 18

var (
	// Precision is the fixed-point unit; 1.0 is represented as 1e18.
	Precision = new(big.Int).Exp(big.NewInt(10), big.NewInt(PrecisionDecimals), nil)
	// MaxSentinel is returned in place of an unbounded ratio.
	MaxSentinel = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

// One returns a fresh copy of Precision.
func One() *big.Int { return new(big.Int).Set(Precision) }

// Units converts a whole number of units into its fixed-point form.
func Units(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), Precision)
}

// Frac returns num/den expressed in fixed point.
func Frac(num, den int64) *big.Int {
	out := new(big.Int).Mul(big.NewInt(num), Precision)
	return out.Quo(out, big.NewInt(den))
}

// Copy returns a defensive copy, mapping nil to zero.
func Copy(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

// MulDiv computes a*b/c truncating toward zero. A zero divisor yields zero.
func MulDiv(a, b, c *big.Int) *big.Int {
	if a == nil || b == nil || c == nil || c.Sign() == 0 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, c)
}

// MulDivUp computes a*b/c rounding away from zero for positive operands.
func MulDivUp(a, b, c *big.Int) *big.Int {
	if a == nil || b == nil || c == nil || c.Sign() == 0 {
		return new(big.Int)
	}
	num := new(big.Int).Mul(a, b)
	q, r := new(big.Int).QuoRem(num, c, new(big.Int))
	if r.Sign() != 0 && num.Sign() == c.Sign() {
		q.Add(q, big.NewInt(1))
	}
	return q
}

// MulPrec multiplies two fixed-point values.
func MulPrec(a, b *big.Int) *big.Int { return MulDiv(a, b, Precision) }

// DivPrec divides two fixed-point values; a zero divisor yields zero.
func DivPrec(a, b *big.Int) *big.Int { return MulDiv(a, Precision, b) }

// Min returns the smaller of a and b.
func Min(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// Max returns the larger of a and b.
func Max(a, b *big.Int) *big.Int {
	if a.Cmp(b) >= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// Clamp bounds v to [lo, hi]. A nil bound is ignored.
func Clamp(v, lo, hi *big.Int) *big.Int {
	out := Copy(v)
	if lo != nil && out.Cmp(lo) < 0 {
		out.Set(lo)
	}
	if hi != nil && hi.Sign() > 0 && out.Cmp(hi) > 0 {
		out.Set(hi)
	}
	return out
}

// NonNegative clamps negative values to zero.
func NonNegative(v *big.Int) *big.Int {
	if v == nil || v.Sign() < 0 {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

// Abs returns |v|.
func Abs(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Abs(v)
}

// IsSentinel reports whether v is the unbounded sentinel.
func IsSentinel(v *big.Int) bool {
	return v != nil && v.Cmp(MaxSentinel) == 0
}

// FormatPrec renders a fixed-point value as a decimal string, "max" for the
// sentinel.
func FormatPrec(v *big.Int) string {
	if v == nil {
		return "0"
	}
	if IsSentinel(v) {
		return "max"
	}
	return decimal.NewFromBigInt(v, -PrecisionDecimals).String()
}

// ParsePrec parses a decimal string such as "1.5" into fixed point.
func ParsePrec(value string) (*big.Int, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, err
	}
	return d.Shift(PrecisionDecimals).Truncate(0).BigInt(), nil
}

// Float approximates a fixed-point value for gauges. The sentinel maps to
// +Inf.
func Float(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	if IsSentinel(v) {
		return math.Inf(1)
	}
	return decimal.NewFromBigInt(v, -PrecisionDecimals).InexactFloat64()
}
