// Package fixedpoint implements the exact decimal arithmetic used by round
// reward computations.
//
// Amounts are int64 values in the smallest currency unit. Multipliers are
// decimals with a finite number of fractional digits, stored as an integer
// coefficient and a power-of-ten scale. Products are computed exactly and
// floored only once, at the very end.
package fixedpoint

import (
	"math/big"
	"strings"

	"roundledger/internal/ledgererrors"
)

// SignificantDigits is the precision amounts are rounded to before an
// override factor is applied.
const SignificantDigits = 15

// Decimal is a non-negative fixed-point number equal to coef / 10^scale.
type Decimal struct {
	coef  *big.Int
	scale uint32
}

// One is the multiplicative identity.
var One = Decimal{coef: big.NewInt(1)}

// Zero is the additive identity.
var Zero = Decimal{coef: big.NewInt(0)}

// ParseDecimal parses strings like "2", "0.5" or "10000000.25".
// Signs, exponents and empty fractional parts are rejected.
func ParseDecimal(s string) (Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Decimal{}, ledgererrors.Validationf("empty decimal")
	}
	intPart, fracPart, hasDot := strings.Cut(s, ".")
	if intPart == "" || (hasDot && fracPart == "") {
		return Decimal{}, ledgererrors.Validationf("malformed decimal %q", s)
	}
	digits := intPart + fracPart
	for _, r := range digits {
		if r < '0' || r > '9' {
			return Decimal{}, ledgererrors.Validationf("malformed decimal %q", s)
		}
	}
	coef, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return Decimal{}, ledgererrors.Validationf("malformed decimal %q", s)
	}
	return Decimal{coef: coef, scale: uint32(len(fracPart))}, nil
}

// MustParseDecimal is like ParseDecimal but panics on error.
func MustParseDecimal(s string) Decimal {
	d, err := ParseDecimal(s)
	if err != nil {
		panic(err)
	}
	return d
}

// IsZero reports whether d equals zero.
func (d Decimal) IsZero() bool {
	return d.coef == nil || d.coef.Sign() == 0
}

// String formats d without trailing exponent notation.
func (d Decimal) String() string {
	if d.coef == nil {
		return "0"
	}
	s := d.coef.String()
	if d.scale == 0 {
		return s
	}
	if pad := int(d.scale) + 1 - len(s); pad > 0 {
		s = strings.Repeat("0", pad) + s
	}
	cut := len(s) - int(d.scale)
	return s[:cut] + "." + s[cut:]
}

func (d Decimal) coefficient() *big.Int {
	if d.coef == nil {
		return new(big.Int)
	}
	return d.coef
}

func pow10(n uint32) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// FloorDiv returns floor(a / b) for b > 0. big.Int.Div is Euclidean
// division, which coincides with flooring for a positive divisor.
func FloorDiv(a, b *big.Int) *big.Int {
	return new(big.Int).Div(a, b)
}

// RoundSignificant rounds a non-negative v to the given number of
// significant decimal digits, ties rounding up.
func RoundSignificant(v int64, digits int) int64 {
	if v < 0 || digits <= 0 {
		return v
	}
	n := 0
	for x := v; x > 0; x /= 10 {
		n++
	}
	if n <= digits {
		return v
	}
	unit := int64(1)
	for i := 0; i < n-digits; i++ {
		unit *= 10
	}
	q, r := v/unit, v%unit
	if 2*r >= unit {
		q++
	}
	return q * unit
}

// MulAddFloor computes floor(sig15(v) * factor + bonus) exactly.
func MulAddFloor(v int64, factor, bonus Decimal) (int64, error) {
	if v < 0 {
		return 0, ledgererrors.Validationf("negative amount %d", v)
	}
	base := big.NewInt(RoundSignificant(v, SignificantDigits))

	// Bring both terms to the common scale factor.scale + bonus.scale.
	num := new(big.Int).Mul(base, factor.coefficient())
	num.Mul(num, pow10(bonus.scale))
	bonusTerm := new(big.Int).Mul(bonus.coefficient(), pow10(factor.scale))
	num.Add(num, bonusTerm)

	res := FloorDiv(num, pow10(factor.scale+bonus.scale))
	if !res.IsInt64() {
		return 0, ledgererrors.Validationf("amount %d scaled by %s overflows", v, factor)
	}
	return res.Int64(), nil
}

// MulFloor computes floor(sig15(v) * factor).
func MulFloor(v int64, factor Decimal) (int64, error) {
	return MulAddFloor(v, factor, Zero)
}
