// Package decimalx implements the runtime's fixed-point Decimal type: a
// signed value with 10^-18 precision, backed by an arbitrary-precision
// integer and bounded to the 128-bit signed range. Every arithmetic
// operation is checked; range violations return an error rather than
// wrapping, mirroring the fee reserve's own "overflow is a hard fault" rule.
package decimalx

import (
	"fmt"
	"math/big"
	"strings"
)

// Scale is the number of fractional decimal digits a Decimal carries.
const Scale = 18

var (
	scaleFactor = newPow10(Scale)

	// maxValue / minValue bound the underlying integer to what a signed
	// 128-bit integer could hold. math/big.Int is used for the arithmetic
	// itself (as core/ledger.go's MintBig already does) but every result
	// is range-checked against these bounds so overflow behaves like a
	// fault on a fixed-width register, never a silent wrap.
	maxValue = func() *big.Int {
		v := new(big.Int).Lsh(big.NewInt(1), 127)
		return v.Sub(v, big.NewInt(1))
	}()
	minValue = new(big.Int).Neg(func() *big.Int {
		v := new(big.Int).Lsh(big.NewInt(1), 127)
		return v
	}())
)

func newPow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// Decimal is an immutable fixed-point value: the underlying integer
// represents the value multiplied by 10^Scale.
type Decimal struct {
	v *big.Int
}

// Zero is the additive identity.
var Zero = Decimal{v: big.NewInt(0)}

// ErrOverflow is returned whenever an operation's result would not fit in
// the signed 128-bit range backing Decimal.
var ErrOverflow = fmt.Errorf("decimal: overflow")

// FromInt64 builds a Decimal representing the given whole number.
func FromInt64(n int64) Decimal {
	return Decimal{v: new(big.Int).Mul(big.NewInt(n), scaleFactor)}
}

// FromRaw builds a Decimal from an already-scaled integer (i.e. the
// underlying 10^-18 unit count), the representation used on the wire.
func FromRaw(raw *big.Int) (Decimal, error) {
	d := Decimal{v: new(big.Int).Set(raw)}
	if !d.inRange() {
		return Decimal{}, ErrOverflow
	}
	return d, nil
}

// Parse reads a base-10 string (optionally with a fractional part and a
// leading sign) into a Decimal, the form the runtime config file and CLI
// arguments use for XRD-denominated values.
func Parse(s string) (Decimal, error) {
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	} else if strings.HasPrefix(s, "+") {
		s = s[1:]
	}
	intPart, fracPart, hasFrac := strings.Cut(s, ".")
	if intPart == "" {
		intPart = "0"
	}
	if len(fracPart) > Scale {
		return Decimal{}, fmt.Errorf("decimal: %q has more than %d fractional digits", s, Scale)
	}
	for len(fracPart) < Scale {
		fracPart += "0"
	}
	digits := intPart + fracPart
	v, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return Decimal{}, fmt.Errorf("decimal: invalid numeral %q", s)
	}
	if neg {
		v.Neg(v)
	}
	_ = hasFrac
	return FromRaw(v)
}

func (d Decimal) inRange() bool {
	return d.v.Cmp(minValue) >= 0 && d.v.Cmp(maxValue) <= 0
}

// Raw returns the underlying scaled integer (the wire representation).
func (d Decimal) Raw() *big.Int { return new(big.Int).Set(d.v) }

// IsZero reports whether the value is exactly zero.
func (d Decimal) IsZero() bool { return d.v.Sign() == 0 }

// Sign returns -1, 0 or 1.
func (d Decimal) Sign() int { return d.v.Sign() }

// Add returns d+other, or ErrOverflow if the sum exceeds the 128-bit range.
func (d Decimal) Add(other Decimal) (Decimal, error) {
	out := Decimal{v: new(big.Int).Add(d.v, other.v)}
	if !out.inRange() {
		return Decimal{}, ErrOverflow
	}
	return out, nil
}

// Sub returns d-other, or ErrOverflow on range violation.
func (d Decimal) Sub(other Decimal) (Decimal, error) {
	out := Decimal{v: new(big.Int).Sub(d.v, other.v)}
	if !out.inRange() {
		return Decimal{}, ErrOverflow
	}
	return out, nil
}

// Mul returns d*other, rounding the extra scale factor down (truncation),
// or ErrOverflow on range violation.
func (d Decimal) Mul(other Decimal) (Decimal, error) {
	prod := new(big.Int).Mul(d.v, other.v)
	prod.Quo(prod, scaleFactor)
	out := Decimal{v: prod}
	if !out.inRange() {
		return Decimal{}, ErrOverflow
	}
	return out, nil
}

// MulUint64 multiplies the decimal by a plain unsigned multiplier, the
// common case when scaling a per-unit price by a unit count.
func (d Decimal) MulUint64(n uint64) (Decimal, error) {
	out := Decimal{v: new(big.Int).Mul(d.v, new(big.Int).SetUint64(n))}
	if !out.inRange() {
		return Decimal{}, ErrOverflow
	}
	return out, nil
}

// Div returns d/other truncated toward zero. Division by zero is reported
// as ErrOverflow's sibling, a plain error, since it can never be a range
// violation.
func (d Decimal) Div(other Decimal) (Decimal, error) {
	if other.IsZero() {
		return Decimal{}, fmt.Errorf("decimal: division by zero")
	}
	num := new(big.Int).Mul(d.v, scaleFactor)
	num.Quo(num, other.v)
	out := Decimal{v: num}
	if !out.inRange() {
		return Decimal{}, ErrOverflow
	}
	return out, nil
}

// Cmp compares two decimals: -1, 0, 1.
func (d Decimal) Cmp(other Decimal) int { return d.v.Cmp(other.v) }

// LessThan reports whether d < other.
func (d Decimal) LessThan(other Decimal) bool { return d.Cmp(other) < 0 }

// Min returns the smaller of a and b.
func Min(a, b Decimal) Decimal {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// String renders the value in base-10 with up to Scale fractional digits,
// trimming trailing zeros (but keeping at least "0").
func (d Decimal) String() string {
	neg := d.v.Sign() < 0
	abs := new(big.Int).Abs(d.v)
	s := abs.String()
	for len(s) <= Scale {
		s = "0" + s
	}
	intPart := s[:len(s)-Scale]
	fracPart := s[len(s)-Scale:]
	end := len(fracPart)
	for end > 0 && fracPart[end-1] == '0' {
		end--
	}
	out := intPart
	if end > 0 {
		out += "." + fracPart[:end]
	}
	if neg && out != "0" {
		out = "-" + out
	}
	return out
}
