package math

import (
	"math/big"
)

// BasisPoints is the denominator for fractions expressed in bps
const BasisPoints = 10000

var bpsDenominator = big.NewInt(BasisPoints)

// Clone returns a copy of x, treating nil as zero
func Clone(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(x)
}

// MulDiv computes x * y / d rounding towards zero
func MulDiv(x, y, d *big.Int) *big.Int {
	if d.Sign() == 0 {
		return new(big.Int)
	}
	n := new(big.Int).Mul(x, y)
	return n.Quo(n, d)
}

// BpsOf returns amount * bps / 10000
func BpsOf(amount *big.Int, bps uint64) *big.Int {
	return MulDiv(amount, new(big.Int).SetUint64(bps), bpsDenominator)
}

// LessBps returns amount reduced by bps, i.e. amount * (10000 - bps) / 10000
func LessBps(amount *big.Int, bps uint64) *big.Int {
	if bps >= BasisPoints {
		return new(big.Int)
	}
	return MulDiv(amount, new(big.Int).SetUint64(BasisPoints-bps), bpsDenominator)
}

// DeviationBps returns |a - b| / b in basis points. A zero reference yields
// zero when a is also zero and the full scale otherwise.
func DeviationBps(a, b *big.Int) uint64 {
	if b.Sign() == 0 {
		if a.Sign() == 0 {
			return 0
		}
		return BasisPoints
	}
	diff := new(big.Int).Sub(a, b)
	diff.Abs(diff)
	dev := MulDiv(diff, bpsDenominator, new(big.Int).Abs(b))
	if !dev.IsUint64() {
		return ^uint64(0)
	}
	return dev.Uint64()
}
