package model

import "math"

// matchedLength returns the element count of a pairwise operation between
// vectors of length n and m, cycling the shorter over the longer when the
// longer length is a whole multiple of the shorter. Incompatible lengths
// (including zero) return -1.
func matchedLength(n, m int) int {
	switch {
	case n == 0 || m == 0:
		return -1
	case n == m:
		return n
	case n > m && n%m == 0:
		return n
	case m > n && m%n == 0:
		return m
	}
	return -1
}

func (v Vector) binary(other Vector, op func(x, y float64) float64) Vector {
	if !v.IsNumeric() || !other.IsNumeric() {
		return Null
	}
	n := matchedLength(len(v.nums), len(other.nums))
	if n < 0 {
		return Null
	}
	nums := make([]float64, n)
	for i := 0; i < n; i++ {
		nums[i] = op(v.nums[i%len(v.nums)], other.nums[i%len(other.nums)])
	}
	return Vector{nums: nums}
}

// Add returns the element-wise sum.
func (v Vector) Add(other Vector) Vector {
	return v.binary(other, func(x, y float64) float64 { return x + y })
}

// Sub returns the element-wise difference.
func (v Vector) Sub(other Vector) Vector {
	return v.binary(other, func(x, y float64) float64 { return x - y })
}

// Mul returns the element-wise product.
func (v Vector) Mul(other Vector) Vector {
	return v.binary(other, func(x, y float64) float64 { return x * y })
}

// TrueDiv returns the element-wise quotient with IEEE division-by-zero
// behaviour.
func (v Vector) TrueDiv(other Vector) Vector {
	return v.binary(other, func(x, y float64) float64 { return x / y })
}

// FloorDiv returns the element-wise flooring quotient, rounded towards
// negative infinity as with Python's // operator.
func (v Vector) FloorDiv(other Vector) Vector {
	return v.binary(other, func(x, y float64) float64 { return math.Floor(x / y) })
}

// Mod returns the element-wise flooring remainder.
func (v Vector) Mod(other Vector) Vector {
	return v.binary(other, floorMod)
}

func floorMod(x, y float64) float64 {
	return x - math.Floor(x/y)*y
}

// Pow returns the element-wise power.
func (v Vector) Pow(other Vector) Vector {
	return v.binary(other, math.Pow)
}

// MulAdd returns v*a + b in one pass, with the usual cycling rule applied
// across all three operands. The fused form preserves numeric packing and
// is emitted by the peephole optimiser.
func (v Vector) MulAdd(a, b Vector) Vector {
	if !v.IsNumeric() || !a.IsNumeric() || !b.IsNumeric() {
		return Null
	}
	n := matchedLength(len(v.nums), len(a.nums))
	if n < 0 {
		return Null
	}
	n = matchedLength(n, len(b.nums))
	if n < 0 {
		return Null
	}
	nums := make([]float64, n)
	for i := 0; i < n; i++ {
		nums[i] = v.nums[i%len(v.nums)]*a.nums[i%len(a.nums)] + b.nums[i%len(b.nums)]
	}
	return Vector{nums: nums}
}

func (v Vector) unary(op func(x float64) float64) Vector {
	if !v.IsNumeric() || v.IsNull() {
		return Null
	}
	nums := make([]float64, len(v.nums))
	for i, x := range v.nums {
		nums[i] = op(x)
	}
	return Vector{nums: nums}
}

// Neg returns the element-wise negation; non-numeric vectors yield null.
func (v Vector) Neg() Vector {
	return v.unary(func(x float64) float64 { return -x })
}

// Pos returns the vector unchanged if numeric, null otherwise.
func (v Vector) Pos() Vector {
	if !v.IsNumeric() || v.IsNull() {
		return Null
	}
	return v
}

// Ceil returns the element-wise ceiling.
func (v Vector) Ceil() Vector {
	return v.unary(math.Ceil)
}

// Floor returns the element-wise floor.
func (v Vector) Floor() Vector {
	return v.unary(math.Floor)
}

// Fract returns the element-wise fractional part, x - floor(x).
func (v Vector) Fract() Vector {
	return v.unary(func(x float64) float64 { return x - math.Floor(x) })
}

// Not returns the boolean negation of Truthy.
func (v Vector) Not() Vector {
	return NewBool(!v.Truthy())
}

// Xor implements the logical exclusive-or: the truthy operand when exactly
// one is truthy, False when both are, and the right operand when neither is.
func (v Vector) Xor(other Vector) Vector {
	if !v.Truthy() {
		return other
	}
	if !other.Truthy() {
		return v
	}
	return False
}
