// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package fixedpoint implements Q48.16 fixed-point arithmetic: 48 integer
// bits, 16 fractional bits, packed into a signed int64. It exists so heat,
// temperature, decay, and variance computations stay bit-reproducible
// across architectures instead of drifting with float64 rounding.
package fixedpoint

import "math/bits"

// Q is a Q48.16 fixed-point value.
type Q int64

const (
	fracBits = 16
	// One is the fixed-point representation of 1.0.
	One Q = 1 << fracBits

	maxQ = Q(1<<62 - 1)
	minQ = -maxQ
)

// FromInt builds a Q48.16 value from an integer.
func FromInt(n int64) Q {
	return Q(n << fracBits)
}

// FromFloat builds a Q48.16 value from a float64. Construction-time only:
// never called on a hot path, only for test fixtures and fixed constants
// such as the inference engine's fit-quality placeholder.
func FromFloat(f float64) Q {
	return Q(f * float64(One))
}

// ToFloat converts back to float64, for diagnostics and logging only.
func (q Q) ToFloat() float64 {
	return float64(q) / float64(One)
}

// ToInt truncates toward zero, discarding the fractional part.
func (q Q) ToInt() int64 {
	return int64(q) >> fracBits
}

// Add returns a+b, saturating on overflow.
func Add(a, b Q) Q {
	s := int64(a) + int64(b)
	if (b > 0 && s < int64(a)) || s > int64(maxQ) {
		return maxQ
	}
	if (b < 0 && s > int64(a)) || s < int64(minQ) {
		return minQ
	}
	return Q(s)
}

// Sub returns a-b, saturating on overflow.
func Sub(a, b Q) Q {
	return Add(a, -b)
}

// Mul returns a*b with a 128-bit intermediate product, rescaled by 2^16.
func Mul(a, b Q) Q {
	neg := (a < 0) != (b < 0)
	ua, ub := abs64(int64(a)), abs64(int64(b))

	hi, lo := bits.Mul64(ua, ub)
	// Result is (hi:lo) >> fracBits, a 128-bit right shift.
	resLo := (lo >> fracBits) | (hi << (64 - fracBits))
	resHi := hi >> fracBits

	if resHi != 0 || resLo > uint64(maxQ) {
		if neg {
			return minQ
		}
		return maxQ
	}
	if neg {
		return Q(-int64(resLo))
	}
	return Q(resLo)
}

// Div returns a/b, saturating to ±max on divide-by-zero or quotient
// overflow instead of panicking.
func Div(a, b Q) Q {
	if b == 0 {
		if a >= 0 {
			return maxQ
		}
		return minQ
	}
	neg := (a < 0) != (b < 0)
	ua, ub := abs64(int64(a)), abs64(int64(b))

	hi := ua >> (64 - fracBits)
	lo := ua << fracBits
	if hi >= ub {
		if neg {
			return minQ
		}
		return maxQ
	}
	q, _ := bits.Div64(hi, lo, ub)

	if q > uint64(maxQ) {
		if neg {
			return minQ
		}
		return maxQ
	}
	if neg {
		return Q(-int64(q))
	}
	return Q(q)
}

func abs64(v int64) uint64 {
	if v < 0 {
		return uint64(-v)
	}
	return uint64(v)
}

// Sqrt computes an approximate square root via Newton iteration.
// Returns 0 for non-positive input.
func Sqrt(q Q) Q {
	if q <= 0 {
		return 0
	}
	x := q
	if x < One {
		x = One
	}
	for i := 0; i < 24; i++ {
		next := Div(Add(x, Div(q, x)), FromInt(2))
		if next == x {
			break
		}
		x = next
	}
	return x
}

// Ln computes an approximate natural logarithm via bit-decomposition
// (extracting the integer power of two) followed by Newton iteration on
// the remaining mantissa. Returns 0 for non-positive input.
func Ln(q Q) Q {
	if q <= 0 {
		return 0
	}
	// Normalize q into [1,2) by tracking k such that q = m * 2^k (in Q48.16 terms).
	m := int64(q)
	k := 0
	for m >= int64(One)*2 {
		m >>= 1
		k++
	}
	for m < int64(One) {
		m <<= 1
		k--
	}
	mantissa := Q(m)

	// Newton iteration to solve exp(y) = mantissa for y, starting from y=0.
	y := Q(0)
	for i := 0; i < 20; i++ {
		ey := Exp(y)
		if ey == 0 {
			break
		}
		// y_{n+1} = y_n + (mantissa - e^y) / e^y
		delta := Div(Sub(mantissa, ey), ey)
		y = Add(y, delta)
		if delta > -4 && delta < 4 {
			break
		}
	}

	ln2 := FromFloat(0.6931471805599453)
	return Add(y, Mul(FromInt(int64(k)), ln2))
}

// Exp computes an approximate e^q via a truncated Taylor series.
func Exp(q Q) Q {
	// exp(x) = sum x^n / n!
	term := One
	sum := One
	for n := int64(1); n <= 24; n++ {
		term = Div(Mul(term, q), FromInt(n))
		sum = Add(sum, term)
		if term < 2 && term > -2 {
			break
		}
	}
	return sum
}

// Mean returns the arithmetic mean of a slice of Q48.16 values.
func Mean(values []Q) Q {
	if len(values) == 0 {
		return 0
	}
	var sum Q
	for _, v := range values {
		sum = Add(sum, v)
	}
	return Div(sum, FromInt(int64(len(values))))
}

// Variance returns the population variance of a slice of Q48.16 values,
// computed with a two-pass (mean, then sum-of-squared-deviations) method.
func Variance(values []Q) Q {
	if len(values) == 0 {
		return 0
	}
	mean := Mean(values)
	var sumSq Q
	for _, v := range values {
		d := Sub(v, mean)
		sumSq = Add(sumSq, Mul(d, d))
	}
	return Div(sumSq, FromInt(int64(len(values))))
}

// Median returns the median of a slice of Q48.16 values via a scratch-copy
// sort, leaving the caller's slice order untouched.
func Median(values []Q) Q {
	if len(values) == 0 {
		return 0
	}
	scratch := make([]Q, len(values))
	copy(scratch, values)
	insertionSort(scratch)
	return scratch[len(scratch)/2]
}

func insertionSort(s []Q) {
	for i := 1; i < len(s); i++ {
		v := s[i]
		j := i - 1
		for j >= 0 && s[j] > v {
			s[j+1] = s[j]
			j--
		}
		s[j+1] = v
	}
}
