// Package bigpi evaluates π to an arbitrary number of decimal digits.
//
// The evaluator uses the Chudnovsky series summed by binary splitting in
// fixed-point integer arithmetic. Every call computes from scratch; nothing
// is cached between calls.
package bigpi

import (
	"errors"
	"fmt"
	"math/big"
)

// ErrPrecision is returned for a non-positive digit request.
var ErrPrecision = errors.New("precision must be positive")

// Chudnovsky series constants.
const (
	termA = 13591409
	termB = 545140134

	// c3Over24 is 640320^3 / 24.
	c3Over24 = 10939058860032000

	// digitsPerTerm is log10(640320^3 / 1728), the digits each term contributes.
	digitsPerTerm = 14.181647462725477

	sqrtArg    = 10005
	multiplier = 426880
)

// Digits returns "3" followed by n fractional digits of π, truncated rather
// than rounded. The last few digits may be low by one unit due to integer
// truncation in the square root and the final division; callers that need n
// exact digits request a few guard digits more and slice.
func Digits(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("%w: %d", ErrPrecision, n)
	}

	scaled := Scaled(n)

	s := scaled.String()
	if len(s) != n+1 {
		return "", fmt.Errorf("bigpi: unexpected result width %d for %d digits", len(s), n)
	}

	return s, nil
}

// Scaled returns floor(π · 10^n) for n > 0.
func Scaled(n int) *big.Int {
	terms := int64(float64(n)/digitsPerTerm) + 1

	_, q, t := split(0, terms)

	one := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)

	sqrtC := new(big.Int).Mul(one, one)
	sqrtC.Mul(sqrtC, big.NewInt(sqrtArg))
	sqrtC.Sqrt(sqrtC)

	num := new(big.Int).Mul(q, big.NewInt(multiplier))
	num.Mul(num, sqrtC)

	return num.Quo(num, t)
}

// split computes P(a,b), Q(a,b) and T(a,b) of the binary splitting recursion.
func split(a, b int64) (p, q, t *big.Int) {
	if b-a == 1 {
		if a == 0 {
			p = big.NewInt(1)
			q = big.NewInt(1)
		} else {
			p = big.NewInt(6*a - 5)
			p.Mul(p, big.NewInt(2*a-1))
			p.Mul(p, big.NewInt(6*a-1))

			q = big.NewInt(a)
			q.Mul(q, q)
			q.Mul(q, big.NewInt(a))
			q.Mul(q, big.NewInt(c3Over24))
		}

		t = big.NewInt(termB)
		t.Mul(t, big.NewInt(a))
		t.Add(t, big.NewInt(termA))
		t.Mul(t, p)

		if a&1 == 1 {
			t.Neg(t)
		}

		return p, q, t
	}

	m := (a + b) / 2

	pam, qam, tam := split(a, m)
	pmb, qmb, tmb := split(m, b)

	p = new(big.Int).Mul(pam, pmb)
	q = new(big.Int).Mul(qam, qmb)

	t = new(big.Int).Mul(qmb, tam)
	t.Add(t, new(big.Int).Mul(pam, tmb))

	return p, q, t
}
