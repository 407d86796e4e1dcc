// Package hexpi produces hexadecimal digits of pi after the point with the
// Bailey–Borwein–Plouffe series, independently of the decimal evaluator.
package hexpi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
	"strings"

	"github.com/Sumatoshi-tech/pimaster/pkg/config"
	"github.com/Sumatoshi-tech/pimaster/pkg/persist"
)

// SafeFloatDigits is how many leading digits BBP produces correctly.
// Later digits are deterministic but not digits of pi.
const SafeFloatDigits = 12

// Guard bits carried by BBPFixed below the last requested digit.
const guardBits = 64

// cancelCheckEvery is the number of series terms between context checks.
const cancelCheckEvery = 1024

// Record prefix written before the hex digits.
const recordPrefix = "3."

// Sentinel errors.
var (
	ErrInvalidCount     = errors.New("hex digit count must not be negative")
	ErrUnknownPrecision = errors.New("unknown hex precision")
)

const hexDigits = "0123456789ABCDEF"

// BBP sums n terms of the series in float64 arithmetic and expands the
// fractional part into n uppercase hex digits by repeated multiplication by 16.
func BBP(n int) string {
	if n <= 0 {
		return ""
	}

	var x float64

	for k := range n {
		scale := math.Ldexp(1, -4*k)
		if scale == 0 {
			break
		}

		fk := float64(8 * k)
		x += scale * (4/(fk+1) - 2/(fk+4) - 1/(fk+5) - 1/(fk+6))
	}

	frac := x - math.Trunc(x)

	var sb strings.Builder

	sb.Grow(n)

	for range n {
		frac *= 16
		d := int(frac)
		frac -= float64(d)
		sb.WriteByte(hexDigits[d])
	}

	return sb.String()
}

// BBPFixed evaluates the same series in fixed-point big.Int arithmetic with
// 4n+guardBits fractional bits, so every one of the n digits is exact.
func BBPFixed(ctx context.Context, n int) (string, error) {
	if n < 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidCount, n)
	}

	if n == 0 {
		return "", nil
	}

	bits := uint(4*n + guardBits)

	var (
		sum  = new(big.Int)
		term = new(big.Int)
		div  = new(big.Int)
	)

	for k := 0; uint(4*k) <= bits; k++ {
		if k%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return "", err
			}
		}

		shift := bits - uint(4*k)

		sum.Add(sum, fixedTerm(term, div, shift, 8*k+1, 4))
		sum.Sub(sum, fixedTerm(term, div, shift, 8*k+4, 2))
		sum.Sub(sum, fixedTerm(term, div, shift, 8*k+5, 1))
		sum.Sub(sum, fixedTerm(term, div, shift, 8*k+6, 1))
	}

	mask := new(big.Int).Lsh(big.NewInt(1), bits)
	mask.Sub(mask, big.NewInt(1))

	frac := sum.And(sum, mask)
	frac.Rsh(frac, guardBits)

	out := strings.ToUpper(frac.Text(16))

	return strings.Repeat("0", n-len(out)) + out, nil
}

// fixedTerm sets term to coef * 2^shift / denom, truncated.
func fixedTerm(term, div *big.Int, shift uint, denom int, coef int64) *big.Int {
	term.Lsh(big.NewInt(coef), shift)
	div.SetInt64(int64(denom))

	return term.Quo(term, div)
}

// Extract returns n hex digits using the float or fixed algorithm.
func Extract(ctx context.Context, n int, precision string) (string, error) {
	if n < 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidCount, n)
	}

	switch precision {
	case config.HexFloat:
		if err := ctx.Err(); err != nil {
			return "", err
		}

		return BBP(n), nil
	case config.HexFixed:
		return BBPFixed(ctx, n)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPrecision, precision)
	}
}

// Write stores "3." followed by digits at path, replacing any previous record.
func Write(path, digits string) error {
	err := persist.WriteFileAtomic(path, func(w io.Writer) error {
		_, writeErr := io.WriteString(w, recordPrefix+digits)

		return writeErr
	})
	if err != nil {
		return fmt.Errorf("write hex record: %w", err)
	}

	return nil
}
