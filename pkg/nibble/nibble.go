// Package nibble packs decimal digit lines into 4-bit fields and back.
//
// Each digit '0'-'9' occupies one nibble, two nibbles per byte with the
// earlier digit in the high nibble. A line with an odd number of digits loses
// its final digit: the trailing half-byte is dropped, never padded.
package nibble

import (
	"errors"
	"fmt"
)

// Sentinel errors for packing and unpacking.
var (
	ErrInvalidDigit  = errors.New("invalid decimal digit")
	ErrInvalidNibble = errors.New("nibble value out of decimal range")
	ErrShortInput    = errors.New("packed input too short")
)

// PackedLen returns the number of bytes a line of n digits packs into.
func PackedLen(n int) int {
	return n / 2
}

// Pack encodes a line of decimal digits. The result has PackedLen(len(line))
// bytes; for odd-length lines the last digit is not represented.
func Pack(line string) ([]byte, error) {
	return AppendPack(make([]byte, 0, PackedLen(len(line))), line)
}

// AppendPack appends the packed form of line to dst and returns the extended slice.
func AppendPack(dst []byte, line string) ([]byte, error) {
	full := len(line) - len(line)%2

	for i := 0; i < full; i += 2 {
		hi, err := digitValue(line, i)
		if err != nil {
			return dst, err
		}

		lo, err := digitValue(line, i+1)
		if err != nil {
			return dst, err
		}

		dst = append(dst, hi<<4|lo)
	}

	if full < len(line) {
		// The dropped digit must still be a valid digit.
		_, err := digitValue(line, full)
		if err != nil {
			return dst, err
		}
	}

	return dst, nil
}

// Unpack decodes the first n digits' worth of packed data. For odd n the
// returned string has n-1 digits, mirroring the truncation in Pack.
func Unpack(packed []byte, n int) (string, error) {
	need := PackedLen(n)
	if len(packed) < need {
		return "", fmt.Errorf("%w: need %d bytes, have %d", ErrShortInput, need, len(packed))
	}

	out := make([]byte, 0, need*2)

	for i, b := range packed[:need] {
		hi, lo := b>>4, b&0x0f
		if hi > 9 || lo > 9 {
			return "", fmt.Errorf("%w: byte %d = %#02x", ErrInvalidNibble, i, b)
		}

		out = append(out, '0'+hi, '0'+lo)
	}

	return string(out), nil
}

func digitValue(line string, i int) (byte, error) {
	c := line[i]
	if c < '0' || c > '9' {
		return 0, fmt.Errorf("%w: %q at offset %d", ErrInvalidDigit, c, i)
	}

	return c - '0', nil
}
