package bigpi_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/pimaster/pkg/bigpi"
)

const hundredDigits = "1415926535897932384626433832795028841971693993751058209749445923078164062862089986280348253421170679"

func TestDigits_KnownPrefix(t *testing.T) {
	t.Parallel()

	got, err := bigpi.Digits(120)
	require.NoError(t, err)
	require.Len(t, got, 121)
	assert.Equal(t, "3", got[:1])
	assert.Equal(t, hundredDigits, got[1:101])
}

func TestDigits_SmallPrecisions(t *testing.T) {
	t.Parallel()

	for n := 5; n <= 40; n++ {
		got, err := bigpi.Digits(n + 5)
		require.NoError(t, err)
		assert.Equal(t, hundredDigits[:n], got[1:n+1], "n=%d", n)
	}
}

func TestDigits_RejectsNonPositive(t *testing.T) {
	t.Parallel()

	_, err := bigpi.Digits(0)
	require.ErrorIs(t, err, bigpi.ErrPrecision)

	_, err = bigpi.Digits(-3)
	require.ErrorIs(t, err, bigpi.ErrPrecision)
}

func TestDigits_Deterministic(t *testing.T) {
	t.Parallel()

	a, err := bigpi.Digits(500)
	require.NoError(t, err)

	b, err := bigpi.Digits(500)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestScaled_OneDigit(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "31", bigpi.Scaled(1).String())
}
