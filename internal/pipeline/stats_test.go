package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMeasure(t *testing.T) {
	t.Parallel()

	start := time.Unix(100, 0)

	tp := measure(1_000, 11_000, 10, start, start.Add(10*time.Second))

	assert.InDelta(t, 20.0, tp.Elapsed, 1e-9)
	assert.InDelta(t, 50.0, tp.Speed, 1e-9)
	assert.Equal(t, 200*time.Second, tp.ETA)
}

func TestMeasure_NoTimeElapsed(t *testing.T) {
	t.Parallel()

	start := time.Unix(100, 0)

	tp := measure(0, 100, 0, start, start)

	assert.Zero(t, tp.Elapsed)
	assert.Zero(t, tp.Speed)
	assert.Zero(t, tp.ETA)
}

func TestMeasure_Complete(t *testing.T) {
	t.Parallel()

	start := time.Unix(100, 0)

	tp := measure(100, 100, 0, start, start.Add(time.Second))

	assert.InDelta(t, 100.0, tp.Speed, 1e-9)
	assert.Zero(t, tp.ETA)
}
