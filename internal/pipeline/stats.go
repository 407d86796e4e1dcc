package pipeline

import (
	"math"
	"time"
)

// Throughput is the progress accounting taken after every block.
type Throughput struct {
	// Elapsed is the total run time in seconds, including earlier runs.
	Elapsed float64

	// Speed is Generated/Elapsed in digits per second, 0 before any time has passed.
	Speed float64

	// ETA is the projected time to reach the target at the current speed, 0
	// when the speed is 0.
	ETA time.Duration
}

// measure computes throughput for generated of total digits, where
// elapsedPrev seconds were spent in earlier runs and the current run
// started at start.
func measure(generated, total uint64, elapsedPrev float64, start, now time.Time) Throughput {
	t := Throughput{Elapsed: elapsedPrev + now.Sub(start).Seconds()}

	if t.Elapsed > 0 {
		t.Speed = float64(generated) / t.Elapsed
	}

	if t.Speed > 0 && total > generated {
		eta := float64(total-generated) / t.Speed
		t.ETA = time.Duration(math.Min(eta, math.MaxInt64/float64(time.Second)) * float64(time.Second))
	}

	return t
}
