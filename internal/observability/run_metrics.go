package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricDigitsTotal      = "pimaster.digits.total"
	metricBlocksTotal      = "pimaster.blocks.total"
	metricBlockDuration    = "pimaster.block.duration.seconds"
	metricOracleDuration   = "pimaster.oracle.duration.seconds"
	metricCheckpointsTotal = "pimaster.checkpoints.total"
	metricThroughput       = "pimaster.throughput.digits_per_second"
	metricStageDuration    = "pimaster.stage.duration.seconds"

	attrStage = "stage"
)

// blockBucketBoundaries covers 1ms to 1h; whole-prefix recomputation makes
// late blocks much slower than early ones.
var blockBucketBoundaries = []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 900, 3600}

// RunMetrics holds the instruments recorded by a generation run.
type RunMetrics struct {
	digits         metric.Int64Counter
	blocks         metric.Int64Counter
	blockDuration  metric.Float64Histogram
	oracleDuration metric.Float64Histogram
	checkpoints    metric.Int64Counter
	throughput     metric.Float64Gauge
	stageDuration  metric.Float64Histogram
}

// NewRunMetrics creates the run instruments from the given meter.
func NewRunMetrics(mt metric.Meter) (*RunMetrics, error) {
	b := newMetricBuilder(mt)

	m := &RunMetrics{
		digits:         b.count(metricDigitsTotal, "Decimal digits written", "{digit}"),
		blocks:         b.count(metricBlocksTotal, "Blocks written", "{block}"),
		blockDuration:  b.seconds(metricBlockDuration, "Wall time per block", blockBucketBoundaries...),
		oracleDuration: b.seconds(metricOracleDuration, "Evaluator time per block", blockBucketBoundaries...),
		checkpoints:    b.count(metricCheckpointsTotal, "Checkpoints saved", "{checkpoint}"),
		throughput:     b.level(metricThroughput, "Average digits per second since the first run", "{digit}/s"),
		stageDuration:  b.seconds(metricStageDuration, "Wall time per post-generation stage"),
	}

	if b.err != nil {
		return nil, b.err
	}

	return m, nil
}

// RecordBlock records one written block.
func (m *RunMetrics) RecordBlock(ctx context.Context, digits int, total, oracle time.Duration) {
	m.digits.Add(ctx, int64(digits))
	m.blocks.Add(ctx, 1)
	m.blockDuration.Record(ctx, total.Seconds())
	m.oracleDuration.Record(ctx, oracle.Seconds())
}

// RecordCheckpoint counts a saved checkpoint.
func (m *RunMetrics) RecordCheckpoint(ctx context.Context) {
	m.checkpoints.Add(ctx, 1)
}

// RecordThroughput sets the current average speed.
func (m *RunMetrics) RecordThroughput(ctx context.Context, digitsPerSecond float64) {
	m.throughput.Record(ctx, digitsPerSecond)
}

// RecordStage records the duration of a post-generation stage.
func (m *RunMetrics) RecordStage(ctx context.Context, stage string, d time.Duration) {
	m.stageDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String(attrStage, stage)))
}
