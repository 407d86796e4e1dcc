// Package pipeline runs the resumable block loop and the stages that follow
// it: verification, archiving, hex extraction and the run manifest.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/pimaster/internal/archive"
	"github.com/Sumatoshi-tech/pimaster/internal/checkpoint"
	"github.com/Sumatoshi-tech/pimaster/internal/hexpi"
	"github.com/Sumatoshi-tech/pimaster/internal/observability"
	"github.com/Sumatoshi-tech/pimaster/internal/oracle"
	"github.com/Sumatoshi-tech/pimaster/internal/report"
	"github.com/Sumatoshi-tech/pimaster/internal/runlock"
	"github.com/Sumatoshi-tech/pimaster/internal/verify"
	"github.com/Sumatoshi-tech/pimaster/internal/writer"
	"github.com/Sumatoshi-tech/pimaster/pkg/config"
	"github.com/Sumatoshi-tech/pimaster/pkg/safeconv"
)

const tracerName = "pimaster/pipeline"

// ErrShortBlock is returned when the oracle yields fewer digits than requested.
var ErrShortBlock = errors.New("oracle returned fewer digits than requested")

// Stage is a state of the orchestrator.
type Stage string

// Orchestrator states, in execution order.
const (
	StageIdle          Stage = "idle"
	StageResuming      Stage = "resuming"
	StageComputing     Stage = "computing"
	StageWriting       Stage = "writing"
	StageCheckpointing Stage = "checkpointing"
	StageFinalizing    Stage = "finalizing"
	StageVerifying     Stage = "verifying"
	StageArchiving     Stage = "archiving"
	StageExtractingHex Stage = "extracting_hex"
	StageDone          Stage = "done"
)

// Options configures an Orchestrator. Only Config is required.
type Options struct {
	Config config.Config

	// Oracle supplies digit blocks. Nil builds the configured strategy on
	// top of the Chudnovsky evaluator.
	Oracle oracle.Oracle

	Clock    Clock
	Logger   *slog.Logger
	Reporter report.Reporter

	// Metrics is optional; nil records nothing.
	Metrics *observability.RunMetrics

	// Tracer defaults to the global OTel tracer.
	Tracer trace.Tracer

	// Version is recorded in the manifest.
	Version string
}

// Result describes a completed (or gracefully stopped) run.
type Result struct {
	Iterations  int
	Digits      uint64
	Resumed     bool
	ResumedFrom uint64
	Elapsed     float64
	Offsets     checkpoint.Offsets
	Reconciled  writer.Report
	Segments    int

	DigestAlgorithm string
	Digest          string

	Archive *archive.Result

	HexDigits    int
	HexPrecision string

	Manifest *Manifest
}

// Orchestrator drives one run over a configured output directory.
type Orchestrator struct {
	cfg      config.Config
	layout   writer.Layout
	oracle   oracle.Oracle
	clock    Clock
	logger   *slog.Logger
	reporter report.Reporter
	metrics  *observability.RunMetrics
	tracer   trace.Tracer
	version  string

	stage atomic.Value
}

// New validates the configuration and assembles an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	err := opts.Config.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	o := &Orchestrator{
		cfg:      opts.Config,
		layout:   writer.LayoutFromConfig(opts.Config),
		oracle:   opts.Oracle,
		clock:    opts.Clock,
		logger:   opts.Logger,
		reporter: opts.Reporter,
		metrics:  opts.Metrics,
		tracer:   opts.Tracer,
		version:  opts.Version,
	}

	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if o.clock == nil {
		o.clock = SystemClock()
	}

	if o.reporter == nil {
		o.reporter = report.Discard{}
	}

	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}

	if o.oracle == nil {
		o.oracle, err = oracle.New(opts.Config.Oracle, oracle.Chudnovsky, o.logger)
		if err != nil {
			return nil, err
		}
	}

	o.setStage(StageIdle)

	return o, nil
}

// Stage reports the current state.
func (o *Orchestrator) Stage() Stage {
	s, _ := o.stage.Load().(Stage)

	return s
}

func (o *Orchestrator) setStage(s Stage) {
	o.stage.Store(s)
}

// loopState is the block loop's running position.
type loopState struct {
	generated   uint64
	elapsedPrev float64
	start       time.Time
	lastSave    time.Time
	iterations  int
}

// Run resumes from the checkpoint, generates the remaining blocks, and runs
// the post-generation stages. A cancelled context stops the loop between
// blocks after syncing the outputs and saving a checkpoint; the context
// error is returned.
func (o *Orchestrator) Run(ctx context.Context) (Result, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline.run")
	defer span.End()

	res, err := o.run(ctx)

	span.SetAttributes(
		attribute.Int64("pimaster.digits", int64(min(res.Digits, math.MaxInt64))),
		attribute.Int("pimaster.iterations", res.Iterations),
	)

	if err != nil {
		span.RecordError(err)
	}

	return res, err
}

func (o *Orchestrator) run(ctx context.Context) (Result, error) {
	o.setStage(StageResuming)

	err := o.cfg.Output.EnsureDirs()
	if err != nil {
		return Result{}, err
	}

	lock, err := runlock.Acquire(o.cfg.Output.LockPath())
	if err != nil {
		return Result{}, err
	}

	defer func() {
		releaseErr := lock.Release()
		if releaseErr != nil {
			o.logger.WarnContext(ctx, "pipeline: release lock failed", "error", releaseErr)
		}
	}()

	store := checkpoint.NewStore(o.cfg.Output.CheckpointPath())

	res, state, err := o.resume(ctx, store)
	if err != nil {
		return res, err
	}

	w, err := writer.Open(o.layout, o.logger)
	if err != nil {
		return res, err
	}

	loopErr := o.loop(ctx, w, store, &state, &res)

	if loopErr == nil || isCancellation(ctx, loopErr) {
		finalErr := o.finalize(ctx, w, store, &state, &res)
		if finalErr != nil {
			return res, errors.Join(loopErr, finalErr, w.Close())
		}
	}

	closeErr := w.Close()

	if loopErr != nil {
		if isCancellation(ctx, loopErr) {
			o.logger.WarnContext(ctx, "pipeline: stopped", "digits", state.generated)

			return res, fmt.Errorf("run interrupted at %d digits: %w", state.generated, ctx.Err())
		}

		return res, errors.Join(loopErr, closeErr)
	}

	if closeErr != nil {
		return res, closeErr
	}

	err = o.postStages(ctx, &res)
	if err != nil {
		return res, err
	}

	o.setStage(StageDone)

	return res, nil
}

// resume loads the checkpoint and cuts the outputs back to its offsets.
func (o *Orchestrator) resume(ctx context.Context, store *checkpoint.Store) (Result, loopState, error) {
	var res Result

	cp, err := store.Load()
	if err != nil {
		return res, loopState{}, err
	}

	if cp.HasOffsets {
		res.Reconciled, err = writer.Reconcile(o.layout, cp.Offsets)
		if err != nil {
			return res, loopState{}, err
		}

		if res.Reconciled.Changed() {
			o.logger.WarnContext(ctx, "pipeline: discarded output written after the last checkpoint",
				"binary_bytes", res.Reconciled.BinaryTruncated,
				"segment_bytes", res.Reconciled.SegmentTruncated,
				"segments_removed", len(res.Reconciled.SegmentsRemoved))
		}
	} else {
		o.logger.WarnContext(ctx, "pipeline: checkpoint has no write offsets; resuming without reconciliation",
			"path", store.Path())
	}

	res.Resumed = cp.Digits > 0
	res.ResumedFrom = cp.Digits
	res.Digits = cp.Digits

	now := o.clock.Now()
	state := loopState{
		generated:   cp.Digits,
		elapsedPrev: cp.Elapsed,
		start:       now,
		lastSave:    now,
	}

	o.logger.InfoContext(ctx, "pipeline: starting",
		"from", cp.Digits, "target", o.cfg.Generation.TotalDigits,
		"block_size", o.cfg.Generation.BlockSize)

	if p, ok := o.oracle.(oracle.Prefetcher); ok && o.cfg.Oracle.Prefetch && cp.Digits < o.cfg.Generation.TotalDigits {
		err = p.Prefetch(ctx, o.cfg.Generation.TotalDigits)
		if err != nil {
			return res, state, fmt.Errorf("prefetch: %w", err)
		}
	}

	return res, state, nil
}

func (o *Orchestrator) loop(
	ctx context.Context, w *writer.Writer, store *checkpoint.Store, state *loopState, res *Result,
) error {
	gen := o.cfg.Generation

	for state.generated < gen.TotalDigits {
		err := ctx.Err()
		if err != nil {
			return err
		}

		o.setStage(StageComputing)

		size := min(gen.BlockSize, gen.TotalDigits-state.generated)
		blockStart := o.clock.Now()

		digits, err := o.oracle.ComputeDigits(ctx, state.generated+size)
		if err != nil {
			return err
		}

		if uint64(len(digits)) < state.generated+size {
			return fmt.Errorf("%w: got %d, need %d", ErrShortBlock, len(digits), state.generated+size)
		}

		oracleDone := o.clock.Now()

		o.setStage(StageWriting)

		err = w.WriteBlock(writer.Block{Start: state.generated, Digits: digits[state.generated : state.generated+size]})
		if err != nil {
			return fmt.Errorf("write block at %d: %w", state.generated, err)
		}

		state.generated += size
		state.iterations++
		res.Iterations = state.iterations
		res.Digits = state.generated

		now := o.clock.Now()
		tp := measure(state.generated, gen.TotalDigits, state.elapsedPrev, state.start, now)

		o.reporter.Progress(report.Progress{
			Generated: state.generated,
			Total:     gen.TotalDigits,
			Speed:     tp.Speed,
			ETA:       tp.ETA,
		})

		o.logger.InfoContext(ctx, "pipeline: block written",
			"generated", state.generated, "total", gen.TotalDigits,
			"digits_per_second", tp.Speed, "eta", tp.ETA.Round(time.Second))

		if o.metrics != nil {
			o.metrics.RecordBlock(ctx, safeconv.MustUint64ToInt(size), now.Sub(blockStart), oracleDone.Sub(blockStart))
			o.metrics.RecordThroughput(ctx, tp.Speed)
		}

		if now.Sub(state.lastSave) >= gen.CheckpointInterval {
			o.setStage(StageCheckpointing)

			err = o.save(w, store, state.generated, tp.Elapsed, res)
			if err != nil {
				return err
			}

			state.lastSave = now

			o.reporter.Checkpoint(state.generated)
			o.logger.InfoContext(ctx, "pipeline: checkpoint saved", "digits", state.generated)

			if o.metrics != nil {
				o.metrics.RecordCheckpoint(ctx)
			}
		}
	}

	return nil
}

// save makes the outputs durable and only then records them in the checkpoint.
func (o *Orchestrator) save(w *writer.Writer, store *checkpoint.Store, digits uint64, elapsed float64, res *Result) error {
	err := w.Sync()
	if err != nil {
		return err
	}

	offsets := w.Offsets()

	err = store.Save(checkpoint.Checkpoint{
		Digits:     digits,
		Elapsed:    elapsed,
		Offsets:    offsets,
		HasOffsets: true,
	})
	if err != nil {
		return err
	}

	res.Offsets = offsets

	return nil
}

func (o *Orchestrator) finalize(
	ctx context.Context, w *writer.Writer, store *checkpoint.Store, state *loopState, res *Result,
) error {
	o.setStage(StageFinalizing)

	elapsed := state.elapsedPrev + o.clock.Now().Sub(state.start).Seconds()

	err := o.save(w, store, state.generated, elapsed, res)
	if err != nil {
		return fmt.Errorf("final checkpoint: %w", err)
	}

	res.Elapsed = elapsed

	o.logger.InfoContext(ctx, "pipeline: generation finished",
		"digits", state.generated, "iterations", state.iterations, "elapsed_seconds", elapsed)

	return nil
}

// postStages runs verification, the optional archive, the hex excerpt and
// writes the manifest, in that order.
func (o *Orchestrator) postStages(ctx context.Context, res *Result) error {
	out := o.cfg.Output

	o.setStage(StageVerifying)

	err := o.timed(ctx, StageVerifying, func(ctx context.Context) error {
		v, vErr := verify.New(o.cfg.Verify, o.logger)
		if vErr != nil {
			return vErr
		}

		res.DigestAlgorithm = v.Algorithm
		res.Digest, vErr = v.Verify(ctx, out.BinaryPath(), out.DigestPath())

		return vErr
	})
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}

	if o.cfg.Archive.Enabled {
		o.setStage(StageArchiving)

		err = o.timed(ctx, StageArchiving, func(ctx context.Context) error {
			a, aErr := archive.Compress(ctx, out.BinaryPath(), o.cfg.Archive.Codec, o.logger)
			if aErr != nil {
				return aErr
			}

			res.Archive = &a

			return nil
		})
		if err != nil {
			return fmt.Errorf("archive: %w", err)
		}
	}

	if o.cfg.Hex.Digits > 0 {
		o.setStage(StageExtractingHex)

		err = o.timed(ctx, StageExtractingHex, func(ctx context.Context) error {
			return o.extractHex(ctx, res)
		})
		if err != nil {
			return fmt.Errorf("hex: %w", err)
		}
	}

	segments, err := o.layout.Segments()
	if err != nil {
		return err
	}

	res.Segments = len(segments)
	res.Manifest = o.manifest(res)

	err = writeManifest(out, res.Manifest)
	if err != nil {
		return fmt.Errorf("manifest: %w", err)
	}

	return nil
}

func (o *Orchestrator) extractHex(ctx context.Context, res *Result) error {
	n := o.cfg.Hex.Digits
	precision := o.cfg.Hex.Precision

	if precision == config.HexFloat && n > hexpi.SafeFloatDigits {
		o.logger.WarnContext(ctx, "pipeline: float BBP is only exact for the leading digits",
			"requested", n, "exact", hexpi.SafeFloatDigits)
	}

	digits, err := hexpi.Extract(ctx, n, precision)
	if err != nil {
		return err
	}

	err = hexpi.Write(o.cfg.Output.HexPath(), digits)
	if err != nil {
		return err
	}

	res.HexDigits = len(digits)
	res.HexPrecision = precision

	return nil
}

// timed runs fn inside a span and records its duration.
func (o *Orchestrator) timed(ctx context.Context, stage Stage, fn func(ctx context.Context) error) error {
	ctx, span := o.tracer.Start(ctx, "pipeline."+string(stage))
	defer span.End()

	start := o.clock.Now()
	err := fn(ctx)

	if err != nil {
		span.RecordError(err)
	}

	if o.metrics != nil {
		o.metrics.RecordStage(ctx, string(stage), o.clock.Now().Sub(start))
	}

	return err
}

func (o *Orchestrator) manifest(res *Result) *Manifest {
	gen := o.cfg.Generation

	m := &Manifest{
		Version:         o.version,
		CompletedAt:     o.clock.Now().UTC(),
		Digits:          res.Digits,
		ElapsedSeconds:  res.Elapsed,
		Iterations:      res.Iterations,
		BlockSize:       gen.BlockSize,
		DigitsPerLine:   gen.DigitsPerLine,
		SegmentDigits:   gen.SegmentDigits,
		BinaryBytes:     res.Offsets.BinaryBytes,
		Segments:        res.Segments,
		DigestAlgorithm: res.DigestAlgorithm,
		Digest:          res.Digest,
		HexDigits:       res.HexDigits,
		HexPrecision:    res.HexPrecision,
	}

	if res.Archive != nil {
		m.ArchivePath = res.Archive.Path
		m.ArchiveCodec = res.Archive.Codec
	}

	return m
}

func isCancellation(ctx context.Context, err error) bool {
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}
