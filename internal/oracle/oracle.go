// Package oracle turns an arbitrary-precision evaluator into a source of
// decimal digit blocks.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Sumatoshi-tech/pimaster/pkg/bigpi"
	"github.com/Sumatoshi-tech/pimaster/pkg/config"
	"github.com/Sumatoshi-tech/pimaster/pkg/safeconv"
)

// ErrOracle wraps every failure of the underlying evaluator.
var ErrOracle = errors.New("digit oracle failed")

// Evaluator computes fractional decimal digits of π at a working precision.
// Fraction(n) must return at least n digits and be deterministic for a given n.
type Evaluator interface {
	Fraction(n int) (string, error)
}

// EvaluatorFunc adapts a function to the Evaluator interface.
type EvaluatorFunc func(n int) (string, error)

// Fraction implements Evaluator.
func (f EvaluatorFunc) Fraction(n int) (string, error) { return f(n) }

// Chudnovsky is the default evaluator, backed by pkg/bigpi.
var Chudnovsky Evaluator = EvaluatorFunc(func(n int) (string, error) {
	s, err := bigpi.Digits(n)
	if err != nil {
		return "", err
	}

	return s[1:], nil
})

// Oracle returns the first total fractional digits of π.
type Oracle interface {
	ComputeDigits(ctx context.Context, total uint64) (string, error)
}

// Recompute evaluates from scratch on every call at total+guard digits and
// discards the guard digits. The cost of each call grows with total, not with
// the size of the block the caller is about to use.
type Recompute struct {
	eval   Evaluator
	guard  int
	logger *slog.Logger
}

// NewRecompute creates a recomputing oracle.
func NewRecompute(eval Evaluator, guard int, logger *slog.Logger) *Recompute {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Recompute{eval: eval, guard: guard, logger: logger}
}

// ComputeDigits implements Oracle.
func (o *Recompute) ComputeDigits(ctx context.Context, total uint64) (string, error) {
	if total == 0 {
		return "", nil
	}

	err := ctx.Err()
	if err != nil {
		return "", err
	}

	want, err := safeconv.Uint64ToInt(total)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrOracle, err)
	}

	precision := want + o.guard
	start := time.Now()

	digits, err := o.eval.Fraction(precision)
	if err != nil {
		return "", fmt.Errorf("%w: precision %d: %w", ErrOracle, precision, err)
	}

	if len(digits) < want {
		return "", fmt.Errorf("%w: evaluator returned %d digits, need %d", ErrOracle, len(digits), want)
	}

	o.logger.DebugContext(ctx, "oracle: evaluated",
		"precision", precision, "duration", time.Since(start))

	return digits[:want], ctx.Err()
}

// Memoize keeps the longest digit string produced so far and answers any
// request it covers without evaluating. Longer requests go to the wrapped
// oracle, which still computes from scratch.
type Memoize struct {
	inner  Oracle
	digits string
}

// NewMemoize wraps inner with a memo.
func NewMemoize(inner Oracle) *Memoize {
	return &Memoize{inner: inner}
}

// ComputeDigits implements Oracle.
func (m *Memoize) ComputeDigits(ctx context.Context, total uint64) (string, error) {
	if total <= uint64(len(m.digits)) {
		return m.digits[:total], nil
	}

	digits, err := m.inner.ComputeDigits(ctx, total)
	if err != nil {
		return "", err
	}

	m.digits = digits

	return digits, nil
}

// Prefetch evaluates total digits up front so later requests are served from memory.
func (m *Memoize) Prefetch(ctx context.Context, total uint64) error {
	_, err := m.ComputeDigits(ctx, total)

	return err
}

// Prefetcher is implemented by oracles that can warm up for a known target.
type Prefetcher interface {
	Prefetch(ctx context.Context, total uint64) error
}

// New builds the oracle selected by cfg on top of eval.
func New(cfg config.OracleConfig, eval Evaluator, logger *slog.Logger) (Oracle, error) {
	base := NewRecompute(eval, cfg.GuardDigits, logger)

	switch cfg.Strategy {
	case config.OracleRecompute:
		return base, nil
	case config.OracleMemoize:
		return NewMemoize(base), nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidStrategy, cfg.Strategy)
	}
}
