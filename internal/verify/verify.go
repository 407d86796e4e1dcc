// Package verify computes and checks the integrity digest of the binary stream.
package verify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/zeebo/blake3"

	"github.com/Sumatoshi-tech/pimaster/pkg/config"
	"github.com/Sumatoshi-tech/pimaster/pkg/persist"
)

// Supported digest algorithms.
const (
	SHA256 = "sha256"
	BLAKE3 = "blake3"
)

// DefaultChunkSize is the read size used when none is configured.
const DefaultChunkSize = humanize.MiByte

// Sentinel errors.
var (
	ErrUnknownAlgorithm = errors.New("unknown digest algorithm")
	ErrDigestMismatch   = errors.New("digest mismatch")
)

// NewHash returns a fresh hasher for algorithm.
func NewHash(algorithm string) (hash.Hash, error) {
	switch algorithm {
	case SHA256:
		return sha256.New(), nil
	case BLAKE3:
		return blake3.New(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algorithm)
	}
}

// Verifier digests files with a fixed algorithm and read size.
type Verifier struct {
	Algorithm string
	ChunkSize int
	Logger    *slog.Logger
}

// New builds a Verifier from the verify configuration.
func New(cfg config.VerifyConfig, logger *slog.Logger) (*Verifier, error) {
	chunk, err := cfg.ChunkBytes()
	if err != nil {
		return nil, err
	}

	_, err = NewHash(cfg.Algorithm)
	if err != nil {
		return nil, err
	}

	return &Verifier{Algorithm: cfg.Algorithm, ChunkSize: chunk, Logger: logger}, nil
}

// Digest streams the file at path through the hasher and returns the
// lowercase hex digest. The context is checked between chunks.
func (v *Verifier) Digest(ctx context.Context, path string) (string, error) {
	h, err := NewHash(v.Algorithm)
	if err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	chunk := v.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}

	buf := make([]byte, chunk)

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}

		n, readErr := io.ReadFull(f, buf)
		h.Write(buf[:n])

		if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
			break
		}

		if readErr != nil {
			return "", fmt.Errorf("read %s: %w", path, readErr)
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify digests binPath and overwrites the record at digestPath with the
// result. The record holds the hex digest without a trailing newline.
func (v *Verifier) Verify(ctx context.Context, binPath, digestPath string) (string, error) {
	sum, err := v.Digest(ctx, binPath)
	if err != nil {
		return "", err
	}

	err = persist.WriteFileAtomic(digestPath, func(w io.Writer) error {
		_, writeErr := io.WriteString(w, sum)

		return writeErr
	})
	if err != nil {
		return "", fmt.Errorf("write digest record: %w", err)
	}

	v.logger().Info("verify: digest recorded", "algorithm", v.Algorithm, "digest", sum, "path", digestPath)

	return sum, nil
}

// Check recomputes the digest of binPath and compares it with the record at
// digestPath. A difference yields ErrDigestMismatch.
func (v *Verifier) Check(ctx context.Context, binPath, digestPath string) (string, error) {
	recorded, err := ReadRecord(digestPath)
	if err != nil {
		return "", err
	}

	sum, err := v.Digest(ctx, binPath)
	if err != nil {
		return "", err
	}

	if sum != recorded {
		return sum, fmt.Errorf("%w: recorded %s, computed %s", ErrDigestMismatch, recorded, sum)
	}

	return sum, nil
}

// ReadRecord returns the digest stored at path, normalised to lowercase.
func ReadRecord(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read digest record: %w", err)
	}

	return strings.ToLower(strings.TrimSpace(string(data))), nil
}

func (v *Verifier) logger() *slog.Logger {
	if v.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return v.Logger
}
