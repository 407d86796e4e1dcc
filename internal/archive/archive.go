// Package archive keeps a compressed copy of the binary stream.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/Sumatoshi-tech/pimaster/pkg/persist"
	"github.com/Sumatoshi-tech/pimaster/pkg/safeconv"
)

// Supported codecs.
const (
	LZ4  = "lz4"
	Zstd = "zstd"
)

// ErrUnknownCodec is returned for a codec name or archive extension that is not supported.
var ErrUnknownCodec = errors.New("unknown archive codec")

var extensions = map[string]string{
	LZ4:  ".lz4",
	Zstd: ".zst",
}

// Result describes a written archive.
type Result struct {
	Path        string
	Codec       string
	InputBytes  uint64
	OutputBytes uint64
}

// Ratio returns OutputBytes/InputBytes, or 0 for an empty input.
func (r Result) Ratio() float64 {
	if r.InputBytes == 0 {
		return 0
	}

	return float64(r.OutputBytes) / float64(r.InputBytes)
}

// Path returns the archive path for src under codec.
func Path(src, codec string) (string, error) {
	ext, ok := extensions[codec]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCodec, codec)
	}

	return src + ext, nil
}

// CodecFor returns the codec implied by an archive path's extension.
func CodecFor(path string) (string, error) {
	ext := filepath.Ext(path)

	for codec, e := range extensions {
		if e == ext {
			return codec, nil
		}
	}

	return "", fmt.Errorf("%w: extension %q", ErrUnknownCodec, ext)
}

// Compress writes a compressed copy of src next to it and returns its
// description. The archive is replaced atomically.
func Compress(ctx context.Context, src, codec string, logger *slog.Logger) (Result, error) {
	dst, err := Path(src, codec)
	if err != nil {
		return Result{}, err
	}

	in, err := os.Open(src)
	if err != nil {
		return Result{}, fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	var read int64

	err = persist.WriteFileAtomic(dst, func(w io.Writer) error {
		enc, encErr := newEncoder(w, codec)
		if encErr != nil {
			return encErr
		}

		n, copyErr := io.Copy(enc, &ctxReader{ctx: ctx, r: in})
		read = n

		return errors.Join(copyErr, enc.Close())
	})
	if err != nil {
		return Result{}, fmt.Errorf("compress %s: %w", src, err)
	}

	info, err := os.Stat(dst)
	if err != nil {
		return Result{}, fmt.Errorf("stat %s: %w", dst, err)
	}

	res := Result{Path: dst, Codec: codec}

	res.InputBytes, err = safeconv.Int64ToUint64(read)
	if err != nil {
		return Result{}, err
	}

	res.OutputBytes, err = safeconv.Int64ToUint64(info.Size())
	if err != nil {
		return Result{}, err
	}

	if logger != nil {
		logger.InfoContext(ctx, "archive: written",
			"path", dst, "codec", codec, "input_bytes", res.InputBytes, "output_bytes", res.OutputBytes)
	}

	return res, nil
}

// Open returns a reader over the decompressed content of an archive. The
// codec is taken from the file extension.
func Open(path string) (io.ReadCloser, error) {
	codec, err := CodecFor(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	switch codec {
	case LZ4:
		return &readCloser{Reader: lz4.NewReader(f), close: f.Close}, nil
	default:
		dec, decErr := zstd.NewReader(f, zstd.WithDecoderConcurrency(1))
		if decErr != nil {
			_ = f.Close()

			return nil, fmt.Errorf("zstd reader: %w", decErr)
		}

		return &readCloser{Reader: dec, close: func() error {
			dec.Close()

			return f.Close()
		}}, nil
	}
}

// Decompress copies the decompressed content of the archive at path to w.
func Decompress(path string, w io.Writer) (int64, error) {
	rc, err := Open(path)
	if err != nil {
		return 0, err
	}

	n, copyErr := io.Copy(w, rc)
	closeErr := rc.Close()

	if err = errors.Join(copyErr, closeErr); err != nil {
		return n, fmt.Errorf("decompress %s: %w", path, err)
	}

	return n, nil
}

func newEncoder(w io.Writer, codec string) (io.WriteCloser, error) {
	switch codec {
	case LZ4:
		return lz4.NewWriter(w), nil
	case Zstd:
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("zstd writer: %w", err)
		}

		return enc, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, codec)
	}
}

type readCloser struct {
	io.Reader
	close func() error
}

func (r *readCloser) Close() error { return r.close() }

// ctxReader stops a copy once the context is done.
type ctxReader struct {
	ctx context.Context //nolint:containedctx // scoped to one io.Copy call.
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}

	return c.r.Read(p)
}
