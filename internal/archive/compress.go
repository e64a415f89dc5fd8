package archive

import (
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

// ErrUnknownCompressor is returned for compressor names that are not registered.
var ErrUnknownCompressor = errors.New("unknown compressor")

// Compressor wraps an output stream with a compression format.
type Compressor interface {
	Name() string
	// Extension is appended to the archive name, including the dot.
	Extension() string
	// NewWriter returns a writer compressing into w. entry names the
	// uncompressed content for formats that carry one.
	NewWriter(w io.Writer, entry string) (io.WriteCloser, error)
}

// registry lists compressors by name, best ratio first.
var registry = []Compressor{Zstd{}, Gzip{}, Zip{}, None{}}

// Lookup returns the compressor registered under name.
func Lookup(name string) (Compressor, error) {
	for _, c := range registry {
		if c.Name() == name {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCompressor, name)
}

// Select returns the first compressor of preferences. Every name must be
// known. An empty preference list selects the pass-through compressor.
func Select(preferences []string) (Compressor, error) {
	var chosen Compressor
	for _, name := range preferences {
		c, err := Lookup(name)
		if err != nil {
			return nil, err
		}
		if chosen == nil {
			chosen = c
		}
	}
	if chosen == nil {
		return None{}, nil
	}
	return chosen, nil
}

// Zstd compresses with Zstandard.
type Zstd struct{}

func (Zstd) Name() string      { return "zstd" }
func (Zstd) Extension() string { return ".zst" }

func (Zstd) NewWriter(w io.Writer, _ string) (io.WriteCloser, error) {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return nil, fmt.Errorf("failed to create Zstandard writer: %w", err)
	}
	return enc, nil
}

// Gzip compresses with gzip, recording entry as the original file name.
type Gzip struct{}

func (Gzip) Name() string      { return "gzip" }
func (Gzip) Extension() string { return ".gz" }

func (Gzip) NewWriter(w io.Writer, entry string) (io.WriteCloser, error) {
	gz, err := gzip.NewWriterLevel(w, gzip.DefaultCompression)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip writer: %w", err)
	}
	gz.Name = entry
	return gz, nil
}

// Zip stores the dump as a single deflated entry.
type Zip struct{}

func (Zip) Name() string      { return "zip" }
func (Zip) Extension() string { return ".zip" }

func (Zip) NewWriter(w io.Writer, entry string) (io.WriteCloser, error) {
	zw := zip.NewWriter(w)
	fw, err := zw.Create(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to create zip entry: %w", err)
	}
	return &zipEntryWriter{Writer: fw, archive: zw}, nil
}

type zipEntryWriter struct {
	io.Writer
	archive *zip.Writer
}

func (z *zipEntryWriter) Close() error { return z.archive.Close() }

// None writes the dump uncompressed.
type None struct{}

func (None) Name() string      { return "none" }
func (None) Extension() string { return "" }

func (None) NewWriter(w io.Writer, _ string) (io.WriteCloser, error) {
	return nopWriteCloser{w}, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
