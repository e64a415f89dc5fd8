// Package archive commits dump streams to disk atomically.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/kebairia/dockdump/internal/logger"
)

// PartSuffix marks an archive that is still being written.
const PartSuffix = ".part"

// ErrWrite indicates a filesystem failure while staging or committing an archive.
var ErrWrite = errors.New("archive write failed")

// ErrExists means an archive is already committed at the target path.
var ErrExists = errors.New("archive already exists")

// Producer writes a dump into w. Its return value alone decides whether the
// dump succeeded.
type Producer func(ctx context.Context, w io.Writer) error

// Archive is a committed backup file.
type Archive struct {
	Path       string `json:"path"`
	Size       int64  `json:"size_bytes"`
	Compressor string `json:"compressor"`
}

// Writer streams a producer through a compressor into a temporary file and
// renames it into place only when both sides finished cleanly.
type Writer struct {
	Compressor Compressor
	Logger     logger.Logger
	// FileMode is applied to committed archives.
	FileMode os.FileMode
}

// NewWriter returns a Writer for the given compressor.
func NewWriter(c Compressor, log logger.Logger) *Writer {
	if c == nil {
		c = None{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Writer{Compressor: c, Logger: log, FileMode: 0o600}
}

// FinalPath returns the committed path for target, which names the
// uncompressed file (for example "db1-2025-01-02T03:04:05.sql").
func (w *Writer) FinalPath(target string) string {
	return target + w.Compressor.Extension()
}

// Commit runs produce and stores its output at FinalPath(target).
//
// The compressing consumer is started before produce so the producer always
// has a reader. The consumer is joined before the commit decision. On any
// failure neither the final file nor the .part file remains.
func (w *Writer) Commit(ctx context.Context, target string, produce Producer) (Archive, error) {
	final := w.FinalPath(target)
	part := final + PartSuffix

	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return Archive{}, fmt.Errorf("%w: mkdir %q: %v", ErrWrite, filepath.Dir(final), err)
	}

	file, err := os.OpenFile(part, os.O_CREATE|os.O_EXCL|os.O_WRONLY, w.FileMode)
	if err != nil {
		return Archive{}, fmt.Errorf("%w: create %q: %v", ErrWrite, part, err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = file.Close()
			if err := os.Remove(part); err != nil && !errors.Is(err, os.ErrNotExist) {
				w.Logger.Error("failed to remove partial archive", "path", part, "error", err.Error())
			}
		}
	}()

	pr, pw := io.Pipe()

	var g errgroup.Group
	g.Go(func() error {
		err := w.consume(pr, file, filepath.Base(target))
		// Unblock the producer if we stopped reading early.
		pr.CloseWithError(err)
		return err
	})

	perr := produce(ctx, pw)
	if perr == nil {
		perr = context.Cause(ctx)
	}
	if perr != nil {
		pw.CloseWithError(perr)
	} else {
		pw.Close()
	}
	cerr := g.Wait()

	if perr != nil {
		// A consumer failure reaches the producer as a write error on the
		// pipe; report the root cause.
		if errors.Is(cerr, ErrWrite) {
			return Archive{}, cerr
		}
		return Archive{}, perr
	}
	if cerr != nil {
		if !errors.Is(cerr, ErrWrite) {
			cerr = fmt.Errorf("%w: %v", ErrWrite, cerr)
		}
		return Archive{}, cerr
	}

	if err := file.Close(); err != nil {
		return Archive{}, fmt.Errorf("%w: close %q: %v", ErrWrite, part, err)
	}
	info, err := os.Stat(part)
	if err != nil {
		return Archive{}, fmt.Errorf("%w: stat %q: %v", ErrWrite, part, err)
	}
	if err := w.publish(part, final); err != nil {
		return Archive{}, err
	}
	committed = true
	syncDir(filepath.Dir(final))

	return Archive{Path: final, Size: info.Size(), Compressor: w.Compressor.Name()}, nil
}

// publish moves part to final without replacing an existing archive.
// A hard link fails atomically when final exists; filesystems without
// hard links fall back to a checked rename.
func (w *Writer) publish(part, final string) error {
	err := os.Link(part, final)
	switch {
	case err == nil:
		if err := os.Remove(part); err != nil {
			w.Logger.Warn("failed to remove staged archive", "path", part, "error", err.Error())
		}
		return nil
	case errors.Is(err, os.ErrExist):
		return fmt.Errorf("%w: %q: %w", ErrWrite, final, ErrExists)
	}

	if _, err := os.Lstat(final); err == nil {
		return fmt.Errorf("%w: %q: %w", ErrWrite, final, ErrExists)
	}
	if err := os.Rename(part, final); err != nil {
		return fmt.Errorf("%w: rename %q: %v", ErrWrite, part, err)
	}
	return nil
}

// consume compresses everything read from r into file and flushes it to disk.
// Failures on the writing side are wrapped in ErrWrite; an error read from r
// is the producer's and is returned unchanged.
func (w *Writer) consume(r io.Reader, file *os.File, entry string) error {
	cw, err := w.Compressor.NewWriter(file, entry)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	dst := &recordingWriter{w: cw}
	if _, err := io.Copy(dst, r); err != nil {
		_ = cw.Close()
		if dst.err != nil {
			return fmt.Errorf("%w: %v", ErrWrite, dst.err)
		}
		return err
	}
	if err := cw.Close(); err != nil {
		return fmt.Errorf("%w: flush compressor: %v", ErrWrite, err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("%w: sync: %v", ErrWrite, err)
	}
	return nil
}

// recordingWriter remembers the first write error.
type recordingWriter struct {
	w   io.Writer
	err error
}

func (r *recordingWriter) Write(p []byte) (int, error) {
	n, err := r.w.Write(p)
	if err != nil && r.err == nil {
		r.err = err
	}
	return n, err
}

// syncDir makes a rename durable. Errors are ignored; not every filesystem supports it.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
