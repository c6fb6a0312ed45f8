package simulation

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
)

// Writer emits one JSON result per line. It is not safe for concurrent use.
type Writer struct {
	w   *bufio.Writer
	e   *jx.Encoder
	n   int
	cls []io.Closer
}

// NewWriter writes JSON lines to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w), e: jx.GetEncoder()}
}

// CreateFile creates path and returns a Writer for it. Output is gzipped
// when the name ends in .gz. Close must be called to flush.
func CreateFile(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "create %s", path)
	}
	if !strings.HasSuffix(path, ".gz") {
		w := NewWriter(f)
		w.cls = []io.Closer{f}
		return w, nil
	}
	gz := pgzip.NewWriter(f)
	w := NewWriter(gz)
	w.cls = []io.Closer{gz, f}
	return w, nil
}

// Write appends r as a line.
func (w *Writer) Write(r Result) error {
	w.e.Reset()
	r.Encode(w.e)
	if _, err := w.w.Write(w.e.Bytes()); err != nil {
		return errors.Wrap(err, "write result")
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return errors.Wrap(err, "write newline")
	}
	w.n++
	return nil
}

// WriteAll writes every result in order.
func (w *Writer) WriteAll(results []Result) error {
	for i := range results {
		if err := w.Write(results[i]); err != nil {
			return errors.Wrapf(err, "result %q", results[i].ID)
		}
	}
	return nil
}

// Count is the number of results written so far.
func (w *Writer) Count() int { return w.n }

// Flush writes buffered data to the underlying writer.
func (w *Writer) Flush() error {
	return w.w.Flush()
}

// Close flushes and closes anything opened by CreateFile.
func (w *Writer) Close() error {
	err := w.Flush()
	for _, c := range w.cls {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	w.cls = nil
	if w.e != nil {
		jx.PutEncoder(w.e)
		w.e = nil
	}
	return err
}
