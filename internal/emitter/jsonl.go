// Package emitter writes definition records as JSON Lines.
package emitter

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mvp-joe/defindex/internal/indexer"
)

// Stdout is the output path that selects standard output.
const Stdout = "-"

// JSONLWriter appends one JSON object per record to an output file.
// It implements indexer.Sink.
type JSONLWriter struct {
	path   string
	closer io.Closer
	buf    *bufio.Writer
	enc    *json.Encoder
}

// OpenJSONL opens path for appending, creating it if needed. Existing
// content is never truncated. Stdout writes to standard output.
func OpenJSONL(path string) (*JSONLWriter, error) {
	if path == Stdout {
		return NewJSONLWriter(os.Stdout), nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open output file: %w", err)
	}

	w := NewJSONLWriter(f)
	w.path = path
	w.closer = f
	return w, nil
}

// NewJSONLWriter writes records to out. Close flushes but does not close
// out.
func NewJSONLWriter(out io.Writer) *JSONLWriter {
	buf := bufio.NewWriter(out)
	enc := json.NewEncoder(buf)
	// Template arguments and operators must stay readable: < > & unescaped.
	enc.SetEscapeHTML(false)
	return &JSONLWriter{path: Stdout, buf: buf, enc: enc}
}

// Path returns the output path, or Stdout.
func (w *JSONLWriter) Path() string {
	return w.path
}

// Emit buffers one record line.
func (w *JSONLWriter) Emit(rec indexer.Record) error {
	if err := w.enc.Encode(rec); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}

// Flush writes buffered records to the output.
func (w *JSONLWriter) Flush() error {
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush output: %w", err)
	}
	return nil
}

// Close flushes and releases the output file.
func (w *JSONLWriter) Close() error {
	flushErr := w.Flush()
	if w.closer == nil {
		return flushErr
	}
	if err := w.closer.Close(); err != nil && flushErr == nil {
		return fmt.Errorf("failed to close output file: %w", err)
	}
	return flushErr
}
