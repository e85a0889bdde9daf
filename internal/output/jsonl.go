package output

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// JSONLinesWriter writes one JSON document per line. It is safe for
// concurrent use by multiple workers.
type JSONLinesWriter struct {
	mu    sync.Mutex
	buf   *bufio.Writer
	enc   *json.Encoder
	count int
}

// NewJSONLinesWriter creates a writer over w. Call Flush when done.
func NewJSONLinesWriter(w io.Writer) *JSONLinesWriter {
	buf := bufio.NewWriter(w)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	return &JSONLinesWriter{buf: buf, enc: enc}
}

// Write encodes v as a single line
func (w *JSONLinesWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.enc.Encode(v); err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	w.count++
	return nil
}

// Flush writes any buffered lines to the underlying writer
func (w *JSONLinesWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Flush()
}

// Count returns the number of lines written
func (w *JSONLinesWriter) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}
