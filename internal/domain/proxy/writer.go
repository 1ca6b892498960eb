package proxy

import (
	"io"
	"sync"
)

// FramedWriter serializes writes of newline-delimited JSON-RPC frames to a
// shared io.Writer. Both legs of a connection can write to the same client
// transport (ClientLeg writes validation/rate-limit error responses,
// ServerLeg writes downstream responses), so writes must not interleave.
type FramedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewFramedWriter wraps w for synchronized, newline-framed writes.
func NewFramedWriter(w io.Writer) *FramedWriter {
	return &FramedWriter{w: w}
}

// WriteMessage writes raw followed by a newline, atomically with respect to
// other WriteMessage calls on the same FramedWriter.
func (f *FramedWriter) WriteMessage(raw []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := f.w.Write(raw); err != nil {
		return err
	}
	_, err := f.w.Write([]byte("\n"))
	return err
}
