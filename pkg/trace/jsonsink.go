package trace

import (
	"fmt"
	"io"
	"sync"

	"github.com/coachpo/rkh/internal/pool"
)

// JSONSink writes each observed Record as a line-delimited JSON document to
// w, using a pooled encoder buffer; the encoder's WriteTo still constructs a
// new json.Encoder for each record.
type JSONSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewJSONSink constructs a sink writing newline-delimited JSON to w.
func NewJSONSink(w io.Writer) *JSONSink {
	return &JSONSink{w: w}
}

// Observe implements Sink.
func (s *JSONSink) Observe(r Record) {
	enc := pool.AcquireJSONEncoder()
	defer pool.ReleaseJSONEncoder(enc)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := enc.WriteTo(s.w, r); err != nil {
		return
	}
	fmt.Fprintln(s.w)
}

var _ Sink = (*JSONSink)(nil)
