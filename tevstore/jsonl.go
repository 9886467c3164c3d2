package tevstore

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/tevkit/tev"
)

// JSONWriter appends events to an io.Writer as one JSON object per line.
type JSONWriter struct {
	mtx sync.Mutex
	enc *json.Encoder
}

var _ tev.EventWriter = (*JSONWriter)(nil)

// NewJSONWriter returns a JSONWriter targeting w. The caller retains
// ownership of w and is responsible for closing it after the owning agent
// has been closed.
func NewJSONWriter(w io.Writer) *JSONWriter {
	return &JSONWriter{
		enc: json.NewEncoder(w),
	}
}

// WriteEvents implements tev.EventWriter.
func (jw *JSONWriter) WriteEvents(events []*tev.Event) error {
	jw.mtx.Lock()
	defer jw.mtx.Unlock()

	for i, ev := range events {
		if err := jw.enc.Encode(ev); err != nil {
			return fmt.Errorf("encode event %d/%d: %w", i+1, len(events), err)
		}
	}
	return nil
}
