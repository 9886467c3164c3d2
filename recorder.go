package tev

// Recorder captures enabled trace events, typically into a buffer or file.
// The category argument is the canonical group key for the event's category
// set: sorted, de-duplicated, and comma-joined. The facade computes it once
// per distinct set and caches it.
//
// Recorder methods are on the emit hot path and must not block.
type Recorder interface {
	EmitBegin(name string, id uint64, category string, args map[string]any)
	EmitEnd(name string, id uint64, category string, args map[string]any)
	EmitInstant(name string, id uint64, category string, args map[string]any)
	EmitCount(name string, id uint64, category string, value Value)
}

// MultiRecorder fans each operation out to every recorder in order.
type MultiRecorder []Recorder

var _ Recorder = (MultiRecorder)(nil)

func (mr MultiRecorder) EmitBegin(name string, id uint64, category string, args map[string]any) {
	for _, r := range mr {
		r.EmitBegin(name, id, category, args)
	}
}

func (mr MultiRecorder) EmitEnd(name string, id uint64, category string, args map[string]any) {
	for _, r := range mr {
		r.EmitEnd(name, id, category, args)
	}
}

func (mr MultiRecorder) EmitInstant(name string, id uint64, category string, args map[string]any) {
	for _, r := range mr {
		r.EmitInstant(name, id, category, args)
	}
}

func (mr MultiRecorder) EmitCount(name string, id uint64, category string, value Value) {
	for _, r := range mr {
		r.EmitCount(name, id, category, value)
	}
}

type nopRecorder struct{}

var _ Recorder = nopRecorder{}

func (nopRecorder) EmitBegin(name string, id uint64, category string, args map[string]any)   {}
func (nopRecorder) EmitEnd(name string, id uint64, category string, args map[string]any)     {}
func (nopRecorder) EmitInstant(name string, id uint64, category string, args map[string]any) {}
func (nopRecorder) EmitCount(name string, id uint64, category string, value Value)           {}
