package events

import "sync"

// Recorder keeps a bounded in-memory tail of emitted events so the RPC
// surface can expose recent settlement activity without an external
// indexer.
type Recorder struct {
	mu     sync.RWMutex
	limit  int
	events []Event
}

// NewRecorder creates a recorder that retains at most limit events. A
// non-positive limit falls back to 128.
func NewRecorder(limit int) *Recorder {
	if limit <= 0 {
		limit = 128
	}
	return &Recorder{limit: limit}
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt Event) {
	if r == nil || evt == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	if len(r.events) > r.limit {
		r.events = r.events[len(r.events)-r.limit:]
	}
}

// Events returns a snapshot of the retained events in emission order.
func (r *Recorder) Events() []Event {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
