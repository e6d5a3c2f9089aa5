package transcript

import "strings"

// Accumulator merges message_chunk frames into completed messages. Chunks
// for different ids may interleave arbitrarily; each id accumulates
// independently and yields only when its final chunk arrives. A stream
// whose final chunk never arrives stays buffered and inert until Reset.
type Accumulator struct {
	buffers map[string]*strings.Builder
}

func NewAccumulator() *Accumulator {
	return &Accumulator{buffers: make(map[string]*strings.Builder)}
}

// Add appends one chunk. When final is true the accumulated content is
// returned with done=true and the buffer for that id is released.
func (a *Accumulator) Add(id, chunk string, final bool) (content string, done bool) {
	if a == nil {
		return "", false
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", false
	}
	buf, ok := a.buffers[id]
	if !ok {
		buf = &strings.Builder{}
		a.buffers[id] = buf
	}
	buf.WriteString(chunk)
	if !final {
		return "", false
	}
	delete(a.buffers, id)
	return buf.String(), true
}

// Pending reports how many streams are still accumulating.
func (a *Accumulator) Pending() int {
	if a == nil {
		return 0
	}
	return len(a.buffers)
}

// Reset drops all partial streams. Session switch relies on this so stale
// partial content from the old session can never complete into the new one.
func (a *Accumulator) Reset() {
	if a == nil {
		return
	}
	a.buffers = make(map[string]*strings.Builder)
}
