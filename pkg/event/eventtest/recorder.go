// Package eventtest provides an in-memory event.Emitter for tests.
package eventtest

import (
	"sync"

	"github.com/Aman-Thakur002/Bantr/pkg/event"
)

// Target describes where an event was sent.
type Target int

// Delivery targets.
const (
	TargetRoom Target = iota
	TargetAll
	TargetConn
)

// Emission is one recorded call.
type Emission struct {
	Target     Target
	Room       string
	ConnID     string
	ExceptConn string
	Event      event.Outbound
}

// Recorder records every emission. It is safe for concurrent use.
type Recorder struct {
	mu        sync.Mutex
	emissions []Emission
}

// ToRoom implements event.Emitter.
func (r *Recorder) ToRoom(room string, ev event.Outbound, exceptConn string) {
	r.add(Emission{Target: TargetRoom, Room: room, ExceptConn: exceptConn, Event: ev})
}

// ToAll implements event.Emitter.
func (r *Recorder) ToAll(ev event.Outbound, exceptConn string) {
	r.add(Emission{Target: TargetAll, ExceptConn: exceptConn, Event: ev})
}

// ToConn implements event.Emitter.
func (r *Recorder) ToConn(connID string, ev event.Outbound) {
	r.add(Emission{Target: TargetConn, ConnID: connID, Event: ev})
}

func (r *Recorder) add(e Emission) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emissions = append(r.emissions, e)
}

// All returns a copy of every emission in order.
func (r *Recorder) All() []Emission {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Emission, len(r.emissions))
	copy(out, r.emissions)
	return out
}

// Named returns the emissions of one event name.
func (r *Recorder) Named(name string) []Emission {
	var out []Emission
	for _, e := range r.All() {
		if e.Event.Event == name {
			out = append(out, e)
		}
	}
	return out
}

// Reset clears the recording.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emissions = nil
}

// Verify interface compliance.
var _ event.Emitter = (*Recorder)(nil)
