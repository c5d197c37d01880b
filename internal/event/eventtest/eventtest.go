// Package eventtest provides recording collaborators for tests of the event
// engine.
package eventtest

import (
	"sync"

	"github.com/jw6ventures/calgrid/internal/event"
)

// Renderer records the last segments drawn per event id.
type Renderer struct {
	mu     sync.Mutex
	Drawn  map[string][]event.Segment
	Draws  int
	Erased []string
}

func NewRenderer() *Renderer {
	return &Renderer{Drawn: make(map[string][]event.Segment)}
}

func (r *Renderer) Draw(id string, segments []event.Segment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Drawn[id] = segments
	r.Draws++
}

func (r *Renderer) Erase(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.Drawn, id)
	r.Erased = append(r.Erased, id)
}

// Segments returns what is currently drawn for id.
func (r *Renderer) Segments(id string) []event.Segment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Drawn[id]
}

// Call is one persistence request seen by Syncer.
type Call struct {
	Op     string // create, update or delete
	ID     string
	Record event.Record
}

// Syncer records persistence requests in order.
type Syncer struct {
	mu    sync.Mutex
	Calls []Call
}

func (s *Syncer) Create(rec event.Record) { s.add(Call{Op: "create", ID: rec.ID, Record: rec}) }
func (s *Syncer) Update(rec event.Record) { s.add(Call{Op: "update", ID: rec.ID, Record: rec}) }
func (s *Syncer) Delete(id string)        { s.add(Call{Op: "delete", ID: id}) }

func (s *Syncer) add(c Call) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, c)
}

// Count returns how many calls of op were made.
func (s *Syncer) Count(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.Calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Len returns the total number of calls.
func (s *Syncer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Calls)
}

// Last returns the most recent call.
func (s *Syncer) Last() (Call, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Calls) == 0 {
		return Call{}, false
	}
	return s.Calls[len(s.Calls)-1], true
}
