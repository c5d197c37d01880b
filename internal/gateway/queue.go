package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jw6ventures/calgrid/internal/event"
	"github.com/jw6ventures/calgrid/internal/log"
	"github.com/jw6ventures/calgrid/internal/metrics"
)

// ErrQueueClosed is reported for work submitted after Close.
var ErrQueueClosed = errors.New("sync queue closed")

var _ event.Syncer = (*Queue)(nil)

type opKind int

const (
	opCreate opKind = iota
	opUpdate
	opDelete
)

func (k opKind) String() string {
	switch k {
	case opCreate:
		return "create"
	case opUpdate:
		return "update"
	default:
		return "delete"
	}
}

type op struct {
	kind opKind
	rec  event.Record
}

// lane holds the calls for one event id. At most one of them is in flight.
type lane struct {
	pending  []op
	inflight bool
}

// Queue implements event.Syncer on top of an event.Store.
//
// Calls for the same event id run one at a time in submission order. Queued
// updates that have not started yet collapse into the newest one, so the last
// local state is always the last one written. A delete drops the queued
// updates of its event. Calls for different ids run concurrently. Failed calls
// are logged and counted, never retried.
type Queue struct {
	store   event.Store
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	idle   *sync.Cond // signalled on mu when a lane drains
	lanes  map[string]*lane
	closed bool

	// OnError, when set, is called after a failed call.
	OnError func(kind string, id string, err error)
}

// NewQueue starts a queue writing to store. Each call gets timeout.
func NewQueue(store event.Store, timeout time.Duration) *Queue {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		store:   store,
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
		lanes:   make(map[string]*lane),
	}
	q.idle = sync.NewCond(&q.mu)
	return q
}

func (q *Queue) Create(rec event.Record) { q.submit(op{kind: opCreate, rec: rec}) }
func (q *Queue) Update(rec event.Record) { q.submit(op{kind: opUpdate, rec: rec}) }
func (q *Queue) Delete(id string)        { q.submit(op{kind: opDelete, rec: event.Record{ID: id}}) }

func (q *Queue) submit(o op) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		log.Error("dropping event sync", ErrQueueClosed, "op", o.kind, "id", o.rec.ID)
		return
	}

	l, running := q.lanes[o.rec.ID]
	if !running {
		l = &lane{}
		q.lanes[o.rec.ID] = l
	}
	l.add(o)

	if !running {
		q.wg.Add(1)
		go q.drain(o.rec.ID, l)
	}
}

func (l *lane) add(o op) {
	switch o.kind {
	case opUpdate:
		if n := len(l.pending); n > 0 {
			last := &l.pending[n-1]
			if last.kind == opCreate || last.kind == opUpdate {
				// The queued call has not started, so it can carry the newer record.
				last.rec = o.rec
				metrics.ObserveEventSyncCoalesced()
				return
			}
		}
	case opDelete:
		kept := l.pending[:0]
		for _, p := range l.pending {
			if p.kind != opUpdate {
				kept = append(kept, p)
			}
		}
		l.pending = kept
	}
	l.pending = append(l.pending, o)
}

func (q *Queue) drain(id string, l *lane) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		l.inflight = false
		if len(l.pending) == 0 {
			delete(q.lanes, id)
			q.idle.Broadcast()
			q.mu.Unlock()
			return
		}
		next := l.pending[0]
		l.pending = l.pending[1:]
		l.inflight = true
		q.mu.Unlock()

		q.run(next)
	}
}

func (q *Queue) run(o op) {
	ctx, cancel := context.WithTimeout(q.ctx, q.timeout)
	defer cancel()

	var err error
	switch o.kind {
	case opCreate:
		err = q.store.Create(ctx, o.rec)
	case opUpdate:
		err = q.store.Update(ctx, o.rec)
	case opDelete:
		err = q.store.Delete(ctx, o.rec.ID)
	}
	metrics.ObserveEventSync(o.kind.String(), err)
	if err != nil {
		log.Error("event sync failed", err, "op", o.kind, "id", o.rec.ID)
		if q.OnError != nil {
			q.OnError(o.kind.String(), o.rec.ID, err)
		}
		return
	}
	log.Debug("event synced", "op", o.kind, "id", o.rec.ID)
}

// Pending reports the number of calls queued or in flight for id.
func (q *Queue) Pending(id string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	l, ok := q.lanes[id]
	if !ok {
		return 0
	}
	n := len(l.pending)
	if l.inflight {
		n++
	}
	return n
}

// Flush waits until no call is queued or in flight. It may be called while
// other goroutines keep submitting; it then also waits for their work.
func (q *Queue) Flush() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.lanes) > 0 {
		q.idle.Wait()
	}
}

// Close rejects new work and waits for queued calls to finish. When ctx ends
// first, in-flight calls are cancelled.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return ctx.Err()
	}
}
