// Single-writer state store.

package state

import (
	"sync"
	"sync/atomic"
)

// dispatchBuffer bounds how far dispatchers can run ahead of the writer.
const dispatchBuffer = 64

// envelope carries an action into the writer, or a barrier sync.
type envelope struct {
	action Action
	sync   chan struct{}
}

// Store serializes state transitions: all actions funnel through one
// writer goroutine, so reducer application order matches dispatch order.
// Snapshots are lock-free reads of the latest published state.
type Store struct {
	snapshot atomic.Pointer[AppState]
	inbox    chan envelope

	closeOnce sync.Once
	done      chan struct{}
}

// NewStore starts the writer goroutine with the initial state.
func NewStore() *Store {
	s := &Store{
		inbox: make(chan envelope, dispatchBuffer),
		done:  make(chan struct{}),
	}
	initial := NewAppState()
	s.snapshot.Store(&initial)
	go s.run()
	return s
}

func (s *Store) run() {
	defer close(s.done)
	for env := range s.inbox {
		if env.sync != nil {
			close(env.sync)
			continue
		}
		next := Reduce(*s.snapshot.Load(), env.action)
		s.snapshot.Store(&next)
	}
}

// Dispatch queues an action. Actions from a single goroutine are applied
// in dispatch order. Blocks only if the writer falls far behind.
func (s *Store) Dispatch(action Action) {
	s.inbox <- envelope{action: action}
}

// Snapshot returns the latest published state. The value must be treated
// as read-only.
func (s *Store) Snapshot() AppState {
	return *s.snapshot.Load()
}

// Barrier blocks until every previously dispatched action has been
// applied. Useful before reading a snapshot that must observe earlier
// dispatches.
func (s *Store) Barrier() {
	sync := make(chan struct{})
	s.inbox <- envelope{sync: sync}
	<-sync
}

// Close stops the writer after draining queued actions. Dispatch must not
// be called after Close.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		close(s.inbox)
	})
	<-s.done
}
