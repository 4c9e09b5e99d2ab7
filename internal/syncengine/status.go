package syncengine

import (
	"context"
	"slices"
	"sync"
)

// Status is the sync engine state.
type Status int

const (
	Uninitialized Status = iota
	Unsupported
	Pending
	Requesting
	Ready
)

func (s Status) String() string {
	switch s {
	case Unsupported:
		return "unsupported"
	case Pending:
		return "pending"
	case Requesting:
		return "requesting"
	case Ready:
		return "ready"
	default:
		return "uninitialized"
	}
}

// MarshalText renders the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Settled reports whether s is a state load can proceed from.
func (s Status) Settled() bool {
	return s != Uninitialized && s != Requesting
}

// observer holds the current status and last error and fans both out to
// subscribers. New subscribers get the most recent value replayed once.
type observer struct {
	mu       sync.Mutex
	status   Status
	lastErr  error
	changed  chan struct{}
	nextID   int
	statusFn map[int]func(Status)
	readyFn  map[int]func()
	errorFn  map[int]func(error)

	// dispatch serializes handler invocation so subscribers observe
	// transitions in the order they happened. Handlers run while it is
	// held and must not change engine state synchronously.
	dispatch sync.Mutex
}

func newObserver() *observer {
	return &observer{
		changed:  make(chan struct{}),
		statusFn: map[int]func(Status){},
		readyFn:  map[int]func(){},
		errorFn:  map[int]func(error){},
	}
}

func (o *observer) current() (Status, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status, o.lastErr
}

func (o *observer) set(s Status) {
	o.dispatch.Lock()
	defer o.dispatch.Unlock()

	o.mu.Lock()
	if o.status == s {
		o.mu.Unlock()
		return
	}
	o.status = s
	if s == Ready {
		o.lastErr = nil
	}
	close(o.changed)
	o.changed = make(chan struct{})
	statusFns := collect(o.statusFn)
	var readyFns []func()
	if s == Ready {
		readyFns = collect(o.readyFn)
	}
	o.mu.Unlock()

	for _, fn := range statusFns {
		fn(s)
	}
	for _, fn := range readyFns {
		fn()
	}
}

func (o *observer) fail(err error) {
	o.dispatch.Lock()
	defer o.dispatch.Unlock()

	o.mu.Lock()
	o.lastErr = err
	fns := collect(o.errorFn)
	o.mu.Unlock()

	for _, fn := range fns {
		fn(err)
	}
}

func (o *observer) onStatus(fn func(Status)) func() {
	o.dispatch.Lock()
	defer o.dispatch.Unlock()
	o.mu.Lock()
	id := o.add()
	o.statusFn[id] = fn
	s := o.status
	o.mu.Unlock()

	fn(s)
	return func() { o.remove(id) }
}

func (o *observer) onReady(fn func()) func() {
	o.dispatch.Lock()
	defer o.dispatch.Unlock()
	o.mu.Lock()
	id := o.add()
	o.readyFn[id] = fn
	ready := o.status == Ready
	o.mu.Unlock()

	if ready {
		fn()
	}
	return func() { o.remove(id) }
}

func (o *observer) onError(fn func(error)) func() {
	o.dispatch.Lock()
	defer o.dispatch.Unlock()
	o.mu.Lock()
	id := o.add()
	o.errorFn[id] = fn
	last := o.lastErr
	o.mu.Unlock()

	if last != nil {
		fn(last)
	}
	return func() { o.remove(id) }
}

// wait blocks until pred holds for the current status.
func (o *observer) wait(ctx context.Context, pred func(Status) bool) (Status, error) {
	for {
		o.mu.Lock()
		s, ch := o.status, o.changed
		o.mu.Unlock()
		if pred(s) {
			return s, nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return s, ctx.Err()
		}
	}
}

func (o *observer) add() int {
	o.nextID++
	return o.nextID
}

func (o *observer) remove(id int) {
	o.mu.Lock()
	delete(o.statusFn, id)
	delete(o.readyFn, id)
	delete(o.errorFn, id)
	o.mu.Unlock()
}

// collect returns handlers in subscription order.
func collect[F any](m map[int]F) []F {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]F, len(ids))
	for i, id := range ids {
		out[i] = m[id]
	}
	return out
}
