// Package syncengine keeps a bound data file in step with the application:
// it recovers the binding on startup, verifies permission before use, and
// funnels every write through a single ordered queue.
//
// Failures that a user can fix (revoked permission, moved file, failed write)
// demote the engine to Pending and are delivered on the error channel. An
// environment that cannot bind at all is Unsupported for the whole session.
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/starford/tasklet/internal/capability"
	"github.com/starford/tasklet/internal/permission"
	"github.com/starford/tasklet/internal/storage"
)

// Gate is the permission gate used before every access.
type Gate interface {
	Check(ctx context.Context, h capability.Handle, mode permission.Mode) permission.State
	Request(ctx context.Context, h capability.Handle, mode permission.Mode) (permission.State, error)
	Revoke(h capability.Handle)
}

// Documents resolves handles and moves full document text.
type Documents interface {
	Resolve(h capability.Handle) (storage.File, error)
	ReadAll(f storage.File) (string, error)
	WriteAll(f storage.File, text string) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithPicker sets the picker used by RequestAccess.
func WithPicker(p Picker) Option {
	return func(e *Engine) { e.picker = p }
}

// WithSupported marks whether this environment can bind data files at all.
func WithSupported(ok bool) Option {
	return func(e *Engine) { e.supported = ok }
}

// WithSlot sets the capability slot the binding is stored under.
func WithSlot(slot string) Option {
	return func(e *Engine) {
		if slot != "" {
			e.slot = slot
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// Engine is the sync status machine and write queue.
type Engine struct {
	caps      capability.Store
	gate      Gate
	docs      Documents
	picker    Picker
	supported bool
	slot      string
	logger    *slog.Logger

	obs   *observer
	queue *taskQueue

	mu          sync.Mutex
	handle      capability.Handle
	file        storage.File
	bound       bool
	gen         uint64
	last        capability.Handle
	initStarted bool
	requesting  bool

	stop      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// New creates an engine and starts its write worker.
func New(caps capability.Store, gate Gate, docs Documents, opts ...Option) *Engine {
	e := &Engine{
		caps:      caps,
		gate:      gate,
		docs:      docs,
		supported: true,
		slot:      capability.DefaultSlot,
		logger:    slog.Default(),
		obs:       newObserver(),
		queue:     newTaskQueue(),
		stop:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	go e.run()
	return e
}

// Close stops the write worker. Writes queued but not started fail with
// ErrClosed; a write already in progress completes first.
func (e *Engine) Close() {
	e.closeOnce.Do(func() { close(e.stop) })
	<-e.stopped
}

// Status returns the current status.
func (e *Engine) Status() Status {
	s, _ := e.obs.current()
	return s
}

// LastError returns the most recent reported error, cleared on Ready.
func (e *Engine) LastError() error {
	_, err := e.obs.current()
	return err
}

// Handle returns the handle bound for this session.
func (e *Engine) Handle() (capability.Handle, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handle, e.bound
}

// WaitSettled blocks until the engine leaves Uninitialized and Requesting.
func (e *Engine) WaitSettled(ctx context.Context) (Status, error) {
	return e.obs.wait(ctx, Status.Settled)
}

// OnStatusChange subscribes fn to status transitions. fn is called once
// immediately with the current status.
func (e *Engine) OnStatusChange(fn func(Status)) (unsubscribe func()) {
	return e.obs.onStatus(fn)
}

// OnReady subscribes fn to transitions into Ready. fn is called immediately
// when the engine is already ready.
func (e *Engine) OnReady(fn func()) (unsubscribe func()) {
	return e.obs.onReady(fn)
}

// OnError subscribes fn to reported errors. fn is called immediately with
// the most recent error, if any.
func (e *Engine) OnError(fn func(error)) (unsubscribe func()) {
	return e.obs.onError(fn)
}

// Init recovers the binding from a previous session. It only acts on an
// uninitialized engine. Recoverable failures are reported on the error
// channel, not returned; the returned error is non-nil only when ctx ends.
func (e *Engine) Init(ctx context.Context) error {
	e.mu.Lock()
	if e.initStarted || e.Status() != Uninitialized {
		e.mu.Unlock()
		return nil
	}
	e.initStarted = true
	e.mu.Unlock()

	if !e.supported {
		e.logger.Info("sync: environment unsupported, changes stay in memory")
		e.setStatus(Unsupported)
		return nil
	}

	h, ok := e.caps.Get(ctx, e.slot)
	if !ok {
		e.setStatus(Pending)
		return nil
	}

	f, err := e.verify(ctx, h)
	if err != nil {
		e.setLast(h)
		if ctxErr := ctx.Err(); ctxErr != nil {
			e.setStatus(Pending)
			return ctxErr
		}
		e.caps.Remove(context.WithoutCancel(ctx), e.slot)
		e.report(err)
		e.setStatus(Pending)
		return nil
	}

	e.bind(h, f)
	e.setStatus(Ready)
	return nil
}

// RequestAccess runs the configured picker to bind a new data file.
func (e *Engine) RequestAccess(ctx context.Context) error {
	return e.RequestAccessWith(ctx, e.picker)
}

// RequestAccessWith binds the data file chosen by picker. A user
// cancellation restores the previous status and returns nil.
func (e *Engine) RequestAccessWith(ctx context.Context, picker Picker) error {
	_, err := e.Acquire(ctx, picker)
	return err
}

// Reauthorize re-runs the consent flow for the most recent binding, e.g.
// after permission was lost mid-session.
func (e *Engine) Reauthorize(ctx context.Context) error {
	e.mu.Lock()
	h := e.last
	e.mu.Unlock()
	if h.IsZero() {
		stored, ok := e.caps.Get(ctx, e.slot)
		if !ok {
			return ErrNotReady
		}
		h = stored
	}
	return e.RequestAccessWith(ctx, StaticPicker(h))
}

// Acquire runs the access flow with picker, or the configured picker when
// nil, and reports whether a new binding was made. bound is false with a nil
// error when the user canceled; the previous binding and status are kept.
func (e *Engine) Acquire(ctx context.Context, picker Picker) (bound bool, err error) {
	if picker == nil {
		picker = e.picker
	}
	if !e.supported || picker == nil {
		return false, ErrUnsupported
	}

	e.mu.Lock()
	if e.requesting {
		e.mu.Unlock()
		return false, ErrBusy
	}
	e.requesting = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.requesting = false
		e.mu.Unlock()
	}()

	prev := e.Status()
	e.setStatus(Requesting)

	h, err := picker.Pick(ctx)
	if errors.Is(err, ErrCanceled) {
		e.logger.Info("sync: access request canceled")
		e.setStatus(prev)
		return false, nil
	}
	if err == nil {
		if verr := h.Validate(); verr != nil {
			err = fmt.Errorf("invalid selection: %w", verr)
		}
	}
	if err != nil {
		return false, e.failAccess(&OpError{Op: "pick", Err: err})
	}

	f, err := e.verify(ctx, h)
	if err != nil {
		e.setLast(h)
		return false, e.failAccess(err)
	}

	if err := e.caps.Put(ctx, e.slot, h); err != nil {
		e.logger.Warn("sync: binding will not be remembered",
			slog.String("target", h.Name()),
			slog.String("error", err.Error()))
		e.report(&OpError{Op: "remember", Target: h.Name(), Err: err})
	}

	e.bind(h, f)
	e.setStatus(Ready)
	return true, nil
}

// Forget drops the binding for this and future sessions.
func (e *Engine) Forget(ctx context.Context) {
	e.mu.Lock()
	h := e.handle
	if h.IsZero() {
		h = e.last
	}
	e.handle, e.file, e.bound, e.last = capability.Handle{}, storage.File{}, false, capability.Handle{}
	e.gen++
	e.mu.Unlock()

	if !h.IsZero() {
		e.gate.Revoke(h)
	}
	e.caps.Remove(ctx, e.slot)
	if e.Status() != Unsupported {
		e.setStatus(Pending)
	}
	e.logger.Info("sync: binding forgotten")
}

// Read returns the text of the bound data file. ok is false when the file
// is empty or does not exist yet.
func (e *Engine) Read(ctx context.Context) (text string, ok bool, err error) {
	e.mu.Lock()
	h, f, bound := e.handle, e.file, e.bound
	e.mu.Unlock()
	if !bound {
		return "", false, ErrNotReady
	}

	if e.gate.Check(ctx, h, permission.Read) != permission.Granted {
		err := &OpError{Op: "read", Target: h.Name(), Err: fmt.Errorf("%w: %w", ErrNotReady, ErrPermissionDenied)}
		e.demote(err)
		return "", false, err
	}

	text, err = e.docs.ReadAll(f)
	if err != nil {
		opErr := &OpError{Op: "read", Target: f.Name(), Err: err}
		e.demote(opErr)
		return "", false, opErr
	}
	if strings.TrimSpace(text) == "" {
		return "", false, nil
	}
	return text, true, nil
}

// Enqueue schedules text to replace the bound data file and returns a
// channel that receives the outcome. Writes complete in the order they were
// enqueued. Outside Ready the channel already holds ErrNotReady. A write
// still queued when the binding changes fails with ErrNotReady instead of
// reaching the new file.
func (e *Engine) Enqueue(text string) <-chan error {
	done := make(chan error, 1)
	e.mu.Lock()
	gen := e.gen
	e.mu.Unlock()
	switch e.Status() {
	case Ready:
	case Unsupported:
		done <- fmt.Errorf("%w: %w", ErrNotReady, ErrUnsupported)
		return done
	default:
		done <- ErrNotReady
		return done
	}
	if !e.queue.push(&task{text: text, gen: gen, done: done}) {
		done <- ErrClosed
	}
	return done
}

// Write enqueues text and waits for it to be written. Cancelling ctx stops
// the wait, not the write.
func (e *Engine) Write(ctx context.Context, text string) error {
	select {
	case err := <-e.Enqueue(text):
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush waits until every write enqueued before the call has finished.
func (e *Engine) Flush(ctx context.Context) error {
	done := make(chan error, 1)
	if !e.queue.push(&task{barrier: true, done: done}) {
		return ErrClosed
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) run() {
	defer close(e.stopped)
	for {
		select {
		case <-e.stop:
			for _, t := range e.queue.close() {
				t.done <- ErrClosed
			}
			return
		case <-e.queue.wake:
		}
		for !e.stopping() {
			t, ok := e.queue.pop()
			if !ok {
				break
			}
			t.done <- e.process(t)
		}
	}
}

func (e *Engine) stopping() bool {
	select {
	case <-e.stop:
		return true
	default:
		return false
	}
}

func (e *Engine) process(t *task) error {
	if t.barrier {
		return nil
	}

	e.mu.Lock()
	h, f, bound, gen := e.handle, e.file, e.bound, e.gen
	e.mu.Unlock()
	if !bound || e.Status() != Ready {
		return ErrNotReady
	}
	if t.gen != gen {
		return fmt.Errorf("%w: issued for a previous binding", ErrNotReady)
	}

	if e.gate.Check(context.Background(), h, permission.ReadWrite) != permission.Granted {
		err := &OpError{Op: "write", Target: h.Name(), Err: fmt.Errorf("%w: %w", ErrNotReady, ErrPermissionDenied)}
		e.demote(err)
		return err
	}

	start := time.Now()
	if err := e.docs.WriteAll(f, t.text); err != nil {
		opErr := &OpError{Op: "write", Target: f.Name(), Err: err}
		if errors.Is(err, storage.ErrUnreachable) {
			e.demote(opErr)
		} else {
			e.report(opErr)
		}
		return opErr
	}
	e.logger.Debug("sync: document written",
		slog.String("target", f.Name()),
		slog.Int("bytes", len(t.text)),
		slog.Duration("took", time.Since(start)))
	return nil
}

// verify authorizes h for read-write use, prompting when the session holds
// no grant, and resolves it to a readable file.
func (e *Engine) verify(ctx context.Context, h capability.Handle) (storage.File, error) {
	state := e.gate.Check(ctx, h, permission.ReadWrite)
	if state != permission.Granted {
		var err error
		state, err = e.gate.Request(ctx, h, permission.ReadWrite)
		if err != nil {
			return storage.File{}, &OpError{Op: "authorize", Target: h.Name(), Err: fmt.Errorf("%w: %w", ErrPermissionDenied, err)}
		}
	}
	if state != permission.Granted {
		return storage.File{}, &OpError{Op: "authorize", Target: h.Name(), Err: ErrPermissionDenied}
	}

	f, err := e.docs.Resolve(h)
	if err != nil {
		return storage.File{}, &OpError{Op: "resolve", Target: h.Name(), Err: err}
	}
	if _, err := e.docs.ReadAll(f); err != nil {
		return storage.File{}, &OpError{Op: "read", Target: h.Name(), Err: err}
	}
	return f, nil
}

func (e *Engine) bind(h capability.Handle, f storage.File) {
	e.mu.Lock()
	e.handle, e.file, e.bound, e.last = h, f, true, h
	e.gen++
	e.mu.Unlock()
	e.logger.Info("sync: bound", slog.String("target", h.Name()), slog.String("kind", string(h.Kind)))
}

func (e *Engine) setLast(h capability.Handle) {
	e.mu.Lock()
	e.last = h
	e.mu.Unlock()
}

func (e *Engine) failAccess(err error) error {
	e.mu.Lock()
	e.handle, e.file, e.bound = capability.Handle{}, storage.File{}, false
	e.gen++
	e.mu.Unlock()
	e.report(err)
	e.setStatus(Pending)
	return err
}

// demote drops the session binding after a recoverable failure. The stored
// capability is kept so the user can re-authorize it.
func (e *Engine) demote(err error) {
	e.mu.Lock()
	e.handle, e.file, e.bound = capability.Handle{}, storage.File{}, false
	e.gen++
	e.mu.Unlock()
	e.report(err)
	if e.Status() != Unsupported {
		e.setStatus(Pending)
	}
}

func (e *Engine) report(err error) {
	e.logger.Warn("sync: error", slog.String("error", err.Error()))
	e.obs.fail(err)
}

func (e *Engine) setStatus(s Status) {
	prev := e.Status()
	if prev != s {
		e.logger.Info("sync: status changed", slog.String("from", prev.String()), slog.String("to", s.String()))
	}
	e.obs.set(s)
}
