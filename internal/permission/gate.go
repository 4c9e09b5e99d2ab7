// Package permission decides whether a capability handle may be used right
// now and runs the user consent flow when it may not.
//
// Grants live only in process memory. A handle restored from a previous run
// always starts at NeedsPrompt, so a stale grant is never trusted.
package permission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/starford/tasklet/internal/capability"
)

// Mode is the kind of access being asked for.
type Mode int

const (
	Read Mode = iota
	ReadWrite
)

func (m Mode) String() string {
	if m == ReadWrite {
		return "readwrite"
	}
	return "read"
}

// State is the outcome of a permission check.
type State int

const (
	Denied State = iota
	Granted
	NeedsPrompt
)

func (s State) String() string {
	switch s {
	case Granted:
		return "granted"
	case NeedsPrompt:
		return "prompt"
	default:
		return "denied"
	}
}

// Prompter asks the user to authorize access to a handle.
type Prompter interface {
	Confirm(ctx context.Context, h capability.Handle, mode Mode) (bool, error)
}

// PrompterFunc adapts a function to the Prompter interface.
type PrompterFunc func(ctx context.Context, h capability.Handle, mode Mode) (bool, error)

func (f PrompterFunc) Confirm(ctx context.Context, h capability.Handle, mode Mode) (bool, error) {
	return f(ctx, h, mode)
}

// AutoGrant approves every request. Used by non-interactive servers where
// the operator authorized the binding through configuration.
var AutoGrant = PrompterFunc(func(context.Context, capability.Handle, Mode) (bool, error) { return true, nil })

// NeverGrant rejects every request.
var NeverGrant = PrompterFunc(func(context.Context, capability.Handle, Mode) (bool, error) { return false, nil })

// Gate tracks session grants for handles.
type Gate struct {
	prompter Prompter
	logger   *slog.Logger
	probe    func(path string, mode Mode) error

	mu      sync.Mutex
	grants  map[string]Mode
	revoked map[string]struct{}

	flight singleflight.Group
}

// NewGate creates a gate that consults prompter for consent.
func NewGate(prompter Prompter, logger *slog.Logger) *Gate {
	if prompter == nil {
		prompter = NeverGrant
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		prompter: prompter,
		logger:   logger,
		probe:    probeAccess,
		grants:   map[string]Mode{},
		revoked:  map[string]struct{}{},
	}
}

// Check reports whether h may be used for mode without asking the user.
func (g *Gate) Check(_ context.Context, h capability.Handle, mode Mode) State {
	if h.IsZero() {
		return Denied
	}
	if err := g.probe(probePath(h), mode); err != nil {
		g.logger.Debug("permission: os probe failed",
			slog.String("handle", h.Name()),
			slog.String("error", err.Error()))
		return Denied
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.revoked[h.Key()]; ok {
		return Denied
	}
	granted, ok := g.grants[h.Key()]
	if !ok || granted < mode {
		return NeedsPrompt
	}
	return Granted
}

// Request runs the consent flow for h. Concurrent calls for the same handle
// and mode share a single prompt.
func (g *Gate) Request(ctx context.Context, h capability.Handle, mode Mode) (State, error) {
	if h.IsZero() {
		return Denied, errors.New("permission: empty handle")
	}
	key := fmt.Sprintf("%s#%s", h.Key(), mode)
	v, err, _ := g.flight.Do(key, func() (any, error) {
		return g.request(ctx, h, mode)
	})
	if err != nil {
		return Denied, err
	}
	return v.(State), nil
}

func (g *Gate) request(ctx context.Context, h capability.Handle, mode Mode) (State, error) {
	if err := g.probe(probePath(h), mode); err != nil {
		return Denied, nil
	}
	if g.Check(ctx, h, mode) == Granted {
		return Granted, nil
	}

	ok, err := g.prompter.Confirm(ctx, h, mode)
	if err != nil {
		return Denied, fmt.Errorf("permission: prompt: %w", err)
	}
	if !ok {
		g.logger.Info("permission: denied by user", slog.String("handle", h.Name()))
		return Denied, nil
	}

	g.mu.Lock()
	delete(g.revoked, h.Key())
	if cur, ok := g.grants[h.Key()]; !ok || cur < mode {
		g.grants[h.Key()] = mode
	}
	g.mu.Unlock()

	g.logger.Info("permission: granted",
		slog.String("handle", h.Name()),
		slog.String("mode", mode.String()))
	return Granted, nil
}

// Revoke withdraws any session grant for h. A later Request may grant it again.
func (g *Gate) Revoke(h capability.Handle) {
	g.mu.Lock()
	delete(g.grants, h.Key())
	g.revoked[h.Key()] = struct{}{}
	g.mu.Unlock()
}

// probePath returns the path whose OS permissions govern h. For a data file
// that does not exist yet, that is its nearest existing parent directory.
func probePath(h capability.Handle) string {
	p := h.Path
	for {
		if _, err := os.Stat(p); err == nil {
			return p
		}
		parent := filepath.Dir(p)
		if parent == p {
			return p
		}
		p = parent
	}
}
