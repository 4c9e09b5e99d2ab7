package syncengine

import (
	"context"

	"github.com/starford/tasklet/internal/capability"
)

// Picker runs the selection flow that yields a new handle. It returns
// ErrCanceled when the user backs out without choosing.
type Picker interface {
	Pick(ctx context.Context) (capability.Handle, error)
}

// PickerFunc adapts a function to the Picker interface.
type PickerFunc func(ctx context.Context) (capability.Handle, error)

func (f PickerFunc) Pick(ctx context.Context) (capability.Handle, error) { return f(ctx) }

// StaticPicker returns a picker that always selects h. Used when the
// location was chosen outside the engine, e.g. on the command line.
func StaticPicker(h capability.Handle) Picker {
	return PickerFunc(func(context.Context) (capability.Handle, error) { return h, nil })
}
