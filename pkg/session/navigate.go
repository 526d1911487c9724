package session

import (
	"log/slog"

	"github.com/greg-hellings/datasettool/pkg/dataset"
)

// Pending is a selection change waiting for the operator to confirm that
// unsaved edits may be discarded. Empty fields leave that level unchanged.
type Pending struct {
	Component string
	Light     string
}

// SelectComponent switches to another component. Selecting the current
// component is a no-op. With unsaved edits the switch is recorded as pending
// and ErrNavigationDeferred is returned.
func (e *Engine) SelectComponent(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.saving {
		return ErrBusy
	}
	if e.snapshot == nil {
		return ErrNoExport
	}
	if _, err := e.snapshot.Component(name); err != nil {
		return err
	}
	if name == e.selection.Component {
		return nil
	}
	if e.dirty {
		e.deferLocked(Pending{Component: name})
		return ErrNavigationDeferred
	}
	return e.applyComponentLocked(name)
}

// SelectLight switches to another light source of the selected component and
// materializes a fresh copy of its instance.
func (e *Engine) SelectLight(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.saving {
		return ErrBusy
	}
	if e.snapshot == nil {
		return ErrNoExport
	}
	if e.selection.Component == "" {
		return ErrNoComponent
	}
	comp, err := e.snapshot.Component(e.selection.Component)
	if err != nil {
		return err
	}
	if !comp.Has(name) {
		_, err := comp.Light(name)
		return err
	}
	if name == e.selection.Light {
		return nil
	}
	if e.dirty {
		e.deferLocked(Pending{Light: name})
		return ErrNavigationDeferred
	}
	return e.applyLightLocked(name)
}

func (e *Engine) deferLocked(p Pending) {
	e.pending = &p
	slog.Info("Navigation deferred by unsaved changes",
		"component", p.Component,
		"light", p.Light)
}

// applyComponentLocked selects a component, clearing the light and the
// materialized instance.
func (e *Engine) applyComponentLocked(name string) error {
	if _, err := e.snapshot.Component(name); err != nil {
		return err
	}
	e.selection = Selection{Component: name}
	e.current = nil
	e.dirty = false
	slog.Debug("Selected component", "component", name)
	return nil
}

// applyLightLocked selects a light source and materializes its instance from
// the snapshot, dropping any edited copy.
func (e *Engine) applyLightLocked(name string) error {
	in, err := e.snapshot.Instance(e.selection.Component, name)
	if err != nil {
		return err
	}
	e.selection.Light = name
	e.current = &in
	e.dirty = false
	slog.Debug("Selected light",
		"component", e.selection.Component,
		"light", name,
		"ready", in.Ready)
	return nil
}

// Move relocates the image at srcIndex of src to dstIndex of dst in the
// current instance. The instance and the dirty flag are untouched when the
// move is refused.
func (e *Engine) Move(src dataset.Bucket, srcIndex int, dst dataset.Bucket, dstIndex int) error {
	return e.mutate(func(in dataset.Instance) (dataset.Instance, error) {
		return in.Move(src, srcIndex, dst, dstIndex)
	})
}

// Drop applies a drag gesture. A drop outside any bucket does nothing.
func (e *Engine) Drop(ev dataset.DragEvent) error {
	rd, ok, err := ev.Resolve()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return e.Move(rd.Source, rd.SourceIndex, rd.Dest, rd.DestIndex)
}

// AdjustRatio redistributes the Pass and NG groups of the current instance
// between Train and Val.
func (e *Engine) AdjustRatio(trainPassPct, trainNGPct int) error {
	return e.mutate(func(in dataset.Instance) (dataset.Instance, error) {
		return in.AdjustRatio(trainPassPct, trainNGPct)
	})
}

func (e *Engine) mutate(fn func(dataset.Instance) (dataset.Instance, error)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.saving {
		return ErrBusy
	}
	if e.current == nil {
		return ErrNoInstance
	}
	next, err := fn(*e.current)
	if err != nil {
		return err
	}
	e.current = &next
	e.dirty = true
	return nil
}
