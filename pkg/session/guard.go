package session

import "log/slog"

// Dialog is the title and description shown by a confirmation prompt.
type Dialog struct {
	Title       string
	Description string
}

// LeaveDialog asks whether unsaved edits may be discarded.
func LeaveDialog() Dialog {
	return Dialog{
		Title:       "Confirm leave",
		Description: "You have unsaved changes. Are you sure to leave?",
	}
}

// SaveDialog asks for confirmation before writing to the backend.
func SaveDialog() Dialog {
	return Dialog{
		Title:       "Save changes",
		Description: "Deleted items can't be restored. Are you sure to save changes?",
	}
}

// ConfirmationRequested reports whether a deferred navigation waits for the
// operator.
func (e *Engine) ConfirmationRequested() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending != nil
}

// PendingNavigation returns the deferred navigation, if any.
func (e *Engine) PendingNavigation() (Pending, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending == nil {
		return Pending{}, false
	}
	return *e.pending, true
}

// ConfirmLeave discards unsaved edits and applies the pending navigation,
// component first and then light. It is a no-op without a pending request.
func (e *Engine) ConfirmLeave() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.saving {
		return ErrBusy
	}
	p := e.pending
	if p == nil {
		return nil
	}
	e.pending = nil
	e.dirty = false

	slog.Info("Discarding unsaved changes",
		"component", e.selection.Component,
		"light", e.selection.Light)

	if p.Component != "" {
		if err := e.applyComponentLocked(p.Component); err != nil {
			return err
		}
	}
	if p.Light != "" {
		return e.applyLightLocked(p.Light)
	}
	return nil
}

// CancelLeave drops the pending navigation. Selection, instance and dirty
// state are unchanged.
func (e *Engine) CancelLeave() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = nil
}

// BeforeClose reports whether closing the session must be confirmed.
func (e *Engine) BeforeClose() bool {
	return e.Dirty()
}

// Discard drops unsaved edits and rematerializes the selected instance from
// the snapshot.
func (e *Engine) Discard() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.saving {
		return ErrBusy
	}
	e.dirty = false
	e.pending = nil
	if e.snapshot != nil {
		e.resolveSelectionLocked()
	}
	return nil
}
