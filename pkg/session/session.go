// Package session implements the editing session over one export: it owns the
// fetched snapshot, the selected component and light source, the materialized
// instance being edited, and the unsaved-change guard. Saves fan out one
// backend write per non-empty bucket and re-fetch the snapshot on success.
//
// An Engine is safe for concurrent use. Bucket mutations are applied under the
// engine lock so they never interleave with each other or with a snapshot
// replacement.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/greg-hellings/datasettool/pkg/backend"
	"github.com/greg-hellings/datasettool/pkg/dataset"
)

var (
	// ErrNoExport is returned when an operation needs a loaded export.
	ErrNoExport = errors.New("session: no export loaded")

	// ErrNoComponent is returned when a light is selected before a component.
	ErrNoComponent = errors.New("session: no component selected")

	// ErrNoInstance is returned when an operation needs a selected light.
	ErrNoInstance = errors.New("session: no instance selected")

	// ErrNavigationDeferred is returned when a selection change was recorded
	// as pending because the instance has unsaved edits.
	ErrNavigationDeferred = errors.New("session: navigation deferred until unsaved changes are resolved")

	// ErrUnsavedChanges is returned by Refresh when the instance is dirty.
	ErrUnsavedChanges = errors.New("session: unsaved changes")

	// ErrBusy is returned while a save is outstanding.
	ErrBusy = errors.New("session: save in progress")

	// ErrStaleFetch is returned when a fetch response was discarded because a
	// newer fetch was issued or the selection changed meanwhile.
	ErrStaleFetch = errors.New("session: stale fetch discarded")

	// ErrConvertNotReady is returned by Convert when a Train/Val total is zero.
	ErrConvertNotReady = errors.New("session: every train/val bucket needs at least one image before converting")
)

// Selection identifies the component and light source being viewed. Empty
// fields mean nothing is selected at that level.
type Selection struct {
	Component string
	Light     string
}

// fetchToken ties a snapshot fetch to the state it was issued in.
type fetchToken struct {
	seq       uint64
	exportID  string
	selection Selection
}

// Engine is one editing session.
type Engine struct {
	client backend.Client

	mu        sync.Mutex
	exportID  string
	snapshot  *dataset.Snapshot
	selection Selection
	current   *dataset.Instance
	dirty     bool
	pending   *Pending
	saving    bool
	fetchSeq  uint64
}

// New creates an engine backed by client.
func New(client backend.Client) *Engine {
	return &Engine{client: client}
}

// Load fetches the snapshot of exportID and makes it the active export. When
// the export differs from the active one the selection and any unsaved edits
// are dropped; reloading the same export re-resolves the selection and, like
// Refresh, refuses to run over unsaved edits.
func (e *Engine) Load(ctx context.Context, exportID string) error {
	if exportID == "" {
		return fmt.Errorf("session: export id is required")
	}
	e.mu.Lock()
	switch {
	case e.saving:
		e.mu.Unlock()
		return ErrBusy
	case exportID == e.exportID && e.dirty:
		e.mu.Unlock()
		return ErrUnsavedChanges
	}
	tok := e.issueFetchLocked(exportID)
	e.mu.Unlock()

	return e.fetch(ctx, tok)
}

// Refresh re-fetches the active export. It refuses to run over unsaved
// edits.
func (e *Engine) Refresh(ctx context.Context) error {
	e.mu.Lock()
	switch {
	case e.saving:
		e.mu.Unlock()
		return ErrBusy
	case e.exportID == "":
		e.mu.Unlock()
		return ErrNoExport
	case e.dirty:
		e.mu.Unlock()
		return ErrUnsavedChanges
	}
	tok := e.issueFetchLocked(e.exportID)
	e.mu.Unlock()

	return e.fetch(ctx, tok)
}

func (e *Engine) issueFetchLocked(exportID string) fetchToken {
	e.fetchSeq++
	return fetchToken{seq: e.fetchSeq, exportID: exportID, selection: e.selection}
}

// fetch performs the request for tok and applies the response if tok is
// still current.
func (e *Engine) fetch(ctx context.Context, tok fetchToken) error {
	snap, err := e.client.FetchSnapshot(ctx, tok.exportID)

	e.mu.Lock()
	defer e.mu.Unlock()

	if tok.seq != e.fetchSeq || tok.selection != e.selection {
		slog.Debug("Discarding stale snapshot",
			"export", tok.exportID,
			"seq", tok.seq,
			"latest", e.fetchSeq)
		return ErrStaleFetch
	}
	if err != nil {
		slog.Error("Failed to fetch snapshot",
			"export", tok.exportID,
			"diagnostic", backend.Diagnostic(err))
		return fmt.Errorf("session: fetch snapshot: %w", err)
	}

	if tok.exportID != e.exportID {
		e.exportID = tok.exportID
		e.selection = Selection{}
		e.current = nil
		e.dirty = false
		e.pending = nil
	}
	e.snapshot = snap
	e.resolveSelectionLocked()

	slog.Info("Loaded snapshot",
		"export", e.exportID,
		"components", snap.Len(),
		"component", e.selection.Component,
		"light", e.selection.Light)
	return nil
}

// resolveSelectionLocked re-applies the selection against the current
// snapshot. A missing component clears the whole selection and a missing
// light clears only the light.
func (e *Engine) resolveSelectionLocked() {
	sel := e.selection
	if sel.Component == "" {
		e.current = nil
		return
	}
	comp, err := e.snapshot.Component(sel.Component)
	if err != nil {
		slog.Info("Selected component no longer present", "component", sel.Component)
		e.selection = Selection{}
		e.current = nil
		return
	}
	if sel.Light == "" {
		e.current = nil
		return
	}
	in, err := comp.Light(sel.Light)
	if err != nil {
		slog.Info("Selected light no longer present",
			"component", sel.Component,
			"light", sel.Light)
		e.selection.Light = ""
		e.current = nil
		return
	}
	e.current = &in
}

// ExportID returns the active export, or "" before the first load.
func (e *Engine) ExportID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.exportID
}

// Snapshot returns the active snapshot, or nil before the first load.
func (e *Engine) Snapshot() *dataset.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot
}

// Selection returns the current selection.
func (e *Engine) Selection() Selection {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selection
}

// Current returns the materialized instance, including unsaved edits.
func (e *Engine) Current() (dataset.Instance, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return dataset.Instance{}, false
	}
	return *e.current, true
}

// Dirty reports whether the current instance has unsaved edits.
func (e *Engine) Dirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dirty
}

// Saving reports whether a save is outstanding.
func (e *Engine) Saving() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.saving
}

// Components lists the component names of the active snapshot.
func (e *Engine) Components() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.snapshot == nil {
		return nil
	}
	return e.snapshot.Components()
}

// Lights lists the light sources of the selected component.
func (e *Engine) Lights() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.snapshot == nil || e.selection.Component == "" {
		return nil
	}
	comp, err := e.snapshot.Component(e.selection.Component)
	if err != nil {
		return nil
	}
	return comp.Lights()
}
