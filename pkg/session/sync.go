package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/greg-hellings/datasettool/pkg/backend"
	"github.com/greg-hellings/datasettool/pkg/dataset"
)

// SaveError reports every bucket write that failed during a save. Nothing is
// retried and the in-memory edits stay in place.
type SaveError struct {
	Failures map[dataset.Bucket]error
}

func (e *SaveError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, b := range e.Buckets() {
		parts = append(parts, fmt.Sprintf("%s: %v", b, e.Failures[b]))
	}
	return fmt.Sprintf("session: save failed for %d bucket(s): %s", len(e.Failures), strings.Join(parts, "; "))
}

// Unwrap exposes the individual write errors to errors.Is and errors.As.
func (e *SaveError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, b := range e.Buckets() {
		errs = append(errs, e.Failures[b])
	}
	return errs
}

// Buckets lists the failed buckets in bucket order.
func (e *SaveError) Buckets() []dataset.Bucket {
	var out []dataset.Bucket
	for _, b := range dataset.AllBuckets() {
		if _, ok := e.Failures[b]; ok {
			out = append(out, b)
		}
	}
	return out
}

// Write is one planned bucket write.
type Write struct {
	Bucket   dataset.Bucket
	ImageIDs []string
}

// PlanWrites returns one write per non-empty bucket of in, in bucket order.
// Empty buckets never produce a request.
func PlanWrites(in dataset.Instance) []Write {
	var writes []Write
	for _, b := range dataset.AllBuckets() {
		if in.Len(b) == 0 {
			continue
		}
		writes = append(writes, Write{Bucket: b, ImageIDs: in.IDs(b)})
	}
	return writes
}

// SaveObserver receives per-bucket progress from SaveWithObserver. Calls may
// arrive concurrently.
type SaveObserver interface {
	WriteStarted(b dataset.Bucket)
	WriteFinished(b dataset.Bucket, err error)
	RefreshStarted()
}

// Save persists the current instance and re-fetches the snapshot.
func (e *Engine) Save(ctx context.Context) error {
	return e.SaveWithObserver(ctx, nil)
}

// SaveWithObserver persists the current instance, reporting progress to obs
// (which may be nil). Writes for all non-empty buckets run concurrently. If
// any write fails a *SaveError is returned and the edits stay dirty. Once
// every write has succeeded dirty is cleared and the snapshot is re-fetched;
// the previous selection is re-resolved against it.
func (e *Engine) SaveWithObserver(ctx context.Context, obs SaveObserver) error {
	e.mu.Lock()
	if e.saving {
		e.mu.Unlock()
		return ErrBusy
	}
	if e.exportID == "" || e.current == nil {
		e.mu.Unlock()
		return ErrNoInstance
	}
	exportID := e.exportID
	writes := PlanWrites(*e.current)
	e.saving = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.saving = false
		e.mu.Unlock()
	}()

	slog.Info("Saving instance",
		"export", exportID,
		"writes", len(writes))

	if err := e.writeAll(ctx, exportID, writes, obs); err != nil {
		return err
	}

	e.mu.Lock()
	e.dirty = false
	e.pending = nil
	tok := e.issueFetchLocked(exportID)
	e.mu.Unlock()

	if obs != nil {
		obs.RefreshStarted()
	}
	if err := e.fetch(ctx, tok); err != nil {
		return fmt.Errorf("session: changes saved but refresh failed: %w", err)
	}
	return nil
}

func (e *Engine) writeAll(ctx context.Context, exportID string, writes []Write, obs SaveObserver) error {
	var (
		g        errgroup.Group
		mu       sync.Mutex
		failures = make(map[dataset.Bucket]error)
	)
	for _, w := range writes {
		g.Go(func() error {
			if obs != nil {
				obs.WriteStarted(w.Bucket)
			}
			err := e.client.WriteBucket(ctx, exportID, w.Bucket, w.ImageIDs)
			if obs != nil {
				obs.WriteFinished(w.Bucket, err)
			}
			if err != nil {
				slog.Error("Bucket write failed",
					"export", exportID,
					"bucket", w.Bucket.String(),
					"diagnostic", backend.Diagnostic(err))
				mu.Lock()
				failures[w.Bucket] = err
				mu.Unlock()
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return &SaveError{Failures: failures}
	}
	return nil
}
