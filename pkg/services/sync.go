// Package services runs session operations asynchronously and streams their
// progress so interactive front ends can show a loading indicator while a
// save is in flight.
//
// Usage:
//
//	svc := NewSyncService(engine)
//	ch, handle, err := svc.RunSave(ctx, SaveOptions{EmitAggregateEvents: true})
//	for p := range ch {
//	    fmt.Println(p.Bucket, p.Phase, p.Error)
//	}
//	err = handle.Result()
package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/greg-hellings/datasettool/pkg/dataset"
	"github.com/greg-hellings/datasettool/pkg/session"
)

// ProgressPhase represents lifecycle phases of a bucket write.
type ProgressPhase string

const (
	// PhaseQueued indicates the write has been planned but not yet sent.
	PhaseQueued ProgressPhase = "queued"
	// PhaseRunning indicates the write request is in flight.
	PhaseRunning ProgressPhase = "running"
	// PhaseComplete indicates the write (or the whole save) succeeded.
	PhaseComplete ProgressPhase = "complete"
	// PhaseError indicates the write (or the whole save) failed.
	PhaseError ProgressPhase = "error"
	// PhaseRefresh indicates every write succeeded and the snapshot is being
	// re-fetched.
	PhaseRefresh ProgressPhase = "refresh"
)

// SaveProgress conveys a status update for one bucket, or for the whole save
// when Aggregate is set.
type SaveProgress struct {
	Bucket    dataset.Bucket
	Aggregate bool
	Phase     ProgressPhase
	Error     error
	Timestamp time.Time
}

// SaveOptions defines tunable behavior for a save run.
type SaveOptions struct {
	// EmitAggregateEvents controls whether refresh and final completion
	// events are sent.
	EmitAggregateEvents bool
}

// ResultHandle provides access to the outcome of a save.
type ResultHandle struct {
	mu   sync.RWMutex
	err  error
	done chan struct{}
}

// Result blocks until the save completes.
func (h *ResultHandle) Result() error {
	<-h.done
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.err
}

// Done returns a channel closed when the save finishes.
func (h *ResultHandle) Done() <-chan struct{} {
	return h.done
}

func (h *ResultHandle) set(err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
}

// Saver is the part of session.Engine the service drives.
type Saver interface {
	Current() (dataset.Instance, bool)
	SaveWithObserver(ctx context.Context, obs session.SaveObserver) error
}

// SyncService is the public interface for asynchronous saves.
type SyncService interface {
	// RunSave starts saving the current instance.
	// Returns:
	//   progressCh   - channel streaming bucket progress events (auto-closed)
	//   resultHandle - handle to obtain the final error
	//   error        - immediate setup error (nothing to save)
	RunSave(ctx context.Context, opts SaveOptions) (<-chan SaveProgress, *ResultHandle, error)
}

type syncService struct {
	saver Saver
}

// NewSyncService constructs a SyncService over saver.
func NewSyncService(saver Saver) SyncService {
	return &syncService{saver: saver}
}

// progressBuffer holds every event a save can emit: three per bucket plus the
// aggregate refresh and final events.
var progressBuffer = len(dataset.AllBuckets())*3 + 2

// RunSave launches the save asynchronously. Queued events are emitted for
// every planned write first; running and complete/error events follow as
// each request progresses.
func (s *syncService) RunSave(ctx context.Context, opts SaveOptions) (<-chan SaveProgress, *ResultHandle, error) {
	in, ok := s.saver.Current()
	if !ok {
		return nil, nil, errors.New("no instance selected")
	}

	progressCh := make(chan SaveProgress, progressBuffer)
	handle := &ResultHandle{done: make(chan struct{})}

	for _, w := range session.PlanWrites(in) {
		progressCh <- SaveProgress{Bucket: w.Bucket, Phase: PhaseQueued, Timestamp: time.Now()}
	}

	go func() {
		defer close(handle.done)
		defer close(progressCh)

		obs := &channelObserver{ch: progressCh, aggregate: opts.EmitAggregateEvents}
		err := s.saver.SaveWithObserver(ctx, obs)
		handle.set(err)

		if opts.EmitAggregateEvents {
			p := SaveProgress{Aggregate: true, Phase: PhaseComplete, Timestamp: time.Now()}
			if err != nil {
				p.Phase = PhaseError
				p.Error = err
			}
			obs.send(p)
		}
	}()

	return progressCh, handle, nil
}

// channelObserver forwards session save callbacks onto the progress channel.
type channelObserver struct {
	mu        sync.Mutex
	ch        chan<- SaveProgress
	aggregate bool
}

func (o *channelObserver) send(p SaveProgress) {
	o.mu.Lock()
	defer o.mu.Unlock()
	select {
	case o.ch <- p:
	default:
		// never block the save
	}
}

func (o *channelObserver) WriteStarted(b dataset.Bucket) {
	o.send(SaveProgress{Bucket: b, Phase: PhaseRunning, Timestamp: time.Now()})
}

func (o *channelObserver) WriteFinished(b dataset.Bucket, err error) {
	p := SaveProgress{Bucket: b, Phase: PhaseComplete, Timestamp: time.Now()}
	if err != nil {
		p.Phase = PhaseError
		p.Error = err
	}
	o.send(p)
}

func (o *channelObserver) RefreshStarted() {
	if o.aggregate {
		o.send(SaveProgress{Aggregate: true, Phase: PhaseRefresh, Timestamp: time.Now()})
	}
}
