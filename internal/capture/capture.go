// Package capture defines the collaborator boundary between the core
// telemetry engine and a concrete packet source, and runs the
// per-interface capture worker goroutine: a cancellable context handed
// to the source, and a loop over the source's frame channel that
// classifies each frame and applies it to the store.
package capture

import (
	"context"
	"sync"

	"github.com/shellrow/nustat/internal/applog"
	"github.com/shellrow/nustat/internal/classify"
	"github.com/shellrow/nustat/internal/netmodel"
	"github.com/shellrow/nustat/internal/netstat"
)

// FrameSource streams parsed frames from one open capture handle.
type FrameSource interface {
	Frames() <-chan netmodel.Frame
	Close() error
}

// FrameSourceFactory opens a FrameSource bound to one interface.
type FrameSourceFactory interface {
	Open(ctx context.Context, iface netmodel.Interface) (FrameSource, error)
}

// Worker pulls frames from one FrameSource, classifies them against the
// store's current local-address set, and applies them. One Worker per
// bound interface; the worker touches the store only through
// LocalAddrSet and Update.
type Worker struct {
	factory FrameSourceFactory
	store   *netstat.Store

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewWorker(factory FrameSourceFactory, store *netstat.Store) *Worker {
	return &Worker{factory: factory, store: store}
}

// Start opens the source for iface and begins classifying frames in a
// background goroutine. Calling Start while already running is a no-op.
func (w *Worker) Start(ctx context.Context, iface netmodel.Interface) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	source, err := w.factory.Open(runCtx, iface)
	if err != nil {
		cancel()
		return err
	}

	w.cancel = cancel
	w.done = make(chan struct{})
	go w.run(source, w.done)
	return nil
}

func (w *Worker) run(source FrameSource, done chan struct{}) {
	defer close(done)
	defer source.Close()
	for frame := range source.Frames() {
		w.processOne(frame)
	}
}

// processOne classifies and applies a single frame, recovering from any
// panic during classification or store update. Go's sync.Mutex doesn't
// poison on panic the way spec.md's original lock does, so a recovered
// panic here is this module's analogue of "poisoned lock downgraded to
// a warning and the epoch continues" — the worker logs and moves on to
// the next frame instead of taking down the capture goroutine.
func (w *Worker) processOne(frame netmodel.Frame) {
	defer func() {
		if r := recover(); r != nil {
			applog.Warn("capture: recovered panic processing frame: %v", r)
		}
	}()
	local := w.store.LocalAddrSet()
	cf, ok := classify.Classify(frame, local)
	if !ok {
		return
	}
	w.store.Update(cf)
}

// Stop cancels the capture context and waits for the worker goroutine to
// exit.
func (w *Worker) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	done := w.done
	w.cancel = nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
