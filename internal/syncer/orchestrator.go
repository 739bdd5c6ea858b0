// Package syncer drives the upload-then-download reconciliation cycle
// between the local store and the remote survey service. One cycle
// uploads the pending response batch, marks acknowledged responses as
// synced, and replaces the cached survey set wholesale.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fieldops/fieldsync/internal/connectivity"
	"github.com/fieldops/fieldsync/internal/store"
)

// ResponseStore is the slice of the local store the orchestrator needs.
type ResponseStore interface {
	PendingResponses() ([]store.Response, error)
	PendingCount() (int, error)
	MarkResponsesSynced(ids []string) (int, error)
	ReplaceSurveys(surveys []store.Survey) error
	RecordSync(at time.Time, status string) error
}

// Gateway is the remote survey service as seen by the orchestrator.
type Gateway interface {
	Authenticated() bool
	UploadResponses(ctx context.Context, responses []store.Response) (int, error)
	DownloadSurveys(ctx context.Context) ([]store.Survey, error)
}

// Status is the user-visible sync state. Terminal states revert to idle
// after a short display window.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSyncing Status = "syncing"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Outcome classifies the end of one Sync invocation.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomePartial  Outcome = "partial"  // responses uploaded, survey refresh failed
	OutcomeError    Outcome = "error"
	OutcomeRejected Outcome = "rejected" // precondition failed, no cycle ran
)

// Result is reported for every Sync call. All failures arrive here as
// values; raw transport errors never cross this boundary.
type Result struct {
	Outcome      Outcome
	Message      string
	Uploaded     int
	SurveysStale bool // upload landed but the cached survey set was not refreshed
}

// State is the snapshot pushed to subscribers on every change.
type State struct {
	Status       Status
	Message      string
	PendingCount int
	LastSync     time.Time
}

// Orchestrator owns all sync state: the in-flight guard, the status
// machine, and the pending-count cache. Callers observe it through
// CurrentState and Subscribe; there is no shared global.
type Orchestrator struct {
	store   ResponseStore
	gateway Gateway
	online  func() bool
	logger  *slog.Logger

	now        func() time.Time
	resetDelay time.Duration

	syncing atomic.Bool

	mu        sync.Mutex
	status    Status
	message   string
	pending   int
	lastSync  time.Time
	statusGen int
	subs      map[int]func(State)
	nextSub   int
}

// New creates an Orchestrator. online reports current reachability
// (typically connectivity.Monitor.Online).
func New(st ResponseStore, gateway Gateway, online func() bool) *Orchestrator {
	return &Orchestrator{
		store:      st,
		gateway:    gateway,
		online:     online,
		logger:     slog.Default(),
		now:        time.Now,
		resetDelay: 3 * time.Second,
		status:     StatusIdle,
		subs:       make(map[int]func(State)),
	}
}

// CurrentState returns a snapshot of the observable sync state.
func (o *Orchestrator) CurrentState() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return State{
		Status:       o.status,
		Message:      o.message,
		PendingCount: o.pending,
		LastSync:     o.lastSync,
	}
}

// Subscribe registers fn to receive every state change. The returned
// function removes the subscription.
func (o *Orchestrator) Subscribe(fn func(State)) func() {
	o.mu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = fn
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.subs, id)
		o.mu.Unlock()
	}
}

// RefreshPendingCount re-reads the pending count from the store and
// notifies subscribers. Called after a new response lands and at the
// end of every cycle.
func (o *Orchestrator) RefreshPendingCount() int {
	n, err := o.store.PendingCount()
	if err != nil {
		o.logger.Warn("pending count unavailable", "error", err)
		return o.CurrentState().PendingCount
	}

	o.mu.Lock()
	o.pending = n
	o.mu.Unlock()
	o.notify()
	return n
}

// Sync runs one upload-then-download cycle. Preconditions (online,
// authenticated, not already syncing) are checked before any I/O; a
// failed precondition returns a rejection without touching the status
// machine. Only one cycle runs at a time; overlapping calls are
// rejected, not queued.
func (o *Orchestrator) Sync(ctx context.Context) Result {
	if !o.online() {
		return Result{Outcome: OutcomeRejected, Message: "cannot sync while offline"}
	}
	if !o.gateway.Authenticated() {
		return Result{Outcome: OutcomeRejected, Message: "not signed in"}
	}
	if !o.syncing.CompareAndSwap(false, true) {
		return Result{Outcome: OutcomeRejected, Message: "sync already in progress"}
	}
	defer o.syncing.Store(false)

	o.setStatus(StatusSyncing, "syncing")

	pending, err := o.store.PendingResponses()
	if err != nil {
		return o.finish(Result{Outcome: OutcomeError, Message: "could not read pending responses"}, err)
	}

	uploaded := 0
	if len(pending) > 0 {
		ids := make([]string, len(pending))
		for i, r := range pending {
			ids[i] = r.ID
		}

		// If the process dies after the upload returns but before the
		// synced mark lands, the same batch is re-sent next cycle; the
		// remote deduplicates by response id.
		processed, err := o.gateway.UploadResponses(ctx, pending)
		if err != nil {
			return o.finish(Result{Outcome: OutcomeError, Message: "upload failed, responses kept for retry"}, err)
		}
		if _, err := o.store.MarkResponsesSynced(ids); err != nil {
			return o.finish(Result{Outcome: OutcomeError, Message: "could not record upload locally"}, err)
		}
		uploaded = processed
		o.logger.Info("uploaded pending responses", "count", processed)
	}

	res := Result{Outcome: OutcomeSuccess, Uploaded: uploaded}

	surveys, err := o.gateway.DownloadSurveys(ctx)
	switch {
	case err != nil:
		// Responses already landed; a stale survey list does not fail
		// the cycle.
		res.Outcome = OutcomePartial
		res.SurveysStale = true
		res.Message = "responses saved, survey list may be stale"
		o.logger.Warn("survey download failed", "error", err)
	default:
		if err := o.store.ReplaceSurveys(surveys); err != nil {
			res.Outcome = OutcomePartial
			res.SurveysStale = true
			res.Message = "responses saved, survey list may be stale"
			o.logger.Warn("storing downloaded surveys failed", "error", err)
		} else if uploaded == 0 {
			res.Message = "nothing to upload, surveys refreshed"
		} else {
			res.Message = fmt.Sprintf("synced %d response(s)", uploaded)
		}
	}

	return o.finish(res, nil)
}

// RunAuto consumes reachability events and triggers one cycle per
// offline-to-online transition that finds pending responses. Runs until
// ctx is cancelled.
func (o *Orchestrator) RunAuto(ctx context.Context, events <-chan connectivity.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !ev.Online {
				continue
			}
			n, err := o.store.PendingCount()
			if err != nil {
				o.logger.Warn("pending count unavailable", "error", err)
				continue
			}
			if n == 0 {
				continue
			}
			o.logger.Info("came online with pending responses", "pending", n)
			o.Sync(ctx)
		}
	}
}

// finish stamps the sync log, refreshes the pending count, and moves
// the status machine to its terminal state for this cycle.
func (o *Orchestrator) finish(res Result, cause error) Result {
	if cause != nil {
		o.logger.Error("sync cycle failed", "error", cause)
	}

	at := o.now().UTC()
	if err := o.store.RecordSync(at, string(res.Outcome)); err != nil {
		o.logger.Warn("recording sync log failed", "error", err)
	}

	o.mu.Lock()
	o.lastSync = at
	o.mu.Unlock()

	o.RefreshPendingCount()

	status := StatusSuccess
	if res.Outcome == OutcomeError {
		status = StatusError
	}
	gen := o.setStatus(status, res.Message)
	o.scheduleReset(gen)

	return res
}

// setStatus updates the status machine and notifies subscribers.
// Returns the generation token used to invalidate stale auto-resets.
func (o *Orchestrator) setStatus(status Status, message string) int {
	o.mu.Lock()
	o.status = status
	o.message = message
	o.statusGen++
	gen := o.statusGen
	o.mu.Unlock()

	o.notify()
	return gen
}

// scheduleReset returns the status to idle after the display window,
// unless another transition happened in the meantime.
func (o *Orchestrator) scheduleReset(gen int) {
	time.AfterFunc(o.resetDelay, func() {
		o.mu.Lock()
		if o.statusGen != gen {
			o.mu.Unlock()
			return
		}
		o.status = StatusIdle
		o.message = ""
		o.statusGen++
		o.mu.Unlock()

		o.notify()
	})
}

func (o *Orchestrator) notify() {
	o.mu.Lock()
	state := State{
		Status:       o.status,
		Message:      o.message,
		PendingCount: o.pending,
		LastSync:     o.lastSync,
	}
	fns := make([]func(State), 0, len(o.subs))
	for _, fn := range o.subs {
		fns = append(fns, fn)
	}
	o.mu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}
