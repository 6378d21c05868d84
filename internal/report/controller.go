// ABOUTME: Controller drives the view/rename/delete interaction for report artifacts
// ABOUTME: Per-report finite state machine with durable-store-first delete ordering

package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/kestrelworks/botdesk/internal/keylock"
	"github.com/kestrelworks/botdesk/internal/store"
)

// ErrConflict is returned when a concurrent state change invalidated the
// operation. The caller may re-issue from the current state.
var ErrConflict = errors.New("conflicting state change")

// ErrValidation is returned for bad input, rejected before any state transition
var ErrValidation = errors.New("invalid input")

// ErrStorage marks durable I/O failures. Local lifecycle state is rolled back
// to the last known-good value before the error is surfaced.
var ErrStorage = errors.New("storage failure")

// FlowState identifies where a report interaction currently stands.
type FlowState int

const (
	StateIdle FlowState = iota
	StateViewing
	StateRenameInput
	StateRenameConfirm
	StateDeleteConfirm
)

// String returns the state name for logging.
func (s FlowState) String() string {
	switch s {
	case StateViewing:
		return "viewing"
	case StateRenameInput:
		return "rename_input"
	case StateRenameConfirm:
		return "rename_confirm"
	case StateDeleteConfirm:
		return "delete_confirm"
	default:
		return "idle"
	}
}

// Snapshot is what the handler layer renders for a viewed report. The payload
// content lives only in the snapshot; the controller does not retain it.
type Snapshot struct {
	Report  store.Report
	Content string
	Size    int
}

// flow is the per-(owner, report) interaction state.
type flow struct {
	state       FlowState
	pendingName string
	observed    string // report lifecycle state observed when the step was requested
	deadline    time.Time
}

// Options tune controller behavior. Zero values pick defaults.
type Options struct {
	ConfirmWindow time.Duration // how long a pending confirm step stays valid
	MaxNameLen    int           // rename target length bound, in runes
	SweepInterval time.Duration // janitor period for expired flows
}

const (
	defaultConfirmWindow = 5 * time.Minute
	defaultMaxNameLen    = 128
	defaultSweepInterval = time.Minute
)

// Controller owns the report interaction state machines and the in-memory
// record cache in front of the report store. All transitions for one report
// are serialized through a per-key lock.
type Controller struct {
	store  store.ReportStore
	locks  *keylock.Registry
	logger *slog.Logger
	opts   Options

	mu      sync.Mutex
	records map[string]*store.Report // record cache, keyed by report ID
	flows   map[string]*flow         // keyed by ownerID + "/" + reportID
	done    chan struct{}
	closed  bool
}

// NewController creates a report lifecycle controller. A background janitor
// sweeps expired confirm steps back to their safe state; call Close to stop it.
func NewController(st store.ReportStore, logger *slog.Logger, opts Options) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ConfirmWindow <= 0 {
		opts.ConfirmWindow = defaultConfirmWindow
	}
	if opts.MaxNameLen <= 0 {
		opts.MaxNameLen = defaultMaxNameLen
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = defaultSweepInterval
	}

	c := &Controller{
		store:   st,
		locks:   keylock.New(),
		logger:  logger.With("component", "report"),
		opts:    opts,
		records: make(map[string]*store.Report),
		flows:   make(map[string]*flow),
		done:    make(chan struct{}),
	}
	go c.sweep()
	return c
}

// Close stops the janitor goroutine. Safe to call multiple times.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}

// EnterView loads a report for display. Returns store.ErrNotFound if the
// report does not belong to the owner or is already deleted. The payload is
// loaded lazily and decoded on a worker goroutine; only the resulting
// snapshot keeps the content, so sequential views do not accumulate buffers.
func (c *Controller) EnterView(ctx context.Context, ownerID, reportID string) (*Snapshot, error) {
	c.locks.Lock(reportID)
	defer c.locks.Unlock(reportID)

	rec, err := c.ownedRecord(ctx, ownerID, reportID)
	if err != nil {
		return nil, err
	}

	payload, err := c.store.LoadPayload(ctx, reportID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("%w: loading payload for report %s: %v", ErrStorage, reportID, err)
	}

	// Decode off the calling goroutine; the transition proceeds only once
	// the worker reports back.
	var content string
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		decoded, err := decodePayload(payload)
		if err != nil {
			return err
		}
		content = decoded
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("decoding payload for report %s: %w", reportID, err)
	}
	size := len(payload)
	payload = nil // release the raw buffer; the snapshot owns the decoded copy

	c.setFlow(ownerID, reportID, &flow{
		state:    StateViewing,
		deadline: time.Now().Add(c.opts.ConfirmWindow),
	})

	c.logger.Debug("report viewed", "report_id", reportID, "owner", ownerID, "size", size)
	return &Snapshot{Report: *rec, Content: content, Size: size}, nil
}

// BeginRename opens the rename input step for a report.
func (c *Controller) BeginRename(ctx context.Context, ownerID, reportID string) error {
	c.locks.Lock(reportID)
	defer c.locks.Unlock(reportID)

	if _, err := c.ownedRecord(ctx, ownerID, reportID); err != nil {
		return err
	}

	c.setFlow(ownerID, reportID, &flow{
		state:    StateRenameInput,
		deadline: time.Now().Add(c.opts.ConfirmWindow),
	})
	return nil
}

// RequestRename validates the proposed name and arms the rename confirmation.
// No record is mutated yet.
func (c *Controller) RequestRename(ctx context.Context, ownerID, reportID, proposedName string) error {
	if proposedName == "" {
		return fmt.Errorf("%w: rename target must not be empty", ErrValidation)
	}
	if utf8.RuneCountInString(proposedName) > c.opts.MaxNameLen {
		return fmt.Errorf("%w: rename target exceeds %d characters", ErrValidation, c.opts.MaxNameLen)
	}

	c.locks.Lock(reportID)
	defer c.locks.Unlock(reportID)

	rec, err := c.ownedRecord(ctx, ownerID, reportID)
	if err != nil {
		return err
	}
	if rec.State != store.ReportActive {
		return fmt.Errorf("%w: report %s is %s", ErrConflict, reportID, rec.State)
	}

	c.setFlow(ownerID, reportID, &flow{
		state:       StateRenameConfirm,
		pendingName: proposedName,
		observed:    rec.State,
		deadline:    time.Now().Add(c.opts.ConfirmWindow),
	})

	c.logger.Debug("rename requested", "report_id", reportID, "name", proposedName)
	return nil
}

// ConfirmRename applies the pending rename as a single durable write and
// returns the flow to idle. Returns ErrConflict if no rename is pending, the
// confirm window expired, or the report's lifecycle state changed since the
// request was issued.
func (c *Controller) ConfirmRename(ctx context.Context, ownerID, reportID string) error {
	c.locks.Lock(reportID)
	defer c.locks.Unlock(reportID)

	fl := c.currentFlow(ownerID, reportID)
	if fl == nil || fl.state != StateRenameConfirm {
		return fmt.Errorf("%w: no rename pending for report %s", ErrConflict, reportID)
	}
	if time.Now().After(fl.deadline) {
		c.clearFlow(ownerID, reportID)
		return fmt.Errorf("%w: rename confirmation expired for report %s", ErrConflict, reportID)
	}

	// Re-read the record: another operation may have deleted the report
	// since the rename was requested.
	rec, err := c.loadRecord(ctx, reportID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.clearFlow(ownerID, reportID)
			return fmt.Errorf("%w: report %s was removed since rename was requested", ErrConflict, reportID)
		}
		return fmt.Errorf("%w: reloading report %s: %v", ErrStorage, reportID, err)
	}
	if rec.OwnerID != ownerID || rec.State != fl.observed {
		c.clearFlow(ownerID, reportID)
		return fmt.Errorf("%w: report %s changed state to %s since rename was requested", ErrConflict, reportID, rec.State)
	}

	if err := c.store.RenameReport(ctx, reportID, fl.pendingName); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.clearFlow(ownerID, reportID)
			return fmt.Errorf("%w: report %s was removed since rename was requested", ErrConflict, reportID)
		}
		return fmt.Errorf("%w: renaming report %s: %v", ErrStorage, reportID, err)
	}

	c.mu.Lock()
	if cached, ok := c.records[reportID]; ok {
		cached.Name = fl.pendingName
	}
	c.mu.Unlock()
	c.clearFlow(ownerID, reportID)

	c.logger.Debug("rename applied", "report_id", reportID, "name", fl.pendingName)
	return nil
}

// RequestDelete moves an active report to pending-delete. This is a guard
// step; no data is removed yet.
func (c *Controller) RequestDelete(ctx context.Context, ownerID, reportID string) error {
	c.locks.Lock(reportID)
	defer c.locks.Unlock(reportID)

	rec, err := c.ownedRecord(ctx, ownerID, reportID)
	if err != nil {
		return err
	}
	if rec.State != store.ReportActive {
		return fmt.Errorf("%w: report %s is %s", ErrConflict, reportID, rec.State)
	}

	if err := c.store.SetReportState(ctx, reportID, store.ReportPendingDelete); err != nil {
		return fmt.Errorf("%w: marking report %s pending delete: %v", ErrStorage, reportID, err)
	}
	c.updateCachedState(reportID, store.ReportPendingDelete)

	c.setFlow(ownerID, reportID, &flow{
		state:    StateDeleteConfirm,
		observed: store.ReportPendingDelete,
		deadline: time.Now().Add(c.opts.ConfirmWindow),
	})

	c.logger.Debug("delete requested", "report_id", reportID, "owner", ownerID)
	return nil
}

// ConfirmDelete performs the delete. The durable deletion is acknowledged
// first, then the cache entry is evicted, so a concurrent view can never
// observe an active-looking report whose payload is already gone. A report
// already deleted is treated as success so duplicate triggers do not surface
// spurious failures. On storage failure the lifecycle reverts to active; the
// report is never left in pending-delete.
func (c *Controller) ConfirmDelete(ctx context.Context, ownerID, reportID string) error {
	c.locks.Lock(reportID)
	defer c.locks.Unlock(reportID)

	rec, err := c.loadRecord(ctx, reportID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Duplicate trigger after a completed delete: the durable row
			// is already gone, so this is an idempotent success.
			c.clearFlow(ownerID, reportID)
			return nil
		}
		return fmt.Errorf("%w: reloading report %s: %v", ErrStorage, reportID, err)
	}
	if rec.OwnerID != ownerID {
		return store.ErrNotFound
	}
	if rec.State != store.ReportPendingDelete {
		return fmt.Errorf("%w: no delete pending for report %s (state %s)", ErrConflict, reportID, rec.State)
	}

	fl := c.currentFlow(ownerID, reportID)
	if fl != nil && time.Now().After(fl.deadline) {
		c.revertPendingDelete(ownerID, reportID)
		return fmt.Errorf("%w: delete confirmation expired for report %s", ErrConflict, reportID)
	}

	// Durable deletion first; only an acknowledged store delete may
	// transition the observable lifecycle state.
	if err := c.store.DeleteReport(ctx, reportID); err != nil {
		c.revertPendingDelete(ownerID, reportID)
		return fmt.Errorf("%w: deleting report %s: %v", ErrStorage, reportID, err)
	}

	// Evict the record instead of tombstoning it so the cache does not grow
	// with every report ever deleted; a duplicate confirm resolves through
	// the store's not-found path above.
	c.mu.Lock()
	delete(c.records, reportID)
	c.mu.Unlock()
	c.clearFlow(ownerID, reportID)

	c.logger.Debug("report deleted", "report_id", reportID, "owner", ownerID)
	return nil
}

// Cancel returns the interaction to idle without side effects. A report in
// pending-delete reverts to active. Valid from any state including idle,
// where it is a no-op.
func (c *Controller) Cancel(ctx context.Context, ownerID, reportID string) error {
	c.locks.Lock(reportID)
	defer c.locks.Unlock(reportID)

	rec, err := c.loadRecord(ctx, reportID)
	switch {
	case err == nil:
		if rec.OwnerID == ownerID && rec.State == store.ReportPendingDelete {
			if err := c.store.SetReportState(ctx, reportID, store.ReportActive); err != nil {
				return fmt.Errorf("%w: reverting report %s to active: %v", ErrStorage, reportID, err)
			}
			c.updateCachedState(reportID, store.ReportActive)
		}
	case errors.Is(err, store.ErrNotFound):
		// Nothing durable to revert.
	default:
		// The record could not be loaded, so a pending delete may still be
		// durable. Keep the flow armed; the sweeper retries the revert.
		return fmt.Errorf("%w: loading report %s: %v", ErrStorage, reportID, err)
	}

	c.clearFlow(ownerID, reportID)
	return nil
}

// State reports the current flow state for rendering. Idle if no flow exists.
func (c *Controller) State(ownerID, reportID string) FlowState {
	c.mu.Lock()
	defer c.mu.Unlock()

	fl, ok := c.flows[flowKey(ownerID, reportID)]
	if !ok || time.Now().After(fl.deadline) {
		return StateIdle
	}
	return fl.state
}

// ListForOwner returns the owner's non-deleted report records, newest first.
func (c *Controller) ListForOwner(ctx context.Context, ownerID string) ([]*store.Report, error) {
	all, err := c.store.ListReports(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%w: listing reports for %s: %v", ErrStorage, ownerID, err)
	}
	reports := all[:0]
	for _, r := range all {
		if r.State != store.ReportDeleted {
			reports = append(reports, r)
		}
	}
	return reports, nil
}

// ownedRecord loads a record and verifies ownership and liveness.
// A foreign or deleted report surfaces as not found.
func (c *Controller) ownedRecord(ctx context.Context, ownerID, reportID string) (*store.Report, error) {
	rec, err := c.loadRecord(ctx, reportID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("%w: loading report %s: %v", ErrStorage, reportID, err)
	}
	if rec.OwnerID != ownerID || rec.State == store.ReportDeleted {
		return nil, store.ErrNotFound
	}
	return rec, nil
}

// loadRecord returns a copy of the cached record, fetching it from the store
// on miss. Callers mutate cached state only through updateCachedState.
func (c *Controller) loadRecord(ctx context.Context, reportID string) (*store.Report, error) {
	c.mu.Lock()
	if rec, ok := c.records[reportID]; ok {
		copied := *rec
		c.mu.Unlock()
		return &copied, nil
	}
	c.mu.Unlock()

	rec, err := c.store.GetReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.records[reportID] = rec
	copied := *rec
	c.mu.Unlock()
	return &copied, nil
}

// revertPendingDelete restores a report to active after a failed or expired
// delete confirmation. Uses a detached context so the revert still lands when
// the request context is already cancelled.
func (c *Controller) revertPendingDelete(ownerID, reportID string) {
	revertCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.store.SetReportState(revertCtx, reportID, store.ReportActive); err != nil {
		// The durable row is still pending-delete, so the cache must not be
		// flipped to active. Leaving the flow in place lets the sweeper
		// retry the revert on its next pass.
		c.logger.Error("failed to revert report to active",
			"error", err, "report_id", reportID, "owner", ownerID)
		return
	}
	c.updateCachedState(reportID, store.ReportActive)
	c.clearFlow(ownerID, reportID)
}

// updateCachedState adjusts the cached record's lifecycle state, if cached.
func (c *Controller) updateCachedState(reportID, state string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec, ok := c.records[reportID]; ok {
		rec.State = state
		rec.UpdatedAt = time.Now()
	}
}

func (c *Controller) setFlow(ownerID, reportID string, fl *flow) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flows[flowKey(ownerID, reportID)] = fl
}

func (c *Controller) currentFlow(ownerID, reportID string) *flow {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flows[flowKey(ownerID, reportID)]
}

func (c *Controller) clearFlow(ownerID, reportID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.flows, flowKey(ownerID, reportID))
}

func flowKey(ownerID, reportID string) string {
	return ownerID + "/" + reportID
}

// sweep runs in a background goroutine, cancelling confirm steps that were
// never acted on so a report cannot sit in pending-delete indefinitely.
func (c *Controller) sweep() {
	ticker := time.NewTicker(c.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runSweep()
		case <-c.done:
			return
		}
	}
}

// runSweep collects expired flows and reverts any pending deletes.
func (c *Controller) runSweep() {
	now := time.Now()

	type expired struct {
		ownerID  string
		reportID string
		state    FlowState
	}

	c.mu.Lock()
	var stale []expired
	for key, fl := range c.flows {
		if now.After(fl.deadline) {
			owner, report, ok := strings.Cut(key, "/")
			if !ok {
				delete(c.flows, key)
				continue
			}
			stale = append(stale, expired{ownerID: owner, reportID: report, state: fl.state})
		}
	}
	c.mu.Unlock()

	for _, e := range stale {
		c.locks.Lock(e.reportID)
		if e.state == StateDeleteConfirm {
			c.revertPendingDelete(e.ownerID, e.reportID)
		} else {
			c.clearFlow(e.ownerID, e.reportID)
		}
		c.locks.Unlock(e.reportID)
		c.logger.Debug("expired flow cancelled",
			"report_id", e.reportID, "owner", e.ownerID, "state", e.state.String())
	}
}

// decodePayload turns raw payload bytes into renderable text.
func decodePayload(payload []byte) (string, error) {
	if !utf8.Valid(payload) {
		return "", fmt.Errorf("%w: payload is not valid UTF-8", ErrValidation)
	}
	return string(payload), nil
}
