// Package consciousagent is the Conscious Agent (spec.md §4.7): a
// background loop that periodically promotes eligible long-term
// memories into the always-injected working-memory set, plus a
// manual trigger for immediate analysis. It is the Go rewrite of the
// Python original's _background_analysis_loop/trigger_conscious_analysis
// (original_source/memori/core/memory.py:2056-2200), restructured
// around robfig/cron/v3 the way everydev1618-govega/serve/scheduler.go
// runs a cron-scheduled background job under a cancellable context
// instead of Python's asyncio-task-plus-thread-fallback dance.
package consciousagent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/memori-run/memori/internal/store"
)

// analysisInterval mirrors the Python loop's asyncio.sleep(300) check
// interval — a periodic pass every 5 minutes.
const analysisInterval = 5 * time.Minute

// errorBackoff mirrors the Python loop's asyncio.sleep(60) retry delay
// after a failed pass.
const errorBackoff = 1 * time.Minute

// Agent promotes eligible ProcessedMemory rows into WorkingMemoryItem
// rows on an initial pass plus a periodic schedule, and can be told to
// run a pass immediately.
type Agent struct {
	store     store.Store
	namespace string
	logger    *zap.Logger

	c        *cron.Cron
	entryID  cron.EntryID
	trigger  chan struct{}

	mu      sync.Mutex
	running bool
	lastErr error
}

// Config configures an Agent.
type Config struct {
	Store     store.Store
	Namespace string
	Logger    *zap.Logger
}

// New builds an Agent for a single namespace; the Orchestrator runs one
// per active namespace.
func New(cfg Config) *Agent {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agent{
		store:     cfg.Store,
		namespace: cfg.Namespace,
		logger:    logger,
		c:         cron.New(),
		trigger:   make(chan struct{}, 1),
	}
}

// Start runs an initial promotion pass, then schedules a periodic pass
// every 5 minutes via a cron entry, and blocks until ctx is cancelled. A
// failed pass is logged and followed by a 1-minute backoff rather than
// aborting the loop; the next scheduled tick or trigger runs the next
// pass.
func (a *Agent) Start(ctx context.Context) {
	a.mu.Lock()
	a.running = true
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()

	a.runPass(ctx)

	entryID, err := a.c.AddFunc(fmt.Sprintf("@every %s", analysisInterval), func() { a.runPass(ctx) })
	if err != nil {
		a.logger.Error("consciousagent: scheduling periodic pass failed", zap.Error(err))
		return
	}
	a.entryID = entryID
	a.c.Start()
	defer a.c.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Debug("consciousagent: background loop cancelled", zap.String("namespace", a.namespace))
			return
		case <-a.trigger:
			a.runPass(ctx)
		}
	}
}

// TriggerNow requests an immediate promotion pass without waiting for
// the next periodic tick (trigger_conscious_analysis,
// memory.py:2173). Non-blocking: a pending trigger is coalesced if one
// is already queued.
func (a *Agent) TriggerNow() {
	select {
	case a.trigger <- struct{}{}:
	default:
	}
}

// IsRunning reports whether the background loop is active.
func (a *Agent) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// LastError returns the error from the most recent failed pass, or nil.
func (a *Agent) LastError() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}

// runPass runs one promotion pass. On failure it records the error, waits
// errorBackoff (or until ctx is cancelled), and returns without running
// the pass again; the next scheduled tick or trigger is the retry.
func (a *Agent) runPass(ctx context.Context) {
	if err := a.promote(ctx); err != nil {
		a.mu.Lock()
		a.lastErr = err
		a.mu.Unlock()
		a.logger.Warn("consciousagent: promotion pass failed, backing off",
			zap.String("namespace", a.namespace), zap.Error(err))

		select {
		case <-ctx.Done():
		case <-time.After(errorBackoff):
		}
		return
	}
	a.mu.Lock()
	a.lastErr = nil
	a.mu.Unlock()
}

// promote copies every eligible ProcessedMemory into working_memory
// (spec.md §4.7: "Invariant: every promoted memory has a corresponding
// working-memory row; promotion is idempotent").
func (a *Agent) promote(ctx context.Context) error {
	candidates, err := a.store.GetMemoriesForPromotion(ctx, a.namespace)
	if err != nil {
		return fmt.Errorf("consciousagent: fetching promotion candidates: %w", err)
	}

	for _, mem := range candidates {
		item := store.WorkingMemoryItem{
			ID:                mem.ID + "-working",
			SourceMemoryID:    mem.ID,
			Namespace:         mem.Namespace,
			Summary:           mem.Summary,
			SearchableContent: mem.SearchableContent,
			Importance:        mem.Importance,
			IsPermanent:       mem.Classification == store.ClassificationEssential,
			CreatedAt:         time.Now(),
		}
		if _, err := a.store.StoreWorkingMemoryItem(ctx, item); err != nil {
			return fmt.Errorf("consciousagent: storing working memory item for %s: %w", mem.ID, err)
		}
	}

	a.logger.Debug("consciousagent: promotion pass complete",
		zap.String("namespace", a.namespace), zap.Int("promoted", len(candidates)))
	return nil
}
