package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/memori-run/memori/internal/store"
	"github.com/memori-run/memori/pkg/analysis"
)

// PromotionSignal is invoked when a stored ProcessedMemory is eligible
// for promotion and conscious mode is enabled (spec.md §4.3 step 6); the
// Orchestrator wires it to trigger an immediate Conscious Agent pass so
// new candidates are promoted without waiting for the periodic tick.
type PromotionSignal func(namespace, memoryID string)

// Config configures a Pipeline.
type Config struct {
	Store           store.Store
	Provider        analysis.Provider
	Filters         Filters
	ConsciousMode   bool
	PoolSize        int // worker pool size for Dispatch; defaults to 16
	OnPromotion     PromotionSignal
	Logger          *zap.Logger
}

// Pipeline implements the per-turn extract→validate→dedup→filter→store
// flow, dispatched off a bounded goroutine pool so a burst of captured
// turns cannot spawn unbounded goroutines (spec.md §9 "per-turn pipeline
// dispatch → worker pool").
type Pipeline struct {
	store    store.Store
	provider analysis.Provider
	filters  Filters
	conscious bool
	onPromotion PromotionSignal
	logger   *zap.Logger

	pool *ants.Pool

	mu          sync.RWMutex
	userContext UserContext
}

// New builds a Pipeline. It returns an error if the store is missing or
// the worker pool fails to initialize.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("pipeline: store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 16
	}

	pool, err := ants.NewPool(poolSize, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("pipeline: creating worker pool: %w", err)
	}

	return &Pipeline{
		store:       cfg.Store,
		provider:    cfg.Provider,
		filters:     cfg.Filters,
		conscious:   cfg.ConsciousMode,
		onPromotion: cfg.OnPromotion,
		logger:      logger,
		pool:        pool,
	}, nil
}

// SetUserContext updates the hints fed into future extraction calls.
func (p *Pipeline) SetUserContext(uc UserContext) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userContext = uc
}

func (p *Pipeline) currentUserContext() UserContext {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.userContext
}

// Dispatch submits turn for asynchronous processing without blocking the
// caller (spec.md §4.3 Concurrency). If the pool's queue is full — the
// backpressure high-water mark spec.md §5 describes — the turn is
// already persisted by the caller (ChatTurn write happens before
// Dispatch is called) and only ProcessedMemory extraction is dropped;
// the drop is counted via IncrementDroppedExtraction, never surfaced as
// an error to the caller.
func (p *Pipeline) Dispatch(ctx context.Context, turn store.ChatTurn) {
	err := p.pool.Submit(func() {
		bg := context.Background()
		if err := p.Process(bg, turn); err != nil {
			p.logger.Warn("pipeline: processing turn failed",
				zap.String("turn_id", turn.ID), zap.Error(err))
		}
	})
	if err != nil {
		p.logger.Warn("pipeline: dropping extraction under backpressure",
			zap.String("turn_id", turn.ID), zap.Error(err))
		if ierr := p.store.IncrementDroppedExtraction(ctx, turn.Namespace); ierr != nil {
			p.logger.Error("pipeline: failed to record dropped extraction", zap.Error(ierr))
		}
	}
}

// Process runs the full pipeline synchronously: build context, extract,
// deduplicate, filter, store, and signal promotion. Exported so callers
// (and tests) can run it without going through the worker pool.
func (p *Pipeline) Process(ctx context.Context, turn store.ChatTurn) error {
	if p.provider == nil {
		return nil // no analysis LLM configured: turn stays chat-history-only
	}

	convCtx, err := p.buildContext(ctx, turn)
	if err != nil {
		return fmt.Errorf("pipeline: building context: %w", err)
	}

	mem, err := p.extract(ctx, turn, convCtx)
	if err != nil {
		p.logger.Debug("pipeline: extraction dropped", zap.String("turn_id", turn.ID), zap.Error(err))
		return nil // analysis errors are always swallowed, spec.md §7
	}
	if mem == nil {
		return nil // nothing extraction-worthy in this turn
	}

	if err := p.deduplicate(ctx, mem); err != nil {
		return fmt.Errorf("pipeline: deduplicating: %w", err)
	}

	if !mem.IsDuplicate() && !p.filters.allows(mem) {
		return nil // filtered memories are not stored, spec.md §4.3 step 4
	}

	inserted, err := p.store.StoreProcessedMemory(ctx, *mem)
	if err != nil {
		return fmt.Errorf("pipeline: storing processed memory: %w", err)
	}
	if !inserted {
		return nil
	}

	if mem.PromotionEligible && p.conscious && p.onPromotion != nil {
		p.onPromotion(mem.Namespace, mem.ID)
	}
	return nil
}

func (p *Pipeline) buildContext(ctx context.Context, turn store.ChatTurn) (ConversationContext, error) {
	recent, err := p.store.GetRecentUndedupedMemories(ctx, turn.Namespace, 10)
	if err != nil {
		return ConversationContext{}, err
	}
	summaries := make([]string, 0, len(recent))
	for _, m := range recent {
		summaries = append(summaries, m.Summary)
	}
	return ConversationContext{
		SessionID:       turn.SessionID,
		Model:           turn.Model,
		UserContext:     p.currentUserContext(),
		RecentSummaries: summaries,
	}, nil
}

type extractedEntity struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type extractedMemory struct {
	Summary            string            `json:"summary"`
	SearchableContent  string            `json:"searchable_content"`
	Category           string            `json:"category"`
	Importance         string            `json:"importance"`
	Classification     string            `json:"classification"`
	PromotionEligible  bool              `json:"promotion_eligible"`
	Entities           []extractedEntity `json:"entities"`
}

// extract calls the analysis LLM once, validates against
// analysis.ProcessedMemorySchema, and retries once on validation
// failure before giving up (spec.md §4.3 step 2).
func (p *Pipeline) extract(ctx context.Context, turn store.ChatTurn, convCtx ConversationContext) (*store.ProcessedMemory, error) {
	messages := p.buildExtractionMessages(turn, convCtx)

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		raw, err := p.provider.Chat(ctx, messages, 1024, 0.2, analysis.ProcessedMemorySchema)
		if err != nil {
			return nil, err // transient/rate-limit retries already happened inside the provider
		}
		if err := analysis.Validate(analysis.ProcessedMemorySchema, raw); err != nil {
			lastErr = err
			continue
		}
		var em extractedMemory
		if err := json.Unmarshal([]byte(raw), &em); err != nil {
			lastErr = fmt.Errorf("pipeline: parsing extraction output: %w", err)
			continue
		}
		return p.toProcessedMemory(turn, em), nil
	}
	return nil, lastErr
}

func (p *Pipeline) buildExtractionMessages(turn store.ChatTurn, convCtx ConversationContext) []analysis.Message {
	system := "You extract a single structured memory from a conversation turn. " +
		"Respond with JSON matching the requested schema only."

	var ctxLines string
	if len(convCtx.RecentSummaries) > 0 {
		ctxLines = "Recent memories:\n"
		for _, s := range convCtx.RecentSummaries {
			ctxLines += "- " + s + "\n"
		}
	}
	uc := convCtx.UserContext
	if len(uc.CurrentProjects) > 0 {
		ctxLines += "Current projects: " + strings.Join(uc.CurrentProjects, ", ") + "\n"
	}
	if len(uc.RelevantSkills) > 0 {
		ctxLines += "Relevant skills: " + strings.Join(uc.RelevantSkills, ", ") + "\n"
	}
	if len(uc.Preferences) > 0 {
		ctxLines += "Preferences: " + strings.Join(uc.Preferences, ", ") + "\n"
	}

	user := fmt.Sprintf("%sUser: %s\nAssistant: %s", ctxLines, turn.UserInput, turn.AIOutput)

	return []analysis.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
}

func (p *Pipeline) toProcessedMemory(turn store.ChatTurn, em extractedMemory) *store.ProcessedMemory {
	classification := store.Classification(em.Classification)
	retention := store.RetentionLongTerm
	isShortTerm := false
	if classification == store.ClassificationConversational {
		retention = store.RetentionShortTerm
		isShortTerm = true
	}

	now := time.Now()
	var expiresAt *time.Time
	if ttl := retention.DefaultTTL(); ttl > 0 {
		e := now.Add(ttl)
		expiresAt = &e
	}

	entities := make([]store.Entity, 0, len(em.Entities))
	for _, e := range em.Entities {
		t := store.EntityType(e.Type)
		if !store.ValidEntityType(t) {
			continue
		}
		entities = append(entities, store.Entity{
			ID:              uuid.NewString(),
			Namespace:       turn.Namespace,
			Type:            t,
			Value:           e.Value,
			OccurrenceCount: 1,
		})
	}

	return &store.ProcessedMemory{
		ID:                uuid.NewString(),
		SourceTurnID:      turn.ID,
		Namespace:         turn.Namespace,
		Summary:           truncate(em.Summary, 500),
		SearchableContent: truncate(em.SearchableContent, 5000),
		PrimaryCategory:   store.MemoryCategory(em.Category),
		Importance:        store.Importance(em.Importance),
		Classification:    classification,
		PromotionEligible: em.PromotionEligible || classification == store.ClassificationEssential,
		Entities:          entities,
		RetentionType:     retention,
		CreatedAt:         now,
		ExpiresAt:         expiresAt,
		IsShortTerm:       isShortTerm,
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// deduplicate compares candidate against up to 20 recent un-deduped
// long-term memories in the same namespace (spec.md §4.3 step 3).
func (p *Pipeline) deduplicate(ctx context.Context, candidate *store.ProcessedMemory) error {
	if candidate.IsShortTerm {
		return nil // short-term conversational memories are not dedup-checked
	}

	recent, err := p.store.GetRecentUndedupedMemories(ctx, candidate.Namespace, 20)
	if err != nil {
		return err
	}
	for _, existing := range recent {
		if isDuplicate(candidate.SearchableContent, existing.SearchableContent) {
			candidate.DuplicateOf = existing.ID
			return nil
		}
	}
	return nil
}

// Close releases the worker pool.
func (p *Pipeline) Close() {
	p.pool.Release()
}
