package retrieval

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/memori-run/memori/internal/store"
	"github.com/memori-run/memori/pkg/analysis"
)

// plannerTimeout bounds how long the optional LLM query planner may take
// before the engine gives up and proceeds with the raw/heuristic query,
// per spec.md §4.2.
const plannerTimeout = 2 * time.Second

// Config configures an Engine.
type Config struct {
	Store    store.Store
	Planner  analysis.Provider // optional; nil disables the LLM query planner
	Logger   *zap.Logger
}

// Engine is the Retrieval Engine (spec.md §4.2): it wraps
// Store.SearchMemories, which already runs the fulltext -> keyword-like
// -> category -> entity -> recent-fallback strategy ladder, adding the
// optional query-planning step that turns a raw query into keywords,
// a category hint, and entity tokens before the ladder runs.
type Engine struct {
	store   store.Store
	planner analysis.Provider
	logger  *zap.Logger
}

// New builds an Engine.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: cfg.Store, planner: cfg.Planner, logger: logger}
}

// Search resolves query into a SearchQuery and runs it against the
// store. namespace, limit and the full-text Text (the raw query) are
// caller-controlled; only the category filter and entity tokens come
// from the plan.
func (e *Engine) Search(ctx context.Context, namespace, query string, limit int) ([]store.SearchResult, error) {
	p := e.resolvePlan(ctx, namespace, query)

	q := store.SearchQuery{
		Text:           query,
		Namespace:      namespace,
		CategoryFilter: p.Category,
		EntityTokens:   p.Entities,
		Limit:          limit,
	}
	return e.store.SearchMemories(ctx, q)
}

// resolvePlan tries the LLM planner (if configured) under a bounded
// timeout, then falls back to entity-index matching plus tokenization
// when the planner is absent, errors, or is too slow — never blocking
// a search on analysis-LLM availability.
func (e *Engine) resolvePlan(ctx context.Context, namespace, query string) plan {
	entities, err := e.store.GetEntitiesByTokens(ctx, namespace, tokenize(query))
	if err != nil {
		e.logger.Debug("retrieval: entity lookup failed, continuing without entity tokens", zap.Error(err))
		entities = nil
	}
	idx, err := buildEntityIndex(entities)
	if err != nil {
		e.logger.Debug("retrieval: entity index build failed", zap.Error(err))
		idx = nil
	}
	entityTokens := idx.matchTokens(query)

	if e.planner == nil {
		h := heuristicPlan(query)
		h.Entities = entityTokens
		return h
	}

	plannerCtx, cancel := context.WithTimeout(ctx, plannerTimeout)
	defer cancel()

	type result struct {
		p   plan
		err error
	}
	ch := make(chan result, 1)
	go func() {
		p, err := planQuery(plannerCtx, e.planner, query)
		ch <- result{p, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			e.logger.Debug("retrieval: planner unavailable, falling back to raw query", zap.Error(r.err))
			h := heuristicPlan(query)
			h.Entities = entityTokens
			return h
		}
		if len(r.p.Entities) == 0 {
			r.p.Entities = entityTokens
		}
		return r.p
	case <-plannerCtx.Done():
		e.logger.Debug("retrieval: planner timed out, falling back to raw query")
		h := heuristicPlan(query)
		h.Entities = entityTokens
		return h
	}
}
