// Package memori is the Orchestrator (spec.md §4.8/§6.1): it owns
// lifecycle (Enable/Disable), wires the Storage Layer, Retrieval
// Engine, Memory Pipeline, Context Injector, Conscious Agent,
// Interception registry, and Session Tracker behind one public API, and
// reports per-namespace stats. It is the Go rewrite of the teacher's
// pkg/chat.ChatService wiring pattern (compose a store plus one
// collaborator, expose thin pass-through methods) scaled up to nine
// collaborators, with pkg/batch.Service's Config/NewService/UpdateConfig
// shape as the Config struct's grounding.
package memori

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/memori-run/memori/internal/store"
	"github.com/memori-run/memori/pkg/analysis"
	"github.com/memori-run/memori/pkg/chat"
	"github.com/memori-run/memori/pkg/consciousagent"
	"github.com/memori-run/memori/pkg/injector"
	"github.com/memori-run/memori/pkg/intercept"
	"github.com/memori-run/memori/pkg/pipeline"
	"github.com/memori-run/memori/pkg/retrieval"
	"github.com/memori-run/memori/pkg/session"
)

// Config configures Open. DatabaseURI and Namespace are required;
// everything else has a workable default.
type Config struct {
	DatabaseURI      string
	Namespace        string
	ConsciousMode    bool
	AutoMode         bool
	AnalysisProvider analysis.Provider // nil disables extraction and the retrieval planner
	UserContext      pipeline.UserContext
	Filters          pipeline.Filters
	PipelinePoolSize int
	InjectorBudgetMS int
	SchemaInit       bool // run Store.Init again when true; store.New already creates the schema on open, so false does not skip schema creation
	Logger           *zap.Logger
}

// Orchestrator is the top-level entry point wiring every Memori
// component together. Public methods are safe for concurrent use.
type Orchestrator struct {
	mu sync.RWMutex

	store     store.Store
	pipeline  *pipeline.Pipeline
	engine    *retrieval.Engine
	injector  *injector.Injector
	sessions  *session.Tracker
	agent     *consciousagent.Agent
	hooks     *intercept.Registry
	recorder  *chat.Recorder
	namespace string
	logger    *zap.Logger

	enabled          bool
	cancelAgent      context.CancelFunc
	currentSessionID string
}

// Open builds and wires an Orchestrator. Errors here wrap
// ErrConfiguration (spec.md §7: "invalid URI, missing required
// config. Surfaced at open(); fatal"), except a failed schema
// initialization, which wraps ErrDatabase.
func Open(ctx context.Context, cfg Config) (*Orchestrator, error) {
	if cfg.DatabaseURI == "" {
		return nil, fmt.Errorf("%w: database-uri is required", ErrConfiguration)
	}
	if cfg.Namespace == "" {
		return nil, fmt.Errorf("%w: namespace is required", ErrConfiguration)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	st, err := store.New(ctx, cfg.DatabaseURI)
	if err != nil {
		return nil, fmt.Errorf("%w: opening store: %v", ErrConfiguration, err)
	}
	if cfg.SchemaInit {
		if err := st.Init(ctx); err != nil {
			st.Close()
			return nil, fmt.Errorf("%w: initializing schema: %v", ErrDatabase, err)
		}
	}

	sessions := session.New(session.DefaultConfig(), logger)

	var agent *consciousagent.Agent
	if cfg.ConsciousMode {
		agent = consciousagent.New(consciousagent.Config{Store: st, Namespace: cfg.Namespace, Logger: logger})
	}

	p, err := pipeline.New(pipeline.Config{
		Store:         st,
		Provider:      cfg.AnalysisProvider,
		Filters:       cfg.Filters,
		ConsciousMode: cfg.ConsciousMode,
		PoolSize:      cfg.PipelinePoolSize,
		OnPromotion: func(string, string) {
			if agent != nil {
				agent.TriggerNow()
			}
		},
		Logger: logger,
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("%w: building pipeline: %v", ErrConfiguration, err)
	}

	var engine *retrieval.Engine
	if cfg.AutoMode {
		engine = retrieval.New(retrieval.Config{Store: st, Planner: cfg.AnalysisProvider, Logger: logger})
	}

	var budget time.Duration
	if cfg.InjectorBudgetMS > 0 {
		budget = time.Duration(cfg.InjectorBudgetMS) * time.Millisecond
	}
	injCfg := injector.Config{Sessions: sessions, Budget: budget, Logger: logger, Engine: engine}
	if cfg.ConsciousMode {
		injCfg.Store = st
	}
	inj := injector.New(injCfg)

	recorder := chat.NewRecorder(st, p, sessions, cfg.Namespace)

	o := &Orchestrator{
		store:            st,
		pipeline:         p,
		engine:           engine,
		injector:         inj,
		sessions:         sessions,
		agent:            agent,
		recorder:         recorder,
		namespace:        cfg.Namespace,
		logger:           logger,
		currentSessionID: uuid.NewString(),
	}

	p.SetUserContext(cfg.UserContext)
	o.hooks = intercept.New(recorder, logger)

	return o, nil
}

// Enable starts interception (wiring the requested hooks) and the
// Conscious Agent's background loop (spec.md §4.8). Idempotent: calling
// it twice is a no-op on the second call.
func (o *Orchestrator) Enable(hookNames ...string) map[string]bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.enabled {
		return map[string]bool{}
	}

	results := o.hooks.Enable(hookNames...)

	if o.agent != nil {
		ctx, cancel := context.WithCancel(context.Background())
		o.cancelAgent = cancel
		go o.agent.Start(ctx)
	}

	o.enabled = true
	return results
}

// Disable reverses every step Enable took, idempotently (spec.md §4.8:
// "disable() reverses every step idempotently"). In-flight pipeline
// tasks are not awaited — they check cancellation cooperatively at
// their own suspension points per spec.md §5.
func (o *Orchestrator) Disable() map[string]bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.enabled {
		return map[string]bool{}
	}
	results := o.hooks.Disable()
	if o.cancelAgent != nil {
		o.cancelAgent()
		o.cancelAgent = nil
	}
	o.enabled = false
	return results
}

// Record stores a conversation turn under the current conversation's
// session ID and returns its turn ID (spec.md §6.1 record()). Every turn
// recorded between Open (or the last StartNewConversation) lands in the
// same session, the way the original holds one `self._session_id` across
// calls to record_conversation (memory.py:258, 1676).
func (o *Orchestrator) Record(ctx context.Context, userInput, aiOutput, model string, metadata map[string]any) (string, error) {
	if userInput == "" {
		return "", fmt.Errorf("%w: user-input is required", ErrValidation)
	}
	o.mu.RLock()
	sessionID := o.currentSessionID
	o.mu.RUnlock()

	turnID, err := o.recorder.RecordTurn(ctx, intercept.Turn{
		SessionID: sessionID,
		UserInput: userInput,
		AIOutput:  aiOutput,
		Model:     model,
		Metadata:  metadata,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	return turnID, nil
}

// CurrentSessionID returns the session ID that Record currently attaches
// to every turn (`get_current_session_id`, memory.py:2489).
func (o *Orchestrator) CurrentSessionID() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.currentSessionID
}

// StartNewConversation rotates the current session ID and returns it
// (`start_new_conversation`, memory.py:2471). Subsequent Record calls land
// in the new session; the conscious one-shot flag naturally resets because
// the Session Tracker keys entirely by session ID.
func (o *Orchestrator) StartNewConversation() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	old := o.currentSessionID
	o.currentSessionID = uuid.NewString()
	o.logger.Info("started new conversation",
		zap.String("session_id", o.currentSessionID), zap.String("previous", old))
	return o.currentSessionID
}

// Search runs a retrieval query against this namespace's memories. It
// works even when auto-mode is off — it just skips LLM query planning
// and entity-index matching and falls straight to the store's search
// ladder.
func (o *Orchestrator) Search(ctx context.Context, query string, limit int) ([]store.SearchResult, error) {
	var (
		results []store.SearchResult
		err     error
	)
	if o.engine == nil {
		results, err = o.store.SearchMemories(ctx, store.SearchQuery{Text: query, Namespace: o.namespace, Limit: limit})
	} else {
		results, err = o.engine.Search(ctx, o.namespace, query, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	return results, nil
}

// Clear removes memories of the given type from this namespace.
func (o *Orchestrator) Clear(ctx context.Context, what store.ClearType) error {
	switch what {
	case store.ClearShort, store.ClearLong, store.ClearAll:
	default:
		return fmt.Errorf("%w: unknown clear type %q", ErrValidation, what)
	}
	if err := o.store.ClearMemory(ctx, o.namespace, what); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	return nil
}

// Stats reports this namespace's memory snapshot (spec.md §6.1) plus the
// in-process session occupancy (`get_session_stats`,
// conversation.py:347), which spec.md's distillation leaves out.
type Stats struct {
	store.MemoryStats
	Sessions session.Stats
}

// Stats returns this namespace's current snapshot.
func (o *Orchestrator) Stats(ctx context.Context) (Stats, error) {
	mem, err := o.store.GetMemoryStats(ctx, o.namespace)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	return Stats{MemoryStats: mem, Sessions: o.sessions.Stats()}, nil
}

// AddToMessages is the explicit-injector contract (spec.md §6.1
// add-to-messages): return a new message slice carrying memory context and
// history (the caller's slice is not modified), for callers that record conversations manually instead of
// through an interception hook.
func (o *Orchestrator) AddToMessages(ctx context.Context, sessionID string, messages []injector.Message) []injector.Message {
	return o.injector.Inject(ctx, o.namespace, sessionID, messages)
}

// SetUserContext updates the hints fed into future extraction calls
// (`update_user_context`, memory.py:2011).
func (o *Orchestrator) SetUserContext(uc pipeline.UserContext) {
	o.pipeline.SetUserContext(uc)
}

// ClearSession removes a single session's tracked history (`clear_session`,
// conversation.py:370) independent of Clear's namespace-wide storage wipe.
func (o *Orchestrator) ClearSession(sessionID string) {
	o.sessions.ClearSession(sessionID)
}

// ClearAllSessions removes every tracked session (`clear_all_sessions`,
// conversation.py:379).
func (o *Orchestrator) ClearAllSessions() {
	o.sessions.ClearAll()
}

// HookStatus reports which interception hooks are registered and whether
// they are currently enabled and operational (`get_interceptor_status`/
// `get_interceptor_health`, memory.py:668-675).
func (o *Orchestrator) HookStatus() []intercept.Status {
	return o.hooks.Health()
}

// TriggerConsciousAnalysis runs an immediate promotion pass
// (trigger_conscious_analysis, memory.py:2173), without waiting for the
// agent's next scheduled tick.
func (o *Orchestrator) TriggerConsciousAnalysis() {
	if o.agent != nil {
		o.agent.TriggerNow()
	}
}

// Close releases the pipeline's worker pool and the underlying store
// connection. Enable/Disable state is left to the caller to manage
// first — Close does not call Disable.
func (o *Orchestrator) Close() error {
	o.pipeline.Close()
	return o.store.Close()
}
