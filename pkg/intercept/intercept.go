// Package intercept is the Interception Layer (spec.md §4.8): a registry
// of conversation-capture hooks with a fallback-enable strategy,
// per-hook circuit breaking, and fail-open semantics, so a broken or
// unavailable interception method never blocks the underlying LLM call.
// Grounded on original_source/memori/interceptors/manager.py's
// InterceptorManager (enable-with-fallback over a fixed hook list,
// get_status/get_interceptor_status introspection) and
// interceptors/base.py's ConversationInterceptor (per-hook failure
// count, reset timeout, health_check) — rewritten from Python's
// ABC+threading.RLock into a Go interface registry guarded by
// sync.Mutex.
package intercept

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// maxFailures and failureResetTimeout mirror base.py's circuit-breaker
// constants (_max_failures=5, _failure_reset_timeout=300s).
const (
	maxFailures         = 5
	failureResetTimeout = 5 * time.Minute
)

// Turn is the conversation data a Hook captures and hands to the
// registry for recording.
type Turn struct {
	SessionID string
	UserInput string
	AIOutput  string
	Model     string
	Metadata  map[string]any
}

// Recorder is the Orchestrator surface a Hook ultimately calls into —
// Record persists the turn and dispatches it into the memory pipeline.
type Recorder interface {
	Record(ctx context.Context, turn Turn) error
}

// Hook is one conversation-capture method: native callback, client
// subclass, transport middleware, or explicit record call (spec.md
// §4.8's four contracts). Enable/Disable report success so the registry
// can fall back to the next hook in the list.
type Hook interface {
	Name() string
	Enable() bool
	Disable() bool
}

// hookState tracks per-hook circuit-breaker bookkeeping, mirroring
// ConversationInterceptor's _failure_count/_last_failure_time.
type hookState struct {
	hook         Hook
	enabled      bool
	failureCount int
	lastFailure  time.Time
}

// Registry coordinates a fixed list of Hooks with a fallback-enable
// strategy and fail-open recording.
type Registry struct {
	mu       sync.Mutex
	hooks    []*hookState
	recorder Recorder
	seen     map[string]time.Time // dedup key -> last-seen time
	logger   *zap.Logger
}

// New builds a Registry over the given hooks, in fallback-preference
// order (native first, then client, transport, explicit — spec.md
// §4.8's listed contract order).
func New(recorder Recorder, logger *zap.Logger, hooks ...Hook) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	states := make([]*hookState, 0, len(hooks))
	for _, h := range hooks {
		states = append(states, &hookState{hook: h})
	}
	return &Registry{hooks: states, recorder: recorder, seen: map[string]time.Time{}, logger: logger}
}

// Enable tries each named hook (in registry order if names is empty),
// enabling every one that succeeds rather than stopping at the first —
// matching InterceptorManager.enable's "try each requested method,
// record per-method success" behavior. Returns name -> success.
func (r *Registry) Enable(names ...string) map[string]bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	want := map[string]bool{}
	for _, n := range names {
		want[n] = true
	}

	results := map[string]bool{}
	for _, st := range r.hooks {
		if len(names) > 0 && !want[st.hook.Name()] {
			continue
		}
		ok := st.hook.Enable()
		results[st.hook.Name()] = ok
		st.enabled = ok
		if ok {
			r.logger.Debug("intercept: hook enabled", zap.String("hook", st.hook.Name()))
		} else {
			r.logger.Debug("intercept: hook failed to enable", zap.String("hook", st.hook.Name()))
		}
	}
	return results
}

// Disable disables every currently-enabled hook, returning name -> success.
func (r *Registry) Disable() map[string]bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	results := map[string]bool{}
	for _, st := range r.hooks {
		if !st.enabled {
			continue
		}
		ok := st.hook.Disable()
		results[st.hook.Name()] = ok
		if ok {
			st.enabled = false
		}
	}
	return results
}

// Status is the per-hook health snapshot (get_status, manager.py:101).
type Status struct {
	Name         string
	Enabled      bool
	FailureCount int
	Operational  bool
}

// Health returns a Status for every registered hook.
func (r *Registry) Health() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Status, 0, len(r.hooks))
	for _, st := range r.hooks {
		out = append(out, Status{
			Name:         st.hook.Name(),
			Enabled:      st.enabled,
			FailureCount: st.failureCount,
			Operational:  r.shouldAllow(st),
		})
	}
	return out
}

func (r *Registry) shouldAllow(st *hookState) bool {
	if st.failureCount < maxFailures {
		return true
	}
	if time.Since(st.lastFailure) > failureResetTimeout {
		st.failureCount = 0
		return true
	}
	return false
}

// recordKey dedups a turn so the same exchange captured by two
// overlapping hooks (e.g. a transport hook and an explicit Record call)
// is only stored once.
func recordKey(t Turn, at time.Time) string {
	return t.SessionID + "|" + t.UserInput + "|" + at.Truncate(time.Second).String()
}

// Capture is called by a Hook once it has extracted a Turn. It is
// fail-open: hooks MUST NOT propagate a recording failure back into the
// caller's LLM request path (spec.md §4.8 "Hooks MUST NOT raise; any
// failure is logged and the original call proceeds untouched"), so
// Capture never returns an error — it logs and updates the issuing
// hook's circuit-breaker state instead.
func (r *Registry) Capture(ctx context.Context, hookName string, turn Turn) {
	r.mu.Lock()
	now := time.Now()
	key := recordKey(turn, now)
	if lastSeen, dup := r.seen[key]; dup && now.Sub(lastSeen) < time.Minute {
		r.mu.Unlock()
		r.logger.Debug("intercept: duplicate turn dropped", zap.String("hook", hookName))
		return
	}
	r.seen[key] = now
	var st *hookState
	for _, s := range r.hooks {
		if s.hook.Name() == hookName {
			st = s
			break
		}
	}
	r.mu.Unlock()

	if r.recorder == nil {
		return
	}
	if err := r.recorder.Record(ctx, turn); err != nil {
		r.logger.Warn("intercept: recording failed, call proceeds unaffected",
			zap.String("hook", hookName), zap.Error(err))
		r.mu.Lock()
		if st != nil {
			st.failureCount++
			st.lastFailure = time.Now()
		}
		r.mu.Unlock()
		return
	}

	r.mu.Lock()
	if st != nil && st.failureCount > 0 {
		st.failureCount = 0
	}
	r.mu.Unlock()
}
