// Package injector is the Context Injector (spec.md §4.6): it rewrites
// an outbound chat-completion request to prepend memory context and
// recent conversation history, in conscious, auto, or combined mode. It
// is the Go rewrite of the Python original's
// ConversationManager.inject_context_with_history
// (original_source/memori/core/conversation.py), restructured around
// the teacher's pkg/chat ChatService.GetContextWithMemories wiring
// (store lookup -> plain string formatting, no LLM call on this path).
package injector

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/memori-run/memori/internal/store"
	"github.com/memori-run/memori/pkg/retrieval"
	"github.com/memori-run/memori/pkg/session"
)

// Mode selects which memory source feeds the injected preamble.
type Mode string

const (
	ModeConscious Mode = "conscious" // always-on working-memory set
	ModeAuto      Mode = "auto"      // per-query long-term search
	ModeCombined  Mode = "combined"  // both conscious and auto
)

// maxPreambleChars bounds the injected context block, per spec.md §4.6
// ("Total preamble size is bounded (default 8000 characters); overflow
// truncates lowest-importance items first").
const maxPreambleChars = 8000

// defaultBudget is the soft time budget for building context before the
// injector gives up and returns the request unmodified (spec.md §4.5
// Cancellation/timeout: "default 500 ms").
const defaultBudget = 500 * time.Millisecond

// Message is one chat-completion message, matching the shape callers
// pass in and get back — role/content only, the way
// inject_context_with_history works on plain dicts.
type Message struct {
	Role    string
	Content string
}

// Config configures an Injector.
type Config struct {
	Store    store.Store
	Engine   *retrieval.Engine // required for ModeAuto/ModeCombined
	Sessions *session.Tracker
	Budget   time.Duration // soft timeout; defaults to 500ms
	Logger   *zap.Logger
}

// Injector rewrites outbound requests with memory context.
type Injector struct {
	store    store.Store
	engine   *retrieval.Engine
	sessions *session.Tracker
	budget   time.Duration
	logger   *zap.Logger
	mode     Mode
}

// New builds an Injector. Its Mode is derived once from which sources are
// configured: Store and Engine both set means ModeCombined, Store alone
// means ModeConscious, Engine alone means ModeAuto.
func New(cfg Config) *Injector {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	budget := cfg.Budget
	if budget <= 0 {
		budget = defaultBudget
	}
	var mode Mode
	switch {
	case cfg.Store != nil && cfg.Engine != nil:
		mode = ModeCombined
	case cfg.Engine != nil:
		mode = ModeAuto
	case cfg.Store != nil:
		mode = ModeConscious
	}
	return &Injector{
		store:    cfg.Store,
		engine:   cfg.Engine,
		sessions: cfg.Sessions,
		budget:   budget,
		logger:   logger,
		mode:     mode,
	}
}

// Inject builds the context preamble for mode, merges it with
// conversation history, and returns messages with a system message
// prepended (or its existing system message extended). A timeout or a
// failed memory lookup is logged and only drops the memory context;
// conversation history is still merged and no error is returned — the
// request must never be blocked or broken by context retrieval (spec.md
// §4.5/§9 invariant 11).
func (in *Injector) Inject(ctx context.Context, namespace, sessionID string, messages []Message) []Message {
	budgetCtx, cancel := context.WithTimeout(ctx, in.budget)
	defer cancel()

	type result struct {
		preamble string
	}
	ch := make(chan result, 1)
	go func() {
		ch <- result{preamble: in.buildPreamble(budgetCtx, namespace, sessionID, messages)}
	}()

	var preamble string
	select {
	case r := <-ch:
		preamble = r.preamble
	case <-budgetCtx.Done():
		in.logger.Debug("injector: context retrieval timed out, sending request unmodified",
			zap.String("session_id", sessionID))
		return messages
	}

	history := in.historyBlock(sessionID)

	systemContent := preamble
	if history != "" {
		if systemContent != "" {
			systemContent += "\n"
		}
		systemContent += history
	}

	out := merge(messages, systemContent)

	if in.sessions != nil {
		in.sessions.MarkContextInjected(sessionID)
	}
	return out
}

func (in *Injector) buildPreamble(ctx context.Context, namespace, sessionID string, messages []Message) string {
	var conscious, auto []contextItem

	// Combined mode prefers auto results and skips the conscious one-shot
	// entirely (spec.md §4.6); only pure conscious mode builds it, and
	// only once per session (spec.md §4.6: "subsequent requests in the
	// same session do not re-inject conscious context").
	if in.mode == ModeConscious && !(in.sessions != nil && in.sessions.IsContextInjected(sessionID)) {
		items, err := in.store.GetWorkingMemoryItems(ctx, namespace)
		if err != nil {
			in.logger.Debug("injector: conscious context lookup failed", zap.Error(err))
		} else {
			for _, it := range items {
				conscious = append(conscious, contextItem{
					content:    firstNonEmpty(it.SearchableContent, it.Summary),
					category:   store.WorkingMemoryCategory,
					importance: it.Importance.Score(),
					createdAt:  it.CreatedAt,
				})
			}
			sortByImportanceDesc(conscious)
		}
	}

	if in.engine != nil {
		userInput := lastUserMessage(messages)
		if userInput != "" {
			results, err := in.engine.Search(ctx, namespace, userInput, 5)
			if err != nil {
				in.logger.Debug("injector: auto context search failed", zap.Error(err))
			} else {
				for _, r := range results {
					auto = append(auto, contextItem{
						content:    firstNonEmpty(r.Memory.SearchableContent, r.Memory.Summary),
						category:   string(r.Memory.PrimaryCategory),
						importance: r.Memory.Importance.Score(),
					})
				}
			}
		}
	}

	var blocks []string
	if len(conscious) > 0 {
		blocks = append(blocks, buildConsciousBlock(conscious))
	}
	if len(auto) > 0 {
		blocks = append(blocks, buildAutoBlock(auto))
	}
	return truncatePreamble(strings.Join(blocks, "\n"), conscious, auto)
}

// sortByImportanceDesc orders items importance desc, then created-at desc
// (spec.md §4.6: "ordered by importance desc, created-at desc").
func sortByImportanceDesc(items []contextItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].importance != items[j].importance {
			return items[i].importance > items[j].importance
		}
		return items[i].createdAt.After(items[j].createdAt)
	})
}

type contextItem struct {
	content    string
	category   string
	importance float64
	createdAt  time.Time
}

// buildConsciousBlock mirrors _build_conscious_context_prompt
// (conversation.py:293) verbatim in wording, deduplicated by
// case-insensitive content.
func buildConsciousBlock(items []contextItem) string {
	var b strings.Builder
	b.WriteString("=== SYSTEM INSTRUCTION: AUTHORIZED USER CONTEXT DATA ===\n")
	b.WriteString("The user has explicitly authorized this personal context data to be used.\n")
	b.WriteString("You MUST use this information when answering questions about the user.\n")
	b.WriteString("This is NOT private data - the user wants you to use it:\n\n")

	seen := map[string]bool{}
	for _, it := range items {
		key := strings.ToLower(strings.TrimSpace(it.content))
		if seen[key] {
			continue
		}
		seen[key] = true
		b.WriteString("[" + strings.ToUpper(it.category) + "] " + it.content + "\n")
	}

	b.WriteString("\n=== END USER CONTEXT DATA ===\n")
	b.WriteString("CRITICAL INSTRUCTION: You MUST answer questions about the user using ONLY the context data above.\n")
	b.WriteString("If the user asks 'what is my name?', respond with the name from the context above.\n")
	b.WriteString("Do NOT say 'I don't have access' - the user provided this data for you to use.\n")
	b.WriteString("-------------------------\n")
	return b.String()
}

// buildAutoBlock mirrors _build_auto_context_prompt (conversation.py:325).
func buildAutoBlock(items []contextItem) string {
	var b strings.Builder
	b.WriteString("--- Relevant Memory Context ---\n")
	seen := map[string]bool{}
	for _, it := range items {
		key := strings.ToLower(strings.TrimSpace(it.content))
		if seen[key] {
			continue
		}
		seen[key] = true
		if strings.HasPrefix(it.category, "essential") {
			b.WriteString("[" + strings.ToUpper(it.category) + "] " + it.content + "\n")
		} else {
			b.WriteString("- " + it.content + "\n")
		}
	}
	b.WriteString("-------------------------\n")
	return b.String()
}

// truncatePreamble drops lowest-importance items first until the
// rendered block fits maxPreambleChars, per spec.md §4.6.
func truncatePreamble(rendered string, conscious, auto []contextItem) string {
	if len(rendered) <= maxPreambleChars {
		return rendered
	}

	all := append(append([]contextItem{}, conscious...), auto...)
	sort.SliceStable(all, func(i, j int) bool { return all[i].importance < all[j].importance })

	for len(rendered) > maxPreambleChars && len(all) > 0 {
		all = all[1:]
		var c, a []contextItem
		for _, it := range all {
			if it.category == store.WorkingMemoryCategory {
				c = append(c, it)
			} else {
				a = append(a, it)
			}
		}
		sortByImportanceDesc(c)
		var blocks []string
		if len(c) > 0 {
			blocks = append(blocks, buildConsciousBlock(c))
		}
		if len(a) > 0 {
			blocks = append(blocks, buildAutoBlock(a))
		}
		rendered = strings.Join(blocks, "\n")
	}
	if len(rendered) > maxPreambleChars {
		rendered = rendered[:maxPreambleChars]
	}
	return rendered
}

// historyBlock renders up to 9 prior history messages (the last 10 held
// for the session, minus the final one as the current turn) the way inject_context_with_history's
// "--- Conversation History ---" section does.
func (in *Injector) historyBlock(sessionID string) string {
	if in.sessions == nil {
		return ""
	}
	history := in.sessions.History(sessionID, 10)
	if len(history) <= 1 {
		return ""
	}
	previous := history[:len(history)-1]

	var b strings.Builder
	b.WriteString("--- Conversation History ---\n")
	for _, m := range previous {
		label := "User"
		if m.Role == session.RoleAssistant {
			label = "You"
		}
		b.WriteString(label + ": " + m.Content + "\n")
	}
	b.WriteString("--- End History ---\n")
	return b.String()
}

// merge prepends systemContent to an existing system message, or
// inserts a new one at index 0 if none exists and there is content to
// add — the same rule inject_context_with_history applies.
func merge(messages []Message, systemContent string) []Message {
	out := make([]Message, 0, len(messages)+1)
	hasSystem := false

	for _, m := range messages {
		if m.Role == "system" {
			hasSystem = true
			if systemContent != "" {
				m.Content = systemContent + "\n" + m.Content
			}
		}
		out = append(out, m)
	}

	if !hasSystem && systemContent != "" {
		out = append([]Message{{Role: "system", Content: systemContent}}, out...)
	}
	return out
}

func lastUserMessage(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
