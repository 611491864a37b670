// Package chat records conversation turns and dispatches them into the
// memory pipeline. It is the Go rewrite of the teacher's ChatService —
// same "wrap a store, validate, delegate, log async side effects" shape
// — narrowed from full thread/message CRUD (threads, streaming
// messages, export) down to the single operation the Interception Layer
// and Orchestrator need: record a turn once, and let the pipeline take
// it from there.
package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/memori-run/memori/internal/store"
	"github.com/memori-run/memori/pkg/intercept"
	"github.com/memori-run/memori/pkg/pipeline"
	"github.com/memori-run/memori/pkg/session"
)

// Recorder persists a conversation turn and dispatches it for
// extraction; it satisfies intercept.Recorder.
type Recorder struct {
	store     store.Store
	pipeline  *pipeline.Pipeline
	sessions  *session.Tracker
	namespace string
}

// NewRecorder creates a Recorder. pipeline may be nil (turns are then
// stored but never extracted into memories).
func NewRecorder(s store.Store, p *pipeline.Pipeline, sessions *session.Tracker, namespace string) *Recorder {
	return &Recorder{store: s, pipeline: p, sessions: sessions, namespace: namespace}
}

// Record stores turn as a ChatTurn and, if a pipeline is configured,
// dispatches it for asynchronous extraction (spec.md §4.3: "capture
// happens on the caller's critical path; extraction does not"). It
// satisfies intercept.Recorder, which has no use for the generated turn
// ID; callers that need it should use RecordTurn instead.
func (r *Recorder) Record(ctx context.Context, turn intercept.Turn) error {
	_, err := r.RecordTurn(ctx, turn)
	return err
}

// RecordTurn is Record's non-interface form, returning the generated
// turn ID (spec.md §6.1: record() -> turn-id).
func (r *Recorder) RecordTurn(ctx context.Context, turn intercept.Turn) (string, error) {
	sessionID := turn.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	ct := store.ChatTurn{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Namespace: r.namespace,
		UserInput: turn.UserInput,
		AIOutput:  turn.AIOutput,
		Model:     turn.Model,
		Timestamp: time.Now(),
		Metadata:  turn.Metadata,
	}

	if err := r.store.StoreChatTurn(ctx, ct); err != nil {
		return "", fmt.Errorf("chat: storing turn: %w", err)
	}

	if r.sessions != nil {
		r.sessions.AddUserMessage(sessionID, turn.UserInput)
		r.sessions.AddAssistantMessage(sessionID, turn.AIOutput)
	}

	if r.pipeline != nil {
		r.pipeline.Dispatch(ctx, ct)
	}
	return ct.ID, nil
}

// History returns the namespace's recent chat turns for a session.
func (r *Recorder) History(ctx context.Context, sessionID string, limit int) ([]store.ChatTurn, error) {
	return r.store.GetChatHistory(ctx, r.namespace, sessionID, limit)
}
