package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Event types emitted by the workflows.
const (
	EventQuizCreated      = "quiz.created"
	EventQuizUpdated      = "quiz.updated"
	EventQuizPublished    = "quiz.published"
	EventQuizUnpublished  = "quiz.unpublished"
	EventQuizDeleted      = "quiz.deleted"
	EventAttemptStarted   = "attempt.started"
	EventAttemptSubmitted = "attempt.submitted"
	EventReportFiled      = "report.filed"
	EventReportResolved   = "report.resolved"
	EventPostRemoved      = "post.removed"
)

// Event describes a committed state transition.
type Event struct {
	Type       string         `json:"type"`
	EntityID   string         `json:"entityId"`
	ActorID    string         `json:"actorId"`
	OccurredAt time.Time      `json:"occurredAt"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// EventPublisher fans events out to notification consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// LogPublisher writes each event to a logger. Useful when no broker is configured.
type LogPublisher struct {
	Log zerolog.Logger
}

func (p LogPublisher) Publish(_ context.Context, event Event) error {
	p.Log.Info().
		Str("event", event.Type).
		Str("entity_id", event.EntityID).
		Str("actor_id", event.ActorID).
		Interface("payload", event.Payload).
		Msg("domain event")
	return nil
}
