package identity

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventRegistered       ActivityEventType = "identity.registered"
	ActivityEventLoginSuccess     ActivityEventType = "identity.login.success"
	ActivityEventLoginFailure     ActivityEventType = "identity.login.failure"
	ActivityEventFederatedLogin   ActivityEventType = "identity.federated.login"
	ActivityEventFederatedMerged  ActivityEventType = "identity.federated.merged"
	ActivityEventProfileUpdated   ActivityEventType = "identity.profile.updated"
	ActivityEventEmailChanged     ActivityEventType = "identity.email.changed"
	ActivityEventPasswordChanged  ActivityEventType = "identity.password.changed"
	ActivityEventDeleted          ActivityEventType = "identity.deleted"
	ActivityEventCreditsMutated   ActivityEventType = "identity.credits.mutated"
	ActivityEventCreditsRejected  ActivityEventType = "identity.credits.rejected"
	ActivityEventProfileCompleted ActivityEventType = "identity.profile.completed"
)

// ActorRef identifies who triggered an event. Type is the principal source
// for authenticated requests and "anonymous" otherwise.
type ActorRef struct {
	ID   string
	Type string
}

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	IdentityID string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// recordActivity emits best effort; sink errors are logged and dropped.
func recordActivity(ctx context.Context, sink ActivitySink, logger Logger, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if event.Actor.ID == "" {
		event.Actor = actorFrom(ctx)
	}
	if err := sink.Record(ctx, event); err != nil {
		logger.Warn("activity sink failed for %s: %v", event.EventType, err)
	}
}

func actorFrom(ctx context.Context) ActorRef {
	if p, ok := PrincipalFromContext(ctx); ok {
		return ActorRef{ID: p.IdentityID.String(), Type: string(p.Source)}
	}
	return ActorRef{Type: "anonymous"}
}
