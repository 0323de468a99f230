package auth

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventUserStatusChanged ActivityEventType = "user.status.changed"
	ActivityEventSignup            ActivityEventType = "auth.signup"
	ActivityEventLoginSuccess      ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure      ActivityEventType = "auth.login.failure"
	ActivityEventRefreshRejected   ActivityEventType = "auth.refresh.rejected"
	ActivityEventLogoutAll         ActivityEventType = "auth.logout.all"
	ActivityEventPasswordSet       ActivityEventType = "auth.password.set"
	ActivityEventSocialLogin       ActivityEventType = "auth.social.login"
	ActivityEventSocialLinked      ActivityEventType = "auth.social.linked"
	ActivityEventSocialUnlinked    ActivityEventType = "auth.social.unlinked"
)

// ActorRef identifies who/what triggered an action.
type ActorRef struct {
	ID   string
	Type string
}

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	UserID     string
	FromStatus UserStatus
	ToStatus   UserStatus
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing purposes.
// Recording is best effort, failures are logged and never fail the action.
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

// LoggerActivitySink writes events to a Logger
func LoggerActivitySink(logger Logger) ActivitySink {
	return ActivitySinkFunc(func(_ context.Context, event ActivityEvent) error {
		args := []any{"event", event.EventType, "user_id", event.UserID}
		if event.Actor.ID != "" {
			args = append(args, "actor", event.Actor.ID)
		}
		for k, v := range event.Metadata {
			args = append(args, k, v)
		}
		logger.Info("activity", args...)
		return nil
	})
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

// RecordActivity stamps the event and hands it to the sink, sink errors are logged
func RecordActivity(ctx context.Context, sink ActivitySink, logger Logger, now time.Time, event ActivityEvent) {
	if event.Actor == (ActorRef{}) {
		event.Actor = ActorRef{ID: event.UserID, Type: "user"}
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = now
	}
	if err := normalizeActivitySink(sink).Record(ctx, event); err != nil {
		logger.Warn("activity sink error", "event", event.EventType, "error", err)
	}
}
