package activitymap

import (
	"context"
	"maps"
	"strings"
	"time"

	"github.com/inflowhq/go-auth"
	"go.uber.org/zap"
)

const (
	// MetadataKeyActorType stores the actor type derived from auth.ActorRef.Type.
	MetadataKeyActorType = "actor_type"
	// MetadataKeyFromStatus stores the source user status for lifecycle transitions.
	MetadataKeyFromStatus = "from_status"
	// MetadataKeyToStatus stores the target user status for lifecycle transitions.
	MetadataKeyToStatus = "to_status"
)

const (
	defaultChannel    = "auth"
	defaultObjectType = "user"
	defaultActorID    = "system"
)

// Normalized is a transport-agnostic activity shape for audit pipelines.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization behavior.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel          string
	objectType       string
	actorFallback    string
	objectIDResolver func(auth.ActivityEvent) string
	now              func() time.Time
}

// Normalize converts an auth.ActivityEvent into the Normalized shape.
// The event metadata is copied, never mutated.
func Normalize(event auth.ActivityEvent, opts ...Option) Normalized {
	options := defaultNormalizeOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	actorID := firstNonEmpty(
		strings.TrimSpace(event.Actor.ID),
		strings.TrimSpace(event.UserID),
		options.actorFallback,
	)

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = options.now().UTC()
	}

	return Normalized{
		ActorID:    actorID,
		Verb:       string(event.EventType),
		ObjectType: options.objectType,
		ObjectID:   resolveObjectID(event, options.objectIDResolver),
		Channel:    options.channel,
		Metadata:   normalizeMetadata(event),
		OccurredAt: occurredAt,
	}
}

// WithDefaultChannel sets the channel for normalized records.
func WithDefaultChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		opts.channel = strings.TrimSpace(channel)
	}
}

// WithDefaultObjectType sets the object type for normalized records.
func WithDefaultObjectType(objectType string) Option {
	return func(opts *normalizeOptions) {
		opts.objectType = strings.TrimSpace(objectType)
	}
}

// WithObjectIDResolver overrides object-id extraction, the default is the event user id.
func WithObjectIDResolver(resolver func(auth.ActivityEvent) string) Option {
	return func(opts *normalizeOptions) {
		opts.objectIDResolver = resolver
	}
}

// WithActorFallback sets the actor id used when the event has neither actor nor user.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		opts.actorFallback = strings.TrimSpace(actorID)
	}
}

// WithClock sets the time source for events without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(opts *normalizeOptions) {
		if now != nil {
			opts.now = now
		}
	}
}

// ZapSink returns an auth.ActivitySink that writes normalized records to logger.
func ZapSink(logger *zap.Logger, opts ...Option) auth.ActivitySink {
	logger = logger.Named("activity")
	return auth.ActivitySinkFunc(func(_ context.Context, event auth.ActivityEvent) error {
		record := Normalize(event, opts...)
		logger.Info(record.Verb,
			zap.String("actor_id", record.ActorID),
			zap.String("object_type", record.ObjectType),
			zap.String("object_id", record.ObjectID),
			zap.String("channel", record.Channel),
			zap.Time("occurred_at", record.OccurredAt),
			zap.Any("metadata", record.Metadata),
		)
		return nil
	})
}

func defaultNormalizeOptions() normalizeOptions {
	return normalizeOptions{
		channel:       defaultChannel,
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
		now:           time.Now,
	}
}

func resolveObjectID(event auth.ActivityEvent, resolver func(auth.ActivityEvent) string) string {
	if resolver != nil {
		return strings.TrimSpace(resolver(event))
	}
	return strings.TrimSpace(event.UserID)
}

func normalizeMetadata(event auth.ActivityEvent) map[string]any {
	var metadata map[string]any
	if len(event.Metadata) > 0 {
		metadata = maps.Clone(event.Metadata)
	}

	set := func(key, value string, overwrite bool) {
		if value == "" {
			return
		}
		if metadata == nil {
			metadata = map[string]any{}
		}
		if _, exists := metadata[key]; exists && !overwrite {
			return
		}
		metadata[key] = value
	}

	set(MetadataKeyActorType, strings.TrimSpace(event.Actor.Type), false)
	set(MetadataKeyFromStatus, string(event.FromStatus), true)
	set(MetadataKeyToStatus, string(event.ToStatus), true)

	return metadata
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
