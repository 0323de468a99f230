package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TransitionMetadata captures extra context for a transition.
type TransitionMetadata struct {
	Reason   string
	Metadata map[string]any
}

// TransitionContext is passed into hooks for additional processing.
type TransitionContext struct {
	Actor ActorRef
	User  *User
	From  UserStatus
	To    UserStatus
	Meta  TransitionMetadata
}

// TransitionHook is executed after a transition was persisted.
type TransitionHook func(ctx context.Context, tc TransitionContext) error

// TransitionOption customizes a single transition.
type TransitionOption func(*transitionOptions)

// UserStateMachine defines lifecycle operations for users.
type UserStateMachine interface {
	Transition(ctx context.Context, actor ActorRef, user *User, target UserStatus, opts ...TransitionOption) (*User, error)
	CanTransition(from, to UserStatus) bool
}

// StateMachineOption customizes state machine construction.
type StateMachineOption func(*userStateMachine)

// WithStateMachineClock injects a custom clock (useful for tests).
func WithStateMachineClock(clock func() time.Time) StateMachineOption {
	return func(sm *userStateMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithStateMachineActivitySink sets the ActivitySink used to publish lifecycle events.
func WithStateMachineActivitySink(sink ActivitySink) StateMachineOption {
	return func(sm *userStateMachine) {
		sm.activitySink = normalizeActivitySink(sink)
	}
}

// WithStateMachineLogger overrides the logger used for hook and sink failures.
func WithStateMachineLogger(logger Logger) StateMachineOption {
	return func(sm *userStateMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// WithStateMachineHook adds a hook run after every successful transition.
func WithStateMachineHook(h TransitionHook) StateMachineOption {
	return func(sm *userStateMachine) {
		if h != nil {
			sm.afterHooks = append(sm.afterHooks, h)
		}
	}
}

// WithTransitionReason sets the human-readable reason for the transition.
func WithTransitionReason(reason string) TransitionOption {
	return func(opts *transitionOptions) {
		opts.metadata.Reason = reason
	}
}

// WithTransitionMetadata merges metadata into the transition context.
func WithTransitionMetadata(metadata map[string]any) TransitionOption {
	return func(opts *transitionOptions) {
		if len(metadata) == 0 {
			return
		}
		if opts.metadata.Metadata == nil {
			opts.metadata.Metadata = make(map[string]any, len(metadata))
		}
		for k, v := range metadata {
			opts.metadata.Metadata[k] = v
		}
	}
}

// NewUserStateMachine returns the default implementation backed by the provided repository.
func NewUserStateMachine(users Users, opts ...StateMachineOption) UserStateMachine {
	sm := &userStateMachine{
		users: users,
		transitions: map[UserStatus]map[UserStatus]struct{}{
			UserStatusPending: {
				UserStatusActive:  {},
				UserStatusDeleted: {},
			},
			UserStatusActive: {
				UserStatusSuspended: {},
				UserStatusDeleted:   {},
			},
			UserStatusSuspended: {
				UserStatusActive:  {},
				UserStatusDeleted: {},
			},
		},
		now:          time.Now,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

type userStateMachine struct {
	users        Users
	transitions  map[UserStatus]map[UserStatus]struct{}
	now          func() time.Time
	activitySink ActivitySink
	logger       Logger
	afterHooks   []TransitionHook
}

type transitionOptions struct {
	metadata TransitionMetadata
}

// Transition persists the status change. DELETED is terminal.
func (sm *userStateMachine) Transition(ctx context.Context, actor ActorRef, user *User, target UserStatus, opts ...TransitionOption) (*User, error) {
	if user == nil || user.ID == uuid.Nil {
		return nil, ErrInvalidTransition
	}

	if target == "" {
		return nil, ErrInvalidTransition
	}

	from := user.Status
	if from == target {
		return user, nil
	}

	if from == UserStatusDeleted {
		return nil, ErrTerminalState
	}

	if !sm.CanTransition(from, target) {
		return nil, ErrInvalidTransition
	}

	options := &transitionOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	if err := sm.users.UpdateStatus(ctx, user.ID, target); err != nil {
		return nil, err
	}
	user.Status = target

	tc := TransitionContext{
		Actor: actor,
		User:  user,
		From:  from,
		To:    target,
		Meta:  options.metadata,
	}

	for _, hook := range sm.afterHooks {
		if err := hook(ctx, tc); err != nil {
			sm.logger.Error("transition hook failed", "user_id", user.ID, "from", from, "to", target, "error", err)
		}
	}

	metadata := map[string]any{}
	if tc.Meta.Reason != "" {
		metadata["reason"] = tc.Meta.Reason
	}
	for k, v := range tc.Meta.Metadata {
		metadata[k] = v
	}
	if actor == (ActorRef{}) {
		actor = ActorRef{Type: "system"}
	}

	RecordActivity(ctx, sm.activitySink, sm.logger, sm.now(), ActivityEvent{
		EventType:  ActivityEventUserStatusChanged,
		Actor:      actor,
		UserID:     user.ID.String(),
		FromStatus: from,
		ToStatus:   target,
		Metadata:   metadata,
	})

	return user, nil
}

func (sm *userStateMachine) CanTransition(from, to UserStatus) bool {
	if allowed, ok := sm.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}
