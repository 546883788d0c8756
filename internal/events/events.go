// Package events emits product analytics events without blocking callers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"folio/internal/observability"

	"github.com/redis/go-redis/v9"
)

// Event names.
const (
	PagePublished   = "page_published"
	PageDeleted     = "page_deleted"
	UsernameChanged = "username_changed"
	AvatarUploaded  = "avatar_uploaded"
	WaitlistJoined  = "waitlist_joined"
	AccountDeleted  = "account_deleted"
	SignedUp        = "signed_up"
)

// StreamKey is the Redis stream events are appended to.
const StreamKey = "analytics:events"

const (
	defaultTimeout = 3 * time.Second
	streamMaxLen   = 100000
)

// Event is one analytics record.
type Event struct {
	Name       string         `json:"name"`
	UserID     uint           `json:"user_id,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
	At         time.Time      `json:"at"`
}

// Emitter records events.
type Emitter interface {
	Emit(ctx context.Context, ev Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Emit(context.Context, Event) error { return nil }

// RedisEmitter appends events to a capped Redis stream.
type RedisEmitter struct {
	rdb *redis.Client
}

// NewRedisEmitter returns Nop when rdb is nil.
func NewRedisEmitter(rdb *redis.Client) Emitter {
	if rdb == nil {
		return Nop{}
	}
	return &RedisEmitter{rdb: rdb}
}

func (e *RedisEmitter) Emit(ctx context.Context, ev Event) error {
	props, err := json.Marshal(ev.Properties)
	if err != nil {
		return fmt.Errorf("marshal event properties: %w", err)
	}
	return e.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{
			"name":       ev.Name,
			"user_id":    ev.UserID,
			"properties": string(props),
			"at":         ev.At.UTC().Format(time.RFC3339Nano),
		},
	}).Err()
}

// Dispatcher sends events in the background. Failures and panics are logged
// and counted, never returned.
type Dispatcher struct {
	emitter Emitter
	timeout time.Duration
	now     func() time.Time
}

// NewDispatcher wraps emitter. A nil emitter discards events.
func NewDispatcher(emitter Emitter) *Dispatcher {
	if emitter == nil {
		emitter = Nop{}
	}
	return &Dispatcher{emitter: emitter, timeout: defaultTimeout, now: time.Now}
}

// Dispatch emits ev on its own goroutine. The returned channel is closed when
// the attempt finishes; callers normally ignore it.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) <-chan struct{} {
	done := make(chan struct{})
	if d == nil {
		close(done)
		return done
	}
	if ev.At.IsZero() {
		ev.At = d.now()
	}
	// Detach from the request so a finished request does not cancel the emit.
	base := context.WithoutCancel(ctx)

	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				observability.AnalyticsEvents.WithLabelValues(ev.Name, "panic").Inc()
				observability.LogAsyncOperationError(base, "events.dispatch", fmt.Errorf("panic: %v", r),
					slog.String("event", ev.Name))
			}
		}()

		emitCtx, cancel := context.WithTimeout(base, d.timeout)
		defer cancel()

		if err := d.emitter.Emit(emitCtx, ev); err != nil {
			observability.AnalyticsEvents.WithLabelValues(ev.Name, "error").Inc()
			observability.LogAsyncOperationError(base, "events.dispatch", err, slog.String("event", ev.Name))
			return
		}
		observability.AnalyticsEvents.WithLabelValues(ev.Name, "ok").Inc()
	}()
	return done
}
