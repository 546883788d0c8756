// Package notifications fans page view events out to owners connected to the
// live view feed.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"folio/internal/middleware"

	"github.com/redis/go-redis/v9"
)

const viewChannelPattern = "views:user:*"

// ViewEvent is published to an owner's channel whenever one of their pages is
// viewed.
type ViewEvent struct {
	Type      string    `json:"type"`
	PageID    string    `json:"page_id"`
	Slug      string    `json:"slug"`
	Referrer  string    `json:"referrer"`
	Device    string    `json:"device"`
	ViewCount int64     `json:"view_count"`
	ViewedAt  time.Time `json:"viewed_at"`
}

// ViewChannel returns the pub/sub channel for an owner's view events.
func ViewChannel(userID uint) string {
	return fmt.Sprintf("views:user:%d", userID)
}

// Notifier publishes view events into Redis channels.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// PublishView sends ev to the owner's channel. A nil Redis client is a no-op.
func (n *Notifier) PublishView(ctx context.Context, ownerID uint, ev ViewEvent) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	if ev.Type == "" {
		ev.Type = "page_view"
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal view event: %w", err)
	}
	return n.rdb.Publish(ctx, ViewChannel(ownerID), payload).Err()
}

// StartViewSubscriber subscribes to every owner's view channel and calls
// onMessage for each message until ctx is cancelled.
func (n *Notifier) StartViewSubscriber(
	ctx context.Context, onMessage func(channel string, payload string),
) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, viewChannelPattern)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", viewChannelPattern, err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							middleware.Logger.Error("panic in view subscriber",
								slog.Any("panic", r),
								slog.String("stack", string(debug.Stack())))
						}
					}()
					onMessage(msg.Channel, msg.Payload)
				}()
			}
		}
	}()

	return nil
}
