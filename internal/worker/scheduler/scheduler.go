// Package schedulerworker holds the background loops that act on durable
// state: reminders, attendance checks, surveys, stale-pending eviction and
// silent-lead re-engagement. Every loop claims a row through a flag-guarded
// update before sending, so concurrent instances never double-act.
package schedulerworker

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/aidanalabs/agenda-bot/internal/business"
)

// Sender delivers one outbound message through the idempotent outbound log.
type Sender interface {
	Send(ctx context.Context, conversationID uuid.UUID, to, body string) error
}

// ProfileSource resolves tenant configuration for message rendering.
type ProfileSource interface {
	Get(ctx context.Context, orgID string) (*business.Profile, error)
}

func resolveProfile(ctx context.Context, profiles ProfileSource, orgID string) *business.Profile {
	if profiles == nil {
		return business.DefaultProfile(orgID)
	}
	p, err := profiles.Get(ctx, orgID)
	if err != nil || p == nil {
		return business.DefaultProfile(orgID)
	}
	return p
}

func runLoop(ctx context.Context, interval time.Duration, pass func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	pass(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pass(ctx)
		}
	}
}
