// Package engine implements the webhook decision core: it routes verified
// events to the post and member state machines and owns their persistence.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gyaneshwarpardhi/tierflow/internal/metrics"
	"github.com/gyaneshwarpardhi/tierflow/internal/notify"
	"github.com/gyaneshwarpardhi/tierflow/internal/patreon"
	"github.com/gyaneshwarpardhi/tierflow/internal/resolver"
	"github.com/gyaneshwarpardhi/tierflow/internal/store"
	"github.com/gyaneshwarpardhi/tierflow/internal/tier"
)

// Outcomes recorded per processed event.
const (
	outcomePublished        = "published"
	outcomeWaterfall        = "waterfall"
	outcomeRefreshed        = "refreshed"
	outcomeRestricted       = "restricted"
	outcomeAdopted          = "adopted" // update for an untracked post
	outcomeDeleted          = "deleted"
	outcomeWelcome          = "welcome"
	outcomeUpgrade          = "upgrade"
	outcomeDowngrade        = "downgrade"
	outcomeDeparted         = "departed"
	outcomeIgnored          = "ignored"
	outcomeResolutionFailed = "resolution_failed"
)

// snapshot pairs a registry with the resolver built over it, swapped
// atomically on tier-config hot reload.
type snapshot struct {
	reg *tier.Registry
	res *resolver.Resolver
}

// Engine processes one webhook event to completion, synchronously: the
// read-decide-notify-persist sequence for a given post or member runs under
// that key's mutex, so duplicate deliveries serialize instead of racing.
type Engine struct {
	snap     atomic.Pointer[snapshot]
	posts    store.PostStore
	members  store.MemberStore
	notifier notify.Notifier
	logger   *slog.Logger
	keys     *keyMutex
	now      func() time.Time
}

// Config carries the engine's collaborators.
type Config struct {
	Registry *tier.Registry
	Posts    store.PostStore
	Members  store.MemberStore
	Notifier notify.Notifier
	Logger   *slog.Logger
	Now      func() time.Time // defaults to time.Now
}

// New creates an Engine.
func New(cfg Config) *Engine {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	e := &Engine{
		posts:    cfg.Posts,
		members:  cfg.Members,
		notifier: cfg.Notifier,
		logger:   cfg.Logger,
		keys:     newKeyMutex(),
		now:      cfg.Now,
	}
	e.snap.Store(&snapshot{reg: cfg.Registry, res: resolver.New(cfg.Registry)})
	return e
}

// SwapRegistry atomically replaces the tier registry (used on hot-reload).
func (e *Engine) SwapRegistry(reg *tier.Registry) {
	e.snap.Store(&snapshot{reg: reg, res: resolver.New(reg)})
}

// Route dispatches a verified, typed webhook event to its handler. Unknown
// event types are logged and ignored. The only error Route returns is a
// persistence failure; resolution and delivery problems are handled locally
// so the provider is not asked to redeliver an event we cannot act on
// differently.
func (e *Engine) Route(ctx context.Context, eventType patreon.EventType, p patreon.Payload) error {
	start := e.now()
	key := eventKey(eventType, p)
	unlock := e.keys.Lock(key)
	defer unlock()

	// Upstream reuses posts:publish for "edit and republish" of existing
	// content; a publish for a tracked post is routed as an update so the
	// waterfall diff runs against the stored baseline.
	if eventType == patreon.PostsPublish {
		switch _, err := e.posts.Get(ctx, p.Data.ID); {
		case err == nil:
			e.logger.Info("publish for tracked post, routing as update", "post_id", p.Data.ID)
			eventType = patreon.PostsUpdate
		case !errors.Is(err, store.ErrNotFound):
			return fmt.Errorf("check tracked post %s: %w", p.Data.ID, err)
		}
	}

	var outcome string
	var err error
	switch eventType {
	case patreon.PostsPublish:
		outcome, err = e.handlePostPublish(ctx, p)
	case patreon.PostsUpdate:
		outcome, err = e.handlePostUpdate(ctx, p)
	case patreon.PostsDelete:
		outcome, err = e.handlePostDelete(ctx, p)
	case patreon.MembersCreate, patreon.MembersPledgeCreate:
		outcome, err = e.handleMemberCreate(ctx, p)
	case patreon.MembersUpdate, patreon.MembersPledgeUpdate:
		outcome, err = e.handleMemberUpdate(ctx, p)
	case patreon.MembersDelete, patreon.MembersPledgeDelete:
		outcome, err = e.handleMemberDelete(ctx, p)
	default:
		e.logger.Warn("no handler for event type, ignoring", "event_type", string(eventType))
		outcome = outcomeIgnored
	}
	if err != nil {
		metrics.EventsProcessed.WithLabelValues(string(eventType), "error").Inc()
		return err
	}

	metrics.EventsProcessed.WithLabelValues(string(eventType), outcome).Inc()
	metrics.EventProcessingDuration.Observe(float64(e.now().Sub(start).Milliseconds()))
	return nil
}

// eventKey scopes the per-key mutex: posts lock on post id, member and
// pledge events on the member id.
func eventKey(eventType patreon.EventType, p patreon.Payload) string {
	switch eventType {
	case patreon.PostsPublish, patreon.PostsUpdate, patreon.PostsDelete:
		return "post:" + p.Data.ID
	default:
		if refs := p.Data.RelatedRefs("patron"); len(refs) > 0 {
			return "member:" + refs[0].ID
		}
		return "member:" + p.Data.ID
	}
}

// send delivers a notification, recording the attempt. Delivery failure is
// logged and counted but never propagated: by the time send runs, the state
// transition has already been persisted and must stand.
func (e *Engine) send(ctx context.Context, deliver func(context.Context, notify.Message) error, msg notify.Message) {
	if err := deliver(ctx, msg); err != nil {
		metrics.NotificationsSent.WithLabelValues(msg.Kind, "error").Inc()
		e.logger.Error("notification delivery failed", "kind", msg.Kind, "err", err)
		return
	}
	metrics.NotificationsSent.WithLabelValues(msg.Kind, "ok").Inc()
}

func (e *Engine) sendToTier(ctx context.Context, tierName string, msg notify.Message) {
	e.send(ctx, func(ctx context.Context, m notify.Message) error {
		return e.notifier.SendToTier(ctx, tierName, m)
	}, msg)
}

func (e *Engine) sendToLog(ctx context.Context, msg notify.Message) {
	e.send(ctx, e.notifier.SendToLog, msg)
}

func (e *Engine) nowMillis() int64 {
	return e.now().UnixMilli()
}
