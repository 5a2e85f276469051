package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/gyaneshwarpardhi/tierflow/internal/metrics"
	"github.com/gyaneshwarpardhi/tierflow/internal/notify"
	"github.com/gyaneshwarpardhi/tierflow/internal/patreon"
	"github.com/gyaneshwarpardhi/tierflow/internal/resolver"
	"github.com/gyaneshwarpardhi/tierflow/internal/store"
	"github.com/gyaneshwarpardhi/tierflow/internal/tier"
)

// postFields extracts the display fields every post notification needs.
func postFields(p patreon.Payload) (postID, title, url string) {
	postID = p.Data.ID
	title, ok := p.Data.StringAttr("title")
	if !ok || title == "" {
		title = "Untitled Post"
	}
	url, ok = p.Data.StringAttr("url")
	if !ok || url == "" {
		url = "https://www.patreon.com/posts/" + postID
	}
	return postID, title, url
}

// handlePostPublish processes a publish for a post the store has never seen.
// Resolution failure aborts before anything is persisted: without a tier
// there is no channel to notify and no baseline worth recording.
func (e *Engine) handlePostPublish(ctx context.Context, p patreon.Payload) (string, error) {
	postID, title, url := postFields(p)
	snap := e.snap.Load()

	res, err := snap.res.Resolve(p.Data, p.Included)
	if err != nil {
		if errors.Is(err, resolver.ErrNoTier) {
			metrics.ResolutionFailures.WithLabelValues(string(patreon.PostsPublish)).Inc()
			e.logger.Error("cannot resolve tier for new post, skipping", "post_id", postID, "title", title)
			return outcomeResolutionFailed, nil
		}
		return "", err
	}
	e.logger.Info("new post resolved", "post_id", postID, "tier", res.Tier.Name, "strategy", string(res.Strategy))

	if err := e.posts.Upsert(ctx, store.TrackedPost{
		PostID:         postID,
		LastTierAccess: res.Tier.Name,
		Title:          title,
		UpdatedAt:      e.nowMillis(),
	}); err != nil {
		return "", fmt.Errorf("persist post %s: %w", postID, err)
	}

	e.sendToTier(ctx, res.Tier.Name, notify.Message{
		Kind: notify.KindPostNew,
		Fields: map[string]string{
			"title": title,
			"url":   url,
			"tier":  res.Tier.Name,
		},
	})
	return outcomePublished, nil
}

// handlePostUpdate runs the waterfall state machine: compare the newly
// resolved rank against the stored baseline and notify only when access
// expanded. The new rank is persisted on every path, including silent ones,
// so later events diff against the latest observed state.
func (e *Engine) handlePostUpdate(ctx context.Context, p patreon.Payload) (string, error) {
	postID, title, url := postFields(p)
	snap := e.snap.Load()

	res, err := snap.res.Resolve(p.Data, p.Included)
	if err != nil {
		if errors.Is(err, resolver.ErrNoTier) {
			metrics.ResolutionFailures.WithLabelValues(string(patreon.PostsUpdate)).Inc()
			e.logger.Error("cannot resolve tier for post update, skipping", "post_id", postID, "title", title)
			return outcomeResolutionFailed, nil
		}
		return "", err
	}

	record := store.TrackedPost{
		PostID:         postID,
		LastTierAccess: res.Tier.Name,
		Title:          title,
		UpdatedAt:      e.nowMillis(),
	}

	old, err := e.posts.Get(ctx, postID)
	if errors.Is(err, store.ErrNotFound) {
		// No baseline to diff against: adopt the post silently.
		e.logger.Warn("update for untracked post, adopting without notification",
			"post_id", postID, "tier", res.Tier.Name)
		if err := e.posts.Upsert(ctx, record); err != nil {
			return "", fmt.Errorf("persist post %s: %w", postID, err)
		}
		return outcomeAdopted, nil
	}
	if err != nil {
		return "", fmt.Errorf("load post %s: %w", postID, err)
	}

	oldRank := e.rankOfTierName(snap.reg, old.LastTierAccess)
	newRank := res.Tier.Rank

	if err := e.posts.Upsert(ctx, record); err != nil {
		return "", fmt.Errorf("persist post %s: %w", postID, err)
	}

	switch {
	case tier.IsWaterfall(oldRank, newRank):
		// Access expanded: exactly the audience at the new, lower tier just
		// gained it. Higher tiers could already see the post.
		metrics.WaterfallsDetected.WithLabelValues(res.Tier.Name).Inc()
		e.logger.Info("waterfall detected",
			"post_id", postID, "title", title,
			"old_tier", old.LastTierAccess, "new_tier", res.Tier.Name)
		e.sendToTier(ctx, res.Tier.Name, notify.Message{
			Kind: notify.KindPostWaterfall,
			Fields: map[string]string{
				"title": title,
				"url":   url,
				"tier":  res.Tier.Name,
			},
		})
		return outcomeWaterfall, nil
	case newRank == oldRank:
		e.logger.Info("post updated, tier unchanged", "post_id", postID, "tier", res.Tier.Name)
		return outcomeRefreshed, nil
	default:
		e.logger.Info("post tier restricted, no notification",
			"post_id", postID, "old_tier", old.LastTierAccess, "new_tier", res.Tier.Name)
		return outcomeRestricted, nil
	}
}

// handlePostDelete removes the tracked record. Deletions are silent: no
// channel is told that content went away.
func (e *Engine) handlePostDelete(ctx context.Context, p patreon.Payload) (string, error) {
	postID := p.Data.ID
	if postID == "" {
		e.logger.Warn("posts:delete without a post id, ignoring")
		return outcomeIgnored, nil
	}
	if err := e.posts.Delete(ctx, postID); err != nil {
		return "", fmt.Errorf("delete post %s: %w", postID, err)
	}
	e.logger.Info("post removed from tracking", "post_id", postID)
	return outcomeDeleted, nil
}

// rankOfTierName maps a stored tier name back to its current rank. A name
// missing from the registry (renamed tier in a later config) is treated as
// the lowest rank so a subsequent event cannot fire a spurious waterfall.
func (e *Engine) rankOfTierName(reg *tier.Registry, name string) int {
	if t, ok := reg.ByName(name); ok {
		return t.Rank
	}
	e.logger.Warn("stored tier name not in registry, assuming lowest rank", "tier", name)
	return reg.Lowest().Rank
}
