package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/gyaneshwarpardhi/tierflow/internal/notify"
	"github.com/gyaneshwarpardhi/tierflow/internal/patreon"
	"github.com/gyaneshwarpardhi/tierflow/internal/resolver"
	"github.com/gyaneshwarpardhi/tierflow/internal/store"
	"github.com/gyaneshwarpardhi/tierflow/internal/tier"
)

// memberIdentity normalizes the two shapes member events arrive in: member
// events carry the member as the primary resource, pledge events point at
// the patron through a relationship with details side-loaded in included.
type memberIdentity struct {
	id       string
	fullName string
	email    string
}

func extractMember(p patreon.Payload) (memberIdentity, bool) {
	var ident memberIdentity
	if refs := p.Data.RelatedRefs("patron"); len(refs) > 0 {
		ident.id = refs[0].ID
		if user, ok := patreon.FindIncluded(p.Included, "user", ident.id); ok {
			ident.fullName, _ = user.StringAttr("full_name")
			ident.email, _ = user.StringAttr("email")
		}
	} else {
		ident.id = p.Data.ID
		ident.fullName, _ = p.Data.StringAttr("full_name")
		ident.email, _ = p.Data.StringAttr("email")
	}
	if ident.fullName == "" {
		ident.fullName = "Unknown Member"
	}
	return ident, ident.id != ""
}

// resolveMemberTier resolves the member's entitled tier. Unlike posts, a
// member payload that names no tier degrades to Free: an empty
// currently_entitled_tiers relationship means a patron without a paid
// entitlement, which is a real member state.
func (e *Engine) resolveMemberTier(p patreon.Payload, reg *tier.Registry, res *resolver.Resolver) tier.Tier {
	r, err := res.Resolve(p.Data, p.Included)
	if err != nil {
		return reg.Lowest()
	}
	return r.Tier
}

// handleMemberCreate inserts the member at their resolved tier and welcomes
// them on the internal log channel. Never a tier channel: member traffic is
// for moderators, not patrons.
func (e *Engine) handleMemberCreate(ctx context.Context, p patreon.Payload) (string, error) {
	ident, ok := extractMember(p)
	if !ok {
		e.logger.Warn("member create without an id, ignoring")
		return outcomeIgnored, nil
	}
	snap := e.snap.Load()
	t := e.resolveMemberTier(p, snap.reg, snap.res)

	now := e.nowMillis()
	if err := e.members.Upsert(ctx, store.TrackedMember{
		MemberID:      ident.id,
		FullName:      ident.fullName,
		CurrentTierID: t.ID,
		Email:         ident.email,
		JoinedAt:      now,
		UpdatedAt:     now,
	}); err != nil {
		return "", fmt.Errorf("persist member %s: %w", ident.id, err)
	}
	e.logger.Info("new member tracked", "member_id", ident.id, "tier", t.Name)

	e.sendToLog(ctx, notify.Message{
		Kind: notify.KindWelcome,
		Fields: map[string]string{
			"user": ident.fullName,
			"tier": t.Name,
		},
	})
	return outcomeWelcome, nil
}

// handleMemberUpdate persists the member's new tier and announces upgrades.
// Downgrades are intentionally silent, but the stored tier still moves so
// the next comparison runs against reality.
func (e *Engine) handleMemberUpdate(ctx context.Context, p patreon.Payload) (string, error) {
	ident, ok := extractMember(p)
	if !ok {
		e.logger.Warn("member update without an id, ignoring")
		return outcomeIgnored, nil
	}
	snap := e.snap.Load()
	newTier := e.resolveMemberTier(p, snap.reg, snap.res)

	old, err := e.members.Get(ctx, ident.id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("load member %s: %w", ident.id, err)
	}
	known := err == nil

	now := e.nowMillis()
	record := store.TrackedMember{
		MemberID:      ident.id,
		FullName:      ident.fullName,
		CurrentTierID: newTier.ID,
		Email:         ident.email,
		JoinedAt:      now,
		UpdatedAt:     now,
	}
	if known {
		record.JoinedAt = old.JoinedAt
	}
	if err := e.members.Upsert(ctx, record); err != nil {
		return "", fmt.Errorf("persist member %s: %w", ident.id, err)
	}

	if !known {
		e.logger.Warn("update for untracked member, adopting without notification", "member_id", ident.id)
		return outcomeAdopted, nil
	}

	oldRank := e.rankOfTierID(snap.reg, old.CurrentTierID)
	switch {
	case tier.IsUpgrade(oldRank, newTier.Rank):
		e.logger.Info("member upgraded", "member_id", ident.id, "tier", newTier.Name)
		e.sendToLog(ctx, notify.Message{
			Kind: notify.KindUpgrade,
			Fields: map[string]string{
				"user": ident.fullName,
				"tier": newTier.Name,
			},
		})
		return outcomeUpgrade, nil
	case newTier.Rank < oldRank:
		// Downgrades stay quiet to spare the member; state is already saved.
		e.logger.Info("member downgraded, no notification", "member_id", ident.id, "tier", newTier.Name)
		return outcomeDowngrade, nil
	default:
		return outcomeRefreshed, nil
	}
}

// handleMemberDelete resets the member to the free tier and logs the
// departure internally, preserving the original join time.
func (e *Engine) handleMemberDelete(ctx context.Context, p patreon.Payload) (string, error) {
	ident, ok := extractMember(p)
	if !ok {
		e.logger.Warn("member delete without an id, ignoring")
		return outcomeIgnored, nil
	}
	snap := e.snap.Load()
	free := snap.reg.Lowest()

	now := e.nowMillis()
	record := store.TrackedMember{
		MemberID:      ident.id,
		FullName:      ident.fullName,
		CurrentTierID: free.ID,
		Email:         ident.email,
		JoinedAt:      now,
		UpdatedAt:     now,
	}
	if old, err := e.members.Get(ctx, ident.id); err == nil {
		record.JoinedAt = old.JoinedAt
		if ident.fullName == "Unknown Member" && old.FullName != "" {
			record.FullName = old.FullName
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("load member %s: %w", ident.id, err)
	}

	if err := e.members.Upsert(ctx, record); err != nil {
		return "", fmt.Errorf("persist member %s: %w", ident.id, err)
	}

	e.logger.Info("member departed", "member_id", ident.id)
	e.sendToLog(ctx, notify.Message{
		Kind: notify.KindDeparted,
		Fields: map[string]string{
			"user": record.FullName,
		},
	})
	return outcomeDeparted, nil
}

// rankOfTierID maps a stored tier id to its current rank, defaulting to the
// lowest rank for ids that fell out of the registry.
func (e *Engine) rankOfTierID(reg *tier.Registry, id string) int {
	if t, ok := reg.ByID(id); ok {
		return t.Rank
	}
	return reg.Lowest().Rank
}
