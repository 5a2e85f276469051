// Package resolver turns the tier references embedded in a webhook resource
// into a canonical tier. Patreon ships at least three shapes for "which tiers
// gate this resource"; the strategies here are probed in a fixed order.
package resolver

import (
	"errors"

	"github.com/gyaneshwarpardhi/tierflow/internal/patreon"
	"github.com/gyaneshwarpardhi/tierflow/internal/tier"
)

// ErrNoTier means no strategy produced a tier. Callers must treat this as
// "do not notify", never as the Free tier: a payload naming no tier at all
// must not broadcast to the lowest tier's channel.
var ErrNoTier = errors.New("resolver: no tier could be determined")

// Strategy names which detection path succeeded, for logging.
type Strategy string

const (
	StrategyIncludedTitle Strategy = "included-title"
	StrategyIDLookup      Strategy = "id-lookup"
	StrategyPledgeCents   Strategy = "pledge-cents"
)

// relationship names that carry tier references, across posts, members, and
// pledges.
var tierRelationships = []string{
	"tiers",
	"access_rules",
	"currently_entitled_tiers",
	"tier",
}

// attribute names that carry a pledge amount in cents, across payload shapes.
var centsAttributes = []string{
	"min_cents_pledged_to_view",
	"amount_cents",
	"currently_entitled_amount_cents",
}

// Resolution is a successful tier determination.
type Resolution struct {
	Tier     tier.Tier
	Strategy Strategy
}

// Resolver resolves webhook resources against an immutable tier registry.
type Resolver struct {
	reg *tier.Registry
}

// New creates a Resolver bound to the given registry snapshot.
func New(reg *tier.Registry) *Resolver {
	return &Resolver{reg: reg}
}

// Resolve determines the tier gating res, cross-referencing included for
// side-loaded tier definitions. Strategy order:
//
//  1. relationship tier refs matched to included entries with a title,
//     title looked up by normalized name
//  2. raw tier ids (relationship refs and flat attributes.tiers) looked up
//     in the id table
//  3. exact pledge-cents lookup
//
// When several tiers gate the resource, the lowest-ranked (most inclusive)
// one wins: that tier's audience is the one that just gained access, while
// higher tiers could already see the content.
func (r *Resolver) Resolve(res patreon.Resource, included []patreon.Resource) (Resolution, error) {
	refIDs := collectRefIDs(res)

	if t, ok := r.lowestByIncludedTitle(refIDs, included); ok {
		return Resolution{Tier: t, Strategy: StrategyIncludedTitle}, nil
	}

	ids := refIDs
	if flat, ok := res.StringSliceAttr("tiers"); ok {
		ids = append(ids, flat...)
	}
	if t, ok := r.lowestByID(ids); ok {
		return Resolution{Tier: t, Strategy: StrategyIDLookup}, nil
	}

	for _, attr := range centsAttributes {
		if cents, ok := res.IntAttr(attr); ok && cents > 0 {
			if t, found := r.reg.ByCents(cents); found {
				return Resolution{Tier: t, Strategy: StrategyPledgeCents}, nil
			}
		}
	}

	return Resolution{}, ErrNoTier
}

// collectRefIDs gathers tier reference ids from every relationship shape the
// provider is known to use.
func collectRefIDs(res patreon.Resource) []string {
	var ids []string
	seen := make(map[string]struct{})
	for _, rel := range tierRelationships {
		for _, ref := range res.RelatedRefs(rel) {
			if ref.Type != "" && ref.Type != "tier" && ref.Type != "access-rule" {
				continue
			}
			if _, dup := seen[ref.ID]; dup || ref.ID == "" {
				continue
			}
			seen[ref.ID] = struct{}{}
			ids = append(ids, ref.ID)
		}
	}
	return ids
}

func (r *Resolver) lowestByIncludedTitle(refIDs []string, included []patreon.Resource) (tier.Tier, bool) {
	var best tier.Tier
	found := false
	for _, id := range refIDs {
		inc, ok := patreon.FindIncluded(included, "tier", id)
		if !ok {
			continue
		}
		title, ok := inc.StringAttr("title")
		if !ok || title == "" {
			continue
		}
		t, ok := r.reg.ByName(title)
		if !ok {
			continue
		}
		if !found || t.Rank < best.Rank {
			best, found = t, true
		}
	}
	return best, found
}

func (r *Resolver) lowestByID(ids []string) (tier.Tier, bool) {
	var best tier.Tier
	found := false
	for _, id := range ids {
		t, ok := r.reg.ByID(id)
		if !ok {
			continue
		}
		if !found || t.Rank < best.Rank {
			best, found = t, true
		}
	}
	return best, found
}
