package tier

import (
	"fmt"
	"sort"
	"strings"
)

// Tier is the canonical representation of one Patreon tier.
// Higher rank means more exclusive; Free always carries the lowest rank.
type Tier struct {
	Name        string
	ID          string
	Rank        int
	PledgeCents int
	ChannelID   string
}

// Registry holds the immutable tier lookup tables built once from
// configuration. Build a new Registry and swap it rather than mutating.
type Registry struct {
	byID    map[string]Tier
	byName  map[string]Tier // keyed by Normalize(name)
	byCents map[int]Tier
	ordered []Tier // ascending rank
}

// NewRegistry builds the lookup tables from the configured tier list.
func NewRegistry(tiers []Tier) (*Registry, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("tier registry: no tiers configured")
	}
	r := &Registry{
		byID:    make(map[string]Tier, len(tiers)),
		byName:  make(map[string]Tier, len(tiers)),
		byCents: make(map[int]Tier, len(tiers)),
		ordered: make([]Tier, len(tiers)),
	}
	copy(r.ordered, tiers)
	sort.Slice(r.ordered, func(i, j int) bool { return r.ordered[i].Rank < r.ordered[j].Rank })

	seenRank := make(map[int]string, len(tiers))
	for _, t := range r.ordered {
		if t.ID == "" {
			return nil, fmt.Errorf("tier registry: tier %q has no id", t.Name)
		}
		if prev, ok := seenRank[t.Rank]; ok {
			return nil, fmt.Errorf("tier registry: rank %d used by both %q and %q", t.Rank, prev, t.Name)
		}
		seenRank[t.Rank] = t.Name
		r.byID[t.ID] = t
		r.byName[Normalize(t.Name)] = t
		if t.PledgeCents > 0 {
			r.byCents[t.PledgeCents] = t
		}
	}
	return r, nil
}

// Normalize canonicalizes a tier title for name lookup: lowercase, trimmed,
// trailing dots stripped. Patreon tier titles occasionally arrive with a
// trailing period.
func Normalize(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	for strings.HasSuffix(s, ".") {
		s = strings.TrimSuffix(s, ".")
	}
	return strings.TrimSpace(s)
}

// ByID looks a tier up by its external Patreon id.
func (r *Registry) ByID(id string) (Tier, bool) {
	t, ok := r.byID[id]
	return t, ok
}

// ByName looks a tier up by title, normalizing first.
func (r *Registry) ByName(name string) (Tier, bool) {
	t, ok := r.byName[Normalize(name)]
	return t, ok
}

// ByCents looks a tier up by exact pledge amount in cents.
func (r *Registry) ByCents(cents int) (Tier, bool) {
	t, ok := r.byCents[cents]
	return t, ok
}

// Lowest returns the lowest-ranked tier (by invariant, Free).
func (r *Registry) Lowest() Tier {
	return r.ordered[0]
}

// All returns every tier in ascending rank order.
func (r *Registry) All() []Tier {
	out := make([]Tier, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// IsWaterfall reports whether a rank change expands access: the tier
// requirement decreased, so a strictly larger audience can now see the content.
func IsWaterfall(oldRank, newRank int) bool {
	return newRank < oldRank
}

// IsUpgrade reports whether a member moved to a more exclusive tier.
func IsUpgrade(oldRank, newRank int) bool {
	return newRank > oldRank
}
