package config

import "github.com/gyaneshwarpardhi/tierflow/internal/tier"

// TierConfig is the top-level YAML structure for the tier list.
type TierConfig struct {
	Version string    `yaml:"version"`
	Tiers   []TierDef `yaml:"tiers"`
}

// TierDef declares one tier: its Patreon id, display name, exclusivity rank,
// pledge amount used for the cents fallback, and the Discord channel that
// receives its alerts.
type TierDef struct {
	Name        string `yaml:"name"`
	ID          string `yaml:"id"`
	Rank        int    `yaml:"rank"`
	PledgeCents int    `yaml:"pledge_cents,omitempty"`
	ChannelID   string `yaml:"channel_id"`
}

// TierList converts the config entries into the canonical tier type.
func (c *TierConfig) TierList() []tier.Tier {
	out := make([]tier.Tier, 0, len(c.Tiers))
	for _, d := range c.Tiers {
		out = append(out, tier.Tier{
			Name:        d.Name,
			ID:          d.ID,
			Rank:        d.Rank,
			PledgeCents: d.PledgeCents,
			ChannelID:   d.ChannelID,
		})
	}
	return out
}
