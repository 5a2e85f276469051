package config

import (
	"fmt"
	"strings"

	"github.com/gyaneshwarpardhi/tierflow/internal/tier"
)

// Validate checks the tier config for:
//   - Required fields on every tier
//   - Duplicate ids, normalized names, and ranks
//   - Duplicate pledge_cents values (the cents fallback needs exact matches)
//   - Exactly one lowest tier is implied; ranks must be unique so the
//     lowest-ranked tier is unambiguous
func Validate(cfg *TierConfig) error {
	if cfg.Version == "" {
		return fmt.Errorf("tier config: version is required")
	}
	if len(cfg.Tiers) == 0 {
		return fmt.Errorf("tier config: tiers must not be empty")
	}

	var errs []string
	ids := make(map[string]string)
	names := make(map[string]string)
	ranks := make(map[int]string)
	cents := make(map[int]string)

	for i, t := range cfg.Tiers {
		loc := fmt.Sprintf("tiers[%d]", i)
		if t.Name == "" {
			errs = append(errs, fmt.Sprintf("%s: name is required", loc))
			continue
		}
		loc = fmt.Sprintf("tier %s", t.Name)
		if t.ID == "" {
			errs = append(errs, fmt.Sprintf("%s: id is required", loc))
		}
		if t.ChannelID == "" {
			errs = append(errs, fmt.Sprintf("%s: channel_id is required", loc))
		}
		if prev, ok := ids[t.ID]; ok && t.ID != "" {
			errs = append(errs, fmt.Sprintf("duplicate id %q (first seen at %s, again at %s)", t.ID, prev, loc))
		} else {
			ids[t.ID] = loc
		}
		norm := tier.Normalize(t.Name)
		if prev, ok := names[norm]; ok {
			errs = append(errs, fmt.Sprintf("duplicate name %q (first seen at %s, again at %s)", norm, prev, loc))
		} else {
			names[norm] = loc
		}
		if prev, ok := ranks[t.Rank]; ok {
			errs = append(errs, fmt.Sprintf("duplicate rank %d (first seen at %s, again at %s)", t.Rank, prev, loc))
		} else {
			ranks[t.Rank] = loc
		}
		if t.PledgeCents > 0 {
			if prev, ok := cents[t.PledgeCents]; ok {
				errs = append(errs, fmt.Sprintf("duplicate pledge_cents %d (first seen at %s, again at %s)", t.PledgeCents, prev, loc))
			} else {
				cents[t.PledgeCents] = loc
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("tier config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
