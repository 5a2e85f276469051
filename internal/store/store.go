// Package store defines the persistence boundary for the relay: tracked
// posts, tracked members, tier→channel mappings, and custom message
// templates. Postgres backs production; the memory implementation backs tests.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get methods when no row exists for the key.
var ErrNotFound = errors.New("store: not found")

// TrackedPost records the last tier a post was broadcast at. LastTierAccess
// is the sole source of truth for waterfall detection, so every processed
// post event writes it before the handler returns.
type TrackedPost struct {
	PostID         string
	LastTierAccess string
	Title          string
	UpdatedAt      int64 // epoch millis
}

// TrackedMember records a patron's last known tier. JoinedAt is first-seen
// and preserved across updates.
type TrackedMember struct {
	MemberID      string
	FullName      string
	CurrentTierID string
	Email         string
	JoinedAt      int64 // epoch millis
	UpdatedAt     int64 // epoch millis
}

// TierMapping links a tier to its destination Discord channel. The admin
// subsystem owns writes; the engine only reads.
type TierMapping struct {
	TierID    string
	TierName  string
	TierRank  int
	ChannelID string
}

// PostStore persists TrackedPost rows keyed by post id.
type PostStore interface {
	Get(ctx context.Context, postID string) (TrackedPost, error)
	Upsert(ctx context.Context, p TrackedPost) error
	Delete(ctx context.Context, postID string) error
}

// MemberStore persists TrackedMember rows keyed by member id. Upsert must
// keep the stored JoinedAt when a row already exists.
type MemberStore interface {
	Get(ctx context.Context, memberID string) (TrackedMember, error)
	Upsert(ctx context.Context, m TrackedMember) error
}

// MappingStore reads and seeds tier→channel mappings.
type MappingStore interface {
	GetByID(ctx context.Context, tierID string) (TierMapping, error)
	GetByName(ctx context.Context, tierName string) (TierMapping, error)
	List(ctx context.Context) ([]TierMapping, error) // ascending rank
	Upsert(ctx context.Context, m TierMapping) error
}

// TemplateStore holds admin-customized message templates keyed by message
// kind ("welcome", "upgrade", "post_new", "post_waterfall", "departed").
// Get returns ErrNotFound when no custom template is set; callers fall back
// to built-in defaults.
type TemplateStore interface {
	Get(ctx context.Context, kind string) (string, error)
	Set(ctx context.Context, kind, text string) error
}
