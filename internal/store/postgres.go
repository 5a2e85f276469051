package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gyaneshwarpardhi/tierflow/internal/tier"
)

// schema mirrors the sqlite layout of the original bot, one table per store.
const schema = `
CREATE TABLE IF NOT EXISTS tracked_posts (
  post_id          TEXT PRIMARY KEY,
  last_tier_access TEXT NOT NULL,
  title            TEXT NOT NULL,
  updated_at       BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS tracked_members (
  member_id       TEXT PRIMARY KEY,
  full_name       TEXT NOT NULL,
  current_tier_id TEXT NOT NULL,
  email           TEXT,
  joined_at       BIGINT NOT NULL,
  updated_at      BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS tier_mappings (
  tier_id    TEXT PRIMARY KEY,
  tier_name  TEXT NOT NULL,
  tier_rank  INTEGER NOT NULL,
  channel_id TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS message_templates (
  kind    TEXT PRIMARY KEY,
  content TEXT NOT NULL
);`

// InitSchema creates the tables if they do not exist.
func InitSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

type postgresPosts struct {
	db *sql.DB
}

// NewPostgresPosts creates a PostgreSQL-backed PostStore.
func NewPostgresPosts(db *sql.DB) PostStore {
	return &postgresPosts{db: db}
}

func (r *postgresPosts) Get(ctx context.Context, postID string) (TrackedPost, error) {
	var p TrackedPost
	err := r.db.QueryRowContext(ctx,
		`SELECT post_id, last_tier_access, title, updated_at FROM tracked_posts WHERE post_id = $1`,
		postID,
	).Scan(&p.PostID, &p.LastTierAccess, &p.Title, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return TrackedPost{}, ErrNotFound
	}
	if err != nil {
		return TrackedPost{}, fmt.Errorf("get tracked post %s: %w", postID, err)
	}
	return p, nil
}

func (r *postgresPosts) Upsert(ctx context.Context, p TrackedPost) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tracked_posts (post_id, last_tier_access, title, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (post_id) DO UPDATE SET
			last_tier_access = EXCLUDED.last_tier_access,
			title            = EXCLUDED.title,
			updated_at       = EXCLUDED.updated_at`,
		p.PostID, p.LastTierAccess, p.Title, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert tracked post %s: %w", p.PostID, err)
	}
	return nil
}

func (r *postgresPosts) Delete(ctx context.Context, postID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM tracked_posts WHERE post_id = $1`, postID); err != nil {
		return fmt.Errorf("delete tracked post %s: %w", postID, err)
	}
	return nil
}

type postgresMembers struct {
	db *sql.DB
}

// NewPostgresMembers creates a PostgreSQL-backed MemberStore.
func NewPostgresMembers(db *sql.DB) MemberStore {
	return &postgresMembers{db: db}
}

func (r *postgresMembers) Get(ctx context.Context, memberID string) (TrackedMember, error) {
	var m TrackedMember
	var email sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT member_id, full_name, current_tier_id, email, joined_at, updated_at
		 FROM tracked_members WHERE member_id = $1`,
		memberID,
	).Scan(&m.MemberID, &m.FullName, &m.CurrentTierID, &email, &m.JoinedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return TrackedMember{}, ErrNotFound
	}
	if err != nil {
		return TrackedMember{}, fmt.Errorf("get tracked member %s: %w", memberID, err)
	}
	m.Email = email.String
	return m, nil
}

func (r *postgresMembers) Upsert(ctx context.Context, m TrackedMember) error {
	// joined_at is first-seen: the conflict branch keeps the stored value.
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tracked_members (member_id, full_name, current_tier_id, email, joined_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)
		ON CONFLICT (member_id) DO UPDATE SET
			full_name       = EXCLUDED.full_name,
			current_tier_id = EXCLUDED.current_tier_id,
			email           = COALESCE(EXCLUDED.email, tracked_members.email),
			updated_at      = EXCLUDED.updated_at`,
		m.MemberID, m.FullName, m.CurrentTierID, m.Email, m.JoinedAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert tracked member %s: %w", m.MemberID, err)
	}
	return nil
}

type postgresMappings struct {
	db *sql.DB
}

// NewPostgresMappings creates a PostgreSQL-backed MappingStore.
func NewPostgresMappings(db *sql.DB) MappingStore {
	return &postgresMappings{db: db}
}

func (r *postgresMappings) GetByID(ctx context.Context, tierID string) (TierMapping, error) {
	return r.getOne(ctx, `WHERE tier_id = $1`, tierID)
}

func (r *postgresMappings) GetByName(ctx context.Context, tierName string) (TierMapping, error) {
	// Both sides normalize like tier.Normalize: trim, lowercase, trailing
	// dots stripped. A mapping stored as "Gold." still matches "gold".
	return r.getOne(ctx,
		`WHERE TRIM(TRAILING '. ' FROM LOWER(TRIM(tier_name))) = $1`,
		tier.Normalize(tierName))
}

func (r *postgresMappings) getOne(ctx context.Context, where string, arg any) (TierMapping, error) {
	var m TierMapping
	err := r.db.QueryRowContext(ctx,
		`SELECT tier_id, tier_name, tier_rank, channel_id FROM tier_mappings `+where, arg,
	).Scan(&m.TierID, &m.TierName, &m.TierRank, &m.ChannelID)
	if errors.Is(err, sql.ErrNoRows) {
		return TierMapping{}, ErrNotFound
	}
	if err != nil {
		return TierMapping{}, fmt.Errorf("get tier mapping: %w", err)
	}
	return m, nil
}

func (r *postgresMappings) List(ctx context.Context) ([]TierMapping, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT tier_id, tier_name, tier_rank, channel_id FROM tier_mappings ORDER BY tier_rank ASC`)
	if err != nil {
		return nil, fmt.Errorf("list tier mappings: %w", err)
	}
	defer rows.Close()

	var out []TierMapping
	for rows.Next() {
		var m TierMapping
		if err := rows.Scan(&m.TierID, &m.TierName, &m.TierRank, &m.ChannelID); err != nil {
			return nil, fmt.Errorf("scan tier mapping: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *postgresMappings) Upsert(ctx context.Context, m TierMapping) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tier_mappings (tier_id, tier_name, tier_rank, channel_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tier_id) DO UPDATE SET
			tier_name  = EXCLUDED.tier_name,
			tier_rank  = EXCLUDED.tier_rank,
			channel_id = EXCLUDED.channel_id`,
		m.TierID, m.TierName, m.TierRank, m.ChannelID)
	if err != nil {
		return fmt.Errorf("upsert tier mapping %s: %w", m.TierID, err)
	}
	return nil
}

type postgresTemplates struct {
	db *sql.DB
}

// NewPostgresTemplates creates a PostgreSQL-backed TemplateStore.
func NewPostgresTemplates(db *sql.DB) TemplateStore {
	return &postgresTemplates{db: db}
}

func (r *postgresTemplates) Get(ctx context.Context, kind string) (string, error) {
	var content string
	err := r.db.QueryRowContext(ctx,
		`SELECT content FROM message_templates WHERE kind = $1`, kind,
	).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get template %s: %w", kind, err)
	}
	return content, nil
}

func (r *postgresTemplates) Set(ctx context.Context, kind, text string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO message_templates (kind, content) VALUES ($1, $2)
		ON CONFLICT (kind) DO UPDATE SET content = EXCLUDED.content`,
		kind, text)
	if err != nil {
		return fmt.Errorf("set template %s: %w", kind, err)
	}
	return nil
}
