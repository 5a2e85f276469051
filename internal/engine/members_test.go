package engine

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/gyaneshwarpardhi/tierflow/internal/notify"
	"github.com/gyaneshwarpardhi/tierflow/internal/patreon"
)

// pledgePayload builds a pledge resource pointing at a patron, with the
// patron and tier side-loaded in included. Empty tierTitle means no tier
// relationship (a free pledge).
func pledgePayload(memberID, fullName, tierTitle string) patreon.Payload {
	nameJSON, _ := json.Marshal(fullName)
	p := patreon.Payload{
		Data: patreon.Resource{
			ID:   "pledge-" + memberID,
			Type: "pledge",
			Relationships: map[string]patreon.Relationship{
				"patron": {Data: patreon.RelationshipData{Refs: []patreon.ResourceRef{
					{ID: memberID, Type: "user"},
				}}},
			},
		},
		Included: []patreon.Resource{
			{
				ID:   memberID,
				Type: "user",
				Attributes: map[string]json.RawMessage{
					"full_name": nameJSON,
				},
			},
		},
	}
	if tierTitle != "" {
		titleJSON, _ := json.Marshal(tierTitle)
		p.Data.Relationships["tier"] = patreon.Relationship{
			Data: patreon.RelationshipData{Refs: []patreon.ResourceRef{{ID: "xt", Type: "tier"}}},
		}
		p.Included = append(p.Included, patreon.Resource{
			ID:   "xt",
			Type: "tier",
			Attributes: map[string]json.RawMessage{
				"title": titleJSON,
			},
		})
	}
	return p
}

func storedMember(t *testing.T, env *testEnv, memberID string) (tierID string, joinedAt int64) {
	t.Helper()
	m, err := env.mem.Members().Get(context.Background(), memberID)
	if err != nil {
		t.Fatalf("Get member %s: %v", memberID, err)
	}
	return m.CurrentTierID, m.JoinedAt
}

func TestMemberCreateWelcomesOnLogChannel(t *testing.T) {
	env := newTestEnv(t)
	mustRoute(t, env, patreon.MembersCreate, memberPayload("m1", "Ada Lovelace", "Gold"))

	tierID, _ := storedMember(t, env, "m1")
	if tierID != "t-gold" {
		t.Errorf("stored tier id = %q", tierID)
	}
	if env.notifier.tierCount() != 0 {
		t.Error("member events never hit tier channels")
	}
	if len(env.notifier.logMsgs) != 1 || env.notifier.logMsgs[0].Kind != notify.KindWelcome {
		t.Fatalf("log messages = %+v", env.notifier.logMsgs)
	}
	if env.notifier.logMsgs[0].Fields["user"] != "Ada Lovelace" {
		t.Errorf("fields = %v", env.notifier.logMsgs[0].Fields)
	}
}

// A member payload with no entitled tiers is a Free member, not a failure.
func TestMemberCreateWithoutTiersIsFree(t *testing.T) {
	env := newTestEnv(t)
	mustRoute(t, env, patreon.MembersCreate, memberPayload("m1", "Ada Lovelace"))

	tierID, _ := storedMember(t, env, "m1")
	if tierID != "free" {
		t.Errorf("stored tier id = %q", tierID)
	}
}

// Member created Free, pledge upgraded to Gold, then cancelled: one upgrade
// notification, tier back to Free, join time untouched throughout.
func TestMemberLifecycleScenario(t *testing.T) {
	env := newTestEnv(t)
	mustRoute(t, env, patreon.MembersCreate, memberPayload("m1", "Ada Lovelace"))
	_, joined := storedMember(t, env, "m1")

	mustRoute(t, env, patreon.MembersPledgeUpdate, pledgePayload("m1", "Ada Lovelace", "Gold"))
	tierID, joinedAfterUpgrade := storedMember(t, env, "m1")
	if tierID != "t-gold" {
		t.Errorf("tier after upgrade = %q", tierID)
	}
	if joinedAfterUpgrade != joined {
		t.Errorf("joined_at changed on upgrade: %d -> %d", joined, joinedAfterUpgrade)
	}
	upgrades := 0
	for _, m := range env.notifier.logMsgs {
		if m.Kind == notify.KindUpgrade {
			upgrades++
		}
	}
	if upgrades != 1 {
		t.Errorf("upgrade notifications = %d, want 1", upgrades)
	}

	mustRoute(t, env, patreon.MembersPledgeDelete, pledgePayload("m1", "Ada Lovelace", ""))
	tierID, joinedAfterDelete := storedMember(t, env, "m1")
	if tierID != "free" {
		t.Errorf("tier after delete = %q", tierID)
	}
	if joinedAfterDelete != joined {
		t.Errorf("joined_at changed on delete: %d -> %d", joined, joinedAfterDelete)
	}
	last := env.notifier.logMsgs[len(env.notifier.logMsgs)-1]
	if last.Kind != notify.KindDeparted {
		t.Errorf("last log message = %+v", last)
	}
	if env.notifier.tierCount() != 0 {
		t.Error("member lifecycle must never hit tier channels")
	}
}

// Downgrades are silent on purpose, but the stored tier still moves.
func TestMemberDowngradeIsSilent(t *testing.T) {
	env := newTestEnv(t)
	mustRoute(t, env, patreon.MembersCreate, memberPayload("m1", "Ada Lovelace", "Diamond"))
	before := len(env.notifier.logMsgs)

	mustRoute(t, env, patreon.MembersUpdate, memberPayload("m1", "Ada Lovelace", "Silver"))

	if len(env.notifier.logMsgs) != before {
		t.Error("downgrade must not notify")
	}
	tierID, _ := storedMember(t, env, "m1")
	if tierID != "t-silver" {
		t.Errorf("stored tier id = %q", tierID)
	}
}

// An update for a member never seen before persists without announcing.
func TestMemberUpdateUntrackedAdopts(t *testing.T) {
	env := newTestEnv(t)
	mustRoute(t, env, patreon.MembersUpdate, memberPayload("m7", "Grace Hopper", "Gold"))

	tierID, _ := storedMember(t, env, "m7")
	if tierID != "t-gold" {
		t.Errorf("stored tier id = %q", tierID)
	}
	if len(env.notifier.logMsgs) != 0 {
		t.Errorf("log messages = %+v", env.notifier.logMsgs)
	}
}

// Pledge events identify the member through the patron relationship; the
// display name comes from the included user resource.
func TestPledgeCreateResolvesPatron(t *testing.T) {
	env := newTestEnv(t)
	mustRoute(t, env, patreon.MembersPledgeCreate, pledgePayload("m2", "Alan Turing", "Silver"))

	tierID, _ := storedMember(t, env, "m2")
	if tierID != "t-silver" {
		t.Errorf("stored tier id = %q", tierID)
	}
	if len(env.notifier.logMsgs) != 1 || env.notifier.logMsgs[0].Fields["user"] != "Alan Turing" {
		t.Fatalf("log messages = %+v", env.notifier.logMsgs)
	}
}

// The departure message falls back to the stored name when the delete
// payload carries none.
func TestMemberDeleteKeepsStoredName(t *testing.T) {
	env := newTestEnv(t)
	mustRoute(t, env, patreon.MembersCreate, memberPayload("m1", "Ada Lovelace", "Gold"))

	bare := patreon.Payload{Data: patreon.Resource{ID: "m1", Type: "member"}}
	mustRoute(t, env, patreon.MembersDelete, bare)

	last := env.notifier.logMsgs[len(env.notifier.logMsgs)-1]
	if last.Kind != notify.KindDeparted || last.Fields["user"] != "Ada Lovelace" {
		t.Errorf("departed message = %+v", last)
	}
}
