package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gyaneshwarpardhi/tierflow/internal/store"
)

func TestRender(t *testing.T) {
	cases := []struct {
		name     string
		template string
		values   map[string]string
		want     string
	}{
		{
			"all placeholders",
			"Welcome {user} to {tier}!",
			map[string]string{"user": "Ada", "tier": "Gold"},
			"Welcome Ada to Gold!",
		},
		{
			"unknown placeholder kept",
			"Hi {user}, see {nope}",
			map[string]string{"user": "Ada"},
			"Hi Ada, see {nope}",
		},
		{
			"empty value kept",
			"{title}",
			map[string]string{"title": ""},
			"{title}",
		},
		{
			"no placeholders",
			"static text",
			nil,
			"static text",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Render(c.template, c.values); got != c.want {
				t.Errorf("Render = %q, want %q", got, c.want)
			}
		})
	}
}

func seedMappings(t *testing.T, mem *store.Memory) {
	t.Helper()
	ctx := context.Background()
	for _, m := range []store.TierMapping{
		{TierID: "t-gold", TierName: "Gold", TierRank: 75, ChannelID: "chan-gold"},
		{TierID: "t-diamond", TierName: "Diamond", TierRank: 100, ChannelID: "chan-diamond"},
	} {
		if err := mem.Mappings().Upsert(ctx, m); err != nil {
			t.Fatal(err)
		}
	}
}

func TestDiscordSendToTier(t *testing.T) {
	var gotPath, gotAuth, gotContent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		var body struct {
			Content string `json:"content"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotContent = body.Content
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	mem := store.NewMemory()
	seedMappings(t, mem)
	d := NewDiscord(DiscordConfig{
		BaseURL:   srv.URL,
		Token:     "tok",
		Mappings:  mem.Mappings(),
		Templates: mem.Templates(),
	})

	msg := Message{Kind: KindPostWaterfall, Fields: map[string]string{
		"title": "Chapter 12", "tier": "Gold", "url": "https://example.test/p/12",
	}}
	if err := d.SendToTier(context.Background(), "Gold", msg); err != nil {
		t.Fatalf("SendToTier: %v", err)
	}
	if gotPath != "/channels/chan-gold/messages" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bot tok" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotContent == "" || !strings.Contains(gotContent, "Chapter 12") || !strings.Contains(gotContent, "Gold") {
		t.Errorf("content = %q", gotContent)
	}
}

func TestDiscordTemplateOverride(t *testing.T) {
	var gotContent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Content string `json:"content"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotContent = body.Content
	}))
	defer srv.Close()

	mem := store.NewMemory()
	seedMappings(t, mem)
	ctx := context.Background()
	if err := mem.Templates().Set(ctx, KindPostNew, "custom: {title} for {tier}"); err != nil {
		t.Fatal(err)
	}
	d := NewDiscord(DiscordConfig{
		BaseURL: srv.URL, Token: "tok",
		Mappings: mem.Mappings(), Templates: mem.Templates(),
	})
	msg := Message{Kind: KindPostNew, Fields: map[string]string{"title": "T", "tier": "Gold"}}
	if err := d.SendToTier(ctx, "Gold", msg); err != nil {
		t.Fatalf("SendToTier: %v", err)
	}
	if gotContent != "custom: T for Gold" {
		t.Errorf("content = %q", gotContent)
	}
}

func TestDiscordUnmappedTier(t *testing.T) {
	mem := store.NewMemory()
	d := NewDiscord(DiscordConfig{
		BaseURL: "http://localhost:0", Token: "tok",
		Mappings: mem.Mappings(), Templates: mem.Templates(),
	})
	err := d.SendToTier(context.Background(), "Mystery", Message{Kind: KindPostNew})
	if !errors.Is(err, ErrNoChannel) {
		t.Fatalf("want ErrNoChannel, got %v", err)
	}
}

func TestDiscordRejectedDelivery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "missing permissions", http.StatusForbidden)
	}))
	defer srv.Close()

	mem := store.NewMemory()
	seedMappings(t, mem)
	d := NewDiscord(DiscordConfig{
		BaseURL: srv.URL, Token: "tok",
		Mappings: mem.Mappings(), Templates: mem.Templates(),
	})
	if err := d.SendToTier(context.Background(), "Gold", Message{Kind: KindPostNew}); err == nil {
		t.Fatal("expected delivery error")
	}
}

func TestDiscordLogChannelOptional(t *testing.T) {
	mem := store.NewMemory()
	d := NewDiscord(DiscordConfig{
		BaseURL: "http://localhost:0", Token: "tok",
		Mappings: mem.Mappings(), Templates: mem.Templates(),
	})
	// No log channel configured: silently a no-op.
	if err := d.SendToLog(context.Background(), Message{Kind: KindDeparted}); err != nil {
		t.Fatalf("SendToLog: %v", err)
	}
}
