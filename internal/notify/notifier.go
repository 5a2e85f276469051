// Package notify is the delivery boundary: given a canonical tier and a
// message, it resolves the destination channel and delivers. It never calls
// back into the engine.
package notify

import (
	"context"
	"errors"
	"regexp"

	"github.com/gyaneshwarpardhi/tierflow/internal/store"
)

// Message kinds, matching the template-store keys the admin UI can override.
const (
	KindWelcome       = "welcome"
	KindUpgrade       = "upgrade"
	KindPostNew       = "post_new"
	KindPostWaterfall = "post_waterfall"
	KindDeparted      = "departed"
)

// defaultTemplates back every kind; the template store only holds overrides.
// Placeholders: {user}, {tier}, {title}, {url}.
var defaultTemplates = map[string]string{
	KindWelcome:       "🎉 **{user}** has pledged to the **{tier}** tier!",
	KindUpgrade:       "📈 **{user}** just upgraded to **{tier}**! Welcome to the inner circle.",
	KindPostNew:       "🆕 **{title}** — new chapter available for **{tier}** members!\n{url}",
	KindPostWaterfall: "✨ **{title}** is now available for **{tier}** members!\n{url}",
	KindDeparted:      "👋 **{user}** has ended their pledge.",
}

// Message is a notification to deliver: a kind selecting the template, and
// the placeholder values to render into it.
type Message struct {
	Kind   string
	Fields map[string]string
}

// Notifier delivers rendered messages. SendToTier resolves the tier's mapped
// channel; SendToLog targets the internal log channel only.
type Notifier interface {
	SendToTier(ctx context.Context, tierName string, msg Message) error
	SendToLog(ctx context.Context, msg Message) error
}

// ErrNoChannel means the tier has no destination channel mapped.
var ErrNoChannel = errors.New("notify: no channel mapped for tier")

var placeholderRe = regexp.MustCompile(`\{(\w+)\}`)

// Render substitutes {name} placeholders with values. Unknown placeholders
// are left verbatim so a mistyped template is visible rather than silent.
func Render(template string, values map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(m string) string {
		key := m[1 : len(m)-1]
		if v, ok := values[key]; ok && v != "" {
			return v
		}
		return m
	})
}

// render looks up an admin override for the message kind and falls back to
// the built-in default.
func render(ctx context.Context, templates store.TemplateStore, msg Message) string {
	tpl, err := templates.Get(ctx, msg.Kind)
	if err != nil {
		tpl = defaultTemplates[msg.Kind]
	}
	return Render(tpl, msg.Fields)
}
