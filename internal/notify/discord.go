package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/tierflow/internal/store"
)

// Discord delivers messages to Discord channels over the REST API.
type Discord struct {
	baseURL   string
	token     string
	logChanID string
	mappings  store.MappingStore
	templates store.TemplateStore
	client    *http.Client
	logger    *slog.Logger
}

// DiscordConfig configures the Discord notifier.
type DiscordConfig struct {
	BaseURL      string // e.g. https://discord.com/api/v10
	Token        string // bot token
	LogChannelID string // internal log channel; empty disables SendToLog
	Mappings     store.MappingStore
	Templates    store.TemplateStore
	Logger       *slog.Logger
	Timeout      time.Duration
}

// NewDiscord creates a Discord notifier.
func NewDiscord(cfg DiscordConfig) *Discord {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Discord{
		baseURL:   cfg.BaseURL,
		token:     cfg.Token,
		logChanID: cfg.LogChannelID,
		mappings:  cfg.Mappings,
		templates: cfg.Templates,
		client:    &http.Client{Timeout: cfg.Timeout},
		logger:    cfg.Logger,
	}
}

// SendToTier resolves tierName to its mapped channel and posts the rendered
// message there.
func (d *Discord) SendToTier(ctx context.Context, tierName string, msg Message) error {
	mapping, err := d.mappings.GetByName(ctx, tierName)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNoChannel, tierName)
	}
	return d.post(ctx, mapping.ChannelID, render(ctx, d.templates, msg))
}

// SendToLog posts to the internal log channel. A missing log channel is a
// no-op, not an error: the log channel is optional configuration.
func (d *Discord) SendToLog(ctx context.Context, msg Message) error {
	if d.logChanID == "" {
		return nil
	}
	return d.post(ctx, d.logChanID, render(ctx, d.templates, msg))
}

type channelMessage struct {
	Content string `json:"content"`
}

func (d *Discord) post(ctx context.Context, channelID, content string) error {
	deliveryID := uuid.New().String()

	body, err := json.Marshal(channelMessage{Content: content})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	url := fmt.Sprintf("%s/channels/%s/messages", d.baseURL, channelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bot "+d.token)

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Warn("discord delivery failed", "delivery_id", deliveryID, "channel_id", channelID, "err", err)
		return fmt.Errorf("deliver to channel %s: %w", channelID, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		d.logger.Warn("discord delivery rejected", "delivery_id", deliveryID, "channel_id", channelID, "status", resp.StatusCode)
		return fmt.Errorf("deliver to channel %s: status %d", channelID, resp.StatusCode)
	}
	d.logger.Debug("discord delivery ok", "delivery_id", deliveryID, "channel_id", channelID)
	return nil
}
