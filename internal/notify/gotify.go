package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"

	"goodwill_sniper/internal/config"
)

// GotifyNotifier pushes messages to a Gotify server.
type GotifyNotifier struct {
	client   *resty.Client
	token    string
	priority int
}

func NewGotifyNotifier(cfg config.GotifyConfig) *GotifyNotifier {
	client := resty.New().
		SetBaseURL(strings.TrimRight(strings.TrimSpace(cfg.URL), "/")).
		SetHeader("Content-Type", "application/json")
	return &GotifyNotifier{
		client:   client,
		token:    strings.TrimSpace(cfg.Token),
		priority: cfg.Priority,
	}
}

type gotifyMessage struct {
	Title    string `json:"title"`
	Message  string `json:"message"`
	Priority int    `json:"priority"`
}

func (g *GotifyNotifier) Notify(ctx context.Context, msg Message) error {
	priority := g.priority
	if msg.Kind == KindError || msg.Kind == KindBid {
		priority++
	}
	title := msg.Title
	if title == "" {
		title = "goodwill sniper"
	}
	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParam("token", g.token).
		SetBody(gotifyMessage{Title: title, Message: msg.Body, Priority: priority}).
		Post("/message")
	if err != nil {
		return fmt.Errorf("gotify: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("gotify: http %d", resp.StatusCode())
	}
	return nil
}
