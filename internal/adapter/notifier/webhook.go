package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	discordContentLimit = 2000
	slackTextLimit      = 3000
)

// Discord posts to a Discord channel webhook.
type Discord struct {
	url    string
	client *http.Client
}

func NewDiscord(url string) *Discord {
	return &Discord{url: url, client: &http.Client{Timeout: 30 * time.Second}}
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Send(ctx context.Context, subject, message string) error {
	payload := map[string]string{
		"content": fenced(fmt.Sprintf("**%s**\n```\n", subject), message, "\n```", discordContentLimit),
	}
	return postJSON(ctx, d.client, d.url, payload)
}

// Slack posts to a Slack incoming webhook.
type Slack struct {
	url    string
	client *http.Client
}

func NewSlack(url string) *Slack {
	return &Slack{url: url, client: &http.Client{Timeout: 30 * time.Second}}
}

func (s *Slack) Name() string { return "slack" }

func (s *Slack) Send(ctx context.Context, subject, message string) error {
	payload := map[string]string{
		"text": fenced(fmt.Sprintf("*%s*\n```", subject), message, "```", slackTextLimit),
	}
	return postJSON(ctx, s.client, s.url, payload)
}

func postJSON(ctx context.Context, client *http.Client, url string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	return nil
}

// fenced cuts message so head+message+tail fits in limit runes. The tail is
// always kept so a code block is never left open.
func fenced(head, message, tail string, limit int) string {
	budget := limit - len([]rune(head)) - len([]rune(tail))
	if budget < 1 {
		return truncate(head+tail, limit)
	}
	return head + truncate(message, budget) + tail
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}
