package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// SlackSender posts to a Slack incoming webhook. Completed jobs carry the
// generated image as an image block; the plain text stays as the fallback
// for clients that do not render blocks.
type SlackSender struct {
	url    string
	client *http.Client
}

type slackMessage struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks,omitempty"`
}

type slackBlock struct {
	Type     string     `json:"type"`
	Text     *slackText `json:"text,omitempty"`
	ImageURL string     `json:"image_url,omitempty"`
	AltText  string     `json:"alt_text,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func NewSlackSender(webhookURL string, client *http.Client) *SlackSender {
	if client == nil {
		client = http.DefaultClient
	}
	return &SlackSender{
		url:    strings.TrimSpace(webhookURL),
		client: client,
	}
}

func (s *SlackSender) Name() string {
	return "slack"
}

func (s *SlackSender) Send(ctx context.Context, payload Payload) error {
	encoded, err := json.Marshal(slackMessageFor(payload))
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}
	return postJSON(ctx, s.client, s.url, encoded, s.Name(), nil)
}

func slackMessageFor(payload Payload) slackMessage {
	text := SlackText(payload)
	msg := slackMessage{
		Text:   text,
		Blocks: []slackBlock{{Type: "section", Text: &slackText{Type: "mrkdwn", Text: text}}},
	}
	if payload.Event == TriggerJobComplete && payload.OutputURL != "" {
		msg.Blocks = append(msg.Blocks, slackBlock{
			Type:     "image",
			ImageURL: payload.OutputURL,
			AltText:  truncate(payload.Prompt, 200),
		})
	}
	return msg
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
