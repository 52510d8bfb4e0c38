package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"imagegen/internal/config"
)

var urlPattern = regexp.MustCompile(`https?://[^\s"'` + "`" + `]+`)

// BuildSenders returns one sender per configured channel, in a fixed order:
// webhook, slack, desktop. A nil client gets a shared client with a 10s
// timeout.
func BuildSenders(cfg config.NotificationsConfig, client *http.Client) []Sender {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	var senders []Sender
	if u := strings.TrimSpace(cfg.WebhookURL); u != "" {
		senders = append(senders, NewWebhookSender(u, client))
	}
	if u := strings.TrimSpace(cfg.SlackWebhook); u != "" {
		senders = append(senders, NewSlackSender(u, client))
	}
	if cfg.Desktop {
		if sender := NewDesktopSender(); sender != nil {
			senders = append(senders, sender)
		}
	}
	return senders
}

// SendAll delivers payload to every sender concurrently, each bounded by
// timeout when positive. Results keep the order of senders.
func SendAll(ctx context.Context, senders []Sender, payload Payload, timeout time.Duration) []ChannelResult {
	results := make([]ChannelResult, len(senders))
	var wg sync.WaitGroup
	for i, sender := range senders {
		if sender == nil {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			sendCtx := ctx
			if timeout > 0 {
				var cancel context.CancelFunc
				sendCtx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			err := sender.Send(sendCtx, payload)
			results[i] = ChannelResult{Channel: sender.Name(), Success: err == nil, Error: sanitizeChannelError(err)}
		}()
	}
	wg.Wait()

	out := results[:0]
	for _, r := range results {
		if r.Channel != "" {
			out = append(out, r)
		}
	}
	return out
}

func summarizeFailures(results []ChannelResult) string {
	var parts []string
	for _, result := range results {
		switch {
		case result.Success:
		case result.Error == "":
			parts = append(parts, result.Channel+" failed")
		default:
			parts = append(parts, fmt.Sprintf("%s: %s", result.Channel, result.Error))
		}
	}
	return strings.Join(parts, "; ")
}

func successCount(results []ChannelResult) int {
	n := 0
	for _, result := range results {
		if result.Success {
			n++
		}
	}
	return n
}

// sanitizeChannelError strips webhook secrets from error text before it is
// logged or shown.
func sanitizeChannelError(err error) string {
	if err == nil {
		return ""
	}
	msg := redactURLs(strings.TrimSpace(err.Error()))
	if len(msg) > 512 {
		msg = msg[:512]
	}
	return msg
}

func redactURLs(msg string) string {
	return urlPattern.ReplaceAllStringFunc(msg, func(match string) string {
		parsed, err := url.Parse(match)
		if err != nil || parsed.Host == "" {
			return "[redacted-url]"
		}
		return parsed.Scheme + "://" + parsed.Host + "/REDACTED"
	})
}
