package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const defaultSendTimeout = 4 * time.Second

var (
	ErrNoChannels    = errors.New("no notification channels configured")
	ErrEventDisabled = errors.New("event is not an enabled trigger")
)

// Notifier fans a payload out to every configured channel whose trigger is
// enabled.
type Notifier struct {
	senders     []Sender
	triggers    map[string]struct{}
	sendTimeout time.Duration
}

func NewNotifier(senders []Sender, triggers []string) *Notifier {
	return &Notifier{
		senders:     senders,
		triggers:    TriggerSet(triggers),
		sendTimeout: defaultSendTimeout,
	}
}

// Enabled reports whether event would be sent anywhere.
func (n *Notifier) Enabled(event string) bool {
	if n == nil || len(n.senders) == 0 {
		return false
	}
	_, ok := n.triggers[event]
	return ok
}

// Deliver sends payload and returns an error when nothing was delivered.
// Partial failures are reported only in the results.
func (n *Notifier) Deliver(ctx context.Context, payload Payload) ([]ChannelResult, error) {
	if n == nil || len(n.senders) == 0 {
		return nil, ErrNoChannels
	}
	if !n.Enabled(payload.Event) {
		return nil, fmt.Errorf("%w: %s", ErrEventDisabled, payload.Event)
	}
	results := SendAll(ctx, n.senders, payload, n.sendTimeout)
	if successCount(results) == 0 {
		return results, fmt.Errorf("all notification channels failed: %s", summarizeFailures(results))
	}
	return results, nil
}

// Notify sends payload and logs channel failures. It returns nil when the
// event is disabled or no channels are configured.
func (n *Notifier) Notify(ctx context.Context, payload Payload) []ChannelResult {
	results, err := n.Deliver(ctx, payload)
	if errors.Is(err, ErrNoChannels) || errors.Is(err, ErrEventDisabled) {
		return nil
	}
	if err != nil {
		slog.Warn("notify: delivery failed", "job_id", payload.JobID, "event", payload.Event, "err", err)
		return results
	}
	for _, result := range results {
		if !result.Success {
			slog.Warn("notify: channel send failed", "channel", result.Channel, "job_id", payload.JobID, "event", payload.Event, "err", result.Error)
		}
	}
	return results
}
