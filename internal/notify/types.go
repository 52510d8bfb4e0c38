package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"imagegen/internal/config"
)

const (
	TriggerJobComplete = config.TriggerJobComplete
	TriggerJobFailed   = config.TriggerJobFailed
)

var AllTriggers = []string{
	TriggerJobComplete,
	TriggerJobFailed,
}

type Payload struct {
	Event     string `json:"event"`
	JobID     string `json:"job_id"`
	State     string `json:"state"`
	Prompt    string `json:"prompt"`
	Model     string `json:"model,omitempty"`
	OutputURL string `json:"output_url,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

type Sender interface {
	Name() string
	Send(ctx context.Context, payload Payload) error
}

type ChannelResult struct {
	Channel string `json:"channel"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func IsValidTrigger(trigger string) bool {
	switch trigger {
	case TriggerJobComplete, TriggerJobFailed:
		return true
	default:
		return false
	}
}

func DefaultTriggers() []string {
	out := make([]string, len(AllTriggers))
	copy(out, AllTriggers)
	return out
}

func TriggerSet(triggers []string) map[string]struct{} {
	if triggers == nil {
		triggers = DefaultTriggers()
	}
	out := make(map[string]struct{}, len(triggers))
	for _, trigger := range triggers {
		normalized := strings.ToLower(strings.TrimSpace(trigger))
		if IsValidTrigger(normalized) {
			out[normalized] = struct{}{}
		}
	}
	return out
}

func EventState(event string) string {
	if event == TriggerJobComplete {
		return "complete"
	}
	return "failed"
}

func EventLabel(event string) string {
	if event == TriggerJobComplete {
		return "Task Complete"
	}
	return "Task Failed"
}

// NewPayload fills State and Timestamp for event.
func NewPayload(event, jobID, prompt, model string) Payload {
	return Payload{
		Event:     event,
		JobID:     jobID,
		State:     EventState(event),
		Prompt:    prompt,
		Model:     model,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

func TestPayload() Payload {
	p := NewPayload(TriggerJobComplete, "test-task", "Test notification from imagegen", "")
	p.OutputURL = "https://example.com/output.png"
	return p
}

func SlackText(payload Payload) string {
	text := fmt.Sprintf("imagegen: %s\nTask: %s\nPrompt: %s", EventLabel(payload.Event), payload.JobID, payload.Prompt)
	if payload.Model != "" {
		text += "\nModel: " + payload.Model
	}
	if payload.OutputURL != "" {
		text += "\nImage: " + payload.OutputURL
	}
	if payload.Error != "" {
		text += "\nError: " + payload.Error
	}
	return text
}
