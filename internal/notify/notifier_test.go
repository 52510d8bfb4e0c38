package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type stubSender struct {
	name     string
	err      error
	mu       sync.Mutex
	payloads []Payload
}

func (s *stubSender) Name() string { return s.name }

func (s *stubSender) Send(_ context.Context, payload Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, payload)
	return s.err
}

func TestNotifierSendsEnabledEvent(t *testing.T) {
	t.Parallel()

	sender := &stubSender{name: "stub"}
	n := NewNotifier([]Sender{sender}, []string{TriggerJobComplete})

	payload := NewPayload(TriggerJobComplete, "T1", "a cat", "sdxl-turbo")
	payload.OutputURL = "https://cdn/x.png"
	results := n.Notify(context.Background(), payload)
	if len(results) != 1 || !results[0].Success {
		t.Fatalf("expected one successful result, got %#v", results)
	}
	if len(sender.payloads) != 1 {
		t.Fatalf("expected 1 payload sent, got %d", len(sender.payloads))
	}
	if sender.payloads[0].Prompt != "a cat" {
		t.Fatalf("expected prompt in payload, got %q", sender.payloads[0].Prompt)
	}
	if sender.payloads[0].State != "complete" {
		t.Fatalf("expected complete state, got %q", sender.payloads[0].State)
	}
}

func TestNotifierSkipsDisabledTrigger(t *testing.T) {
	t.Parallel()

	sender := &stubSender{name: "stub"}
	n := NewNotifier([]Sender{sender}, []string{TriggerJobComplete})

	if results := n.Notify(context.Background(), NewPayload(TriggerJobFailed, "T2", "p", "")); results != nil {
		t.Fatalf("expected no results for disabled trigger, got %#v", results)
	}
	if len(sender.payloads) != 0 {
		t.Fatalf("expected no payloads, got %d", len(sender.payloads))
	}
}

func TestNotifierNilTriggersEnablesAll(t *testing.T) {
	t.Parallel()

	n := NewNotifier([]Sender{&stubSender{name: "stub"}}, nil)
	for _, trigger := range AllTriggers {
		if !n.Enabled(trigger) {
			t.Fatalf("expected %s enabled by default", trigger)
		}
	}
}

func TestNotifierWithoutSendersIsDisabled(t *testing.T) {
	t.Parallel()

	var nilNotifier *Notifier
	if nilNotifier.Enabled(TriggerJobComplete) {
		t.Fatal("nil notifier should be disabled")
	}
	if NewNotifier(nil, nil).Enabled(TriggerJobComplete) {
		t.Fatal("notifier without senders should be disabled")
	}
}

func TestNotifierReportsFailures(t *testing.T) {
	t.Parallel()

	ok := &stubSender{name: "ok"}
	bad := &stubSender{name: "bad", err: errors.New("boom")}
	n := NewNotifier([]Sender{ok, bad}, nil)

	results := n.Notify(context.Background(), NewPayload(TriggerJobFailed, "T3", "p", ""))
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if successCount(results) != 1 {
		t.Fatalf("expected 1 success, got %d", successCount(results))
	}
	if got := summarizeFailures(results); got != "bad: boom" {
		t.Fatalf("unexpected failure summary %q", got)
	}
}

func TestNotifierDeliverExplainsNonDelivery(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	if _, err := NewNotifier(nil, nil).Deliver(ctx, TestPayload()); !errors.Is(err, ErrNoChannels) {
		t.Fatalf("expected ErrNoChannels, got %v", err)
	}

	sender := &stubSender{name: "stub"}
	n := NewNotifier([]Sender{sender}, []string{TriggerJobComplete})
	if _, err := n.Deliver(ctx, NewPayload(TriggerJobFailed, "T4", "p", "")); !errors.Is(err, ErrEventDisabled) {
		t.Fatalf("expected ErrEventDisabled, got %v", err)
	}
	if len(sender.payloads) != 0 {
		t.Fatalf("expected disabled event to send nothing, got %d", len(sender.payloads))
	}

	bad := NewNotifier([]Sender{&stubSender{name: "bad", err: errors.New("boom")}}, nil)
	results, err := bad.Deliver(ctx, TestPayload())
	if err == nil || len(results) != 1 {
		t.Fatalf("expected all-failed error with one result, got %v / %#v", err, results)
	}
	if err.Error() != "all notification channels failed: bad: boom" {
		t.Fatalf("unexpected error %q", err)
	}
}
