package cli

import (
	"encoding/json"
	"strings"
	"testing"

	"imagegen/internal/ledger"
)

func resetSelectFlags(t *testing.T) {
	t.Helper()
	prev := selectNoWait
	selectNoWait = false
	t.Cleanup(func() { selectNoWait = prev })
}

func TestRunSelectResolvedEntryMakesNoStatusCall(t *testing.T) {
	api := newFakeAPI(t)
	cfgFile, dir := writeTestConfig(t, api)
	seedHistory(t, dir, ledger.PromptRecord{
		Prompt: "harbor", NegativePrompt: "fog", ModelID: "m2", JobID: "D1",
		OutputRef: api.imageURL("D1"), Height: "512", Width: "640",
	})
	useConfig(t, cfgFile, true)
	resetSelectFlags(t)

	out := mustCapture(t, func() error { return runSelect(testCommand(), []string{"0"}) })

	var got map[string]any
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode output %q: %v", out, err)
	}
	if got["output_url"] != api.imageURL("D1") {
		t.Fatalf("expected output url of entry, got %v", got["output_url"])
	}
	if n := api.pollCount("D1"); n != 0 {
		t.Fatalf("expected no status calls for a resolved entry, got %d", n)
	}

	store := reopenState(t, dir)
	if store.Form.Prompt != "harbor" || store.Form.NegativePrompt != "fog" || store.Form.ModelID != "m2" {
		t.Fatalf("expected form loaded from entry, got %#v", store.Form)
	}
	if store.Form.Height != "512" || store.Form.Width != "640" {
		t.Fatalf("expected dimensions loaded from entry, got %#v", store.Form)
	}
	if store.OutputRef != api.imageURL("D1") {
		t.Fatalf("expected output ref persisted, got %q", store.OutputRef)
	}
}

func TestRunSelectPendingEntryPollsToCompletion(t *testing.T) {
	api := newFakeAPI(t)
	cfgFile, dir := writeTestConfig(t, api)
	seedHistory(t, dir, ledgerEntry("desert", "P1", ""))
	useConfig(t, cfgFile, false)
	resetSelectFlags(t)

	out := mustCapture(t, func() error { return runSelect(testCommand(), []string{"0"}) })
	if !strings.Contains(out, "Output: "+api.imageURL("P1")) {
		t.Fatalf("expected output line, got %q", out)
	}
	if n := api.pollCount("P1"); n < 2 {
		t.Fatalf("expected the entry to be polled until complete, got %d calls", n)
	}
	history := loadHistory(t, dir)
	if history[0].OutputRef != api.imageURL("P1") {
		t.Fatalf("expected entry resolved, got %#v", history[0])
	}
}

func TestRunClearKeepsModelAndNegative(t *testing.T) {
	api := newFakeAPI(t)
	cfgFile, dir := writeTestConfig(t, api)
	seedHistory(t, dir, ledger.PromptRecord{
		Prompt: "harbor", NegativePrompt: "fog", ModelID: "m2", JobID: "D1", OutputRef: api.imageURL("D1"),
	})
	useConfig(t, cfgFile, false)
	resetSelectFlags(t)

	mustCapture(t, func() error { return runSelect(testCommand(), []string{"0"}) })
	out := mustCapture(t, func() error { return runClear(testCommand(), nil) })
	if strings.TrimSpace(out) != "Prompt and output cleared." {
		t.Fatalf("unexpected output: %q", out)
	}

	snap := reopenState(t, dir)
	if snap.Form.Prompt != "" || snap.OutputRef != "" {
		t.Fatalf("expected prompt and output cleared, got %#v / %q", snap.Form, snap.OutputRef)
	}
	if snap.Form.ModelID != "m2" || snap.Form.NegativePrompt != "fog" {
		t.Fatalf("expected model and negative prompt kept, got %#v", snap.Form)
	}
	if len(snap.Ledger.Records()) != 1 {
		t.Fatalf("expected history untouched, got %d entries", len(snap.Ledger.Records()))
	}
}

func TestRunResumeResolvesPendingEntries(t *testing.T) {
	api := newFakeAPI(t)
	api.fail("P3")
	cfgFile, dir := writeTestConfig(t, api)
	seedHistory(t, dir,
		ledgerEntry("one", "P1", ""),
		ledgerEntry("done", "D1", "https://cdn.example.com/D1.png"),
		ledgerEntry("two", "P2", ""),
		ledgerEntry("three", "P3", ""),
	)
	useConfig(t, cfgFile, true)
	prevWorkers := resumeWorkers
	resumeWorkers = 2
	t.Cleanup(func() { resumeWorkers = prevWorkers })

	out := mustCapture(t, func() error { return runResume(testCommand(), nil) })

	var got resumeOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode output %q: %v", out, err)
	}
	if got.Resolved != 2 || got.Failed != 1 || len(got.Jobs) != 3 {
		t.Fatalf("unexpected report: %+v", got)
	}
	if n := api.pollCount("D1"); n != 0 {
		t.Fatalf("resolved entry should not be polled, got %d calls", n)
	}

	history := loadHistory(t, dir)
	if history[0].OutputRef != api.imageURL("P1") || history[2].OutputRef != api.imageURL("P2") {
		t.Fatalf("expected P1 and P2 resolved, got %#v", history)
	}
	if history[3].OutputRef != "" {
		t.Fatalf("expected failed P3 left unresolved, got %q", history[3].OutputRef)
	}
}

func TestRunResumeNothingPending(t *testing.T) {
	cfgFile, dir := writeTestConfig(t, nil)
	seedHistory(t, dir, ledgerEntry("done", "D1", "https://cdn.example.com/D1.png"))
	useConfig(t, cfgFile, false)

	out := mustCapture(t, func() error { return runResume(testCommand(), nil) })
	if strings.TrimSpace(out) != "Nothing to resume." {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestRunPollPrintsOutputURL(t *testing.T) {
	api := newFakeAPI(t)
	cfgFile, dir := writeTestConfig(t, api)
	seedHistory(t, dir, ledgerEntry("forest", "P7", ""))
	useConfig(t, cfgFile, false)

	out := mustCapture(t, func() error { return runPoll(testCommand(), []string{"P7"}) })
	if strings.TrimSpace(out) != api.imageURL("P7") {
		t.Fatalf("unexpected output: %q", out)
	}
	if got := loadHistory(t, dir)[0].OutputRef; got != api.imageURL("P7") {
		t.Fatalf("expected history entry resolved, got %q", got)
	}
}
