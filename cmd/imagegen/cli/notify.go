package cli

import (
	"errors"
	"fmt"

	"imagegen/internal/ledger"
	"imagegen/internal/notify"

	"github.com/spf13/cobra"
)

var notifySample bool

// buildNotifySenders is swapped in tests to capture deliveries.
var buildNotifySenders = notify.BuildSenders

var notifyCmd = &cobra.Command{
	Use:   "notify [index]",
	Short: "Send a history entry to the notification channels",
	Long: "Send a history entry, the latest by default, to every configured notification channel. " +
		"A finished entry goes out as job_complete and an unfinished one as job_failed; " +
		"the event must be listed in notifications.triggers.",
	Args: cobra.MaximumNArgs(1),
	RunE: runNotify,
}

func init() {
	notifyCmd.Flags().BoolVar(&notifySample, "sample", false, "send a placeholder job instead of a history entry")
	rootCmd.AddCommand(notifyCmd)
}

type notifyOutput struct {
	Event   string                 `json:"event"`
	JobID   string                 `json:"job_id"`
	Success bool                   `json:"success"`
	Results []notify.ChannelResult `json:"results"`
	Error   string                 `json:"error,omitempty"`
}

func runNotify(cmd *cobra.Command, args []string) error {
	index := -1
	if len(args) == 1 {
		if notifySample {
			return errors.New("--sample does not take a history index")
		}
		i, err := parseIndex(args[0])
		if err != nil {
			return err
		}
		index = i
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := openApp(cmd.Context(), cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	payload, err := notifyPayload(a.ctrl.View().History, index, notifySample)
	if err != nil {
		return err
	}
	results, err := a.notifier.Deliver(cmd.Context(), payload)

	if jsonOut {
		out := notifyOutput{Event: payload.Event, JobID: payload.JobID, Success: err == nil, Results: results}
		if err != nil {
			out.Error = err.Error()
		}
		printJSON(out)
		return err
	}
	for _, result := range results {
		switch {
		case result.Success:
			fmt.Printf("%s: ok\n", result.Channel)
		case result.Error != "":
			fmt.Printf("%s: failed (%s)\n", result.Channel, result.Error)
		default:
			fmt.Printf("%s: failed\n", result.Channel)
		}
	}
	if err != nil {
		return err
	}
	fmt.Printf("Sent %s for job %s\n", payload.Event, orDash(payload.JobID))
	return nil
}

// notifyPayload builds the event for history entry index, or for the latest
// entry when index is negative.
func notifyPayload(history []ledger.PromptRecord, index int, sample bool) (notify.Payload, error) {
	if sample {
		return notify.TestPayload(), nil
	}
	if len(history) == 0 {
		return notify.Payload{}, errors.New("no history to send; use --sample for a placeholder job")
	}
	if index < 0 {
		index = len(history) - 1
	}
	if index >= len(history) {
		return notify.Payload{}, fmt.Errorf("history index %d out of range (have %d entries)", index, len(history))
	}

	rec := history[index]
	if rec.Resolved() {
		p := notify.NewPayload(notify.TriggerJobComplete, rec.JobID, rec.Prompt, rec.ModelID)
		p.OutputURL = rec.OutputRef
		return p, nil
	}
	p := notify.NewPayload(notify.TriggerJobFailed, rec.JobID, rec.Prompt, rec.ModelID)
	p.Error = "job has not produced an output"
	return p, nil
}
