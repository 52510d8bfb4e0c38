package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var pollCmd = &cobra.Command{
	Use:   "poll <job-id>",
	Short: "Poll a job until it finishes",
	Long:  "Poll a job by id until it completes or fails. History entries for the job are updated with the output url.",
	Args:  cobra.ExactArgs(1),
	RunE:  runPoll,
}

func init() {
	rootCmd.AddCommand(pollCmd)
}

type pollOutput struct {
	JobID     string `json:"job_id"`
	OutputURL string `json:"output_url,omitempty"`
	Error     string `json:"error,omitempty"`
}

func runPoll(cmd *cobra.Command, args []string) error {
	jobID := strings.TrimSpace(args[0])
	if jobID == "" {
		return fmt.Errorf("job id is required")
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

	url, err := a.ctrl.Poll(cmd.Context(), jobID)
	if jsonOut {
		out := pollOutput{JobID: jobID, OutputURL: url}
		if err != nil {
			out.Error = err.Error()
		}
		printJSON(out)
		return err
	}
	if err != nil {
		return err
	}
	fmt.Println(url)
	return nil
}
