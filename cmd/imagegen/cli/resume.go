package cli

import (
	"fmt"

	"imagegen/internal/worker"

	"github.com/spf13/cobra"
)

var resumeWorkers int

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Poll every unfinished history entry to completion",
	Args:  cobra.NoArgs,
	RunE:  runResume,
}

func init() {
	resumeCmd.Flags().IntVar(&resumeWorkers, "workers", 0, "concurrent poll loops (default from config)")
	rootCmd.AddCommand(resumeCmd)
}

type resumeOutcome struct {
	JobID     string `json:"job_id"`
	OutputURL string `json:"output_url,omitempty"`
	Error     string `json:"error,omitempty"`
}

type resumeOutput struct {
	Resolved int             `json:"resolved"`
	Failed   int             `json:"failed"`
	Jobs     []resumeOutcome `json:"jobs"`
}

func runResume(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := openApp(cmd.Context(), cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	n := cfg.Resume.Workers
	if resumeWorkers > 0 {
		n = resumeWorkers
	}
	report, err := a.ctrl.Resume(cmd.Context(), worker.NewPool(n))

	out := resumeOutput{Resolved: report.Resolved, Failed: report.Failed, Jobs: []resumeOutcome{}}
	for _, o := range report.Outcomes {
		ro := resumeOutcome{JobID: o.JobID, OutputURL: o.OutputURL}
		if o.Err != nil {
			ro.Error = o.Err.Error()
		}
		out.Jobs = append(out.Jobs, ro)
	}

	if jsonOut {
		printJSON(out)
		return err
	}
	if len(out.Jobs) == 0 && err == nil {
		fmt.Println("Nothing to resume.")
		return nil
	}
	for _, j := range out.Jobs {
		if j.Error != "" {
			fmt.Printf("%s: failed (%s)\n", j.JobID, j.Error)
			continue
		}
		fmt.Printf("%s: %s\n", j.JobID, j.OutputURL)
	}
	fmt.Printf("Resolved %d, failed %d\n", out.Resolved, out.Failed)
	return err
}
