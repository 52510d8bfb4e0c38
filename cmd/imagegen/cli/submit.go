package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"imagegen/internal/session"

	"github.com/spf13/cobra"
)

var (
	submitNegative string
	submitModel    string
	submitHeight   string
	submitWidth    string
	submitWait     bool
)

var submitCmd = &cobra.Command{
	Use:   "submit [prompt]",
	Short: "Submit a generation job",
	Long: "Submit the current form as a new job. Arguments replace the saved prompt; " +
		"flags replace the saved negative prompt, model and dimensions. " +
		"Without --wait the job is left in history for 'imagegen resume'.",
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringVar(&submitNegative, "negative", "", "negative prompt")
	submitCmd.Flags().StringVarP(&submitModel, "model", "m", "", "model id")
	submitCmd.Flags().StringVar(&submitHeight, "height", "", "image height in pixels")
	submitCmd.Flags().StringVar(&submitWidth, "width", "", "image width in pixels")
	submitCmd.Flags().BoolVarP(&submitWait, "wait", "w", false, "poll until the job finishes")
	rootCmd.AddCommand(submitCmd)
}

type submitOutput struct {
	JobID     string `json:"job_id"`
	Model     string `json:"model"`
	OutputURL string `json:"output_url,omitempty"`
	Error     string `json:"error,omitempty"`
}

func runSubmit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.RequireAPI(); err != nil {
		return err
	}
	a, err := openApp(cmd.Context(), cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := applySubmitForm(cmd, a.ctrl, args); err != nil {
		return err
	}

	jobID, err := a.ctrl.Submit(cmd.Context())
	if err != nil {
		return err
	}
	out := submitOutput{JobID: jobID, Model: a.ctrl.View().Form.ModelID}

	if submitWait {
		view, err := a.ctrl.Await(cmd.Context())
		if err != nil {
			return err
		}
		out.OutputURL = view.OutputRef
		out.Error = view.Error
	}

	if jsonOut {
		printJSON(out)
	} else {
		fmt.Printf("Submitted job %s (%s)\n", out.JobID, out.Model)
		if out.OutputURL != "" {
			fmt.Printf("Output: %s\n", out.OutputURL)
		}
	}
	if out.Error != "" {
		return errors.New(out.Error)
	}
	return nil
}

// applySubmitForm writes the prompt argument and any explicitly set flags
// through to the saved form.
func applySubmitForm(cmd *cobra.Command, ctrl *session.Controller, args []string) error {
	ctx := cmd.Context()
	if len(args) > 0 {
		if err := ctrl.SetPrompt(ctx, strings.Join(args, " ")); err != nil {
			return err
		}
	}
	fields := []struct {
		flag  string
		value string
		set   func(context.Context, string) error
	}{
		{"negative", submitNegative, ctrl.SetNegativePrompt},
		{"model", submitModel, ctrl.SetModel},
		{"height", submitHeight, ctrl.SetHeight},
		{"width", submitWidth, ctrl.SetWidth},
	}
	for _, f := range fields {
		if !cmd.Flags().Changed(f.flag) {
			continue
		}
		if err := f.set(ctx, f.value); err != nil {
			return fmt.Errorf("--%s: %w", f.flag, err)
		}
	}
	return nil
}
