package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var selectNoWait bool

var selectCmd = &cobra.Command{
	Use:   "select <index>",
	Short: "Load a history entry into the form",
	Long: "Load a history entry's prompt, negative prompt, model and dimensions into the form. " +
		"A finished entry becomes the current output; an unfinished one is polled again.",
	Args: cobra.ExactArgs(1),
	RunE: runSelect,
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the prompt and current output",
	Args:  cobra.NoArgs,
	RunE:  runClear,
}

func init() {
	selectCmd.Flags().BoolVar(&selectNoWait, "no-wait", false, "do not poll an unfinished entry")
	rootCmd.AddCommand(selectCmd, clearCmd)
}

type selectOutput struct {
	historyEntry
	OutputURL string `json:"output_url,omitempty"`
	Error     string `json:"error,omitempty"`
}

func runSelect(cmd *cobra.Command, args []string) error {
	i, err := parseIndex(args[0])
	if err != nil {
		return err
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

	rec, err := a.ctrl.SelectEntry(cmd.Context(), i)
	if err != nil {
		return err
	}
	view := a.ctrl.View()
	if view.Loading && !selectNoWait {
		if view, err = a.ctrl.Await(cmd.Context()); err != nil {
			return err
		}
	}

	out := selectOutput{
		historyEntry: historyEntry{Index: i, Status: entryStatus(rec), PromptRecord: rec},
		OutputURL:    view.OutputRef,
		Error:        view.Error,
	}
	if jsonOut {
		printJSON(out)
	} else {
		fmt.Printf("Loaded entry %d into the form (model %s)\n", i, view.Form.ModelID)
		if out.OutputURL != "" {
			fmt.Printf("Output: %s\n", out.OutputURL)
		}
	}
	if out.Error != "" {
		return errors.New(out.Error)
	}
	return nil
}

func runClear(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := openApp(cmd.Context(), cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.ctrl.Clear(cmd.Context()); err != nil {
		return err
	}
	if jsonOut {
		printJSON(a.ctrl.View().Form)
		return nil
	}
	fmt.Println("Prompt and output cleared.")
	return nil
}
