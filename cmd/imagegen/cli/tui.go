package cli

import (
	"fmt"

	"imagegen/internal/tui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Interactive terminal client",
	Args:  cobra.NoArgs,
	RunE:  runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	w, err := logFile(cfg)
	if err != nil {
		return err
	}
	defer w.Close()
	setupLogging(cfg, w)

	feed := tui.NewFeed()
	a, err := openApp(cmd.Context(), cfg, feed.Push)
	if err != nil {
		return err
	}
	defer a.Close()

	model := tui.NewModel(a.ctrl, cfg, feed)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("tui error: %w", err)
	}
	return nil
}
