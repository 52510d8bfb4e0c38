package cli

import (
	"fmt"

	"imagegen/internal/fetch"

	"github.com/spf13/cobra"
)

var fetchDir string

var fetchCmd = &cobra.Command{
	Use:   "fetch <index>",
	Short: "Download a history entry's image",
	Args:  cobra.ExactArgs(1),
	RunE:  runFetch,
}

func init() {
	fetchCmd.Flags().StringVarP(&fetchDir, "dir", "d", "", "download directory (default from config)")
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
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

	history := a.ctrl.View().History
	if i >= len(history) {
		return fmt.Errorf("history index %d out of range (have %d entries)", i, len(history))
	}
	dir := cfg.DownloadDir
	if fetchDir != "" {
		dir = fetchDir
	}

	res, err := fetch.New(a.client, dir).Save(cmd.Context(), history[i])
	if err != nil {
		return fmt.Errorf("fetch entry %d: %w", i, err)
	}
	if jsonOut {
		printJSON(res)
		return nil
	}
	fmt.Printf("Saved %s (%d bytes)\n", res.Path, res.Bytes)
	return nil
}
