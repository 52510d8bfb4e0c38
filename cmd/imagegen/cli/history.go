package cli

import (
	"fmt"
	"strings"

	"imagegen/internal/ledger"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:     "history",
	Aliases: []string{"hist"},
	Short:   "Inspect and edit prompt history",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List history entries, oldest first",
	Args:  cobra.NoArgs,
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <index>",
	Short: "Show one history entry",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyDeleteCmd = &cobra.Command{
	Use:     "delete <index>",
	Aliases: []string{"rm"},
	Short:   "Delete one history entry",
	Args:    cobra.ExactArgs(1),
	RunE:    runHistoryDelete,
}

func init() {
	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyDeleteCmd)
	rootCmd.AddCommand(historyCmd)
}

type historyEntry struct {
	Index  int    `json:"index"`
	Status string `json:"status"`
	ledger.PromptRecord
}

func entryStatus(rec ledger.PromptRecord) string {
	switch {
	case rec.Resolved():
		return "done"
	case rec.Pending():
		return "pending"
	default:
		return "-"
	}
}

func historyEntries(records []ledger.PromptRecord) []historyEntry {
	out := make([]historyEntry, len(records))
	for i, rec := range records {
		out[i] = historyEntry{Index: i, Status: entryStatus(rec), PromptRecord: rec}
	}
	return out
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := openApp(cmd.Context(), cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	entries := historyEntries(a.ctrl.View().History)
	if jsonOut {
		printJSON(entries)
		return nil
	}
	if len(entries) == 0 {
		fmt.Println("No history yet. Run 'imagegen submit' to generate an image.")
		return nil
	}

	fmt.Printf("%-5s %-8s %-22s %-14s %s\n", "#", "STATUS", "MODEL", "JOB", "PROMPT")
	fmt.Println(strings.Repeat("-", 100))
	pending := 0
	for _, e := range entries {
		if e.Status == "pending" {
			pending++
		}
		fmt.Printf("%-5d %-8s %-22s %-14s %s\n",
			e.Index, e.Status, truncate(orDash(e.ModelID), 22), truncate(orDash(e.JobID), 14),
			truncate(oneLine(e.Prompt), 48))
	}
	fmt.Printf("\nTotal: %d entries (%d pending)\n", len(entries), pending)
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
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
	e := historyEntries(history)[i]
	if jsonOut {
		printJSON(e)
		return nil
	}
	printEntry(e)
	return nil
}

func runHistoryDelete(cmd *cobra.Command, args []string) error {
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

	rec, err := a.ctrl.DeleteEntry(cmd.Context(), i)
	if err != nil {
		return err
	}
	if jsonOut {
		printJSON(historyEntry{Index: i, Status: entryStatus(rec), PromptRecord: rec})
		return nil
	}
	fmt.Printf("Deleted entry %d: %s\n", i, truncate(oneLine(rec.Prompt), 60))
	return nil
}

func printEntry(e historyEntry) {
	fmt.Printf("Entry:     %d (%s)\n", e.Index, e.Status)
	fmt.Printf("Prompt:    %s\n", e.Prompt)
	if e.NegativePrompt != "" {
		fmt.Printf("Negative:  %s\n", e.NegativePrompt)
	}
	fmt.Printf("Model:     %s\n", orDash(e.ModelID))
	if e.Height != "" || e.Width != "" {
		fmt.Printf("Size:      %sx%s\n", orDash(e.Width), orDash(e.Height))
	}
	fmt.Printf("Job:       %s\n", orDash(e.JobID))
	fmt.Printf("Output:    %s\n", orDash(e.OutputRef))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
