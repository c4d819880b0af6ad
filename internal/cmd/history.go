package cmd

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/prewarm/internal/navigation"
	"github.com/Iron-Ham/prewarm/internal/preference"
	"github.com/Iron-Ham/prewarm/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded navigation history and usage preferences",
	Long: `History prints the navigation history of the current session, the
patterns the tertiary tier detects in it, and the usage preferences kept in
the local store.`,
	RunE: runHistory,
}

var (
	historyClear bool
	historyJSON  bool
)

func init() {
	historyCmd.Flags().BoolVar(&historyClear, "clear", false, "clear the session history")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(historyCmd)
}

type historyReport struct {
	Paths       []string           `json:"paths"`
	Patterns    []string           `json:"patterns"`
	Preferences map[string]float64 `json:"preferences"`
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	sessionStore, err := store.NewFileStore(cfg.Storage.ResolveSessionDir())
	if err != nil {
		return err
	}
	out := newPrinter(cmd.OutOrStdout())
	if historyClear {
		if err := sessionStore.Clear(); err != nil {
			return fmt.Errorf("failed to clear session history: %w", err)
		}
		out.line(out.render(successStyle, "Session history cleared."))
		return nil
	}

	local, err := store.OpenSQLite(cfg.Storage.ResolveLocalDB())
	if err != nil {
		return err
	}
	defer func() { _ = local.Close() }()

	paths, err := navigation.NewRecorder(sessionStore, cfg.Prefetch.HistoryLimit).History()
	if err != nil {
		return err
	}
	tracker, err := preference.NewTracker(local, nil)
	if err != nil {
		return err
	}
	prefs, err := tracker.Preferences()
	if err != nil {
		return err
	}

	report := historyReport{Paths: paths, Patterns: navigation.Analyze(paths), Preferences: prefs}
	if historyJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	out.title("Navigation history")
	if len(report.Paths) == 0 {
		out.line(out.render(mutedStyle, "  (empty)"))
	}
	for i, p := range report.Paths {
		out.line(fmt.Sprintf("  %2d. %s", i+1, p))
	}
	if len(report.Patterns) > 0 {
		out.field("Patterns", strings.Join(report.Patterns, ", "))
	}

	out.line("")
	out.title("Usage preferences")
	if len(report.Preferences) == 0 {
		out.line(out.render(mutedStyle, "  (none recorded)"))
	}
	features := make([]string, 0, len(report.Preferences))
	for f := range report.Preferences {
		features = append(features, f)
	}
	sort.Strings(features)
	for _, f := range features {
		out.field(f, fmt.Sprintf("%.2f", report.Preferences[f]))
	}
	return nil
}
