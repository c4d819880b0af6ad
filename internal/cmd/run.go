package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/prewarm/internal/errors"
	"github.com/Iron-Ham/prewarm/internal/prefetch"
)

var runCmd = &cobra.Command{
	Use:   "run [path]",
	Short: "Warm one page load against the configured origin",
	Long: `Run simulates a single page load at path (default "/"): the critical
tier fires immediately, the secondary tier once the queue goes idle, and
the tertiary tier after the interaction fallback or the interactions given
with --interact. Run waits for every tier to finish and prints the prefetch
metrics.

The session store is cleared on exit unless --keep-session is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

var (
	runBaseURL     string
	runInteract    []string
	runTimeout     time.Duration
	runKeepSession bool
	runJSON        bool
)

func init() {
	runCmd.Flags().StringVar(&runBaseURL, "base-url", "", "origin to warm (overrides http.base_url)")
	runCmd.Flags().StringSliceVar(&runInteract, "interact", nil, "interactions to report after start (mousedown, touchstart, keydown)")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 30*time.Second, "maximum time to wait for all tiers")
	runCmd.Flags().BoolVar(&runKeepSession, "keep-session", false, "keep navigation history after the run")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "output metrics as JSON")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	path := "/"
	if len(args) == 1 {
		path = args[0]
	}
	if runBaseURL != "" {
		viper.Set("http.base_url", runBaseURL)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch := rt.newSession(nil)
	if err := orch.Start(ctx, path); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	for _, kind := range runInteract {
		if err := orch.Interact(kind, ""); err != nil {
			orch.Stop()
			return err
		}
	}

	waitCtx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()
	settleErr := orch.Settle(waitCtx)
	orch.Stop()
	if !runKeepSession {
		rt.endSession()
	}

	out := newPrinter(cmd.OutOrStdout())
	if errors.Is(settleErr, context.DeadlineExceeded) {
		out.line(out.render(warningStyle, fmt.Sprintf("Timed out after %s; metrics are partial.", runTimeout)))
	} else if errors.Is(settleErr, context.Canceled) {
		out.line(out.render(warningStyle, "Interrupted; metrics are partial."))
	}

	m := orch.Metrics()
	if runJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	}
	printMetrics(out, orch.SessionID(), m)
	return nil
}

func printMetrics(out *printer, sessionID string, m prefetch.Snapshot) {
	out.title("Prefetch metrics")
	if sessionID != "" {
		out.field("Session", out.render(mutedStyle, sessionID))
	}
	succeeded := fmt.Sprintf("%d", m.SuccessCount)
	if m.SuccessCount > 0 {
		succeeded = out.render(successStyle, succeeded)
	}
	failed := fmt.Sprintf("%d", m.ErrorCount)
	if m.ErrorCount > 0 {
		failed = out.render(errorStyle, failed)
	}
	out.field("Succeeded", succeeded)
	out.field("Failed", failed)
	out.field("Cache hits", fmt.Sprintf("%d (%.1f%%)", m.CacheHits, m.CacheHitRatePercent))
	out.field("Total load time", fmt.Sprintf("%.0fms", m.TotalTimeMs))
	out.field("Average load time", fmt.Sprintf("%.1fms", m.AverageLoadTimeMs))
}
