package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/prewarm/internal/api"
	"github.com/Iron-Ham/prewarm/internal/config"
	"github.com/Iron-Ham/prewarm/internal/errors"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show the prefetch metrics of the daemon's active session",
	RunE:  runMetrics,
}

var (
	metricsAddr  string
	metricsClear bool
	metricsJSON  bool
)

func init() {
	metricsCmd.Flags().StringVar(&metricsAddr, "addr", "", "daemon address (default server.host:server.port)")
	metricsCmd.Flags().BoolVar(&metricsClear, "clear", false, "reset the counters instead of showing them")
	metricsCmd.Flags().BoolVar(&metricsJSON, "json", false, "output metrics as JSON")
	rootCmd.AddCommand(metricsCmd)
}

func runMetrics(cmd *cobra.Command, args []string) error {
	addr := metricsAddr
	if addr == "" {
		cfg := config.Get()
		addr = net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	}
	c := &apiClient{base: "http://" + addr, http: &http.Client{Timeout: 5 * time.Second}}

	out := newPrinter(cmd.OutOrStdout())
	if metricsClear {
		if err := c.do(cmd.Context(), http.MethodDelete, "/api/v1/metrics", nil); err != nil {
			return err
		}
		out.line(out.render(successStyle, "Metrics cleared."))
		return nil
	}

	var resp api.MetricsResponse
	if err := c.do(cmd.Context(), http.MethodGet, "/api/v1/metrics", &resp); err != nil {
		return err
	}
	if metricsJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	printMetrics(out, resp.SessionID, resp.Metrics)
	return nil
}

// apiClient talks to a running daemon.
type apiClient struct {
	base string
	http *http.Client
}

// do sends a request and decodes a JSON response into v when v is
// non-nil. API error bodies are returned as errors.
func (c *apiClient) do(ctx context.Context, method, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("cannot reach daemon at %s (is 'prewarm serve' running?): %w", c.base, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var apiErr api.ErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Code != "" {
			return fmt.Errorf("%s: %s", apiErr.Error.Code, apiErr.Error.Message)
		}
		return &errors.HTTPError{URL: c.base + path, StatusCode: resp.StatusCode}
	}
	if v == nil || len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, v)
}
