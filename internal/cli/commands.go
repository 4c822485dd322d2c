package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/colthorp/teampulse-go/internal/github"
	"github.com/colthorp/teampulse-go/internal/logging"
	"github.com/colthorp/teampulse-go/internal/output"
	"github.com/colthorp/teampulse-go/internal/report"
	"github.com/colthorp/teampulse-go/internal/server"
	"github.com/colthorp/teampulse-go/internal/stats"
)

func init() {
	// Add all subcommands
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(oldPRsCmd)
	rootCmd.AddCommand(prCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheClearCmd)

	// Add relative period commands
	for _, period := range []string{"this-week", "last-week", "this-month", "last-month", "this-quarter", "last-quarter", "this-year", "last-year"} {
		rootCmd.AddCommand(createRelativePeriodCmd(period))
	}

	for _, cmd := range []*cobra.Command{reportCmd, refreshCmd, oldPRsCmd} {
		addQueryFlags(cmd)
		cmd.Flags().StringP("output", "o", "", "Write to this file instead of stdout (required for xlsx)")
	}
	reportCmd.Flags().Bool("from-snapshot", false, "Redisplay the last saved report without querying")
	oldPRsCmd.Flags().Int("days", 0, "Age threshold in days (default from config)")

	prCmd.Flags().Bool("clear", false, "Drop the cached detail instead of fetching it")

	serveCmd.Flags().String("addr", "", "Listen address (default from config)")
}

func addQueryFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("team", "t", "", "Roster team to report on")
	cmd.Flags().String("start", "", "Start date (YYYY-MM-DD, M/D, d-30, w-4, m-3, today)")
	cmd.Flags().String("end", "", "End date (default today)")
	cmd.Flags().String("period", "", "Named period, e.g. last-month or this-quarter")
}

// reportCmd runs a report
var reportCmd = &cobra.Command{
	Use:   "report [username...]",
	Short: "Report activity for users or a team over a date range",
	RunE:  handleReport,
}

// refreshCmd invalidates cached data and reruns the report
var refreshCmd = &cobra.Command{
	Use:   "refresh [username...]",
	Short: "Drop cached data for users over a range and report again",
	RunE:  handleRefresh,
}

// oldPRsCmd lists stale open pull requests
var oldPRsCmd = &cobra.Command{
	Use:   "old-prs [username...]",
	Short: "List open pull requests older than the threshold",
	RunE:  handleOldPRs,
}

// prCmd shows one pull request
var prCmd = &cobra.Command{
	Use:   "pr <owner/repo#number>",
	Short: "Show pull request detail (cached for a day)",
	Args:  cobra.ExactArgs(1),
	RunE:  handlePR,
}

// serveCmd starts the HTTP API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the report API over HTTP",
	RunE:  handleServe,
}

// mcpCmd starts the MCP server
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server for AI integration",
	RunE:  handleMCP,
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the fetch cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list [prefix]",
	Short: "List cached keys",
	Args:  cobra.MaximumNArgs(1),
	RunE:  handleCacheList,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [prefix]",
	Short: "Delete cached keys with prefix (all keys when omitted)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  handleCacheClear,
}

func queryFromFlags(cmd *cobra.Command, users []string) report.Query {
	team, _ := cmd.Flags().GetString("team")
	start, _ := cmd.Flags().GetString("start")
	end, _ := cmd.Flags().GetString("end")
	period, _ := cmd.Flags().GetString("period")
	return report.Query{Users: users, Team: team, Start: start, End: end, Period: period}
}

// openOutput returns the writer for --output, defaulting to stdout.
func openOutput(cmd *cobra.Command, f output.Format) (io.Writer, func() error, error) {
	path, _ := cmd.Flags().GetString("output")
	if path == "" {
		if f == output.FormatXLSX {
			return nil, nil, errors.New("--output is required for xlsx")
		}
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return file, file.Close, nil
}

func renderReport(cmd *cobra.Command, rep *report.Report) error {
	f, err := output.ParseFormat(format)
	if err != nil {
		return err
	}
	w, closeFn, err := openOutput(cmd, f)
	if err != nil {
		return err
	}
	if err := output.Render(w, f, rep); err != nil {
		closeFn()
		return err
	}
	return closeFn()
}

func runQuery(cmd *cobra.Command, q report.Query, refresh bool) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	req, err := a.orch.BuildRequest(q)
	if err != nil {
		return err
	}

	run := a.orch.Run
	if refresh {
		run = a.orch.Refresh
	}
	rep, err := run(cmd.Context(), req)
	if err != nil {
		return err
	}
	for name, st := range rep.Domains {
		if st.Status == report.DomainUnavailable {
			logging.Warn().Str("domain", name).Str("error", st.Error).Msg("Data source unavailable, report is partial")
		}
	}
	return renderReport(cmd, rep)
}

func handleReport(cmd *cobra.Command, args []string) error {
	if fromSnapshot, _ := cmd.Flags().GetBool("from-snapshot"); fromSnapshot {
		rep, err := report.NewFileSnapshots(cfg.Report.SnapshotPath).Load()
		if err != nil {
			return err
		}
		return renderReport(cmd, rep)
	}
	return runQuery(cmd, queryFromFlags(cmd, args), false)
}

func handleRefresh(cmd *cobra.Command, args []string) error {
	return runQuery(cmd, queryFromFlags(cmd, args), true)
}

func createRelativePeriodCmd(period string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   period + " [username...]",
		Short: fmt.Sprintf("Report activity for %s", period),
		RunE: func(cmd *cobra.Command, args []string) error {
			team, _ := cmd.Flags().GetString("team")
			return runQuery(cmd, report.Query{Users: args, Team: team, Period: period}, false)
		},
	}
	cmd.Flags().StringP("team", "t", "", "Roster team to report on")
	cmd.Flags().StringP("output", "o", "", "Write to this file instead of stdout (required for xlsx)")
	return cmd
}

func handleOldPRs(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	req, err := a.orch.BuildRequest(queryFromFlags(cmd, args))
	if err != nil {
		return err
	}
	rep, err := a.orch.Run(cmd.Context(), req)
	if err != nil {
		return err
	}

	var pulls []stats.OldPull
	days, _ := cmd.Flags().GetInt("days")
	for _, u := range rep.Users {
		if days > 0 {
			pulls = append(pulls, stats.OldPulls(u.Authored, rep.GeneratedAt, days)...)
		} else {
			pulls = append(pulls, u.OldPulls...)
		}
	}

	sort.SliceStable(pulls, func(i, j int) bool { return pulls[i].DaysElapsed > pulls[j].DaysElapsed })

	f, err := output.ParseFormat(format)
	if err != nil {
		return err
	}
	return output.RenderOldPulls(cmd.OutOrStdout(), f, pulls)
}

var prRefPattern = regexp.MustCompile(`^([^/\s]+)/([^#\s]+)#(\d+)$`)

// parsePullRef accepts owner/repo#number or a pull request URL.
func parsePullRef(s string) (github.PullRef, error) {
	s = strings.TrimSpace(s)
	if m := prRefPattern.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[3])
		return github.PullRef{Owner: m[1], Repo: m[2], Number: n}, nil
	}
	if strings.Contains(s, "/pull/") || strings.Contains(s, "/pulls/") {
		parts := strings.Split(strings.TrimSuffix(s, "/"), "/")
		if len(parts) >= 4 {
			n, err := strconv.Atoi(parts[len(parts)-1])
			if err == nil {
				return github.PullRef{Owner: parts[len(parts)-4], Repo: parts[len(parts)-3], Number: n}, nil
			}
		}
	}
	return github.PullRef{}, fmt.Errorf("invalid pull request reference %q (want owner/repo#number or a pull request URL)", s)
}

func handlePR(cmd *cobra.Command, args []string) error {
	ref, err := parsePullRef(args[0])
	if err != nil {
		return err
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	fetchers := a.orch.Fetchers()
	if clearCache, _ := cmd.Flags().GetBool("clear"); clearCache {
		if err := fetchers.ClearPullCache(ref); err != nil {
			return err
		}
		logging.Info().Str("pr", args[0]).Msg("Cleared cached pull request detail")
		return nil
	}

	d, err := fetchers.PullDetail(cmd.Context(), ref)
	if err != nil {
		return err
	}
	if format == string(output.FormatJSON) {
		return output.WriteJSON(cmd.OutOrStdout(), d)
	}
	return output.WritePullDetail(cmd.OutOrStdout(), d)
}

func handleServe(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = cfg.Server.Addr
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := server.New(a.orch, a.snapshots,
		server.WithCORS(cfg.Server.AllowedOrigins...),
		server.WithRateLimit(cfg.Server.RateLimit, time.Minute),
	)
	return srv.ListenAndServe(cmd.Context(), addr)
}

func handleMCP(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return serveMCP(cmd.Context(), newMCPServer(a.orch), &mcp.StdioTransport{})
}

func handleCacheList(cmd *cobra.Command, args []string) error {
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	keys, err := store.Keys(prefixArg(args))
	if err != nil {
		return err
	}
	for _, k := range keys {
		fmt.Fprintln(cmd.OutOrStdout(), k)
	}
	return nil
}

func handleCacheClear(cmd *cobra.Command, args []string) error {
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := clearKeys(cmd.Context(), store, prefixArg(args))
	if err != nil {
		return err
	}
	logging.Info().Int("deleted", n).Msg("Cache cleared")
	return nil
}

func prefixArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

type keyStore interface {
	Keys(prefix string) ([]string, error)
	Delete(key string) error
}

func clearKeys(ctx context.Context, store keyStore, prefix string) (int, error) {
	keys, err := store.Keys(prefix)
	if err != nil {
		return 0, err
	}
	for i, k := range keys {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := store.Delete(k); err != nil {
			return i, err
		}
	}
	return len(keys), nil
}
