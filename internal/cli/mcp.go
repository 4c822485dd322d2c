package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/colthorp/teampulse-go/internal/core"
	"github.com/colthorp/teampulse-go/internal/logging"
	"github.com/colthorp/teampulse-go/internal/report"
)

const (
	toolActivityReport = "activity_report"
	toolRefreshCache   = "refresh_cache"
)

// ReportParams are the arguments of the activity_report and refresh_cache tools.
type ReportParams struct {
	Users  []string `json:"users,omitempty" jsonschema:"GitHub usernames to report on"`
	Team   string   `json:"team,omitempty" jsonschema:"Roster team whose members are added to users"`
	Start  string   `json:"start,omitempty" jsonschema:"Start date: YYYY-MM-DD, M/D, today, or relative (d-30, w-4, m-3)"`
	End    string   `json:"end,omitempty" jsonschema:"End date in the same forms as start (default today)"`
	Period string   `json:"period,omitempty" jsonschema:"Named period instead of start/end, e.g. last-month, this-quarter"`
	Raw    bool     `json:"raw,omitempty" jsonschema:"Return the full report JSON instead of a summary"`
}

func (p ReportParams) query() report.Query {
	return report.Query{Users: p.Users, Team: p.Team, Start: p.Start, End: p.End, Period: p.Period}
}

// newMCPServer exposes the report tools over the Model Context Protocol.
func newMCPServer(orch *report.Orchestrator) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "teampulse", Version: core.Version}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        toolActivityReport,
		Description: "Report engineering activity (pull requests authored and reviewed, commits, tickets, recognition) per user and month.\n\nCached upstream data is reused; give either period or start/end.",
	}, reportHandler(orch, false))
	mcp.AddTool(server, &mcp.Tool{
		Name:        toolRefreshCache,
		Description: "Drop cached data for the users and range, then run activity_report again against the upstream APIs.",
	}, reportHandler(orch, true))

	return server
}

// serveMCP runs the server until the client disconnects or ctx ends.
func serveMCP(ctx context.Context, server *mcp.Server, transport mcp.Transport) error {
	log := logging.With("mcp")
	log.Debug().Msg("MCP server starting")

	err := server.Run(ctx, transport)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("serve MCP: %w", err)
	}
	return nil
}

func reportHandler(orch *report.Orchestrator, refresh bool) mcp.ToolHandlerFor[ReportParams, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, args ReportParams) (*mcp.CallToolResult, any, error) {
		req, err := orch.BuildRequest(args.query())
		if err != nil {
			return nil, nil, fmt.Errorf("invalid request: %w", err)
		}

		run := orch.Run
		if refresh {
			run = orch.Refresh
		}
		rep, err := run(ctx, req)
		if err != nil {
			log := logging.With("mcp")
			log.Warn().Err(err).Strs("users", req.Usernames).Msg("Report failed")
			return textResult(map[string]interface{}{
				"error": err.Error(),
				"start": core.FormatDate(req.Start),
				"end":   core.FormatDate(req.End),
				"users": req.Usernames,
			})
		}

		if args.Raw {
			return textResult(rep)
		}
		return textResult(formatReportForDisplay(rep))
	}
}

func textResult(v interface{}) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("encode result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}

// formatReportForDisplay reduces a report to per-user totals and monthly counts.
func formatReportForDisplay(rep *report.Report) map[string]interface{} {
	users := make([]map[string]interface{}, 0, len(rep.Users))
	for _, u := range rep.Users {
		summary := map[string]interface{}{
			"username":          u.Identity.Username,
			"name":              u.Identity.DisplayName,
			"prs_authored":      u.PullStats.Total,
			"prs_reviewed":      u.ReviewStats.Total,
			"commits":           u.CommitStats.Total,
			"prs_per_month":     u.PullStats.CountPerMonth,
			"reviews_per_month": u.ReviewStats.CountPerMonth,
			"repos":             u.PullStats.Repos,
			"old_prs":           len(u.OldPulls),
		}
		if u.PullStats.AveragePerMonth != nil {
			summary["avg_prs_per_month"] = *u.PullStats.AveragePerMonth
		}
		if rep.Domains[report.DomainTickets].Status == report.DomainLoaded {
			summary["tickets"] = len(u.Tickets)
		}
		if rep.Domains[report.DomainRecognition].Status == report.DomainLoaded {
			summary["recognition"] = len(u.Recognition)
		}
		users = append(users, summary)
	}

	return map[string]interface{}{
		"start":   core.FormatDate(rep.Start),
		"end":     core.FormatDate(rep.End),
		"months":  rep.Months,
		"domains": rep.Domains,
		"users":   users,
	}
}
