// Package output renders reports for the terminal and for export.
package output

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/colthorp/teampulse-go/internal/report"
	"github.com/colthorp/teampulse-go/internal/stats"
)

// Format is an output format name.
type Format string

const (
	FormatJSON  Format = "json"
	FormatTable Format = "table"
	FormatXLSX  Format = "xlsx"
)

// ParseFormat validates a --format value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatTable, FormatXLSX:
		return f, nil
	case "":
		return FormatTable, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want json, table or xlsx)", s)
	}
}

// WriteJSON writes v as indented JSON followed by a newline.
func WriteJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// Render writes rep in format.
func Render(w io.Writer, format Format, rep *report.Report) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, rep)
	case FormatXLSX:
		return WriteXLSX(w, rep)
	default:
		return WriteTable(w, rep)
	}
}

// RenderOldPulls writes the stale pull request view in format. XLSX is not
// supported for this view and falls back to a table.
func RenderOldPulls(w io.Writer, format Format, pulls []stats.OldPull) error {
	if format == FormatJSON {
		return WriteJSON(w, pulls)
	}
	return WriteOldPullsTable(w, pulls)
}

// sheet is one tabular view of a report, shared by the text and XLSX renderers.
type sheet struct {
	title  string
	header []string
	rows   [][]string
}

func monthHeader(first string, months []string, extra ...string) []string {
	h := append([]string{first}, months...)
	return append(h, extra...)
}

func countRow(name string, months []string, counts map[string]int, extra ...string) []string {
	row := []string{name}
	for _, m := range months {
		row = append(row, strconv.Itoa(counts[m]))
	}
	return append(row, extra...)
}

func optInt(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}

func optFloat(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 1, 64)
}

func displayName(u report.UserSummary) string {
	if u.Identity.DisplayName != "" {
		return u.Identity.DisplayName
	}
	return u.Identity.Username
}

// sheets lays out rep as monthly tables, one row per user.
func sheets(rep *report.Report) []sheet {
	months := rep.Months

	prs := sheet{title: "Pull requests", header: monthHeader("User", months, "Total", "Avg/month")}
	reviews := sheet{title: "Reviews", header: monthHeader("User", months, "Total")}
	commits := sheet{title: "Commits", header: monthHeader("User", months, "Total")}
	cycle := sheet{title: "Cycle time (days)", header: monthHeader("User", months)}

	for _, u := range rep.Users {
		name := displayName(u)
		prs.rows = append(prs.rows, countRow(name, months, u.PullStats.CountPerMonth,
			strconv.Itoa(u.PullStats.Total), optInt(u.PullStats.AveragePerMonth)))
		reviews.rows = append(reviews.rows, countRow(name, months, u.ReviewStats.CountPerMonth,
			strconv.Itoa(u.ReviewStats.Total)))
		commits.rows = append(commits.rows, countRow(name, months, u.CommitStats.CountPerMonth,
			strconv.Itoa(u.CommitStats.Total)))

		row := []string{name}
		for _, m := range months {
			row = append(row, optInt(u.PullStats.CycleTimePerMonth[m]))
		}
		cycle.rows = append(cycle.rows, row)
	}

	out := []sheet{prs, reviews, commits, cycle}

	if rep.Domains[report.DomainTickets].Status == report.DomainLoaded {
		tickets := sheet{title: "Tickets", header: []string{"User", "Month", "Bugs", "Tasks", "Story points", "Resolved", "Avg resolution (days)"}}
		for _, u := range rep.Users {
			for _, tm := range u.TicketStats {
				tickets.rows = append(tickets.rows, []string{
					displayName(u), tm.Month,
					strconv.Itoa(tm.Bugs), strconv.Itoa(tm.Tasks),
					strconv.FormatFloat(tm.StoryPoints, 'f', -1, 64),
					strconv.Itoa(tm.Resolved), optFloat(tm.AverageResolutionDays),
				})
			}
		}
		out = append(out, tickets)
	}

	if rep.Domains[report.DomainRecognition].Status == report.DomainLoaded {
		recognition := sheet{title: "Recognition", header: []string{"User", "Month", "Count", "Amount"}}
		for _, u := range rep.Users {
			for _, rm := range u.RecognitionStats {
				recognition.rows = append(recognition.rows, []string{
					displayName(u), rm.Month, strconv.Itoa(rm.Count), strconv.Itoa(rm.Amount),
				})
			}
		}
		out = append(out, recognition)
	}

	var old []stats.OldPull
	for _, u := range rep.Users {
		old = append(old, u.OldPulls...)
	}
	if len(old) > 0 {
		out = append(out, oldPullsSheet(old))
	}
	return out
}

func oldPullsSheet(pulls []stats.OldPull) sheet {
	s := sheet{title: "Old pull requests", header: []string{"Repository", "Number", "Author", "Days open", "Draft", "Title"}}
	for _, p := range pulls {
		draft := ""
		if p.Draft {
			draft = "yes"
		}
		s.rows = append(s.rows, []string{
			p.Owner + "/" + p.Repo, "#" + strconv.Itoa(p.Number), p.Author,
			strconv.Itoa(p.DaysElapsed), draft, p.Title,
		})
	}
	return s
}
