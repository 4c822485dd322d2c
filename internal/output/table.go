package output

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/colthorp/teampulse-go/internal/github"
	"github.com/colthorp/teampulse-go/internal/report"
	"github.com/colthorp/teampulse-go/internal/stats"
)

var titleStyle = lipgloss.NewStyle().Bold(true)

func renderSheet(w io.Writer, s sheet) error {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(s.header...).
		Rows(s.rows...)
	_, err := fmt.Fprintf(w, "%s\n%s\n\n", titleStyle.Render(s.title), t.String())
	return err
}

// WriteTable renders rep as bordered text tables.
func WriteTable(w io.Writer, rep *report.Report) error {
	if _, err := fmt.Fprintf(w, "Report %s  %s .. %s\n", rep.ID,
		rep.Start.Format("2006-01-02"), rep.End.Format("2006-01-02")); err != nil {
		return err
	}

	domains := make([]string, 0, len(rep.Domains))
	for name, st := range rep.Domains {
		line := name + ": " + st.Status
		if st.Error != "" {
			line += " (" + st.Error + ")"
		}
		domains = append(domains, line)
	}
	sort.Strings(domains)
	if _, err := fmt.Fprintf(w, "%s\n\n", strings.Join(domains, "; ")); err != nil {
		return err
	}

	for _, s := range sheets(rep) {
		if err := renderSheet(w, s); err != nil {
			return err
		}
	}
	return nil
}

// WriteOldPullsTable renders the stale pull request view.
func WriteOldPullsTable(w io.Writer, pulls []stats.OldPull) error {
	if len(pulls) == 0 {
		_, err := fmt.Fprintln(w, "No old pull requests.")
		return err
	}
	return renderSheet(w, oldPullsSheet(pulls))
}

// WritePullDetail renders one pull request's detail as a two-column table.
func WritePullDetail(w io.Writer, d *github.PullDetail) error {
	merged := "no"
	if d.Merged {
		merged = "yes"
	}
	s := sheet{
		title:  fmt.Sprintf("%s/%s#%d %s", d.Owner, d.Repo, d.Number, d.Title),
		header: []string{"Field", "Value"},
		rows: [][]string{
			{"State", d.State},
			{"Author", d.Author},
			{"Merged", merged},
			{"Commits", fmt.Sprint(d.Commits)},
			{"Additions", fmt.Sprint(d.Additions)},
			{"Deletions", fmt.Sprint(d.Deletions)},
			{"Changed files", fmt.Sprint(d.ChangedFiles)},
			{"Comments", fmt.Sprint(d.Comments)},
			{"Review comments", fmt.Sprint(d.ReviewComments)},
			{"URL", d.HTMLURL},
		},
	}
	return renderSheet(w, s)
}
