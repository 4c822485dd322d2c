package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/xuri/excelize/v2"

	"github.com/colthorp/teampulse-go/internal/github"
	"github.com/colthorp/teampulse-go/internal/report"
	"github.com/colthorp/teampulse-go/internal/roster"
	"github.com/colthorp/teampulse-go/internal/stats"
)

func sampleReport() *report.Report {
	three := 3
	closed := time.Date(2024, 1, 18, 0, 0, 0, 0, time.UTC)
	prs := []github.PullRequest{
		{Number: 1, Repository: "api", CreatedAt: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), ClosedAt: &closed},
		{Number: 2, Repository: "api", CreatedAt: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)},
	}
	ps := stats.Authored(prs)
	ps.CycleTimePerMonth["2024-01"] = &three

	return &report.Report{
		ID:     "abcd1234",
		State:  report.StateLoaded,
		Start:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:    time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC),
		Months: []string{"2024-01", "2024-02"},
		Domains: map[string]report.DomainStatus{
			report.DomainSourceControl: {Status: report.DomainLoaded},
			report.DomainTickets:       {Status: report.DomainUnavailable, Error: "jira down"},
			report.DomainRecognition:   {Status: report.DomainLoaded},
		},
		Users: []report.UserSummary{{
			Identity:  roster.Identity{Username: "alice", DisplayName: "Alice Liddell"},
			Authored:  prs,
			PullStats: ps,
			OldPulls:  []stats.OldPull{{Owner: "acme", Repo: "api", Number: 2, Author: "alice", DaysElapsed: 9, Title: "Fix it"}},
			RecognitionStats: []stats.RecognitionMonth{
				{Month: "2024-01", Count: 2, Amount: 15},
			},
		}},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatTable, false},
		{"JSON", FormatJSON, false},
		{"xlsx", FormatXLSX, false},
		{"csv", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestRenderJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, FormatJSON, sampleReport()); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	var got report.Report
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("Expected valid JSON, got %v", err)
	}
	if got.ID != "abcd1234" || len(got.Users) != 1 {
		t.Errorf("Unexpected decoded report %+v", got)
	}
}

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, FormatTable, sampleReport()); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"Pull requests", "Alice Liddell", "2024-01", "Recognition",
		"tickets: unavailable (jira down)", "Old pull requests", "acme/api",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Story points") {
		t.Error("Expected no tickets table when the domain is unavailable")
	}
}

func TestRenderXLSX(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, FormatXLSX, sampleReport()); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("Expected a readable workbook, got %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Pull requests")
	if err != nil {
		t.Fatalf("GetRows failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected header and one user row, got %d rows", len(rows))
	}
	if rows[0][1] != "2024-01" || rows[1][0] != "Alice Liddell" || rows[1][1] != "1" {
		t.Errorf("Unexpected rows %v", rows)
	}

	if idx, _ := f.GetSheetIndex("Tickets"); idx != -1 {
		t.Error("Expected no Tickets sheet when the domain is unavailable")
	}
	if idx, _ := f.GetSheetIndex("Recognition"); idx == -1 {
		t.Error("Expected a Recognition sheet")
	}
}

func TestOldPullsAndDetail(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderOldPulls(&buf, FormatTable, nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No old pull requests") {
		t.Errorf("Unexpected output %q", buf.String())
	}

	buf.Reset()
	d := &github.PullDetail{Owner: "acme", Repo: "api", Number: 7, Title: "Add cache", Merged: true, Additions: 42}
	if err := WritePullDetail(&buf, d); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "acme/api#7 Add cache") || !strings.Contains(buf.String(), "42") {
		t.Errorf("Unexpected detail output:\n%s", buf.String())
	}
}
