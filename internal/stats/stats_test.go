package stats

import (
	"reflect"
	"testing"
	"time"

	"github.com/colthorp/teampulse-go/internal/bonusly"
	"github.com/colthorp/teampulse-go/internal/github"
	"github.com/colthorp/teampulse-go/internal/jira"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func tsp(s string) *time.Time {
	t := ts(s)
	return &t
}

func pr(repo, created string, closed *time.Time) github.PullRequest {
	return github.PullRequest{
		Repository:    repo,
		RepositoryURL: "https://api.github.com/repos/acme/" + repo,
		CreatedAt:     ts(created),
		ClosedAt:      closed,
	}
}

func TestMonthlyBucketing(t *testing.T) {
	prs := []github.PullRequest{
		pr("api", "2024-01-15T10:00:00Z", nil),
		pr("api", "2024-01-31T23:00:00Z", nil),
		pr("web", "2024-02-01T00:00:00Z", nil),
	}

	s := Authored(prs)
	if !reflect.DeepEqual(s.Months, []string{"2024-01", "2024-02"}) {
		t.Errorf("Expected two months, got %v", s.Months)
	}
	if s.CountPerMonth["2024-01"] != 2 || s.CountPerMonth["2024-02"] != 1 {
		t.Errorf("Unexpected counts %v", s.CountPerMonth)
	}
}

func TestSortMonthsAcrossYearBoundary(t *testing.T) {
	months := []string{"2023-11", "2024-01", "2023-12"}
	SortMonths(months)
	if !reflect.DeepEqual(months, []string{"2023-11", "2023-12", "2024-01"}) {
		t.Errorf("Unexpected order %v", months)
	}

	mixed := []string{"2024-10", "2024-9", "bogus", "2023-12"}
	SortMonths(mixed)
	if !reflect.DeepEqual(mixed, []string{"2023-12", "2024-9", "2024-10", "bogus"}) {
		t.Errorf("Expected numeric month order with invalid last, got %v", mixed)
	}
}

func TestCycleTimeExcludesOpenItems(t *testing.T) {
	prs := []github.PullRequest{
		pr("api", "2024-03-01T00:00:00Z", tsp("2024-03-03T00:00:00Z")),
		pr("api", "2024-03-02T00:00:00Z", tsp("2024-03-06T00:00:00Z")),
		pr("api", "2024-03-04T00:00:00Z", nil),
	}

	s := Authored(prs)
	avg := s.CycleTimePerMonth["2024-03"]
	if avg == nil || *avg != 3 {
		t.Errorf("Expected average cycle time 3, got %v", avg)
	}
}

func TestCycleTimeRoundsUpAndFloorsAverage(t *testing.T) {
	prs := []github.PullRequest{
		pr("api", "2024-03-01T00:00:00Z", tsp("2024-03-01T01:00:00Z")), // 1 day
		pr("api", "2024-03-01T00:00:00Z", tsp("2024-03-02T01:00:00Z")), // 2 days
	}
	if avg := AverageCycleTime(prs); avg == nil || *avg != 1 {
		t.Errorf("Expected floor(3/2) = 1, got %v", avg)
	}
}

func TestAverageCycleTimeNoClosedItems(t *testing.T) {
	s := Authored([]github.PullRequest{pr("api", "2024-03-04T00:00:00Z", nil)})
	if avg := s.CycleTimePerMonth["2024-03"]; avg != nil {
		t.Errorf("Expected no data, got %d", *avg)
	}
}

func TestEmptyInput(t *testing.T) {
	s := Authored(nil)
	if len(s.Months) != 0 || s.Total != 0 || s.AveragePerMonth != nil {
		t.Errorf("Expected empty series with no average, got %+v", s)
	}
	if len(Tickets(nil)) != 0 || len(Recognitions(nil)) != 0 || Commits(nil).Total != 0 {
		t.Error("Expected empty series for empty input")
	}
	if MonthsBetween(ts("2024-02-01T00:00:00Z"), ts("2024-01-01T00:00:00Z")) != nil {
		t.Error("Expected no months for inverted range")
	}
}

func TestPerRepoBreakdownIsZeroFilled(t *testing.T) {
	prs := []github.PullRequest{
		pr("api", "2024-01-10T00:00:00Z", nil),
		pr("web", "2024-02-10T00:00:00Z", nil),
		pr("web", "2024-02-11T00:00:00Z", nil),
	}

	s := Authored(prs)
	if !reflect.DeepEqual(s.Repos, []string{"api", "web"}) {
		t.Errorf("Unexpected repos %v", s.Repos)
	}
	want := map[string]map[string]int{
		"2024-01": {"api": 1, "web": 0},
		"2024-02": {"api": 0, "web": 2},
	}
	if !reflect.DeepEqual(s.PerRepoPerMonth, want) {
		t.Errorf("Expected %v, got %v", want, s.PerRepoPerMonth)
	}
	if s.Distribution["web"] != 2 || s.Distribution["api"] != 1 {
		t.Errorf("Unexpected distribution %v", s.Distribution)
	}
	if s.AveragePerMonth == nil || *s.AveragePerMonth != 2 {
		t.Errorf("Expected round(3/2) = 2, got %v", s.AveragePerMonth)
	}
}

func TestRepoNameFromURL(t *testing.T) {
	p := github.PullRequest{RepositoryURL: "https://api.github.com/repos/acme/infra", CreatedAt: ts("2024-01-01T00:00:00Z")}
	if got := Reviewed([]github.PullRequest{p}).Repos; !reflect.DeepEqual(got, []string{"infra"}) {
		t.Errorf("Expected repo from URL, got %v", got)
	}
}

func TestOldPulls(t *testing.T) {
	now := ts("2024-03-20T00:00:00Z")
	prs := []github.PullRequest{
		{Number: 1, Owner: "acme", Repository: "api", CreatedAt: ts("2024-03-18T00:00:00Z")},
		{Number: 2, Owner: "acme", Repository: "api", CreatedAt: ts("2024-03-01T00:00:00Z")},
		{Number: 3, Owner: "acme", Repository: "web", CreatedAt: ts("2024-03-10T00:00:00Z")},
		{Number: 4, Owner: "acme", Repository: "web", CreatedAt: ts("2024-03-01T00:00:00Z"), ClosedAt: tsp("2024-03-02T00:00:00Z")},
	}

	old := OldPulls(prs, now, 5)
	if len(old) != 2 {
		t.Fatalf("Expected 2 old pull requests, got %d", len(old))
	}
	if old[0].Number != 2 || old[1].Number != 3 {
		t.Errorf("Expected oldest first, got %d then %d", old[0].Number, old[1].Number)
	}
	if old[0].DaysElapsed != 19 || old[0].Repo != "api" {
		t.Errorf("Unexpected old pull %+v", old[0])
	}
}

func TestMonthsBetween(t *testing.T) {
	got := MonthsBetween(ts("2023-11-20T00:00:00Z"), ts("2024-02-03T00:00:00Z"))
	want := []string{"2023-11", "2023-12", "2024-01", "2024-02"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}

	span := SpanMonths([]time.Time{ts("2024-03-01T00:00:00Z"), ts("2024-01-05T00:00:00Z")})
	if !reflect.DeepEqual(span, []string{"2024-01", "2024-02", "2024-03"}) {
		t.Errorf("Unexpected span %v", span)
	}
}

func TestTickets(t *testing.T) {
	tickets := []jira.Ticket{
		{Type: "Bug", Status: "Done", StoryPoints: 2, CreatedAt: ts("2024-03-01T00:00:00Z"), ResolvedAt: ts("2024-03-03T00:00:00Z"), Resolved: true},
		{Type: "Story", Status: "Done", StoryPoints: 5, CreatedAt: ts("2024-03-05T00:00:00Z"), ResolvedAt: ts("2024-03-06T00:00:00Z"), Resolved: true},
		{Type: "Story", Status: "In Progress", StoryPoints: 8, CreatedAt: ts("2024-03-07T00:00:00Z"), ResolvedAt: ts("2024-03-07T00:00:00Z")},
		{Type: "Task", Status: "To Do", CreatedAt: ts("2024-04-01T00:00:00Z"), ResolvedAt: ts("2024-04-01T00:00:00Z")},
	}

	got := Tickets(tickets)
	if len(got) != 2 {
		t.Fatalf("Expected 2 months, got %d", len(got))
	}
	mar := got[0]
	if mar.Month != "2024-03" || mar.Bugs != 1 || mar.Tasks != 2 || mar.StoryPoints != 7 || mar.Resolved != 2 {
		t.Errorf("Unexpected March stats %+v", mar)
	}
	if mar.AverageResolutionDays == nil || *mar.AverageResolutionDays != 1.5 {
		t.Errorf("Expected 1.5 resolution days, got %v", mar.AverageResolutionDays)
	}
	if got[1].AverageResolutionDays != nil {
		t.Error("Expected no resolution data for April")
	}
}

func TestRecognitionsAndCommits(t *testing.T) {
	recs := []bonusly.Recognition{
		{Amount: 10, CreatedAt: ts("2024-05-02T00:00:00Z")},
		{Amount: 5, CreatedAt: ts("2024-05-20T00:00:00Z")},
		{Amount: 1, CreatedAt: ts("2024-06-01T00:00:00Z")},
	}
	got := Recognitions(recs)
	if len(got) != 2 || got[0].Count != 2 || got[0].Amount != 15 || got[1].Amount != 1 {
		t.Errorf("Unexpected recognition stats %+v", got)
	}

	commits := []github.Commit{
		{AuthoredAt: ts("2024-05-02T00:00:00Z")},
		{AuthoredAt: ts("2024-06-02T00:00:00Z")},
		{AuthoredAt: ts("2024-06-03T00:00:00Z")},
	}
	cs := Commits(commits)
	if cs.CountPerMonth["2024-06"] != 2 || !reflect.DeepEqual(cs.Months, []string{"2024-05", "2024-06"}) {
		t.Errorf("Unexpected commit stats %+v", cs)
	}
}
