package github

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/colthorp/teampulse-go/internal/api"
	"github.com/colthorp/teampulse-go/internal/logging"
)

var (
	jan1  = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	jan31 = time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
)

func issue(id int) map[string]any {
	return map[string]any{
		"id":             id,
		"number":         id,
		"title":          fmt.Sprintf("PR %d", id),
		"state":          "closed",
		"html_url":       fmt.Sprintf("https://github.com/acme/api/pull/%d", id),
		"repository_url": "https://api.github.com/repos/acme/api",
		"user":           map[string]any{"login": "alice", "avatar_url": "https://avatars/alice"},
		"created_at":     "2024-01-15T10:00:00Z",
		"closed_at":      "2024-01-17T09:00:00Z",
	}
}

// pagedIssues serves total records in pages of perPage, keyed by the page query param.
func pagedIssues(total, perPage int) api.HandlerFunc {
	return func(req api.Request) (any, error) {
		page, _ := strconv.Atoi(req.Query.Get("page"))
		start := (page - 1) * perPage
		items := []map[string]any{}
		for i := start; i < start+perPage && i < total; i++ {
			items = append(items, issue(i+1))
		}
		return map[string]any{"total_count": total, "items": items}, nil
	}
}

func TestSearchPullRequestsStopsAtTotal(t *testing.T) {
	mock := api.NewMockTransport()
	mock.Handle("search/issues", pagedIssues(450, 200))

	c := New(mock, nil, Config{Organization: "acme", PageSize: 200, MaxPages: 10})
	prs, err := c.SearchPullRequests(context.Background(), "alice", jan1, jan31, ModeAuthor)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if mock.RequestsMade() != 3 {
		t.Errorf("Expected 3 pages, got %d", mock.RequestsMade())
	}
	if len(prs) != 450 {
		t.Fatalf("Expected 450 records, got %d", len(prs))
	}

	seen := map[int64]bool{}
	for _, pr := range prs {
		if seen[pr.ID] {
			t.Fatalf("Duplicate record %d", pr.ID)
		}
		seen[pr.ID] = true
	}

	q := mock.Requests()[0].Query
	if q.Get("per_page") != "200" || q.Get("page") != "1" {
		t.Errorf("Unexpected paging params %v", q)
	}
	if want := "org:acme is:pr created:2024-01-01..2024-01-31 author:alice"; q.Get("q") != want {
		t.Errorf("Expected query %q, got %q", want, q.Get("q"))
	}
}

func TestSearchPullRequestsNormalizes(t *testing.T) {
	mock := api.NewMockTransport()
	mock.Handle("search/issues", pagedIssues(1, 200))

	c := New(mock, nil, Config{Organization: "acme"})
	prs, err := c.SearchPullRequests(context.Background(), "alice", jan1, jan31, ModeAuthor)
	if err != nil || len(prs) != 1 {
		t.Fatalf("Unexpected result %v %v", prs, err)
	}

	pr := prs[0]
	if pr.Owner != "acme" || pr.Repository != "api" {
		t.Errorf("Expected acme/api, got %s/%s", pr.Owner, pr.Repository)
	}
	if pr.Author != "alice" || pr.AuthorAvatarURL != "https://avatars/alice" {
		t.Errorf("Unexpected author fields %+v", pr)
	}
	if pr.ClosedAt == nil || pr.Open() {
		t.Error("Expected closed pull request")
	}
}

func TestSearchEmptyResultIsNotAnError(t *testing.T) {
	mock := api.NewMockTransport()
	mock.Respond("search/issues", map[string]any{"total_count": 0, "items": []any{}})

	c := New(mock, nil, Config{Organization: "acme"})
	prs, err := c.SearchPullRequests(context.Background(), "alice", jan1, jan31, ModeReviewer)
	if err != nil {
		t.Fatalf("Expected empty success, got %v", err)
	}
	if len(prs) != 0 || mock.RequestsMade() != 1 {
		t.Errorf("Expected no records after one request, got %d records, %d requests", len(prs), mock.RequestsMade())
	}
}

func TestSearchRepeatedPage(t *testing.T) {
	mock := api.NewMockTransport()
	mock.Respond("search/issues", map[string]any{
		"total_count": 10,
		"items":       []any{issue(1), issue(2)},
	})

	c := New(mock, nil, Config{Organization: "acme"})
	_, err := c.SearchPullRequests(context.Background(), "alice", jan1, jan31, ModeAuthor)
	if !errors.Is(err, ErrRepeatedPage) {
		t.Errorf("Expected ErrRepeatedPage, got %v", err)
	}
}

func TestSearchMalformedResponse(t *testing.T) {
	mock := api.NewMockTransport()
	mock.Respond("search/issues", map[string]any{"message": "oops"})

	c := New(mock, nil, Config{Organization: "acme"})
	_, err := c.SearchPullRequests(context.Background(), "alice", jan1, jan31, ModeAuthor)
	if !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("Expected ErrMalformedResponse, got %v", err)
	}
}

func TestSearchPageCap(t *testing.T) {
	var logs bytes.Buffer
	logging.Init(logging.Config{Level: "warn", Format: "json", Output: &logs})
	defer logging.Init(logging.DefaultConfig())

	mock := api.NewMockTransport()
	mock.Handle("search/issues", pagedIssues(5000, 100))

	c := New(mock, nil, Config{Organization: "acme", PageSize: 100, MaxPages: 10})
	prs, err := c.SearchPullRequests(context.Background(), "alice", jan1, jan31, ModeAuthor)
	if err != nil {
		t.Fatal(err)
	}
	if mock.RequestsMade() != 10 || len(prs) != 1000 {
		t.Errorf("Expected 10 pages and 1000 records, got %d pages, %d records", mock.RequestsMade(), len(prs))
	}

	out := logs.String()
	if !strings.Contains(out, "page cap") || !strings.Contains(out, `"accumulated":1000`) || !strings.Contains(out, `"total":5000`) {
		t.Errorf("Expected a page cap warning with counts, got %s", out)
	}
}

func TestSearchUpstreamFailurePropagates(t *testing.T) {
	mock := api.NewMockTransport()
	mock.Fail("search/issues", &api.APIError{Upstream: "github", StatusCode: 403, Message: "rate limited"})

	c := New(mock, nil, Config{Organization: "acme"})
	_, err := c.SearchPullRequests(context.Background(), "alice", jan1, jan31, ModeAuthor)

	var apiErr *api.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 403 {
		t.Errorf("Expected 403 APIError, got %v", err)
	}
}

func TestIssueQueryReviewerExcludesSelf(t *testing.T) {
	got := IssueQuery("acme", "bob", jan1, jan31, ModeReviewer)
	want := "org:acme is:pr created:2024-01-01..2024-01-31 reviewed-by:bob -author:bob"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestSearchCommits(t *testing.T) {
	mock := api.NewMockTransport()
	mock.Respond("search/commits", map[string]any{
		"total_count": 2,
		"items": []any{
			map[string]any{
				"sha":        "abc",
				"commit":     map[string]any{"message": "fix", "author": map[string]any{"date": "2024-01-05T12:00:00.000+02:00"}},
				"author":     map[string]any{"login": "alice"},
				"repository": map[string]any{"name": "api"},
			},
			map[string]any{
				"sha":        "def",
				"commit":     map[string]any{"message": "feat", "author": map[string]any{"date": "2024-02-01T00:30:00Z"}},
				"repository": map[string]any{"name": "web"},
			},
		},
	})

	c := New(mock, nil, Config{Organization: "acme"})
	commits, err := c.SearchCommits(context.Background(), "alice", jan1, jan31)
	if err != nil {
		t.Fatal(err)
	}
	if len(commits) != 2 {
		t.Fatalf("Expected 2 commits, got %d", len(commits))
	}
	if commits[0].AuthoredAt.Hour() != 10 || commits[0].Repository != "api" {
		t.Errorf("Expected UTC-normalized commit, got %+v", commits[0])
	}
	if q := mock.Requests()[0].Query; q.Get("per_page") != "100" {
		t.Errorf("Expected commit page size 100, got %s", q.Get("per_page"))
	}
}

func TestGetPullRequestOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/acme/api/pulls/12" {
			http.NotFound(w, r)
			return
		}
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			t.Errorf("Expected bearer token")
		}
		w.Write([]byte(`{"number":12,"title":"Add cache","state":"closed","merged":true,
			"commits":3,"additions":120,"deletions":8,"comments":2,"review_comments":5,"changed_files":4,
			"created_at":"2024-01-10T00:00:00Z","user":{"login":"alice"}}`))
	}))
	defer srv.Close()

	httpClient := NewAPIClient(srv.URL, "tok", api.Options{RetryBackoff: time.Millisecond})
	c := New(httpClient, httpClient, Config{Organization: "acme"})

	d, err := c.GetPullRequest(context.Background(), PullRef{Owner: "acme", Repo: "api", Number: 12})
	if err != nil {
		t.Fatal(err)
	}
	if d.Commits != 3 || d.Additions != 120 || d.ChangedFiles != 4 || !d.Merged || d.Author != "alice" {
		t.Errorf("Unexpected detail %+v", d)
	}
}

func TestSplitRepositoryURL(t *testing.T) {
	tests := []struct {
		in, owner, repo string
	}{
		{"https://api.github.com/repos/acme/api", "acme", "api"},
		{"https://github.com/acme/web/pull/3", "acme", "web"},
		{"https://api.github.com/repos/acme/cli/pulls/9", "acme", "cli"},
		{"", "", ""},
	}
	for _, tt := range tests {
		owner, repo := SplitRepositoryURL(tt.in)
		if owner != tt.owner || repo != tt.repo {
			t.Errorf("SplitRepositoryURL(%q) = %s/%s, want %s/%s", tt.in, owner, repo, tt.owner, tt.repo)
		}
	}
}
