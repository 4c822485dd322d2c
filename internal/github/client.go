package github

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/colthorp/teampulse-go/internal/api"
	"github.com/colthorp/teampulse-go/internal/core"
	"github.com/colthorp/teampulse-go/internal/logging"
)

// Pacer hands out a rate limiter per paginated walk.
type Pacer interface {
	NewPager() *rate.Limiter
}

// Config holds connector settings.
type Config struct {
	Organization   string
	PageSize       int
	MaxPages       int
	CommitPageSize int
}

// Client is the source-control connector.
type Client struct {
	transport api.Transport
	pacer     Pacer
	cfg       Config
	log       zerolog.Logger
}

// New creates a connector over transport. pacer may be nil to disable page spacing.
func New(transport api.Transport, pacer Pacer, cfg Config) *Client {
	if cfg.PageSize <= 0 {
		cfg.PageSize = core.SearchPageSize
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = core.SearchMaxPages
	}
	if cfg.CommitPageSize <= 0 {
		cfg.CommitPageSize = core.CommitPageSize
	}
	return &Client{
		transport: transport,
		pacer:     pacer,
		cfg:       cfg,
		log:       logging.With("github"),
	}
}

// NewAPIClient builds the shared HTTP client for the GitHub REST API.
func NewAPIClient(baseURL, token string, opts api.Options) *api.Client {
	opts.Name = "github"
	opts.BaseURL = baseURL
	opts.Auth = api.BearerAuth(token)
	opts.Headers = map[string]string{
		"Accept":               "application/vnd.github+json",
		"X-GitHub-Api-Version": "2022-11-28",
	}
	return api.NewClient(opts)
}

// Organization returns the organization searches are scoped to.
func (c *Client) Organization() string {
	return c.cfg.Organization
}

// IssueQuery builds the search expression for pull requests created in [start, end].
// Reviewer mode excludes pull requests the user authored.
func IssueQuery(org, user string, start, end time.Time, mode Mode) string {
	q := fmt.Sprintf("org:%s is:pr created:%s..%s", org, core.FormatDate(start), core.FormatDate(end))
	if mode == ModeReviewer {
		return fmt.Sprintf("%s reviewed-by:%s -author:%s", q, user, user)
	}
	return fmt.Sprintf("%s author:%s", q, user)
}

// CommitQuery builds the search expression for commits authored in [start, end].
func CommitQuery(org, user string, start, end time.Time) string {
	return fmt.Sprintf("org:%s author:%s author-date:%s..%s", org, user, core.FormatDate(start), core.FormatDate(end))
}

// SearchPullRequests returns every pull request the user authored or reviewed in the range.
func (c *Client) SearchPullRequests(ctx context.Context, user string, start, end time.Time, mode Mode) ([]PullRequest, error) {
	query := url.Values{
		"q":     {IssueQuery(c.cfg.Organization, user, start, end, mode)},
		"sort":  {"created"},
		"order": {"asc"},
	}
	raw, err := paginate(ctx, c, "search/issues", query, c.cfg.PageSize, func(r rawIssue) string {
		return strconv.FormatInt(r.ID, 10)
	})
	if err != nil {
		return nil, fmt.Errorf("search %s pull requests for %s: %w", mode, user, err)
	}

	prs := make([]PullRequest, len(raw))
	for i, r := range raw {
		prs[i] = r.normalize()
	}
	return prs, nil
}

// SearchCommits returns every commit the user authored in the range.
func (c *Client) SearchCommits(ctx context.Context, user string, start, end time.Time) ([]Commit, error) {
	query := url.Values{"q": {CommitQuery(c.cfg.Organization, user, start, end)}}
	raw, err := paginate(ctx, c, "search/commits", query, c.cfg.CommitPageSize, func(r rawCommit) string {
		return r.SHA
	})
	if err != nil {
		return nil, fmt.Errorf("search commits for %s: %w", user, err)
	}

	commits := make([]Commit, len(raw))
	for i, r := range raw {
		commits[i] = r.normalize()
	}
	return commits, nil
}

// GetPullRequest fetches the detail of one pull request.
func (c *Client) GetPullRequest(ctx context.Context, ref PullRef) (*PullDetail, error) {
	var raw rawPull
	path := fmt.Sprintf("repos/%s/%s/pulls/%d", url.PathEscape(ref.Owner), url.PathEscape(ref.Repo), ref.Number)
	if err := c.transport.Do(ctx, api.Request{Path: path}, &raw); err != nil {
		return nil, fmt.Errorf("get pull request %s/%s#%d: %w", ref.Owner, ref.Repo, ref.Number, err)
	}

	d := &PullDetail{
		Owner:          ref.Owner,
		Repo:           ref.Repo,
		Number:         raw.Number,
		Title:          raw.Title,
		State:          raw.State,
		HTMLURL:        raw.HTMLURL,
		Merged:         raw.Merged,
		Commits:        raw.Commits,
		Additions:      raw.Additions,
		Deletions:      raw.Deletions,
		Comments:       raw.Comments,
		ReviewComments: raw.ReviewComments,
		ChangedFiles:   raw.ChangedFiles,
		CreatedAt:      raw.CreatedAt.UTC(),
		ClosedAt:       raw.ClosedAt,
		MergedAt:       raw.MergedAt,
	}
	if raw.User != nil {
		d.Author = raw.User.Login
	}
	return d, nil
}

// paginate walks a search endpoint until the accumulated count reaches the reported
// total, a page comes back empty, or the page cap is hit. Records already seen are
// skipped; a page made only of seen records is an error.
func paginate[T any](ctx context.Context, c *Client, path string, query url.Values, perPage int, id func(T) string) ([]T, error) {
	var pager *rate.Limiter
	if c.pacer != nil {
		pager = c.pacer.NewPager()
	}

	seen := make(map[string]struct{})
	var results []T

	for page := 1; page <= c.cfg.MaxPages; page++ {
		if pager != nil {
			if err := pager.Wait(ctx); err != nil {
				return nil, err
			}
		}

		q := url.Values{}
		for k, v := range query {
			q[k] = v
		}
		q.Set("per_page", strconv.Itoa(perPage))
		q.Set("page", strconv.Itoa(page))

		var resp searchPage[T]
		if err := c.transport.Do(ctx, api.Request{Path: path, Query: q}, &resp); err != nil {
			return nil, err
		}
		if resp.TotalCount == nil || resp.Items == nil {
			return nil, fmt.Errorf("%w: page %d of %s", ErrMalformedResponse, page, path)
		}

		items := *resp.Items
		fresh := 0
		for _, item := range items {
			key := id(item)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			results = append(results, item)
			fresh++
		}

		c.log.Debug().
			Str("path", path).
			Int("page", page).
			Int("items", len(items)).
			Int("accumulated", len(results)).
			Int("total", *resp.TotalCount).
			Msg("Fetched page")

		if len(items) > 0 && fresh == 0 {
			return nil, fmt.Errorf("%w: page %d of %s", ErrRepeatedPage, page, path)
		}
		if len(items) == 0 || len(results) >= *resp.TotalCount {
			break
		}
		if page == c.cfg.MaxPages {
			c.log.Warn().
				Str("path", path).
				Int("max_pages", c.cfg.MaxPages).
				Int("accumulated", len(results)).
				Int("total", *resp.TotalCount).
				Msg("Search stopped at page cap, results are incomplete")
		}
	}

	return results, nil
}
