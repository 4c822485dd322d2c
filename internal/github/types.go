// Package github is the source-control connector: pull request search by author or
// reviewer, commit search, and single pull request detail.
//
// Upstream payloads are decoded into raw* types and normalized immediately, so the
// rest of the program only sees PullRequest, Commit and PullDetail.
package github

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrRepeatedPage is returned when a page contains only records already seen.
	ErrRepeatedPage = errors.New("github: repeated search page")

	// ErrMalformedResponse is returned when a search page lacks total_count or items.
	ErrMalformedResponse = errors.New("github: malformed search response")
)

// Mode selects which side of a pull request the user is on.
type Mode string

const (
	ModeAuthor   Mode = "author"
	ModeReviewer Mode = "reviewer"
)

// PullRequest is one pull request returned by issue search.
type PullRequest struct {
	ID              int64      `json:"id"`
	Number          int        `json:"number"`
	Title           string     `json:"title"`
	State           string     `json:"state"`
	Draft           bool       `json:"draft"`
	HTMLURL         string     `json:"html_url"`
	APIURL          string     `json:"url"`
	RepositoryURL   string     `json:"repository_url"`
	Owner           string     `json:"owner"`
	Repository      string     `json:"repository"`
	Author          string     `json:"author"`
	AuthorAvatarURL string     `json:"author_avatar_url,omitempty"`
	Comments        int        `json:"comments"`
	CreatedAt       time.Time  `json:"created_at"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
	MergedAt        *time.Time `json:"merged_at,omitempty"`
}

// Open reports whether the pull request has no close timestamp.
func (p PullRequest) Open() bool {
	return p.ClosedAt == nil
}

// Commit is one commit returned by commit search.
type Commit struct {
	SHA         string    `json:"sha"`
	Message     string    `json:"message"`
	HTMLURL     string    `json:"html_url"`
	Repository  string    `json:"repository"`
	AuthorLogin string    `json:"author_login"`
	AuthoredAt  time.Time `json:"authored_at"`
}

// PullDetail is the full record of one pull request.
type PullDetail struct {
	Owner          string     `json:"owner"`
	Repo           string     `json:"repo"`
	Number         int        `json:"number"`
	Title          string     `json:"title"`
	State          string     `json:"state"`
	HTMLURL        string     `json:"html_url"`
	Author         string     `json:"author"`
	Merged         bool       `json:"merged"`
	Commits        int        `json:"commits"`
	Additions      int        `json:"additions"`
	Deletions      int        `json:"deletions"`
	Comments       int        `json:"comments"`
	ReviewComments int        `json:"review_comments"`
	ChangedFiles   int        `json:"changed_files"`
	CreatedAt      time.Time  `json:"created_at"`
	ClosedAt       *time.Time `json:"closed_at,omitempty"`
	MergedAt       *time.Time `json:"merged_at,omitempty"`
}

// PullRef identifies a pull request.
type PullRef struct {
	Owner  string `json:"owner" validate:"required"`
	Repo   string `json:"repo" validate:"required"`
	Number int    `json:"number" validate:"required,min=1"`
}

type rawUser struct {
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url"`
}

type rawIssue struct {
	ID            int64      `json:"id"`
	Number        int        `json:"number"`
	Title         string     `json:"title"`
	State         string     `json:"state"`
	Draft         bool       `json:"draft"`
	HTMLURL       string     `json:"html_url"`
	URL           string     `json:"url"`
	RepositoryURL string     `json:"repository_url"`
	User          *rawUser   `json:"user"`
	Comments      int        `json:"comments"`
	CreatedAt     time.Time  `json:"created_at"`
	ClosedAt      *time.Time `json:"closed_at"`
	PullRequest   *struct {
		MergedAt *time.Time `json:"merged_at"`
	} `json:"pull_request"`
}

func (r rawIssue) normalize() PullRequest {
	owner, repo := SplitRepositoryURL(r.RepositoryURL)
	pr := PullRequest{
		ID:            r.ID,
		Number:        r.Number,
		Title:         r.Title,
		State:         r.State,
		Draft:         r.Draft,
		HTMLURL:       r.HTMLURL,
		APIURL:        r.URL,
		RepositoryURL: r.RepositoryURL,
		Owner:         owner,
		Repository:    repo,
		Comments:      r.Comments,
		CreatedAt:     r.CreatedAt.UTC(),
	}
	if r.User != nil {
		pr.Author = r.User.Login
		pr.AuthorAvatarURL = r.User.AvatarURL
	}
	if r.ClosedAt != nil {
		t := r.ClosedAt.UTC()
		pr.ClosedAt = &t
	}
	if r.PullRequest != nil && r.PullRequest.MergedAt != nil {
		t := r.PullRequest.MergedAt.UTC()
		pr.MergedAt = &t
	}
	return pr
}

type rawCommit struct {
	SHA     string `json:"sha"`
	HTMLURL string `json:"html_url"`
	Commit  struct {
		Message string `json:"message"`
		Author  struct {
			Date time.Time `json:"date"`
		} `json:"author"`
	} `json:"commit"`
	Author     *rawUser `json:"author"`
	Repository struct {
		Name string `json:"name"`
	} `json:"repository"`
}

func (r rawCommit) normalize() Commit {
	c := Commit{
		SHA:        r.SHA,
		Message:    r.Commit.Message,
		HTMLURL:    r.HTMLURL,
		Repository: r.Repository.Name,
		AuthoredAt: r.Commit.Author.Date.UTC(),
	}
	if r.Author != nil {
		c.AuthorLogin = r.Author.Login
	}
	return c
}

type rawPull struct {
	Number         int        `json:"number"`
	Title          string     `json:"title"`
	State          string     `json:"state"`
	HTMLURL        string     `json:"html_url"`
	User           *rawUser   `json:"user"`
	Merged         bool       `json:"merged"`
	Commits        int        `json:"commits"`
	Additions      int        `json:"additions"`
	Deletions      int        `json:"deletions"`
	Comments       int        `json:"comments"`
	ReviewComments int        `json:"review_comments"`
	ChangedFiles   int        `json:"changed_files"`
	CreatedAt      time.Time  `json:"created_at"`
	ClosedAt       *time.Time `json:"closed_at"`
	MergedAt       *time.Time `json:"merged_at"`
}

type searchPage[T any] struct {
	TotalCount *int `json:"total_count"`
	Items      *[]T `json:"items"`
}

// SplitRepositoryURL returns owner and repository name from a repository or pull request URL.
// The repository is the last path segment of a repository URL; pull request URLs
// (".../owner/repo/pull/12" or ".../repos/owner/repo/pulls/12") are trimmed first.
func SplitRepositoryURL(raw string) (owner, repo string) {
	path := raw
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		path = u.Path
	}
	segs := strings.FieldsFunc(path, func(r rune) bool { return r == '/' })
	for i, s := range segs {
		if (s == "pull" || s == "pulls") && i >= 2 {
			segs = segs[:i]
			break
		}
	}
	switch len(segs) {
	case 0:
		return "", ""
	case 1:
		return "", segs[0]
	default:
		return segs[len(segs)-2], segs[len(segs)-1]
	}
}
