// Package jira is the ticket-search connector. It runs one JQL query for a set of
// assignees and a creation-date range and walks the nextPageToken chain.
package jira

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/colthorp/teampulse-go/internal/api"
	"github.com/colthorp/teampulse-go/internal/core"
	"github.com/colthorp/teampulse-go/internal/logging"
)

// ErrRepeatedPageToken is returned when the upstream hands back a token it already used.
var ErrRepeatedPageToken = errors.New("jira: repeated page token")

const searchPath = "rest/api/2/search/jql"

// Ticket is a normalized issue-tracker ticket.
type Ticket struct {
	Key         string    `json:"key"`
	Type        string    `json:"type"`
	Summary     string    `json:"summary"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	// ResolvedAt falls back to CreatedAt for unresolved tickets; Resolved tells them apart.
	ResolvedAt  time.Time `json:"resolved_at"`
	Resolved    bool      `json:"resolved"`
	Assignee    string    `json:"assignee"`
	StoryPoints float64   `json:"story_points"`
}

// IsBug reports whether the ticket type is Bug.
func (t Ticket) IsBug() bool {
	return strings.EqualFold(t.Type, "Bug")
}

// IsDone reports whether the ticket status is Done.
func (t Ticket) IsDone() bool {
	return strings.EqualFold(t.Status, "Done")
}

type rawIssue struct {
	Key    string                     `json:"key"`
	Fields map[string]json.RawMessage `json:"fields"`
}

type rawFields struct {
	IssueType *struct {
		Name string `json:"name"`
	} `json:"issuetype"`
	Status *struct {
		Name string `json:"name"`
	} `json:"status"`
	Created        string  `json:"created"`
	ResolutionDate *string `json:"resolutiondate"`
	Assignee       *struct {
		EmailAddress string `json:"emailAddress"`
	} `json:"assignee"`
	Summary     string  `json:"summary"`
	Description *string `json:"description"`
}

type searchResponse struct {
	Issues        *[]rawIssue `json:"issues"`
	NextPageToken string      `json:"nextPageToken"`
}

// Config holds connector settings.
type Config struct {
	PageSize         int
	StoryPointsField string
}

// Client is the ticket-search connector.
type Client struct {
	transport api.Transport
	cfg       Config
	log       zerolog.Logger
}

// New creates a connector over transport.
func New(transport api.Transport, cfg Config) *Client {
	if cfg.PageSize <= 0 {
		cfg.PageSize = core.TicketPageSize
	}
	if cfg.StoryPointsField == "" {
		cfg.StoryPointsField = core.DefaultStoryPoints
	}
	return &Client{transport: transport, cfg: cfg, log: logging.With("jira")}
}

// NewAPIClient builds the shared HTTP client for a Jira site using basic auth.
func NewAPIClient(baseURL, user, token string, opts api.Options) *api.Client {
	opts.Name = "jira"
	opts.BaseURL = baseURL
	opts.Auth = api.BasicAuth(user, token)
	return api.NewClient(opts)
}

// BuildJQL returns the query for tickets assigned to any of emails and created in [start, end].
func BuildJQL(emails []string, start, end time.Time) string {
	quoted := make([]string, 0, len(emails))
	for _, e := range emails {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		quoted = append(quoted, strconv.Quote(e))
	}
	return fmt.Sprintf(`assignee in (%s) AND createdDate >= "%s" AND createdDate <= "%s"`,
		strings.Join(quoted, ", "), core.FormatDate(start), core.FormatDate(end))
}

// Search returns every ticket matching the assignee set and date range.
// An empty email list returns no tickets without contacting the upstream.
func (c *Client) Search(ctx context.Context, emails []string, start, end time.Time) ([]Ticket, error) {
	if len(emails) == 0 {
		return []Ticket{}, nil
	}

	jql := BuildJQL(emails, start, end)
	seen := map[string]bool{}
	tickets := []Ticket{}
	token := ""

	for page := 1; ; page++ {
		q := url.Values{
			"jql":        {jql},
			"maxResults": {strconv.Itoa(c.cfg.PageSize)},
			"fields":     {"*all"},
		}
		if token != "" {
			q.Set("nextPageToken", token)
		}

		var resp searchResponse
		if err := c.transport.Do(ctx, api.Request{Path: searchPath, Query: q}, &resp); err != nil {
			return nil, fmt.Errorf("search tickets: %w", err)
		}
		if resp.Issues == nil {
			return nil, fmt.Errorf("search tickets: page %d has no issues field", page)
		}

		for _, raw := range *resp.Issues {
			t, err := c.normalize(raw)
			if err != nil {
				return nil, fmt.Errorf("search tickets: %w", err)
			}
			tickets = append(tickets, t)
		}

		c.log.Debug().Int("page", page).Int("items", len(*resp.Issues)).Int("accumulated", len(tickets)).Msg("Fetched page")

		if resp.NextPageToken == "" {
			break
		}
		if seen[resp.NextPageToken] {
			return nil, fmt.Errorf("%w: %q", ErrRepeatedPageToken, resp.NextPageToken)
		}
		seen[resp.NextPageToken] = true
		token = resp.NextPageToken
	}

	return tickets, nil
}

func (c *Client) normalize(raw rawIssue) (Ticket, error) {
	fieldsJSON, err := json.Marshal(raw.Fields)
	if err != nil {
		return Ticket{}, err
	}
	var f rawFields
	if err := json.Unmarshal(fieldsJSON, &f); err != nil {
		return Ticket{}, fmt.Errorf("ticket %s: %w", raw.Key, err)
	}

	t := Ticket{
		Key:      raw.Key,
		Summary:  f.Summary,
		Assignee: core.UnassignedTicketUser,
	}
	if f.IssueType != nil {
		t.Type = f.IssueType.Name
	}
	if f.Status != nil {
		t.Status = f.Status.Name
	}
	if f.Description != nil {
		t.Description = strings.ReplaceAll(*f.Description, "\r\n", "\n")
	}
	if f.Assignee != nil && f.Assignee.EmailAddress != "" {
		t.Assignee = strings.ToLower(f.Assignee.EmailAddress)
	}

	created, err := core.ParseTimestamp(f.Created)
	if err != nil {
		return Ticket{}, fmt.Errorf("ticket %s created: %w", raw.Key, err)
	}
	t.CreatedAt = created.UTC()
	t.ResolvedAt = t.CreatedAt
	if f.ResolutionDate != nil && *f.ResolutionDate != "" {
		resolved, err := core.ParseTimestamp(*f.ResolutionDate)
		if err != nil {
			return Ticket{}, fmt.Errorf("ticket %s resolutiondate: %w", raw.Key, err)
		}
		t.ResolvedAt = resolved.UTC()
		t.Resolved = true
	}

	if sp, ok := raw.Fields[c.cfg.StoryPointsField]; ok {
		var points *float64
		if err := json.Unmarshal(sp, &points); err == nil && points != nil {
			t.StoryPoints = *points
		}
	}
	return t, nil
}
