package report

import (
	"fmt"
	"strings"

	"github.com/colthorp/teampulse-go/internal/core"
	"github.com/colthorp/teampulse-go/internal/roster"
)

// Query is the user-facing form of a Request: usernames and/or a team, and either a
// named period or flexible start/end specs (YYYY-MM-DD, M/D, d-7, today, ...).
type Query struct {
	Users  []string `json:"users,omitempty"`
	Team   string   `json:"team,omitempty"`
	Start  string   `json:"start,omitempty"`
	End    string   `json:"end,omitempty"`
	Period string   `json:"period,omitempty"`
}

// BuildRequest resolves q against the roster and the orchestrator clock.
// An empty End means today.
func (o *Orchestrator) BuildRequest(q Query) (Request, error) {
	var req Request
	now := o.opts.Clock.Now()

	seen := map[string]struct{}{}
	add := func(u string) {
		u = strings.TrimSpace(u)
		if u == "" {
			return
		}
		if _, ok := seen[strings.ToLower(u)]; ok {
			return
		}
		seen[strings.ToLower(u)] = struct{}{}
		req.Usernames = append(req.Usernames, u)
	}
	for _, u := range q.Users {
		add(u)
	}
	if q.Team != "" {
		members, err := roster.TeamMembers(o.people, q.Team)
		if err != nil {
			return req, err
		}
		for _, u := range members {
			add(u)
		}
	}

	switch {
	case q.Period != "":
		start, end, err := core.GetTimeRange(q.Period, now)
		if err != nil {
			return req, err
		}
		req.Start, req.End = start, end
	case q.Start != "":
		start, err := core.ParseDateSpec(q.Start, now)
		if err != nil {
			return req, err
		}
		end := core.DateOnly(now)
		if q.End != "" {
			if end, err = core.ParseDateSpec(q.End, now); err != nil {
				return req, err
			}
		}
		req.Start, req.End = start, end
	default:
		return req, fmt.Errorf("a start date or a period is required")
	}

	return req, req.Validate()
}
