package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/colthorp/teampulse-go/internal/bonusly"
	"github.com/colthorp/teampulse-go/internal/cache"
	"github.com/colthorp/teampulse-go/internal/github"
	"github.com/colthorp/teampulse-go/internal/jira"
)

// SourceControl is the subset of the github connector the fetchers use.
type SourceControl interface {
	Organization() string
	SearchPullRequests(ctx context.Context, user string, start, end time.Time, mode github.Mode) ([]github.PullRequest, error)
	SearchCommits(ctx context.Context, user string, start, end time.Time) ([]github.Commit, error)
	GetPullRequest(ctx context.Context, ref github.PullRef) (*github.PullDetail, error)
}

// TicketSource searches tickets assigned to a set of people.
type TicketSource interface {
	Search(ctx context.Context, emails []string, start, end time.Time) ([]jira.Ticket, error)
}

// RecognitionSource lists recognition received by one person.
type RecognitionSource interface {
	Received(ctx context.Context, email string, start, end time.Time) ([]bonusly.Recognition, error)
}

// FetcherConfig sets the cache policies of the fetchers.
type FetcherConfig struct {
	// TTL is the structural TTL of every entry. Zero uses the store default.
	TTL time.Duration

	// PRFreshness is how long a cached pull request detail is trusted.
	PRFreshness time.Duration

	// DetailConcurrency bounds PullDetails. Zero means 4.
	DetailConcurrency int
}

// Fetchers pairs each connector with the cache. Tickets and Recognition may be nil
// when the corresponding upstream is not configured.
type Fetchers struct {
	aside       *cache.Aside
	scm         SourceControl
	tickets     TicketSource
	recognition RecognitionSource
	cfg         FetcherConfig
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// NewFetchers creates the cache-aside fetchers.
func NewFetchers(aside *cache.Aside, scm SourceControl, tickets TicketSource, recognition RecognitionSource, cfg FetcherConfig) *Fetchers {
	if cfg.DetailConcurrency <= 0 {
		cfg.DetailConcurrency = 4
	}
	return &Fetchers{
		aside:       aside,
		scm:         scm,
		tickets:     tickets,
		recognition: recognition,
		cfg:         cfg,
	}
}

func (f *Fetchers) policy() cache.Policy {
	return cache.Policy{StructuralTTL: f.cfg.TTL}
}

// TicketsEnabled reports whether a ticket source is configured.
func (f *Fetchers) TicketsEnabled() bool { return f.tickets != nil }

// RecognitionEnabled reports whether a recognition source is configured.
func (f *Fetchers) RecognitionEnabled() bool { return f.recognition != nil }

// Authored returns pull requests user created in [start, end].
func (f *Fetchers) Authored(ctx context.Context, user string, start, end time.Time) ([]github.PullRequest, error) {
	return f.pulls(ctx, user, start, end, github.ModeAuthor)
}

// Reviewed returns pull requests user reviewed but did not author in [start, end].
func (f *Fetchers) Reviewed(ctx context.Context, user string, start, end time.Time) ([]github.PullRequest, error) {
	return f.pulls(ctx, user, start, end, github.ModeReviewer)
}

func (f *Fetchers) pulls(ctx context.Context, user string, start, end time.Time, mode github.Mode) ([]github.PullRequest, error) {
	key := cache.SearchKey(f.scm.Organization(), user, start, end, string(mode))
	return cache.GetOrFetch(ctx, f.aside, key, f.policy(), func(ctx context.Context) ([]github.PullRequest, error) {
		return f.scm.SearchPullRequests(ctx, user, start, end, mode)
	})
}

// Commits returns commits user authored in [start, end].
func (f *Fetchers) Commits(ctx context.Context, user string, start, end time.Time) ([]github.Commit, error) {
	key := cache.SearchKey(f.scm.Organization(), user, start, end, cache.ModeCommits)
	return cache.GetOrFetch(ctx, f.aside, key, f.policy(), func(ctx context.Context) ([]github.Commit, error) {
		return f.scm.SearchCommits(ctx, user, start, end)
	})
}

// Tickets returns tickets assigned to any of emails and created in [start, end].
func (f *Fetchers) Tickets(ctx context.Context, emails []string, start, end time.Time) ([]jira.Ticket, error) {
	if f.tickets == nil {
		return nil, fmt.Errorf("ticket source not configured")
	}
	key := cache.TicketKey(emails, start, end)
	return cache.GetOrFetch(ctx, f.aside, key, f.policy(), func(ctx context.Context) ([]jira.Ticket, error) {
		return f.tickets.Search(ctx, emails, start, end)
	})
}

// Recognition returns recognition received by email in [start, end].
func (f *Fetchers) Recognition(ctx context.Context, email string, start, end time.Time) ([]bonusly.Recognition, error) {
	if f.recognition == nil {
		return nil, fmt.Errorf("recognition source not configured")
	}
	key := cache.RecognitionKey(email, start, end)
	return cache.GetOrFetch(ctx, f.aside, key, f.policy(), func(ctx context.Context) ([]bonusly.Recognition, error) {
		return f.recognition.Received(ctx, email, start, end)
	})
}

// PullDetail returns one pull request's detail. Cached entries older than
// PRFreshness are refetched.
func (f *Fetchers) PullDetail(ctx context.Context, ref github.PullRef) (*github.PullDetail, error) {
	if err := validate.Struct(ref); err != nil {
		return nil, fmt.Errorf("invalid pull request reference: %w", err)
	}
	key := cache.PullKey(ref.Owner, ref.Repo, ref.Number)
	policy := cache.Policy{StructuralTTL: f.cfg.TTL, FreshnessTTL: f.cfg.PRFreshness}
	return cache.GetOrFetch(ctx, f.aside, key, policy, func(ctx context.Context) (*github.PullDetail, error) {
		return f.scm.GetPullRequest(ctx, ref)
	})
}

// PullDetails fetches refs concurrently, each through PullDetail. Results keep the
// order of refs. The first failure cancels the rest.
func (f *Fetchers) PullDetails(ctx context.Context, refs []github.PullRef) ([]*github.PullDetail, error) {
	out := make([]*github.PullDetail, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.DetailConcurrency)
	for i, ref := range refs {
		name := fmt.Sprintf("%s/%s#%d", ref.Owner, ref.Repo, ref.Number)
		g.Go(recovered(name, func() error {
			d, err := f.PullDetail(gctx, ref)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			out[i] = d
			return nil
		}))
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ClearPullCache drops the cached detail of refs.
func (f *Fetchers) ClearPullCache(refs ...github.PullRef) error {
	keys := make([]string, 0, len(refs))
	for _, ref := range refs {
		keys = append(keys, cache.PullKey(ref.Owner, ref.Repo, ref.Number))
	}
	return f.aside.Invalidate(keys...)
}

// Target identifies the cached data of one person over one range.
type Target struct {
	Identity string    `json:"identity" validate:"required"`
	Email    string    `json:"email,omitempty"`
	Start    time.Time `json:"start" validate:"required"`
	End      time.Time `json:"end" validate:"required,gtefield=Start"`
}

// Invalidate deletes the author, reviewer and commit search entries of every target,
// plus its ticket and recognition entries when it has an email. Ticket searches are
// keyed by the whole assignee set, so every cached ticket search over the target's
// range whose set includes the email is dropped too.
func (f *Fetchers) Invalidate(targets []Target) error {
	org := f.scm.Organization()

	var keys []string
	var withEmail []Target
	for _, t := range targets {
		if err := validate.Struct(t); err != nil {
			return fmt.Errorf("invalid refresh target: %w", err)
		}
		keys = append(keys,
			cache.SearchKey(org, t.Identity, t.Start, t.End, cache.ModeAuthor),
			cache.SearchKey(org, t.Identity, t.Start, t.End, cache.ModeReviewer),
			cache.SearchKey(org, t.Identity, t.Start, t.End, cache.ModeCommits),
		)
		t.Email = strings.TrimSpace(t.Email)
		if t.Email == "" {
			continue
		}
		keys = append(keys,
			cache.TicketKey([]string{t.Email}, t.Start, t.End),
			cache.RecognitionKey(t.Email, t.Start, t.End),
		)
		withEmail = append(withEmail, t)
	}

	ticketKeys, err := f.sharedTicketKeys(withEmail)
	if err != nil {
		return err
	}
	return f.aside.Invalidate(append(keys, ticketKeys...)...)
}

// sharedTicketKeys finds cached ticket searches that include any target's email over
// its range. Backends that cannot enumerate keys fall back to the key for the
// targets' combined email set per range.
func (f *Fetchers) sharedTicketKeys(targets []Target) ([]string, error) {
	if len(targets) == 0 {
		return nil, nil
	}

	cached, err := f.aside.Store().Keys(cache.NamespaceTickets + cache.KeySeparator)
	if errors.Is(err, cache.ErrNotListable) {
		return combinedTicketKeys(targets), nil
	}
	if err != nil {
		return nil, fmt.Errorf("list ticket entries: %w", err)
	}

	var keys []string
	for _, k := range cached {
		for _, t := range targets {
			if cache.TicketKeyCovers(k, t.Email, t.Start, t.End) {
				keys = append(keys, k)
				break
			}
		}
	}
	return keys, nil
}

func combinedTicketKeys(targets []Target) []string {
	type span struct{ start, end string }
	groups := map[span][]Target{}
	var order []span
	for _, t := range targets {
		s := span{t.Start.Format(time.DateOnly), t.End.Format(time.DateOnly)}
		if _, ok := groups[s]; !ok {
			order = append(order, s)
		}
		groups[s] = append(groups[s], t)
	}

	var keys []string
	for _, s := range order {
		group := groups[s]
		if len(group) < 2 {
			continue
		}
		emails := make([]string, 0, len(group))
		for _, t := range group {
			emails = append(emails, t.Email)
		}
		keys = append(keys, cache.TicketKey(emails, group[0].Start, group[0].End))
	}
	return keys
}
