// Package report assembles per-user activity reports.
//
// A run resolves each requested username against the roster, fans out the
// source-control fetches (authored, reviewed, commits) for every user, and in parallel
// fetches tickets and recognition by email. Source control is required: any failure
// there ends the run in StateError. Tickets and recognition are isolated; their
// failures only mark the domain unavailable on the report.
//
//	orch := report.New(fetchers, people, report.Options{OldPRDays: 5})
//	rep, err := orch.Run(ctx, report.Request{Usernames: []string{"alice"}, Start: s, End: e})
package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/colthorp/teampulse-go/internal/bonusly"
	"github.com/colthorp/teampulse-go/internal/core"
	"github.com/colthorp/teampulse-go/internal/github"
	"github.com/colthorp/teampulse-go/internal/jira"
	"github.com/colthorp/teampulse-go/internal/logging"
	"github.com/colthorp/teampulse-go/internal/metrics"
	"github.com/colthorp/teampulse-go/internal/roster"
	"github.com/colthorp/teampulse-go/internal/stats"
)

// State is the lifecycle of a report run.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateLoaded  State = "loaded"
	StateError   State = "error"
)

// Domain names.
const (
	DomainSourceControl = "source_control"
	DomainTickets       = "tickets"
	DomainRecognition   = "recognition"
)

// Domain statuses.
const (
	DomainLoaded      = "loaded"
	DomainUnavailable = "unavailable"
	DomainDisabled    = "disabled"
)

// ErrNoUsers is returned when a request names nobody.
var ErrNoUsers = errors.New("report: no users requested")

// Request asks for a report over [Start, End].
type Request struct {
	Usernames []string  `json:"usernames" validate:"required,min=1,dive,required"`
	Start     time.Time `json:"start" validate:"required"`
	End       time.Time `json:"end" validate:"required,gtefield=Start"`
}

// DomainStatus is the outcome of one domain in a run.
type DomainStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// UserSummary is everything known about one user over the report range.
type UserSummary struct {
	Identity  roster.Identity `json:"identity"`
	AvatarURL string          `json:"avatar_url,omitempty"`

	Authored    []github.PullRequest  `json:"authored"`
	Reviewed    []github.PullRequest  `json:"reviewed"`
	Commits     []github.Commit       `json:"commits"`
	Tickets     []jira.Ticket         `json:"tickets"`
	Recognition []bonusly.Recognition `json:"recognition"`

	PullStats        stats.PullStats          `json:"pull_stats"`
	ReviewStats      stats.ReviewStats        `json:"review_stats"`
	CommitStats      stats.CommitStats        `json:"commit_stats"`
	TicketStats      []stats.TicketMonth      `json:"ticket_stats"`
	RecognitionStats []stats.RecognitionMonth `json:"recognition_stats"`
	OldPulls         []stats.OldPull          `json:"old_pulls"`
}

// Report is the result of one run.
type Report struct {
	ID          string                  `json:"id"`
	State       State                   `json:"state"`
	Error       string                  `json:"error,omitempty"`
	Start       time.Time               `json:"start"`
	End         time.Time               `json:"end"`
	GeneratedAt time.Time               `json:"generated_at"`
	Months      []string                `json:"months"`
	Users       []UserSummary           `json:"users"`
	Tickets     []jira.Ticket           `json:"tickets"`
	Domains     map[string]DomainStatus `json:"domains"`
}

// Unavailable reports whether domain failed during the run.
func (r *Report) Unavailable(domain string) bool {
	return r.Domains[domain].Status == DomainUnavailable
}

// Options configures an Orchestrator.
type Options struct {
	// OldPRDays is the age past which an open pull request is listed as old.
	OldPRDays int

	// Snapshots, when set, receives every loaded report.
	Snapshots SnapshotStore

	Clock clockwork.Clock
}

// Orchestrator runs reports. It is safe for concurrent use; State reflects the most
// recently started run.
type Orchestrator struct {
	fetchers *Fetchers
	people   roster.Roster
	opts     Options

	mu    sync.Mutex
	state State
}

// New creates an orchestrator. people may be nil, in which case nobody is matched.
func New(fetchers *Fetchers, people roster.Roster, opts Options) *Orchestrator {
	if people == nil {
		people = &roster.Static{}
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.OldPRDays <= 0 {
		opts.OldPRDays = core.DefaultOldItemDays
	}
	return &Orchestrator{fetchers: fetchers, people: people, opts: opts, state: StateIdle}
}

// State returns the state of the latest run.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Fetchers returns the fetchers used by the orchestrator.
func (o *Orchestrator) Fetchers() *Fetchers {
	return o.fetchers
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// Validate checks req.
func (req Request) Validate() error {
	if len(req.Usernames) == 0 {
		return ErrNoUsers
	}
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("invalid report request: %w", err)
	}
	return nil
}

type userData struct {
	authored []github.PullRequest
	reviewed []github.PullRequest
	commits  []github.Commit
}

// Run executes one report. On a source-control failure it returns the report in
// StateError together with the error; partial results are discarded.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Report, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id := logging.NewCorrelationID()
	ctx = logging.ContextWithCorrelationID(ctx, id)
	log := logging.Ctx(ctx)

	o.setState(StateRunning)
	log.Info().Int("users", len(req.Usernames)).
		Str("start", core.FormatDate(req.Start)).
		Str("end", core.FormatDate(req.End)).
		Msg("Report run started")

	rep := &Report{
		ID:      id,
		State:   StateRunning,
		Start:   req.Start,
		End:     req.End,
		Months:  stats.MonthsBetween(req.Start, req.End),
		Domains: map[string]DomainStatus{},
	}

	identities := make([]roster.Identity, len(req.Usernames))
	for i, u := range req.Usernames {
		ident, err := roster.Resolve(o.people, u)
		if err != nil {
			log.Warn().Err(err).Str("user", u).Msg("Roster lookup failed, using raw username")
		}
		identities[i] = ident
	}
	emails := uniqueEmails(identities)

	data := make([]userData, len(identities))
	var (
		tickets     []jira.Ticket
		recognition map[string][]bonusly.Recognition
	)

	tasks := []Task{{
		Name: DomainSourceControl,
		Run: func(ctx context.Context) error {
			return o.fetchSourceControl(ctx, identities, req.Start, req.End, data)
		},
	}}
	if o.fetchers.TicketsEnabled() && len(emails) > 0 {
		tasks = append(tasks, Task{
			Name: DomainTickets,
			Run: func(ctx context.Context) (err error) {
				tickets, err = o.fetchers.Tickets(ctx, emails, req.Start, req.End)
				return err
			},
		})
	} else {
		rep.Domains[DomainTickets] = DomainStatus{Status: DomainDisabled}
	}
	if o.fetchers.RecognitionEnabled() && len(emails) > 0 {
		tasks = append(tasks, Task{
			Name: DomainRecognition,
			Run: func(ctx context.Context) (err error) {
				recognition, err = o.fetchRecognition(ctx, emails, req.Start, req.End)
				return err
			},
		})
	} else {
		rep.Domains[DomainRecognition] = DomainStatus{Status: DomainDisabled}
	}

	outcomes := Gather(ctx, tasks...)

	if err := outcomes[DomainSourceControl]; err != nil {
		o.setState(StateError)
		metrics.ReportRuns.WithLabelValues(string(StateError)).Inc()
		log.Error().Err(err).Msg("Report run failed")
		return &Report{
			ID:      id,
			State:   StateError,
			Error:   err.Error(),
			Start:   req.Start,
			End:     req.End,
			Domains: map[string]DomainStatus{DomainSourceControl: {Status: DomainUnavailable, Error: err.Error()}},
		}, err
	}
	rep.Domains[DomainSourceControl] = DomainStatus{Status: DomainLoaded}

	for _, domain := range []string{DomainTickets, DomainRecognition} {
		err, ran := outcomes[domain]
		switch {
		case !ran:
		case err != nil:
			metrics.DomainFailures.WithLabelValues(domain).Inc()
			log.Warn().Err(err).Str("domain", domain).Msg("Domain unavailable")
			rep.Domains[domain] = DomainStatus{Status: DomainUnavailable, Error: err.Error()}
		default:
			rep.Domains[domain] = DomainStatus{Status: DomainLoaded}
		}
	}
	if rep.Unavailable(DomainTickets) {
		tickets = nil
	}
	if rep.Unavailable(DomainRecognition) {
		recognition = nil
	}

	now := o.opts.Clock.Now()
	rep.Tickets = tickets
	rep.Users = make([]UserSummary, len(identities))
	for i, ident := range identities {
		rep.Users[i] = o.summarize(ident, data[i], tickets, recognition, now)
	}
	rep.GeneratedAt = now
	rep.State = StateLoaded

	o.setState(StateLoaded)
	metrics.ReportRuns.WithLabelValues(string(StateLoaded)).Inc()
	log.Info().Int("users", len(rep.Users)).Int("tickets", len(tickets)).Msg("Report run loaded")

	if o.opts.Snapshots != nil {
		if err := o.opts.Snapshots.Save(rep); err != nil {
			log.Warn().Err(err).Msg("Failed to save report snapshot")
		}
	}
	return rep, nil
}

// fetchSourceControl runs users x {authored, reviewed, commits} concurrently. The first
// failure cancels the rest.
func (o *Orchestrator) fetchSourceControl(ctx context.Context, identities []roster.Identity, start, end time.Time, data []userData) error {
	g, gctx := errgroup.WithContext(ctx)
	for i, ident := range identities {
		user := ident.Username
		g.Go(recovered(user+" authored", func() (err error) {
			data[i].authored, err = o.fetchers.Authored(gctx, user, start, end)
			return wrapUser(user, "authored", err)
		}))
		g.Go(recovered(user+" reviewed", func() (err error) {
			data[i].reviewed, err = o.fetchers.Reviewed(gctx, user, start, end)
			return wrapUser(user, "reviewed", err)
		}))
		g.Go(recovered(user+" commits", func() (err error) {
			data[i].commits, err = o.fetchers.Commits(gctx, user, start, end)
			return wrapUser(user, "commits", err)
		}))
	}
	return g.Wait()
}

func wrapUser(user, what string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s %s: %w", user, what, err)
}

func (o *Orchestrator) fetchRecognition(ctx context.Context, emails []string, start, end time.Time) (map[string][]bonusly.Recognition, error) {
	results := make([][]bonusly.Recognition, len(emails))
	g, gctx := errgroup.WithContext(ctx)
	for i, email := range emails {
		g.Go(recovered("recognition "+email, func() (err error) {
			results[i], err = o.fetchers.Recognition(gctx, email, start, end)
			return err
		}))
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string][]bonusly.Recognition, len(emails))
	for i, email := range emails {
		out[email] = results[i]
	}
	return out, nil
}

func (o *Orchestrator) summarize(ident roster.Identity, d userData, tickets []jira.Ticket, recognition map[string][]bonusly.Recognition, now time.Time) UserSummary {
	s := UserSummary{
		Identity:    ident,
		Authored:    d.authored,
		Reviewed:    d.reviewed,
		Commits:     d.commits,
		PullStats:   stats.Authored(d.authored),
		ReviewStats: stats.Reviewed(d.reviewed),
		CommitStats: stats.Commits(d.commits),
		OldPulls:    stats.OldPulls(d.authored, now, o.opts.OldPRDays),
	}
	if len(d.authored) > 0 {
		s.AvatarURL = d.authored[0].AuthorAvatarURL
	}
	if email := strings.ToLower(ident.Email); email != "" {
		s.Tickets = stats.TicketsFor(tickets, email)
		s.TicketStats = stats.Tickets(s.Tickets)
		s.Recognition = recognition[email]
		s.RecognitionStats = stats.Recognitions(s.Recognition)
	}
	return s
}

// Invalidate drops the cached data of targets. Targets without an email get one from
// the roster when possible.
func (o *Orchestrator) Invalidate(targets []Target) error {
	resolved := make([]Target, len(targets))
	for i, t := range targets {
		if t.Email == "" {
			if ident, err := roster.Resolve(o.people, t.Identity); err == nil {
				t.Email = ident.Email
			}
		}
		resolved[i] = t
	}
	return o.fetchers.Invalidate(resolved)
}

// Refresh invalidates the cached data behind req and runs it again.
func (o *Orchestrator) Refresh(ctx context.Context, req Request) (*Report, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	targets := make([]Target, len(req.Usernames))
	for i, u := range req.Usernames {
		targets[i] = Target{Identity: u, Start: req.Start, End: req.End}
	}
	if err := o.Invalidate(targets); err != nil {
		return nil, err
	}
	logging.Ctx(ctx).Info().Int("users", len(targets)).Msg("Cache invalidated, rerunning report")
	return o.Run(ctx, req)
}

func uniqueEmails(identities []roster.Identity) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, ident := range identities {
		e := strings.ToLower(ident.Email)
		if e == "" {
			continue
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}
