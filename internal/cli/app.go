package cli

import (
	"errors"
	"fmt"

	"github.com/colthorp/teampulse-go/internal/api"
	"github.com/colthorp/teampulse-go/internal/bonusly"
	"github.com/colthorp/teampulse-go/internal/cache"
	"github.com/colthorp/teampulse-go/internal/config"
	"github.com/colthorp/teampulse-go/internal/github"
	"github.com/colthorp/teampulse-go/internal/jira"
	"github.com/colthorp/teampulse-go/internal/report"
	"github.com/colthorp/teampulse-go/internal/roster"
)

// app holds everything a command needs, built from the loaded config.
type app struct {
	store     *cache.Store
	orch      *report.Orchestrator
	snapshots *report.FileSnapshots
}

// newApp wires the cache, connectors and orchestrator. Callers must Close it.
func newApp(c *config.Config) (*app, error) {
	if c.GitHub.Organization == "" {
		return nil, errors.New("github.organization is not configured (set TEAMPULSE_GITHUB__ORGANIZATION or github.organization in the config file)")
	}

	backend, err := cache.Open(c.Cache.Backend, c.Cache.Path, c.Cache.Capacity, c.Cache.Shards, c.Cache.TTL)
	if err != nil {
		return nil, err
	}
	store := cache.NewStore(backend, cache.WithDefaultTTL(c.Cache.TTL))

	people, err := roster.Load(c.Roster.Path)
	if err != nil {
		store.Close()
		return nil, err
	}

	httpOpts := api.Options{
		Timeout:         c.HTTP.Timeout,
		MaxRetries:      c.HTTP.MaxRetries,
		BreakerFailures: uint32(c.HTTP.BreakerFailures),
		BreakerTimeout:  c.HTTP.BreakerTimeout,
	}

	ghOpts := httpOpts
	ghOpts.PageDelay = c.GitHub.PageDelay
	ghHTTP := github.NewAPIClient(c.GitHub.BaseURL, c.GitHub.Token, ghOpts)
	scm := github.New(ghHTTP, ghHTTP, github.Config{
		Organization:   c.GitHub.Organization,
		PageSize:       c.GitHub.PageSize,
		MaxPages:       c.GitHub.MaxPages,
		CommitPageSize: c.GitHub.CommitPageSize,
	})

	// Unconfigured sources stay nil interfaces so the orchestrator reports them disabled.
	var tickets report.TicketSource
	if c.JiraEnabled() {
		tickets = jira.New(jira.NewAPIClient(c.Jira.BaseURL, c.Jira.User, c.Jira.Token, httpOpts), jira.Config{
			PageSize:         c.Jira.PageSize,
			StoryPointsField: c.Jira.StoryPointsField,
		})
	}
	var recognition report.RecognitionSource
	if c.BonuslyEnabled() {
		recognition = bonusly.New(bonusly.NewAPIClient(c.Bonusly.BaseURL, c.Bonusly.Token, httpOpts), bonusly.Config{
			BotMarker: c.Bonusly.BotMarker,
			Limit:     c.Bonusly.Limit,
		})
	}

	fetchers := report.NewFetchers(cache.NewAside(store, c.Cache.SingleFlight), scm, tickets, recognition, report.FetcherConfig{
		TTL:         c.Cache.TTL,
		PRFreshness: c.Cache.PRFreshness,
	})

	snapshots := report.NewFileSnapshots(c.Report.SnapshotPath)
	orch := report.New(fetchers, people, report.Options{
		OldPRDays: c.Report.OldPRDays,
		Snapshots: snapshots,
	})

	return &app{store: store, orch: orch, snapshots: snapshots}, nil
}

// openStore opens only the cache, for commands that do not talk to upstream.
func openStore(c *config.Config) (*cache.Store, error) {
	backend, err := cache.Open(c.Cache.Backend, c.Cache.Path, c.Cache.Capacity, c.Cache.Shards, c.Cache.TTL)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	return cache.NewStore(backend, cache.WithDefaultTTL(c.Cache.TTL)), nil
}

func (a *app) Close() error {
	return a.store.Close()
}
