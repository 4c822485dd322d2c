package stats

import (
	"math"
	"sort"
	"time"

	"github.com/colthorp/teampulse-go/internal/github"
)

// PullStats summarizes pull requests a user authored.
type PullStats struct {
	Months        []string       `json:"months"`
	CountPerMonth map[string]int `json:"count_per_month"`
	Total         int            `json:"total"`
	// AveragePerMonth is round(total / active months); nil when there are none.
	AveragePerMonth *int     `json:"average_per_month"`
	Repos           []string `json:"repos"`
	// PerRepoPerMonth has an entry for every repo in Repos in every month, zero-filled.
	PerRepoPerMonth map[string]map[string]int `json:"per_repo_per_month"`
	// CycleTimePerMonth is floor(mean ceil-days) over closed pull requests; nil when none closed.
	CycleTimePerMonth map[string]*int `json:"cycle_time_per_month"`
	Distribution      map[string]int  `json:"distribution"`
}

// ReviewStats summarizes pull requests a user reviewed.
type ReviewStats struct {
	Months          []string                  `json:"months"`
	CountPerMonth   map[string]int            `json:"count_per_month"`
	Total           int                       `json:"total"`
	Repos           []string                  `json:"repos"`
	PerRepoPerMonth map[string]map[string]int `json:"per_repo_per_month"`
	Distribution    map[string]int            `json:"distribution"`
}

func createdAt(p github.PullRequest) time.Time { return p.CreatedAt }

// Authored computes monthly statistics for authored pull requests.
func Authored(prs []github.PullRequest) PullStats {
	byMonth := Bucket(prs, createdAt)
	repos := Repos(prs)

	s := PullStats{
		Months:            MonthKeys(byMonth),
		CountPerMonth:     make(map[string]int, len(byMonth)),
		Total:             len(prs),
		Repos:             repos,
		PerRepoPerMonth:   make(map[string]map[string]int, len(byMonth)),
		CycleTimePerMonth: make(map[string]*int, len(byMonth)),
		Distribution:      Distribution(prs),
	}
	for month, items := range byMonth {
		s.CountPerMonth[month] = len(items)
		s.PerRepoPerMonth[month] = perRepo(items, repos)
		s.CycleTimePerMonth[month] = AverageCycleTime(items)
	}
	if n := len(s.Months); n > 0 {
		avg := int(math.Round(float64(s.Total) / float64(n)))
		s.AveragePerMonth = &avg
	}
	return s
}

// Reviewed computes monthly statistics for reviewed pull requests.
func Reviewed(prs []github.PullRequest) ReviewStats {
	byMonth := Bucket(prs, createdAt)
	repos := Repos(prs)

	s := ReviewStats{
		Months:          MonthKeys(byMonth),
		CountPerMonth:   make(map[string]int, len(byMonth)),
		Total:           len(prs),
		Repos:           repos,
		PerRepoPerMonth: make(map[string]map[string]int, len(byMonth)),
		Distribution:    Distribution(prs),
	}
	for month, items := range byMonth {
		s.CountPerMonth[month] = len(items)
		s.PerRepoPerMonth[month] = perRepo(items, repos)
	}
	return s
}

// CycleTime returns ceil-days from creation to close, or false for open pull requests.
func CycleTime(p github.PullRequest) (int, bool) {
	if p.ClosedAt == nil {
		return 0, false
	}
	return CeilDays(p.CreatedAt, *p.ClosedAt), true
}

// AverageCycleTime is floor(sum / closed count) over closed pull requests.
// Open pull requests are left out rather than counted as zero; nil when none are closed.
func AverageCycleTime(prs []github.PullRequest) *int {
	sum, closed := 0, 0
	for _, p := range prs {
		if days, ok := CycleTime(p); ok {
			sum += days
			closed++
		}
	}
	if closed == 0 {
		return nil
	}
	avg := sum / closed
	return &avg
}

// Repos returns the distinct repository names, sorted.
func Repos(prs []github.PullRequest) []string {
	set := map[string]struct{}{}
	for _, p := range prs {
		set[repoName(p)] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for r := range set {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Distribution counts pull requests per repository over the whole range.
func Distribution(prs []github.PullRequest) map[string]int {
	out := make(map[string]int)
	for _, p := range prs {
		out[repoName(p)]++
	}
	return out
}

func perRepo(prs []github.PullRequest, repos []string) map[string]int {
	counts := make(map[string]int, len(repos))
	for _, r := range repos {
		counts[r] = 0
	}
	for _, p := range prs {
		counts[repoName(p)]++
	}
	return counts
}

func repoName(p github.PullRequest) string {
	if p.Repository != "" {
		return p.Repository
	}
	_, repo := github.SplitRepositoryURL(p.RepositoryURL)
	if repo == "" {
		_, repo = github.SplitRepositoryURL(p.HTMLURL)
	}
	return repo
}

// OldPull is an open pull request past the age threshold.
type OldPull struct {
	Owner       string    `json:"owner"`
	Repo        string    `json:"repo"`
	Number      int       `json:"number"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Author      string    `json:"author"`
	Draft       bool      `json:"draft"`
	CreatedAt   time.Time `json:"created_at"`
	DaysElapsed int       `json:"days_elapsed"`
}

// OldPulls returns open pull requests older than thresholdDays at now, oldest first.
func OldPulls(prs []github.PullRequest, now time.Time, thresholdDays int) []OldPull {
	limit := time.Duration(thresholdDays) * day
	var out []OldPull
	for _, p := range prs {
		if !p.Open() || now.Sub(p.CreatedAt) <= limit {
			continue
		}
		owner, repo := p.Owner, repoName(p)
		if owner == "" {
			owner, _ = github.SplitRepositoryURL(p.HTMLURL)
		}
		out = append(out, OldPull{
			Owner:       owner,
			Repo:        repo,
			Number:      p.Number,
			Title:       p.Title,
			URL:         p.HTMLURL,
			Author:      p.Author,
			Draft:       p.Draft,
			CreatedAt:   p.CreatedAt,
			DaysElapsed: CeilDays(p.CreatedAt, now),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
