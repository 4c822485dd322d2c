package stats

import (
	"math"
	"time"

	"github.com/colthorp/teampulse-go/internal/bonusly"
	"github.com/colthorp/teampulse-go/internal/github"
	"github.com/colthorp/teampulse-go/internal/jira"
)

// CommitStats counts commits per month.
type CommitStats struct {
	Months        []string       `json:"months"`
	CountPerMonth map[string]int `json:"count_per_month"`
	Total         int            `json:"total"`
}

// Commits computes monthly commit counts.
func Commits(commits []github.Commit) CommitStats {
	byMonth := Bucket(commits, func(c github.Commit) time.Time { return c.AuthoredAt })
	s := CommitStats{
		Months:        MonthKeys(byMonth),
		CountPerMonth: make(map[string]int, len(byMonth)),
		Total:         len(commits),
	}
	for m, items := range byMonth {
		s.CountPerMonth[m] = len(items)
	}
	return s
}

// TicketMonth summarizes one month of tickets.
type TicketMonth struct {
	Month string `json:"month"`
	Bugs  int    `json:"bugs"`
	Tasks int    `json:"tasks"`
	// StoryPoints sums points of Done tickets only.
	StoryPoints float64 `json:"story_points"`
	Resolved    int     `json:"resolved"`
	// AverageResolutionDays is nil when nothing in the month was resolved.
	AverageResolutionDays *float64 `json:"average_resolution_days"`
}

// Tickets computes monthly ticket statistics, ascending by month.
func Tickets(tickets []jira.Ticket) []TicketMonth {
	byMonth := Bucket(tickets, func(t jira.Ticket) time.Time { return t.CreatedAt })

	out := make([]TicketMonth, 0, len(byMonth))
	for _, m := range MonthKeys(byMonth) {
		tm := TicketMonth{Month: m}
		var resolutionDays float64
		for _, t := range byMonth[m] {
			if t.IsBug() {
				tm.Bugs++
			} else {
				tm.Tasks++
			}
			if t.IsDone() {
				tm.StoryPoints += t.StoryPoints
			}
			if t.Resolved {
				tm.Resolved++
				resolutionDays += t.ResolvedAt.Sub(t.CreatedAt).Hours() / 24
			}
		}
		if tm.Resolved > 0 {
			avg := math.Round(resolutionDays/float64(tm.Resolved)*10) / 10
			tm.AverageResolutionDays = &avg
		}
		out = append(out, tm)
	}
	return out
}

// TicketsFor returns the tickets assigned to email.
func TicketsFor(tickets []jira.Ticket, email string) []jira.Ticket {
	var out []jira.Ticket
	for _, t := range tickets {
		if t.Assignee == email {
			out = append(out, t)
		}
	}
	return out
}

// RecognitionMonth summarizes one month of received recognition.
type RecognitionMonth struct {
	Month  string `json:"month"`
	Count  int    `json:"count"`
	Amount int    `json:"amount"`
}

// Recognitions computes monthly recognition totals, ascending by month.
func Recognitions(recs []bonusly.Recognition) []RecognitionMonth {
	byMonth := Bucket(recs, func(r bonusly.Recognition) time.Time { return r.CreatedAt })

	out := make([]RecognitionMonth, 0, len(byMonth))
	for _, m := range MonthKeys(byMonth) {
		rm := RecognitionMonth{Month: m, Count: len(byMonth[m])}
		for _, r := range byMonth[m] {
			rm.Amount += r.Amount
		}
		out = append(out, rm)
	}
	return out
}
