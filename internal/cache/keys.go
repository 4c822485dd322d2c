package cache

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/colthorp/teampulse-go/internal/core"
)

// KeySeparator joins the parts of a cache key.
const KeySeparator = "::"

// Key namespaces. The namespace is the first key part and drives metrics labels
// and the filesystem layout.
const (
	NamespaceSearch      = "search"
	NamespacePullDetail  = "pr"
	NamespaceTickets     = "tickets"
	NamespaceRecognition = "recognition"
)

// Search modes for source-control keys.
const (
	ModeAuthor   = "author"
	ModeReviewer = "reviewer"
	ModeCommits  = "commits"
)

// BuildKey joins namespace and parts with KeySeparator.
func BuildKey(namespace string, parts ...string) string {
	return strings.Join(append([]string{namespace}, parts...), KeySeparator)
}

// Namespace returns the first part of key.
func Namespace(key string) string {
	ns, _, _ := strings.Cut(key, KeySeparator)
	return ns
}

// SearchKey identifies one source-control search: PRs by author or reviewer, or commits.
// Logins are case-insensitive upstream so they are lowercased here.
func SearchKey(org, user string, start, end time.Time, mode string) string {
	return BuildKey(NamespaceSearch,
		strings.ToLower(org),
		strings.ToLower(user),
		core.FormatDate(start),
		core.FormatDate(end),
		mode,
	)
}

// PullKey identifies the detail record of one pull request.
func PullKey(owner, repo string, number int) string {
	return BuildKey(NamespacePullDetail, strings.ToLower(owner), strings.ToLower(repo), strconv.Itoa(number))
}

// TicketKey identifies a ticket search for a set of assignees. The email set is
// normalized so the same team in any order maps to the same key.
func TicketKey(emails []string, start, end time.Time) string {
	return BuildKey(NamespaceTickets, normalizeEmails(emails), core.FormatDate(start), core.FormatDate(end))
}

// TicketKeyCovers reports whether key is a ticket search over [start, end] whose
// assignee set includes email.
func TicketKeyCovers(key, email string, start, end time.Time) bool {
	parts := strings.Split(key, KeySeparator)
	if len(parts) != 4 || parts[0] != NamespaceTickets {
		return false
	}
	if parts[2] != core.FormatDate(start) || parts[3] != core.FormatDate(end) {
		return false
	}
	email = strings.ToLower(strings.TrimSpace(email))
	for _, e := range strings.Split(parts[1], ",") {
		if e == email {
			return true
		}
	}
	return false
}

// RecognitionKey identifies the recognition query for one receiver.
func RecognitionKey(email string, start, end time.Time) string {
	return BuildKey(NamespaceRecognition, strings.ToLower(strings.TrimSpace(email)), core.FormatDate(start), core.FormatDate(end))
}

func normalizeEmails(emails []string) string {
	seen := make(map[string]struct{}, len(emails))
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	sort.Strings(out)
	return strings.Join(out, ",")
}
