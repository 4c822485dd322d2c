package cache

import (
	"testing"
	"time"
)

func TestSearchKey(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 31, 23, 59, 0, 0, time.UTC)

	got := SearchKey("Acme", "Alice", start, end, ModeReviewer)
	want := "search::acme::alice::2024-01-01::2024-01-31::reviewer"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}

	if SearchKey("acme", "alice", start, end, ModeAuthor) == got {
		t.Error("Expected modes to produce distinct keys")
	}
}

func TestTicketKeyNormalizesEmails(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)

	a := TicketKey([]string{"Bob@x.io", "alice@x.io"}, start, end)
	b := TicketKey([]string{"alice@x.io", " bob@x.io", "ALICE@x.io"}, start, end)
	if a != b {
		t.Errorf("Expected equal keys, got %q and %q", a, b)
	}
	if a != "tickets::alice@x.io,bob@x.io::2024-03-01::2024-03-31" {
		t.Errorf("Unexpected key %q", a)
	}
}

func TestTicketKeyCovers(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	team := TicketKey([]string{"alice@x.io", "bob@x.io"}, start, end)

	if !TicketKeyCovers(team, " Alice@X.io", start, end) {
		t.Error("Expected team key to cover alice")
	}
	if TicketKeyCovers(team, "carol@x.io", start, end) {
		t.Error("Expected team key not to cover carol")
	}
	if TicketKeyCovers(team, "alice@x.io", start, end.AddDate(0, 0, 1)) {
		t.Error("Expected a different range not to match")
	}
	if TicketKeyCovers(RecognitionKey("alice@x.io", start, end), "alice@x.io", start, end) {
		t.Error("Expected recognition keys to be ignored")
	}
}

func TestPullAndRecognitionKeys(t *testing.T) {
	if got := PullKey("Acme", "API", 12); got != "pr::acme::api::12" {
		t.Errorf("Unexpected pull key %q", got)
	}

	day := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	if got := RecognitionKey("Carol@X.io", day, day); got != "recognition::carol@x.io::2024-05-02::2024-05-02" {
		t.Errorf("Unexpected recognition key %q", got)
	}
}

func TestNamespace(t *testing.T) {
	if ns := Namespace("tickets::a::b"); ns != NamespaceTickets {
		t.Errorf("Expected tickets, got %q", ns)
	}
	if ns := Namespace("plain"); ns != "plain" {
		t.Errorf("Expected plain, got %q", ns)
	}
}
