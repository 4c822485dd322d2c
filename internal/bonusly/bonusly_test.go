package bonusly

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/colthorp/teampulse-go/internal/api"
)

var day = time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)

func TestReceivedFiltersBotsAndFlattensEmail(t *testing.T) {
	mock := api.NewMockTransport()
	mock.Respond("bonuses", map[string]any{
		"success": true,
		"result": []any{
			map[string]any{
				"id": "b1", "created_at": "2024-05-02T09:00:00Z", "amount": 10,
				"reason_html": "<p>+10 thanks</p>",
				"giver":       map[string]any{"email": "bob@x.io", "full_name": "Bob"},
				"receivers":   []any{map[string]any{"email": "Carol@x.io"}},
			},
			map[string]any{
				"id": "b2", "created_at": "2024-05-02T10:00:00Z", "amount": 5,
				"giver":     map[string]any{"email": "Bot+birthday@x.io"},
				"receivers": []any{map[string]any{"email": "carol@x.io"}},
			},
		},
	})

	c := New(mock, Config{BotMarker: "bot+"})
	got, err := c.Received(context.Background(), "carol@x.io", day, day)
	if err != nil {
		t.Fatalf("Received failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected bot recognition to be dropped, got %d", len(got))
	}
	if got[0].Email != "carol@x.io" || got[0].Amount != 10 || got[0].Giver.FullName != "Bob" {
		t.Errorf("Unexpected recognition %+v", got[0])
	}

	q := mock.Requests()[0].Query
	if q.Get("start_date") != "2024-05-02T00:00:00.000Z" || q.Get("end_date") != "2024-05-02T23:59:59.999Z" {
		t.Errorf("Unexpected range %v", q)
	}
	if q.Get("limit") != "50" {
		t.Errorf("Expected default limit 50, got %s", q.Get("limit"))
	}
}

func TestReceivedEmpty(t *testing.T) {
	mock := api.NewMockTransport()
	mock.Respond("bonuses", map[string]any{"success": true, "result": []any{}})

	got, err := New(mock, Config{}).Received(context.Background(), "carol@x.io", day, day)
	if err != nil || len(got) != 0 {
		t.Errorf("Expected empty success, got %v %v", got, err)
	}
}

func TestReceivedUpstreamRejects(t *testing.T) {
	mock := api.NewMockTransport()
	mock.Respond("bonuses", map[string]any{"success": false, "message": "invalid token"})

	_, err := New(mock, Config{}).Received(context.Background(), "carol@x.io", day, day)
	if !errors.Is(err, ErrUpstream) {
		t.Errorf("Expected ErrUpstream, got %v", err)
	}
}
