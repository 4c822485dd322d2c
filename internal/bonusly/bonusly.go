// Package bonusly is the recognition-event connector.
package bonusly

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/colthorp/teampulse-go/internal/api"
	"github.com/colthorp/teampulse-go/internal/core"
	"github.com/colthorp/teampulse-go/internal/logging"
)

// ErrUpstream is returned when the API answers with success=false.
var ErrUpstream = errors.New("bonusly: request rejected")

// Giver identifies who gave a recognition.
type Giver struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}

// Recognition is one recognition event received by Email.
type Recognition struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	CreatedAt  time.Time `json:"created_at"`
	Amount     int       `json:"amount"`
	Reason     string    `json:"reason"`
	ReasonHTML string    `json:"reason_html"`
	Giver      Giver     `json:"giver"`
}

type rawBonus struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	Amount        int       `json:"amount"`
	ReasonDecoded string    `json:"reason_decoded"`
	ReasonHTML    string    `json:"reason_html"`
	Giver         *Giver    `json:"giver"`
	Receivers     []struct {
		Email string `json:"email"`
	} `json:"receivers"`
}

type listResponse struct {
	Success bool       `json:"success"`
	Message string     `json:"message"`
	Result  []rawBonus `json:"result"`
}

// Config holds connector settings.
type Config struct {
	// BotMarker filters out givers whose email contains it.
	BotMarker string
	Limit     int
}

// Client is the recognition-event connector.
type Client struct {
	transport api.Transport
	cfg       Config
	log       zerolog.Logger
}

// New creates a connector over transport.
func New(transport api.Transport, cfg Config) *Client {
	if cfg.Limit <= 0 {
		cfg.Limit = core.BonuslyLimit
	}
	return &Client{transport: transport, cfg: cfg, log: logging.With("bonusly")}
}

// NewAPIClient builds the shared HTTP client for the Bonusly API.
func NewAPIClient(baseURL, token string, opts api.Options) *api.Client {
	opts.Name = "bonusly"
	opts.BaseURL = baseURL
	opts.Auth = api.BearerAuth(token)
	return api.NewClient(opts)
}

// Received returns recognitions received by email between the start of start's day
// and the end of end's day (UTC), excluding those given by bots.
func (c *Client) Received(ctx context.Context, email string, start, end time.Time) ([]Recognition, error) {
	q := url.Values{
		"receiver_email": {email},
		"limit":          {strconv.Itoa(c.cfg.Limit)},
		"start_date":     {core.FormatDate(start) + "T00:00:00.000Z"},
		"end_date":       {core.FormatDate(end) + "T23:59:59.999Z"},
	}

	var resp listResponse
	if err := c.transport.Do(ctx, api.Request{Path: "bonuses", Query: q}, &resp); err != nil {
		return nil, fmt.Errorf("list recognitions for %s: %w", email, err)
	}
	if !resp.Success {
		msg := resp.Message
		if msg == "" {
			msg = "failed to fetch recognition data"
		}
		return nil, fmt.Errorf("%w: %s", ErrUpstream, msg)
	}

	out := make([]Recognition, 0, len(resp.Result))
	for _, raw := range resp.Result {
		if raw.Giver != nil && c.isBot(raw.Giver.Email) {
			continue
		}
		r := Recognition{
			ID:         raw.ID,
			Email:      strings.ToLower(email),
			CreatedAt:  raw.CreatedAt.UTC(),
			Amount:     raw.Amount,
			Reason:     raw.ReasonDecoded,
			ReasonHTML: raw.ReasonHTML,
		}
		if len(raw.Receivers) > 0 && raw.Receivers[0].Email != "" {
			r.Email = strings.ToLower(raw.Receivers[0].Email)
		}
		if raw.Giver != nil {
			r.Giver = *raw.Giver
		}
		out = append(out, r)
	}

	c.log.Debug().Str("email", email).Int("received", len(resp.Result)).Int("kept", len(out)).Msg("Fetched recognitions")
	return out, nil
}

func (c *Client) isBot(email string) bool {
	return c.cfg.BotMarker != "" && strings.Contains(strings.ToLower(email), strings.ToLower(c.cfg.BotMarker))
}
