// Package roster resolves source-control usernames to people.
//
// The roster is owned elsewhere; teampulse only reads it to find a display name and
// the email address used by the ticket and recognition connectors.
package roster

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// User is one person on the roster.
type User struct {
	Name     string `koanf:"name" json:"name"`
	Username string `koanf:"username" json:"username"`
	Email    string `koanf:"email" json:"email"`
}

// Team is a named group of usernames.
type Team struct {
	Name    string   `koanf:"name" json:"name"`
	Members []string `koanf:"members" json:"members"`
}

// Roster is the read side of the people directory.
type Roster interface {
	ListUsers() ([]User, error)
	ListTeams() ([]Team, error)
}

// Identity is a requested username resolved against the roster.
type Identity struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	// Email is empty when the roster has no address for the user.
	Email   string `json:"email,omitempty"`
	Matched bool   `json:"matched"`
}

// Static is an in-memory roster.
type Static struct {
	Users []User `koanf:"users"`
	Teams []Team `koanf:"teams"`
}

func (s *Static) ListUsers() ([]User, error) { return s.Users, nil }
func (s *Static) ListTeams() ([]Team, error) { return s.Teams, nil }

// Load reads a YAML (or JSON) roster file:
//
//	users:
//	  - {name: Alice Liddell, username: alice, email: alice@example.com}
//	teams:
//	  - {name: platform, members: [alice, bob]}
//
// An empty path yields an empty roster.
func Load(path string) (*Static, error) {
	if path == "" {
		return &Static{}, nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("roster %s: %w", path, err)
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("roster %s: %w", path, err)
	}

	var s Static
	if err := k.Unmarshal("", &s); err != nil {
		return nil, fmt.Errorf("roster %s: %w", path, err)
	}
	return &s, nil
}

// Resolve looks up username case-insensitively. An unmatched username resolves to
// itself as display name with no email.
func Resolve(r Roster, username string) (Identity, error) {
	id := Identity{Username: username, DisplayName: username}

	users, err := r.ListUsers()
	if err != nil {
		return id, err
	}
	for _, u := range users {
		if !strings.EqualFold(u.Username, username) {
			continue
		}
		id.Matched = true
		id.Email = strings.TrimSpace(u.Email)
		if u.Name != "" {
			id.DisplayName = u.Name
		}
		return id, nil
	}
	return id, nil
}

// ErrUnknownTeam is returned by TeamMembers for a team not on the roster.
var ErrUnknownTeam = errors.New("unknown team")

// TeamMembers returns the usernames in the named team.
func TeamMembers(r Roster, name string) ([]string, error) {
	teams, err := r.ListTeams()
	if err != nil {
		return nil, err
	}
	for _, t := range teams {
		if strings.EqualFold(t.Name, name) {
			return t.Members, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownTeam, name)
}
