package domain

import (
	"strings"
	"time"
)

// DefaultMode is the queue used when a caller does not name one
const DefaultMode = "duel"

// DefaultTicketTTL is how long a ticket stays eligible for matching
const DefaultTicketTTL = 2 * time.Minute

// Scope is the matchmaking pool a ticket belongs to. It is assigned by the
// enforcement gate, never by the caller.
type Scope string

const (
	ScopeGlobal   Scope = "global"
	ScopeTierOnly Scope = "tier_only"
	ScopePractice Scope = "practice"
	ScopeShadow   Scope = "shadow"
)

// scopeRank orders scopes from least to most restrictive
var scopeRank = map[Scope]int{
	ScopeGlobal:   0,
	ScopeTierOnly: 1,
	ScopePractice: 2,
	ScopeShadow:   3,
}

// Valid reports whether s is a known scope
func (s Scope) Valid() bool {
	_, ok := scopeRank[s]
	return ok
}

// MostRestrictive returns whichever of a and b confines a player more
func MostRestrictive(a, b Scope) Scope {
	if scopeRank[b] > scopeRank[a] {
		return b
	}
	return a
}

// TicketStatus is the lifecycle state of a ticket
type TicketStatus string

const (
	StatusQueued    TicketStatus = "queued"
	StatusMatched   TicketStatus = "matched"
	StatusCancelled TicketStatus = "cancelled"
	StatusExpired   TicketStatus = "expired"
)

// Terminal reports whether no further transition is allowed
func (s TicketStatus) Terminal() bool {
	return s != StatusQueued
}

// Ticket is one player's persisted intent to be matched
type Ticket struct {
	ID        string       `json:"id"`
	PlayerID  string       `json:"player_id"`
	Mode      string       `json:"mode"`
	Tier      int          `json:"tier"`
	Scope     Scope        `json:"scope"`
	Status    TicketStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	ExpiresAt time.Time    `json:"expires_at"`
	Version   int64        `json:"version"`

	// Set once the ticket is matched
	OpponentID       string     `json:"opponent_id,omitempty"`
	OpponentTicketID string     `json:"opponent_ticket_id,omitempty"`
	MatchID          string     `json:"match_id,omitempty"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
}

// Bucket returns the ticket's matching criteria
func (t *Ticket) Bucket() Bucket {
	return Bucket{Mode: t.Mode, Scope: t.Scope, Tier: t.Tier}
}

// ExpiredAt reports whether the ticket has outlived its TTL at now
func (t *Ticket) ExpiredAt(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Bucket is the set of fields two tickets must agree on to be paired
type Bucket struct {
	Mode  string
	Scope Scope
	Tier  int
}

// Compatible reports whether tickets in b and other may be matched.
// Tier only matters inside the tier_only pool.
func (b Bucket) Compatible(other Bucket) bool {
	if b.Mode != other.Mode || b.Scope != other.Scope {
		return false
	}
	if b.Scope == ScopeTierOnly {
		return b.Tier == other.Tier
	}
	return true
}

// NormalizeMode trims and lowercases a queue name, falling back to def
func NormalizeMode(mode, def string) string {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		if def == "" {
			return DefaultMode
		}
		return def
	}
	return mode
}
