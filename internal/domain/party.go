package domain

import "time"

// DefaultPartyMaxSize caps how many players one party may hold
const DefaultPartyMaxSize = 5

// Party is a group of players that queue together. Members are ordered with
// the leader first.
type Party struct {
	ID        string     `json:"id"`
	LeaderID  string     `json:"leader_id"`
	Members   []string   `json:"members"`
	CreatedAt time.Time  `json:"created_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

// Open reports whether the party still accepts roster changes
func (p *Party) Open() bool {
	return p.ClosedAt == nil
}

// PartyTicket is a party's matchmaking intent. The member list is frozen at
// enqueue time and all members move through the lifecycle together.
type PartyTicket struct {
	ID        string       `json:"id"`
	PartyID   string       `json:"party_id"`
	LeaderID  string       `json:"leader_id"`
	Members   []string     `json:"members"`
	Mode      string       `json:"mode"`
	Tier      int          `json:"tier"`
	Scope     Scope        `json:"scope"`
	Status    TicketStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	ExpiresAt time.Time    `json:"expires_at"`
	Version   int64        `json:"version"`

	OpponentPartyID  string     `json:"opponent_party_id,omitempty"`
	OpponentTicketID string     `json:"opponent_ticket_id,omitempty"`
	MatchID          string     `json:"match_id,omitempty"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
}

// Size is the number of players on the ticket
func (t *PartyTicket) Size() int {
	return len(t.Members)
}

// Bucket returns the ticket's matching criteria
func (t *PartyTicket) Bucket() Bucket {
	return Bucket{Mode: t.Mode, Scope: t.Scope, Tier: t.Tier}
}

// ExpiredAt reports whether the ticket has outlived its TTL at now
func (t *PartyTicket) ExpiredAt(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
