package domain

import (
	"time"

	"github.com/elliotchance/pie/v2"
)

// Event types for realtime notifications
const (
	EventMatched       = "matched"
	EventPartyMatched  = "party_matched"
	EventRosterUpdated = "roster_updated"
	EventPartyClosed   = "party_closed"
	EventMatchMessage  = "match_message"
)

// Event is the envelope delivered over websocket, NATS and Kafka
type Event struct {
	Type      string      `json:"event"`
	MatchID   string      `json:"match_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// MatchedEvent is sent to each of the two players in a solo match
type MatchedEvent struct {
	PlayerID   string `json:"player_id"`
	OpponentID string `json:"opponent_id"`
	TicketID   string `json:"ticket_id"`
	MatchID    string `json:"match_id"`
	Mode       string `json:"mode"`
	Tier       int    `json:"tier"`
	Scope      Scope  `json:"scope"`
}

// PartySide is one of the two parties in a party match
type PartySide struct {
	PartyID  string   `json:"party_id"`
	TicketID string   `json:"ticket_id"`
	Members  []string `json:"members"`
}

// PartyMatchedEvent describes a committed party-vs-party match
type PartyMatchedEvent struct {
	MatchID string       `json:"match_id"`
	Mode    string       `json:"mode"`
	Tier    int          `json:"tier"`
	Scope   Scope        `json:"scope"`
	Sides   [2]PartySide `json:"sides"`
}

// AffectedPlayers lists every member of both parties
func (e PartyMatchedEvent) AffectedPlayers() []string {
	return pie.Unique(append(append([]string{}, e.Sides[0].Members...), e.Sides[1].Members...))
}

// PerspectiveOf returns the side playerID is on and the opposing side
func (e PartyMatchedEvent) PerspectiveOf(playerID string) (own, opponent PartySide, ok bool) {
	for i, side := range e.Sides {
		if pie.Contains(side.Members, playerID) {
			return side, e.Sides[1-i], true
		}
	}
	return PartySide{}, PartySide{}, false
}

// PartyMatchedPayload is what a single member receives for a party match
type PartyMatchedPayload struct {
	PartyID         string   `json:"party_id"`
	OpponentPartyID string   `json:"opponent_party_id"`
	MatchID         string   `json:"match_id"`
	Members         []string `json:"members"`
	OpponentMembers []string `json:"opponent_members"`
	Mode            string   `json:"mode"`
	Tier            int      `json:"tier"`
	Scope           Scope    `json:"scope"`
}

// PayloadFor builds playerID's view of the match
func (e PartyMatchedEvent) PayloadFor(playerID string) (PartyMatchedPayload, bool) {
	own, opp, ok := e.PerspectiveOf(playerID)
	if !ok {
		return PartyMatchedPayload{}, false
	}
	return PartyMatchedPayload{
		PartyID:         own.PartyID,
		OpponentPartyID: opp.PartyID,
		MatchID:         e.MatchID,
		Members:         own.Members,
		OpponentMembers: opp.Members,
		Mode:            e.Mode,
		Tier:            e.Tier,
		Scope:           e.Scope,
	}, true
}

// RosterEvent is sent to every member when a party's roster changes
type RosterEvent struct {
	PartyID  string   `json:"party_id"`
	LeaderID string   `json:"leader_id"`
	Members  []string `json:"members"`
	Joined   string   `json:"joined,omitempty"`
	Left     string   `json:"left,omitempty"`
}

// PartyClosedEvent is sent to the former members of a disbanded party
type PartyClosedEvent struct {
	PartyID string   `json:"party_id"`
	Members []string `json:"members"`
	Reason  string   `json:"reason"`
}

// MatchMessage is a client-originated frame relayed to a match room
type MatchMessage struct {
	From    string `json:"from"`
	Message string `json:"message"`
}

// Recipients is everyone who should hear about the change, including a
// player who just left
func (e RosterEvent) Recipients() []string {
	if e.Left == "" {
		return e.Members
	}
	return pie.Unique(append(append([]string{}, e.Members...), e.Left))
}
