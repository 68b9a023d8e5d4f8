package domain

// Outcome is what a caller observes from any queue operation
type Outcome string

const (
	OutcomeForbidden Outcome = "forbidden"
	OutcomeQueued    Outcome = "queued"
	OutcomeMatched   Outcome = "matched"
	OutcomeNone      Outcome = "none"
)

// QueueResult is the response to Enqueue and GetStatus
type QueueResult struct {
	Outcome    Outcome `json:"outcome"`
	TicketID   string  `json:"ticket_id,omitempty"`
	OpponentID string  `json:"opponent_id,omitempty"`
	MatchID    string  `json:"match_id,omitempty"`
	Mode       string  `json:"mode,omitempty"`
	Tier       int     `json:"tier,omitempty"`
	Scope      Scope   `json:"scope,omitempty"`
}

// ResultFromTicket reports a stored ticket back to its owner
func ResultFromTicket(t *Ticket) QueueResult {
	if t == nil {
		return QueueResult{Outcome: OutcomeNone}
	}
	res := QueueResult{
		TicketID: t.ID,
		Mode:     t.Mode,
		Tier:     t.Tier,
		Scope:    t.Scope,
	}
	switch t.Status {
	case StatusQueued:
		res.Outcome = OutcomeQueued
	case StatusMatched:
		res.Outcome = OutcomeMatched
		res.OpponentID = t.OpponentID
		res.MatchID = t.MatchID
	default:
		return QueueResult{Outcome: OutcomeNone}
	}
	return res
}

// PartyQueueResult is the response to EnqueueParty and GetPartyStatus
type PartyQueueResult struct {
	Outcome         Outcome  `json:"outcome"`
	PartyID         string   `json:"party_id"`
	TicketID        string   `json:"ticket_id,omitempty"`
	Members         []string `json:"members,omitempty"`
	OpponentPartyID string   `json:"opponent_party_id,omitempty"`
	MatchID         string   `json:"match_id,omitempty"`
	Mode            string   `json:"mode,omitempty"`
	Tier            int      `json:"tier,omitempty"`
	Scope           Scope    `json:"scope,omitempty"`

	// Set when Outcome is forbidden
	DeniedPlayerID string `json:"denied_player_id,omitempty"`
}

// ResultFromPartyTicket reports a stored party ticket back to the party
func ResultFromPartyTicket(partyID string, t *PartyTicket) PartyQueueResult {
	if t == nil {
		return PartyQueueResult{Outcome: OutcomeNone, PartyID: partyID}
	}
	res := PartyQueueResult{
		PartyID:  t.PartyID,
		TicketID: t.ID,
		Members:  t.Members,
		Mode:     t.Mode,
		Tier:     t.Tier,
		Scope:    t.Scope,
	}
	switch t.Status {
	case StatusQueued:
		res.Outcome = OutcomeQueued
	case StatusMatched:
		res.Outcome = OutcomeMatched
		res.OpponentPartyID = t.OpponentPartyID
		res.MatchID = t.MatchID
	default:
		return PartyQueueResult{Outcome: OutcomeNone, PartyID: partyID}
	}
	return res
}
