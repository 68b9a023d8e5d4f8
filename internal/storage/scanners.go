package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ernie/arena-queue/internal/domain"
)

// Null scanner helpers - reduce repetitive nil-checking code

func scanNullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

func scanNullTimestamp(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTimestamp(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// scanner is an interface satisfied by both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

const ticketColumns = `id, player_id, mode, tier, scope, status, created_at, expires_at, version,
	opponent_id, opponent_ticket_id, match_id, resolved_at`

// scanTicket scans a row selected with ticketColumns
func scanTicket(s scanner) (*domain.Ticket, error) {
	var t domain.Ticket
	var scope, status, createdAt, expiresAt string
	var opponentID, opponentTicketID, matchID, resolvedAt sql.NullString

	err := s.Scan(&t.ID, &t.PlayerID, &t.Mode, &t.Tier, &scope, &status, &createdAt, &expiresAt, &t.Version,
		&opponentID, &opponentTicketID, &matchID, &resolvedAt)
	if err != nil {
		return nil, err
	}

	t.Scope = domain.Scope(scope)
	t.Status = domain.TicketStatus(status)
	if t.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, err
	}
	if t.ExpiresAt, err = parseTimestamp(expiresAt); err != nil {
		return nil, err
	}
	t.OpponentID = scanNullStringValue(opponentID)
	t.OpponentTicketID = scanNullStringValue(opponentTicketID)
	t.MatchID = scanNullStringValue(matchID)
	if t.ResolvedAt, err = scanNullTimestamp(resolvedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

const partyTicketColumns = `id, party_id, leader_id, members, mode, tier, scope, status, created_at, expires_at, version,
	opponent_party_id, opponent_ticket_id, match_id, resolved_at`

// scanPartyTicket scans a row selected with partyTicketColumns
func scanPartyTicket(s scanner) (*domain.PartyTicket, error) {
	var t domain.PartyTicket
	var members, scope, status, createdAt, expiresAt string
	var opponentPartyID, opponentTicketID, matchID, resolvedAt sql.NullString

	err := s.Scan(&t.ID, &t.PartyID, &t.LeaderID, &members, &t.Mode, &t.Tier, &scope, &status,
		&createdAt, &expiresAt, &t.Version,
		&opponentPartyID, &opponentTicketID, &matchID, &resolvedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(members), &t.Members); err != nil {
		return nil, fmt.Errorf("decoding party ticket members: %w", err)
	}
	t.Scope = domain.Scope(scope)
	t.Status = domain.TicketStatus(status)
	if t.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, err
	}
	if t.ExpiresAt, err = parseTimestamp(expiresAt); err != nil {
		return nil, err
	}
	t.OpponentPartyID = scanNullStringValue(opponentPartyID)
	t.OpponentTicketID = scanNullStringValue(opponentTicketID)
	t.MatchID = scanNullStringValue(matchID)
	if t.ResolvedAt, err = scanNullTimestamp(resolvedAt); err != nil {
		return nil, err
	}
	return &t, nil
}
