package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ernie/arena-queue/internal/domain"
	"github.com/ernie/arena-queue/internal/matchmaking"
)

var _ matchmaking.PartyTicketStore = (*Store)(nil)

// ExpireStalePartyTickets marks queued party tickets past their TTL as expired
func (s *Store) ExpireStalePartyTickets(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE party_tickets SET status = 'expired', resolved_at = ?, version = version + 1
		WHERE status = 'queued' AND expires_at <= ?
	`, formatTimestamp(now), formatTimestamp(now))
	if err != nil {
		return 0, fmt.Errorf("expiring party tickets: %w", classify(err))
	}
	return result.RowsAffected()
}

// CreatePartyTicket inserts a queued ticket unless the party already has one.
// It fails with domain.ErrAlreadyQueued while any member holds a live solo
// ticket.
func (s *Store) CreatePartyTicket(ctx context.Context, t *domain.PartyTicket) (*domain.PartyTicket, bool, error) {
	members, err := json.Marshal(t.Members)
	if err != nil {
		return nil, false, fmt.Errorf("encoding members: %w", err)
	}

	var stored *domain.PartyTicket
	var created bool

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE party_tickets SET status = 'expired', resolved_at = ?, version = version + 1
			WHERE party_id = ? AND status = 'queued' AND expires_at <= ?
		`, formatTimestamp(t.CreatedAt), t.PartyID, formatTimestamp(t.CreatedAt))
		if err != nil {
			return fmt.Errorf("expiring party tickets: %w", err)
		}

		player, err := queuedSoloMember(ctx, tx, string(members), t.CreatedAt)
		if err != nil {
			return fmt.Errorf("checking solo queue: %w", err)
		}
		if player != "" {
			return fmt.Errorf("%w: %s", domain.ErrAlreadyQueued, player)
		}

		result, err := tx.ExecContext(ctx, `
			INSERT INTO party_tickets (id, party_id, leader_id, members, member_count, mode, tier, scope,
				status, created_at, expires_at, version)
			SELECT ?, ?, ?, ?, ?, ?, ?, ?, 'queued', ?, ?, 1
			WHERE NOT EXISTS (SELECT 1 FROM party_tickets WHERE party_id = ? AND status = 'queued')
		`, t.ID, t.PartyID, t.LeaderID, string(members), len(t.Members), t.Mode, t.Tier, string(t.Scope),
			formatTimestamp(t.CreatedAt), formatTimestamp(t.ExpiresAt), t.PartyID)
		if err != nil {
			return fmt.Errorf("inserting party ticket: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		created = rows == 1

		stored, err = scanPartyTicket(tx.QueryRowContext(ctx, `
			SELECT `+partyTicketColumns+` FROM party_tickets
			WHERE party_id = ? AND status = 'queued'
			ORDER BY created_at DESC, seq DESC LIMIT 1
		`, t.PartyID))
		if err != nil {
			return fmt.Errorf("reading queued party ticket: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

// queuedSoloMember returns the first of members (a JSON array) holding a live
// queued solo ticket, or ""
func queuedSoloMember(ctx context.Context, q querier, members string, now time.Time) (string, error) {
	var playerID string
	err := q.QueryRowContext(ctx, `
		SELECT player_id FROM tickets
		WHERE status = 'queued' AND expires_at > ?
		  AND player_id IN (SELECT value FROM json_each(?))
		ORDER BY seq LIMIT 1
	`, formatTimestamp(now), members).Scan(&playerID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return playerID, err
}

// queuedPartyOf returns the party whose live queued ticket lists playerID, or ""
func queuedPartyOf(ctx context.Context, q querier, playerID string, now time.Time) (string, error) {
	var partyID string
	err := q.QueryRowContext(ctx, `
		SELECT pt.party_id FROM party_tickets pt, json_each(pt.members) m
		WHERE pt.status = 'queued' AND pt.expires_at > ? AND m.value = ?
		LIMIT 1
	`, formatTimestamp(now), playerID).Scan(&partyID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return partyID, err
}

// cancelQueuedPartyTicket cancels the party's queued ticket inside tx, if any
func cancelQueuedPartyTicket(ctx context.Context, tx *sql.Tx, partyID string, now time.Time) (*domain.PartyTicket, error) {
	t, err := scanPartyTicket(tx.QueryRowContext(ctx, `
		SELECT `+partyTicketColumns+` FROM party_tickets
		WHERE party_id = ? AND status = 'queued'
		ORDER BY created_at DESC, seq DESC LIMIT 1
	`, partyID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading queued party ticket: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE party_tickets SET status = 'cancelled', resolved_at = ?, version = version + 1
		WHERE id = ? AND version = ? AND status = 'queued'
	`, formatTimestamp(now), t.ID, t.Version)
	if err != nil {
		return nil, fmt.Errorf("cancelling party ticket: %w", err)
	}
	if err := expectOneRow(result); err != nil {
		return nil, err
	}

	t.Status = domain.StatusCancelled
	t.Version++
	t.ResolvedAt = &now
	return t, nil
}

// CancelQueuedPartyTicket cancels the party's queued ticket, if any
func (s *Store) CancelQueuedPartyTicket(ctx context.Context, partyID string, now time.Time) (*domain.PartyTicket, error) {
	var cancelled *domain.PartyTicket
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		cancelled, err = cancelQueuedPartyTicket(ctx, tx, partyID, now)
		return err
	})
	if errors.Is(err, domain.ErrVersionConflict) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

// LatestPartyTicket returns the party's newest queued or matched ticket
func (s *Store) LatestPartyTicket(ctx context.Context, partyID string, now time.Time) (*domain.PartyTicket, error) {
	t, err := scanPartyTicket(s.db.QueryRowContext(ctx, `
		SELECT `+partyTicketColumns+` FROM party_tickets
		WHERE party_id = ?
		  AND (status = 'matched' OR (status = 'queued' AND expires_at > ?))
		ORDER BY created_at DESC, seq DESC LIMIT 1
	`, partyID, formatTimestamp(now)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading latest party ticket: %w", classify(err))
	}
	return t, nil
}

// WithPartyTicketTx runs fn inside a transaction
func (s *Store) WithPartyTicketTx(ctx context.Context, fn func(tx matchmaking.PartyTicketTx) error) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return fn(&storeTx{tx: tx})
	})
}

func (t *storeTx) GetPartyTicket(ctx context.Context, id string) (*domain.PartyTicket, error) {
	ticket, err := scanPartyTicket(t.tx.QueryRowContext(ctx,
		`SELECT `+partyTicketColumns+` FROM party_tickets WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("reading party ticket %s: %w", id, err)
	}
	return ticket, nil
}

func (t *storeTx) OldestPartyCandidate(ctx context.Context, own *domain.PartyTicket, now time.Time) (*domain.PartyTicket, error) {
	query := `
		SELECT ` + partyTicketColumns + ` FROM party_tickets
		WHERE status = 'queued' AND expires_at > ?
		  AND id != ? AND party_id != ?
		  AND mode = ? AND scope = ? AND member_count = ?`
	args := []any{formatTimestamp(now), own.ID, own.PartyID, own.Mode, string(own.Scope), own.Size()}
	if own.Scope == domain.ScopeTierOnly {
		query += ` AND tier = ?`
		args = append(args, own.Tier)
	}
	query += ` ORDER BY created_at ASC, seq ASC LIMIT 1`

	candidate, err := scanPartyTicket(t.tx.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("selecting party candidate: %w", err)
	}
	return candidate, nil
}

func (t *storeTx) MarkPartiesMatched(ctx context.Context, a, b *domain.PartyTicket, matchID string, now time.Time) error {
	if err := t.resolvePartyTicket(ctx, a, b, matchID, now); err != nil {
		return err
	}
	return t.resolvePartyTicket(ctx, b, a, matchID, now)
}

func (t *storeTx) resolvePartyTicket(ctx context.Context, ticket, opponent *domain.PartyTicket, matchID string, now time.Time) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE party_tickets
		SET status = 'matched', opponent_party_id = ?, opponent_ticket_id = ?, match_id = ?,
		    resolved_at = ?, version = version + 1
		WHERE id = ? AND version = ? AND status = 'queued'
	`, opponent.PartyID, opponent.ID, matchID, formatTimestamp(now), ticket.ID, ticket.Version)
	if err != nil {
		return fmt.Errorf("matching party ticket %s: %w", ticket.ID, err)
	}
	if err := expectOneRow(result); err != nil {
		return err
	}

	ticket.Status = domain.StatusMatched
	ticket.OpponentPartyID = opponent.PartyID
	ticket.OpponentTicketID = opponent.ID
	ticket.MatchID = matchID
	ticket.ResolvedAt = &now
	ticket.Version++
	return nil
}
