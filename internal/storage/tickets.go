package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ernie/arena-queue/internal/domain"
	"github.com/ernie/arena-queue/internal/matchmaking"
)

var _ matchmaking.TicketStore = (*Store)(nil)

// ExpireStaleTickets marks queued tickets past their TTL as expired
func (s *Store) ExpireStaleTickets(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE tickets SET status = 'expired', resolved_at = ?, version = version + 1
		WHERE status = 'queued' AND expires_at <= ?
	`, formatTimestamp(now), formatTimestamp(now))
	if err != nil {
		return 0, fmt.Errorf("expiring tickets: %w", classify(err))
	}
	return result.RowsAffected()
}

// CreateTicket inserts a queued ticket unless the player already has one.
// The existence check and the insert are a single statement. A player whose
// party holds a live queued ticket gets domain.ErrAlreadyQueued.
func (s *Store) CreateTicket(ctx context.Context, t *domain.Ticket) (*domain.Ticket, bool, error) {
	var stored *domain.Ticket
	var created bool

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		// A stale ticket of this player must not block the new one
		_, err := tx.ExecContext(ctx, `
			UPDATE tickets SET status = 'expired', resolved_at = ?, version = version + 1
			WHERE player_id = ? AND status = 'queued' AND expires_at <= ?
		`, formatTimestamp(t.CreatedAt), t.PlayerID, formatTimestamp(t.CreatedAt))
		if err != nil {
			return fmt.Errorf("expiring player tickets: %w", err)
		}

		partyID, err := queuedPartyOf(ctx, tx, t.PlayerID, t.CreatedAt)
		if err != nil {
			return fmt.Errorf("checking party queue: %w", err)
		}
		if partyID != "" {
			return fmt.Errorf("%w: party %s", domain.ErrAlreadyQueued, partyID)
		}

		result, err := tx.ExecContext(ctx, `
			INSERT INTO tickets (id, player_id, mode, tier, scope, status, created_at, expires_at, version)
			SELECT ?, ?, ?, ?, ?, 'queued', ?, ?, 1
			WHERE NOT EXISTS (SELECT 1 FROM tickets WHERE player_id = ? AND status = 'queued')
		`, t.ID, t.PlayerID, t.Mode, t.Tier, string(t.Scope),
			formatTimestamp(t.CreatedAt), formatTimestamp(t.ExpiresAt), t.PlayerID)
		if err != nil {
			return fmt.Errorf("inserting ticket: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		created = rows == 1

		stored, err = scanTicket(tx.QueryRowContext(ctx, `
			SELECT `+ticketColumns+` FROM tickets
			WHERE player_id = ? AND status = 'queued'
			ORDER BY created_at DESC, seq DESC LIMIT 1
		`, t.PlayerID))
		if err != nil {
			return fmt.Errorf("reading queued ticket: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

// CancelQueuedTicket cancels the player's queued ticket, if any. A ticket
// that is matched between the read and the update is left alone.
func (s *Store) CancelQueuedTicket(ctx context.Context, playerID string, now time.Time) (*domain.Ticket, error) {
	t, err := scanTicket(s.db.QueryRowContext(ctx, `
		SELECT `+ticketColumns+` FROM tickets
		WHERE player_id = ? AND status = 'queued'
		ORDER BY created_at DESC, seq DESC LIMIT 1
	`, playerID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading queued ticket: %w", classify(err))
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE tickets SET status = 'cancelled', resolved_at = ?, version = version + 1
		WHERE id = ? AND version = ? AND status = 'queued'
	`, formatTimestamp(now), t.ID, t.Version)
	if err != nil {
		return nil, fmt.Errorf("cancelling ticket: %w", classify(err))
	}
	if err := expectOneRow(result); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			return nil, nil
		}
		return nil, err
	}

	t.Status = domain.StatusCancelled
	t.Version++
	t.ResolvedAt = &now
	return t, nil
}

// LatestTicket returns the player's newest queued or matched ticket
func (s *Store) LatestTicket(ctx context.Context, playerID string, now time.Time) (*domain.Ticket, error) {
	t, err := scanTicket(s.db.QueryRowContext(ctx, `
		SELECT `+ticketColumns+` FROM tickets
		WHERE player_id = ?
		  AND (status = 'matched' OR (status = 'queued' AND expires_at > ?))
		ORDER BY created_at DESC, seq DESC LIMIT 1
	`, playerID, formatTimestamp(now)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading latest ticket: %w", classify(err))
	}
	return t, nil
}

// GetTicketByID returns a ticket regardless of status
func (s *Store) GetTicketByID(ctx context.Context, id string) (*domain.Ticket, error) {
	return scanTicket(s.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, id))
}

// QueueDepth counts live queued tickets per mode and scope
func (s *Store) QueueDepth(ctx context.Context, now time.Time) (map[domain.Bucket]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT mode, scope, CASE WHEN scope = 'tier_only' THEN tier ELSE 0 END AS t, COUNT(*)
		FROM tickets
		WHERE status = 'queued' AND expires_at > ?
		GROUP BY mode, scope, t
	`, formatTimestamp(now))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	depth := make(map[domain.Bucket]int)
	for rows.Next() {
		var b domain.Bucket
		var scope string
		var count int
		if err := rows.Scan(&b.Mode, &scope, &b.Tier, &count); err != nil {
			return nil, err
		}
		b.Scope = domain.Scope(scope)
		depth[b] = count
	}
	return depth, rows.Err()
}

// WithTicketTx runs fn inside a transaction
func (s *Store) WithTicketTx(ctx context.Context, fn func(tx matchmaking.TicketTx) error) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return fn(&storeTx{tx: tx})
	})
}

// storeTx is the transactional view used by matching attempts
type storeTx struct {
	tx *sql.Tx
}

func (t *storeTx) GetTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	ticket, err := scanTicket(t.tx.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("reading ticket %s: %w", id, err)
	}
	return ticket, nil
}

func (t *storeTx) OldestCandidate(ctx context.Context, own *domain.Ticket, now time.Time) (*domain.Ticket, error) {
	query := `
		SELECT ` + ticketColumns + ` FROM tickets
		WHERE status = 'queued' AND expires_at > ?
		  AND id != ? AND player_id != ?
		  AND mode = ? AND scope = ?`
	args := []any{formatTimestamp(now), own.ID, own.PlayerID, own.Mode, string(own.Scope)}
	if own.Scope == domain.ScopeTierOnly {
		query += ` AND tier = ?`
		args = append(args, own.Tier)
	}
	query += ` ORDER BY created_at ASC, seq ASC LIMIT 1`

	candidate, err := scanTicket(t.tx.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("selecting candidate: %w", err)
	}
	return candidate, nil
}

func (t *storeTx) MarkMatched(ctx context.Context, a, b *domain.Ticket, matchID string, now time.Time) error {
	if err := t.resolveTicket(ctx, a, b, matchID, now); err != nil {
		return err
	}
	return t.resolveTicket(ctx, b, a, matchID, now)
}

func (t *storeTx) resolveTicket(ctx context.Context, ticket, opponent *domain.Ticket, matchID string, now time.Time) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE tickets
		SET status = 'matched', opponent_id = ?, opponent_ticket_id = ?, match_id = ?,
		    resolved_at = ?, version = version + 1
		WHERE id = ? AND version = ? AND status = 'queued'
	`, opponent.PlayerID, opponent.ID, matchID, formatTimestamp(now), ticket.ID, ticket.Version)
	if err != nil {
		return fmt.Errorf("matching ticket %s: %w", ticket.ID, err)
	}
	if err := expectOneRow(result); err != nil {
		return err
	}

	ticket.Status = domain.StatusMatched
	ticket.OpponentID = opponent.PlayerID
	ticket.OpponentTicketID = opponent.ID
	ticket.MatchID = matchID
	ticket.ResolvedAt = &now
	ticket.Version++
	return nil
}
