package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ernie/arena-queue/internal/domain"
	"github.com/ernie/arena-queue/internal/matchmaking"
)

var _ matchmaking.PartyDirectory = (*Store)(nil)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// GetParty returns a party with its members in join order
func (s *Store) GetParty(ctx context.Context, partyID string) (*domain.Party, error) {
	p, err := loadParty(ctx, s.db, partyID)
	if err != nil {
		return nil, classify(err)
	}
	return p, nil
}

func loadParty(ctx context.Context, q querier, partyID string) (*domain.Party, error) {
	var p domain.Party
	var createdAt string
	var closedAt sql.NullString

	err := q.QueryRowContext(ctx, `
		SELECT id, leader_id, created_at, closed_at FROM parties WHERE id = ?
	`, partyID).Scan(&p.ID, &p.LeaderID, &createdAt, &closedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrPartyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading party: %w", err)
	}
	if p.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, err
	}
	if p.ClosedAt, err = scanNullTimestamp(closedAt); err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, `
		SELECT player_id FROM party_members WHERE party_id = ? ORDER BY position
	`, partyID)
	if err != nil {
		return nil, fmt.Errorf("reading party members: %w", err)
	}
	defer rows.Close()

	p.Members = []string{}
	for rows.Next() {
		var playerID string
		if err := rows.Scan(&playerID); err != nil {
			return nil, err
		}
		p.Members = append(p.Members, playerID)
	}
	return &p, rows.Err()
}

// openPartyOf returns the id of the open party the player belongs to, or ""
func openPartyOf(ctx context.Context, q querier, playerID string) (string, error) {
	var partyID string
	err := q.QueryRowContext(ctx, `
		SELECT m.party_id FROM party_members m
		JOIN parties p ON p.id = m.party_id
		WHERE m.player_id = ? AND p.closed_at IS NULL
		LIMIT 1
	`, playerID).Scan(&partyID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return partyID, err
}

// CreateParty stores a new party with its leader as the only member
func (s *Store) CreateParty(ctx context.Context, p *domain.Party) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		existing, err := openPartyOf(ctx, tx, p.LeaderID)
		if err != nil {
			return fmt.Errorf("checking membership: %w", err)
		}
		if existing != "" {
			return domain.ErrAlreadyInParty
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO parties (id, leader_id, created_at) VALUES (?, ?, ?)
		`, p.ID, p.LeaderID, formatTimestamp(p.CreatedAt)); err != nil {
			return fmt.Errorf("inserting party: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO party_members (party_id, player_id, position, joined_at) VALUES (?, ?, 0, ?)
		`, p.ID, p.LeaderID, formatTimestamp(p.CreatedAt)); err != nil {
			return fmt.Errorf("inserting leader: %w", err)
		}
		p.Members = []string{p.LeaderID}
		return nil
	})
}

// AddPartyMember appends playerID to the roster and, in the same
// transaction, cancels the party's queued ticket. Joining a party the player
// is already in is a no-op.
func (s *Store) AddPartyMember(ctx context.Context, partyID, playerID string, maxSize int, now time.Time) (*domain.Party, *domain.PartyTicket, error) {
	var party *domain.Party
	var cancelled *domain.PartyTicket
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		p, err := loadParty(ctx, tx, partyID)
		if err != nil {
			return err
		}
		if !p.Open() {
			return domain.ErrPartyNotFound
		}

		existing, err := openPartyOf(ctx, tx, playerID)
		if err != nil {
			return fmt.Errorf("checking membership: %w", err)
		}
		if existing == partyID {
			party = p
			return nil
		}
		if existing != "" {
			return domain.ErrAlreadyInParty
		}
		if maxSize > 0 && len(p.Members) >= maxSize {
			return domain.ErrPartyFull
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO party_members (party_id, player_id, position, joined_at)
			SELECT ?, ?, COALESCE(MAX(position), -1) + 1, ? FROM party_members WHERE party_id = ?
		`, partyID, playerID, formatTimestamp(now), partyID); err != nil {
			return fmt.Errorf("inserting member: %w", err)
		}
		p.Members = append(p.Members, playerID)
		party = p

		cancelled, err = cancelQueuedPartyTicket(ctx, tx, partyID, now)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return party, cancelled, nil
}

// RemovePartyMember drops playerID from an open party's roster and cancels
// the party's queued ticket in the same transaction
func (s *Store) RemovePartyMember(ctx context.Context, partyID, playerID string, now time.Time) (*domain.Party, *domain.PartyTicket, error) {
	var party *domain.Party
	var cancelled *domain.PartyTicket
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		p, err := loadParty(ctx, tx, partyID)
		if err != nil {
			return err
		}
		if !p.Open() {
			return domain.ErrPartyNotFound
		}

		result, err := tx.ExecContext(ctx, `
			DELETE FROM party_members WHERE party_id = ? AND player_id = ?
		`, partyID, playerID)
		if err != nil {
			return fmt.Errorf("removing member: %w", err)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return domain.ErrNotPartyMember
		}

		remaining := p.Members[:0]
		for _, m := range p.Members {
			if m != playerID {
				remaining = append(remaining, m)
			}
		}
		p.Members = remaining
		party = p

		cancelled, err = cancelQueuedPartyTicket(ctx, tx, partyID, now)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return party, cancelled, nil
}

// CloseParty marks the party closed and cancels its queued ticket. The
// roster is kept for history and returned so callers can notify the former
// members.
func (s *Store) CloseParty(ctx context.Context, partyID string, now time.Time) (*domain.Party, *domain.PartyTicket, error) {
	var party *domain.Party
	var cancelled *domain.PartyTicket
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		p, err := loadParty(ctx, tx, partyID)
		if err != nil {
			return err
		}
		if !p.Open() {
			return domain.ErrPartyNotFound
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE parties SET closed_at = ? WHERE id = ? AND closed_at IS NULL
		`, formatTimestamp(now), partyID); err != nil {
			return fmt.Errorf("closing party: %w", err)
		}
		p.ClosedAt = &now
		party = p

		cancelled, err = cancelQueuedPartyTicket(ctx, tx, partyID, now)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return party, cancelled, nil
}
