package matchmaking

import (
	"context"
	"strings"

	"github.com/elliotchance/pie/v2"
	"github.com/ernie/arena-queue/internal/domain"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Reasons reported in PartyClosedEvent
const (
	CloseReasonDisbanded  = "disbanded"
	CloseReasonLeaderLeft = "leader_left"
)

// GetParty returns the party roster
func (p *PartyEngine) GetParty(ctx context.Context, partyID string) (*domain.Party, error) {
	return p.store.GetParty(ctx, partyID)
}

// CreateParty opens a party led by leaderID
func (p *PartyEngine) CreateParty(ctx context.Context, leaderID string) (*domain.Party, error) {
	leaderID = strings.TrimSpace(leaderID)
	if leaderID == "" {
		return nil, domain.ErrInvalidPlayer
	}
	party := &domain.Party{
		ID:        uuid.NewString(),
		LeaderID:  leaderID,
		CreatedAt: p.now(),
	}
	if err := p.store.CreateParty(ctx, party); err != nil {
		return nil, err
	}
	p.log.WithFields(logrus.Fields{"party_id": party.ID, "leader_id": leaderID}).Info("Party created")
	return party, nil
}

// JoinParty adds playerID to the roster. The party's queued ticket, if any,
// is cancelled because its member list no longer matches.
func (p *PartyEngine) JoinParty(ctx context.Context, partyID, playerID string) (*domain.Party, error) {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return nil, domain.ErrInvalidPlayer
	}
	current, err := p.store.GetParty(ctx, partyID)
	if err != nil {
		return nil, err
	}
	if !current.Open() {
		return nil, domain.ErrPartyNotFound
	}
	if pie.Contains(current.Members, playerID) {
		return current, nil
	}

	party, cancelled, err := p.store.AddPartyMember(ctx, partyID, playerID, p.settings.PartyMaxSize, p.now())
	if err != nil {
		return nil, err
	}
	p.logCancelled(partyID, cancelled)
	p.notifier.OnRosterUpdated(ctx, domain.RosterEvent{
		PartyID:  party.ID,
		LeaderID: party.LeaderID,
		Members:  party.Members,
		Joined:   playerID,
	})
	return party, nil
}

// LeaveParty removes playerID from the party. A leader leaving disbands it.
func (p *PartyEngine) LeaveParty(ctx context.Context, partyID, playerID string) (*domain.Party, error) {
	playerID = strings.TrimSpace(playerID)
	current, err := p.store.GetParty(ctx, partyID)
	if err != nil {
		return nil, err
	}
	if !current.Open() {
		return nil, domain.ErrPartyNotFound
	}
	if current.LeaderID == playerID {
		return p.closeParty(ctx, partyID, CloseReasonLeaderLeft)
	}

	party, cancelled, err := p.store.RemovePartyMember(ctx, partyID, playerID, p.now())
	if err != nil {
		return nil, err
	}
	p.logCancelled(partyID, cancelled)
	p.notifier.OnRosterUpdated(ctx, domain.RosterEvent{
		PartyID:  party.ID,
		LeaderID: party.LeaderID,
		Members:  party.Members,
		Left:     playerID,
	})
	return party, nil
}

// DisbandParty closes the party. Leader only.
func (p *PartyEngine) DisbandParty(ctx context.Context, partyID, leaderID string) (*domain.Party, error) {
	if _, err := p.leaderParty(ctx, partyID, strings.TrimSpace(leaderID)); err != nil {
		return nil, err
	}
	return p.closeParty(ctx, partyID, CloseReasonDisbanded)
}

func (p *PartyEngine) closeParty(ctx context.Context, partyID, reason string) (*domain.Party, error) {
	party, cancelled, err := p.store.CloseParty(ctx, partyID, p.now())
	if err != nil {
		return nil, err
	}
	p.logCancelled(partyID, cancelled)
	p.log.WithFields(logrus.Fields{"party_id": partyID, "reason": reason}).Info("Party closed")
	p.notifier.OnPartyClosed(ctx, domain.PartyClosedEvent{
		PartyID: party.ID,
		Members: party.Members,
		Reason:  reason,
	})
	return party, nil
}

func (p *PartyEngine) logCancelled(partyID string, t *domain.PartyTicket) {
	if t != nil {
		p.log.WithFields(logrus.Fields{"party_id": partyID, "ticket_id": t.ID}).Debug("Roster changed, party ticket cancelled")
	}
}
