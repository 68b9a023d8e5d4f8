package domain

import "errors"

var (
	// ErrVersionConflict means a conditional update lost to a concurrent
	// writer. Callers treat it as "no match" for the current attempt.
	ErrVersionConflict = errors.New("ticket modified concurrently")

	ErrInvalidPlayer  = errors.New("player id is required")
	ErrPartyNotFound  = errors.New("party not found")
	ErrNotPartyLeader = errors.New("only the party leader can do that")
	ErrNotPartyMember = errors.New("player is not a member of the party")
	ErrAlreadyInParty = errors.New("player already belongs to a party")
	ErrPartyFull      = errors.New("party is full")

	// ErrAlreadyQueued means the player already waits in the other queue:
	// solo while their party is queued, or in a party while queued solo
	ErrAlreadyQueued = errors.New("player is already queued elsewhere")
)
