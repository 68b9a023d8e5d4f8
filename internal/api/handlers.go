package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/elliotchance/pie/v2"
	"github.com/ernie/arena-queue/internal/domain"
)

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeEngineError maps engine errors onto HTTP statuses. Anything that is
// not a known validation error is a server fault.
func (r *Router) writeEngineError(w http.ResponseWriter, req *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidPlayer):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotPartyLeader), errors.Is(err, domain.ErrNotPartyMember):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrPartyNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrAlreadyInParty), errors.Is(err, domain.ErrPartyFull),
		errors.Is(err, domain.ErrAlreadyQueued):
		writeError(w, http.StatusConflict, err.Error())
	default:
		r.log.WithError(err).
			WithField("player_id", claimsFrom(req).PlayerID).
			Errorf("%s %s failed", req.Method, req.URL.Path)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// outcomeStatus is 403 for a denied enqueue and 200 otherwise
func outcomeStatus(outcome domain.Outcome) int {
	if outcome == domain.OutcomeForbidden {
		return http.StatusForbidden
	}
	return http.StatusOK
}

// handleEnqueue queues the caller
func (r *Router) handleEnqueue(w http.ResponseWriter, req *http.Request) {
	body, err := decodeQueueRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := r.engine.Enqueue(req.Context(), claimsFrom(req).PlayerID, body.Mode, body.Tier)
	if err != nil {
		r.writeEngineError(w, req, err)
		return
	}
	writeJSON(w, outcomeStatus(res.Outcome), res)
}

// handleQueueStatus reports the caller's current ticket
func (r *Router) handleQueueStatus(w http.ResponseWriter, req *http.Request) {
	res, err := r.engine.GetStatus(req.Context(), claimsFrom(req).PlayerID)
	if err != nil {
		r.writeEngineError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleCancel withdraws the caller's queued ticket
func (r *Router) handleCancel(w http.ResponseWriter, req *http.Request) {
	cancelled, err := r.engine.Cancel(req.Context(), claimsFrom(req).PlayerID)
	if err != nil {
		r.writeEngineError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
}

// handleCreateParty opens a party led by the caller
func (r *Router) handleCreateParty(w http.ResponseWriter, req *http.Request) {
	party, err := r.parties.CreateParty(req.Context(), claimsFrom(req).PlayerID)
	if err != nil {
		r.writeEngineError(w, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, party)
}

// memberParty loads a party the caller belongs to. Non-members get a 404 so
// party ids cannot be probed.
func (r *Router) memberParty(w http.ResponseWriter, req *http.Request) (*domain.Party, bool) {
	party, err := r.parties.GetParty(req.Context(), req.PathValue("id"))
	if err == nil && !pie.Contains(party.Members, claimsFrom(req).PlayerID) {
		err = domain.ErrPartyNotFound
	}
	if err != nil {
		r.writeEngineError(w, req, err)
		return nil, false
	}
	return party, true
}

// handleGetParty returns the roster of one of the caller's parties
func (r *Router) handleGetParty(w http.ResponseWriter, req *http.Request) {
	party, ok := r.memberParty(w, req)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, party)
}

// handleDisbandParty closes the party; leader only
func (r *Router) handleDisbandParty(w http.ResponseWriter, req *http.Request) {
	party, err := r.parties.DisbandParty(req.Context(), req.PathValue("id"), claimsFrom(req).PlayerID)
	if err != nil {
		r.writeEngineError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, party)
}

// handleJoinParty adds the caller to the party
func (r *Router) handleJoinParty(w http.ResponseWriter, req *http.Request) {
	party, err := r.parties.JoinParty(req.Context(), req.PathValue("id"), claimsFrom(req).PlayerID)
	if err != nil {
		r.writeEngineError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, party)
}

// handleLeaveParty removes the caller. A leader leaving closes the party.
func (r *Router) handleLeaveParty(w http.ResponseWriter, req *http.Request) {
	party, err := r.parties.LeaveParty(req.Context(), req.PathValue("id"), claimsFrom(req).PlayerID)
	if err != nil {
		r.writeEngineError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, party)
}

// handleEnqueueParty queues the caller's party; leader only
func (r *Router) handleEnqueueParty(w http.ResponseWriter, req *http.Request) {
	body, err := decodeQueueRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := r.parties.EnqueueParty(req.Context(), req.PathValue("id"), claimsFrom(req).PlayerID, body.Mode, body.Tier)
	if err != nil {
		r.writeEngineError(w, req, err)
		return
	}
	writeJSON(w, outcomeStatus(res.Outcome), res)
}

// handlePartyQueueStatus reports the party's ticket to any member
func (r *Router) handlePartyQueueStatus(w http.ResponseWriter, req *http.Request) {
	party, ok := r.memberParty(w, req)
	if !ok {
		return
	}
	res, err := r.parties.GetPartyStatus(req.Context(), party.ID)
	if err != nil {
		r.writeEngineError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleCancelPartyQueue withdraws the party's ticket; leader only
func (r *Router) handleCancelPartyQueue(w http.ResponseWriter, req *http.Request) {
	cancelled, err := r.parties.CancelPartyQueue(req.Context(), req.PathValue("id"), claimsFrom(req).PlayerID)
	if err != nil {
		r.writeEngineError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
}

// QueueDepthEntry is one bucket's live ticket count
type QueueDepthEntry struct {
	Mode    string       `json:"mode"`
	Scope   domain.Scope `json:"scope"`
	Tier    int          `json:"tier"`
	Waiting int          `json:"waiting"`
}

// handleQueueDepth lists live solo tickets per bucket
func (r *Router) handleQueueDepth(w http.ResponseWriter, req *http.Request) {
	depth, err := r.store.QueueDepth(req.Context(), time.Now())
	if err != nil {
		r.writeEngineError(w, req, err)
		return
	}
	entries := make([]QueueDepthEntry, 0, len(depth))
	for b, n := range depth {
		entries = append(entries, QueueDepthEntry{Mode: b.Mode, Scope: b.Scope, Tier: b.Tier, Waiting: n})
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Mode != b.Mode {
			return a.Mode < b.Mode
		}
		if a.Scope != b.Scope {
			return a.Scope < b.Scope
		}
		return a.Tier < b.Tier
	})
	writeJSON(w, http.StatusOK, entries)
}

// handleSweep expires stale tickets now instead of waiting for the reaper
func (r *Router) handleSweep(w http.ResponseWriter, req *http.Request) {
	solo, err := r.engine.SweepExpired(req.Context())
	if err != nil {
		r.writeEngineError(w, req, err)
		return
	}
	party, err := r.parties.SweepExpired(req.Context())
	if err != nil {
		r.writeEngineError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"tickets": solo, "party_tickets": party})
}

// handleHealth reports whether the database answers
func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	if r.store != nil {
		if err := r.store.Ping(req.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"clients": r.wsHub.ClientCount(),
	})
}
