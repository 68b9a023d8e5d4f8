package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
)

const (
	maxModeLength = 32
	maxTier       = 1000
)

// queueRequest is the body of both enqueue endpoints. Either field may be
// omitted; an empty body queues for the default mode at tier 0.
type queueRequest struct {
	Mode string `json:"mode"`
	Tier int    `json:"tier"`
}

// decodeQueueRequest reads an optional queue body
func decodeQueueRequest(req *http.Request) (queueRequest, error) {
	var body queueRequest
	if req.Body == nil {
		return body, nil
	}
	err := json.NewDecoder(io.LimitReader(req.Body, 4096)).Decode(&body)
	if err != nil && !errors.Is(err, io.EOF) {
		return body, errors.New("invalid request body")
	}
	if !validateMode(body.Mode) {
		return body, errors.New("invalid mode")
	}
	if !validateTier(body.Tier) {
		return body, errors.New("invalid tier")
	}
	return body, nil
}

// validateMode accepts blank (default mode) or a short queue name of
// letters, digits, dash and underscore
func validateMode(mode string) bool {
	mode = strings.TrimSpace(mode)
	if len(mode) > maxModeLength {
		return false
	}
	for _, c := range mode {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}

// validateTier checks a tier is within range
func validateTier(tier int) bool {
	return tier >= 0 && tier <= maxTier
}
