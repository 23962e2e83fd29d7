package signal

import (
	"fmt"
	"strings"

	"github.com/geocoder89/signalhub/internal/apperr"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	default:
		return false
	}
}

func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", fmt.Errorf("%w: status must be one of pending, approved, rejected", apperr.ErrValidation)
	}
	return s, nil
}

// approved and rejected are terminal until a reversal requirement exists.
var transitions = map[Status][]Status{
	StatusPending: {StatusApproved, StatusRejected},
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s Status) Reviewed() bool {
	return s == StatusApproved || s == StatusRejected
}
