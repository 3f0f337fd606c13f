package status

import (
	"errors"
	"fmt"
	"strings"
)

// Status is the gateway-independent payment status.
type Status string

const (
	Pending    Status = "PENDING"
	Processing Status = "PROCESSING"
	Paid       Status = "PAID"
	Expired    Status = "EXPIRED"
	Failed     Status = "FAILED"
	Refund     Status = "REFUND"
	Chargeback Status = "CHARGEBACK"
)

var ErrUnknownStatus = errors.New("unknown payment status")

// transitions lists every legal edge. A delayed or duplicated gateway callback
// asking for anything else is rejected so a payment can never move backward.
var transitions = map[Status][]Status{
	Pending:    {Processing, Paid, Expired, Failed},
	Processing: {Paid, Expired, Failed},
	Paid:       {Refund, Chargeback},
}

func All() []Status {
	return []Status{Pending, Processing, Paid, Expired, Failed, Refund, Chargeback}
}

func Parse(raw string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	switch s {
	case Pending, Processing, Paid, Expired, Failed, Refund, Chargeback:
		return s, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
	}
}

// CanTransition reports whether moving from one status to another is legal.
// A no-op (from == to) is not a legal transition.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the polling scheduler should stop watching a
// payment in this status. PAID is terminal for polling even though it may
// still move to REFUND or CHARGEBACK through later gateway events.
func IsTerminal(s Status) bool {
	switch s {
	case Paid, Expired, Failed, Refund, Chargeback:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	return string(s)
}
