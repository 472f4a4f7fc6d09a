package orders

import (
	"fmt"
	"github.com/katoapp/agrimarket/internal/access"
)

type Status string

const (
	StatusPending          Status = "pending"
	StatusApproved         Status = "approved"
	StatusRejected         Status = "rejected"
	StatusInProduction     Status = "in_production"
	StatusReadyForDelivery Status = "ready_for_delivery"
	StatusDelivered        Status = "delivered"
	StatusCompleted        Status = "completed"
	StatusCancelled        Status = "cancelled"
)

var statuses = []Status{
	StatusPending, StatusApproved, StatusRejected, StatusInProduction,
	StatusReadyForDelivery, StatusDelivered, StatusCompleted, StatusCancelled,
}

func Statuses() []Status { return append([]Status(nil), statuses...) }

func ParseStatus(s string) (Status, error) {
	for _, st := range statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

// Terminal statuses accept no further transition from anyone.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusCancelled || s == StatusCompleted
}

// ProductionEligible reports whether production stages may be started.
func (s Status) ProductionEligible() bool {
	return s == StatusApproved || s == StatusInProduction
}

// ReleasesStock reports whether entering s returns the reserved quantity.
func (s Status) ReleasesStock() bool {
	return s == StatusCancelled || s == StatusRejected
}

// validNext is keyed by role, then current status. A triple that is not
// present is refused, whether the role or the current status is wrong.
var validNext = map[access.Role]map[Status]map[Status]bool{
	access.RoleCustomer: {
		StatusPending: {StatusCancelled: true},
	},
	access.RolePetani: {
		StatusPending: {StatusApproved: true, StatusRejected: true},
	},
	access.RoleManagement: {
		StatusApproved:         {StatusInProduction: true},
		StatusInProduction:     {StatusReadyForDelivery: true},
		StatusReadyForDelivery: {StatusDelivered: true},
		StatusDelivered:        {StatusCompleted: true},
	},
	access.RoleAdmin: {},
}

func CanTransition(role access.Role, from, to Status) bool {
	return validNext[role][from][to]
}

// TransitionsFrom lists the statuses role may move an order to from the
// given status, in lifecycle order.
func TransitionsFrom(role access.Role, from Status) []Status {
	var out []Status
	for _, to := range statuses {
		if CanTransition(role, from, to) {
			out = append(out, to)
		}
	}
	return out
}
