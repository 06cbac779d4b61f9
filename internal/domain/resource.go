package domain

import "time"

type ResourceStatus string

const (
	ResourceStatusActive     ResourceStatus = "active"
	ResourceStatusReclaiming ResourceStatus = "reclaiming"
	ResourceStatusReclaimed  ResourceStatus = "reclaimed"
)

var resourceTransitions = map[ResourceStatus][]ResourceStatus{
	ResourceStatusActive:     {ResourceStatusReclaiming},
	ResourceStatusReclaiming: {ResourceStatusReclaimed},
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s ResourceStatus) CanTransitionTo(next ResourceStatus) bool {
	for _, allowed := range resourceTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CheckResourceTransition returns ErrIllegalTransition when from->to is not in the table.
func CheckResourceTransition(from, to ResourceStatus) error {
	if !from.CanTransitionTo(to) {
		return &TransitionError{Kind: "resource", From: string(from), To: string(to)}
	}
	return nil
}

// ProvisionedResource is a live hosted panel tied to a paid order.
type ProvisionedResource struct {
	ID              string         `json:"id"`
	OrderID         string         `json:"orderId"`
	Status          ResourceStatus `json:"status"`
	ProvisionedAt   time.Time      `json:"provisionedAt"`
	ExpiresAt       time.Time      `json:"expiresAt"`
	ReclaimAttempts int            `json:"reclaimAttempts"`
	LastError       string         `json:"lastError,omitempty"`
}

// Due reports whether the resource should be reclaimed at now.
func (r ProvisionedResource) Due(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Timestamp normalises t to UTC millisecond precision so the value survives
// every storage round trip unchanged.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// ExpiryFor computes the expiry of a term starting at provisionedAt. Both the
// start and the result are normalised with Timestamp.
func ExpiryFor(provisionedAt time.Time, termDays int) (start, expires time.Time) {
	start = Timestamp(provisionedAt)
	return start, start.Add(time.Duration(termDays) * 24 * time.Hour)
}
