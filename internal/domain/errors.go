package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrOrderNotFound     = errors.New("order not found")
	ErrOrderExists       = errors.New("order already exists")
	ErrResourceNotFound  = errors.New("resource not found")
	ErrResourceExists    = errors.New("resource already exists for order")
	ErrResourceGone      = errors.New("resource not found upstream")
	ErrStaleStatus       = errors.New("status changed concurrently")
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrSweepInProgress   = errors.New("sweep already in progress")
	ErrInvalidID         = errors.New("invalid id")
)

// ValidationError names the request field that was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// TransitionError is returned when a status change is not in the transition table.
type TransitionError struct {
	Kind string
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s status %s -> %s not allowed", e.Kind, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrIllegalTransition }

// GatewayError wraps a payment gateway failure.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string { return fmt.Sprintf("gateway %s: %v", e.Op, e.Err) }
func (e *GatewayError) Unwrap() error { return e.Err }

// ProvisioningError wraps a failed create call for an order.
type ProvisioningError struct {
	OrderID string
	Err     error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provision order %s: %v", e.OrderID, e.Err)
}
func (e *ProvisioningError) Unwrap() error { return e.Err }

// ReclaimError wraps a failed delete call for a resource.
type ReclaimError struct {
	ResourceID string
	Err        error
}

func (e *ReclaimError) Error() string {
	return fmt.Sprintf("reclaim resource %s: %v", e.ResourceID, e.Err)
}
func (e *ReclaimError) Unwrap() error { return e.Err }

// NotificationError wraps a failed delivery. It never changes order state.
type NotificationError struct {
	To  string
	Err error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notify %s: %v", e.To, e.Err)
}
func (e *NotificationError) Unwrap() error { return e.Err }
