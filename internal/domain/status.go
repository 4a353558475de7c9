package domain

import (
	"slices"
	"strings"
	"time"
)

// Status is the fulfillment lifecycle of an order.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusConfirmed  Status = "CONFIRMED"
	StatusProcessing Status = "PROCESSING"
	StatusShipped    Status = "SHIPPED"
	StatusDelivered  Status = "DELIVERED"
	StatusCancelled  Status = "CANCELLED"
)

// PaymentStatus is the settlement state of an order's payment.
type PaymentStatus string

const (
	PaymentUnpaid    PaymentStatus = "UNPAID"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
)

var lifecycleTransitions = map[Status][]Status{
	StatusPending:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered, StatusCancelled},
}

// A failed payment may still be settled later on the same intent.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentUnpaid: {PaymentCompleted, PaymentFailed},
	PaymentFailed: {PaymentCompleted},
}

// ParseStatus accepts a lifecycle status in any letter case.
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case StatusPending, StatusConfirmed, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return st, true
	}
	return "", false
}

// Terminal reports whether no lifecycle transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// CanTransition reports whether from → to is an edge of the lifecycle graph.
func CanTransition(from, to Status) bool {
	return slices.Contains(lifecycleTransitions[from], to)
}

// CanTransitionPayment reports whether from → to is a legal payment edge.
func CanTransitionPayment(from, to PaymentStatus) bool {
	return slices.Contains(paymentTransitions[from], to)
}

// TransitionTo moves the order along the lifecycle graph. The order is untouched on error.
func (o *Order) TransitionTo(target Status, now time.Time) error {
	if !CanTransition(o.Status, target) {
		return Newf(ErrIllegalTransition, "cannot move order %s from %s to %s", o.OrderNumber, o.Status, target)
	}
	o.Status = target
	o.UpdatedAt = now.UTC()
	return nil
}

// Cancel moves the order to CANCELLED. The caller releases the reserved stock.
func (o *Order) Cancel(now time.Time) error {
	switch o.Status {
	case StatusDelivered:
		return Newf(ErrAlreadyDelivered, "order %s was delivered and cannot be cancelled", o.OrderNumber)
	case StatusCancelled:
		return Newf(ErrAlreadyCancelled, "order %s is already cancelled", o.OrderNumber)
	}
	return o.TransitionTo(StatusCancelled, now)
}

// ApplyPayment records a payment outcome. Duplicate or stale outcomes (self-loops,
// COMPLETED → FAILED) are ignored and reported as changed=false without error.
func (o *Order) ApplyPayment(target PaymentStatus, now time.Time) bool {
	if !CanTransitionPayment(o.PaymentStatus, target) {
		return false
	}
	o.PaymentStatus = target
	o.UpdatedAt = now.UTC()
	return true
}

// CompletePayment marks the payment COMPLETED and confirms a PENDING order in the same step.
// confirmed reports whether the lifecycle moved to CONFIRMED.
func (o *Order) CompletePayment(now time.Time) (changed, confirmed bool) {
	if !o.ApplyPayment(PaymentCompleted, now) {
		return false, false
	}
	if o.Status == StatusPending {
		o.Status = StatusConfirmed
		return true, true
	}
	return true, false
}
