package models

import "fmt"

// BookingStatus is the workflow state of a booking.
type BookingStatus string

const (
	StatusPending          BookingStatus = "pending"
	StatusConfirmed        BookingStatus = "confirmed"
	StatusInProgress       BookingStatus = "in_progress"
	StatusReadyForDelivery BookingStatus = "ready_for_delivery"
	StatusCompleted        BookingStatus = "completed"
	StatusCancelled        BookingStatus = "cancelled"
)

// nextStatuses is the linear workflow. It is consulted only when strict
// sequencing is enabled; owners may otherwise jump between non-terminal states.
var nextStatuses = map[BookingStatus][]BookingStatus{
	StatusPending:          {StatusConfirmed, StatusCancelled},
	StatusConfirmed:        {StatusInProgress, StatusCancelled},
	StatusInProgress:       {StatusReadyForDelivery, StatusCancelled},
	StatusReadyForDelivery: {StatusCompleted, StatusCancelled},
	StatusCompleted:        {},
	StatusCancelled:        {},
}

var statusLabels = map[BookingStatus]string{
	StatusPending:          "Pending",
	StatusConfirmed:        "Confirmed",
	StatusInProgress:       "In Progress",
	StatusReadyForDelivery: "Ready for Delivery",
	StatusCompleted:        "Completed",
	StatusCancelled:        "Cancelled",
}

// IsValid reports whether s is one of the known statuses.
func (s BookingStatus) IsValid() bool {
	_, ok := nextStatuses[s]
	return ok
}

// IsTerminal reports whether no further transition is defined from s.
func (s BookingStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// IsTransitionTarget reports whether s may be requested as a new status.
// Pending is only ever an initial status.
func (s BookingStatus) IsTransitionTarget() bool {
	return s.IsValid() && s != StatusPending
}

// CustomerCancellable reports whether a customer may still cancel a booking in s.
func (s BookingStatus) CustomerCancellable() bool {
	return s == StatusPending || s == StatusConfirmed
}

// CanAdvanceTo reports whether target directly follows s in the linear workflow.
// Re-affirming the current status is always allowed for non-terminal states.
func (s BookingStatus) CanAdvanceTo(target BookingStatus) bool {
	if s == target {
		return !s.IsTerminal()
	}
	for _, next := range nextStatuses[s] {
		if next == target {
			return true
		}
	}
	return false
}

// Display returns a human-readable label.
func (s BookingStatus) Display() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return string(s)
}

func (s BookingStatus) String() string {
	return string(s)
}

// ParseBookingStatus converts a raw value into a BookingStatus.
func ParseBookingStatus(raw string) (BookingStatus, error) {
	status := BookingStatus(raw)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid booking status: %q", raw)
	}
	return status, nil
}
