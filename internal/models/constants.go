package models

const (
	// MaxNotesLength limits free-text booking notes.
	MaxNotesLength = 500

	// DefaultPageSize is used when a list request does not set page_size.
	DefaultPageSize = 20

	// MaxPageSize caps page_size on list requests.
	MaxPageSize = 100

	// MinServiceNameLength and MaxServiceNameLength bound service names.
	MinServiceNameLength = 2
	MaxServiceNameLength = 100

	// MaxServiceDescriptionLength bounds service descriptions.
	MaxServiceDescriptionLength = 500

	// MaxServiceDurationMinutes is the longest estimated duration of a single service (8 hours).
	MaxServiceDurationMinutes = 480

	// NotificationQueueSize is the default capacity of the notifier intake queue.
	NotificationQueueSize = 1000

	// DateLayout is the wire and storage format of booking dates.
	DateLayout = "2006-01-02"
)

// Notification kinds emitted by the booking engine and identity flows.
const (
	NotifyBookingConfirmation = "booking_confirmation"
	NotifyNewBooking          = "new_booking"
	NotifyReadyForDelivery    = "ready_for_delivery"
	NotifyEmailVerification   = "email_verification"
)

// Notification outbox statuses.
const (
	NotificationPending = "pending"
	NotificationSending = "sending"
	NotificationRetry   = "retry"
	NotificationSent    = "sent"
	NotificationFailed  = "failed"
)
