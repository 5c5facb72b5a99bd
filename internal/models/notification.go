package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Notification is an outbox row awaiting delivery.
type Notification struct {
	ID            int64
	Kind          string
	Recipient     string
	Payload       string
	Status        string
	Attempts      int
	LastError     string
	NextAttemptAt time.Time
	CreatedAt     time.Time
	SentAt        *time.Time
}

// NotificationLine is one service in a booking summary.
type NotificationLine struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// NotificationPayload carries everything a message template needs.
type NotificationPayload struct {
	BookingID         string             `json:"booking_id,omitempty"`
	BookingDate       string             `json:"booking_date,omitempty"`
	CustomerName      string             `json:"customer_name,omitempty"`
	CustomerEmail     string             `json:"customer_email,omitempty"`
	CustomerPhone     string             `json:"customer_phone,omitempty"`
	Lines             []NotificationLine `json:"lines,omitempty"`
	Total             decimal.Decimal    `json:"total"`
	Notes             string             `json:"notes,omitempty"`
	RecipientName     string             `json:"recipient_name,omitempty"`
	VerificationToken string             `json:"verification_token,omitempty"`
}

// BookingPayload builds the notification payload for a booking.
func BookingPayload(b *Booking) NotificationPayload {
	lines := make([]NotificationLine, 0, len(b.Items))
	for _, item := range b.Items {
		lines = append(lines, NotificationLine{Name: item.ServiceName, Price: item.Price})
	}
	return NotificationPayload{
		BookingID:     b.ID,
		BookingDate:   b.BookingDate.Format(DateLayout),
		CustomerName:  b.Customer.Name,
		CustomerEmail: b.Customer.Email,
		CustomerPhone: b.Customer.Phone,
		Lines:         lines,
		Total:         b.TotalPrice,
		Notes:         b.Notes,
	}
}
