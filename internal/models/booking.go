package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CustomerInfo is the contact data of the booking's customer, joined on read.
type CustomerInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type Booking struct {
	ID          string            `json:"id"`
	CustomerID  string            `json:"customer_id"`
	Customer    CustomerInfo      `json:"customer"`
	BookingDate time.Time         `json:"booking_date"`
	Status      BookingStatus     `json:"status"`
	TotalPrice  decimal.Decimal   `json:"total_price"`
	Notes       string            `json:"notes"`
	Items       []BookingLineItem `json:"services"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	Version     int64             `json:"version"`
}

// BookingLineItem is one priced service inside a booking. Price is the
// catalog price at creation time and does not follow later catalog edits.
type BookingLineItem struct {
	ID          string          `json:"id"`
	BookingID   string          `json:"booking_id"`
	ServiceID   string          `json:"service_id"`
	ServiceName string          `json:"service_name"`
	Price       decimal.Decimal `json:"price"`
	Position    int             `json:"-"`
}

// SumItems returns the sum of line item prices.
func SumItems(items []BookingLineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Price)
	}
	return total
}

// BookingFilter selects bookings for listing. Zero values mean "no constraint".
type BookingFilter struct {
	CustomerID string
	Status     BookingStatus
	DateFrom   time.Time
	DateTo     time.Time
	Page       int
	PageSize   int
}

// Offset returns the row offset for the filter's page.
func (f BookingFilter) Offset() int {
	if f.Page <= 1 || f.PageSize <= 0 {
		return 0
	}
	return (f.Page - 1) * f.PageSize
}
