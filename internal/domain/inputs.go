package domain

import (
	"time"

	"bikeservice/internal/models"

	"github.com/shopspring/decimal"
)

type CreateBookingInput struct {
	ServiceIDs  []string
	BookingDate time.Time
	Notes       string
}

// BookingPage is one page of a booking listing.
type BookingPage struct {
	Bookings []*models.Booking `json:"items"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}

// ServicePage is one page of the catalog.
type ServicePage struct {
	Services []*models.Service `json:"services"`
	Total    int               `json:"total"`
}

type ServiceInput struct {
	Name            string
	Description     string
	Price           decimal.Decimal
	DurationMinutes int
}

// ServicePatch holds optional catalog edits; nil fields are left unchanged.
type ServicePatch struct {
	Name            *string
	Description     *string
	Price           *decimal.Decimal
	DurationMinutes *int
	IsActive        *bool
}

type RegisterInput struct {
	Email    string
	Password string
	Name     string
	Phone    string
	Role     models.Role
}

type AuthResult struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresAt   time.Time    `json:"expires_at"`
	User        *models.User `json:"user"`
}
