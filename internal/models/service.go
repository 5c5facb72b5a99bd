package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Service is a catalog entry that can be booked.
type Service struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Price           decimal.Decimal `json:"price"`
	DurationMinutes int             `json:"estimated_time"`
	IsActive        bool            `json:"is_active"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// DurationDisplay renders the estimated duration as "1h 30m", "2h" or "45m".
func (s *Service) DurationDisplay() string {
	hours := s.DurationMinutes / 60
	minutes := s.DurationMinutes % 60
	switch {
	case hours > 0 && minutes > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case hours > 0:
		return fmt.Sprintf("%dh", hours)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}
