package api

import (
	"time"

	"bikeservice/internal/domain"
	"bikeservice/internal/models"

	"github.com/shopspring/decimal"
)

type registerRequest struct {
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Name     string      `json:"name"`
	Phone    string      `json:"phone"`
	Role     models.Role `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type verifyEmailRequest struct {
	Token string `json:"token"`
}

type serviceRequest struct {
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Price           decimal.Decimal `json:"price"`
	DurationMinutes int             `json:"estimated_time"`
}

type servicePatchRequest struct {
	Name            *string          `json:"name"`
	Description     *string          `json:"description"`
	Price           *decimal.Decimal `json:"price"`
	DurationMinutes *int             `json:"estimated_time"`
	IsActive        *bool            `json:"is_active"`
}

type createBookingRequest struct {
	ServiceIDs  []string `json:"service_ids"`
	BookingDate string   `json:"booking_date"`
	Notes       string   `json:"notes"`
}

type statusRequest struct {
	Status models.BookingStatus `json:"status"`
}

type serviceResponse struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	Price           string    `json:"price"`
	DurationMinutes int       `json:"estimated_time"`
	DurationDisplay string    `json:"duration_display"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type serviceListResponse struct {
	Services []serviceResponse `json:"services"`
	Total    int               `json:"total"`
}

type lineItemResponse struct {
	ServiceID    string `json:"service_id"`
	ServiceName  string `json:"service_name"`
	ServicePrice string `json:"service_price"`
}

type bookingResponse struct {
	ID            string               `json:"id"`
	CustomerID    string               `json:"customer_id"`
	Customer      models.CustomerInfo  `json:"customer"`
	BookingDate   string               `json:"booking_date"`
	Status        models.BookingStatus `json:"status"`
	StatusDisplay string               `json:"status_display"`
	TotalPrice    string               `json:"total_price"`
	Notes         string               `json:"notes"`
	Services      []lineItemResponse   `json:"services"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
	Version       int64                `json:"version"`
}

type bookingListResponse struct {
	Bookings []bookingResponse `json:"bookings"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}

func toServiceResponse(s *models.Service) serviceResponse {
	return serviceResponse{
		ID:              s.ID,
		Name:            s.Name,
		Description:     s.Description,
		Price:           s.Price.StringFixed(2),
		DurationMinutes: s.DurationMinutes,
		DurationDisplay: s.DurationDisplay(),
		IsActive:        s.IsActive,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

func toServiceList(page *domain.ServicePage) serviceListResponse {
	out := serviceListResponse{Services: make([]serviceResponse, 0, len(page.Services)), Total: page.Total}
	for _, s := range page.Services {
		out.Services = append(out.Services, toServiceResponse(s))
	}
	return out
}

func toBookingResponse(b *models.Booking) bookingResponse {
	items := make([]lineItemResponse, 0, len(b.Items))
	for _, item := range b.Items {
		items = append(items, lineItemResponse{
			ServiceID:    item.ServiceID,
			ServiceName:  item.ServiceName,
			ServicePrice: item.Price.StringFixed(2),
		})
	}
	return bookingResponse{
		ID:            b.ID,
		CustomerID:    b.CustomerID,
		Customer:      b.Customer,
		BookingDate:   b.BookingDate.Format(models.DateLayout),
		Status:        b.Status,
		StatusDisplay: b.Status.Display(),
		TotalPrice:    b.TotalPrice.StringFixed(2),
		Notes:         b.Notes,
		Services:      items,
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
		Version:       b.Version,
	}
}

func toBookingList(page *domain.BookingPage) bookingListResponse {
	out := bookingListResponse{
		Bookings: make([]bookingResponse, 0, len(page.Bookings)),
		Total:    page.Total,
		Page:     page.Page,
		PageSize: page.PageSize,
	}
	for _, b := range page.Bookings {
		out.Bookings = append(out.Bookings, toBookingResponse(b))
	}
	return out
}
