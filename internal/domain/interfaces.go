package domain

import (
	"context"
	"time"

	"bikeservice/internal/models"
)

// Identity is the authenticated actor of a request.
type Identity struct {
	UserID string
	Email  string
	Name   string
	Role   models.Role
}

type BookingRepository interface {
	CreateBookingWithItems(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, int, error)
	UpdateBookingStatusWithVersion(ctx context.Context, id string, version int64, status models.BookingStatus) error
	DeleteBooking(ctx context.Context, id string) error
}

type CatalogRepository interface {
	CreateService(ctx context.Context, service *models.Service) error
	UpdateService(ctx context.Context, service *models.Service) error
	DeactivateService(ctx context.Context, id string) error
	GetServiceByID(ctx context.Context, id string) (*models.Service, error)
	ListServices(ctx context.Context, activeOnly bool, offset, limit int) ([]*models.Service, error)
	CountServices(ctx context.Context, activeOnly bool) (int, error)
	FindActiveServicesByIDs(ctx context.Context, ids []string) ([]*models.Service, error)
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByVerificationToken(ctx context.Context, token string) (*models.User, error)
	UpdateUserVerification(ctx context.Context, id string, verified bool, token string) error
	ListUsersByRole(ctx context.Context, role models.Role) ([]*models.User, error)
	DeleteUser(ctx context.Context, id string) error
}

type Repository interface {
	BookingRepository
	CatalogRepository
	UserRepository
}

// NotificationStore is the durable outbox behind the notifier.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) (int64, error)
	GetNotification(ctx context.Context, id int64) (*models.Notification, error)
	ClaimNotification(ctx context.Context, id int64, staleBefore time.Time) (bool, error)
	GetDueNotifications(ctx context.Context, limit int, staleBefore time.Time) ([]*models.Notification, error)
	UpdateNotificationStatus(ctx context.Context, id int64, status, lastError string, nextAttemptAt *time.Time) error
}

type ThrottleRepository interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	ResetRateLimit(ctx context.Context, key string) error
}

// Notifier accepts lifecycle events for asynchronous delivery. It never
// reports failures to the caller.
type Notifier interface {
	Emit(ctx context.Context, kind, recipient string, payload models.NotificationPayload)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) bool
}

type TokenManager interface {
	Issue(user *models.User) (string, time.Time, error)
	Parse(token string) (*TokenClaims, error)
}

// TokenClaims is the verified content of an access token.
type TokenClaims struct {
	UserID    string
	Email     string
	Role      models.Role
	ExpiresAt time.Time
}

type BookingService interface {
	CreateBooking(ctx context.Context, actor Identity, input CreateBookingInput) (*models.Booking, error)
	GetBooking(ctx context.Context, actor Identity, id string) (*models.Booking, error)
	ListBookings(ctx context.Context, actor Identity, filter models.BookingFilter) (*BookingPage, error)
	ExportBookings(ctx context.Context, actor Identity, filter models.BookingFilter) ([]*models.Booking, error)
	UpdateStatus(ctx context.Context, actor Identity, id string, target models.BookingStatus) (*models.Booking, error)
	CancelBooking(ctx context.Context, actor Identity, id string) error
}

type CatalogService interface {
	ListServices(ctx context.Context, activeOnly bool, offset, limit int) (*ServicePage, error)
	GetService(ctx context.Context, id string) (*models.Service, error)
	CreateService(ctx context.Context, actor Identity, input ServiceInput) (*models.Service, error)
	UpdateService(ctx context.Context, actor Identity, id string, patch ServicePatch) (*models.Service, error)
	DeactivateService(ctx context.Context, actor Identity, id string) error
}

type UserService interface {
	Register(ctx context.Context, input RegisterInput) (*AuthResult, error)
	Login(ctx context.Context, email, password string) (*AuthResult, error)
	Authenticate(ctx context.Context, token string) (Identity, error)
	Me(ctx context.Context, actor Identity) (*models.User, error)
	VerifyEmail(ctx context.Context, token string) (*models.User, error)
	ResendVerification(ctx context.Context, actor Identity) error
}
