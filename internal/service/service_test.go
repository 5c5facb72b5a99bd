package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"bikeservice/internal/auth"
	"bikeservice/internal/config"
	"bikeservice/internal/database"
	"bikeservice/internal/domain"
	"bikeservice/internal/events"
	"bikeservice/internal/models"
	"bikeservice/internal/repository"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type sentNotification struct {
	Kind      string
	Recipient string
	Payload   models.NotificationPayload
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *recordingNotifier) Emit(_ context.Context, kind, recipient string, payload models.NotificationPayload) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{Kind: kind, Recipient: recipient, Payload: payload})
}

func (n *recordingNotifier) byKind(kind string) []sentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentNotification
	for _, s := range n.sent {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

// testNow is a fixed instant; bookings for 2030-01-10 onwards are not in the past.
var testNow = time.Date(2030, 1, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	db       *database.DB
	notifier *recordingNotifier
	bus      *events.EventBus
	bookings *BookingService
	catalog  *CatalogService
	users    *UserService
	tokens   *auth.JWTManager
}

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{LoginAttempts: 3, LoginWindowSeconds: 60}
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWith(t, BookingOptions{}, testAuthConfig())
}

func newFixtureWith(t *testing.T, opts BookingOptions, authCfg config.AuthConfig) *fixture {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	if opts.Now == nil {
		opts.Now = func() time.Time { return testNow }
	}

	f := &fixture{
		db:       db,
		notifier: &recordingNotifier{},
		bus:      events.NewEventBus(&logger),
		tokens:   auth.NewJWTManager("test-secret", time.Hour),
	}
	f.bookings = NewBookingService(db, f.notifier, f.bus, opts, &logger)
	f.catalog = NewCatalogService(db, f.bus, &logger)
	f.users = NewUserService(db, auth.NewBcryptHasher(4), f.tokens, repository.NewMemoryThrottleRepository(),
		f.notifier, f.bus, authCfg, &logger)
	return f
}

func (f *fixture) user(t *testing.T, email string, role models.Role) domain.Identity {
	t.Helper()
	u := &models.User{Email: email, PasswordHash: "x", Name: "User " + email, Phone: "5551234567", Role: role, IsVerified: true}
	require.NoError(t, f.db.CreateUser(context.Background(), u))
	return domain.Identity{UserID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role}
}

func (f *fixture) service(t *testing.T, name, price string) *models.Service {
	t.Helper()
	s := &models.Service{Name: name, Price: decimal.RequireFromString(price), DurationMinutes: 60, IsActive: true}
	require.NoError(t, f.db.CreateService(context.Background(), s))
	return s
}

func (f *fixture) book(t *testing.T, actor domain.Identity, services ...*models.Service) *models.Booking {
	t.Helper()
	ids := make([]string, 0, len(services))
	for _, s := range services {
		ids = append(ids, s.ID)
	}
	b, err := f.bookings.CreateBooking(context.Background(), actor, domain.CreateBookingInput{
		ServiceIDs:  ids,
		BookingDate: date("2030-01-15"),
	})
	require.NoError(t, err)
	return b
}

// countEvents counts published events of eventType. Handlers run synchronously.
func (f *fixture) countEvents(eventType string) *int {
	n := 0
	f.bus.Subscribe(eventType, func(_ *events.Event) error {
		n++
		return nil
	})
	return &n
}

func date(s string) time.Time {
	d, err := time.Parse(models.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
