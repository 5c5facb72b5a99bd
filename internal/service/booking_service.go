package service

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"bikeservice/internal/access"
	"bikeservice/internal/config"
	"bikeservice/internal/domain"
	"bikeservice/internal/events"
	"bikeservice/internal/models"

	"github.com/rs/zerolog"
)

// BookingOptions tunes validation and listing of the booking engine.
type BookingOptions struct {
	NotesMaxLength  int
	DefaultPageSize int
	MaxPageSize     int
	// StrictTransitions limits owner transitions to the next workflow step.
	StrictTransitions bool
	// Location decides which calendar day is "today".
	Location *time.Location
	Now      func() time.Time
}

// BookingOptionsFromConfig maps the booking config section to options.
func BookingOptionsFromConfig(cfg config.BookingConfig) (BookingOptions, error) {
	loc, err := cfg.Location()
	if err != nil {
		return BookingOptions{}, fmt.Errorf("invalid booking timezone: %w", err)
	}
	return BookingOptions{
		NotesMaxLength:    cfg.NotesMaxLength,
		DefaultPageSize:   cfg.DefaultPageSize,
		MaxPageSize:       cfg.MaxPageSize,
		StrictTransitions: cfg.StrictTransitions,
		Location:          loc,
	}, nil
}

type BookingService struct {
	repo     domain.Repository
	notifier domain.Notifier
	eventBus domain.EventPublisher
	opts     BookingOptions
	logger   *zerolog.Logger
}

func NewBookingService(repo domain.Repository, notifier domain.Notifier, eventBus domain.EventPublisher, opts BookingOptions, logger *zerolog.Logger) *BookingService {
	if opts.NotesMaxLength <= 0 {
		opts.NotesMaxLength = models.MaxNotesLength
	}
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = models.DefaultPageSize
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = models.MaxPageSize
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &BookingService{
		repo:     repo,
		notifier: notifier,
		eventBus: eventBus,
		opts:     opts,
		logger:   logger,
	}
}

// CreateBooking prices the requested services at their current catalog price
// and stores the booking with its line items in one unit of work.
func (s *BookingService) CreateBooking(ctx context.Context, actor domain.Identity, input domain.CreateBookingInput) (*models.Booking, error) {
	if !access.CanCreate(actor.Role) {
		return nil, domain.Forbiddenf("only customers can create bookings")
	}
	if len(input.ServiceIDs) == 0 {
		return nil, domain.Validationf("at least one service is required")
	}
	if utf8.RuneCountInString(input.Notes) > s.opts.NotesMaxLength {
		return nil, domain.Validationf("notes must be at most %d characters", s.opts.NotesMaxLength)
	}

	bookingDate := dateOnly(input.BookingDate)
	if bookingDate.Before(s.today()) {
		return nil, domain.Validationf("booking date cannot be in the past")
	}

	services, err := s.repo.FindActiveServicesByIDs(ctx, input.ServiceIDs)
	if err != nil {
		return nil, err
	}
	if len(services) != len(input.ServiceIDs) {
		return nil, domain.Validationf("one or more services are invalid or inactive")
	}

	byID := make(map[string]*models.Service, len(services))
	for _, svc := range services {
		byID[svc.ID] = svc
	}
	items := make([]models.BookingLineItem, 0, len(input.ServiceIDs))
	for _, id := range input.ServiceIDs {
		svc, ok := byID[id]
		if !ok {
			return nil, domain.Validationf("one or more services are invalid or inactive")
		}
		items = append(items, models.BookingLineItem{
			ServiceID:   svc.ID,
			ServiceName: svc.Name,
			Price:       svc.Price,
		})
	}

	booking := &models.Booking{
		CustomerID:  actor.UserID,
		BookingDate: bookingDate,
		Status:      models.StatusPending,
		TotalPrice:  models.SumItems(items),
		Notes:       input.Notes,
		Items:       items,
	}
	if err := s.repo.CreateBookingWithItems(ctx, booking); err != nil {
		return nil, err
	}

	created, err := s.repo.GetBooking(ctx, booking.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("booking_id", created.ID).
		Str("customer_id", created.CustomerID).
		Str("total", created.TotalPrice.StringFixed(2)).
		Int("services", len(created.Items)).
		Msg("Booking created")

	s.notifyCreated(ctx, created)
	s.publishEvent(events.EventBookingCreated, created, "", actor)

	return created, nil
}

func (s *BookingService) GetBooking(ctx context.Context, actor domain.Identity, id string) (*models.Booking, error) {
	booking, err := s.loadBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := access.CheckView(actor, booking); err != nil {
		return nil, err
	}
	return booking, nil
}

// ListBookings returns one page of bookings visible to actor. Customers are
// always restricted to their own bookings.
func (s *BookingService) ListBookings(ctx context.Context, actor domain.Identity, filter models.BookingFilter) (*domain.BookingPage, error) {
	filter, err := s.scopeFilter(actor, filter)
	if err != nil {
		return nil, err
	}

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = s.opts.DefaultPageSize
	}
	if filter.PageSize > s.opts.MaxPageSize {
		filter.PageSize = s.opts.MaxPageSize
	}

	bookings, total, err := s.repo.ListBookings(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &domain.BookingPage{
		Bookings: bookings,
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}, nil
}

// ExportBookings returns every booking matching filter, unpaged.
func (s *BookingService) ExportBookings(ctx context.Context, actor domain.Identity, filter models.BookingFilter) ([]*models.Booking, error) {
	if !access.CanListAll(actor.Role) {
		return nil, domain.Forbiddenf("only owners can export bookings")
	}
	filter, err := s.scopeFilter(actor, filter)
	if err != nil {
		return nil, err
	}
	filter.Page = 0
	filter.PageSize = 0

	bookings, _, err := s.repo.ListBookings(ctx, filter)
	return bookings, err
}

// UpdateStatus moves a booking to target on behalf of an owner.
func (s *BookingService) UpdateStatus(ctx context.Context, actor domain.Identity, id string, target models.BookingStatus) (*models.Booking, error) {
	if !access.CanMutateStatus(actor.Role) {
		return nil, domain.Forbiddenf("only owners can update booking status")
	}
	if !target.IsTransitionTarget() {
		return nil, domain.Validationf("invalid target status %q", target)
	}

	booking, err := s.loadBooking(ctx, id)
	if err != nil {
		return nil, err
	}

	previous := booking.Status
	if previous.IsTerminal() {
		return nil, domain.InvalidStatef("cannot change status of a %s booking", previous)
	}
	if s.opts.StrictTransitions && !previous.CanAdvanceTo(target) {
		return nil, domain.InvalidStatef("cannot move booking from %s to %s", previous, target)
	}

	if err := s.repo.UpdateBookingStatusWithVersion(ctx, booking.ID, booking.Version, target); err != nil {
		return nil, s.mapNotFound(err)
	}

	updated, err := s.loadBooking(ctx, id)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("booking_id", updated.ID).
		Str("from", string(previous)).
		Str("to", string(updated.Status)).
		Str("by", actor.UserID).
		Msg("Booking status updated")

	if target == models.StatusReadyForDelivery && previous != models.StatusReadyForDelivery {
		s.notify(ctx, models.NotifyReadyForDelivery, updated.Customer.Email, updated, updated.Customer.Name)
	}
	s.publishEvent(events.EventBookingStatusChanged, updated, previous, actor)

	return updated, nil
}

// CancelBooking moves a booking to cancelled. No notification is sent.
func (s *BookingService) CancelBooking(ctx context.Context, actor domain.Identity, id string) error {
	booking, err := s.loadBooking(ctx, id)
	if err != nil {
		return err
	}
	if err := access.CheckCancel(actor, booking); err != nil {
		return err
	}

	if err := s.repo.UpdateBookingStatusWithVersion(ctx, booking.ID, booking.Version, models.StatusCancelled); err != nil {
		return s.mapNotFound(err)
	}

	s.logger.Info().
		Str("booking_id", booking.ID).
		Str("from", string(booking.Status)).
		Str("by", actor.UserID).
		Str("role", string(actor.Role)).
		Msg("Booking cancelled")

	previous := booking.Status
	booking.Status = models.StatusCancelled
	s.publishEvent(events.EventBookingCancelled, booking, previous, actor)
	return nil
}

func (s *BookingService) scopeFilter(actor domain.Identity, filter models.BookingFilter) (models.BookingFilter, error) {
	if !access.CanListAll(actor.Role) {
		filter.CustomerID = actor.UserID
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return filter, domain.Validationf("invalid status %q", filter.Status)
	}
	if !filter.DateFrom.IsZero() && !filter.DateTo.IsZero() && filter.DateFrom.After(filter.DateTo) {
		return filter, domain.Validationf("date_from must not be after date_to")
	}
	return filter, nil
}

func (s *BookingService) loadBooking(ctx context.Context, id string) (*models.Booking, error) {
	booking, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, s.mapNotFound(err)
	}
	return booking, nil
}

func (s *BookingService) mapNotFound(err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NotFoundf("booking not found")
	}
	return err
}

// today is the current calendar day in the configured location, as a UTC date.
func (s *BookingService) today() time.Time {
	return dateOnly(s.opts.Now().In(s.opts.Location))
}

func (s *BookingService) notifyCreated(ctx context.Context, booking *models.Booking) {
	s.notify(ctx, models.NotifyBookingConfirmation, booking.Customer.Email, booking, booking.Customer.Name)

	owners, err := s.repo.ListUsersByRole(ctx, models.RoleOwner)
	if err != nil {
		s.logger.Error().Err(err).Str("booking_id", booking.ID).Msg("Failed to load owners for new booking notification")
		return
	}
	for _, owner := range owners {
		s.notify(ctx, models.NotifyNewBooking, owner.Email, booking, owner.Name)
	}
}

func (s *BookingService) notify(ctx context.Context, kind, recipient string, booking *models.Booking, recipientName string) {
	if s.notifier == nil {
		return
	}
	payload := models.BookingPayload(booking)
	payload.RecipientName = recipientName
	s.notifier.Emit(ctx, kind, recipient, payload)
}

func (s *BookingService) publishEvent(eventType string, booking *models.Booking, previous models.BookingStatus, actor domain.Identity) {
	if s.eventBus == nil {
		return
	}

	payload := events.BookingEventPayload{
		BookingID:      booking.ID,
		CustomerID:     booking.CustomerID,
		Status:         string(booking.Status),
		PreviousStatus: string(previous),
		BookingDate:    booking.BookingDate.Format(models.DateLayout),
		TotalPrice:     booking.TotalPrice.StringFixed(2),
		ServiceCount:   len(booking.Items),
		ChangedBy:      actor.UserID,
		ChangedByRole:  string(actor.Role),
		OccurredAt:     s.opts.Now().UTC(),
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("booking_id", booking.ID).Msg("publish event error")
	}
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
