package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"bikeservice/internal/access"
	"bikeservice/internal/domain"
	"bikeservice/internal/events"
	"bikeservice/internal/models"

	"github.com/rs/zerolog"
)

const defaultServiceListLimit = 20

type CatalogService struct {
	repo     domain.CatalogRepository
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

func NewCatalogService(repo domain.CatalogRepository, eventBus domain.EventPublisher, logger *zerolog.Logger) *CatalogService {
	return &CatalogService{
		repo:     repo,
		eventBus: eventBus,
		logger:   logger,
	}
}

// ListServices is public. limit is clamped to 1..MaxPageSize.
func (s *CatalogService) ListServices(ctx context.Context, activeOnly bool, offset, limit int) (*domain.ServicePage, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultServiceListLimit
	}
	if limit > models.MaxPageSize {
		limit = models.MaxPageSize
	}

	services, err := s.repo.ListServices(ctx, activeOnly, offset, limit)
	if err != nil {
		return nil, err
	}
	total, err := s.repo.CountServices(ctx, activeOnly)
	if err != nil {
		return nil, err
	}
	return &domain.ServicePage{Services: services, Total: total}, nil
}

func (s *CatalogService) GetService(ctx context.Context, id string) (*models.Service, error) {
	service, err := s.repo.GetServiceByID(ctx, id)
	if err != nil {
		return nil, mapServiceNotFound(err)
	}
	return service, nil
}

func (s *CatalogService) CreateService(ctx context.Context, actor domain.Identity, input domain.ServiceInput) (*models.Service, error) {
	if !access.CanManageCatalog(actor.Role) {
		return nil, domain.Forbiddenf("only owners can manage services")
	}

	service := &models.Service{
		Name:            strings.TrimSpace(input.Name),
		Description:     strings.TrimSpace(input.Description),
		Price:           input.Price.Round(2),
		DurationMinutes: input.DurationMinutes,
		IsActive:        true,
	}
	if err := validateService(service); err != nil {
		return nil, err
	}

	if err := s.repo.CreateService(ctx, service); err != nil {
		return nil, err
	}

	s.logger.Info().Str("service_id", service.ID).Str("name", service.Name).Msg("Service created")
	s.publishEvent("created", service)
	return service, nil
}

// UpdateService applies patch to the catalog entry. Bookings keep the price
// they were created with.
func (s *CatalogService) UpdateService(ctx context.Context, actor domain.Identity, id string, patch domain.ServicePatch) (*models.Service, error) {
	if !access.CanManageCatalog(actor.Role) {
		return nil, domain.Forbiddenf("only owners can manage services")
	}

	service, err := s.repo.GetServiceByID(ctx, id)
	if err != nil {
		return nil, mapServiceNotFound(err)
	}

	if patch.Name != nil {
		service.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Description != nil {
		service.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Price != nil {
		service.Price = patch.Price.Round(2)
	}
	if patch.DurationMinutes != nil {
		service.DurationMinutes = *patch.DurationMinutes
	}
	if patch.IsActive != nil {
		service.IsActive = *patch.IsActive
	}
	if err := validateService(service); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateService(ctx, service); err != nil {
		return nil, mapServiceNotFound(err)
	}

	s.logger.Info().Str("service_id", service.ID).Msg("Service updated")
	s.publishEvent("updated", service)
	return service, nil
}

// DeactivateService hides a service from booking without deleting it.
func (s *CatalogService) DeactivateService(ctx context.Context, actor domain.Identity, id string) error {
	if !access.CanManageCatalog(actor.Role) {
		return domain.Forbiddenf("only owners can manage services")
	}
	if err := s.repo.DeactivateService(ctx, id); err != nil {
		return mapServiceNotFound(err)
	}

	s.logger.Info().Str("service_id", id).Msg("Service deactivated")
	s.publishEvent("deactivated", &models.Service{ID: id})
	return nil
}

func validateService(service *models.Service) error {
	nameLen := utf8.RuneCountInString(service.Name)
	if nameLen < models.MinServiceNameLength || nameLen > models.MaxServiceNameLength {
		return domain.Validationf("name must be between %d and %d characters", models.MinServiceNameLength, models.MaxServiceNameLength)
	}
	if utf8.RuneCountInString(service.Description) > models.MaxServiceDescriptionLength {
		return domain.Validationf("description must be at most %d characters", models.MaxServiceDescriptionLength)
	}
	if service.Price.IsNegative() {
		return domain.Validationf("price must not be negative")
	}
	if service.DurationMinutes < 1 || service.DurationMinutes > models.MaxServiceDurationMinutes {
		return domain.Validationf("estimated_time must be between 1 and %d minutes", models.MaxServiceDurationMinutes)
	}
	return nil
}

func mapServiceNotFound(err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NotFoundf("service not found")
	}
	return err
}

func (s *CatalogService) publishEvent(action string, service *models.Service) {
	if s.eventBus == nil {
		return
	}
	payload := events.ServiceEventPayload{ServiceID: service.ID, Action: action, IsActive: service.IsActive}
	if err := s.eventBus.PublishJSON(events.EventServiceChanged, payload); err != nil {
		s.logger.Error().Err(err).Str("service_id", service.ID).Msg("publish event error")
	}
}
