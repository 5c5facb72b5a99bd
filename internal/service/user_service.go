package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"

	"bikeservice/internal/config"
	"bikeservice/internal/domain"
	"bikeservice/internal/events"
	"bikeservice/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	minPhoneLength = 10
	maxPhoneLength = 20
	// bcrypt ignores everything past 72 bytes.
	maxPasswordBytes = 72
)

type UserService struct {
	repo     domain.UserRepository
	hasher   domain.PasswordHasher
	tokens   domain.TokenManager
	throttle domain.ThrottleRepository
	notifier domain.Notifier
	eventBus domain.EventPublisher
	config   config.AuthConfig
	logger   *zerolog.Logger
}

func NewUserService(
	repo domain.UserRepository,
	hasher domain.PasswordHasher,
	tokens domain.TokenManager,
	throttle domain.ThrottleRepository,
	notifier domain.Notifier,
	eventBus domain.EventPublisher,
	cfg config.AuthConfig,
	logger *zerolog.Logger,
) *UserService {
	if cfg.LoginAttempts <= 0 {
		cfg.LoginAttempts = 5
	}
	if cfg.LoginWindowSeconds <= 0 {
		cfg.LoginWindowSeconds = 15 * 60
	}
	return &UserService{
		repo:     repo,
		hasher:   hasher,
		tokens:   tokens,
		throttle: throttle,
		notifier: notifier,
		eventBus: eventBus,
		config:   cfg,
		logger:   logger,
	}
}

// Register creates an account and returns an access token for it.
func (s *UserService) Register(ctx context.Context, input domain.RegisterInput) (*domain.AuthResult, error) {
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return nil, err
	}
	if input.Password == "" {
		return nil, domain.Validationf("password is required")
	}
	if len(input.Password) > maxPasswordBytes {
		return nil, domain.Validationf("password must be at most %d bytes", maxPasswordBytes)
	}
	name := strings.TrimSpace(input.Name)
	if n := utf8.RuneCountInString(name); n < 2 || n > 100 {
		return nil, domain.Validationf("name must be between 2 and 100 characters")
	}
	phone := strings.TrimSpace(input.Phone)
	if err := validatePhone(phone); err != nil {
		return nil, err
	}
	role := input.Role
	if role == "" {
		role = models.RoleCustomer
	}
	if !role.IsValid() {
		return nil, domain.Validationf("invalid role %q", role)
	}

	if _, err := s.repo.GetUserByEmail(ctx, email); err == nil {
		return nil, domain.Validationf("email already registered")
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Email:             email,
		PasswordHash:      hash,
		Name:              name,
		Phone:             phone,
		Role:              role,
		IsVerified:        !s.config.RequireVerification,
		VerificationToken: uuid.NewString(),
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return nil, domain.Validationf("email already registered")
		}
		return nil, err
	}

	s.logger.Info().Str("user_id", user.ID).Str("role", string(user.Role)).Msg("User registered")

	if !user.IsVerified {
		s.sendVerification(ctx, user)
	}
	if s.eventBus != nil {
		if err := s.eventBus.PublishJSON(events.EventUserRegistered, events.UserEventPayload{UserID: user.ID, Role: string(user.Role)}); err != nil {
			s.logger.Error().Err(err).Str("user_id", user.ID).Msg("publish event error")
		}
	}

	return s.issue(user)
}

// Login checks credentials. Attempts are throttled per email and the counter
// is cleared on success.
func (s *UserService) Login(ctx context.Context, email, password string) (*domain.AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	key := "login:" + email

	allowed, err := s.throttle.CheckRateLimit(ctx, key, s.config.LoginAttempts, s.config.LoginWindow())
	if err != nil {
		s.logger.Warn().Err(err).Msg("Login throttle check failed")
	} else if !allowed {
		return nil, domain.RateLimitedf("too many login attempts, try again later")
	}

	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.Unauthorizedf("invalid email or password")
		}
		return nil, err
	}
	if !s.hasher.Compare(user.PasswordHash, password) {
		s.logger.Warn().Str("user_id", user.ID).Msg("Failed login attempt")
		return nil, domain.Unauthorizedf("invalid email or password")
	}

	if err := s.throttle.ResetRateLimit(ctx, key); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to reset login throttle")
	}
	return s.issue(user)
}

// Authenticate resolves a bearer token to the current identity. The role is
// taken from the stored user, not from the token.
func (s *UserService) Authenticate(ctx context.Context, token string) (domain.Identity, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return domain.Identity{}, domain.Unauthorizedf("invalid or expired token")
	}
	user, err := s.repo.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Identity{}, domain.Unauthorizedf("user not found")
		}
		return domain.Identity{}, err
	}
	return domain.Identity{UserID: user.ID, Email: user.Email, Name: user.Name, Role: user.Role}, nil
}

func (s *UserService) Me(ctx context.Context, actor domain.Identity) (*models.User, error) {
	user, err := s.repo.GetUserByID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NotFoundf("user not found")
		}
		return nil, err
	}
	return user, nil
}

func (s *UserService) VerifyEmail(ctx context.Context, token string) (*models.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, domain.Validationf("verification token is required")
	}
	user, err := s.repo.GetUserByVerificationToken(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.Validationf("invalid verification token")
		}
		return nil, err
	}
	if err := s.repo.UpdateUserVerification(ctx, user.ID, true, ""); err != nil {
		return nil, err
	}
	user.IsVerified = true
	user.VerificationToken = ""

	s.logger.Info().Str("user_id", user.ID).Msg("Email verified")
	return user, nil
}

func (s *UserService) ResendVerification(ctx context.Context, actor domain.Identity) error {
	user, err := s.Me(ctx, actor)
	if err != nil {
		return err
	}
	if user.IsVerified {
		return domain.Validationf("email already verified")
	}

	user.VerificationToken = uuid.NewString()
	if err := s.repo.UpdateUserVerification(ctx, user.ID, false, user.VerificationToken); err != nil {
		return err
	}
	s.sendVerification(ctx, user)
	return nil
}

func (s *UserService) issue(user *models.User) (*domain.AuthResult, error) {
	token, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}
	return &domain.AuthResult{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   expiresAt,
		User:        user,
	}, nil
}

func (s *UserService) sendVerification(ctx context.Context, user *models.User) {
	if s.notifier == nil {
		return
	}
	s.notifier.Emit(ctx, models.NotifyEmailVerification, user.Email, models.NotificationPayload{
		RecipientName:     user.Name,
		VerificationToken: user.VerificationToken,
	})
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", domain.Validationf("invalid email address")
	}
	return email, nil
}

func validatePhone(phone string) error {
	if n := utf8.RuneCountInString(phone); n < minPhoneLength || n > maxPhoneLength {
		return domain.Validationf("phone must be between %d and %d characters", minPhoneLength, maxPhoneLength)
	}
	for _, r := range phone {
		if unicode.IsDigit(r) || strings.ContainsRune(" -()+", r) {
			continue
		}
		return domain.Validationf("phone must contain only digits and common separators")
	}
	return nil
}
