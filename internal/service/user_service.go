package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"llm-chat/internal/domain"
	"llm-chat/internal/repository"
)

const DefaultProfileImage = "default.jpg"

// DefaultOAuthProviders son los proveedores aceptados si no se configuran otros.
var DefaultOAuthProviders = []string{"google", "github", "kakao"}

// UserService resuelve identidades a partir de logins externos ya verificados.
type UserService struct {
	logger       *zap.Logger
	users        repository.UserRepository
	providers    map[string]struct{}
	defaultImage string
}

type UserServiceOption func(*UserService)

// WithOAuthProviders reemplaza la lista de proveedores aceptados.
func WithOAuthProviders(providers ...string) UserServiceOption {
	return func(s *UserService) {
		allowed := make(map[string]struct{}, len(providers))
		for _, p := range providers {
			if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
				allowed[p] = struct{}{}
			}
		}
		if len(allowed) > 0 {
			s.providers = allowed
		}
	}
}

func WithDefaultProfileImage(image string) UserServiceOption {
	return func(s *UserService) {
		if image = strings.TrimSpace(image); image != "" {
			s.defaultImage = image
		}
	}
}

func NewUserService(logger *zap.Logger, users repository.UserRepository, opts ...UserServiceOption) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &UserService{
		logger:       logger,
		users:        users,
		defaultImage: DefaultProfileImage,
	}
	WithOAuthProviders(DefaultOAuthProviders...)(s)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var (
	ErrUserNotFound             = errors.New("user not found")
	ErrOAuthInvalid             = errors.New("oauth data invalid")
	ErrOAuthProviderNotAllowed  = errors.New("oauth provider not allowed")
	ErrUserServiceNotConfigured = errors.New("user service not configured")
)

// OAuthInput es lo que entrega el proveedor de identidad tras autorizar.
type OAuthInput struct {
	Provider     string
	Subject      string
	DisplayName  string
	ProfileImage string
}

// UpsertOAuthUser busca el usuario por id externo con prefijo de proveedor y
// lo crea si no existe. Solo acepta proveedores de la lista configurada.
func (s *UserService) UpsertOAuthUser(ctx context.Context, input OAuthInput) (domain.User, error) {
	if s == nil || s.users == nil {
		return domain.User{}, ErrUserServiceNotConfigured
	}

	provider := strings.ToLower(strings.TrimSpace(input.Provider))
	externalID := domain.ExternalIDFor(provider, input.Subject)
	displayName := strings.TrimSpace(input.DisplayName)
	profileImage := strings.TrimSpace(input.ProfileImage)
	if externalID == "" {
		return domain.User{}, ErrOAuthInvalid
	}
	if _, ok := s.providers[provider]; !ok {
		return domain.User{}, ErrOAuthProviderNotAllowed
	}

	user, err := s.users.GetByExternalID(ctx, externalID)
	if err == nil {
		return s.refreshProfile(ctx, user, displayName, profileImage), nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, err
	}

	if displayName == "" {
		displayName = externalID
	}
	if profileImage == "" {
		profileImage = s.defaultImage
	}
	user = domain.User{
		ID:           uuid.NewString(),
		ExternalID:   externalID,
		Provider:     provider,
		DisplayName:  displayName,
		ProfileImage: profileImage,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		// Dos logins simultaneos del mismo usuario: gana el primero.
		if existing, getErr := s.users.GetByExternalID(ctx, externalID); getErr == nil {
			return existing, nil
		}
		return domain.User{}, err
	}
	s.logger.Info("user created", zap.String("external_id", externalID), zap.String("provider", provider))
	return user, nil
}

// refreshProfile guarda el nombre y avatar que trae el proveedor si cambiaron.
// Un fallo al actualizar no impide el login.
func (s *UserService) refreshProfile(ctx context.Context, user domain.User, displayName, profileImage string) domain.User {
	changed := false
	if displayName != "" && displayName != user.DisplayName {
		user.DisplayName = displayName
		changed = true
	}
	if profileImage != "" && profileImage != user.ProfileImage {
		user.ProfileImage = profileImage
		changed = true
	}
	if !changed {
		return user
	}
	if err := s.users.UpdateProfile(ctx, user.ID, user.DisplayName, user.ProfileImage); err != nil {
		s.logger.Warn("update user profile failed", zap.String("external_id", user.ExternalID), zap.Error(err))
	}
	return user
}

// IdentityFor devuelve la identidad del chat para un id externo.
func (s *UserService) IdentityFor(ctx context.Context, externalID string) (domain.Identity, error) {
	if s == nil || s.users == nil {
		return domain.Identity{}, ErrUserServiceNotConfigured
	}
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return domain.Identity{}, ErrUserNotFound
	}
	user, err := s.users.GetByExternalID(ctx, externalID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Identity{}, ErrUserNotFound
		}
		return domain.Identity{}, err
	}
	return user.Identity(), nil
}

func (s *UserService) GetByID(ctx context.Context, id string) (domain.User, error) {
	if s == nil || s.users == nil {
		return domain.User{}, ErrUserServiceNotConfigured
	}
	user, err := s.users.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}
	return user, nil
}
