// users.go — сервис пользователей симулятора: учётные записи в Keycloak
// и локальные профили с ролью (таблица profiles).
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/bigkaa/dhsimulator/internal/domain/model"
	"github.com/bigkaa/dhsimulator/internal/domain/rbac"
	"github.com/bigkaa/dhsimulator/internal/keycloak"
	"github.com/bigkaa/dhsimulator/internal/repository"
)

// MinPasswordLength — минимальная длина пароля.
const MinPasswordLength = 6

// listUsersMax — сколько пользователей запрашивать у Keycloak за раз.
const listUsersMax = 500

// IdentityProvider — операции Keycloak Admin REST API, нужные сервису.
// Реализуется *keycloak.Client.
type IdentityProvider interface {
	ListUsers(ctx context.Context, query string, first, max int) ([]keycloak.KeycloakUser, error)
	CreateUser(ctx context.Context, email, password string) (string, error)
	DeleteUser(ctx context.Context, id string) error
	ResetPassword(ctx context.Context, id, password string) error
}

// UserService — управление пользователями и определение ролей.
type UserService struct {
	idp         IdentityProvider
	profiles    repository.ProfileRepository
	adminGroups []string
	agentGroups []string
	logger      *slog.Logger
}

// NewUserService создаёт сервис пользователей.
func NewUserService(
	idp IdentityProvider,
	profiles repository.ProfileRepository,
	adminGroups, agentGroups []string,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		idp:         idp,
		profiles:    profiles,
		adminGroups: adminGroups,
		agentGroups: agentGroups,
		logger:      logger.With(slog.String("component", "user_service")),
	}
}

// List возвращает пользователей Keycloak, объединённых с профилями.
func (s *UserService) List(ctx context.Context, search string) ([]*model.AppUser, error) {
	kcUsers, err := s.idp.ListUsers(ctx, search, 0, listUsersMax)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIDPUnavailable, err)
	}

	ids := make([]string, len(kcUsers))
	for i, u := range kcUsers {
		ids[i] = u.ID
	}

	profiles, err := s.profiles.ListByIDs(ctx, ids)
	if err != nil {
		// Без профилей роли показываются как agent
		s.logger.Warn("Ошибка получения профилей", slog.String("error", err.Error()))
		profiles = map[string]*model.UserProfile{}
	}

	users := make([]*model.AppUser, 0, len(kcUsers))
	for i := range kcUsers {
		u := &kcUsers[i]
		user := &model.AppUser{
			ID:        u.ID,
			Email:     u.Email,
			Role:      rbac.FallbackRole,
			Enabled:   u.Enabled,
			CreatedAt: u.CreatedAtTime(),
		}
		if p, ok := profiles[u.ID]; ok {
			user.FullName = p.FullName
			user.Role = p.Role
			user.HasProfile = true
		}
		users = append(users, user)
	}
	return users, nil
}

// Create создаёт пользователя в Keycloak и его профиль.
// Ошибка профиля только логируется.
func (s *UserService) Create(ctx context.Context, in model.NewUser) (*model.AppUser, error) {
	email := strings.TrimSpace(in.Email)
	if email == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: Faltan datos", ErrValidation)
	}

	role := in.Role
	if role == "" {
		role = rbac.RoleAgent
	}
	if !rbac.IsValidRole(role) {
		return nil, ErrInvalidRole
	}

	fullName := strings.TrimSpace(in.FullName)
	if fullName == "" {
		fullName, _, _ = strings.Cut(email, "@")
	}

	id, err := s.idp.CreateUser(ctx, email, in.Password)
	if err != nil {
		if errors.Is(err, keycloak.ErrUserExists) {
			return nil, fmt.Errorf("%w: %w", ErrConflict, err)
		}
		return nil, err
	}

	profile := &model.UserProfile{ID: id, Email: email, FullName: fullName, Role: role}
	if err := s.profiles.Upsert(ctx, profile); err != nil {
		s.logger.Error("Ошибка создания профиля",
			slog.String("user_id", id),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("Пользователь создан",
		slog.String("user_id", id),
		slog.String("role", role),
	)

	return &model.AppUser{
		ID:         id,
		Email:      email,
		FullName:   fullName,
		Role:       role,
		Enabled:    true,
		HasProfile: true,
		CreatedAt:  profile.CreatedAt,
	}, nil
}

// Delete удаляет пользователя в Keycloak, затем профиль (best-effort).
func (s *UserService) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: ID de usuario requerido", ErrValidation)
	}

	if err := s.idp.DeleteUser(ctx, id); err != nil {
		if errors.Is(err, keycloak.ErrUserNotFound) {
			return ErrNotFound
		}
		return err
	}

	if err := s.profiles.Delete(ctx, id); err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("Ошибка удаления профиля",
			slog.String("user_id", id),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("Пользователь удалён", slog.String("user_id", id))
	return nil
}

// ChangePassword устанавливает новый пароль (не короче MinPasswordLength символов).
func (s *UserService) ChangePassword(ctx context.Context, id, password string) error {
	if strings.TrimSpace(id) == "" || password == "" {
		return fmt.Errorf("%w: ID y nueva contraseña requeridos", ErrValidation)
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return fmt.Errorf("%w: La contraseña debe tener al menos %d caracteres", ErrValidation, MinPasswordLength)
	}

	if err := s.idp.ResetPassword(ctx, id, password); err != nil {
		if errors.Is(err, keycloak.ErrUserNotFound) {
			return ErrNotFound
		}
		return err
	}

	s.logger.Info("Пароль пользователя изменён", slog.String("user_id", id))
	return nil
}

// ResolveRole определяет роль по профилю, группам и ролям realm из токена.
// Ошибка чтения профиля не блокирует вход: используются данные токена.
func (s *UserService) ResolveRole(ctx context.Context, userID string, groups, realmRoles []string) string {
	profileRole := ""
	p, err := s.profiles.GetByID(ctx, userID)
	switch {
	case err == nil:
		profileRole = p.Role
	case !errors.Is(err, repository.ErrNotFound):
		s.logger.Warn("Ошибка чтения профиля при определении роли",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
	return rbac.ResolveRole(profileRole, groups, realmRoles, s.adminGroups, s.agentGroups)
}

// EnsureProfile создаёт профиль при первом входе пользователя.
func (s *UserService) EnsureProfile(ctx context.Context, userID, email, role string) {
	fullName, _, _ := strings.Cut(email, "@")
	created, err := s.profiles.EnsureExists(ctx, &model.UserProfile{
		ID:       userID,
		Email:    email,
		FullName: fullName,
		Role:     role,
	})
	if err != nil {
		s.logger.Warn("Ошибка создания профиля при входе",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return
	}
	if created {
		s.logger.Info("Профиль создан при первом входе",
			slog.String("user_id", userID),
			slog.String("role", role),
		)
	}
}
