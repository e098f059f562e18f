package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gbsr/chappy/internal/auth"
	"github.com/gbsr/chappy/internal/common"
	"github.com/gbsr/chappy/internal/logging"
	"github.com/gbsr/chappy/internal/models"
	"github.com/gbsr/chappy/internal/store"
	"github.com/gbsr/chappy/internal/validation"
)

// RegisterInput is the payload of a registration. Timestamps sent by older
// clients are accepted and ignored.
type RegisterInput struct {
	UserName  string     `json:"userName" validate:"required,min=1"`
	Email     string     `json:"email" validate:"required,email"`
	Password  string     `json:"password" validate:"required,min=1"`
	IsAdmin   bool       `json:"isAdmin"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// UserPatch holds the fields of a partial user update; nil means unchanged.
type UserPatch struct {
	UserName *string `json:"userName" validate:"omitnil,min=1"`
	Email    *string `json:"email" validate:"omitnil,email"`
	Password *string `json:"password" validate:"omitnil,min=1"`
	IsAdmin  *bool   `json:"isAdmin"`
}

type UserService struct {
	users  store.Users
	tokens *auth.TokenManager
	logger logging.Logger
	now    func() time.Time
}

func NewUserService(users store.Users, tokens *auth.TokenManager, logger logging.Logger) *UserService {
	return &UserService{users: users, tokens: tokens, logger: logger.With("service", "users"), now: time.Now}
}

func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.UserName = strings.TrimSpace(in.UserName)
	in.Email = strings.TrimSpace(in.Email)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	user := &models.User{
		ID:           models.NewID(),
		UserName:     in.UserName,
		Email:        in.Email,
		PasswordHash: hash,
		IsAdmin:      in.IsAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, translate("User", err)
	}
	return user, nil
}

// Login checks the credentials and issues a session token. Unknown emails and
// wrong passwords are indistinguishable to the caller.
func (s *UserService) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	if email == "" || password == "" {
		return "", nil, common.ErrInvalidCredentials
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Warn(ctx, "login failed: user not found", "email", email)
			return "", nil, common.ErrInvalidCredentials
		}
		return "", nil, err
	}

	if !auth.CheckPassword(password, user.PasswordHash) {
		s.logger.Warn(ctx, "login failed: invalid password", "email", email)
		return "", nil, common.ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return "", nil, fmt.Errorf("failed to issue token: %w", err)
	}
	return token, user, nil
}

func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	if err := validation.ID(id); err != nil {
		return nil, err
	}
	user, err := s.users.GetUserByID(ctx, id)
	return user, translate("User", err)
}

func (s *UserService) List(ctx context.Context) ([]models.User, error) {
	return s.users.ListUsers(ctx)
}

// Update applies patch and reports whether any stored field changed. The
// update timestamp only moves when something did.
func (s *UserService) Update(ctx context.Context, id string, patch UserPatch) (bool, error) {
	if err := validation.ID(id); err != nil {
		return false, err
	}
	if err := validation.Struct(patch); err != nil {
		return false, err
	}

	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return false, translate("User", err)
	}

	changed := false
	if patch.UserName != nil && *patch.UserName != user.UserName {
		user.UserName = *patch.UserName
		changed = true
	}
	if patch.Email != nil && *patch.Email != user.Email {
		user.Email = *patch.Email
		changed = true
	}
	if patch.IsAdmin != nil && *patch.IsAdmin != user.IsAdmin {
		user.IsAdmin = *patch.IsAdmin
		changed = true
	}
	if patch.Password != nil && !auth.CheckPassword(*patch.Password, user.PasswordHash) {
		hash, err := auth.HashPassword(*patch.Password)
		if err != nil {
			return false, err
		}
		user.PasswordHash = hash
		changed = true
	}
	if !changed {
		return false, nil
	}

	user.UpdatedAt = s.now().UTC()
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return false, translate("User", err)
	}
	return true, nil
}

func (s *UserService) Delete(ctx context.Context, id string) error {
	if err := validation.ID(id); err != nil {
		return err
	}
	return translate("User", s.users.DeleteUser(ctx, id))
}
