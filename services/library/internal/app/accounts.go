package app

import (
	"context"
	"errors"
	"strings"

	"musiclib/internal/util"
	"musiclib/pkg/apperror"
	"musiclib/pkg/auth"
	"musiclib/pkg/domain"
	"musiclib/pkg/store"
)

// Register creates a new account. Username and email must be unused.
func (a *App) Register(ctx context.Context, in RegisterInput) (domain.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = normalizeEmail(in.Email)
	if err := a.validateStruct(in); err != nil {
		return domain.User{}, err
	}
	if err := auth.ValidatePassword(in.Password); err != nil {
		return domain.User{}, apperror.Validation(err.Error())
	}
	if err := a.ensureAvailable(ctx, 0, in.Username, in.Email); err != nil {
		return domain.User{}, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return domain.User{}, apperror.Internal("failed to hash password", err)
	}
	user := domain.User{Username: in.Username, Email: in.Email, PasswordHash: hash}
	if err := a.store.CreateUser(ctx, &user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.User{}, apperror.Conflict("username or email is taken")
		}
		return domain.User{}, apperror.Internal("failed to create user", err)
	}
	util.LoggerFromContext(ctx).Info("user registered", "user_id", user.ID)
	return user, nil
}

// Login checks the email and password and returns a new session token.
func (a *App) Login(ctx context.Context, email, password string) (domain.User, string, error) {
	user, ok, err := a.store.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return domain.User{}, "", apperror.Internal("failed to load user", err)
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", apperror.Internal("failed to create session", err)
	}
	return user, token, nil
}

// Logout revokes token until it would have expired.
func (a *App) Logout(ctx context.Context, token string) error {
	if err := a.sessions.Revoke(ctx, token); err != nil {
		if errors.Is(err, auth.ErrInvalidSession) {
			return ErrUnauthorized
		}
		return apperror.Internal("failed to revoke session", err)
	}
	return nil
}

// Authenticate resolves a bearer token to its user.
func (a *App) Authenticate(ctx context.Context, token string) (domain.User, error) {
	userID, err := a.sessions.UserID(ctx, token)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidSession) {
			return domain.User{}, ErrUnauthorized
		}
		return domain.User{}, apperror.Internal("failed to check session", err)
	}
	user, ok, err := a.store.GetUserByID(ctx, userID)
	if err != nil {
		return domain.User{}, apperror.Internal("failed to load user", err)
	}
	if !ok {
		return domain.User{}, ErrUnauthorized
	}
	return user, nil
}

// UpdateAccount changes the caller's username and email.
func (a *App) UpdateAccount(ctx context.Context, userID int64, in AccountInput) (domain.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = normalizeEmail(in.Email)
	if err := a.validateStruct(in); err != nil {
		return domain.User{}, err
	}
	if err := a.ensureAvailable(ctx, userID, in.Username, in.Email); err != nil {
		return domain.User{}, err
	}
	user, err := a.store.UpdateUserProfile(ctx, userID, in.Username, in.Email)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return domain.User{}, ErrUnauthorized
		case errors.Is(err, store.ErrDuplicate):
			return domain.User{}, apperror.Conflict("username or email is taken")
		}
		return domain.User{}, apperror.Internal("failed to update account", err)
	}
	return user, nil
}

// ensureAvailable reports a conflict when username or email belongs to a
// user other than self. self is 0 for new accounts.
func (a *App) ensureAvailable(ctx context.Context, self int64, username, email string) error {
	existing, ok, err := a.store.GetUserByUsername(ctx, username)
	if err != nil {
		return apperror.Internal("failed to load user", err)
	}
	if ok && existing.ID != self {
		return ErrUsernameTaken
	}
	existing, ok, err = a.store.GetUserByEmail(ctx, email)
	if err != nil {
		return apperror.Internal("failed to load user", err)
	}
	if ok && existing.ID != self {
		return ErrEmailTaken
	}
	return nil
}
