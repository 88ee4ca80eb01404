package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"musiclib/internal/util"
	"musiclib/pkg/apperror"
	"musiclib/pkg/auth"
	"musiclib/pkg/mailer"
	"musiclib/pkg/store"
)

const resetSubject = "Password Reset Request"

// RequestPasswordReset mails a reset link when email belongs to a user.
// The result never reveals whether an account exists; only a malformed
// address is rejected.
func (a *App) RequestPasswordReset(ctx context.Context, email string) error {
	in := resetRequestInput{Email: normalizeEmail(email)}
	if err := a.validateStruct(in); err != nil {
		return err
	}
	logger := util.LoggerFromContext(ctx)
	user, ok, err := a.store.GetUserByEmail(ctx, in.Email)
	if err != nil {
		logger.Error("reset lookup failed", "err", err)
		return nil
	}
	if !ok {
		logger.Info("reset requested for unknown email")
		return nil
	}
	token, err := a.resets.Issue(user.ID)
	if err != nil {
		logger.Error("issue reset token failed", "user_id", user.ID, "err", err)
		return nil
	}
	msg := mailer.Message{
		To:      user.Email,
		Subject: resetSubject,
		Body:    a.resetBody(token),
	}
	if err := a.mail.Send(ctx, msg); err != nil {
		logger.Error("send reset mail failed", "user_id", user.ID, "err", err)
		return nil
	}
	logger.Info("reset mail sent", "user_id", user.ID)
	return nil
}

func (a *App) resetBody(token string) string {
	link := a.publicBaseURL + "/password-reset/" + url.PathEscape(token)
	return fmt.Sprintf(`To reset your password, visit the following link:
%s

The link expires in %d minutes.

If you did not make this request then simply ignore this email and no changes will be made.
`, link, int(a.resets.TTL().Minutes()))
}

// ResetPassword sets a new password for the user named by token and ends
// every session that user held before the reset.
func (a *App) ResetPassword(ctx context.Context, token string, in ResetPasswordInput) error {
	userID, ok := a.resets.Verify(token)
	if !ok {
		return ErrInvalidResetToken
	}
	if err := a.validateStruct(in); err != nil {
		return err
	}
	if err := auth.ValidatePassword(in.Password); err != nil {
		return apperror.Validation(err.Error())
	}
	if _, ok, err := a.store.GetUserByID(ctx, userID); err != nil {
		return apperror.Internal("failed to load user", err)
	} else if !ok {
		return ErrInvalidResetToken
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return apperror.Internal("failed to hash password", err)
	}
	if err := a.store.UpdateUserPassword(ctx, userID, hash); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidResetToken
		}
		return apperror.Internal("failed to update password", err)
	}
	if err := a.sessions.RevokeUser(ctx, userID); err != nil {
		util.LoggerFromContext(ctx).Error("revoke sessions after reset failed", "user_id", userID, "err", err)
	}
	util.LoggerFromContext(ctx).Info("password reset", "user_id", userID)
	return nil
}
