package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"musiclib/pkg/apperror"
)

func resetTokenFrom(t *testing.T, body string) string {
	t.Helper()
	const marker = "http://music.test/password-reset/"
	_, rest, ok := strings.Cut(body, marker)
	if !ok {
		t.Fatalf("reset link missing from body: %q", body)
	}
	token, _, _ := strings.Cut(rest, "\n")
	return strings.TrimSpace(token)
}

func TestPasswordResetFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.register(t, "alice")
	ctx := context.Background()

	if err := env.app.RequestPasswordReset(ctx, " Alice@Example.com "); err != nil {
		t.Fatalf("request reset: %v", err)
	}
	sent := env.mail.messages()
	if len(sent) != 1 {
		t.Fatalf("expected one mail, got %d", len(sent))
	}
	if sent[0].To != alice.Email || sent[0].Subject != resetSubject {
		t.Fatalf("unexpected mail: %+v", sent[0])
	}
	if !strings.Contains(sent[0].Body, "30 minutes") {
		t.Fatalf("expected expiry in body: %q", sent[0].Body)
	}
	token := resetTokenFrom(t, sent[0].Body)

	if err := env.app.ResetPassword(ctx, token, ResetPasswordInput{Password: "abc", ConfirmPassword: "abc"}); !apperror.IsValidation(err) {
		t.Fatalf("expected validation error for short password, got %v", err)
	}
	if err := env.app.ResetPassword(ctx, token, ResetPasswordInput{Password: "newsecret", ConfirmPassword: "other"}); !apperror.IsValidation(err) {
		t.Fatalf("expected validation error for mismatch, got %v", err)
	}
	if err := env.app.ResetPassword(ctx, token, ResetPasswordInput{Password: "newsecret", ConfirmPassword: "newsecret"}); err != nil {
		t.Fatalf("reset: %v", err)
	}

	if _, _, err := env.app.Login(ctx, alice.Email, "secret1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password should fail, got %v", err)
	}
	if _, _, err := env.app.Login(ctx, alice.Email, "newsecret"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestRequestPasswordResetUnknownEmail(t *testing.T) {
	env := newTestEnv(t, nil)
	if err := env.app.RequestPasswordReset(context.Background(), "ghost@example.com"); err != nil {
		t.Fatalf("expected silent success, got %v", err)
	}
	if n := len(env.mail.messages()); n != 0 {
		t.Fatalf("expected no mail, got %d", n)
	}
	if err := env.app.RequestPasswordReset(context.Background(), "not an email"); !apperror.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestResetPasswordInvalidToken(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.register(t, "alice")
	in := ResetPasswordInput{Password: "newsecret", ConfirmPassword: "newsecret"}

	for _, token := range []string{"", "garbage", "a.b.c"} {
		if err := env.app.ResetPassword(context.Background(), token, in); !errors.Is(err, ErrInvalidResetToken) {
			t.Fatalf("token %q: expected invalid token, got %v", token, err)
		}
	}

	expired, err := env.app.resets.IssueWithTTL(alice.ID, -time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := env.app.ResetPassword(context.Background(), expired, in); !apperror.IsToken(err) {
		t.Fatalf("expected token error for expired token, got %v", err)
	}

	ghost, err := env.app.resets.Issue(alice.ID + 100)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := env.app.ResetPassword(context.Background(), ghost, in); !errors.Is(err, ErrInvalidResetToken) {
		t.Fatalf("expected invalid token for missing user, got %v", err)
	}
}
