// Package notify defines the outbound email capability consumed by the auth
// workflows. Delivery transport and templating live outside this module.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/nstefanov/authcore/internal/model"
)

// ResetEmail carries everything a reset message needs.
type ResetEmail struct {
	Token    string
	ResetURL string
	User     *model.User
}

// VerificationEmail carries everything a verification message needs.
type VerificationEmail struct {
	Token     string
	VerifyURL string
	User      *model.User
}

// EmailSender delivers workflow emails. Failures must never roll back the
// primary workflow: callers log and continue.
type EmailSender interface {
	SendPasswordResetEmail(ctx context.Context, email string, data ResetEmail) error
	SendVerificationEmail(ctx context.Context, email string, data VerificationEmail) error
	SendWelcomeEmail(ctx context.Context, email string, user *model.User) error
}

// LogSender is a development sender that logs instead of delivering.
type LogSender struct {
	Logger *zap.Logger
}

var _ EmailSender = (*LogSender)(nil)

func (s *LogSender) SendPasswordResetEmail(_ context.Context, email string, data ResetEmail) error {
	s.Logger.Info("password reset email",
		zap.String("to", email),
		zap.String("reset_url", data.ResetURL),
	)
	return nil
}

func (s *LogSender) SendVerificationEmail(_ context.Context, email string, data VerificationEmail) error {
	s.Logger.Info("verification email",
		zap.String("to", email),
		zap.String("verify_url", data.VerifyURL),
	)
	return nil
}

func (s *LogSender) SendWelcomeEmail(_ context.Context, email string, _ *model.User) error {
	s.Logger.Info("welcome email", zap.String("to", email))
	return nil
}
