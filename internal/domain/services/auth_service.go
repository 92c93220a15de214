package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lukekeith/makeready/internal/domain/entities"
	"github.com/lukekeith/makeready/internal/domain/repositories"
	"github.com/lukekeith/makeready/internal/oauth"
	"github.com/lukekeith/makeready/internal/pkg/idgen"
)

// AuthService provides business logic for account provisioning and the
// native code bridge
type AuthService struct {
	userRepo repositories.UserRepository
	codes    repositories.AuthCodeStore
	log      *slog.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(userRepo repositories.UserRepository, codes repositories.AuthCodeStore) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		codes:    codes,
		log:      slog.Default().With(slog.String("service", "auth")),
	}
}

// UpsertAccount finds or creates the account for a provider identity. A new
// account takes every field from the identity; an existing one has its
// email, name and picture refreshed in place while id and creation time
// stay immutable.
func (s *AuthService) UpsertAccount(ctx context.Context, ident *oauth.Identity) (*entities.User, error) {
	var picture *string
	if ident.Picture != "" {
		picture = &ident.Picture
	}

	user, err := s.userRepo.GetByGoogleID(ctx, ident.Subject)
	switch {
	case err == nil:
		user.Refresh(ident.Email, ident.Name, picture)
		if err := s.userRepo.Update(ctx, user); err != nil {
			return nil, fmt.Errorf("failed to update account: %w", err)
		}
		s.log.Info("account refreshed",
			slog.String("user_id", user.ID),
			slog.String("email", user.Email))
		return user, nil

	case errors.Is(err, repositories.ErrUserNotFound):
		user = &entities.User{
			ID:       idgen.NewID(),
			GoogleID: ident.Subject,
			Email:    ident.Email,
			Name:     ident.Name,
			Picture:  picture,
		}
		if err := s.userRepo.Create(ctx, user); err != nil {
			return nil, fmt.Errorf("failed to create account: %w", err)
		}
		s.log.Info("account created",
			slog.String("user_id", user.ID),
			slog.String("email", user.Email))
		return user, nil

	default:
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}
}

// GetUser loads an account by id
func (s *AuthService) GetUser(ctx context.Context, id string) (*entities.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// IssueAuthCode mints a one-time code binding the session for a native client
func (s *AuthService) IssueAuthCode(ctx context.Context, sessionID, userID string, ttl time.Duration) (string, error) {
	code, err := s.codes.Issue(ctx, sessionID, userID, ttl)
	if err != nil {
		return "", fmt.Errorf("failed to issue auth code: %w", err)
	}
	return code, nil
}

// RedeemAuthCode consumes a one-time code. Unknown, consumed, and expired
// codes all surface as repositories.ErrAuthCodeNotFound.
func (s *AuthService) RedeemAuthCode(ctx context.Context, code string) (*entities.AuthCode, error) {
	entry, err := s.codes.Redeem(ctx, code)
	if err != nil {
		if errors.Is(err, repositories.ErrAuthCodeNotFound) {
			s.log.Warn("auth code redemption rejected")
			return nil, err
		}
		return nil, fmt.Errorf("failed to redeem auth code: %w", err)
	}
	return entry, nil
}
