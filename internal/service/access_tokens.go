package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shinyes/filterdeck/internal/models"
)

const tokenIssueAttempts = 5

var (
	ErrTokenAlreadyExists  = errors.New("access token already exists")
	ErrTokenAlreadyRevoked = errors.New("access token already revoked")
	ErrInvalidTokenExpiry  = errors.New("invalid token expiry")
)

// AuthenticateToken resolves a bearer token to its owner and records the use.
// Unknown, revoked and expired tokens all yield sql.ErrNoRows.
func (s *UserService) AuthenticateToken(ctx context.Context, rawToken string) (models.User, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return models.User{}, sql.ErrNoRows
	}
	user, token, err := s.store.GetUserByToken(ctx, rawToken)
	if err != nil {
		return models.User{}, err
	}
	_ = s.store.TouchPersonalAccessToken(ctx, token.ID)
	return user, nil
}

// EnsureBootstrap makes sure username exists as a HOST account owning
// rawToken. Either value being empty disables bootstrapping.
func (s *UserService) EnsureBootstrap(ctx context.Context, username string, rawToken string) error {
	username = normalizeUsername(username)
	rawToken = strings.TrimSpace(rawToken)
	if username == "" || rawToken == "" {
		return nil
	}

	user, err := s.store.GetUserByUsername(ctx, username)
	if errors.Is(err, sql.ErrNoRows) {
		user, err = s.store.CreateUser(ctx, username, username, RoleHost)
		if err != nil {
			return fmt.Errorf("create bootstrap user: %w", err)
		}
	} else if err != nil {
		return err
	}

	switch _, _, err := s.store.GetUserByToken(ctx, rawToken); {
	case err == nil:
		return nil
	case !errors.Is(err, sql.ErrNoRows):
		return err
	}
	if _, err := s.store.CreatePersonalAccessToken(ctx, user.ID, rawToken, "bootstrap token"); err != nil {
		return fmt.Errorf("create bootstrap token: %w", err)
	}
	return nil
}

func (s *UserService) CreateAccessTokenForUser(ctx context.Context, identifier string, description string) (models.User, string, error) {
	return s.CreateAccessTokenForUserWithExpiry(ctx, identifier, description, nil)
}

// CreateAccessTokenForUserWithExpiry issues a token for the user named by
// identifier. A nil expiresAt never expires.
func (s *UserService) CreateAccessTokenForUserWithExpiry(ctx context.Context, identifier string, description string, expiresAt *time.Time) (models.User, string, error) {
	user, err := s.GetUserByIdentifier(ctx, identifier)
	if err != nil {
		return models.User{}, "", err
	}
	if description = strings.TrimSpace(description); description == "" {
		description = "admin generated token"
	}
	token, err := s.issueToken(ctx, user.ID, description, expiresAt)
	if err != nil {
		return models.User{}, "", err
	}
	return user, token, nil
}

func (s *UserService) ListAccessTokensForUser(ctx context.Context, identifier string) (models.User, []models.PersonalAccessToken, error) {
	user, err := s.GetUserByIdentifier(ctx, identifier)
	if err != nil {
		return models.User{}, nil, err
	}
	tokens, err := s.store.ListPersonalAccessTokensByUserID(ctx, user.ID)
	if err != nil {
		return models.User{}, nil, err
	}
	return user, tokens, nil
}

// RevokeAccessTokenByID revokes the token and returns it as stored afterwards.
// Revoking twice returns the token together with ErrTokenAlreadyRevoked.
func (s *UserService) RevokeAccessTokenByID(ctx context.Context, tokenID int64) (models.PersonalAccessToken, error) {
	token, err := s.store.GetPersonalAccessTokenByID(ctx, tokenID)
	if err != nil {
		return models.PersonalAccessToken{}, err
	}
	if token.RevokedAt != nil {
		return token, ErrTokenAlreadyRevoked
	}
	err = s.store.RevokePersonalAccessToken(ctx, tokenID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return token, ErrTokenAlreadyRevoked
	case err != nil:
		return models.PersonalAccessToken{}, err
	}
	return s.store.GetPersonalAccessTokenByID(ctx, tokenID)
}

// issueToken stores a new random token, retrying on the unlikely hash
// collision.
func (s *UserService) issueToken(ctx context.Context, userID int64, description string, expiresAt *time.Time) (string, error) {
	if expiresAt != nil {
		expires := expiresAt.UTC()
		if !expires.After(s.now().UTC()) {
			return "", ErrInvalidTokenExpiry
		}
		expiresAt = &expires
	}

	for attempt := 0; attempt < tokenIssueAttempts; attempt++ {
		token, err := randomToken()
		if err != nil {
			return "", err
		}
		_, err = s.store.CreatePersonalAccessTokenWithExpiry(ctx, userID, token, description, expiresAt)
		if err == nil {
			return token, nil
		}
		if !isUniqueConstraintErr(err) {
			return "", err
		}
	}
	return "", ErrTokenAlreadyExists
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate access token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
