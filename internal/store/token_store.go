package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/shinyes/filterdeck/internal/models"
)

const tokenColumns = `id, user_id, token_prefix, token_hash, description, created_at, last_used_at, expires_at, revoked_at`

const tokenPrefixLen = 8

func (s *SQLStore) CreatePersonalAccessToken(ctx context.Context, userID int64, rawToken string, description string) (models.PersonalAccessToken, error) {
	return s.CreatePersonalAccessTokenWithExpiry(ctx, userID, rawToken, description, nil)
}

// CreatePersonalAccessTokenWithExpiry stores only the token's hash and its
// first characters for display.
func (s *SQLStore) CreatePersonalAccessTokenWithExpiry(ctx context.Context, userID int64, rawToken string, description string, expiresAt *time.Time) (models.PersonalAccessToken, error) {
	prefix := rawToken
	if len(prefix) > tokenPrefixLen {
		prefix = prefix[:tokenPrefixLen]
	}
	id, err := insertID(ctx, s.db,
		`INSERT INTO personal_access_tokens (user_id, token_prefix, token_hash, description, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		userID, prefix, HashToken(rawToken), description, s.timestamp(), formatNullableTime(expiresAt),
	)
	if err != nil {
		return models.PersonalAccessToken{}, err
	}
	return s.GetPersonalAccessTokenByID(ctx, id)
}

func (s *SQLStore) GetPersonalAccessTokenByID(ctx context.Context, id int64) (models.PersonalAccessToken, error) {
	return scanToken(s.db.QueryRowContext(ctx, `SELECT `+tokenColumns+` FROM personal_access_tokens WHERE id = ?`, id))
}

// ListPersonalAccessTokensByUserID returns the user's tokens, newest first.
func (s *SQLStore) ListPersonalAccessTokensByUserID(ctx context.Context, userID int64) ([]models.PersonalAccessToken, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tokenColumns+` FROM personal_access_tokens
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]models.PersonalAccessToken, 0)
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, token)
	}
	return result, rows.Err()
}

// RevokePersonalAccessToken returns sql.ErrNoRows when the token is missing
// or already revoked.
func (s *SQLStore) RevokePersonalAccessToken(ctx context.Context, tokenID int64) error {
	return execOne(ctx, s.db,
		`UPDATE personal_access_tokens SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`,
		s.timestamp(), tokenID,
	)
}

// GetUserByToken resolves a raw bearer token to its owner. Revoked and
// expired tokens read as sql.ErrNoRows.
func (s *SQLStore) GetUserByToken(ctx context.Context, rawToken string) (models.User, models.PersonalAccessToken, error) {
	token, err := scanToken(s.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM personal_access_tokens
		WHERE token_hash = ?
			AND revoked_at IS NULL
			AND (expires_at IS NULL OR expires_at > ?)`,
		HashToken(rawToken), s.timestamp(),
	))
	if err != nil {
		return models.User{}, models.PersonalAccessToken{}, err
	}
	user, err := s.GetUserByID(ctx, token.UserID)
	if err != nil {
		return models.User{}, models.PersonalAccessToken{}, err
	}
	return user, token, nil
}

func (s *SQLStore) TouchPersonalAccessToken(ctx context.Context, tokenID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE personal_access_tokens SET last_used_at = ? WHERE id = ?`, s.timestamp(), tokenID)
	return err
}

func scanToken(scanner rowScanner) (models.PersonalAccessToken, error) {
	var token models.PersonalAccessToken
	var createdAt string
	var lastUsedAt, expiresAt, revokedAt sql.NullString
	if err := scanner.Scan(
		&token.ID,
		&token.UserID,
		&token.TokenPrefix,
		&token.TokenHash,
		&token.Description,
		&createdAt,
		&lastUsedAt,
		&expiresAt,
		&revokedAt,
	); err != nil {
		return models.PersonalAccessToken{}, err
	}
	err := parseTimes(
		createdAt, &token.CreatedAt,
		lastUsedAt, &token.LastUsedAt,
		expiresAt, &token.ExpiresAt,
		revokedAt, &token.RevokedAt,
	)
	if err != nil {
		return models.PersonalAccessToken{}, err
	}
	return token, nil
}
