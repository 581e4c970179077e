package store

import (
	"context"

	"github.com/shinyes/filterdeck/internal/models"
)

const userColumns = `id, username, display_name, password_hash, role, create_time, update_time`

func (s *SQLStore) CreateUser(ctx context.Context, username string, displayName string, role string) (models.User, error) {
	return s.CreateUserWithProfile(ctx, username, displayName, "", role)
}

func (s *SQLStore) CreateUserWithProfile(ctx context.Context, username string, displayName string, passwordHash string, role string) (models.User, error) {
	now := s.timestamp()
	id, err := insertID(ctx, s.db,
		`INSERT INTO users (username, display_name, password_hash, role, create_time, update_time)
		VALUES (?, ?, ?, ?, ?, ?)`,
		username, displayName, passwordHash, role, now, now,
	)
	if err != nil {
		return models.User{}, err
	}
	return s.GetUserByID(ctx, id)
}

func (s *SQLStore) GetUserByID(ctx context.Context, id int64) (models.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (s *SQLStore) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ? COLLATE NOCASE`, username))
}

func (s *SQLStore) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM users`).Scan(&count)
	return count, err
}

func scanUser(scanner rowScanner) (models.User, error) {
	var user models.User
	var createTime, updateTime string
	if err := scanner.Scan(
		&user.ID,
		&user.Username,
		&user.DisplayName,
		&user.PasswordHash,
		&user.Role,
		&createTime,
		&updateTime,
	); err != nil {
		return models.User{}, err
	}
	if err := parseTimes(createTime, &user.CreateTime, updateTime, &user.UpdateTime); err != nil {
		return models.User{}, err
	}
	return user, nil
}
