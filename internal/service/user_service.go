package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/shinyes/filterdeck/internal/models"
	"github.com/shinyes/filterdeck/internal/store"
)

const (
	RoleHost  = "HOST"
	RoleAdmin = "ADMIN"
	RoleUser  = "USER"
)

const maxDisplayNameRunes = 64

var (
	ErrInvalidUsername       = errors.New("invalid username")
	ErrInvalidDisplayName    = errors.New("invalid display name")
	ErrInvalidPassword       = errors.New("invalid password")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrInvalidRole           = errors.New("invalid role")
	ErrUsernameAlreadyExists = errors.New("username already exists")
	ErrRegistrationDisabled  = errors.New("registration is disabled")

	usernamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{2,31}$`)
)

// UserService owns accounts and the bearer tokens that scope every
// filter request to its owner.
type UserService struct {
	store *store.SQLStore
	now   func() time.Time
}

func NewUserService(s *store.SQLStore) *UserService {
	return &UserService{store: s, now: time.Now}
}

type CreateUserInput struct {
	Username    string
	DisplayName string
	Password    string
	Role        string
}

// normalize trims the input and checks everything that does not need the
// database. Role is left empty when none was requested.
func (in CreateUserInput) normalize() (CreateUserInput, error) {
	out := CreateUserInput{
		Username:    normalizeUsername(in.Username),
		DisplayName: strings.TrimSpace(in.DisplayName),
		Password:    strings.TrimSpace(in.Password),
	}
	if !usernamePattern.MatchString(out.Username) {
		return out, ErrInvalidUsername
	}
	if out.DisplayName == "" {
		out.DisplayName = out.Username
	}
	if len([]rune(out.DisplayName)) > maxDisplayNameRunes {
		return out, ErrInvalidDisplayName
	}
	if out.Password == "" {
		return out, ErrInvalidPassword
	}
	switch requested := strings.ToUpper(strings.TrimSpace(in.Role)); requested {
	case "", "ROLE_UNSPECIFIED":
	case RoleAdmin, RoleUser:
		out.Role = requested
	default:
		return out, ErrInvalidRole
	}
	return out, nil
}

func (s *UserService) GetUser(ctx context.Context, userID int64) (models.User, error) {
	return s.store.GetUserByID(ctx, userID)
}

// GetUserByIdentifier accepts either a numeric id or a username.
func (s *UserService) GetUserByIdentifier(ctx context.Context, identifier string) (models.User, error) {
	identifier = strings.TrimSpace(identifier)
	switch id, err := strconv.ParseInt(identifier, 10, 64); {
	case identifier == "":
		return models.User{}, sql.ErrNoRows
	case err == nil:
		return s.store.GetUserByID(ctx, id)
	default:
		return s.store.GetUserByUsername(ctx, normalizeUsername(identifier))
	}
}

// CreateUser registers an account. The first account becomes ADMIN; later
// ones need open registration or a HOST/ADMIN creator, and only such a
// creator may pick the role.
func (s *UserService) CreateUser(ctx context.Context, creator *models.User, input CreateUserInput, allowRegistration bool) (models.User, error) {
	in, err := input.normalize()
	if err != nil {
		return models.User{}, err
	}

	existing, err := s.store.CountUsers(ctx)
	if err != nil {
		return models.User{}, err
	}
	privileged := creator != nil && isSuperUserRole(creator.Role)
	role := RoleUser
	switch {
	case existing == 0:
		role = RoleAdmin
	case privileged:
		if in.Role != "" {
			role = in.Role
		}
	case !allowRegistration:
		return models.User{}, ErrRegistrationDisabled
	}

	if _, err := s.store.GetUserByUsername(ctx, in.Username); err == nil {
		return models.User{}, ErrUsernameAlreadyExists
	} else if !errors.Is(err, sql.ErrNoRows) {
		return models.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}
	user, err := s.store.CreateUserWithProfile(ctx, in.Username, in.DisplayName, string(hash), role)
	if isUniqueConstraintErr(err) {
		return models.User{}, ErrUsernameAlreadyExists
	}
	return user, err
}

// SignInWithPassword checks the credentials and issues a fresh token. Unknown
// users and wrong passwords are indistinguishable to the caller.
func (s *UserService) SignInWithPassword(ctx context.Context, username string, password string) (models.User, string, error) {
	username = normalizeUsername(username)
	if username == "" || password == "" {
		return models.User{}, "", ErrInvalidCredentials
	}

	user, err := s.store.GetUserByUsername(ctx, username)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return models.User{}, "", ErrInvalidCredentials
	case err != nil:
		return models.User{}, "", err
	case user.PasswordHash == "":
		return models.User{}, "", ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return models.User{}, "", ErrInvalidCredentials
	}

	token, err := s.issueToken(ctx, user.ID, "signin token", nil)
	if err != nil {
		return models.User{}, "", err
	}
	return user, token, nil
}

func isUniqueConstraintErr(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "constraint failed")
}

func normalizeUsername(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func isSuperUserRole(role string) bool {
	switch strings.ToUpper(strings.TrimSpace(role)) {
	case RoleHost, RoleAdmin:
		return true
	}
	return false
}
