package models

import (
	"strconv"
	"time"
)

// User owns saved filters and groups; every filter query is scoped to one.
type User struct {
	ID           int64
	Username     string
	DisplayName  string
	PasswordHash string
	Role         string
	CreateTime   time.Time
	UpdateTime   time.Time
}

// PersonalAccessToken is the stored half of a bearer token. Only the hash
// and a short display prefix are kept.
type PersonalAccessToken struct {
	ID          int64
	UserID      int64
	TokenPrefix string
	TokenHash   string
	Description string
	CreatedAt   time.Time
	LastUsedAt  *time.Time
	ExpiresAt   *time.Time
	RevokedAt   *time.Time
}

// Active reports whether the token still authenticates at now.
func (t PersonalAccessToken) Active(now time.Time) bool {
	if t.RevokedAt != nil {
		return false
	}
	return t.ExpiresAt == nil || t.ExpiresAt.After(now)
}

// Name is the user's resource name, users/{id}.
func (u User) Name() string {
	return "users/" + Int64ToString(u.ID)
}

func Int64ToString(v int64) string {
	return strconv.FormatInt(v, 10)
}
