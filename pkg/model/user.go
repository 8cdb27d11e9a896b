package model

import (
	"fmt"
	"strings"
)

// Role represents the role of a user in the system.
type Role string

const (
	// RoleUser is a standard authenticated user.
	RoleUser Role = "user"
	// RoleAdmin may register new users.
	RoleAdmin Role = "admin"
)

// DefaultAvatar is the avatar path assigned when no file was uploaded.
const DefaultAvatar = "uploads/default.png"

// MaxUsernameLen is the longest accepted username, in bytes.
const MaxUsernameLen = 64

// reservedUsernames name files the server itself keeps in the upload dir.
var reservedUsernames = []string{"default"}

// ValidUsername reports whether name can be used as a username. A username
// is a single URL path segment on /home/ and the base name of the user's
// avatar file.
func ValidUsername(name string) bool {
	if name == "" || name == "." || name == ".." || len(name) > MaxUsernameLen {
		return false
	}
	for _, r := range reservedUsernames {
		if strings.EqualFold(name, r) {
			return false
		}
	}
	return !strings.ContainsAny(name, "/\\?#%\x00") && !strings.ContainsFunc(name, isSpace)
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

// ParseRole validates a role string.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleUser:
		return RoleUser, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

// User is a row of the user table.
type User struct {
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	Role         Role   `json:"role"`
	Avatar       string `json:"avatar"` // relative path, e.g. "uploads/alice.png"
}

// IsAdmin returns true if the user has admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// AvatarURL returns the absolute URL path of the user's avatar.
func (u *User) AvatarURL() string {
	avatar := u.Avatar
	if avatar == "" {
		avatar = DefaultAvatar
	}
	return "/" + strings.TrimPrefix(avatar, "/")
}
