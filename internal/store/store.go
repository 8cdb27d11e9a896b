package store

import (
	"context"

	"github.com/me/gatehouse/pkg/model"
)

// UserStore defines the persistence layer for user accounts.
//
// Lookups return (nil, nil) when the user does not exist.
type UserStore interface {
	GetUser(ctx context.Context, username string) (*model.User, error)
	ListUsers(ctx context.Context) ([]*model.User, error)
	CreateUser(ctx context.Context, u *model.User) error

	Close() error
}
