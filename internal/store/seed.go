package store

import (
	"context"
	"errors"

	"github.com/me/gatehouse/internal/password"
	"github.com/me/gatehouse/pkg/model"
)

// SeedAccount is a bootstrap user with a plaintext password.
type SeedAccount struct {
	Username string
	Password string
	Role     model.Role
}

// DefaultSeed holds the bootstrap accounts of a fresh installation.
var DefaultSeed = []SeedAccount{
	{Username: "admin", Password: "1234", Role: model.RoleAdmin},
	{Username: "user1", Password: "4321", Role: model.RoleUser},
}

// Seed creates the given accounts, skipping ones that already exist.
// It returns the usernames that were created.
func Seed(ctx context.Context, st UserStore, hasher *password.Hasher, accounts []SeedAccount) ([]string, error) {
	var created []string
	for _, acc := range accounts {
		hash, err := hasher.Hash(acc.Password)
		if err != nil {
			return created, err
		}
		err = st.CreateUser(ctx, &model.User{
			Username:     acc.Username,
			PasswordHash: hash,
			Role:         acc.Role,
			Avatar:       model.DefaultAvatar,
		})
		if errors.Is(err, model.ErrUserExists) {
			continue
		}
		if err != nil {
			return created, err
		}
		created = append(created, acc.Username)
	}
	return created, nil
}
