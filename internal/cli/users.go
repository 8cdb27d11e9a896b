package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/me/gatehouse/internal/avatar"
	"github.com/me/gatehouse/internal/password"
	"github.com/me/gatehouse/internal/store"
	"github.com/me/gatehouse/pkg/model"
	"github.com/spf13/cobra"
)

func openStore(ctx context.Context) (store.UserStore, error) {
	return store.Open(ctx, cfg.Users.Backend, cfg.Users.CSVPath, cfg.Users.SQLitePath, logger)
}

func newHasher() (*password.Hasher, error) {
	return password.NewHasher(password.Scheme(cfg.Password.Scheme), cfg.Password.BcryptCost)
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the bootstrap admin and user1 accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			hasher, err := newHasher()
			if err != nil {
				return err
			}
			created, err := store.Seed(ctx, st, hasher, store.DefaultSeed)
			if err != nil {
				return fmt.Errorf("seed: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(created) == 0 {
				fmt.Fprintln(out, "Bootstrap accounts already exist.")
				return nil
			}
			for _, name := range created {
				fmt.Fprintf(out, "Created user %s\n", name)
			}
			return nil
		},
	}
}

func newUserAddCmd() *cobra.Command {
	var (
		pw         string
		role       string
		avatarFile string
	)

	cmd := &cobra.Command{
		Use:   "useradd <username>",
		Short: "Add a user to the user table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			username := args[0]
			if !model.ValidUsername(username) {
				return fmt.Errorf("%w: %q", model.ErrInvalidUsername, username)
			}

			r, err := model.ParseRole(role)
			if err != nil {
				return err
			}
			if pw == "" {
				return errors.New("--password is required")
			}

			st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			existing, err := st.GetUser(ctx, username)
			if err != nil && !errors.Is(err, model.ErrStoreUnavailable) {
				return err
			}
			if existing != nil {
				return fmt.Errorf("%s: %w", username, model.ErrUserExists)
			}

			avatarPath := model.DefaultAvatar
			if avatarFile != "" {
				f, err := os.Open(avatarFile)
				if err != nil {
					return fmt.Errorf("open avatar: %w", err)
				}
				defer f.Close()

				maxSize, err := cfg.MaxUploadBytes()
				if err != nil {
					return err
				}
				storage := avatar.NewStorage(cfg.Upload.Dir, maxSize, logger)
				avatarPath, err = storage.Save(username, filepath.Base(avatarFile), f)
				if err != nil {
					return fmt.Errorf("save avatar: %w", err)
				}
			}

			hasher, err := newHasher()
			if err != nil {
				return err
			}
			hash, err := hasher.Hash(pw)
			if err != nil {
				return err
			}

			if err := st.CreateUser(ctx, &model.User{
				Username:     username,
				PasswordHash: hash,
				Role:         r,
				Avatar:       avatarPath,
			}); err != nil {
				return fmt.Errorf("create user: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "User '%s' created successfully.\n", username)
			return nil
		},
	}

	cmd.Flags().StringVar(&pw, "password", "", "Password for the new user")
	cmd.Flags().StringVar(&role, "role", "user", "Role (admin, user)")
	cmd.Flags().StringVar(&avatarFile, "avatar", "", "Avatar image (.png, .jpg, .jpeg, .gif)")
	return cmd
}

func newUsersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			users, err := st.ListUsers(ctx)
			if err != nil {
				return fmt.Errorf("list users: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(users) == 0 {
				fmt.Fprintln(out, "No users found.")
				return nil
			}

			fmt.Fprintf(out, "%-24s  %-6s  %s\n", "USERNAME", "ROLE", "AVATAR")
			fmt.Fprintf(out, "%-24s  %-6s  %s\n", "--------", "----", "------")
			for _, u := range users {
				fmt.Fprintf(out, "%-24s  %-6s  %s\n", u.Username, u.Role, u.Avatar)
			}
			return nil
		},
	}
}

func newHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash <password>",
		Short: "Print the stored form of a password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hasher, err := newHasher()
			if err != nil {
				return err
			}
			hash, err := hasher.Hash(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import-csv <users.csv>",
		Short: "Copy users from a CSV table into the SQLite backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			dst, err := store.NewSQLiteStore(cfg.Users.SQLitePath, logger)
			if err != nil {
				return err
			}
			defer dst.Close()
			if err := dst.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}

			n, err := dst.ImportCSV(ctx, store.NewCSVStore(args[0], logger))
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d users into %s\n", n, cfg.Users.SQLitePath)
			return nil
		},
	}
}
