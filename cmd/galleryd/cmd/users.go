package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/mail"
	"os"
	"strings"

	"github.com/photogrid/gallery/internal/config"
	"github.com/photogrid/gallery/internal/db/bunx"
	"github.com/photogrid/gallery/internal/db/models"
	"github.com/photogrid/gallery/internal/identity/local"
	"github.com/photogrid/gallery/internal/logging"
	"github.com/photogrid/gallery/internal/repository"
	"github.com/spf13/cobra"
)

var (
	userEmail    string
	userName     string
	userPassword string
	userStdin    bool
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage accounts of the local identity provider",
}

var usersCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a gallery account",
	RunE: func(cmd *cobra.Command, args []string) error {
		if userEmail == "" {
			return fmt.Errorf("--email flag is required")
		}

		password := userPassword
		if userStdin {
			scanner := bufio.NewScanner(os.Stdin)
			fmt.Fprint(cmd.ErrOrStderr(), "Enter password: ")
			if scanner.Scan() {
				password = scanner.Text()
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
		}
		if password == "" {
			return fmt.Errorf("password is required (use --password or --stdin)")
		}

		addr, err := mail.ParseAddress(userEmail)
		if err != nil {
			return fmt.Errorf("invalid email format: %w", err)
		}

		if cfg.Auth.Provider != config.ProviderLocal {
			return fmt.Errorf("accounts are managed by %s; set AUTH_PROVIDER=local to create local users", cfg.Auth.Provider)
		}

		ctx := context.Background()
		db, err := bunx.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer bunx.Close(db)

		users := repository.NewBunUserRepository(db)
		email := strings.ToLower(addr.Address)

		if _, err := users.GetByEmail(ctx, email); err == nil {
			return fmt.Errorf("user with email %s already exists", email)
		} else if !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("failed to look up user: %w", err)
		}

		hash, err := local.HashPassword(password)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}

		user := &models.User{
			ID:           bunx.NewUUIDv7(),
			Email:        email,
			Name:         userName,
			PasswordHash: &hash,
		}
		if err := users.Create(ctx, user); err != nil {
			return err
		}

		logging.Info().Str("id", user.ID).Str("email", user.Email).Msg("user created")
		fmt.Fprintf(cmd.OutOrStdout(), "Created user %s (%s)\n", user.Email, user.ID)
		return nil
	},
}

func init() {
	usersCreateCmd.Flags().StringVar(&userEmail, "email", "", "Email address used to sign in")
	usersCreateCmd.Flags().StringVar(&userName, "name", "", "Display name")
	usersCreateCmd.Flags().StringVar(&userPassword, "password", "", "Password (prefer --stdin)")
	usersCreateCmd.Flags().BoolVar(&userStdin, "stdin", false, "Read the password from stdin")

	usersCmd.AddCommand(usersCreateCmd)
	rootCmd.AddCommand(usersCmd)
}
