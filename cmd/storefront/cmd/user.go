package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/storefront/config"
	"github.com/jmcleod/storefront/internal/uuid"
	"github.com/jmcleod/storefront/user"
)

var (
	userEmail string
	userName  string
	userAdmin bool
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "User account tools",
	Long:  `Commands for seeding accounts in the configured user store.`,
}

var userAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a user and print its id",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.Users.Store == config.BackendMemory {
			return errors.New("the memory user store does not persist; configure bbolt or mongo")
		}
		email := strings.TrimSpace(userEmail)
		if email == "" {
			return errors.New("--email is required")
		}

		b, err := openUserBackend(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer b.Close()

		u := &user.User{
			ID:        uuid.New(),
			Email:     email,
			Name:      strings.TrimSpace(userName),
			IsAdmin:   userAdmin,
			CreatedAt: time.Now().UTC(),
		}
		if err := b.users.Put(cmd.Context(), u); err != nil {
			return fmt.Errorf("saving user: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), u.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userAddCmd)
	userAddCmd.Flags().StringVar(&userEmail, "email", "", "Email address")
	userAddCmd.Flags().StringVar(&userName, "name", "", "Display name")
	userAddCmd.Flags().BoolVar(&userAdmin, "admin", false, "Grant administrator access")
	userAddCmd.Flags().StringVar(&dataDir, "data-dir", "./data", "Directory for persistent data")
	userAddCmd.Flags().StringVar(&userStore, "user-store", config.BackendBolt, "User store: bbolt or mongo")
}
