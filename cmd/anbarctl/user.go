package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hybrid-bistoon/anbar/internal/models"
	"github.com/hybrid-bistoon/anbar/internal/repository"
	"github.com/hybrid-bistoon/anbar/internal/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	userPassword string
	userRole     string
	userName     string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Warehouse accounts",
}

var userCreateCmd = &cobra.Command{
	Use:   "create <username>",
	Short: "Create an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		username := strings.TrimSpace(args[0])
		if username == "" {
			return errors.New("username is required")
		}
		if len(userPassword) < 6 {
			return errors.New("password must be at least 6 characters")
		}
		if userRole != models.RoleAdmin && userRole != models.RolePicker {
			return fmt.Errorf("role must be %q or %q", models.RoleAdmin, models.RolePicker)
		}

		e, err := open(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		hash, err := utils.HashPassword(userPassword)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		u := &models.UserAuth{
			Username: username,
			Password: hash,
			Name:     userName,
			Role:     userRole,
			IsActive: true,
		}
		err = e.store.CreateUser(cmd.Context(), u)
		if errors.Is(err, repository.ErrDuplicate) {
			return fmt.Errorf("user %q already exists", username)
		}
		if err != nil {
			return err
		}
		e.log.Info("👤 User created", zap.String("username", username), zap.String("role", userRole))
		return nil
	},
}

func init() {
	userCreateCmd.Flags().StringVarP(&userPassword, "password", "p", "", "password (required)")
	userCreateCmd.Flags().StringVarP(&userRole, "role", "r", models.RolePicker, "admin or picker")
	userCreateCmd.Flags().StringVar(&userName, "name", "", "display name")
	userCreateCmd.MarkFlagRequired("password")
	userCmd.AddCommand(userCreateCmd)
}
