package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/course-checkout/internal"
	"github.com/frahmantamala/course-checkout/internal/auth"
)

var (
	tokenUserID int64
	tokenRole   string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an access token",
	Long:  `Sign a bearer token for a user and role with the configured JWT secret, for local testing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		token, err := auth.NewJWTTokenGenerator(cfg.Security).
			GenerateAccessToken(tokenUserID, internal.Role(tokenRole))
		if err != nil {
			return fmt.Errorf("failed to sign token: %w", err)
		}
		cmd.Println(token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().Int64Var(&tokenUserID, "user", 0, "user id to embed in the token")
	tokenCmd.Flags().StringVar(&tokenRole, "role", string(internal.RoleLearner), "learner, educator, coordinator or admin")
	_ = tokenCmd.MarkFlagRequired("user")

	rootCmd.AddCommand(tokenCmd)
}
