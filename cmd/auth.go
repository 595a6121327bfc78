package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mgrande/ladevakt/config"
	"github.com/mgrande/ladevakt/infra/auth"
	"github.com/mgrande/ladevakt/infra/logger"
)

var (
	authAccessToken  string
	authRefreshToken string
	authExpiresIn    int
)

// The initial token pair comes out of the provider's authorization flow,
// which runs in a browser. This command installs the result so the service
// can refresh on its own from then on.
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Install an OAuth token pair for the live vehicle source",
	RunE:  runAuth,
}

func init() {
	authCmd.Flags().StringVar(&authAccessToken, "access-token", "", "access token")
	authCmd.Flags().StringVar(&authRefreshToken, "refresh-token", "", "refresh token")
	authCmd.Flags().IntVar(&authExpiresIn, "expires-in", 3600, "access token lifetime in seconds")
	_ = authCmd.MarkFlagRequired("refresh-token")
	rootCmd.AddCommand(authCmd)
}

func runAuth(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.Tesla.Enabled {
		return fmt.Errorf("tesla source is not enabled in %s", cfgPath)
	}
	store, err := auth.NewStore(cfg.Tesla.Auth, logger.New("auth"))
	if err != nil {
		return err
	}
	expiry := time.Now().Add(time.Duration(authExpiresIn) * time.Second)
	if err := store.SetTokens(authAccessToken, authRefreshToken, expiry); err != nil {
		return fmt.Errorf("persist token pair: %w", err)
	}
	fmt.Printf("token pair stored in %s\n", cfg.Tesla.Auth.TokenFile)
	return nil
}
