package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Lazyjimpressions/ourvidz-sub002/internal/adapter/repo"
	"github.com/Lazyjimpressions/ourvidz-sub002/internal/infra"
	"github.com/Lazyjimpressions/ourvidz-sub002/internal/infra/credentials"
)

var providerKeyEnv = map[string]string{
	credentials.ProviderWorkerPool: "WORKER_POOL_API_KEY",
	credentials.ProviderStorageAPI: "STORAGE_API_KEY",
}

// SetKeyCmd stores a provider API key in integration_tokens so deployments
// can leave it out of the environment.
func SetKeyCmd() *cobra.Command {
	var (
		provider, key string
		remove        bool
	)
	cmd := &cobra.Command{
		Use:   "set-key",
		Short: "stores a provider API key in the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			provider = strings.ToLower(strings.TrimSpace(provider))
			envKey, ok := providerKeyEnv[provider]
			if !ok {
				return fmt.Errorf("unsupported provider %q", provider)
			}
			key = strings.TrimSpace(key)
			if key == "" && !remove {
				key = strings.TrimSpace(os.Getenv(envKey))
			}
			if key == "" && !remove {
				return fmt.Errorf("%s key is required via --key or %s", provider, envKey)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()
			pool, logger, err := openDB(ctx, "set-key")
			if err != nil {
				return err
			}
			defer pool.Close()

			store := credentials.NewStore(infra.NewSQLRunner(pool, logger))
			if remove {
				removed, err := store.DeleteToken(ctx, provider)
				if err != nil {
					return fmt.Errorf("clear %s key: %w", provider, err)
				}
				if !removed {
					fmt.Fprintf(cmd.OutOrStdout(), "no stored %s key\n", provider)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s key cleared\n", provider)
				return nil
			}
			if err := store.SetToken(ctx, provider, key); err != nil {
				return fmt.Errorf("store %s key: %w", provider, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s key stored\n", provider)
			return nil
		},
	}
	cmd.Flags().StringVar(&provider, "provider", credentials.ProviderWorkerPool, "provider to configure (worker_pool or storage_api)")
	cmd.Flags().StringVar(&key, "key", "", "API key (falls back to the provider's environment variable)")
	cmd.Flags().BoolVar(&remove, "clear", false, "remove the stored key instead of setting one")
	return cmd
}

// InstallNotifyCmd installs the trigger that pushes status changes to the
// realtime listener.
func InstallNotifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install-notify",
		Short: "installs the status change trigger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()
			pool, logger, err := openDB(ctx, "install-notify")
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := repo.NewJobRepository(infra.NewSQLRunner(pool, logger)).InstallStatusNotify(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "status trigger installed")
			return nil
		},
	}
}

func openDB(ctx context.Context, name string) (*pgxpool.Pool, *infra.Logger, error) {
	_ = godotenv.Load()
	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		return nil, nil, errors.New("DATABASE_URL is required")
	}
	// Keep stdout for command output.
	logger := zerolog.New(os.Stderr).Level(zerolog.WarnLevel).With().Timestamp().Str("cmd", name).Logger()
	pool, err := infra.NewDBPool(ctx, &infra.Config{DatabaseURL: dbURL})
	if err != nil {
		return nil, nil, err
	}
	return pool, &logger, nil
}
