package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"genjobs/internal/bootstrap"
	"genjobs/internal/domain"
	"genjobs/internal/infra"
	"genjobs/internal/infra/credentials"
)

func keyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage stored provider API keys",
		Long:  `Provider keys are encrypted with CREDENTIALS_ENCRYPTION_KEY and stored in DATABASE_URL.`,
	}
	cmd.AddCommand(keySetCmd())
	cmd.AddCommand(keyDeleteCmd())
	cmd.AddCommand(keyListCmd())
	return cmd
}

// withStore opens the credential store for the duration of fn.
func withStore(cmdName string, fn func(ctx context.Context, store *credentials.Store) error) error {
	cfg := &infra.Config{
		DatabaseURL:    strings.TrimSpace(os.Getenv("DATABASE_URL")),
		CredentialsKey: strings.TrimSpace(os.Getenv("CREDENTIALS_ENCRYPTION_KEY")),
	}
	if cfg.CredentialsKey == "" {
		return fmt.Errorf("CREDENTIALS_ENCRYPTION_KEY is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	logger := infra.NewLogger("cli").With().Str("cmd", cmdName).Logger()
	store, pool, err := bootstrap.OpenCredentialStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, store)
}

func parseFamily(v string) (domain.ProviderFamily, error) {
	switch domain.ProviderFamily(strings.ToLower(strings.TrimSpace(v))) {
	case domain.FamilyRunpod:
		return domain.FamilyRunpod, nil
	case domain.FamilyReplicate:
		return domain.FamilyReplicate, nil
	default:
		return "", fmt.Errorf("unsupported provider %q (runpod or replicate)", v)
	}
}

func envKeyFor(family domain.ProviderFamily) string {
	if family == domain.FamilyReplicate {
		return "REPLICATE_API_TOKEN"
	}
	return "RUNPOD_API_KEY"
}

func keySetCmd() *cobra.Command {
	var provider, key string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store an API key for a provider family",
		Long: `Store an API key for a provider family. The key falls back to the
family's environment variable when --key is omitted.

Examples:
  genctl key set --provider runpod --key rp_xxx
  REPLICATE_API_TOKEN=r8_xxx genctl key set --provider replicate`,
		RunE: func(cmd *cobra.Command, args []string) error {
			family, err := parseFamily(provider)
			if err != nil {
				return err
			}
			key = strings.TrimSpace(key)
			if key == "" {
				key = strings.TrimSpace(os.Getenv(envKeyFor(family)))
			}
			if key == "" {
				return fmt.Errorf("%s key is required via --key or %s", family, envKeyFor(family))
			}
			return withStore("key-set", func(ctx context.Context, store *credentials.Store) error {
				if err := store.SetAPIKey(ctx, family, key); err != nil {
					return fmt.Errorf("failed to persist %s api key: %w", family, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s api key stored\n", family)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&provider, "provider", string(domain.FamilyRunpod), "provider family (runpod or replicate)")
	cmd.Flags().StringVar(&key, "key", "", "API key (defaults to the family's environment variable)")
	return cmd
}

func keyDeleteCmd() *cobra.Command {
	var provider string

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Remove the stored API key of a provider family",
		RunE: func(cmd *cobra.Command, args []string) error {
			family, err := parseFamily(provider)
			if err != nil {
				return err
			}
			return withStore("key-delete", func(ctx context.Context, store *credentials.Store) error {
				if err := store.DeleteAPIKey(ctx, family); err != nil {
					return fmt.Errorf("failed to delete %s api key: %w", family, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s api key deleted\n", family)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "provider family (runpod or replicate)")
	_ = cmd.MarkFlagRequired("provider")
	return cmd
}

func keyListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List provider families with a stored key",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore("key-list", func(ctx context.Context, store *credentials.Store) error {
				keys, err := store.List(ctx)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "PROVIDER\tUPDATED")
				for _, k := range keys {
					fmt.Fprintf(w, "%s\t%s\n", k.Provider, k.UpdatedAt.Format(time.RFC3339))
				}
				return w.Flush()
			})
		},
	}
}
