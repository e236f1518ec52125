// Command tenant-seed manages clinic tenant records from a YAML file.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clinic_webhook_backend/internal/tenants"
	"clinic_webhook_backend/platform/db"
	"clinic_webhook_backend/platform/logger"
	"clinic_webhook_backend/platform/validator"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type databaseURL string

func (d databaseURL) GetDatabaseURL() string { return string(d) }

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var dsn string

	root := &cobra.Command{
		Use:           "tenant-seed",
		Short:         "Create, update and inspect clinic tenants",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&dsn, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")

	root.AddCommand(newApplyCmd(&dsn), newLookupCmd(&dsn))
	return root
}

func newApplyCmd(dsn *string) *cobra.Command {
	var (
		file   string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Upsert every tenant listed in a seed file, keyed by slug",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()

			params, err := parseSeedFile(f, validator.New())
			if err != nil {
				return err
			}
			if dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "%d tenant(s) valid\n", len(params))
				return nil
			}

			repo, closeFn, err := openRepository(cmd.Context(), *dsn)
			if err != nil {
				return err
			}
			defer closeFn()

			log := logger.New("production")
			for _, p := range params {
				t, err := repo.Upsert(cmd.Context(), p)
				if err != nil {
					log.DatabaseError("upsert tenant "+p.Slug, err)
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", t.ID, t.Slug, t.DeviceID)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML seed file")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate the file without writing")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newLookupCmd(dsn *string) *cobra.Command {
	var device string

	cmd := &cobra.Command{
		Use:   "lookup",
		Short: "Resolve a provider device id to its tenant",
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, closeFn, err := openRepository(cmd.Context(), *dsn)
			if err != nil {
				return err
			}
			defer closeFn()

			resolver := tenants.NewResolver(repo, logger.New("production"))
			t, ok, err := resolver.ResolveByDeviceID(cmd.Context(), device)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no tenant for device %q", device)
			}
			return writeTenant(cmd.OutOrStdout(), t)
		},
	}
	cmd.Flags().StringVar(&device, "device", "", "provider device id")
	_ = cmd.MarkFlagRequired("device")
	return cmd
}

func openRepository(ctx context.Context, dsn string) (*tenants.Repository, func(), error) {
	if dsn == "" {
		return nil, nil, errors.New("DATABASE_URL is required")
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := db.NewPool(connectCtx, databaseURL(dsn))
	if err != nil {
		return nil, nil, err
	}
	return tenants.NewRepository(pool), pool.Close, nil
}
