package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/smartpest-api/internal/auth"
	"github.com/smartpest-api/internal/database"
	"github.com/smartpest-api/internal/modelfetch"
	"github.com/smartpest-api/internal/reference"
	"github.com/smartpest-api/internal/repository"
	"github.com/smartpest-api/internal/service"
)

// withDB opens the database for the duration of fn
func (a *app) withDB(fn func(db *database.DB) error) error {
	db, err := a.openDB()
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}

// newServices wires the service layer without a classifier, for admin commands
func (a *app) newServices(db *database.DB) *service.Services {
	ref := reference.Load(a.cfg.Reference.DescriptionsPath, a.cfg.Reference.PesticidesPath, a.log)
	return service.NewServices(service.Dependencies{
		Repos:     repository.New(db),
		Reference: ref,
		Tokens:    auth.NewTokenManager(a.cfg.Auth.JWTSecret, a.cfg.Auth.TokenTTL, a.cfg.Auth.Issuer),
	}, a.cfg, a.log)
}

func (a *app) migrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withDB(func(db *database.DB) error {
					return db.RunMigrations(a.cfg.Database.MigrationsPath)
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withDB(func(db *database.DB) error {
					return db.MigrateDown(a.cfg.Database.MigrationsPath)
				})
			},
		},
		&cobra.Command{
			Use:   "goto <version>",
			Short: "Migrate up or down to a specific version",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				version, err := strconv.ParseUint(args[0], 10, 32)
				if err != nil {
					return fmt.Errorf("invalid version %q: %w", args[0], err)
				}
				return a.withDB(func(db *database.DB) error {
					return db.MigrateToVersion(a.cfg.Database.MigrationsPath, uint(version))
				})
			},
		},
	)
	return cmd
}

func (a *app) createAdminCommand() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an admin account or promote an existing user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDB(func(db *database.DB) error {
				user, err := a.newServices(db).User.CreateAdmin(cmd.Context(), email, password)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "admin %s (%s) ready\n", user.Email, user.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "admin email address")
	cmd.Flags().StringVar(&password, "password", "", "admin password")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("password")
	return cmd
}

func (a *app) seedCatalogCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed-catalog",
		Short: "Load pests and pesticides from the reference tables into the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDB(func(db *database.DB) error {
				result, err := a.newServices(db).Catalog.Seed(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "inserted %d pests, %d pesticides (%d skipped)\n",
					result.PestsInserted, result.PesticidesInserted, result.Skipped)
				return nil
			})
		},
	}
}

func (a *app) fetchModelCommand() *cobra.Command {
	var url, dest string

	cmd := &cobra.Command{
		Use:   "fetch-model",
		Short: "Download classifier weights",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				url = a.cfg.Model.DownloadURL
			}
			if url == "" {
				return errors.New("no download URL: pass --url or set MODEL_DOWNLOAD_URL")
			}
			if dest == "" {
				dest = a.cfg.Model.PrimaryPath
			}

			n, err := modelfetch.New(a.cfg.Model.DownloadLimit, a.log).Fetch(cmd.Context(), url, dest)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes to %s\n", n, dest)
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "weight file URL (defaults to MODEL_DOWNLOAD_URL)")
	cmd.Flags().StringVar(&dest, "dest", "", "destination path (defaults to MODEL_PRIMARY_PATH)")
	return cmd
}
