package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"rfid-fare-gateway/config"
	pgStorage "rfid-fare-gateway/internal/adapter/storage/postgres"
	"rfid-fare-gateway/internal/app"
	"rfid-fare-gateway/internal/core/domain"
	"rfid-fare-gateway/internal/service"
	"rfid-fare-gateway/pkg/logger"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const flagConfig = "config"

type cliContext struct {
	cfg *config.Config
	log zerolog.Logger
}

func newRootCommand() *cobra.Command {
	rt := &cliContext{}
	cmd := &cobra.Command{
		Use:           "faregate",
		Short:         "RFID bus fare gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			path, err := cmd.Flags().GetString(flagConfig)
			if err != nil {
				return err
			}
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			rt.cfg = cfg
			rt.log = logger.New(cfg.Log.Level, cfg.Log.Pretty)
			return nil
		},
	}
	cmd.PersistentFlags().String(flagConfig, "", "path to config file (default ./config.yaml)")

	cmd.AddCommand(
		newServeCommand(rt),
		newMigrateCommand(rt),
		newUserCommand(rt),
		newTokenCommand(rt),
		newDigestCommand(rt),
	)
	return cmd
}

func newServeCommand(rt *cliContext) *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and websocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := rt.cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt.log.Info().
				Str("mode", rt.cfg.Server.Mode).
				Str("driver", rt.cfg.Database.Driver).
				Str("addr", rt.cfg.Server.Addr()).
				Msg("starting fare gateway")

			a, err := app.New(ctx, rt.cfg, rt.log)
			if err != nil {
				return err
			}
			defer a.Close()

			if migrate {
				applied, err := a.Migrate(ctx)
				if err != nil {
					return fmt.Errorf("migrating: %w", err)
				}
				if len(applied) > 0 {
					rt.log.Info().Strs("versions", applied).Msg("migrations applied")
				}
			}
			return a.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply pending migrations before serving")
	return cmd
}

func newMigrateCommand(rt *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending PostgreSQL migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rt.cfg.Database.Driver != config.DriverPostgres {
				return fmt.Errorf("migrate requires the %q driver", config.DriverPostgres)
			}
			pool, err := pgStorage.NewPool(cmd.Context(), rt.cfg.Database, rt.log)
			if err != nil {
				return err
			}
			defer pool.Close()

			applied, err := pgStorage.Migrate(cmd.Context(), pool, rt.log)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
				return nil
			}
			for _, v := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", v)
			}
			return nil
		},
	}
}

func newUserCommand(rt *cliContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage identity records",
	}

	var name, role, email, phone, card string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a passenger or conductor, optionally linking a card",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rt.cfg.Database.Driver != config.DriverPostgres {
				return fmt.Errorf("user create requires the %q driver", config.DriverPostgres)
			}
			r := domain.Role(role)
			if !r.Valid() {
				return fmt.Errorf("role must be %q or %q", domain.RolePassenger, domain.RoleConductor)
			}
			if name == "" {
				return errors.New("--name is required")
			}

			ctx := cmd.Context()
			identity, users, closeFn, err := openIdentity(ctx, rt)
			if err != nil {
				return err
			}
			defer closeFn()

			user := &domain.User{ID: uuid.New(), Name: name, Role: r}
			if user.EmailEnc, err = encryptOptional(identity, email); err != nil {
				return err
			}
			if user.PhoneEnc, err = encryptOptional(identity, phone); err != nil {
				return err
			}
			if err := users.Create(ctx, user); err != nil {
				return fmt.Errorf("creating user: %w", err)
			}
			if card != "" {
				if err := identity.LinkCard(ctx, user.ID, card); err != nil {
					return fmt.Errorf("user %s created, card not linked: %w", user.ID, err)
				}
			}

			fmt.Fprintln(cmd.OutOrStdout(), user.ID.String())
			return nil
		},
	}
	create.Flags().StringVar(&name, "name", "", "display name")
	create.Flags().StringVar(&role, "role", string(domain.RolePassenger), "passenger or conductor")
	create.Flags().StringVar(&email, "email", "", "email address (stored encrypted)")
	create.Flags().StringVar(&phone, "phone", "", "phone number (stored encrypted)")
	create.Flags().StringVar(&card, "card", "", "RFID card UID to link")

	cmd.AddCommand(create)
	return cmd
}

func newTokenCommand(rt *cliContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage access tokens",
	}

	var (
		userID string
		role   string
		expiry time.Duration
	)
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Issue a bearer token for a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rt.cfg.JWT.Secret == "" {
				return errors.New("jwt.secret is required")
			}
			id, err := uuid.Parse(userID)
			if err != nil {
				return fmt.Errorf("invalid --user-id: %w", err)
			}
			r := domain.Role(role)
			if !r.Valid() {
				return fmt.Errorf("role must be %q or %q", domain.RolePassenger, domain.RoleConductor)
			}
			if expiry <= 0 {
				expiry = rt.cfg.JWT.Expiry
			}

			token, expiresAt, err := service.NewJWTTokenService(rt.cfg.JWT.Secret, expiry, rt.cfg.JWT.Issuer).Generate(id, r)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			cmd.PrintErrf("expires %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	issue.Flags().StringVar(&userID, "user-id", "", "user id (uuid)")
	issue.Flags().StringVar(&role, "role", string(domain.RolePassenger), "passenger or conductor")
	issue.Flags().DurationVar(&expiry, "expiry", 0, "token lifetime (default jwt.expiry)")

	cmd.AddCommand(issue)
	return cmd
}

func newDigestCommand(rt *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "digest <uid>",
		Short: "Print the search digest stored for a card UID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := service.DeriveKeys(rt.cfg.Crypto.Secret)
			if err != nil {
				return err
			}
			digestSvc, err := service.NewBlake3DigestService(keys.DigestKey)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), digestSvc.Digest(args[0]))
			return nil
		},
	}
}

func openIdentity(ctx context.Context, rt *cliContext) (*service.IdentityService, *pgStorage.UserRepo, func(), error) {
	keys, err := service.DeriveKeys(rt.cfg.Crypto.Secret)
	if err != nil {
		return nil, nil, nil, err
	}
	encSvc, err := service.NewAESEncryptionService(keys.EncryptionKey)
	if err != nil {
		return nil, nil, nil, err
	}
	digestSvc, err := service.NewBlake3DigestService(keys.DigestKey)
	if err != nil {
		return nil, nil, nil, err
	}

	pool, err := pgStorage.NewPool(ctx, rt.cfg.Database, rt.log)
	if err != nil {
		return nil, nil, nil, err
	}
	users := pgStorage.NewUserRepo(pool)
	return service.NewIdentityService(users, encSvc, digestSvc, rt.log), users, pool.Close, nil
}

func encryptOptional(identity *service.IdentityService, value string) (*string, error) {
	if value == "" {
		return nil, nil
	}
	enc, err := identity.Encrypt(value)
	if err != nil {
		return nil, fmt.Errorf("encrypting: %w", err)
	}
	return &enc, nil
}
