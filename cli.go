package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

type app struct {
	v   *viper.Viper
	cfg *Config
	log *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "journal",
		Short:         "A single-author learning journal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.ErrOrStderr())
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}

	flags := root.PersistentFlags()
	flags.String("database-url", "", "database URL or SQLite path (DATABASE_URL)")
	flags.String("app-env", "", "environment: local, dev or prod (APP_ENV)")
	flags.String("log-level", "", "log level override (LOG_LEVEL)")
	_ = a.v.BindPFlag("database_url", flags.Lookup("database-url"))
	_ = a.v.BindPFlag("app_env", flags.Lookup("app-env"))
	_ = a.v.BindPFlag("log_level", flags.Lookup("log-level"))

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve the journal over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
	serve.Flags().String("addr", "", "listen address (ADDR)")
	_ = a.v.BindPFlag("addr", serve.Flags().Lookup("addr"))

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, _, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			return db.Close()
		},
	}

	seed := &cobra.Command{
		Use:   "seed",
		Short: "Insert sample entries into an empty journal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, _, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := seedDB(cmd.Context(), db)
			if err != nil {
				return fmt.Errorf("seeding database: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d entries\n", n)
			return nil
		},
	}

	root.AddCommand(serve, migrate, seed, newHashPasswordCmd())

	return root
}

// newHashPasswordCmd needs no configuration, so it skips the root setup.
func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a bcrypt hash suitable for AUTH_PASSWORD",
		Args:  cobra.MaximumNArgs(1),
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var password string
			if len(args) == 1 {
				password = args[0]
			} else {
				var err error
				password, err = readPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
				if err != nil {
					return err
				}
			}
			if password == "" {
				return validationError("password must not be empty")
			}

			hash, err := encodePassword(password)
			if err != nil {
				return fmt.Errorf("hashing password: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func readPassword(in io.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "Password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (a *app) setup(logOut io.Writer) error {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := loadConfig(a.v)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	a.cfg = cfg
	a.log = newLogger(cfg.Env, cfg.LogLevel, logOut)

	if len(cfg.Defaulted) > 0 {
		if cfg.Env == EnvProd {
			a.log.Warn("insecure development defaults in use", "settings", cfg.Defaulted)
		} else {
			a.log.Debug("using development defaults", "settings", cfg.Defaulted)
		}
	}

	return nil
}

// openStore connects to the configured store and migrates it.
func (a *app) openStore(ctx context.Context) (*sql.DB, dialect, error) {
	db, d, err := openDB(ctx, a.cfg.DatabaseURL)
	if err != nil {
		return nil, d, fmt.Errorf("opening database: %w", err)
	}

	version, err := migrateDB(ctx, db, d)
	if err != nil {
		db.Close()
		return nil, d, fmt.Errorf("migrating database: %w", err)
	}

	a.log.Info("database ready", "dialect", string(d), "schema_version", version)
	return db, d, nil
}

func (a *app) serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, _, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	gate := NewGate(a.cfg.Principal(), []byte(a.cfg.Secret), a.cfg.SessionTTL, a.cfg.SecureCookies)
	journal := NewJournal(db, gate, a.log, a.cfg.SecureCookies)

	srv := &http.Server{
		Addr:              a.cfg.Addr,
		Handler:           journal.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		a.log.Info("server starting", "addr", a.cfg.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
