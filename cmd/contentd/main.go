package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/mickamy/contentorm/content"
	"github.com/mickamy/contentorm/internal/admin"
	"github.com/mickamy/contentorm/internal/config"
	"github.com/mickamy/contentorm/internal/database"
	"github.com/mickamy/contentorm/internal/gen"
	"github.com/mickamy/contentorm/internal/httpapi"
	"github.com/mickamy/contentorm/internal/logging"
	"github.com/mickamy/contentorm/internal/migrate"
	"github.com/mickamy/contentorm/internal/upload"
	"github.com/mickamy/contentorm/orm"
	"github.com/mickamy/contentorm/schema"
)

func main() {
	args := os.Args
	if len(args) == 1 {
		args = append(args, "--help")
	}

	root := &cli.Command{
		Name:  "contentd",
		Usage: "Headless content server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "contentd.yaml",
				Usage:   "configuration file",
				Sources: cli.EnvVars("CONTENTD_CONFIG"),
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
			syncCommand(),
			adminCommand(),
			genCommand(),
		},
	}

	if err := root.Run(context.Background(), args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app is what every command needs: the configuration, the logger and an
// open database.
type app struct {
	cfg    *config.Config
	logger *logging.Logger
	db     *orm.DB
}

func setup(ctx context.Context, c *cli.Command) (context.Context, *app, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return ctx, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return ctx, nil, err
	}
	b, err := logging.New().FromConfig(cfg.Logging)
	if err != nil {
		return ctx, nil, err
	}
	logger, err := b.Make()
	if err != nil {
		return ctx, nil, err
	}
	ctx = logger.WithContext(ctx)

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		_ = logger.Close()
		return ctx, nil, err
	}
	if cfg.Database.Debug {
		db = db.Debug(logging.QueryLogger{Fallback: logger.Logger})
	}
	return ctx, &app{cfg: cfg, logger: logger, db: db}, nil
}

func (a *app) close() {
	_ = a.db.Close()
	_ = a.logger.Close()
}

// registry loads and resolves the content types of the schema directory.
func (a *app) registry() (*schema.Registry, error) {
	return loadRegistry(a.cfg.Schema.Dir)
}

func loadRegistry(dir string) (*schema.Registry, error) {
	r := schema.NewRegistry()
	if err := r.LoadDir(dir); err != nil {
		return nil, err
	}
	if err := r.Resolve(); err != nil {
		return nil, err
	}
	return r, nil
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Migrate, sync content types and run the HTTP server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "HTTP listen address, overrides server.addr"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, a, err := setup(ctx, c)
			if err != nil {
				return err
			}
			defer a.close()
			if addr := c.String("addr"); addr != "" {
				a.cfg.Server.Addr = addr
			}
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	log := zerolog.Ctx(ctx)

	if err := migrate.Up(ctx, a.db); err != nil {
		return err
	}
	registry, err := a.registry()
	if err != nil {
		return err
	}
	if err := migrate.SyncContentTypes(ctx, a.db, registry); err != nil {
		return err
	}

	roles := admin.NewRoles(a.db)
	users := admin.NewUsers(a.db, roles)
	if err := roles.EnsureDefaultRoles(ctx); err != nil {
		return err
	}
	if a.cfg.Admin.Email != "" {
		if err := users.BootstrapAdmin(ctx, a.cfg.Admin.Email, a.cfg.Admin.Password, a.cfg.Admin.Firstname, a.cfg.Admin.Lastname); err != nil {
			return err
		}
	}
	if err := users.DisplayWarningIfUsersDontHaveRole(ctx); err != nil {
		return err
	}

	store := content.NewStore(a.db, registry)
	storage, err := upload.NewDiskProvider(a.cfg.Upload.Dir, a.cfg.Upload.BaseURL)
	if err != nil {
		return err
	}
	uploads, err := upload.NewService(store, storage, a.cfg.Upload.MaxSize)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr: a.cfg.Server.Addr,
		Handler: httpapi.NewRouter(httpapi.Deps{
			Store:   store,
			Users:   users,
			Roles:   roles,
			Uploads: uploads,
			Storage: storage,
			Logger:  a.logger.Logger,
		}),
		ReadHeaderTimeout: a.cfg.ReadHeaderTimeout(),
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Int("models", len(registry.Models())).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.ShutdownTimeout())
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply the pending admin migrations",
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, a, err := setup(ctx, c)
			if err != nil {
				return err
			}
			defer a.close()
			if err := migrate.Up(ctx, a.db); err != nil {
				return err
			}
			v, err := migrate.Version(ctx, a.db)
			if err != nil {
				return err
			}
			fmt.Printf("admin schema at version %d\n", v)
			return nil
		},
	}
}

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Create the missing tables of the content types",
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, a, err := setup(ctx, c)
			if err != nil {
				return err
			}
			defer a.close()
			registry, err := a.registry()
			if err != nil {
				return err
			}
			if err := migrate.SyncContentTypes(ctx, a.db, registry); err != nil {
				return err
			}
			fmt.Printf("synced %d content types and %d groups\n", len(registry.Models()), len(registry.Groups()))
			return nil
		},
	}
}

func adminCommand() *cli.Command {
	return &cli.Command{
		Name:  "admin",
		Usage: "Administrator maintenance",
		Commands: []*cli.Command{
			{
				Name:  "reset-password",
				Usage: "Set a new password for an administrator",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Required: true},
					&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Required: true},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					ctx, a, err := setup(ctx, c)
					if err != nil {
						return err
					}
					defer a.close()
					users := admin.NewUsers(a.db, admin.NewRoles(a.db))
					if err := users.ResetPasswordByEmail(ctx, c.String("email"), c.String("password")); err != nil {
						return err
					}
					fmt.Printf("password of %s changed\n", c.String("email"))
					return nil
				},
			},
		},
	}
}

func genCommand() *cli.Command {
	return &cli.Command{
		Name:  "gen",
		Usage: "Generate typed models and query factories for the content types",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Value: "models/models_gen.go", Usage: "output file"},
			&cli.StringFlag{Name: "package", Usage: "package name, defaults to the output directory name"},
		},
		Action: func(_ context.Context, c *cli.Command) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}
			registry, err := loadRegistry(cfg.Schema.Dir)
			if err != nil {
				return err
			}

			out := c.String("out")
			pkg := c.String("package")
			if pkg == "" {
				pkg = filepath.Base(filepath.Dir(out))
			}
			src, err := gen.RenderRegistry(pkg, registry)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
				return fmt.Errorf("create output directory: %w", err)
			}
			if err := os.WriteFile(out, src, 0o644); err != nil { //nolint:gosec // generated source is not secret
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Printf("generated %s\n", out)
			return nil
		},
	}
}
