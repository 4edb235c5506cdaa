package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"CourseEntries/internal/backup"
	"CourseEntries/internal/bootstrap"
	"CourseEntries/internal/config"
	"CourseEntries/internal/permissions"
	"CourseEntries/pkg/logger"
)

// cli общее состояние команд
type cli struct {
	configPath string
	cfg        *config.Config
}

// rootCommand собирает дерево команд
func rootCommand() *cobra.Command {
	c := &cli{}
	rootCmd := &cobra.Command{
		Use:           "entriesctl",
		Short:         "Course entries administration",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&c.configPath, "config", os.Getenv("CONFIG_FILE"), "path to config file")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(c.configPath)
		if err != nil {
			return err
		}
		c.cfg = cfg
		return logger.Init(cfg.Log.Level)
	}
	rootCmd.AddCommand(c.migrateCommand(), c.backupCommand(), c.restoreCommand(), c.purgeCommand(), c.grantCommand())
	return rootCmd
}

func (c *cli) migrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back Postgres migrations",
	}
	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withMigrator(cmd.Context(), func(m *migrate.Migrate) error {
				return m.Up()
			})
		},
	}
	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the last migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if steps <= 0 {
				return fmt.Errorf("steps must be positive, got %d", steps)
			}
			return c.withMigrator(cmd.Context(), func(m *migrate.Migrate) error {
				return m.Steps(-steps)
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	cmd.AddCommand(up, down)
	return cmd
}

func (c *cli) backupCommand() *cobra.Command {
	var courseID int64
	var out string
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Export entries of a course to YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var w io.Writer = cmd.OutOrStdout()
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", out, err)
				}
				defer f.Close()
				w = f
			}
			return c.withServices(cmd.Context(), func(deps *bootstrap.Services) error {
				n, err := backup.NewManager(deps.Entries, logger.WithModule("backup")).Export(cmd.Context(), courseID, w)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "exported %d entries of course %d\n", n, courseID)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&courseID, "course", 0, "course id")
	cmd.Flags().StringVar(&out, "out", "", "output file (stdout when empty)")
	_ = cmd.MarkFlagRequired("course")
	return cmd
}

func (c *cli) restoreCommand() *cobra.Command {
	var courseID int64
	var in string
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Import entries from a YAML backup into a course",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := os.Open(in)
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", in, err)
			}
			defer f.Close()
			return c.withServices(cmd.Context(), func(deps *bootstrap.Services) error {
				res, err := backup.NewManager(deps.Entries, logger.WithModule("backup")).Import(cmd.Context(), courseID, f)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "restored %d entries into course %d, skipped %d\n", res.Imported, courseID, res.Skipped)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&courseID, "course", 0, "target course id")
	cmd.Flags().StringVar(&in, "in", "", "backup file")
	_ = cmd.MarkFlagRequired("course")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}

func (c *cli) purgeCommand() *cobra.Command {
	var courseID int64
	cmd := &cobra.Command{
		Use:   "purge-course",
		Short: "Delete all entries of a course as if the course was deleted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if courseID <= 0 {
				return fmt.Errorf("invalid course id %d", courseID)
			}
			return c.withServices(cmd.Context(), func(deps *bootstrap.Services) error {
				if err := deps.Entries.OnCourseDeleted(cmd.Context(), courseID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "purged entries of course %d\n", courseID)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&courseID, "course", 0, "course id")
	_ = cmd.MarkFlagRequired("course")
	return cmd
}

func (c *cli) grantCommand() *cobra.Command {
	var courseID int64
	var user, capName string
	cmd := &cobra.Command{
		Use:   "grant",
		Short: "Grant a user a capability in a course",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := c.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			return grant(cmd.Context(), permissions.NewChecker(db), cmd.OutOrStdout(), user, courseID, capName)
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id (X-User-ID)")
	cmd.Flags().Int64Var(&courseID, "course", 0, "course id")
	cmd.Flags().StringVar(&capName, "cap", "view", "capability: view or edit")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("course")
	return cmd
}

// grant проверяет аргументы и выдаёт право
func grant(ctx context.Context, checker *permissions.Checker, out io.Writer, user string, courseID int64, capName string) error {
	capability, err := permissions.ParseCapability(capName)
	if err != nil {
		return err
	}
	if user == "" || courseID <= 0 {
		return fmt.Errorf("invalid user %q or course %d", user, courseID)
	}
	if err := checker.Grant(ctx, user, courseID, capability); err != nil {
		return err
	}
	fmt.Fprintf(out, "granted %s to %s in course %d\n", capability, user, courseID)
	return nil
}

func (c *cli) openDB(ctx context.Context) (*sql.DB, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return bootstrap.OpenPostgres(ctx, c.cfg.DB)
}

func (c *cli) withMigrator(ctx context.Context, fn func(m *migrate.Migrate) error) error {
	db, err := c.openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()
	m, err := bootstrap.NewMigrator(db, c.cfg.Migrations.Postgres)
	if err != nil {
		return err
	}
	if err := fn(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}
	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read migration version: %w", err)
	}
	logger.Logger().Info("migrations done", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}

func (c *cli) withServices(ctx context.Context, fn func(deps *bootstrap.Services) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	db, err := c.openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()
	log := logger.Logger()
	deps, err := bootstrap.Build(ctx, c.cfg, db, log)
	if err != nil {
		return err
	}
	defer deps.Close(log)
	return fn(deps)
}
