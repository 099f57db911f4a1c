// Command hrctl is the operator CLI of the HR engine: schema migrations,
// one-off probation scans, entitlement lookups and API tokens.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/hr-engine/absence"
	"github.com/warp/hr-engine/api"
	"github.com/warp/hr-engine/app"
	"github.com/warp/hr-engine/config"
	"github.com/warp/hr-engine/employee"
	"github.com/warp/hr-engine/generic"
	"github.com/warp/hr-engine/store/sqlite"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type options struct {
	configPath string
	verbose    bool
}

func (o *options) logger() *zap.Logger {
	if !o.verbose {
		return zap.NewNop()
	}
	logger, _ := zap.NewDevelopment()
	return logger
}

// newApp loads the config and wires the engine. The caller must Close it.
func (o *options) newApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	a, err := app.New(ctx, cfg, o.logger())
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "hrctl",
		Short:         "HR engine operator tool",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to TOML or YAML config file")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log to stderr")

	root.AddCommand(
		newMigrateCmd(opts),
		newWorkingDaysCmd(),
		newEntitlementCmd(opts),
		newScanProbationCmd(opts),
		newTokenCmd(opts),
	)
	return root
}

func newMigrateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return fmt.Errorf("reading config: %w", err)
			}

			if cfg.Database.Type != "sqlite" || cfg.Database.ORM {
				// gorm-backed stores migrate themselves on open
				s, err := app.OpenStore(cfg.Database, opts.logger())
				if err != nil {
					return err
				}
				if c, ok := s.(interface{ Close() error }); ok {
					c.Close()
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s schema is up to date\n", cfg.Database.Type)
				return nil
			}

			db, err := sqlite.Open(cfg.Database.Path)
			if err != nil {
				return err
			}
			defer db.Close()

			before, _, err := sqlite.SchemaVersion(db)
			if err != nil {
				return err
			}
			if err := sqlite.MigrateUp(db); err != nil {
				return err
			}
			after, dirty, err := sqlite.SchemaVersion(db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d -> %d (dirty: %t)\n", before, after, dirty)
			return nil
		},
	}
}

func newWorkingDaysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "working-days START END",
		Short: "Count Monday-Friday days in a date range (inclusive)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := generic.ParseDate(args[0])
			if err != nil {
				return fmt.Errorf("invalid start date: %w", err)
			}
			end, err := generic.ParseDate(args[1])
			if err != nil {
				return fmt.Errorf("invalid end date: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), absence.WorkingDays(start, end))
			return nil
		},
	}
}

func newEntitlementCmd(opts *options) *cobra.Command {
	var company string
	cmd := &cobra.Command{
		Use:   "entitlement USER_ID",
		Short: "Print a user's entitlement for the current year",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := opts.newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			e, err := a.Absences.Entitlement(ctx, company, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Year:               %d\n", e.Year)
			fmt.Fprintf(out, "Vacation total:     %s\n", e.VacationTotal.Value)
			fmt.Fprintf(out, "Vacation taken:     %s\n", e.VacationTaken.Value)
			fmt.Fprintf(out, "Vacation planned:   %s\n", e.VacationPlanned.Value)
			fmt.Fprintf(out, "Vacation remaining: %s\n", e.VacationRemaining.Value)
			fmt.Fprintf(out, "Sick days (self):   %s\n", e.SickDaysSelf.Value)
			fmt.Fprintf(out, "Sick days (child):  %s\n", e.SickDaysChild.Value)
			return nil
		},
	}
	cmd.Flags().StringVar(&company, "company", "", "Company id")
	cmd.MarkFlagRequired("company")
	return cmd
}

func newScanProbationCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "scan-probation COMPANY_ID",
		Short: "Run the probation milestone scan once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := opts.newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Scanner.Scan(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scanned %d, sent %d, failed %d\n", res.Scanned, res.Sent, res.Failed)
			return nil
		},
	}
}

func newTokenCmd(opts *options) *cobra.Command {
	var (
		company string
		role    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token USER_ID",
		Short: "Mint an API bearer token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return fmt.Errorf("reading config: %w", err)
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwt_secret (HR_JWT_SECRET) is not set")
			}
			r := employee.Role(role)
			if !r.Valid() {
				return fmt.Errorf("unknown role: %s", role)
			}

			tok, err := api.GenerateToken(cfg.Auth.JWTSecret, api.Principal{
				UserID:    args[0],
				CompanyID: company,
				Role:      r,
			}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&company, "company", "", "Company id")
	cmd.Flags().StringVar(&role, "role", string(employee.RoleEmployee), "Role claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	cmd.MarkFlagRequired("company")
	return cmd
}
