/*
main.go - Application entry point

PURPOSE:
  Command-line entry point of the attendance engine. Runs the HTTP server
  and offers one-shot commands for payroll operators: recalculate a month,
  print sheets and daily breakdowns, export a month to Excel.

COMMANDS:
  serve      HTTP API with the recalculation coordinator and sweeper
  recalc     Recalculate one employee's month, or every employee (--all)
  sheet      Print stored sheets
  breakdown  Print the per-day classification of one month
  export     Write a month's sheets to an .xlsx workbook

CONFIGURATION (later wins):
  1. engine.yml in --config-dir (defaults when missing)
  2. .env file in the working directory
  3. ATTENDANCE_* environment variables (ATTENDANCE_DRIVER, ATTENDANCE_DSN, ...)
  4. Command-line flags

STARTUP SEQUENCE (serve):
  1. Load configuration
  2. Open the store (memory, sqlite or mongo)
  3. Seed configured holidays
  4. Start the coordinator and the sweeper
  5. Start the HTTP server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the sweeper and the coordinator
  4. Close the store

EXAMPLES:
  # Serve from a file database
  attendance-engine serve --dsn ./data/attendance.db

  # Recalculate March for everyone, then print the sheets
  attendance-engine recalc --month 2025-03 --all
  attendance-engine sheet --month 2025-03

  # Hand March to payroll
  attendance-engine export --month 2025-03 --out march.xlsx

SEE ALSO:
  - config/config.go: engine.yml
  - api/server.go: Router configuration
  - recalc/coordinator.go: Recalculation Coordinator
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/warp/attendance-engine/api"
	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/attendance/store"
	"github.com/warp/attendance-engine/calendar"
	"github.com/warp/attendance-engine/config"
	"github.com/warp/attendance-engine/recalc"
	"github.com/warp/attendance-engine/report"
	"github.com/warp/attendance-engine/store/mongodb"
	"github.com/warp/attendance-engine/store/sqlite"
)

var rootCmd = &cobra.Command{
	Use:           "attendance-engine",
	Short:         "Attendance hour classification and monthly aggregation",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	// A missing .env file is normal outside development.
	_ = godotenv.Load()

	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("ATTENDANCE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.String("config-dir", ".", "directory containing engine.yml")
	flags.String("driver", "", "store driver: memory, sqlite or mongo (overrides engine.yml)")
	flags.String("dsn", "", "SQLite database path, \":memory:\" for in-memory")
	flags.String("mongo-uri", "", "MongoDB connection URI")
	flags.String("mongo-database", "", "MongoDB database name")
	flags.Bool("json", false, "output JSON")
	for _, name := range []string{"config-dir", "driver", "dsn", "mongo-uri", "mongo-database", "json"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(recalcCmd())
	rootCmd.AddCommand(sheetCmd())
	rootCmd.AddCommand(breakdownCmd())
	rootCmd.AddCommand(exportCmd())
}

// =============================================================================
// ENGINE WIRING
// =============================================================================

// engineStore is the full capability set every store driver provides.
type engineStore interface {
	attendance.RecordStore
	attendance.RecordWriter
	attendance.EmployeeLister
	attendance.SheetStore
	attendance.SheetLister
	attendance.StaleScanner
	attendance.LeaveLedger
	attendance.HolidayStore
	attendance.RunRecorder
}

type engine struct {
	cfg         *config.Config
	store       engineStore
	calendar    *calendar.Calendar
	coordinator *recalc.Coordinator
	closeStore  func()
}

// loadConfig reads engine.yml and applies env/flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOptional(config.Path(viper.GetString("config-dir")))
	if err != nil {
		return nil, err
	}
	if v := viper.GetString("driver"); v != "" {
		cfg.Store.Driver = v
	}
	if v := viper.GetString("dsn"); v != "" {
		cfg.Store.DSN = v
	}
	if v := viper.GetString("mongo-uri"); v != "" {
		cfg.Store.MongoURI = v
	}
	if v := viper.GetString("mongo-database"); v != "" {
		cfg.Store.MongoDatabase = v
	}
	if v := viper.GetString("addr"); v != "" {
		cfg.Server.Addr = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openStore(ctx context.Context, cfg *config.Config) (engineStore, func(), error) {
	switch cfg.Store.Driver {
	case "memory":
		return store.NewMemory(), func() {}, nil
	case "sqlite":
		s, err := sqlite.New(cfg.Store.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		return s, func() { s.Close() }, nil
	case "mongo":
		s, err := mongodb.Connect(ctx, cfg.Store.MongoURI, cfg.Store.MongoDatabase)
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		return s, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			s.Close(ctx)
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

// openEngine builds the store, calendar and a started coordinator.
func openEngine(ctx context.Context) (*engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	holidays, err := cfg.HolidayList()
	if err != nil {
		closeStore()
		return nil, err
	}
	for _, h := range holidays {
		if err := st.SaveHoliday(ctx, h); err != nil {
			closeStore()
			return nil, fmt.Errorf("seed holiday %s: %w", h.Date, err)
		}
	}

	rules, err := cfg.Rules()
	if err != nil {
		closeStore()
		return nil, err
	}
	cal, err := calendar.New(rules, st)
	if err != nil {
		closeStore()
		return nil, err
	}

	coord := recalc.New(recalc.Deps{
		Records:  st,
		Sheets:   st,
		Calendar: cal,
		Leave:    st,
		Runs:     st,
	}, cfg.RecalcOptions())
	coord.Start(ctx)

	return &engine{cfg: cfg, store: st, calendar: cal, coordinator: coord, closeStore: closeStore}, nil
}

func (e *engine) Close() {
	e.coordinator.Stop()
	e.closeStore()
}

func withEngine(ctx context.Context, fn func(context.Context, *engine) error) error {
	e, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer e.Close()
	return fn(ctx, e)
}

// =============================================================================
// SERVE
// =============================================================================

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			e, err := openEngine(context.Background())
			if err != nil {
				return err
			}
			defer e.Close()

			sweeper := recalc.NewSweeper(e.coordinator, e.store)
			sweeper.Interval = e.cfg.Recalc.SweepInterval
			sweeper.Start()
			defer sweeper.Stop()

			handler := api.NewHandler(e.coordinator, e.store, e.calendar)
			handler.Sweeper = sweeper
			router := api.NewRouter(handler, e.cfg.Server.AllowedOrigins)

			server := &http.Server{
				Addr:         e.cfg.Server.Addr,
				Handler:      router,
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 60 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Printf("[Server] Listening on %s (store: %s)", e.cfg.Server.Addr, e.cfg.Store.Driver)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server failed: %w", err)
				}
			case <-ctx.Done():
			}

			log.Println("[Server] Shutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server forced to shutdown: %w", err)
			}
			log.Println("[Server] Stopped")
			return nil
		},
	}
	cmd.Flags().String("addr", "", "listen address (overrides engine.yml)")
	_ = viper.BindPFlag("addr", cmd.Flags().Lookup("addr"))
	return cmd
}

// =============================================================================
// ONE-SHOT COMMANDS
// =============================================================================

// parseMonth parses YYYY-MM.
func parseMonth(s string) (int, time.Month, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: month %q (use YYYY-MM)", attendance.ErrInvalidKey, s)
	}
	return t.Year(), t.Month(), nil
}

func recalcCmd() *cobra.Command {
	var month, employee string
	var all bool
	cmd := &cobra.Command{
		Use:   "recalc",
		Short: "Recalculate sheets and wait for the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			year, m, err := parseMonth(month)
			if err != nil {
				return err
			}
			if all == (employee != "") {
				return errors.New("pass exactly one of --employee or --all")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine) error {
				employees := []string{employee}
				if all {
					if employees, err = e.store.EmployeesWithRecords(ctx, year, m); err != nil {
						return err
					}
				}
				for _, id := range employees {
					if err := e.coordinator.Trigger(id, year, m); err != nil {
						if errors.Is(err, recalc.ErrNotOwner) {
							log.Printf("[Recalc] Skipping %s: owned by another shard", id)
							continue
						}
						return err
					}
				}
				if err := e.coordinator.Drain(ctx); err != nil {
					return err
				}

				var sheets []attendance.Sheet
				var failed []string
				for _, id := range employees {
					key := attendance.NewSheetKey(id, year, m)
					if st := e.coordinator.Status(key); st.LastError != "" {
						failed = append(failed, fmt.Sprintf("%s: %s", key, st.LastError))
						continue
					}
					if s, err := e.coordinator.Sheet(ctx, id, year, m); err == nil {
						sheets = append(sheets, s)
					}
				}
				if err := printSheets(sheets); err != nil {
					return err
				}
				if len(failed) > 0 {
					return fmt.Errorf("%d recalculation(s) failed:\n  %s", len(failed), strings.Join(failed, "\n  "))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&month, "month", "", "month to recalculate (YYYY-MM)")
	cmd.Flags().StringVar(&employee, "employee", "", "employee id")
	cmd.Flags().BoolVar(&all, "all", false, "every employee with records in the month")
	_ = cmd.MarkFlagRequired("month")
	return cmd
}

func sheetCmd() *cobra.Command {
	var month, employee string
	cmd := &cobra.Command{
		Use:   "sheet",
		Short: "Print stored sheets of a month",
		RunE: func(cmd *cobra.Command, args []string) error {
			year, m, err := parseMonth(month)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine) error {
				if employee == "" {
					sheets, err := e.store.ListSheets(ctx, year, m)
					if err != nil {
						return err
					}
					return printSheets(sheets)
				}
				s, err := e.coordinator.Sheet(ctx, employee, year, m)
				if err != nil {
					return err
				}
				return printSheets([]attendance.Sheet{s})
			})
		},
	}
	cmd.Flags().StringVar(&month, "month", "", "month (YYYY-MM)")
	cmd.Flags().StringVar(&employee, "employee", "", "employee id (default: all)")
	_ = cmd.MarkFlagRequired("month")
	return cmd
}

func breakdownCmd() *cobra.Command {
	var month, employee string
	cmd := &cobra.Command{
		Use:   "breakdown",
		Short: "Print the per-day classification of one month without saving it",
		RunE: func(cmd *cobra.Command, args []string) error {
			year, m, err := parseMonth(month)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine) error {
				res, err := e.coordinator.Breakdown(ctx, attendance.NewSheetKey(employee, year, m))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				report.RenderBreakdown(os.Stdout, res)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&month, "month", "", "month (YYYY-MM)")
	cmd.Flags().StringVar(&employee, "employee", "", "employee id")
	_ = cmd.MarkFlagRequired("month")
	_ = cmd.MarkFlagRequired("employee")
	return cmd
}

func exportCmd() *cobra.Command {
	var month, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a month's sheets to an Excel workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			year, m, err := parseMonth(month)
			if err != nil {
				return err
			}
			if out == "" {
				out = fmt.Sprintf("attendance-%04d-%02d.xlsx", year, int(m))
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine) error {
				sheets, err := e.store.ListSheets(ctx, year, m)
				if err != nil {
					return err
				}
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				if err := report.ExportWorkbook(f, sheets); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				fmt.Printf("Wrote %d sheet(s) to %s\n", len(sheets), out)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&month, "month", "", "month (YYYY-MM)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default attendance-YYYY-MM.xlsx)")
	_ = cmd.MarkFlagRequired("month")
	return cmd
}
