package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cashflowhq/ledgersync/internal/scheduler"
	"github.com/cashflowhq/ledgersync/pkg/config"
	"github.com/cashflowhq/ledgersync/pkg/flexibee"
	"github.com/cashflowhq/ledgersync/pkg/ledger"
	"github.com/cashflowhq/ledgersync/pkg/logger"
	"github.com/cashflowhq/ledgersync/pkg/vault"
)

var version = "0.1.0"

// app holds the wired component stack shared by the subcommands.
type app struct {
	settings *config.Settings
	store    *config.Store
	entries  *ledger.SQLiteStore
}

func (a *app) connector() *flexibee.Connector {
	return flexibee.NewConnector(a.settings, a.store, a.entries)
}

func (a *app) close() {
	if a.entries != nil {
		_ = a.entries.Close()
	}
	_ = logger.Sync()
}

func newApp(settingsFile string) (*app, error) {
	settings, err := config.LoadSettings(settingsFile)
	if err != nil {
		return nil, err
	}

	if err := logger.Init(logger.Config{
		Level:    settings.LogLevel,
		Encoding: "json",
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := os.MkdirAll(settings.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	v, err := vault.Open(settings.KeyFile())
	if err != nil {
		return nil, err
	}

	entries, err := ledger.OpenSQLite(settings.LedgerFile())
	if err != nil {
		return nil, err
	}

	return &app{
		settings: settings,
		store:    config.NewStore(settings.ConfigFile(), v),
		entries:  entries,
	}, nil
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	var settingsFile string
	var a *app

	root := &cobra.Command{
		Use:   "ledgersync",
		Short: "ledgersync - FlexiBee invoice synchronization for the cashflow ledger",
		Long: `ledgersync keeps a local cashflow ledger in sync with invoices in a
FlexiBee company. It fetches issued and received invoices over the REST
API with rate limiting and retries, and reconciles them into the local
SQLite ledger without touching manually entered transactions.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			var err error
			a, err = newApp(settingsFile)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a != nil {
				a.close()
			}
		},
	}
	root.PersistentFlags().StringVar(&settingsFile, "settings", "ledgersync.yaml", "settings file")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ledgersync v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(newConfigCmd(func() *app { return a }))
	root.AddCommand(newTestCmd(func() *app { return a }))
	root.AddCommand(newSyncCmd(func() *app { return a }))
	root.AddCommand(newScheduleCmd(func() *app { return a }))
	root.AddCommand(newStatsCmd(func() *app { return a }))

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newConfigCmd(getApp func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the synchronization configuration",
	}

	var url, company, user, password, importFrom string
	var enabled bool

	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Store connection settings and credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			cfg, err := a.store.Load()
			if err != nil {
				return err
			}

			if url != "" {
				cfg.Host = url
			}
			if company != "" {
				cfg.Company = company
			}
			if user != "" {
				cfg.User = user
			}
			if password != "" {
				cfg.Password = password
			}
			if importFrom != "" {
				cfg.ImportFromDate = importFrom
			}
			if cmd.Flags().Changed("enabled") {
				cfg.Enabled = enabled
			}

			if err := a.store.Save(cfg); err != nil {
				return err
			}
			fmt.Println("configuration saved")
			return nil
		},
	}
	setCmd.Flags().StringVar(&url, "url", "", "server URL, e.g. https://demo.flexibee.eu")
	setCmd.Flags().StringVar(&company, "company", "", "company identifier")
	setCmd.Flags().StringVar(&user, "user", "", "API username")
	setCmd.Flags().StringVar(&password, "password", "", "API password")
	setCmd.Flags().StringVar(&importFrom, "import-from", "", "only import invoices due on or after this date (YYYY-MM-DD)")
	setCmd.Flags().BoolVar(&enabled, "enabled", false, "enable or disable synchronization")
	cmd.AddCommand(setCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the stored configuration with the password masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getApp().store.Load()
			if err != nil {
				return err
			}
			if cfg.Password != "" {
				cfg.Password = strings.Repeat("*", 8)
			}
			out, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	})

	return cmd
}

func newTestCmd(getApp func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Verify the stored credentials against the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			serverVersion, err := getApp().connector().TestConnection(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("connection ok, server version %s\n", serverVersion)
			return nil
		},
	}
}

func newSyncCmd(getApp func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one synchronization and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			result, err := getApp().connector().RunSync(ctx)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

func newScheduleCmd(getApp func() *app) *cobra.Command {
	var interval time.Duration
	var listen, webhookSecret string

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Synchronize periodically until interrupted",
		Long: `Runs synchronization on a fixed interval. When --listen is set an HTTP
server additionally exposes Prometheus metrics on /metrics and, with
--webhook-secret, a change-notification endpoint on /webhook that
triggers an immediate run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			log := logger.Get()
			conn := a.connector()
			sched := scheduler.New(interval, func(ctx context.Context) error {
				_, err := conn.RunSync(ctx)
				return err
			}, log)

			var server *http.Server
			if listen != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.Handler())
				if webhookSecret != "" {
					mux.Handle("/webhook", flexibee.NewWebhookHandler(webhookSecret, sched.Trigger, log))
				}
				server = &http.Server{Addr: listen, Handler: mux}
				go func() {
					log.Info("HTTP server listening", zap.String("addr", listen))
					if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						log.Error("HTTP server failed", zap.Error(err))
					}
				}()
			}

			sched.Start(ctx)
			sched.Trigger()
			<-ctx.Done()

			sched.Stop()
			if server != nil {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				_ = server.Shutdown(shutdownCtx)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", time.Hour, "time between synchronization runs")
	cmd.Flags().StringVar(&listen, "listen", "", "address for the metrics and webhook HTTP server")
	cmd.Flags().StringVar(&webhookSecret, "webhook-secret", "", "shared secret for webhook signatures")
	return cmd
}

func newStatsCmd(getApp func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print ledger totals and sync state",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			entries, err := a.entries.LoadEntries()
			if err != nil {
				return err
			}
			cfg, err := a.store.Load()
			if err != nil {
				return err
			}

			var income, expense float64
			var synced int
			for _, e := range entries {
				if e.Amount >= 0 {
					income += e.Amount
				} else {
					expense += e.Amount
				}
				if e.HasSource(flexibee.SourcePrefix) {
					synced++
				}
			}

			fmt.Printf("entries:        %d (%d synced from FlexiBee)\n", len(entries), synced)
			fmt.Printf("income total:   %.2f\n", income)
			fmt.Printf("expense total:  %.2f\n", expense)
			fmt.Printf("balance:        %.2f\n", income+expense)
			if cfg.LastSync != "" {
				fmt.Printf("last sync:      %s\n", cfg.LastSync)
			} else {
				fmt.Printf("last sync:      never\n")
			}
			return nil
		},
	}
}
