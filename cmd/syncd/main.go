// Command syncd runs the health-measurement → FHIR sync service.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"example.com/healthsync/internal/api"
	"example.com/healthsync/internal/auth"
	"example.com/healthsync/internal/config"
	"example.com/healthsync/internal/events"
	"example.com/healthsync/internal/fhir"
	"example.com/healthsync/internal/health"
	"example.com/healthsync/internal/persistence/postgres"
	"example.com/healthsync/internal/prefs"
	syncpipe "example.com/healthsync/internal/sync"
	httptransport "example.com/healthsync/internal/transport/http"
)

func main() {
	root := &cobra.Command{
		Use:           "syncd",
		Short:         "Sync health measurements to a FHIR server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), syncCmd(), purgeCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app bundles the wired components shared by the subcommands.
type app struct {
	cfg          *config.Config
	logger       zerolog.Logger
	pool         *pgxpool.Pool
	store        *postgres.Store
	settings     *prefs.Store
	tracker      *syncpipe.Tracker
	orchestrator *syncpipe.Orchestrator
	fhirClient   *fhir.Client
	notifier     *events.Notifier
}

func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Str("service", "healthsync").Logger()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	store := postgres.NewStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	settings := prefs.NewStore(prefs.Seed{
		AllowDuplicates:   cfg.AllowDuplicates,
		CleanupAgeDays:    cfg.CleanupAgeDays,
		AutoSyncFrequency: cfg.AutoSyncFrequency,
		AutoSyncKinds:     cfg.AutoSyncKinds,
		GivenName:         cfg.PatientGivenName,
		FamilyName:        cfg.PatientFamilyName,
	})

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	fhirClient, err := fhir.NewClient(httpClient, cfg.FHIRBaseURL)
	if err != nil {
		pool.Close()
		return nil, err
	}
	source, err := health.NewSource(httpClient, cfg.ProviderBaseURL, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}

	tracker := syncpipe.NewTracker(store, logger)
	notifier := events.NewNotifier(cfg.KafkaBrokers)
	orchestrator := syncpipe.NewOrchestrator(
		source,
		fhir.NewPatientResolver(fhirClient, settings, logger),
		fhir.NewMapper(logger),
		fhir.NewUploader(fhirClient, logger),
		tracker,
		store,
		notifier,
		logger,
	)

	return &app{
		cfg:          cfg,
		logger:       logger,
		pool:         pool,
		store:        store,
		settings:     settings,
		tracker:      tracker,
		orchestrator: orchestrator,
		fhirClient:   fhirClient,
		notifier:     notifier,
	}, nil
}

func (a *app) close() {
	_ = a.notifier.Close()
	a.pool.Close()
}

// fhirConnectivity gates scheduled runs on FHIR server reachability.
type fhirConnectivity struct {
	client *fhir.Client
}

func (c fhirConnectivity) Online(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.client.Ping(probeCtx) == nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the periodic scheduler and admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			scheduler := syncpipe.NewScheduler(
				a.orchestrator,
				a.tracker,
				a.settings,
				fhirConnectivity{client: a.fhirClient},
				a.logger,
			)
			a.settings.OnChange(scheduler.Reconfigure)
			go scheduler.Start(ctx)

			handler := api.NewHandler(a.orchestrator, a.store, a.settings, a.logger)
			mux := http.NewServeMux()
			handler.RegisterRoutes(mux)
			mux.Handle("/metrics", promhttp.Handler())

			authMiddleware := auth.NewMiddleware(auth.Config{Secret: a.cfg.JWTSecret, Issuer: a.cfg.JWTIssuer})
			server := httptransport.NewServer(httptransport.ServerConfig{
				Address:      a.cfg.HTTPAddress,
				ReadTimeout:  5 * time.Second,
				WriteTimeout: 60 * time.Second,
				IdleTimeout:  60 * time.Second,
			}, authMiddleware.Wrap(mux))

			shutdownCh := make(chan os.Signal, 1)
			signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

			go func() {
				a.logger.Info().Str("address", a.cfg.HTTPAddress).Msg("admin api listening")
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					a.logger.Fatal().Err(err).Msg("server error")
				}
			}()

			<-shutdownCh
			cancel()

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer shutdownCancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				a.logger.Error().Err(err).Msg("graceful shutdown failed")
			}
			scheduler.Wait()
			return nil
		},
	}
}

func syncCmd() *cobra.Command {
	var (
		kindsFlag       string
		startFlag       string
		endFlag         string
		allowDuplicates bool
	)
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a one-shot manual sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			end := time.Now().UTC()
			if endFlag != "" {
				if end, err = time.Parse(time.RFC3339, endFlag); err != nil {
					return fmt.Errorf("parse --end: %w", err)
				}
			}
			start := end.Add(-48 * time.Hour)
			if startFlag != "" {
				if start, err = time.Parse(time.RFC3339, startFlag); err != nil {
					return fmt.Errorf("parse --start: %w", err)
				}
			}
			if start.After(end) {
				return fmt.Errorf("start %s is after end %s", start, end)
			}

			kindNames := a.settings.AutoSyncKinds()
			if kindsFlag != "" {
				kindNames = strings.Split(kindsFlag, ",")
			}
			if len(kindNames) == 0 {
				return fmt.Errorf("no kinds given: pass --kinds or configure AUTO_SYNC_KINDS")
			}

			failed := false
			for _, name := range kindNames {
				kind, err := health.ParseKind(strings.TrimSpace(name))
				if err != nil {
					return err
				}
				outcome := a.orchestrator.SyncKind(ctx, kind, start, end, syncpipe.Options{
					AllowDuplicates: allowDuplicates || a.settings.AllowDuplicates(),
					Trigger:         syncpipe.TriggerManual,
				})
				fmt.Printf("%s: fetched=%d uploaded=%d truncated=%v %s\n",
					outcome.Kind, outcome.Fetched, outcome.Uploaded, outcome.Truncated, outcome.Reason)
				if outcome.Failed() {
					failed = true
				}
			}
			if failed {
				return fmt.Errorf("one or more kinds did not sync completely")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&kindsFlag, "kinds", "", "comma-separated kinds to sync (default: configured auto-sync kinds)")
	cmd.Flags().StringVar(&startFlag, "start", "", "window start, RFC3339 (default: end minus 48h)")
	cmd.Flags().StringVar(&endFlag, "end", "", "window end, RFC3339 (default: now)")
	cmd.Flags().BoolVar(&allowDuplicates, "allow-duplicates", false, "skip dedup filtering for this run")
	return cmd
}

func purgeCmd() *cobra.Command {
	var olderThanDays int
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete dedup marks older than the retention age",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			days := olderThanDays
			if days <= 0 {
				days = a.settings.CleanupAgeDays()
			}
			if days <= 0 {
				return fmt.Errorf("cleanup disabled: pass --older-than-days or set CLEANUP_AGE_DAYS")
			}

			threshold := time.Now().Add(-time.Duration(days) * 24 * time.Hour).UnixMilli()
			removed, err := a.tracker.PurgeOlderThan(ctx, threshold)
			if err != nil {
				return err
			}
			fmt.Printf("removed %d marks older than %d days\n", removed, days)
			return nil
		},
	}
	cmd.Flags().IntVar(&olderThanDays, "older-than-days", 0, "retention age in days (default: CLEANUP_AGE_DAYS)")
	return cmd
}
