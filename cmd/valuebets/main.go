package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourusername/racing-value/internal/config"
	"github.com/yourusername/racing-value/internal/datasource"
	"github.com/yourusername/racing-value/internal/health"
	"github.com/yourusername/racing-value/internal/logger"
	"github.com/yourusername/racing-value/internal/metrics"
	"github.com/yourusername/racing-value/internal/models"
	"github.com/yourusername/racing-value/internal/scheduler"
	"github.com/yourusername/racing-value/internal/service"
	"github.com/yourusername/racing-value/internal/tracing"
)

// Build information - set via ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var (
	configFile string
	appLogger  *logrus.Logger
	cfg        *config.Config

	runDate     string
	runCountry  string
	runRaceType string
	runJSON     bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "./config/config.yaml", "Path to configuration file")

	runCmd.Flags().StringVar(&runDate, "date", "", "Race date (YYYY-MM-DD, default today)")
	runCmd.Flags().StringVar(&runCountry, "country", "", "Country code (default from config)")
	runCmd.Flags().StringVar(&runRaceType, "type", "", "Race type: flat, jumps or all (default from config)")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Print the report as JSON")

	rootCmd.AddCommand(runCmd, serveCmd, versionCmd)
}

var rootCmd = &cobra.Command{
	Use:   "valuebets",
	Short: "Rate horse racing runners for win and each-way value",
	Long: `Fetches the day's races and runner prices from the configured providers,
removes the bookmaker margin and reports the expected value of win and place bets.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd == versionCmd {
			return nil
		}
		if err := loadConfig(cmd.Context()); err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Evaluate one day's races and print the value bets",
	RunE: func(cmd *cobra.Command, args []string) error {
		appLogger.SetOutput(os.Stderr)

		q, err := buildQuery(time.Now())
		if err != nil {
			return err
		}

		components, err := service.Build(cfg, appLogger)
		if err != nil {
			return fmt.Errorf("failed to set up providers: %w", err)
		}
		defer components.Close()

		report, runErr := components.Service.Run(cmd.Context(), q)
		if report != nil {
			if runJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
			} else if err := renderReport(cmd.OutOrStdout(), report); err != nil {
				return err
			}
		}
		return runErr
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve value bets, health checks and metrics over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cfg.Metrics.Enabled {
			metrics.InitRegistry()
		}

		components, err := service.Build(cfg, appLogger)
		if err != nil {
			return fmt.Errorf("failed to set up providers: %w", err)
		}
		defer components.Close()

		raceType := models.ParseRaceType(cfg.Query.RaceType)
		sched := scheduler.NewScheduler(components.Service, nil, appLogger)

		serverCfg := health.Config{
			ServiceName:     cfg.App.Name,
			Version:         Version,
			Commit:          GitCommit,
			Port:            strconv.Itoa(cfg.Server.Port),
			MetricsPath:     cfg.Metrics.Path,
			DefaultCountry:  cfg.Query.Country,
			DefaultRaceType: raceType,
			AllowedOrigins:  cfg.Server.AllowedOrigins,
			Logger:          appLogger,
			Runner:          components.Service,
		}

		if cfg.Server.RefreshCron != "" {
			if err := sched.ScheduleRefresh(cfg.Server.RefreshCron, cfg.Query.Country, raceType); err != nil {
				return err
			}
			if err := sched.Start(); err != nil {
				return err
			}
			defer sched.Stop()
			serverCfg.Latest = sched

			go func() {
				refreshCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
				defer cancel()
				if _, err := sched.RefreshNow(refreshCtx, sched.Today(cfg.Query.Country, raceType)); err != nil {
					appLogger.WithError(err).Warn("Initial refresh failed")
				}
			}()
		}

		server := health.NewServer(serverCfg)
		if err := server.Start(ctx); err != nil {
			return err
		}
		server.SetReady(true)

		<-ctx.Done()
		appLogger.Info("Shutting down")
		return server.Shutdown()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "valuebets %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
	},
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func loadConfig(ctx context.Context) error {
	var err error
	cfg, err = config.LoadWithDefaults(configFile)
	if err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	if err := config.LoadSecretsFromAWS(ctx, cfg); err != nil {
		return fmt.Errorf("failed to load secrets: %w", err)
	}

	if err := config.Validate(cfg); err != nil {
		return err
	}
	if err := config.ValidateEnvironment(cfg); err != nil {
		return err
	}

	appLogger = logger.NewLogger(cfg.App.LogLevel, cfg.App.Environment)
	return tracing.Initialize(tracing.ConfigFromConfig(cfg, Version), appLogger)
}

// buildQuery merges the run flags over the configured default query
func buildQuery(now time.Time) (datasource.RaceQuery, error) {
	now = now.UTC()
	q := datasource.RaceQuery{
		Date:     time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
		Country:  cfg.Query.Country,
		RaceType: models.ParseRaceType(cfg.Query.RaceType),
	}

	if runDate != "" {
		d, err := time.Parse("2006-01-02", runDate)
		if err != nil {
			return q, fmt.Errorf("invalid --date %q, expected YYYY-MM-DD", runDate)
		}
		q.Date = d
	}
	if runCountry != "" {
		q.Country = strings.ToUpper(runCountry)
	}
	if runRaceType != "" {
		switch models.RaceType(runRaceType) {
		case models.RaceTypeFlat, models.RaceTypeJumps, models.RaceTypeAll:
			q.RaceType = models.RaceType(runRaceType)
		default:
			return q, fmt.Errorf("invalid --type %q, expected flat, jumps or all", runRaceType)
		}
	}

	return q, nil
}
