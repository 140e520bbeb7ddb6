package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/pgserver/storagesync/internal/pageserver"
	"github.com/pgserver/storagesync/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	DefaultWorkdir            = ".data"
	DefaultMetricsAddr        = "localhost:9090"
	DefaultMaxConcurrentSyncs = pageserver.DefaultMaxConcurrentSyncs
	DefaultMaxSyncErrors      = pageserver.DefaultMaxSyncErrors
)

var dotenvLoaded bool

var rootCmd = &cobra.Command{
	Use:     "pageserver",
	Short:   "Remote storage sync engine CLI",
	Version: version.Detailed(),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		cfg, err := loadConfig(cmd)
		if err != nil {
			cmd.SilenceUsage = false
			return err
		}

		slog.Info("pageserver config", "dotenvLoaded", dotenvLoaded, "config", cfg.LogValue())

		data, err := pageserver.StartLocalTimelineSync(cmd.Context(), cfg, slog.Default())
		if err != nil {
			slog.Error("pageserver", "error", err)
			return err
		}
		pageserver.SetGlobalSyncHandle(data.Handle)

		for tenant, timelines := range data.Statuses {
			for timeline, status := range timelines {
				slog.Info("timeline reconciled", "tenant", tenant, "timeline", timeline, "status", status)
			}
		}

		metricsAddr, _ := cmd.Flags().GetString("metricsAddr")
		go serveMetrics(metricsAddr, data.Metrics)

		defer slog.Info("Bye!")
		<-cmd.Context().Done()
		return data.Stop()
	},
}

func init() {
	rootCmd.Flags().SortFlags = false
	rootCmd.Flags().StringP("config", "f", "", "Path to config file (e.g., config.yaml)")
	rootCmd.Flags().StringP("workdir", "w", DefaultWorkdir, "Directory containing tenant/timeline data")
	rootCmd.Flags().String("metricsAddr", DefaultMetricsAddr, "Address to serve the debug metrics endpoint on")
	rootCmd.Flags().Int("maxConcurrentSyncs", DefaultMaxConcurrentSyncs, "Max timelines synced concurrently per batch")
	rootCmd.Flags().Int("maxSyncErrors", DefaultMaxSyncErrors, "Consecutive retries before a task is abandoned")

	if err := godotenv.Load(".env"); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Println("Error loading .env file", err)
			os.Exit(1)
		}
	} else {
		dotenvLoaded = true
	}
}

func main() {
	logger := slog.New(setupHandler())
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func setupHandler() slog.Handler {
	switch os.Getenv("PAGESERVER_ENV") {
	case "PROD", "STAGE":
		return slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	default:
		return tint.NewHandler(os.Stdout, &tint.Options{
			Level:      slog.LevelDebug,
			AddSource:  true,
			TimeFormat: time.DateTime,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Key != "msg" && a.Value.Kind() == slog.KindString {
					a.Value = slog.StringValue(fmt.Sprintf("'%s'", a.Value.String()))
				}
				return a
			},
		})
	}
}

func loadConfig(cmd *cobra.Command) (pageserver.Config, error) {
	v := viper.New()

	if cmd.Flag("config").Changed {
		v.SetConfigFile(cmd.Flag("config").Value.String())
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/pageserver/")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.SetConfigType("json")
	}

	v.SetEnvPrefix("PAGESERVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindWithDefaults(v, cmd)

	if err := v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if cmd.Flag("config").Changed && enoent {
			return pageserver.Config{}, err
		}
		if !enoent && !notFound {
			return pageserver.Config{}, fmt.Errorf("config read %q: %w", v.ConfigFileUsed(), err)
		}
	}

	var cfg pageserver.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return pageserver.Config{}, fmt.Errorf("config read: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return pageserver.Config{}, err
	}

	return cfg, nil
}

func bindWithDefaults(v *viper.Viper, cmd *cobra.Command) {
	v.BindPFlag("workdir", cmd.Flags().Lookup("workdir"))
	v.BindPFlag("max_concurrent_syncs", cmd.Flags().Lookup("maxConcurrentSyncs"))
	v.BindPFlag("max_sync_errors", cmd.Flags().Lookup("maxSyncErrors"))

	v.SetDefault("workdir", DefaultWorkdir)
	v.SetDefault("max_concurrent_syncs", DefaultMaxConcurrentSyncs)
	v.SetDefault("max_sync_errors", DefaultMaxSyncErrors)

	// Remote storage section: config file/env vars only, no CLI flags,
	// mirroring the teacher's blob section.
	v.SetDefault("remote_storage.fs_path", "")
	v.SetDefault("remote_storage.s3.bucket_name", "")
	v.SetDefault("remote_storage.s3.region", "")
	v.SetDefault("remote_storage.s3.endpoint", "")
	v.SetDefault("remote_storage.s3.access_key", "")
	v.SetDefault("remote_storage.s3.secret_key", "")
	v.SetDefault("remote_storage.s3.use_accelerate", false)
}

func serveMetrics(addr string, m *pageserver.Metrics) {
	mux := http.NewServeMux()
	mux.Handle("/debug/sync", m.Handler())
	slog.Info("metrics endpoint listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("metrics endpoint exited", "error", err)
	}
}
