package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vitalvas/federa/broadcast"
	"github.com/vitalvas/federa/config"
	"github.com/vitalvas/federa/federation"
	"github.com/vitalvas/federa/httpsig"
	"github.com/vitalvas/federa/logging"
	"github.com/vitalvas/federa/metrics"
	"github.com/vitalvas/federa/resolver"
	"github.com/vitalvas/federa/server"
	"github.com/vitalvas/federa/store/memory"
	"github.com/vitalvas/federa/store/postgres"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:          "federa",
		Short:        "ActivityPub federation daemon",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")

	rootCmd.AddCommand(
		serveCmd(),
		keygenCmd(),
		useraddCmd(),
		versionCmd(),
	)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the federation server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}

			logger, err := logging.New(cfg.Log)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			rec := metrics.New(nil)

			fc, closeStore, err := bootstrap(ctx, cfg, logger, rec)
			if err != nil {
				return err
			}
			defer closeStore()

			handler, err := server.New(fc, server.Config{
				MaxBodySize:     cfg.Server.MaxBodySize,
				AuthorizedFetch: cfg.Server.AuthorizedFetch,
				TrustedProxies:  cfg.Server.TrustedProxies,
			})
			if err != nil {
				return err
			}

			srv := &http.Server{
				Addr:         cfg.Server.Listen,
				Handler:      handler,
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("listening", zap.String("addr", cfg.Server.Listen), zap.String("version", version))

				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}

				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			logger.Info("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()

			return srv.Shutdown(shutdownCtx)
		},
	}
}

func keygenCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an RSA key pair for the instance actor",
		RunE: func(_ *cobra.Command, _ []string) error {
			kp, err := httpsig.GenerateKeypair("", federation.KeyBits)
			if err != nil {
				return err
			}

			priv, err := kp.PrivateKeyPEM()
			if err != nil {
				return err
			}

			pub, err := kp.PublicKeyPEM()
			if err != nil {
				return err
			}

			if err := os.WriteFile(out, []byte(priv), 0o600); err != nil {
				return err
			}

			if err := os.WriteFile(out+".pub", []byte(pub), 0o644); err != nil {
				return err
			}

			fmt.Printf("wrote %s and %s.pub\n", out, out)

			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "instance.pem", "private key output path")

	return cmd
}

func useraddCmd() *cobra.Command {
	var displayName string

	cmd := &cobra.Command{
		Use:   "useradd <username>",
		Short: "Register a local user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}

			if cfg.Database.Driver == "memory" {
				return errors.New("useradd needs a persistent database driver")
			}

			logger, err := logging.New(cfg.Log)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			fc, closeStore, err := bootstrap(cmd.Context(), cfg, logger, nil)
			if err != nil {
				return err
			}
			defer closeStore()

			if displayName == "" {
				displayName = args[0]
			}

			u, err := fc.RegisterUser(cmd.Context(), args[0], displayName)
			if err != nil {
				return err
			}

			fmt.Println(u.APURL)

			return nil
		},
	}

	cmd.Flags().StringVar(&displayName, "name", "", "display name")

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println("federa " + version)
		},
	}
}

// bootstrap opens the configured store and builds the federation context.
func bootstrap(ctx context.Context, cfg config.Config, logger *zap.Logger, rec *metrics.Recorder) (*federation.Context, func(), error) {
	var (
		store     federation.Store
		closeFunc = func() {}
	)

	switch cfg.Database.Driver {
	case "postgres":
		pg, err := postgres.Open(ctx, postgres.Config{
			DSN:             cfg.Database.DSN,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			return nil, nil, err
		}

		store = pg
		closeFunc = func() {
			if err := pg.Close(); err != nil {
				logger.Warn("close database", zap.Error(err))
			}
		}

	default:
		store = memory.New()
	}

	var keyPEM string
	if cfg.Keys.Instance != "" {
		data, err := os.ReadFile(cfg.Keys.Instance)
		if err != nil {
			closeFunc()
			return nil, nil, fmt.Errorf("instance key: %w", err)
		}

		keyPEM = string(data)
	}

	userAgent := "federa/" + version + " (+https://" + cfg.Instance.Domain + "/)"

	fc, err := federation.Bootstrap(ctx, federation.Options{
		Domain:         cfg.Instance.Domain,
		Insecure:       cfg.Instance.Insecure,
		Store:          store,
		InstanceKeyPEM: keyPEM,
		FetcherConfig: resolver.FetcherConfig{
			UserAgent:      userAgent,
			ConnectTimeout: cfg.Federation.ConnectTimeout,
			Timeout:        cfg.Federation.RequestTimeout,
			Proxy:          cfg.Federation.ProxyURL(),
			MaxBodySize:    cfg.Federation.MaxDocumentSize,
		},
		Broadcast: broadcast.Config{
			Workers:   cfg.Federation.Workers,
			QueueSize: cfg.Federation.QueueSize,
			SendDelay: cfg.Federation.SendDelay,
			UserAgent: userAgent,
		},
		BlockedInstances: cfg.Federation.BlockedInstances,
		Logger:           logger,
		Metrics:          rec,
	})
	if err != nil {
		closeFunc()
		return nil, nil, err
	}

	return fc, closeFunc, nil
}
