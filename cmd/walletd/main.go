package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dappbridge/walletd/internal/auth/jwt"
	"github.com/dappbridge/walletd/internal/common/config"
	"github.com/dappbridge/walletd/internal/core"
	"github.com/dappbridge/walletd/internal/server"
	"github.com/dappbridge/walletd/internal/signer"
	"github.com/dappbridge/walletd/internal/snapshot"
	"github.com/dappbridge/walletd/internal/transport"
	"github.com/dappbridge/walletd/internal/transport/relay"
	"github.com/dappbridge/walletd/pkg/logger"
	"github.com/dappbridge/walletd/pkg/metrics"
	"github.com/dappbridge/walletd/pkg/trace"
	"github.com/dappbridge/walletd/pkg/version"
)

var (
	configPath string

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of walletd",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("walletd version %s\n", version.Get())
		},
	}

	tokenCmd = &cobra.Command{
		Use:   "token [subject]",
		Short: "Generate an admin API token from the configured secret",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := config.LoadConfig(configFile())
			if err != nil {
				return err
			}
			svc, err := jwt.NewService(cfg.Admin.JWT)
			if err != nil {
				return err
			}
			subject := "wallet-ui"
			if len(args) > 0 {
				subject = args[0]
			}
			token, err := svc.GenerateToken(subject, "admin")
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}

	rootCmd = &cobra.Command{
		Use:   "walletd",
		Short: "WalletConnect session orchestration daemon",
		Long:  `walletd tracks dApp peer sessions and multiplexes their signing requests into an approval queue for the wallet UI`,
		Run: func(cmd *cobra.Command, args []string) {
			run()
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "conf", "", "path to configuration file")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(tokenCmd)
}

func configFile() string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv("WALLETD_CONF"); envPath != "" {
		return envPath
	}
	return "walletd.yaml"
}

func run() {
	cfg, cfgPath, err := config.LoadConfig(configFile())
	if err != nil {
		log.Fatalf("Failed to load configuration from %s: %v", cfgPath, err)
	}

	lg, err := logger.NewLogger(&cfg.Logger)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() {
		_ = lg.Sync()
	}()

	lg.Info("Starting walletd",
		zap.String("version", version.Get()),
		zap.String("config", cfgPath))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing.Enabled {
		shutdown, err := trace.InitTracing(ctx, &cfg.Tracing, lg)
		if err != nil {
			lg.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(shutdownCtx)
		}()
	}

	m := metrics.New(cfg.Metrics)

	store, err := snapshot.NewStore(lg, &cfg.Snapshot)
	if err != nil {
		lg.Fatal("Failed to initialize snapshot store", zap.Error(err))
	}
	defer store.Close()

	var adapter transport.Adapter
	if cfg.Relay.URL != "" {
		client, err := relay.Dial(ctx, lg, cfg.Relay)
		if err != nil {
			lg.Fatal("Failed to connect to relay bridge",
				zap.String("url", cfg.Relay.URL),
				zap.Error(err))
		}
		defer client.Close()
		adapter = client
	} else {
		lg.Warn("No relay URL configured, running with loopback transport")
		adapter = transport.NewLoopback()
	}

	orch := core.New(lg, adapter, signer.NewDev(), store, m, core.Options{
		Accounts:            cfg.Wallet.Accounts,
		SupportedVersions:   cfg.Wallet.SupportedVersions,
		ProposalTTL:         cfg.Pairing.ProposalTTL,
		RequestTTL:          cfg.Queue.RequestTTL,
		ReplayCacheSize:     cfg.Queue.ReplayCacheSize,
		ExpirySweepInterval: cfg.Queue.SweepInterval,
	})
	orch.Start()

	if err := orch.Rehydrate(ctx); err != nil {
		lg.Error("Failed to rehydrate sessions", zap.Error(err))
	}

	jwtSvc, err := jwt.NewService(cfg.Admin.JWT)
	if err != nil {
		lg.Fatal("Failed to initialize JWT service", zap.Error(err))
	}

	srv := server.NewServer(lg, orch, jwtSvc, m)
	go func() {
		if err := srv.Run(cfg.Admin.Addr); err != nil {
			lg.Fatal("Admin server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	lg.Info("Shutting down, draining sessions")

	drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := orch.Shutdown(drainCtx); err != nil {
		lg.Error("Drain failed", zap.Error(err))
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
