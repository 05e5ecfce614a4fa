package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"commons-governance/config"
	"commons-governance/logger"
	"commons-governance/merkle"
	"commons-governance/routers"
)

func main() {
	var (
		configPath string
		cfg        *config.Config
	)

	rootCmd := &cobra.Command{
		Use:           "governance",
		Short:         "Economic node governance and veto engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				return err
			}
			return logger.InitLogger(cfg.Log.AppLogFile, cfg.Log.Level)
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default "+config.DefaultPath+")")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the review sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cfg)
		},
	}

	recalcCmd := &cobra.Command{
		Use:   "recalc-weights",
		Short: "Recompute every node weight from its stored evidence",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			updated, err := a.registry.RecalculateAllWeights(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("updated %d node weights\n", updated)
			return nil
		},
	}

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Check every pending review for consensus once",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.sweeper.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			return json.NewEncoder(os.Stdout).Encode(res)
		},
	}

	verifyCmd := &cobra.Command{
		Use:   "verify-proof <proof.json>",
		Short: "Verify a Merkle inclusion proof",
		Args:  cobra.ExactArgs(1),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var proof merkle.Proof
			if err := json.Unmarshal(data, &proof); err != nil {
				return fmt.Errorf("parse proof: %w", err)
			}
			if !merkle.Verify(&proof) {
				return fmt.Errorf("proof does not verify against root %s", proof.RootHash)
			}
			fmt.Println("proof verified")
			return nil
		},
	}

	rootCmd.AddCommand(serveCmd, recalcCmd, sweepCmd, verifyCmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func serve(cfg *config.Config) error {
	logger.Logger.Info("Starting governance server...")

	a, err := newApp(cfg)
	if err != nil {
		logger.Logger.Error("Failed to initialise", zap.Error(err))
		return err
	}
	defer a.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           routers.NewServerHandler(a.handler(), a.prom, cfg.Server.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := a.sweeper.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Logger.Error("Sweeper stopped", zap.Error(err))
		}
	}()

	// Start server in goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Logger.Error("Server stopped", zap.Error(err))
		}
	}()

	logger.Logger.Info("Server running on port", zap.Int("port", cfg.Server.Port))

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Logger.Info("Shutdown signal received, exiting...")
	cancel()

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	return srv.Shutdown(shutdownCtx)
}
