package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/otus/internal/config"
	"firestige.xyz/otus/internal/controlsocket"
	"firestige.xyz/otus/internal/engine"
	"firestige.xyz/otus/internal/log"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the capture and monitor loop in the foreground",
	Long: `Run loads configuration, opens the capture interface, and blocks,
publishing flow summaries and serving the current snapshot over the
control socket until interrupted (SIGINT/SIGTERM).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runForeground(cmd.Context())
	},
}

func runForeground(parentCtx context.Context) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := log.Init(log.FromConfig(cfg.Log)); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	logger := log.GetLogger()

	eng, err := engine.New(cfg)
	if err != nil {
		return fmt.Errorf("construct engine: %w", err)
	}

	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	defer eng.Stop()

	socket := controlsocket.NewServer(socketPath, eng)
	go func() {
		if err := socket.Start(ctx); err != nil && ctx.Err() == nil {
			if logger != nil {
				logger.WithError(err).Error("control socket exited")
			}
		}
	}()

	if logger != nil {
		logger.Infof("netwatchd running on interface %q", cfg.Interface)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	if logger != nil {
		logger.Info("shutdown signal received, stopping")
	}
	cancel()
	return nil
}
