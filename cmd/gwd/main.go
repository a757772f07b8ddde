// Command gwd runs the IoT gateway daemon: a single positional argument
// names the configuration file, and the process runs until terminated.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/iotgw/config"
	"github.com/rustyeddy/iotgw/gateway"
	"github.com/rustyeddy/iotgw/logging"
	"github.com/rustyeddy/iotgw/server"
	"github.com/rustyeddy/iotgw/transport"
)

var (
	logLevel  string
	logFormat string
	logOutput string
	logFile   string
)

var rootCmd = &cobra.Command{
	Use:           "gwd <config.json>",
	Short:         "gwd mediates MQTT between local subdevices and the cloud platform",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", logging.DefaultLevel, "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", logging.DefaultFormat, "Log format (text, json)")
	rootCmd.PersistentFlags().StringVar(&logOutput, "log-output", logging.DefaultOutput, "Log output (stdout, stderr, file)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Log file path (required when log-output=file)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	logger, closer, _, err := logging.Build(logging.Config{
		Level:    logLevel,
		Format:   logFormat,
		Output:   logOutput,
		FilePath: logFile,
	})
	if err != nil {
		return fmt.Errorf("gwd: building logger: %w", err)
	}
	if closer != nil {
		defer closer.Close()
	}
	slog.SetDefault(logger)

	cfg, err := config.Load(args[0])
	if err != nil {
		return err
	}

	platformTransport, err := transport.NewPaho(transport.Config{
		BrokerURI:      cfg.PlatformMqttURI,
		ClientID:       cfg.Key,
		Username:       cfg.Key,
		Password:       cfg.Password,
		TrustStorePath: cfg.PlatformTrustStore,
		KeepAlive:      cfg.KeepAlive(),
	}, logger)
	if err != nil {
		return fmt.Errorf("gwd: configuring platform transport: %w", err)
	}

	var localTransport transport.Transport
	if cfg.Standalone {
		localTransport = transport.NewMock()
	} else {
		localTransport, err = transport.NewPaho(transport.Config{
			BrokerURI: cfg.LocalMqttURI,
			ClientID:  cfg.Key + "-local",
		}, logger)
		if err != nil {
			return fmt.Errorf("gwd: configuring local transport: %w", err)
		}
	}

	gw, err := gateway.New(cfg, gateway.Deps{
		PlatformTransport: platformTransport,
		LocalTransport:    localTransport,
		EventSink:         server.Broadcast,
	}, logger)
	if err != nil {
		return fmt.Errorf("gwd: building gateway: %w", err)
	}

	httpServer := server.GetServer()
	httpDone := make(chan any)
	go httpServer.Start(httpDone)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := gw.Connect(ctx); err != nil {
		return fmt.Errorf("gwd: connecting: %w", err)
	}

	logger.Info("gateway running", "key", cfg.Key, "http_addr", httpServer.Addr)
	<-ctx.Done()

	close(httpDone)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	gw.Disconnect(shutdownCtx)
	logger.Info("gateway stopped")
	return nil
}
