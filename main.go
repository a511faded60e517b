package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"bititec-mailer/config"
	"bititec-mailer/logger"
	"bititec-mailer/notification"
	"bititec-mailer/service"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "bititec-mailer",
	Short:         "HTTP relay for Bititec transactional email",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP relay",
	RunE:  runServe,
}

var sendTestCmd = &cobra.Command{
	Use:   "send-test",
	Short: "Send one test message through the configured provider",
	RunE:  runSendTest,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the YAML config file (optional)")

	sendTestCmd.Flags().String("to", "", "recipient address")
	_ = sendTestCmd.MarkFlagRequired("to")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sendTestCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// bootstrap loads configuration and wires the relay the same way for every
// command.
func bootstrap(ctx context.Context) (*config.Config, *service.RelayService, *zap.Logger, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.App.Env, cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	sender, err := notification.NewSender(ctx, cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize mail provider: %w", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, nil, err
	}

	from := cfg.Mail.From
	if cfg.Mail.FromName != "" {
		from = fmt.Sprintf("%s <%s>", cfg.Mail.FromName, cfg.Mail.From)
	}

	formatter := service.NewFormatter(from, cfg.App.AccessLinkBaseURL, loc)
	relay := service.NewRelayService(formatter, sender, log.With(zap.String("component", "relay")))

	return cfg, relay, log, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, relay, log, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	server := NewServer(cfg, relay, log)
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server exited properly")
	return nil
}

func runSendTest(cmd *cobra.Command, _ []string) error {
	to, _ := cmd.Flags().GetString("to")

	_, relay, log, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if err := relay.SendTest(cmd.Context(), to, uuid.NewString()); err != nil {
		return fmt.Errorf("test email failed: %w", err)
	}

	log.Info("test email sent", zap.String("provider", relay.ProviderName()))
	return nil
}
