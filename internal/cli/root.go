// Package cli defines the call-relay command line.
package cli

import (
	"context"
	"fmt"
	"os"

	"call-relay/internal/bootstrap"
	"call-relay/internal/config"
	"call-relay/internal/observability"
	"call-relay/internal/server"

	"github.com/spf13/cobra"
)

var (
	callTo  string
	version = "dev" // set via ldflags at build time
)

var rootCmd = &cobra.Command{
	Use:   "call-relay",
	Short: "Relay Twilio phone calls to the OpenAI Realtime API",
	Long: `call-relay answers Twilio Media Streams and bridges each call to an
OpenAI Realtime voice session, handling caller barge-in.

With --call it also places an outbound call once the server is listening.`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context(), callTo)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay server without placing a call",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context(), "")
	},
}

// Execute runs the root command. Called from main.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().StringVar(&callTo, "call", "", "Phone number to call once listening, e.g. --call=+18885551212")
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, to string) error {
	logger := observability.NewLogger()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	deps, err := bootstrap.Initialize(ctx, cfg, version, logger)
	if err != nil {
		return err
	}

	srv := server.New(cfg, deps, logger)
	srv.Setup()
	if err := srv.Start(ctx); err != nil {
		return err
	}

	if to != "" {
		ctx := observability.WithFields(ctx, observability.Field{Key: "to", Value: to})
		logger.Info(ctx, "Placing outbound call")
		if _, err := deps.CallProcessor.PlaceCall(ctx, to); err != nil {
			logger.Error(ctx, "Error making call", err)
		}
	}

	return srv.WaitForShutdown(ctx)
}
