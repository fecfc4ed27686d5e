package bootstrap

import (
	"context"
	"fmt"

	"call-relay/internal/clients/openai"
	"call-relay/internal/config"
	"call-relay/internal/observability"
	voiceCallHandler "call-relay/internal/voicecall/handler"
	voiceCallProcessor "call-relay/internal/voicecall/processor"
	"call-relay/internal/voicecall/relay"

	"go.opentelemetry.io/otel"
)

// Dependencies holds all initialized application dependencies
type Dependencies struct {
	Logger  *observability.Logger
	Metrics *observability.Metrics

	// Registry tracks live relays so shutdown can close them.
	Registry *relay.Registry

	CallProcessor    *voiceCallProcessor.CallProcessor
	VoiceCallHandler voiceCallHandler.Handler

	shutdownMetrics func(context.Context) error
}

// Initialize sets up all application dependencies
func Initialize(ctx context.Context, cfg *config.Config, version string, logger *observability.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Logger:   logger,
		Registry: relay.NewRegistry(),
	}

	var err error
	deps.shutdownMetrics, err = observability.InitProvider(ctx, observability.ProviderConfig{
		ServiceName:    "call-relay",
		ServiceVersion: version,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init metrics provider: %w", err)
	}
	deps.Metrics, err = observability.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	realtimeClient, err := openai.NewRealtimeClient(cfg.OpenAI.APIKey, logger,
		openai.WithURL(cfg.OpenAI.RealtimeURL),
		openai.WithModel(cfg.OpenAI.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create realtime client: %w", err)
	}

	calls := voiceCallProcessor.NewTwilioCallCreator(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken)
	deps.CallProcessor = voiceCallProcessor.NewCallProcessor(calls, cfg.Twilio.PhoneNumberFrom, cfg.Server.Domain, logger)

	deps.VoiceCallHandler = voiceCallHandler.New(
		deps.CallProcessor,
		relay.RealtimeDialer(realtimeClient),
		cfg.RelayConfig(),
		deps.Registry,
		deps.Metrics,
		logger,
	)

	return deps, nil
}

// Cleanup closes live relays, waits for them to drain and flushes metrics.
func (d *Dependencies) Cleanup(ctx context.Context) {
	if n := d.Registry.CloseAll(); n > 0 {
		d.Logger.Info(ctx, fmt.Sprintf("Closing %d active relays", n))
	}
	if !d.Registry.Wait(ctx) {
		d.Logger.Warn(ctx, "Timed out waiting for relays to close")
	}
	if d.shutdownMetrics != nil {
		if err := d.shutdownMetrics(ctx); err != nil {
			d.Logger.WarnWithError(ctx, "Failed to shut down metrics provider", err)
		}
	}
}
