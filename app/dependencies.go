package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/upb/llm-blackbox/config"
	"github.com/upb/llm-blackbox/internal/observability"
	"github.com/upb/llm-blackbox/services"
	"github.com/upb/llm-blackbox/services/llm"
	"github.com/upb/llm-blackbox/services/providers"
	"github.com/upb/llm-blackbox/services/providers/bedrock"
	"github.com/upb/llm-blackbox/services/providers/openai"
	"github.com/upb/llm-blackbox/services/providers/stub"
	"github.com/upb/llm-blackbox/services/telemetry"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// instrumentationName names the tracer and meter used by the service
const instrumentationName = "github.com/upb/llm-blackbox"

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config        *config.Config
	Logger        *zap.Logger
	ContextLogger *observability.ContextLogger
	Telemetry     *observability.Telemetry
	Tracer        trace.Tracer

	// Provider Registry
	ProviderRegistry *providers.Registry
	Provider         providers.Provider

	// Model call and telemetry
	ModelClient *llm.Client
	Recorder    *telemetry.Recorder

	statsd *telemetry.StatsdSink
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:        cfg,
		Logger:        logger,
		ContextLogger: observability.NewContextLogger(logger),
	}

	// Initialize tracing and metrics
	if err := deps.initTelemetry(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	// Initialize provider registry
	if err := deps.initProviders(ctx, cfg); err != nil {
		deps.shutdownTelemetry(ctx)
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}

	deps.ModelClient = llm.NewClient(deps.Provider, llm.Options{
		ModelName:    cfg.Model.Name,
		Timeout:      cfg.Model.Timeout,
		MaxTokens:    cfg.Model.MaxTokens,
		Temperature:  cfg.Model.Temperature,
		SystemPrompt: cfg.Model.SystemPrompt,
	}, logger)

	// Initialize telemetry sinks
	if err := deps.initRecorder(cfg); err != nil {
		deps.shutdownTelemetry(ctx)
		return nil, fmt.Errorf("failed to initialize telemetry sinks: %w", err)
	}

	logger.Info("all dependencies initialized successfully",
		zap.String("provider", deps.Provider.Name()),
		zap.String("model", cfg.Model.Name),
		zap.Strings("sinks", deps.Recorder.Sinks()))
	return deps, nil
}

// initTelemetry sets up the tracer and meter providers
func (d *Dependencies) initTelemetry(ctx context.Context, cfg *config.Config) error {
	tel, err := observability.Init(ctx, observability.TelemetryConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Telemetry.ServiceVersion,
		Environment:    cfg.Environment,
		TraceExporter:  cfg.Telemetry.TracesExporter,
		MetricExporter: cfg.Telemetry.MetricsExporter,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure:   cfg.Telemetry.OTLPInsecure,
	})
	if err != nil {
		return err
	}

	d.Telemetry = tel
	d.Tracer = tel.Tracer(instrumentationName)

	d.Logger.Info("telemetry initialized",
		zap.String("traces_exporter", cfg.Telemetry.TracesExporter),
		zap.String("metrics_exporter", cfg.Telemetry.MetricsExporter))
	return nil
}

// initProviders registers every usable provider and selects the configured one
func (d *Dependencies) initProviders(ctx context.Context, cfg *config.Config) error {
	registry := providers.NewRegistry()

	// Stub is always registered
	if err := registry.RegisterProvider(stub.NewStubAdapter(stub.Config{
		Seed:               cfg.Providers.Stub.Seed,
		BaseLatency:        cfg.Providers.Stub.BaseLatency,
		LongFormTokenDelay: cfg.Providers.Stub.LongFormTokenDelay,
	})); err != nil {
		return err
	}

	// Register OpenAI provider if configured
	if cfg.Providers.OpenAI.APIKey != "" {
		adapter := openai.NewOpenAIAdapter(providers.ProviderConfig{
			APIKey:  cfg.Providers.OpenAI.APIKey,
			BaseURL: cfg.Providers.OpenAI.BaseURL,
			Timeout: cfg.Model.Timeout,
		})
		if err := registry.RegisterProvider(adapter); err != nil {
			return err
		}
		d.Logger.Info("registered OpenAI provider")
	}

	// Register Bedrock provider when selected; it resolves AWS credentials eagerly
	if cfg.Model.Provider == config.ProviderBedrock {
		adapter, err := bedrock.NewBedrockAdapter(ctx, providers.ProviderConfig{
			Region:  cfg.Providers.Bedrock.Region,
			Timeout: cfg.Model.Timeout,
		})
		if err != nil {
			return fmt.Errorf("failed to create bedrock adapter: %w", err)
		}
		if err := registry.RegisterProvider(adapter); err != nil {
			return err
		}
		d.Logger.Info("registered Bedrock provider", zap.String("region", cfg.Providers.Bedrock.Region))
	}

	provider, err := registry.GetProvider(cfg.Model.Provider)
	if err != nil {
		return services.ErrUnsupportedProvider.Wrap("", err)
	}

	d.ProviderRegistry = registry
	d.Provider = provider
	return nil
}

// initRecorder builds the telemetry sinks in emission order
func (d *Dependencies) initRecorder(cfg *config.Config) error {
	sinks := []telemetry.Sink{
		telemetry.NewTraceSink(),
		telemetry.NewLogSink(d.Logger,
			telemetry.WithPayloads(cfg.Telemetry.LogPayloads),
			telemetry.WithRedaction(cfg.Telemetry.RedactPII),
			telemetry.WithMaxPayloadChars(cfg.Telemetry.MaxPayloadChars)),
	}

	meterSink, err := telemetry.NewMeterSink(d.Telemetry.Meter(instrumentationName))
	if err != nil {
		return err
	}
	sinks = append(sinks, meterSink)

	if cfg.Telemetry.DogStatsDEnabled {
		statsdSink, err := telemetry.NewStatsdSink(telemetry.StatsdConfig{
			Addr:        cfg.Telemetry.DogStatsDAddress(),
			Service:     cfg.Telemetry.ServiceName,
			Environment: cfg.Environment,
			Version:     cfg.Telemetry.ServiceVersion,
		})
		if err != nil {
			return err
		}
		d.statsd = statsdSink
		sinks = append(sinks, statsdSink)
		d.Logger.Info("dogstatsd sink enabled", zap.String("addr", cfg.Telemetry.DogStatsDAddress()))
	}

	d.Recorder = telemetry.NewRecorder(cfg.Telemetry.TokenPricePer1K, d.Logger, sinks...)
	return nil
}

func (d *Dependencies) shutdownTelemetry(ctx context.Context) {
	if d.Telemetry == nil {
		return
	}
	if err := d.Telemetry.Shutdown(ctx); err != nil {
		d.Logger.Warn("telemetry shutdown failed", zap.Error(err))
	}
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	// Flush DogStatsD
	if d.statsd != nil {
		if err := d.statsd.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close dogstatsd: %w", err))
		}
	}

	if d.Telemetry != nil {
		if err := d.Telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shut down telemetry: %w", err))
		} else {
			d.Logger.Info("telemetry flushed")
		}
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	return errors.Join(errs...)
}
