package rpc

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"

	"github.com/Cogwheel-Validator/spectra-index-portal/portal/config"
)

// OTelConfig selects the telemetry signals and where they are exported.
type OTelConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	EnableTracing bool
	UseOTLPTraces bool
	OTLPTracesURL string

	// Flow outcome counters are exported here. With UsePrometheus they show
	// up on /server/metrics as portal_flow_outcomes_total.
	EnableMetrics  bool
	UsePrometheus  bool
	UseOTLPMetrics bool
	OTLPMetricsURL string

	// zerolog stays the application logger, this only ships otel log records
	EnableLogs  bool
	UseOTLPLogs bool
	OTLPLogsURL string

	// InsecureOTLP disables TLS towards the collector. Local use only.
	InsecureOTLP       bool
	OTLPClientCertFile string
	OTLPClientKeyFile  string
	OTLPCACertFile     string

	// DevelopmentMode prints every signal to stdout
	DevelopmentMode bool
}

// DefaultOTelConfig exposes prometheus metrics and nothing else.
func DefaultOTelConfig() *OTelConfig {
	return &OTelConfig{
		ServiceName:    "spectra-index-portal",
		ServiceVersion: "1.0.0",
		Environment:    "production",
		EnableMetrics:  true,
		UsePrometheus:  true,
		OTLPTracesURL:  "localhost:4318",
		OTLPMetricsURL: "localhost:4318",
		OTLPLogsURL:    "localhost:4318",
	}
}

// OTelConfigFrom copies the telemetry section of the portal config.
func OTelConfigFrom(cfg *config.PortalConfig) *OTelConfig {
	out := DefaultOTelConfig()
	if cfg == nil {
		return out
	}
	if cfg.ServiceName != "" {
		out.ServiceName = cfg.ServiceName
	}
	if cfg.ServiceVersion != "" {
		out.ServiceVersion = cfg.ServiceVersion
	}
	if cfg.Environment != "" {
		out.Environment = cfg.Environment
	}
	out.EnableTracing = cfg.EnableTracing
	out.UseOTLPTraces = cfg.UseOTLPTraces
	out.EnableMetrics = cfg.EnableMetrics || cfg.UsePrometheus
	out.UsePrometheus = cfg.UsePrometheus
	out.UseOTLPMetrics = cfg.UseOTLPMetrics
	out.EnableLogs = cfg.EnableLogs
	out.UseOTLPLogs = cfg.UseOTLPLogs
	out.InsecureOTLP = cfg.InsecureOTLP
	out.DevelopmentMode = cfg.DevelopmentMode
	if cfg.OTLPTracesURL != "" {
		out.OTLPTracesURL = cfg.OTLPTracesURL
	}
	if cfg.OTLPMetricsURL != "" {
		out.OTLPMetricsURL = cfg.OTLPMetricsURL
	}
	if cfg.OTLPLogsURL != "" {
		out.OTLPLogsURL = cfg.OTLPLogsURL
	}
	return out
}

func (c *OTelConfig) enabled() bool {
	return c != nil && (c.EnableTracing || c.EnableMetrics || c.EnableLogs)
}

// NewOTelSDK installs the global providers. The returned shutdown flushes and
// stops every provider that was started, even when setup failed halfway.
func NewOTelSDK(ctx context.Context, cfg *OTelConfig) (func(context.Context) error, error) {
	if cfg == nil {
		cfg = DefaultOTelConfig()
	}

	var shutdownFuncs []func(context.Context) error
	shutdown := func(ctx context.Context) error {
		var err error
		for _, fn := range shutdownFuncs {
			err = errors.Join(err, fn(ctx))
		}
		shutdownFuncs = nil
		return err
	}
	fail := func(err error) (func(context.Context) error, error) {
		return shutdown, errors.Join(err, shutdown(ctx))
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironmentName(cfg.Environment),
		),
	)
	if err != nil {
		return shutdown, fmt.Errorf("failed to create resource: %w", err)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if cfg.EnableTracing {
		tp, err := newTracerProvider(ctx, res, cfg)
		if err != nil {
			return fail(err)
		}
		shutdownFuncs = append(shutdownFuncs, tp.Shutdown)
		otel.SetTracerProvider(tp)
	}
	if cfg.EnableMetrics {
		mp, err := newMeterProvider(ctx, res, cfg)
		if err != nil {
			return fail(err)
		}
		shutdownFuncs = append(shutdownFuncs, mp.Shutdown)
		otel.SetMeterProvider(mp)
	}
	if cfg.EnableLogs {
		lp, err := newLoggerProvider(ctx, res, cfg)
		if err != nil {
			return fail(err)
		}
		shutdownFuncs = append(shutdownFuncs, lp.Shutdown)
		global.SetLoggerProvider(lp)
	}

	return shutdown, nil
}

// clientTLS builds the TLS config used towards the collector, nil when insecure.
func clientTLS(cfg *OTelConfig) (*tls.Config, error) {
	if cfg.InsecureOTLP {
		return nil, nil
	}
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	if cfg.OTLPCACertFile != "" {
		caCert, err := os.ReadFile(cfg.OTLPCACertFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to append CA certificate")
		}
		tlsConfig.RootCAs = pool
	}
	if cfg.OTLPClientCertFile != "" && cfg.OTLPClientKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.OTLPClientCertFile, cfg.OTLPClientKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	return tlsConfig, nil
}

func newTracerProvider(ctx context.Context, res *resource.Resource, cfg *OTelConfig) (*sdktrace.TracerProvider, error) {
	var exporter sdktrace.SpanExporter
	switch {
	case cfg.DevelopmentMode:
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout trace exporter: %w", err)
		}
		exporter = exp
	case cfg.UseOTLPTraces:
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.OTLPTracesURL)}
		if cfg.InsecureOTLP {
			opts = append(opts, otlptracehttp.WithInsecure())
		} else if tlsConfig, err := clientTLS(cfg); err != nil {
			return nil, fmt.Errorf("failed to build TLS config for traces: %w", err)
		} else if tlsConfig != nil {
			opts = append(opts, otlptracehttp.WithTLSClientConfig(tlsConfig))
		}
		exp, err := otlptracehttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
		}
		exporter = exp
	default:
		return sdktrace.NewTracerProvider(sdktrace.WithResource(res)), nil
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
	), nil
}

func newMeterProvider(ctx context.Context, res *resource.Resource, cfg *OTelConfig) (*sdkmetric.MeterProvider, error) {
	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	if cfg.UsePrometheus {
		// registers on the default prometheus registry served by promhttp
		exporter, err := prometheus.New()
		if err != nil {
			return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(exporter))
	}

	if cfg.UseOTLPMetrics {
		var exporter sdkmetric.Exporter
		interval := 60 * time.Second
		if cfg.DevelopmentMode {
			exp, err := stdoutmetric.New()
			if err != nil {
				return nil, fmt.Errorf("failed to create stdout metric exporter: %w", err)
			}
			exporter, interval = exp, 10*time.Second
		} else {
			otlpOpts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.OTLPMetricsURL)}
			if cfg.InsecureOTLP {
				otlpOpts = append(otlpOpts, otlpmetrichttp.WithInsecure())
			} else if tlsConfig, err := clientTLS(cfg); err != nil {
				return nil, fmt.Errorf("failed to build TLS config for metrics: %w", err)
			} else if tlsConfig != nil {
				otlpOpts = append(otlpOpts, otlpmetrichttp.WithTLSClientConfig(tlsConfig))
			}
			exp, err := otlpmetrichttp.New(ctx, otlpOpts...)
			if err != nil {
				return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
			}
			exporter = exp
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))))
	}

	return sdkmetric.NewMeterProvider(opts...), nil
}

func newLoggerProvider(ctx context.Context, res *resource.Resource, cfg *OTelConfig) (*sdklog.LoggerProvider, error) {
	var exporter sdklog.Exporter
	switch {
	case cfg.DevelopmentMode:
		exp, err := stdoutlog.New()
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout log exporter: %w", err)
		}
		exporter = exp
	case cfg.UseOTLPLogs:
		opts := []otlploghttp.Option{otlploghttp.WithEndpoint(cfg.OTLPLogsURL)}
		if cfg.InsecureOTLP {
			opts = append(opts, otlploghttp.WithInsecure())
		} else if tlsConfig, err := clientTLS(cfg); err != nil {
			return nil, fmt.Errorf("failed to build TLS config for logs: %w", err)
		} else if tlsConfig != nil {
			opts = append(opts, otlploghttp.WithTLSClientConfig(tlsConfig))
		}
		exp, err := otlploghttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP log exporter: %w", err)
		}
		exporter = exp
	default:
		return sdklog.NewLoggerProvider(sdklog.WithResource(res)), nil
	}

	return sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
		sdklog.WithResource(res),
	), nil
}
