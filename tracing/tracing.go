// Copyright 2026 Prometheus Team
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package tracing installs the OpenTelemetry tracer provider that exports
// the spans of the alert pipeline over OTLP.
package tracing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	commoncfg "github.com/prometheus/common/config"
	"github.com/prometheus/common/version"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc/credentials"
)

const serviceName = "alertcore"

// Manager owns the lifecycle of the tracer provider.
type Manager struct {
	logger *slog.Logger
	done   chan struct{}

	mtx          sync.Mutex
	installed    bool
	shutdownFunc func() error
}

// NewManager creates a new tracing manager.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Run sets the global propagator and error handler and blocks until Stop is
// called.
func (m *Manager) Run() {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	otel.SetErrorHandler(otelErrHandler(func(err error) {
		m.logger.Error("OpenTelemetry handler returned an error", "err", err.Error())
	}))
	<-m.done
}

// ApplyConfig installs a tracer provider exporting to the configured
// endpoint. It does nothing if tracing is disabled. Package level tracers
// bind to the first provider installed, so it may only succeed once.
func (m *Manager) ApplyConfig(cfg Config) error {
	if !cfg.Enabled() {
		m.logger.Debug("Tracing is disabled")
		return nil
	}
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if m.installed {
		return errors.New("tracer provider already installed")
	}

	tp, shutdownFunc, err := buildTracerProvider(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("failed to install a new tracer provider: %w", err)
	}
	m.installed = true
	m.shutdownFunc = shutdownFunc
	otel.SetTracerProvider(tp)

	m.logger.Info("Successfully installed a new tracer provider", "endpoint", cfg.Endpoint, "client_type", cfg.ClientType)
	return nil
}

// Stop gracefully shuts down the tracer provider and stops the tracing
// manager.
func (m *Manager) Stop() {
	defer close(m.done)

	m.mtx.Lock()
	defer m.mtx.Unlock()
	if m.shutdownFunc == nil {
		return
	}
	if err := m.shutdownFunc(); err != nil {
		m.logger.Error("failed to shut down the tracer provider", "err", err)
	}
	m.shutdownFunc = nil
	m.logger.Info("Tracing manager stopped")
}

type otelErrHandler func(err error)

func (o otelErrHandler) Handle(err error) {
	o(err)
}

// buildTracerProvider return a new tracer provider ready for installation,
// together with a shutdown function.
func buildTracerProvider(ctx context.Context, cfg Config) (*tracesdk.TracerProvider, func() error, error) {
	client, err := getClient(cfg)
	if err != nil {
		return nil, nil, err
	}

	exp, err := otlptrace.New(ctx, client)
	if err != nil {
		return nil, nil, err
	}

	res, err := resource.New(
		ctx,
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", version.Version),
		),
		resource.WithProcessRuntimeDescription(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, nil, err
	}

	tp := tracesdk.NewTracerProvider(
		tracesdk.WithBatcher(exp),
		tracesdk.WithSampler(tracesdk.ParentBased(
			tracesdk.TraceIDRatioBased(cfg.SamplingFraction),
		)),
		tracesdk.WithResource(res),
	)

	return tp, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	}, nil
}

// getClient returns an appropriate OTLP client (either gRPC or HTTP), based
// on the provided tracing configuration.
func getClient(cfg Config) (otlptrace.Client, error) {
	tlsCfg := cfg.TLSConfig
	if tlsCfg == nil {
		tlsCfg = &commoncfg.TLSConfig{}
	}
	var headers map[string]string
	if len(cfg.Headers) > 0 {
		headers = make(map[string]string, len(cfg.Headers))
		for k, v := range cfg.Headers {
			headers[k] = string(v)
		}
	}

	switch cfg.ClientType {
	case ClientGRPC, "":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		} else {
			// TLS credentials force TLS, so they are only set for secure
			// endpoints.
			tlsConf, err := commoncfg.NewTLSConfig(tlsCfg)
			if err != nil {
				return nil, err
			}
			opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewTLS(tlsConf)))
		}
		if cfg.Compression != "" {
			opts = append(opts, otlptracegrpc.WithCompressor(cfg.Compression))
		}
		if len(headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(headers))
		}
		if cfg.Timeout != 0 {
			opts = append(opts, otlptracegrpc.WithTimeout(time.Duration(cfg.Timeout)))
		}
		return otlptracegrpc.NewClient(opts...), nil

	case ClientHTTP:
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		tlsConf, err := commoncfg.NewTLSConfig(tlsCfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, otlptracehttp.WithTLSClientConfig(tlsConf))
		if cfg.Compression != "" {
			opts = append(opts, otlptracehttp.WithCompression(otlptracehttp.GzipCompression))
		}
		if len(headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(headers))
		}
		if cfg.Timeout != 0 {
			opts = append(opts, otlptracehttp.WithTimeout(time.Duration(cfg.Timeout)))
		}
		return otlptracehttp.NewClient(opts...), nil
	}
	return nil, fmt.Errorf("unknown tracing client type: %s", cfg.ClientType)
}
