// Package logger is the process-wide structured logger.
//
// Output is JSON through log/slog, or OpenTelemetry logs when OTEL_ENABLED=true.
// Warnings and errors are sampled (1 in ERROR_SAMPLE_RATE) but always counted;
// Audit lines are never sampled.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	LevelDebug   = slog.LevelDebug
	LevelInfo    = slog.LevelInfo
	LevelWarning = slog.LevelWarn
	LevelError   = slog.LevelError
	LevelFatal   = slog.Level(12)
)

// DefaultService names the OTEL resource when OTEL_SERVICE_NAME is unset
const DefaultService = "crewrecovery"

var (
	Logger       *slog.Logger
	programLevel = new(slog.LevelVar)
	sampleRate   atomic.Int32
	shutdownFunc func(context.Context) error
)

// Counters are incremented whether or not the line survives sampling
var (
	TotalErrors   atomic.Int64
	TotalWarnings atomic.Int64
)

// Options configures Setup
type Options struct {
	Level      string
	SampleRate int
	OTEL       bool
	Service    string
	Output     io.Writer
}

// OptionsFromEnv reads LOG_LEVEL, ERROR_SAMPLE_RATE, OTEL_ENABLED and OTEL_SERVICE_NAME
func OptionsFromEnv(getenv func(string) string) Options {
	opts := Options{
		Level:      getenv("LOG_LEVEL"),
		SampleRate: 100,
		OTEL:       strings.EqualFold(getenv("OTEL_ENABLED"), "true"),
		Service:    getenv("OTEL_SERVICE_NAME"),
	}
	if rate, err := strconv.Atoi(getenv("ERROR_SAMPLE_RATE")); err == nil && rate > 0 {
		opts.SampleRate = rate
	}
	return opts
}

func init() {
	// logs go to stderr so CLI output on stdout stays machine-readable
	Setup(OptionsFromEnv(os.Getenv))
}

// Setup replaces the process logger. An unknown level falls back to INFO and a
// failed OTEL exporter falls back to JSON; both are reported in the returned error.
func Setup(opts Options) error {
	var errs []error

	level := LevelInfo
	if opts.Level != "" {
		l, err := ParseLevel(opts.Level)
		if err != nil {
			errs = append(errs, err)
		}
		level = l
	}
	programLevel.Set(level)

	rate := opts.SampleRate
	if rate <= 0 {
		rate = 1
	}
	sampleRate.Store(int32(rate))

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	if opts.OTEL {
		service := opts.Service
		if service == "" {
			service = DefaultService
		}
		shutdown, err := setupOTEL(context.Background(), service)
		if err == nil {
			shutdownFunc = shutdown
			return joinErrs(errs)
		}
		errs = append(errs, fmt.Errorf("otel logging unavailable, using JSON: %w", err))
	}

	setupJSON(out)
	return joinErrs(errs)
}

func joinErrs(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("logger setup: %s", strings.Join(msgs, "; "))
}

func setupJSON(out io.Writer) {
	Logger = slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: programLevel}))
	slog.SetDefault(Logger)
}

func setupOTEL(ctx context.Context, service string) (func(context.Context) error, error) {
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(service)))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := otlploggrpc.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	provider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)

	Logger = slog.New(&levelHandler{
		level:   programLevel,
		handler: otelslog.NewHandler(service, otelslog.WithLoggerProvider(provider)),
	})
	slog.SetDefault(Logger)

	return provider.Shutdown, nil
}

// levelHandler applies the program level to a handler that has none of its own
type levelHandler struct {
	level   slog.Leveler
	handler slog.Handler
}

func (h *levelHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *levelHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.handler.Handle(ctx, r)
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithAttrs(attrs)}
}

func (h *levelHandler) WithGroup(name string) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithGroup(name)}
}

// Shutdown flushes the OTEL exporter, if one is running
func Shutdown(ctx context.Context) error {
	if shutdownFunc != nil {
		return shutdownFunc(ctx)
	}
	return nil
}

func SetLevel(level slog.Level) { programLevel.Set(level) }

func GetLevel() slog.Level { return programLevel.Level() }

// ParseLevel accepts DEBUG, INFO, WARN/WARNING, ERROR and FATAL in any case
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarning, nil
	case "ERROR":
		return LevelError, nil
	case "FATAL":
		return LevelFatal, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q, using INFO", s)
}

func sampled() bool {
	rate := sampleRate.Load()
	return rate <= 1 || rand.IntN(int(rate)) == 0
}

func Debug(msg string, args ...any) { Logger.Debug(msg, args...) }

func Info(msg string, args ...any) { Logger.Info(msg, args...) }

// Warn is sampled; TotalWarnings is not
func Warn(msg string, args ...any) {
	TotalWarnings.Add(1)
	if sampled() {
		Logger.Warn(msg, args...)
	}
}

// Error is sampled; TotalErrors is not
func Error(msg string, args ...any) {
	TotalErrors.Add(1)
	if sampled() {
		Logger.Error(msg, args...)
	}
}

// Audit records a decision at INFO and is never sampled
func Audit(msg string, args ...any) {
	Logger.Info(msg, append([]any{slog.Bool("audit", true)}, args...)...)
}

// Fatal logs, flushes OTEL and exits
func Fatal(msg string, args ...any) {
	Logger.Log(context.Background(), LevelFatal, msg, args...)
	if shutdownFunc != nil {
		_ = shutdownFunc(context.Background())
	}
	os.Exit(1)
}
