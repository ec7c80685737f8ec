// Package logging builds the service's zap logger and the field helpers used
// across handlers and background components.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// StandardLogger wraps a zap logger with the service's field conventions.
type StandardLogger struct {
	logger *zap.Logger
}

// NewStandardLogger builds a JSON logger in production and a console logger
// otherwise. It also installs the logger as zap's global logger.
func NewStandardLogger(level, environment string) *StandardLogger {
	atomicLevel := zap.NewAtomicLevelAt(getZapLevel(level))

	var encoder zapcore.Encoder
	if environment == "production" {
		encoderCfg := zap.NewProductionEncoderConfig()
		encoderCfg.TimeKey = "time"
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		encoderCfg := zap.NewDevelopmentEncoderConfig()
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), atomicLevel)
	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)).
		With(zap.String("environment", environment))

	zap.ReplaceGlobals(logger)
	return &StandardLogger{logger: logger}
}

// NewFromZap wraps an existing logger, such as a component logger derived
// from the service logger.
func NewFromZap(logger *zap.Logger) *StandardLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StandardLogger{logger: logger}
}

func getZapLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func (l *StandardLogger) Logger() *zap.Logger {
	return l.logger
}

func (l *StandardLogger) WithService(name string) *zap.Logger {
	return l.logger.With(zap.String("service", name))
}

func (l *StandardLogger) WithComponent(name string) *zap.Logger {
	return l.logger.With(zap.String("component", name))
}

func (l *StandardLogger) WithUserID(id string) *zap.Logger {
	return l.logger.With(zap.String("user_id", id))
}

func (l *StandardLogger) WithError(err error) *zap.Logger {
	return l.logger.With(zap.Error(err))
}

func (l *StandardLogger) LogStartup(service, version string, port int) {
	l.logger.Info("Service starting",
		zap.String("event", "startup"),
		zap.String("service", service),
		zap.String("version", version),
		zap.Int("port", port),
	)
}

func (l *StandardLogger) LogShutdown(service, reason string) {
	l.logger.Info("Service shutting down",
		zap.String("event", "shutdown"),
		zap.String("service", service),
		zap.String("reason", reason),
	)
}

func (l *StandardLogger) LogAPIRequest(method, path string, statusCode int, durationMs int64, userID string) {
	fields := []zap.Field{
		zap.String("event", "api_request"),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status_code", statusCode),
		zap.Int64("duration_ms", durationMs),
	}
	if userID != "" {
		fields = append(fields, zap.String("user_id", userID))
	}

	switch {
	case statusCode >= 500:
		l.logger.Error("API request", fields...)
	case statusCode >= 400:
		l.logger.Warn("API request", fields...)
	default:
		l.logger.Info("API request", fields...)
	}
}

// LogBusinessEvent records a domain event such as a completed verification
// or a throttled report.
func (l *StandardLogger) LogBusinessEvent(eventType string, details map[string]interface{}) {
	fields := make([]zap.Field, 0, len(details)+2)
	fields = append(fields, zap.String("event", "business_event"), zap.String("type", eventType))
	for k, v := range details {
		fields = append(fields, zap.Any(k, v))
	}
	l.logger.Info("Business event", fields...)
}
