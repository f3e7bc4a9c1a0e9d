package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger defines the interface for audit logging
type Logger interface {
	// Log logs an audit event
	Log(ctx context.Context, event *Event) error

	// LogBaseline logs baseline lifecycle events
	LogBaselineCalculated(ctx context.Context, baselineID, metricName string, sampleCount int64) error
	LogBaselineFailed(ctx context.Context, metricName string, err error) error

	// LogAnalysis logs analysis lifecycle events
	LogAnalysisStarted(ctx context.Context, analysisID, metricName, severity string) error
	LogAnalysisCompleted(ctx context.Context, analysisID, modelUsed string, duration time.Duration) error
	LogAnalysisFailed(ctx context.Context, analysisID string, err error) error
	LogFallbackUsed(ctx context.Context, analysisID, reason string) error

	// LogFeedback logs analyst review of an analysis
	LogFeedbackRecorded(ctx context.Context, analysisID, reviewer string, falsePositive bool) error

	// Sync flushes buffered log entries
	Sync() error

	// Close closes the audit logger
	Close() error
}

// Config represents audit logger configuration
type Config struct {
	// AuditLogPath is the path to the audit log file
	AuditLogPath string

	// AppLogPath is the path to the application log file
	AppLogPath string

	// MaxSize is the maximum size in megabytes before rotation
	MaxSize int

	// MaxBackups is the maximum number of old log files to retain
	MaxBackups int

	// MaxAge is the maximum number of days to retain old log files
	MaxAge int

	// Compress determines if rotated files should be compressed
	Compress bool

	// LogLevel is the minimum log level (debug, info, warn, error)
	LogLevel string
}

// DefaultConfig returns default audit logger configuration
func DefaultConfig() *Config {
	return &Config{
		AuditLogPath: "logs/audit.log",
		AppLogPath:   "logs/app.log",
		MaxSize:      100, // megabytes
		MaxBackups:   10,
		MaxAge:       30, // days
		Compress:     true,
		LogLevel:     "info",
	}
}

// auditLogger implements the Logger interface
type auditLogger struct {
	appLogger   *zap.Logger
	auditLogger *zap.Logger
	config      *Config
	mu          sync.Mutex
	buffer      []*Event
	flushTicker *time.Ticker
	stopCh      chan struct{}
}

// NewLogger creates a new audit logger
func NewLogger(config *Config) (Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	// Parse log level
	level, err := zapcore.ParseLevel(config.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", config.LogLevel, err)
	}

	// Create encoder config
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	// Create application logger with rotation
	appRotator := &lumberjack.Logger{
		Filename:   config.AppLogPath,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}

	appCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(appRotator),
		level,
	)

	appLogger := zap.New(appCore, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	// Create audit logger with rotation (always INFO level, append-only)
	auditRotator := &lumberjack.Logger{
		Filename:   config.AuditLogPath,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}

	auditCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(auditRotator),
		zapcore.InfoLevel, // Audit logs are always INFO level
	)

	auditZapLogger := zap.New(auditCore)

	// Create the logger instance
	logger := &auditLogger{
		appLogger:   appLogger,
		auditLogger: auditZapLogger,
		config:      config,
		buffer:      make([]*Event, 0, 100),
		flushTicker: time.NewTicker(1 * time.Second),
		stopCh:      make(chan struct{}),
	}

	// Start auto-flush goroutine
	go logger.autoFlush()

	return logger, nil
}

// Log logs an audit event
func (l *auditLogger) Log(ctx context.Context, event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Add to buffer
	l.buffer = append(l.buffer, event)

	// Flush if buffer is full
	if len(l.buffer) >= 100 {
		return l.flushLocked()
	}

	return nil
}

// flushLocked flushes the buffer (caller must hold lock)
func (l *auditLogger) flushLocked() error {
	if len(l.buffer) == 0 {
		return nil
	}

	// Write all buffered events
	for _, event := range l.buffer {
		eventJSON, err := json.Marshal(event)
		if err != nil {
			l.appLogger.Error("failed to marshal audit event",
				zap.Error(err),
				zap.String("event_type", string(event.EventType)),
			)
			continue
		}

		l.auditLogger.Info(string(eventJSON),
			zap.String("correlation_id", event.CorrelationID),
			zap.String("event_type", string(event.EventType)),
			zap.String("result", string(event.Result)),
		)
	}

	// Clear buffer
	l.buffer = l.buffer[:0]

	return nil
}

// autoFlush periodically flushes the buffer
func (l *auditLogger) autoFlush() {
	for {
		select {
		case <-l.flushTicker.C:
			l.mu.Lock()
			_ = l.flushLocked()
			l.mu.Unlock()
		case <-l.stopCh:
			return
		}
	}
}

// LogBaselineCalculated logs a successful baseline calculation
func (l *auditLogger) LogBaselineCalculated(ctx context.Context, baselineID, metricName string, sampleCount int64) error {
	event := NewEvent(EventBaselineCalculated).
		WithCorrelationID(baselineID).
		WithMetric(metricName).
		WithResult(ResultSuccess).
		WithMetadata("sample_count", sampleCount).
		WithDescription(fmt.Sprintf("Baseline %s calculated for %s", baselineID, metricName))

	return l.Log(ctx, event)
}

// LogBaselineFailed logs a failed baseline calculation
func (l *auditLogger) LogBaselineFailed(ctx context.Context, metricName string, err error) error {
	event := NewEvent(EventBaselineFailed).
		WithMetric(metricName).
		WithError(err, "baseline_error").
		WithDescription(fmt.Sprintf("Baseline calculation for %s failed", metricName))

	return l.Log(ctx, event)
}

// LogAnalysisStarted logs when an anomaly analysis begins
func (l *auditLogger) LogAnalysisStarted(ctx context.Context, analysisID, metricName, severity string) error {
	event := NewEvent(EventAnalysisStarted).
		WithCorrelationID(analysisID).
		WithMetric(metricName).
		WithSeverity(severity).
		WithResult(ResultSuccess).
		WithDescription(fmt.Sprintf("Analysis %s started for %s anomaly on %s", analysisID, severity, metricName))

	return l.Log(ctx, event)
}

// LogAnalysisCompleted logs when an anomaly analysis completes
func (l *auditLogger) LogAnalysisCompleted(ctx context.Context, analysisID, modelUsed string, duration time.Duration) error {
	event := NewEvent(EventAnalysisCompleted).
		WithCorrelationID(analysisID).
		WithResult(ResultSuccess).
		WithDuration(duration).
		WithMetadata("model_used", modelUsed).
		WithDescription(fmt.Sprintf("Analysis %s completed using %s", analysisID, modelUsed))

	return l.Log(ctx, event)
}

// LogAnalysisFailed logs when an anomaly analysis fails outright
func (l *auditLogger) LogAnalysisFailed(ctx context.Context, analysisID string, err error) error {
	event := NewEvent(EventAnalysisFailed).
		WithCorrelationID(analysisID).
		WithError(err, "analysis_error").
		WithDescription(fmt.Sprintf("Analysis %s failed", analysisID))

	return l.Log(ctx, event)
}

// LogFallbackUsed logs when the rule-based path replaced the AI path
func (l *auditLogger) LogFallbackUsed(ctx context.Context, analysisID, reason string) error {
	event := NewEvent(EventFallbackUsed).
		WithCorrelationID(analysisID).
		WithResult(ResultSuccess).
		WithMetadata("reason", reason).
		WithDescription(fmt.Sprintf("Rule-based fallback used for analysis %s: %s", analysisID, reason))

	return l.Log(ctx, event)
}

// LogFeedbackRecorded logs analyst review of a completed analysis
func (l *auditLogger) LogFeedbackRecorded(ctx context.Context, analysisID, reviewer string, falsePositive bool) error {
	event := NewEvent(EventFeedbackRecorded).
		WithCorrelationID(analysisID).
		WithUser(reviewer).
		WithResult(ResultSuccess).
		WithMetadata("is_false_positive", falsePositive).
		WithDescription(fmt.Sprintf("Feedback recorded for analysis %s by %s", analysisID, reviewer))

	return l.Log(ctx, event)
}

// Sync flushes buffered log entries
func (l *auditLogger) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.flushLocked(); err != nil {
		return err
	}

	if err := l.auditLogger.Sync(); err != nil {
		return err
	}

	return l.appLogger.Sync()
}

// Close closes the audit logger
func (l *auditLogger) Close() error {
	close(l.stopCh)
	l.flushTicker.Stop()

	if err := l.Sync(); err != nil {
		return err
	}

	return nil
}

type correlationIDKey struct{}

// GetCorrelationID extracts correlation ID from context
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return id
	}
	return ""
}

// WithCorrelationID adds correlation ID to context
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// GenerateCorrelationID generates a new correlation ID
func GenerateCorrelationID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), os.Getpid())
}
