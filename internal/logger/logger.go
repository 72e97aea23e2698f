package logger

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"
)

type Logger struct {
	serviceName string
	minLevel    int
}

var levelRanks = map[string]int{
	"debug": 0,
	"info":  1,
	"warn":  2,
	"error": 3,
}

type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Service   string    `json:"service"`
	RequestID string    `json:"request_id,omitempty"`
	Episode   string    `json:"episode,omitempty"`
	Message   string    `json:"message"`
	Error     string    `json:"error,omitempty"`
	Fields    Fields    `json:"fields,omitempty"`
}

type Fields map[string]any

// Context keys for values carried across the pipeline
type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	EpisodeKey   contextKey = "episode"
)

// Global logger instance
var defaultLogger *Logger

func Init(serviceName string) {
	defaultLogger = &Logger{serviceName: serviceName}
}

// SetLevel suppresses entries below the given level. Unknown levels are
// treated as debug, which keeps everything.
func SetLevel(level string) {
	if defaultLogger == nil {
		return
	}
	defaultLogger.minLevel = levelRanks[level]
}

func (l *Logger) log(level string, ctx context.Context, message string, err error, fields Fields) {
	if levelRanks[level] < l.minLevel {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Service:   l.serviceName,
		Message:   message,
		Fields:    fields,
	}

	if ctx != nil {
		if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
			entry.RequestID = requestID
		}
		if episode, ok := ctx.Value(EpisodeKey).(string); ok && episode != "" {
			entry.Episode = episode
		}
	}

	if err != nil {
		entry.Error = err.Error()
	}

	jsonData, marshalErr := json.Marshal(entry)
	if marshalErr != nil {
		// Fallback to standard log if JSON marshaling fails
		log.Printf("JSON marshal error: %v, original message: %s", marshalErr, message)
		return
	}

	// One JSON object per line on stdout, for the log collector
	os.Stdout.Write(jsonData)
	os.Stdout.WriteString("\n")
}

// Package-level convenience functions using the default logger
func Info(ctx context.Context, message string, fields ...Fields) {
	emit("info", ctx, message, nil, fields)
}

func Warn(ctx context.Context, message string, fields ...Fields) {
	emit("warn", ctx, message, nil, fields)
}

func Debug(ctx context.Context, message string, fields ...Fields) {
	emit("debug", ctx, message, nil, fields)
}

func Error(ctx context.Context, message string, err error, fields ...Fields) {
	emit("error", ctx, message, err, fields)
}

func emit(level string, ctx context.Context, message string, err error, fields []Fields) {
	if defaultLogger == nil {
		log.Printf("Logger not initialized, falling back to standard log: %s", message)
		return
	}
	var f Fields
	if len(fields) > 0 {
		f = fields[0]
	}
	defaultLogger.log(level, ctx, message, err, f)
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithEpisode tags the context with the slug of the episode being processed.
func WithEpisode(ctx context.Context, slug string) context.Context {
	return context.WithValue(ctx, EpisodeKey, slug)
}
