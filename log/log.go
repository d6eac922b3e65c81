package log

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/motemen/go-loghttp"
)

// Logger is the global logger instance
var Logger *slog.Logger

// InitLogger initializes the global logger.
// Output always goes to stderr since stdout carries the MCP stdio transport.
// The level is Debug when LITREV_DEBUG is set.
func InitLogger() {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if os.Getenv("LITREV_DEBUG") != "" {
		opts.Level = slog.LevelDebug
	}

	Logger = slog.New(slog.NewTextHandler(os.Stderr, opts))
	slog.SetDefault(Logger)

	loghttp.DefaultTransport.LogRequest = func(req *http.Request) {
		Debug("HTTP request",
			"method", req.Method,
			"url", redactURL(req),
		)
	}

	loghttp.DefaultTransport.LogResponse = func(resp *http.Response) {
		Debug("HTTP response",
			"method", resp.Request.Method,
			"url", redactURL(resp.Request),
			"status_code", resp.StatusCode,
		)
	}
}

// redactURL drops query values that carry credentials.
func redactURL(req *http.Request) string {
	u := *req.URL
	q := u.Query()
	if q.Has("api_key") {
		q.Set("api_key", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func init() {
	InitLogger()
}

// EnableGlobalHTTP routes http.DefaultTransport through the logging transport.
func EnableGlobalHTTP() {
	http.DefaultTransport = loghttp.DefaultTransport
}

// Timed returns a function that logs msg with the elapsed time when called.
func Timed(msg string, args ...any) func(extra ...any) {
	start := time.Now()
	return func(extra ...any) {
		all := append(append([]any{}, args...), extra...)
		all = append(all, "elapsed", time.Since(start))
		Logger.Info(msg, all...)
	}
}

// Debug logs a debug message
func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}

// Info logs an info message
func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

// Warn logs a warning message
func Warn(msg string, args ...any) {
	Logger.Warn(msg, args...)
}

// Error logs an error message
func Error(msg string, args ...any) {
	Logger.Error(msg, args...)
}
