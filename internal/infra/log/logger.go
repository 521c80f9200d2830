package log

// Two zap loggers: a file logger that records everything (requests, responses,
// per-account progress) and a short coloured console logger for ✓/✗ lines.
// Until Init is called both are no-ops, so packages can log from tests freely.

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

var (
	Logger        = zap.NewNop()
	consoleLogger = zap.NewNop()
	mu            sync.RWMutex
)

// Init builds the file and console loggers. logsDir is created if missing;
// an empty logsDir disables the file logger.
func Init(logsDir string, debug bool) error {
	fileLevel := zapcore.InfoLevel
	if debug {
		fileLevel = zapcore.DebugLevel
	}

	file := zap.NewNop()
	if logsDir != "" {
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return fmt.Errorf("failed to create logs directory: %w", err)
		}

		fileConfig := zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeTime:     zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05"),
			EncodeDuration: zapcore.SecondsDurationEncoder,
		}
		core := zapcore.NewCore(
			&fileEncoder{Encoder: zapcore.NewConsoleEncoder(fileConfig)},
			getLogFileWriter(filepath.Join(logsDir, "checkin.log")),
			fileLevel,
		)
		file = zap.New(core)
	}

	consoleConfig := zap.NewDevelopmentConfig()
	consoleConfig.EncoderConfig.EncodeLevel = customLevelEncoder
	consoleConfig.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	consoleConfig.EncoderConfig.EncodeCaller = nil
	consoleConfig.Development = false
	consoleConfig.DisableStacktrace = true
	consoleConfig.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)

	console, err := consoleConfig.Build()
	if err != nil {
		return fmt.Errorf("failed to build console logger: %w", err)
	}

	mu.Lock()
	Logger = file
	consoleLogger = console
	mu.Unlock()
	return nil
}

// Use swaps both loggers, mainly for tests that want to observe output.
func Use(file, console *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	Logger = file
	consoleLogger = console
}

// Sync flushes both loggers. Errors from syncing stdout/stderr are ignored.
func Sync() {
	f, c := loggers()
	_ = f.Sync()
	_ = c.Sync()
}

func loggers() (*zap.Logger, *zap.Logger) {
	mu.RLock()
	defer mu.RUnlock()
	return Logger, consoleLogger
}

// GenerateRequestID returns a short id used to correlate request and response lines.
func GenerateRequestID() string {
	return uuid.NewString()[:8]
}

// LogRequest writes an outgoing HTTP request to the file log.
func LogRequest(requestID, method, endpoint string, fields ...zap.Field) {
	file, _ := loggers()
	allFields := append([]zap.Field{
		zap.String("request_id", requestID),
		zap.String("method", method),
		zap.String("endpoint", endpoint),
	}, fields...)
	file.Info("HTTP request", allFields...)
}

// LogResponse writes an HTTP response; non-2xx responses are echoed to the console.
func LogResponse(requestID string, statusCode int, durationMs int64, fields ...zap.Field) {
	file, console := loggers()
	allFields := append([]zap.Field{
		zap.String("request_id", requestID),
		zap.Int("status_code", statusCode),
		zap.Int64("duration_ms", durationMs),
	}, fields...)

	if statusCode >= 200 && statusCode < 300 {
		file.Info("HTTP response", allFields...)
		return
	}

	file.Error("HTTP response", allFields...)
	if endpoint := endpointField(fields); endpoint != "" {
		console.Error(fmt.Sprintf("✗ HTTP request failed [%d] %s", statusCode, endpoint))
	} else {
		console.Error(fmt.Sprintf("✗ HTTP request failed [%d]", statusCode))
	}
}

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorWhite  = "\033[37m"
)

func customLevelEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	switch level {
	case zapcore.DebugLevel:
		enc.AppendString(colorCyan + "DEBUG" + colorReset)
	case zapcore.InfoLevel:
		enc.AppendString(colorGreen + "SUCCESS" + colorReset)
	case zapcore.WarnLevel:
		enc.AppendString(colorYellow + "WARN" + colorReset)
	case zapcore.ErrorLevel, zapcore.FatalLevel, zapcore.PanicLevel:
		enc.AppendString(colorRed + level.CapitalString() + colorReset)
	default:
		enc.AppendString(colorWhite + level.String() + colorReset)
	}
}

func LogInfo(message string, fields ...zap.Field) {
	file, _ := loggers()
	file.Info(message, fields...)
}

// LogSuccess goes to the file log and prints a ✓ line on the console.
func LogSuccess(message string, fields ...zap.Field) {
	file, console := loggers()
	file.Info(message, fields...)
	if d := extractDuration(fields); d > 0 {
		console.Info(fmt.Sprintf("✓ %s (%dms)", message, d))
	} else {
		console.Info("✓ " + message)
	}
}

// LogError goes to the file log and prints a ✗ line on the console.
func LogError(message string, fields ...zap.Field) {
	file, console := loggers()
	file.Error(message, fields...)
	if d := extractDuration(fields); d > 0 {
		console.Error(fmt.Sprintf("✗ %s (%dms)", message, d))
	} else {
		console.Error("✗ " + message)
	}
}

func LogWarn(message string, fields ...zap.Field) {
	file, _ := loggers()
	file.Warn(message, fields...)
}

func LogDebug(message string, fields ...zap.Field) {
	file, _ := loggers()
	file.Debug(message, fields...)
}

// LogJSON pretty-prints an API body into the file log at debug level.
func LogJSON(data []byte, label string) {
	file, _ := loggers()
	var pretty interface{}
	if err := json.Unmarshal(data, &pretty); err == nil {
		if formatted, err := json.MarshalIndent(pretty, "", "  "); err == nil {
			file.Sugar().Debugf("%s\n%s", label, string(formatted))
			return
		}
	}
	file.Debug(label, zap.String("response", string(data)))
}

func extractDuration(fields []zap.Field) int64 {
	for _, field := range fields {
		if field.Key == "duration_ms" && field.Type == zapcore.Int64Type {
			return field.Integer
		}
	}
	return 0
}

func endpointField(fields []zap.Field) string {
	for _, field := range fields {
		if field.Key == "endpoint" {
			return field.String
		}
	}
	return ""
}

// MaxLogFileSize caps checkin.log; the file is truncated once it grows past it.
const MaxLogFileSize = 20 * 1024 * 1024

type rotatingLogWriter struct {
	file *os.File
	path string
	mu   sync.Mutex
}

func (w *rotatingLogWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	info, err := w.file.Stat()
	if err == nil && info.Size() > MaxLogFileSize {
		w.file.Close()
		w.file, err = os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return 0, fmt.Errorf("failed to truncate log file: %w", err)
		}
	}
	return w.file.Write(p)
}

func (w *rotatingLogWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Sync()
}

func getLogFileWriter(path string) zapcore.WriteSyncer {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log file %s: %v, falling back to stderr\n", path, err)
		return zapcore.AddSync(os.Stderr)
	}
	return zapcore.AddSync(&rotatingLogWriter{file: file, path: path})
}

// fileEncoder renders "time     LEVEL message\t{json fields}" lines.
type fileEncoder struct {
	zapcore.Encoder
}

func (e *fileEncoder) Clone() zapcore.Encoder {
	return &fileEncoder{Encoder: e.Encoder.Clone()}
}

func (e *fileEncoder) EncodeEntry(entry zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	buf := buffer.NewPool().Get()

	buf.AppendString(entry.Time.Format("2006-01-02 15:04:05"))
	buf.AppendString("     ")
	buf.AppendString(entry.Level.CapitalString())
	buf.AppendString(" ")
	buf.AppendString(entry.Message)

	if len(fields) > 0 {
		enc := zapcore.NewMapObjectEncoder()
		for _, field := range fields {
			field.AddTo(enc)
		}
		if jsonData, err := json.Marshal(enc.Fields); err == nil {
			buf.AppendString("\t")
			buf.AppendString(string(jsonData))
		}
	}

	buf.AppendString("\n")
	return buf, nil
}
