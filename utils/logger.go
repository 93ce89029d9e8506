package utils

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log file rotation limits
const (
	logMaxSizeMB  = 100
	logMaxBackups = 5
	logMaxAgeDays = 14
)

var (
	log  *zap.Logger
	once sync.Once
)

// LogOptions controls how the global logger is built
type LogOptions struct {
	Level string
	File  string
	Debug bool
}

// InitLogger initializes the global logger instance
func InitLogger(opts LogOptions) *zap.Logger {
	once.Do(func() {
		config := zap.NewProductionConfig()
		if opts.Level != "" {
			level, err := zapcore.ParseLevel(opts.Level)
			if err == nil {
				config.Level = zap.NewAtomicLevelAt(level)
			}
		}
		if opts.Debug {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}

		config.OutputPaths = []string{"stdout"}
		config.ErrorOutputPaths = []string{"stderr"}

		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		config.EncoderConfig.StacktraceKey = "stacktrace"

		options := []zap.Option{
			zap.AddCaller(),
			zap.AddStacktrace(zapcore.ErrorLevel),
		}
		if opts.File != "" {
			options = append(options, zap.WrapCore(func(core zapcore.Core) zapcore.Core {
				return zapcore.NewTee(core, fileCore(opts.File, config))
			}))
		}

		logger, err := config.Build(options...)
		if err != nil {
			panic(err)
		}

		log = logger
	})

	return log
}

// GetLogger returns the global logger instance
func GetLogger() *zap.Logger {
	if log == nil {
		return InitLogger(LogOptions{})
	}
	return log
}

// CleanupLogger flushes any buffered log entries
func CleanupLogger() {
	if log != nil {
		_ = log.Sync()
	}
}

// fileCore writes JSON entries to a size-rotated log file
func fileCore(path string, config zap.Config) zapcore.Core {
	writer := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    logMaxSizeMB,
		MaxBackups: logMaxBackups,
		MaxAge:     logMaxAgeDays,
		Compress:   true,
	}
	return zapcore.NewCore(
		zapcore.NewJSONEncoder(config.EncoderConfig),
		zapcore.AddSync(writer),
		config.Level,
	)
}
