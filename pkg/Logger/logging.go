package Logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger struct {
	*zap.SugaredLogger
	level *zap.AtomicLevel
}

func BuildLogger(debug bool) *Logger {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.TimeKey = "time"
		cfg.EncoderConfig.LevelKey = "level"
		cfg.EncoderConfig.MessageKey = "msg"
		cfg.EncoderConfig.CallerKey = "caller"
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.LevelKey = "level"
		cfg.EncoderConfig.MessageKey = "msg"
		cfg.EncoderConfig.CallerKey = "caller"
		cfg.Encoding = "json"
	}

	logger, err := cfg.Build(zap.AddCaller())
	if err != nil {
		return NewNop()
	}
	level := cfg.Level
	return &Logger{SugaredLogger: logger.Sugar(), level: &level}
}

func New(debug bool) *Logger {
	return BuildLogger(debug)
}

// NewNop returns a logger that discards everything, used by tests.
func NewNop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// With returns a child logger carrying the given key/value pairs.
func (l *Logger) With(args ...interface{}) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(args...), level: l.level}
}

// SetDebug switches the minimum level of l and every logger derived from
// it between debug and info.
func (l *Logger) SetDebug(debug bool) {
	if l.level == nil {
		return
	}
	if debug {
		l.level.SetLevel(zapcore.DebugLevel)
	} else {
		l.level.SetLevel(zapcore.InfoLevel)
	}
}

// Debugging reports whether debug entries are currently written.
func (l *Logger) Debugging() bool {
	return l.level != nil && l.level.Enabled(zapcore.DebugLevel)
}
