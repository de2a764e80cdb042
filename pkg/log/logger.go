package log

import (
	"bytes"
	stdlog "log"
	"os"
	"slices"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger writes structured records tagged with the subsystem that emitted
// them.
//
// Records below the configured level are discarded, unless the loggers
// subsystem is one of the configured debug subsystems, in which case every
// record is written.
type Logger interface {
	Subsystem() string
	// WithSubsystem returns a logger that tags records with subsystem s.
	WithSubsystem(s string) Logger
	With(fields ...zap.Field) Logger
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	Sync() error
	// StdLogger adapts the logger to a standard library logger, writing each
	// line as a record at level.
	StdLogger(level zapcore.Level) *stdlog.Logger
}

const defaultSubsystem = "main"

type logger struct {
	core zapcore.Core

	subsystem string
	// verbose is set when subsystem is one of debugSubsystems, so the level
	// filter is bypassed.
	verbose         bool
	debugSubsystems []string

	errorOutput zapcore.WriteSyncer
}

// NewLogger creates a logger from conf. Records are encoded using the
// configured format and written to the configured output.
func NewLogger(conf Config) (Logger, error) {
	lvl, err := parseLevel(conf.Level)
	if err != nil {
		return nil, err
	}
	enc, err := newEncoder(conf.Format)
	if err != nil {
		return nil, err
	}
	sink, err := openSink(conf.Output)
	if err != nil {
		return nil, err
	}
	return newLogger(enc, sink, lvl, conf.Subsystems), nil
}

func newLogger(
	enc zapcore.Encoder,
	sink zapcore.WriteSyncer,
	lvl zapcore.Level,
	debugSubsystems []string,
) *logger {
	return &logger{
		core: &unfilteredCore{
			inner: zapcore.NewCore(enc, sink, zap.NewAtomicLevelAt(lvl)),
		},
		subsystem:       defaultSubsystem,
		verbose:         slices.Contains(debugSubsystems, defaultSubsystem),
		debugSubsystems: debugSubsystems,
		errorOutput:     zapcore.Lock(os.Stderr),
	}
}

func (l *logger) Subsystem() string {
	return l.subsystem
}

func (l *logger) WithSubsystem(s string) Logger {
	if s == l.subsystem {
		return l
	}

	child := *l
	child.subsystem = s
	child.verbose = slices.Contains(l.debugSubsystems, s)
	return &child
}

func (l *logger) With(fields ...zap.Field) Logger {
	if len(fields) == 0 {
		return l
	}

	child := *l
	child.core = l.core.With(fields)
	return &child
}

func (l *logger) Debug(msg string, fields ...zap.Field) {
	l.log(zap.DebugLevel, msg, fields)
}

func (l *logger) Info(msg string, fields ...zap.Field) {
	l.log(zap.InfoLevel, msg, fields)
}

func (l *logger) Warn(msg string, fields ...zap.Field) {
	l.log(zap.WarnLevel, msg, fields)
}

func (l *logger) Error(msg string, fields ...zap.Field) {
	l.log(zap.ErrorLevel, msg, fields)
}

func (l *logger) Sync() error {
	return l.core.Sync()
}

func (l *logger) StdLogger(level zapcore.Level) *stdlog.Logger {
	return stdlog.New(lineWriter(func(line string) {
		l.log(level, line, nil)
	}), "", 0)
}

func (l *logger) log(lvl zapcore.Level, msg string, fields []zap.Field) {
	if !l.verbose && lvl < zapcore.DPanicLevel && !l.core.Enabled(lvl) {
		return
	}

	ce := l.core.Check(zapcore.Entry{
		// The encoder writes the logger name as the 'subsystem' key.
		LoggerName: l.subsystem,
		Time:       time.Now(),
		Level:      lvl,
		Message:    msg,
	}, nil)
	if ce == nil {
		return
	}
	ce.ErrorOutput = l.errorOutput
	ce.Write(fields...)
}

// lineWriter passes each write, trimmed of surrounding whitespace, to the
// function.
type lineWriter func(line string)

func (w lineWriter) Write(p []byte) (int, error) {
	w(string(bytes.TrimSpace(p)))
	return len(p), nil
}
