package log

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	formatJSON    = "json"
	formatConsole = "console"

	outputStderr = "stderr"
)

func parseLevel(s string) (zapcore.Level, error) {
	switch s {
	case "debug":
		return zap.DebugLevel, nil
	case "info":
		return zap.InfoLevel, nil
	case "warn":
		return zap.WarnLevel, nil
	case "error":
		return zap.ErrorLevel, nil
	default:
		return zapcore.Level(0), fmt.Errorf("unsupported level: %s", s)
	}
}

// newEncoder returns the record encoder for format. Both formats write the
// logger name under the 'subsystem' key.
func newEncoder(format string) (zapcore.Encoder, error) {
	conf := zap.NewProductionEncoderConfig()
	conf.NameKey = "subsystem"
	conf.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.999Z07:00")

	switch format {
	case "", formatJSON:
		return zapcore.NewJSONEncoder(conf), nil
	case formatConsole:
		conf.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewConsoleEncoder(conf), nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// openSink opens the output records are written to. output is either
// 'stderr', 'stdout' or a file path. Files are appended to.
func openSink(output string) (zapcore.WriteSyncer, error) {
	if output == "" {
		output = outputStderr
	}
	sink, _, err := zap.Open(output)
	if err != nil {
		return nil, fmt.Errorf("open sink: %s: %w", output, err)
	}
	return sink, nil
}
