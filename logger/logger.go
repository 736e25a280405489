package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

type LoggerOpts struct {
	Level        string
	IsProduction bool
	JSONConsole  bool                // Whether to use JSON encoding for the console output
	Output       zapcore.WriteSyncer // Defaults to stderr so stdout stays free for the conversation
}

// Use zap WrapCore if interface is required
func NewZapLogger(opts LoggerOpts) (*zap.Logger, zap.AtomicLevel, error) {
	if opts.Level == "none" {
		return zap.NewNop(), zap.AtomicLevel{}, nil
	}
	level, err := zap.ParseAtomicLevel(opts.Level)
	if err != nil {
		return nil, level, err
	}
	var ecfg zapcore.EncoderConfig
	if opts.IsProduction {
		ecfg = zap.NewProductionEncoderConfig()
	} else {
		ecfg = zap.NewDevelopmentEncoderConfig()
	}
	ecfg.EncodeTime = zapcore.ISO8601TimeEncoder

	out := opts.Output
	if out == nil {
		out = zapcore.Lock(os.Stderr)
	}

	var core zapcore.Core
	if opts.JSONConsole {
		core = consoleJSONEncoder(ecfg, level, out)
	} else {
		core = consoleEncoder(ecfg, level, out, isTTY(opts.Output))
	}
	return zap.New(core), level, nil
}

// Core to write readable output to the console, colored on a terminal
func consoleEncoder(ecfg zapcore.EncoderConfig, level zap.AtomicLevel, out zapcore.WriteSyncer, color bool) zapcore.Core {
	if color {
		ecfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		ecfg.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	return zapcore.NewCore(zapcore.NewConsoleEncoder(ecfg), out, level)
}

// Core to write only JSON to the console
func consoleJSONEncoder(ecfg zapcore.EncoderConfig, level zap.AtomicLevel, out zapcore.WriteSyncer) zapcore.Core {
	return zapcore.NewCore(zapcore.NewJSONEncoder(ecfg), out, level)
}

type Logger struct {
	logger *zap.Logger
	level  zap.AtomicLevel
}

// New wrapped Zap logger.
func NewLogger(opts LoggerOpts) (Logger, error) {
	logger, level, err := NewZapLogger(opts)
	return Logger{logger, level}, err
}

func NewNoopLogger() Logger {
	return Logger{logger: zap.NewNop(), level: zap.AtomicLevel{}}
}

// Return usable Zap logger.
func (l Logger) Get() *zap.Logger {
	return l.logger
}

// Change the log level at runtime
func (l Logger) SetLevel(level zapcore.Level) {
	l.level.SetLevel(level)
}

// Change the log level at runtime
func (l Logger) SetLevelStr(input string) error {
	level, err := zap.ParseAtomicLevel(input)
	if err != nil {
		return err
	}
	l.level.SetLevel(level.Level())
	return nil
}

// isTTY reports whether out (stderr when nil) is a terminal.
func isTTY(out zapcore.WriteSyncer) bool {
	if out == nil {
		return term.IsTerminal(int(os.Stderr.Fd()))
	}
	f, ok := out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
