package logger

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// SetupLogger builds the process logger. logMode is either "development"
// (console output, debug stacktraces) or "production" (JSON).
func SetupLogger(logMode, logLevel string) (*zap.Logger, error) {
	lvl := zap.NewAtomicLevel()
	if err := lvl.UnmarshalText([]byte(logLevel)); err != nil {
		return nil, errors.WithMessage(err, "parsing loglevel")
	}
	development := logMode == "development"
	encoding := "json"
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if development {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	}

	l := zap.Config{
		Level:             lvl,
		Development:       development,
		DisableCaller:     !development,
		DisableStacktrace: false,
		Sampling:          &zap.SamplingConfig{Initial: 100, Thereafter: 10},
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       []string{"stderr"},
		ErrorOutputPaths:  []string{"stderr"},
	}

	if development {
		l.Sampling = nil
	}

	if log, err := l.Build(); err != nil {
		return nil, errors.WithMessage(err, "building logger")
	} else {
		return log, nil
	}
}
