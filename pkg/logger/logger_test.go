package logger

import (
	"testing"

	"github.com/smartystreets/assertions"
	"go.uber.org/zap/zapcore"
)

func TestSetupLogger(t *testing.T) {
	a := assertions.New(t)

	log, err := SetupLogger("production", "warn")
	a.So(err, assertions.ShouldBeNil)
	a.So(log.Core().Enabled(zapcore.InfoLevel), assertions.ShouldBeFalse)
	a.So(log.Core().Enabled(zapcore.WarnLevel), assertions.ShouldBeTrue)

	log, err = SetupLogger("development", "debug")
	a.So(err, assertions.ShouldBeNil)
	a.So(log.Core().Enabled(zapcore.DebugLevel), assertions.ShouldBeTrue)
}

func TestSetupLoggerInvalidLevel(t *testing.T) {
	a := assertions.New(t)

	log, err := SetupLogger("production", "chatty")
	a.So(log, assertions.ShouldBeNil)
	a.So(err, assertions.ShouldNotBeNil)
	a.So(err.Error(), assertions.ShouldStartWith, "parsing loglevel")
}
