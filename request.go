package main

import (
	"context"

	"github.com/input-output-hk/docroot/pkg/fcgi"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Request is everything a Handler may ask of or do with one inbound request.
// A Request must be replied to exactly once.
type Request interface {
	Context() context.Context

	// Host is the virtual host name without port.
	Host() string
	Port() uint16
	// Path is the decoded, uncleaned URL path.
	Path() string
	Query() string
	Method() fcgi.Method
	Header(name string) (string, bool)
	Body() []byte

	PeerAddr() string
	PeerPort() uint16
	LocalAddr() string
	LocalPort() uint16
	Secure() bool
	Protocol() string

	AddHeader(name, value string)
	Reply(status int, body []byte)
	Log(level zapcore.Level, msg string, fields ...zap.Field)
}

type Handler interface {
	Handle(Request)
}
