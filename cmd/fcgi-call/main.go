package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/input-output-hk/docroot/pkg/fcgi"
	"github.com/input-output-hk/docroot/pkg/logger"
	"github.com/kr/pretty"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// FcgiCall sends a single request to a FastCGI pool and prints what comes
// back, which is handy to check a pool without going through the server.
type FcgiCall struct {
	log      *zap.Logger
	Script   string        `arg:"positional,required" help:"absolute path of the script as seen by the pool"`
	Address  string        `arg:"--address,env:FPM_ADDRESS" help:"address of the pool"`
	Port     uint16        `arg:"--port,env:FPM_PORT" help:"port of the pool"`
	Method   string        `arg:"--method" help:"request method"`
	Query    string        `arg:"--query" help:"query string without the leading '?'"`
	Body     string        `arg:"--body" help:"request body"`
	Root     string        `arg:"--root" help:"document root, defaults to the script's directory"`
	Host     string        `arg:"--host" help:"value for HTTP_HOST and SERVER_NAME"`
	Timeout  time.Duration `arg:"--timeout,env:FPM_TIMEOUT" help:"bound for the whole round-trip"`
	LogLevel string        `arg:"--log-level,env:LOG_LEVEL" help:"One of debug, info, warn, error, dpanic, panic, fatal"`
	LogMode  string        `arg:"--log-mode,env:LOG_MODE" help:"development or production"`
}

func main() {
	fc := NewFcgiCall()
	arg.MustParse(fc)
	fc.setupLogger()

	if err := fc.Run(context.Background()); err != nil {
		fc.log.Error("call failed", zap.Error(err))
		os.Exit(1)
	}
}

func NewFcgiCall() *FcgiCall {
	devLog, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}

	return &FcgiCall{
		Address:  "127.0.0.1",
		Port:     9000,
		Method:   "GET",
		Host:     "localhost",
		Timeout:  30 * time.Second,
		LogLevel: "info",
		LogMode:  "development",
		log:      devLog,
	}
}

func (fc *FcgiCall) setupLogger() {
	if log, err := logger.SetupLogger(fc.LogMode, fc.LogLevel); err != nil {
		panic(err)
	} else {
		fc.log = log
	}
}

func (fc *FcgiCall) Run(ctx context.Context) error {
	method, ok := fcgi.ParseMethod(fc.Method)
	if !ok {
		return errors.Errorf("unknown method %q", fc.Method)
	}

	root := fc.Root
	if root == "" {
		root = filepath.Dir(fc.Script)
	}

	body := []byte(fc.Body)
	params := fcgi.BuildParams(&fcgi.Request{
		ScriptFilename: fc.Script,
		DocumentRoot:   root,
		Path:           "/" + filepath.Base(fc.Script),
		Query:          fc.Query,
		Method:         method,
		Protocol:       "HTTP/1.1",
		ServerSoftware: "fcgi-call",
		ServerName:     fc.Host,
		ServerAddr:     "127.0.0.1",
		RemoteAddr:     "127.0.0.1",
		Header:         map[string]string{"Host": fc.Host},
	}, fcgi.Pool{}, len(body))

	fc.log.Debug("calling", zap.String("script", fc.Script), zap.String("address", fc.Address), zap.Uint16("port", fc.Port))

	out, err := fcgi.NewClient(fc.Timeout, fc.log).Do(ctx, fc.Address, fc.Port, body, params)
	if err != nil {
		return err
	}

	res := fcgi.ParseResponse(out)
	pretty.Println(res.Headers)
	_, err = os.Stdout.Write(res.Body)
	return err
}
