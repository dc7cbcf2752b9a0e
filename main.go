package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/input-output-hk/docroot/pkg/blobcache"
	"github.com/input-output-hk/docroot/pkg/config"
	"github.com/input-output-hk/docroot/pkg/fcgi"
	"github.com/input-output-hk/docroot/pkg/logger"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

func main() {
	cli := &config.CLI{}
	arg.MustParse(cli)
	cli.File = os.ExpandEnv(cli.File)

	server := NewServer(loadConfig(cli))

	if err := server.config.Prepare(); err != nil {
		log.Fatal(err)
	}

	server.setupLogger()
	server.setupHandler()

	go func() {
		t := time.Tick(5 * time.Second)
		for range t {
			if err := server.log.Sync(); err != nil {
				if err.Error() != "sync /dev/stderr: invalid argument" {
					log.Printf("failed to sync zap: %s", err)
				}
			}
		}
	}()

	// nolint
	defer server.log.Sync()

	srv := &http.Server{
		Handler:      server.router(),
		Addr:         server.config.Listen,
		ReadTimeout:  time.Minute,
		WriteTimeout: server.requestTimeout(),
	}

	sc := make(chan os.Signal, 1)
	signal.Notify(
		sc,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)

	go func() {
		server.log.Info("Server starting",
			zap.String("listen", server.config.Listen),
			zap.String("version", server.Version()),
			zap.String("root", server.config.Root),
			zap.Bool("fpm", server.config.FPM.Enabled),
		)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			// Only log an error if it's not due to shutdown or close
			server.log.Fatal("error bringing up listener", zap.Error(err))
		}
	}()

	<-sc
	signal.Stop(sc)

	ctxShutDown, cancel := context.WithTimeout(context.Background(), server.requestTimeout())
	defer cancel()

	if err := srv.Shutdown(ctxShutDown); err != nil {
		server.log.Fatal("server shutdown failed", zap.Error(err))
	}

	server.log.Info("server shutdown gracefully")
}

// loadConfig reads the configuration file. A missing file is not an error:
// every key has a default.
func loadConfig(cli *config.CLI) *config.Config {
	c, err := config.LoadFile(cli.File)
	if err != nil {
		if !os.IsNotExist(errors.Cause(err)) {
			log.Fatal(err)
		}
		log.Printf("%s, using defaults", err)
		c = config.Default()
	}

	c.Override(cli)
	return c
}

type Server struct {
	config *config.Config
	log    *zap.Logger

	cache   *blobcache.Cache
	handler Handler
}

func NewServer(c *config.Config) *Server {
	devLog, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}

	return &Server{
		config: c,
		log:    devLog,
	}
}

var (
	buildVersion = "1.0.0"
	buildCommit  = "dirty"
)

func (s *Server) Version() string {
	return buildVersion + " (" + buildCommit + ")"
}

// serverSoftware is announced to the gateway as SERVER_SOFTWARE.
func serverSoftware() string {
	return "docroot/" + buildVersion
}

func (s *Server) setupLogger() {
	if log, err := logger.SetupLogger(s.config.LogMode, s.config.LogLevel); err != nil {
		panic(err)
	} else {
		s.log = log
	}
}

func (s *Server) setupHandler() {
	s.cache = blobcache.New(s.config.SurvivalDuration(), blobcache.WithLogger(s.log.Named("cache")))
	gateway := fcgi.NewClient(s.config.FPM.TimeoutDuration(), s.log.Named("fcgi"),
		fcgi.WithMaxOutput(s.config.FPM.MaxOutput))
	s.handler = NewFileServer(s.config, s.cache, gateway)
}

// requestTimeout bounds a single response, gateway round-trip included.
func (s *Server) requestTimeout() time.Duration {
	return s.config.FPM.TimeoutDuration() + 30*time.Second
}
