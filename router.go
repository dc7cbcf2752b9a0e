package main

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/pascaldekloe/metrics"
	"go.uber.org/zap/zapcore"
)

func (s *Server) router() http.Handler {
	// Paths are kept as sent so ".." segments reach the confinement check
	// instead of being redirected away.
	r := mux.NewRouter().SkipClean(true)
	r.Use(withHTTPLogging(s.log, s.config.MetricsPath))
	r.Use(handlers.RecoveryHandler(handlers.PrintRecoveryStack(true)))
	if s.config.Compress {
		r.Use(withCompression(s.log))
	}

	if s.config.MetricsPath != "" {
		r.HandleFunc(s.config.MetricsPath, metrics.ServeHTTP)
	}
	r.PathPrefix("/").HandlerFunc(s.serveFiles)

	if s.config.TrustProxy {
		return handlers.ProxyHeaders(r)
	}
	return r
}

func (s *Server) serveFiles(w http.ResponseWriter, r *http.Request) {
	req, status, err := newHTTPRequest(w, r, s.log)
	if respondError(w, s.log, err, status) {
		return
	}

	s.handler.Handle(req)

	if !req.replied {
		req.Log(zapcore.ErrorLevel, "handler returned without reply")
		req.Reply(http.StatusInternalServerError, nil)
	}
}
