package main

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// LogRecord wraps a http.ResponseWriter and records status and size
type LogRecord struct {
	http.ResponseWriter
	status  int
	written int64
}

func (r *LogRecord) Write(p []byte) (int, error) {
	n, err := r.ResponseWriter.Write(p)
	r.written += int64(n)
	return n, err
}

// WriteHeader overrides ResponseWriter.WriteHeader to keep track of the response code
func (r *LogRecord) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withHTTPLogging logs every response. Successful scrapes of metricsPath are
// skipped.
func withHTTPLogging(log *zap.Logger, metricsPath string) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			record := &LogRecord{
				ResponseWriter: w,
				status:         http.StatusOK,
			}
			h.ServeHTTP(record, r)

			if metricsPath != "" && r.URL.Path == metricsPath && record.status == http.StatusOK {
				return
			}

			level := log.Debug
			switch {
			case record.status >= 500:
				level = log.Error
			case record.status >= 400:
				level = log.Info
			}

			level("RES",
				zap.String("ident", r.Host),
				zap.String("method", r.Method),
				zap.String("url", r.URL.String()),
				zap.String("peer", r.RemoteAddr),
				zap.Int("status_code", record.status),
				zap.Int64("bytes", record.written),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
