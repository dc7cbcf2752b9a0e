package main

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

const (
	headerAcceptEncoding  = "Accept-Encoding"
	headerContentEncoding = "Content-Encoding"
	headerVary            = "Vary"
)

// in order of preference
var encodings = []string{"br", "zstd", "gzip"}

// withCompression encodes compressible responses with the best encoding the
// client accepts.
func withCompression(log *zap.Logger) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			encoding := negotiateEncoding(r.Header.Get(headerAcceptEncoding))
			if encoding == "" || r.Method == http.MethodHead {
				h.ServeHTTP(w, r)
				return
			}

			cw := &compressWriter{ResponseWriter: w, encoding: encoding}
			h.ServeHTTP(cw, r)
			if err := cw.Close(); err != nil {
				log.Debug("closing encoder failed", zap.String("encoding", encoding), zap.Error(err))
			}
		})
	}
}

func negotiateEncoding(header string) string {
	accepted := map[string]bool{}
	for _, part := range strings.Split(header, ",") {
		fields := strings.Split(part, ";")
		name := strings.ToLower(strings.TrimSpace(fields[0]))
		refused := false
		for _, param := range fields[1:] {
			key, value, found := strings.Cut(param, "=")
			if !found || strings.TrimSpace(key) != "q" {
				continue
			}
			if q, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil && q == 0 {
				refused = true
			}
		}
		if name != "" && !refused {
			accepted[name] = true
		}
	}

	for _, encoding := range encodings {
		if accepted[encoding] {
			return encoding
		}
	}
	return ""
}

func compressible(contentType string) bool {
	mime := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	switch {
	case strings.HasPrefix(mime, "text/"):
		return true
	case mime == "application/javascript",
		mime == "application/json",
		mime == "application/xml",
		mime == "image/svg+xml":
		return true
	}
	return false
}

type compressWriter struct {
	http.ResponseWriter
	encoding    string
	encoder     io.WriteCloser
	wroteHeader bool
}

func (cw *compressWriter) WriteHeader(status int) {
	if cw.wroteHeader {
		return
	}
	cw.wroteHeader = true

	header := cw.Header()
	if header.Get(headerContentEncoding) == "" &&
		status != http.StatusNoContent &&
		status != http.StatusNotModified &&
		header.Get(headerContentLength) != "0" &&
		compressible(header.Get(headerContentType)) {
		if encoder, err := newEncoder(cw.encoding, cw.ResponseWriter); err == nil {
			cw.encoder = encoder
			header.Del(headerContentLength)
			header.Set(headerContentEncoding, cw.encoding)
			header.Add(headerVary, headerAcceptEncoding)
		}
	}

	cw.ResponseWriter.WriteHeader(status)
}

func (cw *compressWriter) Write(p []byte) (int, error) {
	if !cw.wroteHeader {
		cw.WriteHeader(http.StatusOK)
	}
	if cw.encoder != nil {
		return cw.encoder.Write(p)
	}
	return cw.ResponseWriter.Write(p)
}

func (cw *compressWriter) Close() error {
	if cw.encoder == nil {
		return nil
	}
	return cw.encoder.Close()
}

func newEncoder(encoding string, w io.Writer) (io.WriteCloser, error) {
	switch encoding {
	case "br":
		return brotli.NewWriterLevel(w, brotli.DefaultCompression), nil
	case "zstd":
		return zstd.NewWriter(w)
	default:
		return gzip.NewWriter(w), nil
	}
}
