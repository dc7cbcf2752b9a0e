package main

import (
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/input-output-hk/docroot/pkg/docroot"
	"github.com/input-output-hk/docroot/pkg/fcgi"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Request bodies beyond this are refused before any handler runs.
const maxBodySize = 32 << 20

// httpRequest adapts net/http to Request.
type httpRequest struct {
	w   http.ResponseWriter
	r   *http.Request
	log *zap.Logger

	hostHeader string
	host       string
	port       uint16
	method     fcgi.Method
	body       []byte
	localAddr  string
	localPort  uint16
	peerAddr   string
	peerPort   uint16

	replied bool
}

// newHTTPRequest validates r and reads its body. On failure the returned
// status should be sent to the client instead of running a Handler.
func newHTTPRequest(w http.ResponseWriter, r *http.Request, log *zap.Logger) (*httpRequest, int, error) {
	method, ok := fcgi.ParseMethod(r.Method)
	if !ok {
		return nil, http.StatusMethodNotAllowed, errors.Errorf("method %q is not supported", r.Method)
	}

	req := &httpRequest{w: w, r: r, method: method}
	req.localAddr, req.localPort = localAddr(r)
	req.peerAddr, req.peerPort = splitHostPort(r.RemoteAddr)
	req.hostHeader = r.Host
	if req.hostHeader == "" {
		req.hostHeader = r.URL.Host
	}
	req.host, req.port = hostPort(req.hostHeader)
	if req.port == 0 {
		req.port = req.localPort
	}
	if req.port == 0 {
		req.port = 80
		if req.Secure() {
			req.port = 443
		}
	}

	if !docroot.ValidHost(req.host) {
		return nil, http.StatusBadRequest, errors.Errorf("invalid host %q", r.Host)
	}

	if r.Body != nil {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
		if err != nil {
			return nil, http.StatusBadRequest, errors.WithMessage(err, "while reading request body")
		}
		req.body = body
	}

	req.log = log.With(
		zap.String("host", req.host),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
	)

	return req, 0, nil
}

func (req *httpRequest) Context() context.Context { return req.r.Context() }
func (req *httpRequest) Host() string             { return req.host }
func (req *httpRequest) Port() uint16             { return req.port }
func (req *httpRequest) Path() string             { return req.r.URL.Path }
func (req *httpRequest) Query() string            { return req.r.URL.RawQuery }
func (req *httpRequest) Method() fcgi.Method      { return req.method }
func (req *httpRequest) Body() []byte             { return req.body }
func (req *httpRequest) PeerAddr() string         { return req.peerAddr }
func (req *httpRequest) PeerPort() uint16         { return req.peerPort }
func (req *httpRequest) LocalAddr() string        { return req.localAddr }
func (req *httpRequest) LocalPort() uint16        { return req.localPort }
func (req *httpRequest) Protocol() string         { return req.r.Proto }

// Secure is true for TLS connections and for requests a trusted proxy marked
// as https.
func (req *httpRequest) Secure() bool {
	return req.r.TLS != nil || req.r.URL.Scheme == "https"
}

func (req *httpRequest) Header(name string) (string, bool) {
	if name == "Host" {
		return req.hostHeader, req.hostHeader != ""
	}
	values, found := req.r.Header[http.CanonicalHeaderKey(name)]
	if !found || len(values) == 0 {
		return "", false
	}
	return strings.Join(values, ", "), true
}

func (req *httpRequest) AddHeader(name, value string) {
	if req.replied {
		req.log.Warn("header added after reply", zap.String("header", name))
		return
	}
	req.w.Header().Add(name, value)
}

func (req *httpRequest) Reply(status int, body []byte) {
	if req.replied {
		req.log.Error("duplicate reply dropped", zap.Int("status", status))
		return
	}
	req.replied = true

	req.w.Header().Set(headerContentLength, strconv.Itoa(len(body)))
	req.w.WriteHeader(status)
	if req.method == fcgi.MethodHead {
		return
	}
	if _, err := req.w.Write(body); err != nil {
		req.log.Debug("writing response failed", zap.Error(err))
	}
}

func (req *httpRequest) Log(level zapcore.Level, msg string, fields ...zap.Field) {
	if ce := req.log.Check(level, msg); ce != nil {
		ce.Write(fields...)
	}
}

// hostPort splits a Host header. A missing or malformed port yields 0.
func hostPort(hostHeader string) (string, uint16) {
	host, port := splitHostPort(hostHeader)
	return strings.ToLower(host), port
}

// splitHostPort also accepts a bare address, as left in RemoteAddr by
// X-Forwarded-For, and reports port 0 for it.
func splitHostPort(addr string) (string, uint16) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return strings.TrimSuffix(strings.TrimPrefix(addr, "["), "]"), 0
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return host, 0
	}
	return host, uint16(port)
}

func localAddr(r *http.Request) (string, uint16) {
	if addr, ok := r.Context().Value(http.LocalAddrContextKey).(net.Addr); ok {
		return splitHostPort(addr.String())
	}
	return "", 0
}
