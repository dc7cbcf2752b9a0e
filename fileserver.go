package main

import (
	"net/http"
	"path/filepath"

	"github.com/input-output-hk/docroot/pkg/blobcache"
	"github.com/input-output-hk/docroot/pkg/config"
	"github.com/input-output-hk/docroot/pkg/docroot"
	"github.com/input-output-hk/docroot/pkg/fcgi"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	ErrPathDenied     = errors.New("path escapes document root")
	ErrNotFound       = errors.New("file not found")
	ErrGatewayFailure = errors.New("gateway call failed")
)

// FileServer serves files below a per-host document root and hands scripts
// with the configured suffix to the FastCGI pool.
type FileServer struct {
	config   *config.Config
	resolver docroot.Resolver
	cache    *blobcache.Cache
	gateway  fcgi.Caller
	software string
}

func NewFileServer(c *config.Config, cache *blobcache.Cache, gateway fcgi.Caller) *FileServer {
	return &FileServer{
		config:   c,
		resolver: docroot.Resolver{RootTemplate: c.Root, DefaultPage: c.DefaultPage},
		cache:    cache,
		gateway:  gateway,
		software: serverSoftware(),
	}
}

func (fs *FileServer) Handle(req Request) {
	res := fs.resolver.Resolve(req.Host(), req.Port(), req.Path())

	if !res.Allowed {
		metricDenied.Add(1)
		req.Log(zapcore.InfoLevel, ErrPathDenied.Error(), zap.String("root", res.Root), zap.String("file", res.Path))
		fs.errorPage(req, res.Root, http.StatusForbidden, fs.config.Page403)
		return
	}

	if fs.delegates(res.Path) {
		fs.delegate(req, res)
		return
	}

	content, ok := fs.cache.Get(res.Path)
	if !ok {
		metricNotFound.Add(1)
		req.Log(zapcore.DebugLevel, ErrNotFound.Error(), zap.String("file", res.Path))
		fs.errorPage(req, res.Root, http.StatusNotFound, fs.config.Page404)
		return
	}

	metricStatic.Add(1)
	req.AddHeader(headerContentType, pathToMime(res.Path))
	req.Reply(http.StatusOK, content)
}

// errorPage replies with the page the template points to, or with an empty
// 500 if that page cannot be loaded.
func (fs *FileServer) errorPage(req Request, root string, status int, template string) {
	page := docroot.ExpandPage(template, req.Host(), req.Port(), root)

	content, ok := fs.cache.Get(page)
	if !ok {
		metricPageMissing.Add(1)
		req.Log(zapcore.ErrorLevel, "error page missing", zap.Int("status", status), zap.String("page", page))
		req.Reply(http.StatusInternalServerError, nil)
		return
	}

	req.AddHeader(headerContentType, pathToMime(page))
	req.Reply(status, content)
}

func (fs *FileServer) delegates(path string) bool {
	return fs.config.FPM.Enabled && filepath.Ext(path) == fs.config.FPM.Suffix
}

// delegate runs the script through the gateway. The script itself is never
// read or cached here.
func (fs *FileServer) delegate(req Request, res docroot.Resolution) {
	fpm := fs.config.FPM
	body := req.Body()
	params := fcgi.BuildParams(fs.gatewayRequest(req, res), fcgi.Pool{
		MaxChildren:     fpm.MaxChildren,
		StartServers:    fpm.StartServers,
		MinSpareServers: fpm.MinSpareServers,
		MaxSpareServers: fpm.MaxSpareServers,
	}, len(body))

	var (
		out []byte
		ok  bool
	)
	measure(metricGatewayTime, func() {
		out, ok = fs.gateway.Call(req.Context(), fpm.Address, fpm.Port, body, params)
	})

	if !ok {
		metricGatewayFail.Add(1)
		req.Log(zapcore.ErrorLevel, ErrGatewayFailure.Error(), zap.String("script", res.Path))
		req.Reply(http.StatusInternalServerError, nil)
		return
	}

	metricGatewayOk.Add(1)
	parsed := fcgi.ParseResponse(out)
	for _, header := range parsed.Headers {
		req.AddHeader(header.Name, header.Value)
	}
	req.Reply(http.StatusOK, parsed.Body)
}

func (fs *FileServer) gatewayRequest(req Request, res docroot.Resolution) *fcgi.Request {
	header := map[string]string{}
	for _, name := range fcgi.ForwardedHeaders {
		if value, ok := req.Header(name); ok {
			header[name] = value
		}
	}
	contentType, _ := req.Header(headerContentType)

	return &fcgi.Request{
		ScriptFilename: res.Path,
		DocumentRoot:   res.Root,
		Path:           req.Path(),
		Query:          req.Query(),
		Method:         req.Method(),
		ContentType:    contentType,
		Protocol:       req.Protocol(),
		Secure:         req.Secure(),
		ServerSoftware: fs.software,
		ServerName:     req.Host(),
		ServerAddr:     req.LocalAddr(),
		ServerPort:     req.LocalPort(),
		RemoteAddr:     req.PeerAddr(),
		RemotePort:     req.PeerPort(),
		Header:         header,
	}
}

var _ Handler = (*FileServer)(nil)
