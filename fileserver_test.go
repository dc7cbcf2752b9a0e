package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/input-output-hk/docroot/pkg/blobcache"
	"github.com/input-output-hk/docroot/pkg/config"
	"github.com/input-output-hk/docroot/pkg/fcgi"
	"github.com/smartystreets/assertions"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type fakeRequest struct {
	host   string
	port   uint16
	path   string
	query  string
	method fcgi.Method
	header map[string]string
	body   []byte
	secure bool

	replies int
	status  int
	headers []fcgi.Header
	reply   []byte
	logs    []string
}

func newFakeRequest(path string) *fakeRequest {
	return &fakeRequest{
		host:   "example.com",
		port:   80,
		path:   path,
		method: fcgi.MethodGet,
		header: map[string]string{"Host": "example.com", "Accept": "*/*"},
	}
}

func (r *fakeRequest) Context() context.Context { return context.Background() }
func (r *fakeRequest) Host() string             { return r.host }
func (r *fakeRequest) Port() uint16             { return r.port }
func (r *fakeRequest) Path() string             { return r.path }
func (r *fakeRequest) Query() string            { return r.query }
func (r *fakeRequest) Method() fcgi.Method      { return r.method }
func (r *fakeRequest) Body() []byte             { return r.body }
func (r *fakeRequest) PeerAddr() string         { return "192.0.2.10" }
func (r *fakeRequest) PeerPort() uint16         { return 40000 }
func (r *fakeRequest) LocalAddr() string        { return "192.0.2.1" }
func (r *fakeRequest) LocalPort() uint16        { return r.port }
func (r *fakeRequest) Secure() bool             { return r.secure }
func (r *fakeRequest) Protocol() string         { return "HTTP/1.1" }

func (r *fakeRequest) Header(name string) (string, bool) {
	value, ok := r.header[name]
	return value, ok
}

func (r *fakeRequest) AddHeader(name, value string) {
	r.headers = append(r.headers, fcgi.Header{Name: name, Value: value})
}

func (r *fakeRequest) Reply(status int, body []byte) {
	r.replies++
	r.status = status
	r.reply = body
}

func (r *fakeRequest) Log(level zapcore.Level, msg string, fields ...zap.Field) {
	r.logs = append(r.logs, msg)
}

func (r *fakeRequest) headerValue(name string) string {
	for _, header := range r.headers {
		if header.Name == name {
			return header.Value
		}
	}
	return ""
}

type fakeCall struct {
	address string
	port    uint16
	body    []byte
	params  fcgi.Params
}

type fakeCaller struct {
	calls []fakeCall
	out   []byte
	ok    bool
}

func (c *fakeCaller) Call(ctx context.Context, address string, port uint16, body []byte, params fcgi.Params) ([]byte, bool) {
	c.calls = append(c.calls, fakeCall{address: address, port: port, body: body, params: params})
	return c.out, c.ok
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}
	}
}

func testConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"example.com/index.html":      "<h1>home</h1>",
		"example.com/style.css":       "body {}",
		"example.com/docs/index.html": "<h1>docs</h1>",
		"example.com/index.php":       "<?php echo 'source';",
		"example.com/404.html":        "not here",
		"example.com/403.html":        "forbidden",
		"bare.org/index.html":         "bare",
		"secret.txt":                  "secret",
	})

	c := config.Default()
	c.Root = filepath.Join(dir, "$hostname$")
	c.Page404 = "$root$/404.html"
	c.Page403 = "$root$/403.html"
	c.FPM.Enabled = true
	c.FPM.Address = "10.0.0.9"
	c.FPM.Port = 9001
	if err := c.Prepare(); err != nil {
		t.Fatal(err)
	}
	return c, dir
}

func testFileServer(c *config.Config, caller fcgi.Caller) *FileServer {
	return NewFileServer(c, blobcache.New(time.Minute), caller)
}

func TestFileServerStatic(t *testing.T) {
	c, _ := testConfig(t)
	fs := testFileServer(c, &fakeCaller{})

	for path, expected := range map[string]struct {
		mime string
		body string
	}{
		"/":           {"text/html", "<h1>home</h1>"},
		"/index.html": {"text/html", "<h1>home</h1>"},
		"/style.css":  {"text/css", "body {}"},
		"/docs/":      {"text/html", "<h1>docs</h1>"},
	} {
		expected := expected
		t.Run(path, func(tt *testing.T) {
			a := assertions.New(tt)
			req := newFakeRequest(path)
			fs.Handle(req)
			a.So(req.replies, assertions.ShouldEqual, 1)
			a.So(req.status, assertions.ShouldEqual, 200)
			a.So(req.headerValue(headerContentType), assertions.ShouldEqual, expected.mime)
			a.So(string(req.reply), assertions.ShouldEqual, expected.body)
		})
	}
}

func TestFileServerDenied(t *testing.T) {
	a := assertions.New(t)
	c, _ := testConfig(t)
	fs := testFileServer(c, &fakeCaller{})

	req := newFakeRequest("/../secret.txt")
	fs.Handle(req)
	a.So(req.replies, assertions.ShouldEqual, 1)
	a.So(req.status, assertions.ShouldEqual, 403)
	a.So(string(req.reply), assertions.ShouldEqual, "forbidden")
	a.So(req.logs, assertions.ShouldContain, ErrPathDenied.Error())
}

func TestFileServerDeniedWithoutPage(t *testing.T) {
	a := assertions.New(t)
	c, _ := testConfig(t)
	fs := testFileServer(c, &fakeCaller{})

	req := newFakeRequest("/../secret.txt")
	req.host = "bare.org"
	fs.Handle(req)
	a.So(req.replies, assertions.ShouldEqual, 1)
	a.So(req.status, assertions.ShouldEqual, 500)
	a.So(req.reply, assertions.ShouldBeEmpty)
}

func TestFileServerNotFound(t *testing.T) {
	a := assertions.New(t)
	c, _ := testConfig(t)
	fs := testFileServer(c, &fakeCaller{})

	req := newFakeRequest("/missing.html")
	fs.Handle(req)
	a.So(req.replies, assertions.ShouldEqual, 1)
	a.So(req.status, assertions.ShouldEqual, 404)
	a.So(string(req.reply), assertions.ShouldEqual, "not here")

	req = newFakeRequest("/missing.html")
	req.host = "bare.org"
	fs.Handle(req)
	a.So(req.replies, assertions.ShouldEqual, 1)
	a.So(req.status, assertions.ShouldEqual, 500)
	a.So(req.reply, assertions.ShouldBeEmpty)

	// unknown hosts have no root at all
	req = newFakeRequest("/")
	req.host = "unknown.net"
	fs.Handle(req)
	a.So(req.replies, assertions.ShouldEqual, 1)
	a.So(req.status, assertions.ShouldEqual, 500)
}

func TestFileServerGateway(t *testing.T) {
	a := assertions.New(t)
	c, dir := testConfig(t)
	caller := &fakeCaller{
		ok:  true,
		out: []byte("Content-Type: text/html; charset=UTF-8\r\nX-Powered-By: PHP/8.1\r\n\r\n<p>rendered</p>"),
	}
	fs := testFileServer(c, caller)

	req := newFakeRequest("/index.php")
	req.query = "page=2"
	fs.Handle(req)

	a.So(req.replies, assertions.ShouldEqual, 1)
	a.So(req.status, assertions.ShouldEqual, 200)
	a.So(string(req.reply), assertions.ShouldEqual, "<p>rendered</p>")
	a.So(req.headers, assertions.ShouldResemble, []fcgi.Header{
		{Name: "Content-Type", Value: "text/html; charset=UTF-8"},
		{Name: "X-Powered-By", Value: "PHP/8.1"},
	})

	a.So(caller.calls, assertions.ShouldHaveLength, 1)
	call := caller.calls[0]
	a.So(call.address, assertions.ShouldEqual, "10.0.0.9")
	a.So(call.port, assertions.ShouldEqual, uint16(9001))

	params := call.params.Map()
	a.So(params["SCRIPT_FILENAME"], assertions.ShouldEqual, filepath.Join(dir, "example.com", "index.php"))
	a.So(params["DOCUMENT_ROOT"], assertions.ShouldEqual, filepath.Join(dir, "example.com"))
	a.So(params["REQUEST_METHOD"], assertions.ShouldEqual, "GET")
	a.So(params["REQUEST_URI"], assertions.ShouldEqual, "/index.php?page=2")
	a.So(params["SERVER_SOFTWARE"], assertions.ShouldEqual, "docroot/"+buildVersion)
	a.So(params["HTTP_HOST"], assertions.ShouldEqual, "example.com")
	a.So(params["HTTP_ACCEPT"], assertions.ShouldEqual, "*/*")
	a.So(params["PM_MAX_CHILDREN"], assertions.ShouldEqual, "5")
}

func TestFileServerGatewayPost(t *testing.T) {
	a := assertions.New(t)
	c, _ := testConfig(t)
	caller := &fakeCaller{ok: true, out: []byte("Status: 201 Created\r\n\r\n")}
	fs := testFileServer(c, caller)

	req := newFakeRequest("/index.php")
	req.method = fcgi.MethodPost
	req.body = []byte("a=1")
	req.header["Content-Type"] = "application/x-www-form-urlencoded"
	fs.Handle(req)

	a.So(req.status, assertions.ShouldEqual, 200)
	a.So(req.headerValue("Status"), assertions.ShouldEqual, "201 Created")
	a.So(req.reply, assertions.ShouldBeEmpty)

	call := caller.calls[0]
	a.So(string(call.body), assertions.ShouldEqual, "a=1")
	params := call.params.Map()
	a.So(params["REQUEST_METHOD"], assertions.ShouldEqual, "POST")
	a.So(params["CONTENT_LENGTH"], assertions.ShouldEqual, "3")
	a.So(params["CONTENT_TYPE"], assertions.ShouldEqual, "application/x-www-form-urlencoded")
}

func TestFileServerGatewayFailure(t *testing.T) {
	a := assertions.New(t)
	c, _ := testConfig(t)
	caller := &fakeCaller{ok: false}
	fs := testFileServer(c, caller)

	req := newFakeRequest("/index.php")
	fs.Handle(req)
	a.So(req.replies, assertions.ShouldEqual, 1)
	a.So(req.status, assertions.ShouldEqual, 500)
	a.So(req.reply, assertions.ShouldBeEmpty)
	a.So(req.headers, assertions.ShouldBeEmpty)
	a.So(req.logs, assertions.ShouldContain, ErrGatewayFailure.Error())
}

func TestFileServerGatewayConfinement(t *testing.T) {
	a := assertions.New(t)
	c, dir := testConfig(t)
	writeFiles(t, dir, map[string]string{"outside.php": "<?php"})
	caller := &fakeCaller{ok: true}
	fs := testFileServer(c, caller)

	req := newFakeRequest("/../outside.php")
	fs.Handle(req)
	a.So(req.status, assertions.ShouldEqual, 403)
	a.So(caller.calls, assertions.ShouldBeEmpty)
}

func TestFileServerGatewayDisabled(t *testing.T) {
	a := assertions.New(t)
	c, _ := testConfig(t)
	c.FPM.Enabled = false
	caller := &fakeCaller{ok: true}
	fs := testFileServer(c, caller)

	req := newFakeRequest("/index.php")
	fs.Handle(req)
	a.So(req.status, assertions.ShouldEqual, 200)
	a.So(req.headerValue(headerContentType), assertions.ShouldEqual, mimeDefault)
	a.So(caller.calls, assertions.ShouldBeEmpty)
}

func TestFileServerGatewaySuffixIsExact(t *testing.T) {
	a := assertions.New(t)
	c, _ := testConfig(t)
	caller := &fakeCaller{ok: true}
	fs := testFileServer(c, caller)

	req := newFakeRequest("/INDEX.PHP")
	fs.Handle(req)
	a.So(req.status, assertions.ShouldEqual, 404)
	a.So(caller.calls, assertions.ShouldBeEmpty)
}

func TestFileServerPortTemplate(t *testing.T) {
	a := assertions.New(t)
	c, dir := testConfig(t)
	writeFiles(t, dir, map[string]string{"example.com-8080/index.html": "on 8080"})
	c.Root = filepath.Join(dir, "$hostname$-$port$")
	fs := testFileServer(c, &fakeCaller{})

	req := newFakeRequest("/")
	req.port = 8080
	fs.Handle(req)
	a.So(req.status, assertions.ShouldEqual, 200)
	a.So(string(req.reply), assertions.ShouldEqual, "on 8080")
}

func TestFileServerCachesContent(t *testing.T) {
	a := assertions.New(t)
	c, dir := testConfig(t)
	fs := testFileServer(c, &fakeCaller{})

	req := newFakeRequest("/style.css")
	fs.Handle(req)
	a.So(string(req.reply), assertions.ShouldEqual, "body {}")

	writeFiles(t, dir, map[string]string{"example.com/style.css": "changed"})

	req = newFakeRequest("/style.css")
	fs.Handle(req)
	a.So(string(req.reply), assertions.ShouldEqual, "body {}")
}
