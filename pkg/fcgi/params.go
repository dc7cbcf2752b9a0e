package fcgi

import (
	"strconv"
	"strings"
)

// ForwardedHeaders lists the request headers passed on to the gateway, in the
// order they are emitted. Absent headers are skipped.
var ForwardedHeaders = []string{
	"Connection",
	"Accept",
	"Accept-Encoding",
	"Accept-Language",
	"User-Agent",
	"Referer",
	"Cookie",
	"Host",
}

type Param struct {
	Name  string
	Value string
}

// Params is an ordered name/value record sent as FCGI_PARAMS.
type Params []Param

// Set replaces the value of an existing name or appends a new pair.
func (p *Params) Set(name, value string) {
	for i := range *p {
		if (*p)[i].Name == name {
			(*p)[i].Value = value
			return
		}
	}
	*p = append(*p, Param{Name: name, Value: value})
}

func (p Params) Get(name string) (string, bool) {
	for _, param := range p {
		if param.Name == name {
			return param.Value, true
		}
	}
	return "", false
}

// Map is a copy of the record keyed by name.
func (p Params) Map() map[string]string {
	out := make(map[string]string, len(p))
	for _, param := range p {
		out[param.Name] = param.Value
	}
	return out
}

// Request carries what the gateway needs to know about one inbound request.
type Request struct {
	ScriptFilename string
	DocumentRoot   string
	Path           string
	Query          string
	Method         Method
	ContentType    string
	Protocol       string
	Secure         bool

	ServerSoftware string
	ServerName     string
	ServerAddr     string
	ServerPort     uint16
	RemoteAddr     string
	RemotePort     uint16

	// Header holds the values of ForwardedHeaders that were present.
	Header map[string]string
}

// Pool holds the process pool sizing hints forwarded as PM_* params.
type Pool struct {
	MaxChildren     int
	StartServers    int
	MinSpareServers int
	MaxSpareServers int
}

// BuildParams constructs the parameter record for req. The same input always
// yields the same record in the same order.
func BuildParams(req *Request, pool Pool, contentLength int) Params {
	requestURI := req.Path
	if req.Query != "" {
		requestURI += "?" + req.Query
	}

	scheme := "http"
	if req.Secure {
		scheme = "https"
	}

	params := Params{
		{"SCRIPT_FILENAME", req.ScriptFilename},
		{"SCRIPT_NAME", req.Path},
		{"DOCUMENT_URI", req.Path},
		{"REQUEST_URI", requestURI},
		{"QUERY_STRING", req.Query},
		{"REQUEST_METHOD", req.Method.String()},
		{"DOCUMENT_ROOT", req.DocumentRoot},
		{"CONTENT_TYPE", req.ContentType},
		{"CONTENT_LENGTH", strconv.Itoa(contentLength)},
		{"GATEWAY_INTERFACE", "CGI/1.1"},
		{"SERVER_SOFTWARE", req.ServerSoftware},
		{"SERVER_PROTOCOL", req.Protocol},
		{"SERVER_NAME", req.ServerName},
		{"SERVER_ADDR", req.ServerAddr},
		{"SERVER_PORT", strconv.FormatUint(uint64(req.ServerPort), 10)},
		{"REMOTE_ADDR", req.RemoteAddr},
		{"REMOTE_PORT", strconv.FormatUint(uint64(req.RemotePort), 10)},
		{"REQUEST_SCHEME", scheme},
	}

	if req.Secure {
		params = append(params, Param{"HTTPS", "on"})
	}

	params = append(params,
		Param{"REDIRECT_STATUS", "200"},
		Param{"PM_MAX_CHILDREN", strconv.Itoa(pool.MaxChildren)},
		Param{"PM_START_SERVERS", strconv.Itoa(pool.StartServers)},
		Param{"PM_MIN_SPARE_SERVERS", strconv.Itoa(pool.MinSpareServers)},
		Param{"PM_MAX_SPARE_SERVERS", strconv.Itoa(pool.MaxSpareServers)},
	)

	for _, name := range ForwardedHeaders {
		if value, ok := req.Header[name]; ok {
			params = append(params, Param{headerParamName(name), value})
		}
	}

	return params
}

// headerParamName turns "Accept-Encoding" into "HTTP_ACCEPT_ENCODING".
func headerParamName(name string) string {
	return "HTTP_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}
