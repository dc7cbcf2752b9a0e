package fcgi

import (
	"bytes"
	"strings"
)

var headerSeparator = []byte("\r\n\r\n")

type Header struct {
	Name  string
	Value string
}

// Response is the gateway output split into headers and body.
type Response struct {
	// Headers in order of first appearance; a repeated name keeps its
	// position and takes the last value.
	Headers []Header
	Body    []byte
}

func (r *Response) Get(name string) (string, bool) {
	for _, header := range r.Headers {
		if header.Name == name {
			return header.Value, true
		}
	}
	return "", false
}

// ParseResponse splits raw gateway output at the first blank line. Without
// one the whole input is treated as headers and the body is empty.
func ParseResponse(raw []byte) *Response {
	head, body := raw, []byte{}
	if i := bytes.Index(raw, headerSeparator); i >= 0 {
		head, body = raw[:i], raw[i+len(headerSeparator):]
	}

	res := &Response{Body: body}
	index := map[string]int{}

	for _, line := range strings.Split(string(head), "\r\n") {
		if line == "" {
			continue
		}
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			continue
		}
		name := strings.TrimSpace(line[:colon])
		value := strings.TrimSpace(line[colon+1:])

		if i, found := index[name]; found {
			res.Headers[i].Value = value
			continue
		}
		index[name] = len(res.Headers)
		res.Headers = append(res.Headers, Header{Name: name, Value: value})
	}

	return res
}
