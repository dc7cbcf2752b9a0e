package fcgi

import "fmt"

// Method is the closed set of request methods the server accepts.
type Method uint8

const (
	MethodGet Method = iota + 1
	MethodHead
	MethodPost
	MethodPut
	MethodDelete
	MethodConnect
	MethodOptions
	MethodTrace
	MethodPatch
)

var methodNames = map[Method]string{
	MethodGet:     "GET",
	MethodHead:    "HEAD",
	MethodPost:    "POST",
	MethodPut:     "PUT",
	MethodDelete:  "DELETE",
	MethodConnect: "CONNECT",
	MethodOptions: "OPTIONS",
	MethodTrace:   "TRACE",
	MethodPatch:   "PATCH",
}

var methodValues = func() map[string]Method {
	values := make(map[string]Method, len(methodNames))
	for method, name := range methodNames {
		values[name] = method
	}
	return values
}()

// ParseMethod maps a request line method onto Method. Lookup is exact.
func ParseMethod(name string) (Method, bool) {
	method, ok := methodValues[name]
	return method, ok
}

// String returns the textual method name. Values outside the enumeration
// cannot come from ParseMethod, so meeting one is a programming error.
func (m Method) String() string {
	if name, ok := methodNames[m]; ok {
		return name
	}
	panic(fmt.Sprintf("fcgi: unmapped method %d", uint8(m)))
}
