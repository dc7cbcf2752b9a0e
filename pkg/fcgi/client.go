// Package fcgi talks to a FastCGI responder such as PHP-FPM.
//
// Only what one request/response round-trip needs is implemented: a single
// request per connection, id 1, no multiplexing and no management records.
package fcgi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Record = header(8) + content[0..65535] + padding[0..255]
// Header = version(1) + type(1) + requestId(2) + contentLength(2) + paddingLength(1) + reserved(1)
const (
	headerSize = 8
	maxContent = 65535
	version1   = 1
	requestID  = 1
	roleResp   = 1

	// DefaultMaxOutput bounds the STDOUT and STDERR bytes buffered per call.
	DefaultMaxOutput = 64 << 20
)

const (
	typeBeginRequest = 1
	typeEndRequest   = 3
	typeParams       = 4
	typeStdin        = 5
	typeStdout       = 6
	typeStderr       = 7
)

// Caller performs one gateway round-trip. A false result means the call
// failed and no usable output exists.
type Caller interface {
	Call(ctx context.Context, address string, port uint16, body []byte, params Params) ([]byte, bool)
}

var ErrOutputTooLarge = errors.New("responder output exceeds limit")

type Client struct {
	timeout   time.Duration
	maxOutput int64
	log       *zap.Logger
}

type Option func(*Client)

// WithMaxOutput replaces DefaultMaxOutput. Zero or negative values keep the
// default.
func WithMaxOutput(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxOutput = n
		}
	}
}

// NewClient returns a Client whose calls are bounded by timeout on top of the
// caller's context. A zero timeout relies on the context alone.
func NewClient(timeout time.Duration, log *zap.Logger, options ...Option) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{timeout: timeout, maxOutput: DefaultMaxOutput, log: log}
	for _, option := range options {
		option(c)
	}
	return c
}

// Call implements Caller. Failures are logged and reported as false.
func (c *Client) Call(ctx context.Context, address string, port uint16, body []byte, params Params) ([]byte, bool) {
	out, err := c.Do(ctx, address, port, body, params)
	if err != nil {
		script, _ := params.Get("SCRIPT_FILENAME")
		c.log.Error("gateway call failed",
			zap.Error(err),
			zap.String("address", address),
			zap.Uint16("port", port),
			zap.String("script", script),
		)
		return nil, false
	}
	return out, true
}

// Do sends params and body to the responder at address:port and returns the
// collected FCGI_STDOUT stream.
func (c *Client) Do(ctx context.Context, address string, port uint16, body []byte, params Params) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	target := net.JoinHostPort(address, strconv.FormatUint(uint64(port), 10))
	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", target)
	if err != nil {
		return nil, errors.WithMessagef(err, "while dialing %s", target)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, errors.WithMessage(err, "while setting deadline")
		}
	}

	// unblock reads and writes once the caller gives up
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.SetDeadline(time.Now())
		case <-done:
		}
	}()

	if err := writeRequest(conn, body, params); err != nil {
		return nil, errors.WithMessagef(err, "while sending request to %s", target)
	}

	out, stderr, err := readResponse(conn, c.maxOutput)
	if len(stderr) > 0 {
		c.log.Warn("gateway stderr", zap.String("address", target), zap.ByteString("stderr", stderr))
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.WithMessagef(ctxErr, "while reading response from %s", target)
		}
		return nil, errors.WithMessagef(err, "while reading response from %s", target)
	}

	return out, nil
}

func writeRequest(conn io.Writer, body []byte, params Params) error {
	w := bufio.NewWriter(conn)

	begin := [8]byte{0, roleResp, 0}
	if err := writeRecord(w, typeBeginRequest, begin[:]); err != nil {
		return errors.WithMessage(err, "begin request")
	}
	if err := writeStream(w, typeParams, encodeParams(params)); err != nil {
		return errors.WithMessage(err, "params")
	}
	if err := writeStream(w, typeStdin, body); err != nil {
		return errors.WithMessage(err, "stdin")
	}

	return w.Flush()
}

// writeStream splits content into records and terminates the stream with an
// empty one.
func writeStream(w io.Writer, recordType byte, content []byte) error {
	for len(content) > 0 {
		n := len(content)
		if n > maxContent {
			n = maxContent
		}
		if err := writeRecord(w, recordType, content[:n]); err != nil {
			return err
		}
		content = content[n:]
	}
	return writeRecord(w, recordType, nil)
}

func writeRecord(w io.Writer, recordType byte, content []byte) error {
	padding := -len(content) & 7

	header := [headerSize]byte{version1, recordType}
	binary.BigEndian.PutUint16(header[2:4], requestID)
	binary.BigEndian.PutUint16(header[4:6], uint16(len(content)))
	header[6] = byte(padding)

	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	if _, err := w.Write(content); err != nil {
		return err
	}
	_, err := w.Write(make([]byte, padding))
	return err
}

func encodeParams(params Params) []byte {
	buf := &bytes.Buffer{}
	for _, param := range params {
		writeLength(buf, len(param.Name))
		writeLength(buf, len(param.Value))
		buf.WriteString(param.Name)
		buf.WriteString(param.Value)
	}
	return buf.Bytes()
}

// Lengths below 128 take one byte, longer ones four with the high bit set.
func writeLength(buf *bytes.Buffer, n int) {
	if n < 128 {
		buf.WriteByte(byte(n))
		return
	}
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(n)|1<<31)
	buf.Write(b[:])
}

// readResponse collects STDOUT and STDERR until END_REQUEST. It gives up once
// both streams together exceed maxOutput bytes.
func readResponse(conn io.Reader, maxOutput int64) (stdout, stderr []byte, err error) {
	r := bufio.NewReader(conn)
	header := make([]byte, headerSize)
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}

	for {
		if _, err := io.ReadFull(r, header); err != nil {
			return nil, errOut.Bytes(), errors.WithMessage(err, "record header")
		}
		if header[0] != version1 {
			return nil, errOut.Bytes(), errors.Errorf("unsupported record version %d", header[0])
		}

		recordType := header[1]
		id := binary.BigEndian.Uint16(header[2:4])
		contentLength := int(binary.BigEndian.Uint16(header[4:6]))
		paddingLength := int(header[6])

		content := make([]byte, contentLength+paddingLength)
		if _, err := io.ReadFull(r, content); err != nil {
			return nil, errOut.Bytes(), errors.WithMessage(err, "record content")
		}
		content = content[:contentLength]

		if id != requestID {
			continue
		}

		if recordType == typeStdout || recordType == typeStderr {
			if int64(out.Len()+errOut.Len()+contentLength) > maxOutput {
				return nil, errOut.Bytes(), errors.WithMessagef(ErrOutputTooLarge, "more than %d bytes", maxOutput)
			}
		}

		switch recordType {
		case typeStdout:
			out.Write(content)
		case typeStderr:
			errOut.Write(content)
		case typeEndRequest:
			if len(content) < 8 {
				return nil, errOut.Bytes(), errors.Errorf("short end request record of %d bytes", len(content))
			}
			// A nonzero application status still carries a complete response.
			if protocolStatus := content[4]; protocolStatus != 0 {
				return nil, errOut.Bytes(), errors.Errorf("request rejected with protocol status %d", protocolStatus)
			}
			return out.Bytes(), errOut.Bytes(), nil
		}
	}
}
