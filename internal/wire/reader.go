package wire

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var (
	ErrMalformedRequest  = errors.New("malformed request")
	ErrMalformedResponse = errors.New("malformed response")
	ErrLineTooLong       = errors.New("line too long")
)

// Methods that never carry a body, whatever Content-Length says.
var bodyless = map[string]bool{
	"GET":     true,
	"HEAD":    true,
	"DELETE":  true,
	"OPTIONS": true,
	"TRACE":   true,
}

// ReadLine reads one line of at most max bytes, terminator included, and
// returns it without its trailing CR/LF. An over-long line is consumed up to
// its newline and reported as ErrLineTooLong. A final line without newline is
// returned as a normal line; io.EOF is only returned when nothing was read.
func ReadLine(r *bufio.Reader, max int) (string, error) {
	var buf []byte
	for {
		chunk, err := r.ReadSlice('\n')
		if len(buf)+len(chunk) > max {
			if errors.Is(err, bufio.ErrBufferFull) {
				err = discardLine(r)
			}
			if err != nil && !errors.Is(err, io.EOF) {
				return "", err
			}
			return "", ErrLineTooLong
		}
		buf = append(buf, chunk...)

		switch {
		case err == nil:
			return strings.TrimRight(string(buf), "\r\n"), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && len(buf) > 0:
			return strings.TrimRight(string(buf), "\r\n"), nil
		case errors.Is(err, io.EOF):
			return "", io.EOF
		default:
			return "", fmt.Errorf("read line: %w", err)
		}
	}
}

func discardLine(r *bufio.Reader) error {
	for {
		_, err := r.ReadSlice('\n')
		if !errors.Is(err, bufio.ErrBufferFull) {
			return err
		}
	}
}

// ReadRequest parses one request envelope. Framing violations wrap
// ErrMalformedRequest; a stream that ends before the declared body length
// surfaces the transport error instead.
func ReadRequest(r *bufio.Reader, lim Limits) (*Request, error) {
	lim = lim.orDefault()

	line, err := ReadLine(r, lim.MaxLine)
	if errors.Is(err, ErrLineTooLong) {
		return nil, fmt.Errorf("%w: request line is too long", ErrMalformedRequest)
	}
	if err != nil {
		return nil, err
	}

	words := strings.Fields(line)
	if len(words) != 3 {
		return nil, fmt.Errorf("%w: malformed request line", ErrMalformedRequest)
	}
	method, target, version := words[0], words[1], words[2]
	if version != Version {
		return nil, fmt.Errorf("%w: unexpected version %q", ErrMalformedRequest, version)
	}

	header, err := readHeader(r, lim, ErrMalformedRequest)
	if err != nil {
		return nil, err
	}

	var body string
	if !bodyless[method] {
		body, err = readBody(r, header, lim, ErrMalformedRequest)
		if err != nil {
			return nil, err
		}
	}

	return &Request{
		Method:  method,
		Target:  target,
		Version: version,
		Header:  header,
		Body:    body,
	}, nil
}

// ReadResponse parses one response envelope.
func ReadResponse(r *bufio.Reader, lim Limits) (*Response, error) {
	lim = lim.orDefault()

	line, err := ReadLine(r, lim.MaxLine)
	if errors.Is(err, ErrLineTooLong) {
		return nil, fmt.Errorf("%w: status line is too long", ErrMalformedResponse)
	}
	if err != nil {
		return nil, err
	}

	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 || parts[0] != Version {
		return nil, fmt.Errorf("%w: malformed status line %q", ErrMalformedResponse, line)
	}
	status, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: bad status code %q", ErrMalformedResponse, parts[1])
	}
	var reason string
	if len(parts) == 3 {
		reason = parts[2]
	}

	header, err := readHeader(r, lim, ErrMalformedResponse)
	if err != nil {
		return nil, err
	}
	body, err := readBody(r, header, lim, ErrMalformedResponse)
	if err != nil {
		return nil, err
	}

	return &Response{
		Version: parts[0],
		Status:  status,
		Reason:  reason,
		Header:  header,
		Body:    body,
	}, nil
}

// readHeader reads header lines up to the blank separator. End of stream also
// ends the block. Repeated fields, in any letter case, keep the last value.
func readHeader(r *bufio.Reader, lim Limits, malformed error) (Header, error) {
	header := make(Header)
	for n := 0; ; n++ {
		line, err := ReadLine(r, lim.MaxLine)
		if errors.Is(err, ErrLineTooLong) {
			return nil, fmt.Errorf("%w: header line is too long", malformed)
		}
		if errors.Is(err, io.EOF) || (err == nil && line == "") {
			return header, nil
		}
		if err != nil {
			return nil, err
		}
		if n >= lim.MaxHeaders {
			return nil, fmt.Errorf("%w: too many headers", malformed)
		}

		key, value, ok := strings.Cut(line, ":")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: malformed header line", malformed)
		}
		header.Set(key, strings.TrimSpace(value))
	}
}

func readBody(r *bufio.Reader, header Header, lim Limits, malformed error) (string, error) {
	raw := header.Get(ContentLength)
	if raw == "" {
		return "", nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return "", fmt.Errorf("%w: invalid content length %q", malformed, raw)
	}
	if n > lim.MaxLine {
		return "", fmt.Errorf("%w: content length is too big", malformed)
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return strings.TrimSuffix(string(buf), terminator), nil
}
