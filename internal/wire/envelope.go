package wire

import (
	"fmt"
	"net/http"
	"net/textproto"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

const (
	// Version is the only protocol version accepted on the request line.
	Version = "HTTP/1.1"

	MaxLine    = 64 * 1024
	MaxHeaders = 100

	ContentLength = "Content-Length"
	HostHeader    = "Host"

	crlf       = "\r\n"
	terminator = "\r\n\r\n"
)

// Limits bounds what the reader accepts from a peer.
type Limits struct {
	MaxLine    int
	MaxHeaders int
}

var DefaultLimits = Limits{MaxLine: MaxLine, MaxHeaders: MaxHeaders}

func (l Limits) orDefault() Limits {
	if l.MaxLine <= 0 {
		l.MaxLine = MaxLine
	}
	if l.MaxHeaders <= 0 {
		l.MaxHeaders = MaxHeaders
	}
	return l
}

// Header keeps keys as received. Keys differing only in case name the same
// field; Set keeps a single spelling per field.
type Header map[string]string

func (h Header) Get(key string) string {
	if v, ok := h[key]; ok {
		return v
	}
	canonical := textproto.CanonicalMIMEHeaderKey(key)
	for k, v := range h {
		if textproto.CanonicalMIMEHeaderKey(k) == canonical {
			return v
		}
	}
	return ""
}

// Set replaces every spelling of key with this one.
func (h Header) Set(key, value string) {
	canonical := textproto.CanonicalMIMEHeaderKey(key)
	for k := range h {
		if k != key && textproto.CanonicalMIMEHeaderKey(k) == canonical {
			delete(h, k)
		}
	}
	h[key] = value
}

func (h Header) text(body string) string {
	out := make(Header, len(h)+1)
	for k, v := range h {
		if !strings.EqualFold(k, ContentLength) {
			out[k] = v
		}
	}
	out[ContentLength] = strconv.Itoa(len(body) + len(terminator))

	keys := make([]string, 0, len(out))
	for k := range out {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+": "+out[k])
	}
	return strings.Join(lines, crlf)
}

type Request struct {
	Method  string
	Target  string
	Version string
	Header  Header
	Body    string
}

func NewRequest(method, target string, header Header, body string) *Request {
	if header == nil {
		header = make(Header)
	}
	return &Request{
		Method:  method,
		Target:  target,
		Version: Version,
		Header:  header,
		Body:    body,
	}
}

// Path returns the target without its query. A target that does not parse
// as a URL is returned unchanged.
func (r *Request) Path() string {
	u, err := url.Parse(r.Target)
	if err != nil {
		return r.Target
	}
	return u.Path
}

func (r *Request) Query() url.Values {
	u, err := url.Parse(r.Target)
	if err != nil {
		return url.Values{}
	}
	return u.Query()
}

// Bytes serializes the request. Content-Length is always derived from the
// body and counts the trailing terminator.
func (r *Request) Bytes() []byte {
	version := r.Version
	if version == "" {
		version = Version
	}
	return []byte(fmt.Sprintf("%s %s %s%s%s%s%s%s",
		r.Method, r.Target, version, crlf,
		r.Header.text(r.Body), terminator,
		r.Body, terminator))
}

type Response struct {
	Version string
	Status  int
	Reason  string
	Header  Header
	Body    string
}

// NewResponse builds a response with the standard reason phrase for status.
func NewResponse(status int, body string) *Response {
	return &Response{
		Version: Version,
		Status:  status,
		Reason:  http.StatusText(status),
		Header:  make(Header),
		Body:    body,
	}
}

func (r *Response) Bytes() []byte {
	version := r.Version
	if version == "" {
		version = Version
	}
	return []byte(fmt.Sprintf("%s %d %s%s%s%s%s%s",
		version, r.Status, r.Reason, crlf,
		r.Header.text(r.Body), terminator,
		r.Body, terminator))
}
