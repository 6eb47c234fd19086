package wire

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func reader(s string) *bufio.Reader {
	return bufio.NewReader(strings.NewReader(s))
}

// failingReader fails the test if anything reads past what it was given.
type failingReader struct {
	t    *testing.T
	data *strings.Reader
}

func (f *failingReader) Read(p []byte) (int, error) {
	if f.data.Len() == 0 {
		f.t.Fatal("read past the header block")
	}
	return f.data.Read(p)
}

func TestReadRequest_ParsesEnvelope(t *testing.T) {
	req := require.New(t)
	raw := "POST /send-all?x=1 HTTP/1.1\r\n" +
		"Host: chat.local\r\n" +
		"Content-Length: 6\r\n" +
		"\r\n" +
		"hello!"

	r, err := ReadRequest(reader(raw), DefaultLimits)

	req.NoError(err)
	req.Equal("POST", r.Method)
	req.Equal("/send-all?x=1", r.Target)
	req.Equal("/send-all", r.Path())
	req.Equal("1", r.Query().Get("x"))
	req.Equal(Version, r.Version)
	req.Equal("chat.local", r.Header.Get("Host"))
	req.Equal("chat.local", r.Header.Get("host"))
	req.Equal("hello!", r.Body)
}

func TestReadRequest_RequestLine(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"missing version", "GET /status\r\n\r\n"},
		{"extra token", "GET /status HTTP/1.1 extra\r\n\r\n"},
		{"empty line", "\r\n\r\n"},
		{"wrong version", "GET /status HTTP/1.0\r\n\r\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadRequest(reader(tt.line), DefaultLimits)
			require.ErrorIs(t, err, ErrMalformedRequest)
		})
	}
}

func TestReadRequest_HeaderLimits(t *testing.T) {
	t.Run("too many headers", func(t *testing.T) {
		var b strings.Builder
		b.WriteString("GET /status HTTP/1.1\r\n")
		for i := 0; i <= MaxHeaders; i++ {
			b.WriteString("X-Test: 1\r\n")
		}
		b.WriteString("\r\n")

		_, err := ReadRequest(reader(b.String()), DefaultLimits)
		require.ErrorIs(t, err, ErrMalformedRequest)
	})

	t.Run("exactly the maximum is accepted", func(t *testing.T) {
		var b strings.Builder
		b.WriteString("GET /status HTTP/1.1\r\n")
		for i := 0; i < MaxHeaders; i++ {
			b.WriteString("X-Test: 1\r\n")
		}
		b.WriteString("\r\n")

		_, err := ReadRequest(reader(b.String()), DefaultLimits)
		require.NoError(t, err)
	})

	t.Run("header line too long", func(t *testing.T) {
		raw := "GET /status HTTP/1.1\r\nX-Big: " + strings.Repeat("a", MaxLine) + "\r\n\r\n"
		_, err := ReadRequest(reader(raw), DefaultLimits)
		require.ErrorIs(t, err, ErrMalformedRequest)
	})

	t.Run("header without colon", func(t *testing.T) {
		_, err := ReadRequest(reader("GET /status HTTP/1.1\r\nbroken\r\n\r\n"), DefaultLimits)
		require.ErrorIs(t, err, ErrMalformedRequest)
	})

	t.Run("duplicate keys keep the last value", func(t *testing.T) {
		r, err := ReadRequest(reader("GET /status HTTP/1.1\r\nHost: a\r\nHost: b\r\n\r\n"), DefaultLimits)
		require.NoError(t, err)
		require.Equal(t, "b", r.Header.Get("Host"))
	})

	t.Run("duplicate keys in different case keep the last value", func(t *testing.T) {
		r, err := ReadRequest(reader("GET /status HTTP/1.1\r\nhost: a\r\nHOST: b\r\n\r\n"), DefaultLimits)
		require.NoError(t, err)
		require.Len(t, r.Header, 1)
		require.Equal(t, "b", r.Header.Get("Host"))
		require.Equal(t, "b", r.Header.Get("host"))
	})
}

func TestReadRequest_Body(t *testing.T) {
	t.Run("bodyless method ignores content length", func(t *testing.T) {
		br := reader("GET /status HTTP/1.1\r\nContent-Length: 5\r\n\r\nabcde")
		r, err := ReadRequest(br, DefaultLimits)
		require.NoError(t, err)
		require.Empty(t, r.Body)

		rest, _ := io.ReadAll(br)
		require.Equal(t, "abcde", string(rest))
	})

	t.Run("oversized content length is rejected before reading", func(t *testing.T) {
		head := "POST /send-all HTTP/1.1\r\nContent-Length: 70000\r\n\r\n"
		br := bufio.NewReader(&failingReader{t: t, data: strings.NewReader(head)})

		_, err := ReadRequest(br, DefaultLimits)
		require.ErrorIs(t, err, ErrMalformedRequest)
	})

	t.Run("invalid content length", func(t *testing.T) {
		_, err := ReadRequest(reader("POST /x HTTP/1.1\r\nContent-Length: -3\r\n\r\n"), DefaultLimits)
		require.ErrorIs(t, err, ErrMalformedRequest)
	})

	t.Run("truncated body is a transport error", func(t *testing.T) {
		_, err := ReadRequest(reader("POST /x HTTP/1.1\r\nContent-Length: 10\r\n\r\nabc"), DefaultLimits)
		require.Error(t, err)
		require.False(t, errors.Is(err, ErrMalformedRequest))
		require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("no content length means no body", func(t *testing.T) {
		r, err := ReadRequest(reader("POST /x HTTP/1.1\r\n\r\n"), DefaultLimits)
		require.NoError(t, err)
		require.Empty(t, r.Body)
	})
}

func TestRequest_BytesRoundTrip(t *testing.T) {
	req := require.New(t)
	in := NewRequest("POST", "/connect", Header{HostHeader: "127.0.0.1:8001"}, `{"username": "alice"}`)

	raw := in.Bytes()
	req.Contains(string(raw), "Content-Length: 25\r\n")

	br := reader(string(raw) + `{"data": "next line"}` + "\n")
	out, err := ReadRequest(br, DefaultLimits)
	req.NoError(err)
	req.Equal(in.Method, out.Method)
	req.Equal(in.Target, out.Target)
	req.Equal(in.Body, out.Body)
	req.Equal("127.0.0.1:8001", out.Header.Get(HostHeader))

	// The upgraded stream continues right after the envelope.
	line, err := ReadLine(br, MaxLine)
	req.NoError(err)
	req.Equal(`{"data": "next line"}`, line)
}

func TestResponse_BytesRoundTrip(t *testing.T) {
	req := require.New(t)
	in := NewResponse(200, "Connected clients: 2, messages: 1")

	raw := string(in.Bytes())
	req.True(strings.HasPrefix(raw, "HTTP/1.1 200 OK\r\n"))
	req.True(strings.HasSuffix(raw, "Connected clients: 2, messages: 1\r\n\r\n"))

	out, err := ReadResponse(reader(raw), DefaultLimits)
	req.NoError(err)
	req.Equal(200, out.Status)
	req.Equal("OK", out.Reason)
	req.Equal(in.Body, out.Body)
}

func TestReadResponse_Malformed(t *testing.T) {
	_, err := ReadResponse(reader("HTTP/1.1 abc OK\r\n\r\n"), DefaultLimits)
	require.ErrorIs(t, err, ErrMalformedResponse)

	_, err = ReadResponse(reader("SPDY/3 200 OK\r\n\r\n"), DefaultLimits)
	require.ErrorIs(t, err, ErrMalformedResponse)
}

func TestReadLine(t *testing.T) {
	t.Run("long line is skipped", func(t *testing.T) {
		br := bufio.NewReaderSize(strings.NewReader(strings.Repeat("x", 100)+"\nnext\n"), 16)

		_, err := ReadLine(br, 32)
		require.ErrorIs(t, err, ErrLineTooLong)

		line, err := ReadLine(br, 32)
		require.NoError(t, err)
		require.Equal(t, "next", line)
	})

	t.Run("last line without newline", func(t *testing.T) {
		br := reader("a\r\nb")
		line, err := ReadLine(br, 32)
		require.NoError(t, err)
		require.Equal(t, "a", line)

		line, err = ReadLine(br, 32)
		require.NoError(t, err)
		require.Equal(t, "b", line)

		_, err = ReadLine(br, 32)
		require.ErrorIs(t, err, io.EOF)
	})
}

func TestHeader_SetReplacesOtherSpellings(t *testing.T) {
	h := Header{"content-type": "text/plain"}

	h.Set("Content-Type", "application/json")

	require.Equal(t, Header{"Content-Type": "application/json"}, h)
	require.Equal(t, "application/json", h.Get("CONTENT-TYPE"))
}
