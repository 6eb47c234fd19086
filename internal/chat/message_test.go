package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecode_RejectsBlankOrMissingData(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"missing data", `{"from_username": "alice"}`},
		{"empty data", `{"data": ""}`},
		{"blank data", `{"data": "  \t "}`},
		{"not json", `hello`},
		{"wrong type", `{"data": 42}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.line))
			require.ErrorIs(t, err, ErrInvalidMessage)
		})
	}
}

func TestDecode_DefaultsOptionalFields(t *testing.T) {
	req := require.New(t)
	m, err := Decode([]byte(`{"data": "hi", "to_username": null, "extra": true}` + "\r\n"))
	req.NoError(err)
	req.Equal(Message{Data: "hi"}, m)
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	messages := []Message{
		{Data: "hello"},
		{Data: " padded ", From: "alice"},
		{Data: "psst", From: "bob", To: "alice", IsPrivate: true},
		{Data: "boom", IsSystem: true, IsError: true},
	}
	for _, in := range messages {
		raw, err := Encode(in)
		require.NoError(t, err)
		require.True(t, strings.HasSuffix(string(raw), "\n"))
		require.Equal(t, 1, strings.Count(string(raw), "\n"))

		out, err := Decode(raw)
		require.NoError(t, err)
		require.Equal(t, in, out)
	}
}

func TestEncode_UsesWireFieldNames(t *testing.T) {
	raw, err := Encode(Message{Data: "x", From: "a", To: "b", IsPrivate: true})
	require.NoError(t, err)
	require.JSONEq(t,
		`{"data":"x","from_username":"a","to_username":"b","is_private":true,"is_system":false,"is_error":false}`,
		string(raw))
}

func TestMessage_Kind(t *testing.T) {
	require.Equal(t, KindBroadcast, Message{Data: "hi"}.Kind())
	require.Equal(t, KindPrivate, Message{Data: "hi", To: "bob"}.Kind())
	require.Equal(t, KindSystem, Message{Data: "hi", IsSystem: true}.Kind())
	require.Equal(t, KindSystemQuit, Message{Data: QuitCode, IsSystem: true}.Kind())
	require.Equal(t, KindBroadcast, Message{Data: QuitCode}.Kind())
}

func TestDecodeHandshake(t *testing.T) {
	name, err := decodeHandshake(`{"username": " alice "}`)
	require.NoError(t, err)
	require.Equal(t, "alice", name)

	for _, body := range []string{``, `{}`, `{"username": ""}`, `{"username": 7}`, `nope`} {
		_, err := decodeHandshake(body)
		require.ErrorIs(t, err, ErrInvalidHandshake, body)
	}
}
