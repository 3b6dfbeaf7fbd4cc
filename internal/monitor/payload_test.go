package monitor

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/epalmerini/rabbitwatch/internal/message"
	"github.com/epalmerini/rabbitwatch/internal/rabbitmq"
)

type stubDecoder struct {
	fields map[string]any
	err    error
}

func (s stubDecoder) DecodeWithHint(data []byte, routingKey string) (map[string]any, error) {
	return s.fields, s.err
}

func TestRenderPayload(t *testing.T) {
	binary := []byte{0x00, 0xff, 0x10}

	tests := []struct {
		name        string
		delivery    rabbitmq.Delivery
		decoder     PayloadDecoder
		wantKind    message.PayloadKind
		wantType    string
		wantBody    string
		bodyPrefix  bool
	}{
		{
			name:     "declared text",
			delivery: rabbitmq.Delivery{Type: "text", Body: []byte("hi")},
			wantKind: message.Text, wantType: "text", wantBody: "hi",
		},
		{
			name:     "jms text message",
			delivery: rabbitmq.Delivery{Type: "TextMessage", Body: []byte("hi")},
			wantKind: message.Text, wantType: "text", wantBody: "hi",
		},
		{
			name:     "json content type",
			delivery: rabbitmq.Delivery{ContentType: "application/json; charset=utf-8", Body: []byte(`{"a":1}`)},
			wantKind: message.Text, wantType: "text", wantBody: `{"a":1}`,
		},
		{
			name:     "declared type wins over content type",
			delivery: rabbitmq.Delivery{Type: "map", ContentType: "text/plain", Body: []byte(`{"b":"x","a":1}`)},
			wantKind: message.Map, wantType: "map", wantBody: "{a: 1, b: x}",
		},
		{
			name:     "map that is not json",
			delivery: rabbitmq.Delivery{Type: "map", Body: binary},
			wantKind: message.Map, wantType: "map", wantBody: "[map payload, 3 bytes]",
		},
		{
			name:     "printable bytes",
			delivery: rabbitmq.Delivery{Type: "bytes", Body: []byte("abc")},
			wantKind: message.Bytes, wantType: "bytes", wantBody: "abc",
		},
		{
			name:     "binary bytes",
			delivery: rabbitmq.Delivery{ContentType: "application/octet-stream", Body: binary},
			wantKind: message.Bytes, wantType: "bytes", wantBody: "[binary data, 3 bytes] 00 ff 10",
		},
		{
			name:     "bytes decoded as protobuf",
			delivery: rabbitmq.Delivery{Type: "bytes", Body: binary},
			decoder:  stubDecoder{fields: map[string]any{"id": 7, "__type": "Order"}},
			wantKind: message.Bytes, wantType: "bytes", wantBody: "{__type: Order, id: 7}",
		},
		{
			name:     "decoder failure falls back to placeholder",
			delivery: rabbitmq.Delivery{Type: "bytes", Body: binary},
			decoder:  stubDecoder{err: errors.New("no match")},
			wantKind: message.Bytes, wantType: "bytes", wantBody: "[binary data", bodyPrefix: true,
		},
		{
			name:     "binary object",
			delivery: rabbitmq.Delivery{Type: "ObjectMessage", Body: binary},
			wantKind: message.Object, wantType: "object", wantBody: "[object payload, 3 bytes]",
		},
		{
			name:     "stream",
			delivery: rabbitmq.Delivery{Type: "stream", Body: binary},
			wantKind: message.Stream, wantType: "stream", wantBody: "[stream payload, 3 bytes]",
		},
		{
			name:     "undeclared printable falls back to text",
			delivery: rabbitmq.Delivery{Body: []byte("plain")},
			wantKind: message.Text, wantType: "text (fallback)", wantBody: "plain",
		},
		{
			name:     "undeclared binary is unknown",
			delivery: rabbitmq.Delivery{Type: "custom", Body: binary},
			wantKind: message.Unknown, wantType: "unknown", wantBody: "[binary data", bodyPrefix: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := renderPayload(tt.delivery, tt.decoder)
			msg := message.Message{PayloadKind: r.kind, Fallback: r.fallback}

			assert.Equal(t, tt.wantKind, r.kind)
			assert.Equal(t, tt.wantType, msg.MessageType())
			if tt.bodyPrefix {
				assert.True(t, strings.HasPrefix(r.body, tt.wantBody), "body %q", r.body)
			} else {
				assert.Equal(t, tt.wantBody, r.body)
			}
		})
	}
}

func TestBinaryPlaceholderTruncates(t *testing.T) {
	body := make([]byte, 100)
	got := binaryPlaceholder(body)
	assert.True(t, strings.HasPrefix(got, "[binary data, 100 bytes]"))
	assert.True(t, strings.HasSuffix(got, " ..."))
}

func TestPrintable(t *testing.T) {
	assert.True(t, printable([]byte("line one\nline two\t")))
	assert.True(t, printable([]byte("città")))
	assert.True(t, printable(nil))
	assert.False(t, printable([]byte{0x00}))
	assert.False(t, printable([]byte{0xff, 0xfe}))
}
