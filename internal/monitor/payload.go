package monitor

import (
	"encoding/json"
	"fmt"
	"mime"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/epalmerini/rabbitwatch/internal/message"
	"github.com/epalmerini/rabbitwatch/internal/rabbitmq"
)

// PayloadDecoder renders binary payloads into fields. *proto.Decoder
// satisfies it.
type PayloadDecoder interface {
	DecodeWithHint(data []byte, routingKey string) (map[string]any, error)
}

type payloadStrategy struct {
	kind message.PayloadKind
	// types are the declared AMQP "type" values, lower case. JMS bridges
	// set the JMS interface names.
	types        []string
	contentTypes []string
	render       func(d rabbitmq.Delivery, dec PayloadDecoder) rendered
}

type rendered struct {
	body     string
	kind     message.PayloadKind
	fallback bool
}

// payloadStrategies is consulted in order: first by declared type, then by
// content type. Anything unmatched is Unknown.
var payloadStrategies = []payloadStrategy{
	{
		kind:         message.Text,
		types:        []string{"text", "textmessage", "jms_text_message"},
		contentTypes: []string{"text/*", "application/json", "application/xml"},
		render:       renderText,
	},
	{
		kind:         message.Bytes,
		types:        []string{"bytes", "bytesmessage", "jms_bytes_message"},
		contentTypes: []string{"application/octet-stream", "application/protobuf", "application/x-protobuf"},
		render:       renderBytes,
	},
	{
		kind:         message.Map,
		types:        []string{"map", "mapmessage", "jms_map_message"},
		contentTypes: []string{"application/x-amqp-map"},
		render:       renderMap,
	},
	{
		kind:         message.Object,
		types:        []string{"object", "objectmessage", "jms_object_message"},
		contentTypes: []string{"application/x-java-serialized-object"},
		render:       placeholderRenderer(message.Object),
	},
	{
		kind:         message.Stream,
		types:        []string{"stream", "streammessage", "jms_stream_message"},
		contentTypes: []string{"application/x-amqp-stream"},
		render:       placeholderRenderer(message.Stream),
	},
}

var unknownStrategy = payloadStrategy{kind: message.Unknown, render: renderUnknown}

func classify(d rabbitmq.Delivery) *payloadStrategy {
	if t := strings.ToLower(strings.TrimSpace(d.Type)); t != "" {
		for i := range payloadStrategies {
			for _, candidate := range payloadStrategies[i].types {
				if t == candidate {
					return &payloadStrategies[i]
				}
			}
		}
	}
	if ct := mediaType(d.ContentType); ct != "" {
		for i := range payloadStrategies {
			for _, pattern := range payloadStrategies[i].contentTypes {
				if matchMediaType(pattern, ct) {
					return &payloadStrategies[i]
				}
			}
		}
	}
	return &unknownStrategy
}

func mediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}

func matchMediaType(pattern, mt string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		return strings.HasPrefix(mt, prefix+"/")
	}
	return pattern == mt
}

func renderPayload(d rabbitmq.Delivery, dec PayloadDecoder) rendered {
	return classify(d).render(d, dec)
}

func renderText(d rabbitmq.Delivery, _ PayloadDecoder) rendered {
	return rendered{body: string(d.Body), kind: message.Text}
}

func renderBytes(d rabbitmq.Delivery, dec PayloadDecoder) rendered {
	if dec != nil && len(d.Body) > 0 {
		if fields, err := dec.DecodeWithHint(d.Body, d.RoutingKey); err == nil {
			return rendered{body: formatFields(fields), kind: message.Bytes}
		}
	}
	if printable(d.Body) {
		return rendered{body: string(d.Body), kind: message.Bytes}
	}
	return rendered{body: binaryPlaceholder(d.Body), kind: message.Bytes}
}

func renderMap(d rabbitmq.Delivery, _ PayloadDecoder) rendered {
	var fields map[string]any
	if err := json.Unmarshal(d.Body, &fields); err == nil && fields != nil {
		return rendered{body: formatFields(fields), kind: message.Map}
	}
	return placeholderRenderer(message.Map)(d, nil)
}

// placeholderRenderer shows the body when it reads as text and describes
// it otherwise.
func placeholderRenderer(kind message.PayloadKind) func(rabbitmq.Delivery, PayloadDecoder) rendered {
	return func(d rabbitmq.Delivery, _ PayloadDecoder) rendered {
		if printable(d.Body) {
			return rendered{body: string(d.Body), kind: kind}
		}
		return rendered{body: fmt.Sprintf("[%s payload, %d bytes]", kind, len(d.Body)), kind: kind}
	}
}

func renderUnknown(d rabbitmq.Delivery, _ PayloadDecoder) rendered {
	if printable(d.Body) {
		return rendered{body: string(d.Body), kind: message.Text, fallback: true}
	}
	return rendered{body: binaryPlaceholder(d.Body), kind: message.Unknown}
}

// textOrStringified is the topic path: no classification, just the body as
// text or a hex rendering of it.
func textOrStringified(body []byte) rendered {
	if printable(body) {
		return rendered{body: string(body), kind: message.Text}
	}
	return rendered{body: binaryPlaceholder(body), kind: message.Text, fallback: true}
}

func printable(data []byte) bool {
	if !utf8.Valid(data) {
		return false
	}
	for _, r := range string(data) {
		if !unicode.IsPrint(r) && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

const hexPreviewBytes = 32

func binaryPlaceholder(data []byte) string {
	preview := data
	suffix := ""
	if len(preview) > hexPreviewBytes {
		preview = preview[:hexPreviewBytes]
		suffix = " ..."
	}
	return fmt.Sprintf("[binary data, %d bytes] % x%s", len(data), preview, suffix)
}

// formatFields renders a map as {key: value, ...} with sorted keys.
func formatFields(fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(k)
		sb.WriteString(": ")
		sb.WriteString(formatValue(fields[k]))
	}
	sb.WriteString("}")
	return sb.String()
}

// formatValue formats a value as JSON for complex types, or as a plain
// string for primitives.
func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		if printable(val) {
			return string(val)
		}
		return fmt.Sprintf("0x%x", val)
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprintf("%v", val)
	case nil:
		return "null"
	default:
		if b, err := json.Marshal(val); err == nil {
			return string(b)
		}
		return fmt.Sprintf("%v", val)
	}
}
