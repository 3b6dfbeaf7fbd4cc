// Package proto renders protobuf payloads using message types loaded from a
// directory of .proto files.
package proto

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/desc/protoparse"
	"github.com/jhump/protoreflect/dynamic"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// TypeField is the key under which the matched message type is reported.
const TypeField = "__type"

// ErrNoTypes is returned when no message type could be loaded.
var ErrNoTypes = errors.New("no message types loaded")

var titleCaser = cases.Title(language.Und)

// Decoder handles dynamic protobuf message decoding.
type Decoder struct {
	messageTypes map[string]*desc.MessageDescriptor
	allMessages  []*desc.MessageDescriptor
	warnings     []string
}

// NewDecoder creates a decoder from a directory of .proto files. Files that
// fail to parse are skipped and reported through Warnings.
func NewDecoder(protoPath string) (*Decoder, error) {
	var protoFiles []string
	err := filepath.WalkDir(protoPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".proto") {
			rel, err := filepath.Rel(protoPath, path)
			if err != nil {
				rel = path
			}
			protoFiles = append(protoFiles, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking proto path: %w", err)
	}
	if len(protoFiles) == 0 {
		return nil, fmt.Errorf("no .proto files found in %s", protoPath)
	}

	parser := protoparse.Parser{
		ImportPaths:           []string{protoPath},
		IncludeSourceCodeInfo: true,
	}

	d := &Decoder{messageTypes: make(map[string]*desc.MessageDescriptor)}
	for _, pf := range protoFiles {
		fds, err := parser.ParseFiles(pf)
		if err != nil {
			d.warnings = append(d.warnings, fmt.Sprintf("%s: %v", pf, err))
			continue
		}
		for _, fd := range fds {
			for _, md := range fd.GetMessageTypes() {
				d.messageTypes[md.GetName()] = md
				d.messageTypes[md.GetFullyQualifiedName()] = md
				d.allMessages = append(d.allMessages, md)
			}
		}
	}

	if len(d.allMessages) == 0 {
		return nil, errors.Join(ErrNoTypes, errors.New(strings.Join(d.warnings, "; ")))
	}
	return d, nil
}

// Warnings lists the files that could not be parsed.
func (d *Decoder) Warnings() []string {
	return slices.Clone(d.warnings)
}

// Decode attempts to decode protobuf bytes using known message types.
func (d *Decoder) Decode(data []byte) (map[string]any, error) {
	return d.DecodeWithHint(data, "")
}

// DecodeWithHint decodes data with every known type and keeps the one that
// populates the most fields. A type whose name matches the routing key hint
// always wins over the others.
func (d *Decoder) DecodeWithHint(data []byte, routingKey string) (map[string]any, error) {
	if d == nil || len(d.allMessages) == 0 {
		return nil, ErrNoTypes
	}

	typeHint := routingKeyToTypeHint(routingKey)

	var bestMatch *dynamic.Message
	var bestMatchName string
	bestScore := 0

	for _, md := range d.allMessages {
		msg := dynamic.NewMessage(md)
		if err := msg.Unmarshal(data); err != nil {
			continue
		}

		score := countPopulatedFields(msg)
		name := md.GetName()
		if typeHint != "" && strings.EqualFold(name, typeHint) {
			score += 1000
		}

		if score > bestScore {
			bestScore = score
			bestMatch = msg
			bestMatchName = name
		}
	}

	if bestMatch == nil {
		return nil, fmt.Errorf("could not decode with any known message type")
	}

	result := messageToMap(bestMatch)
	result[TypeField] = bestMatchName
	return result, nil
}

// routingKeyToTypeHint converts a routing key to the expected message type,
// e.g. "billing.eu.invoice.created" -> "InvoiceCreated".
func routingKeyToTypeHint(routingKey string) string {
	parts := strings.Split(routingKey, ".")
	if len(parts) < 2 {
		return ""
	}

	entity := strings.ReplaceAll(parts[len(parts)-2], "_", " ")
	action := parts[len(parts)-1]

	entity = strings.ReplaceAll(titleCaser.String(entity), " ", "")
	return entity + titleCaser.String(action)
}

// DecodeAs decodes using a specific message type name.
func (d *Decoder) DecodeAs(data []byte, typeName string) (map[string]any, error) {
	md, ok := d.messageTypes[typeName]
	if !ok {
		return nil, fmt.Errorf("unknown message type: %s", typeName)
	}

	msg := dynamic.NewMessage(md)
	if err := msg.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", typeName, err)
	}

	result := messageToMap(msg)
	result[TypeField] = typeName
	return result, nil
}

// ListTypes returns all known message type names, sorted.
func (d *Decoder) ListTypes() []string {
	types := make([]string, 0, len(d.messageTypes))
	for name := range d.messageTypes {
		types = append(types, name)
	}
	slices.Sort(types)
	return types
}

func countPopulatedFields(msg *dynamic.Message) int {
	count := 0
	for _, fd := range msg.GetKnownFields() {
		if msg.HasField(fd) {
			count++
		}
	}
	return count
}

func messageToMap(msg *dynamic.Message) map[string]any {
	result := make(map[string]any)
	for _, fd := range msg.GetKnownFields() {
		if !msg.HasField(fd) {
			continue
		}
		result[fd.GetName()] = convertValue(msg.GetField(fd))
	}
	return result
}

func convertValue(val any) any {
	switch v := val.(type) {
	case *dynamic.Message:
		return messageToMap(v)
	case []byte:
		if utf8.Valid(v) && !hasControl(v) {
			return string(v)
		}
		return fmt.Sprintf("0x%x", v)
	case []any:
		result := make([]any, len(v))
		for i, item := range v {
			result[i] = convertValue(item)
		}
		return result
	default:
		return v
	}
}

func hasControl(data []byte) bool {
	for _, b := range data {
		if b < 32 && b != '\n' && b != '\r' && b != '\t' {
			return true
		}
	}
	return false
}
