package document

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"slices"

	"github.com/goccy/go-yaml"
)

// topLevelOrder is the key order of canonical serializations. Keys not listed
// follow in lexical order; nested objects are always lexically ordered.
var topLevelOrder = []string{
	"openapi", "swagger", "asyncapi", "id", "info", "defaultContentType",
	"externalDocs", "host", "basePath", "schemes", "servers", "security",
	"tags", "paths", "channels", "operations", "components", "definitions",
	"parameters", "responses", "securityDefinitions",
}

func (d Document) orderedKeys() []string {
	keys := make([]string, 0, len(d))
	for _, k := range topLevelOrder {
		if _, ok := d[k]; ok {
			keys = append(keys, k)
		}
	}
	var rest []string
	for k := range d {
		if !slices.Contains(topLevelOrder, k) {
			rest = append(rest, k)
		}
	}
	slices.Sort(rest)
	return append(keys, rest...)
}

// CanonicalJSON serializes the document with deterministic key ordering.
// The output is compact when indent is empty.
func (d Document) CanonicalJSON(indent string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range d.orderedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := marshalJSON(k)
		if err != nil {
			return nil, err
		}
		val, err := marshalJSON(d[k])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')

	if indent == "" {
		return buf.Bytes(), nil
	}
	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", indent); err != nil {
		return nil, err
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// CanonicalYAML serializes the document as human-editable YAML using the
// same key ordering as CanonicalJSON.
func (d Document) CanonicalYAML() ([]byte, error) {
	ms := make(yaml.MapSlice, 0, len(d))
	for _, k := range d.orderedKeys() {
		ms = append(ms, yaml.MapItem{Key: k, Value: d[k]})
	}
	return yaml.MarshalWithOptions(ms,
		yaml.Indent(2),
		yaml.IndentSequence(true),
		yaml.UseLiteralStyleIfMultiline(true),
	)
}

// Fingerprint is the hex SHA-256 of the compact canonical JSON serialization.
func (d Document) Fingerprint() (string, error) {
	data, err := d.CanonicalJSON("")
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
