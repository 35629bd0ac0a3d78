// Package document models an API description document (Swagger, OpenAPI or
// AsyncAPI) as a plain tree of maps, slices and scalars, and provides the
// canonical serialization, fingerprinting and overlay merge used by the
// reconciliation pipeline.
package document

import (
	"fmt"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/agentstation/apicorpus/pkg/errors"
)

// Family is the specification family a document declares.
type Family string

// Known families.
const (
	FamilyUnknown  Family = ""
	FamilySwagger  Family = "swagger"
	FamilyOpenAPI  Family = "openapi"
	FamilyAsyncAPI Family = "asyncapi"
)

// Canonical returns the family a document of this family is stored as.
func (f Family) Canonical() Family {
	if f == FamilySwagger {
		return FamilyOpenAPI
	}
	return f
}

// Document is the root object of an API description.
type Document map[string]any

// Parse decodes YAML or JSON bytes into a Document.
func Parse(raw []byte, name string) (Document, error) {
	var v any
	if err := yaml.Unmarshal(raw, &v); err != nil {
		return nil, errors.WrapParse("yaml", name, err)
	}
	root, ok := Plain(v).(map[string]any)
	if !ok {
		return nil, errors.NewParseError("yaml", name, "document root is not an object", nil)
	}
	return Document(root), nil
}

// Plain converts decoded YAML values into JSON-compatible values:
// maps get string keys and nested containers are converted recursively.
func Plain(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = Plain(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = Plain(val)
		}
		return out
	case Document:
		return Plain(map[string]any(t))
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Plain(val)
		}
		return out
	case yaml.MapSlice:
		out := make(map[string]any, len(t))
		for _, item := range t {
			out[fmt.Sprint(item.Key)] = Plain(item.Value)
		}
		return out
	default:
		return v
	}
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return Document(Plain(map[string]any(d)).(map[string]any))
}

// Family reports the declared specification family and its version string.
func (d Document) Family() (Family, string) {
	for _, f := range []Family{FamilyOpenAPI, FamilyAsyncAPI, FamilySwagger} {
		if v, ok := d[string(f)]; ok {
			return f, scalarString(v)
		}
	}
	return FamilyUnknown, ""
}

// MajorVersion returns the leading numeric component of the declared family version.
func (d Document) MajorVersion() string {
	_, v := d.Family()
	major, _, _ := strings.Cut(v, ".")
	return major
}

// Info returns the info object, creating it when absent.
func (d Document) Info() map[string]any {
	info, ok := d["info"].(map[string]any)
	if !ok {
		info = make(map[string]any)
		d["info"] = info
	}
	return info
}

// Version returns info.version as declared by the document.
func (d Document) Version() string {
	info, ok := d["info"].(map[string]any)
	if !ok {
		return ""
	}
	return scalarString(info["version"])
}

// Title returns info.title.
func (d Document) Title() string {
	info, ok := d["info"].(map[string]any)
	if !ok {
		return ""
	}
	return scalarString(info["title"])
}

// HTTPMethods are the operation keys of a path item.
var HTTPMethods = []string{"get", "put", "post", "delete", "options", "head", "patch", "trace"}

// EndpointCount counts operations for Swagger/OpenAPI documents and
// channels (topics) for AsyncAPI documents.
func (d Document) EndpointCount() int {
	family, _ := d.Family()
	if family == FamilyAsyncAPI {
		channels, _ := d["channels"].(map[string]any)
		return len(channels)
	}

	paths, _ := d["paths"].(map[string]any)
	count := 0
	for _, item := range paths {
		pathItem, ok := item.(map[string]any)
		if !ok {
			continue
		}
		for _, method := range HTTPMethods {
			if _, ok := pathItem[method]; ok {
				count++
			}
		}
	}
	return count
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
