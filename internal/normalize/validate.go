package normalize

import (
	"embed"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/agentstation/apicorpus/pkg/document"
	"github.com/agentstation/apicorpus/pkg/errors"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var schemaFiles = map[document.Family]string{
	document.FamilyOpenAPI:  "schemas/openapi3.json",
	document.FamilyAsyncAPI: "schemas/asyncapi.json",
}

// Validator checks canonical documents against the structural schema of their family.
type Validator struct {
	once    sync.Once
	schemas map[document.Family]*gojsonschema.Schema
	err     error
}

// NewValidator returns a validator; schemas are compiled on first use.
func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) compile() {
	v.schemas = make(map[document.Family]*gojsonschema.Schema, len(schemaFiles))
	for family, name := range schemaFiles {
		raw, err := schemaFS.ReadFile(name)
		if err != nil {
			v.err = errors.WrapIO("read", name, err)
			return
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			v.err = errors.WrapParse("jsonschema", name, err)
			return
		}
		v.schemas[family] = schema
	}
}

// Validate returns nil when doc conforms, otherwise a *errors.ValidationError
// whose Context is the JSON pointer of the first offending location.
func (v *Validator) Validate(doc document.Document) error {
	v.once.Do(v.compile)
	if v.err != nil {
		return v.err
	}

	family, version := doc.Family()
	schema, ok := v.schemas[family]
	if !ok {
		return &errors.ValidationError{
			Field:   "format",
			Value:   fmt.Sprintf("%s %s", family, version),
			Message: "no schema for document format",
			Err:     errors.ErrUnsupportedFormat,
		}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(map[string]any(doc)))
	if err != nil {
		return errors.WrapValidation("document", err)
	}
	if result.Valid() {
		return nil
	}

	problems := result.Errors()
	slices.SortFunc(problems, func(a, b gojsonschema.ResultError) int {
		return strings.Compare(pointerOf(a), pointerOf(b))
	})
	first := problems[0]
	msg := first.Description()
	if len(problems) > 1 {
		msg = fmt.Sprintf("%s (and %d more)", msg, len(problems)-1)
	}
	return &errors.ValidationError{
		Field:   first.Field(),
		Message: msg,
		Context: pointerOf(first),
	}
}

// pointerOf converts a gojsonschema context such as "(root).info.version"
// into a JSON pointer.
func pointerOf(e gojsonschema.ResultError) string {
	ctx := e.Context()
	if ctx == nil {
		return ""
	}
	return strings.TrimPrefix(ctx.String("/"), "(root)")
}
