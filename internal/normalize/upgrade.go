package normalize

import (
	"encoding/json"
	"fmt"

	"github.com/getkin/kin-openapi/openapi2"
	"github.com/getkin/kin-openapi/openapi2conv"

	"github.com/agentstation/apicorpus/pkg/document"
	"github.com/agentstation/apicorpus/pkg/errors"
)

// Upgrade converts a document to the current major version of its family.
// Swagger 2.0 becomes OpenAPI 3.0; OpenAPI 3.x and AsyncAPI 2.x/3.x pass
// through unchanged.
func Upgrade(doc document.Document) (document.Document, error) {
	family, version := doc.Family()
	switch major := doc.MajorVersion(); family {
	case document.FamilyOpenAPI:
		if major == "3" {
			return doc, nil
		}
	case document.FamilyAsyncAPI:
		if major == "2" || major == "3" {
			return doc, nil
		}
	case document.FamilySwagger:
		if major == "2" {
			return swaggerToOpenAPI(doc)
		}
	}
	return nil, &errors.ValidationError{
		Field:   "format",
		Value:   fmt.Sprintf("%s %s", family, version),
		Message: "unsupported document format",
		Err:     errors.ErrUnsupportedFormat,
	}
}

func swaggerToOpenAPI(doc document.Document) (document.Document, error) {
	raw, err := json.Marshal(map[string]any(doc))
	if err != nil {
		return nil, errors.WrapParse("json", "swagger", err)
	}

	var v2 openapi2.T
	if err := json.Unmarshal(raw, &v2); err != nil {
		return nil, &errors.ValidationError{Field: "swagger", Message: "decoding swagger 2.0: " + err.Error(), Err: err}
	}
	v3, err := openapi2conv.ToV3(&v2)
	if err != nil {
		return nil, &errors.ValidationError{Field: "swagger", Message: "converting to openapi 3: " + err.Error(), Err: err}
	}

	raw, err = json.Marshal(v3)
	if err != nil {
		return nil, errors.WrapParse("json", "openapi", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.WrapParse("json", "openapi", err)
	}
	return document.Document(out), nil
}
