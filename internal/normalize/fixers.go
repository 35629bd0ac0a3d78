package normalize

import (
	"maps"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/agentstation/apicorpus/pkg/constants"
	"github.com/agentstation/apicorpus/pkg/document"
)

// fixer repairs one class of common defect and returns how many patches it applied.
type fixer func(doc document.Document) int

// laxFixers are applied in order by lax validation. Every fixer is
// idempotent: a second pass over its own output applies nothing.
var laxFixers = []fixer{
	fixInfo,
	fixPaths,
	fixServerURLs,
	fixPathParameters,
	fixResponseDescriptions,
}

// applyFixers runs every lax fixer and returns the total patch count.
func applyFixers(doc document.Document) int {
	n := 0
	for _, fix := range laxFixers {
		n += fix(doc)
	}
	return n
}

func fixInfo(doc document.Document) int {
	n := 0
	info, ok := doc["info"].(map[string]any)
	if !ok {
		info = make(map[string]any)
		doc["info"] = info
		n++
	}
	switch v := info["version"].(type) {
	case string:
		if v == "" {
			info["version"] = constants.DefaultVersion
			n++
		}
	case nil:
		info["version"] = constants.DefaultVersion
		n++
	case float64:
		info["version"] = strconv.FormatFloat(v, 'f', -1, 64)
		n++
	default:
		info["version"] = doc.Version()
		n++
	}
	if title, ok := info["title"].(string); !ok || title == "" {
		info["title"] = "Untitled API"
		n++
	}
	return n
}

func fixPaths(doc document.Document) int {
	if family, _ := doc.Family(); family == document.FamilyAsyncAPI {
		return 0
	}
	if _, ok := doc["paths"].(map[string]any); !ok {
		doc["paths"] = map[string]any{}
		return 1
	}
	return 0
}

func fixServerURLs(doc document.Document) int {
	if family, _ := doc.Family(); family != document.FamilyOpenAPI {
		return 0
	}
	servers, _ := doc["servers"].([]any)
	n := 0
	for _, s := range servers {
		server, ok := s.(map[string]any)
		if !ok {
			continue
		}
		url, ok := server["url"].(string)
		if !ok || url == "" || strings.HasPrefix(url, "/") && !strings.HasPrefix(url, "//") || strings.Contains(url, "://") || strings.HasPrefix(url, "{") {
			continue
		}
		server["url"] = "https://" + strings.TrimPrefix(url, "//")
		n++
	}
	return n
}

func fixPathParameters(doc document.Document) int {
	n := 0
	forEachPathItem(doc, func(item map[string]any) {
		n += requirePathParams(item["parameters"])
		for _, method := range document.HTTPMethods {
			if op, ok := item[method].(map[string]any); ok {
				n += requirePathParams(op["parameters"])
			}
		}
	})
	return n
}

func requirePathParams(v any) int {
	params, _ := v.([]any)
	n := 0
	for _, p := range params {
		param, ok := p.(map[string]any)
		if !ok || param["in"] != "path" {
			continue
		}
		if param["required"] != true {
			param["required"] = true
			n++
		}
	}
	return n
}

func fixResponseDescriptions(doc document.Document) int {
	n := 0
	forEachPathItem(doc, func(item map[string]any) {
		for _, method := range document.HTTPMethods {
			op, ok := item[method].(map[string]any)
			if !ok {
				continue
			}
			responses, _ := op["responses"].(map[string]any)
			for code, r := range responses {
				resp, ok := r.(map[string]any)
				if !ok {
					continue
				}
				if _, isRef := resp["$ref"]; isRef {
					continue
				}
				if d, ok := resp["description"].(string); ok && d != "" {
					continue
				}
				resp["description"] = describeStatus(code)
				n++
			}
		}
	})
	return n
}

func describeStatus(code string) string {
	if status, err := strconv.Atoi(code); err == nil {
		if text := http.StatusText(status); text != "" {
			return text
		}
	}
	return "Default response"
}

func forEachPathItem(doc document.Document, fn func(map[string]any)) {
	paths, _ := doc["paths"].(map[string]any)
	for _, k := range slices.Sorted(maps.Keys(paths)) {
		if item, ok := paths[k].(map[string]any); ok {
			fn(item)
		}
	}
}
