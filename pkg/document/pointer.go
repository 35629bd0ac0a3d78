package document

import (
	"strings"

	"github.com/go-openapi/jsonpointer"
)

// Lookup resolves a JSON pointer ("" or "/a/b") against a tree.
func Lookup(tree any, pointer string) (any, error) {
	p, err := jsonpointer.New(pointer)
	if err != nil {
		return nil, err
	}
	v, _, err := p.Get(tree)
	return v, err
}

// PointerPath joins decoded tokens into an escaped JSON pointer.
func PointerPath(tokens []string) string {
	if len(tokens) == 0 {
		return ""
	}
	escaped := make([]string, len(tokens))
	for i, t := range tokens {
		escaped[i] = jsonpointer.Escape(t)
	}
	return "/" + strings.Join(escaped, "/")
}
