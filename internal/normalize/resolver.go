package normalize

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/agentstation/apicorpus/internal/fetch"
	"github.com/agentstation/apicorpus/pkg/document"
	"github.com/agentstation/apicorpus/pkg/errors"
)

// Retriever fetches documents by locator.
type Retriever interface {
	Retrieve(ctx context.Context, locator string) (*fetch.Response, error)
}

// Resolver inlines external $ref targets. References internal to the root
// document ("#/...") are checked and kept as-is.
type Resolver struct {
	retriever Retriever
	cache     *ResolutionCache
}

// NewResolver creates a resolver. A nil cache gets a private one.
func NewResolver(retriever Retriever, cache *ResolutionCache) *Resolver {
	if cache == nil {
		cache = NewResolutionCache()
	}
	return &Resolver{retriever: retriever, cache: cache}
}

// Cache returns the resolution cache.
func (r *Resolver) Cache() *ResolutionCache {
	return r.cache
}

// Resolve returns a copy of doc with every external reference inlined.
func (r *Resolver) Resolve(ctx context.Context, doc document.Document, locator string) (document.Document, error) {
	w := &walker{ctx: ctx, resolver: r, root: locator, rootDoc: doc}
	out, err := w.walk(map[string]any(doc), locator, nil, nil)
	if err != nil {
		return nil, err
	}
	return document.Document(out.(map[string]any)), nil
}

func (r *Resolver) load(ctx context.Context, locator string) (document.Document, error) {
	if doc, ok := r.cache.get(locator); ok {
		return doc, nil
	}
	resp, err := r.retriever.Retrieve(ctx, locator)
	if err != nil {
		return nil, err
	}
	doc, err := document.Parse(resp.Content, locator)
	if err != nil {
		return nil, err
	}
	r.cache.set(locator, doc)
	return doc, nil
}

type walker struct {
	ctx      context.Context
	resolver *Resolver
	root     string
	rootDoc  document.Document
}

// walk copies node, inlining references. base is the locator of the document
// node belongs to, path the pointer tokens within the root document and
// chain the references currently being expanded.
func (w *walker) walk(node any, base string, path []string, chain []string) (any, error) {
	switch t := node.(type) {
	case map[string]any:
		if ref, ok := t["$ref"].(string); ok {
			return w.expand(t, ref, base, path, chain)
		}
		out := make(map[string]any, len(t))
		for _, k := range slices.Sorted(maps.Keys(t)) {
			v, err := w.walk(t[k], base, append(path, k), chain)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, v := range t {
			resolved, err := w.walk(v, base, append(path, fmt.Sprint(i)), chain)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return node, nil
	}
}

func (w *walker) expand(node map[string]any, ref, base string, path, chain []string) (any, error) {
	target, fragment, _ := strings.Cut(ref, "#")
	locator := base
	if target != "" {
		locator = fetch.Resolve(base, target)
	}

	// References into the root document stay references.
	if locator == w.root {
		if _, err := document.Lookup(map[string]any(w.rootDoc), fragment); err != nil {
			return nil, unresolved(ref, path, err)
		}
		out := document.Plain(node).(map[string]any)
		out["$ref"] = "#" + fragment
		return out, nil
	}

	key := locator + "#" + fragment
	if slices.Contains(chain, key) {
		return nil, &errors.ValidationError{
			Field:   "$ref",
			Value:   ref,
			Message: "circular reference",
			Context: document.PointerPath(path),
			Err:     errors.ErrUnresolvedRef,
		}
	}

	doc, err := w.resolver.load(w.ctx, locator)
	if err != nil {
		return nil, unresolved(ref, path, err)
	}
	value, err := document.Lookup(map[string]any(doc), fragment)
	if err != nil {
		return nil, unresolved(ref, path, err)
	}

	resolved, err := w.walk(document.Plain(value), locator, path, append(slices.Clone(chain), key))
	if err != nil {
		return nil, err
	}

	// Sibling keywords next to $ref override the inlined target.
	if m, ok := resolved.(map[string]any); ok && len(node) > 1 {
		for k, v := range node {
			if k == "$ref" {
				continue
			}
			m[k] = document.Plain(v)
		}
	}
	return resolved, nil
}

func unresolved(ref string, path []string, err error) error {
	return &errors.ValidationError{
		Field:   "$ref",
		Value:   ref,
		Message: err.Error(),
		Context: document.PointerPath(path),
		Err:     fmt.Errorf("%w: %w", errors.ErrUnresolvedRef, err),
	}
}
