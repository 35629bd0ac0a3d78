// Package persistence stores canonical documents on disk, one directory per
// (provider, service, version) holding a YAML and a JSON rendition.
package persistence

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/agentstation/apicorpus/pkg/constants"
	"github.com/agentstation/apicorpus/pkg/document"
	"github.com/agentstation/apicorpus/pkg/errors"
	"github.com/agentstation/apicorpus/pkg/registry"
)

// Store manages the canonical file tree rooted at a directory.
type Store struct {
	root string
}

// New returns a store rooted at root.
func New(root string) *Store {
	return &Store{root: root}
}

// Root returns the root directory.
func (s *Store) Root() string {
	return s.root
}

// segment normalizes one path segment: NFC form, no separators, no dot names.
func segment(v string) (string, error) {
	v = norm.NFC.String(strings.TrimSpace(v))
	v = strings.NewReplacer("/", "_", "\\", "_").Replace(v)
	if v == "" || v == "." || v == ".." {
		return "", errors.NewValidationError("path", v, "invalid path segment")
	}
	return v, nil
}

// RelDir returns the slash-separated directory of k relative to the root.
func RelDir(k registry.Key) (string, error) {
	parts := []string{k.Provider}
	if k.Service != "" {
		parts = append(parts, k.Service)
	}
	parts = append(parts, k.Version)
	for i, p := range parts {
		seg, err := segment(p)
		if err != nil {
			return "", fmt.Errorf("key %s: %w", k, err)
		}
		parts[i] = seg
	}
	return path.Join(parts...), nil
}

// Filename returns the relative path of the YAML rendition of k for a family.
func Filename(k registry.Key, family document.Family) (string, error) {
	dir, err := RelDir(k)
	if err != nil {
		return "", err
	}
	return path.Join(dir, baseName(family)+".yaml"), nil
}

func baseName(family document.Family) string {
	if family.Canonical() == document.FamilyAsyncAPI {
		return "asyncapi"
	}
	return "openapi"
}

func (s *Store) abs(rel string) string {
	return filepath.Join(s.root, filepath.FromSlash(rel))
}

// Exists reports whether the file at a relative path exists.
func (s *Store) Exists(rel string) bool {
	_, err := os.Stat(s.abs(rel))
	return err == nil
}

// Read parses the canonical document stored at a relative path.
func (s *Store) Read(rel string) (document.Document, error) {
	p := s.abs(rel)
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WrapIO("read", p, fmt.Errorf("%w: %w", errors.ErrSourceMissing, err))
		}
		return nil, errors.WrapIO("read", p, err)
	}
	return document.Parse(data, p)
}

// Write stores doc under k as YAML and JSON and returns the relative YAML
// filename. Renditions of another family left in the directory are removed.
func (s *Store) Write(k registry.Key, doc document.Document) (string, error) {
	family, _ := doc.Family()
	rel, err := Filename(k, family)
	if err != nil {
		return "", err
	}

	yamlData, err := doc.CanonicalYAML()
	if err != nil {
		return "", errors.WrapParse("yaml", rel, err)
	}
	jsonData, err := doc.CanonicalJSON("  ")
	if err != nil {
		return "", errors.WrapParse("json", rel, err)
	}

	dir := filepath.Dir(s.abs(rel))
	if err := os.MkdirAll(dir, constants.DirPermissions); err != nil {
		return "", errors.WrapIO("mkdir", dir, err)
	}

	base := baseName(family)
	if err := writeFile(filepath.Join(dir, base+".yaml"), yamlData); err != nil {
		return "", err
	}
	if err := writeFile(filepath.Join(dir, base+".json"), jsonData); err != nil {
		return "", err
	}

	for _, other := range []string{"openapi", "asyncapi"} {
		if other == base {
			continue
		}
		for _, ext := range []string{".yaml", ".json"} {
			stale := filepath.Join(dir, other+ext)
			if err := os.Remove(stale); err != nil && !os.IsNotExist(err) {
				return "", errors.WrapIO("remove", stale, err)
			}
		}
	}
	return rel, nil
}

// Move renames the directory of from to that of to. Moving onto an
// existing directory fails.
func (s *Store) Move(from, to registry.Key) error {
	fromRel, err := RelDir(from)
	if err != nil {
		return err
	}
	toRel, err := RelDir(to)
	if err != nil {
		return err
	}
	if fromRel == toRel {
		return nil
	}

	src, dst := s.abs(fromRel), s.abs(toRel)
	if _, err := os.Stat(dst); err == nil {
		return errors.WrapIO("move", dst, errors.ErrAlreadyExists)
	}
	if err := os.MkdirAll(filepath.Dir(dst), constants.DirPermissions); err != nil {
		return errors.WrapIO("mkdir", filepath.Dir(dst), err)
	}
	if err := os.Rename(src, dst); err != nil {
		return errors.WrapIO("move", src, err)
	}
	s.prune(filepath.Dir(src))
	return nil
}

// Remove deletes the directory of k and any parents left empty.
func (s *Store) Remove(k registry.Key) error {
	rel, err := RelDir(k)
	if err != nil {
		return err
	}
	dir := s.abs(rel)
	if err := os.RemoveAll(dir); err != nil {
		return errors.WrapIO("remove", dir, err)
	}
	s.prune(filepath.Dir(dir))
	return nil
}

// prune removes empty directories from dir up to, not including, the root.
func (s *Store) prune(dir string) {
	root := filepath.Clean(s.root)
	for dir = filepath.Clean(dir); dir != root && strings.HasPrefix(dir, root); dir = filepath.Dir(dir) {
		if os.Remove(dir) != nil {
			return
		}
	}
}

// writeFile writes data through a temporary sibling and renames it into place.
func writeFile(name string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(name), "."+filepath.Base(name)+".*")
	if err != nil {
		return errors.WrapIO("create", name, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.WrapIO("write", name, err)
	}
	if err := tmp.Close(); err != nil {
		return errors.WrapIO("close", name, err)
	}
	if err := os.Chmod(tmp.Name(), constants.FilePermissions); err != nil {
		return errors.WrapIO("chmod", name, err)
	}
	if err := os.Rename(tmp.Name(), name); err != nil {
		return errors.WrapIO("rename", name, err)
	}
	return nil
}
