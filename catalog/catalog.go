// Package catalog maps qualified names to the modules that define them so
// that a domain can load code on first reference. Modules are concatenated
// into a bundle file; the catalog records each definition's byte range in
// the bundle and is persisted as canonical CBOR.
package catalog

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/tliron/commonlog"

	"github.com/chazu/abcvm/abc"
)

// FormatVersion is the catalog encoding version written by Save.
const FormatVersion = 1

var (
	ErrNotFound      = errors.New("catalog: name not found")
	ErrDuplicateName = errors.New("catalog: name defined by more than one module")
	ErrCorrupt       = errors.New("catalog: bundle contents do not match the index")
	ErrVersion       = errors.New("catalog: unsupported format version")
)

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("catalog: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// Entry locates one module inside a bundle.
type Entry struct {
	Bundle string   `cbor:"1,keyasint"` // relative to the catalog file
	Offset int64    `cbor:"2,keyasint"`
	Length int64    `cbor:"3,keyasint"`
	Hash   [32]byte `cbor:"4,keyasint"`
	Source string   `cbor:"5,keyasint,omitempty"` // original file name
}

// Catalog is the name index. Keys are "uri::local" for names in a
// non-empty namespace and the bare local name otherwise, the form
// vm.Domain asks for.
type Catalog struct {
	Version int              `cbor:"1,keyasint"`
	Entries map[string]Entry `cbor:"2,keyasint"`

	dir string
	log commonlog.Logger

	mu    sync.Mutex
	cache map[[32]byte][]byte
}

// New returns an empty catalog whose bundles are resolved relative to dir.
func New(dir string) *Catalog {
	return &Catalog{
		Version: FormatVersion,
		Entries: make(map[string]Entry),
		dir:     dir,
		log:     commonlog.GetLogger("abcvm.catalog"),
		cache:   make(map[[32]byte][]byte),
	}
}

// Source is one module to bundle.
type Source struct {
	Name string
	Data []byte
}

// Build writes sources into the bundle at bundlePath and indexes their
// script-level definitions. Every module is parsed first; nothing is
// written if one of them is malformed or two define the same name.
func Build(bundlePath string, sources []Source) (*Catalog, error) {
	c := New(filepath.Dir(bundlePath))
	bundle := filepath.Base(bundlePath)
	var offset int64
	for _, src := range sources {
		names, err := Definitions(src.Data)
		if err != nil {
			return nil, fmt.Errorf("indexing %s: %w", src.Name, err)
		}
		e := Entry{
			Bundle: bundle,
			Offset: offset,
			Length: int64(len(src.Data)),
			Hash:   sha256.Sum256(src.Data),
			Source: src.Name,
		}
		for _, n := range names {
			if prev, ok := c.Entries[n]; ok {
				return nil, fmt.Errorf("%w: %s in %s and %s", ErrDuplicateName, n, prev.Source, src.Name)
			}
			c.Entries[n] = e
		}
		offset += e.Length
	}

	f, err := os.Create(bundlePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	for _, src := range sources {
		if _, err := f.Write(src.Data); err != nil {
			return nil, fmt.Errorf("writing bundle: %w", err)
		}
	}
	c.log.Infof("bundled %d modules into %s: %d names", len(sources), bundlePath, len(c.Entries))
	return c, f.Close()
}

// BuildFiles is Build over module files.
func BuildFiles(bundlePath string, paths ...string) (*Catalog, error) {
	sources := make([]Source, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		sources = append(sources, Source{Name: filepath.Base(p), Data: data})
	}
	return Build(bundlePath, sources)
}

// Definitions returns the catalog keys of the script-level traits of a
// module.
func Definitions(data []byte) ([]string, error) {
	m, err := abc.Open(data, abc.NewInterner())
	if err != nil {
		return nil, err
	}
	var out []string
	for _, s := range m.Scripts {
		for _, t := range s.Traits {
			n, err := t.Name()
			if err != nil {
				return nil, err
			}
			out = append(out, Key(n))
		}
	}
	return out, nil
}

// Key returns the catalog key of a qualified name.
func Key(n *abc.Name) string {
	if ns := n.Namespace(); ns != nil && ns.URI != "" {
		return ns.URI + "::" + n.LocalName()
	}
	return n.LocalName()
}

// ---------------------------------------------------------------------------
// Persistence
// ---------------------------------------------------------------------------

// Save writes the catalog to path. Bundle references are rewritten to be
// relative to the new location.
func (c *Catalog) Save(path string) error {
	dir := filepath.Dir(path)
	if err := c.rebase(dir); err != nil {
		return err
	}
	data, err := encMode.Marshal(c)
	if err != nil {
		return fmt.Errorf("catalog: marshal: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Catalog) rebase(dir string) error {
	from, err := filepath.Abs(c.dir)
	if err != nil {
		return err
	}
	to, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	if from == to {
		return nil
	}
	for n, e := range c.Entries {
		rel, err := filepath.Rel(to, filepath.Join(from, e.Bundle))
		if err != nil {
			return fmt.Errorf("catalog: rebasing %s: %w", e.Bundle, err)
		}
		e.Bundle = rel
		c.Entries[n] = e
	}
	c.dir = dir
	return nil
}

// Load reads a catalog written by Save. Bundles are resolved relative to
// the catalog's directory.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := New(filepath.Dir(path))
	if err := cbor.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("catalog: unmarshal %s: %w", path, err)
	}
	if c.Version != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrVersion, c.Version)
	}
	if c.Entries == nil {
		c.Entries = make(map[string]Entry)
	}
	c.log.Debugf("loaded catalog %s: %d names", path, len(c.Entries))
	return c, nil
}

// ---------------------------------------------------------------------------
// Lookup
// ---------------------------------------------------------------------------

// Names returns the indexed names in sorted order.
func (c *Catalog) Names() []string {
	out := make([]string, 0, len(c.Entries))
	for n := range c.Entries {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

// Resolve returns the bytes of the module defining qualifiedName.
func (c *Catalog) Resolve(qualifiedName string) ([]byte, Entry, error) {
	e, ok := c.Entries[qualifiedName]
	if !ok {
		return nil, Entry{}, fmt.Errorf("%w: %s", ErrNotFound, qualifiedName)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if data, ok := c.cache[e.Hash]; ok {
		return data, e, nil
	}
	data, err := c.read(e)
	if err != nil {
		return nil, e, err
	}
	c.cache[e.Hash] = data
	return data, e, nil
}

func (c *Catalog) read(e Entry) ([]byte, error) {
	f, err := os.Open(filepath.Join(c.dir, e.Bundle))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data := make([]byte, e.Length)
	if _, err := f.ReadAt(data, e.Offset); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %s is truncated", ErrCorrupt, e.Bundle)
		}
		return nil, err
	}
	if sha256.Sum256(data) != e.Hash {
		return nil, fmt.Errorf("%w: %s at %d", ErrCorrupt, e.Source, e.Offset)
	}
	return data, nil
}

// Lookup implements vm.Catalog. The source reported for a module is
// stable across names so the domain loads each module once.
func (c *Catalog) Lookup(qualifiedName string) ([]byte, string, bool, error) {
	data, e, err := c.Resolve(qualifiedName)
	if errors.Is(err, ErrNotFound) {
		return nil, "", false, nil
	}
	if err != nil {
		return nil, "", false, err
	}
	return data, fmt.Sprintf("%s@%d:%s", e.Bundle, e.Offset, e.Source), true, nil
}
