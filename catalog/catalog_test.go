package catalog

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/chazu/abcvm/abc"
	"github.com/chazu/abcvm/interp"
	"github.com/chazu/abcvm/vm"
)

// constModule builds a module whose script defines one int constant per
// name, all in namespace pkg.
func constModule(pkg string, value int32, locals ...string) []byte {
	b := abc.NewModuleBuilder()
	init := b.Function(abc.MethodSig{}, abc.BodyDef{
		Code:     abc.NewCodeBuilder().Emit(abc.OpReturnVoid).Bytes(),
		MaxStack: 1,
		MaxScope: 1,
	})
	var traits []abc.TraitDef
	for _, l := range locals {
		name := b.PackageName(pkg, l)
		traits = append(traits, abc.ConstDef(name, 0, b.PublicName("int"), abc.ValueRef{Index: b.Int(value), Kind: abc.ValueInt}))
	}
	b.Script(init, traits...)
	return b.Bytes()
}

func buildFixture(t *testing.T) (*Catalog, string) {
	t.Helper()
	dir := t.TempDir()
	c, err := Build(filepath.Join(dir, "lib.bundle"), []Source{
		{Name: "math.abc", Data: constModule("math", 3, "three", "pi")},
		{Name: "top.abc", Data: constModule("", 9, "nine")},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return c, dir
}

// ---------------------------------------------------------------------------
// Building
// ---------------------------------------------------------------------------

func TestBuildIndexesScriptTraits(t *testing.T) {
	c, _ := buildFixture(t)
	want := []string{"math::pi", "math::three", "nine"}
	if got := c.Names(); !slices.Equal(got, want) {
		t.Errorf("Names = %v, want %v", got, want)
	}
	if c.Entries["math::pi"] != c.Entries["math::three"] {
		t.Errorf("names from one module have different entries")
	}
	top := c.Entries["nine"]
	if top.Offset != c.Entries["math::pi"].Length || top.Source != "top.abc" {
		t.Errorf("nine entry = %+v", top)
	}
}

func TestBuildRejectsDuplicates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dup.bundle")
	_, err := Build(path, []Source{
		{Name: "a.abc", Data: constModule("p", 1, "x")},
		{Name: "b.abc", Data: constModule("p", 2, "x")},
	})
	if !errors.Is(err, ErrDuplicateName) {
		t.Errorf("Build error = %v, want ErrDuplicateName", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("bundle written despite error")
	}
}

func TestBuildRejectsMalformedModules(t *testing.T) {
	_, err := Build(filepath.Join(t.TempDir(), "x.bundle"), []Source{{Name: "junk", Data: []byte{1, 2, 3}}})
	if err == nil {
		t.Error("Build accepted a malformed module")
	}
}

// ---------------------------------------------------------------------------
// Persistence and lookup
// ---------------------------------------------------------------------------

func TestSaveLoad(t *testing.T) {
	c, dir := buildFixture(t)
	path := filepath.Join(dir, "lib.catalog")
	if err := c.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !slices.Equal(loaded.Names(), c.Names()) {
		t.Errorf("loaded names = %v, want %v", loaded.Names(), c.Names())
	}
	data, e, err := loaded.Resolve("nine")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !bytes.Equal(data, constModule("", 9, "nine")) || e.Source != "top.abc" {
		t.Errorf("Resolve returned the wrong module (%s)", e.Source)
	}

	again, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := loaded.Save(path); err != nil {
		t.Fatal(err)
	}
	resaved, _ := os.ReadFile(path)
	if !bytes.Equal(again, resaved) {
		t.Errorf("encoding is not canonical")
	}
}

func TestSaveElsewhere(t *testing.T) {
	c, dir := buildFixture(t)
	sub := filepath.Join(dir, "index")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(sub, "lib.catalog")
	if err := c.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := loaded.Entries["nine"].Bundle; got != filepath.Join("..", "lib.bundle") {
		t.Errorf("Bundle = %q, want ../lib.bundle", got)
	}
	if _, _, err := loaded.Resolve("math::pi"); err != nil {
		t.Errorf("Resolve failed: %v", err)
	}
}

func TestLoadRejectsUnknownVersion(t *testing.T) {
	dir := t.TempDir()
	c := New(dir)
	c.Version = 99
	path := filepath.Join(dir, "v.catalog")
	if err := c.Save(path); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); !errors.Is(err, ErrVersion) {
		t.Errorf("Load error = %v, want ErrVersion", err)
	}
}

func TestResolveDetectsCorruption(t *testing.T) {
	c, dir := buildFixture(t)
	bundle := filepath.Join(dir, "lib.bundle")
	data, err := os.ReadFile(bundle)
	if err != nil {
		t.Fatal(err)
	}
	data[len(data)-1] ^= 0xFF
	if err := os.WriteFile(bundle, data, 0644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := c.Resolve("nine"); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Resolve error = %v, want ErrCorrupt", err)
	}
	if _, _, err := c.Resolve("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve error = %v, want ErrNotFound", err)
	}
}

func TestLookupMiss(t *testing.T) {
	c, _ := buildFixture(t)
	_, _, ok, err := c.Lookup("nowhere")
	if ok || err != nil {
		t.Errorf("Lookup = %v, %v, want a clean miss", ok, err)
	}
}

// ---------------------------------------------------------------------------
// On-demand loading
// ---------------------------------------------------------------------------

func TestDomainLoadsOnDemand(t *testing.T) {
	c, _ := buildFixture(t)
	rt := vm.New(vm.Options{Interpreter: interp.New()})
	d := rt.NewDomain(rt.SystemDomain())
	d.SetCatalog(c)

	in := rt.Interner()
	three := in.QName(in.Namespace(abc.NamespaceKindPackage, "math"), "three")
	v, err := d.GetProperty(three)
	if err != nil || v != int32(3) {
		t.Fatalf("GetProperty(math::three) = %v, %v, want 3", v, err)
	}
	pi := in.QName(in.Namespace(abc.NamespaceKindPackage, "math"), "pi")
	if _, err := d.GetProperty(pi); err != nil {
		t.Fatal(err)
	}
	if len(d.Modules()) != 1 {
		t.Errorf("modules = %d, want 1", len(d.Modules()))
	}
	v, err = d.GetProperty(rt.PublicName("nine"))
	if err != nil || v != int32(9) {
		t.Errorf("GetProperty(nine) = %v, %v, want 9", v, err)
	}
	if len(d.Modules()) != 2 {
		t.Errorf("modules = %d, want 2", len(d.Modules()))
	}
}
