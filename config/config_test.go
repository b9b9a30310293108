package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/chazu/abcvm/abc"
	"github.com/chazu/abcvm/jit"
	"github.com/chazu/abcvm/vm"
)

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	path := write(t, dir, "abcvm.toml", `
preload = ["lib/core.abc"]

[vm]
min_version = "46.15"
strict = true
max_call_depth = 50

[jit]
enabled = false
threshold = 10
profile = true

[log]
verbosity = 2
path = "abcvm.log"

[catalog]
path = "lib.catalog"
`)

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.VM.MinVersion != "46.15" || !c.VM.Strict || c.VM.MaxCallDepth != 50 {
		t.Errorf("vm = %+v", c.VM)
	}
	if *c.JIT.Enabled || c.JIT.Threshold != 10 || !c.JIT.Profile {
		t.Errorf("jit = %+v", c.JIT)
	}
	if c.Log.Verbosity != 2 || c.Log.Path != "abcvm.log" {
		t.Errorf("log = %+v", c.Log)
	}
	if got, want := c.Path(c.Catalog.Path), filepath.Join(c.Dir, "lib.catalog"); got != want {
		t.Errorf("catalog path = %q, want %q", got, want)
	}
	if got := c.PreloadPaths(); len(got) != 1 || got[0] != filepath.Join(c.Dir, "lib/core.abc") {
		t.Errorf("preload = %v", got)
	}

	opts := c.Options()
	if opts.MinVersion != (abc.Version{Major: 46, Minor: 15}) {
		t.Errorf("MinVersion = %v, want 46.15", opts.MinVersion)
	}
	if opts.Compiler != nil {
		t.Errorf("Compiler installed with the jit disabled")
	}
	if opts.Interpreter == nil || opts.JITThreshold != 10 || !opts.Profile || !opts.Strict {
		t.Errorf("Options = %+v", opts)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := write(t, dir, "abcvm.yaml", `
vm:
  strict: true
jit:
  threshold: 3
  listings: out
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !c.VM.Strict || c.JIT.Threshold != 3 {
		t.Errorf("config = %+v", c)
	}
	comp, ok := c.Options().Compiler.(*jit.Compiler)
	if !ok {
		t.Fatalf("Compiler = %T, want *jit.Compiler", c.Options().Compiler)
	}
	if comp.OutputDir != filepath.Join(c.Dir, "out") {
		t.Errorf("OutputDir = %q", comp.OutputDir)
	}
}

func TestDefaults(t *testing.T) {
	dir := t.TempDir()
	c, err := Load(write(t, dir, "abcvm.toml", "[vm]\nstrict = false\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.VM.MinVersion != "46.16" {
		t.Errorf("min_version = %q, want 46.16", c.VM.MinVersion)
	}
	if c.VM.MaxCallDepth != vm.DefaultMaxCallDepth {
		t.Errorf("max_call_depth = %d", c.VM.MaxCallDepth)
	}
	if c.JIT.Enabled == nil || !*c.JIT.Enabled {
		t.Error("jit disabled by default")
	}
	if c.Log.Verbosity != 1 {
		t.Errorf("verbosity = %d, want 1", c.Log.Verbosity)
	}
	if Default().Options().Compiler == nil {
		t.Error("default options have no compiler")
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name, file, content string
	}{
		{"bad toml", "abcvm.toml", "[vm\n"},
		{"bad yaml", "abcvm.yaml", "vm: [\n"},
		{"bad version", "abcvm.toml", "[vm]\nmin_version = \"46\"\n"},
		{"unknown format", "abcvm.json", "{}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(write(t, dir, tt.file, tt.content)); err == nil {
				t.Error("Load succeeded, want an error")
			}
		})
	}
	if _, err := Load(filepath.Join(dir, "missing.toml")); err == nil {
		t.Error("Load of a missing file succeeded")
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	write(t, root, "abcvm.yaml", "jit:\n  threshold: 7\n")
	sub := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}

	c, err := FindAndLoad(sub)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if c == nil || c.JIT.Threshold != 7 {
		t.Fatalf("FindAndLoad = %+v, want threshold 7", c)
	}
	want, _ := filepath.Abs(root)
	if c.Dir != want {
		t.Errorf("Dir = %q, want %q", c.Dir, want)
	}

	// A toml file wins within one directory.
	write(t, root, "abcvm.toml", "[jit]\nthreshold = 9\n")
	if c, _ := FindAndLoad(sub); c == nil || c.JIT.Threshold != 9 {
		t.Errorf("FindAndLoad preferred the wrong file: %+v", c)
	}
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in      string
		want    abc.Version
		wantErr bool
	}{
		{"46.16", abc.Version{Major: 46, Minor: 16}, false},
		{"47.0", abc.Version{Major: 47}, false},
		{"46", abc.Version{}, true},
		{"x.1", abc.Version{}, true},
		{"1.70000", abc.Version{}, true},
	}
	for _, tt := range tests {
		got, err := ParseVersion(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseVersion(%q) = %v, %v, want %v", tt.in, got, err, tt.want)
		}
	}
}
