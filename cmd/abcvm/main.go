// abcvm CLI - runs, disassembles and bundles bytecode modules
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/abcvm/catalog"
	"github.com/chazu/abcvm/config"
	"github.com/chazu/abcvm/interp"
	"github.com/chazu/abcvm/jit"
	"github.com/chazu/abcvm/vm"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	verbose    bool
	configPath string
	disasm     bool
	color      string
	bundle     string
	catalog    string
	noJIT      bool
	strict     bool
	stats      bool
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("abcvm", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var o options
	fs.BoolVar(&o.verbose, "v", false, "Verbose output")
	fs.StringVar(&o.configPath, "config", "", "Configuration file (default: abcvm.toml or abcvm.yaml found upward from the working directory)")
	fs.BoolVar(&o.disasm, "disasm", false, "Print method listings instead of running")
	fs.StringVar(&o.color, "color", "auto", "Colorize listings: auto, always, never")
	fs.StringVar(&o.bundle, "bundle", "", "Write the modules into this bundle file (requires -catalog)")
	fs.StringVar(&o.catalog, "catalog", "", "Catalog file: written with -bundle, otherwise used for on-demand loading")
	fs.BoolVar(&o.noJIT, "no-jit", false, "Interpret every method")
	fs.BoolVar(&o.strict, "strict", false, "Fail when a native method has no implementation")
	fs.BoolVar(&o.stats, "stats", false, "Print compiler and interpreter statistics after running")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: abcvm [options] module.abc...\n\n")
		fmt.Fprintf(stderr, "Loads the given modules into one domain and runs each module's entry script.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  abcvm main.abc                              # Run a module\n")
		fmt.Fprintf(stderr, "  abcvm -disasm lib.abc                       # Print listings\n")
		fmt.Fprintf(stderr, "  abcvm -bundle lib.bundle -catalog lib.cat a.abc b.abc\n")
		fmt.Fprintf(stderr, "  abcvm -catalog lib.cat main.abc             # Load library code on demand\n")
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	paths := fs.Args()

	cfg, err := loadConfig(o.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	verbosity := cfg.Log.Verbosity
	if o.verbose {
		verbosity = max(verbosity, 2)
	}
	var logPath *string
	if cfg.Log.Path != "" {
		p := cfg.Path(cfg.Log.Path)
		logPath = &p
	}
	commonlog.Configure(verbosity, logPath)

	switch {
	case o.bundle != "":
		if o.catalog == "" {
			fmt.Fprintf(stderr, "Error: -bundle requires -catalog\n")
			return 2
		}
		err = writeBundle(o.bundle, o.catalog, paths, stdout, o.verbose)
	case o.disasm:
		err = disassemble(paths, stdout, useColor(o.color, stdout))
	default:
		if len(paths) == 0 && len(cfg.Preload) == 0 {
			fs.Usage()
			return 2
		}
		err = execute(cfg, &o, paths, stdout)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	cfg, err := config.FindAndLoad(".")
	if err != nil || cfg != nil {
		return cfg, err
	}
	return config.Default(), nil
}

// execute loads the preload modules and the named modules into one domain,
// running each module's entry script in load order.
func execute(cfg *config.Config, o *options, paths []string, stdout io.Writer) error {
	if o.strict {
		cfg.VM.Strict = true
	}
	if o.noJIT {
		disabled := false
		cfg.JIT.Enabled = &disabled
	}
	opts := cfg.Options()
	opts.Output = stdout
	rt := vm.New(opts)
	d := rt.NewDomain(rt.SystemDomain())

	catPath := o.catalog
	if catPath == "" {
		catPath = cfg.Path(cfg.Catalog.Path)
	}
	if catPath != "" {
		cat, err := catalog.Load(catPath)
		if err != nil {
			return err
		}
		d.SetCatalog(cat)
		if o.verbose {
			fmt.Fprintf(stdout, "Catalog %s: %d names\n", catPath, len(cat.Entries))
		}
	}

	all := append(cfg.PreloadPaths(), paths...)
	for _, path := range all {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		mod, err := d.LoadModule(data, path)
		if err != nil {
			return err
		}
		if o.verbose {
			fmt.Fprintf(stdout, "Loaded %s (version %s, %d methods)\n", path, mod.Version, mod.MethodCount())
		}
		if err := d.RunMain(mod); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}

	if o.stats {
		printStats(stdout, opts, d)
	}
	return nil
}

func printStats(w io.Writer, opts vm.Options, d *vm.Domain) {
	fmt.Fprintf(w, "domain %s: %d modules, %d scripts\n", d.ID, len(d.Modules()), len(d.Scripts()))
	if c, ok := opts.Compiler.(*jit.Compiler); ok {
		s := c.Stats()
		fmt.Fprintf(w, "jit: %d compiled, %d fell back, %v compiling\n", s.MethodsCompiled, s.Failures, s.CompilationTime)
	}
	if ip, ok := opts.Interpreter.(*interp.Interpreter); ok {
		s := ip.Stats()
		fmt.Fprintf(w, "interp: %d methods, %d instructions\n", s.Prepared, s.Instructions)
	}
}
