package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/chazu/abcvm/abc"
	"github.com/chazu/abcvm/catalog"
)

// useColor resolves the -color flag against the output stream.
func useColor(mode string, w io.Writer) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// disassemble prints the definitions and method listings of each module.
func disassemble(paths []string, w io.Writer, color bool) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		mod, err := abc.Open(data, abc.NewInterner(), abc.WithSource(path))
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "; %s version %s\n", path, mod.Version)
		names, err := catalog.Definitions(data)
		if err != nil {
			return err
		}
		for _, n := range names {
			fmt.Fprintf(w, "; defines %s\n", n)
		}
		for i := range mod.MethodCount() {
			body, err := mod.Body(i)
			if err != nil {
				return err
			}
			if body == nil {
				continue
			}
			if info, err := mod.Method(i); err == nil {
				fmt.Fprintf(w, "\n; %s\n", info.DebugName())
			}
			fmt.Fprint(w, abc.Disassemble(body, color))
		}
	}
	return nil
}
