package main

import (
	"fmt"
	"io"

	"github.com/chazu/abcvm/catalog"
)

// writeBundle concatenates the modules into bundlePath and writes the name
// index to catalogPath.
func writeBundle(bundlePath, catalogPath string, paths []string, w io.Writer, verbose bool) error {
	if len(paths) == 0 {
		return fmt.Errorf("no modules to bundle")
	}
	c, err := catalog.BuildFiles(bundlePath, paths...)
	if err != nil {
		return err
	}
	if err := c.Save(catalogPath); err != nil {
		return err
	}
	fmt.Fprintf(w, "Bundled %d modules (%d names) into %s\n", len(paths), len(c.Entries), bundlePath)
	if verbose {
		for _, n := range c.Names() {
			e := c.Entries[n]
			fmt.Fprintf(w, "  %-30s %s@%d\n", n, e.Source, e.Offset)
		}
	}
	return nil
}
